// Command execcore runs the execution core: ingress dispatcher, order-book
// cache, broker gateway, shadow state, phase manager, and the execution
// strategies, wired together the way cmd/polybot/main.go wires its
// prediction/trading/telegram stack in the teacher.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/oriongate/execcore/internal/alerting"
	"github.com/oriongate/execcore/internal/broker"
	"github.com/oriongate/execcore/internal/config"
	"github.com/oriongate/execcore/internal/eventbus"
	"github.com/oriongate/execcore/internal/execution"
	"github.com/oriongate/execcore/internal/ingress"
	"github.com/oriongate/execcore/internal/l2validator"
	"github.com/oriongate/execcore/internal/metricsobs"
	"github.com/oriongate/execcore/internal/orderbook"
	"github.com/oriongate/execcore/internal/persistence"
	"github.com/oriongate/execcore/internal/phase"
	"github.com/oriongate/execcore/internal/ratelimitmw"
	"github.com/oriongate/execcore/internal/replayguard"
	"github.com/oriongate/execcore/internal/shadowstate"
	"github.com/oriongate/execcore/internal/trigger"
)

const version = "1.0.0"

// newRedisClient parses an optional REDIS_URL into a client for the replay
// guard's write-through path; an empty URL disables it (in-memory only).
func newRedisClient(url string) *redis.Client {
	if url == "" {
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		log.Warn().Err(err).Msg("invalid REDIS_URL, replay guard will run in-memory only")
		return nil
	}
	return redis.NewClient(opts)
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if cfg.LogFormat == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	log.Info().Str("version", version).Msg("execution core starting")

	bus := eventbus.New()

	store, err := persistence.Open(cfg.PersistenceURL, bus)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open persistence store")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go store.Run(ctx)
	go store.RecordEvents(ctx, bus)

	state := shadowstate.New(store, bus)

	replay := replayguard.New(cfg.ReplayTTL, newRedisClient(cfg.RedisURL))

	books := orderbook.NewCache()
	phases := phase.New(bus)
	phases.Update(cfg.StartingEquity)

	adapter := broker.NewMockAdapter(cfg.StartingEquity)
	gateway := broker.NewGateway(adapter, cfg.ExchangeDocumentedRPS)
	gateway.OnCall(metricsobs.ObserveGatewayCall)

	validator := l2validator.New(l2validator.DefaultConfig(), books)

	limitOrKill := execution.NewLimitOrKill(execution.DefaultLimitOrKillConfig(), gateway, books)
	chaser := execution.NewChaser(execution.DefaultChaserConfig(), gateway, books, bus)
	pyramid := execution.NewPyramidManager(execution.DefaultPyramidConfig(), gateway, bus)

	watcher := trigger.NewWatcher(nil, nil)

	reconciler := shadowstate.NewReconciler(state, gateway, bus, 10*time.Second)
	if n, err := reconciler.RecoverOnStartup(ctx, store); err != nil {
		log.Error().Err(err).Msg("startup position recovery failed")
	} else {
		log.Info().Int("positions", n).Msg("recovered positions from persistence store")
	}
	go reconciler.Run(ctx)

	notifier, err := alerting.New(cfg.TelegramBotToken, cfg.TelegramChatID)
	if err != nil {
		log.Warn().Err(err).Msg("telegram alerting disabled")
	} else {
		go notifier.Run(ctx, bus)
	}

	dispatcher := ingress.New(ingress.Deps{
		Secret: cfg.SigningSecret, SourceIDs: cfg.SourceIDs,
		Replay: replay, State: state, Phases: phases, Validator: validator,
		Books: books, Gateway: gateway, Bus: bus, Triggers: watcher,
		LimitOrKill: limitOrKill, Chaser: chaser, Pyramid: pyramid, Store: store,
	})
	watcher.SetCallbacks(dispatcher.HandleTriggerFire, dispatcher.HandleTriggerTimeout)

	fetchEquity := func() (decimal.Decimal, error) {
		acct, err := gateway.GetAccount(ctx)
		if err != nil {
			return decimal.Decimal{}, err
		}
		return acct.Equity, nil
	}
	go phases.PollEquity(ctx.Done(), cfg.PhasePollInterval, fetchEquity)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	limiter := ratelimitmw.New(cfg.IngressRateLimitRPM)
	r.Use(ratelimitmw.Middleware(limiter))
	dispatcher.RegisterRoutes(r)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metricsobs.Handler())
	go func() {
		if err := http.ListenAndServe(":9090", metricsMux); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server exited")
		}
	}()

	go watcher.SweepTimeouts(ctx, time.Second)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("ingress listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("ingress server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("ingress server shutdown error")
	}
	log.Info().Msg("execution core stopped")
}
