// Package config loads execution-core configuration from the environment,
// following the same getEnv*-helper idiom the rest of this codebase uses.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Config is every environment toggle named in §6.
type Config struct {
	// Signing & auth
	SigningSecret string // HMAC key; required, no default
	SourceIDs     []string

	// Broker
	BrokerAPIKey    string
	BrokerAPISecret string
	ExchangeTarget  string // e.g. "mock", "linear-perp-a"
	Testnet         bool

	// Rate limiting
	ExchangeDocumentedRPS float64
	IngressRateLimitRPM   int
	IngressSensitiveRPM   int

	// Replay guard
	ReplayTTL    time.Duration
	RedisURL     string // optional write-through KV; empty disables it

	// Market data
	OrderBookWSURL string

	// Persistence
	PersistenceURL  string // "" / sqlite path / postgres:// dsn
	PersistenceKind string // "sqlite" | "postgres" | "none"

	// Execution defaults
	LimitOrKillWaitMs   int64
	ChaseIntervalMs     int64
	ChasePollIntervalMs int64
	MaxChaseTicks       int
	MaxChaseTimeMs      int64
	MinAlphaThreshold   float64

	// Phase manager
	StartingEquity    decimal.Decimal
	PhasePollInterval time.Duration

	// Alerting
	TelegramBotToken string
	TelegramChatID   int64

	// Ops
	Debug      bool
	LogFormat  string // "console" | "json"
	HTTPAddr   string
}

// Load reads .env (if present) then populates Config from the environment,
// applying defaults to every setting except the signing secret, whose absence
// is an error. Broker and Telegram credentials default to empty.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found, using environment variables")
	}

	cfg := &Config{
		SigningSecret:         os.Getenv("SIGNING_SECRET"),
		BrokerAPIKey:          os.Getenv("BROKER_API_KEY"),
		BrokerAPISecret:       os.Getenv("BROKER_API_SECRET"),
		ExchangeTarget:        getEnv("EXCHANGE_TARGET", "mock"),
		Testnet:               getEnvBool("TESTNET", true),
		ExchangeDocumentedRPS: getEnvFloat("EXCHANGE_DOCUMENTED_RPS", 10),
		IngressRateLimitRPM:   getEnvInt("INGRESS_RATE_LIMIT_RPM", 100),
		IngressSensitiveRPM:   getEnvInt("INGRESS_SENSITIVE_RPM", 10),
		ReplayTTL:             getEnvDuration("REPLAY_TTL", 5*time.Minute),
		RedisURL:              os.Getenv("REDIS_URL"),
		OrderBookWSURL:        getEnv("ORDERBOOK_WS_URL", "wss://example-exchange.invalid/ws"),
		PersistenceURL:        getEnv("PERSISTENCE_URL", "execcore.db"),
		PersistenceKind:       getEnv("PERSISTENCE_KIND", "sqlite"),
		LimitOrKillWaitMs:     getEnvInt64("LIMIT_OR_KILL_WAIT_MS", 5000),
		ChaseIntervalMs:       getEnvInt64("CHASE_INTERVAL_MS", 25),
		ChasePollIntervalMs:   getEnvInt64("CHASE_POLL_INTERVAL_MS", 100),
		MaxChaseTicks:         getEnvInt("MAX_CHASE_TICKS", 200),
		MaxChaseTimeMs:        getEnvInt64("MAX_CHASE_TIME_MS", 30000),
		MinAlphaThreshold:     getEnvFloat("MIN_ALPHA_THRESHOLD", 0.3),
		StartingEquity:        getEnvDecimal("STARTING_EQUITY", decimal.NewFromInt(1000)),
		PhasePollInterval:     getEnvDuration("PHASE_POLL_INTERVAL", 30*time.Second),
		TelegramBotToken:      os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:        getEnvInt64("TELEGRAM_CHAT_ID", 0),
		Debug:                 getEnvBool("DEBUG", false),
		LogFormat:             getEnv("LOG_FORMAT", "console"),
		HTTPAddr:              getEnv("HTTP_ADDR", ":8080"),
	}

	if cfg.SigningSecret == "" {
		return nil, fmt.Errorf("SIGNING_SECRET is required")
	}
	if sources := os.Getenv("SOURCE_IDS"); sources != "" {
		cfg.SourceIDs = splitCSV(sources)
	} else {
		cfg.SourceIDs = []string{"default-strategy-source"}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getEnvDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
