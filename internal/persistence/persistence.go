// Package persistence is the durable store backing Shadow State: Position
// and Intent records, trade history, and regime/system-event logs. It is
// grounded on internal/database/database.go's dual-driver New() (SQLite by
// default, Postgres when the DSN carries a postgres:// scheme) from the
// teacher, with the Market/Opportunity/ArbTrade/ScalpTrade models replaced
// by this core's own Position/TradeRecord/SystemEvent shape.
package persistence

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/oriongate/execcore/internal/eventbus"
	"github.com/oriongate/execcore/internal/types"
)

// Bounded retry queue parameters for §5: a pending write that can't be
// flushed immediately (e.g. the database is briefly unreachable) is retried
// with backoff up to maxWriteAttempts; if the queue is already full when a
// new write arrives, the oldest pending write is dropped and an operational
// alert is raised rather than blocking the caller or growing unbounded.
const (
	maxQueueLen       = 256
	maxWriteAttempts  = 5
	writeRetryBackoff = 500 * time.Millisecond
)

// PositionRecord is the gorm model for an open or recently-closed Position.
type PositionRecord struct {
	Symbol        string `gorm:"primaryKey"`
	Side          string
	Size          decimal.Decimal `gorm:"type:decimal(20,8)"`
	AvgEntryPrice decimal.Decimal `gorm:"type:decimal(20,8)"`
	CurrentStop   decimal.Decimal `gorm:"type:decimal(20,8)"`
	PhaseAtEntry  int
	RegimeAtEntry int
	OpenedAt      time.Time
	ReconciledAt  time.Time
	UpdatedAt     time.Time
}

// IntentRecord is the gorm model for an Intent's lifecycle audit trail.
type IntentRecord struct {
	SignalID     string `gorm:"primaryKey"`
	Symbol       string `gorm:"index"`
	Status       string
	RejectReason string
	Triggered    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TradeHistoryRecord is a closed trade (§6: trade history with filters).
type TradeHistoryRecord struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	Symbol        string `gorm:"index"`
	Side          string
	Size          decimal.Decimal `gorm:"type:decimal(20,8)"`
	EntryPrice    decimal.Decimal `gorm:"type:decimal(20,8)"`
	ExitPrice     decimal.Decimal `gorm:"type:decimal(20,8)"`
	PnL           decimal.Decimal `gorm:"column:pnl;type:decimal(20,8)"`
	Reason        string
	PhaseAtEntry  int `gorm:"index"`
	RegimeAtEntry int `gorm:"index"`
	OpenedAt      time.Time
	ClosedAt      time.Time `gorm:"index"`
}

// SystemEventRecord persists critical event-bus events for audit (§6, §9).
type SystemEventRecord struct {
	ID        uint `gorm:"primaryKey;autoIncrement"`
	Kind      string `gorm:"index"`
	Symbol    string
	Payload   string
	CreatedAt time.Time `gorm:"index"`
}

// Store wraps the gorm connection and implements shadowstate.Persister and
// shadowstate.PositionLoader. Writes never hit the database on the caller's
// goroutine: PersistPosition/PersistIntent/RecordTrade/RemovePosition only
// enqueue onto the bounded retry queue that Run drains.
type Store struct {
	db    *gorm.DB
	bus   *eventbus.Bus
	queue chan queuedWrite
}

// queuedWrite is one pending write, retried by Run until it succeeds or
// maxWriteAttempts is exhausted.
type queuedWrite struct {
	kind string
	fn   func() error
}

// Open mirrors the teacher's dual-driver selection: a postgres://-prefixed
// DSN opens Postgres, anything else is treated as a SQLite file path. bus
// may be nil (queue drops are then only logged, never published).
func Open(dsn string, bus *eventbus.Bus) (*Store, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("persistence store connected (postgres)")
	} else {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		db, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dsn).Msg("persistence store initialized (sqlite)")
	}

	if err := db.AutoMigrate(&PositionRecord{}, &IntentRecord{}, &TradeHistoryRecord{}, &SystemEventRecord{}); err != nil {
		return nil, err
	}
	return &Store{db: db, bus: bus, queue: make(chan queuedWrite, maxQueueLen)}, nil
}

// enqueue pushes a write onto the bounded retry queue without blocking. If
// the queue is already full, the oldest pending write is dropped (and
// reported via KindPersistenceQueueDrop) to make room for the new one.
func (s *Store) enqueue(kind string, fn func() error) error {
	w := queuedWrite{kind: kind, fn: fn}
	select {
	case s.queue <- w:
		return nil
	default:
	}

	select {
	case dropped := <-s.queue:
		s.reportDrop(dropped.kind)
	default:
	}

	select {
	case s.queue <- w:
	default:
		// a concurrent enqueue raced us and refilled the slot; drop the
		// write we were trying to add instead of blocking the caller.
		s.reportDrop(kind)
	}
	return nil
}

func (s *Store) reportDrop(kind string) {
	log.Warn().Str("kind", kind).Msg("persistence retry queue full, dropping oldest pending write")
	if s.bus != nil {
		s.bus.Publish(eventbus.KindPersistenceQueueDrop, map[string]any{"kind": kind})
	}
}

// Run drains the retry queue until ctx is canceled, retrying each write with
// backoff up to maxWriteAttempts before giving up on it (§5, §7
// PERSISTENCE_UNAVAILABLE).
func (s *Store) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case w := <-s.queue:
			s.runWithRetry(ctx, w)
		}
	}
}

func (s *Store) runWithRetry(ctx context.Context, w queuedWrite) {
	backoff := writeRetryBackoff
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		err := w.fn()
		if err == nil {
			return
		}
		if attempt == maxWriteAttempts {
			log.Error().Err(err).Str("kind", w.kind).Msg("persistence write failed after max retries, dropping")
			if s.bus != nil {
				s.bus.Publish(eventbus.KindOperationalAlert, map[string]any{
					"reason": "persistence write dropped after max retries",
					"kind":   w.kind,
					"error":  err.Error(),
				})
			}
			return
		}
		de := types.WrapError(types.ErrPersistenceUnavailable, "write failed, retrying", err)
		log.Warn().Err(de).Str("kind", w.kind).Int("attempt", attempt).Msg("persistence write failed, retrying")
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// RecordEvents subscribes to bus and persists every critical event for
// audit (§6, §9) until ctx is done, mirroring alerting.Notifier.Run's
// subscribe-and-forward shape.
func (s *Store) RecordEvents(ctx context.Context, bus *eventbus.Bus) {
	ch, unsubscribe := bus.Subscribe(128)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if !evt.Critical() {
				continue
			}
			symbol, _ := evt.Payload["symbol"].(string)
			payload, err := json.Marshal(evt.Payload)
			if err != nil {
				payload = []byte(`{}`)
			}
			if err := s.RecordEvent(string(evt.Kind), symbol, string(payload)); err != nil {
				log.Warn().Err(err).Str("kind", string(evt.Kind)).Msg("failed to enqueue system event")
			}
		}
	}
}

// PersistPosition enqueues a Position upsert; the write itself happens on
// Run's goroutine, never on the caller's.
func (s *Store) PersistPosition(pos types.Position) error {
	rec := PositionRecord{
		Symbol: pos.Symbol, Side: string(pos.Side), Size: pos.Size,
		AvgEntryPrice: pos.AvgEntryPrice, CurrentStop: pos.CurrentStop,
		PhaseAtEntry: pos.PhaseAtEntry, RegimeAtEntry: int(pos.RegimeAtEntry),
		OpenedAt: pos.OpenedAt, ReconciledAt: pos.ReconciledAt,
	}
	return s.enqueue("position", func() error { return s.db.Save(&rec).Error })
}

func (s *Store) RemovePosition(symbol string) error {
	return s.enqueue("position_remove", func() error {
		return s.db.Delete(&PositionRecord{}, "symbol = ?", symbol).Error
	})
}

func (s *Store) PersistIntent(intent types.Intent) error {
	rec := IntentRecord{
		SignalID: intent.Signal.SignalID, Symbol: intent.Signal.Symbol,
		Status: string(intent.Status), RejectReason: intent.RejectReason,
		Triggered: intent.Triggered, CreatedAt: intent.CreatedAt,
	}
	return s.enqueue("intent", func() error { return s.db.Save(&rec).Error })
}

// LoadAllPositions implements shadowstate.PositionLoader for startup recovery.
func (s *Store) LoadAllPositions(ctx context.Context) ([]types.Position, error) {
	var recs []PositionRecord
	if err := s.db.WithContext(ctx).Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]types.Position, 0, len(recs))
	for _, r := range recs {
		out = append(out, types.Position{
			Symbol: r.Symbol, Side: types.Side(r.Side), Size: r.Size,
			AvgEntryPrice: r.AvgEntryPrice, CurrentStop: r.CurrentStop,
			PhaseAtEntry: r.PhaseAtEntry, RegimeAtEntry: types.RegimeState(r.RegimeAtEntry),
			OpenedAt: r.OpenedAt, ReconciledAt: r.ReconciledAt,
		})
	}
	return out, nil
}

func (s *Store) RecordTrade(rec types.TradeRecord) error {
	row := TradeHistoryRecord{
		Symbol: rec.Symbol, Side: string(rec.Side), Size: rec.Size,
		EntryPrice: rec.EntryPrice, ExitPrice: rec.ExitPrice, PnL: rec.PnL,
		Reason: rec.Reason, PhaseAtEntry: rec.PhaseAtEntry, RegimeAtEntry: int(rec.RegimeAtEntry),
		OpenedAt: rec.OpenedAt, ClosedAt: rec.ClosedAt,
	}
	return s.enqueue("trade", func() error { return s.db.Create(&row).Error })
}

// TradeHistoryFilter narrows TradeHistory's result set per §6: pagination
// (limit capped at 1000) plus optional symbol/phase/regime/date-range
// filters.
type TradeHistoryFilter struct {
	Symbol string
	Phase  *int
	Regime *types.RegimeState
	Since  *time.Time
	Until  *time.Time
	Limit  int
	Offset int
}

// TradeHistory returns closed trades newest-first, bounded per §6.
func (s *Store) TradeHistory(f TradeHistoryFilter) ([]TradeHistoryRecord, error) {
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	q := s.db.Order("closed_at DESC").Limit(limit).Offset(f.Offset)
	if f.Symbol != "" {
		q = q.Where("symbol = ?", f.Symbol)
	}
	if f.Phase != nil {
		q = q.Where("phase_at_entry = ?", *f.Phase)
	}
	if f.Regime != nil {
		q = q.Where("regime_at_entry = ?", int(*f.Regime))
	}
	if f.Since != nil {
		q = q.Where("closed_at >= ?", *f.Since)
	}
	if f.Until != nil {
		q = q.Where("closed_at <= ?", *f.Until)
	}
	var recs []TradeHistoryRecord
	err := q.Find(&recs).Error
	return recs, err
}

// PerformanceSummary aggregates realized PnL and win rate across all closed trades.
func (s *Store) PerformanceSummary() (map[string]any, error) {
	var total int64
	s.db.Model(&TradeHistoryRecord{}).Count(&total)

	var won int64
	s.db.Model(&TradeHistoryRecord{}).Where("pnl > 0").Count(&won)

	var sum struct{ Total decimal.Decimal }
	s.db.Model(&TradeHistoryRecord{}).Select("COALESCE(SUM(pnl), 0) as total").Scan(&sum)

	winRate := 0.0
	if total > 0 {
		winRate = float64(won) / float64(total)
	}
	return map[string]any{
		"total_trades": total,
		"winning_trades": won,
		"win_rate":     winRate,
		"total_pnl":    sum.Total,
	}, nil
}

// RecordEvent persists a critical event-bus payload for audit.
func (s *Store) RecordEvent(kind, symbol, payload string) error {
	row := SystemEventRecord{Kind: kind, Symbol: symbol, Payload: payload, CreatedAt: time.Now()}
	return s.enqueue("event", func() error { return s.db.Create(&row).Error })
}
