// Package replayguard implements §4.2: at-most-once admission of signal_ids
// plus clock-drift rejection. It is grounded on the per-key state map and
// mutex idiom used throughout the risk gate this core grows from, since
// that codebase has no dedicated replay-protection component of its own.
package replayguard

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/oriongate/execcore/internal/types"
)

// MaxDrift is the maximum allowed |now - signal.timestamp| (§4.1/§6).
const MaxDrift = 5 * time.Second

// Guard is the process-wide replay store. It is authoritative in memory;
// an optional Redis write-through is best-effort only, per §4.2: failures
// of the external KV must never cause a legitimate signal to be rejected.
type Guard struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	ttl     time.Duration
	redis   *redis.Client
	redisOK bool
}

// New builds a Guard with the given idempotency TTL. redisClient may be nil
// to run in-memory only.
func New(ttl time.Duration, redisClient *redis.Client) *Guard {
	g := &Guard{
		seen:    make(map[string]time.Time),
		ttl:     ttl,
		redis:   redisClient,
		redisOK: redisClient != nil,
	}
	return g
}

// CheckTimestamp validates |now - ts| <= MaxDrift.
func CheckTimestamp(now, ts time.Time) error {
	drift := now.Sub(ts)
	if drift < 0 {
		drift = -drift
	}
	if drift > MaxDrift {
		return types.NewError(types.ErrStaleTimestamp, "signal timestamp drift exceeds allowed window")
	}
	return nil
}

// SeenBefore atomically tests-and-sets signal_id, returning true if it was
// already present (i.e. this is a replay). Expired entries are purged
// lazily on each call.
func (g *Guard) SeenBefore(ctx context.Context, signalID string) bool {
	now := time.Now()
	g.mu.Lock()
	g.evictLocked(now)
	_, exists := g.seen[signalID]
	if !exists {
		g.seen[signalID] = now
	}
	g.mu.Unlock()

	if !exists && g.redisOK {
		g.writeThrough(ctx, signalID, now)
	}
	return exists
}

func (g *Guard) evictLocked(now time.Time) {
	for id, seenAt := range g.seen {
		if now.Sub(seenAt) > g.ttl {
			delete(g.seen, id)
		}
	}
}

// writeThrough best-effort mirrors the record to Redis; any failure degrades
// silently to in-memory-only, per §4.2, and is merely logged.
func (g *Guard) writeThrough(ctx context.Context, signalID string, seenAt time.Time) {
	if g.redis == nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := g.redis.Set(wctx, "replay:"+signalID, seenAt.Unix(), g.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("signal_id", signalID).Msg("replay guard redis write-through failed, continuing in-memory only")
		g.redisOK = false
	}
}
