package replayguard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oriongate/execcore/internal/types"
)

func TestCheckTimestampWithinDrift(t *testing.T) {
	now := time.Now()
	if err := CheckTimestamp(now, now.Add(-4*time.Second)); err != nil {
		t.Errorf("4s drift should be within MaxDrift=5s, got %v", err)
	}
	if err := CheckTimestamp(now, now.Add(4*time.Second)); err != nil {
		t.Errorf("future drift of 4s should also be within MaxDrift, got %v", err)
	}
}

func TestCheckTimestampAtExactBoundary(t *testing.T) {
	now := time.Now()
	if err := CheckTimestamp(now, now.Add(-MaxDrift)); err != nil {
		t.Errorf("drift exactly at MaxDrift should pass (non-strict boundary), got %v", err)
	}
}

func TestCheckTimestampExceedsDrift(t *testing.T) {
	now := time.Now()
	err := CheckTimestamp(now, now.Add(-6*time.Second))
	if err == nil {
		t.Fatal("expected STALE_TIMESTAMP for drift beyond MaxDrift")
	}
	var de *types.DomainError
	if !errors.As(err, &de) || de.Kind != types.ErrStaleTimestamp {
		t.Errorf("expected STALE_TIMESTAMP, got %v", err)
	}
}

func TestSeenBeforeIsAtMostOnce(t *testing.T) {
	g := New(time.Minute, nil)
	ctx := context.Background()

	if g.SeenBefore(ctx, "sig-1") {
		t.Fatal("first admission of sig-1 must not be reported as a replay")
	}
	if !g.SeenBefore(ctx, "sig-1") {
		t.Fatal("second admission of the same signal_id must be reported as a replay")
	}
	if g.SeenBefore(ctx, "sig-2") {
		t.Fatal("a distinct signal_id must not be reported as a replay")
	}
}

func TestSeenBeforeEvictsExpiredEntries(t *testing.T) {
	g := New(10*time.Millisecond, nil)
	ctx := context.Background()

	g.SeenBefore(ctx, "sig-1")
	time.Sleep(30 * time.Millisecond)

	if g.SeenBefore(ctx, "sig-1") {
		t.Fatal("an entry older than the TTL should have been evicted, not reported as a replay")
	}
}

func TestGuardRunsInMemoryOnlyWithNilRedisClient(t *testing.T) {
	g := New(time.Minute, nil)
	if g.redisOK {
		t.Fatal("redisOK must be false when no redis client is supplied")
	}
	// SeenBefore must still function correctly with no backing redis client.
	if g.SeenBefore(context.Background(), "sig-1") {
		t.Fatal("first admission with a nil redis client must not be a replay")
	}
}
