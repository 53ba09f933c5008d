package feed

import (
	"testing"
	"time"

	"github.com/nepselabs/feed-service/internal/entity"
	"github.com/shopspring/decimal"
)

func throttleWithClock(maxUPS int, start time.Time) (*updateThrottle, *time.Time) {
	clock := start
	throttle := newUpdateThrottle(maxUPS)
	throttle.now = func() time.Time { return clock }
	return throttle, &clock
}

func TestThrottleEnforcesMinimumInterval(t *testing.T) {
	start := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	throttle, clock := throttleWithClock(10, start)

	if !throttle.Admit(entity.Quote{Symbol: "NABIL"}) {
		t.Fatal("first update must be admitted")
	}

	*clock = start.Add(50 * time.Millisecond)
	if throttle.Admit(entity.Quote{Symbol: "NABIL"}) {
		t.Fatal("update inside the 100ms window must be deferred")
	}

	*clock = start.Add(100 * time.Millisecond)
	if !throttle.Admit(entity.Quote{Symbol: "NABIL"}) {
		t.Fatal("update at the interval boundary must be admitted")
	}
}

func TestThrottleIsPerSymbol(t *testing.T) {
	start := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	throttle, clock := throttleWithClock(10, start)

	throttle.Admit(entity.Quote{Symbol: "NABIL"})

	*clock = start.Add(10 * time.Millisecond)
	if !throttle.Admit(entity.Quote{Symbol: "NHPC"}) {
		t.Fatal("a different symbol must not share the NABIL window")
	}
}

func TestThrottleBuffersInArrivalOrder(t *testing.T) {
	start := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	throttle, clock := throttleWithClock(10, start)

	throttle.Admit(entity.Quote{Symbol: "NABIL", Price: decimal.NewFromInt(1)})

	for i := 2; i <= 4; i++ {
		*clock = start.Add(time.Duration(i) * time.Millisecond)
		throttle.Admit(entity.Quote{Symbol: "NABIL", Price: decimal.NewFromInt(int64(i))})
	}

	buffered := throttle.Buffered("NABIL")
	if len(buffered) != 3 {
		t.Fatalf("expected 3 buffered updates, got %d", len(buffered))
	}
	for i, q := range buffered {
		want := int64(i + 2)
		if !q.Price.Equal(decimal.NewFromInt(want)) {
			t.Fatalf("buffered[%d] price = %s, want %d", i, q.Price, want)
		}
	}
}

func TestThrottleEvictsOldestWhenFull(t *testing.T) {
	start := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	throttle, clock := throttleWithClock(10, start)

	throttle.Admit(entity.Quote{Symbol: "NABIL", Price: decimal.NewFromInt(0)})

	extra := 7
	for i := 1; i <= overflowBufferCap+extra; i++ {
		*clock = start.Add(time.Duration(i) * time.Microsecond)
		throttle.Admit(entity.Quote{Symbol: "NABIL", Price: decimal.NewFromInt(int64(i))})
	}

	buffered := throttle.Buffered("NABIL")
	if len(buffered) != overflowBufferCap {
		t.Fatalf("expected buffer capped at %d, got %d", overflowBufferCap, len(buffered))
	}
	if !buffered[0].Price.Equal(decimal.NewFromInt(int64(extra + 1))) {
		t.Fatalf("oldest surviving entry should be %d, got %s", extra+1, buffered[0].Price)
	}
	if got := throttle.EvictedCount("NABIL"); got != int64(extra) {
		t.Fatalf("expected %d evictions counted, got %d", extra, got)
	}
}

func TestThrottleReset(t *testing.T) {
	start := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	throttle, clock := throttleWithClock(10, start)

	throttle.Admit(entity.Quote{Symbol: "NABIL"})
	*clock = start.Add(time.Millisecond)
	throttle.Admit(entity.Quote{Symbol: "NABIL"})

	throttle.Reset()

	if got := throttle.Buffered("NABIL"); len(got) != 0 {
		t.Fatal("overflow buffer survived Reset")
	}
	if !throttle.Admit(entity.Quote{Symbol: "NABIL"}) {
		t.Fatal("symbol window survived Reset")
	}
}
