package feed

import (
	"sync"
	"time"

	"github.com/nepselabs/feed-service/internal/entity"
	"github.com/sirupsen/logrus"
)

const overflowBufferCap = 100

// updateThrottle enforces a per-symbol minimum interval between accepted
// quote updates. Rejected updates land in a bounded per-symbol overflow
// buffer in arrival order; the oldest entries are evicted when it fills, and
// evictions are counted rather than silently lost.
type updateThrottle struct {
	mu           sync.Mutex
	minInterval  time.Duration
	lastAccepted map[string]time.Time
	overflow     map[string][]entity.Quote
	evicted      map[string]int64
	now          func() time.Time
}

func newUpdateThrottle(maxUpdatesPerSecond int) *updateThrottle {
	if maxUpdatesPerSecond <= 0 {
		maxUpdatesPerSecond = 10
	}

	return &updateThrottle{
		minInterval:  time.Second / time.Duration(maxUpdatesPerSecond),
		lastAccepted: make(map[string]time.Time),
		overflow:     make(map[string][]entity.Quote),
		evicted:      make(map[string]int64),
		now:          time.Now,
	}
}

// Admit reports whether the update may be processed now. A false return
// means the update was buffered, not dropped.
func (t *updateThrottle) Admit(q entity.Quote) bool {
	symbol := entity.NormalizeSymbol(q.Symbol)

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if last, ok := t.lastAccepted[symbol]; ok && now.Sub(last) < t.minInterval {
		buffered := append(t.overflow[symbol], q)
		if len(buffered) > overflowBufferCap {
			drop := len(buffered) - overflowBufferCap
			buffered = buffered[drop:]
			t.evicted[symbol] += int64(drop)
			logrus.WithFields(logrus.Fields{
				"symbol":  symbol,
				"evicted": t.evicted[symbol],
			}).Debug("quote overflow buffer full, evicting oldest")
		}
		t.overflow[symbol] = buffered
		return false
	}

	t.lastAccepted[symbol] = now
	return true
}

// Buffered returns a copy of the deferred updates for a symbol in arrival
// order.
func (t *updateThrottle) Buffered(symbol string) []entity.Quote {
	t.mu.Lock()
	defer t.mu.Unlock()

	stored := t.overflow[entity.NormalizeSymbol(symbol)]
	out := make([]entity.Quote, len(stored))
	copy(out, stored)
	return out
}

func (t *updateThrottle) EvictedCount(symbol string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.evicted[entity.NormalizeSymbol(symbol)]
}

func (t *updateThrottle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastAccepted = make(map[string]time.Time)
	t.overflow = make(map[string][]entity.Quote)
	t.evicted = make(map[string]int64)
}
