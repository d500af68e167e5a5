package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/cardtable/blackjack-server/internal/round"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// Async hands each event to a bounded goroutine pool so slow delivery never holds a
// round lock. When the pool is saturated the event is delivered inline.
type Async struct {
	next   round.Broadcaster
	pool   *ants.Pool
	logger *zap.Logger
}

// NewAsync wraps next with a pool of size workers.
func NewAsync(next round.Broadcaster, size int, logger *zap.Logger) (*Async, error) {
	pool, err := ants.NewPool(size,
		ants.WithExpiryDuration(60*time.Second),
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p any) {
			logger.Error("event delivery panicked", zap.Any("panic", p))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fan-out pool: %w", err)
	}
	logger.Info("fan-out pool started", zap.Int("size", size))
	return &Async{next: next, pool: pool, logger: logger}, nil
}

// Publish implements round.Broadcaster. The caller's context is detached so delivery
// outlives the request.
func (a *Async) Publish(ctx context.Context, room string, ev round.Event) {
	detached := context.WithoutCancel(ctx)
	err := a.pool.Submit(func() {
		a.next.Publish(detached, room, ev)
	})
	if err != nil {
		a.logger.Debug("fan-out pool busy, delivering inline",
			zap.String("room", room),
			zap.Error(err))
		a.next.Publish(detached, room, ev)
	}
}

// Running returns the number of busy workers.
func (a *Async) Running() int {
	return a.pool.Running()
}

// Close waits up to timeout for queued deliveries and releases the pool.
func (a *Async) Close(timeout time.Duration) error {
	return a.pool.ReleaseTimeout(timeout)
}

// Multi publishes every event to each broadcaster in order.
type Multi []round.Broadcaster

// Publish implements round.Broadcaster.
func (m Multi) Publish(ctx context.Context, room string, ev round.Event) {
	for _, b := range m {
		b.Publish(ctx, room, ev)
	}
}
