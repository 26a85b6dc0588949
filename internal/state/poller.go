package state

import (
	"context"
	"sync"
	"time"

	"whsync/internal/clock"

	"go.uber.org/zap"
)

// poller issues periodic reconciliation ticks while running
type poller struct {
	interval time.Duration
	clock    clock.Clock
	tick     func(ctx context.Context)
	logger   *zap.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	disposed bool
}

func newPoller(interval time.Duration, c clock.Clock, tick func(ctx context.Context), logger *zap.Logger) *poller {
	return &poller{
		interval: interval,
		clock:    c,
		tick:     tick,
		logger:   logger,
	}
}

// Start launches the loop; it is a no-op when already running or disposed
func (p *poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil || p.disposed {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	p.logger.Debug("Periodic updates started", zap.Duration("interval", p.interval))
	go p.run(ctx, p.done)
}

// Stop cancels the loop and waits for an in-flight tick to return
func (p *poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
	p.logger.Debug("Periodic updates stopped")
}

// Dispose stops the loop for good. Later Start calls do nothing.
func (p *poller) Dispose() {
	p.mu.Lock()
	p.disposed = true
	p.mu.Unlock()

	p.Stop()
}

// Running reports whether the loop is active
func (p *poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		timer := p.clock.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C():
		}

		p.tick(ctx)
	}
}
