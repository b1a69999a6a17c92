package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/tollgate/tollgate/internal/domain"
)

const defaultSinkTimeout = 10 * time.Second

type route struct {
	cfg  domain.SinkConfig
	sink domain.Sink
}

// Dispatcher fans events out to the sinks subscribed to them. Each delivery
// runs on its own goroutine; failures are logged and never reach the caller.
type Dispatcher struct {
	routes   []route
	attempts int
	delay    time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	// abort cancels pending retries when Shutdown runs out of time.
	abort       context.Context
	cancelAbort context.CancelFunc
	options
}

// NewDispatcher tries each delivery up to attempts times, waiting
// delay × attempt between tries.
func NewDispatcher(attempts int, delay time.Duration, opts ...Option) *Dispatcher {
	if attempts < 1 {
		attempts = 1
	}
	abort, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		attempts:    attempts,
		delay:       delay,
		abort:       abort,
		cancelAbort: cancel,
		options:     buildOptions("dispatcher", opts),
	}
}

// Register subscribes sink with the filter and timeout of cfg.
func (d *Dispatcher) Register(cfg domain.SinkConfig, sink domain.Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.routes = append(d.routes, route{cfg: cfg, sink: sink})
}

func (d *Dispatcher) Notify(ctx context.Context, e domain.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("dispatcher closed, dropping event", slog.String("type", string(e.Type)))
		return
	}
	detached := context.WithoutCancel(ctx)
	for _, r := range d.routes {
		if !r.cfg.Accepts(e.Type) {
			continue
		}
		d.wg.Add(1)
		go d.deliver(detached, r, e)
	}
}

// Close stops accepting events and waits for in-flight deliveries,
// retries included.
func (d *Dispatcher) Close() {
	_ = d.Shutdown(context.Background())
}

// Shutdown is Close bounded by ctx. When ctx ends first, pending retries
// are abandoned and running deliveries are cancelled.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.cancelAbort()
		<-done
		return ctx.Err()
	}
}

// linearBackOff waits step, 2×step, 3×step and so on.
type linearBackOff struct {
	step time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return b.step * time.Duration(b.n)
}

func (b *linearBackOff) Reset() { b.n = 0 }

func (d *Dispatcher) deliver(ctx context.Context, r route, e domain.Event) {
	defer d.wg.Done()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(d.abort, cancel)
	defer stop()

	timeout := r.cfg.Timeout
	if timeout <= 0 {
		timeout = defaultSinkTimeout
	}
	name := r.sink.Name()

	attempt := 0
	op := func() (struct{}, error) {
		attempt++
		dctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return struct{}{}, r.sink.Deliver(dctx, e)
	}
	notify := func(err error, next time.Duration) {
		d.logger.Debug("delivery attempt failed", slog.String("sink", name), slog.Int("attempt", attempt),
			slog.Duration("next", next), slog.Any("error", err))
	}
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(&linearBackOff{step: d.delay}),
		backoff.WithMaxTries(uint(d.attempts)),
		backoff.WithNotify(notify),
	)
	if err == nil {
		d.metrics.NotificationDelivered(name, true)
		return
	}
	d.metrics.NotificationDelivered(name, false)
	d.logger.Error("notification not delivered", slog.String("sink", name), slog.Int("attempts", attempt),
		slog.String("type", string(e.Type)), slog.String("component", e.Component), slog.Any("error", err))
}
