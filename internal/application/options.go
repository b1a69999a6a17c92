package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tollgate/tollgate/internal/domain"
)

// Option customizes a service.
type Option func(*options)

type options struct {
	now     domain.Clock
	newID   func() string
	logger  *slog.Logger
	metrics domain.Metrics
}

func buildOptions(component string, opts []Option) options {
	o := options{
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
		logger:  slog.Default().With(slog.String("component", component)),
		metrics: domain.NopMetrics{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock overrides the time source.
func WithClock(c domain.Clock) Option {
	return func(o *options) { o.now = c }
}

// WithIDs overrides record ID generation.
func WithIDs(fn func() string) Option {
	return func(o *options) { o.newID = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithMetrics(m domain.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, domain.Event) {}
