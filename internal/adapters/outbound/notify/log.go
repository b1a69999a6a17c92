package notify

import (
	"context"
	"log/slog"

	"github.com/tollgate/tollgate/internal/domain"
)

// LogSink writes events to a structured logger.
type LogSink struct {
	name   string
	logger *slog.Logger
}

func NewLogSink(name string, logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{name: name, logger: logger}
}

func (s *LogSink) Name() string { return s.name }

func (s *LogSink) Deliver(ctx context.Context, e domain.Event) error {
	attrs := []slog.Attr{
		slog.String("event", string(e.Type)),
		slog.String("component", e.Component),
	}
	if e.ToVersion != "" {
		attrs = append(attrs, slog.String("from", e.FromVersion), slog.String("to", e.ToVersion))
	}
	if e.RiskLevel != "" {
		attrs = append(attrs, slog.Float64("risk_score", e.RiskScore), slog.String("risk_level", e.RiskLevel))
	}
	if e.Recommendation != "" {
		attrs = append(attrs, slog.String("recommendation", e.Recommendation))
	}
	if e.DecisionID != "" {
		attrs = append(attrs, slog.String("decision", e.DecisionID))
	}
	if e.ExecutionID != "" {
		attrs = append(attrs, slog.String("execution", e.ExecutionID))
	}
	if e.Status != "" {
		attrs = append(attrs, slog.String("status", e.Status))
	}
	level := slog.LevelInfo
	switch e.Type {
	case domain.EventEvaluationFailed, domain.EventPipelineFailed, domain.EventComponentCheckFailed:
		level = slog.LevelError
	case domain.EventDecisionOverdue:
		level = slog.LevelWarn
	}
	s.logger.LogAttrs(ctx, level, e.Message, attrs...)
	return nil
}
