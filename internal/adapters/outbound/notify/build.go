package notify

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/tollgate/tollgate/internal/domain"
)

// Deps are the shared clients sinks are built from.
type Deps struct {
	HTTPClient *http.Client
	Issues     IssueCreator
	Logger     *slog.Logger
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Build validates a sink definition and constructs the sink.
func Build(cfg domain.SinkConfig, deps Deps) (domain.Sink, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("sink %q: %w", cfg.Name, err)
	}
	switch cfg.Type {
	case domain.SinkWebhook:
		return NewWebhookSink(cfg.Name, cfg.URL, deps.HTTPClient), nil
	case domain.SinkGitHubIssue:
		if deps.Issues == nil {
			return nil, fmt.Errorf("sink %q: no GitHub client configured", cfg.Name)
		}
		return NewIssueSink(cfg.Name, cfg.Repo, cfg.Labels, deps.Issues), nil
	case domain.SinkLog:
		logger := deps.Logger
		if logger == nil {
			logger = slog.Default()
		}
		return NewLogSink(cfg.Name, logger.With(slog.String("sink", cfg.Name))), nil
	case domain.SinkJournal:
		return NewJournalSink(cfg.Name, cfg.Path), nil
	}
	return nil, fmt.Errorf("sink %q: unknown type %q", cfg.Name, cfg.Type)
}
