package notify

import (
	"context"
	"fmt"

	"github.com/tollgate/tollgate/internal/domain"
)

// IssueCreator opens an issue in a repository given as owner/name.
type IssueCreator interface {
	CreateIssue(ctx context.Context, repo, title, body string, labels []string) (int, error)
}

// IssueSink files a GitHub issue per event.
type IssueSink struct {
	name   string
	repo   string
	labels []string
	issues IssueCreator
}

func NewIssueSink(name, repo string, labels []string, issues IssueCreator) *IssueSink {
	return &IssueSink{name: name, repo: repo, labels: labels, issues: issues}
}

func (s *IssueSink) Name() string { return s.name }

func (s *IssueSink) Deliver(ctx context.Context, e domain.Event) error {
	if _, err := s.issues.CreateIssue(ctx, s.repo, Title(e), Markdown(e), s.labels); err != nil {
		return fmt.Errorf("creating issue in %s: %w", s.repo, err)
	}
	return nil
}
