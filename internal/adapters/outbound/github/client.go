// Package github reads releases, advisories and diffs from the GitHub API
// and files issues for the notification sink.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v70/github"

	"github.com/tollgate/tollgate/internal/domain"
)

// compareFileLimit is the most files the compare endpoint reports,
// however many pages are requested.
const compareFileLimit = 300

// Config selects the API endpoint and credentials.
type Config struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client implements domain.UpstreamClient and domain.DiffSource.
type Client struct {
	gh     *github.Client
	logger *slog.Logger
}

func New(cfg Config) (*Client, error) {
	gh := github.NewClient(cfg.HTTPClient)
	if cfg.Token != "" {
		gh = gh.WithAuthToken(cfg.Token)
	}
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parsing github base url: %w", err)
		}
		gh.BaseURL = u
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{gh: gh, logger: logger}, nil
}

// LatestRelease returns nil when the repository has no published release.
func (c *Client) LatestRelease(ctx context.Context, upstream string) (*domain.Release, error) {
	owner, repo, err := ParseRepo(upstream)
	if err != nil {
		return nil, err
	}
	rel, _, err := c.gh.Repositories.GetLatestRelease(ctx, owner, repo)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err)
	}
	return &domain.Release{
		Version:     rel.GetTagName(),
		Notes:       rel.GetBody(),
		PublishedAt: rel.GetPublishedAt().Time,
	}, nil
}

// Advisories lists the published repository security advisories.
func (c *Client) Advisories(ctx context.Context, upstream string) ([]domain.Advisory, error) {
	owner, repo, err := ParseRepo(upstream)
	if err != nil {
		return nil, err
	}
	opts := &github.ListRepositorySecurityAdvisoriesOptions{
		State:             "published",
		ListCursorOptions: github.ListCursorOptions{PerPage: 100},
	}
	var out []domain.Advisory
	for {
		page, resp, err := c.gh.SecurityAdvisories.ListRepositorySecurityAdvisories(ctx, owner, repo, opts)
		if isNotFound(err) {
			return out, nil
		}
		if err != nil {
			return nil, mapError(err)
		}
		for _, a := range page {
			out = append(out, domain.Advisory{
				ID:       a.GetGHSAID(),
				CVE:      a.GetCVEID(),
				Severity: a.GetSeverity(),
				Summary:  a.GetSummary(),
			})
		}
		if resp == nil || resp.After == "" {
			return out, nil
		}
		opts.ListCursorOptions.After = resp.After
	}
}

// Diff compares two tags and attaches the release notes of the newer one.
func (c *Client) Diff(ctx context.Context, upstream, from, to string) (domain.UpstreamDiff, error) {
	owner, repo, err := ParseRepo(upstream)
	if err != nil {
		return domain.UpstreamDiff{}, err
	}
	diff, err := c.compare(ctx, owner, repo, from, to)
	if err != nil {
		return domain.UpstreamDiff{}, err
	}

	rel, _, err := c.gh.Repositories.GetReleaseByTag(ctx, owner, repo, to)
	switch {
	case err == nil:
		diff.Notes = rel.GetBody()
	case !isNotFound(err):
		return domain.UpstreamDiff{}, fmt.Errorf("fetching release %s: %w", to, mapError(err))
	}
	return diff, nil
}

// compare walks every page of the compare endpoint. Commits are paginated;
// files repeat or extend across pages, so they are merged by path.
func (c *Client) compare(ctx context.Context, owner, repo, from, to string) (domain.UpstreamDiff, error) {
	var diff domain.UpstreamDiff
	seen := make(map[string]bool)
	opts := &github.ListOptions{PerPage: 100}
	for {
		cmp, resp, err := c.gh.Repositories.CompareCommits(ctx, owner, repo, from, to, opts)
		if err != nil {
			return domain.UpstreamDiff{}, fmt.Errorf("comparing %s...%s: %w", from, to, mapError(err))
		}
		for _, rc := range cmp.Commits {
			diff.Commits = append(diff.Commits, domain.Commit{SHA: rc.GetSHA(), Message: rc.GetCommit().GetMessage()})
		}
		for _, f := range cmp.Files {
			if seen[f.GetFilename()] {
				continue
			}
			seen[f.GetFilename()] = true
			diff.Files = append(diff.Files, domain.FileChange{
				Path:      f.GetFilename(),
				Status:    fileStatus(f.GetStatus()),
				Additions: f.GetAdditions(),
				Deletions: f.GetDeletions(),
			})
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	if len(diff.Files) >= compareFileLimit {
		c.logger.Warn("compare file list truncated by upstream",
			slog.String("repo", owner+"/"+repo), slog.String("range", from+"..."+to), slog.Int("files", len(diff.Files)))
	}
	return diff, nil
}

// CreateIssue opens an issue in repo ("owner/name") and returns its number.
func (c *Client) CreateIssue(ctx context.Context, repo, title, body string, labels []string) (int, error) {
	owner, name, err := ParseRepo(repo)
	if err != nil {
		return 0, err
	}
	req := &github.IssueRequest{Title: github.Ptr(title), Body: github.Ptr(body)}
	if len(labels) > 0 {
		req.Labels = &labels
	}
	issue, _, err := c.gh.Issues.Create(ctx, owner, name, req)
	if err != nil {
		return 0, mapError(err)
	}
	return issue.GetNumber(), nil
}

// ParseRepo extracts owner and name from a GitHub URL, a host/owner/name
// path or a bare owner/name.
func ParseRepo(upstream string) (owner, repo string, err error) {
	s := strings.TrimSpace(upstream)
	if u, perr := url.Parse(s); perr == nil && u.Host != "" {
		s = u.Path
	}
	s = strings.TrimSuffix(strings.Trim(s, "/"), ".git")
	parts := strings.Split(s, "/")
	if len(parts) < 2 || parts[len(parts)-2] == "" || parts[len(parts)-1] == "" {
		return "", "", fmt.Errorf("cannot parse GitHub repository from %q", upstream)
	}
	return parts[len(parts)-2], parts[len(parts)-1], nil
}

func fileStatus(s string) domain.FileStatus {
	switch s {
	case "added":
		return domain.FileAdded
	case "removed":
		return domain.FileRemoved
	case "renamed":
		return domain.FileRenamed
	default:
		return domain.FileModified
	}
}

func isNotFound(err error) bool {
	var resp *github.ErrorResponse
	return errors.As(err, &resp) && resp.Response != nil && resp.Response.StatusCode == http.StatusNotFound
}

// mapError translates go-github failures into the domain taxonomy.
func mapError(err error) error {
	var rle *github.RateLimitError
	if errors.As(err, &rle) {
		return &domain.RateLimitError{RetryAfter: time.Until(rle.Rate.Reset.Time), Err: err}
	}
	var abuse *github.AbuseRateLimitError
	if errors.As(err, &abuse) {
		return &domain.RateLimitError{RetryAfter: abuse.GetRetryAfter(), Err: err}
	}
	var resp *github.ErrorResponse
	if errors.As(err, &resp) && resp.Response != nil {
		switch code := resp.Response.StatusCode; {
		case code == http.StatusForbidden || code == http.StatusTooManyRequests:
			return &domain.RateLimitError{RetryAfter: retryAfter(resp.Response), Err: err}
		case code >= 500:
			return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
		case code == http.StatusNotFound:
			return fmt.Errorf("%v: %w", err, domain.ErrNotFound)
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	return err
}

func retryAfter(r *http.Response) time.Duration {
	if secs, err := time.ParseDuration(r.Header.Get("Retry-After") + "s"); err == nil {
		return secs
	}
	return 0
}
