package github_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tollgate/tollgate/internal/adapters/outbound/github"
	"github.com/tollgate/tollgate/internal/domain"
)

const upstream = "https://github.com/acme/libfoo"

func newClient(t *testing.T, mux *http.ServeMux) *github.Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c, err := github.New(github.Config{BaseURL: srv.URL, Token: "test-token"})
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestParseRepo(t *testing.T) {
	tests := []struct {
		in, owner, repo string
		wantErr         bool
	}{
		{in: "https://github.com/acme/libfoo", owner: "acme", repo: "libfoo"},
		{in: "https://github.com/acme/libfoo.git", owner: "acme", repo: "libfoo"},
		{in: "github.com/acme/libfoo/", owner: "acme", repo: "libfoo"},
		{in: "acme/libfoo", owner: "acme", repo: "libfoo"},
		{in: "libfoo", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			owner, repo, err := github.ParseRepo(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.owner, owner)
			assert.Equal(t, tt.repo, repo)
		})
	}
}

func TestLatestRelease(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/libfoo/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		writeJSON(w, map[string]any{
			"tag_name":     "v1.4.0",
			"body":         "Adds streaming support",
			"published_at": "2026-10-01T12:00:00Z",
		})
	})
	rel, err := newClient(t, mux).LatestRelease(context.Background(), upstream)
	require.NoError(t, err)
	require.NotNil(t, rel)
	assert.Equal(t, "v1.4.0", rel.Version)
	assert.Equal(t, "Adds streaming support", rel.Notes)
	assert.Equal(t, time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC), rel.PublishedAt.UTC())
}

func TestLatestRelease_NotFoundIsNoRelease(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/libfoo/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]string{"message": "Not Found"})
	})
	rel, err := newClient(t, mux).LatestRelease(context.Background(), upstream)
	require.NoError(t, err)
	assert.Nil(t, rel)
}

func TestLatestRelease_RateLimited(t *testing.T) {
	reset := time.Now().Add(30 * time.Second).Unix()
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/libfoo/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Limit", "60")
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
		w.WriteHeader(http.StatusForbidden)
		writeJSON(w, map[string]string{"message": "API rate limit exceeded"})
	})
	_, err := newClient(t, mux).LatestRelease(context.Background(), upstream)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.True(t, domain.IsTransient(err))

	var rle *domain.RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Greater(t, rle.RetryAfter, time.Duration(0))
}

func TestLatestRelease_TooManyRequests(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/libfoo/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusTooManyRequests)
		writeJSON(w, map[string]string{"message": "slow down"})
	})
	_, err := newClient(t, mux).LatestRelease(context.Background(), upstream)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestLatestRelease_ServerErrorIsUnavailable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/libfoo/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		writeJSON(w, map[string]string{"message": "bad gateway"})
	})
	_, err := newClient(t, mux).LatestRelease(context.Background(), upstream)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	assert.True(t, domain.IsTransient(err))
}

func TestAdvisories_Paginates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/libfoo/security-advisories", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "published", r.URL.Query().Get("state"))
		if r.URL.Query().Get("after") == "" {
			w.Header().Set("Link", fmt.Sprintf(`<http://%s%s?after=page2&state=published>; rel="next"`, r.Host, r.URL.Path))
			writeJSON(w, []map[string]any{
				{"ghsa_id": "GHSA-aaaa-bbbb-cccc", "cve_id": "CVE-2026-0001", "severity": "high", "summary": "token leak"},
			})
			return
		}
		assert.Equal(t, "page2", r.URL.Query().Get("after"))
		writeJSON(w, []map[string]any{
			{"ghsa_id": "GHSA-dddd-eeee-ffff", "severity": "low", "summary": "verbose errors"},
		})
	})
	advs, err := newClient(t, mux).Advisories(context.Background(), upstream)
	require.NoError(t, err)
	require.Len(t, advs, 2)
	assert.Equal(t, domain.Advisory{ID: "GHSA-aaaa-bbbb-cccc", CVE: "CVE-2026-0001", Severity: "high", Summary: "token leak"}, advs[0])
	assert.Equal(t, "GHSA-dddd-eeee-ffff", advs[1].ID)
}

func TestDiff(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/libfoo/compare/v1.0.0...v1.1.0", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"commits": []map[string]any{
				{"sha": "abc123", "commit": map[string]any{"message": "feat: add streaming"}},
				{"sha": "def456", "commit": map[string]any{"message": "fix: close body"}},
			},
			"files": []map[string]any{
				{"filename": "stream.go", "status": "added", "additions": 120, "deletions": 0},
				{"filename": "client.go", "status": "modified", "additions": 10, "deletions": 4},
				{"filename": "legacy.go", "status": "removed", "additions": 0, "deletions": 80},
				{"filename": "docs/usage.md", "status": "renamed", "additions": 1, "deletions": 1},
			},
		})
	})
	mux.HandleFunc("/repos/acme/libfoo/releases/tags/v1.1.0", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"tag_name": "v1.1.0", "body": "Streaming release"})
	})

	diff, err := newClient(t, mux).Diff(context.Background(), upstream, "v1.0.0", "v1.1.0")
	require.NoError(t, err)
	assert.Equal(t, []domain.Commit{
		{SHA: "abc123", Message: "feat: add streaming"},
		{SHA: "def456", Message: "fix: close body"},
	}, diff.Commits)
	require.Len(t, diff.Files, 4)
	assert.Equal(t, domain.FileChange{Path: "stream.go", Status: domain.FileAdded, Additions: 120}, diff.Files[0])
	assert.Equal(t, domain.FileModified, diff.Files[1].Status)
	assert.Equal(t, domain.FileRemoved, diff.Files[2].Status)
	assert.Equal(t, domain.FileRenamed, diff.Files[3].Status)
	assert.Equal(t, "Streaming release", diff.Notes)
}

func TestDiff_PaginatesLargeCompares(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/libfoo/compare/v1.0.0...v2.0.0", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))
		switch r.URL.Query().Get("page") {
		case "", "1":
			w.Header().Set("Link", fmt.Sprintf(`<http://%s%s?page=2&per_page=100>; rel="next"`, r.Host, r.URL.Path))
			writeJSON(w, map[string]any{
				"commits": []map[string]any{{"sha": "aaa111", "commit": map[string]any{"message": "feat: new api"}}},
				"files": []map[string]any{
					{"filename": "client.go", "status": "modified", "additions": 3, "deletions": 1},
				},
			})
		case "2":
			writeJSON(w, map[string]any{
				"commits": []map[string]any{{"sha": "bbb222", "commit": map[string]any{"message": "feat!: drop v1 api"}}},
				"files": []map[string]any{
					{"filename": "client.go", "status": "modified", "additions": 3, "deletions": 1},
					{"filename": "v1.go", "status": "removed", "deletions": 40},
				},
			})
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
	})
	mux.HandleFunc("/repos/acme/libfoo/releases/tags/v2.0.0", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"tag_name": "v2.0.0", "body": "Major release"})
	})

	diff, err := newClient(t, mux).Diff(context.Background(), upstream, "v1.0.0", "v2.0.0")
	require.NoError(t, err)
	assert.Equal(t, []domain.Commit{
		{SHA: "aaa111", Message: "feat: new api"},
		{SHA: "bbb222", Message: "feat!: drop v1 api"},
	}, diff.Commits, "commits from later pages are kept")
	require.Len(t, diff.Files, 2)
	assert.Equal(t, "client.go", diff.Files[0].Path)
	assert.Equal(t, domain.FileChange{Path: "v1.go", Status: domain.FileRemoved, Deletions: 40}, diff.Files[1])
}

func TestDiff_MissingReleaseNotes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/libfoo/compare/v1.0.0...v1.0.1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"commits": []any{}, "files": []any{}})
	})
	mux.HandleFunc("/repos/acme/libfoo/releases/tags/v1.0.1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]string{"message": "Not Found"})
	})
	diff, err := newClient(t, mux).Diff(context.Background(), upstream, "v1.0.0", "v1.0.1")
	require.NoError(t, err)
	assert.Empty(t, diff.Notes)
	assert.Empty(t, diff.Files)
}

func TestDiff_UnknownTag(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/libfoo/compare/v1.0.0...v9.9.9", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]string{"message": "Not Found"})
	})
	_, err := newClient(t, mux).Diff(context.Background(), upstream, "v1.0.0", "v9.9.9")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateIssue(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/ops/issues", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body struct {
			Title  string   `json:"title"`
			Body   string   `json:"body"`
			Labels []string `json:"labels"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "libfoo v1.1.0 needs review", body.Title)
		assert.Equal(t, "details", body.Body)
		assert.Equal(t, []string{"dependencies"}, body.Labels)
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, map[string]any{"number": 42})
	})
	n, err := newClient(t, mux).CreateIssue(context.Background(), "acme/ops", "libfoo v1.1.0 needs review", "details", []string{"dependencies"})
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}
