// Package upstream routes upstream queries to the adapter that serves the
// upstream's host.
package upstream

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/tollgate/tollgate/internal/domain"
)

// Backend is one upstream adapter.
type Backend interface {
	domain.UpstreamClient
	domain.DiffSource
}

// Router sends GitHub-hosted upstreams to the GitHub backend and everything
// else to the plain git backend.
type Router struct {
	github Backend
	git    Backend
	hosts  map[string]bool
}

// NewRouter builds a router. githubHosts defaults to github.com.
func NewRouter(github, git Backend, githubHosts ...string) *Router {
	if len(githubHosts) == 0 {
		githubHosts = []string{"github.com"}
	}
	hosts := make(map[string]bool, len(githubHosts))
	for _, h := range githubHosts {
		hosts[strings.ToLower(h)] = true
	}
	return &Router{github: github, git: git, hosts: hosts}
}

func (r *Router) LatestRelease(ctx context.Context, upstream string) (*domain.Release, error) {
	return r.route(upstream).LatestRelease(ctx, upstream)
}

func (r *Router) Advisories(ctx context.Context, upstream string) ([]domain.Advisory, error) {
	return r.route(upstream).Advisories(ctx, upstream)
}

func (r *Router) Diff(ctx context.Context, upstream, from, to string) (domain.UpstreamDiff, error) {
	return r.route(upstream).Diff(ctx, upstream, from, to)
}

func (r *Router) route(upstream string) Backend {
	if r.IsGitHub(upstream) {
		return r.github
	}
	return r.git
}

// IsGitHub reports whether upstream is served by the GitHub backend. A bare
// owner/name pair counts as GitHub.
func (r *Router) IsGitHub(upstream string) bool {
	if filepath.IsAbs(upstream) || strings.HasPrefix(upstream, ".") {
		return false
	}
	if u, err := url.Parse(upstream); err == nil && u.Scheme != "" {
		return r.hosts[strings.ToLower(u.Hostname())]
	}
	if strings.HasPrefix(upstream, "git@") {
		host, _, _ := strings.Cut(strings.TrimPrefix(upstream, "git@"), ":")
		return r.hosts[strings.ToLower(host)]
	}
	first, _, _ := strings.Cut(upstream, "/")
	if strings.Contains(first, ".") {
		return r.hosts[strings.ToLower(first)]
	}
	return strings.Count(upstream, "/") == 1
}
