// Package gitremote reads tags and diffs from any git remote. It serves
// upstreams that are not hosted on GitHub.
package gitremote

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/diff"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/memory"
	"golang.org/x/mod/semver"

	"github.com/tollgate/tollgate/internal/domain"
)

const maxCommits = 500

// Client implements domain.UpstreamClient and domain.DiffSource over the
// git protocol. Nothing touches the local disk.
type Client struct{}

func New() *Client {
	return &Client{}
}

// LatestRelease returns the highest stable semver tag, or nil when the
// remote has none.
func (c *Client) LatestRelease(ctx context.Context, upstream string) (*domain.Release, error) {
	remote := git.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: git.DefaultRemoteName,
		URLs: []string{upstream},
	})
	refs, err := remote.ListContext(ctx, &git.ListOptions{})
	if errors.Is(err, transport.ErrEmptyRemoteRepository) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(upstream, err)
	}

	var best string
	for _, ref := range refs {
		if !ref.Name().IsTag() {
			continue
		}
		tag := ref.Name().Short()
		v := canonical(tag)
		if v == "" || semver.Prerelease(v) != "" {
			continue
		}
		if best == "" || semver.Compare(v, canonical(best)) > 0 {
			best = tag
		}
	}
	if best == "" {
		return nil, nil
	}
	return &domain.Release{Version: best}, nil
}

// Advisories is always empty; plain git remotes publish none.
func (c *Client) Advisories(context.Context, string) ([]domain.Advisory, error) {
	return nil, nil
}

// Diff clones the remote into memory and compares two tags.
func (c *Client) Diff(ctx context.Context, upstream, from, to string) (domain.UpstreamDiff, error) {
	repo, err := git.CloneContext(ctx, memory.NewStorage(), nil, &git.CloneOptions{
		URL:  upstream,
		Tags: git.AllTags,
	})
	if err != nil {
		return domain.UpstreamDiff{}, mapError(upstream, err)
	}

	fromCommit, _, err := resolveTag(repo, from)
	if err != nil {
		return domain.UpstreamDiff{}, err
	}
	toCommit, notes, err := resolveTag(repo, to)
	if err != nil {
		return domain.UpstreamDiff{}, err
	}

	commits, err := commitsBetween(repo, fromCommit.Hash, toCommit.Hash)
	if err != nil {
		return domain.UpstreamDiff{}, err
	}
	patch, err := fromCommit.PatchContext(ctx, toCommit)
	if err != nil {
		return domain.UpstreamDiff{}, fmt.Errorf("diffing %s..%s: %w", from, to, err)
	}

	return domain.UpstreamDiff{
		Commits: commits,
		Files:   fileChanges(patch),
		Notes:   notes,
	}, nil
}

// resolveTag peels a tag to its commit and returns the annotation message
// when the tag is annotated.
func resolveTag(repo *git.Repository, tag string) (*object.Commit, string, error) {
	ref, err := repo.Tag(tag)
	if errors.Is(err, git.ErrTagNotFound) {
		return nil, "", domain.NotFoundError("tag", tag)
	}
	if err != nil {
		return nil, "", fmt.Errorf("resolving tag %s: %w", tag, err)
	}

	var notes string
	hash := ref.Hash()
	if to, err := repo.TagObject(hash); err == nil {
		notes = strings.TrimSpace(to.Message)
		hash = to.Target
	}
	commit, err := repo.CommitObject(hash)
	if err != nil {
		return nil, "", fmt.Errorf("reading commit for %s: %w", tag, err)
	}
	return commit, notes, nil
}

// commitsBetween walks back from to until it reaches from, newest first.
func commitsBetween(repo *git.Repository, from, to plumbing.Hash) ([]domain.Commit, error) {
	iter, err := repo.Log(&git.LogOptions{From: to})
	if err != nil {
		return nil, fmt.Errorf("reading commit log: %w", err)
	}
	defer iter.Close()

	var out []domain.Commit
	err = iter.ForEach(func(c *object.Commit) error {
		if c.Hash == from || len(out) == maxCommits {
			return storer.ErrStop
		}
		out = append(out, domain.Commit{SHA: c.Hash.String(), Message: strings.TrimSpace(c.Message)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking commit log: %w", err)
	}
	return out, nil
}

func fileChanges(patch *object.Patch) []domain.FileChange {
	var out []domain.FileChange
	for _, fp := range patch.FilePatches() {
		src, dst := fp.Files()
		fc := domain.FileChange{Status: domain.FileModified}
		switch {
		case src == nil && dst == nil:
			continue
		case src == nil:
			fc.Path, fc.Status = dst.Path(), domain.FileAdded
		case dst == nil:
			fc.Path, fc.Status = src.Path(), domain.FileRemoved
		default:
			fc.Path = dst.Path()
			if src.Path() != dst.Path() {
				fc.Status = domain.FileRenamed
			}
		}
		for _, chunk := range fp.Chunks() {
			switch chunk.Type() {
			case diff.Add:
				fc.Additions += countLines(chunk.Content())
			case diff.Delete:
				fc.Deletions += countLines(chunk.Content())
			}
		}
		out = append(out, fc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

func canonical(tag string) string {
	if !strings.HasPrefix(tag, "v") {
		tag = "v" + tag
	}
	if !semver.IsValid(tag) {
		return ""
	}
	return tag
}

func mapError(upstream string, err error) error {
	switch {
	case errors.Is(err, transport.ErrRepositoryNotFound):
		return domain.NotFoundError("repository", upstream)
	case errors.Is(err, transport.ErrAuthenticationRequired), errors.Is(err, transport.ErrAuthorizationFailed):
		return fmt.Errorf("reading %s: %w", upstream, err)
	case errors.Is(err, context.Canceled):
		return err
	}
	return fmt.Errorf("reading %s: %w: %v", upstream, domain.ErrUpstreamUnavailable, err)
}
