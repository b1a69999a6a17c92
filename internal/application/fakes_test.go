package application_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tollgate/tollgate/internal/adapters/outbound/store/memory"
	"github.com/tollgate/tollgate/internal/domain"
)

// 2026-10-12 is a Monday.
var monday = time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: monday} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

type fakeUpstream struct {
	mu         sync.Mutex
	releases   map[string]*domain.Release
	advisories map[string][]domain.Advisory
	errs       map[string][]error
	calls      map[string]int
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		releases:   map[string]*domain.Release{},
		advisories: map[string][]domain.Advisory{},
		errs:       map[string][]error{},
		calls:      map[string]int{},
	}
}

func (f *fakeUpstream) setRelease(upstream, version string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases[upstream] = &domain.Release{Version: version, Notes: "release " + version}
}

// failNext queues errors returned before the next successful call.
func (f *fakeUpstream) failNext(upstream string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[upstream] = append(f.errs[upstream], errs...)
}

func (f *fakeUpstream) callCount(upstream string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[upstream]
}

func (f *fakeUpstream) popErr(upstream string) error {
	f.calls[upstream]++
	if q := f.errs[upstream]; len(q) > 0 {
		f.errs[upstream] = q[1:]
		return q[0]
	}
	return nil
}

func (f *fakeUpstream) LatestRelease(_ context.Context, upstream string) (*domain.Release, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.popErr(upstream); err != nil {
		return nil, err
	}
	r := f.releases[upstream]
	if r == nil {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (f *fakeUpstream) Advisories(_ context.Context, upstream string) ([]domain.Advisory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Advisory(nil), f.advisories[upstream]...), nil
}

type fakeDiffs struct {
	diff domain.UpstreamDiff
	err  error
}

func (f *fakeDiffs) Diff(context.Context, string, string, string) (domain.UpstreamDiff, error) {
	return f.diff, f.err
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recordingNotifier) Notify(_ context.Context, e domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingNotifier) types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *recordingNotifier) ofType(t domain.EventType) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fakeRunner struct {
	mu     sync.Mutex
	fail   map[string]error
	stages []string
}

func (f *fakeRunner) RunStage(_ context.Context, req domain.StageRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stages = append(f.stages, req.Stage)
	if err := f.fail[req.Stage]; err != nil {
		return "", err
	}
	return req.Stage + " ok", nil
}

func (f *fakeRunner) ran() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.stages...)
}

// smallDiff is a clean minor release touching one source file and its test.
func smallDiff() domain.UpstreamDiff {
	return domain.UpstreamDiff{
		Commits: []domain.Commit{{SHA: "abc123", Message: "feat: add option"}},
		Files: []domain.FileChange{
			{Path: "lib/option.go", Status: domain.FileModified, Additions: 30, Deletions: 5},
			{Path: "lib/option_test.go", Status: domain.FileModified, Additions: 20},
		},
	}
}

var errDiskFull = errors.New("disk full")

// faultyStore fails the next N writes of a record kind.
type faultyStore struct {
	*memory.Store
	mu               sync.Mutex
	decisionFaults   int
	evalUpdateFaults int
}

func (f *faultyStore) failDecisionCreates(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decisionFaults = n
}

func (f *faultyStore) failEvaluationUpdates(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evalUpdateFaults = n
}

func (f *faultyStore) take(n *int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if *n == 0 {
		return false
	}
	*n--
	return true
}

func (f *faultyStore) CreateDecision(ctx context.Context, d domain.Decision) error {
	if f.take(&f.decisionFaults) {
		return errDiskFull
	}
	return f.Store.CreateDecision(ctx, d)
}

func (f *faultyStore) UpdateEvaluation(ctx context.Context, e domain.Evaluation) error {
	if f.take(&f.evalUpdateFaults) {
		return errDiskFull
	}
	return f.Store.UpdateEvaluation(ctx, e)
}
