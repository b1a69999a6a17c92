package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tollgate/tollgate/internal/domain"
)

// Check outcomes recorded in metrics.
const (
	CheckOK        = "ok"
	CheckChanged   = "changed"
	CheckFailed    = "failed"
	CheckCancelled = "cancelled"
)

// ChangeHandler consumes a detected change. It runs inside the component's
// check, so one component's changes are handled strictly in order.
type ChangeHandler func(ctx context.Context, c domain.Component, change domain.VersionChange) error

// CheckFailure names a component whose check failed this cycle.
type CheckFailure struct {
	ComponentID string `json:"component_id"`
	Error       string `json:"error"`
}

// ScanReport summarises one detection cycle.
type ScanReport struct {
	Checked    int            `json:"checked"`
	Changes    int            `json:"changes"`
	Suppressed int            `json:"suppressed"`
	Skipped    int            `json:"skipped"`
	Failed     []CheckFailure `json:"failed,omitempty"`
}

type scanTally struct {
	mu     sync.Mutex
	report ScanReport
}

func (t *scanTally) add(fn func(r *ScanReport)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.report)
}

// DetectService polls upstreams for every active component.
type DetectService struct {
	registry    *RegistryService
	evaluations domain.EvaluationStore
	upstream    domain.UpstreamClient
	notifier    domain.Notifier
	limiter     *rate.Limiter
	cfg         domain.ScanConfig
	options
}

func NewDetectService(
	registry *RegistryService,
	evaluations domain.EvaluationStore,
	upstream domain.UpstreamClient,
	notifier domain.Notifier,
	limiter *rate.Limiter,
	cfg domain.ScanConfig,
	opts ...Option,
) *DetectService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	return &DetectService{
		registry:    registry,
		evaluations: evaluations,
		upstream:    upstream,
		notifier:    notifier,
		limiter:     limiter,
		cfg:         cfg,
		options:     buildOptions("detector", opts),
	}
}

// Scan checks every active component on a bounded worker pool and hands
// each new change to handle. Component failures are isolated and reported.
// Once ctx is cancelled no new check starts; checks already running finish
// on a detached context bounded by the scan timeout.
func (s *DetectService) Scan(ctx context.Context, handle ChangeHandler) (ScanReport, error) {
	components, err := s.registry.List(ctx, domain.ComponentFilter{Status: domain.ComponentActive})
	if err != nil {
		return ScanReport{}, fmt.Errorf("listing components: %w", err)
	}

	var tally scanTally
	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for _, c := range components {
		if ctx.Err() != nil {
			tally.add(func(r *ScanReport) { r.Skipped++ })
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				tally.add(func(r *ScanReport) { r.Skipped++ })
				s.metrics.ComponentChecked(CheckCancelled)
				return nil
			}
			cctx, cancel := s.checkContext(ctx)
			defer cancel()
			s.checkOne(cctx, c.ID, handle, &tally)
			return nil
		})
	}
	_ = g.Wait()

	report := tally.report
	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].ComponentID < report.Failed[j].ComponentID })
	s.logger.Info("scan finished",
		slog.Int("checked", report.Checked),
		slog.Int("changes", report.Changes),
		slog.Int("suppressed", report.Suppressed),
		slog.Int("failed", len(report.Failed)),
		slog.Int("skipped", report.Skipped))
	return report, ctx.Err()
}

// CheckNow runs a single component check outside the worker pool.
func (s *DetectService) CheckNow(ctx context.Context, id string, handle ChangeHandler) (ScanReport, error) {
	if _, err := s.registry.Get(ctx, id); err != nil {
		return ScanReport{}, err
	}
	var tally scanTally
	cctx, cancel := s.checkContext(ctx)
	defer cancel()
	s.checkOne(cctx, id, handle, &tally)
	return tally.report, nil
}

func (s *DetectService) checkContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
}

func (s *DetectService) checkOne(ctx context.Context, id string, handle ChangeHandler, tally *scanTally) {
	var changes, suppressed int
	var handleErrs []CheckFailure
	err := s.registry.CheckComponent(ctx, id, func(ctx context.Context, c domain.Component) (domain.CheckResult, error) {
		detected, res, err := s.detect(ctx, c)
		if err != nil {
			return res, err
		}
		var unhandled []string
		for _, change := range detected {
			if s.suppressed(ctx, change) {
				suppressed++
				continue
			}
			s.metrics.ChangeDetected(change.Kind)
			if handle == nil {
				changes++
				continue
			}
			switch err := handle(ctx, c, change); {
			case err == nil:
				changes++
			case errors.Is(err, domain.ErrDuplicateEvaluation):
				suppressed++
			default:
				s.logger.Warn("change handling failed", slog.String("component", c.ID),
					slog.String("change", change.Key()), slog.Any("error", err))
				handleErrs = append(handleErrs, CheckFailure{
					ComponentID: c.ID,
					Error:       fmt.Sprintf("handling change %s: %v", change.Key(), err),
				})
				for _, a := range change.Advisories {
					unhandled = append(unhandled, a.ID)
				}
			}
		}
		res.SeenAdvisories = without(res.SeenAdvisories, unhandled)
		return res, nil
	})

	if err != nil {
		s.metrics.ComponentChecked(CheckFailed)
		s.logger.Warn("component check failed", slog.String("component", id), slog.Any("error", err))
		tally.add(func(r *ScanReport) {
			r.Failed = append(r.Failed, CheckFailure{ComponentID: id, Error: err.Error()})
		})
		s.notifier.Notify(ctx, domain.Event{
			Type:       domain.EventComponentCheckFailed,
			Component:  id,
			Message:    err.Error(),
			OccurredAt: s.now(),
		})
		return
	}

	result := CheckOK
	if changes > 0 {
		result = CheckChanged
	}
	s.metrics.ComponentChecked(result)
	tally.add(func(r *ScanReport) {
		r.Checked++
		r.Changes += changes
		r.Suppressed += suppressed
		r.Failed = append(r.Failed, handleErrs...)
	})
}

// detect queries the upstream and returns candidate changes in a fixed
// order: the release change first, then the advisory change.
func (s *DetectService) detect(ctx context.Context, c domain.Component) ([]domain.VersionChange, domain.CheckResult, error) {
	now := s.now()
	res := domain.CheckResult{CheckedAt: now}

	adopted, err := s.adoptedVersion(ctx, c)
	if err != nil {
		return nil, res, err
	}
	current := c.Version
	if adopted != "" {
		res.Version = adopted
		current = adopted
	}

	var changes []domain.VersionChange

	if c.Monitors(domain.MonitorReleases) {
		rel, err := retry(ctx, s, "latest release", func() (*domain.Release, error) {
			return s.upstream.LatestRelease(ctx, c.Upstream)
		})
		if err != nil {
			return nil, res, fmt.Errorf("fetching latest release: %w", err)
		}
		if rel != nil && domain.CanonicalVersion(rel.Version) != "" {
			res.LatestSeen = rel.Version
			switch {
			case current == "":
				res.Version = rel.Version
			case domain.IsNewerVersion(rel.Version, current):
				changes = append(changes, domain.VersionChange{
					ComponentID:  c.ID,
					Kind:         domain.ChangeRelease,
					FromVersion:  current,
					ToVersion:    rel.Version,
					Notes:        rel.Notes,
					DiscoveredAt: now,
				})
			}
		}
	}

	if c.Monitors(domain.MonitorAdvisories) {
		advisories, err := retry(ctx, s, "advisories", func() ([]domain.Advisory, error) {
			return s.upstream.Advisories(ctx, c.Upstream)
		})
		if err != nil {
			return nil, res, fmt.Errorf("fetching advisories: %w", err)
		}
		reopened, err := s.deferredAdvisories(ctx, c.ID)
		if err != nil {
			return nil, res, err
		}
		var fresh []domain.Advisory
		for _, a := range advisories {
			if !c.HasSeenAdvisory(a.ID) || reopened[a.ID] {
				fresh = append(fresh, a)
				res.SeenAdvisories = append(res.SeenAdvisories, a.ID)
			}
		}
		if len(fresh) > 0 {
			sort.Slice(fresh, func(i, j int) bool { return fresh[i].ID < fresh[j].ID })
			changes = append(changes, domain.VersionChange{
				ComponentID:  c.ID,
				Kind:         domain.ChangeAdvisory,
				FromVersion:  current,
				ToVersion:    current,
				Advisories:   fresh,
				AdvisoryKey:  advisoryKey(fresh),
				DiscoveredAt: now,
			})
		}
	}
	return changes, res, nil
}

// adoptedVersion returns the newest implemented release newer than the
// component's version, or "".
func (s *DetectService) adoptedVersion(ctx context.Context, c domain.Component) (string, error) {
	implemented, err := s.evaluations.ListEvaluations(ctx, domain.EvaluationFilter{
		ComponentID: c.ID,
		Status:      domain.EvaluationImplemented,
	})
	if err != nil {
		return "", fmt.Errorf("listing implemented evaluations: %w", err)
	}
	best := ""
	for _, e := range implemented {
		if e.Change.Kind != domain.ChangeRelease {
			continue
		}
		v := e.Change.ToVersion
		if (c.Version == "" || domain.IsNewerVersion(v, c.Version)) && (best == "" || domain.IsNewerVersion(v, best)) {
			best = v
		}
	}
	return best, nil
}

// deferredAdvisories returns advisory IDs whose evaluation was cancelled by
// a due reminder and that no live or settled evaluation covers yet.
func (s *DetectService) deferredAdvisories(ctx context.Context, componentID string) (map[string]bool, error) {
	evals, err := s.evaluations.ListEvaluations(ctx, domain.EvaluationFilter{ComponentID: componentID})
	if err != nil {
		return nil, fmt.Errorf("listing evaluations: %w", err)
	}
	covered := make(map[string]bool)
	reopened := make(map[string]bool)
	for _, e := range evals {
		for _, a := range e.Change.Advisories {
			switch {
			case e.Status.SuppressesDetection():
				covered[a.ID] = true
			case e.Status == domain.EvaluationCancelled:
				reopened[a.ID] = true
			}
		}
	}
	for id := range covered {
		delete(reopened, id)
	}
	return reopened, nil
}

// suppressed reports whether the change key already has an evaluation
// that blocks re-raising it.
func (s *DetectService) suppressed(ctx context.Context, change domain.VersionChange) bool {
	existing, err := s.evaluations.ListEvaluations(ctx, domain.EvaluationFilter{
		ComponentID: change.ComponentID,
		Key:         change.Key(),
	})
	if err != nil {
		s.logger.Warn("suppression lookup failed", slog.String("component", change.ComponentID), slog.Any("error", err))
		return false
	}
	for _, e := range existing {
		if e.Status.SuppressesDetection() {
			return true
		}
	}
	return false
}

// retry paces and retries an upstream call. Only rate-limit and transient
// failures are retried.
func retry[T any](ctx context.Context, s *DetectService, what string, call func() (T, error)) (T, error) {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = s.cfg.InitialBackoff
	if s.cfg.MaxBackoff > 0 {
		expo.MaxInterval = s.cfg.MaxBackoff
	}

	policy := &hintedBackOff{BackOff: expo, max: expo.MaxInterval}

	attempt := 0
	op := func() (T, error) {
		attempt++
		if err := s.limiter.Wait(ctx); err != nil {
			var zero T
			return zero, backoff.Permanent(err)
		}
		v, err := call()
		if err != nil && !domain.IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		var rle *domain.RateLimitError
		if errors.As(err, &rle) {
			policy.hint = rle.RetryAfter
		}
		return v, err
	}
	notify := func(err error, next time.Duration) {
		s.logger.Debug("retrying upstream call", slog.String("call", what),
			slog.Int("attempt", attempt), slog.Duration("next", next), slog.Any("error", err))
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(s.cfg.MaxRetries)),
		backoff.WithNotify(notify),
	)
}

// hintedBackOff waits at least as long as the upstream asked, capped at max.
type hintedBackOff struct {
	backoff.BackOff
	hint time.Duration
	max  time.Duration
}

func (b *hintedBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if h := min(b.hint, b.max); h > next {
		next = h
	}
	b.hint = 0
	return next
}

func advisoryKey(advisories []domain.Advisory) string {
	ids := make([]string, len(advisories))
	for i, a := range advisories {
		ids[i] = a.ID
	}
	return strings.Join(ids, ",")
}

func without(ids, drop []string) []string {
	if len(drop) == 0 {
		return ids
	}
	skip := make(map[string]bool, len(drop))
	for _, id := range drop {
		skip[id] = true
	}
	var out []string
	for _, id := range ids {
		if !skip[id] {
			out = append(out, id)
		}
	}
	return out
}
