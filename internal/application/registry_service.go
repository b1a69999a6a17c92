package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/tollgate/tollgate/internal/domain"
)

// RegistryService owns the component registry. Check results are applied
// under a per-component lock so concurrent checks of one component serialize.
type RegistryService struct {
	store    domain.ComponentStore
	locks    *keyedMutex
	validate *validator.Validate
	options
}

func NewRegistryService(store domain.ComponentStore, opts ...Option) *RegistryService {
	return &RegistryService{
		store:    store,
		locks:    newKeyedMutex(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		options:  buildOptions("registry", opts),
	}
}

// Register adds a component. Missing monitor flags default to releases,
// missing profile to the default profile.
func (s *RegistryService) Register(ctx context.Context, c domain.Component) (domain.Component, error) {
	if len(c.Monitor) == 0 {
		c.Monitor = []domain.MonitorFlag{domain.MonitorReleases}
	}
	if c.Profile == "" {
		c.Profile = domain.ProfileDefault
	}
	if c.Status == "" {
		c.Status = domain.ComponentActive
	}
	if err := s.validate.Struct(c); err != nil {
		return domain.Component{}, fmt.Errorf("invalid component %q: %w", c.ID, err)
	}
	if c.Version != "" && domain.CanonicalVersion(c.Version) == "" {
		return domain.Component{}, fmt.Errorf("invalid component %q: version %q is not semver", c.ID, c.Version)
	}
	c.CreatedAt = s.now()
	if err := s.store.CreateComponent(ctx, c); err != nil {
		return domain.Component{}, err
	}
	s.logger.Info("component registered", slog.String("id", c.ID), slog.String("upstream", c.Upstream))
	return c, nil
}

func (s *RegistryService) Get(ctx context.Context, id string) (domain.Component, error) {
	return s.store.GetComponent(ctx, id)
}

func (s *RegistryService) List(ctx context.Context, filter domain.ComponentFilter) ([]domain.Component, error) {
	return s.store.ListComponents(ctx, filter)
}

// UpdateLastCheck applies a check result under the component's lock.
func (s *RegistryService) UpdateLastCheck(ctx context.Context, id string, res domain.CheckResult) error {
	unlock := s.locks.Lock(id)
	defer unlock()
	c, err := s.store.GetComponent(ctx, id)
	if err != nil {
		return err
	}
	return s.applyCheck(ctx, c, res)
}

// CheckComponent runs check against a fresh copy of the component while
// holding its lock, then applies the result. A failed check leaves the
// component untouched.
func (s *RegistryService) CheckComponent(ctx context.Context, id string, check func(context.Context, domain.Component) (domain.CheckResult, error)) error {
	unlock := s.locks.Lock(id)
	defer unlock()
	c, err := s.store.GetComponent(ctx, id)
	if err != nil {
		return err
	}
	res, err := check(ctx, c)
	if err != nil {
		return err
	}
	return s.applyCheck(ctx, c, res)
}

func (s *RegistryService) applyCheck(ctx context.Context, c domain.Component, res domain.CheckResult) error {
	c.LastCheckedAt = res.CheckedAt
	if res.LatestSeen != "" {
		c.LatestSeen = res.LatestSeen
	}
	if res.Version != "" && res.Version != c.Version {
		s.logger.Info("component version adopted", slog.String("id", c.ID),
			slog.String("from", c.Version), slog.String("to", res.Version))
		c.Version = res.Version
	}
	for _, id := range res.SeenAdvisories {
		if !c.HasSeenAdvisory(id) {
			c.SeenAdvisories = append(c.SeenAdvisories, id)
		}
	}
	return s.store.UpdateComponent(ctx, c)
}

// Pause stops detection for a component. Components are never deleted.
func (s *RegistryService) Pause(ctx context.Context, id string) (domain.Component, error) {
	return s.setStatus(ctx, id, domain.ComponentPaused)
}

func (s *RegistryService) Resume(ctx context.Context, id string) (domain.Component, error) {
	return s.setStatus(ctx, id, domain.ComponentActive)
}

func (s *RegistryService) setStatus(ctx context.Context, id string, status domain.ComponentStatus) (domain.Component, error) {
	unlock := s.locks.Lock(id)
	defer unlock()
	c, err := s.store.GetComponent(ctx, id)
	if err != nil {
		return domain.Component{}, err
	}
	if c.Status == status {
		return c, nil
	}
	c.Status = status
	if err := s.store.UpdateComponent(ctx, c); err != nil {
		return domain.Component{}, err
	}
	s.logger.Info("component status changed", slog.String("id", id), slog.String("status", string(status)))
	return c, nil
}

// SyncReport lists what a seed sync did.
type SyncReport struct {
	Added    []string `json:"added"`
	Existing []string `json:"existing"`
}

// Sync registers seed entries that are not in the registry yet. Existing
// components are left as they are.
func (s *RegistryService) Sync(ctx context.Context, seeds []domain.ComponentConfig) (SyncReport, error) {
	var report SyncReport
	for _, seed := range seeds {
		_, err := s.Register(ctx, seed.Component())
		switch {
		case err == nil:
			report.Added = append(report.Added, seed.ID)
		case errors.Is(err, domain.ErrDuplicateComponent):
			report.Existing = append(report.Existing, seed.ID)
		default:
			return report, fmt.Errorf("syncing component %q: %w", seed.ID, err)
		}
	}
	return report, nil
}
