package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/tollgate/tollgate/internal/adapters/outbound/cache"
	"github.com/tollgate/tollgate/internal/adapters/outbound/config"
	githubadapter "github.com/tollgate/tollgate/internal/adapters/outbound/github"
	"github.com/tollgate/tollgate/internal/adapters/outbound/gitremote"
	"github.com/tollgate/tollgate/internal/adapters/outbound/metrics"
	"github.com/tollgate/tollgate/internal/adapters/outbound/notify"
	"github.com/tollgate/tollgate/internal/adapters/outbound/runner"
	badgerstore "github.com/tollgate/tollgate/internal/adapters/outbound/store/badger"
	"github.com/tollgate/tollgate/internal/adapters/outbound/store/memory"
	"github.com/tollgate/tollgate/internal/adapters/outbound/upstream"
	"github.com/tollgate/tollgate/internal/application"
	"github.com/tollgate/tollgate/internal/domain"
	"github.com/tollgate/tollgate/internal/domain/decision"
	"github.com/tollgate/tollgate/internal/domain/scoring"
	"github.com/tollgate/tollgate/internal/logging"
)

const (
	notifyAttempts     = 3
	notifyDelay        = time.Second
	notifyDrainTimeout = 15 * time.Second
)

// app is the wired process: one store, one dispatcher and the services
// on top of them.
type app struct {
	cfg      domain.Config
	cfgDir   string
	store    domain.Store
	metrics  *metrics.Recorder
	notifier *application.Dispatcher

	profiles  domain.ProfileSet
	evaluator *scoring.Evaluator
	policy    decision.Policy

	registry   *application.RegistryService
	detector   *application.DetectService
	governance *application.GovernanceService
	lifecycle  *application.LifecycleService
	pipeline   *application.PipelineService
}

// loadConfig reads the config file named by --config and resolves relative
// paths in it against the file's directory.
func loadConfig(flags *rootFlags) (domain.Config, string, error) {
	path, err := filepath.Abs(flags.configPath)
	if err != nil {
		return domain.Config{}, "", fmt.Errorf("resolving config path: %w", err)
	}
	cfg, err := config.New().LoadFile(path)
	if err != nil {
		return domain.Config{}, "", err
	}
	dir := filepath.Dir(path)
	cfg.Store.Path = relativeTo(dir, cfg.Store.Path)
	for i, s := range cfg.Notifications.Sinks {
		if s.Type == domain.SinkJournal {
			cfg.Notifications.Sinks[i].Path = relativeTo(dir, s.Path)
		}
	}
	cfg.Pipeline.WorkDir = relativeTo(dir, cfg.Pipeline.WorkDir)
	cfg.Cache.Dir = relativeTo(dir, cfg.Cache.Dir)
	return cfg, dir, nil
}

func relativeTo(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func openApp(flags *rootFlags) (*app, error) {
	cfg, dir, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, cfgDir: dir, metrics: metrics.New(), evaluator: scoring.NewEvaluator(), policy: decision.PolicyFromConfig(cfg.Policy)}

	a.profiles, err = domain.NewProfileSet(cfg.Profiles)
	if err != nil {
		return nil, err
	}

	switch cfg.Store.Driver {
	case domain.StoreMemory:
		a.store = memory.New()
	default:
		a.store, err = badgerstore.Open(badgerstore.Config{Path: cfg.Store.Path, Logger: logging.New("badger")})
		if err != nil {
			return nil, err
		}
	}

	gh, err := githubadapter.New(githubadapter.Config{
		BaseURL: cfg.GitHub.BaseURL,
		Token:   config.GitHubToken(cfg.GitHub),
		Logger:  logging.New("github"),
	})
	if err != nil {
		a.store.Close()
		return nil, err
	}
	router := upstream.NewRouter(gh, gitremote.New(), githubHosts(cfg.GitHub)...)
	var diffs domain.DiffSource = router
	if cfg.Cache.Dir != "" {
		diffs = cache.New(cfg.Cache.Dir, router, logging.New("cache"))
	}

	common := []application.Option{application.WithMetrics(a.metrics)}
	a.notifier = application.NewDispatcher(notifyAttempts, notifyDelay, append(common, application.WithLogger(logging.New("dispatcher")))...)
	deps := notify.Deps{HTTPClient: &http.Client{}, Issues: gh, Logger: logging.New("notify")}
	for _, sc := range cfg.Notifications.Sinks {
		sink, err := notify.Build(sc, deps)
		if err != nil {
			a.store.Close()
			return nil, err
		}
		a.notifier.Register(sc, sink)
	}

	var stages domain.StageRunner
	if cfg.Pipeline.DryRun {
		stages = runner.NewDryRunner(cfg.Pipeline)
	} else {
		stages = runner.NewShellRunner(cfg.Pipeline, logging.New("runner"))
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.GitHub.RequestsPerSecond), max(1, cfg.GitHub.Burst))

	a.registry = application.NewRegistryService(a.store, common...)
	a.pipeline = application.NewPipelineService(a.store, stages, a.notifier, cfg.Pipeline, common...)
	a.lifecycle = application.NewLifecycleService(a.store, a.pipeline, a.notifier, application.LifecycleConfigFrom(cfg), common...)
	a.governance = application.NewGovernanceService(a.store, diffs, a.profiles, a.evaluator, a.policy, a.lifecycle, a.notifier, common...)
	a.detector = application.NewDetectService(a.registry, a.store, router, a.notifier, limiter, cfg.Scan, common...)
	return a, nil
}

// Close drains pending notifications before closing the store.
func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), notifyDrainTimeout)
	defer cancel()
	if err := a.notifier.Shutdown(ctx); err != nil {
		logging.New("dispatcher").Warn("pending notifications dropped", slog.Any("error", err))
	}
	return a.store.Close()
}

// withApp opens the app for the duration of fn.
func withApp(flags *rootFlags, fn func(a *app) error) (err error) {
	a, err := openApp(flags)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			slog.Default().Warn("closing store", slog.String("error", cerr.Error()))
			if err == nil {
				err = cerr
			}
		}
	}()
	return fn(a)
}

func githubHosts(cfg domain.GitHubConfig) []string {
	hosts := []string{"github.com"}
	if cfg.BaseURL == "" {
		return hosts
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Hostname() == "" {
		return hosts
	}
	return append(hosts, u.Hostname())
}
