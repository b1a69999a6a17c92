package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/tollgate/tollgate/internal/logging"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(flags *rootFlags) *cobra.Command {
	var (
		listen        string
		scanSchedule  string
		sweepSchedule string
		gcSchedule    string
		scanOnStart   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled scans and sweeps and serve metrics",
		Long: "Run as a daemon: scan upstreams and sweep deadlines on cron schedules, and expose Prometheus " +
			"metrics on /metrics. Stops cleanly on SIGINT or SIGTERM after running jobs finish.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withApp(flags, func(a *app) error {
				logger := logging.New("serve")
				if listen == "" {
					listen = a.cfg.Metrics.Listen
				}
				if scanSchedule == "" {
					scanSchedule = a.cfg.Scan.Schedule
				}
				if sweepSchedule == "" {
					sweepSchedule = a.cfg.Scan.SweepSchedule
				}

				scheduler, err := newScheduler(ctx, a, logger, scanSchedule, sweepSchedule, gcSchedule)
				if err != nil {
					return err
				}

				errCh := make(chan error, 1)
				var srv *http.Server
				if listen != "off" {
					ln, err := net.Listen("tcp", listen)
					if err != nil {
						return fmt.Errorf("listening on %s: %w", listen, err)
					}
					mux := http.NewServeMux()
					mux.Handle("/metrics", a.metrics.Handler())
					mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
						w.WriteHeader(http.StatusOK)
						_, _ = w.Write([]byte("ok\n"))
					})
					srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
					go func() {
						if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
							errCh <- err
						}
					}()
					logger.Info("metrics listening", slog.String("addr", ln.Addr().String()))
				}

				scheduler.Start()
				logger.Info("scheduler started", slog.String("scan", scanSchedule), slog.String("sweep", sweepSchedule))
				if scanOnStart {
					go runScan(ctx, a, logger)
				}

				var serveErr error
				select {
				case <-ctx.Done():
				case serveErr = <-errCh:
				}

				logger.Info("shutting down")
				<-scheduler.Stop().Done()
				if srv != nil {
					shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
					defer cancel()
					if err := srv.Shutdown(shutdownCtx); err != nil {
						logger.Warn("metrics server shutdown", slog.String("error", err.Error()))
					}
				}
				return serveErr
			})
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Metrics address (defaults to metrics.listen; off disables)")
	cmd.Flags().StringVar(&scanSchedule, "scan-schedule", "", "Cron spec for scans (defaults to scan.schedule)")
	cmd.Flags().StringVar(&sweepSchedule, "sweep-schedule", "", "Cron spec for sweeps (defaults to scan.sweep_schedule)")
	cmd.Flags().StringVar(&gcSchedule, "gc-schedule", "@every 30m", "Cron spec for store garbage collection")
	cmd.Flags().BoolVar(&scanOnStart, "scan-on-start", false, "Run a scan immediately instead of waiting for the schedule")

	return cmd
}

// newScheduler registers the scan, sweep and store GC jobs. A job that is
// still running when its next tick arrives is skipped.
func newScheduler(ctx context.Context, a *app, logger *slog.Logger, scanSpec, sweepSpec, gcSpec string) (*cron.Cron, error) {
	cl := cronLogger{logger: logger}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))

	if _, err := c.AddFunc(scanSpec, func() { runScan(ctx, a, logger) }); err != nil {
		return nil, fmt.Errorf("scan schedule %q: %w", scanSpec, err)
	}
	if _, err := c.AddFunc(sweepSpec, func() { runSweep(ctx, a, logger) }); err != nil {
		return nil, fmt.Errorf("sweep schedule %q: %w", sweepSpec, err)
	}
	if gc, ok := a.store.(interface{ CollectGarbage() error }); ok && gcSpec != "" {
		if _, err := c.AddFunc(gcSpec, func() {
			if err := gc.CollectGarbage(); err != nil {
				logger.Warn("store garbage collection failed", slog.String("error", err.Error()))
			}
		}); err != nil {
			return nil, fmt.Errorf("gc schedule %q: %w", gcSpec, err)
		}
	}
	return c, nil
}

func runScan(ctx context.Context, a *app, logger *slog.Logger) {
	if ctx.Err() != nil {
		return
	}
	report, err := a.detector.Scan(ctx, a.governance.HandleChange)
	if err != nil {
		logger.Error("scan failed", slog.String("error", err.Error()))
		return
	}
	logger.Info("scan finished",
		slog.Int("checked", report.Checked),
		slog.Int("changes", report.Changes),
		slog.Int("suppressed", report.Suppressed),
		slog.Int("failed", len(report.Failed)))
}

func runSweep(ctx context.Context, a *app, logger *slog.Logger) {
	if ctx.Err() != nil {
		return
	}
	report, err := a.lifecycle.Sweep(ctx)
	if err != nil {
		logger.Error("sweep failed", slog.String("error", err.Error()))
		return
	}
	logger.Info("sweep finished", slog.Int("overdue", report.Overdue), slog.Int("reevaluations", report.Reevaluations))
}

// cronLogger routes cron's own logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
