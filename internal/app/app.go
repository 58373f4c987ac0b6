// Package app provides the top-level application lifecycle management for
// the endgame sweep scanner. It wires together the Persistence Gateway, the
// venue clients, the Ingestion Orchestrator, the Scoring Engine, and the
// ambient process-supervision surface, then runs them until the context is
// cancelled.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/endgamesweep/scanner/internal/config"
	"github.com/endgamesweep/scanner/internal/domain"
	"github.com/endgamesweep/scanner/internal/ingest"
	"github.com/endgamesweep/scanner/internal/venue/breaker"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies and starts the ingestion orchestrator, the
// scoring loop, the retention sweep, the breaker gauge poller, and the
// health/metrics servers as independent goroutines under one errgroup. It
// blocks until ctx is cancelled or one of them returns a non-context error.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application", slog.String("log_level", a.cfg.LogLevel))

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)
	a.closers = append(a.closers, deps.Health.MarkShuttingDown)

	if len(deps.Venues) == 0 {
		return fmt.Errorf("app: no venues enabled")
	}

	discovery := ingest.NewDiscovery(deps.Venues, deps.MarketStore, deps.RuleQueue, a.logger)
	quotes := ingest.NewQuotePoller(deps.Venues, deps.MarketStore, deps.QuoteStore, deps.RateLimiter, a.logger)
	rules := ingest.NewRuleRefresher(deps.VenueByName, deps.MarketStore, deps.RuleStore, deps.LockManager, deps.RuleQueue,
		a.cfg.Redis.RuleLockTTL.Duration, a.cfg.Cadence.RuleRefreshWorkers, a.logger)
	orchestrator := ingest.NewOrchestrator(discovery, quotes, rules,
		a.cfg.Cadence.DiscoveryInterval.Duration, a.cfg.Cadence.QuotePollInterval.Duration,
		a.cfg.Cadence.RuleFloorSweepInterval.Duration, a.logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := orchestrator.Run(gctx)
		if gctx.Err() != nil {
			return nil
		}
		return err
	})

	g.Go(func() error {
		err := a.runScoringLoop(gctx, deps)
		if gctx.Err() != nil {
			return nil
		}
		return err
	})

	g.Go(func() error {
		err := a.runRetentionLoop(gctx, deps)
		if gctx.Err() != nil {
			return nil
		}
		return err
	})

	g.Go(func() error {
		err := a.runBreakerGauge(gctx, deps)
		if gctx.Err() != nil {
			return nil
		}
		return err
	})

	if a.cfg.Health.Enabled {
		srv := &http.Server{Addr: fmt.Sprintf(":%d", a.cfg.Health.Port), Handler: deps.Health.Handler()}
		g.Go(func() error { return a.runHTTPServer(gctx, srv, "health") })
	}
	if a.cfg.Metrics.Enabled {
		srv := &http.Server{Addr: fmt.Sprintf(":%d", a.cfg.Metrics.Port), Handler: deps.Metrics.Handler()}
		g.Go(func() error { return a.runHTTPServer(gctx, srv, "metrics") })
	}

	if err := g.Wait(); err != nil {
		a.logger.ErrorContext(ctx, "application stopped with error", slog.String("error", err.Error()))
		return err
	}
	return ctx.Err()
}

// runScoringLoop ticks the Scoring Engine on cfg.Cadence.ScoringInterval
// until ctx is cancelled, recording each tick's outcome in metrics and
// fanning out recommendation alerts for the chunks it writes.
func (a *App) runScoringLoop(ctx context.Context, deps *Dependencies) error {
	deps.ScoreEngine.OnChunk(func(scores []domain.ScoreSnapshot, recs []domain.RecommendationSnapshot) {
		deps.Alerter.AlertTick(ctx, scores, recs)
	})

	ticker := time.NewTicker(a.cfg.Cadence.ScoringInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.tickScoring(ctx, deps)
		}
	}
}

func (a *App) tickScoring(ctx context.Context, deps *Dependencies) {
	timer := deps.Metrics.TickDurationSeconds.WithLabelValues("scoring")
	report, err := deps.ScoreEngine.Tick(ctx, time.Now().UTC())
	timer.Observe(report.Duration.Seconds())
	if err != nil {
		a.logger.ErrorContext(ctx, "scoring tick failed", slog.String("error", err.Error()))
		return
	}
	deps.Metrics.MarketsScoredTotal.Add(float64(report.Scored))
	deps.Metrics.MarketsSkippedTotal.Add(float64(report.Skipped))
}

// runRetentionLoop periodically prunes quote samples older than the
// configured retention window, then archives the rows the prune deleted to
// blob storage. A failed archive is logged; the rows are already gone from
// the database by then.
func (a *App) runRetentionLoop(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(a.cfg.Retention.SweepInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.sweepRetention(ctx, deps)
		}
	}
}

func (a *App) sweepRetention(ctx context.Context, deps *Dependencies) {
	cutoff := time.Now().UTC().Add(-time.Duration(a.cfg.Retention.SamplesRetentionDays) * 24 * time.Hour)
	samples, err := deps.QuoteStore.PruneSamples(ctx, cutoff)
	if err != nil {
		a.logger.ErrorContext(ctx, "retention sweep prune failed", slog.String("error", err.Error()))
		return
	}
	if len(samples) == 0 {
		return
	}
	if _, err := deps.Archiver.ArchiveQuoteSamples(ctx, samples); err != nil {
		a.logger.ErrorContext(ctx, "retention sweep archive failed",
			slog.Int("samples", len(samples)), slog.String("error", err.Error()))
	}
}

// runBreakerGauge polls every venue client's circuit breaker state into the
// metrics gauge, and the rule queue's drop count into the queue-drop counter,
// on a fixed interval.
func (a *App) runBreakerGauge(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	var reportedDrops int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for name, c := range deps.VenueByName {
				if state, ok := breaker.State(c); ok {
					deps.Metrics.BreakerStateGauge.WithLabelValues(name).Set(float64(state))
				}
			}
			if dropped := deps.RuleQueue.Dropped(); dropped > reportedDrops {
				deps.Metrics.RuleQueueDropsTotal.Add(float64(dropped - reportedDrops))
				reportedDrops = dropped
			}
		}
	}
}

func (a *App) runHTTPServer(ctx context.Context, srv *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("%s server: %w", name, err)
		}
		return nil
	}
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
