// Package ingest implements the Ingestion Orchestrator: three independently
// ticked loops (market discovery, quote polling, rule refresh) feeding a
// shared Persistence Gateway.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Orchestrator runs the discovery loop, quote poller, rule refresh worker
// pool, and rule floor sweep as independent goroutines under one errgroup.
type Orchestrator struct {
	discovery      *Discovery
	quotes         *QuotePoller
	rules          *RuleRefresher
	discoveryEvery time.Duration
	quoteEvery     time.Duration
	floorSweep     time.Duration
	logger         *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(discovery *Discovery, quotes *QuotePoller, rules *RuleRefresher, discoveryEvery, quoteEvery, floorSweep time.Duration, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		discovery:      discovery,
		quotes:         quotes,
		rules:          rules,
		discoveryEvery: discoveryEvery,
		quoteEvery:     quoteEvery,
		floorSweep:     floorSweep,
		logger:         logger.With(slog.String("component", "ingest.Orchestrator")),
	}
}

// Run starts every loop concurrently via an errgroup. Each goroutine
// respects ctx cancellation; if any returns a non-context error, the
// errgroup cancels the shared context and Run returns that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("ingestion orchestrator starting",
		slog.Duration("discovery_interval", o.discoveryEvery),
		slog.Duration("quote_poll_interval", o.quoteEvery),
		slog.Duration("rule_floor_sweep_interval", o.floorSweep),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := o.discovery.RunLoop(ctx, o.discoveryEvery)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("discovery loop: %w", err)
	})

	g.Go(func() error {
		err := o.quotes.RunLoop(ctx, o.quoteEvery)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("quote poll loop: %w", err)
	})

	g.Go(func() error {
		err := o.rules.RunWorkers(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("rule refresh workers: %w", err)
	})

	g.Go(func() error {
		err := o.rules.RunFloorSweep(ctx, o.floorSweep)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("rule floor sweep: %w", err)
	})

	err := g.Wait()
	if err != nil {
		o.logger.Error("ingestion orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("ingestion orchestrator stopped cleanly")
	return nil
}
