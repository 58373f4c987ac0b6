package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/endgamesweep/scanner/internal/domain"
	"github.com/endgamesweep/scanner/internal/ingest/ruleq"
	"github.com/endgamesweep/scanner/internal/rulerisk"
	"github.com/endgamesweep/scanner/internal/venue"
)

// RuleRefresher drains rule-fetch requests with a fixed worker pool,
// re-extracting risk flags only when the fetched text's hash differs from
// what is stored. A 24h floor sweep re-enqueues every active market so a
// silently-edited rule is eventually caught even without a discovery event.
type RuleRefresher struct {
	venues  map[string]venue.Client
	markets domain.MarketStore
	rules   domain.RuleStore
	locks   domain.LockManager
	queue   *ruleq.Queue
	lockTTL time.Duration
	workers int
	logger  *slog.Logger
}

// NewRuleRefresher creates a RuleRefresher. venues is keyed by venue.Name().
func NewRuleRefresher(venues map[string]venue.Client, markets domain.MarketStore, rules domain.RuleStore, locks domain.LockManager, queue *ruleq.Queue, lockTTL time.Duration, workers int, logger *slog.Logger) *RuleRefresher {
	return &RuleRefresher{
		venues:  venues,
		markets: markets,
		rules:   rules,
		locks:   locks,
		queue:   queue,
		lockTTL: lockTTL,
		workers: workers,
		logger:  logger.With(slog.String("component", "ingest.RuleRefresher")),
	}
}

// RunWorkers starts the worker pool. It blocks until ctx is cancelled.
func (r *RuleRefresher) RunWorkers(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(done)
	}()

	workerDone := make(chan struct{}, r.workers)
	for i := 0; i < r.workers; i++ {
		go func() {
			r.worker(ctx, done)
			workerDone <- struct{}{}
		}()
	}
	for i := 0; i < r.workers; i++ {
		<-workerDone
	}
	return ctx.Err()
}

func (r *RuleRefresher) worker(ctx context.Context, done <-chan struct{}) {
	for {
		if !r.queue.Wait(done) {
			return
		}
		req, ok := r.queue.Dequeue()
		if !ok {
			continue
		}
		if err := r.refreshOne(ctx, req); err != nil {
			r.logger.ErrorContext(ctx, "rule refresh failed",
				slog.String("market_id", req.MarketID), slog.String("error", err.Error()))
		}

		select {
		case <-done:
			return
		default:
		}
	}
}

// refreshOne claims req.MarketID via the distributed lock so only one
// worker across replicas processes it at a time, then fetches, hashes, and
// conditionally re-extracts its rule text.
func (r *RuleRefresher) refreshOne(ctx context.Context, req ruleq.Request) error {
	unlock, err := r.locks.Acquire(ctx, "rule:"+req.MarketID, r.lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return nil
		}
		return err
	}
	defer unlock()

	v, ok := r.venues[req.Venue]
	if !ok {
		return nil
	}

	text, asOf, err := v.Rule(ctx, req.MarketID)
	if err != nil {
		return err
	}

	hash := rulerisk.Hash(text)

	existing, err := r.rules.GetLatest(ctx, req.MarketID)
	unchanged := err == nil && existing.RuleHash == hash

	snapshot := domain.RuleSnapshot{
		MarketID: req.MarketID,
		AsOf:     asOf,
		RuleText: text,
		RuleHash: hash,
	}

	if unchanged {
		// Same text: keep the previously extracted risk result; the store
		// only advances updated_at.
		snapshot.DefinitionRiskScore = existing.DefinitionRiskScore
		snapshot.RiskFlags = existing.RiskFlags
		snapshot.SettlementSource = existing.SettlementSource
		snapshot.SettlementWindow = existing.SettlementWindow
	} else {
		result, err := rulerisk.Extract(text)
		if err != nil {
			return err
		}
		snapshot.DefinitionRiskScore = result.DefinitionRiskScore
		snapshot.RiskFlags = result.Flags
	}

	return r.rules.UpsertLatest(ctx, snapshot)
}

// RunFloorSweep re-enqueues every currently active market on a repeating
// interval until ctx is cancelled, guaranteeing a rule refresh happens at
// least once per interval even if no discovery event touched a market.
func (r *RuleRefresher) RunFloorSweep(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.sweepOnce(ctx)
		}
	}
}

func (r *RuleRefresher) sweepOnce(ctx context.Context) {
	markets, err := r.markets.ListActive(ctx, domain.ListOpts{})
	if err != nil {
		r.logger.ErrorContext(ctx, "floor sweep list active failed", slog.String("error", err.Error()))
		return
	}
	for _, m := range markets {
		r.queue.Enqueue(ruleq.Request{Venue: m.Venue, MarketID: m.ID})
	}
	r.logger.InfoContext(ctx, "floor sweep enqueued", slog.Int("markets", len(markets)))
}
