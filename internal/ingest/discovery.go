package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/endgamesweep/scanner/internal/domain"
	"github.com/endgamesweep/scanner/internal/ingest/ruleq"
	"github.com/endgamesweep/scanner/internal/venue"
)

// Discovery periodically pages every configured venue's market catalog,
// upserts batches of at most domain.MaxBatchSize rows, and enqueues a
// rule-fetch request for every market it touches.
type Discovery struct {
	venues  []venue.Client
	markets domain.MarketStore
	queue   *ruleq.Queue
	logger  *slog.Logger
}

// NewDiscovery creates a Discovery loop over the given venue clients.
func NewDiscovery(venues []venue.Client, markets domain.MarketStore, queue *ruleq.Queue, logger *slog.Logger) *Discovery {
	return &Discovery{
		venues:  venues,
		markets: markets,
		queue:   queue,
		logger:  logger.With(slog.String("component", "ingest.Discovery")),
	}
}

// RunLoop runs runOnce immediately and then on every tick of interval until ctx
// is cancelled.
func (d *Discovery) RunLoop(ctx context.Context, interval time.Duration) error {
	d.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.runOnce(ctx)
		}
	}
}

func (d *Discovery) runOnce(ctx context.Context) {
	for _, v := range d.venues {
		if err := d.discoverVenue(ctx, v); err != nil {
			d.logger.ErrorContext(ctx, "discovery failed for venue",
				slog.String("venue", v.Name()), slog.String("error", err.Error()))
		}
	}
}

// discoverVenue pages v.Discover until the cursor is exhausted, upserting
// each page's markets and outcomes and enqueuing a rule-fetch request per
// market.
func (d *Discovery) discoverVenue(ctx context.Context, v venue.Client) error {
	cursor := ""
	total := 0
	for {
		page, err := v.Discover(ctx, cursor)
		if err != nil {
			return fmt.Errorf("discover %s at cursor %q: %w", v.Name(), cursor, err)
		}
		if len(page.Markets) == 0 {
			break
		}

		for start := 0; start < len(page.Markets); start += domain.MaxBatchSize {
			end := min(start+domain.MaxBatchSize, len(page.Markets))
			if err := d.markets.UpsertBatch(ctx, page.Markets[start:end]); err != nil {
				return fmt.Errorf("upsert markets batch %s[%d:%d]: %w", v.Name(), start, end, err)
			}
		}
		for start := 0; start < len(page.Outcomes); start += domain.MaxBatchSize {
			end := min(start+domain.MaxBatchSize, len(page.Outcomes))
			if err := d.markets.UpsertOutcomesBatch(ctx, page.Outcomes[start:end]); err != nil {
				return fmt.Errorf("upsert outcomes batch %s[%d:%d]: %w", v.Name(), start, end, err)
			}
		}

		for _, m := range page.Markets {
			d.queue.Enqueue(ruleq.Request{Venue: v.Name(), MarketID: m.ID})
		}

		total += len(page.Markets)
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	d.logger.InfoContext(ctx, "discovery pass complete", slog.String("venue", v.Name()), slog.Int("markets", total))
	return nil
}
