package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/endgamesweep/scanner/internal/domain"
	"github.com/endgamesweep/scanner/internal/venue"
)

// QuotePoller periodically refreshes quotes_latest and appends a bounded
// 5-minute-bucketed sample for every active market across all venues, as
// listed by MarketStore.ListActive. Markets are not filtered by close time
// or by the scoring horizon before they are polled.
type QuotePoller struct {
	venues  []venue.Client
	markets domain.MarketStore
	quotes  domain.QuoteStore
	limiter domain.RateLimiter
	logger  *slog.Logger
}

// NewQuotePoller creates a QuotePoller. limiter may be nil to skip
// per-venue rate limiting (e.g. in tests).
func NewQuotePoller(venues []venue.Client, markets domain.MarketStore, quotes domain.QuoteStore, limiter domain.RateLimiter, logger *slog.Logger) *QuotePoller {
	return &QuotePoller{
		venues:  venues,
		markets: markets,
		quotes:  quotes,
		limiter: limiter,
		logger:  logger.With(slog.String("component", "ingest.QuotePoller")),
	}
}

// RunLoop runs runOnce immediately and then on every tick of interval until ctx
// is cancelled.
func (p *QuotePoller) RunLoop(ctx context.Context, interval time.Duration) error {
	p.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

func (p *QuotePoller) runOnce(ctx context.Context) {
	for _, v := range p.venues {
		if err := p.pollVenue(ctx, v); err != nil {
			p.logger.ErrorContext(ctx, "quote poll failed for venue",
				slog.String("venue", v.Name()), slog.String("error", err.Error()))
		}
	}
}

// pollVenue loads every active market for v, chunks the outcome set, calls
// v.Quotes per chunk, and writes both the latest row and a bounded-history
// sample for each returned snapshot. A transient error from v.Quotes for one
// chunk is logged and skipped; it does not abort the remaining chunks.
func (p *QuotePoller) pollVenue(ctx context.Context, v venue.Client) error {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, "venue:"+v.Name()); err != nil {
			return err
		}
	}

	markets, err := p.markets.ListActive(ctx, domain.ListOpts{})
	if err != nil {
		return err
	}

	var outcomes []domain.Outcome
	for _, m := range markets {
		if m.Venue != v.Name() {
			continue
		}
		outcomes = append(outcomes, domain.Outcome{MarketID: m.ID, Side: domain.SideYes})
		outcomes = append(outcomes, domain.Outcome{MarketID: m.ID, Side: domain.SideNo})
	}
	if len(outcomes) == 0 {
		return nil
	}

	const chunkSize = 200
	now := time.Now().UTC()
	for start := 0; start < len(outcomes); start += chunkSize {
		end := start + chunkSize
		if end > len(outcomes) {
			end = len(outcomes)
		}
		chunk := outcomes[start:end]

		snapshots, err := v.Quotes(ctx, chunk)
		if err != nil {
			p.logger.WarnContext(ctx, "quote chunk fetch failed",
				slog.String("venue", v.Name()), slog.String("error", err.Error()))
			continue
		}
		if len(snapshots) == 0 {
			continue
		}

		if err := p.quotes.UpsertLatestBatch(ctx, snapshots); err != nil {
			p.logger.ErrorContext(ctx, "upsert quotes batch failed", slog.String("error", err.Error()))
			continue
		}

		bucket := domain.BucketStart(now)
		for _, q := range snapshots {
			sample := domain.QuoteSample{
				MarketID:    q.MarketID,
				BucketStart: bucket,
				AsOf:        q.AsOf,
				YesBid:      q.YesBid,
				YesAsk:      q.YesAsk,
				NoBid:       q.NoBid,
				NoAsk:       q.NoAsk,
			}
			if err := p.quotes.InsertSampleIfAbsent(ctx, sample); err != nil {
				p.logger.ErrorContext(ctx, "insert quote sample failed",
					slog.String("market_id", q.MarketID), slog.String("error", err.Error()))
			}
		}
	}

	return nil
}
