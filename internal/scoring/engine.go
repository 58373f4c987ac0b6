// Package scoring implements the Scoring Engine: per-tick eligibility
// gating, feature computation, overall score, risk score, and position
// sizing for markets approaching resolution.
package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/endgamesweep/scanner/internal/config"
	"github.com/endgamesweep/scanner/internal/domain"
)

// minTDays is the floor applied to T_days so yield_velocity never divides by
// a value smaller than one hour of runway.
const minTDays = 1.0 / 24.0

// writeAttempts is how many times a chunk write is retried with backoff
// before the tick reports an error and stops (previously written chunks
// remain committed).
const writeAttempts = 3

// Engine runs periodic scoring ticks over markets surfaced by a
// domain.ScoringInputStore, writing results through a domain.ScoreWriter.
type Engine struct {
	inputs  domain.ScoringInputStore
	writer  domain.ScoreWriter
	cfg     config.ScoringConfig
	logger  *slog.Logger
	onChunk func(scores []domain.ScoreSnapshot, recs []domain.RecommendationSnapshot)
}

// New creates a scoring Engine.
func New(inputs domain.ScoringInputStore, writer domain.ScoreWriter, cfg config.ScoringConfig, logger *slog.Logger) *Engine {
	return &Engine{
		inputs: inputs,
		writer: writer,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "scoring.Engine")),
	}
}

// OnChunk registers a callback invoked with every successfully written chunk
// of scores and recommendations, after the write transaction commits. It is
// used to fan out recommendation alerts without coupling the engine itself
// to the notification stack.
func (e *Engine) OnChunk(fn func(scores []domain.ScoreSnapshot, recs []domain.RecommendationSnapshot)) {
	e.onChunk = fn
}

// TickReport summarizes the outcome of one scoring tick.
type TickReport struct {
	Scored   int
	Skipped  int
	Duration time.Duration
}

// Tick runs one scoring pass as of now: it pages eligible markets through
// LoadScoringInputs, computes scores and recommendations in bounded chunks,
// and writes each chunk atomically. A chunk write failure stops the tick
// immediately; chunks already written remain committed.
func (e *Engine) Tick(ctx context.Context, now time.Time) (TickReport, error) {
	start := time.Now()
	report := TickReport{}

	cursor := ""
	processed := 0
	for {
		if processed >= e.cfg.MaxMarketsPerTick {
			e.logger.Warn("scoring tick hit max_markets_per_tick cap", slog.Int("cap", e.cfg.MaxMarketsPerTick))
			break
		}

		limit := e.cfg.ChunkSize
		page, nextCursor, err := e.inputs.LoadScoringInputs(ctx, domain.ScoringFilter{
			Status:      domain.MarketStatusActive,
			CloseAfter:  &now,
			Limit:       limit,
			Cursor:      cursor,
		})
		if err != nil {
			return report, fmt.Errorf("scoring: load inputs: %w", err)
		}
		if len(page) == 0 {
			break
		}

		scores, recs, skipped := e.computeChunk(ctx, now, page)
		report.Skipped += skipped
		processed += len(page)

		if len(scores) > 0 || len(recs) > 0 {
			if err := e.writeChunk(ctx, scores, recs); err != nil {
				return report, fmt.Errorf("scoring: write chunk: %w", err)
			}
			report.Scored += len(recs)
			if e.onChunk != nil {
				e.onChunk(scores, recs)
			}
		}

		cursor = nextCursor
		if cursor == "" {
			break
		}
	}

	report.Duration = time.Since(start)
	e.logger.Info("scoring tick complete",
		slog.Int("scored", report.Scored),
		slog.Int("skipped", report.Skipped),
		slog.Duration("duration", report.Duration),
	)
	return report, nil
}

// writeChunk retries a transient write failure with linear backoff up to
// writeAttempts times.
func (e *Engine) writeChunk(ctx context.Context, scores []domain.ScoreSnapshot, recs []domain.RecommendationSnapshot) error {
	var err error
	for attempt := 1; attempt <= writeAttempts; attempt++ {
		if err = e.writer.UpsertTick(ctx, scores, recs); err == nil {
			return nil
		}
		if attempt == writeAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
		}
	}
	return err
}

// computeChunk evaluates eligibility and features for one page of scoring
// inputs, returning the scores/recommendations to write and a count of
// markets skipped (ineligible or non-finite result).
func (e *Engine) computeChunk(ctx context.Context, now time.Time, page []domain.ScoringInput) ([]domain.ScoreSnapshot, []domain.RecommendationSnapshot, int) {
	scores := make([]domain.ScoreSnapshot, 0, len(page))
	recs := make([]domain.RecommendationSnapshot, 0, len(page))
	skipped := 0

	for _, in := range page {
		score, rec, ok := e.scoreOne(ctx, now, in)
		if !ok {
			skipped++
			continue
		}
		scores = append(scores, score)
		recs = append(recs, rec)
	}
	return scores, recs, skipped
}

// scoreOne applies the eligibility gates and feature computation to a
// single market. ok is false when the market fails a gate or produces a
// non-finite result, in which case no row is written and prior snapshots
// are left untouched.
func (e *Engine) scoreOne(ctx context.Context, now time.Time, in domain.ScoringInput) (domain.ScoreSnapshot, domain.RecommendationSnapshot, bool) {
	m := in.Market
	if m.Status != domain.MarketStatusActive {
		return domain.ScoreSnapshot{}, domain.RecommendationSnapshot{}, false
	}
	if m.CloseTime == nil || !m.CloseTime.After(now) {
		return domain.ScoreSnapshot{}, domain.RecommendationSnapshot{}, false
	}
	tRemainingSec := int64(m.CloseTime.Sub(now).Seconds())
	if tRemainingSec < e.cfg.MinTRemainingSec || tRemainingSec > e.cfg.MaxTRemainingSec {
		return domain.ScoreSnapshot{}, domain.RecommendationSnapshot{}, false
	}
	if in.Quote == nil {
		return domain.ScoreSnapshot{}, domain.RecommendationSnapshot{}, false
	}
	stalenessSec := now.Sub(in.Quote.AsOf).Seconds()
	if stalenessSec > float64(e.cfg.QuoteStaleMaxSec) {
		return domain.ScoreSnapshot{}, domain.RecommendationSnapshot{}, false
	}
	if in.Rule == nil {
		return domain.ScoreSnapshot{}, domain.RecommendationSnapshot{}, false
	}

	side, p, bid, ok := e.pickSide(in.Quote)
	if !ok {
		return domain.ScoreSnapshot{}, domain.RecommendationSnapshot{}, false
	}

	feeBps := e.cfg.FeeBpsByVenue[m.Venue]

	grossYield := 1 - p
	fee := p * feeBps / 10_000
	netYield := math.Max(grossYield-fee, 0)
	tDays := math.Max(float64(tRemainingSec)/86_400, minTDays)
	yieldVelocity := netYield / tDays
	stalenessPenalty := clamp(stalenessSec/float64(e.cfg.QuoteStaleMaxSec), 0, 1)

	var spread float64
	if bid == nil {
		spread = 1.0
	} else {
		spread = math.Max(p-*bid, 0)
	}
	liquidityScore := clamp(1-spread/e.cfg.SpreadTarget, 0, 1) * (1 - stalenessPenalty)

	defRisk := in.Rule.DefinitionRiskScore

	normYV := norm(yieldVelocity, e.cfg.NormYieldVelocityLo, e.cfg.NormYieldVelocityHi)
	normNY := norm(netYield, e.cfg.NormNetYieldLo, e.cfg.NormNetYieldHi)

	overall := e.cfg.WeightYieldVelocity*normYV +
		e.cfg.WeightNetYield*normNY +
		e.cfg.WeightLiquidity*liquidityScore -
		e.cfg.WeightDefinitionRisk*defRisk -
		e.cfg.WeightStalenessPenalty*stalenessPenalty
	overall = clamp(overall, 0, 1)

	riskScore := clamp(0.6*defRisk+0.25*(1-liquidityScore)+0.15*stalenessPenalty, 0, 1)

	base := 0.10
	haircut := 1 - riskScore
	liq := 0.5 + 0.5*liquidityScore
	maxPositionPct := clamp(base*haircut*liq, 0.01, 0.10)

	if !allFinite(grossYield, fee, netYield, yieldVelocity, stalenessPenalty, spread, liquidityScore, overall, riskScore, maxPositionPct) {
		e.logger.WarnContext(ctx, "dropping market with non-finite score result", slog.String("market_id", m.ID))
		return domain.ScoreSnapshot{}, domain.RecommendationSnapshot{}, false
	}

	breakdown := domain.ScoreBreakdown{
		GrossYield:          grossYield,
		Fee:                 fee,
		NetYield:            netYield,
		TDays:               tDays,
		YieldVelocity:       yieldVelocity,
		Spread:              spread,
		LiquidityScore:      liquidityScore,
		StalenessSec:        stalenessSec,
		StalenessPenalty:    stalenessPenalty,
		DefinitionRiskScore: defRisk,
		EntryPrice:          p,
		RecommendedSide:     side,
		NormYieldVelocity:   normYV,
		NormNetYield:        normNY,
	}

	score := domain.ScoreSnapshot{
		MarketID:            m.ID,
		AsOf:                now,
		TRemainingSec:       tRemainingSec,
		GrossYield:          grossYield,
		FeeBps:              feeBps,
		NetYield:            netYield,
		YieldVelocity:       yieldVelocity,
		LiquidityScore:      liquidityScore,
		StalenessSec:        stalenessSec,
		StalenessPenalty:    stalenessPenalty,
		DefinitionRiskScore: defRisk,
		OverallScore:        overall,
		Breakdown:           breakdown,
	}

	rec := domain.RecommendationSnapshot{
		MarketID:        m.ID,
		AsOf:            now,
		RecommendedSide: side,
		EntryPrice:      p,
		ExpectedPayout:  1.0,
		MaxPositionPct:  maxPositionPct,
		RiskScore:       riskScore,
		RiskFlags:       in.Rule.RiskFlags,
		Notes: fmt.Sprintf("Yield: %.2f%% | Velocity: %.4f/day | Liquidity: %.2f | Risk: %.2f",
			netYield*100, yieldVelocity, liquidityScore, riskScore),
	}

	return score, rec, true
}

// pickSide selects the side whose ask is higher (i.e. whose implied
// probability of winning is larger), applying the configured tie-break
// policy when both asks fall within TieBreakBandHalfWidth of each other.
// It returns the chosen side, its ask price, and its bid (nil if the venue
// did not quote one).
func (e *Engine) pickSide(q *domain.QuoteSnapshot) (domain.Side, float64, *float64, bool) {
	switch {
	case q.YesAsk != nil && q.NoAsk != nil:
		diff := *q.YesAsk - *q.NoAsk
		if math.Abs(diff) <= e.cfg.TieBreakBandHalfWidth {
			switch e.cfg.TieBreakPolicy {
			case "prefer_yes":
				return domain.SideYes, *q.YesAsk, q.YesBid, true
			case "skip":
				return "", 0, nil, false
			default: // "prefer_no"
				return domain.SideNo, *q.NoAsk, q.NoBid, true
			}
		}
		if *q.YesAsk > *q.NoAsk {
			return domain.SideYes, *q.YesAsk, q.YesBid, true
		}
		return domain.SideNo, *q.NoAsk, q.NoBid, true
	case q.YesAsk != nil:
		return domain.SideYes, *q.YesAsk, q.YesBid, true
	case q.NoAsk != nil:
		return domain.SideNo, *q.NoAsk, q.NoBid, true
	default:
		return "", 0, nil, false
	}
}

func norm(x, lo, hi float64) float64 {
	if hi == lo {
		return 0
	}
	return clamp((x-lo)/(hi-lo), 0, 1)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func allFinite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
