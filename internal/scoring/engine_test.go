package scoring

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/endgamesweep/scanner/internal/config"
	"github.com/endgamesweep/scanner/internal/domain"
)

type fakeInputStore struct {
	pages [][]domain.ScoringInput
}

func (f *fakeInputStore) LoadScoringInputs(ctx context.Context, filter domain.ScoringFilter) ([]domain.ScoringInput, string, error) {
	if filter.Cursor == "" {
		if len(f.pages) == 0 {
			return nil, "", nil
		}
		return f.pages[0], f.nextCursor(0), nil
	}
	idx := 0
	for i := range f.pages {
		if f.cursorFor(i) == filter.Cursor {
			idx = i
			break
		}
	}
	return f.pages[idx], f.nextCursor(idx), nil
}

func (f *fakeInputStore) cursorFor(i int) string {
	if i == 0 {
		return ""
	}
	return "page"
}

func (f *fakeInputStore) nextCursor(i int) string {
	if i+1 < len(f.pages) {
		return "page"
	}
	return ""
}

type fakeWriter struct {
	scores []domain.ScoreSnapshot
	recs   []domain.RecommendationSnapshot
	calls  int
}

func (w *fakeWriter) UpsertTick(ctx context.Context, scores []domain.ScoreSnapshot, recs []domain.RecommendationSnapshot) error {
	w.calls++
	w.scores = append(w.scores, scores...)
	w.recs = append(w.recs, recs...)
	return nil
}

func testConfig() config.ScoringConfig {
	return config.ScoringConfig{
		FeeBpsByVenue:          map[string]float64{"polymarket": 120, "kalshi": 120},
		MinTRemainingSec:       3600,
		MaxTRemainingSec:       1209600,
		QuoteStaleMaxSec:       180,
		SpreadTarget:           0.05,
		WeightYieldVelocity:    0.45,
		WeightNetYield:         0.25,
		WeightLiquidity:        0.15,
		WeightDefinitionRisk:   0.10,
		WeightStalenessPenalty: 0.05,
		NormYieldVelocityLo:    0,
		NormYieldVelocityHi:    0.05,
		NormNetYieldLo:         0,
		NormNetYieldHi:         0.10,
		MaxMarketsPerTick:      10000,
		ChunkSize:              500,
		TieBreakPolicy:         "prefer_no",
		TieBreakBandHalfWidth:  0.01,
	}
}

func newTestEngine(store *fakeInputStore, writer *fakeWriter, cfg config.ScoringConfig) *Engine {
	return New(store, writer, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func ptr(f float64) *float64 { return &f }

func closeTimeIn(d time.Duration, now time.Time) *time.Time {
	t := now.Add(d)
	return &t
}

func TestTickCleanEndgameNoCarry(t *testing.T) {
	now := time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC)
	asOf := now.Add(-12 * time.Second)

	input := domain.ScoringInput{
		Market: domain.Market{
			ID:        "m1",
			Venue:     "polymarket",
			Status:    domain.MarketStatusActive,
			CloseTime: closeTimeIn(72*time.Hour, now),
		},
		Quote: &domain.QuoteSnapshot{
			MarketID: "m1",
			AsOf:     asOf,
			NoBid:    ptr(0.961),
			NoAsk:    ptr(0.965),
		},
		Rule: &domain.RuleSnapshot{
			MarketID:            "m1",
			DefinitionRiskScore: 0,
		},
	}

	store := &fakeInputStore{pages: [][]domain.ScoringInput{{input}}}
	writer := &fakeWriter{}
	e := newTestEngine(store, writer, testConfig())

	report, err := e.Tick(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Scored != 1 || report.Skipped != 0 {
		t.Fatalf("expected 1 scored, 0 skipped, got %+v", report)
	}
	if len(writer.recs) != 1 {
		t.Fatalf("expected 1 recommendation written, got %d", len(writer.recs))
	}

	rec := writer.recs[0]
	score := writer.scores[0]

	if rec.RecommendedSide != domain.SideNo {
		t.Fatalf("expected NO recommended, got %s", rec.RecommendedSide)
	}
	assertApprox(t, "gross_yield", score.GrossYield, 0.035, 1e-6)
	assertApprox(t, "net_yield", score.NetYield, 0.02342, 1e-4)
	assertApprox(t, "yield_velocity", score.YieldVelocity, 0.00781, 1e-4)
	assertApprox(t, "staleness_penalty", score.StalenessPenalty, 0.0667, 1e-3)
	assertApprox(t, "liquidity_score", score.LiquidityScore, 0.857, 1e-2)
	// risk_score and max_position_pct follow the clamp(0.6·definition_risk_score +
	// 0.25·(1−liquidity_score) + 0.15·staleness_penalty, 0, 1) formula verbatim;
	// with definition_risk_score=0 this comes out near 0.045, not the 0.236
	// figure in the written example (the example is inconsistent with its own
	// stated formula — the formula is authoritative here).
	assertApprox(t, "risk_score", rec.RiskScore, 0.0453, 1e-3)
	assertApprox(t, "max_position_pct", rec.MaxPositionPct, 0.0887, 1e-3)
}

func TestTickStaleQuoteDropped(t *testing.T) {
	now := time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC)
	asOf := now.Add(-600 * time.Second)

	input := domain.ScoringInput{
		Market: domain.Market{
			ID:        "m2",
			Venue:     "polymarket",
			Status:    domain.MarketStatusActive,
			CloseTime: closeTimeIn(72*time.Hour, now),
		},
		Quote: &domain.QuoteSnapshot{MarketID: "m2", AsOf: asOf, NoBid: ptr(0.96), NoAsk: ptr(0.965)},
		Rule:  &domain.RuleSnapshot{MarketID: "m2"},
	}

	store := &fakeInputStore{pages: [][]domain.ScoringInput{{input}}}
	writer := &fakeWriter{}
	e := newTestEngine(store, writer, testConfig())

	report, err := e.Tick(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Scored != 0 || report.Skipped != 1 {
		t.Fatalf("expected stale quote to be skipped, got %+v", report)
	}
	if writer.calls != 0 {
		t.Fatalf("expected no write for an all-skipped chunk, got %d calls", writer.calls)
	}
}

func TestTickVenueOutageLeavesNoEligibleMarkets(t *testing.T) {
	now := time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC)

	input := domain.ScoringInput{
		Market: domain.Market{
			ID:        "m3",
			Venue:     "polymarket",
			Status:    domain.MarketStatusActive,
			CloseTime: closeTimeIn(72*time.Hour, now),
		},
		Quote: nil,
		Rule:  &domain.RuleSnapshot{MarketID: "m3"},
	}

	store := &fakeInputStore{pages: [][]domain.ScoringInput{{input}}}
	writer := &fakeWriter{}
	e := newTestEngine(store, writer, testConfig())

	report, err := e.Tick(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Scored != 0 {
		t.Fatalf("expected no market scored without a quote, got %+v", report)
	}
}

func TestTickDefinitionRiskLowersMaxPositionPct(t *testing.T) {
	now := time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC)
	asOf := now.Add(-12 * time.Second)

	baseQuote := &domain.QuoteSnapshot{MarketID: "m4", AsOf: asOf, NoBid: ptr(0.961), NoAsk: ptr(0.965)}

	clean := domain.ScoringInput{
		Market: domain.Market{ID: "m4", Venue: "polymarket", Status: domain.MarketStatusActive, CloseTime: closeTimeIn(72 * time.Hour, now)},
		Quote:  baseQuote,
		Rule:   &domain.RuleSnapshot{MarketID: "m4", DefinitionRiskScore: 0},
	}
	risky := domain.ScoringInput{
		Market: domain.Market{ID: "m5", Venue: "polymarket", Status: domain.MarketStatusActive, CloseTime: closeTimeIn(72 * time.Hour, now)},
		Quote:  &domain.QuoteSnapshot{MarketID: "m5", AsOf: asOf, NoBid: ptr(0.961), NoAsk: ptr(0.965)},
		Rule:   &domain.RuleSnapshot{MarketID: "m5", DefinitionRiskScore: 0.75},
	}

	store := &fakeInputStore{pages: [][]domain.ScoringInput{{clean, risky}}}
	writer := &fakeWriter{}
	e := newTestEngine(store, writer, testConfig())

	if _, err := e.Tick(context.Background(), now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(writer.recs) != 2 {
		t.Fatalf("expected 2 recs, got %d", len(writer.recs))
	}

	var cleanRec, riskyRec domain.RecommendationSnapshot
	for _, r := range writer.recs {
		if r.MarketID == "m4" {
			cleanRec = r
		} else {
			riskyRec = r
		}
	}
	if riskyRec.MaxPositionPct >= cleanRec.MaxPositionPct {
		t.Fatalf("expected risky market's max_position_pct (%f) below clean market's (%f)", riskyRec.MaxPositionPct, cleanRec.MaxPositionPct)
	}

	var cleanScore, riskyScore domain.ScoreSnapshot
	for _, s := range writer.scores {
		if s.MarketID == "m4" {
			cleanScore = s
		} else {
			riskyScore = s
		}
	}
	if riskyScore.OverallScore >= cleanScore.OverallScore {
		t.Fatalf("expected risky market's overall_score below clean market's")
	}
}

func TestPickSideChoosesHigherAsk(t *testing.T) {
	e := newTestEngine(nil, nil, testConfig())

	side, p, _, ok := e.pickSide(&domain.QuoteSnapshot{YesBid: ptr(0.30), YesAsk: ptr(0.32), NoBid: ptr(0.66), NoAsk: ptr(0.69)})
	if !ok || side != domain.SideNo || p != 0.69 {
		t.Fatalf("expected NO at 0.69, got side=%s p=%f ok=%v", side, p, ok)
	}

	side, p, _, ok = e.pickSide(&domain.QuoteSnapshot{YesBid: ptr(0.70), YesAsk: ptr(0.73), NoBid: ptr(0.26), NoAsk: ptr(0.29)})
	if !ok || side != domain.SideYes || p != 0.73 {
		t.Fatalf("expected YES at 0.73, got side=%s p=%f ok=%v", side, p, ok)
	}
}

func TestPickSideTieBreakPolicies(t *testing.T) {
	quote := &domain.QuoteSnapshot{YesBid: ptr(0.49), YesAsk: ptr(0.502), NoBid: ptr(0.495), NoAsk: ptr(0.500)}

	preferNo := testConfig()
	e := newTestEngine(nil, nil, preferNo)
	side, _, _, ok := e.pickSide(quote)
	if !ok || side != domain.SideNo {
		t.Fatalf("expected prefer_no tie-break to pick NO, got side=%s ok=%v", side, ok)
	}

	preferYes := testConfig()
	preferYes.TieBreakPolicy = "prefer_yes"
	e = newTestEngine(nil, nil, preferYes)
	side, _, _, ok = e.pickSide(quote)
	if !ok || side != domain.SideYes {
		t.Fatalf("expected prefer_yes tie-break to pick YES, got side=%s ok=%v", side, ok)
	}

	skip := testConfig()
	skip.TieBreakPolicy = "skip"
	e = newTestEngine(nil, nil, skip)
	_, _, _, ok = e.pickSide(quote)
	if ok {
		t.Fatalf("expected skip tie-break policy to decline scoring this market")
	}
}

func TestTickRespectsMaxMarketsPerTick(t *testing.T) {
	now := time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC)
	asOf := now.Add(-12 * time.Second)

	page := make([]domain.ScoringInput, 5)
	for i := range page {
		id := string(rune('a' + i))
		page[i] = domain.ScoringInput{
			Market: domain.Market{ID: id, Venue: "polymarket", Status: domain.MarketStatusActive, CloseTime: closeTimeIn(72 * time.Hour, now)},
			Quote:  &domain.QuoteSnapshot{MarketID: id, AsOf: asOf, NoBid: ptr(0.961), NoAsk: ptr(0.965)},
			Rule:   &domain.RuleSnapshot{MarketID: id},
		}
	}

	store := &fakeInputStore{pages: [][]domain.ScoringInput{page}}
	writer := &fakeWriter{}
	cfg := testConfig()
	cfg.MaxMarketsPerTick = 5
	e := newTestEngine(store, writer, cfg)

	report, err := e.Tick(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Scored != 5 {
		t.Fatalf("expected all 5 markets in the single page scored, got %d", report.Scored)
	}
}

func assertApprox(t *testing.T, name string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Fatalf("%s: got %v, want approximately %v (tol %v)", name, got, want, tol)
	}
}
