package ingest

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/endgamesweep/scanner/internal/domain"
	"github.com/endgamesweep/scanner/internal/ingest/ruleq"
	"github.com/endgamesweep/scanner/internal/rulerisk"
	"github.com/endgamesweep/scanner/internal/venue"
)

type fakeRuleVenue struct {
	name string
	text string
	asOf time.Time
}

func (v *fakeRuleVenue) Name() string { return v.name }
func (v *fakeRuleVenue) Discover(ctx context.Context, cursor string) (venue.Page, error) {
	return venue.Page{}, nil
}
func (v *fakeRuleVenue) Quotes(ctx context.Context, outcomes []domain.Outcome) ([]domain.QuoteSnapshot, error) {
	return nil, nil
}
func (v *fakeRuleVenue) Rule(ctx context.Context, marketID string) (string, time.Time, error) {
	return v.text, v.asOf, nil
}

var _ venue.Client = (*fakeRuleVenue)(nil)

type fakeRuleStore struct {
	rows map[string]domain.RuleSnapshot
}

func (s *fakeRuleStore) UpsertLatest(ctx context.Context, rule domain.RuleSnapshot) error {
	if s.rows == nil {
		s.rows = map[string]domain.RuleSnapshot{}
	}
	s.rows[rule.MarketID] = rule
	return nil
}
func (s *fakeRuleStore) GetLatest(ctx context.Context, marketID string) (domain.RuleSnapshot, error) {
	r, ok := s.rows[marketID]
	if !ok {
		return domain.RuleSnapshot{}, domain.ErrNotFound
	}
	return r, nil
}

type fakeLockManager struct{}

func (fakeLockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	return func() {}, nil
}

type noopMarketStore struct{}

func (noopMarketStore) UpsertBatch(ctx context.Context, markets []domain.Market) error    { return nil }
func (noopMarketStore) UpsertOutcomesBatch(ctx context.Context, o []domain.Outcome) error { return nil }
func (noopMarketStore) GetByID(ctx context.Context, venue, id string) (domain.Market, error) {
	return domain.Market{}, domain.ErrNotFound
}
func (noopMarketStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	return nil, nil
}
func (noopMarketStore) Count(ctx context.Context) (int64, error) { return 0, nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRefreshOneExtractsOnNewRule(t *testing.T) {
	v := &fakeRuleVenue{name: "polymarket", text: "This market resolves at our sole discretion.", asOf: time.Now()}
	rules := &fakeRuleStore{}
	q := ruleq.New(10)

	r := NewRuleRefresher(map[string]venue.Client{"polymarket": v}, noopMarketStore{}, rules, fakeLockManager{}, q, time.Minute, 1, testLogger())

	if err := r.refreshOne(context.Background(), ruleq.Request{Venue: "polymarket", MarketID: "m1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, err := rules.GetLatest(context.Background(), "m1")
	if err != nil {
		t.Fatalf("expected stored rule snapshot: %v", err)
	}
	if stored.DefinitionRiskScore == 0 {
		t.Fatalf("expected non-zero definition_risk_score for discretionary text")
	}
	found := false
	for _, f := range stored.RiskFlags {
		if f.Code == "SETTLEMENT_DISCRETION" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected SETTLEMENT_DISCRETION flag, got %#v", stored.RiskFlags)
	}
}

func TestRefreshOneSkipsExtractionWhenRuleUnchanged(t *testing.T) {
	text := "This market resolves YES if the index closes above 6000."
	hash := rulerisk.Hash(text)

	v := &fakeRuleVenue{name: "polymarket", text: text, asOf: time.Now()}
	rules := &fakeRuleStore{rows: map[string]domain.RuleSnapshot{
		"m2": {
			MarketID:            "m2",
			RuleText:            text,
			RuleHash:            hash,
			DefinitionRiskScore: 0.4,
			RiskFlags:           []domain.RiskFlag{{Code: "SENTINEL", Severity: domain.SeverityLow}},
		},
	}}
	q := ruleq.New(10)

	r := NewRuleRefresher(map[string]venue.Client{"polymarket": v}, noopMarketStore{}, rules, fakeLockManager{}, q, time.Minute, 1, testLogger())

	if err := r.refreshOne(context.Background(), ruleq.Request{Venue: "polymarket", MarketID: "m2"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, err := rules.GetLatest(context.Background(), "m2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.DefinitionRiskScore != 0.4 {
		t.Fatalf("expected definition_risk_score preserved at 0.4, got %f", stored.DefinitionRiskScore)
	}
	if len(stored.RiskFlags) != 1 || stored.RiskFlags[0].Code != "SENTINEL" {
		t.Fatalf("expected risk flags preserved unchanged, got %#v", stored.RiskFlags)
	}
}
