package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/endgamesweep/scanner/internal/domain"
	"github.com/endgamesweep/scanner/internal/ingest/ruleq"
	"github.com/endgamesweep/scanner/internal/venue"
)

type fakeDiscoveryVenue struct {
	name  string
	pages map[string]venue.Page
}

func (v *fakeDiscoveryVenue) Name() string { return v.name }
func (v *fakeDiscoveryVenue) Discover(ctx context.Context, cursor string) (venue.Page, error) {
	return v.pages[cursor], nil
}
func (v *fakeDiscoveryVenue) Quotes(ctx context.Context, outcomes []domain.Outcome) ([]domain.QuoteSnapshot, error) {
	return nil, nil
}
func (v *fakeDiscoveryVenue) Rule(ctx context.Context, marketID string) (string, time.Time, error) {
	return "", time.Time{}, nil
}

var _ venue.Client = (*fakeDiscoveryVenue)(nil)

type recordingMarketStore struct {
	noopMarketStore
	upserted []domain.Market
	outcomes []domain.Outcome
}

func (s *recordingMarketStore) UpsertBatch(ctx context.Context, markets []domain.Market) error {
	s.upserted = append(s.upserted, markets...)
	return nil
}

func (s *recordingMarketStore) UpsertOutcomesBatch(ctx context.Context, outcomes []domain.Outcome) error {
	s.outcomes = append(s.outcomes, outcomes...)
	return nil
}

func TestDiscoveryVenuePagesUntilCursorExhausted(t *testing.T) {
	v := &fakeDiscoveryVenue{
		name: "polymarket",
		pages: map[string]venue.Page{
			"": {
				Markets:    []domain.Market{{ID: "m1", Venue: "polymarket"}},
				Outcomes:   []domain.Outcome{{MarketID: "m1", Side: domain.SideYes}},
				NextCursor: "page2",
			},
			"page2": {
				Markets:  []domain.Market{{ID: "m2", Venue: "polymarket"}},
				Outcomes: []domain.Outcome{{MarketID: "m2", Side: domain.SideYes}},
			},
		},
	}
	markets := &recordingMarketStore{}
	q := ruleq.New(10)

	d := NewDiscovery([]venue.Client{v}, markets, q, testLogger())
	d.runOnce(context.Background())

	if len(markets.upserted) != 2 {
		t.Fatalf("expected 2 markets upserted across both pages, got %d", len(markets.upserted))
	}
	if got, want := markets.upserted[0].ID, "m1"; got != want {
		t.Fatalf("expected first market %q, got %q", want, got)
	}
	if got, want := markets.upserted[1].ID, "m2"; got != want {
		t.Fatalf("expected second market %q, got %q", want, got)
	}
	if q.Len() != 2 {
		t.Fatalf("expected one rule-fetch request enqueued per market, got queue len %d", q.Len())
	}
}

func TestDiscoveryVenueStopsOnEmptyPage(t *testing.T) {
	v := &fakeDiscoveryVenue{name: "kalshi", pages: map[string]venue.Page{"": {}}}
	markets := &recordingMarketStore{}
	q := ruleq.New(10)

	d := NewDiscovery([]venue.Client{v}, markets, q, testLogger())
	d.runOnce(context.Background())

	if len(markets.upserted) != 0 {
		t.Fatalf("expected no markets upserted for an empty first page, got %d", len(markets.upserted))
	}
	if q.Len() != 0 {
		t.Fatalf("expected no rule-fetch requests enqueued, got %d", q.Len())
	}
}
