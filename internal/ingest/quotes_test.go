package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/endgamesweep/scanner/internal/domain"
	"github.com/endgamesweep/scanner/internal/venue"
)

type fakeQuoteVenue struct {
	name      string
	snapshots []domain.QuoteSnapshot
	calls     int
}

func (v *fakeQuoteVenue) Name() string { return v.name }
func (v *fakeQuoteVenue) Discover(ctx context.Context, cursor string) (venue.Page, error) {
	return venue.Page{}, nil
}
func (v *fakeQuoteVenue) Quotes(ctx context.Context, outcomes []domain.Outcome) ([]domain.QuoteSnapshot, error) {
	v.calls++
	return v.snapshots, nil
}
func (v *fakeQuoteVenue) Rule(ctx context.Context, marketID string) (string, time.Time, error) {
	return "", time.Time{}, nil
}

var _ venue.Client = (*fakeQuoteVenue)(nil)

type marketsByVenueStore struct {
	noopMarketStore
	markets []domain.Market
}

func (s *marketsByVenueStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	return s.markets, nil
}

type fakeQuoteStore struct {
	latest  []domain.QuoteSnapshot
	samples []domain.QuoteSample
}

func (s *fakeQuoteStore) UpsertLatestBatch(ctx context.Context, quotes []domain.QuoteSnapshot) error {
	s.latest = append(s.latest, quotes...)
	return nil
}
func (s *fakeQuoteStore) GetLatest(ctx context.Context, marketID string) (domain.QuoteSnapshot, error) {
	for _, q := range s.latest {
		if q.MarketID == marketID {
			return q, nil
		}
	}
	return domain.QuoteSnapshot{}, domain.ErrNotFound
}
func (s *fakeQuoteStore) InsertSampleIfAbsent(ctx context.Context, sample domain.QuoteSample) error {
	s.samples = append(s.samples, sample)
	return nil
}
func (s *fakeQuoteStore) PruneSamples(ctx context.Context, olderThan time.Time) ([]domain.QuoteSample, error) {
	return nil, nil
}

func TestQuotePollerFiltersMarketsByVenue(t *testing.T) {
	yesAsk := 0.62
	v := &fakeQuoteVenue{
		name: "polymarket",
		snapshots: []domain.QuoteSnapshot{
			{MarketID: "m1", AsOf: time.Now(), YesAsk: &yesAsk},
		},
	}
	markets := &marketsByVenueStore{markets: []domain.Market{
		{ID: "m1", Venue: "polymarket"},
		{ID: "m2", Venue: "kalshi"},
	}}
	quotes := &fakeQuoteStore{}

	p := NewQuotePoller([]venue.Client{v}, markets, quotes, nil, testLogger())
	if err := p.pollVenue(context.Background(), v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if v.calls != 1 {
		t.Fatalf("expected exactly one Quotes call, got %d", v.calls)
	}
	if len(quotes.latest) != 1 {
		t.Fatalf("expected one latest quote written, got %d", len(quotes.latest))
	}
	if len(quotes.samples) != 1 {
		t.Fatalf("expected one bucketed sample written, got %d", len(quotes.samples))
	}
}

func TestQuotePollerSkipsVenueWithNoActiveMarkets(t *testing.T) {
	v := &fakeQuoteVenue{name: "kalshi"}
	markets := &marketsByVenueStore{markets: []domain.Market{
		{ID: "m1", Venue: "polymarket"},
	}}
	quotes := &fakeQuoteStore{}

	p := NewQuotePoller([]venue.Client{v}, markets, quotes, nil, testLogger())
	if err := p.pollVenue(context.Background(), v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if v.calls != 0 {
		t.Fatalf("expected no Quotes call when venue has no active markets, got %d", v.calls)
	}
	if len(quotes.latest) != 0 {
		t.Fatalf("expected no quotes written, got %d", len(quotes.latest))
	}
}
