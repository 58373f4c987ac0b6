// Package venue defines the contract every market venue (Polymarket, Kalshi)
// implements, plus the HTTP error classification and retry/breaker wrapping
// shared by their clients.
package venue

import (
	"context"
	"time"

	"github.com/endgamesweep/scanner/internal/domain"
)

// Page is one page of discovered markets plus the per-outcome tokens needed
// to poll quotes for them. An empty NextCursor means the venue has no more
// pages to return for this sweep.
type Page struct {
	Markets    []domain.Market
	Outcomes   []domain.Outcome
	NextCursor string
}

// Client is the contract the Ingestion Orchestrator drives against. Every
// method is expected to already be wrapped in the caller's circuit breaker
// and rate limiter; a Client implementation returns a *Error classifying
// failures so the breaker can distinguish transient from permanent ones.
type Client interface {
	// Name identifies the venue in logs, metrics, and the markets.venue
	// column ("polymarket", "kalshi").
	Name() string

	// Discover returns the next page of markets starting from cursor. An
	// empty cursor starts from the beginning.
	Discover(ctx context.Context, cursor string) (Page, error)

	// Quotes returns the freshest quote per distinct MarketID in outcomes. A
	// market venue data does not currently quote is simply omitted from the
	// result; that is not an error. Both implementations quote by MarketID
	// (Kalshi's ticker, Polymarket's Gamma market ID) and ignore TokenID.
	Quotes(ctx context.Context, outcomes []domain.Outcome) ([]domain.QuoteSnapshot, error)

	// Rule returns the verbatim resolution-rule text for a market, plus the
	// venue-reported timestamp it was last edited (zero value if unknown).
	Rule(ctx context.Context, marketID string) (text string, editedAt time.Time, err error)
}
