package kalshi

import (
	"time"

	"github.com/endgamesweep/scanner/internal/domain"
)

// wireMarket is a market as returned by the Kalshi REST API. Unlike Gamma,
// Kalshi reports top-of-book bid/ask directly, so no synthetic spread is
// needed here.
type wireMarket struct {
	Ticker         string  `json:"ticker"`
	Title          string  `json:"title"`
	Status         string  `json:"status"` // "open", "closed", "settled"
	YesBid         float64 `json:"yes_bid"`
	YesAsk         float64 `json:"yes_ask"`
	NoBid          float64 `json:"no_bid"`
	NoAsk          float64 `json:"no_ask"`
	OpenTime       string  `json:"open_time"`
	CloseTime      string  `json:"close_time"`
	Category       string  `json:"category"`
	RulesPrimary   string  `json:"rules_primary"`
	RulesSecondary string  `json:"rules_secondary"`
}

type marketsResponse struct {
	Markets []wireMarket `json:"markets"`
	Cursor  string       `json:"cursor"`
}

type marketResponse struct {
	Market wireMarket `json:"market"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// centsToProb converts a Kalshi cents price (1-99) to a probability in
// [0, 1]. Zero means the venue reported no quote on that side.
func centsToProb(cents float64) *float64 {
	if cents <= 0 {
		return nil
	}
	p := cents / 100
	return &p
}

// toDomainMarket converts a wireMarket into a domain.Market.
func (m *wireMarket) toDomainMarket(now time.Time) domain.Market {
	dm := domain.Market{
		ID:        m.Ticker,
		Venue:     venueName,
		Title:     m.Title,
		Category:  m.Category,
		URL:       "https://kalshi.com/markets/" + m.Ticker,
		CreatedAt: now,
		UpdatedAt: now,
	}
	switch m.Status {
	case "settled", "finalized":
		dm.Status = domain.MarketStatusResolved
	case "closed":
		dm.Status = domain.MarketStatusClosed
	default:
		dm.Status = domain.MarketStatusActive
	}
	if t, err := time.Parse(time.RFC3339, m.OpenTime); err == nil {
		dm.OpenTime = &t
	}
	if t, err := time.Parse(time.RFC3339, m.CloseTime); err == nil {
		dm.CloseTime = &t
	}
	if dm.Status == domain.MarketStatusResolved {
		dm.ResolvedTime = dm.CloseTime
	}
	return dm
}

// toDomainOutcomes returns the fixed YES/NO outcome pair for a Kalshi
// market. Kalshi has no separate token ID per side; the ticker plus side is
// sufficient to identify a leg.
func (m *wireMarket) toDomainOutcomes() []domain.Outcome {
	return []domain.Outcome{
		{MarketID: m.Ticker, Side: domain.SideYes, TokenID: m.Ticker},
		{MarketID: m.Ticker, Side: domain.SideNo, TokenID: m.Ticker},
	}
}

// toQuoteSnapshot converts a wireMarket's top-of-book fields into a
// domain.QuoteSnapshot.
func (m *wireMarket) toQuoteSnapshot(asOf time.Time) domain.QuoteSnapshot {
	return domain.NewQuoteSnapshot(
		m.Ticker, asOf,
		centsToProb(m.YesBid), centsToProb(m.YesAsk),
		centsToProb(m.NoBid), centsToProb(m.NoAsk),
		venueName,
	)
}

// ruleText joins the primary and secondary rule sections the way Kalshi
// presents them on its market detail page.
func (m *wireMarket) ruleText() string {
	if m.RulesSecondary == "" {
		return m.RulesPrimary
	}
	return m.RulesPrimary + "\n\n" + m.RulesSecondary
}
