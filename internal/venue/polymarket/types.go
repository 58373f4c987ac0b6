package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/endgamesweep/scanner/internal/domain"
)

// flexBool unmarshals from a JSON bool or the string "true"/"false", since
// the Gamma API has been observed sending "active" as either.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// gammaToken is one outcome token entry inside a Gamma market response.
type gammaToken struct {
	TokenID string `json:"token_id"`
	Outcome string `json:"outcome"`
	Winner  bool   `json:"winner"`
}

// gammaMarket is a market as returned by the Polymarket Gamma API. Gamma has
// no dedicated top-of-book endpoint; OutcomePrices carries only a point
// price per outcome, so Quotes synthesizes a bid/ask spread around it (see
// client.go's deriveQuote).
type gammaMarket struct {
	ID                    string       `json:"id"`
	Question              string       `json:"question"`
	Slug                  string       `json:"slug"`
	ConditionID           string       `json:"condition_id"`
	Description           string       `json:"description"`
	Active                flexBool     `json:"active"`
	Closed                bool         `json:"closed"`
	OutcomePrices         string       `json:"outcomePrices"`
	Tokens                []gammaToken `json:"tokens"`
	EndDateISO            string       `json:"end_date_iso"`
	SpreadBenefitBasisPts float64      `json:"spread"`
	CreatedAt             string       `json:"created_at"`
	UpdatedAt             string       `json:"updated_at"`
}

// toDomainMarket converts a gammaMarket into a domain.Market. Markets
// without a parseable end_date_iso get a nil CloseTime; the scoring engine's
// eligibility gate then excludes them rather than guessing an expiry.
func (m *gammaMarket) toDomainMarket(now time.Time) domain.Market {
	dm := domain.Market{
		ID:        m.ID,
		Venue:     venueName,
		Title:     m.Question,
		Status:    domain.MarketStatusActive,
		URL:       "https://polymarket.com/event/" + m.Slug,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if m.Closed {
		dm.Status = domain.MarketStatusClosed
	} else if !bool(m.Active) {
		dm.Status = domain.MarketStatusClosed
	}
	if t, err := time.Parse(time.RFC3339, m.EndDateISO); err == nil {
		dm.CloseTime = &t
	}
	if t, err := time.Parse(time.RFC3339, m.CreatedAt); err == nil {
		dm.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, m.UpdatedAt); err == nil {
		dm.UpdatedAt = t
	}
	return dm
}

// toDomainOutcomes returns the YES/NO outcome rows for this market, one per
// recognized token.
func (m *gammaMarket) toDomainOutcomes() []domain.Outcome {
	out := make([]domain.Outcome, 0, 2)
	for _, tok := range m.Tokens {
		var side domain.Side
		switch strings.ToLower(tok.Outcome) {
		case "yes":
			side = domain.SideYes
		case "no":
			side = domain.SideNo
		default:
			continue
		}
		out = append(out, domain.Outcome{MarketID: m.ID, Side: side, TokenID: tok.TokenID})
	}
	return out
}

// yesMidPrice parses the YES point price out of the outcomePrices JSON
// array, which Gamma always orders [yesPrice, noPrice].
func (m *gammaMarket) yesMidPrice() (float64, bool) {
	var prices []string
	if err := json.Unmarshal([]byte(m.OutcomePrices), &prices); err != nil || len(prices) == 0 {
		return 0, false
	}
	p, err := strconv.ParseFloat(prices[0], 64)
	if err != nil {
		return 0, false
	}
	return p, true
}
