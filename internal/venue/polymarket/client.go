// Package polymarket implements venue.Client against the Polymarket Gamma
// API, adapted from the teacher's read-only market-discovery client.
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/endgamesweep/scanner/internal/domain"
	"github.com/endgamesweep/scanner/internal/venue"
)

const venueName = "polymarket"

// defaultHalfSpread is the synthetic half-spread applied around Gamma's
// point OutcomePrices when a market reports no spread field of its own.
// Gamma has no top-of-book endpoint in this deployment; this is the best
// available proxy for a bid/ask until a CLOB book feed is wired in.
const defaultHalfSpread = 0.01

// Client is a venue.Client backed by the Polymarket Gamma API.
type Client struct {
	baseURL    string
	batchLimit int
	httpClient *http.Client
}

// New creates a Gamma-backed Client. baseURL is the Gamma API root, e.g.
// "https://gamma-api.polymarket.com".
func New(baseURL string, batchLimit int, timeout time.Duration) *Client {
	if batchLimit <= 0 {
		batchLimit = 100
	}
	return &Client{
		baseURL:    baseURL,
		batchLimit: batchLimit,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name implements venue.Client.
func (c *Client) Name() string { return venueName }

// Discover implements venue.Client using Gamma's offset pagination; cursor
// is the decimal string offset to resume from.
func (c *Client) Discover(ctx context.Context, cursor string) (venue.Page, error) {
	offset := 0
	if cursor != "" {
		o, err := strconv.Atoi(cursor)
		if err != nil {
			return venue.Page{}, venue.NewPermanentError("discover: parse cursor", err)
		}
		offset = o
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(c.batchLimit))
	params.Set("offset", strconv.Itoa(offset))

	body, err := c.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return venue.Page{}, err
	}

	var raw []gammaMarket
	if err := json.Unmarshal(body, &raw); err != nil {
		return venue.Page{}, venue.NewPermanentError("discover: decode markets", err)
	}

	now := time.Now()
	page := venue.Page{
		Markets:  make([]domain.Market, 0, len(raw)),
		Outcomes: make([]domain.Outcome, 0, len(raw)*2),
	}
	for i := range raw {
		page.Markets = append(page.Markets, raw[i].toDomainMarket(now))
		page.Outcomes = append(page.Outcomes, raw[i].toDomainOutcomes()...)
	}
	if len(raw) == c.batchLimit {
		page.NextCursor = strconv.Itoa(offset + len(raw))
	}
	return page, nil
}

// Quotes implements venue.Client. Gamma has no bulk-by-ID endpoint in this
// deployment, so each distinct market is fetched individually, mirroring the
// teacher's single-market GetMarket call.
func (c *Client) Quotes(ctx context.Context, outcomes []domain.Outcome) ([]domain.QuoteSnapshot, error) {
	seen := make(map[string]bool, len(outcomes))
	var marketIDs []string
	for _, o := range outcomes {
		if !seen[o.MarketID] {
			seen[o.MarketID] = true
			marketIDs = append(marketIDs, o.MarketID)
		}
	}

	quotes := make([]domain.QuoteSnapshot, 0, len(marketIDs))
	for _, id := range marketIDs {
		m, err := c.getMarket(ctx, id)
		if err != nil {
			if venue.IsTransient(err) {
				return nil, err
			}
			// A single missing/malformed market does not fail the whole
			// poll; it is simply omitted from this tick's quotes.
			continue
		}
		q, ok := deriveQuote(&m)
		if !ok {
			continue
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

// Rule implements venue.Client, returning Gamma's free-text market
// description as the resolution rule.
func (c *Client) Rule(ctx context.Context, marketID string) (string, time.Time, error) {
	m, err := c.getMarket(ctx, marketID)
	if err != nil {
		return "", time.Time{}, err
	}
	editedAt := time.Time{}
	if t, err := time.Parse(time.RFC3339, m.UpdatedAt); err == nil {
		editedAt = t
	}
	return m.Description, editedAt, nil
}

func (c *Client) getMarket(ctx context.Context, id string) (gammaMarket, error) {
	body, err := c.doGet(ctx, "/markets/"+url.PathEscape(id))
	if err != nil {
		return gammaMarket{}, err
	}
	var m gammaMarket
	if err := json.Unmarshal(body, &m); err != nil {
		return gammaMarket{}, venue.NewPermanentError("get market", err)
	}
	return m, nil
}

// deriveQuote synthesizes a bid/ask quote from Gamma's point OutcomePrices
// and reported spread, since Gamma exposes no top-of-book in this
// deployment. YES and NO are complementary: mid_no = 1 - mid_yes.
func deriveQuote(m *gammaMarket) (domain.QuoteSnapshot, bool) {
	mid, ok := m.yesMidPrice()
	if !ok {
		return domain.QuoteSnapshot{}, false
	}
	half := defaultHalfSpread
	if m.SpreadBenefitBasisPts > 0 {
		half = (m.SpreadBenefitBasisPts / 10_000) / 2
	}

	yesBid := clamp01(mid - half)
	yesAsk := clamp01(mid + half)
	noMid := 1 - mid
	noBid := clamp01(noMid - half)
	noAsk := clamp01(noMid + half)

	return domain.NewQuoteSnapshot(m.ID, time.Now(), &yesBid, &yesAsk, &noBid, &noAsk, venueName), true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, venue.NewPermanentError("build request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, venue.NewTransientError(fmt.Sprintf("GET %s", path), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, venue.NewTransientError("read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, venue.NewHTTPError(fmt.Sprintf("GET %s", path), resp.StatusCode, string(body))
	}
	return body, nil
}

var _ venue.Client = (*Client)(nil)
