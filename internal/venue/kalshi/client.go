// Package kalshi implements venue.Client against the Kalshi exchange API,
// adapted from the teacher's RSA-signed REST client.
package kalshi

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/endgamesweep/scanner/internal/domain"
	"github.com/endgamesweep/scanner/internal/venue"
)

const venueName = "kalshi"

// Client is a venue.Client backed by the Kalshi exchange REST API.
type Client struct {
	baseURL    string
	apiKeyID   string
	privateKey *rsa.PrivateKey
	batchLimit int
	httpClient *http.Client
}

// New creates an RSA-signed Kalshi Client. baseURL is the API root, e.g.
// "https://api.elections.kalshi.com/trade-api/v2". privateKeyPEM is the
// PEM-encoded RSA private key backing apiKeyID.
func New(baseURL, apiKeyID string, privateKeyPEM []byte, batchLimit int, timeout time.Duration) (*Client, error) {
	key, err := parsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("kalshi: %w", err)
	}
	if batchLimit <= 0 {
		batchLimit = 100
	}
	return &Client{
		baseURL:    baseURL,
		apiKeyID:   apiKeyID,
		privateKey: key,
		batchLimit: batchLimit,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func parsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in private key")
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("expected RSA private key, got %T", key)
		}
		return rsaKey, nil
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// Name implements venue.Client.
func (c *Client) Name() string { return venueName }

// Discover implements venue.Client using Kalshi's opaque cursor pagination.
func (c *Client) Discover(ctx context.Context, cursor string) (venue.Page, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(c.batchLimit))
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	body, err := c.doSignedRequest(ctx, http.MethodGet, "/markets?"+params.Encode(), nil)
	if err != nil {
		return venue.Page{}, err
	}

	var resp marketsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return venue.Page{}, venue.NewPermanentError("discover: decode markets", err)
	}

	now := time.Now()
	page := venue.Page{
		Markets:    make([]domain.Market, 0, len(resp.Markets)),
		Outcomes:   make([]domain.Outcome, 0, len(resp.Markets)*2),
		NextCursor: resp.Cursor,
	}
	for i := range resp.Markets {
		page.Markets = append(page.Markets, resp.Markets[i].toDomainMarket(now))
		page.Outcomes = append(page.Outcomes, resp.Markets[i].toDomainOutcomes()...)
	}
	return page, nil
}

// Quotes implements venue.Client, fetching each distinct market ticker
// individually since Kalshi has no bulk-by-ticker lookup.
func (c *Client) Quotes(ctx context.Context, outcomes []domain.Outcome) ([]domain.QuoteSnapshot, error) {
	seen := make(map[string]bool, len(outcomes))
	var tickers []string
	for _, o := range outcomes {
		if !seen[o.MarketID] {
			seen[o.MarketID] = true
			tickers = append(tickers, o.MarketID)
		}
	}

	now := time.Now()
	quotes := make([]domain.QuoteSnapshot, 0, len(tickers))
	for _, ticker := range tickers {
		m, err := c.getMarket(ctx, ticker)
		if err != nil {
			if venue.IsTransient(err) {
				return nil, err
			}
			continue
		}
		quotes = append(quotes, m.toQuoteSnapshot(now))
	}
	return quotes, nil
}

// Rule implements venue.Client, joining Kalshi's primary and secondary rule
// text sections.
func (c *Client) Rule(ctx context.Context, marketID string) (string, time.Time, error) {
	m, err := c.getMarket(ctx, marketID)
	if err != nil {
		return "", time.Time{}, err
	}
	// The market payload carries no rule-edit timestamp, so editedAt is the
	// zero value.
	return m.ruleText(), time.Time{}, nil
}

func (c *Client) getMarket(ctx context.Context, ticker string) (wireMarket, error) {
	path := "/markets/" + url.PathEscape(ticker)
	body, err := c.doSignedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return wireMarket{}, err
	}
	var resp marketResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return wireMarket{}, venue.NewPermanentError("get market", err)
	}
	return resp.Market, nil
}

func (c *Client) doSignedRequest(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, venue.NewPermanentError("marshal request body", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, venue.NewPermanentError("build request", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if err := c.signRequest(req, method, path); err != nil {
		return nil, venue.NewPermanentError("sign request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, venue.NewTransientError(fmt.Sprintf("%s %s", method, path), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, venue.NewTransientError("read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr errorResponse
		_ = json.Unmarshal(respBody, &apiErr)
		return nil, venue.NewHTTPError(fmt.Sprintf("%s %s", method, path), resp.StatusCode, apiErr.Message)
	}
	return respBody, nil
}

// signRequest adds Kalshi's RSA-PSS-SHA256 authentication headers, signing
// timestamp + method + path.
func (c *Client) signRequest(req *http.Request, method, path string) error {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	message := ts + method + path

	hash := sha256.Sum256([]byte(message))
	signature, err := rsa.SignPSS(rand.Reader, c.privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return fmt.Errorf("RSA sign: %w", err)
	}

	req.Header.Set("KALSHI-ACCESS-KEY", c.apiKeyID)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", base64.StdEncoding.EncodeToString(signature))
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	return nil
}

var _ venue.Client = (*Client)(nil)
