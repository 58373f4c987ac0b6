package breaker

import (
	"context"
	"time"

	"github.com/endgamesweep/scanner/internal/config"
	"github.com/endgamesweep/scanner/internal/domain"
	"github.com/endgamesweep/scanner/internal/venue"
)

// wrapped decorates a venue.Client so every method call goes through a
// shared Wrapper's retry and circuit-breaker logic.
type wrapped struct {
	venue.Client
	w *Wrapper
}

// Wrap returns a venue.Client that retries transient failures and trips a
// circuit breaker per cfg, delegating to inner for the actual venue call.
func Wrap(inner venue.Client, cfg config.BreakerConfig) venue.Client {
	return &wrapped{Client: inner, w: New(cfg)}
}

// State reports the current breaker state (0=closed, 1=half-open, 2=open)
// for a client returned by Wrap. ok is false if c was not produced by Wrap.
func State(c venue.Client) (state int, ok bool) {
	w, ok := c.(*wrapped)
	if !ok {
		return 0, false
	}
	return w.w.State(), true
}

func (c *wrapped) Discover(ctx context.Context, cursor string) (venue.Page, error) {
	var page venue.Page
	err := c.w.Call(ctx, func(ctx context.Context) error {
		p, err := c.Client.Discover(ctx, cursor)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	return page, err
}

func (c *wrapped) Quotes(ctx context.Context, outcomes []domain.Outcome) ([]domain.QuoteSnapshot, error) {
	var quotes []domain.QuoteSnapshot
	err := c.w.Call(ctx, func(ctx context.Context) error {
		q, err := c.Client.Quotes(ctx, outcomes)
		if err != nil {
			return err
		}
		quotes = q
		return nil
	})
	return quotes, err
}

func (c *wrapped) Rule(ctx context.Context, marketID string) (string, time.Time, error) {
	var text string
	var editedAt time.Time
	err := c.w.Call(ctx, func(ctx context.Context) error {
		t, e, err := c.Client.Rule(ctx, marketID)
		if err != nil {
			return err
		}
		text, editedAt = t, e
		return nil
	})
	return text, editedAt, err
}
