package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MaxBatchSize is the hard cap on rows accepted by any single batch write
// operation exposed by the Persistence Gateway.
const MaxBatchSize = 1000

// MarketStore persists market and outcome metadata. On primary-key
// collision, mutable fields are overwritten and UpdatedAt refreshed.
type MarketStore interface {
	UpsertBatch(ctx context.Context, markets []Market) error
	UpsertOutcomesBatch(ctx context.Context, outcomes []Outcome) error
	GetByID(ctx context.Context, venue, id string) (Market, error)
	ListActive(ctx context.Context, opts ListOpts) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// ScoringFilter selects markets for a scoring tick.
type ScoringFilter struct {
	Status      MarketStatus
	CloseBefore *time.Time
	CloseAfter  *time.Time
	Limit       int
	Cursor      string
}

// ScoringInput is one (market, latest quote, latest rule) triple streamed to
// the Scoring Engine. Quote/Rule are nil when no snapshot exists yet.
type ScoringInput struct {
	Market Market
	Quote  *QuoteSnapshot
	Rule   *RuleSnapshot
}

// ScoringInputStore exposes the paged read path used by the Scoring Engine.
// It never returns an unbounded
// collection; callers page via the returned cursor until it is empty.
type ScoringInputStore interface {
	LoadScoringInputs(ctx context.Context, filter ScoringFilter) (page []ScoringInput, nextCursor string, err error)
}

// QuoteStore persists latest quotes and bounded-history samples.
type QuoteStore interface {
	// UpsertLatestBatch writes the latest quote per market. Per market, AsOf
	// is strictly monotonic: an incoming row whose AsOf is not after the
	// stored row's AsOf is dropped silently.
	UpsertLatestBatch(ctx context.Context, quotes []QuoteSnapshot) error
	GetLatest(ctx context.Context, marketID string) (QuoteSnapshot, error)
	// InsertSampleIfAbsent is idempotent on (MarketID, BucketStart).
	InsertSampleIfAbsent(ctx context.Context, sample QuoteSample) error
	// PruneSamples deletes samples whose BucketStart is strictly before
	// olderThan and returns the deleted rows so the caller can archive them.
	PruneSamples(ctx context.Context, olderThan time.Time) ([]QuoteSample, error)
}

// RuleStore persists the latest rule snapshot per market. UpsertLatest
// replaces the row only when RuleHash differs from the stored value;
// otherwise it only touches UpdatedAt.
type RuleStore interface {
	UpsertLatest(ctx context.Context, rule RuleSnapshot) error
	GetLatest(ctx context.Context, marketID string) (RuleSnapshot, error)
}

// ScoreWriter is the combined, same-transaction write path the Scoring
// Engine uses: for any market present in recs_latest after a call, the
// corresponding scores_latest row was written in the same transaction.
type ScoreWriter interface {
	UpsertTick(ctx context.Context, scores []ScoreSnapshot, recs []RecommendationSnapshot) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
