package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/endgamesweep/scanner/internal/domain"
)

// QuoteStore implements domain.QuoteStore using PostgreSQL.
type QuoteStore struct {
	pool *pgxpool.Pool
}

// NewQuoteStore creates a new QuoteStore backed by the given connection pool.
func NewQuoteStore(pool *pgxpool.Pool) *QuoteStore {
	return &QuoteStore{pool: pool}
}

// UpsertLatestBatch writes the latest quote per market. Per market, AsOf is
// enforced strictly monotonic via the WHERE clause on the ON CONFLICT arm: an
// incoming row whose AsOf is not after the stored row's AsOf is dropped
// silently.
func (s *QuoteStore) UpsertLatestBatch(ctx context.Context, quotes []domain.QuoteSnapshot) error {
	if len(quotes) == 0 {
		return nil
	}
	if len(quotes) > domain.MaxBatchSize {
		return fmt.Errorf("postgres: upsert quotes: %w", domain.ErrBatchTooLarge)
	}

	const query = `
		INSERT INTO quotes_latest (market_id, as_of, yes_bid, yes_ask, no_bid, no_ask, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (market_id) DO UPDATE SET
			as_of   = EXCLUDED.as_of,
			yes_bid = EXCLUDED.yes_bid,
			yes_ask = EXCLUDED.yes_ask,
			no_bid  = EXCLUDED.no_bid,
			no_ask  = EXCLUDED.no_ask,
			source  = EXCLUDED.source
		WHERE quotes_latest.as_of < EXCLUDED.as_of`

	batch := &pgx.Batch{}
	for _, q := range quotes {
		batch.Queue(query, q.MarketID, q.AsOf, q.YesBid, q.YesAsk, q.NoBid, q.NoAsk, q.Source)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range quotes {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert quote batch item %d: %w", i, err)
		}
	}
	return nil
}

// GetLatest retrieves the latest quote snapshot for a market.
func (s *QuoteStore) GetLatest(ctx context.Context, marketID string) (domain.QuoteSnapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT market_id, as_of, yes_bid, yes_ask, no_bid, no_ask, source
		 FROM quotes_latest WHERE market_id = $1`, marketID)

	var q domain.QuoteSnapshot
	err := row.Scan(&q.MarketID, &q.AsOf, &q.YesBid, &q.YesAsk, &q.NoBid, &q.NoAsk, &q.Source)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.QuoteSnapshot{}, domain.ErrNotFound
		}
		return domain.QuoteSnapshot{}, fmt.Errorf("postgres: get latest quote %s: %w", marketID, err)
	}
	q.RecomputeDerived()
	return q, nil
}

// InsertSampleIfAbsent is idempotent on (MarketID, BucketStart).
func (s *QuoteStore) InsertSampleIfAbsent(ctx context.Context, sample domain.QuoteSample) error {
	const query = `
		INSERT INTO quote_samples (market_id, bucket_start, as_of, yes_bid, yes_ask, no_bid, no_ask, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (market_id, bucket_start) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		sample.MarketID, sample.BucketStart, sample.AsOf,
		sample.YesBid, sample.YesAsk, sample.NoBid, sample.NoAsk, "",
	)
	if err != nil {
		return fmt.Errorf("postgres: insert quote sample %s/%s: %w", sample.MarketID, sample.BucketStart, err)
	}
	return nil
}

// PruneSamples deletes samples whose BucketStart is strictly before
// olderThan and returns the deleted rows so the caller can archive them.
func (s *QuoteStore) PruneSamples(ctx context.Context, olderThan time.Time) ([]domain.QuoteSample, error) {
	const query = `
		DELETE FROM quote_samples
		WHERE bucket_start < $1
		RETURNING market_id, bucket_start, as_of, yes_bid, yes_ask, no_bid, no_ask`

	rows, err := s.pool.Query(ctx, query, olderThan)
	if err != nil {
		return nil, fmt.Errorf("postgres: prune quote samples: %w", err)
	}
	defer rows.Close()

	var deleted []domain.QuoteSample
	for rows.Next() {
		var sample domain.QuoteSample
		if err := rows.Scan(
			&sample.MarketID, &sample.BucketStart, &sample.AsOf,
			&sample.YesBid, &sample.YesAsk, &sample.NoBid, &sample.NoAsk,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan pruned quote sample: %w", err)
		}
		deleted = append(deleted, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: prune quote samples rows: %w", err)
	}
	return deleted, nil
}

// Compile-time interface check.
var _ domain.QuoteStore = (*QuoteStore)(nil)
