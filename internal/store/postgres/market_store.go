package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/endgamesweep/scanner/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `venue, market_id, title, category, status,
	open_time, close_time, resolved_time, url, created_at, updated_at`

// UpsertBatch inserts or updates multiple markets in a single batch operation.
// Rows are capped at domain.MaxBatchSize per call.
func (s *MarketStore) UpsertBatch(ctx context.Context, markets []domain.Market) error {
	if len(markets) == 0 {
		return nil
	}
	if len(markets) > domain.MaxBatchSize {
		return fmt.Errorf("postgres: upsert markets: %w", domain.ErrBatchTooLarge)
	}

	const query = `
		INSERT INTO markets (
			venue, market_id, title, category, status,
			open_time, close_time, resolved_time, url, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, NOW(), NOW()
		)
		ON CONFLICT (venue, market_id) DO UPDATE SET
			title         = EXCLUDED.title,
			category      = EXCLUDED.category,
			status        = EXCLUDED.status,
			open_time     = EXCLUDED.open_time,
			close_time    = EXCLUDED.close_time,
			resolved_time = EXCLUDED.resolved_time,
			url           = EXCLUDED.url,
			updated_at    = NOW()`

	batch := &pgx.Batch{}
	for _, m := range markets {
		batch.Queue(query,
			m.Venue, m.ID, m.Title, m.Category, string(m.Status),
			m.OpenTime, m.CloseTime, m.ResolvedTime, m.URL,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range markets {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert market batch item %d: %w", i, err)
		}
	}
	return nil
}

// UpsertOutcomesBatch inserts or updates the YES/NO token mappings for a
// batch of outcomes. Rows are capped at domain.MaxBatchSize per call.
func (s *MarketStore) UpsertOutcomesBatch(ctx context.Context, outcomes []domain.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	if len(outcomes) > domain.MaxBatchSize {
		return fmt.Errorf("postgres: upsert outcomes: %w", domain.ErrBatchTooLarge)
	}

	const query = `
		INSERT INTO outcomes (market_id, side, token_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (market_id, side) DO UPDATE SET
			token_id = EXCLUDED.token_id`

	batch := &pgx.Batch{}
	for _, o := range outcomes {
		batch.Queue(query, o.MarketID, string(o.Side), o.TokenID)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range outcomes {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert outcome batch item %d: %w", i, err)
		}
	}
	return nil
}

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var status string
	err := row.Scan(
		&m.Venue, &m.ID, &m.Title, &m.Category, &status,
		&m.OpenTime, &m.CloseTime, &m.ResolvedTime, &m.URL,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Status = domain.MarketStatus(status)
	return m, nil
}

// GetByID retrieves a market by its (venue, market_id) primary key.
func (s *MarketStore) GetByID(ctx context.Context, venue, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE venue = $1 AND market_id = $2`, venue, id)
	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s/%s: %w", venue, id, err)
	}
	return m, nil
}

// ListActive returns active markets with pagination and optional time filtering.
func (s *MarketStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE status = 'active'`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY close_time ASC NULLS LAST"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		var m domain.Market
		var status string
		if err := rows.Scan(
			&m.Venue, &m.ID, &m.Title, &m.Category, &status,
			&m.OpenTime, &m.CloseTime, &m.ResolvedTime, &m.URL,
			&m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan active market: %w", err)
		}
		m.Status = domain.MarketStatus(status)
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list active markets rows: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets in the database.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
