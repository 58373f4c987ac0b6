package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/endgamesweep/scanner/internal/domain"
)

// ScoringInputStore implements domain.ScoringInputStore using PostgreSQL. It
// joins markets against their latest quote and rule snapshots and pages the
// result via a market_id keyset cursor, never returning an unbounded slice.
type ScoringInputStore struct {
	pool *pgxpool.Pool
}

// NewScoringInputStore creates a new ScoringInputStore backed by the given
// connection pool.
func NewScoringInputStore(pool *pgxpool.Pool) *ScoringInputStore {
	return &ScoringInputStore{pool: pool}
}

// LoadScoringInputs returns one page of (market, latest quote, latest rule)
// triples matching filter, plus the cursor to pass on the next call. An
// empty nextCursor means the caller has reached the end of the result set.
func (s *ScoringInputStore) LoadScoringInputs(ctx context.Context, filter domain.ScoringFilter) ([]domain.ScoringInput, string, error) {
	limit := filter.Limit
	if limit <= 0 || limit > domain.MaxBatchSize {
		limit = domain.MaxBatchSize
	}

	query := `
		SELECT
			m.venue, m.market_id, m.title, m.category, m.status,
			m.open_time, m.close_time, m.resolved_time, m.url, m.created_at, m.updated_at,
			q.market_id, q.as_of, q.yes_bid, q.yes_ask, q.no_bid, q.no_ask, q.source,
			r.market_id, r.as_of, r.rule_text, r.rule_hash,
			r.settlement_source, r.settlement_window, r.definition_risk_score,
			r.risk_flags, r.created_at, r.updated_at
		FROM markets m
		LEFT JOIN quotes_latest q ON q.market_id = m.market_id
		LEFT JOIN rules_latest r ON r.market_id = m.market_id
		WHERE 1=1`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND m.status = $%d", argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.CloseBefore != nil {
		query += fmt.Sprintf(" AND m.close_time < $%d", argIdx)
		args = append(args, *filter.CloseBefore)
		argIdx++
	}
	if filter.CloseAfter != nil {
		query += fmt.Sprintf(" AND m.close_time > $%d", argIdx)
		args = append(args, *filter.CloseAfter)
		argIdx++
	}
	if filter.Cursor != "" {
		query += fmt.Sprintf(" AND m.market_id > $%d", argIdx)
		args = append(args, filter.Cursor)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY m.market_id ASC LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("postgres: load scoring inputs: %w", err)
	}
	defer rows.Close()

	var page []domain.ScoringInput
	for rows.Next() {
		var in domain.ScoringInput
		var status string

		var qMarketID *string
		var quote domain.QuoteSnapshot

		var rMarketID *string
		var rule domain.RuleSnapshot
		var flagsJSON []byte

		if err := rows.Scan(
			&in.Market.Venue, &in.Market.ID, &in.Market.Title, &in.Market.Category, &status,
			&in.Market.OpenTime, &in.Market.CloseTime, &in.Market.ResolvedTime, &in.Market.URL,
			&in.Market.CreatedAt, &in.Market.UpdatedAt,
			&qMarketID, &quote.AsOf, &quote.YesBid, &quote.YesAsk, &quote.NoBid, &quote.NoAsk, &quote.Source,
			&rMarketID, &rule.AsOf, &rule.RuleText, &rule.RuleHash,
			&rule.SettlementSource, &rule.SettlementWindow, &rule.DefinitionRiskScore,
			&flagsJSON, &rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, "", fmt.Errorf("postgres: scan scoring input: %w", err)
		}
		in.Market.Status = domain.MarketStatus(status)

		if qMarketID != nil {
			quote.MarketID = *qMarketID
			quote.RecomputeDerived()
			in.Quote = &quote
		}
		if rMarketID != nil {
			rule.MarketID = *rMarketID
			if len(flagsJSON) > 0 {
				if err := json.Unmarshal(flagsJSON, &rule.RiskFlags); err != nil {
					return nil, "", fmt.Errorf("postgres: unmarshal risk flags %s: %w", *rMarketID, err)
				}
			}
			in.Rule = &rule
		}

		page = append(page, in)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("postgres: load scoring inputs rows: %w", err)
	}

	var nextCursor string
	if len(page) == limit {
		nextCursor = page[len(page)-1].Market.ID
	}
	return page, nextCursor, nil
}

// Compile-time interface check.
var _ domain.ScoringInputStore = (*ScoringInputStore)(nil)
