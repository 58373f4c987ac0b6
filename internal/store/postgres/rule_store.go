package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/endgamesweep/scanner/internal/domain"
)

// RuleStore implements domain.RuleStore using PostgreSQL.
type RuleStore struct {
	pool *pgxpool.Pool
}

// NewRuleStore creates a new RuleStore backed by the given connection pool.
func NewRuleStore(pool *pgxpool.Pool) *RuleStore {
	return &RuleStore{pool: pool}
}

// UpsertLatest replaces the stored rule row only when RuleHash differs from
// the stored value; otherwise it only touches UpdatedAt.
func (s *RuleStore) UpsertLatest(ctx context.Context, rule domain.RuleSnapshot) error {
	flagsJSON, err := json.Marshal(rule.RiskFlags)
	if err != nil {
		return fmt.Errorf("postgres: marshal risk flags for %s: %w", rule.MarketID, err)
	}

	const query = `
		INSERT INTO rules_latest (
			market_id, as_of, rule_text, rule_hash,
			settlement_source, settlement_window, definition_risk_score,
			risk_flags, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW()
		)
		ON CONFLICT (market_id) DO UPDATE SET
			as_of                 = CASE WHEN rules_latest.rule_hash <> EXCLUDED.rule_hash THEN EXCLUDED.as_of ELSE rules_latest.as_of END,
			rule_text             = CASE WHEN rules_latest.rule_hash <> EXCLUDED.rule_hash THEN EXCLUDED.rule_text ELSE rules_latest.rule_text END,
			rule_hash             = CASE WHEN rules_latest.rule_hash <> EXCLUDED.rule_hash THEN EXCLUDED.rule_hash ELSE rules_latest.rule_hash END,
			settlement_source     = CASE WHEN rules_latest.rule_hash <> EXCLUDED.rule_hash THEN EXCLUDED.settlement_source ELSE rules_latest.settlement_source END,
			settlement_window     = CASE WHEN rules_latest.rule_hash <> EXCLUDED.rule_hash THEN EXCLUDED.settlement_window ELSE rules_latest.settlement_window END,
			definition_risk_score = CASE WHEN rules_latest.rule_hash <> EXCLUDED.rule_hash THEN EXCLUDED.definition_risk_score ELSE rules_latest.definition_risk_score END,
			risk_flags            = CASE WHEN rules_latest.rule_hash <> EXCLUDED.rule_hash THEN EXCLUDED.risk_flags ELSE rules_latest.risk_flags END,
			updated_at            = NOW()`

	_, err = s.pool.Exec(ctx, query,
		rule.MarketID, rule.AsOf, rule.RuleText, rule.RuleHash,
		rule.SettlementSource, rule.SettlementWindow, rule.DefinitionRiskScore,
		flagsJSON,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert rule %s: %w", rule.MarketID, err)
	}
	return nil
}

// GetLatest retrieves the latest rule snapshot for a market.
func (s *RuleStore) GetLatest(ctx context.Context, marketID string) (domain.RuleSnapshot, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT market_id, as_of, rule_text, rule_hash,
			settlement_source, settlement_window, definition_risk_score,
			risk_flags, created_at, updated_at
		FROM rules_latest WHERE market_id = $1`, marketID)

	var rule domain.RuleSnapshot
	var flagsJSON []byte
	err := row.Scan(
		&rule.MarketID, &rule.AsOf, &rule.RuleText, &rule.RuleHash,
		&rule.SettlementSource, &rule.SettlementWindow, &rule.DefinitionRiskScore,
		&flagsJSON, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.RuleSnapshot{}, domain.ErrNotFound
		}
		return domain.RuleSnapshot{}, fmt.Errorf("postgres: get latest rule %s: %w", marketID, err)
	}

	if len(flagsJSON) > 0 {
		if err := json.Unmarshal(flagsJSON, &rule.RiskFlags); err != nil {
			return domain.RuleSnapshot{}, fmt.Errorf("postgres: unmarshal risk flags %s: %w", marketID, err)
		}
	}
	return rule, nil
}

// Compile-time interface check.
var _ domain.RuleStore = (*RuleStore)(nil)
