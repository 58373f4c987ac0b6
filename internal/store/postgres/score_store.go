package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/endgamesweep/scanner/internal/domain"
)

// ScoreStore implements domain.ScoreWriter using PostgreSQL. It writes the
// score and recommendation rows for a tick inside a single transaction so
// that a recs_latest row is never observed without its matching
// scores_latest row.
type ScoreStore struct {
	pool *pgxpool.Pool
}

// NewScoreStore creates a new ScoreStore backed by the given connection pool.
func NewScoreStore(pool *pgxpool.Pool) *ScoreStore {
	return &ScoreStore{pool: pool}
}

const upsertScoreQuery = `
	INSERT INTO scores_latest (
		market_id, as_of, t_remaining_sec, gross_yield, fee_bps, net_yield,
		yield_velocity, liquidity_score, staleness_sec, staleness_penalty,
		definition_risk_score, overall_score, breakdown
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
	)
	ON CONFLICT (market_id) DO UPDATE SET
		as_of                 = EXCLUDED.as_of,
		t_remaining_sec       = EXCLUDED.t_remaining_sec,
		gross_yield           = EXCLUDED.gross_yield,
		fee_bps               = EXCLUDED.fee_bps,
		net_yield             = EXCLUDED.net_yield,
		yield_velocity        = EXCLUDED.yield_velocity,
		liquidity_score       = EXCLUDED.liquidity_score,
		staleness_sec         = EXCLUDED.staleness_sec,
		staleness_penalty     = EXCLUDED.staleness_penalty,
		definition_risk_score = EXCLUDED.definition_risk_score,
		overall_score         = EXCLUDED.overall_score,
		breakdown             = EXCLUDED.breakdown`

const upsertRecQuery = `
	INSERT INTO recs_latest (
		market_id, as_of, recommended_side, entry_price, expected_payout,
		max_position_pct, risk_score, risk_flags, notes
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9
	)
	ON CONFLICT (market_id) DO UPDATE SET
		as_of            = EXCLUDED.as_of,
		recommended_side = EXCLUDED.recommended_side,
		entry_price      = EXCLUDED.entry_price,
		expected_payout  = EXCLUDED.expected_payout,
		max_position_pct = EXCLUDED.max_position_pct,
		risk_score       = EXCLUDED.risk_score,
		risk_flags       = EXCLUDED.risk_flags,
		notes            = EXCLUDED.notes`

// UpsertTick writes scores and recs for one scoring tick in a single
// transaction: for any market present in recs_latest after this call
// returns, the corresponding scores_latest row was written in the same
// transaction.
func (s *ScoreStore) UpsertTick(ctx context.Context, scores []domain.ScoreSnapshot, recs []domain.RecommendationSnapshot) error {
	if len(scores) == 0 && len(recs) == 0 {
		return nil
	}
	if len(scores) > domain.MaxBatchSize || len(recs) > domain.MaxBatchSize {
		return fmt.Errorf("postgres: upsert tick: %w", domain.ErrBatchTooLarge)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: upsert tick begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	scoreBatch := &pgx.Batch{}
	for _, sc := range scores {
		breakdownJSON, err := json.Marshal(sc.Breakdown)
		if err != nil {
			return fmt.Errorf("postgres: marshal score breakdown %s: %w", sc.MarketID, err)
		}
		scoreBatch.Queue(upsertScoreQuery,
			sc.MarketID, sc.AsOf, sc.TRemainingSec, sc.GrossYield, sc.FeeBps, sc.NetYield,
			sc.YieldVelocity, sc.LiquidityScore, sc.StalenessSec, sc.StalenessPenalty,
			sc.DefinitionRiskScore, sc.OverallScore, breakdownJSON,
		)
	}
	if scoreBatch.Len() > 0 {
		br := tx.SendBatch(ctx, scoreBatch)
		for i := 0; i < scoreBatch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("postgres: upsert score batch item %d: %w", i, err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("postgres: close score batch: %w", err)
		}
	}

	recBatch := &pgx.Batch{}
	for _, r := range recs {
		flagsJSON, err := json.Marshal(r.RiskFlags)
		if err != nil {
			return fmt.Errorf("postgres: marshal rec risk flags %s: %w", r.MarketID, err)
		}
		recBatch.Queue(upsertRecQuery,
			r.MarketID, r.AsOf, string(r.RecommendedSide), r.EntryPrice, r.ExpectedPayout,
			r.MaxPositionPct, r.RiskScore, flagsJSON, r.Notes,
		)
	}
	if recBatch.Len() > 0 {
		br := tx.SendBatch(ctx, recBatch)
		for i := 0; i < recBatch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("postgres: upsert rec batch item %d: %w", i, err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("postgres: close rec batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: upsert tick commit: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.ScoreWriter = (*ScoreStore)(nil)
