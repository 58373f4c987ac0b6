package notify

import (
	"context"
	"fmt"

	"github.com/endgamesweep/scanner/internal/domain"
)

// RecommendationAlerter formats and dispatches a best-effort notification
// for recommendations whose overall_score clears a configured threshold. A
// delivery failure never blocks or rolls back the scoring tick that
// produced the recommendation.
type RecommendationAlerter struct {
	notifier        *Notifier
	minOverallScore float64
}

// NewRecommendationAlerter creates a RecommendationAlerter.
func NewRecommendationAlerter(notifier *Notifier, minOverallScore float64) *RecommendationAlerter {
	return &RecommendationAlerter{notifier: notifier, minOverallScore: minOverallScore}
}

// AlertTick fans out one notification per recommendation whose paired score
// clears minOverallScore. Errors are logged by the underlying Notifier and
// never returned to the caller.
func (a *RecommendationAlerter) AlertTick(ctx context.Context, scores []domain.ScoreSnapshot, recs []domain.RecommendationSnapshot) {
	overallByMarket := make(map[string]float64, len(scores))
	for _, s := range scores {
		overallByMarket[s.MarketID] = s.OverallScore
	}

	for _, r := range recs {
		overall, ok := overallByMarket[r.MarketID]
		if !ok || overall < a.minOverallScore {
			continue
		}
		title := fmt.Sprintf("Endgame sweep: %s %s @ %.3f", r.MarketID, r.RecommendedSide, r.EntryPrice)
		message := fmt.Sprintf(
			"overall_score=%.3f risk_score=%.3f max_position_pct=%.3f expected_payout=%.2f",
			overall, r.RiskScore, r.MaxPositionPct, r.ExpectedPayout,
		)
		_ = a.notifier.Notify(ctx, "high_value_recommendation", title, message)
	}
}
