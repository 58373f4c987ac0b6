package domain

import "time"

// ScoreBreakdown mirrors every component that contributed to a ScoreSnapshot,
// persisted alongside it so the overall score can be re-derived without
// recomputation. Field names match the spec's feature-computation names.
type ScoreBreakdown struct {
	GrossYield          float64
	Fee                 float64
	NetYield            float64
	TDays               float64
	YieldVelocity       float64
	Spread              float64
	LiquidityScore      float64
	StalenessSec        float64
	StalenessPenalty    float64
	DefinitionRiskScore float64
	EntryPrice          float64
	RecommendedSide     Side
	NormYieldVelocity   float64
	NormNetYield        float64
}

// ScoreSnapshot is the latest computed opportunity score for a market.
type ScoreSnapshot struct {
	MarketID            string
	AsOf                time.Time
	TRemainingSec       int64
	GrossYield          float64
	FeeBps              float64
	NetYield            float64
	YieldVelocity       float64
	LiquidityScore      float64
	StalenessSec        float64
	StalenessPenalty    float64
	DefinitionRiskScore float64
	OverallScore        float64
	Breakdown           ScoreBreakdown
}

// RecommendationSnapshot is the latest sizing recommendation for a market
// that passed eligibility in the scoring tick that produced it.
type RecommendationSnapshot struct {
	MarketID        string
	AsOf            time.Time
	RecommendedSide Side
	EntryPrice      float64
	ExpectedPayout  float64
	MaxPositionPct  float64
	RiskScore       float64
	RiskFlags       []RiskFlag
	Notes           string
}
