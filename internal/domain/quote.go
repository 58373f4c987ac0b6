package domain

import "time"

// QuoteSnapshot is the latest known top-of-book quote for a market. Each
// pointer field is nullable; a nil price means the venue did not quote that
// side at AsOf.
type QuoteSnapshot struct {
	MarketID string
	AsOf     time.Time
	YesBid   *float64
	YesAsk   *float64
	NoBid    *float64
	NoAsk    *float64

	// Derived fields. Populated by NewQuoteSnapshot / RecomputeDerived, never
	// set directly from venue data.
	SpreadYes *float64
	SpreadNo  *float64
	MidYes    *float64
	MidNo     *float64

	Source string
}

// NewQuoteSnapshot builds a QuoteSnapshot and fills in its derived spread and
// midpoint fields from the raw bid/ask inputs.
func NewQuoteSnapshot(marketID string, asOf time.Time, yesBid, yesAsk, noBid, noAsk *float64, source string) QuoteSnapshot {
	q := QuoteSnapshot{
		MarketID: marketID,
		AsOf:     asOf,
		YesBid:   yesBid,
		YesAsk:   yesAsk,
		NoBid:    noBid,
		NoAsk:    noAsk,
		Source:   source,
	}
	q.RecomputeDerived()
	return q
}

// RecomputeDerived recomputes SpreadYes/SpreadNo/MidYes/MidNo from the raw
// bid/ask fields. It is idempotent and safe to call after mutating bids/asks
// directly (e.g. when scanning a database row).
func (q *QuoteSnapshot) RecomputeDerived() {
	q.SpreadYes, q.MidYes = spreadAndMid(q.YesBid, q.YesAsk)
	q.SpreadNo, q.MidNo = spreadAndMid(q.NoBid, q.NoAsk)
}

func spreadAndMid(bid, ask *float64) (spread, mid *float64) {
	if bid == nil || ask == nil {
		return nil, nil
	}
	s := *ask - *bid
	m := (*bid + *ask) / 2
	return &s, &m
}

// bucketDuration is the fixed width of a quote-sample history bucket.
const bucketDuration = 5 * time.Minute

// BucketStart returns the 5-minute-aligned bucket start for t, in UTC.
func BucketStart(t time.Time) time.Time {
	t = t.UTC()
	return t.Truncate(bucketDuration)
}

// QuoteSample is one bounded-history sample of a market's quote, keyed by
// (MarketID, BucketStart). At most one row exists per key.
type QuoteSample struct {
	MarketID    string
	BucketStart time.Time
	AsOf        time.Time
	YesBid      *float64
	YesAsk      *float64
	NoBid       *float64
	NoAsk       *float64
}
