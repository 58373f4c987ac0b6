package rulerisk

import "testing"

func TestExtractSettlementDiscretion(t *testing.T) {
	res, err := Extract("This market resolves at our sole discretion based on reported results.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Flags) == 0 {
		t.Fatalf("expected at least one flag")
	}
	found := false
	for _, f := range res.Flags {
		if f.Code == "SETTLEMENT_DISCRETION" {
			found = true
			if len(f.EvidenceSpans) == 0 {
				t.Fatalf("expected evidence spans for SETTLEMENT_DISCRETION")
			}
		}
	}
	if !found {
		t.Fatalf("expected SETTLEMENT_DISCRETION flag, got %#v", res.Flags)
	}
}

func TestExtractCleanText(t *testing.T) {
	text := "This market resolves YES if the S&P 500 closing value on 2026-12-31, as reported by Bloomberg at 16:00:00 ET, is above 6000. Reversals, corrections, or delayed publication by the source within 24 hours will be honored and may change the resolution."
	res, err := Extract(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, f := range res.Flags {
		if f.Code == "SETTLEMENT_DISCRETION" || f.Code == "AMBIGUOUS_SOURCE" || f.Code == "AMBIGUOUS_PARTIAL" {
			t.Fatalf("unexpected flag %s in clean text", f.Code)
		}
	}
}

func TestDefinitionRiskScoreClamped(t *testing.T) {
	text := "At our sole discretion, we may decide based on credible sources and generally accepted reports whether the value will reach, touch, or close above the official threshold, sometime in the evening."
	res, err := Extract(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.DefinitionRiskScore > 1 {
		t.Fatalf("expected score clamped to 1, got %f", res.DefinitionRiskScore)
	}
	if res.DefinitionRiskScore <= 0 {
		t.Fatalf("expected positive score, got %f", res.DefinitionRiskScore)
	}
}

func TestExtractDeterministic(t *testing.T) {
	text := "We may decide in our sole judgment whether the event will reach the threshold."
	a, err := Extract(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Extract(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.DefinitionRiskScore != b.DefinitionRiskScore {
		t.Fatalf("expected deterministic score, got %f and %f", a.DefinitionRiskScore, b.DefinitionRiskScore)
	}
	if len(a.Flags) != len(b.Flags) {
		t.Fatalf("expected deterministic flag count, got %d and %d", len(a.Flags), len(b.Flags))
	}
}

func TestHashStableForSameText(t *testing.T) {
	text := "resolves YES if the measured value exceeds the threshold"
	if Hash(text) != Hash(text) {
		t.Fatalf("expected Hash to be deterministic")
	}
	if Hash(text) == Hash(text+" ") {
		t.Fatalf("expected different text to hash differently")
	}
}
