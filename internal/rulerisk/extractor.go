// Package rulerisk extracts settlement-ambiguity risk signals from a
// market's raw resolution-rule text via a fixed set of pattern detectors.
package rulerisk

import (
	"regexp"
	"sort"

	"github.com/endgamesweep/scanner/internal/domain"
)

// detector is one pattern match rule contributing zero or more RiskFlags.
type detector struct {
	code     string
	severity domain.Severity
	pattern  *regexp.Regexp
}

// severityWeight maps a Severity to its contribution toward
// definition_risk_score.
var severityWeight = map[domain.Severity]float64{
	domain.SeverityLow:    0.1,
	domain.SeverityMedium: 0.25,
	domain.SeverityHigh:   0.5,
}

// detectors is the fixed, immutable catalog of pattern rules, built once at
// package init. Every pattern is case-insensitive ("(?i)") and ASCII-safe;
// none of them depend on locale or the current time.
var detectors []detector

func init() {
	detectors = []detector{
		{
			code:     "SETTLEMENT_DISCRETION",
			severity: domain.SeverityHigh,
			pattern:  regexp.MustCompile(`(?i)(at our (sole )?discretion|we may decide|in our sole judgment|our sole judgment)`),
		},
		{
			code:     "AMBIGUOUS_SOURCE",
			severity: domain.SeverityMedium,
			pattern:  regexp.MustCompile(`(?i)(credible sources|generally accepted|widely reported)`),
		},
		{
			code:     "UNCLEAR_TIMESTAMP",
			severity: domain.SeverityMedium,
			pattern:  regexp.MustCompile(`(?i)\b(by (the )?end of (the )?day|sometime (in|on)|around (noon|midnight)|before (the )?deadline)\b`),
		},
		{
			code:     "MISSING_DEFINITION",
			severity: domain.SeverityMedium,
			pattern:  regexp.MustCompile(`(?i)\b(reach(es)?|touch(es)?|close(s)?|official)\b`),
		},
		{
			code:     "AMBIGUOUS_PARTIAL",
			severity: domain.SeverityLow,
			pattern:  regexp.MustCompile(`(?i)\b(reversal|correction|delayed publication|partial data)\b`),
		},
	}
}

// RiskResult is the extractor's output for one piece of rule text.
type RiskResult struct {
	DefinitionRiskScore float64
	Flags               []domain.RiskFlag
}

// Extract runs every detector over ruleText and returns the aggregated risk
// result. It is a pure function: identical input always produces identical
// output, with no clock or randomness involved.
//
// AMBIGUOUS_PARTIAL is inverted from the other detectors: it fires when the
// text does NOT mention any of the reversal/correction/delay terms, since
// its trigger is the absence of that treatment.
func Extract(ruleText string) (RiskResult, error) {
	var flags []domain.RiskFlag

	for _, d := range detectors {
		if d.code == "AMBIGUOUS_PARTIAL" {
			if !d.pattern.MatchString(ruleText) {
				flags = append(flags, domain.RiskFlag{Code: d.code, Severity: d.severity})
			}
			continue
		}
		spans := coalesce(d.pattern.FindAllStringIndex(ruleText, -1))
		if len(spans) == 0 {
			continue
		}
		flags = append(flags, domain.RiskFlag{
			Code:          d.code,
			Severity:      d.severity,
			EvidenceSpans: spans,
		})
	}

	var score float64
	for _, f := range flags {
		score += severityWeight[f.Severity]
	}
	if score > 1 {
		score = 1
	}

	return RiskResult{DefinitionRiskScore: score, Flags: flags}, nil
}

// coalesce merges overlapping or adjacent [start,end) matches from the same
// detector into a minimal set of non-overlapping spans.
func coalesce(matches [][]int) []domain.EvidenceSpan {
	if len(matches) == 0 {
		return nil
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i][0] < matches[j][0] })

	spans := []domain.EvidenceSpan{{Start: matches[0][0], End: matches[0][1]}}
	for _, m := range matches[1:] {
		last := &spans[len(spans)-1]
		if m[0] <= last.End {
			if m[1] > last.End {
				last.End = m[1]
			}
			continue
		}
		spans = append(spans, domain.EvidenceSpan{Start: m[0], End: m[1]})
	}
	return spans
}
