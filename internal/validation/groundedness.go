package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultMinScore is the minimum groundedness score required for a valid
// verdict when no override is configured.
const DefaultMinScore = 0.7

// Tier buckets a groundedness score into a confidence level.
type Tier string

const (
	TierHigh      Tier = "high"      // >= 0.95
	TierMedium    Tier = "medium"    // >= 0.70
	TierLow       Tier = "low"       // >= 0.50
	TierUncertain Tier = "uncertain" // below 0.50
)

// overconfidencePatterns flag absolute claims phrased as certainties.
var overconfidencePatterns = compileAll([]string{
	`\b(definitely|certainly|always|never)\b.*\b(will|is|are)\b`,
	`\bI can confirm\b`,
	`\bas (you know|everyone knows)\b`,
	`\bit'?s (obvious|clear) that\b`,
})

// uncertaintyPatterns reward honest hedging.
var uncertaintyPatterns = compileAll([]string{
	`\bI don'?t know\b`,
	`\bI'?m not (sure|certain)\b`,
	`\bI cannot (confirm|verify)\b`,
	`\bthis may (require|need) verification\b`,
	`\bbased on (the provided|available) information\b`,
})

// citationMarkers indicate sourced claims. Plain substrings, matched
// case-insensitively.
var citationMarkers = []string{
	"according to",
	"based on",
	"as stated in",
	"referenced from",
	"source:",
}

func compileAll(patterns []string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		res = append(res, regexp.MustCompile("(?i)"+p))
	}
	return res
}

// GroundednessReport is the outcome of a groundedness check.
type GroundednessReport struct {
	// Valid requires no overconfidence match, a score at or above the
	// configured minimum, and zero issues (including contextual ones).
	Valid bool `json:"valid"`

	Tier  Tier    `json:"tier"`
	Score float64 `json:"score"`

	Issues        []string `json:"issues"`
	Citations     []string `json:"citations"`
	Overconfident bool     `json:"overconfident"`
}

// GroundednessChecker scores text for unverified or overconfident claims
// versus cited or appropriately hedged statements.
type GroundednessChecker struct {
	minScore float64
}

// NewGroundednessChecker creates a checker; minScore <= 0 selects
// DefaultMinScore.
func NewGroundednessChecker(minScore float64) *GroundednessChecker {
	if minScore <= 0 {
		minScore = DefaultMinScore
	}
	return &GroundednessChecker{minScore: minScore}
}

// Check scores content. refCtx optionally supplies a reference context for
// consistency checking: values listed under refCtx["references"] must
// appear in the content (e.g. names or dates from the source payload).
//
// Scoring: start at 0.8; subtract 0.3 on any overconfidence match; add 0.1
// when any citation marker is present; add 0.05 when honest uncertainty is
// expressed; clamp to [0,1].
func (c *GroundednessChecker) Check(content string, refCtx map[string]any) GroundednessReport {
	report := GroundednessReport{}

	for _, re := range overconfidencePatterns {
		if m := re.FindString(content); m != "" {
			report.Issues = append(report.Issues,
				fmt.Sprintf("overconfident/unverified claim detected: %q", m))
			report.Overconfident = true
		}
	}

	lower := strings.ToLower(content)
	for _, marker := range citationMarkers {
		if idx := strings.Index(lower, marker); idx >= 0 {
			report.Citations = append(report.Citations, content[idx:idx+len(marker)])
		}
	}

	hedged := false
	for _, re := range uncertaintyPatterns {
		if re.MatchString(content) {
			hedged = true
			break
		}
	}

	score := 0.8
	if report.Overconfident {
		score -= 0.3
	}
	if len(report.Citations) > 0 {
		score += 0.1
	}
	if hedged {
		score += 0.05
	}
	report.Score = clamp01(score)
	report.Tier = tierFor(report.Score)

	report.Issues = append(report.Issues, contextIssues(lower, refCtx)...)

	report.Valid = !report.Overconfident &&
		report.Score >= c.minScore &&
		len(report.Issues) == 0
	return report
}

// contextIssues cross-checks the content against a supplied reference
// context. The "references" key carries values (names, dates, identifiers
// from the source payload) the output is expected to mention.
func contextIssues(lowerContent string, refCtx map[string]any) []string {
	if refCtx == nil {
		return nil
	}
	refs, ok := refCtx["references"]
	if !ok {
		return nil
	}

	var issues []string
	check := func(v string) {
		if v == "" {
			return
		}
		if !strings.Contains(lowerContent, strings.ToLower(v)) {
			issues = append(issues,
				fmt.Sprintf("referenced value %q from source context not found in output", v))
		}
	}

	switch vals := refs.(type) {
	case []string:
		for _, v := range vals {
			check(v)
		}
	case []any:
		for _, v := range vals {
			if s, ok := v.(string); ok {
				check(s)
			}
		}
	case string:
		check(vals)
	}
	return issues
}

func tierFor(score float64) Tier {
	switch {
	case score >= 0.95:
		return TierHigh
	case score >= 0.70:
		return TierMedium
	case score >= 0.50:
		return TierLow
	default:
		return TierUncertain
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
