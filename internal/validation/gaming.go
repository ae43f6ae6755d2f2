package validation

import "fmt"

// gamingThreshold is the aggregate score above which output is rejected
// even without a critical match.
const gamingThreshold = 0.3

// Violation is one detected gaming pattern.
type Violation struct {
	Type        string   `json:"violation_type"`
	Content     string   `json:"content"`
	Category    Category `json:"category"`
	Severity    Severity `json:"severity"`
	Explanation string   `json:"explanation"`
	Remediation string   `json:"remediation"`
}

// GamingReport is the outcome of a gaming check.
type GamingReport struct {
	// IsGaming is true when the aggregate score exceeds the threshold or
	// any single critical-severity rule matched.
	IsGaming   bool        `json:"is_gaming"`
	Violations []Violation `json:"violations"`

	// Score is 0.0 for clean output, 1.0 for heavily gamed output.
	Score float64 `json:"score"`
}

// GamingChecker scans output for stub, mock, and filler content.
type GamingChecker struct {
	rules []Rule
}

// NewGamingChecker creates a checker over the given rule set; a nil or
// empty set selects the built-in rules.
func NewGamingChecker(rules []Rule) (*GamingChecker, error) {
	if len(rules) == 0 {
		rules = DefaultGamingRules()
	}
	compiled, err := compileRules(rules)
	if err != nil {
		return nil, err
	}
	return &GamingChecker{rules: compiled}, nil
}

// Check scans content against every rule. Each matching rule contributes
// one violation; the score is the severity-weighted sum clamped to [0,1].
func (c *GamingChecker) Check(content string) GamingReport {
	report := GamingReport{}

	for i := range c.rules {
		rule := &c.rules[i]
		match := firstMatch(rule, content)
		if match == "" {
			continue
		}
		report.Violations = append(report.Violations, Violation{
			Type:        fmt.Sprintf("GAMING_%s", rule.Category),
			Content:     truncate(match, 100),
			Category:    rule.Category,
			Severity:    rule.Severity,
			Explanation: fmt.Sprintf("gaming pattern detected: %s", rule.Category),
			Remediation: rule.Remediation,
		})
		report.Score += severityWeight[rule.Severity]
	}

	if report.Score > 1.0 {
		report.Score = 1.0
	}

	critical := false
	for _, v := range report.Violations {
		if v.Severity == SeverityCritical {
			critical = true
			break
		}
	}
	report.IsGaming = report.Score > gamingThreshold || critical
	return report
}

// firstMatch returns the first match of the rule's pattern that is not
// covered by its exclude pattern, or "".
func firstMatch(rule *Rule, content string) string {
	locs := rule.re.FindAllStringIndex(content, -1)
	if locs == nil {
		return ""
	}
	if rule.excludeRe == nil {
		return content[locs[0][0]:locs[0][1]]
	}

	excluded := rule.excludeRe.FindAllStringIndex(content, -1)
	for _, loc := range locs {
		covered := false
		for _, ex := range excluded {
			if loc[0] >= ex[0] && loc[1] <= ex[1] {
				covered = true
				break
			}
		}
		if !covered {
			return content[loc[0]:loc[1]]
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
