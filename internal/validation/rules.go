// Package validation scores worker output for trustworthiness and detects
// gamed or placeholder results.
//
// Two independent checks are combined into a single verdict:
//
//   - the groundedness check scores free-form text for overconfident
//     claims versus cited or appropriately hedged statements
//   - the gaming check scans for stub, mock, or filler content
//     masquerading as genuine output
//
// Gaming rules are data, not control flow: each is a (pattern, category,
// severity, remediation) tuple compiled at construction, so individual
// rules are unit-testable and the set is extensible from a TOML file
// without touching the checkers.
package validation

import (
	"fmt"
	"regexp"

	"github.com/BurntSushi/toml"
)

// Severity grades a rule violation.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// severityWeight is each violation's contribution to the gaming score.
var severityWeight = map[Severity]float64{
	SeverityCritical: 0.3,
	SeverityError:    0.2,
	SeverityWarning:  0.1,
}

// Category groups gaming rules by what they detect.
type Category string

const (
	CategoryFakeContent    Category = "fake_content"
	CategoryStubResponse   Category = "stub_response"
	CategoryGamingKeywords Category = "gaming_keywords"
)

// Rule is a single gaming-detection pattern.
type Rule struct {
	// Pattern is a case-insensitive regular expression.
	Pattern string `toml:"pattern"`

	// Exclude optionally names a pattern whose matches suppress
	// overlapping Pattern matches (e.g. "mock up" is not gaming).
	Exclude string `toml:"exclude,omitempty"`

	Category    Category `toml:"category"`
	Severity    Severity `toml:"severity"`
	Remediation string   `toml:"remediation"`

	re        *regexp.Regexp
	excludeRe *regexp.Regexp
}

func (r *Rule) compile() error {
	re, err := regexp.Compile("(?i)" + r.Pattern)
	if err != nil {
		return fmt.Errorf("rule %q: %w", r.Pattern, err)
	}
	r.re = re
	if r.Exclude != "" {
		ex, err := regexp.Compile("(?i)" + r.Exclude)
		if err != nil {
			return fmt.Errorf("rule %q exclude: %w", r.Pattern, err)
		}
		r.excludeRe = ex
	}
	return nil
}

// DefaultGamingRules returns the built-in gaming rule set.
func DefaultGamingRules() []Rule {
	return []Rule{
		// Fake-content markers: placeholders and filler posing as output.
		{Pattern: `\[placeholder\]`, Category: CategoryFakeContent, Severity: SeverityCritical, Remediation: "Replace placeholder markers with genuine content"},
		{Pattern: `\[TODO\]`, Category: CategoryFakeContent, Severity: SeverityCritical, Remediation: "Complete the marked section instead of leaving a TODO marker"},
		{Pattern: `\[insert .* here\]`, Category: CategoryFakeContent, Severity: SeverityCritical, Remediation: "Fill in the bracketed insertion point with real content"},
		{Pattern: `lorem ipsum`, Category: CategoryFakeContent, Severity: SeverityCritical, Remediation: "Remove filler text and write the actual content"},
		{Pattern: `xxx+`, Category: CategoryFakeContent, Severity: SeverityCritical, Remediation: "Replace filler tokens with genuine content"},
		{Pattern: `dummy (data|content|text)`, Category: CategoryFakeContent, Severity: SeverityCritical, Remediation: "Replace dummy values with real data"},

		// Stub-response markers.
		{Pattern: `not implemented`, Category: CategoryStubResponse, Severity: SeverityWarning, Remediation: "Implement the functionality instead of stubbing it"},
		{Pattern: `coming soon`, Category: CategoryStubResponse, Severity: SeverityWarning, Remediation: "Deliver the content rather than deferring it"},
		{Pattern: `\bTBD\b`, Category: CategoryStubResponse, Severity: SeverityWarning, Remediation: "Resolve the open item before submitting"},
		{Pattern: `to be determined`, Category: CategoryStubResponse, Severity: SeverityWarning, Remediation: "Resolve the open item before submitting"},
		{Pattern: `work in progress`, Category: CategoryStubResponse, Severity: SeverityWarning, Remediation: "Finish the work before submitting"},

		// Gaming keywords as standalone words.
		{Pattern: `\bfake\b`, Category: CategoryGamingKeywords, Severity: SeverityWarning, Remediation: "Replace fake content with a real implementation"},
		{Pattern: `\bmock\b`, Exclude: `\bmock up\b`, Category: CategoryGamingKeywords, Severity: SeverityWarning, Remediation: "Replace mock output with a real result"},
		{Pattern: `\bstub\b`, Category: CategoryGamingKeywords, Severity: SeverityWarning, Remediation: "Replace the stub with working content"},
		{Pattern: `\bplaceholder\b`, Category: CategoryGamingKeywords, Severity: SeverityWarning, Remediation: "Replace the placeholder with genuine content"},
	}
}

// rulesFile is the on-disk TOML shape for custom rule sets.
type rulesFile struct {
	Rules []Rule `toml:"rules"`
}

// LoadRules reads a gaming rule set from a TOML file and compiles it.
func LoadRules(path string) ([]Rule, error) {
	var rf rulesFile
	if _, err := toml.DecodeFile(path, &rf); err != nil {
		return nil, fmt.Errorf("failed to load rules file %s: %w", path, err)
	}
	if len(rf.Rules) == 0 {
		return nil, fmt.Errorf("rules file %s defines no rules", path)
	}
	for i := range rf.Rules {
		if rf.Rules[i].Severity == "" {
			rf.Rules[i].Severity = SeverityWarning
		}
		if err := rf.Rules[i].compile(); err != nil {
			return nil, err
		}
	}
	return rf.Rules, nil
}

// compileRules compiles a rule slice in place.
func compileRules(rules []Rule) ([]Rule, error) {
	for i := range rules {
		if err := rules[i].compile(); err != nil {
			return nil, err
		}
	}
	return rules, nil
}
