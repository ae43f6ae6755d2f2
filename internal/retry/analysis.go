package retry

import "github.com/fyrsmithlabs/taskd/internal/validation"

// FailureAnalysis classifies a failing attempt by its protocol tag.
type FailureAnalysis struct {
	PrimaryCause string `json:"primary_cause"`
	Severity     string `json:"severity"`
}

// analysisByProtocol is the fixed classification table.
var analysisByProtocol = map[validation.Protocol]FailureAnalysis{
	validation.ProtocolGaming: {
		PrimaryCause: "gaming pattern detected",
		Severity:     "critical",
	},
	validation.ProtocolGroundedness: {
		PrimaryCause: "truth/confidence violation",
		Severity:     "high",
	},
	validation.ProtocolCombined: {
		PrimaryCause: "multiple protocol violations",
		Severity:     "high",
	},
}

// analyzeFailure looks up the (primaryCause, severity) pair for a
// protocol; unknown tags classify as unknown/medium.
func analyzeFailure(p validation.Protocol) FailureAnalysis {
	if a, ok := analysisByProtocol[p]; ok {
		return a
	}
	return FailureAnalysis{PrimaryCause: "unknown", Severity: "medium"}
}

// suggestionTable holds protocol-specific remediation hints.
var suggestionTable = map[validation.Protocol][]string{
	validation.ProtocolGroundedness: {
		"Increase confidence by citing sources",
		"Replace assumptions with verified facts",
		"Add explicit uncertainty statements where unsure",
		"Remove superlatives and overconfident language",
	},
	validation.ProtocolGaming: {
		"Remove mock or placeholder content and produce real output",
		"Implement actual logic instead of stubs",
		"Do not disable or skip validation to force a pass",
	},
}

// suggestionsFor returns remediation hints for a protocol tag.
func suggestionsFor(p validation.Protocol) []string {
	if s, ok := suggestionTable[p]; ok {
		return append([]string(nil), s...)
	}
	if p == validation.ProtocolCombined {
		out := append([]string(nil), suggestionTable[validation.ProtocolGaming]...)
		return append(out, suggestionTable[validation.ProtocolGroundedness]...)
	}
	return []string{"Run full validation to identify the failing protocol"}
}
