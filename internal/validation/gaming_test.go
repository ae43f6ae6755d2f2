package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChecker(t *testing.T) *GamingChecker {
	t.Helper()
	c, err := NewGamingChecker(nil)
	require.NoError(t, err)
	return c
}

func TestGamingCheck_CleanContent(t *testing.T) {
	c := newChecker(t)
	report := c.Check("The invoice is due on the 15th. I verified this against the ledger.")
	assert.False(t, report.IsGaming)
	assert.Empty(t, report.Violations)
	assert.Zero(t, report.Score)
}

func TestGamingCheck_CriticalAlwaysGames(t *testing.T) {
	c := newChecker(t)

	// A single critical match flags gaming even though 0.3 alone does not
	// exceed the threshold.
	report := c.Check("Here is the report. [TODO]")
	require.NotEmpty(t, report.Violations)
	assert.True(t, report.IsGaming)

	var hasCritical bool
	for _, v := range report.Violations {
		if v.Severity == SeverityCritical {
			hasCritical = true
		}
	}
	assert.True(t, hasCritical)
}

func TestGamingCheck_WarningsAccumulate(t *testing.T) {
	c := newChecker(t)

	// Single warning (0.1) stays under the threshold.
	report := c.Check("This part is not implemented.")
	assert.False(t, report.IsGaming)
	assert.InDelta(t, 0.1, report.Score, 0.001)

	// Several warnings push past 0.3.
	report = c.Check("Not implemented, coming soon, TBD, and still a work in progress.")
	assert.True(t, report.IsGaming)
	assert.Greater(t, report.Score, 0.3)
}

func TestGamingCheck_ScoreClamped(t *testing.T) {
	c := newChecker(t)
	report := c.Check(`lorem ipsum dolor [TODO: everything] xxx placeholder text here
not implemented, coming soon, TBD, work in progress, fake stub mock dummy value`)
	assert.True(t, report.IsGaming)
	assert.LessOrEqual(t, report.Score, 1.0)
}

func TestGamingCheck_MockUpExcluded(t *testing.T) {
	c := newChecker(t)

	// "mock up" is legitimate design vocabulary.
	report := c.Check("I prepared a mock up of the landing page for review.")
	for _, v := range report.Violations {
		assert.NotContains(t, v.Content, "mock", "mock up must not trigger the mock rule")
	}

	// A bare "mock" still matches.
	report = c.Check("The service returns mock data for now.")
	assert.NotEmpty(t, report.Violations)
}

func TestGamingCheck_ViolationShape(t *testing.T) {
	c := newChecker(t)
	report := c.Check("lorem ipsum dolor sit amet")
	require.Len(t, report.Violations, 1)

	v := report.Violations[0]
	assert.Equal(t, CategoryFakeContent, v.Category)
	assert.Equal(t, SeverityCritical, v.Severity)
	assert.NotEmpty(t, v.Remediation)
	assert.Contains(t, v.Content, "lorem ipsum")
}
