package validation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPipeline(t *testing.T, cfg *Config) *Pipeline {
	t.Helper()
	p, err := NewPipeline(cfg, nil)
	require.NoError(t, err)
	return p
}

func TestPipeline_PassingContent(t *testing.T) {
	p := newTestPipeline(t, nil)
	result := p.Validate(context.Background(),
		"According to the source payload, the order ships on Friday.", nil)

	assert.True(t, result.Passed)
	assert.Equal(t, "validation passed", result.Message)
	assert.Empty(t, result.Errors)
	assert.InDelta(t, 0.9, result.Confidence, 0.001)
}

func TestPipeline_GamingGateBeatsHighGroundedness(t *testing.T) {
	p := newTestPipeline(t, nil)

	// Well-hedged, cited text that still contains filler: the gaming gate
	// must reject it regardless of the groundedness score.
	content := "According to the design doc this is correct. " +
		"I'm not sure about the rest. lorem ipsum dolor sit amet."
	result := p.Validate(context.Background(), content, nil)

	assert.False(t, result.Passed)
	assert.Equal(t, ProtocolGaming, result.Protocol)
	assert.GreaterOrEqual(t, result.Confidence, 0.9, "groundedness score stays high")
	assert.NotEmpty(t, result.Errors)
	assert.NotEmpty(t, result.Suggestions)
}

func TestPipeline_GroundednessFailureTagged(t *testing.T) {
	p := newTestPipeline(t, nil)
	result := p.Validate(context.Background(),
		"This is definitely correct and will never fail.", nil)

	assert.False(t, result.Passed)
	assert.Equal(t, ProtocolGroundedness, result.Protocol)
}

func TestPipeline_CombinedFailureTagged(t *testing.T) {
	p := newTestPipeline(t, nil)
	result := p.Validate(context.Background(),
		"This is definitely correct and will never fail. lorem ipsum.", nil)

	assert.False(t, result.Passed)
	assert.Equal(t, ProtocolCombined, result.Protocol)
}

func TestPipeline_CustomRulesFile(t *testing.T) {
	dir := t.TempDir()
	rulesPath := filepath.Join(dir, "rules.toml")
	rulesToml := `
[[rules]]
pattern = 'REDACTED-OUTPUT'
category = "fake_content"
severity = "critical"
remediation = "Produce the real output"
`
	require.NoError(t, os.WriteFile(rulesPath, []byte(rulesToml), 0600))

	p := newTestPipeline(t, &Config{RulesPath: rulesPath})

	// Custom rule applies.
	result := p.Validate(context.Background(), "here is REDACTED-OUTPUT", nil)
	assert.False(t, result.Passed)
	assert.Equal(t, ProtocolGaming, result.Protocol)

	// Built-in rules are replaced, not merged.
	result = p.Validate(context.Background(), "lorem ipsum dolor", nil)
	assert.True(t, result.Passed)
}

func TestLoadRules_Invalid(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadRules(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.toml")
	require.NoError(t, os.WriteFile(empty, []byte(""), 0600))
	_, err = LoadRules(empty)
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[[rules]]\npattern = '(unclosed'\n"), 0600))
	_, err = LoadRules(bad)
	assert.Error(t, err)
}
