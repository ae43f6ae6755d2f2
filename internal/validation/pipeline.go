package validation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/taskd/internal/validation"

// Protocol tags which check produced a verdict.
type Protocol string

const (
	ProtocolGroundedness Protocol = "groundedness"
	ProtocolGaming       Protocol = "gaming"
	ProtocolCombined     Protocol = "combined"
)

// Result is the combined verdict emitted by the pipeline.
type Result struct {
	Passed      bool     `json:"passed"`
	Protocol    Protocol `json:"protocol"`
	Message     string   `json:"message"`
	Errors      []string `json:"errors"`
	Suggestions []string `json:"suggestions"`
	Confidence  float64  `json:"confidence"`
}

// Config configures the validation pipeline.
type Config struct {
	// MinConfidence is the minimum groundedness score for a valid
	// verdict (default 0.7).
	MinConfidence float64

	// RulesPath optionally names a TOML file overriding the built-in
	// gaming rule set.
	RulesPath string
}

// Pipeline combines the groundedness and gaming checks into a single
// pass/fail + confidence + remediation verdict.
type Pipeline struct {
	grounded *GroundednessChecker
	gaming   *GamingChecker
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewPipeline creates a pipeline. cfg may be nil for defaults; logger may
// be nil.
func NewPipeline(cfg *Config, logger *zap.Logger) (*Pipeline, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var rules []Rule
	if cfg.RulesPath != "" {
		loaded, err := LoadRules(cfg.RulesPath)
		if err != nil {
			return nil, err
		}
		rules = loaded
	}

	gaming, err := NewGamingChecker(rules)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		grounded: NewGroundednessChecker(cfg.MinConfidence),
		gaming:   gaming,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
	}, nil
}

// Validate runs both checks over content. refCtx optionally supplies the
// reference context for the groundedness consistency cross-check.
//
// The verdict passes only when the groundedness check is valid AND the
// gaming check found nothing; the gaming gate takes precedence regardless
// of an otherwise-high groundedness score.
func (p *Pipeline) Validate(ctx context.Context, content string, refCtx map[string]any) Result {
	_, span := p.tracer.Start(ctx, "validation.validate")
	defer span.End()

	grounded := p.grounded.Check(content, refCtx)
	gaming := p.gaming.Check(content)

	var errs, suggestions []string

	if !grounded.Valid {
		errs = append(errs, grounded.Issues...)
		if grounded.Overconfident {
			suggestions = append(suggestions, "Remove unverified claims or add citations")
		}
		if grounded.Score < DefaultMinScore {
			suggestions = append(suggestions, "State uncertainty explicitly instead of guessing")
		}
	}

	if gaming.IsGaming {
		for _, v := range gaming.Violations {
			errs = append(errs, v.Type+": "+v.Explanation)
			suggestions = append(suggestions, v.Remediation)
		}
	}

	result := Result{
		Passed:      grounded.Valid && !gaming.IsGaming,
		Protocol:    protocolFor(grounded.Valid, gaming.IsGaming),
		Errors:      errs,
		Suggestions: suggestions,
		Confidence:  grounded.Score,
	}
	if result.Passed {
		result.Message = "validation passed"
	} else {
		result.Message = "validation failed"
	}

	span.SetAttributes(
		attribute.Bool("validation.passed", result.Passed),
		attribute.String("validation.protocol", string(result.Protocol)),
		attribute.Float64("validation.confidence", result.Confidence))

	p.logger.Debug("validation verdict",
		zap.Bool("passed", result.Passed),
		zap.String("protocol", string(result.Protocol)),
		zap.Float64("confidence", result.Confidence),
		zap.Int("errors", len(result.Errors)))

	return result
}

// protocolFor tags the verdict with the check that failed it; a verdict
// failed by both (or failed by neither) carries the combined tag.
func protocolFor(groundedValid, isGaming bool) Protocol {
	switch {
	case !groundedValid && isGaming:
		return ProtocolCombined
	case isGaming:
		return ProtocolGaming
	case !groundedValid:
		return ProtocolGroundedness
	default:
		return ProtocolCombined
	}
}
