// Package retry provides a generic execute → validate → analyze → suggest
// → retry wrapper usable around any task/validation function pair, with
// cross-attempt gaming detection.
package retry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/validation"
)

// highGamingScore is the running-score threshold above which a warning is
// emitted. The warning is advisory; it never aborts the loop by itself.
const highGamingScore = 0.5

// Attempt records one pass through the loop.
type Attempt struct {
	Passed      bool                `json:"passed"`
	Protocol    validation.Protocol `json:"protocol,omitempty"`
	Message     string              `json:"message"`
	Errors      []string            `json:"errors,omitempty"`
	Suggestions []string            `json:"suggestions,omitempty"`
	Attempt     int                 `json:"attempt"`
	Duration    time.Duration       `json:"duration"`
}

// Summary aggregates a loop run.
type Summary struct {
	TotalAttempts   int                         `json:"total_attempts"`
	Passed          int                         `json:"passed"`
	Failed          int                         `json:"failed"`
	TotalDuration   time.Duration               `json:"total_duration"`
	GamingScore     float64                     `json:"gaming_score"`
	ProtocolsFailed map[validation.Protocol]int `json:"protocols_failed"`
	FinalStatus     string                      `json:"final_status"`
}

// Config configures a loop.
type Config struct {
	// MaxRetries is the attempt budget (default 3).
	MaxRetries int

	// GamingDetection enables cross-attempt gaming scoring.
	GamingDetection bool

	// Pause is an optional delay between attempts.
	Pause time.Duration
}

// DefaultConfig returns the standard loop configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		GamingDetection: true,
		Pause:           500 * time.Millisecond,
	}
}

// TaskFunc produces an output to validate.
type TaskFunc func(ctx context.Context) (string, error)

// ValidateFunc judges an output.
type ValidateFunc func(output string) validation.Result

// Loop runs a task function under validation with bounded retries.
type Loop struct {
	config      Config
	logger      *zap.Logger
	history     []Attempt
	gamingScore float64
}

// New creates a loop; logger may be nil.
func New(cfg Config, logger *zap.Logger) *Loop {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{config: cfg, logger: logger}
}

// Execute runs up to MaxRetries attempts of task, validating each output.
// It returns the final attempt: the first passing one, or the last failing
// one once the budget is spent. Task errors count as failing attempts and
// are retried like validation failures.
func (l *Loop) Execute(ctx context.Context, task TaskFunc, validate ValidateFunc, name string) Attempt {
	log := l.logger.With(zap.String("task", name))

	for attempt := 1; attempt <= l.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return l.record(Attempt{
				Message:  "context cancelled: " + err.Error(),
				Errors:   []string{err.Error()},
				Attempt:  attempt,
				Duration: 0,
			})
		}

		start := time.Now()
		output, err := task(ctx)
		if err != nil {
			result := l.record(Attempt{
				Message:     "execution fault: " + err.Error(),
				Errors:      []string{err.Error()},
				Suggestions: []string{"Verify the task function and inputs", "Check logs for the failure trace"},
				Attempt:     attempt,
				Duration:    time.Since(start),
			})
			log.Warn("attempt faulted",
				zap.Int("attempt", attempt),
				zap.Error(err))
			if attempt >= l.config.MaxRetries {
				return result
			}
			l.pause(ctx)
			continue
		}

		verdict := validate(output)
		duration := time.Since(start)

		if verdict.Passed {
			result := l.record(Attempt{
				Passed:   true,
				Protocol: verdict.Protocol,
				Message:  "validation passed",
				Attempt:  attempt,
				Duration: duration,
			})
			log.Info("attempt passed", zap.Int("attempt", attempt))
			return result
		}

		analysis := analyzeFailure(verdict.Protocol)
		suggestions := append(suggestionsFor(verdict.Protocol), verdict.Suggestions...)

		if attempt > 1 && l.config.GamingDetection {
			l.detectGaming(verdict, log)
		}

		result := l.record(Attempt{
			Protocol:    verdict.Protocol,
			Message:     verdict.Message,
			Errors:      verdict.Errors,
			Suggestions: suggestions,
			Attempt:     attempt,
			Duration:    duration,
		})
		log.Warn("attempt failed",
			zap.Int("attempt", attempt),
			zap.String("protocol", string(verdict.Protocol)),
			zap.String("primary_cause", analysis.PrimaryCause),
			zap.String("severity", analysis.Severity),
			zap.Int("errors", len(verdict.Errors)))

		if attempt >= l.config.MaxRetries {
			log.Warn("retry budget exhausted, manual intervention required",
				zap.Int("max_retries", l.config.MaxRetries))
			return result
		}
		l.pause(ctx)
	}

	// Unreachable with MaxRetries >= 1; kept for safety.
	return l.history[len(l.history)-1]
}

// History returns all recorded attempts.
func (l *Loop) History() []Attempt {
	return l.history
}

// GamingScore returns the running cross-attempt gaming score.
func (l *Loop) GamingScore() float64 {
	return l.gamingScore
}

// Summarize reports the loop outcome.
func (l *Loop) Summarize() Summary {
	s := Summary{
		TotalAttempts:   len(l.history),
		GamingScore:     l.gamingScore,
		ProtocolsFailed: make(map[validation.Protocol]int),
		FinalStatus:     "failed",
	}
	for _, a := range l.history {
		s.TotalDuration += a.Duration
		if a.Passed {
			s.Passed++
		} else {
			s.Failed++
			if a.Protocol != "" {
				s.ProtocolsFailed[a.Protocol]++
			}
		}
	}
	if n := len(l.history); n > 0 && l.history[n-1].Passed {
		s.FinalStatus = "passed"
	}
	return s
}

// detectGaming compares the current verdict with the previous attempt:
// identical error lists add 0.2 to the running score (the output likely
// was not actually changed), a protocol switch adds 0.1. Above the
// threshold a high-severity warning is emitted.
func (l *Loop) detectGaming(verdict validation.Result, log *zap.Logger) {
	if len(l.history) == 0 {
		return
	}
	prev := l.history[len(l.history)-1]

	if equalErrors(prev.Errors, verdict.Errors) {
		l.gamingScore += 0.2
		log.Warn("gaming detection: identical errors across retries",
			zap.Float64("gaming_score", l.gamingScore))
	}
	if prev.Protocol != verdict.Protocol {
		l.gamingScore += 0.1
		log.Warn("gaming detection: protocol switching",
			zap.Float64("gaming_score", l.gamingScore))
	}

	if l.gamingScore > highGamingScore {
		log.Warn("high gaming score, retries may be gaming the validation loop",
			zap.Float64("gaming_score", l.gamingScore))
	}
}

func (l *Loop) record(a Attempt) Attempt {
	l.history = append(l.history, a)
	return a
}

func (l *Loop) pause(ctx context.Context) {
	if l.config.Pause <= 0 {
		return
	}
	select {
	case <-time.After(l.config.Pause):
	case <-ctx.Done():
	}
}

// equalErrors reports whether two non-empty error lists match exactly.
func equalErrors(a, b []string) bool {
	if len(a) == 0 || len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
