package ops

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/siakad/templar/internal/config"
	"github.com/siakad/templar/internal/detect"
	"github.com/siakad/templar/internal/errors"
	"github.com/siakad/templar/internal/pattern"
)

// NewMatcher builds the field matcher from configuration: the pattern library
// file (or the built-in library), signature places, program examples and time zone.
func NewMatcher(cfg *config.Config, logger *zap.Logger) (*detect.Matcher, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	lib, err := pattern.Load(cfg.PatternsFile)
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot load pattern library: %v", err))
	}

	opts := []detect.Option{
		detect.WithLogger(logger),
		detect.WithLocation(cfg.Location()),
	}
	if len(cfg.SignaturePlaces) > 0 {
		opts = append(opts, detect.WithPlaces(cfg.SignaturePlaces))
	}
	if len(cfg.ProgramExamples) > 0 {
		opts = append(opts, detect.WithProgramExamples(cfg.ProgramExamples))
	}
	return detect.NewMatcher(lib, opts...), nil
}

// DetectInput contains parameters for the Detect operation.
// Text runs detection over ad-hoc text instead of a stored template.
type DetectInput struct {
	ID            string
	Name          string
	Text          string
	VariablesOnly bool    // keep only fields judged variable
	MinConfidence float64 // drop fields below this confidence
}

// DetectOutput contains the detected fields and a per-type summary.
type DetectOutput struct {
	TemplateID    string                 `json:"template_id,omitempty"`
	Fields        []detect.DetectedField `json:"fields"`
	Summary       detect.Summary         `json:"summary"`
	PatternErrors []string               `json:"pattern_errors,omitempty"`
}

// Detect runs the matcher over a template's raw text.
func Detect(ctx context.Context, database *sql.DB, matcher *detect.Matcher, input DetectInput) (*DetectOutput, error) {
	if matcher == nil {
		return nil, errors.NewInternal(fmt.Errorf("matcher is not configured"))
	}
	if input.MinConfidence < 0 || input.MinConfidence > 1 {
		return nil, errors.NewInvalidRequest("min_confidence must be between 0 and 1")
	}

	out := &DetectOutput{}
	text := input.Text
	if input.ID != "" || input.Name != "" {
		if text != "" {
			return nil, errors.NewInvalidRequest("specify either a template or text, not both")
		}
		t, err := ResolveTemplate(ctx, database, TemplateRef{ID: input.ID, Name: input.Name})
		if err != nil {
			return nil, err
		}
		out.TemplateID = t.ID
		text = t.RawText
	}

	fields := matcher.Detect(text)
	kept := fields[:0]
	for _, f := range fields {
		if input.VariablesOnly && !f.IsVariable {
			continue
		}
		if f.Confidence < input.MinConfidence {
			continue
		}
		kept = append(kept, f)
	}

	out.Fields = kept
	out.Summary = detect.Summarize(kept)
	for _, pErr := range matcher.PatternErrors() {
		out.PatternErrors = append(out.PatternErrors, pErr.Message)
	}
	return out, nil
}
