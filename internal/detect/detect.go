// Package detect scans raw document text against a pattern library and
// reports candidate template fields with confidence scores and suggestions.
package detect

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/siakad/templar/internal/errors"
	"github.com/siakad/templar/internal/logging"
	"github.com/siakad/templar/internal/pattern"
)

// DetectedField is one match of a library pattern in a document.
// Offsets are byte offsets into the raw text; EndIndex is exclusive.
type DetectedField struct {
	ID          int          `json:"id"`
	Type        pattern.Type `json:"type"`
	Label       string       `json:"label"`
	Value       string       `json:"value"`
	StartIndex  int          `json:"start_index"`
	EndIndex    int          `json:"end_index"`
	IsVariable  bool         `json:"is_variable"`
	Confidence  float64      `json:"confidence"`
	Suggestions []string     `json:"suggestions"`
}

type compiled struct {
	pattern.Pattern
	re *regexp.Regexp
}

// Matcher holds a compiled pattern library. It is safe for concurrent use.
type Matcher struct {
	patterns []compiled
	errs     []*errors.TemplarError
	rules    Rules
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithLogger sets the logger used for pattern warnings.
func WithLogger(l *zap.Logger) Option {
	return func(m *Matcher) { m.logger = logging.OrNop(l) }
}

// WithClock overrides the clock used for "today" suggestions.
func WithClock(now func() time.Time) Option {
	return func(m *Matcher) {
		if now != nil {
			m.now = now
		}
	}
}

// WithPlaces sets the place names that make a signature line variable.
func WithPlaces(places []string) Option {
	return func(m *Matcher) { m.rules.Places = places }
}

// WithProgramExamples sets the program names suggested for field-of-study content.
func WithProgramExamples(examples []string) Option {
	return func(m *Matcher) { m.rules.ProgramExamples = examples }
}

// WithLocation sets the time zone for "today".
func WithLocation(loc *time.Location) Option {
	return func(m *Matcher) {
		if loc != nil {
			m.rules.Location = loc
		}
	}
}

// NewMatcher compiles every pattern in lib once.
// Patterns that fail to compile are logged, recorded and skipped.
func NewMatcher(lib pattern.Library, opts ...Option) *Matcher {
	m := &Matcher{
		rules:  DefaultRules(),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.Named("detect")

	for _, p := range lib.Patterns() {
		re, err := regexp.Compile(p.Matcher)
		if err != nil {
			pErr := errors.NewPatternError(p.Label, err)
			m.errs = append(m.errs, pErr)
			m.logger.Warn("Skipping malformed pattern",
				zap.String("label", p.Label),
				zap.String("type", string(p.Type)),
				zap.Error(err))
			continue
		}
		m.patterns = append(m.patterns, compiled{Pattern: p, re: re})
	}
	return m
}

// PatternErrors returns the patterns rejected at construction.
func (m *Matcher) PatternErrors() []*errors.TemplarError {
	out := make([]*errors.TemplarError, len(m.errs))
	copy(out, m.errs)
	return out
}

// Len returns the number of usable patterns.
func (m *Matcher) Len() int {
	return len(m.patterns)
}

// Rules returns the rule configuration in effect.
func (m *Matcher) Rules() Rules {
	return m.rules
}

// Detect finds every non-overlapping match of every pattern in rawText and
// returns them sorted by StartIndex. Matches from different patterns may overlap.
func (m *Matcher) Detect(rawText string) []DetectedField {
	today := m.now().In(m.rules.Location)

	fields := make([]DetectedField, 0)
	for _, c := range m.patterns {
		found, err := m.scan(c, rawText, today)
		if err != nil {
			m.logger.Warn("Pattern failed during detection",
				zap.String("label", c.Label),
				zap.Error(err))
			continue
		}
		fields = append(fields, found...)
	}

	sort.SliceStable(fields, func(i, j int) bool {
		return fields[i].StartIndex < fields[j].StartIndex
	})
	for i := range fields {
		fields[i].ID = i + 1
	}
	return fields
}

// scan evaluates one pattern; a panic inside it is converted into an error
// so one bad pattern cannot abort the run.
func (m *Matcher) scan(c compiled, rawText string, today time.Time) (out []DetectedField, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = errors.NewPatternError(c.Label, fmt.Errorf("panic: %v", r))
		}
	}()

	for _, loc := range c.re.FindAllStringIndex(rawText, -1) {
		start, end := loc[0], loc[1]
		if start == end {
			continue
		}
		value := rawText[start:end]
		out = append(out, DetectedField{
			Type:        c.Type,
			Label:       c.Label,
			Value:       value,
			StartIndex:  start,
			EndIndex:    end,
			IsVariable:  m.rules.IsVariable(c.Type, value),
			Confidence:  Confidence(c.Pattern, value),
			Suggestions: m.rules.Suggestions(c.Type, value, today),
		})
	}
	return out, nil
}

// Summary counts detected fields.
type Summary struct {
	Total     int                  `json:"total"`
	Variables int                  `json:"variables"`
	ByType    map[pattern.Type]int `json:"by_type"`
}

// Summarize counts fields per type and how many are variable candidates.
func Summarize(fields []DetectedField) Summary {
	s := Summary{Total: len(fields), ByType: make(map[pattern.Type]int)}
	for _, f := range fields {
		s.ByType[f.Type]++
		if f.IsVariable {
			s.Variables++
		}
	}
	return s
}
