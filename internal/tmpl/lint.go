package tmpl

import (
	"strings"

	"github.com/siakad/templar/internal/binding"
	"github.com/siakad/templar/internal/generate"
)

// LintResult reports mismatches between a template's text and its variables.
type LintResult struct {
	Valid bool `json:"valid"`

	// UnboundTokens are {{key}} tokens already in the text with no variable.
	UnboundTokens []string `json:"unbound_tokens,omitempty"`

	// MissingTexts are variable keys whose text no longer occurs in the raw text.
	MissingTexts []string `json:"missing_texts,omitempty"`

	// UnplacedTexts are variable keys whose text occurs in the raw text but
	// has no place in the stored source, so generation cannot fill them.
	UnplacedTexts []string `json:"unplaced_texts,omitempty"`

	// Occurrences counts how often each variable's text occurs.
	Occurrences map[string]int `json:"occurrences"`
}

// Lint checks rawText against vars.
func Lint(rawText string, vars binding.Set) *LintResult {
	result := &LintResult{Valid: true, Occurrences: make(map[string]int, len(vars))}

	for _, key := range generate.Tokens(rawText) {
		if _, ok := vars[key]; !ok {
			result.UnboundTokens = append(result.UnboundTokens, key)
		}
	}

	for _, key := range vars.Keys() {
		n := strings.Count(rawText, vars[key].TextContent)
		if vars[key].TextContent == "" {
			n = 0
		}
		result.Occurrences[key] = n
		if n == 0 {
			result.MissingTexts = append(result.MissingTexts, key)
		}
	}

	result.Valid = len(result.UnboundTokens) == 0 && len(result.MissingTexts) == 0
	return result
}

// LintTemplate is Lint over t's raw text, plus a check that every variable
// found in the raw text can also be placed in t's source.
func LintTemplate(t *Template, vars binding.Set) *LintResult {
	result := Lint(t.RawText, vars)

	unplaced, err := t.Unplaced(vars)
	if err != nil {
		return result
	}
	missing := make(map[string]bool, len(result.MissingTexts))
	for _, key := range result.MissingTexts {
		missing[key] = true
	}
	for _, key := range unplaced {
		if !missing[key] {
			result.UnplacedTexts = append(result.UnplacedTexts, key)
		}
	}
	result.Valid = result.Valid && len(result.UnplacedTexts) == 0
	return result
}

// Unplaced returns the keys of vars that Fill cannot place in t's source.
func (t *Template) Unplaced(vars binding.Set) ([]string, error) {
	switch t.SourceKind {
	case KindDocx:
		return generate.UnmatchedDocx(t.Source, vars)
	case KindMarkdown:
		return generate.Unmatched(generate.TemplatizeMarkdown(string(t.Source), vars), vars), nil
	default:
		return generate.Unmatched(generate.Templatize(string(t.Source), vars), vars), nil
	}
}

// Fill substitutes values for vars in t's source and returns the document
// bytes. It fails with INVALID_REQUEST when a variable cannot be placed.
func (t *Template) Fill(vars binding.Set, values map[string]string) ([]byte, error) {
	switch t.SourceKind {
	case KindDocx:
		return generate.FillDocx(t.Source, vars, values)
	case KindMarkdown:
		out, err := generate.FillMarkdown(string(t.Source), vars, values)
		return []byte(out), err
	default:
		out, err := generate.FillText(string(t.Source), vars, values)
		return []byte(out), err
	}
}
