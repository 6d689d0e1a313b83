package ops

import (
	"context"
	"database/sql"

	"github.com/siakad/templar/internal/binding"
	"github.com/siakad/templar/internal/db"
	"github.com/siakad/templar/internal/render"
	"github.com/siakad/templar/internal/tmpl"
)

// PreviewInput contains parameters for the Preview operation.
type PreviewInput struct {
	ID   string
	Name string
}

// PreviewOutput is a stored template ready for display: its preview HTML,
// raw text, saved variables and the HTML with those variables highlighted.
type PreviewOutput struct {
	ID              string                     `json:"id"`
	Name            string                     `json:"name"`
	SourceKind      tmpl.SourceKind            `json:"source_kind"`
	HTML            string                     `json:"html"`
	RawText         string                     `json:"raw_text"`
	VariableMapping []binding.TemplateVariable `json:"variable_mapping"`
	Version         int64                      `json:"version"`
	Highlighted     string                     `json:"highlighted"`
	Lint            *tmpl.LintResult           `json:"lint"`
}

// Preview loads a template with its saved variables.
func Preview(ctx context.Context, database *sql.DB, input PreviewInput) (*PreviewOutput, error) {
	t, err := ResolveTemplate(ctx, database, TemplateRef{ID: input.ID, Name: input.Name})
	if err != nil {
		return nil, err
	}

	set, version, err := db.LoadVariables(ctx, database, t.ID)
	if err != nil {
		return nil, err
	}

	doc := documentOf(t)
	return &PreviewOutput{
		ID:              t.ID,
		Name:            t.NameRaw,
		SourceKind:      t.SourceKind,
		HTML:            t.HTML,
		RawText:         t.RawText,
		VariableMapping: set.Sorted(),
		Version:         version,
		Highlighted:     render.Document(doc, set, render.Options{Mode: render.ModeSelect}),
		Lint:            tmpl.LintTemplate(t, set),
	}, nil
}

func documentOf(t *tmpl.Template) binding.Document {
	return binding.Document{TemplateID: t.ID, RawText: t.RawText, HTML: t.HTML}
}
