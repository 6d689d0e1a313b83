package ops

import (
	"context"
	"database/sql"

	"github.com/siakad/templar/internal/db"
	"github.com/siakad/templar/internal/tmpl"
)

// HistoryInput contains parameters for the History operation.
type HistoryInput struct {
	ID    string
	Name  string
	Limit int // default: 20, max: 100
}

// HistoryOutput lists documents generated from a template, newest first.
type HistoryOutput struct {
	TemplateID string           `json:"template_id"`
	Items      []tmpl.Generated `json:"items"`
}

// History returns the generation records of a template.
func History(ctx context.Context, database *sql.DB, input HistoryInput) (*HistoryOutput, error) {
	t, err := ResolveTemplate(ctx, database, TemplateRef{ID: input.ID, Name: input.Name})
	if err != nil {
		return nil, err
	}

	items, err := db.ListGenerated(ctx, database, t.ID, clampLimit(input.Limit, DefaultHistoryLimit, MaxHistoryLimit))
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []tmpl.Generated{}
	}

	return &HistoryOutput{TemplateID: t.ID, Items: items}, nil
}
