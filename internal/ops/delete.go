package ops

import (
	"context"
	"database/sql"

	"github.com/siakad/templar/internal/db"
)

// DeleteInput contains parameters for the Delete operation.
type DeleteInput struct {
	ID   string
	Name string
}

// DeleteOutput contains the result of the Delete operation.
type DeleteOutput struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

// Delete soft-deletes a template. Its variables and generation history stay
// until the template is purged.
func Delete(ctx context.Context, database *sql.DB, input DeleteInput) (*DeleteOutput, error) {
	t, err := ResolveTemplate(ctx, database, TemplateRef{ID: input.ID, Name: input.Name})
	if err != nil {
		return nil, err
	}

	if err := db.SoftDelete(ctx, database, t.ID); err != nil {
		return nil, err
	}

	return &DeleteOutput{
		Deleted: true,
		ID:      t.ID,
	}, nil
}
