package ops

import (
	"context"
	"database/sql"

	"github.com/siakad/templar/internal/db"
	"github.com/siakad/templar/internal/tmpl"
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	Limit          int // default: 20, max: 100
	Offset         int // default: 0
	IncludeDeleted bool
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Items      []tmpl.Summary `json:"items"`
	Pagination Pagination     `json:"pagination"`
	Sort       string         `json:"sort"`
}

// List retrieves template summaries with pagination.
func List(ctx context.Context, database *sql.DB, input ListInput) (*ListOutput, error) {
	limit := clampLimit(input.Limit, DefaultListLimit, MaxListLimit)
	offset := max(input.Offset, 0)

	summaries, total, err := db.List(ctx, database, limit, offset, input.IncludeDeleted)
	if err != nil {
		return nil, err
	}

	// Ensure we return an empty array rather than nil
	if summaries == nil {
		summaries = []tmpl.Summary{}
	}

	return &ListOutput{
		Items: summaries,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(summaries) < total,
			Total:   total,
		},
		Sort: "updated_at_desc",
	}, nil
}
