package ops

import (
	"context"
	"crypto/rand"
	"database/sql"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/siakad/templar/internal/db"
	"github.com/siakad/templar/internal/errors"
	"github.com/siakad/templar/internal/tmpl"
)

// Pagination limits
const (
	DefaultListLimit    = 20
	MaxListLimit        = 100
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// TemplateRef addresses a template by ID or by name, never both.
type TemplateRef struct {
	ID   string
	Name string
}

// Validate checks that exactly one addressing mode is used.
func (r TemplateRef) Validate() error {
	id := strings.TrimSpace(r.ID)
	name := strings.TrimSpace(r.Name)

	if id != "" && name != "" {
		return errors.NewInvalidRequest("specify either id or name, not both")
	}
	if id == "" && name == "" {
		return errors.NewInvalidRequest("must specify either id or name")
	}
	if id == "" && tmpl.Normalize(name) == "" {
		return errors.NewInvalidRequest("name must not be empty")
	}
	return nil
}

// ResolveTemplate loads the active template addressed by ref.
func ResolveTemplate(ctx context.Context, database *sql.DB, ref TemplateRef) (*tmpl.Template, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if id := strings.TrimSpace(ref.ID); id != "" {
		return db.GetByID(ctx, database, id, false)
	}
	return db.GetByName(ctx, database, tmpl.Normalize(ref.Name))
}

// clampLimit applies the default and the upper bound to a requested limit.
func clampLimit(limit, def, maxLimit int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, maxLimit)
}

// generateULID generates a new ULID.
func generateULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
