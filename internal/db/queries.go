package db

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/siakad/templar/internal/errors"
	"github.com/siakad/templar/internal/tmpl"
)

// ErrUniqueConstraint is returned when an insert violates a UNIQUE constraint.
var ErrUniqueConstraint = &errors.TemplarError{
	Code:    "UNIQUE_CONSTRAINT",
	Status:  409,
	Message: "unique constraint violation",
}

const templateColumns = `id, name_raw, name_norm, source_kind, source, raw_text, html,
	variables_version, created_at, updated_at, deleted_at`

// Insert stores a new template.
func Insert(ctx context.Context, db *sql.DB, t *tmpl.Template) error {
	query := `
		INSERT INTO templates (` + templateColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`

	_, err := db.ExecContext(ctx, query,
		t.ID, t.NameRaw, t.NameNorm, string(t.SourceKind), t.Source, t.RawText, t.HTML,
		t.VariablesVersion, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewPersistence(err)
	}
	return nil
}

// Replace soft-deletes the active template oldID and inserts t in one transaction.
func Replace(ctx context.Context, db *sql.DB, oldID string, t *tmpl.Template) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewPersistence(err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `UPDATE templates SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, t.CreatedAt, oldID)
	if err != nil {
		return errors.NewPersistence(err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return errors.NewPersistence(err)
	} else if n == 0 {
		return errors.NewNotFound(oldID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO templates (`+templateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		t.ID, t.NameRaw, t.NameNorm, string(t.SourceKind), t.Source, t.RawText, t.HTML,
		t.VariablesVersion, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewPersistence(err)
	}
	if err := tx.Commit(); err != nil {
		return errors.NewPersistence(err)
	}
	return nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite returns "UNIQUE constraint failed: ..." for unique violations
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetByID retrieves a template by its ULID.
// If includeDeleted is false, soft-deleted templates are excluded.
func GetByID(ctx context.Context, db *sql.DB, id string, includeDeleted bool) (*tmpl.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE id = ?`
	if !includeDeleted {
		query += " AND deleted_at IS NULL"
	}

	t, err := scanTemplate(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return t, nil
}

// GetByName retrieves an active template by normalized name.
func GetByName(ctx context.Context, db *sql.DB, nameNorm string) (*tmpl.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE name_norm = ? AND deleted_at IS NULL`

	t, err := scanTemplate(db.QueryRowContext(ctx, query, nameNorm))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(nameNorm)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return t, nil
}

// CheckNameExists checks if an active template with the given name exists.
func CheckNameExists(ctx context.Context, db *sql.DB, nameNorm string) (bool, error) {
	var exists int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM templates WHERE name_norm = ? AND deleted_at IS NULL LIMIT 1`, nameNorm).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return true, nil
}

// List returns template summaries ordered by most recently updated, with the total count.
func List(ctx context.Context, db *sql.DB, limit, offset int, includeDeleted bool) ([]tmpl.Summary, int, error) {
	where := " WHERE deleted_at IS NULL"
	if includeDeleted {
		where = ""
	}

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM templates` + where).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	query := `SELECT ` + templateColumns + ` FROM templates` + where + `
		ORDER BY updated_at DESC, id DESC
		LIMIT ? OFFSET ?`
	rows, err := db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []tmpl.Summary
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		out = append(out, t.ToSummary())
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return out, total, nil
}

// SoftDelete marks a template as deleted by setting deleted_at.
func SoftDelete(ctx context.Context, db *sql.DB, id string) error {
	now := time.Now().Unix()

	result, err := db.ExecContext(ctx, `UPDATE templates SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, now, id)
	if err != nil {
		return errors.NewPersistence(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewPersistence(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound(id)
	}
	return nil
}

// PurgeDeleted permanently removes soft-deleted templates together with
// their variables and generation records. If olderThanDays is set, only
// templates deleted before that cutoff are removed.
func PurgeDeleted(ctx context.Context, db *sql.DB, olderThanDays *int) (int, error) {
	query := `DELETE FROM templates WHERE deleted_at IS NOT NULL`
	var args []any
	if olderThanDays != nil {
		cutoff := time.Now().Add(-time.Duration(*olderThanDays) * 24 * time.Hour).Unix()
		query += " AND deleted_at < ?"
		args = append(args, cutoff)
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.NewPersistence(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewPersistence(err)
	}
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanTemplate scans a single row into a Template struct.
func scanTemplate(row scanner) (*tmpl.Template, error) {
	var (
		t         tmpl.Template
		kind      string
		deletedAt sql.NullInt64
	)

	err := row.Scan(
		&t.ID, &t.NameRaw, &t.NameNorm, &kind, &t.Source, &t.RawText, &t.HTML,
		&t.VariablesVersion, &t.CreatedAt, &t.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	t.SourceKind = tmpl.SourceKind(kind)
	if deletedAt.Valid {
		t.DeletedAt = &deletedAt.Int64
	}
	return &t, nil
}
