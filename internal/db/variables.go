package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/siakad/templar/internal/binding"
	"github.com/siakad/templar/internal/errors"
	"github.com/siakad/templar/internal/tmpl"
)

// LoadVariables returns the saved variable set of a template and its version.
func LoadVariables(ctx context.Context, db *sql.DB, templateID string) (binding.Set, int64, error) {
	var version int64
	err := db.QueryRowContext(ctx, `SELECT variables_version FROM templates WHERE id = ? AND deleted_at IS NULL`, templateID).Scan(&version)
	if err == sql.ErrNoRows {
		return nil, 0, errors.NewNotFound(templateID)
	}
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, key, label, type, text_content, start_index, end_index
		FROM template_variables
		WHERE template_id = ?`, templateID)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	set := binding.Set{}
	for rows.Next() {
		var (
			v   binding.TemplateVariable
			typ string
		)
		if err := rows.Scan(&v.ID, &v.Key, &v.Label, &typ, &v.TextContent, &v.StartIndex, &v.EndIndex); err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		v.Type = binding.VarType(typ)
		set[v.Key] = v
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return set, version, nil
}

// ReplaceVariables stores set as the template's complete variable set.
// expectedVersion must match the stored version, otherwise CONFLICT is
// returned and nothing changes. Returns the new version.
func ReplaceVariables(ctx context.Context, db *sql.DB, templateID string, set binding.Set, expectedVersion int64) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.NewPersistence(err)
	}
	defer func() { _ = tx.Rollback() }()

	var current int64
	err = tx.QueryRowContext(ctx, `SELECT variables_version FROM templates WHERE id = ? AND deleted_at IS NULL`, templateID).Scan(&current)
	if err == sql.ErrNoRows {
		return 0, errors.NewNotFound(templateID)
	}
	if err != nil {
		return 0, errors.NewPersistence(err)
	}
	if current != expectedVersion {
		return 0, errors.NewConflict(fmt.Sprintf("variables changed since version %d (now %d); reopen the session and retry", expectedVersion, current))
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM template_variables WHERE template_id = ?`, templateID); err != nil {
		return 0, errors.NewPersistence(err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO template_variables (template_id, key, id, label, type, text_content, start_index, end_index)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, errors.NewPersistence(err)
	}
	defer stmt.Close()

	for _, key := range set.Keys() {
		v := set[key]
		if _, err := stmt.ExecContext(ctx, templateID, v.Key, v.ID, v.Label, string(v.Type), v.TextContent, v.StartIndex, v.EndIndex); err != nil {
			return 0, errors.NewPersistence(err)
		}
	}

	next := current + 1
	if _, err := tx.ExecContext(ctx, `UPDATE templates SET variables_version = ?, updated_at = ? WHERE id = ?`, next, time.Now().Unix(), templateID); err != nil {
		return 0, errors.NewPersistence(err)
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.NewPersistence(err)
	}
	return next, nil
}

// InsertGenerated records a generated document.
func InsertGenerated(ctx context.Context, db *sql.DB, g *tmpl.Generated) error {
	values, err := json.Marshal(g.Values)
	if err != nil {
		return errors.NewInternal(err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO generated_documents (id, template_id, filename, path, format, bytes, variables_version, values_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.TemplateID, g.Filename, g.Path, g.Format, g.Bytes, g.VariablesVersion, string(values), g.CreatedAt,
	)
	if err != nil {
		return errors.NewPersistence(err)
	}
	return nil
}

// ListGenerated returns the most recent generated documents of a template.
func ListGenerated(ctx context.Context, db *sql.DB, templateID string, limit int) ([]tmpl.Generated, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, template_id, filename, path, format, bytes, variables_version, values_json, created_at
		FROM generated_documents
		WHERE template_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, templateID, limit)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []tmpl.Generated
	for rows.Next() {
		var (
			g      tmpl.Generated
			values string
		)
		if err := rows.Scan(&g.ID, &g.TemplateID, &g.Filename, &g.Path, &g.Format, &g.Bytes, &g.VariablesVersion, &values, &g.CreatedAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		if err := json.Unmarshal([]byte(values), &g.Values); err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}
