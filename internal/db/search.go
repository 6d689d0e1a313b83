package db

import (
	"context"
	"database/sql"
	"strings"
	"unicode"

	"github.com/siakad/templar/internal/errors"
	"github.com/siakad/templar/internal/tmpl"
)

// MaxSearchQueryChars caps the length of a search query.
const MaxSearchQueryChars = 500

// Highlight markers placed around matched terms in snippets. Callers escape
// the snippet and turn these into markup.
const (
	SnippetOpen  = "[[[B]]]"
	SnippetClose = "[[[/B]]]"
)

// SearchHit is a matching template with its match context.
type SearchHit struct {
	Summary tmpl.Summary
	Snippet string
}

// Search runs a full-text query over template names and text. Results are
// ranked by BM25 with name matches weighted 5x over body matches.
func Search(ctx context.Context, db *sql.DB, query string, limit, offset int, includeDeleted bool) ([]SearchHit, int, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, 0, nil
	}

	where := ` WHERE templates_fts MATCH ?`
	if !includeDeleted {
		where += ` AND t.deleted_at IS NULL`
	}
	from := ` FROM templates_fts JOIN templates t ON t.id = templates_fts.template_id`

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*)`+from+where, match).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	q := `SELECT t.id, t.name_raw, t.name_norm, t.source_kind, t.source, t.raw_text, t.html,
		t.variables_version, t.created_at, t.updated_at, t.deleted_at,
		snippet(templates_fts, 2, '` + SnippetOpen + `', '` + SnippetClose + `', '...', 24)` +
		from + where + `
		ORDER BY bm25(templates_fts, 0.0, 5.0, 1.0), t.updated_at DESC
		LIMIT ? OFFSET ?`
	rows, err := db.QueryContext(ctx, q, match, limit, offset)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []SearchHit
	for rows.Next() {
		var snippet string
		t, err := scanTemplate(snippetScanner{rows, &snippet})
		if err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		out = append(out, SearchHit{Summary: t.ToSummary(), Snippet: snippet})
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return out, total, nil
}

// snippetScanner appends the snippet column to a template scan.
type snippetScanner struct {
	rows    *sql.Rows
	snippet *string
}

func (s snippetScanner) Scan(dest ...any) error {
	return s.rows.Scan(append(dest, s.snippet)...)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// ftsQuery turns free text into an FTS5 query: every word is quoted so user
// input never reaches the query syntax, and all words must match. A trailing
// * on a word keeps prefix matching.
func ftsQuery(query string) string {
	var terms []string
	for _, word := range strings.Fields(query) {
		prefix := strings.HasSuffix(word, "*")
		word = strings.Trim(word, `*"`)
		if strings.IndexFunc(word, isWordRune) < 0 {
			continue
		}
		term := `"` + strings.ReplaceAll(word, `"`, `""`) + `"`
		if prefix {
			term += "*"
		}
		terms = append(terms, term)
	}
	return strings.Join(terms, " ")
}
