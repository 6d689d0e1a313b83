package ops

import (
	"context"
	"database/sql"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/siakad/templar/internal/db"
	"github.com/siakad/templar/internal/errors"
	"github.com/siakad/templar/internal/tmpl"
)

// Search limits
const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
	MaxQueryLength     = db.MaxSearchQueryChars
	MaxSnippetChars    = 300
)

// SearchInput contains parameters for the Search operation.
type SearchInput struct {
	Query          string // required
	Limit          int    // default: 20, max: 100
	Offset         int    // default: 0
	IncludeDeleted bool
}

// SearchResultItem is a template summary with a match snippet.
type SearchResultItem struct {
	tmpl.Summary
	// Snippet is HTML-safe: template text is escaped; only <b>...</b>
	// highlight tags are present.
	Snippet string `json:"snippet"` // Match context (~300 chars max, <b> highlights)
}

// SearchOutput contains the result of the Search operation.
type SearchOutput struct {
	Items      []SearchResultItem `json:"items"`
	Pagination Pagination         `json:"pagination"`
	Sort       string             `json:"sort"` // "relevance"
}

// Search performs full-text search across template names and text.
// Every word of the query must match; a trailing * matches a prefix.
func Search(ctx context.Context, database *sql.DB, input SearchInput) (*SearchOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, errors.NewMissingField("query")
	}
	if utf8.RuneCountInString(query) > MaxQueryLength {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("query exceeds maximum length of %d characters", MaxQueryLength))
	}

	limit := clampLimit(input.Limit, DefaultSearchLimit, MaxSearchLimit)
	offset := max(input.Offset, 0)

	hits, total, err := db.Search(ctx, database, query, limit, offset, input.IncludeDeleted)
	if err != nil {
		return nil, err
	}

	items := make([]SearchResultItem, len(hits))
	for i, h := range hits {
		// Escape first, then truncate: truncation keeps UTF-8 and <b> tags intact
		snippet := escapeSnippetHTML(h.Snippet)
		snippet = truncateSnippet(snippet, MaxSnippetChars)
		items[i] = SearchResultItem{Summary: h.Summary, Snippet: snippet}
	}

	return &SearchOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(items) < total,
			Total:   total,
		},
		Sort: "relevance",
	}, nil
}

// truncateSnippet truncates a snippet to approximately maxChars while:
// 1. Preserving valid UTF-8 (never splits multi-byte runes)
// 2. Preserving markup integrity (closes any open <b> tags)
// 3. Preferring word boundaries when possible
func truncateSnippet(s string, maxChars int) string {
	if maxChars <= 0 {
		return "..."
	}

	if len(s) <= maxChars {
		return s
	}

	// Find a safe truncation point that doesn't split UTF-8 runes
	truncateAt := maxChars
	for truncateAt > 0 && !utf8.RuneStart(s[truncateAt]) {
		truncateAt--
	}

	if truncateAt == 0 {
		// Edge case: couldn't find a safe point (shouldn't happen with valid UTF-8)
		return "..."
	}

	truncated := s[:truncateAt]

	// Avoid returning malformed HTML by trimming any partial tag/entity suffix.
	// At this point the only tags present should be <b> and </b>, and user content
	// may contain HTML entities (e.g., &lt;).
	if lastLT := strings.LastIndex(truncated, "<"); lastLT != -1 && !strings.Contains(truncated[lastLT:], ">") {
		truncated = truncated[:lastLT]
	}
	if lastAmp := strings.LastIndex(truncated, "&"); lastAmp != -1 && !strings.Contains(truncated[lastAmp:], ";") {
		truncated = truncated[:lastAmp]
	}

	// Try to cut at word boundary if we're not losing too much content
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > truncateAt/2 {
		truncated = truncated[:lastSpace]
	}

	// Fix unclosed <b> tags to maintain valid HTML structure
	// Count open and close tags
	openTags := strings.Count(truncated, "<b>")
	closeTags := strings.Count(truncated, "</b>")
	unclosedCount := openTags - closeTags

	// Close any unclosed <b> tags
	for range unclosedCount {
		truncated += "</b>"
	}

	return truncated + "..."
}

// escapeSnippetHTML escapes user content in a snippet while preserving our <b>
// highlight markers. This prevents XSS from user-controlled template content.
//
// The snippet from SQLite FTS5 contains:
//   - User content (potentially malicious HTML/JS)
//   - Our markers: <b>, </b>, ...
//
// We need to escape the user content but preserve our markers.
func escapeSnippetHTML(s string) string {
	// Use unlikely placeholders that won't appear in normal content
	const (
		openPlaceholder  = "\x00TEMPLAR_B_OPEN\x00"
		closePlaceholder = "\x00TEMPLAR_B_CLOSE\x00"
		openMarker       = db.SnippetOpen
		closeMarker      = db.SnippetClose
	)

	// Step 1: Replace internal highlight markers with placeholders.
	// Markers come from the SQLite snippet() start/end mark args in db.Search.
	s = strings.ReplaceAll(s, openMarker, openPlaceholder)
	s = strings.ReplaceAll(s, closeMarker, closePlaceholder)

	// Step 2: Escape all HTML in user content
	s = html.EscapeString(s)

	// Step 3: Restore highlight tags (and only highlight tags).
	s = strings.ReplaceAll(s, openPlaceholder, "<b>")
	s = strings.ReplaceAll(s, closePlaceholder, "</b>")

	return s
}
