package ops

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/siakad/templar/internal/config"
	"github.com/siakad/templar/internal/errors"
)

// importText stores text as a .txt template named name.
func importText(t *testing.T, database *sql.DB, name, text string) string {
	t.Helper()
	out, err := Import(context.Background(), database, config.DefaultConfig(), ImportInput{
		Filename: name + ".txt",
		Data:     []byte(text),
	})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	return out.ID
}

func TestSearch_BasicMatch(t *testing.T) {
	database := setupTestDB(t)
	id := importSurat(t, database, "Surat Aktif Kuliah")
	importText(t, database, "Undangan Rapat", "Kepada Yth. Bapak Dekan\nRapat koordinasi kurikulum")

	out, err := Search(context.Background(), database, SearchInput{Query: "mahasiswa"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(out.Items) != 1 || out.Items[0].ID != id {
		t.Fatalf("Items = %+v, want only %s", out.Items, id)
	}
	if !strings.Contains(out.Items[0].Snippet, "<b>mahasiswa</b>") {
		t.Errorf("Snippet = %q, want highlighted match", out.Items[0].Snippet)
	}
	if out.Sort != "relevance" {
		t.Errorf("Sort = %q", out.Sort)
	}
	if out.Pagination.Total != 1 || out.Pagination.HasMore {
		t.Errorf("Pagination = %+v", out.Pagination)
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	database := setupTestDB(t)
	for _, q := range []string{"", "   "} {
		_, err := Search(context.Background(), database, SearchInput{Query: q})
		if !errors.Is(err, errors.ErrMissingField) {
			t.Errorf("Search(%q) err = %v, want MISSING_FIELD", q, err)
		}
	}
}

func TestSearch_QueryTooLong(t *testing.T) {
	database := setupTestDB(t)
	_, err := Search(context.Background(), database, SearchInput{Query: strings.Repeat("a", MaxQueryLength+1)})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("err = %v, want INVALID_REQUEST", err)
	}
}

func TestSearch_AllWordsMustMatch(t *testing.T) {
	database := setupTestDB(t)
	importText(t, database, "a", "surat keterangan aktif")
	importText(t, database, "b", "surat tugas dosen")

	out, err := Search(context.Background(), database, SearchInput{Query: "surat dosen"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(out.Items) != 1 || out.Items[0].Name != "b" {
		t.Errorf("Items = %+v, want only b", out.Items)
	}
}

func TestSearch_PrefixQuery(t *testing.T) {
	database := setupTestDB(t)
	importText(t, database, "a", "keterangan aktif kuliah")

	out, err := Search(context.Background(), database, SearchInput{Query: "keter*"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(out.Items) != 1 {
		t.Errorf("prefix query: got %d items, want 1", len(out.Items))
	}
}

func TestSearch_NameRanksFirst(t *testing.T) {
	database := setupTestDB(t)
	importText(t, database, "Catatan", "berisi kata beasiswa di badan dokumen yang panjang")
	nameID := importText(t, database, "Beasiswa", "formulir pendaftaran")

	out, err := Search(context.Background(), database, SearchInput{Query: "beasiswa"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(out.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(out.Items))
	}
	if out.Items[0].ID != nameID {
		t.Errorf("first item = %s, want the name match %s", out.Items[0].Name, nameID)
	}
}

func TestSearch_SyntaxIsQuoted(t *testing.T) {
	database := setupTestDB(t)
	importText(t, database, "a", "surat keterangan")

	// FTS5 operators and stray quotes must not reach the query parser.
	for _, q := range []string{`surat AND`, `"surat`, `surat OR (`, `NEAR(surat`, `*`, `-surat`} {
		if _, err := Search(context.Background(), database, SearchInput{Query: q}); err != nil {
			t.Errorf("Search(%q) failed: %v", q, err)
		}
	}
}

func TestSearch_Pagination(t *testing.T) {
	database := setupTestDB(t)
	for i := range 5 {
		importText(t, database, fmt.Sprintf("surat-%d", i), "surat pengantar")
	}

	out, err := Search(context.Background(), database, SearchInput{Query: "pengantar", Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(out.Items) != 2 {
		t.Errorf("got %d items, want 2", len(out.Items))
	}
	if out.Pagination.Total != 5 || !out.Pagination.HasMore {
		t.Errorf("Pagination = %+v", out.Pagination)
	}

	out, err = Search(context.Background(), database, SearchInput{Query: "pengantar", Limit: 1000})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if out.Pagination.Limit != MaxSearchLimit {
		t.Errorf("Limit = %d, want clamped to %d", out.Pagination.Limit, MaxSearchLimit)
	}
}

func TestSearch_DeletedAndPurged(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	id := importText(t, database, "a", "surat rekomendasi")

	if _, err := Delete(ctx, database, DeleteInput{ID: id}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	out, err := Search(ctx, database, SearchInput{Query: "rekomendasi"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(out.Items) != 0 {
		t.Errorf("deleted template should not match by default")
	}

	out, err = Search(ctx, database, SearchInput{Query: "rekomendasi", IncludeDeleted: true})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(out.Items) != 1 || out.Items[0].DeletedAt == nil {
		t.Errorf("Items = %+v, want the deleted template", out.Items)
	}

	if _, err := Purge(ctx, database, PurgeInput{}); err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	out, err = Search(ctx, database, SearchInput{Query: "rekomendasi", IncludeDeleted: true})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(out.Items) != 0 {
		t.Errorf("purged template still indexed: %+v", out.Items)
	}
}

func TestSearch_SnippetEscapesContent(t *testing.T) {
	database := setupTestDB(t)
	importText(t, database, "a", "Nilai <script>alert(1)</script> rapor")

	out, err := Search(context.Background(), database, SearchInput{Query: "rapor"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(out.Items) != 1 {
		t.Fatalf("got %d items", len(out.Items))
	}
	if strings.Contains(out.Items[0].Snippet, "<script>") {
		t.Errorf("Snippet not escaped: %q", out.Items[0].Snippet)
	}
}

func TestTruncateSnippet(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxChars int
		wantMax  int
		wantEnd  string
	}{
		{
			name:     "short string unchanged",
			input:    "hello world",
			maxChars: 300,
			wantMax:  11,
		},
		{
			name:     "truncates at word boundary",
			input:    "hello world this is a test",
			maxChars: 15,
			wantMax:  15,
			wantEnd:  "...",
		},
		{
			name:     "exact length unchanged",
			input:    "hello",
			maxChars: 5,
			wantMax:  5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := truncateSnippet(tt.input, tt.maxChars)
			if len(result) > tt.wantMax+3 { // +3 for ellipsis
				t.Errorf("truncateSnippet(%q, %d) length = %d, want <= %d",
					tt.input, tt.maxChars, len(result), tt.wantMax+3)
			}
			if tt.wantEnd != "" && !strings.HasSuffix(result, tt.wantEnd) {
				t.Errorf("truncateSnippet(%q, %d) = %q, want suffix %q",
					tt.input, tt.maxChars, result, tt.wantEnd)
			}
		})
	}
}

func TestTruncateSnippet_UTF8Safety(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxChars int
	}{
		{
			name:     "chinese characters",
			input:    "æµ‹è¯•å†…å®¹å¾ˆé•¿å¾ˆé•¿", // 8 Chinese chars = 24 bytes
			maxChars: 10,
		},
		{
			name:     "emoji",
			input:    "Hello ðŸ˜€ World ðŸŽ‰ Test",
			maxChars: 10,
		},
		{
			name:     "mixed utf8 and ascii",
			input:    "Test ä¸–ç•Œ content",
			maxChars: 8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := truncateSnippet(tt.input, tt.maxChars)

			// Must produce valid UTF-8
			if !utf8.ValidString(result) {
				t.Errorf("truncateSnippet(%q, %d) produced invalid UTF-8: %q",
					tt.input, tt.maxChars, result)
			}
		})
	}
}

func TestTruncateSnippet_MarkupPreservation(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxChars int
	}{
		{
			name:     "unclosed b tag",
			input:    "<b>authentication</b> system",
			maxChars: 10,
		},
		{
			name:     "multiple unclosed tags",
			input:    "<b>test</b> <b>more</b> content",
			maxChars: 15,
		},
		{
			name:     "nested-like pattern",
			input:    "<b>outer <b>inner</b> still</b> end",
			maxChars: 20,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := truncateSnippet(tt.input, tt.maxChars)

			// Count open and close tags - should be balanced
			openTags := strings.Count(result, "<b>")
			closeTags := strings.Count(result, "</b>")

			if openTags != closeTags {
				t.Errorf("truncateSnippet(%q, %d) has unbalanced tags: %d open, %d close in %q",
					tt.input, tt.maxChars, openTags, closeTags, result)
			}
		})
	}
}

func TestEscapeSnippetHTML(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "no escaping needed",
			input: "hello world",
			want:  "hello world",
		},
		{
			name:  "converts highlight markers to b tags",
			input: "[[[B]]]match[[[/B]]]",
			want:  "<b>match</b>",
		},
		{
			name:  "escapes user html",
			input: "<script>alert('xss')</script>",
			want:  "&lt;script&gt;alert(&#39;xss&#39;)&lt;/script&gt;",
		},
		{
			name:  "escapes user b tags (only internal markers become <b>)",
			input: "<b>match</b>",
			want:  "&lt;b&gt;match&lt;/b&gt;",
		},
		{
			name:  "mixed - escapes user html preserves markers",
			input: "[[[B]]]match[[[/B]]] <script>bad</script>",
			want:  "<b>match</b> &lt;script&gt;bad&lt;/script&gt;",
		},
		{
			name:  "escapes ampersands",
			input: "foo & bar [[[B]]]match[[[/B]]]",
			want:  "foo &amp; bar <b>match</b>",
		},
		{
			name:  "preserves ellipsis",
			input: "...prefix [[[B]]]match[[[/B]]] suffix...",
			want:  "...prefix <b>match</b> suffix...",
		},
		{
			name:  "escapes quotes",
			input: `[[[B]]]match[[[/B]]] onclick="evil()"`,
			want:  `<b>match</b> onclick=&#34;evil()&#34;`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := escapeSnippetHTML(tt.input)
			if got != tt.want {
				t.Errorf("escapeSnippetHTML(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTruncateSnippet_DoesNotReturnBrokenHTMLEntities(t *testing.T) {
	// This string includes an HTML entity; truncation shouldn't return a partial "&amp"
	// suffix (invalid HTML) after it has been escaped.
	input := "foo &amp; bar baz"
	got := truncateSnippet(input, 7) // "foo &amp" would be partial without trimming
	if strings.Contains(got, "&amp") && !strings.Contains(got, "&amp;") {
		t.Fatalf("expected no partial entity in %q", got)
	}
	if strings.HasSuffix(got, "&") {
		t.Fatalf("expected result not to end with '&': %q", got)
	}
}

func TestTruncateSnippet_DoesNotReturnPartialTags(t *testing.T) {
	input := "<b>match</b> trailing"
	got := truncateSnippet(input, 2)
	if strings.Contains(got, "<") {
		t.Fatalf("expected no partial tag fragments in %q", got)
	}
}
