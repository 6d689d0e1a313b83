package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siakad/templar/internal/binding"
)

func grade() binding.Set {
	return binding.Set{
		"grade": {Key: "grade", Label: "Nilai", Type: binding.TypeText, TextContent: "A"},
	}
}

func TestHighlight_WrapsEveryOccurrence(t *testing.T) {
	out, err := Highlight("<p>Nilai akhir: A</p>", grade(), Options{Mode: ModeSelect})
	require.NoError(t, err)

	assert.Equal(t,
		`<p>Nilai akhir: <mark class="tv tv-select" data-key="grade" data-label="Nilai" data-type="text">A</mark></p>`,
		out)
}

func TestHighlight_MultipleOccurrencesAcrossNodes(t *testing.T) {
	src := "<p>A dan <b>A</b></p><p>A</p>"
	out, err := Highlight(src, grade(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, strings.Count(out, `data-key="grade"`))
	assert.Contains(t, out, "<b><mark")
	assert.Contains(t, out, "</mark> dan <b>")
}

func TestHighlight_LeavesAttributesAlone(t *testing.T) {
	src := `<p title="A"><a href="/A">link A</a></p>`
	out, err := Highlight(src, grade(), Options{})
	require.NoError(t, err)

	assert.Contains(t, out, `title="A"`)
	assert.Contains(t, out, `href="/A"`)
	assert.Equal(t, 1, strings.Count(out, "<mark"))
}

func TestHighlight_SpecialCharactersAreLiteral(t *testing.T) {
	vars := binding.Set{"lang": {Key: "lang", Label: "Bahasa", Type: binding.TypeText, TextContent: "C++"}}
	out, err := Highlight("<p>CCC dan C++ serta C+</p>", vars, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(out, "<mark"))
	assert.Contains(t, out, `data-type="text">C++</mark>`)
	assert.Contains(t, out, "<p>CCC dan ")
	assert.Contains(t, out, " serta C+</p>")
}

func TestHighlight_CrossNodeOccurrenceWrappedPerSegment(t *testing.T) {
	vars := binding.Set{"nama": {Key: "nama", Label: "Nama", Type: binding.TypeText, TextContent: "Budi Santoso"}}
	out, err := Highlight("<p>Bapak <b>Budi</b> Santoso hadir</p>", vars, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, strings.Count(out, `data-key="nama"`))
	assert.Contains(t, out, `<b><mark class="tv tv-select" data-key="nama" data-label="Nama" data-type="text">Budi</mark></b>`)
	assert.Contains(t, out, `data-type="text"> Santoso</mark> hadir`)
}

func TestHighlight_OverlapPrefersEarlierThenLonger(t *testing.T) {
	vars := binding.Set{
		"kota":    {Key: "kota", Label: "Kota", Type: binding.TypeText, TextContent: "Jakarta"},
		"tempat":  {Key: "tempat", Label: "Tempat", Type: binding.TypeText, TextContent: "Jakarta Selatan"},
		"selatan": {Key: "selatan", Label: "Arah", Type: binding.TypeText, TextContent: "Selatan, 1"},
	}
	out, err := Highlight("<p>Jakarta Selatan, 1 Mei</p>", vars, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(out, "<mark"))
	assert.Contains(t, out, `data-key="tempat"`)
}

func TestHighlight_EditingClass(t *testing.T) {
	vars := grade()
	vars["other"] = binding.TemplateVariable{Key: "other", Label: "Lain", Type: binding.TypeNumber, TextContent: "99"}

	out, err := Highlight("<p>A 99</p>", vars, Options{Mode: ModeEdit, EditingKey: "grade"})
	require.NoError(t, err)

	assert.Contains(t, out, `class="tv tv-edit tv-editing" data-key="grade"`)
	assert.Contains(t, out, `class="tv tv-edit" data-key="other"`)
}

func TestHighlight_TopLevelText(t *testing.T) {
	out, err := Highlight("Nilai: A", grade(), Options{})
	require.NoError(t, err)
	assert.Equal(t, `Nilai: <mark class="tv tv-select" data-key="grade" data-label="Nilai" data-type="text">A</mark>`, out)
}

func TestHighlight_SkipsScript(t *testing.T) {
	out, err := Highlight("<p>A</p><script>var A = 1</script>", grade(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "<mark"))
	assert.Contains(t, out, "var A = 1")
}

func TestHighlight_NoVariablesIsIdentity(t *testing.T) {
	out, err := Highlight("<p>Nilai akhir: A</p>", nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, "<p>Nilai akhir: A</p>", out)
}

func TestHighlightText(t *testing.T) {
	out := HighlightText("Nilai akhir: A", grade(), Options{})
	assert.Equal(t, `Nilai akhir: <mark class="tv tv-select" data-key="grade" data-label="Nilai" data-type="text">A</mark>`, out)
}

func TestHighlightText_EscapesAndQuotes(t *testing.T) {
	vars := binding.Set{
		"lang": {Key: "lang", Label: "Bahasa", Type: binding.TypeText, TextContent: "C++"},
		"expr": {Key: "expr", Label: "Ekspresi", Type: binding.TypeText, TextContent: "a.*b"},
	}
	out := HighlightText("CCC <C++> a.*b axxb", vars, Options{})

	assert.Equal(t, 2, strings.Count(out, "<mark"))
	assert.Contains(t, out, "&lt;<mark")
	assert.Contains(t, out, "</mark>&gt;")
	assert.Contains(t, out, "axxb")
	assert.NotContains(t, out, ">axxb</mark>")
}

func TestHighlightText_LongestFirst(t *testing.T) {
	vars := binding.Set{
		"kota":   {Key: "kota", Label: "Kota", Type: binding.TypeText, TextContent: "Jakarta"},
		"tempat": {Key: "tempat", Label: "Tempat", Type: binding.TypeText, TextContent: "Jakarta Selatan"},
	}
	out := HighlightText("Jakarta Selatan dan Jakarta", vars, Options{})

	assert.Contains(t, out, `data-key="tempat" data-label="Tempat" data-type="">Jakarta Selatan</mark>`)
	assert.Contains(t, out, `data-key="kota" data-label="Kota" data-type="">Jakarta</mark>`)
}

func TestDocument_FallsBackToRawText(t *testing.T) {
	out := Document(binding.Document{RawText: "Nilai: A"}, grade(), Options{})
	assert.True(t, strings.HasPrefix(out, "<pre>Nilai: <mark"))
}

func TestExtractText(t *testing.T) {
	src := "<h1>SURAT KETERANGAN</h1>\n<p>Nama: <b>Budi</b><br>NIM: 123</p>\n<table><tr><td>No</td><td>Nama</td></tr><tr><td>1</td><td>Budi</td></tr></table><p>Salam</p>"

	got, err := ExtractText(src)
	require.NoError(t, err)
	assert.Equal(t, "SURAT KETERANGAN\nNama: Budi\nNIM: 123\nNo\tNama\n1\tBudi\nSalam", got)
}

func TestExtractText_AgreesWithHighlightOffsets(t *testing.T) {
	src := "<p>Kepada Yth.</p>\n<p>Bapak <i>Dr. Budi</i></p>"
	raw, err := ExtractText(src)
	require.NoError(t, err)
	require.Equal(t, "Kepada Yth.\nBapak Dr. Budi", raw)

	// Text spanning the block break is wrapped in each paragraph, never across.
	vars := binding.Set{"x": {Key: "x", Label: "X", Type: binding.TypeText, TextContent: "Yth.\nBapak"}}
	out, err := Highlight(src, vars, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "<mark"))
}

func TestSanitizePreview(t *testing.T) {
	out := SanitizePreview(`<p onclick="x()">Halo<script>alert(1)</script></p><a href="javascript:alert(1)">x</a>`)
	assert.NotContains(t, out, "script")
	assert.NotContains(t, out, "onclick")
	assert.NotContains(t, out, "javascript:")
	assert.Contains(t, out, "Halo")
}

func TestMarkdownToHTML(t *testing.T) {
	out, err := MarkdownToHTML([]byte("# Judul\n\nNama: **Budi**\n\n| No | Nama |\n|----|------|\n| 1 | Budi |\n"))
	require.NoError(t, err)

	assert.Contains(t, out, "<h1")
	assert.Contains(t, out, "<strong>Budi</strong>")
	assert.Contains(t, out, "<table>")

	raw, err := ExtractText(out)
	require.NoError(t, err)
	assert.Equal(t, "Judul\nNama: Budi\nNo\tNama\n1\tBudi", raw)
}
