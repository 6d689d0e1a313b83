package render

import (
	"bytes"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	previewPolicy = newPreviewPolicy()
	markdown      = goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough))
)

func newPreviewPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class", "data-key", "data-label", "data-type").OnElements("mark")
	p.AllowAttrs("colspan", "rowspan").OnElements("td", "th")
	return p
}

// SanitizePreview strips scripts, event handlers and unsafe URLs from
// imported HTML.
func SanitizePreview(src string) string {
	return previewPolicy.Sanitize(src)
}

// MarkdownToHTML converts markdown to sanitized HTML.
func MarkdownToHTML(src []byte) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert(src, &buf); err != nil {
		return "", err
	}
	return SanitizePreview(buf.String()), nil
}
