package tmpl

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"golang.org/x/net/html"

	"github.com/siakad/templar/internal/errors"
	"github.com/siakad/templar/internal/generate"
	"github.com/siakad/templar/internal/render"
)

// Ingested is an uploaded file in stored form.
type Ingested struct {
	Kind    SourceKind
	Source  []byte
	HTML    string
	RawText string
}

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// SupportedExt reports whether filename has an importable extension.
func SupportedExt(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".docx", ".html", ".htm", ".md", ".markdown", ".txt":
		return true
	}
	return false
}

// Ingest converts an uploaded file by extension. HTML uploads are stored as
// markdown. The raw text is always extracted from the preview HTML so that
// both views agree on content.
func Ingest(filename string, data []byte) (*Ingested, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".docx":
		paras, err := generate.DocxParagraphs(data)
		if err != nil {
			return nil, err
		}
		return finish(KindDocx, data, paragraphsHTML(paras))

	case ".html", ".htm":
		md, err := mdConverter.ConvertString(string(data))
		if err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot convert html: %v", err))
		}
		return fromMarkdown([]byte(md))

	case ".md", ".markdown":
		return fromMarkdown(data)

	case ".txt":
		return finish(KindText, data, paragraphsHTML(strings.Split(string(data), "\n")))

	default:
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unsupported file type %q (use .docx, .html, .md or .txt)", filepath.Ext(filename)))
	}
}

func fromMarkdown(src []byte) (*Ingested, error) {
	out, err := render.MarkdownToHTML(src)
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot render markdown: %v", err))
	}
	return finish(KindMarkdown, src, out)
}

func finish(kind SourceKind, src []byte, preview string) (*Ingested, error) {
	raw, err := render.ExtractText(preview)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &Ingested{Kind: kind, Source: src, HTML: preview, RawText: raw}, nil
}

// paragraphsHTML renders one <p> per non-blank paragraph; line breaks inside
// a paragraph become <br>.
func paragraphsHTML(paras []string) string {
	var sb strings.Builder
	for _, p := range paras {
		p = strings.TrimRight(p, "\r")
		if strings.TrimSpace(p) == "" {
			continue
		}
		sb.WriteString("<p>")
		sb.WriteString(strings.ReplaceAll(html.EscapeString(p), "\n", "<br>"))
		sb.WriteString("</p>\n")
	}
	return sb.String()
}
