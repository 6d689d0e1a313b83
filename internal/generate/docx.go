package generate

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/siakad/templar/internal/binding"
	"github.com/siakad/templar/internal/errors"
)

const docxBody = "word/document.xml"

var (
	docxParagraph = regexp.MustCompile(`(?s)<w:p[ >].*?</w:p>`)
	docxParaProps = regexp.MustCompile(`(?s)<w:pPr(?:\s[^>]*)?>.*?</w:pPr>`)
	docxRunItem   = regexp.MustCompile(`(?s)<w:t(?:\s[^>]*)?>(.*?)</w:t>|<w:(tab|br|cr)(?:\s[^>]*)?/>`)
	docxPart      = regexp.MustCompile(`^word/(?:document|header\d*|footer\d*)\.xml$`)
)

// FillDocx substitutes values into a DOCX document. Each paragraph's run
// content is merged into one text, with tabs and breaks as \t and \n the
// way DocxParagraphs reads them, then templatized against set and filled.
// A changed paragraph gets its full content in the first run and the other
// runs emptied, so tokens split across runs by Word still resolve. Run
// formatting beyond the first run of a changed paragraph is lost. Entries
// other than the body, headers and footers are copied unchanged.
//
// Every variable in set must occur somewhere in those parts, otherwise
// INVALID_REQUEST lists the unmatched keys.
func FillDocx(src []byte, set binding.Set, values map[string]string) ([]byte, error) {
	out, placed, err := fillDocx(src, set, values)
	if err != nil {
		return nil, err
	}
	if keys := unplacedKeys(set, placed); len(keys) > 0 {
		return nil, unmatchedError(keys)
	}
	return out, nil
}

// UnmatchedDocx returns the keys of set that FillDocx could not place.
func UnmatchedDocx(src []byte, set binding.Set) ([]string, error) {
	_, placed, err := fillDocx(src, set, nil)
	if err != nil {
		return nil, err
	}
	return unplacedKeys(set, placed), nil
}

func fillDocx(src []byte, set binding.Set, values map[string]string) ([]byte, map[string]bool, error) {
	zr, err := zip.NewReader(bytes.NewReader(src), int64(len(src)))
	if err != nil {
		return nil, nil, errors.NewInvalidRequest(fmt.Sprintf("not a docx archive: %v", err))
	}
	if !hasEntry(zr, docxBody) {
		return nil, nil, errors.NewInvalidRequest("not a docx archive: " + docxBody + " missing")
	}

	placed := make(map[string]bool)
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range zr.File {
		if !docxPart.MatchString(f.Name) {
			if err := zw.Copy(f); err != nil {
				return nil, nil, fmt.Errorf("copy %s: %w", f.Name, err)
			}
			continue
		}

		data, err := readEntry(f)
		if err != nil {
			return nil, nil, err
		}
		out := fillPart(string(data), set, values, placed)

		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     f.Name,
			Method:   zip.Deflate,
			Modified: f.Modified,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create %s: %w", f.Name, err)
		}
		if _, err := io.WriteString(w, out); err != nil {
			return nil, nil, fmt.Errorf("write %s: %w", f.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, nil, fmt.Errorf("close docx: %w", err)
	}
	return buf.Bytes(), placed, nil
}

// fillPart rewrites the paragraphs of one XML part and records in placed
// every token key its paragraphs hold after templatizing.
func fillPart(xmlText string, set binding.Set, values map[string]string, placed map[string]bool) string {
	return docxParagraph.ReplaceAllStringFunc(xmlText, func(p string) string {
		// Tab stops in the paragraph properties are not content.
		from := 0
		if loc := docxParaProps.FindStringIndex(p); loc != nil {
			from = loc[1]
		}
		items := docxRunItem.FindAllStringSubmatchIndex(p[from:], -1)
		if len(items) == 0 {
			return p
		}

		var merged strings.Builder
		for _, it := range items {
			switch {
			case it[2] >= 0:
				merged.WriteString(html.UnescapeString(p[from+it[2] : from+it[3]]))
			case p[from+it[4]:from+it[5]] == "tab":
				merged.WriteByte('\t')
			default:
				merged.WriteByte('\n')
			}
		}

		templatized := Templatize(merged.String(), set)
		for _, key := range Tokens(templatized) {
			placed[key] = true
		}
		filled := Fill(templatized, values)
		if filled == merged.String() {
			return p
		}

		var sb strings.Builder
		sb.WriteString(p[:from])
		pos := from
		for i, it := range items {
			sb.WriteString(p[pos : from+it[0]])
			switch {
			case i == 0:
				writeRunContent(&sb, filled)
			case it[2] >= 0:
				sb.WriteString(`<w:t></w:t>`)
			}
			pos = from + it[1]
		}
		sb.WriteString(p[pos:])
		return sb.String()
	})
}

// writeRunContent writes s as run content, turning \t and \n back into
// <w:tab/> and <w:br/>.
func writeRunContent(sb *strings.Builder, s string) {
	for {
		i := strings.IndexAny(s, "\t\n")
		if i < 0 {
			break
		}
		writeRunText(sb, s[:i])
		if s[i] == '\t' {
			sb.WriteString(`<w:tab/>`)
		} else {
			sb.WriteString(`<w:br/>`)
		}
		s = s[i+1:]
	}
	writeRunText(sb, s)
}

func writeRunText(sb *strings.Builder, s string) {
	if s == "" {
		return
	}
	sb.WriteString(`<w:t xml:space="preserve">`)
	sb.WriteString(html.EscapeString(s))
	sb.WriteString(`</w:t>`)
}

// DocxParagraphs returns the non-blank paragraph texts of word/document.xml
// in document order. Tabs and breaks inside its runs become \t and \n.
func DocxParagraphs(src []byte) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(src), int64(len(src)))
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("not a docx archive: %v", err))
	}
	var body *zip.File
	for _, f := range zr.File {
		if f.Name == docxBody {
			body = f
			break
		}
	}
	if body == nil {
		return nil, errors.NewInvalidRequest("not a docx archive: " + docxBody + " missing")
	}

	data, err := readEntry(body)
	if err != nil {
		return nil, err
	}

	dec := xml.NewDecoder(bytes.NewReader(data))
	var (
		paras  []string
		cur    strings.Builder
		inPara bool
		inRun  bool
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("malformed %s: %v", docxBody, err))
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inPara = true
				cur.Reset()
			case "r":
				inRun = inPara
			case "t":
				inText = inPara
			case "tab":
				if inRun {
					cur.WriteByte('\t')
				}
			case "br", "cr":
				if inRun {
					cur.WriteByte('\n')
				}
			}
		case xml.CharData:
			if inText {
				cur.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "r":
				inRun = false
			case "t":
				inText = false
			case "p":
				if inPara && strings.TrimSpace(cur.String()) != "" {
					paras = append(paras, cur.String())
				}
				inPara = false
			}
		}
	}
	return paras, nil
}

// ExtractDocxText returns the paragraphs of a DOCX document joined by newlines.
func ExtractDocxText(src []byte) (string, error) {
	paras, err := DocxParagraphs(src)
	if err != nil {
		return "", err
	}
	return strings.Join(paras, "\n"), nil
}

func hasEntry(zr *zip.Reader, name string) bool {
	for _, f := range zr.File {
		if f.Name == name {
			return true
		}
	}
	return false
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	return data, nil
}
