// Package render produces preview HTML: bound variables highlighted in the
// document, sanitized imports and markdown conversion.
package render

import (
	"bytes"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/siakad/templar/internal/binding"
)

// Mode selects the highlight style.
type Mode string

const (
	ModeSelect Mode = "select"
	ModeEdit   Mode = "edit"
)

// Options controls highlighting.
type Options struct {
	Mode       Mode
	EditingKey string
}

func (o Options) class(key string) string {
	mode := o.Mode
	if mode != ModeEdit {
		mode = ModeSelect
	}
	c := "tv tv-" + string(mode)
	if o.EditingKey != "" && o.EditingKey == key {
		c += " tv-editing"
	}
	return c
}

// occurrence is one literal match of a variable's text in the indexed text.
type occurrence struct {
	start, end int
	v          binding.TemplateVariable
}

// findOccurrences returns non-overlapping occurrences of every variable's
// text. Where two overlap the earlier start wins, then the longer text.
func findOccurrences(text string, vars binding.Set) []occurrence {
	var all []occurrence
	for _, key := range vars.Keys() {
		v := vars[key]
		if v.TextContent == "" {
			continue
		}
		for from := 0; from <= len(text); {
			i := strings.Index(text[from:], v.TextContent)
			if i < 0 {
				break
			}
			start := from + i
			end := start + len(v.TextContent)
			all = append(all, occurrence{start: start, end: end, v: v})
			from = end
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].start != all[j].start {
			return all[i].start < all[j].start
		}
		return all[i].end-all[i].start > all[j].end-all[j].start
	})

	kept := all[:0]
	last := 0
	for _, o := range all {
		if o.start < last {
			continue
		}
		kept = append(kept, o)
		last = o.end
	}
	return kept
}

func markNode(text string, v binding.TemplateVariable, opts Options) *html.Node {
	m := &html.Node{
		Type:     html.ElementNode,
		Data:     "mark",
		DataAtom: atom.Mark,
		Attr: []html.Attribute{
			{Key: "class", Val: opts.class(v.Key)},
			{Key: "data-key", Val: v.Key},
			{Key: "data-label", Val: v.Label},
			{Key: "data-type", Val: string(v.Type)},
		},
	}
	m.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	return m
}

// Highlight wraps every occurrence of each bound variable's text in src with
// a <mark> carrying the variable's key, label and type. Only text content is
// matched; tags and attributes are left as they are. An occurrence that
// crosses element boundaries is wrapped separately in each text node.
func Highlight(src string, vars binding.Set, opts Options) (string, error) {
	nodes, err := parseFragment(src)
	if err != nil {
		return "", err
	}
	if len(vars) > 0 {
		ix := indexNodes(nodes)
		occs := findOccurrences(ix.text.String(), vars)
		if len(occs) > 0 {
			applyOccurrences(ix.segments, occs, opts)
		}
	}

	var buf bytes.Buffer
	for _, n := range nodes {
		if err := html.Render(&buf, n); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// applyOccurrences splits each affected text node into plain text and mark
// elements. Both slices are sorted by start offset.
func applyOccurrences(segs []segment, occs []occurrence, opts Options) {
	oi := 0
	for _, seg := range segs {
		for oi < len(occs) && occs[oi].end <= seg.start {
			oi++
		}
		var parts []*html.Node
		pos := seg.start
		for j := oi; j < len(occs) && occs[j].start < seg.end; j++ {
			o := occs[j]
			s := max(o.start, seg.start)
			e := min(o.end, seg.end)
			if s > pos {
				parts = append(parts, &html.Node{Type: html.TextNode, Data: seg.node.Data[pos-seg.start : s-seg.start]})
			}
			parts = append(parts, markNode(seg.node.Data[s-seg.start:e-seg.start], o.v, opts))
			pos = e
		}
		if parts == nil {
			continue
		}
		if pos < seg.end {
			parts = append(parts, &html.Node{Type: html.TextNode, Data: seg.node.Data[pos-seg.start:]})
		}
		replaceNode(seg.node, parts)
	}
}

func replaceNode(old *html.Node, with []*html.Node) {
	parent := old.Parent
	if parent == nil {
		// A top-level text node of the fragment has no parent; rewrite it in place.
		var buf bytes.Buffer
		for _, n := range with {
			_ = html.Render(&buf, n)
		}
		old.Type = html.RawNode
		old.Data = buf.String()
		return
	}
	for _, n := range with {
		parent.InsertBefore(n, old)
	}
	parent.RemoveChild(old)
}

// HighlightText is the content-based fallback when only plain text is
// available. The text is HTML-escaped and every literal occurrence of a
// bound text is wrapped; longer texts take precedence.
func HighlightText(text string, vars binding.Set, opts Options) string {
	byText := make(map[string]binding.TemplateVariable)
	var alts []string
	for _, key := range vars.Keys() {
		v := vars[key]
		if v.TextContent == "" {
			continue
		}
		if _, dup := byText[v.TextContent]; dup {
			continue
		}
		byText[v.TextContent] = v
		alts = append(alts, v.TextContent)
	}
	if len(alts) == 0 {
		return html.EscapeString(text)
	}

	sort.SliceStable(alts, func(i, j int) bool { return len(alts[i]) > len(alts[j]) })
	quoted := make([]string, len(alts))
	for i, a := range alts {
		quoted[i] = regexp.QuoteMeta(a)
	}
	re := regexp.MustCompile(strings.Join(quoted, "|"))

	var sb strings.Builder
	pos := 0
	for _, loc := range re.FindAllStringIndex(text, -1) {
		sb.WriteString(html.EscapeString(text[pos:loc[0]]))
		match := text[loc[0]:loc[1]]
		var buf bytes.Buffer
		_ = html.Render(&buf, markNode(match, byText[match], opts))
		sb.Write(buf.Bytes())
		pos = loc[1]
	}
	sb.WriteString(html.EscapeString(text[pos:]))
	return sb.String()
}

// Document renders the preview for doc: span-aware over its HTML when
// present, otherwise the escaped raw text with content-based highlighting.
func Document(doc binding.Document, vars binding.Set, opts Options) string {
	if doc.HTML != "" {
		if out, err := Highlight(doc.HTML, vars, opts); err == nil {
			return out
		}
	}
	return "<pre>" + HighlightText(doc.RawText, vars, opts) + "</pre>"
}
