package render

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// segment maps one text node onto a byte range of the indexed text.
type segment struct {
	node       *html.Node
	start, end int
}

// textIndex is the plain-text view of a parsed fragment.
type textIndex struct {
	text     strings.Builder
	segments []segment
}

func isSkipped(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Head, atom.Title:
		return true
	}
	return false
}

func isBlock(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Address, atom.Article, atom.Aside, atom.Blockquote, atom.Dd, atom.Div,
		atom.Dl, atom.Dt, atom.Fieldset, atom.Figcaption, atom.Figure, atom.Footer,
		atom.Form, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Header,
		atom.Hr, atom.Li, atom.Main, atom.Nav, atom.Ol, atom.P, atom.Pre, atom.Section,
		atom.Table, atom.Thead, atom.Tbody, atom.Tfoot, atom.Tr, atom.Ul, atom.Caption:
		return true
	}
	return false
}

func isCell(n *html.Node) bool {
	return n.DataAtom == atom.Td || n.DataAtom == atom.Th
}

// newline ends the current line unless the text is empty or already ends one.
func (ix *textIndex) newline() {
	s := ix.text.String()
	if s == "" || strings.HasSuffix(s, "\n") {
		return
	}
	ix.text.WriteByte('\n')
}

func (ix *textIndex) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		// Whitespace between block tags is layout, not content.
		if strings.TrimSpace(n.Data) == "" && strings.ContainsAny(n.Data, "\n\r") {
			return
		}
		start := ix.text.Len()
		ix.text.WriteString(n.Data)
		ix.segments = append(ix.segments, segment{node: n, start: start, end: ix.text.Len()})
		return
	case html.ElementNode:
		if isSkipped(n) {
			return
		}
		if n.DataAtom == atom.Br {
			ix.text.WriteByte('\n')
			return
		}
		if isCell(n) {
			for p := n.PrevSibling; p != nil; p = p.PrevSibling {
				if p.Type == html.ElementNode && isCell(p) {
					ix.text.WriteByte('\t')
					break
				}
			}
		}
	case html.CommentNode, html.DoctypeNode:
		return
	}

	block := n.Type == html.ElementNode && isBlock(n)
	if block {
		ix.newline()
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		ix.walk(c)
	}
	if block {
		ix.newline()
	}
}

func indexNodes(nodes []*html.Node) *textIndex {
	ix := &textIndex{}
	for _, n := range nodes {
		ix.walk(n)
	}
	return ix
}

// ExtractText returns the plain text of an HTML fragment: text nodes in
// document order, block elements on their own lines and table cells
// separated by tabs.
func ExtractText(src string) (string, error) {
	nodes, err := parseFragment(src)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(indexNodes(nodes).text.String(), "\n"), nil
}

func parseFragment(src string) ([]*html.Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	return html.ParseFragment(strings.NewReader(src), ctx)
}
