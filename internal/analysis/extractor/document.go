package extractor

import (
	"strings"

	"github.com/menu-lens/server/internal/analysis/model"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// skipped subtrees never hold menu content
var skippedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Head:     true,
	atom.Nav:      true,
	atom.Footer:   true,
	atom.Form:     true,
	atom.Iframe:   true,
}

// block elements end a line-like unit
var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Li: true, atom.Tr: true, atom.Br: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Dt: true, atom.Dd: true, atom.Td: true,
	atom.Th: true, atom.Table: true, atom.Ul: true, atom.Ol: true, atom.Header: true,
	atom.Main: true, atom.Aside: true, atom.Hr: true, atom.Figcaption: true,
}

// ExtractFromDocument accepts a fetched web document. HTML is flattened to
// visible text with one unit per block element; anything that does not look
// like markup goes through Extract unchanged.
func (e *Extractor) ExtractFromDocument(doc string) ([]model.MenuItem, error) {
	if !looksLikeHTML(doc) {
		return e.Extract(doc)
	}
	if len(doc) > maxInputLen*4 {
		doc = doc[:maxInputLen*4]
	}
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return e.Extract(doc)
	}

	var b strings.Builder
	flattenText(root, &b)
	return e.Extract(b.String())
}

func flattenText(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if skippedElements[n.DataAtom] {
			return
		}
		if n.DataAtom == atom.Img {
			// alt text on menu images is often the dish name
			for _, a := range n.Attr {
				if a.Key == "alt" && strings.TrimSpace(a.Val) != "" {
					b.WriteString("\n" + a.Val + "\n")
				}
			}
			return
		}
	case html.CommentNode:
		return
	}

	block := n.Type == html.ElementNode && blockElements[n.DataAtom]
	if block {
		b.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		// inline siblings inside a cell stay on one line
		if c.Type == html.ElementNode && !blockElements[c.DataAtom] {
			b.WriteByte(' ')
		}
		flattenText(c, b)
	}
	if block {
		b.WriteByte('\n')
	}
}

func looksLikeHTML(s string) bool {
	head := strings.ToLower(strings.TrimSpace(s))
	if len(head) > 1024 {
		head = head[:1024]
	}
	return strings.HasPrefix(head, "<!doctype html") ||
		strings.Contains(head, "<html") ||
		strings.Contains(head, "<body") ||
		(strings.HasPrefix(head, "<") && strings.Contains(head, "</"))
}
