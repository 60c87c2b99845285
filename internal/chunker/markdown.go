package chunker

import (
	"sort"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

var markdownParser = goldmark.New(
	goldmark.WithParserOptions(
		parser.WithAutoHeadingID(),
	),
)

// splitMarkdownSections cuts markdown at H1/H2 boundaries so chunks respect
// section structure instead of splitting mid-section. H3 and deeper stay
// inside their parent section. Returns the whole text as one section when no
// headings are found or the document cannot be inspected.
func splitMarkdownSections(source string) []string {
	src := []byte(source)
	reader := text.NewReader(src)
	doc := markdownParser.Parser().Parse(reader)

	tree, err := toc.Inspect(doc, src,
		toc.MinDepth(1),
		toc.MaxDepth(2),
		toc.Compact(true),
	)
	if err != nil || len(tree.Items) == 0 {
		return []string{source}
	}

	offsets := headingOffsets(doc, src, tree.Items)
	if len(offsets) == 0 {
		return []string{source}
	}
	sort.Ints(offsets)

	var sections []string
	if offsets[0] > 0 {
		sections = append(sections, string(src[:offsets[0]]))
	}
	for i, start := range offsets {
		end := len(src)
		if i+1 < len(offsets) {
			end = offsets[i+1]
		}
		sections = append(sections, string(src[start:end]))
	}
	return sections
}

// headingOffsets collects the source offsets of every TOC item's heading.
func headingOffsets(doc ast.Node, src []byte, items toc.Items) []int {
	var offsets []int
	for _, item := range items {
		if h := findHeadingByID(doc, string(item.ID)); h != nil && h.Lines().Len() > 0 {
			seg := h.Lines().At(0)
			// Back up over the "#" prefix: the line segment starts after it.
			start := seg.Start
			for start > 0 && src[start-1] != '\n' {
				start--
			}
			offsets = append(offsets, start)
		}
		offsets = append(offsets, headingOffsets(doc, src, item.Items)...)
	}
	return offsets
}

func findHeadingByID(node ast.Node, id string) ast.Node {
	var found ast.Node
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering && n.Kind() == ast.KindHeading {
			if headingID, ok := n.AttributeString("id"); ok {
				if b, ok := headingID.([]byte); ok && string(b) == id {
					found = n
					return ast.WalkStop, nil
				}
			}
		}
		return ast.WalkContinue, nil
	})
	return found
}
