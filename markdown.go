package linkpreview

import (
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"
)

// parseMarkdownURLs extracts unique http and https link destinations from
// markdown text. Links inside code spans and preformatted blocks are not
// reported. At most maxItems urls are returned if maxItems is positive.
func parseMarkdownURLs(content string, maxItems int) []string {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.Autolink)
	doc := markdown.Parse([]byte(content), p)
	var urls []string
	seen := make(map[string]struct{})
	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		if maxItems > 0 && len(urls) >= maxItems {
			return ast.Terminate
		}
		link, ok := node.(*ast.Link)
		if !ok || !entering {
			return ast.GoToNext
		}
		dst := string(link.Destination)
		if !strings.HasPrefix(dst, "http://") && !strings.HasPrefix(dst, "https://") {
			return ast.GoToNext
		}
		if _, ok := seen[dst]; !ok {
			seen[dst] = struct{}{}
			urls = append(urls, dst)
		}
		return ast.GoToNext
	})
	return urls
}
