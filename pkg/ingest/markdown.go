package ingest

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"

	"github.com/docfold/memoria/pkg/knowledge"
)

var markdownParser = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
)

// Markdown splits a markdown document into store requests: one
// documentation entry per heading-delimited section and one example entry
// per fenced code block, tagged with its language.
func Markdown(source []byte, opts SourceOptions) []knowledge.StoreRequest {
	opts.applyDefaults()
	root := markdownParser.Parser().Parse(text.NewReader(source))

	var (
		requests []knowledge.StoreRequest
		heading  string
		body     []string
		examples []knowledge.StoreRequest
	)
	flush := func() {
		if heading != "" || len(body) > 0 {
			requests = append(requests, documentationRequest(heading, body, opts))
		}
		requests = append(requests, examples...)
		body = nil
		examples = nil
	}

	for child := root.FirstChild(); child != nil; child = child.NextSibling() {
		switch n := child.(type) {
		case *ast.Heading:
			flush()
			heading = nodeText(n, source)
		case *ast.FencedCodeBlock:
			code := segmentText(n, source)
			if strings.TrimSpace(code) == "" {
				continue
			}
			language := string(n.Language(source))
			examples = append(examples, exampleRequest(code, language, heading, opts))
		case *ast.CodeBlock:
			code := segmentText(n, source)
			if strings.TrimSpace(code) == "" {
				continue
			}
			examples = append(examples, exampleRequest(code, "", heading, opts))
		default:
			if txt := strings.TrimSpace(nodeText(child, source)); txt != "" {
				body = append(body, txt)
			}
		}
	}
	flush()

	return requests
}

// nodeText collects the plain text under a node, in document order.
// Block boundaries become newlines so list items stay separated.
func nodeText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			switch child.(type) {
			case *ast.Paragraph, *ast.TextBlock, *ast.Heading:
				if sb.Len() > 0 {
					sb.WriteByte('\n')
				}
			}
			return ast.WalkContinue, nil
		}
		switch t := child.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte('\n')
			}
		case *ast.String:
			sb.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimRight(sb.String(), "\n")
}

// segmentText reassembles a code block's raw lines.
func segmentText(n ast.Node, source []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(source))
	}
	return sb.String()
}
