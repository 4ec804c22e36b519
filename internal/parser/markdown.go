package parser

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	gmparser "github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"docsync/internal/docsync"
)

var (
	frontMatterDelim = []byte("---")

	errInvalidUTF8          = errors.New("document is not valid UTF-8")
	errUnterminatedMetadata = errors.New("front matter is not terminated")
)

// MarkdownParser parses markdown documents with an optional YAML front matter
// block and renders them to HTML.
type MarkdownParser struct {
	md goldmark.Markdown
}

func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(gmparser.WithAutoHeadingID()),
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
	}
}

// Parse splits off the front matter and collects the images and the first
// level-one heading of the body.
func (p *MarkdownParser) Parse(data []byte) (*docsync.ContentDocument, error) {
	if !utf8.Valid(data) {
		return nil, errInvalidUTF8
	}

	meta, body, err := splitFrontMatter(data)
	if err != nil {
		return nil, err
	}

	doc := &docsync.ContentDocument{Body: body}
	if meta != nil {
		if err := yaml.Unmarshal(meta, &doc.Meta); err != nil {
			return nil, fmt.Errorf("decoding front matter: %w", err)
		}
	}

	root := p.md.Parser().Parse(text.NewReader(body))
	err = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			if node.Level == 1 && doc.Heading == "" {
				doc.Heading = nodeText(node, body)
			}
		case *ast.Image:
			doc.Images = append(doc.Images, docsync.ImageRef{
				Src: string(node.Destination),
				Alt: nodeText(node, body),
			})
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Render converts the body to HTML, pointing mirrored images at their new URLs.
func (p *MarkdownParser) Render(doc *docsync.ContentDocument, images map[string]string) (string, error) {
	root := p.md.Parser().Parse(text.NewReader(doc.Body))
	if len(images) > 0 {
		err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
			if img, ok := n.(*ast.Image); ok && entering {
				if url, ok := images[string(img.Destination)]; ok {
					img.Destination = []byte(url)
				}
			}
			return ast.WalkContinue, nil
		})
		if err != nil {
			return "", err
		}
	}

	var buf bytes.Buffer
	if err := p.md.Renderer().Render(&buf, doc.Body, root); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return buf.String(), nil
}

// splitFrontMatter returns the YAML between a leading "---" line and the next
// "---" line, and the remaining body. meta is nil when there is no front matter.
func splitFrontMatter(data []byte) (meta, body []byte, err error) {
	first, rest, found := bytes.Cut(data, []byte("\n"))
	if !found || !bytes.Equal(bytes.TrimRight(first, " \t"), frontMatterDelim) {
		return nil, data, nil
	}

	for offset := 0; offset <= len(rest); {
		line, next, more := bytes.Cut(rest[offset:], []byte("\n"))
		if bytes.Equal(bytes.TrimRight(line, " \t"), frontMatterDelim) {
			meta = rest[:offset]
			if more {
				body = next
			}
			return meta, body, nil
		}
		if !more {
			break
		}
		offset += len(line) + 1
	}
	return nil, nil, errUnterminatedMetadata
}

// nodeText concatenates the text segments below n.
func nodeText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(source))
			if t.SoftLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

var _ docsync.ContentParser = (*MarkdownParser)(nil)
