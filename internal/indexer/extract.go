package indexer

import (
	"bytes"
	"fmt"
	"mime"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

const (
	mediaPlain    = "text/plain"
	mediaMarkdown = "text/markdown"
)

// Extractor turns raw document bytes into plain text.
type Extractor interface {
	Extract(data []byte) (string, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(data []byte) (string, error)

// Extract calls f.
func (f ExtractorFunc) Extract(data []byte) (string, error) { return f(data) }

// Extractors is a registry of extractors keyed by media type.
type Extractors struct {
	byType map[string]Extractor
	byExt  map[string]string
}

// DefaultExtractors registers plain text, markdown, PDF and DOCX.
func DefaultExtractors() *Extractors {
	e := &Extractors{byType: map[string]Extractor{}, byExt: map[string]string{}}
	e.Register(mediaPlain, ExtractorFunc(extractPlain), ".txt", ".text")
	md := newMarkdownExtractor()
	e.Register(mediaMarkdown, md, ".md", ".markdown")
	e.Register("text/x-markdown", md)
	e.Register(mediaPDF, ExtractorFunc(extractPDF), ".pdf")
	e.Register(mediaDOCX, ExtractorFunc(extractDOCX), ".docx")
	return e
}

// Register adds an extractor for mediaType and maps the given file extensions to it.
func (e *Extractors) Register(mediaType string, x Extractor, exts ...string) {
	e.byType[mediaType] = x
	for _, ext := range exts {
		e.byExt[strings.ToLower(ext)] = mediaType
	}
}

// Resolve returns the media type for an upload. A missing or generic content
// type falls back to the filename extension.
func (e *Extractors) Resolve(contentType, filename string) string {
	if contentType != "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil && mt != "application/octet-stream" {
			return mt
		}
	}
	return e.byExt[strings.ToLower(filepath.Ext(filename))]
}

// Supports reports whether a file would be accepted based on its name alone.
func (e *Extractors) Supports(filename string) bool {
	_, ok := e.byType[e.Resolve("", filename)]
	return ok
}

// Extract runs the extractor registered for mediaType.
func (e *Extractors) Extract(mediaType string, data []byte) (string, error) {
	x, ok := e.byType[mediaType]
	if !ok {
		if mediaType == "" {
			mediaType = "unknown"
		}
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, mediaType)
	}
	out, err := x.Extract(data)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	return out, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func extractPlain(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return "", fmt.Errorf("content is not valid UTF-8")
	}
	return string(data), nil
}

type markdownExtractor struct {
	parser goldmark.Markdown
}

func newMarkdownExtractor() *markdownExtractor {
	return &markdownExtractor{
		parser: goldmark.New(
			goldmark.WithExtensions(extension.Table),
		),
	}
}

var blankLines = regexp.MustCompile(`\n{3,}`)

// Extract renders the markdown AST as plain text, one block per paragraph.
func (m *markdownExtractor) Extract(data []byte) (string, error) {
	content, err := extractPlain(data)
	if err != nil {
		return "", err
	}
	source := []byte(content)
	doc := m.parser.Parser().Parse(text.NewReader(source))

	var sb strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument {
				sb.WriteString("\n\n")
			}
			return ast.WalkContinue, nil
		}

		switch v := n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := v.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				sb.Write(seg.Value(source))
			}
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			sb.Write(v.Segment.Value(source))
			if v.HardLineBreak() || v.SoftLineBreak() {
				sb.WriteByte('\n')
			}
		case *ast.String:
			sb.Write(v.Value)
		case *ast.AutoLink:
			sb.Write(v.URL(source))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	out := blankLines.ReplaceAllString(sb.String(), "\n\n")
	return strings.TrimSpace(out), nil
}
