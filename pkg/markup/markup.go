// Package markup turns step markdown into sanitized HTML and extracts the
// pieces front ends surface separately: the title and runnable snippets.
package markup

import (
	"bytes"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
)

var (
	md = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)
	// Raw HTML is allowed through goldmark and then cleaned here.
	policy = func() *bluemonday.Policy {
		p := bluemonday.UGCPolicy()
		p.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("code", "pre")
		return p
	}()
)

// HTML renders markdown to sanitized HTML. Rendering errors fall back to
// the escaped source inside <pre>.
func HTML(source string) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(source), &buf); err != nil {
		return policy.Sanitize("<pre>" + source + "</pre>")
	}
	return policy.Sanitize(buf.String())
}

// Snippet is a fenced code block found in step content.
type Snippet struct {
	Language string
	Content  string
}

// Outline is the structural summary of one step document.
type Outline struct {
	Title    string
	Snippets []Snippet
}

// Commands returns snippets that look like shell input.
func (o Outline) Commands() []string {
	var out []string
	for _, s := range o.Snippets {
		switch s.Language {
		case "", "sh", "bash", "shell", "console", "zsh":
			out = append(out, s.Content)
		}
	}
	return out
}

// Parse extracts the first heading and every fenced code block.
func Parse(source string) Outline {
	src := []byte(source)
	doc := md.Parser().Parse(text.NewReader(src))

	var o Outline
	_ = ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := node.(type) {
		case *ast.Heading:
			if o.Title == "" {
				o.Title = inlineText(n, src)
			}
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock:
			o.Snippets = append(o.Snippets, Snippet{
				Language: string(n.Language(src)),
				Content:  strings.TrimRight(blockLines(n, src), "\n"),
			})
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return o
}

func inlineText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

func blockLines(n ast.Node, src []byte) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(src))
	}
	return b.String()
}
