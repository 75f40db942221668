// Package latex splits model output into plain text and $...$ / $$...$$
// formulas and renders the formulas for a terminal.
package latex

import (
	"fmt"
	"regexp"
	"strings"
)

// SegmentKind identifies a piece of split text
type SegmentKind int

const (
	Plain SegmentKind = iota
	Inline
	Block
)

func (k SegmentKind) String() string {
	switch k {
	case Inline:
		return "inline"
	case Block:
		return "block"
	}
	return "plain"
}

// Segment is a run of plain text or a formula without its delimiters
type Segment struct {
	Kind SegmentKind
	Text string
}

// Renderer turns one formula into displayable text
type Renderer interface {
	Render(expr string, block bool) (string, error)
}

// RendererFunc adapts a function to Renderer
type RendererFunc func(expr string, block bool) (string, error)

func (f RendererFunc) Render(expr string, block bool) (string, error) {
	return f(expr, block)
}

// Block formulas are matched before inline ones so $$x$$ is never read as
// two empty inline spans.
var formulaPattern = regexp.MustCompile(`\$\$[^$]+\$\$|\$[^$]+\$`)

// Split returns the segments of text in order. Formula text is trimmed.
// Text without delimiters yields a single plain segment; empty text yields
// none.
func Split(text string) []Segment {
	var segs []Segment
	last := 0
	for _, loc := range formulaPattern.FindAllStringIndex(text, -1) {
		if loc[0] > last {
			segs = append(segs, Segment{Kind: Plain, Text: text[last:loc[0]]})
		}
		match := text[loc[0]:loc[1]]
		if strings.HasPrefix(match, "$$") && strings.HasSuffix(match, "$$") && len(match) > 4 {
			segs = append(segs, Segment{Kind: Block, Text: strings.TrimSpace(match[2 : len(match)-2])})
		} else {
			segs = append(segs, Segment{Kind: Inline, Text: strings.TrimSpace(match[1 : len(match)-1])})
		}
		last = loc[1]
	}
	if last < len(text) {
		segs = append(segs, Segment{Kind: Plain, Text: text[last:]})
	}
	return segs
}

// HasFormula reports whether text contains any delimited formula
func HasFormula(text string) bool {
	return formulaPattern.MatchString(text)
}

// ErrorAnnotation is the inline text shown in place of a formula that could
// not be rendered
func ErrorAnnotation(err error) string {
	return fmt.Sprintf("[LaTeX render error: %v]", err)
}

// Render renders every formula in text with r and joins the result. Block
// formulas get a line of their own. A formula that fails to render is
// replaced by ErrorAnnotation; rendering never fails as a whole.
func Render(text string, r Renderer) string {
	if r == nil {
		r = Unicode
	}

	var sb strings.Builder
	for _, seg := range Split(text) {
		switch seg.Kind {
		case Plain:
			sb.WriteString(seg.Text)
		case Inline:
			out, err := r.Render(seg.Text, false)
			if err != nil {
				out = ErrorAnnotation(err)
			}
			sb.WriteString(out)
		case Block:
			out, err := r.Render(seg.Text, true)
			if err != nil {
				out = ErrorAnnotation(err)
			}
			if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
				sb.WriteByte('\n')
			}
			sb.WriteString("    ")
			sb.WriteString(out)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
