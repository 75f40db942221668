package render

import (
	"github.com/diogo/geminichat/internal/latex"
)

// Markdown renders markdown content for terminal display.
// Uses a pooled renderer for better performance and thread safety.
func Markdown(content string, opts Options) (string, error) {
	renderer, err := globalPool.get(opts)
	if err != nil {
		return "", err
	}
	defer globalPool.put(opts, renderer)

	return renderer.Render(content)
}

// Reply renders a model reply: formulas first, then markdown. When
// markdown rendering fails the formula-rendered text is returned with the
// error.
func Reply(content string, opts Options) (string, error) {
	text := content
	if latex.HasFormula(content) {
		text = latex.Render(content, latex.Unicode)
	}
	out, err := Markdown(text, opts)
	if err != nil {
		return text, err
	}
	return out, nil
}
