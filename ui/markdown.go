package ui

import (
	"strings"

	markdown "github.com/MichaelMure/go-term-markdown"
)

// renderMarkdown renders model output for the viewport. Rendering is
// best effort: on pathological input the raw text is shown instead.
func renderMarkdown(content string, width int) (out string) {
	if width < 20 {
		width = 20
	}
	out = content
	defer func() {
		// go-term-markdown can panic on malformed tables.
		recover()
	}()
	rendered := markdown.Render(content, width-4, 0)
	out = strings.TrimRight(string(rendered), "\n")
	return out
}
