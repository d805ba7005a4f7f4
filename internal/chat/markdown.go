package chat

import (
	"fmt"

	"github.com/charmbracelet/glamour"
)

// renderMarkdown renders a reply for the terminal. Rendering problems are
// returned as the rendered text so the reply is never lost.
func renderMarkdown(s string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(width),
		glamour.WithPreservedNewLines(),
	)
	if err != nil {
		return fmt.Sprintf("failed to create markdown renderer: %s\n\n%s\n", err, s)
	}

	out, err := r.Render(s)
	if err != nil {
		return fmt.Sprintf("failed to render markdown: %s\n\n%s\n", err, s)
	}

	return out
}
