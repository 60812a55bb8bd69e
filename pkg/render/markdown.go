package render

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/killallgit/chatstream/pkg/chat"
	"github.com/killallgit/chatstream/pkg/logger"
	"github.com/pkg/errors"
)

// MarkdownRenderer renders finalized assistant messages with glamour
type MarkdownRenderer struct {
	renderer *glamour.TermRenderer
}

// NewMarkdownRenderer creates a renderer for a glamour standard style name.
// "auto" or an empty style picks light or dark from the terminal.
func NewMarkdownRenderer(style string, width int) (*MarkdownRenderer, error) {
	if width <= 0 {
		width = 80
	}
	styleOpt := glamour.WithAutoStyle()
	if style != "" && style != "auto" {
		styleOpt = glamour.WithStandardStyle(style)
	}

	renderer, err := glamour.NewTermRenderer(
		styleOpt,
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create markdown renderer")
	}

	return &MarkdownRenderer{renderer: renderer}, nil
}

// Render formats content as markdown, falling back to the raw text when
// glamour fails.
func (mr *MarkdownRenderer) Render(content string) string {
	rendered, err := mr.renderer.Render(content)
	if err != nil {
		logger.WithComponent("markdown").Error("Failed to render markdown with glamour", "error", err)
		return content
	}
	return strings.TrimRight(rendered, "\n")
}

// Transcript formats a merged message list for display. Assistant messages
// go through mr when it is non-nil.
func Transcript(all []chat.Message, mr *MarkdownRenderer) string {
	var b strings.Builder
	for _, m := range all {
		switch msg := m.(type) {
		case chat.ChatMessage:
			content := msg.Content
			if mr != nil && msg.IsAssistant() {
				content = mr.Render(content)
			}
			b.WriteString(Label(msg.Role))
			b.WriteString(" ")
			b.WriteString(content)
			b.WriteString("\n")
		case chat.EventMessage:
			b.WriteString(Event(msg))
			b.WriteString("\n")
		}
	}
	return b.String()
}
