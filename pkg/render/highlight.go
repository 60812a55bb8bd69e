package render

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/killallgit/chatstream/pkg/chat"
	"github.com/killallgit/chatstream/pkg/logger"
)

// HighlightStyle is the chroma style used for payloads and code.
const HighlightStyle = "monokai"

// Highlight applies terminal syntax highlighting to content. Unknown
// languages are guessed from the content; on any failure the content is
// returned unchanged.
func Highlight(content, language string) string {
	if content == "" {
		return ""
	}
	log := logger.WithComponent("render")

	var lexer chroma.Lexer
	if language != "" {
		lexer = lexers.Get(language)
	}
	if lexer == nil {
		lexer = lexers.Analyse(content)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}

	formatter := formatters.Get("terminal16m")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, content)
	if err != nil {
		log.Debug("Failed to tokenize, using plain text", "error", err)
		return content
	}
	var buf strings.Builder
	if err := formatter.Format(&buf, styles.Get(HighlightStyle), iterator); err != nil {
		log.Debug("Failed to format, using plain text", "error", err)
		return content
	}
	return buf.String()
}

// EventDetail formats an event with its payload indented and highlighted on
// the lines below its name.
func EventDetail(e chat.EventMessage) string {
	header := EventStyle.Render("• " + e.Name + " " + e.CreatedAt.Format("15:04:05"))
	if len(e.Payload) == 0 {
		return header
	}

	var pretty bytes.Buffer
	payload := string(e.Payload)
	if err := json.Indent(&pretty, e.Payload, "  ", "  "); err == nil {
		payload = pretty.String()
	}
	return header + "\n  " + Highlight(payload, "json")
}
