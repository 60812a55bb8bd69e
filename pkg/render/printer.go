package render

import (
	"io"
	"strings"
	"sync"

	"github.com/killallgit/chatstream/pkg/chat"
)

// StreamPrinter writes an assistant answer to a terminal as it streams. It
// is fed message store snapshots and prints only the text added since the
// previous snapshot.
type StreamPrinter struct {
	w io.Writer

	mu      sync.Mutex
	index   int
	printed string
	started bool
}

func NewStreamPrinter(w io.Writer) *StreamPrinter {
	return &StreamPrinter{w: w, index: -1}
}

// Update prints the new tail of the last message when it is an assistant
// message. Content that no longer extends what was printed is reprinted on a
// fresh line.
func (p *StreamPrinter) Update(msgs []chat.ChatMessage) {
	if len(msgs) == 0 {
		return
	}
	last := msgs[len(msgs)-1]
	if !last.IsAssistant() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	index := len(msgs) - 1
	if !p.started || index != p.index {
		p.begin(index)
	}

	if !strings.HasPrefix(last.Content, p.printed) {
		_, _ = io.WriteString(p.w, "\n")
		p.begin(index)
	}
	delta := last.Content[len(p.printed):]
	if delta != "" {
		_, _ = io.WriteString(p.w, delta)
		p.printed = last.Content
	}
}

func (p *StreamPrinter) begin(index int) {
	_, _ = io.WriteString(p.w, Label(chat.RoleAssistant)+" ")
	p.index = index
	p.printed = ""
	p.started = true
}

// Done ends the current answer with a newline and resets the printer for the
// next one. It reports whether anything had been printed.
func (p *StreamPrinter) Done() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	started := p.started
	if started {
		_, _ = io.WriteString(p.w, "\n")
	}
	p.index = -1
	p.printed = ""
	p.started = false
	return started
}
