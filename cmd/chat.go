package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/killallgit/chatstream/pkg/chat"
	"github.com/killallgit/chatstream/pkg/controllers"
	"github.com/killallgit/chatstream/pkg/logger"
	"github.com/killallgit/chatstream/pkg/render"
	"github.com/killallgit/chatstream/pkg/session"
)

const helpText = `Commands:
  /retry     ask the last question again
  /events    list event messages
  /history   show the conversation
  /help      show this help
  /quit      exit
Press Ctrl-C while an answer streams to stop it.`

// chatLoop is the interactive line-oriented chat
type chatLoop struct {
	session  *session.Session
	markdown *render.MarkdownRenderer
	out      io.Writer
	printer  *render.StreamPrinter
}

func newChatLoop(s *session.Session, markdown *render.MarkdownRenderer, out io.Writer) *chatLoop {
	return &chatLoop{
		session:  s,
		markdown: markdown,
		out:      out,
		printer:  render.NewStreamPrinter(out),
	}
}

func (c *chatLoop) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	unsubscribe := c.session.SubscribeMessages(c.follow)
	defer unsubscribe()

	fmt.Fprintln(c.out, render.Status("Type a message, or /help for commands."))
	c.prompt()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := c.handle(ctx, strings.TrimSpace(line)); quit {
				return nil
			}
			c.prompt()
		}
	}
}

// follow prints streamed text. Store writes outside a request, such as a
// rollback, are not answers and are skipped.
func (c *chatLoop) follow(msgs []chat.ChatMessage) {
	if c.session.Loading() {
		c.printer.Update(msgs)
	}
}

func (c *chatLoop) prompt() {
	fmt.Fprint(c.out, render.Label(chat.RoleUser)+" ")
}

// handle runs one input line and reports whether the loop should exit.
func (c *chatLoop) handle(ctx context.Context, line string) bool {
	switch {
	case line == "":
		return false
	case line == "/quit" || line == "/exit":
		return true
	case line == "/help":
		fmt.Fprintln(c.out, helpText)
	case line == "/retry":
		result, err := c.session.Retry(ctx)
		c.report(result, err)
	case line == "/events":
		events := c.session.Events()
		if len(events) == 0 {
			fmt.Fprintln(c.out, render.Status("No events yet."))
		}
		for _, e := range events {
			fmt.Fprintln(c.out, render.EventDetail(e))
		}
	case line == "/history":
		fmt.Fprint(c.out, render.Transcript(c.session.AllMessages(), c.markdown))
	case strings.HasPrefix(line, "/"):
		fmt.Fprintln(c.out, render.Status("Unknown command %s, try /help.", line))
	default:
		c.session.SetInput(line)
		result, err := c.session.Submit(ctx)
		c.report(result, err)
	}
	return false
}

func (c *chatLoop) report(result controllers.Result, err error) {
	printed := c.printer.Done()
	if err != nil {
		fmt.Fprintln(c.out, render.Error(err))
		return
	}
	switch result.Outcome {
	case controllers.OutcomeCancelled:
		fmt.Fprintln(c.out, render.Status("Stopped."))
	case controllers.OutcomeSkipped:
		fmt.Fprintln(c.out, render.Status("Nothing to retry."))
	case controllers.OutcomeFinished:
		if !printed {
			fmt.Fprintln(c.out, render.Status("(empty response)"))
		}
	}
}

// stopOnInterrupt makes Ctrl-C stop a streaming answer, or call quit when
// nothing is streaming.
func stopOnInterrupt(ctx context.Context, s *session.Session, quit context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	go func() {
		defer signal.Stop(sigs)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigs:
				if s.Loading() {
					logger.Debug("Interrupt received, stopping stream")
					s.Stop()
					continue
				}
				quit()
				return
			}
		}
	}()
}
