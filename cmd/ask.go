package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/killallgit/chatstream/pkg/chat"
	"github.com/killallgit/chatstream/pkg/controllers"
	"github.com/killallgit/chatstream/pkg/render"
	"github.com/killallgit/chatstream/pkg/session"
	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "Ask one question and print the streamed answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		stopOnInterrupt(ctx, app.Session, cancel)

		return runAsk(ctx, app.Session, app.Markdown, strings.Join(args, " "), cmd.OutOrStdout())
	},
}

// runAsk sends query once. Without a markdown renderer the answer is printed
// as it streams; with one, the finished answer is rendered in one go.
func runAsk(ctx context.Context, s *session.Session, markdown *render.MarkdownRenderer, query string, out io.Writer) error {
	var printer *render.StreamPrinter
	if markdown == nil {
		printer = render.NewStreamPrinter(out)
		unsubscribe := s.SubscribeMessages(func(msgs []chat.ChatMessage) {
			if s.Loading() {
				printer.Update(msgs)
			}
		})
		defer unsubscribe()
	}

	result, err := s.Send(ctx, query)
	if printer != nil {
		printer.Done()
	}
	if err != nil {
		return err
	}

	switch result.Outcome {
	case controllers.OutcomeCancelled:
		fmt.Fprintln(out, render.Status("Stopped."))
	case controllers.OutcomeFinished:
		if markdown != nil {
			fmt.Fprintln(out, markdown.Render(result.Message.Content))
		}
	}
	return nil
}
