package cmd

import (
	"context"
	"os"

	"github.com/killallgit/chatstream/pkg/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "chatstream",
	Short: "Terminal client for streaming chat endpoints",
	Long: `Chat with a streaming chat endpoint from the terminal. Answers are
printed as they arrive; press Ctrl-C to stop one mid-stream.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		stopOnInterrupt(ctx, app.Session, cancel)

		return newChatLoop(app.Session, app.Markdown, cmd.OutOrStdout()).run(ctx, cmd.InOrStdin())
	},
}

// setupApp loads configuration, with flags taking precedence, and builds the
// App for a command.
func setupApp(cmd *cobra.Command) (*App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	return NewApp(cmd.Context(), cfg)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./.chatstream/settings.yaml)")

	rootCmd.PersistentFlags().String("endpoint", "", "chat endpoint URL")
	viper.BindPFlag("endpoint.url", rootCmd.PersistentFlags().Lookup("endpoint"))

	rootCmd.PersistentFlags().String("app-id", "", "app identifier sent with every request")
	viper.BindPFlag("session.app_id", rootCmd.PersistentFlags().Lookup("app-id"))

	rootCmd.PersistentFlags().String("session-id", "", "chat session identifier")
	viper.BindPFlag("session.session_id", rootCmd.PersistentFlags().Lookup("session-id"))

	rootCmd.PersistentFlags().String("api-session-id", "", "API session identifier")
	viper.BindPFlag("session.api_session_id", rootCmd.PersistentFlags().Lookup("api-session-id"))

	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level")
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentFlags().Bool("markdown", true, "render finished answers as markdown")
	viper.BindPFlag("render.markdown", rootCmd.PersistentFlags().Lookup("markdown"))

	rootCmd.AddCommand(askCmd)
}
