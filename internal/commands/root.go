// Package commands provides CLI commands for geminichat.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/diogo/geminichat/internal/app"
	"github.com/diogo/geminichat/internal/config"
	"github.com/diogo/geminichat/internal/tui"
)

var (
	// Version info (set at build time)
	Version   = "0.1.0"
	BuildTime = "unknown"
)

// rootOptions holds the persistent flags shared by every subcommand
type rootOptions struct {
	dataDir  string
	logLevel string
	model    string
}

// dir returns the data directory without building the whole app
func (o *rootOptions) dir() (string, error) {
	if o.dataDir != "" {
		return o.dataDir, nil
	}
	return config.GetConfigDir()
}

// open builds the application context for a command
func (o *rootOptions) open(cmd *cobra.Command, deps *Dependencies) (*app.App, error) {
	return app.New(cmd.Context(), app.Options{
		DataDir:  o.dataDir,
		LogLevel: o.logLevel,
		Model:    o.model,
		Client:   deps.Client,
	})
}

// NewRootCmd creates the geminichat command tree
func NewRootCmd(deps *Dependencies) *cobra.Command {
	if deps == nil {
		deps = NewDependencies()
	}
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "geminichat",
		Short: "Terminal chat client for Google Gemini",
		Long: `geminichat is a terminal chat client for Google Gemini. Conversations are
kept as JSON files in the data directory and can be resumed, renamed,
exported and given reusable system prompts (preprompts).

Examples:
  geminichat                            Start the chat (resumes the last conversation)
  geminichat set-key                    Store your Gemini API key
  geminichat ask "What is Go?"          Send a single message
  geminichat conversations list         List saved conversations
  geminichat preprompt save tutor       Save a reusable system prompt`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if v, _ := cmd.Flags().GetBool("version"); v {
				fmt.Fprintf(cmd.OutOrStdout(), "geminichat %s (built %s)\n", Version, BuildTime)
				return nil
			}
			return runChat(cmd, opts, deps)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "Data directory (default ~/.geminichat, or $GEMINICHAT_HOME)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	cmd.PersistentFlags().StringVarP(&opts.model, "model", "m", "", "Model to use (e.g., gemini-2.5-flash)")
	cmd.Flags().BoolP("version", "v", false, "Show version and exit")

	cmd.AddCommand(
		newConversationsCmd(opts, deps),
		newPrepromptCmd(opts, deps),
		newConfigCmd(opts),
		newSetKeyCmd(opts, deps),
		newAskCmd(opts, deps),
	)

	return cmd
}

func runChat(cmd *cobra.Command, opts *rootOptions, deps *Dependencies) (err error) {
	a, err := opts.open(cmd, deps)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := a.Resume(); err != nil {
		return fmt.Errorf("failed to open a conversation: %w", err)
	}

	return deps.TUI.RunChat(cmd.Context(), tui.Deps{
		Session:    a.Session,
		Dispatcher: a.Dispatcher,
		Preprompts: a.Preprompts,
		Resolver:   a.Resolver,
		Config:     a.Config,
		ConfigDir:  a.Dir,
		ModelName:  a.ModelName,
		Clipboard:  deps.Clipboard,
	})
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd(NewDependencies()).Execute(); err != nil {
		tui.PrintError(err)
		os.Exit(1)
	}
}
