package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/diogo/geminichat/internal/config"
	apperrors "github.com/diogo/geminichat/internal/errors"
)

func newPrepromptCmd(opts *rootOptions, deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "preprompt",
		Aliases: []string{"preprompts"},
		Short:   "Manage reusable system prompts",
		Long:    `View and manage preprompts: named system prompts that can be applied to any conversation.`,
	}

	cmd.AddCommand(
		newPrepromptListCmd(opts),
		newPrepromptShowCmd(opts),
		newPrepromptSaveCmd(opts, deps),
		newPrepromptDeleteCmd(opts),
	)
	return cmd
}

// library opens the preprompt library in the data directory
func (o *rootOptions) library() (*config.PrepromptLibrary, error) {
	dir, err := o.dir()
	if err != nil {
		return nil, err
	}
	return config.LoadPrepromptLibrary(dir), nil
}

func newPrepromptListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List preprompts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := opts.library()
			if err != nil {
				return err
			}

			names := lib.List()
			out := cmd.OutOrStdout()
			if len(names) == 0 {
				fmt.Fprintln(out, "No preprompts saved.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "NAME\tPROMPT")
			_, _ = fmt.Fprintln(w, "----\t------")
			for _, name := range names {
				text, _ := lib.Get(name)
				_, _ = fmt.Fprintf(w, "%s\t%s\n", name, truncate(strings.Join(strings.Fields(text), " "), 60))
			}
			return w.Flush()
		},
	}
}

func newPrepromptShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show a preprompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := opts.library()
			if err != nil {
				return err
			}
			text, ok := lib.Get(args[0])
			if !ok {
				return fmt.Errorf("preprompt '%s' not found", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
}

func newPrepromptSaveCmd(opts *rootOptions, deps *Dependencies) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "save <name> [text]",
		Short: "Save a preprompt",
		Long: `Save a preprompt under name. Without text the prompt is read from stdin
until EOF. An existing preprompt is only replaced with --force.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := opts.library()
			if err != nil {
				return err
			}

			name := args[0]
			var text string
			if len(args) == 2 {
				text = args[1]
			} else {
				data, err := io.ReadAll(deps.Stdin)
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				text = string(data)
			}
			text = strings.TrimSpace(text)

			err = lib.Save(name, text, force)
			if errors.Is(err, apperrors.ErrPrepromptExists) {
				return fmt.Errorf("preprompt '%s' already exists; use --force to overwrite", name)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Preprompt '%s' saved.\n", name)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing preprompt")
	return cmd
}

func newPrepromptDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a preprompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := opts.library()
			if err != nil {
				return err
			}
			if !lib.Exists(args[0]) {
				return fmt.Errorf("preprompt '%s' not found", args[0])
			}
			if err := lib.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Preprompt '%s' deleted.\n", args[0])
			return nil
		},
	}
}
