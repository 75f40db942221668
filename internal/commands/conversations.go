package commands

import (
	"bytes"
	"fmt"
	"text/tabwriter"

	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"

	"github.com/diogo/geminichat/internal/app"
	"github.com/diogo/geminichat/internal/history"
)

func newConversationsCmd(opts *rootOptions, deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv", "history"},
		Short:   "Manage saved conversations",
		Long: `View and manage your saved conversations.

A conversation can be referenced by:
  - its ID
  - its index in the listing (1, 2, 3...)
  - @last (most recently modified) or @first
  - part of its name (must match a single conversation)`,
	}

	cmd.AddCommand(
		newConversationsListCmd(opts, deps),
		newConversationsShowCmd(opts, deps),
		newConversationsRenameCmd(opts, deps),
		newConversationsDeleteCmd(opts, deps),
		newConversationsExportCmd(opts, deps),
		newConversationsSearchCmd(opts, deps),
		newConversationsClearCmd(opts, deps),
	)
	return cmd
}

// withApp runs fn with an application context that is closed afterwards
func withApp(cmd *cobra.Command, opts *rootOptions, deps *Dependencies, fn func(a *app.App) error) (err error) {
	a, err := opts.open(cmd, deps)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(a)
}

func newConversationsListCmd(opts *rootOptions, deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, deps, func(a *app.App) error {
				list, err := a.Store.ListAll()
				if err != nil {
					return fmt.Errorf("failed to list conversations: %w", err)
				}

				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No conversations found.")
					return nil
				}

				last := a.Store.LastActive()
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				_, _ = fmt.Fprintln(w, "#\tNAME\tID\tACTIVE")
				_, _ = fmt.Fprintln(w, "-\t----\t--\t------")
				for i, meta := range list {
					active := ""
					if meta.ID == last {
						active = "✓"
					}
					_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, truncate(meta.Name, 40), meta.ID, active)
				}
				return w.Flush()
			})
		},
	}
}

func newConversationsShowCmd(opts *rootOptions, deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "show <ref>",
		Short: "Show a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, deps, func(a *app.App) error {
				id, err := a.Resolver.Resolve(args[0])
				if err != nil {
					return err
				}
				rec, err := a.Store.Load(id)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "ID: %s\n", rec.ID)
				fmt.Fprintf(out, "Name: %s\n", rec.Name)
				fmt.Fprintf(out, "Created: %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05"))
				fmt.Fprintf(out, "Modified: %s\n", rec.LastModified.Format("2006-01-02 15:04:05"))
				fmt.Fprintf(out, "Turns: %d\n", len(rec.History))
				fmt.Fprintf(out, "System prompt: %s\n\n", rec.SystemPrompt)

				for i, turn := range rec.History {
					fmt.Fprintf(out, "[%d] %s:\n", i+1, turn.Role.Label())
					fmt.Fprintf(out, "  %s\n\n", truncate(turn.Text(), 500))
				}
				return nil
			})
		},
	}
}

func newConversationsRenameCmd(opts *rootOptions, deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <ref> <new-name>",
		Short: "Rename a conversation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, deps, func(a *app.App) error {
				if err := a.Open(args[0]); err != nil {
					return err
				}
				if err := a.Session.Rename(args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed conversation to '%s'.\n", a.Session.Name())
				return nil
			})
		},
	}
}

func newConversationsDeleteCmd(opts *rootOptions, deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <ref>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, deps, func(a *app.App) error {
				id, err := a.Resolver.Resolve(args[0])
				if err != nil {
					return err
				}
				rec, err := a.Store.Load(id)
				name := id
				if err == nil {
					name = rec.Name
				}
				if _, err := a.Session.DeleteConversation(id); err != nil {
					return fmt.Errorf("failed to delete: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted conversation '%s'.\n", name)
				return nil
			})
		},
	}
}

func newConversationsExportCmd(opts *rootOptions, deps *Dependencies) *cobra.Command {
	var output, format string

	cmd := &cobra.Command{
		Use:   "export <ref>",
		Short: "Export a conversation",
		Long: `Export a conversation as plain text (default), markdown or JSON.
Without -o the export is written to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := history.ParseExportFormat(format)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, deps, func(a *app.App) error {
				id, err := a.Resolver.Resolve(args[0])
				if err != nil {
					return err
				}
				rec, err := a.Store.Load(id)
				if err != nil {
					return err
				}

				if output == "" {
					return history.Export(rec, f, cmd.OutOrStdout())
				}

				var buf bytes.Buffer
				if err := history.Export(rec, f, &buf); err != nil {
					return err
				}
				if err := renameio.WriteFile(output, buf.Bytes(), 0o644); err != nil {
					return fmt.Errorf("failed to write export: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported '%s' to %s\n", rec.Name, output)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the export to a file")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Export format: text, markdown, json")
	return cmd
}

func newConversationsSearchCmd(opts *rootOptions, deps *Dependencies) *cobra.Command {
	var content bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search conversations by name or content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, deps, func(a *app.App) error {
				results, err := a.Store.Search(args[0], content)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(results) == 0 {
					fmt.Fprintf(out, "No conversations matching '%s'.\n", args[0])
					return nil
				}

				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				_, _ = fmt.Fprintln(w, "NAME\tID\tMATCH")
				_, _ = fmt.Fprintln(w, "----\t--\t-----")
				for _, r := range results {
					match := r.MatchField
					if r.MatchField == "content" {
						match = fmt.Sprintf("turn %d: %s", r.MatchIndex+1, r.MatchSnippet)
					}
					_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", truncate(r.Meta.Name, 40), r.Meta.ID, match)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().BoolVarP(&content, "content", "c", false, "Also search message text")
	return cmd
}

func newConversationsClearCmd(opts *rootOptions, deps *Dependencies) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("this deletes every conversation; run again with --force")
			}
			return withApp(cmd, opts, deps, func(a *app.App) error {
				if err := a.Store.ClearAll(); err != nil {
					return fmt.Errorf("failed to clear conversations: %w", err)
				}
				if err := a.Store.SetLastActive(""); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "All conversations deleted.")
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Confirm deleting everything")
	return cmd
}

// truncate shortens s to at most n runes
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
