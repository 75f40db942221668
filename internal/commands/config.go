package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/diogo/geminichat/internal/config"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change settings",
		Long: `Show or change geminichat settings stored in config.json.

Keys: ` + strings.Join(config.Keys(), ", "),
	}

	cmd.AddCommand(
		newConfigShowCmd(opts),
		newConfigSetCmd(opts),
		newConfigModelsCmd(),
	)
	return cmd
}

func newConfigShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := opts.dir()
			if err != nil {
				return err
			}
			cfg, err := config.LoadConfig(dir)
			if err != nil {
				return err
			}
			key, err := config.LoadAPIKey(dir)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "KEY\tVALUE")
			_, _ = fmt.Fprintln(w, "---\t-----")
			for _, k := range config.Keys() {
				v, _ := cfg.Get(k)
				_, _ = fmt.Fprintf(w, "%s\t%s\n", k, v)
			}
			_, _ = fmt.Fprintf(w, "api_key\t%s\n", config.MaskAPIKey(key))
			_, _ = fmt.Fprintf(w, "data_dir\t%s\n", dir)
			return w.Flush()
		},
	}
}

func newConfigSetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change a setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := opts.dir()
			if err != nil {
				return err
			}
			cfg, err := config.LoadConfig(dir)
			if err != nil {
				return err
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := config.SaveConfig(dir, cfg); err != nil {
				return err
			}

			v, _ := cfg.Get(args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], v)
			return nil
		},
	}
}

func newConfigModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List known models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range config.AvailableModels() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
