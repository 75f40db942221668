package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/diogo/geminichat/internal/config"
)

func newSetKeyCmd(opts *rootOptions, deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "set-key",
		Short: "Store your Gemini API key",
		Long: `Store the Gemini API key used to talk to the model. The key is read without
echo from the terminal, or from stdin when piped, and saved to api_key.txt in
the data directory with owner-only permissions.

GEMINI_API_KEY or GOOGLE_API_KEY in the environment take precedence over the
stored key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := opts.dir()
			if err != nil {
				return err
			}

			key, err := readSecret(cmd, deps.Stdin)
			if err != nil {
				return err
			}
			if err := config.SaveAPIKey(dir, key); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "API key %s saved to %s\n",
				config.MaskAPIKey(strings.TrimSpace(key)), config.GetAPIKeyPath(dir))
			return nil
		},
	}
}

// readSecret reads one line from in, without echo when in is a terminal
func readSecret(cmd *cobra.Command, in io.Reader) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), "Gemini API key: ")
		data, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read key: %w", err)
		}
		return string(data), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read key: %w", err)
	}
	return line, nil
}
