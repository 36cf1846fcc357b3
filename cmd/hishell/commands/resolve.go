package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func (c *CLI) newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <script>",
		Short: "Resolve a script's references and print the binaries to load",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			text, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading script: %w", err)
			}
			scriptDir := filepath.Dir(path)

			engine, err := c.engine(cmd.Context(), scriptDir)
			if err != nil {
				return err
			}
			stripped, res, err := engine.ResolveScript(cmd.Context(), string(text), scriptDir)
			if err != nil {
				return err
			}

			for _, ref := range res.References {
				_, _ = fmt.Fprintln(c.stdout, ref)
			}
			for _, s := range res.Skips {
				_, _ = fmt.Fprintf(c.stderr, "skipped %s\n", s.Error())
			}
			if show, _ := cmd.Flags().GetBool("script"); show {
				_, _ = fmt.Fprint(c.stdout, stripped)
			}
			return nil
		},
	}
	cmd.Flags().BoolP("script", "s", false, "Also print the script with its directives removed")
	return cmd
}
