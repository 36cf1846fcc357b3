package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

func (c *CLI) newNuGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nuget",
		Short: "Manage the package cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Display command usage help without returning an error
			return cmd.Help()
		},
	}
	cmd.AddCommand(c.newNuGetListCmd())
	cmd.AddCommand(c.newNuGetRemoveCmd())
	return cmd
}

func (c *CLI) newNuGetListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List cached packages",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, err := c.engine(cmd.Context(), "")
			if err != nil {
				return err
			}
			entries, err := engine.Cache().List()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				_, _ = fmt.Fprintln(c.stdout, "no cached packages")
				return nil
			}
			for _, e := range entries {
				_, _ = fmt.Fprintln(c.stdout, e.Name)
				for _, f := range e.Files {
					_, _ = fmt.Fprintf(c.stdout, "  %s\n", filepath.Base(f))
				}
				if e.Dir != "" {
					_, _ = fmt.Fprintf(c.stdout, "  %s%c\n", filepath.Base(e.Dir), filepath.Separator)
				}
			}
			return nil
		},
	}
}

func (c *CLI) newNuGetRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <name|all>",
		Aliases: []string{"remove", "delete", "del"},
		Short:   "Remove cached packages by name, glob or all",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := c.engine(cmd.Context(), "")
			if err != nil {
				return err
			}
			res, err := engine.Cache().Clean(args[0])
			_, _ = fmt.Fprintf(c.stdout, "deleted %d files and %d directories\n", res.DeletedFiles, res.DeletedDirs)
			return err
		},
	}
}
