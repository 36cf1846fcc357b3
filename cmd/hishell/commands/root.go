// Package commands implements the hishell command line.
package commands

import (
	"context"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/git-pkgs/hishell"
	_ "github.com/git-pkgs/hishell/all"
)

// Version is set at build time.
var Version = "dev"

// CLI represents the command line interface for hishell.
type CLI struct {
	rootCmd *cobra.Command
	stdout  io.Writer
	stderr  io.Writer
	logger  *log.Logger

	configPath string
	workDir    string
	verbose    bool
}

// New creates a CLI writing to stdout and stderr.
func New(stdout, stderr io.Writer) *CLI {
	c := &CLI{
		stdout: stdout,
		stderr: stderr,
		logger: log.NewWithOptions(stderr, log.Options{Prefix: "hishell"}),
	}

	rootCmd := &cobra.Command{
		Use:           "hishell",
		Short:         "Resolve the NuGet packages referenced by shell scripts",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	rootCmd.InitDefaultVersionFlag()
	rootCmd.Flags().Lookup("version").Usage = "Print the application version"

	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "Config file (default searches the working and user config directories)")
	rootCmd.PersistentFlags().StringVarP(&c.workDir, "dir", "d", "", "Working directory holding the cache and nuget.config")
	rootCmd.PersistentFlags().BoolVar(&c.verbose, "verbose", false, "Enable debug logging")

	rootCmd.AddCommand(c.newResolveCmd())
	rootCmd.AddCommand(c.newNuGetCmd())

	c.rootCmd = rootCmd
	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// Logger returns the logger commands report through.
func (c *CLI) Logger() *log.Logger {
	return c.logger
}

// engine loads the configuration for workDir and builds an engine from it.
// An explicit --dir wins over workDir.
func (c *CLI) engine(ctx context.Context, workDir string) (*hishell.Engine, error) {
	if c.workDir != "" {
		workDir = c.workDir
	}
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		workDir = wd
	}

	cfg, path, err := hishell.LoadConfig(ctx, hishell.LoadOptions{ConfigFilePath: c.configPath, WorkDir: workDir})
	if err != nil {
		return nil, err
	}

	c.logger.SetLevel(cfg.Level())
	if c.verbose {
		c.logger.SetLevel(log.DebugLevel)
	}
	if path != "" {
		c.logger.Debug("loaded config", "path", path)
	}

	return hishell.NewEngine(cfg, hishell.WithLogger(c.logger))
}
