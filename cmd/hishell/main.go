// Package main is the entry point for the hishell command.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/git-pkgs/hishell/cmd/hishell/commands"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cli := commands.New(stdout, stderr)
	cli.SetArgs(args)

	if err := cli.Execute(ctx); err != nil {
		cli.Logger().Error(err)
		return 1
	}
	return 0
}
