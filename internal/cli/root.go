// Package cli implements the framewatch command line.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
}

// NewRootCommand creates the root command for the framewatch CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "framewatch",
		Short: "framewatch - per-present timing from graphics trace logs",
		Long: `framewatch reconstructs per-present timing records from recorded
graphics-stack trace events: which process presented, which presentation
path each present took, when it was submitted, GPU-ready, and on screen,
and whether it was displayed or discarded.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if opts.Verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewAnalyzeCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))

	return cmd
}
