package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/framewatch/internal/store"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Archive string
	PID     uint32
}

// NewQueryCommand creates the query command for inspecting an archive.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query --archive <path> [--pid <pid>]",
		Short: "Inspect a present archive",
		Long: `Read an archive produced by 'analyze --archive' and print either the
overall present counts or, with --pid, the per-present rows for one process.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store.Open(opts.Archive)
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			if opts.PID == 0 {
				completed, lost, err := s.CountPresents(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "completed: %d\nlost: %d\n", completed, lost)
				return nil
			}

			rows, err := s.ReadPresents(cmd.Context(), opts.PID)
			if err != nil {
				return err
			}
			for _, r := range rows {
				fmt.Fprintf(out, "%d qpc=%d mode=%q state=%s screen=%d lost=%v\n",
					r.ID, r.QPCStart, r.Mode, r.FinalState, r.ScreenQPC, r.IsLost)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Archive, "archive", "", "archive path (required)")
	cmd.Flags().Uint32Var(&opts.PID, "pid", 0, "list presents for this process id")
	_ = cmd.MarkFlagRequired("archive")

	return cmd
}
