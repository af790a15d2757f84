package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/framewatch/internal/config"
	"github.com/roach88/framewatch/internal/present"
	"github.com/roach88/framewatch/internal/report"
	"github.com/roach88/framewatch/internal/store"
	"github.com/roach88/framewatch/internal/trace"
)

// AnalyzeOptions holds flags for the analyze command.
type AnalyzeOptions struct {
	*RootOptions
	Config       string
	Log          string
	CSV          string
	Archive      string
	NoDisplay    bool
	RingCapacity int
	PIDs         []uint
}

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AnalyzeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "analyze [flags] [event-log]",
		Short: "Replay an event log and emit per-present records",
		Long: `Replay a recorded event log through the correlation engine and write
the completed presents as CSV, optionally archiving them to SQLite.

The event log is line-delimited JSON (optionally zstd-compressed), one typed
event per line, in trace-session delivery order.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(opts, args)
			if err != nil {
				return err
			}
			return runAnalyze(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "session config file (yaml)")
	cmd.Flags().StringVarP(&opts.CSV, "csv", "o", "", "csv output path (default stdout)")
	cmd.Flags().StringVar(&opts.Archive, "archive", "", "sqlite archive path")
	cmd.Flags().BoolVar(&opts.NoDisplay, "no-display", false, "disable display-path tracking")
	cmd.Flags().IntVar(&opts.RingCapacity, "ring-capacity", 0, "override live-record bound")
	cmd.Flags().UintSliceVar(&opts.PIDs, "pid", nil, "restrict output to these process ids")

	return cmd
}

// resolveConfig merges the config file (if any) with command-line flags;
// flags win.
func resolveConfig(opts *AnalyzeOptions, args []string) (config.Session, error) {
	cfg := config.Default()
	if opts.Config != "" {
		var err error
		cfg, err = config.Load(opts.Config)
		if err != nil {
			return config.Session{}, err
		}
	}
	if len(args) == 1 {
		cfg.Log = args[0]
	}
	if cfg.Log == "" {
		return config.Session{}, fmt.Errorf("no event log given (argument or config 'log')")
	}
	if opts.CSV != "" {
		cfg.CSV = opts.CSV
	}
	if opts.Archive != "" {
		cfg.Archive = opts.Archive
	}
	if opts.NoDisplay {
		cfg.TrackDisplay = false
	}
	if opts.RingCapacity > 0 {
		cfg.RingCapacity = opts.RingCapacity
	}
	if len(opts.PIDs) > 0 {
		cfg.FilterProcesses = true
		for _, pid := range opts.PIDs {
			cfg.TrackedPIDs = append(cfg.TrackedPIDs, uint32(pid))
		}
	}
	return cfg, nil
}

// analyzeSink routes session output to the CSV writer and archive.
type analyzeSink struct {
	ctx     context.Context
	csv     *report.CSVWriter
	archive *store.Store
}

func (s *analyzeSink) Completed(recs []*present.Record) error {
	for _, rec := range recs {
		if err := s.csv.Write(rec); err != nil {
			return err
		}
		if s.archive != nil {
			if err := s.archive.WritePresent(s.ctx, rec); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *analyzeSink) Lost(recs []*present.Record) error {
	if s.archive == nil {
		return nil
	}
	for _, rec := range recs {
		if err := s.archive.WritePresent(s.ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *analyzeSink) ProcessEvents(evs []present.ProcessEvent) error {
	for _, ev := range evs {
		if ev.IsStart {
			s.csv.SetProcessName(ev.PID, ev.ImageName)
		}
		if s.archive != nil {
			if err := s.archive.WriteProcessEvent(s.ctx, ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func runAnalyze(ctx context.Context, cfg config.Session, stdout, stderr io.Writer) error {
	csvOut := stdout
	if cfg.CSV != "" {
		f, err := os.Create(cfg.CSV)
		if err != nil {
			return fmt.Errorf("create csv output: %w", err)
		}
		defer f.Close()
		csvOut = f
	}

	sink := &analyzeSink{
		ctx: ctx,
		csv: report.NewCSVWriter(csvOut, report.WithDisplayColumns(cfg.TrackDisplay)),
	}

	if cfg.Archive != "" {
		archive, err := store.Open(cfg.Archive)
		if err != nil {
			return err
		}
		defer archive.Close()
		sink.archive = archive
	}

	session := trace.New(cfg)
	if err := session.Run(ctx, sink); err != nil {
		return err
	}
	if err := sink.csv.Flush(); err != nil {
		return err
	}

	return report.Summary(stderr, session.Consumer().Stats())
}
