// Package trace drives a recorded event log through the correlation engine.
//
// The live trace session and the binary blob decoder are external
// collaborators; what they leave behind is the typed event log this package
// replays. Replay preserves the delivery order the session recorded, which is
// the ordering contract the engine depends on.
package trace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/framewatch/internal/config"
	"github.com/roach88/framewatch/internal/etw"
	"github.com/roach88/framewatch/internal/present"
)

// Sink receives the engine's outputs as the session drains them.
// Implementations must tolerate empty batches.
type Sink interface {
	Completed([]*present.Record) error
	Lost([]*present.Record) error
	ProcessEvents([]present.ProcessEvent) error
}

// Session pumps one recorded event log through a Consumer.
type Session struct {
	cfg      config.Session
	consumer *present.Consumer
}

// New builds a session and its consumer from configuration.
func New(cfg config.Session) *Session {
	consumer := present.NewConsumer(
		present.WithTrackDisplay(cfg.TrackDisplay),
		present.WithProcessFilter(cfg.FilterProcesses),
		present.WithRingCapacity(cfg.RingCapacity),
	)
	for _, pid := range cfg.TrackedPIDs {
		consumer.AddTrackedProcess(pid)
	}
	return &Session{cfg: cfg, consumer: consumer}
}

// Consumer exposes the session's engine for dequeue access and stats.
func (s *Session) Consumer() *present.Consumer {
	return s.consumer
}

// drainEvery bounds how much output accumulates between sink flushes.
const drainEvery = 4096

// Run replays the configured event log to completion.
//
// All events are dispatched from this goroutine (the engine is single
// writer). Every drainEvery events the output queues are flushed to the sink;
// at end of log all still-live records are drained as lost and flushed.
//
// Context cancellation stops the replay between events; the engine needs no
// other cancellation signal.
func (s *Session) Run(ctx context.Context, sink Sink) error {
	r, err := etw.OpenLog(s.cfg.Log)
	if err != nil {
		return err
	}
	defer r.Close()

	slog.Info("session starting", "log", s.cfg.Log, "track_display", s.cfg.TrackDisplay)

	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("session read: %w", err)
		}

		s.consumer.Dispatch(ev)
		n++
		if n%drainEvery == 0 {
			if err := s.flush(sink); err != nil {
				return err
			}
		}
	}

	// End of log: everything still live was never going to complete.
	s.consumer.Drain()
	if err := s.flush(sink); err != nil {
		return err
	}

	if skipped := r.Skipped(); skipped > 0 {
		slog.Warn("session finished with malformed lines", "skipped", skipped)
	}
	slog.Info("session finished", "events", n)
	return nil
}

// flush moves all pending engine output to the sink. Process events go
// first: sinks resolve process names from them when rendering presents.
func (s *Session) flush(sink Sink) error {
	if procs := s.consumer.DequeueProcessEvents(); len(procs) > 0 {
		if err := sink.ProcessEvents(procs); err != nil {
			return fmt.Errorf("flush process events: %w", err)
		}
	}
	if completed := s.consumer.DequeueCompleted(); len(completed) > 0 {
		if err := sink.Completed(completed); err != nil {
			return fmt.Errorf("flush completed: %w", err)
		}
	}
	if lost := s.consumer.DequeueLost(); len(lost) > 0 {
		if err := sink.Lost(lost); err != nil {
			return fmt.Errorf("flush lost: %w", err)
		}
	}
	return nil
}
