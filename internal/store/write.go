package store

import (
	"context"
	"fmt"

	"github.com/roach88/framewatch/internal/present"
)

// WritePresent inserts a finalized present record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - replaying a session into
// an existing archive does not duplicate rows.
func (s *Store) WritePresent(ctx context.Context, rec *present.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO presents
		(id, pid, tid, qpc_start, time_taken, ready_qpc, screen_qpc,
		 swap_chain, sync_interval, present_flags, runtime, mode, final_state,
		 supports_tearing, dwm_notified, is_lost)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		int64(rec.ID),
		rec.PID,
		rec.TID,
		int64(rec.QPCStart),
		int64(rec.TimeTaken),
		int64(rec.ReadyQPC),
		int64(rec.ScreenQPC),
		int64(rec.SwapChain),
		rec.SyncInterval,
		rec.PresentFlags,
		rec.Runtime.String(),
		rec.Mode.String(),
		rec.FinalState.String(),
		boolInt(rec.SupportsTearing),
		boolInt(rec.DwmNotified),
		boolInt(rec.IsLost),
	)
	if err != nil {
		return fmt.Errorf("write present %d: %w", rec.ID, err)
	}
	return nil
}

// WriteProcessEvent appends a process lifecycle event.
func (s *Store) WriteProcessEvent(ctx context.Context, ev present.ProcessEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO process_events (pid, qpc, image_name, is_start)
		VALUES (?, ?, ?, ?)
	`,
		ev.PID,
		int64(ev.QPC),
		ev.ImageName,
		boolInt(ev.IsStart),
	)
	if err != nil {
		return fmt.Errorf("write process event: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
