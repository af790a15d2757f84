package store

import (
	"context"
	"fmt"
)

// PresentRow is one archived present as stored.
type PresentRow struct {
	ID              uint64
	PID             uint32
	TID             uint32
	QPCStart        uint64
	TimeTaken       uint64
	ReadyQPC        uint64
	ScreenQPC       uint64
	SwapChain       uint64
	SyncInterval    int32
	PresentFlags    uint32
	Runtime         string
	Mode            string
	FinalState      string
	SupportsTearing bool
	DwmNotified     bool
	IsLost          bool
}

// ReadPresents returns all archived presents for a process in qpc order.
// Queries order by (qpc_start, id) for deterministic results.
func (s *Store) ReadPresents(ctx context.Context, pid uint32) ([]PresentRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pid, tid, qpc_start, time_taken, ready_qpc, screen_qpc,
		       swap_chain, sync_interval, present_flags, runtime, mode,
		       final_state, supports_tearing, dwm_notified, is_lost
		FROM presents
		WHERE pid = ?
		ORDER BY qpc_start ASC, id ASC
	`, pid)
	if err != nil {
		return nil, fmt.Errorf("read presents: %w", err)
	}
	defer rows.Close()

	var out []PresentRow
	for rows.Next() {
		var r PresentRow
		var id, qpc, taken, ready, screen, swap int64
		var tearing, notified, lost int
		if err := rows.Scan(&id, &r.PID, &r.TID, &qpc, &taken, &ready, &screen,
			&swap, &r.SyncInterval, &r.PresentFlags, &r.Runtime, &r.Mode,
			&r.FinalState, &tearing, &notified, &lost); err != nil {
			return nil, fmt.Errorf("scan present: %w", err)
		}
		r.ID = uint64(id)
		r.QPCStart = uint64(qpc)
		r.TimeTaken = uint64(taken)
		r.ReadyQPC = uint64(ready)
		r.ScreenQPC = uint64(screen)
		r.SwapChain = uint64(swap)
		r.SupportsTearing = tearing != 0
		r.DwmNotified = notified != 0
		r.IsLost = lost != 0
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read presents: %w", err)
	}
	return out, nil
}

// CountPresents returns the number of archived presents, split by lost flag.
func (s *Store) CountPresents(ctx context.Context) (completed, lost int64, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE is_lost = 0),
			COUNT(*) FILTER (WHERE is_lost = 1)
		FROM presents
	`)
	if err := row.Scan(&completed, &lost); err != nil {
		return 0, 0, fmt.Errorf("count presents: %w", err)
	}
	return completed, lost, nil
}
