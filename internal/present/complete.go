package present

import "log/slog"

// completePresent finishes rec and everything its completion implies:
// every older in-flight present from the same process first (which is what
// enforces per-process emission order), then rec itself, then rec's
// dependents in hand-off order.
func (c *Consumer) completePresent(rec *Record) {
	if rec.terminal() {
		return
	}

	// Finish all older presents from this process. A newer present reaching
	// the screen means the older ones never will: Discarded unless they
	// already had a screen time.
	if op, ok := c.byProcess[rec.PID]; ok {
		for _, oh := range op.older(rec.QPCStart) {
			older := c.arena.get(oh)
			if older == nil || older == rec || older.terminal() {
				continue
			}
			if older.FinalState == ResultUnknown {
				if older.ScreenQPC != 0 {
					older.FinalState = ResultPresented
				} else {
					older.FinalState = ResultDiscarded
				}
			}
			c.finalize(older)
		}
	}

	c.finalize(rec)
}

// finalize moves one record out of the live set: purges its index entries,
// emits or defers it, and then completes its dependents, each inheriting the
// record's screen time and outcome if they had none of their own.
func (c *Consumer) finalize(rec *Record) {
	if rec.terminal() {
		return
	}

	// A present-stop still expected on the originating thread defers the
	// hand-off: the stop supplies TimeTaken, so emission waits for it.
	// Presents that never went through a runtime get no stop at all.
	cur, _ := lookup(c, c.byThread, rec.TID)
	waitForStop := cur == rec && rec.Runtime != RuntimeOther

	deps := rec.Dependents
	rec.Dependents = nil

	c.untrack(rec, waitForStop)

	if waitForStop {
		rec.CompletionDeferred = true
		c.deferred[rec.PID] = append(c.deferred[rec.PID], deferredCompletion{
			h:              c.handleOf(rec),
			remainingStops: 1,
		})
		slog.Debug("completion deferred",
			"id", rec.ID,
			"pid", rec.PID,
			"state", rec.FinalState.String(),
		)
	} else if len(c.deferred[rec.PID]) > 0 {
		// Earlier presents from this process are still held; queue behind
		// them so emission order stays ascending by QPCStart.
		c.deferred[rec.PID] = append(c.deferred[rec.PID], deferredCompletion{
			h:              c.handleOf(rec),
			remainingStops: 0,
		})
	} else {
		c.emitCompleted(rec)
	}

	for _, dh := range deps {
		dep := c.arena.get(dh)
		if dep == nil || dep.terminal() || dep == rec {
			continue
		}
		if dep.ScreenQPC == 0 {
			dep.ScreenQPC = rec.ScreenQPC
		}
		if dep.FinalState == ResultUnknown {
			dep.FinalState = rec.FinalState
		}
		c.completePresent(dep)
	}
}

// emitCompleted hands a finalized record to the completed queue, applying the
// process filter, and releases its arena slot.
func (c *Consumer) emitCompleted(rec *Record) {
	rec.IsCompleted = true
	c.arena.release(c.handleOf(rec))

	if !c.trackedForFiltering(rec.PID) {
		return
	}

	c.metrics.completed()
	c.completedMu.Lock()
	c.completedOut = append(c.completedOut, rec)
	c.hasCompleted = true
	c.completedMu.Unlock()

	slog.Debug("present completed",
		"id", rec.ID,
		"pid", rec.PID,
		"mode", rec.Mode.String(),
		"state", rec.FinalState.String(),
		"screen", rec.ScreenQPC,
	)
}

// removeLost takes a record out of the live set without completing it:
// correlation failed (ring eviction, key replacement) or the session ended.
// The record is emitted on the lost queue in the order it became lost.
func (c *Consumer) removeLost(rec *Record, code CorrelationErrorCode) {
	if rec.terminal() {
		return
	}
	rec.IsLost = true

	c.untrack(rec, false)
	c.removeDeferred(rec)
	c.arena.release(c.handleOf(rec))
	c.metrics.lost(code)

	if !c.trackedForFiltering(rec.PID) {
		return
	}

	c.lostMu.Lock()
	c.lostOut = append(c.lostOut, rec)
	c.lostMu.Unlock()

	slog.Debug("present lost",
		"id", rec.ID,
		"pid", rec.PID,
		"cause", string(code),
	)
}

// removeDeferred drops rec from its process' deferred-completion list, if it
// is there.
func (c *Consumer) removeDeferred(rec *Record) {
	list, ok := c.deferred[rec.PID]
	if !ok {
		return
	}
	for i, d := range list {
		if c.arena.get(d.h) == rec {
			c.deferred[rec.PID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(c.deferred[rec.PID]) == 0 {
		delete(c.deferred, rec.PID)
	}
}

// burnDeferredStop credits a runtime present-stop to the deferred record it
// belongs to. Each record waits for its own stops; a stop for one thread's
// present must not release another thread's.
func (c *Consumer) burnDeferredStop(rec *Record) {
	list := c.deferred[rec.PID]
	for i := range list {
		if c.arena.get(list[i].h) == rec {
			if list[i].remainingStops > 0 {
				list[i].remainingStops--
			}
			return
		}
	}
}

// burnOldestDeferredStop credits a present-stop that matched no tracked
// record to the oldest entry still waiting. This keeps batched presents
// draining when the stop's own record was already emitted or lost.
func (c *Consumer) burnOldestDeferredStop(pid uint32) {
	list := c.deferred[pid]
	for i := range list {
		if list[i].remainingStops > 0 {
			list[i].remainingStops--
			return
		}
	}
}

// drainDeferred emits deferred completions whose stops have all arrived.
// Emission is FIFO from the list head, which keeps per-process order: a
// zeroed entry behind one still waiting stays held.
func (c *Consumer) drainDeferred(pid uint32) {
	list, ok := c.deferred[pid]
	if !ok {
		return
	}

	emitted := 0
	for _, d := range list {
		if d.remainingStops > 0 {
			break
		}
		if rec := c.arena.get(d.h); rec != nil && !rec.terminal() {
			c.emitCompleted(rec)
		}
		emitted++
	}

	if emitted == len(list) {
		delete(c.deferred, pid)
	} else {
		c.deferred[pid] = list[emitted:]
	}
}
