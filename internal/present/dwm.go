package present

import (
	"sort"

	"github.com/roach88/framewatch/internal/etw"
)

// handleDWMEvent routes desktop-compositor events.
func (c *Consumer) handleDWMEvent(ev etw.Event) {
	switch ev.ID {
	case etw.DWMSchedulePresentStart:
		// Identifies the compositor process and, more importantly, the
		// thread its own presents are issued on.
		c.dwmPID = ev.PID
		c.dwmPresentTID = ev.TID

	case etw.DWMUpdateWindow:
		c.handleUpdateWindow(ev)

	case etw.DWMGetPresentHistory:
		c.handleGetPresentHistory()

	case etw.DWMFlipChainPending, etw.DWMFlipChainComplete, etw.DWMFlipChainDirty:
		c.handleFlipChain(ev)

	case etw.DWMScheduleSurfaceUpdate:
		if rec, _ := lookup(c, c.byCompositionToken, compositionKey(ev.Props)); rec != nil {
			rec.DwmNotified = true
		}
	}
}

// handleUpdateWindow marks a window active for this composition cycle: the
// compositor will pick up its latest present on the next GetPresentHistory.
// The window's parked present is notified now so a lossy trace that drops
// the batching event still records the compositor touch.
func (c *Consumer) handleUpdateWindow(ev etw.Event) {
	hwnd := ev.Props.Uint("hWnd")
	if hwnd == 0 {
		return
	}
	c.composedWindows[hwnd] = struct{}{}
	if rec, _ := lookup(c, c.byWindowLast, hwnd); rec != nil {
		rec.DwmNotified = true
	}
}

// handleGetPresentHistory moves every composed-copy present currently parked
// as a window's latest into the waiting-for-compositor queue, then clears the
// window table and the active-window set. They will complete when the
// compositor's own present reaches the screen.
//
// Batching is deliberately not gated on UpdateWindow: the active-window set
// only adds notification, so presents on windows whose UpdateWindow was
// dropped from the trace still reach the compositor hand-off.
func (c *Consumer) handleGetPresentHistory() {
	var moved []Handle
	for _, h := range c.byWindowLast {
		rec := c.arena.get(h)
		if rec == nil {
			continue
		}
		switch rec.Mode {
		case ModeComposedCopyGPU, ModeComposedCopyCPU, ModeComposedCompositionAtlas:
			rec.DwmNotified = true
			rec.WaitingForCompositor = true
			moved = append(moved, h)
		}
	}
	clear(c.byWindowLast)

	// Map order is not deterministic; queue in present order.
	sort.Slice(moved, func(i, j int) bool {
		a, b := c.arena.get(moved[i]), c.arena.get(moved[j])
		if a.QPCStart != b.QPCStart {
			return a.QPCStart < b.QPCStart
		}
		return a.ID < b.ID
	})
	c.waitingForCompositor = append(c.waitingForCompositor, moved...)

	clear(c.composedWindows)
}

// handleFlipChain correlates a legacy blit token with the window it belongs
// to; from here the present follows the windowed-blit path to the screen.
func (c *Consumer) handleFlipChain(ev etw.Event) {
	token := ev.Props.Uint("ulFlipChain")<<32 | ev.Props.Uint("ulSerialNumber")
	rec, h := lookup(c, c.byLegacyBlitToken, token)
	if rec == nil {
		c.metrics.orphan()
		return
	}

	hwnd := ev.Props.Uint("hwnd")
	delete(c.byLegacyBlitToken, token)
	rec.DwmNotified = true
	if hwnd != 0 {
		c.setWindowLast(rec, h, hwnd)
	}
}
