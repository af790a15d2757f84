package present

import (
	"github.com/roach88/framewatch/internal/etw"
)

// DXGI present flag for DO_NOT_SEQUENCE presents; these replace the previous
// frame's content rather than queueing a new one.
const dxgiPresentDoNotSequence = 0x2

// handleDXGIEvent routes DXGI runtime events.
func (c *Consumer) handleDXGIEvent(ev etw.Event) {
	switch ev.ID {
	case etw.DXGIPresentStart, etw.DXGIPresentMPOStart:
		c.runtimePresentStart(ev, RuntimeDXGI)
	case etw.DXGIPresentStop, etw.DXGIPresentMPOStop:
		// A negative HRESULT means the runtime present itself failed.
		c.runtimePresentStop(ev.Header(), RuntimeDXGI, ev.Props.Int("Result") >= 0)
	}
}

// handleD3D9Event routes D3D9 runtime events.
func (c *Consumer) handleD3D9Event(ev etw.Event) {
	switch ev.ID {
	case etw.D3D9PresentStart:
		c.runtimePresentStart(ev, RuntimeD3D9)
	case etw.D3D9PresentStop:
		c.runtimePresentStop(ev.Header(), RuntimeD3D9, ev.Props.Int("Result") >= 0)
	}
}

// runtimePresentStart begins (or continues) tracking the thread's present and
// records the runtime-supplied parameters.
func (c *Consumer) runtimePresentStart(ev etw.Event, rt Runtime) {
	rec, _ := c.findOrCreate(ev.Header(), rt)
	rec.Runtime = rt
	if v := ev.Props.Uint("pSwapchain"); v != 0 {
		rec.SwapChain = v
	}
	if _, ok := ev.Props["SyncInterval"]; ok {
		rec.SyncInterval = int32(ev.Props.Int("SyncInterval"))
	}
	rec.PresentFlags = ev.Props.Uint32("Flags")
}

// runtimePresentStop ends the runtime present call on this thread.
//
// TimeTaken is the runtime call duration. What happens next depends on how
// far the present has progressed:
//   - the runtime call failed: the present never happened, complete Discarded
//   - display tracking is off: runtime end is the terminal event, Presented
//   - a final state is already decided: route through completion now
//   - otherwise the record stays live awaiting display events
//
// A stop for a deferred record burns that record's own expected stop;
// deferred completions then drain FIFO once their stops have all arrived.
func (c *Consumer) runtimePresentStop(hdr etw.Header, rt Runtime, succeeded bool) {
	if rec, _ := lookup(c, c.byThread, hdr.TID); rec != nil {
		rec.TimeTaken = hdr.QPC - rec.QPCStart
		if rec.Runtime == RuntimeOther {
			rec.Runtime = rt
		}
		delete(c.byThread, hdr.TID)

		switch {
		case rec.CompletionDeferred:
			// Already finalized; this stop is the one it was waiting for.
			c.burnDeferredStop(rec)
		case !succeeded:
			rec.FinalState = ResultDiscarded
			c.completePresent(rec)
		case !c.opts.TrackDisplay:
			rec.FinalState = ResultPresented
			c.completePresent(rec)
		case rec.FinalState != ResultUnknown:
			c.completePresent(rec)
		}
	} else {
		// No record on this thread: the stop belongs to a present already
		// out of tracking. Credit the oldest deferred completion so batched
		// presents keep draining under event loss.
		c.burnOldestDeferredStop(hdr.PID)
	}

	c.drainDeferred(hdr.PID)
}
