package present

import (
	"github.com/roach88/framewatch/internal/etw"
)

// handleWin32kEvent routes windowing-subsystem events. These carry the
// composition token triple that identifies flip-model presents to the
// compositor.
func (c *Consumer) handleWin32kEvent(ev etw.Event) {
	switch ev.ID {
	case etw.Win32kTokenCompositionSurfaceObject:
		c.handleTokenCompositionSurface(ev)
	case etw.Win32kTokenStateChanged:
		c.handleTokenStateChanged(ev)
	}
}

func compositionKey(props etw.Properties) CompositionToken {
	return CompositionToken{
		Surface:      props.Uint("CompositionSurfaceLuid"),
		PresentCount: props.Uint("PresentCount"),
		BindID:       props.Uint("BindId"),
	}
}

// handleTokenCompositionSurface assigns the composition token triple to the
// thread's present and classifies it onto the composed-flip path.
func (c *Consumer) handleTokenCompositionSurface(ev etw.Event) {
	rec, h := c.findOrCreate(ev.Header(), RuntimeOther)
	rec.SeenWin32kEvents = true
	if rec.Mode == ModeUnknown {
		rec.Mode = ModeComposedFlip
	}
	c.setCompositionToken(rec, h, compositionKey(ev.Props))
}

// handleTokenStateChanged walks a flip-model present through the windowing
// system's state machine.
func (c *Consumer) handleTokenStateChanged(ev etw.Event) {
	rec, h := lookup(c, c.byCompositionToken, compositionKey(ev.Props))
	if rec == nil {
		c.metrics.orphan()
		return
	}

	switch ev.Props.Uint32("NewState") {
	case etw.TokenStateInFrame:
		// Composition of this present is starting. Any previous present
		// still held as the window's latest was never shown.
		rec.SeenInFrame = true
		rec.SeenWin32kEvents = true
		if ev.Props.Bool("IndependentFlip") {
			rec.refineMode(ModeHardwareIndependentFlip)
		}
		if rec.Hwnd != 0 {
			if prior, _ := lookup(c, c.byWindowLast, rec.Hwnd); prior != nil && prior != rec {
				if prior.FinalState == ResultUnknown {
					prior.FinalState = ResultDiscarded
				}
				c.completePresent(prior)
			}
			c.byWindowLast[rec.Hwnd] = h
		}

	case etw.TokenStateConfirmed:
		// The compositor took the present. DO_NOT_SEQUENCE presents can be
		// confirmed without ever being shown.
		rec.DwmNotified = true
		if rec.FinalState == ResultUnknown && rec.PresentFlags&dxgiPresentDoNotSequence != 0 {
			rec.FinalState = ResultDiscarded
		}
		if rec.Hwnd != 0 {
			if cur, _ := lookup(c, c.byWindowLast, rec.Hwnd); cur == rec {
				delete(c.byWindowLast, rec.Hwnd)
			}
		}

	case etw.TokenStateRetired:
		// The present left the screen; if we never saw it arrive, the
		// retire time is the best on-screen bound we will get.
		if rec.ScreenQPC == 0 {
			rec.ScreenQPC = ev.QPC
		}

	case etw.TokenStateDiscarded:
		// Terminal for the token. A present that reached the screen before
		// its token was discarded was shown; one that never did was not.
		if rec.FinalState == ResultUnknown {
			if rec.ScreenQPC != 0 {
				rec.FinalState = ResultPresented
			} else {
				rec.FinalState = ResultDiscarded
			}
		}
		c.completePresent(rec)
	}
}
