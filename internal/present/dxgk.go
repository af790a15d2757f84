package present

import (
	"log/slog"

	"github.com/roach88/framewatch/internal/etw"
)

// MMIOFlip flag: the flip took effect immediately instead of waiting for the
// next vsync.
const mmioFlipImmediate = 0x2

// flipSeq extracts a queue-submit sequence from a flip fence field. The
// kernel packs the sequence into the upper 32 bits of the fence; some decoder
// front ends deliver it already unpacked.
func flipSeq(props etw.Properties, name string) uint32 {
	v := props.Uint(name)
	if v>>32 != 0 {
		return uint32(v >> 32)
	}
	return uint32(v)
}

// handleDxgKrnlEvent routes graphics-kernel events.
func (c *Consumer) handleDxgKrnlEvent(ev etw.Event) {
	hdr := ev.Header()
	switch ev.ID {
	case etw.DxgKrnlBlit:
		if c.opts.TrackDisplay {
			c.handleBlit(hdr, ev.Props.Uint("hwnd"), ev.Props.Bool("bRedirectedPresent"))
		}
	case etw.DxgKrnlBlitCancel:
		if c.opts.TrackDisplay {
			c.handleBlitCancel(hdr)
		}
	case etw.DxgKrnlFlip:
		if c.opts.TrackDisplay {
			c.handleFlip(hdr, int32(ev.Props.Int("FlipInterval")), ev.Props.Bool("MMIOFlip"))
		}
	case etw.DxgKrnlFlipMPO:
		// Multi-plane overlay flips carry no interval and are always MMIO.
		if c.opts.TrackDisplay {
			c.handleFlip(hdr, -1, true)
		}
	case etw.DxgKrnlQueuePacketStart:
		c.handleQueueSubmit(hdr,
			ev.Props.Uint32("PacketType"),
			ev.Props.Uint32("SubmitSequence"),
			ev.Props.Uint("hContext"),
			ev.Props.Bool("bPresent"))
	case etw.DxgKrnlQueuePacketStop:
		c.handleQueueComplete(hdr, ev.Props.Uint32("SubmitSequence"))
	case etw.DxgKrnlMMIOFlip:
		if c.opts.TrackDisplay {
			c.handleMMIOFlip(hdr, flipSeq(ev.Props, "FlipSubmitSequence"), ev.Props.Uint32("Flags"))
		}
	case etw.DxgKrnlMMIOFlipMPO:
		if c.opts.TrackDisplay {
			c.handleMMIOFlipMPO(hdr,
				flipSeq(ev.Props, "FlipSubmitSequence"),
				ev.Props.Uint32("FlipEntryStatusAfterFlip"),
				ev.Props.Bool("FlipEntryStatusAfterFlipValid"))
		}
	case etw.DxgKrnlIndependentFlip:
		if c.opts.TrackDisplay {
			c.handleIndependentFlip(hdr, flipSeq(ev.Props, "FlipSubmitSequence"))
		}
	case etw.DxgKrnlVSyncDPC:
		if c.opts.TrackDisplay {
			c.handleSyncDPC(hdr, flipSeq(ev.Props, "FlipFenceId"), false)
		}
	case etw.DxgKrnlVSyncDPCMPO, etw.DxgKrnlHSyncDPCMPO:
		// Correlates on the first valid plane; ValidPlaneCount > 1 marks the
		// present as hardware-composed.
		if c.opts.TrackDisplay {
			c.handleSyncDPC(hdr,
				flipSeq(ev.Props, "FlipSubmitSequence"),
				ev.Props.Uint("ValidPlaneCount") > 1)
		}
	case etw.DxgKrnlPresent:
		if c.opts.TrackDisplay {
			c.handleDxgkPresent(hdr, ev.Props.Uint("hWindow"))
		}
	case etw.DxgKrnlPresentHistoryStart:
		if c.opts.TrackDisplay {
			c.handlePresentHistory(hdr,
				ev.Props.Uint("Token"),
				ev.Props.Uint32("Model"),
				ev.Props.Uint("TokenData"))
		}
	case etw.DxgKrnlPresentHistoryDetailed:
		if c.opts.TrackDisplay {
			c.handlePresentHistory(hdr,
				ev.Props.Uint("Token"),
				ev.Props.Uint32("Model"),
				0)
		}
	case etw.DxgKrnlPresentHistoryInfo:
		if c.opts.TrackDisplay {
			c.handlePresentHistoryInfo(hdr, ev.Props.Uint("Token"))
		}
	}
}

// handleBlit classifies the thread's present as a blit. Non-redirected blits
// go straight to the front buffer; redirected blits tentatively head for the
// compositor (the present-history model refines GPU vs CPU copy later).
func (c *Consumer) handleBlit(hdr etw.Header, hwnd uint64, redirected bool) {
	rec, _ := c.findOrCreate(hdr, RuntimeOther)
	if hwnd != 0 {
		rec.Hwnd = hwnd
	}
	if redirected {
		rec.Mode = ModeComposedCopyGPU
	} else {
		rec.Mode = ModeHardwareLegacyCopyToFrontBuffer
		rec.SupportsTearing = true
	}
}

// handleBlitCancel finishes the thread's blit: the kernel converted it to a
// direct flip, so it is on screen as of now.
func (c *Consumer) handleBlitCancel(hdr etw.Header) {
	rec, _ := lookup(c, c.byThread, hdr.TID)
	if rec == nil {
		c.metrics.orphan()
		return
	}
	rec.ReadyQPC = hdr.QPC
	rec.ScreenQPC = hdr.QPC
	rec.FinalState = ResultPresented
	c.completePresent(rec)
}

// handleFlip classifies the thread's present as a hardware legacy flip.
// A flip issued on the compositor's present thread is the compositor's own
// present: it adopts everything waiting for the compositor as dependents.
func (c *Consumer) handleFlip(hdr etw.Header, interval int32, mmio bool) {
	rec, _ := c.findOrCreate(hdr, RuntimeOther)
	if rec.Mode == ModeUnknown {
		rec.Mode = ModeHardwareLegacyFlip
	}
	if interval >= 0 {
		rec.SyncInterval = interval
	}
	rec.MMIO = mmio

	if hdr.PID == c.dwmPID && hdr.TID == c.dwmPresentTID && len(c.waitingForCompositor) > 0 {
		c.adoptWaiting(rec)
		c.dwmPresentTID = 0
	}
}

// adoptWaiting moves the waiting-for-compositor queue into rec's dependents.
func (c *Consumer) adoptWaiting(rec *Record) {
	for _, h := range c.waitingForCompositor {
		if dep := c.arena.get(h); dep != nil {
			dep.WaitingForCompositor = false
			rec.Dependents = append(rec.Dependents, h)
		}
	}
	c.waitingForCompositor = c.waitingForCompositor[:0]
	slog.Debug("compositor present adopted dependents",
		"id", rec.ID,
		"dependents", len(rec.Dependents),
	)
}

// handleQueueSubmit records the submit sequence of the thread's present
// packet and resolves the blit-context ambiguity: a non-present packet
// following a blit on the same context means that blit never went to the
// compositor.
func (c *Consumer) handleQueueSubmit(hdr etw.Header, packetType uint32, seq uint32, ctx uint64, present bool) {
	if !present && ctx != 0 {
		if blit, _ := lookup(c, c.byBlitContext, ctx); blit != nil {
			blit.Mode = ModeHardwareLegacyCopyToFrontBuffer
			blit.SupportsTearing = true
			delete(c.byBlitContext, ctx)
		}
	}

	if !present || seq == 0 {
		return
	}

	rec, h := lookup(c, c.byThread, hdr.TID)
	if rec == nil || rec.SubmitSequence != 0 {
		return
	}
	c.setSubmitSequence(rec, h, seq)
	if ctx != 0 {
		rec.DxgContext = ctx
		if rec.Mode == ModeHardwareLegacyCopyToFrontBuffer || rec.Mode == ModeComposedCopyGPU {
			c.setBlitContext(rec, h, ctx)
		}
	}
}

// setBlitContext indexes rec under its kernel context, evicting any prior
// live holder as lost.
func (c *Consumer) setBlitContext(rec *Record, h Handle, ctx uint64) {
	if prior, _ := lookup(c, c.byBlitContext, ctx); prior != nil && prior != rec {
		c.removeLost(prior, ErrCodeLostReplacement)
	}
	c.byBlitContext[ctx] = h
}

// handleQueueComplete finishes front-buffer blits: the queue completing the
// blit packet is both the ready and the on-screen time.
func (c *Consumer) handleQueueComplete(hdr etw.Header, seq uint32) {
	rec, _ := lookup(c, c.bySubmitSequence, seq)
	if rec == nil {
		return
	}

	if rec.Mode == ModeHardwareLegacyCopyToFrontBuffer {
		rec.ReadyQPC = hdr.QPC
		rec.ScreenQPC = hdr.QPC
		rec.FinalState = ResultPresented
		c.completePresent(rec)
		return
	}

	// Render completion for other paths just bounds the ready time when the
	// flip events are not being tracked.
	if !c.opts.TrackDisplay && rec.ReadyQPC == 0 {
		rec.ReadyQPC = hdr.QPC
	}
}

// handleMMIOFlip records the flip programming time as the present's ready
// time. An immediate flip is on screen at the same instant.
func (c *Consumer) handleMMIOFlip(hdr etw.Header, seq uint32, flags uint32) {
	rec, _ := lookup(c, c.bySubmitSequence, seq)
	if rec == nil {
		c.metrics.orphan()
		return
	}

	if rec.ReadyQPC == 0 {
		rec.ReadyQPC = hdr.QPC
	}

	if flags&mmioFlipImmediate != 0 {
		rec.ScreenQPC = hdr.QPC
		rec.SupportsTearing = true
		if rec.Mode == ModeHardwareLegacyFlip {
			rec.FinalState = ResultPresented
			c.completePresent(rec)
		}
	}
}

// handleMMIOFlipMPO is the multi-plane variant; the flip-entry status can
// already indicate the flip was shown, bypassing the sync interrupt.
func (c *Consumer) handleMMIOFlipMPO(hdr etw.Header, seq uint32, status uint32, statusValid bool) {
	rec, _ := lookup(c, c.bySubmitSequence, seq)
	if rec == nil {
		c.metrics.orphan()
		return
	}

	if rec.ReadyQPC == 0 {
		rec.ReadyQPC = hdr.QPC
	}
	if !statusValid {
		return
	}

	switch status {
	case etw.FlipWaitVSync, etw.FlipWaitHSync:
		// Shown at the next sync interrupt; nothing more to record yet.
	case etw.FlipWaitComplete:
		// Already shown.
		rec.ScreenQPC = hdr.QPC
		rec.SupportsTearing = true
		if rec.Mode == ModeHardwareLegacyFlip || rec.Mode == ModeHardwareIndependentFlip {
			rec.FinalState = ResultPresented
			c.completePresent(rec)
		}
	}
}

// handleIndependentFlip promotes a composed flip that the kernel took over
// directly.
func (c *Consumer) handleIndependentFlip(hdr etw.Header, seq uint32) {
	rec, _ := lookup(c, c.bySubmitSequence, seq)
	if rec == nil {
		return
	}
	rec.refineMode(ModeHardwareIndependentFlip)
}

// handleSyncDPC is the end of the pipeline for flip presents: the sync
// interrupt for the flip's submit sequence is the on-screen time. A
// multi-plane interrupt with more than one valid plane means the hardware
// composed this present with others.
func (c *Consumer) handleSyncDPC(hdr etw.Header, seq uint32, multiPlane bool) {
	rec, _ := lookup(c, c.bySubmitSequence, seq)
	if rec == nil {
		c.metrics.orphan()
		return
	}

	if rec.ScreenQPC != 0 && hdr.QPC < rec.ScreenQPC {
		// A second, earlier on-screen time contradicts what we already
		// recorded; the record cannot be trusted.
		c.classificationError(rec, "sync interrupt precedes recorded screen time")
		return
	}

	if multiPlane {
		rec.refineMode(ModeHardwareComposedIndependentFlip)
	}
	rec.ScreenQPC = hdr.QPC
	rec.FinalState = ResultPresented
	c.completePresent(rec)
}

// handleDxgkPresent marks that the kernel saw the present and supplies the
// window handle for windowed paths.
func (c *Consumer) handleDxgkPresent(hdr etw.Header, hwnd uint64) {
	rec, _ := lookup(c, c.byThread, hdr.TID)
	if rec == nil {
		return
	}
	rec.SeenGfxPresent = true
	if rec.Hwnd == 0 && hwnd != 0 {
		rec.Hwnd = hwnd
	}
}

// handlePresentHistory assigns the kernel present-history token to the
// thread's present and classifies windowed paths from the present model.
//
// Composition-atlas submissions can arrive with no runtime present on the
// thread; they get a record of their own.
func (c *Consumer) handlePresentHistory(hdr etw.Header, token uint64, model uint32, tokenData uint64) {
	rec, h := lookup(c, c.byThread, hdr.TID)
	if rec == nil {
		if model != etw.PresentModelComposition {
			c.metrics.orphan()
			return
		}
		rec, h = c.createPresent(hdr, RuntimeOther)
	}

	if token != 0 {
		c.setKernelToken(rec, h, token)
	}

	switch model {
	case etw.PresentModelRedirectedBlt, etw.PresentModelRedirectedGDI:
		rec.Mode = ModeComposedCopyGPU
	case etw.PresentModelRedirectedVistaBlt, etw.PresentModelRedirectedGDISysmem:
		rec.Mode = ModeComposedCopyCPU
		if tokenData != 0 {
			c.setLegacyBlitToken(rec, h, tokenData)
		}
	case etw.PresentModelComposition:
		rec.Mode = ModeComposedCompositionAtlas
	case etw.PresentModelRedirectedFlip:
		// Flip-model identity comes from the windowing token events.
	}

	// The kernel accepted the present for the compositor path; a pending
	// front-buffer classification via the blit context no longer applies.
	if rec.DxgContext != 0 {
		if cur, _ := lookup(c, c.byBlitContext, rec.DxgContext); cur == rec {
			delete(c.byBlitContext, rec.DxgContext)
		}
	}
}

// handlePresentHistoryInfo is the propagate step: the kernel finished with
// the token, the present is ready, and windowed copies are handed off to the
// compositor.
func (c *Consumer) handlePresentHistoryInfo(hdr etw.Header, token uint64) {
	rec, h := lookup(c, c.byKernelToken, token)
	if rec == nil {
		c.metrics.orphan()
		return
	}

	if rec.ReadyQPC == 0 {
		rec.ReadyQPC = hdr.QPC
	}
	delete(c.byKernelToken, token)

	switch rec.Mode {
	case ModeComposedCopyGPU, ModeComposedCopyCPU:
		if rec.Hwnd != 0 {
			c.setWindowLast(rec, h, rec.Hwnd)
		}
		// CPU copies without a window yet stay tracked under the legacy
		// blit token until the compositor's flip-chain event names one.
	case ModeComposedCompositionAtlas:
		// No in-frame event will come; assume the compositor composes this
		// buffer on its next present.
		rec.DwmNotified = true
		rec.WaitingForCompositor = true
		c.waitingForCompositor = append(c.waitingForCompositor, h)
	}
}

// setWindowLast makes rec the window's most recent present, evicting any
// prior live holder as lost.
func (c *Consumer) setWindowLast(rec *Record, h Handle, hwnd uint64) {
	if prior, _ := lookup(c, c.byWindowLast, hwnd); prior != nil && prior != rec {
		c.removeLost(prior, ErrCodeLostReplacement)
	}
	rec.Hwnd = hwnd
	c.byWindowLast[hwnd] = h
}

// classificationError marks a record whose state transitions contradict each
// other and emits it in the Error state.
func (c *Consumer) classificationError(rec *Record, msg string) {
	c.metrics.classificationError()
	slog.Warn("classification error",
		"id", rec.ID,
		"pid", rec.PID,
		"error", (&CorrelationError{Code: ErrCodeClassification, Message: msg, PID: rec.PID, RecordID: rec.ID}).Error(),
	)
	rec.FinalState = ResultError
	c.completePresent(rec)
}

// Win7 alias handlers. The Win7 kernel reported these event families through
// dedicated sub-providers with slightly different payload names; they feed
// the same state machine.

func (c *Consumer) handleWin7PresentHistory(ev etw.Event) {
	hdr := ev.Header()
	switch ev.ID {
	case etw.DxgKrnlPresentHistoryStart:
		c.handlePresentHistory(hdr, ev.Props.Uint("Token"), ev.Props.Uint32("Model"), ev.Props.Uint("TokenData"))
	case etw.DxgKrnlPresentHistoryInfo:
		c.handlePresentHistoryInfo(hdr, ev.Props.Uint("Token"))
	}
}

func (c *Consumer) handleWin7QueuePacket(ev etw.Event) {
	hdr := ev.Header()
	switch ev.ID {
	case etw.DxgKrnlQueuePacketStart:
		c.handleQueueSubmit(hdr,
			ev.Props.Uint32("PacketType"),
			ev.Props.Uint32("SubmitSequence"),
			ev.Props.Uint("hContext"),
			ev.Props.Bool("bPresent"))
	case etw.DxgKrnlQueuePacketStop:
		c.handleQueueComplete(hdr, ev.Props.Uint32("SubmitSequence"))
	}
}
