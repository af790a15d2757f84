package present

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/framewatch/internal/etw"
	"github.com/roach88/framewatch/internal/testutil"
)

var (
	app = testutil.Hdr{PID: 10, TID: 1}
	dwm = testutil.Hdr{PID: 3, TID: 30}
)

func dispatchAll(c *Consumer, evs ...etw.Event) {
	for _, ev := range evs {
		c.Dispatch(ev)
	}
}

// completedOne dequeues and asserts exactly one completed record.
func completedOne(t *testing.T, c *Consumer) *Record {
	t.Helper()
	got := c.DequeueCompleted()
	require.Len(t, got, 1, "expected exactly one completed present")
	return got[0]
}

func TestHardwareLegacyFlip_Presented(t *testing.T) {
	c := NewConsumer()

	dispatchAll(c,
		testutil.DXGIPresentStart(app, 100, 0xA, 1, 0),
		testutil.Flip(app, 101, 1, true),
		testutil.QueueSubmit(app, 102, 7, 0xC),
		testutil.DXGIPresentStop(app, 110),
		testutil.MMIOFlip(app, 200, 7, false),
		testutil.VSyncDPC(app, 300, 7),
	)

	rec := completedOne(t, c)
	assert.Equal(t, uint32(10), rec.PID)
	assert.Equal(t, ModeHardwareLegacyFlip, rec.Mode)
	assert.Equal(t, uint64(100), rec.QPCStart)
	assert.Equal(t, uint64(10), rec.TimeTaken)
	assert.Equal(t, uint64(200), rec.ReadyQPC)
	assert.Equal(t, uint64(300), rec.ScreenQPC)
	assert.Equal(t, ResultPresented, rec.FinalState)
	assert.Equal(t, RuntimeDXGI, rec.Runtime)
	assert.Equal(t, uint64(0xA), rec.SwapChain)
	assert.True(t, rec.MMIO)
	assert.Empty(t, c.DequeueLost())
}

func TestHardwareLegacyFlip_ImmediateFlip(t *testing.T) {
	c := NewConsumer()

	dispatchAll(c,
		testutil.DXGIPresentStart(app, 100, 0xA, 0, 0),
		testutil.Flip(app, 101, 0, true),
		testutil.QueueSubmit(app, 102, 7, 0xC),
		testutil.DXGIPresentStop(app, 110),
		testutil.MMIOFlip(app, 200, 7, true),
	)

	rec := completedOne(t, c)
	assert.Equal(t, ModeHardwareLegacyFlip, rec.Mode)
	assert.Equal(t, uint64(200), rec.ScreenQPC)
	assert.True(t, rec.SupportsTearing)
	assert.Equal(t, ResultPresented, rec.FinalState)
}

func TestHardwareCopyToFrontBuffer(t *testing.T) {
	c := NewConsumer()

	dispatchAll(c,
		testutil.DXGIPresentStart(app, 100, 0xA, 0, 0),
		testutil.Blit(app, 101, 0xB0, false),
		testutil.QueueSubmit(app, 102, 9, 0xC),
		testutil.DXGIPresentStop(app, 110),
		testutil.QueueComplete(app, 500, 9),
	)

	rec := completedOne(t, c)
	assert.Equal(t, ModeHardwareLegacyCopyToFrontBuffer, rec.Mode)
	assert.Equal(t, uint64(500), rec.ReadyQPC)
	assert.Equal(t, uint64(500), rec.ScreenQPC)
	assert.Equal(t, ResultPresented, rec.FinalState)
	assert.True(t, rec.SupportsTearing)
}

func TestComposedFlip_InFrameReplacementDiscardsPrior(t *testing.T) {
	c := NewConsumer()
	const window = 0xBEEF

	first := testutil.Hdr{PID: 10, TID: 1}
	second := testutil.Hdr{PID: 10, TID: 2}

	// First composed-flip present reaches InFrame and parks as the window's
	// latest.
	dispatchAll(c,
		testutil.DXGIPresentStart(first, 100, 0xA, 1, 0),
		testutil.TokenCompositionSurface(first, 101, 1, 1, 1),
		testutil.DxgkPresent(first, 102, window),
		testutil.DXGIPresentStop(first, 110),
		testutil.TokenStateChanged(first, 120, 1, 1, 1, etw.TokenStateInFrame),
	)
	require.Empty(t, c.DequeueCompleted())

	// Second present's InFrame arrives while the first is still parked.
	dispatchAll(c,
		testutil.DXGIPresentStart(second, 130, 0xA, 1, 0),
		testutil.TokenCompositionSurface(second, 131, 1, 2, 1),
		testutil.DxgkPresent(second, 132, window),
		testutil.DXGIPresentStop(second, 140),
		testutil.TokenStateChanged(second, 150, 1, 2, 1, etw.TokenStateInFrame),
	)

	rec := completedOne(t, c)
	assert.Equal(t, uint64(100), rec.QPCStart)
	assert.Equal(t, ResultDiscarded, rec.FinalState)
	assert.Equal(t, ModeComposedFlip, rec.Mode)

	// Second proceeds normally to the screen.
	dispatchAll(c,
		testutil.TokenStateChanged(second, 200, 1, 2, 1, etw.TokenStateRetired),
		testutil.TokenStateChanged(second, 210, 1, 2, 1, etw.TokenStateDiscarded),
	)
	rec = completedOne(t, c)
	assert.Equal(t, uint64(130), rec.QPCStart)
	assert.Equal(t, uint64(200), rec.ScreenQPC)
	assert.Equal(t, ResultPresented, rec.FinalState)
}

func TestHardwareIndependentFlip(t *testing.T) {
	c := NewConsumer()

	dispatchAll(c,
		testutil.DXGIPresentStart(app, 100, 0xA, 1, 0),
		testutil.TokenCompositionSurface(app, 101, 5, 1, 1),
		testutil.QueueSubmit(app, 102, 11, 0xC),
		testutil.DXGIPresentStop(app, 110),
		testutil.TokenStateChangedIFlip(app, 120, 5, 1, 1),
		testutil.MMIOFlip(app, 200, 11, false),
		testutil.VSyncDPC(app, 300, 11),
	)

	rec := completedOne(t, c)
	assert.Equal(t, ModeHardwareIndependentFlip, rec.Mode)
	assert.Equal(t, uint64(200), rec.ReadyQPC)
	assert.Equal(t, uint64(300), rec.ScreenQPC)
	assert.Equal(t, ResultPresented, rec.FinalState)
}

func TestHardwareComposedIndependentFlip_MultiPlane(t *testing.T) {
	c := NewConsumer()

	dispatchAll(c,
		testutil.DXGIPresentStart(app, 100, 0xA, 1, 0),
		testutil.TokenCompositionSurface(app, 101, 5, 2, 1),
		testutil.QueueSubmit(app, 102, 12, 0xC),
		testutil.DXGIPresentStop(app, 110),
		testutil.TokenStateChangedIFlip(app, 120, 5, 2, 1),
		testutil.VSyncDPCMPO(app, 300, 12, 2),
	)

	rec := completedOne(t, c)
	assert.Equal(t, ModeHardwareComposedIndependentFlip, rec.Mode)
	assert.Equal(t, uint64(300), rec.ScreenQPC)
	assert.Equal(t, ResultPresented, rec.FinalState)
}

func TestComposedCopyGPU_CompletesWithCompositorPresent(t *testing.T) {
	c := NewConsumer()
	const window = 0xB0F

	// App present: redirected blit handed to the compositor.
	dispatchAll(c,
		testutil.DXGIPresentStart(app, 100, 0xA, 1, 0),
		testutil.Blit(app, 101, window, true),
		testutil.PresentHistoryDetailed(app, 102, 0x70C, etw.PresentModelRedirectedBlt),
		testutil.DxgkPresent(app, 103, window),
		testutil.DXGIPresentStop(app, 110),
		testutil.PresentHistoryInfo(app, 150, 0x70C),
	)
	require.Empty(t, c.DequeueCompleted())

	// Compositor batches the window present and issues its own flip.
	dispatchAll(c,
		testutil.DWMSchedulePresent(dwm, 160),
		testutil.DWMGetPresentHistory(dwm, 161),
		testutil.DXGIPresentStart(dwm, 170, 0xD, 1, 0),
		testutil.Flip(dwm, 171, 1, true),
		testutil.QueueSubmit(dwm, 172, 20, 0xDC),
		testutil.DXGIPresentStop(dwm, 175),
		testutil.MMIOFlip(dwm, 280, 20, false),
		testutil.VSyncDPC(dwm, 400, 20),
	)

	got := c.DequeueCompleted()
	require.Len(t, got, 2)

	// The compositor's own present completes first, then its dependents
	// inherit its on-screen time.
	assert.Equal(t, uint32(3), got[0].PID)
	assert.Equal(t, ModeHardwareLegacyFlip, got[0].Mode)

	appRec := got[1]
	assert.Equal(t, uint32(10), appRec.PID)
	assert.Equal(t, ModeComposedCopyGPU, appRec.Mode)
	assert.Equal(t, uint64(150), appRec.ReadyQPC)
	assert.Equal(t, uint64(400), appRec.ScreenQPC)
	assert.Equal(t, ResultPresented, appRec.FinalState)
	assert.True(t, appRec.DwmNotified)
}

func TestDWMUpdateWindow_MarksWindowPresentNotified(t *testing.T) {
	c := NewConsumer()
	const window = 0xB0F

	// Redirected blit parked as the window's latest.
	dispatchAll(c,
		testutil.DXGIPresentStart(app, 100, 0xA, 1, 0),
		testutil.Blit(app, 101, window, true),
		testutil.PresentHistoryDetailed(app, 102, 0x70C, etw.PresentModelRedirectedBlt),
		testutil.DxgkPresent(app, 103, window),
		testutil.DXGIPresentStop(app, 110),
		testutil.PresentHistoryInfo(app, 150, 0x70C),
		// The compositor touches the window before batching.
		testutil.DWMUpdateWindow(dwm, 155, window),
	)
	require.Empty(t, c.DequeueCompleted())

	dispatchAll(c,
		testutil.DWMSchedulePresent(dwm, 160),
		testutil.DWMGetPresentHistory(dwm, 161),
		testutil.DXGIPresentStart(dwm, 170, 0xD, 1, 0),
		testutil.Flip(dwm, 171, 1, true),
		testutil.QueueSubmit(dwm, 172, 20, 0xDC),
		testutil.DXGIPresentStop(dwm, 175),
		testutil.VSyncDPC(dwm, 400, 20),
	)

	got := c.DequeueCompleted()
	require.Len(t, got, 2)
	appRec := got[1]
	assert.Equal(t, uint32(10), appRec.PID)
	assert.True(t, appRec.DwmNotified)
	assert.Equal(t, uint64(400), appRec.ScreenQPC)
}

func TestComposedCopyCPU_LegacyBlitToken(t *testing.T) {
	c := NewConsumer()
	const window = 0xB0F

	dispatchAll(c,
		testutil.DXGIPresentStart(app, 100, 0xA, 1, 0),
		testutil.Blit(app, 101, window, true),
		testutil.PresentHistoryStart(app, 102, 0x70D, etw.PresentModelRedirectedVistaBlt, 0x500000007),
		testutil.DXGIPresentStop(app, 110),
		testutil.PresentHistoryInfo(app, 150, 0x70D),
		// The compositor names the window for the legacy token.
		testutil.DWMFlipChainPending(dwm, 160, 5, 7, window),
		testutil.DWMSchedulePresent(dwm, 165),
		testutil.DWMGetPresentHistory(dwm, 166),
		testutil.DXGIPresentStart(dwm, 170, 0xD, 1, 0),
		testutil.Flip(dwm, 171, 1, true),
		testutil.QueueSubmit(dwm, 172, 21, 0xDC),
		testutil.DXGIPresentStop(dwm, 175),
		testutil.VSyncDPC(dwm, 400, 21),
	)

	got := c.DequeueCompleted()
	require.Len(t, got, 2)
	appRec := got[1]
	assert.Equal(t, ModeComposedCopyCPU, appRec.Mode)
	assert.Equal(t, uint64(150), appRec.ReadyQPC)
	assert.Equal(t, uint64(400), appRec.ScreenQPC)
	assert.Equal(t, ResultPresented, appRec.FinalState)
}

func TestComposedCompositionAtlas(t *testing.T) {
	c := NewConsumer()

	// Atlas submissions arrive with no runtime present on the thread.
	dispatchAll(c,
		testutil.PresentHistoryStart(app, 100, 0xA7, etw.PresentModelComposition, 0),
		testutil.PresentHistoryInfo(app, 150, 0xA7),
		testutil.DWMSchedulePresent(dwm, 160),
		testutil.DXGIPresentStart(dwm, 170, 0xD, 1, 0),
		testutil.Flip(dwm, 171, 1, true),
		testutil.QueueSubmit(dwm, 172, 22, 0xDC),
		testutil.DXGIPresentStop(dwm, 175),
		testutil.VSyncDPC(dwm, 400, 22),
	)

	got := c.DequeueCompleted()
	require.Len(t, got, 2)
	atlas := got[1]
	assert.Equal(t, ModeComposedCompositionAtlas, atlas.Mode)
	assert.Equal(t, uint64(150), atlas.ReadyQPC)
	assert.Equal(t, uint64(400), atlas.ScreenQPC)
	assert.Equal(t, ResultPresented, atlas.FinalState)
}

func TestBlitContextDisambiguation(t *testing.T) {
	c := NewConsumer()

	// A redirected blit is tentatively composed; a non-present packet on the
	// same context proves it never went to the compositor.
	dispatchAll(c,
		testutil.DXGIPresentStart(app, 100, 0xA, 0, 0),
		testutil.Blit(app, 101, 0xB0, true),
		testutil.QueueSubmit(app, 102, 9, 0xC),
		testutil.DXGIPresentStop(app, 110),
		testutil.QueueSubmitRender(testutil.Hdr{PID: 10, TID: 5}, 120, 10, 0xC),
		testutil.QueueComplete(app, 500, 9),
	)

	rec := completedOne(t, c)
	assert.Equal(t, ModeHardwareLegacyCopyToFrontBuffer, rec.Mode)
	assert.Equal(t, uint64(500), rec.ScreenQPC)
}

func TestDroppedVSync_LostByRingEviction(t *testing.T) {
	const ringCap = 8
	c := NewConsumer(WithRingCapacity(ringCap))

	// A present that will never see its sync interrupt.
	dispatchAll(c,
		testutil.DXGIPresentStart(app, 100, 0xA, 1, 0),
		testutil.Flip(app, 101, 1, true),
		testutil.QueueSubmit(app, 102, 7, 0xC),
		testutil.DXGIPresentStop(app, 110),
		testutil.MMIOFlip(app, 200, 7, false),
	)

	// Fill the ring with unrelated presents that also never complete.
	other := testutil.Hdr{PID: 20, TID: 2}
	qpc := uint64(1000)
	for i := 0; i < ringCap; i++ {
		dispatchAll(c,
			testutil.DXGIPresentStart(other, qpc, 0xB, 1, 0),
			testutil.DXGIPresentStop(other, qpc+5),
		)
		qpc += 10
	}

	lost := c.DequeueLost()
	require.NotEmpty(t, lost)
	first := lost[0]
	assert.Equal(t, uint64(100), first.QPCStart)
	assert.True(t, first.IsLost)
	assert.Equal(t, ResultUnknown, first.FinalState)
	assert.Empty(t, c.DequeueCompleted())
}

func TestRingCapacityBound(t *testing.T) {
	const ringCap = 16
	const total = 40
	c := NewConsumer(WithRingCapacity(ringCap))

	qpc := uint64(100)
	for i := 0; i < total; i++ {
		h := testutil.Hdr{PID: 10, TID: uint32(100 + i)}
		c.Dispatch(testutil.DXGIPresentStart(h, qpc, 0xA, 1, 0))
		qpc += 10
	}

	lost := c.DequeueLost()
	assert.Len(t, lost, total-ringCap)
	assert.Equal(t, uint64(total-ringCap), c.Stats().LostByEviction)
}

func TestPerProcessOrdering_OutOfOrderCompletion(t *testing.T) {
	c := NewConsumer()

	h1 := testutil.Hdr{PID: 10, TID: 1}
	h2 := testutil.Hdr{PID: 10, TID: 2}
	h3 := testutil.Hdr{PID: 10, TID: 3}

	dispatchAll(c,
		testutil.DXGIPresentStart(h1, 100, 0xA, 1, 0),
		testutil.Flip(h1, 101, 1, true),
		testutil.QueueSubmit(h1, 102, 1, 0xC1),
		testutil.DXGIPresentStop(h1, 105),

		testutil.DXGIPresentStart(h2, 110, 0xA, 1, 0),
		testutil.Flip(h2, 111, 1, true),
		testutil.QueueSubmit(h2, 112, 2, 0xC2),
		testutil.DXGIPresentStop(h2, 115),

		testutil.DXGIPresentStart(h3, 120, 0xA, 1, 0),
		testutil.Flip(h3, 121, 1, true),
		testutil.QueueSubmit(h3, 122, 3, 0xC3),
		testutil.DXGIPresentStop(h3, 125),

		// The newest completes first.
		testutil.VSyncDPC(h3, 300, 3),
	)

	got := c.DequeueCompleted()
	require.Len(t, got, 3)
	assert.Equal(t, uint64(100), got[0].QPCStart)
	assert.Equal(t, uint64(110), got[1].QPCStart)
	assert.Equal(t, uint64(120), got[2].QPCStart)

	// The older two never reached the screen.
	assert.Equal(t, ResultDiscarded, got[0].FinalState)
	assert.Equal(t, ResultDiscarded, got[1].FinalState)
	assert.Equal(t, ResultPresented, got[2].FinalState)

	// Their sync interrupts are orphans now.
	dispatchAll(c,
		testutil.VSyncDPC(h1, 310, 1),
		testutil.VSyncDPC(h2, 320, 2),
	)
	assert.Empty(t, c.DequeueCompleted())
}

func TestDeferredCompletion_ScreenBeforePresentStop(t *testing.T) {
	c := NewConsumer()

	dispatchAll(c,
		testutil.DXGIPresentStart(app, 100, 0xA, 1, 0),
		testutil.Flip(app, 101, 1, true),
		testutil.QueueSubmit(app, 102, 7, 0xC),
		// On-screen before the runtime call returns.
		testutil.MMIOFlip(app, 150, 7, false),
		testutil.VSyncDPC(app, 200, 7),
	)

	// Held: the runtime present-stop is still expected.
	require.Empty(t, c.DequeueCompleted())

	c.Dispatch(testutil.DXGIPresentStop(app, 210))
	rec := completedOne(t, c)
	assert.True(t, rec.CompletionDeferred)
	assert.Equal(t, uint64(110), rec.TimeTaken)
	assert.Equal(t, uint64(200), rec.ScreenQPC)
	assert.Equal(t, ResultPresented, rec.FinalState)
}

func TestDeferredCompletion_LaterPresentsQueueBehind(t *testing.T) {
	c := NewConsumer()

	h1 := testutil.Hdr{PID: 10, TID: 1}
	h2 := testutil.Hdr{PID: 10, TID: 2}

	dispatchAll(c,
		testutil.DXGIPresentStart(h1, 100, 0xA, 1, 0),
		testutil.Flip(h1, 101, 1, true),
		testutil.QueueSubmit(h1, 102, 1, 0xC1),
		testutil.VSyncDPC(h1, 150, 1), // deferred: no present-stop yet

		testutil.DXGIPresentStart(h2, 160, 0xA, 1, 0),
		testutil.Flip(h2, 161, 1, true),
		testutil.QueueSubmit(h2, 162, 2, 0xC2),
		testutil.DXGIPresentStop(h2, 165),
		testutil.VSyncDPC(h2, 250, 2), // completes while h1 still deferred
	)
	require.Empty(t, c.DequeueCompleted())

	c.Dispatch(testutil.DXGIPresentStop(h1, 260))

	got := c.DequeueCompleted()
	require.Len(t, got, 2)
	assert.Equal(t, uint64(100), got[0].QPCStart)
	assert.Equal(t, uint64(160), got[1].QPCStart)
}

func TestDeferredCompletion_ConcurrentDeferralsKeepOwnStops(t *testing.T) {
	c := NewConsumer()

	h1 := testutil.Hdr{PID: 10, TID: 1}
	h2 := testutil.Hdr{PID: 10, TID: 2}

	// Both threads reach the screen before their runtime calls return.
	dispatchAll(c,
		testutil.DXGIPresentStart(h1, 100, 0xA, 1, 0),
		testutil.Flip(h1, 101, 1, true),
		testutil.QueueSubmit(h1, 102, 1, 0xC1),
		testutil.VSyncDPC(h1, 150, 1),

		testutil.DXGIPresentStart(h2, 160, 0xA, 1, 0),
		testutil.Flip(h2, 161, 1, true),
		testutil.QueueSubmit(h2, 162, 2, 0xC2),
		testutil.VSyncDPC(h2, 250, 2),
	)
	require.Empty(t, c.DequeueCompleted())

	// The second thread's stop arrives first. It must credit only its own
	// record: the first is still waiting for its stop, so nothing emits.
	c.Dispatch(testutil.DXGIPresentStop(h2, 260))
	require.Empty(t, c.DequeueCompleted())

	c.Dispatch(testutil.DXGIPresentStop(h1, 270))

	got := c.DequeueCompleted()
	require.Len(t, got, 2)
	assert.Equal(t, uint64(100), got[0].QPCStart)
	assert.Equal(t, uint64(160), got[1].QPCStart)

	// Each record's TimeTaken came from its own stop.
	assert.Equal(t, uint64(170), got[0].TimeTaken)
	assert.Equal(t, uint64(100), got[1].TimeTaken)
}

func TestDuplicateDelivery_Idempotent(t *testing.T) {
	c := NewConsumer()

	start := testutil.DXGIPresentStart(app, 100, 0xA, 1, 0)
	flip := testutil.Flip(app, 101, 1, true)
	submit := testutil.QueueSubmit(app, 102, 7, 0xC)

	dispatchAll(c, start, start, flip, flip, submit, submit,
		testutil.DXGIPresentStop(app, 110),
		testutil.MMIOFlip(app, 200, 7, false),
		testutil.VSyncDPC(app, 300, 7),
	)

	rec := completedOne(t, c)
	assert.Equal(t, uint64(100), rec.QPCStart)
	assert.Equal(t, uint32(7), rec.SubmitSequence)
	assert.Equal(t, ResultPresented, rec.FinalState)
	assert.Empty(t, c.DequeueLost())
}

func TestSubmitSequenceReplacement_MarksPriorLost(t *testing.T) {
	c := NewConsumer()

	h1 := testutil.Hdr{PID: 10, TID: 1}
	h2 := testutil.Hdr{PID: 20, TID: 2}

	dispatchAll(c,
		testutil.DXGIPresentStart(h1, 100, 0xA, 1, 0),
		testutil.Flip(h1, 101, 1, true),
		testutil.QueueSubmit(h1, 102, 7, 0xC1),
		testutil.DXGIPresentStop(h1, 105),

		// A different process reuses submit sequence 7.
		testutil.DXGIPresentStart(h2, 110, 0xB, 1, 0),
		testutil.Flip(h2, 111, 1, true),
		testutil.QueueSubmit(h2, 112, 7, 0xC2),
	)

	lost := c.DequeueLost()
	require.Len(t, lost, 1)
	assert.Equal(t, uint64(100), lost[0].QPCStart)
	assert.True(t, lost[0].IsLost)
	assert.Equal(t, uint64(1), c.Stats().LostByReplacement)
}

func TestTrackDisplayOff_CompletesAtPresentStop(t *testing.T) {
	c := NewConsumer(WithTrackDisplay(false))

	dispatchAll(c,
		testutil.DXGIPresentStart(app, 100, 0xA, 1, 0),
		testutil.QueueSubmit(app, 102, 7, 0xC),
		testutil.DXGIPresentStop(app, 110),
	)

	rec := completedOne(t, c)
	assert.Equal(t, ResultPresented, rec.FinalState)
	assert.Equal(t, uint64(10), rec.TimeTaken)
	assert.Equal(t, ModeUnknown, rec.Mode)
	assert.Zero(t, rec.ScreenQPC)
}

func TestFailedRuntimePresent_Discarded(t *testing.T) {
	c := NewConsumer()

	dispatchAll(c,
		testutil.DXGIPresentStart(app, 100, 0xA, 1, 0),
		testutil.DXGIPresentStopFailed(app, 110),
	)

	rec := completedOne(t, c)
	assert.Equal(t, ResultDiscarded, rec.FinalState)
}

func TestProcessFilter_DropsAtCompletion(t *testing.T) {
	c := NewConsumer(WithProcessFilter(true))
	c.AddTrackedProcess(10)

	other := testutil.Hdr{PID: 99, TID: 9}
	dispatchAll(c,
		testutil.DXGIPresentStart(app, 100, 0xA, 1, 0),
		testutil.Flip(app, 101, 1, true),
		testutil.QueueSubmit(app, 102, 1, 0xC1),
		testutil.DXGIPresentStop(app, 105),
		testutil.VSyncDPC(app, 200, 1),

		testutil.DXGIPresentStart(other, 110, 0xB, 1, 0),
		testutil.Flip(other, 111, 1, true),
		testutil.QueueSubmit(other, 112, 2, 0xC2),
		testutil.DXGIPresentStop(other, 115),
		testutil.VSyncDPC(other, 210, 2),
	)

	got := c.DequeueCompleted()
	require.Len(t, got, 1)
	assert.Equal(t, uint32(10), got[0].PID)
}

func TestClassificationError_EarlierScreenTime(t *testing.T) {
	c := NewConsumer()

	dispatchAll(c,
		testutil.DXGIPresentStart(app, 100, 0xA, 1, 0),
		testutil.TokenCompositionSurface(app, 101, 6, 1, 1),
		testutil.QueueSubmit(app, 102, 7, 0xC),
		testutil.DXGIPresentStop(app, 110),
		testutil.TokenStateChanged(app, 300, 6, 1, 1, etw.TokenStateRetired),
		// A sync interrupt claiming an earlier on-screen time contradicts
		// the recorded one.
		testutil.VSyncDPC(app, 200, 7),
	)

	rec := completedOne(t, c)
	assert.Equal(t, ResultError, rec.FinalState)
	assert.Equal(t, uint64(1), c.Stats().ClassificationErrors)
}

func TestDrain_RemainingRecordsLost(t *testing.T) {
	c := NewConsumer()

	dispatchAll(c,
		testutil.DXGIPresentStart(app, 100, 0xA, 1, 0),
		testutil.Flip(app, 101, 1, true),
		testutil.QueueSubmit(app, 102, 7, 0xC),
		testutil.DXGIPresentStop(app, 110),
	)
	c.Drain()

	lost := c.DequeueLost()
	require.Len(t, lost, 1)
	assert.True(t, lost[0].IsLost)
	assert.Empty(t, c.DequeueCompleted())
}

func TestProcessEvents(t *testing.T) {
	c := NewConsumer()

	dispatchAll(c,
		testutil.ProcessStart(app, 50, "game.exe"),
		testutil.ProcessStop(app, 900, "game.exe"),
	)

	evs := c.DequeueProcessEvents()
	require.Len(t, evs, 2)
	assert.Equal(t, "game.exe", evs[0].ImageName)
	assert.True(t, evs[0].IsStart)
	assert.Equal(t, uint32(10), evs[0].PID)
	assert.False(t, evs[1].IsStart)

	// Swap-out semantics: a second dequeue is empty.
	assert.Empty(t, c.DequeueProcessEvents())
}

func TestHasCompletedAPresent(t *testing.T) {
	c := NewConsumer()
	assert.False(t, c.HasCompletedAPresent())

	dispatchAll(c,
		testutil.DXGIPresentStart(app, 100, 0xA, 1, 0),
		testutil.Flip(app, 101, 1, true),
		testutil.QueueSubmit(app, 102, 7, 0xC),
		testutil.DXGIPresentStop(app, 110),
		testutil.VSyncDPC(app, 300, 7),
	)
	assert.True(t, c.HasCompletedAPresent())
}

func TestD3D9Runtime(t *testing.T) {
	c := NewConsumer()

	dispatchAll(c,
		testutil.D3D9PresentStart(app, 100, 0x9),
		testutil.Flip(app, 101, 1, true),
		testutil.QueueSubmit(app, 102, 7, 0xC),
		testutil.D3D9PresentStop(app, 110),
		testutil.VSyncDPC(app, 300, 7),
	)

	rec := completedOne(t, c)
	assert.Equal(t, RuntimeD3D9, rec.Runtime)
	assert.Equal(t, ResultPresented, rec.FinalState)
}

func TestUnknownEventsIgnored(t *testing.T) {
	c := NewConsumer()

	unknown := testutil.DXGIPresentStart(app, 100, 0xA, 1, 0)
	unknown.ID = 9999
	c.Dispatch(unknown)

	assert.Empty(t, c.DequeueCompleted())
	assert.Empty(t, c.DequeueLost())
	assert.Equal(t, uint64(1), c.Stats().EventsProcessed)
}
