package present

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/framewatch/internal/etw"
	"github.com/roach88/framewatch/internal/testutil"
)

func TestMMIOFlipMPO_WaitCompleteBypassesVSync(t *testing.T) {
	c := NewConsumer()

	dispatchAll(c,
		testutil.DXGIPresentStart(app, 100, 0xA, 0, 0),
		testutil.Flip(app, 101, 0, true),
		testutil.QueueSubmit(app, 102, 7, 0xC),
		testutil.DXGIPresentStop(app, 110),
		testutil.MMIOFlipMPO(app, 200, 7, etw.FlipWaitComplete, true),
	)

	rec := completedOne(t, c)
	assert.Equal(t, uint64(200), rec.ReadyQPC)
	assert.Equal(t, uint64(200), rec.ScreenQPC)
	assert.True(t, rec.SupportsTearing)
	assert.Equal(t, ResultPresented, rec.FinalState)
}

func TestMMIOFlipMPO_WaitVSyncHoldsForInterrupt(t *testing.T) {
	c := NewConsumer()

	dispatchAll(c,
		testutil.DXGIPresentStart(app, 100, 0xA, 1, 0),
		testutil.Flip(app, 101, 1, true),
		testutil.QueueSubmit(app, 102, 7, 0xC),
		testutil.DXGIPresentStop(app, 110),
		testutil.MMIOFlipMPO(app, 200, 7, etw.FlipWaitVSync, true),
	)
	assert.Empty(t, c.DequeueCompleted())

	c.Dispatch(testutil.VSyncDPC(app, 300, 7))
	rec := completedOne(t, c)
	assert.Equal(t, uint64(200), rec.ReadyQPC)
	assert.Equal(t, uint64(300), rec.ScreenQPC)
}

func TestWin7ProviderAliases(t *testing.T) {
	c := NewConsumer()

	start := testutil.DXGIPresentStart(app, 100, 0xA, 1, 0)

	flip := testutil.Flip(app, 101, 1, true)
	flip.Provider = etw.Win7DxgKrnlFlip

	submit := testutil.QueueSubmit(app, 102, 7, 0xC)
	submit.Provider = etw.Win7DxgKrnlQueuePacket

	stop := testutil.DXGIPresentStop(app, 110)

	vsync := testutil.VSyncDPC(app, 300, 7)
	vsync.Provider = etw.Win7DxgKrnlVSyncDPC

	dispatchAll(c, start, flip, submit, stop, vsync)

	rec := completedOne(t, c)
	assert.Equal(t, ModeHardwareLegacyFlip, rec.Mode)
	assert.Equal(t, uint64(300), rec.ScreenQPC)
	assert.Equal(t, ResultPresented, rec.FinalState)
}

func TestBlitCancel_CompletesImmediately(t *testing.T) {
	c := NewConsumer()

	ev := testutil.Blit(app, 101, 0xB0, false)
	cancel := etw.Event{
		Provider: etw.DxgKrnlProvider,
		ID:       etw.DxgKrnlBlitCancel,
		QPC:      250,
		PID:      app.PID,
		TID:      app.TID,
	}

	dispatchAll(c,
		testutil.DXGIPresentStart(app, 100, 0xA, 0, 0),
		ev,
		cancel,
		testutil.DXGIPresentStop(app, 260),
	)

	rec := completedOne(t, c)
	assert.Equal(t, uint64(250), rec.ReadyQPC)
	assert.Equal(t, uint64(250), rec.ScreenQPC)
	assert.Equal(t, ResultPresented, rec.FinalState)
}
