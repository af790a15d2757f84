// Package testutil provides deterministic event builders for correlation
// tests. Each builder returns a fully-formed typed event; tests compose them
// into the canonical per-variant sequences.
package testutil

import (
	"github.com/google/uuid"

	"github.com/roach88/framewatch/internal/etw"
)

// Hdr identifies the thread a builder emits on.
type Hdr struct {
	PID uint32
	TID uint32
}

func event(provider uuid.UUID, id uint16, qpc uint64, h Hdr, props etw.Properties) etw.Event {
	return etw.Event{
		Provider: provider,
		ID:       id,
		QPC:      qpc,
		PID:      h.PID,
		TID:      h.TID,
		Props:    props,
	}
}

// DXGIPresentStart begins a DXGI runtime present.
func DXGIPresentStart(h Hdr, qpc uint64, swapchain uint64, syncInterval int64, flags uint64) etw.Event {
	return event(etw.DXGIProvider, etw.DXGIPresentStart, qpc, h, etw.Properties{
		"pSwapchain":   swapchain,
		"SyncInterval": syncInterval,
		"Flags":        flags,
	})
}

// DXGIPresentStop ends a DXGI runtime present with S_OK.
func DXGIPresentStop(h Hdr, qpc uint64) etw.Event {
	return event(etw.DXGIProvider, etw.DXGIPresentStop, qpc, h, etw.Properties{
		"Result": int64(0),
	})
}

// DXGIPresentStopFailed ends a DXGI runtime present with a failure HRESULT.
func DXGIPresentStopFailed(h Hdr, qpc uint64) etw.Event {
	return event(etw.DXGIProvider, etw.DXGIPresentStop, qpc, h, etw.Properties{
		"Result": int64(-2005270523), // DXGI_ERROR_DEVICE_REMOVED
	})
}

// D3D9PresentStart begins a D3D9 runtime present.
func D3D9PresentStart(h Hdr, qpc uint64, swapchain uint64) etw.Event {
	return event(etw.D3D9Provider, etw.D3D9PresentStart, qpc, h, etw.Properties{
		"pSwapchain": swapchain,
	})
}

// D3D9PresentStop ends a D3D9 runtime present.
func D3D9PresentStop(h Hdr, qpc uint64) etw.Event {
	return event(etw.D3D9Provider, etw.D3D9PresentStop, qpc, h, etw.Properties{
		"Result": int64(0),
	})
}

// Flip is a graphics-kernel legacy flip on the builder's thread.
func Flip(h Hdr, qpc uint64, interval int64, mmio bool) etw.Event {
	return event(etw.DxgKrnlProvider, etw.DxgKrnlFlip, qpc, h, etw.Properties{
		"FlipInterval": interval,
		"MMIOFlip":     mmio,
	})
}

// Blit is a graphics-kernel blit on the builder's thread.
func Blit(h Hdr, qpc uint64, hwnd uint64, redirected bool) etw.Event {
	return event(etw.DxgKrnlProvider, etw.DxgKrnlBlit, qpc, h, etw.Properties{
		"hwnd":               hwnd,
		"bRedirectedPresent": redirected,
	})
}

// QueueSubmit submits the thread's present packet.
func QueueSubmit(h Hdr, qpc uint64, seq uint32, ctx uint64) etw.Event {
	return event(etw.DxgKrnlProvider, etw.DxgKrnlQueuePacketStart, qpc, h, etw.Properties{
		"PacketType":     uint64(0),
		"SubmitSequence": uint64(seq),
		"hContext":       ctx,
		"bPresent":       true,
	})
}

// QueueSubmitRender submits a non-present packet on a context.
func QueueSubmitRender(h Hdr, qpc uint64, seq uint32, ctx uint64) etw.Event {
	return event(etw.DxgKrnlProvider, etw.DxgKrnlQueuePacketStart, qpc, h, etw.Properties{
		"PacketType":     uint64(0),
		"SubmitSequence": uint64(seq),
		"hContext":       ctx,
		"bPresent":       false,
	})
}

// QueueComplete completes a queue packet by submit sequence.
func QueueComplete(h Hdr, qpc uint64, seq uint32) etw.Event {
	return event(etw.DxgKrnlProvider, etw.DxgKrnlQueuePacketStop, qpc, h, etw.Properties{
		"SubmitSequence": uint64(seq),
	})
}

// MMIOFlip programs the flip for a submit sequence.
func MMIOFlip(h Hdr, qpc uint64, seq uint32, immediate bool) etw.Event {
	var flags uint64
	if immediate {
		flags = 0x2
	}
	return event(etw.DxgKrnlProvider, etw.DxgKrnlMMIOFlip, qpc, h, etw.Properties{
		"FlipSubmitSequence": uint64(seq) << 32,
		"Flags":              flags,
	})
}

// MMIOFlipMPO programs a multi-plane flip with an explicit entry status.
func MMIOFlipMPO(h Hdr, qpc uint64, seq uint32, status uint32, statusValid bool) etw.Event {
	return event(etw.DxgKrnlProvider, etw.DxgKrnlMMIOFlipMPO, qpc, h, etw.Properties{
		"FlipSubmitSequence":            uint64(seq) << 32,
		"FlipEntryStatusAfterFlip":      uint64(status),
		"FlipEntryStatusAfterFlipValid": statusValid,
	})
}

// VSyncDPC is the sync interrupt carrying a flip's submit sequence.
func VSyncDPC(h Hdr, qpc uint64, seq uint32) etw.Event {
	return event(etw.DxgKrnlProvider, etw.DxgKrnlVSyncDPC, qpc, h, etw.Properties{
		"FlipFenceId": uint64(seq) << 32,
	})
}

// VSyncDPCMPO is the multi-plane sync interrupt.
func VSyncDPCMPO(h Hdr, qpc uint64, seq uint32, validPlanes uint64) etw.Event {
	return event(etw.DxgKrnlProvider, etw.DxgKrnlVSyncDPCMPO, qpc, h, etw.Properties{
		"FlipSubmitSequence": uint64(seq) << 32,
		"ValidPlaneCount":    validPlanes,
	})
}

// IndependentFlip reports the kernel taking over a composed flip directly.
func IndependentFlip(h Hdr, qpc uint64, seq uint32) etw.Event {
	return event(etw.DxgKrnlProvider, etw.DxgKrnlIndependentFlip, qpc, h, etw.Properties{
		"FlipSubmitSequence": uint64(seq) << 32,
	})
}

// DxgkPresent is the kernel-side present notification with a window handle.
func DxgkPresent(h Hdr, qpc uint64, hwnd uint64) etw.Event {
	return event(etw.DxgKrnlProvider, etw.DxgKrnlPresent, qpc, h, etw.Properties{
		"hWindow": hwnd,
	})
}

// PresentHistoryDetailed assigns a kernel present-history token.
func PresentHistoryDetailed(h Hdr, qpc uint64, token uint64, model uint32) etw.Event {
	return event(etw.DxgKrnlProvider, etw.DxgKrnlPresentHistoryDetailed, qpc, h, etw.Properties{
		"Token": token,
		"Model": uint64(model),
	})
}

// PresentHistoryStart submits a present-history token with optional legacy
// token data.
func PresentHistoryStart(h Hdr, qpc uint64, token uint64, model uint32, tokenData uint64) etw.Event {
	return event(etw.DxgKrnlProvider, etw.DxgKrnlPresentHistoryStart, qpc, h, etw.Properties{
		"Token":     token,
		"Model":     uint64(model),
		"TokenData": tokenData,
	})
}

// PresentHistoryInfo propagates a present-history token to the compositor.
func PresentHistoryInfo(h Hdr, qpc uint64, token uint64) etw.Event {
	return event(etw.DxgKrnlProvider, etw.DxgKrnlPresentHistoryInfo, qpc, h, etw.Properties{
		"Token": token,
	})
}

// TokenCompositionSurface assigns the windowing token triple.
func TokenCompositionSurface(h Hdr, qpc uint64, surface, count, bind uint64) etw.Event {
	return event(etw.Win32kProvider, etw.Win32kTokenCompositionSurfaceObject, qpc, h, etw.Properties{
		"CompositionSurfaceLuid": surface,
		"PresentCount":           count,
		"BindId":                 bind,
	})
}

// TokenStateChanged transitions a windowing token.
func TokenStateChanged(h Hdr, qpc uint64, surface, count, bind uint64, state uint32) etw.Event {
	return event(etw.Win32kProvider, etw.Win32kTokenStateChanged, qpc, h, etw.Properties{
		"CompositionSurfaceLuid": surface,
		"PresentCount":           count,
		"BindId":                 bind,
		"NewState":               uint64(state),
	})
}

// TokenStateChangedIFlip is InFrame with the independent-flip property set.
func TokenStateChangedIFlip(h Hdr, qpc uint64, surface, count, bind uint64) etw.Event {
	return event(etw.Win32kProvider, etw.Win32kTokenStateChanged, qpc, h, etw.Properties{
		"CompositionSurfaceLuid": surface,
		"PresentCount":           count,
		"BindId":                 bind,
		"NewState":               uint64(etw.TokenStateInFrame),
		"IndependentFlip":        true,
	})
}

// DWMSchedulePresent marks the compositor's present thread.
func DWMSchedulePresent(h Hdr, qpc uint64) etw.Event {
	return event(etw.DWMProvider, etw.DWMSchedulePresentStart, qpc, h, etw.Properties{})
}

// DWMUpdateWindow marks a window active for the compositor's current cycle.
func DWMUpdateWindow(h Hdr, qpc uint64, hwnd uint64) etw.Event {
	return event(etw.DWMProvider, etw.DWMUpdateWindow, qpc, h, etw.Properties{
		"hWnd": hwnd,
	})
}

// DWMGetPresentHistory batches the pending window presents for composition.
func DWMGetPresentHistory(h Hdr, qpc uint64) etw.Event {
	return event(etw.DWMProvider, etw.DWMGetPresentHistory, qpc, h, etw.Properties{})
}

// DWMFlipChainPending binds a legacy blit token to a window.
func DWMFlipChainPending(h Hdr, qpc uint64, flipChain, serial, hwnd uint64) etw.Event {
	return event(etw.DWMProvider, etw.DWMFlipChainPending, qpc, h, etw.Properties{
		"ulFlipChain":    flipChain,
		"ulSerialNumber": serial,
		"hwnd":           hwnd,
	})
}

// ProcessStart reports process creation.
func ProcessStart(h Hdr, qpc uint64, image string) etw.Event {
	return event(etw.ProcessProvider, etw.ProcessStart, qpc, h, etw.Properties{
		"ProcessID":     uint64(h.PID),
		"ImageFileName": image,
	})
}

// ProcessStop reports process exit.
func ProcessStop(h Hdr, qpc uint64, image string) etw.Event {
	return event(etw.ProcessProvider, etw.ProcessStop, qpc, h, etw.Properties{
		"ProcessID":     uint64(h.PID),
		"ImageFileName": image,
	})
}
