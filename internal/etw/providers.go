package etw

import "github.com/google/uuid"

// Provider GUIDs for the graphics stack, as published by the host OS.
//
// The Win7-era graphics kernel split several event families into their own
// sub-providers; those GUIDs dispatch into the same handlers as their modern
// equivalents.
var (
	// Microsoft-Windows-DXGI
	DXGIProvider = uuid.MustParse("CA11C036-0102-4A2D-A6AD-F03CFED5D3C9")

	// Microsoft-Windows-D3D9
	D3D9Provider = uuid.MustParse("783ACA0A-790E-4D7F-8451-AA850511C6B9")

	// Microsoft-Windows-DxgKrnl
	DxgKrnlProvider = uuid.MustParse("802EC45A-1E99-4B83-9920-87C98277BA9D")

	// Microsoft-Windows-Win32k
	Win32kProvider = uuid.MustParse("8C416C79-D49B-4F01-A467-E56D3AA8234C")

	// Microsoft-Windows-Dwm-Core
	DWMProvider = uuid.MustParse("9E9BBA3C-2E38-40CB-99F4-9E8281425164")

	// Microsoft-Windows-Dwm-Core on Win7
	DWMWin7Provider = uuid.MustParse("8C9DD1AD-E6E5-4B07-B455-684A9D879900")

	// NT kernel process provider
	ProcessProvider = uuid.MustParse("3D6FA8D0-FE05-11D0-9DDA-00C04FD7BA7C")

	// Win7 DxgKrnl sub-providers
	Win7DxgKrnlBlit           = uuid.MustParse("069F67F2-C380-4A65-8A61-071CD4A87275")
	Win7DxgKrnlFlip           = uuid.MustParse("22412531-670B-4CD3-81D1-E709C154AE3D")
	Win7DxgKrnlPresentHistory = uuid.MustParse("C19F763A-C0C1-479D-9F74-22ABFC3A5F0A")
	Win7DxgKrnlQueuePacket    = uuid.MustParse("295E0D8E-51EC-43B8-9CC6-9F79331D27D6")
	Win7DxgKrnlVSyncDPC       = uuid.MustParse("5CCF1378-6B2C-4C0F-BD56-8EEB9E4C5C77")
	Win7DxgKrnlMMIOFlip       = uuid.MustParse("547820FE-5666-4B41-93DC-6CFD5DEA28CC")
)

// DXGI event ids.
const (
	DXGIPresentStart    uint16 = 42
	DXGIPresentStop     uint16 = 43
	DXGIPresentMPOStart uint16 = 55
	DXGIPresentMPOStop  uint16 = 56
)

// D3D9 event ids.
const (
	D3D9PresentStart uint16 = 1
	D3D9PresentStop  uint16 = 2
)

// DxgKrnl event ids.
const (
	DxgKrnlVSyncDPC               uint16 = 17
	DxgKrnlMMIOFlip               uint16 = 116
	DxgKrnlBlit                   uint16 = 166
	DxgKrnlFlip                   uint16 = 168
	DxgKrnlPresentHistoryStart    uint16 = 171
	DxgKrnlPresentHistoryInfo     uint16 = 172
	DxgKrnlQueuePacketStart       uint16 = 178
	DxgKrnlQueuePacketStop        uint16 = 180
	DxgKrnlPresent                uint16 = 184
	DxgKrnlPresentHistoryDetailed uint16 = 215
	DxgKrnlFlipMPO                uint16 = 252
	DxgKrnlMMIOFlipMPO            uint16 = 259
	DxgKrnlIndependentFlip        uint16 = 266
	DxgKrnlVSyncDPCMPO            uint16 = 273
	DxgKrnlHSyncDPCMPO            uint16 = 382
	DxgKrnlBlitCancel             uint16 = 501
)

// Win32k event ids.
const (
	Win32kTokenCompositionSurfaceObject uint16 = 201
	Win32kTokenStateChanged             uint16 = 301
)

// DWM event ids. UpdateWindow is the legacy per-window composition notice;
// later hosts report the same step as ScheduleSurfaceUpdate keyed by the
// composition token instead of the window handle.
const (
	DWMSchedulePresentStart  uint16 = 15
	DWMUpdateWindow          uint16 = 46
	DWMGetPresentHistory     uint16 = 64
	DWMFlipChainPending      uint16 = 69
	DWMFlipChainComplete     uint16 = 70
	DWMFlipChainDirty        uint16 = 101
	DWMScheduleSurfaceUpdate uint16 = 196
)

// Process provider event ids.
const (
	ProcessStart uint16 = 1
	ProcessStop  uint16 = 2
)

// TokenState values carried by Win32kTokenStateChanged.
const (
	TokenStateInFrame   uint32 = 3
	TokenStateConfirmed uint32 = 4
	TokenStateRetired   uint32 = 5
	TokenStateDiscarded uint32 = 6
)

// Present models carried by the kernel present-history events.
const (
	PresentModelUninitialized       uint32 = 0
	PresentModelRedirectedGDI       uint32 = 1
	PresentModelRedirectedFlip      uint32 = 2
	PresentModelRedirectedBlt       uint32 = 3
	PresentModelRedirectedVistaBlt  uint32 = 4
	PresentModelRedirectedGDISysmem uint32 = 6
	PresentModelComposition         uint32 = 7
)

// Flip-entry status values carried by MMIOFlipMPO.
const (
	FlipWaitVSync    uint32 = 5
	FlipWaitComplete uint32 = 11
	FlipWaitHSync    uint32 = 15
)

// Queue packet types carried by QueuePacketStart.
const (
	QueuePacketRender   uint32 = 0
	QueuePacketMMIOFlip uint32 = 3
	QueuePacketWait     uint32 = 4
	QueuePacketSignal   uint32 = 5
	QueuePacketPaging   uint32 = 8
)

var providerNames = map[uuid.UUID]string{
	DXGIProvider:              "DXGI",
	D3D9Provider:              "D3D9",
	DxgKrnlProvider:           "DxgKrnl",
	Win32kProvider:            "Win32k",
	DWMProvider:               "DWM",
	DWMWin7Provider:           "DWM",
	ProcessProvider:           "Process",
	Win7DxgKrnlBlit:           "DxgKrnl.Win7.Blit",
	Win7DxgKrnlFlip:           "DxgKrnl.Win7.Flip",
	Win7DxgKrnlPresentHistory: "DxgKrnl.Win7.PresentHistory",
	Win7DxgKrnlQueuePacket:    "DxgKrnl.Win7.QueuePacket",
	Win7DxgKrnlVSyncDPC:       "DxgKrnl.Win7.VSyncDPC",
	Win7DxgKrnlMMIOFlip:       "DxgKrnl.Win7.MMIOFlip",
}

// ProviderName returns a short display name for a provider GUID, or the GUID
// string itself for providers the engine does not recognize.
func ProviderName(id uuid.UUID) string {
	if n, ok := providerNames[id]; ok {
		return n
	}
	return id.String()
}
