package present

// Runtime identifies which presentation runtime issued a present.
type Runtime int32

const (
	RuntimeOther Runtime = iota
	RuntimeDXGI
	RuntimeD3D9
)

// String returns the runtime name as it appears in report output.
func (r Runtime) String() string {
	switch r {
	case RuntimeDXGI:
		return "DXGI"
	case RuntimeD3D9:
		return "D3D9"
	default:
		return "Other"
	}
}

// Mode is the presentation-path variant a present was classified into.
//
// A record's mode is set by the first classifying event and may be refined
// (composed to independent flip, independent to composed-independent) but
// never reverts to an earlier variant.
type Mode int32

const (
	ModeUnknown Mode = iota
	ModeHardwareLegacyFlip
	ModeHardwareLegacyCopyToFrontBuffer
	ModeHardwareIndependentFlip
	ModeComposedFlip
	ModeComposedCopyGPU
	ModeComposedCopyCPU
	ModeComposedCompositionAtlas
	ModeHardwareComposedIndependentFlip
)

// String returns the mode name as it appears in report output. The names
// match the host tooling's conventions so downstream consumers line up.
func (m Mode) String() string {
	switch m {
	case ModeHardwareLegacyFlip:
		return "Hardware: Legacy Flip"
	case ModeHardwareLegacyCopyToFrontBuffer:
		return "Hardware: Legacy Copy to front buffer"
	case ModeHardwareIndependentFlip:
		return "Hardware: Independent Flip"
	case ModeComposedFlip:
		return "Composed: Flip"
	case ModeComposedCopyGPU:
		return "Composed: Copy with GPU GDI"
	case ModeComposedCopyCPU:
		return "Composed: Copy with CPU GDI"
	case ModeComposedCompositionAtlas:
		return "Composed: Composition Atlas"
	case ModeHardwareComposedIndependentFlip:
		return "Hardware Composed: Independent Flip"
	default:
		return "Other"
	}
}

// Result is the final state of a present.
type Result int32

const (
	ResultUnknown Result = iota
	ResultPresented
	ResultDiscarded
	ResultError
)

func (r Result) String() string {
	switch r {
	case ResultPresented:
		return "Presented"
	case ResultDiscarded:
		return "Discarded"
	case ResultError:
		return "Error"
	default:
		return "Unknown"
	}
}

// CompositionToken uniquely identifies a composed present to the windowing
// system: composition surface, per-surface present count, bind id.
type CompositionToken struct {
	Surface      uint64
	PresentCount uint64
	BindID       uint64
}

// Record is the correlation state for one present, from the first attributable
// event until it is handed to a consumer as completed or lost.
//
// Records are owned by the arena; everything else refers to them through
// generation-checked handles. Fields fill in progressively as events arrive;
// a zero timestamp means the event supplying it was never observed.
type Record struct {
	// Identity and timing.
	QPCStart  uint64 // QPC of the first event attributed to this present
	PID       uint32
	TID       uint32
	ID        uint64 // engine-assigned monotonic id
	RingIndex int    // slot in the arena ring

	// Runtime-supplied.
	SwapChain    uint64
	SyncInterval int32
	PresentFlags uint32
	Runtime      Runtime
	TimeTaken    uint64 // QPC delta between runtime present begin and end

	// Correlation keys, learned progressively. Zero means not yet assigned.
	DxgContext      uint64
	SubmitSequence  uint32
	KernelToken     uint64 // kernel present-history token pointer
	CompToken       CompositionToken
	HasCompToken    bool
	LegacyBlitToken uint64
	Hwnd            uint64

	// Derived.
	Mode            Mode
	ReadyQPC        uint64 // last GPU work complete prior to presentation
	ScreenQPC       uint64 // present visible on screen
	FinalState      Result
	SupportsTearing bool
	MMIO            bool

	// Observation flags.
	SeenGfxPresent     bool
	SeenWin32kEvents   bool
	DwmNotified        bool
	SeenInFrame        bool
	CompletionDeferred bool
	IsCompleted        bool
	IsLost             bool

	// Set while the record sits in the waiting-for-compositor queue, so
	// handlers do not search it fruitlessly.
	WaitingForCompositor bool

	// Presents whose completion is gated on this record's completion, in
	// arrival order. Composited presents wait here for the compositor's own
	// present to reach the screen.
	Dependents []Handle
}

// terminal reports whether the record has already been handed off.
func (r *Record) terminal() bool {
	return r.IsCompleted || r.IsLost
}

// refineMode upgrades the presentation path. Variants only ever refine
// forward; an attempt to move backward is ignored.
func (r *Record) refineMode(m Mode) {
	switch {
	case r.Mode == ModeUnknown:
		r.Mode = m
	case r.Mode == ModeComposedFlip && m == ModeHardwareIndependentFlip:
		r.Mode = m
	case r.Mode == ModeHardwareIndependentFlip && m == ModeHardwareComposedIndependentFlip:
		r.Mode = m
	}
}

// ProcessEvent is produced on process create and exit, drained on its own
// consumer channel.
type ProcessEvent struct {
	ImageName string
	QPC       uint64
	PID       uint32
	IsStart   bool
}
