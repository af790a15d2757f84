package present

import (
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/framewatch/internal/etw"
)

// Options configure a Consumer for one trace session.
type Options struct {
	// TrackDisplay enables the compositor, windowing, and flip-path handlers.
	// When false only runtime and queue submit/complete events are tracked,
	// and presents complete at runtime present end.
	TrackDisplay bool

	// FilterProcesses enables pid-filter mode: presents from unlisted pids
	// are dropped at completion time (not at creation, so cross-process
	// correlation still works for dependents).
	FilterProcesses bool

	// RingCapacity overrides the live-record bound. Zero means
	// DefaultRingCapacity.
	RingCapacity int
}

// Option mutates Options. Follows the functional-options shape of the rest of
// the codebase.
type Option func(*Options)

// WithTrackDisplay enables or disables display-path tracking.
func WithTrackDisplay(on bool) Option {
	return func(o *Options) { o.TrackDisplay = on }
}

// WithProcessFilter enables pid-filter mode.
func WithProcessFilter(on bool) Option {
	return func(o *Options) { o.FilterProcesses = on }
}

// WithRingCapacity overrides the live-record bound.
func WithRingCapacity(n int) Option {
	return func(o *Options) { o.RingCapacity = n }
}

// deferredCompletion is a record whose final state is decided but which must
// wait for remaining runtime present-stops before emission.
type deferredCompletion struct {
	h              Handle
	remainingStops int
}

// Consumer is the present-correlation engine.
//
// It ingests typed trace events from several providers, correlates them into
// per-present records, classifies each record's presentation path, and emits
// completed and lost records to consumers.
//
// Thread-safety model:
//   - Dispatch(): must be called from exactly one goroutine (single writer);
//     all indexes are touched only by that goroutine and need no locking
//   - DequeueCompleted / DequeueLost / DequeueProcessEvents: safe from any
//     goroutine; each output queue has its own mutex
//   - AddTrackedProcess / RemoveTrackedProcess: safe from any goroutine
//     (readers-writer lock on the filter set)
//
// INVARIANTS:
//   - At most one live record is indexed under any key value at a time; a new
//     assignment evicts the prior holder as lost
//   - Every live record is in the arena and in byProcess; it may additionally
//     appear in any subset of the key indexes
//   - Completed records are emitted per process in ascending QPCStart order
type Consumer struct {
	opts  Options
	arena *arena

	nextID uint64

	// Key indexes. Values are generation-checked arena handles; a stale
	// handle reads as "no record".
	byThread           map[uint32]Handle
	byProcess          map[uint32]*orderedPresents
	bySubmitSequence   map[uint32]Handle
	byCompositionToken map[CompositionToken]Handle
	byKernelToken      map[uint64]Handle
	byBlitContext      map[uint64]Handle
	byWindowLast       map[uint64]Handle
	byLegacyBlitToken  map[uint64]Handle

	// Presents consumed by the compositor's next present, in hand-off order.
	waitingForCompositor []Handle

	// Windows the compositor marked active for this composition cycle
	// (UpdateWindow); cleared when the cycle's present history is batched.
	composedWindows map[uint64]struct{}

	// Deferred completions per process, in completion order.
	deferred map[uint32][]deferredCompletion

	// Compositor identity, learned from its schedule-present events.
	dwmPID        uint32
	dwmPresentTID uint32

	// Whether any present has completed yet. Until this flips, a front end
	// cannot distinguish "no presents yet" from "providers not started".
	hasCompleted bool

	// Output queues. Swap-out-and-return semantics under one lock each.
	completedMu  sync.Mutex
	completedOut []*Record

	lostMu  sync.Mutex
	lostOut []*Record

	processMu     sync.Mutex
	processEvents []ProcessEvent

	// Process-id filter. Many readers (handlers), one writer (admin thread).
	filterMu sync.RWMutex
	filter   map[uint32]struct{}

	metrics *metrics
}

// NewConsumer creates a correlation engine for one trace session.
func NewConsumer(opts ...Option) *Consumer {
	o := Options{TrackDisplay: true}
	for _, opt := range opts {
		opt(&o)
	}

	return &Consumer{
		opts:               o,
		arena:              newArena(o.RingCapacity),
		byThread:           make(map[uint32]Handle),
		byProcess:          make(map[uint32]*orderedPresents),
		bySubmitSequence:   make(map[uint32]Handle),
		byCompositionToken: make(map[CompositionToken]Handle),
		byKernelToken:      make(map[uint64]Handle),
		byBlitContext:      make(map[uint64]Handle),
		byWindowLast:       make(map[uint64]Handle),
		byLegacyBlitToken:  make(map[uint64]Handle),
		composedWindows:    make(map[uint64]struct{}),
		deferred:           make(map[uint32][]deferredCompletion),
		filter:             make(map[uint32]struct{}),
		metrics:            newMetrics(),
	}
}

// Dispatch routes one typed event to its handler.
//
// Pure routing: provider id selects the handler family, event id selects the
// handler. Unknown providers and event ids are silently ignored.
//
// CRITICAL: Must be called from exactly one goroutine.
func (c *Consumer) Dispatch(ev etw.Event) {
	c.metrics.event()

	switch ev.Provider {
	case etw.DXGIProvider:
		c.handleDXGIEvent(ev)
	case etw.D3D9Provider:
		c.handleD3D9Event(ev)
	case etw.DxgKrnlProvider:
		c.handleDxgKrnlEvent(ev)
	case etw.Win32kProvider:
		if c.opts.TrackDisplay {
			c.handleWin32kEvent(ev)
		}
	case etw.DWMProvider, etw.DWMWin7Provider:
		if c.opts.TrackDisplay {
			c.handleDWMEvent(ev)
		}
	case etw.ProcessProvider:
		c.handleProcessEvent(ev)
	case etw.Win7DxgKrnlBlit:
		if c.opts.TrackDisplay {
			c.handleBlit(ev.Header(), ev.Props.Uint("hwnd"), ev.Props.Bool("RedirectedPresent"))
		}
	case etw.Win7DxgKrnlFlip:
		if c.opts.TrackDisplay {
			c.handleFlip(ev.Header(), int32(ev.Props.Int("FlipInterval")), ev.Props.Bool("MMIOFlip"))
		}
	case etw.Win7DxgKrnlPresentHistory:
		if c.opts.TrackDisplay {
			c.handleWin7PresentHistory(ev)
		}
	case etw.Win7DxgKrnlQueuePacket:
		c.handleWin7QueuePacket(ev)
	case etw.Win7DxgKrnlVSyncDPC:
		if c.opts.TrackDisplay {
			c.handleSyncDPC(ev.Header(), flipSeq(ev.Props, "FlipFenceId"), false)
		}
	case etw.Win7DxgKrnlMMIOFlip:
		if c.opts.TrackDisplay {
			c.handleMMIOFlip(ev.Header(), flipSeq(ev.Props, "FlipSubmitSequence"), ev.Props.Uint32("Flags"))
		}
	default:
		// Unknown provider: ignore.
	}
}

// lookup resolves a handle out of an index map, treating stale handles as
// absent.
func lookup[K comparable](c *Consumer, m map[K]Handle, k K) (*Record, Handle) {
	h, ok := m[k]
	if !ok {
		return nil, Handle{}
	}
	rec := c.arena.get(h)
	if rec == nil {
		delete(m, k)
		return nil, Handle{}
	}
	return rec, h
}

// findOrCreate implements the store's FindOrCreate(header) operation: the
// thread's in-flight present if one exists, otherwise a fresh record tracked
// in the arena, the thread index, and the per-process ordered map.
func (c *Consumer) findOrCreate(hdr etw.Header, runtime Runtime) (*Record, Handle) {
	if rec, h := lookup(c, c.byThread, hdr.TID); rec != nil {
		return rec, h
	}
	return c.createPresent(hdr, runtime)
}

// createPresent allocates and tracks a new record keyed on (qpc, pid, tid).
func (c *Consumer) createPresent(hdr etw.Header, runtime Runtime) (*Record, Handle) {
	c.nextID++
	rec := &Record{
		QPCStart:     hdr.QPC,
		PID:          hdr.PID,
		TID:          hdr.TID,
		ID:           c.nextID,
		Runtime:      runtime,
		SyncInterval: -1,
	}

	h, evicted := c.arena.insert(rec)
	if evicted != nil && !evicted.terminal() {
		// Ring slot displacement: the oldest record loses.
		c.removeLost(evicted, ErrCodeLostEviction)
	}

	c.byThread[hdr.TID] = h
	c.processOrdered(hdr.PID).insert(rec.QPCStart, h)

	slog.Debug("present created",
		"id", rec.ID,
		"pid", rec.PID,
		"tid", rec.TID,
		"qpc", rec.QPCStart,
	)
	return rec, h
}

// processOrdered returns the per-process ordered map, creating it on demand.
func (c *Consumer) processOrdered(pid uint32) *orderedPresents {
	op, ok := c.byProcess[pid]
	if !ok {
		op = newOrderedPresents()
		c.byProcess[pid] = op
	}
	return op
}

// setSubmitSequence indexes rec under a queue-submit sequence, evicting any
// prior live holder as lost.
func (c *Consumer) setSubmitSequence(rec *Record, h Handle, seq uint32) {
	if prior, _ := lookup(c, c.bySubmitSequence, seq); prior != nil && prior != rec {
		c.removeLost(prior, ErrCodeLostReplacement)
	}
	rec.SubmitSequence = seq
	c.bySubmitSequence[seq] = h
}

// setKernelToken indexes rec under a kernel present-history token pointer,
// evicting any prior live holder as lost.
func (c *Consumer) setKernelToken(rec *Record, h Handle, token uint64) {
	if prior, _ := lookup(c, c.byKernelToken, token); prior != nil && prior != rec {
		c.removeLost(prior, ErrCodeLostReplacement)
	}
	rec.KernelToken = token
	c.byKernelToken[token] = h
}

// setCompositionToken indexes rec under the windowing token triple, evicting
// any prior live holder as lost.
func (c *Consumer) setCompositionToken(rec *Record, h Handle, key CompositionToken) {
	if rec.HasCompToken && rec.CompToken != key {
		// A record should see exactly one token triple; a second one means
		// correlation went wrong somewhere upstream.
		c.metrics.invariantBreach()
		if cur, _ := lookup(c, c.byCompositionToken, rec.CompToken); cur == rec {
			delete(c.byCompositionToken, rec.CompToken)
		}
	}
	if prior, _ := lookup(c, c.byCompositionToken, key); prior != nil && prior != rec {
		c.removeLost(prior, ErrCodeLostReplacement)
	}
	rec.CompToken = key
	rec.HasCompToken = true
	c.byCompositionToken[key] = h
}

// setLegacyBlitToken indexes rec under a legacy blit token, evicting any
// prior live holder as lost.
func (c *Consumer) setLegacyBlitToken(rec *Record, h Handle, token uint64) {
	if prior, _ := lookup(c, c.byLegacyBlitToken, token); prior != nil && prior != rec {
		c.removeLost(prior, ErrCodeLostReplacement)
	}
	rec.LegacyBlitToken = token
	c.byLegacyBlitToken[token] = h
}

// untrack removes rec from every index. keepThread preserves the byThread
// entry for records whose runtime present-stop is still expected (deferred
// completion needs the stop to fill in TimeTaken).
func (c *Consumer) untrack(rec *Record, keepThread bool) {
	if !keepThread {
		if cur, _ := lookup(c, c.byThread, rec.TID); cur == rec {
			delete(c.byThread, rec.TID)
		}
	}
	if op, ok := c.byProcess[rec.PID]; ok {
		op.remove(rec.QPCStart)
		if op.len() == 0 {
			delete(c.byProcess, rec.PID)
		}
	}
	if rec.SubmitSequence != 0 {
		if cur, _ := lookup(c, c.bySubmitSequence, rec.SubmitSequence); cur == rec {
			delete(c.bySubmitSequence, rec.SubmitSequence)
		}
	}
	if rec.KernelToken != 0 {
		if cur, _ := lookup(c, c.byKernelToken, rec.KernelToken); cur == rec {
			delete(c.byKernelToken, rec.KernelToken)
		}
	}
	if rec.HasCompToken {
		if cur, _ := lookup(c, c.byCompositionToken, rec.CompToken); cur == rec {
			delete(c.byCompositionToken, rec.CompToken)
		}
	}
	if rec.DxgContext != 0 {
		if cur, _ := lookup(c, c.byBlitContext, rec.DxgContext); cur == rec {
			delete(c.byBlitContext, rec.DxgContext)
		}
	}
	if rec.Hwnd != 0 {
		if cur, _ := lookup(c, c.byWindowLast, rec.Hwnd); cur == rec {
			delete(c.byWindowLast, rec.Hwnd)
		}
	}
	if rec.LegacyBlitToken != 0 {
		if cur, _ := lookup(c, c.byLegacyBlitToken, rec.LegacyBlitToken); cur == rec {
			delete(c.byLegacyBlitToken, rec.LegacyBlitToken)
		}
	}
	if rec.WaitingForCompositor {
		c.removeFromWaiting(rec)
	}
}

// removeFromWaiting drops rec from the waiting-for-compositor queue.
func (c *Consumer) removeFromWaiting(rec *Record) {
	for i, h := range c.waitingForCompositor {
		if c.arena.get(h) == rec {
			c.waitingForCompositor = append(c.waitingForCompositor[:i], c.waitingForCompositor[i+1:]...)
			break
		}
	}
	rec.WaitingForCompositor = false
}

// handleOf returns the arena handle for a record currently stored at its ring
// slot. Only valid for live records.
func (c *Consumer) handleOf(rec *Record) Handle {
	h := Handle{slot: int32(rec.RingIndex), gen: c.arena.slots[rec.RingIndex].gen}
	if c.arena.get(h) != rec {
		return Handle{}
	}
	return h
}

// Stats returns a snapshot of the engine counters.
// Thread-safe: may be called from any goroutine.
func (c *Consumer) Stats() Stats {
	return c.metrics.snapshot()
}

// Collector returns the engine's prometheus collector for registration on an
// external registry.
func (c *Consumer) Collector() prometheus.Collector {
	return c.metrics
}

// HasCompletedAPresent reports whether any present has completed yet. Until
// it returns true, all necessary providers may not have started.
func (c *Consumer) HasCompletedAPresent() bool {
	c.completedMu.Lock()
	defer c.completedMu.Unlock()
	return c.hasCompleted
}

// DequeueCompleted returns all completed presents accumulated since the last
// call. Swap-out semantics: the internal queue is reset.
// Thread-safe: may be called from any goroutine.
func (c *Consumer) DequeueCompleted() []*Record {
	c.completedMu.Lock()
	defer c.completedMu.Unlock()
	out := c.completedOut
	c.completedOut = nil
	return out
}

// DequeueLost returns all lost presents accumulated since the last call.
// Thread-safe: may be called from any goroutine.
func (c *Consumer) DequeueLost() []*Record {
	c.lostMu.Lock()
	defer c.lostMu.Unlock()
	out := c.lostOut
	c.lostOut = nil
	return out
}

// DequeueProcessEvents returns all process events accumulated since the last
// call. Thread-safe: may be called from any goroutine.
func (c *Consumer) DequeueProcessEvents() []ProcessEvent {
	c.processMu.Lock()
	defer c.processMu.Unlock()
	out := c.processEvents
	c.processEvents = nil
	return out
}

// Drain finishes the session: deferred completions are emitted with their
// decided final states (their runtime stops will never come), then every
// remaining live record is marked lost.
func (c *Consumer) Drain() {
	for pid, list := range c.deferred {
		for _, d := range list {
			if rec := c.arena.get(d.h); rec != nil && !rec.terminal() {
				c.emitCompleted(rec)
			}
		}
		delete(c.deferred, pid)
	}
	for _, h := range c.arena.live() {
		if rec := c.arena.get(h); rec != nil && !rec.terminal() {
			c.removeLost(rec, "")
		}
	}
}
