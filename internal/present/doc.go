// Package present implements the present-correlation engine.
//
// The engine ingests an unordered, interleaved, and occasionally lossy stream
// of typed events from the graphics kernel, the presentation runtimes, the
// desktop compositor, and the windowing subsystem, and reconstructs one
// record per application present: who issued it, which presentation path it
// took, when it entered each stage, and whether it was displayed or
// discarded.
//
// ARCHITECTURE:
//
// Single-Writer Dispatch:
// One producer thread dispatches every event; all correlation state is
// touched only by that thread and needs no locking. Consumers interact
// through three lock-guarded hand-off queues (completed, lost, process
// events) with swap-out-and-return dequeue semantics.
//
// Correlation Flow:
//  1. Dispatch() routes by provider id, then event id
//  2. The handler finds the record by whichever key the event carries
//     (thread, submit sequence, kernel token, composition token triple,
//     legacy blit token, window handle) and mutates it
//  3. As new keys are learned the record is re-indexed; a key collision
//     evicts the prior holder as lost
//  4. When a final state is reachable the completion engine finishes the
//     record, finishing every older in-flight present from the same process
//     first and then the record's dependents
//
// Records live in a fixed-capacity arena addressed by generation-checked
// handles. The arena ring is the hard memory bound: inserting into an
// occupied slot marks the prior occupant lost. This keeps state bounded no
// matter how many events the session drops.
//
// CRITICAL PATTERNS:
//
// Per-process emission order: completed records for a process are emitted in
// strictly ascending QPCStart order. Deferred completions (final state known
// but the runtime present-stop still expected) hold their place in line;
// later completions queue behind them.
//
// No correlation error is fatal. Orphan events are dropped, contradictory
// transitions mark the record Error, and the engine keeps consuming.
package present
