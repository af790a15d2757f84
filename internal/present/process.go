package present

import (
	"github.com/roach88/framewatch/internal/etw"
)

// handleProcessEvent records process create and exit on the process-event
// queue.
func (c *Consumer) handleProcessEvent(ev etw.Event) {
	var isStart bool
	switch ev.ID {
	case etw.ProcessStart:
		isStart = true
	case etw.ProcessStop:
		isStart = false
	default:
		return
	}

	pe := ProcessEvent{
		ImageName: ev.Props.Str("ImageFileName"),
		QPC:       ev.QPC,
		PID:       ev.Props.Uint32("ProcessID"),
		IsStart:   isStart,
	}
	if pe.PID == 0 {
		pe.PID = ev.PID
	}

	c.processMu.Lock()
	c.processEvents = append(c.processEvents, pe)
	c.processMu.Unlock()
}

// AddTrackedProcess adds a pid to the filter set.
// Thread-safe: may be called from an administrative thread while the
// producer is dispatching.
func (c *Consumer) AddTrackedProcess(pid uint32) {
	c.filterMu.Lock()
	defer c.filterMu.Unlock()
	c.filter[pid] = struct{}{}
}

// RemoveTrackedProcess removes a pid from the filter set.
// Thread-safe.
func (c *Consumer) RemoveTrackedProcess(pid uint32) {
	c.filterMu.Lock()
	defer c.filterMu.Unlock()
	delete(c.filter, pid)
}

// trackedForFiltering reports whether presents from pid should be emitted.
// With filtering disabled every pid passes. Filtering applies at completion
// time, not creation, so correlation still works for dependent presents from
// unlisted processes.
func (c *Consumer) trackedForFiltering(pid uint32) bool {
	if !c.opts.FilterProcesses {
		return true
	}
	c.filterMu.RLock()
	defer c.filterMu.RUnlock()
	_, ok := c.filter[pid]
	return ok
}
