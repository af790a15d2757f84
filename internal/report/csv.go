// Package report renders completed presents as CSV and summarizes runs.
//
// The CSV column set and names follow the host tooling's established output,
// so existing spreadsheets and scripts consume it unchanged.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/roach88/framewatch/internal/present"
)

// DefaultQPCFrequency is the timestamp resolution assumed when the log does
// not say otherwise: 10 MHz, the fixed QPC rate on current hosts.
const DefaultQPCFrequency = 10_000_000

// requiredHeader is always emitted.
var requiredHeader = []string{
	"Application",
	"ProcessID",
	"SwapChainAddress",
	"Runtime",
	"SyncInterval",
	"PresentFlags",
	"Dropped",
	"TimeInSeconds",
	"msBetweenPresents",
	"msInPresentAPI",
}

// displayHeader is appended when display tracking was enabled.
var displayHeader = []string{
	"AllowsTearing",
	"PresentMode",
	"msBetweenDisplayChange",
	"msUntilRenderComplete",
	"msUntilDisplayed",
}

type chainKey struct {
	pid       uint32
	swapChain uint64
}

type chainState struct {
	lastStartQPC  uint64
	lastScreenQPC uint64
}

// CSVWriter streams completed presents as CSV rows.
//
// Per-swapchain running state produces the frame-to-frame deltas, so rows
// must be written in completion order (which the engine guarantees is
// QPCStart order per process).
type CSVWriter struct {
	w            *csv.Writer
	freq         uint64
	originQPC    uint64
	trackDisplay bool
	wroteHeader  bool
	procNames    map[uint32]string
	chains       map[chainKey]*chainState
}

// CSVOption configures a CSVWriter.
type CSVOption func(*CSVWriter)

// WithQPCFrequency sets the timestamp counts per second.
func WithQPCFrequency(freq uint64) CSVOption {
	return func(w *CSVWriter) {
		if freq > 0 {
			w.freq = freq
		}
	}
}

// WithDisplayColumns includes the display-tracking column group.
func WithDisplayColumns(on bool) CSVOption {
	return func(w *CSVWriter) { w.trackDisplay = on }
}

// NewCSVWriter creates a writer over w.
func NewCSVWriter(w io.Writer, opts ...CSVOption) *CSVWriter {
	cw := &CSVWriter{
		w:            csv.NewWriter(w),
		freq:         DefaultQPCFrequency,
		trackDisplay: true,
		procNames:    make(map[uint32]string),
		chains:       make(map[chainKey]*chainState),
	}
	for _, opt := range opts {
		opt(cw)
	}
	return cw
}

// SetProcessName records the image name reported for a pid, used for the
// Application column.
func (w *CSVWriter) SetProcessName(pid uint32, name string) {
	if name != "" {
		w.procNames[pid] = name
	}
}

// Write emits one completed present.
func (w *CSVWriter) Write(rec *present.Record) error {
	if !w.wroteHeader {
		header := requiredHeader
		if w.trackDisplay {
			header = append(append([]string{}, requiredHeader...), displayHeader...)
		}
		if err := w.w.Write(header); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
		w.wroteHeader = true
	}
	if w.originQPC == 0 {
		w.originQPC = rec.QPCStart
	}

	key := chainKey{pid: rec.PID, swapChain: rec.SwapChain}
	chain, ok := w.chains[key]
	if !ok {
		chain = &chainState{}
		w.chains[key] = chain
	}

	dropped := "0"
	if rec.FinalState != present.ResultPresented {
		dropped = "1"
	}

	var betweenPresents float64
	if chain.lastStartQPC != 0 {
		betweenPresents = w.ms(chain.lastStartQPC, rec.QPCStart)
	}

	row := []string{
		w.appName(rec.PID),
		strconv.FormatUint(uint64(rec.PID), 10),
		fmt.Sprintf("0x%016X", rec.SwapChain),
		rec.Runtime.String(),
		strconv.FormatInt(int64(rec.SyncInterval), 10),
		strconv.FormatUint(uint64(rec.PresentFlags), 10),
		dropped,
		formatFloat(w.ms(w.originQPC, rec.QPCStart) / 1e3),
		formatFloat(betweenPresents),
		formatFloat(w.ms(rec.QPCStart, rec.QPCStart+rec.TimeTaken)),
	}

	if w.trackDisplay {
		tearing := "0"
		if rec.SupportsTearing {
			tearing = "1"
		}
		var betweenDisplay, untilRender, untilDisplay float64
		if rec.ScreenQPC != 0 {
			if chain.lastScreenQPC != 0 {
				betweenDisplay = w.ms(chain.lastScreenQPC, rec.ScreenQPC)
			}
			untilDisplay = w.ms(rec.QPCStart, rec.ScreenQPC)
			chain.lastScreenQPC = rec.ScreenQPC
		}
		if rec.ReadyQPC != 0 {
			untilRender = w.ms(rec.QPCStart, rec.ReadyQPC)
		}
		row = append(row,
			tearing,
			rec.Mode.String(),
			formatFloat(betweenDisplay),
			formatFloat(untilRender),
			formatFloat(untilDisplay),
		)
	}

	chain.lastStartQPC = rec.QPCStart

	if err := w.w.Write(row); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	return nil
}

// Flush writes any buffered rows.
func (w *CSVWriter) Flush() error {
	w.w.Flush()
	return w.w.Error()
}

// ms converts a QPC interval to milliseconds.
func (w *CSVWriter) ms(from, to uint64) float64 {
	if to <= from {
		return 0
	}
	return float64(to-from) * 1e3 / float64(w.freq)
}

func (w *CSVWriter) appName(pid uint32) string {
	if name, ok := w.procNames[pid]; ok {
		return name
	}
	return "<unknown>"
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
