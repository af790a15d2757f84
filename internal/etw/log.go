package etw

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// LogReader streams typed events out of a recorded event log.
//
// The log format is line-delimited JSON, one event per line, in trace-session
// delivery order. Logs may be zstd-compressed (".zst" suffix); compression is
// detected by file name.
//
// Malformed lines are counted and skipped rather than aborting the run - a
// recorded log from a crashed session commonly ends mid-line.
type LogReader struct {
	src     io.ReadCloser
	zr      *zstd.Decoder
	scanner *bufio.Scanner
	line    int
	skipped int
}

// maxLineBytes bounds a single event line. Payloads are small; anything past
// this is a corrupt log.
const maxLineBytes = 1 << 20

// OpenLog opens a recorded event log for reading.
func OpenLog(path string) (*LogReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	return NewLogReader(f, strings.HasSuffix(path, ".zst"))
}

// NewLogReader wraps an already-open stream. The caller passes compressed=true
// when the stream is zstd-framed.
func NewLogReader(src io.ReadCloser, compressed bool) (*LogReader, error) {
	r := &LogReader{src: src}
	var stream io.Reader = src
	if compressed {
		zr, err := zstd.NewReader(src)
		if err != nil {
			src.Close()
			return nil, fmt.Errorf("open zstd stream: %w", err)
		}
		r.zr = zr
		stream = zr
	}
	r.scanner = bufio.NewScanner(stream)
	r.scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	return r, nil
}

// Next returns the next event in the log, or io.EOF when the log is exhausted.
func (r *LogReader) Next() (Event, error) {
	for r.scanner.Scan() {
		r.line++
		raw := strings.TrimSpace(r.scanner.Text())
		if raw == "" {
			continue
		}
		var ev Event
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&ev); err != nil {
			r.skipped++
			continue
		}
		return ev, nil
	}
	if err := r.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			r.skipped++
			return Event{}, fmt.Errorf("event log line %d exceeds %d bytes: %w", r.line+1, maxLineBytes, err)
		}
		return Event{}, fmt.Errorf("read event log: %w", err)
	}
	return Event{}, io.EOF
}

// Line returns the number of lines consumed so far.
func (r *LogReader) Line() int { return r.line }

// Skipped returns the number of malformed lines dropped so far.
func (r *LogReader) Skipped() int { return r.skipped }

// Close releases the underlying stream.
func (r *LogReader) Close() error {
	if r.zr != nil {
		r.zr.Close()
	}
	return r.src.Close()
}
