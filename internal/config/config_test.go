package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Valid(t *testing.T) {
	s, err := Parse([]byte(`
log: trace.jsonl.zst
track_display: true
filter_processes: true
tracked_pids: [1234, 5678]
ring_capacity: 8192
csv: out.csv
`))
	require.NoError(t, err)
	assert.Equal(t, "trace.jsonl.zst", s.Log)
	assert.True(t, s.TrackDisplay)
	assert.True(t, s.FilterProcesses)
	assert.Equal(t, []uint32{1234, 5678}, s.TrackedPIDs)
	assert.Equal(t, 8192, s.RingCapacity)
	assert.Equal(t, "out.csv", s.CSV)
}

func TestParse_Defaults(t *testing.T) {
	s, err := Parse([]byte(`log: trace.jsonl`))
	require.NoError(t, err)
	assert.True(t, s.TrackDisplay, "display tracking defaults on")
	assert.False(t, s.FilterProcesses)
	assert.Zero(t, s.RingCapacity)
}

func TestParse_RingCapacityOutOfRange(t *testing.T) {
	_, err := Parse([]byte(`
log: trace.jsonl
ring_capacity: 4
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestParse_MalformedYAML(t *testing.T) {
	_, err := Parse([]byte("log: [unclosed"))
	require.Error(t, err)
}

func TestDefault(t *testing.T) {
	s := Default()
	assert.True(t, s.TrackDisplay)
	assert.Empty(t, s.Log)
}
