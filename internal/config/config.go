// Package config loads and validates the session configuration.
//
// Configuration is a YAML document validated against an embedded CUE schema
// before use, so a typo'd key or out-of-range value fails at load time with a
// field-level message rather than surfacing as odd engine behavior later.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Session holds the recognized configuration surface for one analysis run.
type Session struct {
	// Log is the path to the recorded event log (.jsonl or .jsonl.zst).
	Log string `yaml:"log" json:"log"`

	// TrackDisplay enables compositor, windowing, and flip-path tracking.
	TrackDisplay bool `yaml:"track_display" json:"track_display"`

	// FilterProcesses enables pid-filter mode for the listed pids.
	FilterProcesses bool     `yaml:"filter_processes" json:"filter_processes"`
	TrackedPIDs     []uint32 `yaml:"tracked_pids,omitempty" json:"tracked_pids,omitempty"`

	// RingCapacity overrides the live-record bound. Zero keeps the default.
	RingCapacity int `yaml:"ring_capacity,omitempty" json:"ring_capacity,omitempty"`

	// CSV is the optional report output path.
	CSV string `yaml:"csv,omitempty" json:"csv,omitempty"`

	// Archive is the optional SQLite archive path.
	Archive string `yaml:"archive,omitempty" json:"archive,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() Session {
	return Session{TrackDisplay: true}
}

// Load reads, validates, and decodes a session configuration file.
func Load(path string) (Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Session{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse validates and decodes configuration bytes.
func Parse(data []byte) (Session, error) {
	s := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return Session{}, fmt.Errorf("parse config: %w", err)
	}
	if err := validate(s); err != nil {
		return Session{}, err
	}
	return s, nil
}

// validate unifies the decoded config with the embedded CUE schema.
func validate(s Session) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("internal schema error: %w", err)
	}

	val := ctx.Encode(s)
	if err := val.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Session")).Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %s", cueerrors.Details(err, nil))
	}
	return nil
}
