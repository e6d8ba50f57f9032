package instance

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Recorder appends every message the event loop receives to a JSON-lines
// trace file, in arrival order, before any state mutation the message
// causes becomes observable (spec.md section 8: "For all channel
// messages m delivered into the instance loop, the event recorder
// records m before any state mutation caused by m becomes observable").
//
// One Recorder per instance; the file is named "<protocol>-<instance>.jsonl"
// (spec.md section 6: "The file is named per protocol + instance name").
type Recorder struct {
	mu      sync.Mutex
	file    *os.File
	enabled bool
}

// recordEntry is the on-disk shape of one traced message.
type recordEntry struct {
	Seq       uint64 `json:"seq"`
	Timestamp string `json:"ts"`
	Kind      string `json:"kind"`
	Detail    any    `json:"detail,omitempty"`
}

// NewRecorder opens (creating if needed) the trace file for the given
// protocol and instance name under dir. A nil Recorder (use
// NewDisabledRecorder) is the zero-cost default for production instances
// that don't enable tracing.
func NewRecorder(dir, protocol, instanceName string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("recorder: create trace dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s-%s.jsonl", protocol, instanceName))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("recorder: open trace file %s: %w", path, err)
	}

	return &Recorder{file: f, enabled: true}, nil
}

// NewDisabledRecorder returns a Recorder whose Record is a no-op, for
// instances that run without tracing.
func NewDisabledRecorder() *Recorder {
	return &Recorder{enabled: false}
}

// Record appends msg to the trace file, tagging it with a monotonically
// increasing sequence number and the kind's type name. It is a no-op on
// a disabled recorder.
func (r *Recorder) Record(seq uint64, kind string, msg InstanceMsg) error {
	if r == nil || !r.enabled {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry := recordEntry{
		Seq:       seq,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Kind:      kind,
		Detail:    msg,
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("recorder: marshal entry: %w", err)
	}
	line = append(line, '\n')

	if _, err := r.file.Write(line); err != nil {
		return fmt.Errorf("recorder: write entry: %w", err)
	}

	return nil
}

// Close closes the underlying trace file. A no-op on a disabled recorder.
func (r *Recorder) Close() error {
	if r == nil || !r.enabled {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}
