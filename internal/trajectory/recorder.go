// Package trajectory keeps the append-only action log submitted as evidence at
// the end of an evaluation cycle.
package trajectory

import (
	"sync"
	"time"

	"github.com/xkilldash9x/wobdriver/api/schemas"
)

// Clock returns the current wall-clock time.
type Clock func() time.Time

// Recorder is an append-only, time-ordered log. Entries are deep-copied on the
// way in and on the way out, so neither the recording caller nor a snapshot
// holder can reach the live log.
type Recorder struct {
	mu      sync.Mutex
	entries []schemas.TrajectoryEntry
	clock   Clock
	last    int64
}

// NewRecorder creates an empty recorder. A nil clock uses time.Now.
func NewRecorder(clock Clock) *Recorder {
	if clock == nil {
		clock = time.Now
	}
	return &Recorder{clock: clock}
}

// Record appends an entry stamped with the current time in milliseconds.
// Timestamps never go backwards, even if the wall clock does.
func (r *Recorder) Record(kind schemas.ActionType, data map[string]any) schemas.TrajectoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := r.clock().UnixMilli()
	if ts < r.last {
		ts = r.last
	}
	r.last = ts

	entry := schemas.TrajectoryEntry{TimestampMs: ts, Type: kind, Data: cloneMap(data)}
	r.entries = append(r.entries, entry)
	return cloneEntry(entry)
}

// Snapshot returns a deep copy of the log in insertion order.
func (r *Recorder) Snapshot() []schemas.TrajectoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]schemas.TrajectoryEntry, len(r.entries))
	for i, e := range r.entries {
		out[i] = cloneEntry(e)
	}
	return out
}

// Len returns the number of recorded entries.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Clear drops every entry.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

func cloneEntry(e schemas.TrajectoryEntry) schemas.TrajectoryEntry {
	e.Data = cloneMap(e.Data)
	return e
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, s := range t {
			out[k] = s
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
