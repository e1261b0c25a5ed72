// Package tracker keeps the audit trail of every log load attempted while
// reconstructing a session.
package tracker

import (
	"sync"
	"time"
)

// Kind is the role of a loaded file.
type Kind string

const (
	KindMain     Kind = "main"
	KindSubAgent Kind = "subagent"
)

// Loaded records a log that was read successfully.
type Loaded struct {
	Path      string         `json:"path"`
	Kind      Kind           `json:"type"`
	AgentID   string         `json:"agentId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Missing records a log that was expected but absent. Not a failure.
type Missing struct {
	ExpectedPath string    `json:"expectedPath"`
	AgentID      string    `json:"agentId"`
	DetectedIn   string    `json:"detectedIn,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Failed records a load that errored.
type Failed struct {
	Path      string         `json:"path"`
	Error     string         `json:"error"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Summary counts the records of each outcome.
type Summary struct {
	TotalLoaded  int `json:"totalLoaded"`
	TotalMissing int `json:"totalMissing"`
	TotalFailed  int `json:"totalFailed"`
}

// Report is a snapshot of a Tracker.
type Report struct {
	Loaded  []Loaded  `json:"loaded"`
	Missing []Missing `json:"missing"`
	Failed  []Failed  `json:"failed"`
	Summary Summary   `json:"summary"`
}

// HasIssues reports whether anything was missing or failed.
func (r Report) HasIssues() bool {
	return len(r.Missing) > 0 || len(r.Failed) > 0
}

// Tracker accumulates load records. One Tracker belongs to one top-level load.
type Tracker struct {
	mu      sync.Mutex
	now     func() time.Time
	loaded  []Loaded
	missing []Missing
	failed  []Failed
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{now: func() time.Time { return time.Now().UTC() }}
}

// Reset drops every record.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loaded = nil
	t.missing = nil
	t.failed = nil
}

// RecordLoaded records a successful load.
func (t *Tracker) RecordLoaded(path string, kind Kind, agentID string, metadata map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loaded = append(t.loaded, Loaded{
		Path:      path,
		Kind:      kind,
		AgentID:   agentID,
		Metadata:  metadata,
		Timestamp: t.now(),
	})
}

// RecordMissing records an expected log that does not exist.
func (t *Tracker) RecordMissing(expectedPath, agentID, detectedIn string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.missing = append(t.missing, Missing{
		ExpectedPath: expectedPath,
		AgentID:      agentID,
		DetectedIn:   detectedIn,
		Timestamp:    t.now(),
	})
}

// RecordFailed records a load error.
func (t *Tracker) RecordFailed(path, errMsg string, details map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed = append(t.failed, Failed{
		Path:      path,
		Error:     errMsg,
		Details:   details,
		Timestamp: t.now(),
	})
}

// Report returns a copy of the current records.
func (t *Tracker) Report() Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := Report{
		Loaded:  append([]Loaded{}, t.loaded...),
		Missing: append([]Missing{}, t.missing...),
		Failed:  append([]Failed{}, t.failed...),
	}
	r.Summary = Summary{
		TotalLoaded:  len(r.Loaded),
		TotalMissing: len(r.Missing),
		TotalFailed:  len(r.Failed),
	}
	return r
}

// HasIssues reports whether anything was missing or failed.
func (t *Tracker) HasIssues() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.missing) > 0 || len(t.failed) > 0
}
