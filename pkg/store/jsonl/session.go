package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mariozechner/coding-agent/sessionview/pkg/store"
)

// Log lines embed whole file contents and tool outputs.
const maxLineSize = 64 << 20

// File is a decoded log file. Lines holds every line that is valid JSON,
// in file order. Lines that are not are reported in Errors.
type File struct {
	Path   string
	Lines  []json.RawMessage
	Errors []store.LineError

	nums []int // line number of each entry in Lines
}

// SessionFile returns the validated path of a session log.
func (m *Manager) SessionFile(project, sessionID string) (string, error) {
	dir, err := m.projectDir(project)
	if err != nil {
		return "", err
	}
	return m.existing(filepath.Join(dir, filepath.Base(sessionID)+".jsonl"))
}

// AgentFile returns the validated path of a sub-agent log in the given layout.
func (m *Manager) AgentFile(project, sessionID, agentID string, agentType store.AgentType) (string, error) {
	dir, err := m.projectDir(project)
	if err != nil {
		return "", err
	}
	name := "agent-" + filepath.Base(agentID) + ".jsonl"
	if agentType == store.AgentFlat {
		return m.existing(filepath.Join(dir, name))
	}
	if sessionID == "" {
		return "", fmt.Errorf("nested agent %s without session: %w", agentID, store.ErrNotFound)
	}
	return m.existing(filepath.Join(dir, filepath.Base(sessionID), "subagents", name))
}

func (m *Manager) existing(path string) (string, error) {
	st, err := os.Stat(path)
	if err != nil || st.IsDir() {
		return "", fmt.Errorf("%s: %w", filepath.Base(path), store.ErrNotFound)
	}
	if !m.isSafe(path) {
		return "", fmt.Errorf("%s outside %s: %w", filepath.Base(path), m.rootDir, store.ErrNotFound)
	}
	return path, nil
}

// ReadFile reads a JSONL log. Blank lines are skipped; lines are numbered from 1.
func ReadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	out := &File{Path: abs, Lines: []json.RawMessage{}, Errors: []store.LineError{}}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var raw json.RawMessage
		if err := json.Unmarshal(line, &raw); err != nil {
			out.Errors = append(out.Errors, store.LineError{Line: lineNum, Error: err.Error()})
			continue
		}
		out.Lines = append(out.Lines, raw)
		out.nums = append(out.nums, lineNum)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return out, nil
}

// Events decodes the lines into events. Lines that are valid JSON but not
// an object are reported as line errors; odd field types are defaulted.
func (f *File) Events() ([]store.Event, []store.LineError) {
	events := make([]store.Event, 0, len(f.Lines))
	errs := append([]store.LineError{}, f.Errors...)
	for i, raw := range f.Lines {
		if !store.IsObject(raw) {
			errs = append(errs, store.LineError{Line: f.nums[i], Error: "not an event object"})
			continue
		}
		var ev store.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			errs = append(errs, store.LineError{Line: f.nums[i], Error: err.Error()})
			continue
		}
		events = append(events, ev)
	}
	return events, errs
}

// LoadSession reads the log of a top-level session.
func (m *Manager) LoadSession(ctx context.Context, project, sessionID string) (*store.SessionData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := m.SessionFile(project, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	return load(path)
}

// LoadSubAgent reads the log of a sub-agent in the given layout.
func (m *Manager) LoadSubAgent(ctx context.Context, project, sessionID, agentID string, agentType store.AgentType) (*store.SessionData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := m.AgentFile(project, sessionID, agentID, agentType)
	if err != nil {
		return nil, fmt.Errorf("agent %s (type=%s): %w", agentID, agentType, err)
	}
	return load(path)
}

func load(path string) (*store.SessionData, error) {
	f, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	events, errs := f.Events()
	return &store.SessionData{Events: events, Path: f.Path, Errors: errs}, nil
}
