package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/mariozechner/coding-agent/sessionview/pkg/store"
)

// Only the head of an agent log is searched for its parent session.
const referenceScanLines = 10

var agentFileRe = regexp.MustCompile(`^agent-([a-f0-9]{7})\.jsonl$`)

// DiscoverAgents lists the sub-agent logs whose events name sessionID:
// flat logs in the project root first, then nested logs under
// <session>/subagents. Each group is in file name order.
func (m *Manager) DiscoverAgents(ctx context.Context, project, sessionID string) ([]store.AgentRef, error) {
	dir, err := m.projectDir(project)
	if err != nil {
		return nil, err
	}
	sessionID = filepath.Base(sessionID)

	agents := []store.AgentRef{}
	groups := []struct {
		dir  string
		kind store.AgentType
	}{
		{dir, store.AgentFlat},
		{filepath.Join(dir, sessionID, "subagents"), store.AgentNested},
	}
	for _, g := range groups {
		if !isDir(g.dir) {
			continue
		}
		matches, err := filepath.Glob(filepath.Join(g.dir, "agent-*.jsonl"))
		if err != nil {
			return nil, fmt.Errorf("failed to list agents: %w", err)
		}
		for _, path := range matches {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			id := AgentIDFromPath(path)
			if id == "" || !m.isSafe(path) {
				continue
			}
			if referencesSession(path, sessionID) {
				agents = append(agents, store.AgentRef{AgentID: id, Type: g.kind, Path: path})
			}
		}
	}
	return agents, nil
}

// AgentIDFromPath extracts the 7 hex digit id from an agent-<id>.jsonl name.
func AgentIDFromPath(path string) string {
	m := agentFileRe.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return ""
	}
	return m[1]
}

// referencesSession reports whether any of the first lines of the log at
// path carries sessionId == sessionID.
func referencesSession(path, sessionID string) bool {
	f, err := os.Open(path)
	if err != nil {
		slog.Warn("Failed to read agent file", "path", path, "error", err)
		return false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for i := 0; i < referenceScanLines && scanner.Scan(); i++ {
		var head struct {
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &head); err != nil {
			continue
		}
		if head.SessionID == sessionID {
			return true
		}
	}
	return false
}
