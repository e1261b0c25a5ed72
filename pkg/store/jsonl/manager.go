// Package jsonl reads Claude session logs straight from a ~/.claude directory.
package jsonl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mariozechner/coding-agent/sessionview/pkg/store"
)

const (
	// DefaultSessionLimit applies when ListSessions is called with limit <= 0.
	DefaultSessionLimit = 50

	indexFile      = "sessions-index.json"
	maxPromptRunes = 100
)

// Manager implements store.Loader and store.Browser over a Claude config
// directory laid out as <root>/projects/<project>/<session>.jsonl.
// Every path it opens must resolve inside root.
type Manager struct {
	rootDir     string
	projectsDir string
}

var (
	_ store.Loader  = (*Manager)(nil)
	_ store.Browser = (*Manager)(nil)
)

// NewManager creates a Manager rooted at rootDir, usually ~/.claude.
func NewManager(rootDir string) *Manager {
	return &Manager{
		rootDir:     rootDir,
		projectsDir: filepath.Join(rootDir, "projects"),
	}
}

// RootDir returns the directory all reads are confined to.
func (m *Manager) RootDir() string { return m.rootDir }

// ListProjects returns every project directory, most recently modified first.
// A missing projects directory yields an empty list.
func (m *Manager) ListProjects(ctx context.Context) ([]store.ProjectInfo, error) {
	entries, err := os.ReadDir(m.projectsDir)
	if os.IsNotExist(err) {
		return []store.ProjectInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read projects directory: %w", err)
	}

	projects := []store.ProjectInfo{}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(m.projectsDir, e.Name())
		info := store.ProjectInfo{Name: e.Name(), Path: path}
		if st, err := os.Stat(path); err == nil {
			info.LastModified = st.ModTime().UTC()
		}
		if files, err := os.ReadDir(path); err == nil {
			for _, f := range files {
				if !f.IsDir() && strings.HasSuffix(f.Name(), ".jsonl") {
					info.SessionCount++
				}
			}
		}
		projects = append(projects, info)
	}

	sort.Slice(projects, func(i, j int) bool {
		return projects[i].LastModified.After(projects[j].LastModified)
	})
	return projects, nil
}

// ListSessions returns up to limit sessions of project, most recent first.
// sessions-index.json is preferred; without a usable index the project
// directory is listed instead. An unknown project yields an empty list.
func (m *Manager) ListSessions(ctx context.Context, project string, limit int) ([]store.SessionInfo, error) {
	if limit <= 0 {
		limit = DefaultSessionLimit
	}
	dir, err := m.projectDir(project)
	if err != nil {
		if store.IsNotFound(err) {
			return []store.SessionInfo{}, nil
		}
		return nil, err
	}

	sessions, err := m.readIndex(dir, limit)
	if err == nil {
		return sessions, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Ignoring unreadable session index", "project", project, "error", err)
	}
	return m.listSessionFiles(ctx, dir, limit)
}

// index mirrors sessions-index.json.
type index struct {
	Entries []indexEntry `json:"entries"`
}

type indexEntry struct {
	SessionID    string  `json:"sessionId"`
	FileMtime    float64 `json:"fileMtime"`
	Modified     string  `json:"modified"`
	FirstPrompt  string  `json:"firstPrompt"`
	MessageCount int     `json:"messageCount"`
}

func (m *Manager) readIndex(dir string, limit int) ([]store.SessionInfo, error) {
	data, err := os.ReadFile(filepath.Join(dir, indexFile))
	if err != nil {
		return nil, err
	}
	var idx index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", indexFile, err)
	}

	sort.SliceStable(idx.Entries, func(i, j int) bool {
		return idx.Entries[i].FileMtime > idx.Entries[j].FileMtime
	})
	if len(idx.Entries) > limit {
		idx.Entries = idx.Entries[:limit]
	}

	sessions := make([]store.SessionInfo, 0, len(idx.Entries))
	for _, e := range idx.Entries {
		ts, _ := time.Parse(time.RFC3339Nano, e.Modified)
		sessions = append(sessions, store.SessionInfo{
			SessionID:    e.SessionID,
			Timestamp:    ts,
			FirstPrompt:  truncate(e.FirstPrompt, maxPromptRunes),
			MessageCount: e.MessageCount,
			HasSubAgents: isDir(filepath.Join(dir, e.SessionID, "subagents")),
		})
	}
	return sessions, nil
}

func (m *Manager) listSessionFiles(ctx context.Context, dir string, limit int) ([]store.SessionInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read project directory: %w", err)
	}

	sessions := []store.SessionInfo{}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".jsonl") || strings.HasPrefix(name, "agent-") {
			continue
		}
		id := strings.TrimSuffix(name, ".jsonl")
		info := store.SessionInfo{
			SessionID:    id,
			HasSubAgents: isDir(filepath.Join(dir, id, "subagents")),
		}
		if fi, err := e.Info(); err == nil {
			info.Timestamp = fi.ModTime().UTC()
		}
		sessions = append(sessions, info)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Timestamp.After(sessions[j].Timestamp)
	})
	if len(sessions) > limit {
		sessions = sessions[:limit]
	}
	for i := range sessions {
		summarize(&sessions[i], filepath.Join(dir, sessions[i].SessionID+".jsonl"))
	}
	return sessions, nil
}

// summarize fills the fields the directory listing cannot know without
// reading the log. An unreadable log leaves them empty.
func summarize(info *store.SessionInfo, path string) {
	f, err := ReadFile(path)
	if err != nil {
		slog.Debug("Failed to read session for listing", "path", path, "error", err)
		return
	}
	events, errs := f.Events()
	info.MessageCount = len(events)
	info.HasErrors = len(errs) > 0
	for _, ev := range events {
		if ev.Type != store.TypeUser || ev.Message == nil {
			continue
		}
		for _, c := range ev.Message.Content {
			if c.Type == store.ContentTypeText && strings.TrimSpace(c.Text) != "" {
				info.FirstPrompt = truncate(c.Text, maxPromptRunes)
				return
			}
		}
	}
}

// projectDir returns the directory of project. Both directory names
// ("-home-me-app") and raw project paths ("/home/me/app") are accepted.
func (m *Manager) projectDir(project string) (string, error) {
	name := project
	if strings.ContainsRune(name, '/') {
		name = store.NormalizeProject(name)
	}
	name = filepath.Base(name)
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("invalid project %q: %w", project, store.ErrNotFound)
	}

	dir := filepath.Join(m.projectsDir, name)
	if !isDir(dir) {
		return "", fmt.Errorf("project %s: %w", name, store.ErrNotFound)
	}
	if !m.isSafe(dir) {
		return "", fmt.Errorf("project %s outside %s: %w", name, m.rootDir, store.ErrNotFound)
	}
	return dir, nil
}

// isSafe reports whether path, with symlinks resolved, lies inside the root.
func (m *Manager) isSafe(path string) bool {
	root, err := realPath(m.rootDir)
	if err != nil {
		return false
	}
	p, err := realPath(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func realPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}

func isDir(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
