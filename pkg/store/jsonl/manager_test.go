package jsonl_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mariozechner/coding-agent/sessionview/pkg/store"
	"github.com/mariozechner/coding-agent/sessionview/pkg/store/jsonl"
)

// setupManager creates a claude dir with one project and returns the
// manager and the project directory.
func setupManager(t *testing.T) (*jsonl.Manager, string) {
	t.Helper()
	root := t.TempDir()
	proj := filepath.Join(root, "projects", "-home-me-app")
	if err := os.MkdirAll(proj, 0755); err != nil {
		t.Fatal(err)
	}
	return jsonl.NewManager(root), proj
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadSession_CollectsLineErrors(t *testing.T) {
	m, proj := setupManager(t)
	writeFile(t, filepath.Join(proj, "s1.jsonl"), `{"type":"user","message":{"content":"hi"}}

{not json
{"type":"assistant","message":{"content":[{"type":"text","text":"hello"}]}}
42
`)

	data, err := m.LoadSession(context.Background(), "-home-me-app", "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(data.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(data.Events))
	}
	if data.Events[1].Message.Content[0].Text != "hello" {
		t.Errorf("second event = %+v", data.Events[1])
	}
	if len(data.Errors) != 2 || data.Errors[0].Line != 3 || data.Errors[1].Line != 5 {
		t.Errorf("errors = %+v", data.Errors)
	}
	if !filepath.IsAbs(data.Path) || filepath.Base(data.Path) != "s1.jsonl" {
		t.Errorf("path = %s", data.Path)
	}
}

func TestLoadSession_DefaultsOddFieldTypes(t *testing.T) {
	m, proj := setupManager(t)
	writeFile(t, filepath.Join(proj, "s1.jsonl"), `{"type":"user","timestamp":1735689602000,"message":{"content":[{"type":"tool_result","tool_use_id":"t1","content":"ok"}]}}
{"type":"progress","timestamp":"2025-01-01T10:00:00Z","message":"tick"}
{"type":"assistant","isSidechain":"yes","message":{"role":7,"content":"hello"}}
`)

	data, err := m.LoadSession(context.Background(), "-home-me-app", "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(data.Events) != 3 || len(data.Errors) != 0 {
		t.Fatalf("events = %d, errors = %+v", len(data.Events), data.Errors)
	}
	if ev := data.Events[0]; ev.Timestamp != "" || ev.Message == nil || ev.Message.Content[0].ToolUseID != "t1" {
		t.Errorf("first event = %+v", ev)
	}
	if ev := data.Events[1]; ev.Type != "progress" || ev.Message != nil {
		t.Errorf("second event = %+v", ev)
	}
	if ev := data.Events[2]; ev.IsSidechain || ev.Message.Role != "" || ev.Message.Content[0].Text != "hello" {
		t.Errorf("third event = %+v", ev)
	}
}

func TestLoadSession_ProjectPathIsNormalized(t *testing.T) {
	m, proj := setupManager(t)
	writeFile(t, filepath.Join(proj, "s1.jsonl"), `{"type":"user","message":{"content":"hi"}}`)

	if _, err := m.LoadSession(context.Background(), "/home/me/app", "s1"); err != nil {
		t.Fatalf("raw project path: %v", err)
	}
}

func TestLoadSession_NotFound(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()

	for _, tc := range []struct{ project, session string }{
		{"-home-me-app", "nope"},
		{"missing-project", "s1"},
		{"..", "s1"},
		{"-home-me-app", "../../../etc/passwd"},
	} {
		_, err := m.LoadSession(ctx, tc.project, tc.session)
		if !store.IsNotFound(err) {
			t.Errorf("LoadSession(%q, %q) = %v, want not found", tc.project, tc.session, err)
		}
	}
}

func TestLoadSession_SymlinkOutsideRootRejected(t *testing.T) {
	m, proj := setupManager(t)
	outside := filepath.Join(t.TempDir(), "secret.jsonl")
	writeFile(t, outside, `{"type":"user","message":{"content":"secret"}}`)
	if err := os.Symlink(outside, filepath.Join(proj, "leak.jsonl")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	_, err := m.LoadSession(context.Background(), "-home-me-app", "leak")
	if !store.IsNotFound(err) {
		t.Errorf("expected not found for escaping symlink, got %v", err)
	}
}

func TestLoadSubAgent_Layouts(t *testing.T) {
	m, proj := setupManager(t)
	ctx := context.Background()
	writeFile(t, filepath.Join(proj, "agent-aaaaaaa.jsonl"), `{"type":"user","sessionId":"s1","message":{"content":"flat"}}`)
	writeFile(t, filepath.Join(proj, "s1", "subagents", "agent-bbbbbbb.jsonl"), `{"type":"user","sessionId":"s1","message":{"content":"nested"}}`)

	flat, err := m.LoadSubAgent(ctx, "-home-me-app", "s1", "aaaaaaa", store.AgentFlat)
	if err != nil {
		t.Fatal(err)
	}
	if flat.Events[0].Message.Content[0].Text != "flat" {
		t.Errorf("flat = %+v", flat.Events)
	}

	nested, err := m.LoadSubAgent(ctx, "-home-me-app", "s1", "bbbbbbb", store.AgentNested)
	if err != nil {
		t.Fatal(err)
	}
	if nested.Events[0].Message.Content[0].Text != "nested" {
		t.Errorf("nested = %+v", nested.Events)
	}

	// Wrong layout is a miss, not a failure.
	if _, err := m.LoadSubAgent(ctx, "-home-me-app", "s1", "aaaaaaa", store.AgentNested); !store.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestDiscoverAgents(t *testing.T) {
	m, proj := setupManager(t)
	ctx := context.Background()

	writeFile(t, filepath.Join(proj, "agent-0000001.jsonl"), `{"type":"summary"}
{"type":"user","sessionId":"s1","message":{"content":"a"}}`)
	writeFile(t, filepath.Join(proj, "agent-0000002.jsonl"), `{"type":"user","sessionId":"other"}`)
	writeFile(t, filepath.Join(proj, "agent-XYZ.jsonl"), `{"sessionId":"s1"}`)
	writeFile(t, filepath.Join(proj, "s1", "subagents", "agent-000000a.jsonl"), `{"sessionId":"s1"}`)
	writeFile(t, filepath.Join(proj, "s1", "subagents", "agent-000000b.jsonl"), `{"sessionId":"elsewhere"}`)

	// A reference past the scanned head is not found.
	late := ""
	for i := 0; i < 10; i++ {
		late += "{\"type\":\"system\"}\n"
	}
	writeFile(t, filepath.Join(proj, "agent-0000003.jsonl"), late+`{"sessionId":"s1"}`)

	agents, err := m.DiscoverAgents(ctx, "-home-me-app", "s1")
	if err != nil {
		t.Fatal(err)
	}
	want := []store.AgentRef{
		{AgentID: "0000001", Type: store.AgentFlat},
		{AgentID: "000000a", Type: store.AgentNested},
	}
	if len(agents) != len(want) {
		t.Fatalf("agents = %+v", agents)
	}
	for i := range want {
		if agents[i].AgentID != want[i].AgentID || agents[i].Type != want[i].Type || agents[i].Path == "" {
			t.Errorf("agents[%d] = %+v, want %+v", i, agents[i], want[i])
		}
	}

	if _, err := m.DiscoverAgents(ctx, "nope", "s1"); !store.IsNotFound(err) {
		t.Errorf("unknown project: %v", err)
	}
}

func TestListProjects(t *testing.T) {
	m, proj := setupManager(t)
	ctx := context.Background()
	writeFile(t, filepath.Join(proj, "a.jsonl"), "{}")
	writeFile(t, filepath.Join(proj, "b.jsonl"), "{}")
	writeFile(t, filepath.Join(proj, "notes.txt"), "")

	older := filepath.Join(m.RootDir(), "projects", "-old")
	if err := os.MkdirAll(older, 0755); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(older, past, past); err != nil {
		t.Fatal(err)
	}

	projects, err := m.ListProjects(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(projects) != 2 || projects[0].Name != "-home-me-app" || projects[1].Name != "-old" {
		t.Fatalf("projects = %+v", projects)
	}
	if projects[0].SessionCount != 2 {
		t.Errorf("session count = %d", projects[0].SessionCount)
	}

	empty, err := jsonl.NewManager(t.TempDir()).ListProjects(ctx)
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("missing projects dir = %v, %v", empty, err)
	}
}

func TestListSessions_FromIndex(t *testing.T) {
	m, proj := setupManager(t)
	long := ""
	for i := 0; i < 120; i++ {
		long += "x"
	}
	writeFile(t, filepath.Join(proj, "sessions-index.json"), `{"entries":[
		{"sessionId":"old","fileMtime":100,"modified":"2025-01-01T00:00:00Z","firstPrompt":"first","messageCount":3},
		{"sessionId":"new","fileMtime":300,"modified":"2025-01-03T00:00:00Z","firstPrompt":"`+long+`","messageCount":9},
		{"sessionId":"mid","fileMtime":200,"modified":"bad","messageCount":1}
	]}`)
	if err := os.MkdirAll(filepath.Join(proj, "new", "subagents"), 0755); err != nil {
		t.Fatal(err)
	}

	sessions, err := m.ListSessions(context.Background(), "-home-me-app", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 || sessions[0].SessionID != "new" || sessions[1].SessionID != "mid" {
		t.Fatalf("sessions = %+v", sessions)
	}
	if len(sessions[0].FirstPrompt) != 100 || sessions[0].MessageCount != 9 || !sessions[0].HasSubAgents {
		t.Errorf("sessions[0] = %+v", sessions[0])
	}
	if !sessions[1].Timestamp.IsZero() {
		t.Errorf("unparseable modified should give zero time, got %v", sessions[1].Timestamp)
	}
}

func TestListSessions_DirectoryFallback(t *testing.T) {
	m, proj := setupManager(t)
	writeFile(t, filepath.Join(proj, "sessions-index.json"), `{broken`)
	writeFile(t, filepath.Join(proj, "s-old.jsonl"), "{}")
	writeFile(t, filepath.Join(proj, "s-new.jsonl"), `{"type":"user","message":{"content":"  "}}
{"type":"user","message":{"content":"Refactor the parser"}}
{oops
`)
	writeFile(t, filepath.Join(proj, "agent-aaaaaaa.jsonl"), "{}")

	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(filepath.Join(proj, "s-old.jsonl"), past, past); err != nil {
		t.Fatal(err)
	}

	sessions, err := m.ListSessions(context.Background(), "-home-me-app", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 || sessions[0].SessionID != "s-new" || sessions[1].SessionID != "s-old" {
		t.Fatalf("sessions = %+v", sessions)
	}
	if got := sessions[0]; got.FirstPrompt != "Refactor the parser" || got.MessageCount != 2 || !got.HasErrors {
		t.Errorf("s-new = %+v", got)
	}
	if got := sessions[1]; got.MessageCount != 1 || got.HasErrors {
		t.Errorf("s-old = %+v", got)
	}

	none, err := m.ListSessions(context.Background(), "unknown", 10)
	if err != nil || len(none) != 0 {
		t.Errorf("unknown project = %v, %v", none, err)
	}
}

func TestWatch(t *testing.T) {
	_, proj := setupManager(t)
	path := filepath.Join(proj, "s1.jsonl")
	writeFile(t, path, "{}\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := jsonl.Watch(ctx, path, 10*time.Millisecond)

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no initial notification")
	}

	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}
	select {
	case mt := <-ch:
		if mt.Before(time.Now()) {
			t.Errorf("got stale mtime %v", mt)
		}
	case <-time.After(time.Second):
		t.Fatal("no change notification")
	}

	cancel()
	for range ch {
	}
}
