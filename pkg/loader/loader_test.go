package loader

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/mariozechner/coding-agent/sessionview/pkg/store"
	"github.com/mariozechner/coding-agent/sessionview/pkg/store/jsonl"
	"github.com/mariozechner/coding-agent/sessionview/pkg/tracker"
	"github.com/mariozechner/coding-agent/sessionview/pkg/tree"
)

type apiErr struct{ status int }

func (e *apiErr) Error() string   { return "request failed" }
func (e *apiErr) StatusCode() int { return e.status }

// fakeStore is an in-memory store.Loader keyed by session or agent id.
type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]string // sessionID -> JSONL
	agents   map[string][]store.AgentRef
	subs     map[string]string // agentID -> JSONL
	err      error
}

func decode(t *testing.T, jsonl string) []store.Event {
	t.Helper()
	var out []store.Event
	for _, line := range strings.Split(strings.TrimSpace(jsonl), "\n") {
		var ev store.Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("bad fixture line %q: %v", line, err)
		}
		out = append(out, ev)
	}
	return out
}

type fixtureLoader struct {
	t *testing.T
	*fakeStore
}

func (f fixtureLoader) LoadSession(ctx context.Context, project, sessionID string) (*store.SessionData, error) {
	if f.err != nil {
		return nil, f.err
	}
	raw, ok := f.sessions[sessionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &store.SessionData{Events: decode(f.t, raw), Path: "/root/.claude/projects/p/" + sessionID + ".jsonl"}, nil
}

func (f fixtureLoader) LoadSubAgent(ctx context.Context, project, sessionID, agentID string, agentType store.AgentType) (*store.SessionData, error) {
	raw, ok := f.subs[agentID]
	if !ok {
		return nil, &apiErr{status: 404}
	}
	return &store.SessionData{Events: decode(f.t, raw)}, nil
}

func (f fixtureLoader) DiscoverAgents(ctx context.Context, project, sessionID string) ([]store.AgentRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.agents[sessionID], nil
}

const mainLog = `{"type":"user","timestamp":"2025-01-01T10:00:00Z","message":{"content":"List files"}}
{"type":"assistant","timestamp":"2025-01-01T10:00:01Z","message":{"model":"claude-opus-4","content":[{"type":"tool_use","id":"t1","name":"Bash","input":{"command":"ls"}}]}}
{"type":"user","timestamp":"2025-01-01T10:00:02Z","message":{"content":[{"type":"tool_result","tool_use_id":"t1","content":"a.go"}]}}
{"type":"user","timestamp":"2025-01-01T10:00:03Z","message":{"content":[{"type":"tool_result","tool_use_id":"zzz","content":"orphan"}]}}`

const agentLog = `{"type":"user","timestamp":"2025-01-01T10:00:05Z","sessionId":"s1","message":{"content":"Find the question"}}`

func TestLoad_FullSession(t *testing.T) {
	fs := &fakeStore{
		sessions: map[string]string{"s1": mainLog},
		agents: map[string][]store.AgentRef{
			"s1": {{AgentID: "aaaaaaa", Type: store.AgentFlat}, {AgentID: "bbbbbbb", Type: store.AgentNested}},
		},
		subs: map[string]string{"aaaaaaa": agentLog},
	}
	l := New(fixtureLoader{t, fs}, Options{})

	res, err := l.Load(context.Background(), "p", "s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	s := res.Session
	if s.ID != "s1" || s.Model != "claude-opus-4" {
		t.Errorf("session = %s/%s", s.ID, s.Model)
	}
	if len(s.RootMessages) != 2 {
		t.Fatalf("got %d roots, want 2", len(s.RootMessages))
	}
	tool := s.RootMessages[0].Children[0].Children[0]
	if tool.Tool.Status != tree.StatusSuccess || tool.Tool.Output != "a.go" || tool.Tool.DurationMs != 1000 {
		t.Errorf("tool = %+v", tool.Tool)
	}
	sub := s.RootMessages[1]
	if sub.Type != tree.TypeSubAgent || sub.SubAgent.Name != "Ask Mode" || sub.SubAgent.AgentType != tree.AgentFlat {
		t.Errorf("sub-agent = %+v", sub.SubAgent)
	}

	r := res.Report
	if r.Summary != (tracker.Summary{TotalLoaded: 2, TotalMissing: 1}) {
		t.Errorf("summary = %+v", r.Summary)
	}
	if r.Loaded[0].Kind != tracker.KindMain || r.Loaded[0].Path != "/root/.claude/projects/p/s1.jsonl" {
		t.Errorf("main record = %+v", r.Loaded[0])
	}
	if r.Loaded[0].Metadata["eventCount"] != 4 {
		t.Errorf("eventCount = %v", r.Loaded[0].Metadata["eventCount"])
	}
	if r.Missing[0].ExpectedPath != "~/.claude/projects/p/s1/subagents/agent-bbbbbbb.jsonl" {
		t.Errorf("missing = %+v", r.Missing[0])
	}
}

func TestLoad_ResultWithNumericTimestamp(t *testing.T) {
	root := t.TempDir()
	proj := filepath.Join(root, "projects", "-home-u-app")
	if err := os.MkdirAll(proj, 0755); err != nil {
		t.Fatal(err)
	}
	log := `{"type":"user","timestamp":"2025-01-01T10:00:00Z","message":{"content":"hi"}}
{"type":"assistant","timestamp":"2025-01-01T10:00:01Z","message":{"content":[{"type":"tool_use","id":"t1","name":"Bash","input":{"command":"ls"}}]}}
{"type":"user","timestamp":1735725602000,"message":{"content":[{"type":"tool_result","tool_use_id":"t1","content":"a.go"}]}}
`
	if err := os.WriteFile(filepath.Join(proj, "s1.jsonl"), []byte(log), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := New(jsonl.NewManager(root), Options{}).Load(context.Background(), "-home-u-app", "s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tool := res.Session.RootMessages[0].Children[0].Children[0]
	if tool.Tool.Status != tree.StatusSuccess || tool.Tool.Output != "a.go" {
		t.Errorf("tool = %+v", tool.Tool)
	}
	// The result has no usable time, so no duration is derived.
	if tool.Tool.DurationMs != 0 {
		t.Errorf("duration = %d, want 0", tool.Tool.DurationMs)
	}
}

func TestLoad_SessionFetchFails(t *testing.T) {
	fs := &fakeStore{err: &apiErr{status: 503}}
	res, err := New(fixtureLoader{t, fs}, Options{}).Load(context.Background(), "/home/u/app", "s9")

	if err == nil {
		t.Fatal("expected error")
	}
	var ae *apiErr
	if !errors.As(err, &ae) || ae.status != 503 {
		t.Errorf("error chain lost status: %v", err)
	}
	if res == nil || res.Session != nil {
		t.Fatalf("result = %+v", res)
	}
	f := res.Report.Failed
	if len(f) != 1 || f[0].Path != "~/.claude/projects/-home-u-app/s9.jsonl" || f[0].Details["status"] != 503 {
		t.Errorf("failed = %+v", f)
	}
}

func TestLoad_IndependentLoads(t *testing.T) {
	fs := &fakeStore{
		sessions: map[string]string{"s1": mainLog},
		agents:   map[string][]store.AgentRef{"s1": {{AgentID: "aaaaaaa"}}},
		subs:     map[string]string{"aaaaaaa": agentLog},
	}
	l := New(fixtureLoader{t, fs}, Options{MaxDepth: 3})

	var wg sync.WaitGroup
	results := make([]*Result, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := l.Load(context.Background(), "p", "s1")
			if err != nil {
				t.Errorf("Load: %v", err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	// Each load has its own visited set: every result includes the sub-agent.
	for i, res := range results {
		if res == nil {
			continue
		}
		if len(res.Session.RootMessages) != 2 || res.Report.Summary.TotalLoaded != 2 {
			t.Errorf("load %d: roots=%d loaded=%d", i, len(res.Session.RootMessages), res.Report.Summary.TotalLoaded)
		}
	}
}
