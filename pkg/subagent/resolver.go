// Package subagent discovers the sub-agent sessions referenced by a session,
// reconstructs each one and merges it into the parent tree.
package subagent

import (
	"context"
	"log/slog"

	"github.com/mariozechner/coding-agent/sessionview/pkg/parser"
	"github.com/mariozechner/coding-agent/sessionview/pkg/store"
	"github.com/mariozechner/coding-agent/sessionview/pkg/tracker"
	"github.com/mariozechner/coding-agent/sessionview/pkg/transform"
	"github.com/mariozechner/coding-agent/sessionview/pkg/tree"
)

// DefaultMaxDepth bounds sub-agent nesting.
const DefaultMaxDepth = 10

// SessionContext identifies the session whose sub-agents are being resolved.
type SessionContext struct {
	Project   string
	SessionID string
}

// Resolver merges sub-agent sessions into a tree.
// It is not safe for concurrent use; create one per top-level load.
type Resolver struct {
	loader   store.Loader
	tracker  *tracker.Tracker
	maxDepth int

	visited map[string]bool // "sessionId:agentId" pairs already attempted
	entered map[string]bool // session and agent ids already on this load
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMaxDepth overrides DefaultMaxDepth. Values < 1 are ignored.
func WithMaxDepth(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxDepth = n
		}
	}
}

// New creates a Resolver that fetches through loader and audits into tr.
func New(loader store.Loader, tr *tracker.Tracker, opts ...Option) *Resolver {
	r := &Resolver{
		loader:   loader,
		tracker:  tr,
		maxDepth: DefaultMaxDepth,
		visited:  make(map[string]bool),
		entered:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MaxDepth returns the configured depth bound.
func (r *Resolver) MaxDepth() int { return r.maxDepth }

// Reset forgets every visited session so the resolver can serve a new load.
func (r *Resolver) Reset() {
	r.visited = make(map[string]bool)
	r.entered = make(map[string]bool)
}

// Resolve attaches every sub-agent of sc to s.RootMessages, recursing into their
// own sub-agents, and returns s. Agents are processed one at a time in discovery order.
func (r *Resolver) Resolve(ctx context.Context, s *tree.Session, sc SessionContext, depth int) *tree.Session {
	if depth >= r.maxDepth {
		slog.Warn("Max sub-agent depth reached", "sessionID", sc.SessionID, "depth", depth, "maxDepth", r.maxDepth)
		return s
	}
	r.entered[sc.SessionID] = true

	agents, err := r.loader.DiscoverAgents(ctx, sc.Project, sc.SessionID)
	if err != nil {
		slog.Warn("Agent discovery failed", "sessionID", sc.SessionID, "error", err)
		return s
	}
	if len(agents) == 0 {
		return s
	}
	slog.Debug("Discovered agents", "sessionID", sc.SessionID, "count", len(agents), "depth", depth)

	for _, a := range agents {
		if err := ctx.Err(); err != nil {
			slog.Warn("Sub-agent resolution interrupted", "sessionID", sc.SessionID, "error", err)
			return s
		}

		key := sc.SessionID + ":" + a.AgentID
		if r.visited[key] || r.entered[a.AgentID] {
			continue
		}
		r.visited[key] = true
		r.entered[a.AgentID] = true

		if node := r.load(ctx, sc, a, depth); node != nil {
			s.RootMessages = append(s.RootMessages, node)
		}
	}
	return s
}

// load fetches one agent and returns its subagent node, or nil when the
// agent is missing or failed to load. Both outcomes are recorded.
func (r *Resolver) load(ctx context.Context, sc SessionContext, a store.AgentRef, depth int) *tree.Node {
	agentType := store.ParseAgentType(string(a.Type))
	expected := store.AgentPath(sc.Project, sc.SessionID, a.AgentID, agentType)

	data, err := r.loader.LoadSubAgent(ctx, sc.Project, sc.SessionID, a.AgentID, agentType)
	if err != nil {
		if store.IsNotFound(err) {
			r.tracker.RecordMissing(expected, a.AgentID, "")
			return nil
		}
		slog.Warn("Failed to load sub-agent", "agentID", a.AgentID, "type", agentType, "error", err)
		r.tracker.RecordFailed(expected, err.Error(), map[string]any{
			"agentId":   a.AgentID,
			"sessionId": sc.SessionID,
			"project":   sc.Project,
			"agentType": string(agentType),
			"status":    store.StatusOf(err),
		})
		return nil
	}
	if data == nil || len(data.Events) == 0 {
		r.tracker.RecordMissing(expected, a.AgentID, "")
		return nil
	}

	path := data.Path
	if path == "" {
		path = expected
	}
	r.tracker.RecordLoaded(path, tracker.KindSubAgent, a.AgentID, map[string]any{
		"sessionId":  sc.SessionID,
		"project":    sc.Project,
		"agentType":  string(agentType),
		"eventCount": len(data.Events),
	})

	records := parser.ParseAll(data.Events)
	sub := transform.Transform(records, transform.Meta{
		SessionID: sc.SessionID + ":" + a.AgentID,
		Project:   sc.Project,
	})

	// Nested agents first, so the subtree is complete before it is wrapped.
	r.Resolve(ctx, sub, SessionContext{Project: sc.Project, SessionID: a.AgentID}, depth+1)

	return tree.NewSubAgent("subagent-"+a.AgentID, sub.Timestamp, tree.SubAgentData{
		Name:      ClassifyAgent(records),
		Status:    tree.StatusSuccess,
		Task:      ExtractTask(records),
		AgentType: tree.AgentType(agentType),
		AgentID:   a.AgentID,
	}, sub.RootMessages)
}
