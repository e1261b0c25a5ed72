// Package loader reconstructs a complete session tree, sub-agents included,
// from a store.Loader.
package loader

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mariozechner/coding-agent/sessionview/pkg/parser"
	"github.com/mariozechner/coding-agent/sessionview/pkg/store"
	"github.com/mariozechner/coding-agent/sessionview/pkg/subagent"
	"github.com/mariozechner/coding-agent/sessionview/pkg/tracker"
	"github.com/mariozechner/coding-agent/sessionview/pkg/transform"
	"github.com/mariozechner/coding-agent/sessionview/pkg/tree"
)

// Options configures a Loader.
type Options struct {
	// MaxDepth bounds sub-agent nesting. Zero means subagent.DefaultMaxDepth.
	MaxDepth int
}

// Result is a reconstructed session and the audit of every file it touched.
type Result struct {
	Session *tree.Session  `json:"session"`
	Report  tracker.Report `json:"report"`
}

// Loader runs top-level loads. It holds no per-load state and is safe for
// concurrent use.
type Loader struct {
	store store.Loader
	opts  Options
}

// New creates a Loader reading through st.
func New(st store.Loader, opts Options) *Loader {
	return &Loader{store: st, opts: opts}
}

// Load fetches sessionID, builds its tree and merges every reachable sub-agent.
// When the session itself cannot be fetched the error is returned together
// with a Result whose Report records the failure and whose Session is nil.
func (l *Loader) Load(ctx context.Context, project, sessionID string) (*Result, error) {
	tr := tracker.New()

	data, err := l.store.LoadSession(ctx, project, sessionID)
	if err != nil {
		tr.RecordFailed(store.SessionPath(project, sessionID), err.Error(), map[string]any{
			"project":   project,
			"sessionId": sessionID,
			"status":    store.StatusOf(err),
		})
		return &Result{Report: tr.Report()}, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	path := data.Path
	if path == "" {
		path = store.SessionPath(project, sessionID)
	}
	tr.RecordLoaded(path, tracker.KindMain, "", map[string]any{
		"project":    project,
		"sessionId":  sessionID,
		"eventCount": len(data.Events),
	})
	if len(data.Errors) > 0 {
		slog.Warn("Skipped malformed log lines", "path", path, "count", len(data.Errors))
	}

	records := parser.ParseAll(data.Events)
	res := transform.TransformWithPending(records, transform.Meta{
		SessionID: sessionID,
		Project:   project,
	})
	if len(res.Unmatched) > 0 {
		slog.Debug("Tool calls without result", "sessionID", sessionID, "count", len(res.Unmatched))
	}

	r := subagent.New(l.store, tr, subagent.WithMaxDepth(l.opts.MaxDepth))
	s := r.Resolve(ctx, res.Session, subagent.SessionContext{Project: project, SessionID: sessionID}, 0)

	return &Result{Session: s, Report: tr.Report()}, nil
}
