// Package transform assembles normalized records into a session tree.
package transform

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mariozechner/coding-agent/sessionview/pkg/parser"
	"github.com/mariozechner/coding-agent/sessionview/pkg/store"
	"github.com/mariozechner/coding-agent/sessionview/pkg/tree"
)

// DefaultModel is reported when neither the caller nor the log names a model.
const DefaultModel = "claude-sonnet-4"

// Meta describes the session being transformed.
type Meta struct {
	SessionID string
	Project   string
	Model     string
}

// Result is a transformed session plus the tool calls that never got a result.
type Result struct {
	Session   *tree.Session
	Unmatched []*tree.Node
}

// Transform builds the tree for records in log order.
func Transform(records []parser.Record, meta Meta) *tree.Session {
	return TransformWithPending(records, meta).Session
}

// TransformWithPending is Transform that also reports unmatched tool calls.
func TransformWithPending(records []parser.Record, meta Meta) Result {
	b := newBuilder()
	for _, r := range records {
		b.process(r)
	}

	s := &tree.Session{
		ID:           meta.SessionID,
		Model:        meta.Model,
		RootMessages: b.roots,
	}
	if s.ID == "" {
		s.ID = "session-" + uuid.New().String()
	}
	if len(records) > 0 {
		s.Timestamp = records[0].Timestamp
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now().UTC()
	}
	if s.Model == "" {
		s.Model = b.model
	}
	if s.Model == "" {
		s.Model = DefaultModel
	}
	return Result{Session: s, Unmatched: b.unmatched()}
}

// builder holds the transient state of one Transform call.
type builder struct {
	roots       []*tree.Node
	currentUser *tree.Node
	counter     int
	model       string

	// Pending tool calls: arena of nodes plus tool-use id -> slot.
	// A consumed slot is set to nil.
	arena []*tree.Node
	slots map[string]int
}

func newBuilder() *builder {
	return &builder{
		roots: []*tree.Node{},
		slots: make(map[string]int),
	}
}

func (b *builder) nextID(prefix string) string {
	b.counter++
	return fmt.Sprintf("%s-%d", prefix, b.counter)
}

func (b *builder) process(r parser.Record) {
	switch r.Kind {
	case store.TypeUser:
		b.processUser(r)
	case store.TypeAssistant:
		b.processAssistant(r)
	}
}

func (b *builder) processUser(r parser.Record) {
	// Results first, even when the same event also starts a new turn.
	for _, res := range r.ToolResults {
		b.resolve(res, r.Timestamp)
	}

	if len(r.Text) == 0 {
		return
	}
	node := tree.NewUser(b.nextID("msg"), r.Timestamp, strings.Join(r.Text, "\n"))
	b.roots = append(b.roots, node)
	b.currentUser = node
}

func (b *builder) processAssistant(r parser.Record) {
	if b.model == "" && r.Model != "" {
		b.model = r.Model
	}

	var thinking *string
	if r.Reasoning != nil {
		t := *r.Reasoning
		thinking = &t
	}
	node := tree.NewAssistant(b.nextID("msg"), r.Timestamp, strings.Join(r.Text, "\n"), thinking, nil)
	for _, use := range r.ToolUses {
		tool := tree.NewToolCall(b.nextID("tool"), r.Timestamp, use.Name, use.Input)
		node.Children = append(node.Children, tool)
		b.register(use.ID, tool)
	}

	if b.currentUser != nil {
		b.currentUser.Children = append(b.currentUser.Children, node)
	} else {
		b.roots = append(b.roots, node)
	}
}

// register makes n the pending call for toolUseID. A repeated id replaces
// the earlier call, which stays pending.
func (b *builder) register(toolUseID string, n *tree.Node) {
	b.slots[toolUseID] = len(b.arena)
	b.arena = append(b.arena, n)
}

// resolve applies a result to its pending call. Unknown ids are dropped.
func (b *builder) resolve(res parser.ToolResult, at time.Time) {
	slot, ok := b.slots[res.ToolUseID]
	if !ok {
		return
	}
	delete(b.slots, res.ToolUseID)
	n := b.arena[slot]
	b.arena[slot] = nil
	n.Resolve(res.Content, res.IsError, at)
}

func (b *builder) unmatched() []*tree.Node {
	var out []*tree.Node
	for _, n := range b.arena {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}
