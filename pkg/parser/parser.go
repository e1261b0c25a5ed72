// Package parser normalizes raw session log events.
//
// Parsing never fails: unknown event kinds and malformed fields default to
// empty values so one bad line cannot abort a reconstruction.
package parser

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/mariozechner/coding-agent/sessionview/pkg/store"
)

// Record is the normalized form of one event.
type Record struct {
	Index       int             `json:"index"`
	Kind        store.EventType `json:"kind"`
	Timestamp   time.Time       `json:"timestamp"`
	Text        []string        `json:"textSegments"`
	Reasoning   *string         `json:"reasoning,omitempty"`
	ToolUses    []ToolUse       `json:"toolUses"`
	ToolResults []ToolResult    `json:"toolResults"`
	Model       string          `json:"model,omitempty"`
	Summary     string          `json:"summary,omitempty"`
}

// ToolUse is a tool invocation request from an assistant event.
type ToolUse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Input any    `json:"input"`
}

// ToolResult is the outcome of a tool invocation, carried by a user event.
type ToolResult struct {
	ToolUseID string `json:"toolUseId"`
	Content   string `json:"content"`
	IsError   bool   `json:"isError"`
}

// ParseAll parses events in order, indexing them by position.
func ParseAll(events []store.Event) []Record {
	out := make([]Record, 0, len(events))
	for i, ev := range events {
		out = append(out, Parse(ev, i))
	}
	return out
}

// Parse converts one event into a Record.
func Parse(ev store.Event, index int) Record {
	r := Record{
		Index:       index,
		Kind:        ev.Type,
		Timestamp:   ParseTimestamp(ev.Timestamp),
		Text:        []string{},
		ToolUses:    []ToolUse{},
		ToolResults: []ToolResult{},
	}

	switch ev.Type {
	case store.TypeUser:
		parseUser(&r, ev.Message)
	case store.TypeAssistant:
		parseAssistant(&r, ev.Message)
	case store.TypeSummary:
		r.Summary = ev.Summary
	}
	return r
}

func parseUser(r *Record, msg *store.Message) {
	if msg == nil {
		return
	}
	for _, item := range msg.Content {
		switch item.Type {
		case store.ContentTypeText:
			r.Text = append(r.Text, item.Text)
		case store.ContentTypeToolResult:
			r.ToolResults = append(r.ToolResults, ToolResult{
				ToolUseID: item.ToolUseID,
				Content:   ExtractText(item.Content),
				IsError:   item.IsError,
			})
		}
	}
}

func parseAssistant(r *Record, msg *store.Message) {
	if msg == nil {
		return
	}
	r.Model = msg.Model
	for _, item := range msg.Content {
		switch item.Type {
		case store.ContentTypeText:
			r.Text = append(r.Text, item.Text)
		case store.ContentTypeThinking:
			// Last thinking block wins.
			thinking := item.Thinking
			r.Reasoning = &thinking
		case store.ContentTypeToolUse:
			r.ToolUses = append(r.ToolUses, ToolUse{
				ID:    item.ID,
				Name:  item.Name,
				Input: decodeInput(item.Input),
			})
		}
	}
}

// ExtractText flattens a tool_result payload. A string is returned as is;
// a list of {type, text} items yields the text items joined by newlines.
// Anything else yields "".
func ExtractText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case '[':
		var items []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}
		if err := json.Unmarshal(raw, &items); err != nil {
			return ""
		}
		var texts []string
		for _, it := range items {
			if it.Type == string(store.ContentTypeText) {
				texts = append(texts, it.Text)
			}
		}
		return strings.Join(texts, "\n")
	}
	return ""
}

// ParseTimestamp accepts RFC 3339 with or without fractional seconds.
// Unparseable values yield the zero time.
func ParseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	return time.Time{}
}

func decodeInput(raw json.RawMessage) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil || v == nil {
		return map[string]any{}
	}
	return v
}
