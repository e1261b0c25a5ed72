package store

import (
	"bytes"
	"encoding/json"
	"time"
)

// EventType defines the kind of session log event
type EventType string

const (
	TypeUser      EventType = "user"
	TypeAssistant EventType = "assistant"
	TypeSummary   EventType = "summary"
	TypeSystem    EventType = "system"
)

// AgentType is the on-disk layout of a sub-agent log.
type AgentType string

const (
	AgentFlat   AgentType = "flat"   // <project>/agent-<id>.jsonl
	AgentNested AgentType = "nested" // <project>/<session>/subagents/agent-<id>.jsonl
)

// ParseAgentType maps a query value to an AgentType, defaulting to nested.
func ParseAgentType(s string) AgentType {
	if AgentType(s) == AgentFlat {
		return AgentFlat
	}
	return AgentNested
}

// Event is one line of a session log.
// Fields not needed for reconstruction are ignored when decoding, and a
// field of an unexpected JSON type decodes to its zero value.
type Event struct {
	Type        EventType `json:"type"`
	Timestamp   string    `json:"timestamp,omitempty"`
	UUID        string    `json:"uuid,omitempty"`
	SessionID   string    `json:"sessionId,omitempty"`
	AgentID     string    `json:"agentId,omitempty"`
	IsSidechain bool      `json:"isSidechain,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	Message     *Message  `json:"message,omitempty"`
}

// UnmarshalJSON decodes each field on its own. Anything that is not a JSON
// object decodes to an empty event.
func (e *Event) UnmarshalJSON(data []byte) error {
	*e = Event{}
	fields := objectFields(data)
	if fields == nil {
		return nil
	}
	e.Type = EventType(stringField(fields, "type"))
	e.Timestamp = stringField(fields, "timestamp")
	e.UUID = stringField(fields, "uuid")
	e.SessionID = stringField(fields, "sessionId")
	e.AgentID = stringField(fields, "agentId")
	e.IsSidechain = boolField(fields, "isSidechain")
	e.Summary = stringField(fields, "summary")
	if raw, ok := fields["message"]; ok && IsObject(raw) {
		var msg Message
		if err := json.Unmarshal(raw, &msg); err == nil {
			e.Message = &msg
		}
	}
	return nil
}

// Message is the payload of user and assistant events.
type Message struct {
	Role    string   `json:"role,omitempty"`
	Model   string   `json:"model,omitempty"`
	Content Contents `json:"content"`
}

// UnmarshalJSON defaults fields of an unexpected type like Event does.
func (m *Message) UnmarshalJSON(data []byte) error {
	*m = Message{}
	fields := objectFields(data)
	if fields == nil {
		return nil
	}
	m.Role = stringField(fields, "role")
	m.Model = stringField(fields, "model")
	if raw, ok := fields["content"]; ok {
		_ = m.Content.UnmarshalJSON(raw) // never fails
	}
	return nil
}

// IsObject reports whether data starts a JSON object.
func IsObject(data []byte) bool {
	data = bytes.TrimSpace(data)
	return len(data) > 0 && data[0] == '{'
}

func objectFields(data []byte) map[string]json.RawMessage {
	if !IsObject(data) {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}
	return fields
}

func stringField(fields map[string]json.RawMessage, key string) string {
	var s string
	if err := json.Unmarshal(fields[key], &s); err != nil {
		return ""
	}
	return s
}

func boolField(fields map[string]json.RawMessage, key string) bool {
	var b bool
	if err := json.Unmarshal(fields[key], &b); err != nil {
		return false
	}
	return b
}

// ContentType defines the kind of message content.
type ContentType string

const (
	ContentTypeText       ContentType = "text"
	ContentTypeThinking   ContentType = "thinking"
	ContentTypeToolUse    ContentType = "tool_use"
	ContentTypeToolResult ContentType = "tool_result"
)

// Content represents a single component of a message.
// Which fields are populated depends on Type.
type Content struct {
	Type ContentType `json:"type"`

	// text
	Text string `json:"text,omitempty"`
	// thinking
	Thinking string `json:"thinking,omitempty"`
	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
	// tool_result; Content is either a string or a list of {type, text}
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// Contents is a message body. On the wire it is either a plain string,
// which decodes to a single text item, or an array of content items.
type Contents []Content

// UnmarshalJSON accepts a string, an array, or anything else (decoded as empty).
func (c *Contents) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		*c = nil
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*c = nil
			return nil
		}
		*c = Contents{{Type: ContentTypeText, Text: s}}
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			*c = nil
			return nil
		}
		out := make(Contents, 0, len(items))
		for _, raw := range items {
			var item Content
			if err := json.Unmarshal(raw, &item); err != nil {
				continue // malformed item
			}
			out = append(out, item)
		}
		*c = out
	default:
		*c = nil
	}
	return nil
}

// LineError records a log line that could not be decoded.
type LineError struct {
	Line  int    `json:"line"`
	Error string `json:"error"`
}

// SessionData is what a fetch of a session or sub-agent log returns.
type SessionData struct {
	Events []Event     `json:"events"`
	Path   string      `json:"path,omitempty"`
	Errors []LineError `json:"errors,omitempty"`
}

// AgentRef identifies a sub-agent log that references a session.
type AgentRef struct {
	AgentID string    `json:"agentId"`
	Type    AgentType `json:"type"`
	Path    string    `json:"path,omitempty"`
}

// ProjectInfo provides metadata about a project directory.
type ProjectInfo struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	SessionCount int       `json:"sessionCount"`
	LastModified time.Time `json:"lastModified"`
}

// SessionInfo provides metadata about a session file.
type SessionInfo struct {
	SessionID    string    `json:"sessionId"`
	Timestamp    time.Time `json:"timestamp"`
	FirstPrompt  string    `json:"firstPrompt"`
	MessageCount int       `json:"messageCount"`
	HasSubAgents bool      `json:"hasSubAgents"`
	HasErrors    bool      `json:"hasErrors"`
}
