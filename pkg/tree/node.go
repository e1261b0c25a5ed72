// Package tree defines the reconstructed session tree.
package tree

import (
	"time"
)

// NodeType selects which payload of a Node is set.
type NodeType string

const (
	TypeUser      NodeType = "user"
	TypeAssistant NodeType = "assistant"
	TypeToolCall  NodeType = "tool_call"
	TypeSubAgent  NodeType = "subagent"
)

// Status is the lifecycle state of a tool call or sub-agent.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// AgentType mirrors store.AgentType without importing the wire package.
type AgentType string

const (
	AgentFlat   AgentType = "flat"
	AgentNested AgentType = "nested"
)

// Session is the root of a reconstructed conversation.
type Session struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Model        string    `json:"model"`
	RootMessages []*Node   `json:"rootMessages"`
}

// Node is a "Tagged Union" over the four node kinds.
// Type decides which payload pointer is non-nil; Children is always owned by the node.
type Node struct {
	ID        string    `json:"id"`
	Type      NodeType  `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// Payload pointers - only one will be non-nil
	Message  *MessageData  `json:"message,omitempty"`
	Tool     *ToolCallData `json:"tool,omitempty"`
	SubAgent *SubAgentData `json:"subagent,omitempty"`

	Children []*Node `json:"children"`
}

// MessageData is the payload of user and assistant nodes.
type MessageData struct {
	Content  string    `json:"content"`
	Thinking *string   `json:"thinking,omitempty"`
	Decision *Decision `json:"decision,omitempty"`
}

// Decision is a question the assistant put to the user.
type Decision struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// ToolCallData is the payload of a tool invocation.
// A call left pending is a valid terminal state: its result never arrived.
type ToolCallData struct {
	Name       string  `json:"name"`
	Input      any     `json:"input"`
	Status     Status  `json:"status"`
	Output     string  `json:"output"`
	DurationMs int64   `json:"duration"`
	Error      *string `json:"error,omitempty"`
}

// SubAgentData is the payload of a merged sub-agent session.
type SubAgentData struct {
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Task      string    `json:"task"`
	AgentType AgentType `json:"agentType"`
	AgentID   string    `json:"agentId,omitempty"`
}

// NewUser creates a user node.
func NewUser(id string, ts time.Time, content string) *Node {
	return &Node{
		ID:        id,
		Type:      TypeUser,
		Timestamp: ts,
		Message:   &MessageData{Content: content},
		Children:  []*Node{},
	}
}

// NewAssistant creates an assistant node. thinking and decision may be nil.
func NewAssistant(id string, ts time.Time, content string, thinking *string, decision *Decision) *Node {
	return &Node{
		ID:        id,
		Type:      TypeAssistant,
		Timestamp: ts,
		Message: &MessageData{
			Content:  content,
			Thinking: thinking,
			Decision: decision,
		},
		Children: []*Node{},
	}
}

// NewToolCall creates a pending tool call node.
func NewToolCall(id string, ts time.Time, name string, input any) *Node {
	if input == nil {
		input = map[string]any{}
	}
	return &Node{
		ID:        id,
		Type:      TypeToolCall,
		Timestamp: ts,
		Tool: &ToolCallData{
			Name:   name,
			Input:  input,
			Status: StatusPending,
		},
		Children: []*Node{},
	}
}

// NewSubAgent wraps the root nodes of a sub-agent session.
// The children slice is moved into the node, not copied.
func NewSubAgent(id string, ts time.Time, data SubAgentData, children []*Node) *Node {
	if data.Name == "" {
		data.Name = "Agent"
	}
	if data.Status == "" {
		data.Status = StatusSuccess
	}
	if children == nil {
		children = []*Node{}
	}
	return &Node{
		ID:        id,
		Type:      TypeSubAgent,
		Timestamp: ts,
		SubAgent:  &data,
		Children:  children,
	}
}

// Resolve moves a pending tool call to its terminal state.
// It reports false if the node is not a pending tool call.
func (n *Node) Resolve(output string, isError bool, at time.Time) bool {
	if n.Tool == nil || n.Tool.Status != StatusPending {
		return false
	}
	n.Tool.Output = output
	if isError {
		n.Tool.Status = StatusError
		errText := output
		n.Tool.Error = &errText
	} else {
		n.Tool.Status = StatusSuccess
	}
	n.Tool.DurationMs = durationMs(n.Timestamp, at)
	return true
}

func durationMs(start, end time.Time) int64 {
	if start.IsZero() || end.IsZero() {
		return 0
	}
	d := end.Sub(start).Milliseconds()
	if d < 0 {
		return 0
	}
	return d
}
