package tree

// Stats summarises a session tree.
type Stats struct {
	TotalNodes      int   `json:"totalNodes"`
	ToolCalls       int   `json:"toolCalls"`
	SubAgents       int   `json:"subagents"`
	Errors          int   `json:"errors"`
	Pending         int   `json:"pending"`
	MaxDepth        int   `json:"maxDepth"`
	TotalDurationMs int64 `json:"totalDuration"`
}

// Walk visits every node depth-first in child order.
// Returning false from fn skips the node's children.
func Walk(nodes []*Node, fn func(n *Node, depth int) bool) {
	var walk func([]*Node, int)
	walk = func(ns []*Node, depth int) {
		for _, n := range ns {
			if fn(n, depth) {
				walk(n.Children, depth+1)
			}
		}
	}
	walk(nodes, 0)
}

// ComputeStats counts node kinds, failures and tool time over the whole tree.
func ComputeStats(s *Session) Stats {
	var st Stats
	if s == nil {
		return st
	}
	Walk(s.RootMessages, func(n *Node, depth int) bool {
		st.TotalNodes++
		if depth > st.MaxDepth {
			st.MaxDepth = depth
		}
		switch n.Type {
		case TypeToolCall:
			st.ToolCalls++
			st.TotalDurationMs += n.Tool.DurationMs
			switch n.Tool.Status {
			case StatusError:
				st.Errors++
			case StatusPending:
				st.Pending++
			}
		case TypeSubAgent:
			st.SubAgents++
			if n.SubAgent.Status == StatusError {
				st.Errors++
			}
		}
		return true
	})
	return st
}
