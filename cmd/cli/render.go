package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mariozechner/coding-agent/sessionview/pkg/loader"
	"github.com/mariozechner/coding-agent/sessionview/pkg/tree"
)

const labelWidth = 80

// nodeLabel is the one-line summary of a node used by `tree` and `view`.
func nodeLabel(n *tree.Node) string {
	switch n.Type {
	case tree.TypeUser:
		return "User: " + firstLine(n.Message.Content, labelWidth)
	case tree.TypeAssistant:
		label := "Assistant: " + firstLine(n.Message.Content, labelWidth)
		if n.Message.Thinking != nil {
			label += " [thinking]"
		}
		if n.Message.Decision != nil {
			label += " [decision]"
		}
		return label
	case tree.TypeToolCall:
		switch n.Tool.Status {
		case tree.StatusPending:
			return fmt.Sprintf("Tool %s (pending)", n.Tool.Name)
		default:
			return fmt.Sprintf("Tool %s (%s, %dms)", n.Tool.Name, n.Tool.Status, n.Tool.DurationMs)
		}
	case tree.TypeSubAgent:
		sa := n.SubAgent
		label := fmt.Sprintf("Sub-agent %s [%s %s]", sa.Name, sa.AgentType, sa.AgentID)
		if sa.Task != "" {
			label += ": " + firstLine(sa.Task, labelWidth)
		}
		return label
	}
	return string(n.Type)
}

// firstLine returns the first non-empty line of s cut to n runes.
func firstLine(s string, n int) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r := []rune(line)
		if len(r) > n {
			return string(r[:n]) + "..."
		}
		return line
	}
	return ""
}

// renderText writes an indented outline of the tree followed by stats and
// the load report.
func renderText(w io.Writer, res *loader.Result) {
	if s := res.Session; s != nil {
		fmt.Fprintf(w, "Session %s", s.ID)
		if s.Model != "" {
			fmt.Fprintf(w, " (%s)", s.Model)
		}
		if !s.Timestamp.IsZero() {
			fmt.Fprintf(w, " %s", s.Timestamp.Format(time.RFC3339))
		}
		fmt.Fprintln(w)

		tree.Walk(s.RootMessages, func(n *tree.Node, depth int) bool {
			fmt.Fprintf(w, "%s- %s\n", strings.Repeat("  ", depth), nodeLabel(n))
			return true
		})

		st := tree.ComputeStats(s)
		fmt.Fprintf(w, "\n%d nodes, %d tool calls, %d sub-agents, %d errors, %d pending, depth %d, tool time %dms\n",
			st.TotalNodes, st.ToolCalls, st.SubAgents, st.Errors, st.Pending, st.MaxDepth, st.TotalDurationMs)
	}

	r := res.Report
	fmt.Fprintf(w, "Loaded %d, missing %d, failed %d\n", r.Summary.TotalLoaded, r.Summary.TotalMissing, r.Summary.TotalFailed)
	for _, m := range r.Missing {
		fmt.Fprintf(w, "  missing %s (agent %s)\n", m.ExpectedPath, m.AgentID)
	}
	for _, f := range r.Failed {
		fmt.Fprintf(w, "  failed %s: %s\n", f.Path, f.Error)
	}
}

// nodeMarkdown is the detail view of a node, rendered through glamour.
func nodeMarkdown(n *tree.Node) string {
	var sb strings.Builder
	switch n.Type {
	case tree.TypeUser:
		sb.WriteString("## User\n\n")
		sb.WriteString(n.Message.Content)
	case tree.TypeAssistant:
		sb.WriteString("## Assistant\n\n")
		if n.Message.Thinking != nil {
			fmt.Fprintf(&sb, "> %s\n\n", strings.ReplaceAll(*n.Message.Thinking, "\n", "\n> "))
		}
		sb.WriteString(n.Message.Content)
		if d := n.Message.Decision; d != nil {
			fmt.Fprintf(&sb, "\n\n**%s**\n\n", d.Question)
			for _, opt := range d.Options {
				fmt.Fprintf(&sb, "- %s\n", opt)
			}
		}
	case tree.TypeToolCall:
		t := n.Tool
		fmt.Fprintf(&sb, "## Tool: %s\n\nStatus: **%s**, duration %dms\n\n", t.Name, t.Status, t.DurationMs)
		input, err := json.MarshalIndent(t.Input, "", "  ")
		if err != nil {
			input = []byte(fmt.Sprint(t.Input))
		}
		fmt.Fprintf(&sb, "### Input\n\n```json\n%s\n```\n", input)
		if t.Status != tree.StatusPending {
			fmt.Fprintf(&sb, "\n### Output\n\n```\n%s\n```\n", t.Output)
		}
	case tree.TypeSubAgent:
		sa := n.SubAgent
		fmt.Fprintf(&sb, "## %s\n\nAgent `%s` (%s), %d root messages\n\n", sa.Name, sa.AgentID, sa.AgentType, len(n.Children))
		sb.WriteString(sa.Task)
	}
	return sb.String()
}
