package store

import (
	"fmt"
	"strings"
)

// NormalizeProject maps a project path to its directory name under ~/.claude/projects.
func NormalizeProject(project string) string {
	return strings.NewReplacer("/", "-", ".", "-").Replace(project)
}

// SessionPath is the conventional location of a session log.
// It is advisory and only used in audit records.
func SessionPath(project, sessionID string) string {
	return fmt.Sprintf("~/.claude/projects/%s/%s.jsonl", NormalizeProject(project), sessionID)
}

// AgentPath is the conventional location of a sub-agent log.
func AgentPath(project, sessionID, agentID string, agentType AgentType) string {
	p := NormalizeProject(project)
	if agentType == AgentFlat {
		return fmt.Sprintf("~/.claude/projects/%s/agent-%s.jsonl", p, agentID)
	}
	return fmt.Sprintf("~/.claude/projects/%s/%s/subagents/agent-%s.jsonl", p, sessionID, agentID)
}
