package subagent

import (
	"encoding/json"
	"strings"

	"github.com/mariozechner/coding-agent/sessionview/pkg/parser"
	"github.com/mariozechner/coding-agent/sessionview/pkg/store"
)

const (
	defaultAgentName = "Agent Mode"
	defaultTask      = "Sub-agent task"
	maxTaskLen       = 100
)

var modeKeywords = []struct {
	name     string
	keywords []string
}{
	{"Plan Mode", []string{"plan", "approach"}},
	{"Debug Mode", []string{"debug", "error"}},
	{"Ask Mode", []string{"ask", "question"}},
}

// ClassifyAgent labels a sub-agent from keywords in its content.
// Only values are searched: record field names would match "error" everywhere.
func ClassifyAgent(records []parser.Record) string {
	text := strings.ToLower(recordText(records))
	for _, m := range modeKeywords {
		for _, kw := range m.keywords {
			if strings.Contains(text, kw) {
				return m.name
			}
		}
	}
	return defaultAgentName
}

// ExtractTask returns the leading text of the first user turn, truncated.
func ExtractTask(records []parser.Record) string {
	for _, r := range records {
		if r.Kind != store.TypeUser || len(r.Text) == 0 {
			continue
		}
		task := []rune(r.Text[0])
		if len(task) > maxTaskLen {
			task = task[:maxTaskLen]
		}
		if len(task) == 0 {
			return defaultTask
		}
		return string(task)
	}
	return defaultTask
}

func recordText(records []parser.Record) string {
	var sb strings.Builder
	for _, r := range records {
		for _, t := range r.Text {
			sb.WriteString(t)
			sb.WriteByte('\n')
		}
		if r.Reasoning != nil {
			sb.WriteString(*r.Reasoning)
			sb.WriteByte('\n')
		}
		for _, u := range r.ToolUses {
			sb.WriteString(u.Name)
			sb.WriteByte(' ')
			if input, err := json.Marshal(u.Input); err == nil {
				sb.Write(input)
			}
			sb.WriteByte('\n')
		}
		for _, res := range r.ToolResults {
			sb.WriteString(res.Content)
			sb.WriteByte('\n')
		}
		sb.WriteString(r.Summary)
	}
	return sb.String()
}
