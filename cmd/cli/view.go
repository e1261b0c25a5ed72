package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/mariozechner/coding-agent/sessionview/pkg/loader"
	"github.com/mariozechner/coding-agent/sessionview/pkg/store"
	"github.com/mariozechner/coding-agent/sessionview/pkg/tree"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)

	senderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("5")).
			Bold(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")).
			Bold(true)

	toolStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	agentStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statsStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).PaddingLeft(1)

	cursorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	selectedItemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	errorStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true).Padding(0, 1)
)

type state int

const (
	stateSelectingSession state = iota
	stateTree
	stateDetail
)

type errMsg struct{ err error }
type sessionsMsg []store.SessionInfo
type treeMsg struct{ res *loader.Result }
type sessionUpdateMsg struct{ ch <-chan time.Time }

// watchFunc reports modifications of a session log until ctx is done.
type watchFunc func(ctx context.Context, sessionID string) (<-chan time.Time, error)

// row is one visible line of the flattened tree. key is the index path of
// the node, stable across reloads of a growing log.
type row struct {
	node  *tree.Node
	depth int
	key   string
}

type model struct {
	ctx     context.Context
	browser store.Browser
	loader  *loader.Loader
	watch   watchFunc
	project string

	state     state
	sessions  []store.SessionInfo
	sessionID string
	result    *loader.Result
	collapsed map[string]bool
	rows      []row

	cursor     int
	listOffset int

	updates   <-chan time.Time
	stopWatch context.CancelFunc
	viewport  viewport.Model
	renderer  *glamour.TermRenderer
	width     int
	height    int
	err       error
}

func initialModel(ctx context.Context, browser store.Browser, l *loader.Loader, watch watchFunc, project, sessionID string) model {
	vp := viewport.New(80, 20)

	r, _ := glamour.NewTermRenderer(
		glamour.WithStandardStyle("light"),
		glamour.WithWordWrap(80),
	)

	m := model{
		ctx:       ctx,
		browser:   browser,
		loader:    l,
		watch:     watch,
		project:   project,
		sessionID: sessionID,
		collapsed: make(map[string]bool),
		viewport:  vp,
		renderer:  r,
	}
	if sessionID != "" {
		m.state = stateTree
	}
	return m
}

func (m model) Init() tea.Cmd {
	if m.sessionID != "" {
		return m.loadTree(m.sessionID)
	}
	return m.listSessions()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	if m.state == stateDetail {
		var vpCmd tea.Cmd
		m.viewport, vpCmd = m.viewport.Update(msg)
		cmds = append(cmds, vpCmd)
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - 4 // Header + Footer
		if m.viewport.Height < 0 {
			m.viewport.Height = 0
		}

		m.renderer, _ = glamour.NewTermRenderer(
			glamour.WithStandardStyle("light"),
			glamour.WithWordWrap(m.width-4),
		)
		m.clampOffset()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.closeWatch()
			return m, tea.Quit

		case tea.KeyEsc:
			switch m.state {
			case stateDetail:
				m.state = stateTree
			case stateTree:
				if m.browser == nil || m.project == "" {
					m.closeWatch()
					return m, tea.Quit
				}
				m.closeWatch()
				m.state = stateSelectingSession
				m.cursor, m.listOffset = 0, 0
				if len(m.sessions) == 0 {
					cmds = append(cmds, m.listSessions())
				}
			default:
				return m, tea.Quit
			}

		case tea.KeyUp:
			m.moveCursor(-1)
		case tea.KeyDown:
			m.moveCursor(1)

		case tea.KeyEnter:
			switch m.state {
			case stateSelectingSession:
				if m.cursor < len(m.sessions) {
					m.closeWatch()
					m.sessionID = m.sessions[m.cursor].SessionID
					m.result = nil
					m.rows = nil
					m.collapsed = make(map[string]bool)
					m.state = stateTree
					m.cursor, m.listOffset = 0, 0
					cmds = append(cmds, m.loadTree(m.sessionID))
				}
			case stateTree:
				if m.cursor < len(m.rows) {
					m.state = stateDetail
					m.viewport.SetContent(m.renderDetail(m.rows[m.cursor].node))
					m.viewport.GotoTop()
				}
			}

		case tea.KeySpace, tea.KeyRight, tea.KeyLeft:
			if m.state == stateTree {
				m.toggle(msg.Type)
			}

		case tea.KeyRunes:
			switch msg.String() {
			case "k":
				m.moveCursor(-1)
			case "j":
				m.moveCursor(1)
			case "q":
				if m.state != stateDetail {
					m.closeWatch()
					return m, tea.Quit
				}
			case "r":
				if m.state == stateTree {
					cmds = append(cmds, m.loadTree(m.sessionID))
				}
			}
		}

	case sessionsMsg:
		m.sessions = msg
		m.err = nil

	case treeMsg:
		slog.Debug("Tree loaded", "sessionID", m.sessionID, "loaded", msg.res.Report.Summary.TotalLoaded)
		m.result = msg.res
		m.err = nil
		m.rebuild()
		if m.updates == nil && m.watch != nil {
			cmds = append(cmds, m.startWatch())
		}

	case sessionUpdateMsg:
		if msg.ch == m.updates {
			slog.Debug("Session log changed, reloading", "sessionID", m.sessionID)
			cmds = append(cmds, m.loadTree(m.sessionID), waitForUpdate(m.updates))
		}

	case errMsg:
		m.err = msg.err
	}

	return m, tea.Batch(cmds...)
}

func (m *model) maxViewable() int {
	maxViewable := m.height - 7
	if maxViewable < 1 {
		maxViewable = 1
	}
	return maxViewable
}

func (m *model) listLen() int {
	if m.state == stateSelectingSession {
		return len(m.sessions)
	}
	return len(m.rows)
}

func (m *model) moveCursor(delta int) {
	if m.state == stateDetail {
		return
	}
	m.cursor += delta
	if n := m.listLen(); m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	m.clampOffset()
}

// clampOffset keeps the cursor inside the visible window.
func (m *model) clampOffset() {
	maxViewable := m.maxViewable()
	if m.cursor < m.listOffset {
		m.listOffset = m.cursor
	}
	if m.cursor >= m.listOffset+maxViewable {
		m.listOffset = m.cursor - maxViewable + 1
	}
	if m.listOffset < 0 {
		m.listOffset = 0
	}
}

// toggle collapses or expands the node under the cursor. Left only
// collapses and Right only expands.
func (m *model) toggle(key tea.KeyType) {
	if m.cursor >= len(m.rows) {
		return
	}
	r := m.rows[m.cursor]
	if len(r.node.Children) == 0 {
		return
	}
	switch key {
	case tea.KeyLeft:
		m.collapsed[r.key] = true
	case tea.KeyRight:
		delete(m.collapsed, r.key)
	default:
		if m.collapsed[r.key] {
			delete(m.collapsed, r.key)
		} else {
			m.collapsed[r.key] = true
		}
	}
	m.rebuild()
}

func (m *model) rebuild() {
	if m.result == nil || m.result.Session == nil {
		m.rows = nil
		return
	}
	m.rows = flatten(m.result.Session.RootMessages, m.collapsed)
	if m.cursor >= len(m.rows) {
		m.cursor = len(m.rows) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	m.clampOffset()
}

// flatten lists the visible nodes depth-first, skipping the children of
// collapsed nodes.
func flatten(nodes []*tree.Node, collapsed map[string]bool) []row {
	var rows []row
	var walk func([]*tree.Node, int, string)
	walk = func(ns []*tree.Node, depth int, prefix string) {
		for i, n := range ns {
			key := prefix + strconv.Itoa(i)
			rows = append(rows, row{node: n, depth: depth, key: key})
			if !collapsed[key] {
				walk(n.Children, depth+1, key+"/")
			}
		}
	}
	walk(nodes, 0, "")
	return rows
}

func (m *model) startWatch() tea.Cmd {
	ctx, cancel := context.WithCancel(m.ctx)
	ch, err := m.watch(ctx, m.sessionID)
	if err != nil {
		cancel()
		return func() tea.Msg { return errMsg{err} }
	}
	m.stopWatch = cancel
	m.updates = ch
	// The first value is the current mtime, already loaded.
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return waitForUpdate(ch)()
	}
}

func (m *model) closeWatch() {
	if m.stopWatch != nil {
		m.stopWatch()
	}
	m.stopWatch = nil
	m.updates = nil
}

func (m model) renderDetail(n *tree.Node) string {
	md := nodeMarkdown(n)
	if m.renderer == nil {
		return md
	}
	out, err := m.renderer.Render(md)
	if err != nil {
		return md
	}
	return out
}

func (m model) listSessions() tea.Cmd {
	browser, project := m.browser, m.project
	return func() tea.Msg {
		if browser == nil || project == "" {
			return errMsg{fmt.Errorf("no project selected")}
		}
		sessions, err := browser.ListSessions(m.ctx, project, 0)
		if err != nil {
			return errMsg{err}
		}
		return sessionsMsg(sessions)
	}
}

func (m model) loadTree(sessionID string) tea.Cmd {
	return func() tea.Msg {
		res, err := m.loader.Load(m.ctx, m.project, sessionID)
		if err != nil {
			return errMsg{err}
		}
		return treeMsg{res}
	}
}

func waitForUpdate(sub <-chan time.Time) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-sub; !ok {
			return nil
		}
		return sessionUpdateMsg{sub}
	}
}

func (m model) View() string {
	var errorView string
	if m.err != nil {
		errorView = errorStyle.Width(m.width).Render(fmt.Sprintf("\nError: %v", m.err))
	}

	switch m.state {
	case stateSelectingSession:
		header := titleStyle.Render("Select Session: " + m.project)

		start, end := m.window(len(m.sessions))
		var optionsView []string
		for i := start; i < end; i++ {
			s := m.sessions[i]
			cursor := " "
			line := fmt.Sprintf("%s (%s) %s", s.SessionID, s.Timestamp.Format(time.RFC822), firstLine(s.FirstPrompt, 60))
			if s.HasSubAgents {
				line += " [agents]"
			}
			if m.cursor == i {
				cursor = ">"
				line = selectedItemStyle.Render(line)
			}
			optionsView = append(optionsView, fmt.Sprintf("%s %s", cursorStyle.Render(cursor), line))
		}

		list := lipgloss.JoinVertical(lipgloss.Left, optionsView...)
		footer := "Press Enter to select, Esc to quit."

		return lipgloss.JoinVertical(lipgloss.Left, header, "", list, "", footer, errorView)

	case stateDetail:
		header := titleStyle.Render("Session " + m.sessionID)
		footer := "Arrows to scroll, Esc to go back."
		return lipgloss.JoinVertical(lipgloss.Left, header, m.viewport.View(), footer, errorView)
	}

	header := titleStyle.Render("Session " + m.sessionID)
	if m.result == nil {
		return lipgloss.JoinVertical(lipgloss.Left, header, "", "Loading...", "", errorView)
	}
	st := tree.ComputeStats(m.result.Session)
	stats := statsStyle.Render(fmt.Sprintf("%d nodes, %d tools, %d agents, %d errors, %d pending",
		st.TotalNodes, st.ToolCalls, st.SubAgents, st.Errors, st.Pending))
	header = lipgloss.JoinHorizontal(lipgloss.Top, header, stats)

	start, end := m.window(len(m.rows))
	var optionsView []string
	for i := start; i < end; i++ {
		r := m.rows[i]
		cursor := " "
		if m.cursor == i {
			cursor = ">"
		}
		optionsView = append(optionsView, fmt.Sprintf("%s %s%s %s",
			cursorStyle.Render(cursor), strings.Repeat("  ", r.depth), m.marker(r), styledLabel(r.node, m.cursor == i)))
	}
	list := lipgloss.JoinVertical(lipgloss.Left, optionsView...)

	footer := "Enter details, Space fold, r reload, Esc back."
	if rep := m.result.Report; rep.HasIssues() {
		footer = failedStyle.Render(fmt.Sprintf("%d missing, %d failed logs. ", rep.Summary.TotalMissing, rep.Summary.TotalFailed)) + footer
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, "", list, "", footer, errorView)
}

func (m model) window(n int) (int, int) {
	start := m.listOffset
	end := start + m.maxViewable()
	if end > n {
		end = n
	}
	if start > end {
		start = end
	}
	return start, end
}

func (m model) marker(r row) string {
	switch {
	case len(r.node.Children) == 0:
		return " "
	case m.collapsed[r.key]:
		return "+"
	default:
		return "-"
	}
}

func styledLabel(n *tree.Node, selected bool) string {
	label := nodeLabel(n)
	if selected {
		return selectedItemStyle.Render(label)
	}
	switch n.Type {
	case tree.TypeUser:
		return userStyle.Render(label)
	case tree.TypeAssistant:
		return senderStyle.Render(label)
	case tree.TypeToolCall:
		switch n.Tool.Status {
		case tree.StatusError:
			return failedStyle.Render(label)
		case tree.StatusPending:
			return pendingStyle.Render(label)
		}
		return toolStyle.Render(label)
	case tree.TypeSubAgent:
		return agentStyle.Render(label)
	}
	return label
}
