// Package tui renders an agent's board in the terminal with bubbletea.
package tui

import (
	"fmt"
	"strings"

	"kanbansync/internal/agent"
	"kanbansync/internal/model"
	"kanbansync/internal/notify"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Padding(0, 1)

	columnStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1).
			Width(28)

	columnTitleStyle = lipgloss.NewStyle().Bold(true)

	bannerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Background(lipgloss.Color("160")).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	stateColors = map[agent.State]lipgloss.Color{
		agent.StateConnected:    lipgloss.Color("42"),
		agent.StateConnecting:   lipgloss.Color("214"),
		agent.StateReconnecting: lipgloss.Color("214"),
		agent.StateOffline:      lipgloss.Color("160"),
		agent.StateDisconnected: lipgloss.Color("241"),
	}
)

// Controller is what the key bindings act on.
type Controller interface {
	Retry()
	SyncNow() error
	CreateTask(d agent.TaskDraft) (model.Task, error)
	MoveTask(id, status string, parentID *string) error
}

// ViewMsg carries a fresh agent view into the program.
type ViewMsg agent.View

type noticeMsg string

type Model struct {
	ctrl   Controller
	view   agent.View
	notice string
	width  int

	// cursor indexes the tasks in on-screen order.
	cursor int
	// draft holds the title being typed after n; nil outside input mode.
	draft *string
}

func New(ctrl Controller, initial agent.View) *Model {
	return &Model{ctrl: ctrl, view: initial}
}

func (m *Model) Init() tea.Cmd { return nil }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.draft != nil {
			return m, m.editDraft(msg)
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			m.notice = "🔁 Reconnecting..."
			return m, m.retry
		case "s":
			return m, m.syncNow
		case "n":
			title := ""
			m.draft = &title
		case "j", "down":
			m.moveCursor(1)
		case "k", "up":
			m.moveCursor(-1)
		case "m":
			return m, m.moveSelected()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case ViewMsg:
		m.view = agent.View(msg)
		m.moveCursor(0)

	case noticeMsg:
		m.notice = string(msg)
	}
	return m, nil
}

// retry dials on the command goroutine so the UI keeps drawing.
func (m *Model) retry() tea.Msg {
	m.ctrl.Retry()
	return noticeMsg("")
}

func (m *Model) syncNow() tea.Msg {
	if err := m.ctrl.SyncNow(); err != nil {
		return noticeMsg("❌ Sync failed: " + err.Error())
	}
	return noticeMsg("🔄 Sync started")
}

func (m *Model) editDraft(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEsc:
		m.draft = nil
	case tea.KeyEnter:
		title := strings.TrimSpace(*m.draft)
		m.draft = nil
		if title != "" {
			return m.createTask(title)
		}
	case tea.KeyBackspace:
		if r := []rune(*m.draft); len(r) > 0 {
			*m.draft = string(r[:len(r)-1])
		}
	case tea.KeySpace:
		*m.draft += " "
	case tea.KeyRunes:
		*m.draft += string(msg.Runes)
	case tea.KeyCtrlC:
		return tea.Quit
	}
	return nil
}

// createTask adds a medium priority task to the first column.
func (m *Model) createTask(title string) tea.Cmd {
	cols := m.view.Board.SortedColumns()
	if len(cols) == 0 {
		m.notice = "❌ No columns to add a task to"
		return nil
	}
	status := cols[0].Status
	return func() tea.Msg {
		if _, err := m.ctrl.CreateTask(agent.TaskDraft{Title: title, Status: status, Priority: model.PriorityMedium}); err != nil {
			return noticeMsg("❌ Create failed: " + err.Error())
		}
		return noticeMsg("➕ " + title)
	}
}

// moveSelected sends the selected task to the next column as a root task.
func (m *Model) moveSelected() tea.Cmd {
	tasks := m.ordered()
	if len(tasks) == 0 {
		return nil
	}
	task := tasks[m.cursor]
	cols := m.view.Board.SortedColumns()
	next := ""
	for i, c := range cols {
		if c.Status == task.Status && i+1 < len(cols) {
			next = cols[i+1].Status
		}
	}
	if next == "" {
		m.notice = "Already in the last column"
		return nil
	}
	return func() tea.Msg {
		root := ""
		if err := m.ctrl.MoveTask(task.ID, next, &root); err != nil {
			return noticeMsg("❌ Move failed: " + err.Error())
		}
		return noticeMsg("➡️ " + task.Title)
	}
}

func (m *Model) moveCursor(delta int) {
	n := len(m.ordered())
	m.cursor += delta
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// ordered lists tasks the way View draws them: column by column, each
// column's tree depth first.
func (m *Model) ordered() []model.Task {
	board := m.view.Board
	var out []model.Task
	var walk func(n model.TaskNode)
	walk = func(n model.TaskNode) {
		out = append(out, n.Task)
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, c := range board.SortedColumns() {
		for _, n := range board.Tree(c.Status) {
			walk(n)
		}
	}
	return out
}

// Selected returns the task under the cursor.
func (m *Model) Selected() (model.Task, bool) {
	tasks := m.ordered()
	if len(tasks) == 0 {
		return model.Task{}, false
	}
	return tasks[m.cursor], true
}

func (m *Model) View() string {
	var b strings.Builder

	status := m.view.Status
	badge := lipgloss.NewStyle().Foreground(stateColors[status.State]).Render("● " + status.Label())
	header := headerStyle.Render("Kanban Sync") + " " + badge
	if status.Syncing {
		header += " 🔄 syncing"
	}
	b.WriteString(header + "\n")

	if status.State == agent.StateOffline {
		b.WriteString(bannerStyle.Render("Offline: changes are saved locally. Press r to retry the connection.") + "\n")
	}
	b.WriteString("\n")

	board := m.view.Board
	cols := board.SortedColumns()
	selected, _ := m.Selected()
	rendered := make([]string, 0, len(cols))
	for _, c := range cols {
		rendered = append(rendered, renderColumn(&board, c, selected.ID))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, rendered...))
	b.WriteString("\n")

	if m.notice != "" {
		b.WriteString(m.notice + "\n")
	}
	if m.draft != nil {
		b.WriteString("New task: " + *m.draft + "█\n")
		b.WriteString(helpStyle.Render("enter create • esc cancel"))
		return b.String()
	}
	b.WriteString(helpStyle.Render("j/k select • n new task • m move right • r retry connection • s sync now • q quit"))
	return b.String()
}

func renderColumn(b *model.Board, c model.Column, selectedID string) string {
	nodes := b.Tree(c.Status)
	var lines []string
	lines = append(lines, columnTitleStyle.Render(fmt.Sprintf("%s (%d)", c.Title, len(nodes))))
	for _, n := range nodes {
		lines = appendNode(lines, n, 0, selectedID)
	}
	if len(nodes) == 0 {
		lines = append(lines, helpStyle.Render("empty"))
	}
	return columnStyle.Render(strings.Join(lines, "\n"))
}

func appendNode(lines []string, n model.TaskNode, depth int, selectedID string) []string {
	prefix := strings.Repeat("  ", depth)
	if depth > 0 {
		prefix += "└ "
	}
	line := prefix + notify.PriorityEmoji(n.Task.Priority) + " " + n.Task.Title
	if n.Task.Label != "" {
		line += " [" + n.Task.Label + "]"
	}
	if n.Task.ID == selectedID {
		line = selectedStyle.Render("› " + line)
	}
	lines = append(lines, line)
	for _, child := range n.Children {
		lines = appendNode(lines, child, depth+1, selectedID)
	}
	return lines
}
