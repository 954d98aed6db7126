// Package ui renders live progress of a check run in the terminal.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"prosa/internal/check"
)

type progressModel struct {
	title      string
	events     <-chan check.Event
	spinner    spinner.Model
	prog       progress.Model
	items      []langItem
	index      map[string]int
	stageLabel string
	width      int
	done       bool
}

// langItem is one checkable text; rows appear as extraction reports them.
type langItem struct {
	key    string
	status check.Status
	done   int
	total  int
	detail string
}

type eventMsg check.Event
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model that renders check progress.
// The model quits when events is closed.
func NewProgressModel(title string, events <-chan check.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	return &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		prog:    prog,
		index:   make(map[string]int),
		width:   80,
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		cmd := m.applyEvent(check.Event(msg))
		return m, tea.Batch(cmd, m.listenForEvent())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = msg.Width - 4
		}
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		return m, nil
	case progress.FrameMsg:
		pm, cmd := m.prog.Update(msg)
		m.prog = pm.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := m.title
	if m.stageLabel != "" {
		header = fmt.Sprintf("%s (%s)", header, m.stageLabel)
	}
	if m.done {
		header = fmt.Sprintf("done: %s", header)
	} else {
		header = fmt.Sprintf("%s %s", m.spinner.View(), header)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	statusWidth := 12
	nameWidth := max(m.width-statusWidth-16, 20)
	for _, item := range m.items {
		label := string(item.status)
		if item.status == check.StatusWorking && item.total > 0 {
			label = fmt.Sprintf("%d/%d", item.done, item.total)
		}
		statusStyled := styleStatus(item.status).Render(fmt.Sprintf("%12s", label))
		line := fmt.Sprintf("  %s %s", statusStyled, truncate(item.key, nameWidth))
		if item.detail != "" {
			line += " " + lipgloss.NewStyle().Faint(true).Render(truncate(item.detail, nameWidth))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.done {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.View())
	}
	b.WriteString("\n")
	return b.String()
}

func (m *progressModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *progressModel) applyEvent(ev check.Event) tea.Cmd {
	if ev.Item == "" {
		m.stageLabel = runLabel(ev.Stage, ev.Status)
		return nil
	}
	idx, ok := m.index[ev.Item]
	if !ok {
		idx = len(m.items)
		m.index[ev.Item] = idx
		m.items = append(m.items, langItem{key: ev.Item})
	}
	item := &m.items[idx]
	item.status = ev.Status
	if ev.Total > 0 {
		item.done, item.total = ev.Done, ev.Total
	}
	switch {
	case ev.Err != nil:
		item.detail = ev.Err.Error()
	case ev.Status == check.StatusDone || ev.Status == check.StatusCached:
		item.detail = ev.Elapsed.Round(1e6).String()
	}
	return m.prog.SetPercent(m.percent())
}

// percent weights every text equally; working texts count their chunks.
func (m *progressModel) percent() float64 {
	if len(m.items) == 0 {
		return 0
	}
	total := 0.0
	for _, item := range m.items {
		switch {
		case item.status == check.StatusDone || item.status == check.StatusCached || item.status == check.StatusError:
			total += 1.0
		case item.total > 0:
			total += float64(item.done) / float64(item.total)
		}
	}
	return total / float64(len(m.items))
}

func runLabel(stage check.Stage, status check.Status) string {
	switch status {
	case check.StatusError:
		return "error"
	case check.StatusWorking:
		switch stage {
		case check.StageCompile:
			return "reading"
		case check.StageExtract:
			return "extracting"
		}
		return "checking"
	}
	return ""
}

func styleStatus(status check.Status) lipgloss.Style {
	switch status {
	case check.StatusDone, check.StatusCached:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case check.StatusError:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case check.StatusWorking:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	}
}

func truncate(value string, width int) string {
	if width <= 0 {
		return value
	}
	if runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width, "...")
}
