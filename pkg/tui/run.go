package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"

	"github.com/catalystworks/catalyst/pkg/engine"
	"github.com/catalystworks/catalyst/pkg/schema"
)

// StepEvent reports one finished step to the view.
type StepEvent struct {
	Index  int
	Result engine.Result
}

// RunFinished signals the end of the run, nil on success.
type RunFinished struct {
	Err error
}

type stepEventMsg StepEvent
type runFinishedMsg RunFinished

type stepStatus int

const (
	statusPending stepStatus = iota
	statusCurrent
	statusPassed
	statusFailed
)

type stepRow struct {
	title   string
	status  stepStatus
	message string
}

// Model is the Bubble Tea model for a single playbook run.
type Model struct {
	playbook string
	spinner  spinner.Model
	rows     []stepRow
	events   <-chan any
	current  int
	done     bool
	runErr   error
	width    int
}

// NewModel builds the run view. events carries StepEvent values followed
// by exactly one RunFinished.
func NewModel(playbook string, steps []schema.Step, events <-chan any) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = stepCurrent

	rows := make([]stepRow, len(steps))
	for i, step := range steps {
		title := step.Name
		if title == "" {
			title = step.Action
		}
		rows[i] = stepRow{title: fmt.Sprintf("%s (%s)", title, step.Action)}
	}
	if len(rows) > 0 {
		rows[0].status = statusCurrent
	}
	return Model{
		playbook: playbook,
		spinner:  sp,
		rows:     rows,
		events:   events,
		width:    80,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitEvent())
}

func (m Model) waitEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return runFinishedMsg{}
		}
		switch v := ev.(type) {
		case StepEvent:
			return stepEventMsg(v)
		case RunFinished:
			return runFinishedMsg(v)
		default:
			return runFinishedMsg{Err: fmt.Errorf("unexpected event %T", ev)}
		}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}
		return m, nil

	case stepEventMsg:
		if msg.Index >= 0 && msg.Index < len(m.rows) {
			row := &m.rows[msg.Index]
			if msg.Result.OK() {
				row.status = statusPassed
			} else {
				row.status = statusFailed
				row.message = msg.Result.Err.Error()
			}
			if next := msg.Index + 1; next < len(m.rows) && msg.Result.OK() {
				m.rows[next].status = statusCurrent
				m.current = next
			}
		}
		return m, m.waitEvent()

	case runFinishedMsg:
		m.done = true
		m.runErr = msg.Err
		for i := range m.rows {
			if m.rows[i].status == statusCurrent {
				m.rows[i].status = statusPending
			}
		}
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("catalyst run: " + m.playbook))
	b.WriteString("\n\n")

	maxTitle := m.width - 8
	if maxTitle < 10 {
		maxTitle = 10
	}
	for _, row := range m.rows {
		title := runewidth.Truncate(row.title, maxTitle, "…")
		switch row.status {
		case statusPassed:
			b.WriteString(stepPassed.Render("  " + GlyphPassed + " " + title))
		case statusFailed:
			b.WriteString(stepFailed.Render("  " + GlyphFailed + " " + title))
			if row.message != "" {
				b.WriteString("\n")
				b.WriteString(detailStyle.Render("    " + runewidth.Truncate(row.message, maxTitle, "…")))
			}
		case statusCurrent:
			b.WriteString(stepCurrent.Render("  " + m.spinner.View() + GlyphCurrent + " " + title))
		default:
			b.WriteString(stepPending.Render("  " + GlyphPending + " " + title))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.done {
		if m.runErr != nil {
			b.WriteString(summaryFail.Render("run failed: " + m.runErr.Error()))
		} else {
			b.WriteString(summaryOK.Render("run succeeded"))
		}
	} else {
		b.WriteString(detailStyle.Render("q to abort"))
	}
	b.WriteString("\n")
	return b.String()
}

// Run executes the view until the run finishes or the user quits.
func Run(playbook string, steps []schema.Step, events <-chan any) error {
	_, err := tea.NewProgram(NewModel(playbook, steps, events)).Run()
	return err
}
