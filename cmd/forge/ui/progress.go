// Package ui renders a forge session's progress stream as a live terminal
// view: a spinner for the running phase, one line per finished iteration,
// and the final verdict.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"styleforge/internal/forge"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	scoreStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	verdictStyle = lipgloss.NewStyle().Bold(true)
)

// iterationLine is one finished iteration's summary row.
type iterationLine struct {
	index     int
	composite float64
	failed    bool
	message   string
}

type eventMsg forge.Event

type streamClosedMsg struct{}

// Progress is the bubbletea model for one session.
type Progress struct {
	sessionID string
	target    string
	budget    int

	events  <-chan forge.Event
	spinner spinner.Model

	phase      string
	iteration  int
	lines      []iterationLine
	bestScore  float64
	finalState string
	finalMsg   string
	done       bool
}

// NewProgress creates the live view over a session's event stream.
func NewProgress(sessionID, target string, budget int, events <-chan forge.Event) Progress {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	return Progress{
		sessionID: sessionID,
		target:    target,
		budget:    budget,
		events:    events,
		spinner:   sp,
		phase:     "starting",
	}
}

func waitForEvent(events <-chan forge.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m Progress) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

func (m Progress) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		m.apply(forge.Event(msg))
		return m, waitForEvent(m.events)

	case streamClosedMsg:
		m.done = true
		return m, tea.Quit

	case tea.KeyMsg:
		// The session keeps running; q only detaches the view. Ctrl-C is
		// handled by the signal path, which cancels the session proper.
		if msg.String() == "q" || msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
	}
	return m, nil
}

// apply folds one progress event into the view state.
func (m *Progress) apply(ev forge.Event) {
	switch ev.Type {
	case forge.EventSessionStarted:
		m.phase = "extracting reference features"
	case forge.EventReferenceReady:
		m.phase = "reference ready"
	case forge.EventIterationStarted:
		m.iteration = ev.Iteration
		m.phase = fmt.Sprintf("iteration %d/%d: generating", ev.Iteration, m.budget)
	case forge.EventCandidateReady:
		m.phase = fmt.Sprintf("iteration %d/%d: evaluating", ev.Iteration, m.budget)
	case forge.EventIterationEvaluated:
		line := iterationLine{index: ev.Iteration, message: ev.Message}
		if data, ok := ev.Data.(map[string]any); ok {
			if v, ok := data["composite_score"].(float64); ok {
				line.composite = v
				if v > m.bestScore {
					m.bestScore = v
				}
			}
		}
		m.lines = append(m.lines, line)
	case forge.EventIterationFailed:
		m.lines = append(m.lines, iterationLine{index: ev.Iteration, failed: true, message: ev.Message})
	case forge.EventSessionComplete, forge.EventSessionError:
		m.finalState = string(ev.Type)
		m.finalMsg = ev.Message
	}
}

func (m Progress) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("styleforge %s", m.target)))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  (%s)", m.sessionID)))
	b.WriteString("\n\n")

	for _, line := range m.lines {
		if line.failed {
			fmt.Fprintf(&b, "  %s %s\n", failStyle.Render(fmt.Sprintf("✗ %d", line.index)), line.message)
		} else {
			fmt.Fprintf(&b, "  %s %s\n", scoreStyle.Render(fmt.Sprintf("✓ %d", line.index)),
				fmt.Sprintf("composite %.1f", line.composite))
		}
	}

	if m.finalState != "" {
		b.WriteString("\n")
		b.WriteString(verdictStyle.Render(m.finalMsg))
		b.WriteString("\n")
	} else {
		fmt.Fprintf(&b, "\n  %s %s\n", m.spinner.View(), m.phase)
		if m.bestScore > 0 {
			b.WriteString(dimStyle.Render(fmt.Sprintf("  best so far: %.1f\n", m.bestScore)))
		}
	}
	return b.String()
}
