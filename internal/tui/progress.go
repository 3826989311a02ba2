// Package tui renders run progress in the terminal and formats stored
// runs as markdown reports.
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/metalagman/jota/internal/orchestrator"
	"github.com/metalagman/jota/internal/plan"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	doneStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	narrationStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("250")).PaddingLeft(4)
)

// EventMsg carries one orchestrator event into the program.
type EventMsg orchestrator.Event

// DoneMsg ends the program.
type DoneMsg struct {
	Err error
}

type line struct {
	title     string
	status    plan.Status
	narration string
}

// Model is the bubbletea model of a single run.
type Model struct {
	objective   string
	spinner     spinner.Model
	bar         progress.Model
	lines       []line
	state       orchestrator.State
	err         error
	done        bool
	interrupted bool
}

// NewModel creates the progress view for objective.
func NewModel(objective string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		objective: objective,
		spinner:   sp,
		bar:       progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		state:     orchestrator.StatePlanning,
	}
}

// Interrupted reports whether the user quit before the run finished.
func (m Model) Interrupted() bool { return m.interrupted }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd { return m.spinner.Tick }

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.interrupted = !m.done
			return m, tea.Quit
		}
	case EventMsg:
		m = m.apply(orchestrator.Event(msg))
	case DoneMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) apply(ev orchestrator.Event) Model {
	m.state = ev.State
	switch ev.Type {
	case orchestrator.EventPlanCreated:
		m.lines = pendingLines(ev.Steps)
	case orchestrator.EventReplanAccepted:
		kept := min(ev.StepIndex+1, len(m.lines))
		m.lines = append(m.lines[:kept:kept], pendingLines(ev.Steps)...)
	case orchestrator.EventStepStarted, orchestrator.EventRunRetried:
		m.lines = m.ensure(ev.StepIndex, ev.Step)
		m.lines[ev.StepIndex].status = plan.StatusRunning
	case orchestrator.EventStepFinished:
		m.lines = m.ensure(ev.StepIndex, ev.Step)
		m.lines[ev.StepIndex].status = plan.StatusCompleted
		if ev.Err != "" {
			m.lines[ev.StepIndex].status = plan.StatusFailed
		}
	case orchestrator.EventNarration:
		if ev.Narration != nil {
			m.lines = m.ensure(ev.Narration.StepIndex, nil)
			m.lines[ev.Narration.StepIndex].narration = ev.Narration.Text
		}
	}
	return m
}

// ensure grows lines so index exists and returns a copy safe to mutate.
func (m Model) ensure(index int, step *plan.Step) []line {
	out := append([]line(nil), m.lines...)
	for len(out) <= index {
		out = append(out, line{status: plan.StatusPending})
	}
	if step != nil {
		out[index].title = step.Title
	}
	return out
}

func pendingLines(steps []plan.Step) []line {
	out := make([]line, 0, len(steps))
	for _, s := range steps {
		out = append(out, line{title: s.Title, status: plan.StatusPending})
	}
	return out
}

func (m Model) completed() int {
	n := 0
	for _, l := range m.lines {
		if l.status == plan.StatusCompleted {
			n++
		}
	}
	return n
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("jota: "+m.objective) + "\n\n")

	for i, l := range m.lines {
		var icon string
		switch l.status {
		case plan.StatusCompleted:
			icon = doneStyle.Render("✓")
		case plan.StatusFailed:
			icon = failStyle.Render("✗")
		case plan.StatusRunning:
			icon = m.spinner.View()
		default:
			icon = pendingStyle.Render("·")
		}
		fmt.Fprintf(&b, " %s %d. %s\n", icon, i+1, l.title)
		if l.narration != "" {
			b.WriteString(narrationStyle.Render(l.narration) + "\n")
		}
	}

	if total := len(m.lines); total > 0 {
		b.WriteString("\n" + m.bar.ViewAs(float64(m.completed())/float64(total)) + "\n")
	}

	switch {
	case m.done && m.err != nil:
		b.WriteString("\n" + failStyle.Render(string(m.state)+": "+m.err.Error()) + "\n")
	case m.done:
		b.WriteString("\n" + doneStyle.Render(string(m.state)) + "\n")
	default:
		b.WriteString("\n" + m.spinner.View() + " " + pendingStyle.Render(string(m.state)) + "\n")
	}
	return b.String()
}

// Forwarder is an orchestrator.Observer that sends events to a program
// once one is attached. Events before Attach are dropped.
type Forwarder struct {
	mu      sync.Mutex
	program *tea.Program
}

var _ orchestrator.Observer = (*Forwarder)(nil)

// Attach starts forwarding to p.
func (f *Forwarder) Attach(p *tea.Program) {
	f.mu.Lock()
	f.program = p
	f.mu.Unlock()
}

// Observe implements orchestrator.Observer.
func (f *Forwarder) Observe(_ context.Context, ev orchestrator.Event) error {
	f.mu.Lock()
	p := f.program
	f.mu.Unlock()
	if p != nil {
		p.Send(EventMsg(ev))
	}
	return nil
}

// Run shows the progress of run until it returns. Quitting the view
// cancels the context passed to run.
func Run(ctx context.Context, objective string, fwd *Forwarder, run func(ctx context.Context) error, opts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewModel(objective), opts...)
	fwd.Attach(p)
	defer fwd.Attach(nil)

	errCh := make(chan error, 1)
	go func() {
		err := run(ctx)
		errCh <- err
		p.Send(DoneMsg{Err: err})
	}()

	final, err := p.Run()
	if err != nil {
		cancel()
		<-errCh
		return fmt.Errorf("progress view: %w", err)
	}
	if m, ok := final.(Model); ok && m.Interrupted() {
		cancel()
	}
	return <-errCh
}
