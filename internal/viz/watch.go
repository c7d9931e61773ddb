package viz

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/mbsolve/internal/sim"
)

const (
	historyCapacity = 240
	tickRate        = time.Second / 30
	graphWidth      = 48
	graphHeight     = 8
	residualFloor   = 1e-16
)

type TickMsg time.Time

// Model steps a simulator once per tick and renders solver statistics.
type Model struct {
	ctx       context.Context
	sim       *sim.Simulator
	title     string
	initial   []float64
	forces    []float64
	theme     Theme
	styles    styles
	running   bool
	last      sim.StepRecord
	stepped   bool
	err       error
	residuals []float64
	iters     []float64
}

// NewModel wraps s. initial and forces are restored on reset; s must already
// hold that state.
func NewModel(ctx context.Context, s *sim.Simulator, title string, initial, forces []float64) Model {
	return Model{
		ctx:       ctx,
		sim:       s,
		title:     title,
		initial:   append([]float64(nil), initial...),
		forces:    append([]float64(nil), forces...),
		theme:     Themes[0],
		styles:    newStyles(Themes[0]),
		running:   true,
		residuals: make([]float64, 0, historyCapacity),
		iters:     make([]float64, 0, historyCapacity),
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickRate, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd { return tick() }

// Update handles keys and advances the simulation on ticks.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "n":
			if !m.running {
				m.step()
			}
		case "r":
			m.reset()
		case "t":
			m.theme = m.theme.next()
			m.styles = newStyles(m.theme)
		}
	case TickMsg:
		if m.running && !m.done() {
			m.step()
		}
		return m, tick()
	}
	return m, nil
}

func (m *Model) done() bool {
	return m.err != nil || (m.stepped && m.last.Step+1 >= m.sim.Config().Steps)
}

func (m *Model) step() {
	if m.err != nil {
		return
	}
	rec, err := m.sim.Step(m.ctx)
	if err != nil {
		m.err = err
		m.running = false
		return
	}
	m.last, m.stepped = rec, true
	m.residuals = push(m.residuals, math.Log10(math.Max(rec.Residual, residualFloor)))
	m.iters = push(m.iters, float64(rec.Iterations))
}

func (m *Model) reset() {
	if err := m.sim.SetState(m.initial, m.forces); err != nil {
		m.err = err
		return
	}
	m.err = nil
	m.last, m.stepped = sim.StepRecord{}, false
	m.residuals = m.residuals[:0]
	m.iters = m.iters[:0]
}

func push(xs []float64, x float64) []float64 {
	xs = append(xs, x)
	if len(xs) > historyCapacity {
		xs = xs[1:]
	}
	return xs
}

func (m Model) status() string {
	switch {
	case m.err != nil:
		return m.styles.failed.Render("FAILED")
	case m.done():
		return m.styles.paused.Render("FINISHED")
	case !m.running:
		return m.styles.paused.Render("PAUSED")
	case m.stepped && !m.last.Converged:
		return m.styles.paused.Render("RUNNING (not converged)")
	}
	return m.styles.running.Render("RUNNING")
}

func (m Model) row(label, value string) string {
	return m.styles.label.Render(label) + m.styles.value.Render(value) + "\n"
}

// View renders the statistics panel and the residual graph.
func (m Model) View() string {
	var s strings.Builder
	s.WriteString(m.styles.header.Render(strings.ToUpper(m.title)) + "\n")
	s.WriteString(m.status() + "\n\n")

	steps := m.sim.Config().Steps
	taken := 0
	if m.stepped {
		taken = m.last.Step + 1
	}
	s.WriteString(m.row("Progress", fmt.Sprintf("%s %d/%d", m.styles.progressBar(float64(taken)/float64(steps), 20), taken, steps)))
	s.WriteString(m.row("Time", fmt.Sprintf("%.3fs", m.sim.Time())))
	s.WriteString(m.row("Dof", fmt.Sprintf("%d", m.sim.Descriptor().Dof())))
	s.WriteString(m.row("Rows", fmt.Sprintf("%d", m.sim.Descriptor().ConstraintCount())))
	s.WriteString(m.row("Iterations", fmt.Sprintf("%d", m.last.Iterations)))
	s.WriteString(m.row("Residual", fmt.Sprintf("%.3e", m.last.Residual)))
	s.WriteString(m.row("Violation", fmt.Sprintf("%.3e", m.last.Violation)))
	s.WriteString(m.row("Energy", fmt.Sprintf("%.4f", m.last.Energy)))
	s.WriteString(m.styles.label.Render("Iter trend") + m.styles.sparkline(m.iters, 30) + "\n")

	if m.err != nil {
		s.WriteString("\n" + m.styles.failed.Render(m.err.Error()) + "\n")
	}
	s.WriteString(m.styles.hint.Render("SP:Pause N:Step R:Reset T:Theme Q:Quit"))
	stats := m.styles.panel.Render(s.String())

	if len(m.residuals) < 2 {
		return stats
	}
	chart := asciigraph.Plot(m.residuals,
		asciigraph.Height(graphHeight),
		asciigraph.Width(graphWidth),
		asciigraph.Precision(1),
		asciigraph.Caption("log10 residual"))
	return lipgloss.JoinHorizontal(lipgloss.Top, stats, m.styles.graph.Render(chart))
}

// RunWatch runs the watch view until the user quits.
func RunWatch(ctx context.Context, s *sim.Simulator, title string, initial, forces []float64) error {
	p := tea.NewProgram(NewModel(ctx, s, title, initial, forces), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
