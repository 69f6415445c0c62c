package viz

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/phytosim/internal/config"
	"github.com/san-kum/phytosim/internal/control"
	"github.com/san-kum/phytosim/internal/sim"
)

// Runner simulates one configuration. The explorer never mutates a
// configuration it has handed to a Runner.
type Runner func(ctx context.Context, cfg *config.Config) (*sim.Trajectory, error)

var regimeInfo = map[control.Regime]string{
	control.RegimeBatch:          "closed vessel, no dilution",
	control.RegimeChemostat:      "constant dilution rate",
	control.RegimeTurbidostat:    "dilution holds a target density",
	control.RegimeSemiContinuous: "periodic batch transfers",
}

type param struct {
	name string
	step float64
	get  func(*config.Config) float64
	set  func(*config.Config, float64)
}

var modelParams = []param{
	{"mu_max", 0.1, func(c *config.Config) float64 { return c.MuMax }, func(c *config.Config, v float64) { c.MuMax = v }},
	{"v_max", 0.1, func(c *config.Config) float64 { return c.VMax }, func(c *config.Config, v float64) { c.VMax = v }},
	{"k_m", 0.1, func(c *config.Config) float64 { return c.Km }, func(c *config.Config, v float64) { c.Km = v }},
	{"q_min", 0.01, func(c *config.Config) float64 { return c.QMin }, func(c *config.Config, v float64) { c.QMin = v }},
	{"rs", 0.1, func(c *config.Config) float64 { return c.Rs }, func(c *config.Config, v float64) { c.Rs = v }},
}

var (
	pD       = param{"d", 0.05, func(c *config.Config) float64 { return c.D }, func(c *config.Config, v float64) { c.D = v }}
	pXStar   = param{"x_star", 0.1, func(c *config.Config) float64 { return c.XStar }, func(c *config.Config, v float64) { c.XStar = v }}
	pPeriod  = param{"period", 0.25, func(c *config.Config) float64 { return c.Period }, func(c *config.Config, v float64) { c.Period = v }}
	pR0      = param{"initial.r", 0.1, func(c *config.Config) float64 { return c.Initial.R }, func(c *config.Config, v float64) { c.Initial.R = v }}
	pX0      = param{"initial.x", 0.1, func(c *config.Config) float64 { return c.Initial.X }, func(c *config.Config, v float64) { c.Initial.X = v }}
	pTFinal  = param{"t_final", 1, func(c *config.Config) float64 { return c.TFinal }, func(c *config.Config, v float64) { c.TFinal = v }}
	plotCols = []string{"X", "log10X", "R", "Q", "mu", "dilution", "mass"}
)

func paramsFor(r control.Regime) []param {
	out := append([]param(nil), modelParams...)
	switch r {
	case control.RegimeChemostat:
		out = append(out, pD)
	case control.RegimeTurbidostat:
		out = append(out, pXStar)
	case control.RegimeSemiContinuous:
		out = append(out, pPeriod, pXStar)
	}
	return append(out, pR0, pX0, pTFinal)
}

const (
	stateMenu = iota
	stateExplore
)

type resultMsg struct {
	seq int
	tr  *sim.Trajectory
	err error
}

// Explorer is the interactive parameter explorer: pick a regime, then
// adjust parameters and watch the trajectory follow.
type Explorer struct {
	run     Runner
	regimes []control.Regime

	state, cursor int
	cfg           *config.Config
	params        []param
	paramCursor   int
	editing       bool
	editBuf       string
	column        int

	seq     int
	cancel  context.CancelFunc
	tr      *sim.Trajectory
	err     error
	pending bool
	width   int
}

func NewExplorer(run Runner) *Explorer {
	return &Explorer{
		run:     run,
		regimes: control.Regimes(),
		width:   DefaultWidth,
	}
}

func (m Explorer) Init() tea.Cmd { return nil }

// Config returns the configuration the current trajectory belongs to.
func (m Explorer) Config() *config.Config { return m.cfg }

// Trajectory returns the most recent successful simulation.
func (m Explorer) Trajectory() *sim.Trajectory { return m.tr }

// Err returns the error of the most recent simulation, if any.
func (m Explorer) Err() error { return m.err }

func (m Explorer) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.state == stateMenu {
			return m.menuKey(msg)
		}
		return m.exploreKey(msg)
	case tea.WindowSizeMsg:
		m.width = max(20, msg.Width-12)
	case resultMsg:
		if msg.seq != m.seq {
			// superseded by a later keystroke
			return m, nil
		}
		m.stop()
		m.pending = false
		m.err = msg.err
		if msg.err == nil {
			m.tr = msg.tr
		}
	}
	return m, nil
}

func (m Explorer) menuKey(msg tea.KeyMsg) (Explorer, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.stop()
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.regimes)-1 {
			m.cursor++
		}
	case "enter", " ":
		r := m.regimes[m.cursor]
		cfg := config.DefaultConfig()
		cfg.Regime = string(r)
		m.state, m.paramCursor, m.column = stateExplore, 0, 0
		m.params = paramsFor(r)
		m.tr = nil
		return m.simulate(cfg)
	}
	return m, nil
}

func (m Explorer) exploreKey(msg tea.KeyMsg) (Explorer, tea.Cmd) {
	if m.editing {
		switch msg.String() {
		case "enter":
			m.editing = false
			v, err := strconv.ParseFloat(m.editBuf, 64)
			m.editBuf = ""
			if err != nil {
				m.err = fmt.Errorf("not a number: %w", err)
				return m, nil
			}
			return m.setParam(v)
		case "esc":
			m.editing, m.editBuf = false, ""
		case "backspace":
			if len(m.editBuf) > 0 {
				m.editBuf = m.editBuf[:len(m.editBuf)-1]
			}
		default:
			if s := msg.String(); len(s) == 1 && strings.ContainsAny(s, "0123456789.-e") {
				m.editBuf += s
			}
		}
		return m, nil
	}

	p := m.params[m.paramCursor]
	switch msg.String() {
	case "ctrl+c":
		m.stop()
		return m, tea.Quit
	case "q", "esc":
		m.stop()
		m.pending = false
		m.state = stateMenu
	case "up", "k":
		if m.paramCursor > 0 {
			m.paramCursor--
		}
	case "down", "j":
		if m.paramCursor < len(m.params)-1 {
			m.paramCursor++
		}
	case "left", "h":
		return m.setParam(p.get(m.cfg) - p.step)
	case "right", "l":
		return m.setParam(p.get(m.cfg) + p.step)
	case "enter", " ":
		m.editing, m.editBuf = true, strconv.FormatFloat(p.get(m.cfg), 'g', -1, 64)
	case "c":
		m.column = (m.column + 1) % len(plotCols)
	}
	return m, nil
}

// setParam derives a new configuration with the selected parameter set to
// v and re-simulates it.
func (m Explorer) setParam(v float64) (Explorer, tea.Cmd) {
	next := m.cfg.Clone()
	m.params[m.paramCursor].set(next, v)
	return m.simulate(next)
}

// simulate starts a run of cfg and cancels the run it supersedes.
func (m Explorer) simulate(cfg *config.Config) (Explorer, tea.Cmd) {
	m.stop()
	ctx, cancel := context.WithCancel(context.Background())
	m.cfg = cfg
	m.seq++
	m.cancel = cancel
	m.pending = true
	seq, run := m.seq, m.run
	return m, func() tea.Msg {
		tr, err := run(ctx, cfg)
		return resultMsg{seq: seq, tr: tr, err: err}
	}
}

func (m *Explorer) stop() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m Explorer) View() string {
	if m.state == stateMenu {
		return m.viewMenu()
	}
	return m.viewExplore()
}

func (m Explorer) viewMenu() string {
	var b strings.Builder
	b.WriteString("\n\n    " + Title.Render("PHYTOSIM") + "\n    " + Subtle.Render("droop culture explorer") + "\n    " + Subtle.Render("─────────────────────────") + "\n\n")
	for i, r := range m.regimes {
		if i == m.cursor {
			fmt.Fprintf(&b, "    %s %s  %s\n", Cursor.Render("▸"), Selected.Render(fmt.Sprintf("%-16s", r)), MetricValue.Render(regimeInfo[r]))
		} else {
			fmt.Fprintf(&b, "      %s  %s\n", Unselected.Render(fmt.Sprintf("%-16s", r)), Subtle.Render(regimeInfo[r]))
		}
	}
	b.WriteString("\n    " + keyHints("j/k", "navigate", "enter", "select", "q", "quit") + "\n")
	return b.String()
}

func (m Explorer) viewExplore() string {
	var b strings.Builder
	b.WriteString("\n    " + Title.Render(strings.ToUpper(m.cfg.Regime)) + "  " + Subtle.Render(regimeInfo[control.Regime(m.cfg.Regime)]) + "\n\n")

	for i, p := range m.params {
		val := fmt.Sprintf("%9.4g", p.get(m.cfg))
		if m.editing && i == m.paramCursor {
			val = fmt.Sprintf("%9s", m.editBuf+"_")
		}
		if i == m.paramCursor {
			fmt.Fprintf(&b, "    %s %s %s\n", Cursor.Render("▸"), Selected.Render(fmt.Sprintf("%-10s", p.name)), MetricValue.Render(val))
		} else {
			fmt.Fprintf(&b, "      %s %s\n", Unselected.Render(fmt.Sprintf("%-10s", p.name)), Subtle.Render(val))
		}
	}
	b.WriteString("\n")

	switch {
	case m.err != nil:
		b.WriteString("    " + ErrorText.Render(m.err.Error()) + "\n\n")
	case m.pending && m.tr == nil:
		b.WriteString("    " + Subtle.Render("simulating...") + "\n\n")
	}

	if m.tr != nil && m.tr.Len() > 0 {
		b.WriteString(m.viewTrajectory())
	}

	b.WriteString("\n    " + keyHints("j/k", "select", "h/l", "adjust", "enter", "edit", "c", "column", "esc", "back") + "\n")
	return b.String()
}

func (m Explorer) viewTrajectory() string {
	var b strings.Builder
	name := plotCols[m.column]
	data, _ := Series(m.tr, name)
	if hasFinite(data) {
		b.WriteString(asciigraph.Plot(data,
			asciigraph.Height(DefaultHeight),
			asciigraph.Width(m.width),
			asciigraph.Caption(caption(name)),
		))
		b.WriteString("\n\n")
	}

	final := m.tr.Final()
	fmt.Fprintf(&b, "    %s %s  %s %s  %s %s  %s %s\n",
		MetricLabel.Render("R"), MetricValue.Render(fmt.Sprintf("%.4g", final.R)),
		MetricLabel.Render("Q"), MetricValue.Render(fmt.Sprintf("%.4g", final.Q)),
		MetricLabel.Render("X"), MetricValue.Render(fmt.Sprintf("%.4g", final.X)),
		MetricLabel.Render("mu"), MetricValue.Render(fmt.Sprintf("%.4g", final.Mu)),
	)
	fmt.Fprintf(&b, "    %s %s\n", MetricLabel.Render("d(t)"), Sparkline(m.tr.Column("dilution"), m.width))
	return b.String()
}

// RunExplorer starts the explorer full screen.
func RunExplorer(run Runner) error {
	_, err := tea.NewProgram(NewExplorer(run), tea.WithAltScreen()).Run()
	return err
}
