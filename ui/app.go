package ui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ftahirops/perfdiag/engine"
	"github.com/ftahirops/perfdiag/model"
	"github.com/ftahirops/perfdiag/report"
)

// historyLen bounds the per-metric sparkline series.
const historyLen = 120

const refreshInterval = 250 * time.Millisecond

type tickMsg time.Time

type sampleMsg model.Sample

type resultMsg struct {
	res *engine.Result
	err error
}

// Model is the live collection and report view.
type Model struct {
	cancel   context.CancelFunc
	duration time.Duration
	start    time.Time
	now      func() time.Time
	width    int
	height   int

	// Live collection
	samples    int
	incomplete int
	latest     map[string]float64
	history    map[string][]float64
	stopping   bool

	// Finished run
	result   *engine.Result
	err      error
	rendered []string
	scroll   int
}

// NewModel creates a model for a collection of the given length. cancel
// is called when the user stops collection early.
func NewModel(duration time.Duration, cancel context.CancelFunc) Model {
	return Model{
		cancel:   cancel,
		duration: duration,
		start:    time.Now(),
		now:      time.Now,
		latest:   make(map[string]float64),
		history:  make(map[string][]float64),
	}
}

func (m Model) Init() tea.Cmd {
	return tick(refreshInterval)
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.result != nil || m.err != nil {
				return m, tea.Quit
			}
			if !m.stopping {
				m.stopping = true
				if m.cancel != nil {
					m.cancel()
				}
			}
			return m, nil
		case "j", "down":
			m.scroll++
		case "k", "up":
			m.scroll = max(0, m.scroll-1)
		case "g":
			m.scroll = 0
		case "G":
			m.scroll = len(m.rendered)
		}
		return m, nil

	case sampleMsg:
		m.samples++
		if !msg.Complete {
			m.incomplete++
		}
		for name, v := range msg.Metrics {
			m.latest[name] = v
			h := append(m.history[name], v)
			if len(h) > historyLen {
				h = h[len(h)-historyLen:]
			}
			m.history[name] = h
		}
		return m, nil

	case resultMsg:
		m.result = msg.res
		m.err = msg.err
		if msg.res != nil && msg.res.Report != nil {
			out, err := report.Format(msg.res.Report, report.FormatText)
			if err != nil && m.err == nil {
				m.err = err
			}
			m.rendered = strings.Split(strings.TrimRight(out, "\n"), "\n")
		}
		return m, nil

	case tickMsg:
		if m.result != nil || m.err != nil {
			return m, nil
		}
		return m, tick(refreshInterval)
	}
	return m, nil
}

func (m Model) View() string {
	if m.result != nil || m.err != nil {
		return m.renderReport()
	}
	return m.renderCollecting()
}

func (m Model) renderCollecting() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("perfdiag") + dimStyle.Render("  collecting") + "\n\n")

	elapsed := m.now().Sub(m.start)
	pct := 100.0
	if m.duration > 0 {
		pct = float64(elapsed) / float64(m.duration) * 100
	}
	barW := 40
	if m.width > 0 {
		barW = max(10, min(60, m.width-30))
	}
	fmt.Fprintf(&sb, "%s %s %s\n",
		progressBar(pct, barW),
		valueStyle.Render(fmt.Sprintf("%3.0f%%", min(pct, 100))),
		dimStyle.Render(fmt.Sprintf("%s / %s", elapsed.Round(time.Second), m.duration)))
	fmt.Fprintf(&sb, "%s %s", labelStyle.Render("Samples:"), valueStyle.Render(fmt.Sprint(m.samples)))
	if m.incomplete > 0 {
		sb.WriteString(warnStyle.Render(fmt.Sprintf("  (%d incomplete)", m.incomplete)))
	}
	sb.WriteString("\n\n")

	names := make([]string, 0, len(m.latest))
	for name := range m.latest {
		names = append(names, name)
	}
	sort.Strings(names)

	var rows []string
	for _, name := range names {
		rows = append(rows, fmt.Sprintf("%s %s %s",
			headerStyle.Render(padRight(name, 16)),
			styledPad(valueStyle.Render(report.FormatValue(name, m.latest[name])), 14),
			sparkline(m.history[name], 30)))
	}
	if len(rows) == 0 {
		rows = append(rows, dimStyle.Render("waiting for first sample..."))
	}
	sb.WriteString(panelStyle.Render(strings.Join(rows, "\n")))
	sb.WriteString("\n")

	if m.stopping {
		sb.WriteString(warnStyle.Render("stopping, analysing collected samples...") + "\n")
	} else {
		sb.WriteString(helpStyle.Render("q: stop early and analyse") + "\n")
	}
	return sb.String()
}

func (m Model) renderReport() string {
	var sb strings.Builder
	if m.err != nil {
		sb.WriteString(critStyle.Render("error: "+m.err.Error()) + "\n")
	}
	if m.result != nil && m.result.Report != nil {
		s := m.result.Report.Summary
		fmt.Fprintf(&sb, "%s %s  %s %s  %s %s\n",
			labelStyle.Render("Health"), levelStyle(s.PerformanceLevel).Render(fmt.Sprintf("%d/100", s.HealthScore)),
			labelStyle.Render("Level"), levelStyle(s.PerformanceLevel).Render(string(s.PerformanceLevel)),
			labelStyle.Render("Critical"), severityStyle(model.SeverityCritical).Render(fmt.Sprint(s.CriticalIssues)))
	}

	height := 0
	if m.height > 0 {
		height = max(1, m.height-3)
	}
	lines, _ := scrollWindow(m.rendered, m.scroll, height)
	sb.WriteString(strings.Join(lines, "\n"))
	sb.WriteString("\n" + helpStyle.Render("j/k: scroll  q: quit") + "\n")
	return sb.String()
}

// Result returns the finished run, if any.
func (m Model) Result() (*engine.Result, error) {
	return m.result, m.err
}

// Run collects with d while showing live progress, then shows the
// report until the user quits. Quitting during collection cancels it and
// the shorter session is still analysed.
func Run(ctx context.Context, d *engine.Diagnostics, opts engine.Options) (*engine.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewModel(opts.Duration, cancel), tea.WithAltScreen())

	next := opts.OnSample
	opts.OnSample = func(s model.Sample) {
		if next != nil {
			next(s)
		}
		p.Send(sampleMsg(s))
	}

	var (
		res    *engine.Result
		runErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		res, runErr = d.Run(ctx, opts)
		p.Send(resultMsg{res: res, err: runErr})
	}()

	_, err := p.Run()
	cancel()
	<-done
	if err != nil {
		return res, fmt.Errorf("run tui: %w", err)
	}
	return res, runErr
}
