package ui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftahirops/perfdiag/engine"
	"github.com/ftahirops/perfdiag/model"
)

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	require.True(t, ok)
	return nm, cmd
}

func TestModelCollectingView(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewModel(10*time.Second, nil)
	m.start = start
	m.now = func() time.Time { return start.Add(5 * time.Second) }

	assert.Contains(t, m.View(), "waiting for first sample")

	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	for _, fps := range []float64{60, 45, 30} {
		m, _ = update(t, m, sampleMsg(model.Sample{
			Metrics:  map[string]float64{model.MetricFrameRate: fps},
			Complete: fps != 45,
		}))
	}

	view := m.View()
	assert.Contains(t, view, "Samples:")
	assert.Contains(t, view, "3")
	assert.Contains(t, view, "1 incomplete")
	assert.Contains(t, view, "frameRate")
	assert.Contains(t, view, "30.0 fps")
	assert.Contains(t, view, "50%")
	assert.Equal(t, []float64{60, 45, 30}, m.history[model.MetricFrameRate])
}

func TestModelQuitDuringCollectionCancels(t *testing.T) {
	canceled := 0
	m := NewModel(time.Minute, func() { canceled++ })

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.Nil(t, cmd)
	assert.Equal(t, 1, canceled)
	assert.Contains(t, m.View(), "stopping")

	// a second press while stopping does not cancel again
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.Equal(t, 1, canceled)

	rep := &model.Report{
		SessionID: "s1",
		Summary: model.Summary{
			HealthScore:      55,
			PerformanceLevel: model.LevelPoor,
			CriticalIssues:   2,
			Text:             "System has performance problems",
		},
		TechnicalDetails: model.TechnicalDetails{Canceled: true},
	}
	m, _ = update(t, m, resultMsg{res: &engine.Result{Report: rep}})
	view := m.View()
	assert.Contains(t, view, "55/100")
	assert.Contains(t, view, "poor")
	assert.Contains(t, view, "canceled early")

	res, err := m.Result()
	require.NoError(t, err)
	assert.Same(t, rep, res.Report)

	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModelShowsRunError(t *testing.T) {
	m := NewModel(time.Second, nil)
	m, cmd := update(t, m, resultMsg{err: errors.New("start collection: boom")})
	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), "boom")

	_, cmd = update(t, m, tickMsg(time.Now()))
	assert.Nil(t, cmd)
}

func TestModelScrollsReport(t *testing.T) {
	m := NewModel(time.Second, context.CancelFunc(func() {}))
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 6})
	m.rendered = strings.Split("l0\nl1\nl2\nl3\nl4\nl5\nl6\nl7", "\n")
	m.result = &engine.Result{}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("G")})
	view := m.View()
	assert.Contains(t, view, "l7")
	assert.NotContains(t, view, "l0")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("g")})
	assert.Contains(t, m.View(), "l0")
}

func TestComponents(t *testing.T) {
	assert.Equal(t, "abc  ", padRight("abc", 5))
	assert.Equal(t, "he...", padRight("hello world", 5))
	assert.Equal(t, "日本語   ", padRight("日本語", 6))

	assert.Empty(t, sparkline(nil, 10))
	assert.Equal(t, 10, len([]rune(stripANSI(sparkline([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, 10)))))

	lines, off := scrollWindow([]string{"a", "b", "c"}, 5, 2)
	assert.Equal(t, []string{"b", "c"}, lines)
	assert.Equal(t, 1, off)
}

// stripANSI removes colour escapes so rune counts reflect visible width.
func stripANSI(s string) string {
	var sb strings.Builder
	esc := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			esc = true
		case esc && r == 'm':
			esc = false
		case !esc:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
