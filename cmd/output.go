package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"

	"github.com/ftahirops/perfdiag/engine"
	"github.com/ftahirops/perfdiag/model"
)

func disableColor() {
	color.NoColor = true
}

func printSuccess(w io.Writer, msg string) {
	color.New(color.FgGreen).Fprintf(w, "✓ %s\n", msg)
}

func printWarning(w io.Writer, msg string) {
	color.New(color.FgYellow).Fprintf(w, "! %s\n", msg)
}

func printError(w io.Writer, msg string) {
	color.New(color.FgRed).Fprintf(w, "✗ %s\n", msg)
}

// newSpinner returns a stopped spinner writing to w.
func newSpinner(w io.Writer, suffix string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[11], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + suffix
	return s
}

// levelColor picks the colour for a performance level.
func levelColor(level model.PerformanceLevel) *color.Color {
	switch level {
	case model.LevelExcellent, model.LevelGood:
		return color.New(color.FgGreen, color.Bold)
	case model.LevelFair:
		return color.New(color.FgYellow, color.Bold)
	case model.LevelPoor, model.LevelCritical:
		return color.New(color.FgRed, color.Bold)
	}
	return color.New(color.FgWhite)
}

// printComparison summarises the change against the previous run.
func printComparison(w io.Writer, c *engine.Comparison) {
	if c == nil {
		return
	}
	delta := fmt.Sprintf("%+d", c.ScoreDelta)
	switch {
	case c.ScoreDelta > 0:
		delta = color.GreenString(delta)
	case c.ScoreDelta < 0:
		delta = color.RedString(delta)
	}
	fmt.Fprintf(w, "Compared to previous run: health %s", delta)
	if c.LevelChanged {
		fmt.Fprint(w, ", level changed")
	}
	fmt.Fprintln(w)
	for _, m := range c.NewBottlenecks {
		fmt.Fprintf(w, "  %s new bottleneck: %s\n", color.RedString("+"), m)
	}
	for _, m := range c.ResolvedBottlenecks {
		fmt.Fprintf(w, "  %s resolved: %s\n", color.GreenString("-"), m)
	}
}
