package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// styledPad pads a styled string to the given visual width using spaces.
// Unlike fmt.Sprintf("%-Xs"), this accounts for ANSI escape codes.
func styledPad(styled string, width int) string {
	visW := lipgloss.Width(styled)
	if visW >= width {
		return styled
	}
	return styled + strings.Repeat(" ", width-visW)
}

// progressBar renders pct (0-100) as a filled bar.
func progressBar(pct float64, width int) string {
	if width < 1 {
		width = 10
	}
	pct = max(0, min(100, pct))
	filled := min(width, int(pct/100*float64(width)))
	return titleStyle.Render(strings.Repeat("█", filled)) + dimStyle.Render(strings.Repeat("░", width-filled))
}

// padRight pads s to width runes, truncating with an ellipsis when longer.
func padRight(s string, width int) string {
	r := []rune(s)
	if len(r) >= width {
		if len(r) > width && width > 3 {
			return string(r[:width-3]) + "..."
		}
		return string(r[:width])
	}
	return s + strings.Repeat(" ", width-len(r))
}

// sparkline renders a single-line chart scaled to the series' own range.
func sparkline(data []float64, width int) string {
	if len(data) == 0 || width < 1 {
		return ""
	}
	blocks := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

	minVal, maxVal := data[0], data[0]
	for _, v := range data {
		minVal = min(minVal, v)
		maxVal = max(maxVal, v)
	}
	if maxVal <= minVal {
		maxVal = minVal + 1
	}

	// Resample data to fit width
	resampled := data
	if len(data) > width {
		resampled = make([]float64, width)
		for i := 0; i < width; i++ {
			resampled[i] = data[i*len(data)/width]
		}
	}

	var sb strings.Builder
	for _, v := range resampled {
		ratio := (v - minVal) / (maxVal - minVal)
		idx := min(len(blocks)-1, max(0, int(ratio*float64(len(blocks)-1))))
		sb.WriteRune(blocks[idx])
	}
	return valueStyle.Render(sb.String())
}

// scrollWindow returns at most height lines starting at offset, clamping
// offset so the last page stays full.
func scrollWindow(lines []string, offset, height int) ([]string, int) {
	if height <= 0 || len(lines) <= height {
		return lines, 0
	}
	offset = max(0, min(offset, len(lines)-height))
	return lines[offset : offset+height], offset
}
