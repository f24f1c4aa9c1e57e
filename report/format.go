package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/ftahirops/perfdiag/model"
)

// OutputFormat names a rendering of a report.
type OutputFormat string

const (
	FormatText     OutputFormat = "text"
	FormatHTML     OutputFormat = "html"
	FormatJSON     OutputFormat = "json"
	FormatMarkdown OutputFormat = "markdown"
	FormatYAML     OutputFormat = "yaml"
)

// Formats lists every supported output format.
var Formats = []OutputFormat{FormatText, FormatHTML, FormatJSON, FormatMarkdown, FormatYAML}

var (
	// ErrUnknownFormat is returned for an unsupported output format.
	ErrUnknownFormat = errors.New("unknown output format")
	// ErrFormatFailed marks a rendering failure; the degraded output is still returned.
	ErrFormatFailed = errors.New("format report")
)

// ParseFormat validates a format name.
func ParseFormat(v string) (OutputFormat, error) {
	f := OutputFormat(strings.ToLower(strings.TrimSpace(v)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, v)
}

// Format renders rep. On an internal failure it returns a short plain-text
// rendering that still carries the health score and the error, together
// with an error wrapping ErrFormatFailed.
func Format(rep *model.Report, format OutputFormat) (out string, err error) {
	if _, perr := ParseFormat(string(format)); perr != nil {
		return "", perr
	}
	if rep == nil {
		rep = Degraded(nil, errors.New("no report"), time.Now())
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrFormatFailed, rec)
			out = degradedText(rep, err)
		}
	}()

	switch format {
	case FormatJSON:
		out, err = formatJSON(rep)
	case FormatYAML:
		out, err = formatYAML(rep)
	case FormatHTML:
		out, err = formatHTML(rep)
	case FormatMarkdown:
		out = formatMarkdown(rep)
	default:
		out = formatText(rep)
	}
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrFormatFailed, err)
		return degradedText(rep, err), err
	}
	return out, nil
}

func degradedText(rep *model.Report, err error) string {
	return fmt.Sprintf("Health score: %d\nPerformance level: %s\nCritical issues: %d\nError: %v\n",
		rep.Summary.HealthScore, rep.Summary.PerformanceLevel, rep.Summary.CriticalIssues, err)
}

func formatJSON(rep *model.Report) (string, error) {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}

// formatYAML goes through JSON so keys and enum spellings match the JSON form.
func formatYAML(rep *model.Report) (string, error) {
	b, err := json.Marshal(rep)
	if err != nil {
		return "", err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(b, &node); err != nil {
		return "", err
	}
	blockStyle(&node)
	out, err := yaml.Marshal(&node)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// blockStyle drops the flow and quoting styles inherited from JSON; the
// encoder still quotes strings that would otherwise resolve to another type.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// anomalyLimit caps listed anomalies below comprehensive detail.
const anomalyLimit = 10

func showTechnical(rep *model.Report) bool {
	return rep.DetailLevel != model.DetailBasic
}

func comprehensive(rep *model.Report) bool {
	return rep.DetailLevel == "" || rep.DetailLevel == model.DetailComprehensive
}

func visibleAnomalies(rep *model.Report) []model.Anomaly {
	as := rep.TechnicalDetails.Anomalies
	if !comprehensive(rep) && len(as) > anomalyLimit {
		return as[:anomalyLimit]
	}
	return as
}

func visibleRecommendations(rep *model.Report) []model.Recommendation {
	recs := rep.Recommendations
	if !showTechnical(rep) && len(recs) > 3 {
		return recs[:3]
	}
	return recs
}

func formatText(rep *model.Report) string {
	var sb strings.Builder
	s := rep.Summary
	sb.WriteString("Performance Diagnostic Report\n")
	sb.WriteString(strings.Repeat("=", 29) + "\n")
	fmt.Fprintf(&sb, "Session:           %s\n", rep.SessionID)
	fmt.Fprintf(&sb, "Generated:         %s\n", rep.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&sb, "Health score:      %d/100\n", s.HealthScore)
	fmt.Fprintf(&sb, "Performance level: %s\n", s.PerformanceLevel)
	fmt.Fprintf(&sb, "Critical issues:   %d\n", s.CriticalIssues)
	fmt.Fprintf(&sb, "High issues:       %d\n", s.HighIssues)
	fmt.Fprintf(&sb, "Samples:           %d over %s\n", s.SampleCount, rep.TechnicalDetails.Duration.Round(time.Millisecond))
	if rep.TechnicalDetails.Canceled {
		sb.WriteString("Collection was canceled early.\n")
	}
	if rep.Error != "" {
		fmt.Fprintf(&sb, "Error:             %s\n", rep.Error)
	}
	fmt.Fprintf(&sb, "\n%s\n", s.Text)

	td := rep.TechnicalDetails
	if showTechnical(rep) {
		q := td.DataQuality
		fmt.Fprintf(&sb, "\nData quality: %.0f%% (completeness %.0f%%, consistency %.0f%%, %d gap(s))\n",
			q.Overall*100, q.Completeness*100, q.Consistency*100, q.TimeGaps)
		for _, iss := range q.Issues {
			fmt.Fprintf(&sb, "  - [%s] %s: %s\n", iss.Severity, iss.Type, iss.Description)
		}

		if len(td.Bottlenecks) > 0 {
			sb.WriteString("\nBottlenecks:\n")
			for _, b := range td.Bottlenecks {
				fmt.Fprintf(&sb, "  - [%s] %s (%s): worst %s, %d sample(s), %s to %s\n",
					b.Severity, b.Metric, b.Component, FormatValue(b.Metric, b.Value), b.OccurrenceCount,
					b.FirstSeen.Format("15:04:05.000"), b.LastSeen.Format("15:04:05.000"))
			}
		}
		if as := visibleAnomalies(rep); len(as) > 0 {
			fmt.Fprintf(&sb, "\nAnomalies (%d):\n", len(td.Anomalies))
			for _, a := range as {
				fmt.Fprintf(&sb, "  - [%s] %s %s: %s vs expected %s (%s sigma) at %s\n",
					a.Severity, a.Metric, a.Kind, FormatValue(a.Metric, a.Value), FormatValue(a.Metric, a.Expected),
					formatSigma(a.Deviation), a.Timestamp.Format("15:04:05.000"))
			}
		}
		if len(td.RootCauses) > 0 {
			sb.WriteString("\nRoot causes:\n")
			for _, rc := range td.RootCauses {
				fmt.Fprintf(&sb, "  - %s (confidence %.0f%%)\n", rc.RelatedIssue, rc.Confidence*100)
				for _, c := range rc.CandidateCauses {
					fmt.Fprintf(&sb, "      %s r=%+.2f over %d samples", c.Metric, c.CorrelationScore, c.Overlap)
					if c.Rule != "" {
						fmt.Fprintf(&sb, " [%s]", c.Rule)
					}
					sb.WriteString("\n")
				}
				for _, adv := range rc.Recommendations {
					fmt.Fprintf(&sb, "      > %s\n", adv)
				}
			}
		}
	}
	if comprehensive(rep) && len(td.MetricSummaries) > 0 {
		sb.WriteString("\nMetrics:\n")
		for _, name := range sortedMetricNames(td.MetricSummaries) {
			m := td.MetricSummaries[name]
			fmt.Fprintf(&sb, "  %-16s min %-12s max %-12s mean %-12s n=%d\n", name,
				FormatValue(name, m.Min), FormatValue(name, m.Max), FormatValue(name, m.Mean), m.Count)
		}
	}

	if recs := visibleRecommendations(rep); len(recs) > 0 {
		sb.WriteString("\nRecommendations:\n")
		for i, r := range recs {
			fmt.Fprintf(&sb, "  %d. [%s] %s: %s\n", i+1, r.Priority, r.Title, r.Description)
			if comprehensive(rep) {
				for _, a := range r.Actions {
					fmt.Fprintf(&sb, "       - %s\n", a)
				}
			}
		}
	}
	return sb.String()
}

func formatMarkdown(rep *model.Report) string {
	var sb strings.Builder
	s := rep.Summary
	sb.WriteString("# Performance Diagnostic Report\n\n")
	fmt.Fprintf(&sb, "**Session:** %s\n\n", rep.SessionID)
	fmt.Fprintf(&sb, "**Generated:** %s\n\n", rep.GeneratedAt.Format(time.RFC3339))

	sb.WriteString("## Health\n\n")
	fmt.Fprintf(&sb, "- **Health Score:** %d/100\n", s.HealthScore)
	fmt.Fprintf(&sb, "- **Performance Level:** %s\n", s.PerformanceLevel)
	fmt.Fprintf(&sb, "- **Critical Issues:** %d\n", s.CriticalIssues)
	fmt.Fprintf(&sb, "- **High Issues:** %d\n", s.HighIssues)
	fmt.Fprintf(&sb, "- **Samples:** %d\n", s.SampleCount)
	if rep.Error != "" {
		fmt.Fprintf(&sb, "- **Error:** %s\n", rep.Error)
	}
	fmt.Fprintf(&sb, "\n%s\n", s.Text)

	td := rep.TechnicalDetails
	if showTechnical(rep) && len(td.Bottlenecks) > 0 {
		sb.WriteString("\n## Bottlenecks\n\n")
		sb.WriteString("| Severity | Metric | Worst | Threshold | Samples |\n")
		sb.WriteString("|----------|--------|-------|-----------|---------|\n")
		for _, b := range td.Bottlenecks {
			fmt.Fprintf(&sb, "| %s | %s | %s | %s | %d |\n", b.Severity, b.Metric,
				FormatValue(b.Metric, b.Value), FormatValue(b.Metric, b.Threshold), b.OccurrenceCount)
		}
	}
	if showTechnical(rep) && len(td.RootCauses) > 0 {
		sb.WriteString("\n## Root Causes\n\n")
		for _, rc := range td.RootCauses {
			fmt.Fprintf(&sb, "**%s** (confidence %.0f%%)\n\n", rc.RelatedIssue, rc.Confidence*100)
			for _, c := range rc.CandidateCauses {
				fmt.Fprintf(&sb, "1. %s (r=%+.2f)\n", c.Metric, c.CorrelationScore)
			}
			sb.WriteString("\n")
		}
	}
	if as := visibleAnomalies(rep); showTechnical(rep) && len(as) > 0 {
		sb.WriteString("\n## Anomalies\n\n")
		for _, a := range as {
			fmt.Fprintf(&sb, "- **%s** %s %s: %s (%s sigma)\n", a.Severity, a.Metric, a.Kind,
				FormatValue(a.Metric, a.Value), formatSigma(a.Deviation))
		}
	}
	if recs := visibleRecommendations(rep); len(recs) > 0 {
		sb.WriteString("\n## Recommendations\n\n")
		for _, r := range recs {
			fmt.Fprintf(&sb, "- [ ] **%s** (%s): %s\n", r.Title, r.Priority, r.Description)
		}
	}
	return sb.String()
}

var htmlTmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"value": FormatValue,
	"sigma": formatSigma,
	"pct":   func(f float64) string { return fmt.Sprintf("%.0f%%", f*100) },
}).Parse(`<div class="perfdiag-report" style="font-family:sans-serif">
<h2>Performance Diagnostic Report</h2>
<table>
<tr><th align="left">Health score</th><td>{{.Summary.HealthScore}}/100</td></tr>
<tr><th align="left">Performance level</th><td>{{.Summary.PerformanceLevel}}</td></tr>
<tr><th align="left">Critical issues</th><td>{{.Summary.CriticalIssues}}</td></tr>
<tr><th align="left">High issues</th><td>{{.Summary.HighIssues}}</td></tr>
<tr><th align="left">Samples</th><td>{{.Summary.SampleCount}}</td></tr>
</table>
<p>{{.Summary.Text}}</p>
{{- if .Error}}
<p style="color:#b00">Error: {{.Error}}</p>
{{- end}}
{{- if .Bottlenecks}}
<h3>Bottlenecks</h3>
<ul>
{{- range .Bottlenecks}}
<li><strong>{{.Severity}}</strong> {{.Metric}}: worst {{value .Metric .Value}}, {{.OccurrenceCount}} sample(s)</li>
{{- end}}
</ul>
{{- end}}
{{- if .Anomalies}}
<h3>Anomalies</h3>
<ul>
{{- range .Anomalies}}
<li><strong>{{.Severity}}</strong> {{.Metric}} {{.Kind}}: {{value .Metric .Value}} ({{sigma .Deviation}} sigma)</li>
{{- end}}
</ul>
{{- end}}
{{- if .RootCauses}}
<h3>Root causes</h3>
<ul>
{{- range .RootCauses}}
<li>{{.RelatedIssue}} (confidence {{pct .Confidence}}){{range .CandidateCauses}} {{.Metric}}{{end}}</li>
{{- end}}
</ul>
{{- end}}
{{- if .Recommendations}}
<h3>Recommendations</h3>
<ol>
{{- range .Recommendations}}
<li><strong>{{.Title}}</strong> ({{.Priority}}): {{.Description}}</li>
{{- end}}
</ol>
{{- end}}
</div>
`))

type htmlView struct {
	*model.Report
	Bottlenecks     []model.Bottleneck
	Anomalies       []model.Anomaly
	RootCauses      []model.RootCause
	Recommendations []model.Recommendation
}

func formatHTML(rep *model.Report) (string, error) {
	view := htmlView{Report: rep, Recommendations: visibleRecommendations(rep)}
	if showTechnical(rep) {
		view.Bottlenecks = rep.TechnicalDetails.Bottlenecks
		view.Anomalies = visibleAnomalies(rep)
		view.RootCauses = rep.TechnicalDetails.RootCauses
	}
	var buf bytes.Buffer
	if err := htmlTmpl.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// FormatValue renders v in the unit of metric.
func FormatValue(metric string, v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Sprint(v)
	}
	switch model.LookupMetric(metric).Unit {
	case "bytes":
		return signedBytes(v)
	case "bytes/s":
		return signedBytes(v) + "/s"
	case "ms":
		return fmt.Sprintf("%.2f ms", v)
	case "fps":
		return fmt.Sprintf("%.1f fps", v)
	case "count":
		return humanize.Comma(int64(math.Round(v)))
	}
	return fmt.Sprintf("%.4g", v)
}

func signedBytes(v float64) string {
	if v < 0 {
		return "-" + humanize.IBytes(uint64(-v))
	}
	return humanize.IBytes(uint64(v))
}

func formatSigma(s model.Sigma) string {
	if s.IsInf() {
		return "inf"
	}
	return fmt.Sprintf("%.1f", float64(s))
}

func sortedMetricNames(m map[string]model.MetricSummary) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
