package model

import (
	"fmt"
	"sort"
	"strings"
)

// Severity ranks findings. The zero value means "no finding".
// Ordering is total: critical > high > medium > low > none.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	}
	return "unknown"
}

// Rank returns the sort weight of s. Unknown values rank below none.
func (s Severity) Rank() int {
	if s < SeverityNone || s > SeverityCritical {
		return -1
	}
	return int(s)
}

// ParseSeverity accepts the lower-case names produced by String.
func ParseSeverity(v string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "none", "":
		return SeverityNone, nil
	case "low":
		return SeverityLow, nil
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	case "critical":
		return SeverityCritical, nil
	}
	return SeverityNone, fmt.Errorf("unknown severity %q", v)
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// SortBySeverity returns a copy of in ordered most severe first.
func SortBySeverity(in []Severity) []Severity {
	out := make([]Severity, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Rank() > out[j].Rank()
	})
	return out
}
