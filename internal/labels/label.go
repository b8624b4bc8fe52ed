package labels

import (
	"fmt"
	"strings"
)

// Kind is the signal type a label contributes to classification.
type Kind string

const (
	KindAd           Kind = "ad"
	KindAlgorithmic  Kind = "algorithmic"
	KindSocial       Kind = "social"
	KindOrganic      Kind = "organic"
	KindManipulation Kind = "manipulation"
)

// ParseKind converts a textual kind into a Kind.
func ParseKind(value string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(value))); k {
	case KindAd, KindAlgorithmic, KindSocial, KindOrganic, KindManipulation:
		return k, nil
	default:
		return "", fmt.Errorf("unknown label kind %q", value)
	}
}

// Severity grades how consequential a label is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityNone     Severity = "none"
)

// Severities lists the tallied buckets, most severe first. SeverityNone is
// never tallied.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// Rank orders severities: critical > high > medium > low > none. Unknown
// values rank with none.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// ParseSeverity converts a textual severity into a Severity.
func ParseSeverity(value string) (Severity, error) {
	switch s := Severity(strings.ToLower(strings.TrimSpace(value))); s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityNone:
		return s, nil
	case "":
		return SeverityNone, nil
	default:
		return "", fmt.Errorf("unknown severity %q", value)
	}
}

// Label is one immutable piece of classification evidence.
type Label struct {
	Category string   `json:"category"`
	Text     string   `json:"text"`
	Kind     Kind     `json:"type"`
	Severity Severity `json:"severity"`
}

// HighestSeverity returns the most severe label severity, or SeverityNone for
// an empty slice.
func HighestSeverity(labels []Label) Severity {
	highest := SeverityNone
	for _, l := range labels {
		if l.Severity.Rank() > highest.Rank() {
			highest = l.Severity
		}
	}
	return highest
}

// HasKind reports whether any label carries the given kind.
func HasKind(labels []Label, kind Kind) bool {
	for _, l := range labels {
		if l.Kind == kind {
			return true
		}
	}
	return false
}

// MergeByCategory appends extra labels to base, skipping any whose category is
// already present. The first label seen for a category wins.
func MergeByCategory(base []Label, extra ...Label) []Label {
	out := make([]Label, 0, len(base)+len(extra))
	seen := make(map[string]struct{}, len(base)+len(extra))
	for _, l := range base {
		out = append(out, l)
		seen[l.Category] = struct{}{}
	}
	for _, l := range extra {
		if _, ok := seen[l.Category]; ok {
			continue
		}
		seen[l.Category] = struct{}{}
		out = append(out, l)
	}
	return out
}
