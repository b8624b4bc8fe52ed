package labels

import (
	"regexp"

	"golang.org/x/text/unicode/norm"
)

// MaxEvidenceLength bounds the evidence snippet captured from a match.
const MaxEvidenceLength = 50

// Rule pairs a compiled pattern with the label it produces.
type Rule struct {
	Pattern  *regexp.Regexp
	Category string
	Kind     Kind
	Severity Severity
}

// Match tests text against every rule in order and returns one label per
// matching rule. The evidence text is the matched substring truncated to
// MaxEvidenceLength characters. Rules without a pattern never match.
func Match(text string, rules []Rule) []Label {
	var matches []Label
	for _, rule := range rules {
		if rule.Pattern == nil {
			continue
		}
		loc := rule.Pattern.FindStringIndex(text)
		if loc == nil {
			continue
		}
		matches = append(matches, Label{
			Category: rule.Category,
			Text:     truncate(text[loc[0]:loc[1]], MaxEvidenceLength),
			Kind:     rule.Kind,
			Severity: rule.Severity,
		})
	}
	return matches
}

// Normalize folds compatibility characters (styled letters, full-width forms,
// ligatures) to their plain equivalents so rules written against plain text
// still match.
func Normalize(text string) string {
	return norm.NFKC.String(text)
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}
