package labels

import (
	"regexp"
	"strings"
	"testing"
)

func testRules() []Rule {
	return []Rule{
		{Pattern: regexp.MustCompile(`(?i)sponsored`), Category: "ADVERTISING", Kind: KindAd, Severity: SeverityCritical},
		{Pattern: regexp.MustCompile(`(?i)suggested for you`), Category: "SUGGESTED", Kind: KindAlgorithmic, Severity: SeverityHigh},
		{Pattern: regexp.MustCompile(`(?i)because you follow`), Category: "SOCIAL_GRAPH", Kind: KindSocial, Severity: SeverityMedium},
	}
}

func TestMatchEmitsOneLabelPerMatchingRuleInOrder(t *testing.T) {
	got := Match("Because you follow r/golang · Suggested for you", testRules())
	if len(got) != 2 {
		t.Fatalf("expected 2 labels, got %d: %#v", len(got), got)
	}
	if got[0].Category != "SUGGESTED" || got[1].Category != "SOCIAL_GRAPH" {
		t.Fatalf("labels out of rule order: %#v", got)
	}
	if got[0].Text != "Suggested for you" {
		t.Fatalf("unexpected evidence %q", got[0].Text)
	}
	if got[1].Kind != KindSocial || got[1].Severity != SeverityMedium {
		t.Fatalf("rule fields not carried: %#v", got[1])
	}
}

func TestMatchNoMatchAndNilPattern(t *testing.T) {
	rules := append(testRules(), Rule{Category: "BROKEN", Kind: KindAd})
	if got := Match("an ordinary post about gardening", rules); len(got) != 0 {
		t.Fatalf("expected no labels, got %#v", got)
	}
	if got := Match("", nil); got != nil {
		t.Fatalf("expected nil for no rules, got %#v", got)
	}
}

func TestMatchTruncatesEvidence(t *testing.T) {
	long := strings.Repeat("é", 80)
	rules := []Rule{{Pattern: regexp.MustCompile(`é+`), Category: "LONG", Kind: KindOrganic, Severity: SeverityNone}}
	got := Match(long, rules)
	if len(got) != 1 {
		t.Fatalf("expected a match, got %#v", got)
	}
	if n := len([]rune(got[0].Text)); n != MaxEvidenceLength {
		t.Fatalf("expected %d characters of evidence, got %d", MaxEvidenceLength, n)
	}
}

func TestNormalizeFoldsStyledLetters(t *testing.T) {
	styled := "𝗦𝗽𝗼𝗻𝘀𝗼𝗿𝗲𝗱"
	if got := Match(styled, testRules()); len(got) != 0 {
		t.Fatalf("styled text should not match raw rules, got %#v", got)
	}
	got := Match(Normalize(styled), testRules())
	if len(got) != 1 || got[0].Category != "ADVERTISING" {
		t.Fatalf("expected normalized text to match, got %#v", got)
	}
}

func TestHighestSeverity(t *testing.T) {
	cases := []struct {
		name   string
		labels []Label
		want   Severity
	}{
		{"empty", nil, SeverityNone},
		{"only none", []Label{{Severity: SeverityNone}}, SeverityNone},
		{"low and high", []Label{{Severity: SeverityLow}, {Severity: SeverityHigh}}, SeverityHigh},
		{"critical wins", []Label{{Severity: SeverityMedium}, {Severity: SeverityCritical}, {Severity: SeverityHigh}}, SeverityCritical},
		{"unknown ranks as none", []Label{{Severity: "weird"}, {Severity: SeverityLow}}, SeverityLow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := HighestSeverity(tc.labels); got != tc.want {
				t.Fatalf("HighestSeverity = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMergeByCategoryKeepsFirst(t *testing.T) {
	base := []Label{{Category: "ADVERTISING", Text: "Promoted", Kind: KindAd}}
	merged := MergeByCategory(base,
		Label{Category: "ADVERTISING", Text: "Sponsored", Kind: KindAd},
		Label{Category: "TRENDING", Text: "Trending", Kind: KindAlgorithmic},
	)
	if len(merged) != 2 {
		t.Fatalf("expected 2 labels, got %#v", merged)
	}
	if merged[0].Text != "Promoted" || merged[1].Category != "TRENDING" {
		t.Fatalf("unexpected merge result %#v", merged)
	}
}
