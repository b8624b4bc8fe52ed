package sources

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"attentionguard/internal/labels"
)

func mustDefault(t *testing.T) *Registry {
	t.Helper()
	r, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	return r
}

func TestDetect(t *testing.T) {
	r := mustDefault(t)
	cases := []struct {
		address string
		want    string
	}{
		{"https://www.reddit.com/r/golang", "reddit"},
		{"https://x.com/home", "twitter"},
		{"https://TWITTER.com/someone", "twitter"},
		{"https://www.facebook.com/", "facebook"},
		{"https://www.instagram.com/explore", "instagram"},
		{"https://www.linkedin.com/feed/", "linkedin"},
		{"https://www.youtube.com/watch?v=abc", "youtube"},
		{"https://www.amazon.de/dp/B000", "amazon"},
		{"https://example.org/", ""},
		{"", ""},
	}
	for _, tc := range cases {
		src, ok := r.Detect(tc.address)
		if tc.want == "" {
			if ok {
				t.Fatalf("Detect(%q) = %s, want none", tc.address, src.ID)
			}
			continue
		}
		if !ok || src.ID != tc.want {
			t.Fatalf("Detect(%q) = %q, want %q", tc.address, src.ID, tc.want)
		}
	}
}

func TestBuiltinPresentation(t *testing.T) {
	r := mustDefault(t)
	reddit, ok := r.Lookup("Reddit")
	if !ok {
		t.Fatal("reddit not registered")
	}
	if reddit.Color != "#FF4500" || reddit.Name != "Reddit" || reddit.IDPrefix != "reddit" {
		t.Fatalf("unexpected reddit entry %+v", reddit)
	}
	twitter, _ := r.Lookup("twitter")
	if twitter.Name != "Twitter/X" || twitter.Color != "#1DA1F2" {
		t.Fatalf("unexpected twitter entry %+v", twitter)
	}
}

func TestTimings(t *testing.T) {
	r := mustDefault(t)
	amazon, _ := r.Lookup("amazon")
	if amazon.Debounce != time.Second || amazon.CheckDelay != 500*time.Millisecond {
		t.Fatalf("unexpected amazon timings %+v", amazon)
	}
	facebook, _ := r.Lookup("facebook")
	if facebook.Periodic != 30*time.Second {
		t.Fatalf("expected facebook periodic fallback, got %v", facebook.Periodic)
	}
	reddit, _ := r.Lookup("reddit")
	if reddit.Debounce != 800*time.Millisecond || reddit.CheckDelay != 0 || reddit.Periodic != 0 {
		t.Fatalf("unexpected reddit timings %+v", reddit)
	}
}

func TestBuiltinRulesMatch(t *testing.T) {
	r := mustDefault(t)
	cases := []struct {
		source   string
		text     string
		category string
		kind     labels.Kind
	}{
		{"reddit", "Promoted", "ADVERTISING", labels.KindAd},
		{"reddit", "Because you've visited r/golang", "BEHAVIORAL_TRACKING", labels.KindAlgorithmic},
		{"twitter", "Alice liked\nsome tweet body", "SOCIAL_LIKE", labels.KindSocial},
		{"twitter", "tweet body\nAd", "ADVERTISING", labels.KindAd},
		{"instagram", "Sponsored · Shop now", "ADVERTISING", labels.KindAd},
		{"linkedin", "Bob finds this insightful", "SOCIAL_REACTION", labels.KindSocial},
		{"amazon", "Only 3 left in stock", "URGENCY", labels.KindAlgorithmic},
	}
	for _, tc := range cases {
		matched := labels.Match(tc.text, r.Rules(tc.source))
		if len(matched) == 0 {
			t.Fatalf("%s: no match for %q", tc.source, tc.text)
		}
		if matched[0].Category != tc.category || matched[0].Kind != tc.kind {
			t.Fatalf("%s: got %+v, want %s/%s", tc.source, matched[0], tc.category, tc.kind)
		}
	}
	if got := labels.Match("An ordinary post about Go", r.Rules("reddit")); len(got) != 0 {
		t.Fatalf("expected no labels for organic text, got %+v", got)
	}
}

func TestRedditPromotedIsAnchored(t *testing.T) {
	r := mustDefault(t)
	for _, lbl := range labels.Match("I promoted my colleague", r.Rules("reddit")) {
		if lbl.Category == "ADVERTISING" {
			t.Fatalf("unexpected ad label %+v", lbl)
		}
	}
}

func TestSignals(t *testing.T) {
	r := mustDefault(t)
	reddit, _ := r.Lookup("reddit")
	if lbl, ok := reddit.Signal("geo_popular"); !ok || lbl.Category != "GEO_TARGETING" {
		t.Fatalf("unexpected geo_popular signal %+v %v", lbl, ok)
	}
	if _, ok := reddit.Signal("home_feed"); ok {
		t.Fatal("organic signal should not yield a label")
	}
	if _, ok := reddit.Signal("nope"); ok {
		t.Fatal("unknown signal should not yield a label")
	}
	facebook, _ := r.Lookup("facebook")
	for signal, want := range map[string]labels.Kind{
		"friend_requests": labels.KindAlgorithmic,
		"reminders":       labels.KindAlgorithmic,
		"follow_profile":  labels.KindAlgorithmic,
		"pymk_signal":     labels.KindAlgorithmic,
		"side_ads":        labels.KindAd,
	} {
		lbl, ok := facebook.Signal(signal)
		if !ok || lbl.Kind != want {
			t.Fatalf("facebook %s: unexpected label %+v %v", signal, lbl, ok)
		}
	}
	if lbl, _ := facebook.Signal("side_ads"); lbl.Severity != labels.SeverityCritical {
		t.Fatalf("side ads should be critical, got %s", lbl.Severity)
	}
}

func TestLoadAppendsRulesDir(t *testing.T) {
	dir := t.TempDir()
	pack := "source: reddit\nrules:\n  - { pattern: '(?i)crypto giveaway', category: SCAM, type: manipulation, severity: high }\n"
	if err := os.WriteFile(filepath.Join(dir, "extra.yaml"), []byte(pack), 0o644); err != nil {
		t.Fatal(err)
	}
	other := "source: mastodon\nrules:\n  - { pattern: 'Boosted', category: SOCIAL_BOOST, type: social, severity: medium }\n"
	if err := os.WriteFile(filepath.Join(dir, "mastodon.yml"), []byte(other), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	rules := r.Rules("reddit")
	if last := rules[len(rules)-1]; last.Category != "SCAM" {
		t.Fatalf("expected extra rule appended last, got %+v", last)
	}
	if len(r.Rules("mastodon")) != 1 {
		t.Fatal("expected rules for a source without detection")
	}
	if _, ok := r.Lookup("mastodon"); ok {
		t.Fatal("rule pack must not register a detectable source")
	}
}

func TestLoadRejectsBadPack(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("source: reddit\nrules:\n  - { pattern: '(', category: X, type: ad }\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestRulesReturnsCopy(t *testing.T) {
	r := mustDefault(t)
	rules := r.Rules("instagram")
	rules[0].Category = "MUTATED"
	if r.Rules("instagram")[0].Category == "MUTATED" {
		t.Fatal("Rules leaked internal slice")
	}
}
