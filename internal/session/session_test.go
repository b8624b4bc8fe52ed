package session

import (
	"fmt"
	"testing"
	"time"

	"attentionguard/internal/classify"
	"attentionguard/internal/labels"
)

func fixedClock() func() time.Time {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return func() time.Time { return base }
}

func assertCountersConsistent(t *testing.T, s *Session) {
	t.Helper()
	if sum := s.Ads + s.Algorithmic + s.Social + s.Organic; sum != s.Total {
		t.Fatalf("counters sum to %d, total is %d", sum, s.Total)
	}
	if s.Total != s.Len() {
		t.Fatalf("total %d does not match %d stored items", s.Total, s.Len())
	}
}

func TestAddDeduplicatesRepeatedIDs(t *testing.T) {
	s := New()
	ids := []string{"a", "b", "a", "c", "b", "a", "d"}
	distinct := map[string]struct{}{}
	for i, id := range ids {
		c := classify.All[i%len(classify.All)]
		inserted := s.Add(id, c, nil)
		_, seen := distinct[id]
		if inserted == seen {
			t.Fatalf("Add(%q) returned %v, already seen=%v", id, inserted, seen)
		}
		distinct[id] = struct{}{}
		assertCountersConsistent(t, s)
	}
	if s.Total != len(distinct) {
		t.Fatalf("expected total %d, got %d", len(distinct), s.Total)
	}
}

func TestAddIgnoresLaterClassificationForSameID(t *testing.T) {
	s := New()
	s.Add("x", classify.Organic, nil)
	if s.Add("x", classify.Ad, []labels.Label{{Category: "ADVERTISING", Kind: labels.KindAd, Severity: labels.SeverityCritical}}) {
		t.Fatal("second add of same id should be a no-op")
	}
	if s.Ads != 0 || s.Organic != 1 || len(s.Categories) != 0 || s.Severities[labels.SeverityCritical] != 0 {
		t.Fatalf("re-observation mutated counters: %+v", s.Stats())
	}
	item, ok := s.Item("x")
	if !ok || item.Classification != classify.Organic {
		t.Fatalf("unexpected stored item %#v", item)
	}
}

func TestAddTalliesCategoriesAndHighestSeverity(t *testing.T) {
	s := New()
	s.Add("p1", classify.Ad, []labels.Label{
		{Category: "ADVERTISING", Kind: labels.KindAd, Severity: labels.SeverityCritical},
		{Category: "TRENDING", Kind: labels.KindAlgorithmic, Severity: labels.SeverityLow},
	})
	s.Add("p2", classify.Algorithmic, []labels.Label{
		{Category: "TRENDING", Kind: labels.KindAlgorithmic, Severity: labels.SeverityLow},
	})
	s.Add("p3", classify.Organic, []labels.Label{
		{Category: "SUBSCRIBED", Kind: labels.KindOrganic, Severity: labels.SeverityNone},
	})

	if s.Categories["ADVERTISING"] != 1 || s.Categories["TRENDING"] != 2 || s.Categories["SUBSCRIBED"] != 1 {
		t.Fatalf("unexpected categories %#v", s.Categories)
	}
	if s.Severities[labels.SeverityCritical] != 1 || s.Severities[labels.SeverityLow] != 1 {
		t.Fatalf("unexpected severities %#v", s.Severities)
	}
	if _, ok := s.Severities[labels.SeverityNone]; ok {
		t.Fatal("none severity must not be tallied")
	}
}

func TestManipulationRate(t *testing.T) {
	s := New()
	if s.ManipulationRate() != 0 {
		t.Fatal("empty session must have rate 0")
	}
	s.Add("a", classify.Ad, nil)
	s.Add("b", classify.Organic, nil)
	s.Add("c", classify.Organic, nil)
	first := s.ManipulationRate()
	if first != 33.3 {
		t.Fatalf("expected 33.3, got %v", first)
	}
	if again := s.ManipulationRate(); again != first {
		t.Fatalf("rate not reproducible: %v then %v", first, again)
	}
}

func TestRate(t *testing.T) {
	cases := []struct {
		manipulated, total int
		want               float64
	}{
		{0, 0, 0},
		{0, 4, 0},
		{2, 3, 66.7},
		{1, 8, 12.5},
		{4, 4, 100},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d_of_%d", tc.manipulated, tc.total), func(t *testing.T) {
			if got := Rate(tc.manipulated, tc.total); got != tc.want {
				t.Fatalf("Rate = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEndToEndAdSocialDuplicate(t *testing.T) {
	s := New()
	s.Add("a", classify.Ad, nil)
	s.Add("b", classify.Social, nil)
	s.Add("a", classify.Ad, nil)

	if s.Total != 2 || s.Ads != 1 || s.Social != 1 || s.Algorithmic != 0 || s.Organic != 0 {
		t.Fatalf("unexpected session %+v", s.Stats())
	}
	if s.ManipulationRate() != 100.0 {
		t.Fatalf("expected rate 100, got %v", s.ManipulationRate())
	}
}

func TestAllOrganicRateIsZero(t *testing.T) {
	s := New()
	for i := 0; i < 4; i++ {
		s.Add(fmt.Sprintf("o%d", i), classify.Organic, nil)
	}
	if s.Total != 4 || s.Organic != 4 || s.ManipulationRate() != 0 {
		t.Fatalf("unexpected session %+v", s.Stats())
	}
}

func TestResetClearsEverything(t *testing.T) {
	s := newWithClock(fixedClock())
	s.Add("a", classify.Ad, []labels.Label{{Category: "ADVERTISING", Kind: labels.KindAd, Severity: labels.SeverityCritical}})
	s.Reset()
	if s.Total != 0 || s.Len() != 0 || len(s.Categories) != 0 || s.Severities[labels.SeverityCritical] != 0 {
		t.Fatalf("reset left state behind: %+v", s.Stats())
	}
	if !s.Add("a", classify.Organic, nil) {
		t.Fatal("id should be insertable again after reset")
	}
}

func TestItemsPreserveInsertionOrder(t *testing.T) {
	s := New()
	for _, id := range []string{"z", "a", "m", "a"} {
		s.Add(id, classify.Organic, nil)
	}
	items := s.Items()
	if len(items) != 3 || items[0].ID != "z" || items[1].ID != "a" || items[2].ID != "m" {
		t.Fatalf("unexpected order %#v", items)
	}
}

func TestStatsSnapshotIsDetached(t *testing.T) {
	s := newWithClock(fixedClock())
	s.Add("a", classify.Algorithmic, []labels.Label{{Category: "TRENDING", Kind: labels.KindAlgorithmic, Severity: labels.SeverityLow}})
	stats := s.Stats()
	stats.Categories["TRENDING"] = 99
	if s.Categories["TRENDING"] != 1 {
		t.Fatal("stats map aliases session state")
	}
	if stats.Rate != 100 || stats.Severities["low"] != 1 || !stats.StartTime.Equal(fixedClock()()) {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
