package session

import (
	"math"
	"time"

	"attentionguard/internal/classify"
	"attentionguard/internal/labels"
)

// Item is one de-duplicated content unit. It is never mutated after insert.
type Item struct {
	ID             string                  `json:"id"`
	Classification classify.Classification `json:"classification"`
	Labels         []labels.Label          `json:"labels"`
	Timestamp      time.Time               `json:"timestamp"`
}

// Session aggregates the items observed on one surface.
type Session struct {
	StartTime   time.Time
	Total       int
	Ads         int
	Algorithmic int
	Social      int
	Organic     int
	Categories  map[string]int
	Severities  map[labels.Severity]int

	items map[string]Item
	order []string
	now   func() time.Time
}

// New returns an empty session starting now.
func New() *Session {
	return newWithClock(time.Now)
}

func newWithClock(now func() time.Time) *Session {
	s := &Session{now: now}
	s.init()
	return s
}

func (s *Session) init() {
	s.StartTime = s.now()
	s.Total = 0
	s.Ads = 0
	s.Algorithmic = 0
	s.Social = 0
	s.Organic = 0
	s.Categories = make(map[string]int)
	s.Severities = make(map[labels.Severity]int, len(labels.Severities))
	for _, sev := range labels.Severities {
		s.Severities[sev] = 0
	}
	s.items = make(map[string]Item)
	s.order = nil
}

// Has reports whether id was already inserted.
func (s *Session) Has(id string) bool {
	_, ok := s.items[id]
	return ok
}

// Add inserts a new item and updates the tallies. It returns false, and
// changes nothing, when id is already present.
func (s *Session) Add(id string, c classify.Classification, lbls []labels.Label) bool {
	if s.Has(id) {
		return false
	}

	stored := make([]labels.Label, len(lbls))
	copy(stored, lbls)
	s.items[id] = Item{ID: id, Classification: c, Labels: stored, Timestamp: s.now()}
	s.order = append(s.order, id)
	s.Total++

	switch c {
	case classify.Ad:
		s.Ads++
	case classify.Algorithmic:
		s.Algorithmic++
	case classify.Social:
		s.Social++
	default:
		s.Organic++
	}

	for _, l := range stored {
		s.Categories[l.Category]++
	}
	if sev := labels.HighestSeverity(stored); sev != labels.SeverityNone {
		s.Severities[sev]++
	}
	return true
}

// Item returns the stored item for id.
func (s *Session) Item(id string) (Item, bool) {
	item, ok := s.items[id]
	return item, ok
}

// Items returns the stored items in insertion order. Order carries no
// meaning for the counters.
func (s *Session) Items() []Item {
	out := make([]Item, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out
}

// Len returns the number of distinct items.
func (s *Session) Len() int {
	return len(s.items)
}

// Manipulated returns the number of non-organic items.
func (s *Session) Manipulated() int {
	return s.Ads + s.Algorithmic + s.Social
}

// ManipulationRate returns the non-organic share as a percentage with one
// decimal, or 0 for an empty session.
func (s *Session) ManipulationRate() float64 {
	return Rate(s.Manipulated(), s.Total)
}

// Reset replaces the session in place with a fresh empty one.
func (s *Session) Reset() {
	s.init()
}

// Rate computes round(manipulated/total*1000)/10, or 0 when total is 0.
func Rate(manipulated, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(manipulated)/float64(total)*100*10) / 10
}
