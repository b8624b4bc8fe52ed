package records

import (
	"errors"
	"maps"
	"time"

	"attentionguard/internal/session"
)

// ErrNotFound is returned when a backend holds no record for a source.
var ErrNotFound = errors.New("record not found")

// Record is the cross-surface accumulation for one source.
type Record struct {
	Source      string         `json:"source"`
	StartTime   time.Time      `json:"startTime"`
	Total       int            `json:"total"`
	Ads         int            `json:"ads"`
	Algorithmic int            `json:"algorithmic"`
	Social      int            `json:"social"`
	Organic     int            `json:"organic"`
	Categories  map[string]int `json:"categories"`
	Severities  map[string]int `json:"severities"`
	LastUpdate  time.Time      `json:"lastUpdate"`
}

// Empty returns a fresh record for source.
func Empty(source string, now time.Time) Record {
	return Record{
		Source:     source,
		StartTime:  now,
		Categories: map[string]int{},
		Severities: map[string]int{},
		LastUpdate: now,
	}
}

// Manipulated counts ads, algorithmic and social items.
func (r Record) Manipulated() int {
	return r.Ads + r.Algorithmic + r.Social
}

// Rate is the manipulation rate of the record, one decimal place.
func (r Record) Rate() float64 {
	return session.Rate(r.Manipulated(), r.Total)
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	out := r
	out.Categories = cloneCounts(r.Categories)
	out.Severities = cloneCounts(r.Severities)
	return out
}

// Overwrite replaces the counters with those of a reported session and
// stamps LastUpdate. The start time is kept unless the record has none.
func (r Record) Overwrite(stats session.Stats, now time.Time) Record {
	out := r
	if out.StartTime.IsZero() {
		out.StartTime = stats.StartTime
	}
	out.Total = stats.Total
	out.Ads = stats.Ads
	out.Algorithmic = stats.Algorithmic
	out.Social = stats.Social
	out.Organic = stats.Organic
	out.Categories = cloneCounts(stats.Categories)
	out.Severities = cloneCounts(stats.Severities)
	out.LastUpdate = now
	return out
}

func cloneCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	maps.Copy(out, in)
	return out
}

// Settings is the persisted configuration of the aggregator.
type Settings struct {
	DurablePersistence bool `json:"durablePersistence"`
}
