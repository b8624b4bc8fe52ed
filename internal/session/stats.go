package session

import (
	"time"

	"attentionguard/internal/labels"
)

// Stats is the cumulative snapshot a surface reports to the aggregator.
type Stats struct {
	StartTime   time.Time      `json:"startTime"`
	Total       int            `json:"total"`
	Ads         int            `json:"ads"`
	Algorithmic int            `json:"algorithmic"`
	Social      int            `json:"social"`
	Organic     int            `json:"organic"`
	Categories  map[string]int `json:"categories"`
	Severities  map[string]int `json:"severities,omitempty"`
	Rate        float64        `json:"rate"`
}

// Stats snapshots the session counters. The maps are copies.
func (s *Session) Stats() Stats {
	categories := make(map[string]int, len(s.Categories))
	for k, v := range s.Categories {
		categories[k] = v
	}
	severities := make(map[string]int, len(s.Severities))
	for _, sev := range labels.Severities {
		severities[string(sev)] = s.Severities[sev]
	}
	return Stats{
		StartTime:   s.StartTime,
		Total:       s.Total,
		Ads:         s.Ads,
		Algorithmic: s.Algorithmic,
		Social:      s.Social,
		Organic:     s.Organic,
		Categories:  categories,
		Severities:  severities,
		Rate:        s.ManipulationRate(),
	}
}
