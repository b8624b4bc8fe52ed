package observe

import (
	"strings"

	"attentionguard/internal/classify"
	"attentionguard/internal/labels"
	"attentionguard/internal/session"
	"attentionguard/internal/sources"
)

// Candidate is one content unit extracted from a surface.
type Candidate struct {
	// ID is a stable identifier exposed by the source. When empty the id is
	// derived from Text.
	ID     string         `json:"id,omitempty"`
	Text   string         `json:"text"`
	Labels []labels.Label `json:"labels,omitempty"`
	// Ad marks structurally identified advertising.
	Ad bool `json:"ad,omitempty"`
	// Signals are structured recommendation markers resolved through the
	// source's signal table.
	Signals []string `json:"signals,omitempty"`
}

// Result is the evaluation of one Candidate.
type Result struct {
	ID             string                  `json:"id"`
	Labels         []labels.Label          `json:"labels"`
	Classification classify.Classification `json:"classification"`
}

// Evaluator turns candidates into results for one source.
type Evaluator struct {
	Source    sources.Source
	Rules     []labels.Rule
	Normalize bool
}

// Evaluate derives the id, evidence and classification of c. Adapter labels
// come first, then signal labels, then rule matches; the first label per
// category wins.
func (e Evaluator) Evaluate(c Candidate) Result {
	text := c.Text
	if e.Normalize {
		text = labels.Normalize(text)
	}

	evidence := labels.MergeByCategory(c.Labels, e.signalLabels(c.Signals)...)
	evidence = labels.MergeByCategory(evidence, labels.Match(text, e.Rules)...)

	return Result{
		ID:             e.id(c),
		Labels:         evidence,
		Classification: classify.Classify(evidence, c.Ad),
	}
}

func (e Evaluator) id(c Candidate) string {
	prefix := e.Source.IDPrefix
	if prefix == "" {
		prefix = e.Source.ID
	}
	if id := session.NaturalID(prefix, c.ID); id != "" {
		return id
	}
	return session.GenerateID(prefix, c.Text)
}

func (e Evaluator) signalLabels(keys []string) []labels.Label {
	var out []labels.Label
	for _, key := range keys {
		if lbl, ok := e.Source.Signal(strings.TrimSpace(key)); ok {
			out = append(out, lbl)
		}
	}
	return out
}

// HasContent is the default interesting-node predicate: a Candidate with an
// id or some text.
func HasContent(node any) bool {
	switch c := node.(type) {
	case Candidate:
		return c.ID != "" || strings.TrimSpace(c.Text) != ""
	case *Candidate:
		return c != nil && (c.ID != "" || strings.TrimSpace(c.Text) != "")
	default:
		return false
	}
}
