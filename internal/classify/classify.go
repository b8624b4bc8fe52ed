// Package classify resolves a set of labels into one of four mutually
// exclusive classifications.
package classify

import (
	"fmt"
	"strings"

	"attentionguard/internal/labels"
)

// Classification is the verdict assigned to one content unit.
type Classification string

const (
	Ad          Classification = "ad"
	Algorithmic Classification = "algorithmic"
	Social      Classification = "social"
	Organic     Classification = "organic"
)

// All lists the classifications in priority order.
var All = []Classification{Ad, Social, Algorithmic, Organic}

// Manipulated reports whether the classification counts toward the
// manipulation rate.
func (c Classification) Manipulated() bool {
	return c == Ad || c == Algorithmic || c == Social
}

// Parse converts a textual classification into a Classification.
func Parse(value string) (Classification, error) {
	switch c := Classification(strings.ToLower(strings.TrimSpace(value))); c {
	case Ad, Algorithmic, Social, Organic:
		return c, nil
	default:
		return "", fmt.Errorf("unknown classification %q", value)
	}
}

// Classify applies the fixed priority ad > social > algorithmic > organic.
// Paid placement pre-empts every other signal; social framing outranks
// generic algorithmic curation. Label order does not matter.
func Classify(lbls []labels.Label, explicitAd bool) Classification {
	switch {
	case explicitAd || labels.HasKind(lbls, labels.KindAd):
		return Ad
	case labels.HasKind(lbls, labels.KindSocial):
		return Social
	case labels.HasKind(lbls, labels.KindAlgorithmic):
		return Algorithmic
	default:
		return Organic
	}
}
