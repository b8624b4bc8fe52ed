package sources

import (
	"regexp"
	"time"

	"attentionguard/internal/labels"
)

// Source describes one supported platform.
type Source struct {
	ID       string
	Name     string
	Color    string
	Pattern  *regexp.Regexp
	IDPrefix string

	Debounce   time.Duration
	CheckDelay time.Duration
	Periodic   time.Duration

	// Signals maps structured recommendation markers an adapter can read
	// off an item to the label they imply. A zero Kind means the marker
	// denotes organic content and yields no label.
	Signals map[string]labels.Label
}

// Signal resolves a structured marker. ok is false for unknown markers and
// for markers that denote organic content.
func (s Source) Signal(key string) (labels.Label, bool) {
	lbl, ok := s.Signals[key]
	if !ok || lbl.Kind == "" || lbl.Kind == labels.KindOrganic {
		return labels.Label{}, false
	}
	return lbl, true
}

// Builtin returns the built-in sources in detection order. The first source
// whose pattern matches an address wins.
func Builtin() []Source {
	return []Source{
		{
			ID:       "reddit",
			Name:     "Reddit",
			Color:    "#FF4500",
			Pattern:  regexp.MustCompile(`(?i)reddit\.com`),
			IDPrefix: "reddit",
			Debounce: 800 * time.Millisecond,
			Signals: map[string]labels.Label{
				"geo_popular":              {Category: "GEO_TARGETING", Text: "Popular near you", Kind: labels.KindAlgorithmic, Severity: labels.SeverityMedium},
				"user_to_post":             {Category: "PERSONALIZED", Text: "Suggested for you", Kind: labels.KindAlgorithmic, Severity: labels.SeverityHigh},
				"good_visits_on_subreddit": {Category: "BEHAVIORAL_TRACKING", Text: "Because you've visited", Kind: labels.KindAlgorithmic, Severity: labels.SeverityHigh},
				"responsive_post_to_post":  {Category: "RELATED_CONTENT", Text: "Related to posts you viewed", Kind: labels.KindAlgorithmic, Severity: labels.SeverityMedium},
				"top_feed":                 {Category: "TRENDING", Text: "Top feed", Kind: labels.KindAlgorithmic, Severity: labels.SeverityLow},
				"home_feed":                {Category: "ORGANIC", Kind: labels.KindOrganic},
				"subreddit_page":           {Category: "ORGANIC", Kind: labels.KindOrganic},
			},
		},
		{
			ID:       "twitter",
			Name:     "Twitter/X",
			Color:    "#1DA1F2",
			Pattern:  regexp.MustCompile(`(?i)(twitter\.com|x\.com)`),
			IDPrefix: "tweet",
			Debounce: 800 * time.Millisecond,
			Signals: map[string]labels.Label{
				"for_you": {Category: "ALGORITHM_SELECTED", Text: "Selected by For You algorithm", Kind: labels.KindAlgorithmic, Severity: labels.SeverityLow},
			},
		},
		{
			ID:       "facebook",
			Name:     "Facebook",
			Color:    "#1877F2",
			Pattern:  regexp.MustCompile(`(?i)facebook\.com`),
			IDPrefix: "fb",
			Debounce: time.Second,
			Periodic: 30 * time.Second,
			Signals: map[string]labels.Label{
				"sponsored":             {Category: "SPONSORED_POST", Text: "Sponsored", Kind: labels.KindAd, Severity: labels.SeverityCritical},
				"people_you_may_know":   {Category: "PEOPLE_YOU_MAY_KNOW", Text: "People You May Know", Kind: labels.KindAlgorithmic, Severity: labels.SeverityHigh},
				"suggested_groups":      {Category: "SUGGESTED_GROUPS", Text: "Suggested Groups", Kind: labels.KindAlgorithmic, Severity: labels.SeverityHigh},
				"reels":                 {Category: "REELS", Text: "Reels", Kind: labels.KindAlgorithmic, Severity: labels.SeverityHigh},
				"watch_feed":            {Category: "WATCH_FEED", Text: "Watch Feed", Kind: labels.KindAlgorithmic, Severity: labels.SeverityHigh},
				"suggested_follows":     {Category: "SUGGESTED_FOLLOWS", Text: "Suggested Follows", Kind: labels.KindAlgorithmic, Severity: labels.SeverityHigh},
				"follow_profile":        {Category: "FOLLOW_PROFILE", Text: "Follow Profile Links", Kind: labels.KindAlgorithmic, Severity: labels.SeverityHigh},
				"pymk_signal":           {Category: "PYMK_SIGNAL", Text: "PYMK Signal", Kind: labels.KindAlgorithmic, Severity: labels.SeverityHigh},
				"friend_requests":       {Category: "FRIEND_REQUESTS", Text: "Friend Requests", Kind: labels.KindAlgorithmic, Severity: labels.SeverityHigh},
				"reminders":             {Category: "REMINDERS", Text: "Reminders", Kind: labels.KindAlgorithmic, Severity: labels.SeverityHigh},
				"side_ads":              {Category: "SIDE_ADS", Text: "Side Ads", Kind: labels.KindAd, Severity: labels.SeverityCritical},
				"friend_activity":       {Category: "SOCIAL_CONTEXT", Text: "Friend activity", Kind: labels.KindSocial, Severity: labels.SeverityMedium},
				"infinite_scroll":       {Category: "INFINITE_SCROLL", Text: "Infinite scroll", Kind: labels.KindManipulation, Severity: labels.SeverityLow},
				"autoplay":              {Category: "AUTOPLAY", Text: "Autoplay", Kind: labels.KindManipulation, Severity: labels.SeverityLow},
				"notification_pressure": {Category: "NOTIFICATION_PRESSURE", Text: "Unread badge counts", Kind: labels.KindManipulation, Severity: labels.SeverityMedium},
			},
		},
		{
			ID:       "instagram",
			Name:     "Instagram",
			Color:    "#E1306C",
			Pattern:  regexp.MustCompile(`(?i)instagram\.com`),
			IDPrefix: "ig",
			Debounce: time.Second,
		},
		{
			ID:       "linkedin",
			Name:     "LinkedIn",
			Color:    "#0A66C2",
			Pattern:  regexp.MustCompile(`(?i)linkedin\.com`),
			IDPrefix: "li",
			Debounce: 800 * time.Millisecond,
		},
		{
			ID:       "youtube",
			Name:     "YouTube",
			Color:    "#FF0000",
			Pattern:  regexp.MustCompile(`(?i)youtube\.com`),
			IDPrefix: "yt",
			Debounce: time.Second,
			Signals: map[string]labels.Label{
				"short":       {Category: "SHORTS", Text: "YouTube Short", Kind: labels.KindAlgorithmic, Severity: labels.SeverityMedium},
				"recommended": {Category: "RECOMMENDED", Text: "Algorithm recommended", Kind: labels.KindAlgorithmic, Severity: labels.SeverityMedium},
				"subscribed":  {Category: "SUBSCRIBED", Kind: labels.KindOrganic},
			},
		},
		{
			ID:         "amazon",
			Name:       "Amazon",
			Color:      "#FF9900",
			Pattern:    regexp.MustCompile(`(?i)amazon\.`),
			IDPrefix:   "amz",
			Debounce:   time.Second,
			CheckDelay: 500 * time.Millisecond,
			Signals: map[string]labels.Label{
				"strikethrough_price": {Category: "PRICE_ANCHORING", Text: "Strikethrough pricing", Kind: labels.KindAlgorithmic, Severity: labels.SeverityMedium},
				"coupon":              {Category: "COUPON", Text: "Coupon prompt", Kind: labels.KindAlgorithmic, Severity: labels.SeverityLow},
			},
		},
	}
}
