package utils

import (
	"net/url"
	"strings"
)

// ReferrerSource is the source/medium pair derived from a referrer URL.
type ReferrerSource struct {
	Source string
	Medium string
}

// ParseReferrerSource derives a source/medium pair from a raw referrer URL.
// An empty referrer means the visitor typed the URL or used a bookmark.
func ParseReferrerSource(referrer string) ReferrerSource {
	if referrer == "" {
		return ReferrerSource{Source: "direct", Medium: "none"}
	}

	u, err := url.Parse(referrer)
	if err != nil || u.Hostname() == "" {
		return ReferrerSource{Source: "unknown", Medium: "unknown"}
	}
	hostname := strings.ToLower(u.Hostname())

	switch {
	case strings.Contains(hostname, "google"):
		return ReferrerSource{Source: "google", Medium: "organic"}
	case strings.Contains(hostname, "bing"):
		return ReferrerSource{Source: "bing", Medium: "organic"}
	case strings.Contains(hostname, "duckduckgo"):
		return ReferrerSource{Source: "duckduckgo", Medium: "organic"}
	case strings.Contains(hostname, "facebook"), strings.Contains(hostname, "fb.com"):
		return ReferrerSource{Source: "facebook", Medium: "social"}
	case strings.Contains(hostname, "twitter"), strings.Contains(hostname, "t.co"):
		return ReferrerSource{Source: "twitter", Medium: "social"}
	case strings.Contains(hostname, "linkedin"):
		return ReferrerSource{Source: "linkedin", Medium: "social"}
	case strings.Contains(hostname, "instagram"):
		return ReferrerSource{Source: "instagram", Medium: "social"}
	case strings.Contains(hostname, "youtube"):
		return ReferrerSource{Source: "youtube", Medium: "social"}
	case strings.Contains(hostname, "reddit"):
		return ReferrerSource{Source: "reddit", Medium: "social"}
	}

	return ReferrerSource{Source: hostname, Medium: "referral"}
}

// ChannelLabel collapses a source/medium pair into the coarse channel
// bucket stored on touchpoints: paid, organic, email, social, direct,
// referral, or other. A gclid always means paid regardless of tagging.
func ChannelLabel(source, medium, gclid string) string {
	src := strings.ToLower(source)
	med := strings.ToLower(medium)

	switch {
	case gclid != "", med == "cpc", med == "paid", med == "ppc":
		return "paid"
	case med == "organic", med == "ai-search":
		return "organic"
	case med == "email", med == "newsletter":
		return "email"
	case med == "social":
		return "social"
	case src == "direct", med == "none":
		return "direct"
	case med == "referral":
		return "referral"
	}
	return "other"
}

// NormalizeToChannel maps a source/medium pair to a channel name used when
// aggregating attribution across similar sources.
func NormalizeToChannel(source, medium string) string {
	src := strings.ToLower(source)
	med := strings.ToLower(medium)

	// Paid channels
	if med == "cpc" || med == "paid" || med == "ppc" {
		switch src {
		case "google":
			return "google_ads"
		case "linkedin":
			return "linkedin_ads"
		case "facebook", "meta":
			return "meta_ads"
		}
		return "paid_other"
	}

	// Organic search
	if med == "organic" {
		return "organic_search"
	}

	// AI search
	if med == "ai-search" {
		return "ai_search"
	}

	// Social organic
	if med == "social" {
		switch src {
		case "linkedin":
			return "linkedin_organic"
		case "twitter", "x":
			return "twitter_organic"
		}
		return "social_other"
	}

	// Email
	if med == "email" || med == "newsletter" {
		return "email"
	}

	// Direct
	if src == "direct" || med == "none" {
		return "direct"
	}

	// Referral
	if med == "referral" {
		return "referral"
	}

	return "other"
}

// selfReportedMappings maps key phrases found in free-text "how did you hear
// about us" responses to channel names. Ordered so more specific phrases are
// matched before their substrings (e.g. "google ads" before "google").
var selfReportedMappings = []struct {
	Phrase  string
	Channel string
}{
	// Ads
	{"google ads", "google_ads"},
	{"advertisement", "paid_other"},

	// Search
	{"google search", "organic_search"},
	{"searched online", "organic_search"},
	{"search engine", "organic_search"},
	{"google", "organic_search"},
	{"bing", "organic_search"},
	{"duckduckgo", "organic_search"},

	// AI search
	{"chatgpt", "ai_search"},
	{"claude", "ai_search"},
	{"perplexity", "ai_search"},
	{"ai assistant", "ai_search"},

	// Social
	{"linkedin", "linkedin_organic"},
	{"twitter", "twitter_organic"},
	{"facebook", "social_other"},

	// Referral
	{"referral", "referral"},
	{"colleague", "referral"},
	{"friend", "referral"},
	{"word of mouth", "referral"},
	{"recommendation", "referral"},

	// Email
	{"newsletter", "email"},
	{"email", "email"},

	// Media
	{"podcast", "podcast"},
	{"youtube", "youtube"},
	{"blog", "content"},
	{"article", "content"},

	// Events
	{"conference", "events"},
	{"webinar", "events"},
	{"meetup", "events"},
	{"event", "events"},

	// Short tokens last, matched exactly below
	{"x", "twitter_organic"},
	{"ad", "paid_other"},
}

// NormalizeSelfReportedResponse maps a free-text survey answer to a channel
// name. Unrecognized answers get their own bucket rather than polluting an
// existing channel.
func NormalizeSelfReportedResponse(response string) string {
	normalized := strings.ToLower(strings.TrimSpace(response))

	// Exact match first so single-word answers like "x" or "ad" resolve
	for _, m := range selfReportedMappings {
		if normalized == m.Phrase {
			return m.Channel
		}
	}

	// Then substring match, skipping tokens too short to match safely
	for _, m := range selfReportedMappings {
		if len(m.Phrase) > 2 && strings.Contains(normalized, m.Phrase) {
			return m.Channel
		}
	}

	return "self_reported_other"
}
