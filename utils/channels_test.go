package utils

import "testing"

func TestParseReferrerSource(t *testing.T) {
	cases := []struct {
		referrer string
		source   string
		medium   string
	}{
		{"", "direct", "none"},
		{"https://www.google.com/search?q=data+consulting", "google", "organic"},
		{"https://www.bing.com/search", "bing", "organic"},
		{"https://duckduckgo.com/", "duckduckgo", "organic"},
		{"https://www.facebook.com/", "facebook", "social"},
		{"https://t.co/abc123", "twitter", "social"},
		{"https://www.linkedin.com/feed/", "linkedin", "social"},
		{"https://www.reddit.com/r/datascience", "reddit", "social"},
		{"https://partner-site.io/resources", "partner-site.io", "referral"},
		{"not a url at all", "unknown", "unknown"},
	}
	for _, tc := range cases {
		got := ParseReferrerSource(tc.referrer)
		if got.Source != tc.source || got.Medium != tc.medium {
			t.Errorf("ParseReferrerSource(%q) = %+v, want %s/%s", tc.referrer, got, tc.source, tc.medium)
		}
	}
}

func TestChannelLabel(t *testing.T) {
	cases := []struct {
		source string
		medium string
		gclid  string
		want   string
	}{
		{"google", "cpc", "", "paid"},
		{"google", "organic", "abc123", "paid"}, // gclid wins over tagging
		{"google", "organic", "", "organic"},
		{"chatgpt", "ai-search", "", "organic"},
		{"newsletter", "email", "", "email"},
		{"linkedin", "social", "", "social"},
		{"direct", "none", "", "direct"},
		{"partner-site.io", "referral", "", "referral"},
		{"mystery", "carrier-pigeon", "", "other"},
	}
	for _, tc := range cases {
		if got := ChannelLabel(tc.source, tc.medium, tc.gclid); got != tc.want {
			t.Errorf("ChannelLabel(%q, %q, %q) = %q, want %q", tc.source, tc.medium, tc.gclid, got, tc.want)
		}
	}
}

func TestNormalizeToChannel(t *testing.T) {
	cases := []struct {
		source string
		medium string
		want   string
	}{
		{"google", "cpc", "google_ads"},
		{"linkedin", "paid", "linkedin_ads"},
		{"meta", "ppc", "meta_ads"},
		{"reddit", "cpc", "paid_other"},
		{"google", "organic", "organic_search"},
		{"perplexity", "ai-search", "ai_search"},
		{"linkedin", "social", "linkedin_organic"},
		{"x", "social", "twitter_organic"},
		{"hn", "social", "social_other"},
		{"databender", "newsletter", "email"},
		{"direct", "none", "direct"},
		{"partner-site.io", "referral", "referral"},
		{"", "", "other"},
	}
	for _, tc := range cases {
		if got := NormalizeToChannel(tc.source, tc.medium); got != tc.want {
			t.Errorf("NormalizeToChannel(%q, %q) = %q, want %q", tc.source, tc.medium, got, tc.want)
		}
	}
}

func TestNormalizeSelfReportedResponse(t *testing.T) {
	cases := []struct {
		response string
		want     string
	}{
		{"I saw a Google Ads campaign", "google_ads"},
		{"google", "organic_search"},
		{"Found you on Google search", "organic_search"},
		{"ChatGPT recommended you", "ai_search"},
		{"Saw a post on LinkedIn", "linkedin_organic"},
		{"A colleague told me", "referral"},
		{"word of mouth", "referral"},
		{"your newsletter", "email"},
		{"met you at a conference", "events"},
		{"heard about you on a podcast", "podcast"},
		// Short tokens only match exactly, never as substrings
		{"x", "twitter_organic"},
		{"ad", "paid_other"},
		{"I read about data pipelines", "self_reported_other"},
		{"", "self_reported_other"},
		{"   LinkedIn   ", "linkedin_organic"},
	}
	for _, tc := range cases {
		if got := NormalizeSelfReportedResponse(tc.response); got != tc.want {
			t.Errorf("NormalizeSelfReportedResponse(%q) = %q, want %q", tc.response, got, tc.want)
		}
	}
}
