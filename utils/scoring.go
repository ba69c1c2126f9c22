package utils

import (
	"strings"

	"databender/models"
)

// Behavior scores for engagement events
const (
	ScoreFormSubmit          = 50
	ScoreAssessmentComplete  = 40
	ScoreGuideDownload       = 75
	ScoreChatLead            = 50
	ScoreEmailOpen           = 5
	ScoreEmailClick          = 10
	ScoreSelfReportedAnswer  = 5
	ScoreDefaultPage         = 2
	ScoreReply               = 30
)

// Tier thresholds on the engagement score
const (
	TierAThreshold = 50
	TierBThreshold = 20
)

// pageScores holds the intent value of each site section. High-intent pages
// like /contact outrank content pages.
var pageScores = map[string]int{
	"/contact":          30,
	"/assessment":       25,
	"/free-assessment":  25,
	"/case-studies":     20,
	"/services":         15,
	"/resources":        15,
	"/resources/guides": 15,
	"/industries":       10,
	"/":                 5,
	"/about":            5,
	"/blog":             5,
}

// pagePrefixes is checked when no exact page match exists, so dynamic routes
// like /case-studies/some-slug still score.
var pagePrefixes = []struct {
	Prefix string
	Score  int
}{
	{"/assessment", 25},
	{"/case-studies/", 20},
	{"/services/", 15},
	{"/resources/guides/", 15},
	{"/industries/", 10},
	{"/blog/", 5},
}

// PageScore returns the intent score for a page path.
func PageScore(page string) int {
	if score, ok := pageScores[page]; ok {
		return score
	}
	for _, p := range pagePrefixes {
		if strings.HasPrefix(page, p.Prefix) {
			return p.Score
		}
	}
	return ScoreDefaultPage
}

// EventScore returns the incremental engagement score for a single
// touchpoint event.
func EventScore(eventType, page, formType string) int {
	switch eventType {
	case models.TouchpointPageview:
		return PageScore(page)
	case models.TouchpointFormSubmit:
		if strings.Contains(strings.ToLower(formType), "assessment") {
			return ScoreAssessmentComplete
		}
		return ScoreFormSubmit
	case models.TouchpointAssessmentComplete:
		return ScoreAssessmentComplete
	case models.TouchpointGuideDownload:
		return ScoreGuideDownload
	case models.TouchpointChatLead:
		return ScoreChatLead
	case models.TouchpointSelfReported:
		return ScoreSelfReportedAnswer
	}
	return 0
}

// TierForScore maps an engagement score to a lead tier.
func TierForScore(score int) string {
	if score >= TierAThreshold {
		return "A"
	}
	if score >= TierBThreshold {
		return "B"
	}
	return "C"
}
