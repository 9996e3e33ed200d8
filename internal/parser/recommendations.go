package parser

import (
	"regexp"
	"strings"
)

const (
	WhyRecommendedLabel  = "Why Recommended:"
	OverallAnalysisLabel = "Overall Analysis:"

	// reasonWindow bounds how far below a title line the reason may appear.
	reasonWindow = 5
)

var overallAnalysisPattern = regexp.MustCompile(`(?i)Overall\s+Analysis\s*:`)

// ExtractReason finds the first line mentioning title and returns the
// "Why Recommended:" text within the next few lines.
func ExtractReason(text, title string) (string, bool) {
	if strings.TrimSpace(title) == "" {
		return "", false
	}

	lines := strings.Split(text, "\n")
	needle := strings.ToLower(strings.TrimSpace(title))

	for i, line := range lines {
		if !strings.Contains(strings.ToLower(line), needle) {
			continue
		}

		last := min(i+reasonWindow, len(lines)-1)
		for j := i + 1; j <= last; j++ {
			candidate := cleanBullet(lines[j])
			if len(candidate) < len(WhyRecommendedLabel) ||
				!strings.EqualFold(candidate[:len(WhyRecommendedLabel)], WhyRecommendedLabel) {
				continue
			}
			if reason := strings.TrimSpace(candidate[len(WhyRecommendedLabel):]); reason != "" {
				return reason, true
			}
		}
		return "", false
	}

	return "", false
}

// ExtractAnalysis returns the text after "Overall Analysis:", or "".
func ExtractAnalysis(text string) string {
	loc := overallAnalysisPattern.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	return strings.TrimSpace(stripEmphasis(text[loc[1]:]))
}
