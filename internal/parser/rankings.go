package parser

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	MinRelevanceScore = 0
	MaxRelevanceScore = 10
)

var rankingLinePattern = regexp.MustCompile(`(?i)^\s*Product\s+(\d+)\s*:.*?Score\s*:?\s*(\d+)(?:\s*/\s*10)?[^-–]*[-–]\s*(.*)$`)

type ProductRanking struct {
	Index         int
	Score         int
	Justification string
}

// ParseRankings reads "Product N: Score X - justification" lines. Lines that
// do not match, or whose N falls outside 1..count, are ignored. The first
// line for a given product wins.
func ParseRankings(text string, count int) map[int]ProductRanking {
	rankings := make(map[int]ProductRanking)

	for _, line := range strings.Split(stripEmphasis(text), "\n") {
		match := rankingLinePattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}

		index, err := strconv.Atoi(match[1])
		if err != nil || index < 1 || index > count {
			continue
		}
		if _, seen := rankings[index]; seen {
			continue
		}

		score, err := strconv.Atoi(match[2])
		if err != nil {
			continue
		}

		rankings[index] = ProductRanking{
			Index:         index,
			Score:         clampScore(score),
			Justification: strings.TrimSpace(match[3]),
		}
	}

	return rankings
}

func clampScore(score int) int {
	if score < MinRelevanceScore {
		return MinRelevanceScore
	}
	if score > MaxRelevanceScore {
		return MaxRelevanceScore
	}
	return score
}
