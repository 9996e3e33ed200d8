package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"shopping-assistant-pipeline/internal/models"
	"shopping-assistant-pipeline/internal/parser"
	"shopping-assistant-pipeline/internal/pkg/logger"
	"shopping-assistant-pipeline/internal/scoring"
)

const (
	// RankedLimit caps the ranked list and the products sent for model scoring.
	RankedLimit = 10
	// TopRecommendations is the size of the recommended set.
	TopRecommendations = 3
	describeLimit      = 5

	noRankingInfo      = "No specific ranking information available."
	defaultTopText     = "Based on your search, these are the best options available."
	fallbackTopText    = "Based on your search, these products might be a good match."
	noProductsText     = "No products found."
	noMatchingProducts = "No products matched your criteria."
)

// RankReport describes how the ranking stage arrived at its result.
type RankReport struct {
	Scored             int  `json:"scored"`
	OverBudget         int  `json:"over_budget"`
	Analysed           int  `json:"analysed"`
	RankingsParsed     int  `json:"rankings_parsed"`
	DescriptionsFailed bool `json:"descriptions_failed"`
	Fallback           bool `json:"fallback"`
}

type Ranker struct {
	generator TextGenerator
	logger    *logger.Logger
}

func NewRanker(generator TextGenerator, log *logger.Logger) *Ranker {
	return &Ranker{generator: generator, logger: log}
}

// Rank scores, orders and describes the candidates. When the relevance call
// fails the result is built by rating order instead and the error is returned
// alongside it.
func (r *Ranker) Rank(ctx context.Context, candidates []models.Candidate, query models.QueryContext) (models.RankResult, RankReport, error) {
	startTime := time.Now()
	var report RankReport

	if len(candidates) == 0 {
		return emptyRankResult(noProductsText), report, nil
	}

	titled := scoring.FilterTitled(candidates)
	if len(titled) == 0 {
		return emptyRankResult(noMatchingProducts), report, nil
	}

	report.Scored = len(titled)
	report.OverBudget = scoring.ApplyHeuristics(titled, query.MaxPrice)

	scoring.SortByHeuristic(titled)
	for i := range titled {
		titled[i].RankReason = models.DefaultRankReason
	}
	analysed := titled[:min(len(titled), RankedLimit)]
	report.Analysed = len(analysed)

	response, err := r.generator.Chat(ctx, systemUser(
		"You are a shopping assistant that ranks products by how well they match a search.",
		buildRankingPrompt(analysed, query),
	))
	if err != nil {
		report.Fallback = true
		r.logger.LogAgent("", string(models.StageRank), "rank", time.Since(startTime), map[string]any{
			"candidates": len(titled),
			"fallback":   true,
		}, err)
		return r.fallback(titled, query), report, fmt.Errorf("relevance ranking failed: %w", err)
	}

	rankings := parser.ParseRankings(response, len(analysed))
	report.RankingsParsed = len(rankings)
	for i := range analysed {
		if ranking, ok := rankings[i+1]; ok {
			scoring.ApplyRelevance(&analysed[i], ranking.Score)
			analysed[i].RankReason = ranking.Justification
			continue
		}
		scoring.ApplyRelevance(&analysed[i], 0)
		analysed[i].RankReason = noRankingInfo
	}

	topText := r.describe(ctx, analysed, query, &report)

	scoring.SortByScore(titled)
	ranked := titled[:min(len(titled), RankedLimit)]
	scoring.AssignRanks(ranked)
	markGenericReasons(ranked)

	r.logger.LogAgent("", string(models.StageRank), "rank", time.Since(startTime), map[string]any{
		"candidates":      len(titled),
		"ranked":          len(ranked),
		"over_budget":     report.OverBudget,
		"rankings_parsed": report.RankingsParsed,
	}, nil)

	return models.RankResult{
		Ranked: ranked,
		Recommendations: models.Recommendations{
			Text:     topText,
			Products: topCopies(ranked, TopRecommendations),
		},
	}, report, nil
}

// describe fills descriptions for the analysed candidates and returns the
// top recommendation text.
func (r *Ranker) describe(ctx context.Context, analysed []models.Candidate, query models.QueryContext, report *RankReport) string {
	described := analysed[:min(len(analysed), describeLimit)]

	response, err := r.generator.Chat(ctx, systemUser(
		"You are a shopping assistant that writes short product descriptions.",
		buildDescriptionPrompt(described, query),
	))
	if err != nil {
		r.logger.WithError(err).Warn("Description generation failed, using generic descriptions")
		report.DescriptionsFailed = true
		for i := range analysed {
			analysed[i].Description = fmt.Sprintf("This product matches your search for '%s'.", query.Original)
		}
		return defaultTopText
	}

	parsed := parser.ParseDescriptions(response)
	for i := range described {
		if description, ok := parsed.Descriptions[i+1]; ok && description != "" {
			described[i].Description = description
			continue
		}
		described[i].Description = fmt.Sprintf("This %s appears to be a good match for your search.", described[i].Title)
	}

	for i := len(described); i < len(analysed); i++ {
		analysed[i].Description = borrowedDescription(analysed[i].Title, described, query.Original)
	}

	if text := strings.TrimSpace(parsed.TopRecommendations); text != "" {
		return text
	}
	return defaultTopText
}

// borrowedDescription reuses the description of a similarly titled product.
func borrowedDescription(title string, described []models.Candidate, query string) string {
	for _, other := range described {
		if scoring.SimilarTitles(title, other.Title) && other.Description != "" {
			return other.Description
		}
	}
	return fmt.Sprintf("This product appears to match your search for '%s'.", query)
}

func (r *Ranker) fallback(titled []models.Candidate, query models.QueryContext) models.RankResult {
	scoring.SortByRating(titled)
	ranked := titled[:min(len(titled), RankedLimit)]
	scoring.AssignRanks(ranked)

	for i := range ranked {
		ranked[i].RankReason = models.DefaultRankReason
		ranked[i].Description = fmt.Sprintf("This product matches your search for '%s'.", query.Original)
	}
	markGenericReasons(ranked)

	return models.RankResult{
		Ranked: ranked,
		Recommendations: models.Recommendations{
			Text:     fallbackTopText,
			Products: topCopies(ranked, TopRecommendations),
		},
	}
}

func emptyRankResult(text string) models.RankResult {
	return models.RankResult{
		Ranked: []models.Candidate{},
		Recommendations: models.Recommendations{
			Text:     text,
			Products: []models.Candidate{},
		},
	}
}

// markGenericReasons gives every ranked candidate the generic recommendation
// reason; the composer overwrites it for the top picks.
func markGenericReasons(ranked []models.Candidate) {
	for i := range ranked {
		ranked[i].RecommendationReason = models.DefaultRecommendWhy
	}
}

func topCopies(ranked []models.Candidate, n int) []models.Candidate {
	top := make([]models.Candidate, min(len(ranked), n))
	copy(top, ranked)
	return top
}

func buildRankingPrompt(candidates []models.Candidate, query models.QueryContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User query: %s\n", query.Original)
	if query.Restructured != "" && query.Restructured != query.Original {
		fmt.Fprintf(&b, "Search query: %s\n", query.Restructured)
	}
	if query.MaxPrice != nil {
		fmt.Fprintf(&b, "Budget: %s euros\n", FormatPrice(*query.MaxPrice))
	}
	if query.Requirements != "" {
		fmt.Fprintf(&b, "Requirements: %s\n", query.Requirements)
	}

	b.WriteString("\nProducts:\n")
	writeProductList(&b, candidates)

	b.WriteString(`
Rate how well each product matches the user's query on a scale of 0 to 10.
Respond with exactly one line per product in this format:
Product N: Score X - short justification`)

	return b.String()
}

func buildDescriptionPrompt(candidates []models.Candidate, query models.QueryContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User query: %s\n\nProducts:\n", query.Original)
	writeProductList(&b, candidates)

	b.WriteString(`
For each product write two or three sentences describing why it suits the query.
Use this layout:

PRODUCT 1 DESCRIPTION:
...

PRODUCT 2 DESCRIPTION:
...

TOP RECOMMENDATIONS:
A short paragraph naming the best options.`)

	return b.String()
}

func writeProductList(b *strings.Builder, candidates []models.Candidate) {
	for i, c := range candidates {
		fmt.Fprintf(b, "Product %d: %s\n", i+1, c.Title)
		if c.PriceDisplay != "" {
			fmt.Fprintf(b, "  Price: %s\n", c.PriceDisplay)
		} else if c.Price != nil {
			fmt.Fprintf(b, "  Price: %s\n", FormatPrice(*c.Price))
		}
		if c.Rating != nil {
			fmt.Fprintf(b, "  Rating: %.1f", *c.Rating)
			if c.Reviews != nil {
				fmt.Fprintf(b, " (%d reviews)", *c.Reviews)
			}
			b.WriteString("\n")
		}
		if c.Specification != nil && c.Specification.Summary != "" {
			fmt.Fprintf(b, "  Summary: %s\n", c.Specification.Summary)
		}
		if c.Specification != nil && len(c.Specification.KeyFeatures) > 0 {
			fmt.Fprintf(b, "  Key features: %s\n", strings.Join(c.Specification.KeyFeatures, "; "))
		}
	}
}
