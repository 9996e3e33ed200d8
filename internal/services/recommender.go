package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"shopping-assistant-pipeline/internal/models"
	"shopping-assistant-pipeline/internal/parser"
	"shopping-assistant-pipeline/internal/pkg/logger"
)

const (
	RecommendationFailureText = "Unable to generate personalized recommendations at this time."
	noRecommendationsText     = "No products found to recommend."
)

type Recommendation struct {
	Products  []models.Candidate
	Narrative string
	Analysis  string
	Extracted int
}

type Recommender struct {
	generator TextGenerator
	logger    *logger.Logger
}

func NewRecommender(generator TextGenerator, log *logger.Logger) *Recommender {
	return &Recommender{generator: generator, logger: log}
}

// Recommend asks for a narrative about the top candidates and pulls a
// per-product reason out of it. Each returned product carries a reason,
// falling back to the generic one when none could be extracted.
func (rc *Recommender) Recommend(ctx context.Context, top []models.Candidate, query models.QueryContext) (Recommendation, error) {
	startTime := time.Now()

	if len(top) == 0 {
		return Recommendation{Products: []models.Candidate{}, Narrative: noRecommendationsText}, nil
	}

	response, err := rc.generator.Chat(ctx, systemUser(
		"You are a helpful shopping assistant giving personalized product recommendations.",
		buildRecommendationPrompt(top, query),
	))
	if err != nil {
		rc.logger.LogAgent("", string(models.StageRecommend), "recommend", time.Since(startTime), map[string]any{
			"products": len(top),
		}, err)
		return Recommendation{Products: []models.Candidate{}, Narrative: RecommendationFailureText},
			fmt.Errorf("recommendation generation failed: %w", err)
	}

	result := Recommendation{
		Products:  make([]models.Candidate, len(top)),
		Narrative: strings.TrimSpace(response),
		Analysis:  parser.ExtractAnalysis(response),
	}
	copy(result.Products, top)

	for i := range result.Products {
		if reason, ok := parser.ExtractReason(response, result.Products[i].Title); ok {
			result.Products[i].RecommendationReason = reason
			result.Extracted++
			continue
		}
		result.Products[i].RecommendationReason = models.DefaultRecommendWhy
	}

	rc.logger.LogAgent("", string(models.StageRecommend), "recommend", time.Since(startTime), map[string]any{
		"products":  len(top),
		"extracted": result.Extracted,
	}, nil)

	return result, nil
}

func buildRecommendationPrompt(top []models.Candidate, query models.QueryContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The user searched for: %s\n", query.Original)
	if query.MaxPrice != nil {
		fmt.Fprintf(&b, "Budget: %s euros\n", FormatPrice(*query.MaxPrice))
	}
	if query.Requirements != "" {
		fmt.Fprintf(&b, "Requirements: %s\n", query.Requirements)
	}

	b.WriteString("\nTop products:\n")
	for i, c := range top {
		fmt.Fprintf(&b, "%d. %s", i+1, c.Title)
		if c.PriceDisplay != "" {
			fmt.Fprintf(&b, " (%s)", c.PriceDisplay)
		}
		b.WriteString("\n")
		if c.Description != "" {
			fmt.Fprintf(&b, "   %s\n", c.Description)
		}
		if c.Specification != nil {
			fmt.Fprintf(&b, "   Pros: %s\n", strings.Join(c.Specification.Pros, "; "))
			fmt.Fprintf(&b, "   Cons: %s\n", strings.Join(c.Specification.Cons, "; "))
		}
	}

	fmt.Fprintf(&b, `
For each product, write its exact title on its own line followed by:
%s one or two sentences on why it fits the user.

Finish with:
%s a short comparison of the options.`, parser.WhyRecommendedLabel, parser.OverallAnalysisLabel)

	return b.String()
}
