package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"shopping-assistant-pipeline/internal/models"
	"shopping-assistant-pipeline/internal/parser"
	"shopping-assistant-pipeline/internal/pkg/logger"
	"shopping-assistant-pipeline/internal/scoring"
)

const (
	labelTranslated     = "Translated"
	labelRestructured   = "Restructured"
	labelComparison     = "Comparison"
	labelRecommendation = "Recommendation"
)

type QueryInterpreter struct {
	generator TextGenerator
	logger    *logger.Logger
}

func NewQueryInterpreter(generator TextGenerator, log *logger.Logger) *QueryInterpreter {
	return &QueryInterpreter{generator: generator, logger: log}
}

// Interpret fills the translated and restructured queries. It always returns
// a usable context; the error only reports that the model call failed and
// the original query was used instead.
func (qi *QueryInterpreter) Interpret(ctx context.Context, query models.QueryContext) (models.QueryContext, error) {
	startTime := time.Now()

	query.Translated = query.Original
	query.Restructured = query.Original

	if query.MaxPrice == nil {
		query.MaxPrice = scoring.ExtractBudget(query.Original)
	}

	response, err := qi.generator.Chat(ctx, systemUser(
		"You are a precise query analysis assistant.",
		buildQueryPrompt(query),
	))
	if err == nil {
		labels := parser.ParseLabels(response, labelTranslated, labelRestructured, labelComparison, labelRecommendation)
		if value, ok := labels[labelTranslated]; ok {
			query.Translated = trimQuotes(value)
		}
		if value, ok := labels[labelRestructured]; ok {
			query.Restructured = trimQuotes(value)
		}
		query.IsComparison = parser.ParseYesNo(labels[labelComparison])
		query.IsRecommendation = parser.ParseYesNo(labels[labelRecommendation])
	}

	query.Restructured = enforceConstraints(query.Restructured, query.Requirements, query.MaxPrice)

	qi.logger.LogAgent("", string(models.StageInterpretQuery), "interpret", time.Since(startTime), map[string]any{
		"original_query":     query.Original,
		"restructured_query": query.Restructured,
		"is_comparison":      query.IsComparison,
		"is_recommendation":  query.IsRecommendation,
	}, err)

	if err != nil {
		return query, fmt.Errorf("query interpretation failed: %w", err)
	}
	return query, nil
}

// enforceConstraints makes sure the requirements text and the budget reach
// the search provider regardless of what the model produced.
func enforceConstraints(restructured, requirements string, maxPrice *float64) string {
	requirements = strings.TrimSpace(requirements)
	if requirements != "" && !strings.Contains(strings.ToLower(restructured), strings.ToLower(requirements)) {
		restructured = requirements + " " + restructured
	}

	if maxPrice != nil {
		price := FormatPrice(*maxPrice)
		if !strings.Contains(restructured, price) {
			restructured = fmt.Sprintf("%s under %s euros", restructured, price)
		}
	}

	return strings.TrimSpace(restructured)
}

func FormatPrice(price float64) string {
	return strconv.FormatFloat(price, 'f', -1, 64)
}

func trimQuotes(value string) string {
	return strings.TrimSpace(strings.Trim(value, `"'[]`))
}

func buildQueryPrompt(query models.QueryContext) string {
	var constraints strings.Builder
	if query.MaxPrice != nil {
		fmt.Fprintf(&constraints, "\n- Budget: under %s euros", FormatPrice(*query.MaxPrice))
	}
	if query.Requirements != "" {
		fmt.Fprintf(&constraints, "\n- Requirements: %s", query.Requirements)
	}
	if constraints.Len() > 0 {
		constraints.WriteString("\nInclude every constraint above in the restructured query.")
	}

	return fmt.Sprintf(`Analyze this shopping query thoroughly: "%s"
%s
1. If not in English, translate to English (if already English, just repeat it).
2. Restructure for product search (make it concise, clear, specific).
3. Is this a comparison query? Answer only yes/no (looking for terms like "vs", "compare", "better", "difference").
4. Is this a recommendation query? Answer only yes/no (looking for terms like "suggest", "recommend", "best for me").

Format your response exactly as follows:
Translated: [translated text]
Restructured: [restructured query]
Comparison: [yes/no]
Recommendation: [yes/no]`, query.Original, constraints.String())
}
