package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"shopping-assistant-pipeline/internal/cache"
	"shopping-assistant-pipeline/internal/models"
	"shopping-assistant-pipeline/internal/parser"
	"shopping-assistant-pipeline/internal/pkg/logger"
)

const (
	comparisonSize      = 3
	comparisonWorkers   = 3
	minComparisonDetail = 100

	noDetailedInfo        = "No detailed information available."
	comparisonExtractFail = "Error extracting features."
	notAvailable          = "N/A"
)

type Comparator struct {
	generator TextGenerator
	cache     cache.Cache
	logger    *logger.Logger
}

// NewComparator builds the side-by-side comparison. comparisonCache may be nil.
func NewComparator(generator TextGenerator, comparisonCache cache.Cache, log *logger.Logger) *Comparator {
	return &Comparator{generator: generator, cache: comparisonCache, logger: log}
}

// Compare builds a table for up to three candidates. Fewer than two
// candidates yield nil.
func (cmp *Comparator) Compare(ctx context.Context, candidates []models.Candidate) *models.ComparisonTable {
	if len(candidates) < 2 {
		return nil
	}
	startTime := time.Now()

	selected := candidates[:min(len(candidates), comparisonSize)]
	entries := make([]models.ComparisonEntry, len(selected))

	g := new(errgroup.Group)
	g.SetLimit(comparisonWorkers)
	for i := range selected {
		g.Go(func() error {
			entries[i] = cmp.entry(ctx, selected[i])
			return nil
		})
	}
	_ = g.Wait()

	cmp.logger.LogAgent("", "comparison", "compare", time.Since(startTime), map[string]any{
		"products": len(entries),
	}, nil)

	return &models.ComparisonTable{Entries: entries}
}

func (cmp *Comparator) entry(ctx context.Context, candidate models.Candidate) (entry models.ComparisonEntry) {
	entry = models.ComparisonEntry{
		Title:  candidate.Title,
		Price:  candidate.PriceDisplay,
		Rating: candidate.Rating,
	}

	defer func() {
		if r := recover(); r != nil {
			cmp.logger.Error("Comparison entry panicked", "title", candidate.Title, "panic", fmt.Sprint(r))
			entry.KeyFeatures = []string{comparisonExtractFail}
			entry.Pros = []string{notAvailable}
			entry.Cons = []string{notAvailable}
		}
	}()

	details := candidate.Details
	if details == models.NoDetailsFound || len([]rune(details)) < minComparisonDetail {
		entry.KeyFeatures = []string{noDetailedInfo}
		entry.Pros = []string{notAvailable}
		entry.Cons = []string{notAvailable}
		return entry
	}

	sections, err := cmp.sections(ctx, candidate.Title, details)
	if err != nil {
		cmp.logger.WithError(err).Warn("Comparison extraction failed", "title", candidate.Title)
		entry.KeyFeatures = []string{comparisonExtractFail}
		entry.Pros = []string{notAvailable}
		entry.Cons = []string{notAvailable}
		return entry
	}

	entry.KeyFeatures = orNotAvailable(sections.KeyFeatures)
	entry.Pros = orNotAvailable(sections.Pros)
	entry.Cons = orNotAvailable(sections.Cons)
	return entry
}

func (cmp *Comparator) sections(ctx context.Context, title, details string) (parser.ComparisonSections, error) {
	key := cache.ContentKey("comparison:", details)

	var sections parser.ComparisonSections
	if cmp.cache != nil && cache.GetJSON(ctx, cmp.cache, key, &sections) {
		return sections, nil
	}

	response, err := cmp.generator.Chat(ctx, systemUser(
		"You extract product facts for a comparison table.",
		fmt.Sprintf(`Product: %s

Details:
%s

List the product's most important facts using this layout:
Key Features:
- ...
Pros:
- ...
Cons:
- ...`, title, details),
	))
	if err != nil {
		return sections, err
	}

	sections = parser.ParseComparison(response)
	if cmp.cache != nil && len(sections.KeyFeatures)+len(sections.Pros)+len(sections.Cons) > 0 {
		cache.SetJSON(ctx, cmp.cache, key, sections)
	}
	return sections, nil
}

func orNotAvailable(values []string) []string {
	if len(values) == 0 {
		return []string{notAvailable}
	}
	return values
}
