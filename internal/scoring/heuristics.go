// Package scoring holds the deterministic parts of candidate ranking.
package scoring

import (
	"math"
	"sort"
	"unicode/utf8"

	"shopping-assistant-pipeline/internal/models"
)

const (
	BaseScore         = 50.0
	MaxRatingPoints   = 20.0
	MaxReviewPoints   = 10.0
	MaxDetailPoints   = 10.0
	MaxPricePoints    = 20.0
	OverBudgetPenalty = 30.0
	RelevanceWeight   = 10.0
)

func RatingPoints(rating *float64) float64 {
	if rating == nil || !isFinite(*rating) || *rating <= 0 {
		return 0
	}
	return math.Min(*rating*4, MaxRatingPoints)
}

// ReviewPoints is logarithmic: 10 reviews give 6, 100 give 9, 1000+ cap at 10.
func ReviewPoints(reviews *int) float64 {
	if reviews == nil || *reviews <= 0 {
		return 0
	}
	return math.Min(3*math.Log10(float64(*reviews))+3, MaxReviewPoints)
}

// DetailPoints gives one point per 100 characters of enrichment text. The
// "no details" placeholder scores nothing.
func DetailPoints(details string) float64 {
	if details == "" || details == models.NoDetailsFound {
		return 0
	}
	return math.Min(float64(utf8.RuneCountInString(details))/100, MaxDetailPoints)
}

// PriceRange returns the observed min and max over priced candidates.
func PriceRange(candidates []models.Candidate) (float64, float64, bool) {
	lo, hi, found := 0.0, 0.0, false
	for _, c := range candidates {
		if !hasPrice(c) {
			continue
		}
		p := *c.Price
		if !found {
			lo, hi, found = p, p, true
			continue
		}
		lo = math.Min(lo, p)
		hi = math.Max(hi, p)
	}
	return lo, hi, found
}

// PricePoints scales a price into the batch's own spread: the cheapest gets
// 20 points and the most expensive 0. A batch with no spread contributes 0.
func PricePoints(price, lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	return MaxPricePoints * (1 - (price-lo)/(hi-lo))
}

// NormalizePrices returns the price points per candidate index.
func NormalizePrices(candidates []models.Candidate) []float64 {
	points := make([]float64, len(candidates))
	lo, hi, ok := PriceRange(candidates)
	if !ok {
		return points
	}
	for i, c := range candidates {
		if hasPrice(c) {
			points[i] = PricePoints(*c.Price, lo, hi)
		}
	}
	return points
}

// ApplyHeuristics fills in numeric prices, heuristic and composite scores and
// the over-budget flag. Over-budget candidates are penalised, never removed.
// It returns the number of candidates over budget.
func ApplyHeuristics(candidates []models.Candidate, maxPrice *float64) int {
	for i := range candidates {
		c := &candidates[i]
		if c.Price == nil && c.PriceDisplay != "" {
			c.Price = ParsePrice(c.PriceDisplay)
		}
		if c.Price != nil && !isFinite(*c.Price) {
			c.Price = nil
		}
	}

	pricePoints := NormalizePrices(candidates)
	overBudget := 0

	for i := range candidates {
		c := &candidates[i]
		score := BaseScore +
			RatingPoints(c.Rating) +
			ReviewPoints(c.Reviews) +
			DetailPoints(c.Details) +
			pricePoints[i]

		c.FilteredByPrice = false
		if maxPrice != nil && hasPrice(*c) && *c.Price > *maxPrice {
			score -= OverBudgetPenalty
			c.FilteredByPrice = true
			overBudget++
		}

		c.HeuristicScore = score
		c.CompositeScore = score
	}

	return overBudget
}

// ApplyRelevance adds a 0..10 model score to the composite.
func ApplyRelevance(c *models.Candidate, relevance int) {
	c.RelevanceScore = float64(relevance) * RelevanceWeight
	c.CompositeScore = c.HeuristicScore + c.RelevanceScore
}

// FilterTitled drops candidates with a blank title.
func FilterTitled(candidates []models.Candidate) []models.Candidate {
	out := make([]models.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if hasTitle(c) {
			out = append(out, c)
		}
	}
	return out
}

// SortByScore orders by composite score, highest first, keeping input order
// for ties.
func SortByScore(candidates []models.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CompositeScore > candidates[j].CompositeScore
	})
}

// SortByHeuristic orders by heuristic score, highest first.
func SortByHeuristic(candidates []models.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].HeuristicScore > candidates[j].HeuristicScore
	})
}

// SortByRating orders by rating, highest first; unrated candidates keep
// their relative order after the rated ones.
func SortByRating(candidates []models.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return ratingOf(candidates[i]) > ratingOf(candidates[j])
	})
}

// AssignRanks numbers candidates 1..N in their current order.
func AssignRanks(candidates []models.Candidate) {
	for i := range candidates {
		candidates[i].Rank = i + 1
	}
}

func ratingOf(c models.Candidate) float64 {
	if c.Rating == nil || !isFinite(*c.Rating) {
		return 0
	}
	return *c.Rating
}

func hasPrice(c models.Candidate) bool {
	return c.Price != nil && isFinite(*c.Price)
}

func hasTitle(c models.Candidate) bool {
	for _, r := range c.Title {
		if r != ' ' && r != '\t' && r != '\n' {
			return true
		}
	}
	return false
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
