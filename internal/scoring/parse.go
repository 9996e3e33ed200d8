package scoring

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"shopping-assistant-pipeline/internal/models"
)

const (
	SortRelevance = "relevance"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
)

var (
	numberPattern = regexp.MustCompile(`\d[\d.,]*`)
	digitsPattern = regexp.MustCompile(`\d+`)
	budgetPattern = regexp.MustCompile(`(?i)\b(?:under|less than|below|max|maximum)\s+(\d+)\s*([a-z"]+)?`)
)

// measurementUnits after a number mean the phrase limits something other
// than price ("under 2 kg", "max 15 inch").
var measurementUnits = map[string]bool{
	"g": true, "gram": true, "grams": true, "kg": true, "kilo": true, "kilos": true, "lb": true, "lbs": true, "pounds": true,
	"mm": true, "cm": true, "m": true, "inch": true, "inches": true, `"`: true, "zoll": true,
	"w": true, "watt": true, "watts": true, "v": true, "mah": true, "hz": true,
	"db": true, "mb": true, "gb": true, "tb": true, "mp": true,
	"l": true, "ml": true, "liter": true, "litre": true, "liters": true, "litres": true,
	"min": true, "mins": true, "minutes": true, "h": true, "hours": true, "years": true,
}

// ParsePrice reads the first number in a display price such as "€1.299,00",
// "1,299.99 EUR" or "$45". Both "," and "." are accepted as the decimal
// separator when followed by one or two trailing digits.
func ParsePrice(display string) *float64 {
	raw := numberPattern.FindString(display)
	if raw == "" {
		return nil
	}
	raw = strings.TrimRight(raw, ".,")

	decimalAt := strings.LastIndexAny(raw, ".,")
	if decimalAt >= 0 && len(raw)-decimalAt-1 > 2 {
		decimalAt = -1
	}

	var b strings.Builder
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case i == decimalAt:
			b.WriteByte('.')
		}
	}

	value, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return nil
	}
	return &value
}

// ParseRating reads the leading number of strings like "4.5 out of 5".
func ParseRating(text string) *float64 {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(fields[0], ",", "."), 64)
	if err != nil || !isFinite(value) {
		return nil
	}
	return &value
}

// ParseReviewCount reads counts like "1,234 reviews".
func ParseReviewCount(text string) *int {
	match := digitsPattern.FindString(strings.NewReplacer(",", "", ".", "").Replace(text))
	if match == "" {
		return nil
	}
	value, err := strconv.Atoi(match)
	if err != nil {
		return nil
	}
	return &value
}

// ExtractBudget infers a price ceiling from phrases like "under 500". A number
// followed by a measurement unit is not a budget.
func ExtractBudget(query string) *float64 {
	for _, match := range budgetPattern.FindAllStringSubmatch(query, -1) {
		if measurementUnits[strings.ToLower(match[2])] {
			continue
		}
		value, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			continue
		}
		return &value
	}
	return nil
}

var titleCleaner = strings.NewReplacer(",", "", ".", "")

// SimilarTitles reports whether two titles name the same product closely
// enough to share a description: one contains the other once lowercased
// and stripped of "." and ",", or they share at least three words.
func SimilarTitles(a, b string) bool {
	a = titleCleaner.Replace(strings.ToLower(a))
	b = titleCleaner.Replace(strings.ToLower(b))
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return false
	}

	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}

	words := make(map[string]struct{})
	for _, w := range strings.Fields(a) {
		words[w] = struct{}{}
	}
	shared := make(map[string]struct{})
	for _, w := range strings.Fields(b) {
		if _, ok := words[w]; ok {
			shared[w] = struct{}{}
		}
	}
	return len(shared) >= 3
}

// SortCandidates returns a sorted copy. Unpriced candidates always sort last
// for the price orders.
func SortCandidates(candidates []models.Candidate, order string) []models.Candidate {
	sorted := make([]models.Candidate, len(candidates))
	copy(sorted, candidates)

	switch order {
	case SortPriceAsc, SortPriceDesc:
		sort.SliceStable(sorted, func(i, j int) bool {
			pi, pj := hasPrice(sorted[i]), hasPrice(sorted[j])
			if pi != pj {
				return pi
			}
			if !pi {
				return false
			}
			if order == SortPriceAsc {
				return *sorted[i].Price < *sorted[j].Price
			}
			return *sorted[i].Price > *sorted[j].Price
		})
	default:
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Rank < sorted[j].Rank
		})
	}

	return sorted
}
