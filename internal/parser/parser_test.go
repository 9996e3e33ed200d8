package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLabels(t *testing.T) {
	text := `Sure! Here is the analysis.
Translated: gaming laptop
**Restructured:** gaming laptop 16GB RAM
Comparison: no
Recommendation: Yes`

	values := ParseLabels(text, "Translated", "Restructured", "Comparison", "Recommendation", "Missing")

	assert.Equal(t, "gaming laptop", values["Translated"])
	assert.Equal(t, "gaming laptop 16GB RAM", values["Restructured"])
	assert.False(t, ParseYesNo(values["Comparison"]))
	assert.True(t, ParseYesNo(values["Recommendation"]))
	_, ok := values["Missing"]
	assert.False(t, ok)
}

func TestParseLabels_IgnoresMidLineAndEmptyValues(t *testing.T) {
	text := "The Restructured: value is mid-line\nRestructured:\nRestructured: second"

	values := ParseLabels(text, "Restructured")

	assert.Equal(t, "second", values["Restructured"])
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripFences("```\n{\"a\":1}```"))
	assert.Equal(t, "plain", StripFences("  plain \n"))
}

func TestParseRankings(t *testing.T) {
	text := `Here are the scores:
Product 1: Score 8 - Strong specs for the price.
**Product 2:** Score: 9/10 - Best match for gaming.
Product 3: Score 15 - Overenthusiastic model.
Product 4 has no score
Product 11: Score 7 - Out of range.
Product 1: Score 2 - Duplicate line.`

	rankings := ParseRankings(text, 10)

	assert.Len(t, rankings, 3)
	assert.Equal(t, ProductRanking{Index: 1, Score: 8, Justification: "Strong specs for the price."}, rankings[1])
	assert.Equal(t, 9, rankings[2].Score)
	assert.Equal(t, "Best match for gaming.", rankings[2].Justification)
	assert.Equal(t, MaxRelevanceScore, rankings[3].Score)
	_, ok := rankings[4]
	assert.False(t, ok)
}

func TestParseRankings_Garbage(t *testing.T) {
	assert.Empty(t, ParseRankings("I cannot rank these products.", 5))
	assert.Empty(t, ParseRankings("", 5))
}

func TestParseDescriptions(t *testing.T) {
	text := `PRODUCT 1 DESCRIPTION:
Great for gaming with a fast GPU.

**PRODUCT 2 DESCRIPTION:**
Light and portable.

PRODUCT 3 DESCRIPTION:

TOP RECOMMENDATIONS:
Product 1 stands out for raw power.`

	parsed := ParseDescriptions(text)

	assert.Equal(t, "Great for gaming with a fast GPU.", parsed.Descriptions[1])
	assert.Equal(t, "Light and portable.", parsed.Descriptions[2])
	_, ok := parsed.Descriptions[3]
	assert.False(t, ok)
	assert.Equal(t, "Product 1 stands out for raw power.", parsed.TopRecommendations)
}

func TestParseDescriptions_NoTopBlock(t *testing.T) {
	parsed := ParseDescriptions("PRODUCT 1 DESCRIPTION: Compact.")

	assert.Equal(t, "Compact.", parsed.Descriptions[1])
	assert.Empty(t, parsed.TopRecommendations)
}

func TestExtractReason(t *testing.T) {
	text := `Top Recommendations:
1. ASUS TUF Gaming F15
   Why Recommended: Great cooling and a strong GPU.
2. Lenovo IdeaPad Gaming 3

   Some extra commentary here.
   **Why Recommended:** Best value under budget.
3. Acer Nitro 5
1
2
3
4
5
Why Recommended: Too far below the title.

Overall Analysis:
All three are solid picks.`

	reason, ok := ExtractReason(text, "asus tuf gaming f15")
	assert.True(t, ok)
	assert.Equal(t, "Great cooling and a strong GPU.", reason)

	reason, ok = ExtractReason(text, "Lenovo IdeaPad Gaming 3")
	assert.True(t, ok)
	assert.Equal(t, "Best value under budget.", reason)

	_, ok = ExtractReason(text, "Acer Nitro 5")
	assert.False(t, ok)

	_, ok = ExtractReason(text, "MSI Katana")
	assert.False(t, ok)

	assert.Equal(t, "All three are solid picks.", ExtractAnalysis(text))
}

func TestExtractAnalysis_Missing(t *testing.T) {
	assert.Empty(t, ExtractAnalysis("Top Recommendations: none"))
}

func TestParseComparison(t *testing.T) {
	text := `Key Features:
• 16GB RAM
• RTX 4060
- 1.5GHz base clock

Pros:
• Fast
• Quiet

Cons: Heavy
• Short battery life`

	sections := ParseComparison(text)

	assert.Equal(t, []string{"16GB RAM", "RTX 4060", "1.5GHz base clock"}, sections.KeyFeatures)
	assert.Equal(t, []string{"Fast", "Quiet"}, sections.Pros)
	assert.Equal(t, []string{"Heavy", "Short battery life"}, sections.Cons)
}
