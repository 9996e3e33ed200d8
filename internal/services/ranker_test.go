package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopping-assistant-pipeline/internal/models"
	"shopping-assistant-pipeline/internal/pkg/logger"
)

func rankCandidates() []models.Candidate {
	return []models.Candidate{
		{Title: "Alpha Laptop 15", Price: floatPtr(900), Rating: floatPtr(4.5), Reviews: intPtr(120), Details: "solid"},
		{Title: "Beta Laptop 14", Price: floatPtr(1200), Rating: floatPtr(4.8), Reviews: intPtr(900), Details: "premium"},
		{Title: "Gamma Notebook", Price: floatPtr(600), Rating: floatPtr(3.9), Reviews: intPtr(15), Details: "budget"},
		{Title: "", Price: floatPtr(10)},
	}
}

func assertDenseRanks(t *testing.T, ranked []models.Candidate) {
	t.Helper()
	for i, c := range ranked {
		assert.Equal(t, i+1, c.Rank)
	}
}

func TestRank_CombinesHeuristicAndRelevance(t *testing.T) {
	gen := newScriptedGenerator().
		on(rankingMarker, "Product 1: Score 2 - weak match\nProduct 2: Score 9 - great match\nProduct 3: Score 5 - ok").
		on(describeMarker, "PRODUCT 1 DESCRIPTION:\nFirst desc\n\nPRODUCT 2 DESCRIPTION:\nSecond desc\n\nTOP RECOMMENDATIONS:\nGo for the top pick.")
	ranker := NewRanker(gen, logger.NewNop())

	result, report, err := ranker.Rank(context.Background(), rankCandidates(), models.QueryContext{Original: "laptop", MaxPrice: floatPtr(1000)})

	require.NoError(t, err)
	require.Len(t, result.Ranked, 3)
	assertDenseRanks(t, result.Ranked)
	assert.Equal(t, 1, report.OverBudget)
	assert.Equal(t, 3, report.RankingsParsed)
	assert.Equal(t, "Go for the top pick.", result.Recommendations.Text)
	assert.Len(t, result.Recommendations.Products, 3)

	for i := 1; i < len(result.Ranked); i++ {
		assert.GreaterOrEqual(t, result.Ranked[i-1].CompositeScore, result.Ranked[i].CompositeScore)
	}
	for _, c := range result.Ranked {
		assert.Equal(t, c.HeuristicScore+c.RelevanceScore, c.CompositeScore)
		assert.NotEmpty(t, c.Description)
		assert.NotEmpty(t, c.RankReason)
		if c.Title == "Beta Laptop 14" {
			assert.True(t, c.FilteredByPrice)
		}
	}
}

func TestRank_UnparsedProductsGetZeroRelevance(t *testing.T) {
	gen := newScriptedGenerator().
		on(rankingMarker, "Product 1: Score 8 - good").
		on(describeMarker, "nothing useful")
	ranker := NewRanker(gen, logger.NewNop())

	result, _, err := ranker.Rank(context.Background(), rankCandidates()[:3], models.QueryContext{Original: "laptop"})

	require.NoError(t, err)
	unparsed := 0
	for _, c := range result.Ranked {
		if c.RankReason == noRankingInfo {
			unparsed++
			assert.Zero(t, c.RelevanceScore)
		}
		assert.Equal(t, "This "+c.Title+" appears to be a good match for your search.", c.Description)
	}
	assert.Equal(t, 2, unparsed)
	assert.Equal(t, defaultTopText, result.Recommendations.Text)
}

func TestRank_FallbackWhenRelevanceCallFails(t *testing.T) {
	gen := newScriptedGenerator().fail(rankingMarker)
	ranker := NewRanker(gen, logger.NewNop())

	result, report, err := ranker.Rank(context.Background(), rankCandidates(), models.QueryContext{Original: "laptop"})

	require.Error(t, err)
	assert.True(t, report.Fallback)
	require.Len(t, result.Ranked, 3)
	assertDenseRanks(t, result.Ranked)
	assert.Equal(t, "Beta Laptop 14", result.Ranked[0].Title)
	assert.Equal(t, fallbackTopText, result.Recommendations.Text)
	for _, c := range result.Ranked {
		assert.Equal(t, models.DefaultRankReason, c.RankReason)
		assert.Equal(t, "This product matches your search for 'laptop'.", c.Description)
		assert.Equal(t, models.DefaultRecommendWhy, c.RecommendationReason)
	}
}

func TestRank_DescriptionFailureKeepsRanking(t *testing.T) {
	gen := newScriptedGenerator().
		on(rankingMarker, "Product 1: Score 7 - fine").
		fail(describeMarker)
	ranker := NewRanker(gen, logger.NewNop())

	result, report, err := ranker.Rank(context.Background(), rankCandidates()[:2], models.QueryContext{Original: "laptop"})

	require.NoError(t, err)
	assert.True(t, report.DescriptionsFailed)
	assert.Equal(t, defaultTopText, result.Recommendations.Text)
	for _, c := range result.Ranked {
		assert.Equal(t, "This product matches your search for 'laptop'.", c.Description)
	}
}

func TestRank_CapsRankedListAndDescribesBeyondTopFive(t *testing.T) {
	candidates := make([]models.Candidate, 12)
	for i := range candidates {
		candidates[i] = models.Candidate{Title: "Desk Lamp Model " + string(rune('A'+i)), Rating: floatPtr(float64(12-i) / 3)}
	}
	gen := newScriptedGenerator().
		on(rankingMarker, "").
		on(describeMarker, "PRODUCT 1 DESCRIPTION:\nBright lamp.\nTOP RECOMMENDATIONS:\nLamps.")
	ranker := NewRanker(gen, logger.NewNop())

	result, _, err := ranker.Rank(context.Background(), candidates, models.QueryContext{Original: "lamp"})

	require.NoError(t, err)
	require.Len(t, result.Ranked, RankedLimit)
	assert.Equal(t, 10, RankedLimit)
	require.Len(t, result.Recommendations.Products, 3)
	for i, c := range result.Recommendations.Products {
		assert.Equal(t, i+1, c.Rank)
	}
	assertDenseRanks(t, result.Ranked)
	for _, c := range result.Ranked[5:] {
		assert.Equal(t, "Bright lamp.", c.Description, "similar titles borrow the first description")
	}
}

func TestRank_EmptyInputs(t *testing.T) {
	ranker := NewRanker(newScriptedGenerator(), logger.NewNop())

	result, _, err := ranker.Rank(context.Background(), nil, models.QueryContext{Original: "x"})
	require.NoError(t, err)
	assert.Empty(t, result.Ranked)
	assert.NotNil(t, result.Ranked)
	assert.Equal(t, noProductsText, result.Recommendations.Text)

	result, _, err = ranker.Rank(context.Background(), []models.Candidate{{Title: "  "}}, models.QueryContext{Original: "x"})
	require.NoError(t, err)
	assert.Empty(t, result.Ranked)
	assert.Equal(t, noMatchingProducts, result.Recommendations.Text)
}

func TestBorrowedDescription(t *testing.T) {
	described := []models.Candidate{{Title: "Sony WH-1000XM5 Black", Description: "Great ANC."}}

	assert.Equal(t, "Great ANC.", borrowedDescription("Sony WH-1000XM5", described, "headphones"))
	assert.Equal(t, "This product appears to match your search for 'headphones'.",
		borrowedDescription("Bose QC45", described, "headphones"))
}
