package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"shopping-assistant-pipeline/internal/cache"
	"shopping-assistant-pipeline/internal/models"
	"shopping-assistant-pipeline/internal/pkg/logger"
)

const recommendationText = `Top Recommendations:

1. Alpha Laptop 15

   Why Recommended: Best balance of price and performance.

2. Beta Laptop 14
   Great screen.
Why Recommended: Premium build for demanding users.

Overall Analysis: Alpha is the pragmatic pick; Beta if budget allows.`

func TestRecommend_ExtractsReasonsPerProduct(t *testing.T) {
	gen := newScriptedGenerator().on(recommendMarker, recommendationText)
	rc := NewRecommender(gen, logger.NewNop())

	top := []models.Candidate{{Title: "Alpha Laptop 15", Rank: 1}, {Title: "Beta Laptop 14", Rank: 2}, {Title: "Gamma Notebook", Rank: 3}}
	result, err := rc.Recommend(context.Background(), top, models.QueryContext{Original: "laptop"})

	require.NoError(t, err)
	require.Len(t, result.Products, 3)
	assert.Equal(t, "Best balance of price and performance.", result.Products[0].RecommendationReason)
	assert.Equal(t, "Premium build for demanding users.", result.Products[1].RecommendationReason)
	assert.Equal(t, models.DefaultRecommendWhy, result.Products[2].RecommendationReason)
	assert.Equal(t, 2, result.Extracted)
	assert.Equal(t, "Alpha is the pragmatic pick; Beta if budget allows.", result.Analysis)
	assert.Contains(t, result.Narrative, "Top Recommendations:")
	assert.Empty(t, top[0].RecommendationReason, "input is not mutated")
}

func TestRecommend_FailureGivesEmptyListAndFixedNarrative(t *testing.T) {
	gen := newScriptedGenerator().fail(recommendMarker)
	rc := NewRecommender(gen, logger.NewNop())

	result, err := rc.Recommend(context.Background(), []models.Candidate{{Title: "Alpha"}}, models.QueryContext{Original: "x"})

	require.Error(t, err)
	assert.Empty(t, result.Products)
	assert.NotNil(t, result.Products)
	assert.Equal(t, RecommendationFailureText, result.Narrative)
}

func TestRecommend_NoCandidatesSkipsGeneration(t *testing.T) {
	gen := newScriptedGenerator()
	rc := NewRecommender(gen, logger.NewNop())

	result, err := rc.Recommend(context.Background(), nil, models.QueryContext{Original: "x"})

	require.NoError(t, err)
	assert.Empty(t, result.Products)
	assert.Empty(t, gen.prompts)
}

func TestCompare_BuildsEntriesAndCaches(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions...)

	long := "This blender has a 1200W motor, six speed settings and a glass jar that holds two litres of liquid. It is also quiet."
	candidates := []models.Candidate{
		{Title: "Blender A", PriceDisplay: "€89", Details: long},
		{Title: "Blender B", Details: "short"},
		{Title: "Blender C", Details: models.NoDetailsFound},
		{Title: "Blender D", Details: long},
	}
	gen := newScriptedGenerator().on(comparisonMarker, "Key Features:\n- 1200W motor\nPros:\n- Powerful\nCons:\n- Heavy")
	cmp := NewComparator(gen, cache.NewTTLCache(10, time.Hour), logger.NewNop())

	table := cmp.Compare(context.Background(), candidates)

	require.NotNil(t, table)
	require.Len(t, table.Entries, 3)
	assert.Equal(t, "Blender A", table.Entries[0].Title)
	assert.Equal(t, "€89", table.Entries[0].Price)
	assert.Equal(t, []string{"1200W motor"}, table.Entries[0].KeyFeatures)
	assert.Equal(t, []string{"Powerful"}, table.Entries[0].Pros)
	assert.Equal(t, []string{"Heavy"}, table.Entries[0].Cons)
	assert.Equal(t, []string{noDetailedInfo}, table.Entries[1].KeyFeatures)
	assert.Equal(t, []string{notAvailable}, table.Entries[2].Pros)

	again := cmp.Compare(context.Background(), candidates[:2])
	require.NotNil(t, again)
	assert.Equal(t, table.Entries[0], again.Entries[0])
	assert.Len(t, gen.promptsWith(comparisonMarker), 1)
}

func TestCompare_GenerationFailure(t *testing.T) {
	long := "A very detailed description of a robot vacuum with lidar mapping, two hour battery and a self-emptying base station."
	gen := newScriptedGenerator().fail(comparisonMarker)
	cmp := NewComparator(gen, nil, logger.NewNop())

	table := cmp.Compare(context.Background(), []models.Candidate{{Title: "R1", Details: long}, {Title: "R2", Details: long}})

	require.NotNil(t, table)
	for _, entry := range table.Entries {
		assert.Equal(t, []string{comparisonExtractFail}, entry.KeyFeatures)
	}
}

func TestCompare_NeedsTwoCandidates(t *testing.T) {
	cmp := NewComparator(newScriptedGenerator(), nil, logger.NewNop())
	assert.Nil(t, cmp.Compare(context.Background(), []models.Candidate{{Title: "Solo"}}))
}
