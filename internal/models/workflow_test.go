package models_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopping-assistant-pipeline/internal/models"
)

func TestNewWorkflowState(t *testing.T) {
	maxPrice := 1000.0
	state := models.NewWorkflowState("laptop", &maxPrice, "16GB RAM")

	assert.NotEmpty(t, state.ID)
	assert.NotEmpty(t, state.RequestID)
	assert.Equal(t, models.WorkflowStatusPending, state.Status)
	assert.Equal(t, "laptop", state.Query.Original)
	assert.Equal(t, "laptop", state.Query.Translated)
	assert.Equal(t, "laptop", state.Query.Restructured)
	assert.Equal(t, &maxPrice, state.Query.MaxPrice)
	assert.Equal(t, "16GB RAM", state.Query.Requirements)
	assert.NotNil(t, state.RawCandidates)
	assert.NotNil(t, state.Ranked)
	assert.NotNil(t, state.Recommendations.Products)

	require.Len(t, state.StageStatus, len(models.Stages))
	for _, stage := range models.Stages {
		assert.Equal(t, "Pending", state.StageStatus[stage].String(), "stage %s", stage)
	}
}

func TestWorkflowIDsAreUnique(t *testing.T) {
	a := models.NewWorkflowState("q", nil, "")
	b := models.NewWorkflowState("q", nil, "")
	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, a.RequestID, b.RequestID)
}

func TestStageStatusString(t *testing.T) {
	assert.Equal(t, "Pending", models.Pending().String())
	assert.Equal(t, "Pending", models.StageStatus{}.String())
	assert.Equal(t, "Completed: Found 12 products", models.Completed("Found 12 products").String())
	assert.Equal(t, "Failed: product search failed", models.Failed("product search failed").String())
}

func TestStageStatusJSON(t *testing.T) {
	state := models.NewWorkflowState("q", nil, "")
	state.SetStageStatus(models.StageFetchCandidates, models.Completed("Found 3 products"))
	state.SetStageStatus(models.StageEnrich, models.Failed("timeout: a: b"))

	data, err := json.Marshal(state)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"FetchCandidates":"Completed: Found 3 products"`)
	assert.Contains(t, string(data), `"Rank":"Pending"`)

	var decoded models.WorkflowState
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, models.Completed("Found 3 products"), decoded.StageStatus[models.StageFetchCandidates])
	assert.Equal(t, models.Failed("timeout: a: b"), decoded.StageStatus[models.StageEnrich])
	assert.Equal(t, models.Pending(), decoded.StageStatus[models.StageRecommend])
}

func TestParseStageStatusUnknown(t *testing.T) {
	assert.Equal(t, models.Pending(), models.ParseStageStatus("whatever"))
	assert.Equal(t, models.Completed(""), models.ParseStageStatus("Completed"))
}

func TestMarkFinished(t *testing.T) {
	t.Run("all stages completed", func(t *testing.T) {
		state := models.NewWorkflowState("q", nil, "")
		for _, stage := range models.Stages {
			state.SetStageStatus(stage, models.Completed("ok"))
		}

		state.MarkFinished()

		require.NotNil(t, state.EndTime)
		assert.Equal(t, models.WorkflowStatusCompleted, state.Status)
		assert.False(t, state.IsDegraded())
		assert.Equal(t, state.EndTime.Sub(state.StartTime), state.GetDuration())
	})

	t.Run("one failed stage degrades the workflow", func(t *testing.T) {
		state := models.NewWorkflowState("q", nil, "")
		for _, stage := range models.Stages {
			state.SetStageStatus(stage, models.Completed("ok"))
		}
		state.SetStageStatus(models.StageRank, models.Failed("boom"))

		state.MarkFinished()

		assert.Equal(t, models.WorkflowStatusDegraded, state.Status)
		assert.True(t, state.IsDegraded())
	})
}

func TestUpdateStageStats(t *testing.T) {
	state := models.NewWorkflowState("q", nil, "")
	state.UpdateStageStats(models.StageEnrich, models.StageStats{Name: "Enrich", Status: "Completed: ok"})

	assert.Equal(t, "Enrich", state.Stats.StageStats["Enrich"].Name)
}

func TestAppError(t *testing.T) {
	cause := errors.New("connection refused")
	err := models.WrapExternalError("serpapi", cause)

	require.NotNil(t, err)
	assert.Equal(t, models.ErrorTypeUpstream, err.Type)
	assert.Equal(t, "serpapi_UNAVAILABLE", err.Code)
	assert.Equal(t, "serpapi", err.Metadata["service"])
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")

	assert.Nil(t, models.WrapExternalError("serpapi", nil))
	assert.Same(t, err, models.WrapExternalError("tavily", err))
}

func TestAppErrorSentinelsSurviveCopies(t *testing.T) {
	tagged := models.ErrWorkflowNotFound.WithMetadata("workflow_id", "abc")

	assert.ErrorIs(t, tagged, models.ErrWorkflowNotFound)
	assert.Empty(t, models.ErrWorkflowNotFound.Metadata, "WithMetadata must not mutate the sentinel")
	assert.True(t, models.IsNotFound(fmt.Errorf("lookup: %w", tagged)))
	assert.False(t, models.IsNotFound(models.ErrEmptyQuery))
	assert.NotErrorIs(t, models.ErrEmptyQuery, models.ErrNoCandidates)
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, models.IsTimeout(models.NewTimeoutError("LLM_TIMEOUT", "deadline exceeded")))
	assert.False(t, models.IsTimeout(errors.New("plain")))
}

func TestNewStageError(t *testing.T) {
	cause := errors.New("boom")
	err := models.NewStageError(models.StageRank, cause)

	assert.Equal(t, models.ErrorTypeStage, err.Type)
	assert.Contains(t, err.Error(), "stage Rank failed")
	assert.ErrorIs(t, err, cause)
}
