package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"shopping-assistant-pipeline/internal/cache"
	"shopping-assistant-pipeline/internal/config"
	"shopping-assistant-pipeline/internal/models"
	"shopping-assistant-pipeline/internal/pkg/logger"
	"shopping-assistant-pipeline/internal/scoring"
)

const finalStoreTimeout = 5 * time.Second

// HealthChecker is implemented by every service that can report on its
// upstream.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Pipeline groups the stage implementations the orchestrator drives.
// Comparator may be nil.
type Pipeline struct {
	Interpreter *QueryInterpreter
	Source      ProductSource
	Enricher    *Enricher
	Ranker      *Ranker
	Recommender *Recommender
	Comparator  *Comparator
}

type Orchestrator struct {
	pipeline   Pipeline
	store      StateStore
	resilience *Resilience
	checks     map[string]HealthChecker

	config config.PipelineConfig
	logger *logger.Logger

	activeWorkflows sync.Map // workflow_id -> *models.WorkflowState snapshot

	startTime time.Time
}

type workflowExecutor struct {
	orchestrator *Orchestrator
	state        *models.WorkflowState
	logger       *logger.Logger
}

// NewOrchestrator wires the five stages. A nil store disables persistence and
// stage update publishing.
func NewOrchestrator(
	pipeline Pipeline,
	store StateStore,
	resilience *Resilience,
	checks map[string]HealthChecker,
	cfg config.PipelineConfig,
	log *logger.Logger) *Orchestrator {

	if store == nil {
		store = NoopStore{}
	}
	if checks == nil {
		checks = make(map[string]HealthChecker)
	}

	orchestrator := &Orchestrator{
		pipeline:   pipeline,
		store:      store,
		resilience: resilience,
		checks:     checks,
		config:     cfg,
		logger:     log,
		startTime:  time.Now(),
	}

	log.Info("Orchestrator Initialized Successfully",
		"stages", len(models.Stages),
		"comparison_enabled", pipeline.Comparator != nil,
		"enrich_workers", cfg.EnrichWorkers)

	return orchestrator
}

// ProcessQuery runs the full pipeline for one query. It never fails: stage
// failures are recorded in the returned state's status map.
func (orchestrator *Orchestrator) ProcessQuery(ctx context.Context, query string, maxPrice *float64, requirements string) *models.WorkflowState {
	return orchestrator.Process(ctx, models.SearchRequest{
		Query:                  query,
		MaxPrice:               maxPrice,
		AdditionalRequirements: requirements,
	})
}

func (orchestrator *Orchestrator) Process(ctx context.Context, req models.SearchRequest) *models.WorkflowState {
	state := models.NewWorkflowState(strings.TrimSpace(req.Query), req.MaxPrice, strings.TrimSpace(req.AdditionalRequirements))
	state.Query.Sort = req.Sort
	state.Status = models.WorkflowStatusProcessing

	orchestrator.logger.LogWorkflow(state.ID, state.RequestID, "workflow_started", 0, nil)
	orchestrator.activeWorkflows.Store(state.ID, snapshot(state))
	defer orchestrator.activeWorkflows.Delete(state.ID)

	executor := &workflowExecutor{
		orchestrator: orchestrator,
		state:        state,
		logger:       orchestrator.logger.WithField("workflow_id", state.ID),
	}

	executor.runStage(ctx, models.StageInterpretQuery, executor.interpretQuery)
	executor.runStage(ctx, models.StageFetchCandidates, executor.fetchCandidates)
	executor.runStage(ctx, models.StageEnrich, executor.enrich)
	executor.runStage(ctx, models.StageRank, executor.rank)
	executor.runStage(ctx, models.StageRecommend, executor.recommend)

	state.MarkFinished()

	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalStoreTimeout)
	defer cancel()
	if err := orchestrator.store.StoreWorkflowState(storeCtx, state); err != nil {
		executor.logger.WithError(err).Error("Failed to store final workflow state")
	}

	orchestrator.logger.LogWorkflow(state.ID, state.RequestID, "workflow_"+string(state.Status), state.GetDuration(), nil)

	return state
}

// runStage executes one stage, recording its status, stats and update. A
// panic or error marks the stage failed; the pipeline always continues.
func (workflowExecutor *workflowExecutor) runStage(ctx context.Context, stage models.Stage, fn func(ctx context.Context) (string, error)) {
	startTime := time.Now()
	state := workflowExecutor.state

	state.SetStageStatus(stage, models.Pending())
	workflowExecutor.publishStageUpdate(ctx, stage, models.Pending())

	status := func() (status models.StageStatus) {
		defer func() {
			if r := recover(); r != nil {
				workflowExecutor.logger.Error("Stage panicked", "stage", stage, "panic", fmt.Sprint(r))
				status = models.Failed(fmt.Sprintf("unexpected error: %v", r))
			}
		}()

		detail, err := fn(ctx)
		if err != nil {
			return models.Failed(err.Error())
		}
		return models.Completed(detail)
	}()

	state.SetStageStatus(stage, status)
	state.UpdateStageStats(stage, models.StageStats{
		Name:      string(stage),
		Duration:  time.Since(startTime),
		Status:    string(status.State),
		StartTime: startTime,
		EndTime:   time.Now(),
	})

	var stageErr error
	if status.State == models.StageStateFailed {
		stageErr = models.NewStageError(stage, fmt.Errorf("%s", status.Detail))
	}
	workflowExecutor.logger.LogAgent(state.ID, string(stage), "stage_completed", time.Since(startTime), map[string]any{
		"status": status.String(),
	}, stageErr)

	workflowExecutor.orchestrator.activeWorkflows.Store(state.ID, snapshot(state))
	workflowExecutor.publishStageUpdate(ctx, stage, status)
}

func (workflowExecutor *workflowExecutor) interpretQuery(ctx context.Context) (string, error) {
	query, err := workflowExecutor.orchestrator.pipeline.Interpreter.Interpret(ctx, workflowExecutor.state.Query)
	workflowExecutor.state.Query = query
	workflowExecutor.state.Stats.APICallsCount++
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Restructured query: %s", query.Restructured), nil
}

func (workflowExecutor *workflowExecutor) fetchCandidates(ctx context.Context) (string, error) {
	state := workflowExecutor.state
	state.RawCandidates = []models.Candidate{}
	state.Stats.APICallsCount++

	raws, err := workflowExecutor.orchestrator.pipeline.Source.Search(ctx, state.Query.Restructured)
	if err != nil {
		return "", fmt.Errorf("product search failed: %w", err)
	}

	dropped := 0
	candidates := make([]models.Candidate, 0, len(raws))
	for _, raw := range raws {
		if raw.Link != "" && !ValidCandidateLink(raw.Link) {
			dropped++
			continue
		}
		candidates = append(candidates, models.NewCandidate(raw))
	}

	state.RawCandidates = candidates
	state.Stats.CandidatesFound = len(candidates)

	if dropped > 0 {
		workflowExecutor.logger.Debug("Dropped candidates from excluded domains", "dropped", dropped)
	}

	return fmt.Sprintf("Found %d products", len(candidates)), nil
}

func (workflowExecutor *workflowExecutor) enrich(ctx context.Context) (string, error) {
	state := workflowExecutor.state
	state.Enriched = withDefaultEnrichment(state.RawCandidates)

	if len(state.RawCandidates) == 0 {
		return "No products to enrich", nil
	}

	enriched, report := workflowExecutor.orchestrator.pipeline.Enricher.Enrich(ctx, state.RawCandidates)
	state.Enriched = enriched
	state.Stats.APICallsCount += report.ContentSearches + report.ScraperFallback + report.Generations
	state.Stats.CacheHits += report.CacheHits

	if err := report.Err(len(enriched)); err != nil {
		workflowExecutor.logger.WithError(err).Warn("Enrichment finished with per-product fallbacks")
	}

	return fmt.Sprintf("Enriched %d products (%d cache hits, %d failures)",
		len(enriched), report.CacheHits, report.Failures), nil
}

func (workflowExecutor *workflowExecutor) rank(ctx context.Context) (string, error) {
	state := workflowExecutor.state

	result, report, err := workflowExecutor.orchestrator.pipeline.Ranker.Rank(ctx, state.Enriched, state.Query)
	state.Ranked = result.Ranked
	state.Recommendations = result.Recommendations
	state.Stats.CandidatesOverBudget = report.OverBudget
	if report.Analysed > 0 {
		state.Stats.APICallsCount += 2
	}

	if order := state.Query.Sort; order != "" && order != scoring.SortRelevance {
		state.Ranked = scoring.SortCandidates(state.Ranked, order)
	}

	if err != nil {
		return "", err
	}
	if len(state.Ranked) == 0 {
		return result.Recommendations.Text, nil
	}
	return fmt.Sprintf("Ranked %d products (%d over budget)", len(state.Ranked), report.OverBudget), nil
}

func (workflowExecutor *workflowExecutor) recommend(ctx context.Context) (string, error) {
	state := workflowExecutor.state
	pipeline := workflowExecutor.orchestrator.pipeline
	top := state.Recommendations.Products

	if pipeline.Comparator != nil && len(top) > 1 {
		state.Comparison = pipeline.Comparator.Compare(ctx, top)
	}

	if len(top) > 0 {
		state.Stats.APICallsCount++
	}
	recommendation, err := pipeline.Recommender.Recommend(ctx, top, state.Query)
	state.Recommendations.Products = recommendation.Products
	state.Recommendations.Narrative = recommendation.Narrative
	state.Recommendations.Analysis = recommendation.Analysis
	if err != nil {
		return "", err
	}

	state.Ranked = withRecommendationReasons(state.Ranked, recommendation.Products)

	return fmt.Sprintf("Recommended %d products (%d with specific reasons)",
		len(recommendation.Products), recommendation.Extracted), nil
}

func (workflowExecutor *workflowExecutor) publishStageUpdate(ctx context.Context, stage models.Stage, status models.StageStatus) {
	update := &models.StageUpdate{
		WorkflowID: workflowExecutor.state.ID,
		RequestID:  workflowExecutor.state.RequestID,
		Stage:      stage,
		Status:     status,
		Progress:   calculateStageProgress(stage, status),
		Timestamp:  time.Now(),
	}

	if err := workflowExecutor.orchestrator.store.PublishStageUpdate(ctx, update); err != nil {
		workflowExecutor.logger.WithError(err).Warn("Failed to publish stage update", "stage", stage)
	}
}

func calculateStageProgress(stage models.Stage, status models.StageStatus) float64 {
	stageIndex := -1
	for i, s := range models.Stages {
		if s == stage {
			stageIndex = i
			break
		}
	}
	if stageIndex == -1 {
		return 0.0
	}

	totalStages := float64(len(models.Stages))
	if status.State == models.StageStatePending {
		return float64(stageIndex) / totalStages
	}
	return float64(stageIndex+1) / totalStages
}

// withDefaultEnrichment gives every candidate the placeholder details and
// specification so later stages see a valid shape if enrichment aborts.
func withDefaultEnrichment(candidates []models.Candidate) []models.Candidate {
	out := make([]models.Candidate, len(candidates))
	for i, c := range candidates {
		c.Details = models.NoDetailsFound
		spec := models.DefaultSpecification()
		c.Specification = &spec
		out[i] = c
	}
	return out
}

func withRecommendationReasons(ranked, recommended []models.Candidate) []models.Candidate {
	reasons := make(map[int]string, len(recommended))
	for _, c := range recommended {
		reasons[c.Rank] = c.RecommendationReason
	}

	out := make([]models.Candidate, len(ranked))
	copy(out, ranked)
	for i := range out {
		if reason, ok := reasons[out[i].Rank]; ok {
			out[i].RecommendationReason = reason
		}
	}
	return out
}

// snapshot copies the parts of state that stages replace or mutate, so
// readers of an active workflow never share memory with the executor.
func snapshot(state *models.WorkflowState) *models.WorkflowState {
	clone := *state

	clone.StageStatus = make(map[models.Stage]models.StageStatus, len(state.StageStatus))
	for stage, status := range state.StageStatus {
		clone.StageStatus[stage] = status
	}
	clone.Stats.StageStats = make(map[string]models.StageStats, len(state.Stats.StageStats))
	for name, stats := range state.Stats.StageStats {
		clone.Stats.StageStats[name] = stats
	}

	clone.RawCandidates = append([]models.Candidate(nil), state.RawCandidates...)
	clone.Enriched = append([]models.Candidate(nil), state.Enriched...)
	clone.Ranked = append([]models.Candidate(nil), state.Ranked...)
	clone.Recommendations.Products = append([]models.Candidate(nil), state.Recommendations.Products...)

	return &clone
}

// GetWorkflowState returns a running workflow's latest snapshot or the
// stored final state.
func (orchestrator *Orchestrator) GetWorkflowState(ctx context.Context, workflowID string) (*models.WorkflowState, error) {
	if workflow, exists := orchestrator.activeWorkflows.Load(workflowID); exists {
		return workflow.(*models.WorkflowState), nil
	}
	return orchestrator.store.GetWorkflowState(ctx, workflowID)
}

func (orchestrator *Orchestrator) GetActiveWorkflowsCount() int {
	count := 0
	orchestrator.activeWorkflows.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

func (orchestrator *Orchestrator) HealthCheck(ctx context.Context) error {
	names := make([]string, 0, len(orchestrator.checks)+1)
	for name := range orchestrator.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	if err := orchestrator.store.HealthCheck(ctx); err != nil {
		return fmt.Errorf("service state_store health check failed: %w", err)
	}
	for _, name := range names {
		if err := orchestrator.checks[name].HealthCheck(ctx); err != nil {
			return fmt.Errorf("service %s health check failed: %w", name, err)
		}
	}
	return nil
}

func (orchestrator *Orchestrator) GetStats() map[string]any {
	stages := make([]string, len(models.Stages))
	for i, stage := range models.Stages {
		stages[i] = string(stage)
	}

	stats := map[string]any{
		"service":            "orchestrator",
		"uptime_seconds":     time.Since(orchestrator.startTime).Seconds(),
		"active_workflows":   orchestrator.GetActiveWorkflowsCount(),
		"stages":             stages,
		"comparison_enabled": orchestrator.pipeline.Comparator != nil,
	}
	if orchestrator.resilience != nil {
		stats["breakers"] = orchestrator.resilience.States()
	}
	if enricher := orchestrator.pipeline.Enricher; enricher != nil {
		if reporter, ok := enricher.cache.(cache.StatsReporter); ok {
			stats["cache"] = reporter.Stats()
		}
	}
	return stats
}

// Close waits up to 30 seconds for running workflows to finish.
func (orchestrator *Orchestrator) Close() error {
	orchestrator.logger.Info("Orchestrator shutting down")

	timeout := time.After(30 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if orchestrator.GetActiveWorkflowsCount() == 0 {
			orchestrator.logger.Info("All workflows completed, orchestrator closed")
			return nil
		}
		select {
		case <-timeout:
			orchestrator.logger.Warn("Timeout waiting for workflows to complete",
				"active_workflows", orchestrator.GetActiveWorkflowsCount())
			return nil
		case <-ticker.C:
		}
	}
}
