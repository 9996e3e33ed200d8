package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type SearchRequest struct {
	Query                  string   `json:"query" binding:"required"`
	MaxPrice               *float64 `json:"max_price,omitempty" binding:"omitempty,gt=0"`
	AdditionalRequirements string   `json:"additional_requirements,omitempty"`
	Sort                   string   `json:"sort,omitempty" binding:"omitempty,oneof=relevance price_asc price_desc"`
}

type QueryContext struct {
	Original         string   `json:"original_query"`
	Translated       string   `json:"translated_query"`
	Restructured     string   `json:"restructured_query"`
	MaxPrice         *float64 `json:"max_price,omitempty"`
	Requirements     string   `json:"additional_requirements,omitempty"`
	IsComparison     bool     `json:"is_comparison"`
	IsRecommendation bool     `json:"is_recommendation"`
	Sort             string   `json:"sort,omitempty"`
}

type Stage string

const (
	StageInterpretQuery  Stage = "InterpretQuery"
	StageFetchCandidates Stage = "FetchCandidates"
	StageEnrich          Stage = "Enrich"
	StageRank            Stage = "Rank"
	StageRecommend       Stage = "Recommend"
)

// Stages is the fixed execution order.
var Stages = []Stage{
	StageInterpretQuery,
	StageFetchCandidates,
	StageEnrich,
	StageRank,
	StageRecommend,
}

type StageState string

const (
	StageStatePending   StageState = "Pending"
	StageStateCompleted StageState = "Completed"
	StageStateFailed    StageState = "Failed"
)

// StageStatus serialises as "Pending", "Completed: <detail>" or "Failed: <reason>".
type StageStatus struct {
	State  StageState
	Detail string
}

func Pending() StageStatus {
	return StageStatus{State: StageStatePending}
}

func Completed(detail string) StageStatus {
	return StageStatus{State: StageStateCompleted, Detail: detail}
}

func Failed(reason string) StageStatus {
	return StageStatus{State: StageStateFailed, Detail: reason}
}

func (s StageStatus) String() string {
	if s.State == StageStatePending || s.State == "" {
		return string(StageStatePending)
	}
	return fmt.Sprintf("%s: %s", s.State, s.Detail)
}

func (s StageStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *StageStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ParseStageStatus(raw)
	return nil
}

func ParseStageStatus(raw string) StageStatus {
	state, detail, _ := strings.Cut(raw, ": ")
	switch StageState(state) {
	case StageStateCompleted:
		return Completed(detail)
	case StageStateFailed:
		return Failed(detail)
	default:
		return Pending()
	}
}

type WorkflowStatus string

const (
	WorkflowStatusPending    WorkflowStatus = "pending"
	WorkflowStatusProcessing WorkflowStatus = "processing"
	WorkflowStatusCompleted  WorkflowStatus = "completed"
	WorkflowStatusDegraded   WorkflowStatus = "degraded"
)

type WorkflowState struct {
	ID        string         `json:"id"`
	RequestID string         `json:"request_id"`
	Status    WorkflowStatus `json:"status"`
	StartTime time.Time      `json:"start_time"`
	EndTime   *time.Time     `json:"end_time,omitempty"`

	Query           QueryContext          `json:"query"`
	RawCandidates   []Candidate           `json:"raw_candidates"`
	Enriched        []Candidate           `json:"enriched_candidates"`
	Ranked          []Candidate           `json:"ranked_candidates"`
	Recommendations Recommendations       `json:"recommendations"`
	Comparison      *ComparisonTable      `json:"comparison,omitempty"`
	StageStatus     map[Stage]StageStatus `json:"stage_status"`

	Stats ProcessingStats `json:"processing_stats"`
}

type ProcessingStats struct {
	TotalDuration        time.Duration         `json:"total_duration"`
	StageStats           map[string]StageStats `json:"stage_stats"`
	CandidatesFound      int                   `json:"candidates_found"`
	CandidatesOverBudget int                   `json:"candidates_over_budget"`
	APICallsCount        int                   `json:"api_calls_count"`
	CacheHits            int                   `json:"cache_hits"`
}

type StageStats struct {
	Name      string        `json:"name"`
	Duration  time.Duration `json:"duration"`
	Status    string        `json:"status"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
}

type StageUpdate struct {
	WorkflowID string      `json:"workflow_id"`
	RequestID  string      `json:"request_id"`
	Stage      Stage       `json:"stage"`
	Status     StageStatus `json:"status"`
	Progress   float64     `json:"progress"`
	Timestamp  time.Time   `json:"timestamp"`
}

func NewWorkflowState(query string, maxPrice *float64, requirements string) *WorkflowState {
	state := &WorkflowState{
		ID:        GenerateWorkflowID(),
		RequestID: GenerateRequestID(),
		Status:    WorkflowStatusPending,
		StartTime: time.Now(),
		Query: QueryContext{
			Original:     query,
			Translated:   query,
			Restructured: query,
			MaxPrice:     maxPrice,
			Requirements: requirements,
		},
		RawCandidates: []Candidate{},
		Enriched:      []Candidate{},
		Ranked:        []Candidate{},
		Recommendations: Recommendations{
			Products: []Candidate{},
		},
		StageStatus: make(map[Stage]StageStatus, len(Stages)),
		Stats: ProcessingStats{
			StageStats: make(map[string]StageStats, len(Stages)),
		},
	}

	for _, stage := range Stages {
		state.StageStatus[stage] = Pending()
	}

	return state
}

func (ws *WorkflowState) SetStageStatus(stage Stage, status StageStatus) {
	ws.StageStatus[stage] = status
}

func (ws *WorkflowState) UpdateStageStats(stage Stage, stats StageStats) {
	ws.Stats.StageStats[string(stage)] = stats
}

// MarkFinished stamps the end time; any failed stage leaves the workflow degraded.
func (ws *WorkflowState) MarkFinished() {
	now := time.Now()
	ws.EndTime = &now
	ws.Stats.TotalDuration = now.Sub(ws.StartTime)

	ws.Status = WorkflowStatusCompleted
	for _, status := range ws.StageStatus {
		if status.State == StageStateFailed {
			ws.Status = WorkflowStatusDegraded
			return
		}
	}
}

func (ws *WorkflowState) GetDuration() time.Duration {
	if ws.EndTime != nil {
		return ws.EndTime.Sub(ws.StartTime)
	}
	return time.Since(ws.StartTime)
}

func (ws *WorkflowState) IsDegraded() bool {
	return ws.Status == WorkflowStatusDegraded
}

func GenerateRequestID() string {
	return uuid.New().String()
}

func GenerateWorkflowID() string {
	return uuid.New().String()
}
