package services

import (
	"context"

	"shopping-assistant-pipeline/internal/models"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TextGenerator returns untrusted free text; callers parse it themselves.
type TextGenerator interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

type ProductSource interface {
	Search(ctx context.Context, query string) ([]models.RawCandidate, error)
}

// ContentSearcher returns text fragments about a query; an empty result is
// valid.
type ContentSearcher interface {
	Search(ctx context.Context, query string) ([]string, error)
}

type PageScraper interface {
	Scrape(ctx context.Context, url string) (string, error)
}

type StateStore interface {
	StoreWorkflowState(ctx context.Context, state *models.WorkflowState) error
	GetWorkflowState(ctx context.Context, workflowID string) (*models.WorkflowState, error)
	PublishStageUpdate(ctx context.Context, update *models.StageUpdate) error
	HealthCheck(ctx context.Context) error
}

// NoopStore is used when no redis is configured.
type NoopStore struct{}

func (NoopStore) StoreWorkflowState(context.Context, *models.WorkflowState) error { return nil }

func (NoopStore) GetWorkflowState(_ context.Context, workflowID string) (*models.WorkflowState, error) {
	return nil, models.ErrWorkflowNotFound.WithMetadata("workflow_id", workflowID)
}

func (NoopStore) PublishStageUpdate(context.Context, *models.StageUpdate) error { return nil }

func (NoopStore) HealthCheck(context.Context) error { return nil }

func systemUser(system, user string) []Message {
	return []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: user},
	}
}
