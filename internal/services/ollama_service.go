package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"shopping-assistant-pipeline/internal/config"
	"shopping-assistant-pipeline/internal/models"
	"shopping-assistant-pipeline/internal/pkg/logger"
)

// OllamaService talks to a local Ollama server's /api/chat endpoint.
type OllamaService struct {
	httpClient *http.Client
	config     config.OllamaConfig
	resilience *Resilience
	logger     *logger.Logger
}

type ollamaChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type ollamaChatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error,omitempty"`
}

func NewOllamaService(cfg config.OllamaConfig, resilience *Resilience, log *logger.Logger) *OllamaService {
	log.Info("AI service Initialized Successfully - Ollama", "url", cfg.URL, "model", cfg.Model)

	return &OllamaService{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		resilience: resilience,
		logger:     log,
	}
}

func (service *OllamaService) Chat(ctx context.Context, messages []Message) (string, error) {
	startTime := time.Now()

	body, err := json.Marshal(ollamaChatRequest{
		Model:    service.config.Model,
		Messages: messages,
		Stream:   false,
	})
	if err != nil {
		return "", models.NewInternalError("SERIALIZATION_FAILED", "Failed to encode ollama request").WithCause(err)
	}

	response, err := Call(ctx, service.resilience, "ollama", func(callCtx context.Context) (*ollamaChatResponse, error) {
		return service.post(callCtx, body)
	})
	if err != nil {
		service.logger.LogService("ollama", "chat", time.Since(startTime), map[string]any{
			"model":    service.config.Model,
			"messages": len(messages),
		}, err)
		return "", err
	}

	service.logger.LogService("ollama", "chat", time.Since(startTime), map[string]any{
		"model":           service.config.Model,
		"response_length": len(response.Message.Content),
		"tokens_used":     response.PromptEvalCount + response.EvalCount,
	}, nil)

	return response.Message.Content, nil
}

func (service *OllamaService) post(ctx context.Context, body []byte) (*ollamaChatResponse, error) {
	endpoint := strings.TrimRight(service.config.URL, "/") + "/api/chat"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := service.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode ollama response: %w", err)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("ollama error: %s", decoded.Error)
	}

	return &decoded, nil
}

func (service *OllamaService) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(service.config.URL, "/")+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := service.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Ollama Connection Unhealthy: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Ollama Connection Unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
