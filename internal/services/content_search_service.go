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

	"golang.org/x/time/rate"

	"shopping-assistant-pipeline/internal/config"
	"shopping-assistant-pipeline/internal/models"
	"shopping-assistant-pipeline/internal/pkg/logger"
)

// TavilyService fetches descriptive snippets for a product title.
type TavilyService struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	config     config.TavilyConfig
	resilience *Resilience
	logger     *logger.Logger
}

type tavilySearchRequest struct {
	APIKey            string `json:"api_key"`
	Query             string `json:"query"`
	SearchDepth       string `json:"search_depth"`
	MaxResults        int    `json:"max_results"`
	IncludeAnswer     bool   `json:"include_answer"`
	IncludeRawContent bool   `json:"include_raw_content"`
}

type tavilySearchResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func NewTavilyService(cfg config.TavilyConfig, resilience *Resilience, log *logger.Logger) *TavilyService {
	return &TavilyService{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		config:     cfg,
		resilience: resilience,
		logger:     log,
	}
}

func (service *TavilyService) Search(ctx context.Context, query string) ([]string, error) {
	startTime := time.Now()

	if err := service.limiter.Wait(ctx); err != nil {
		return nil, models.NewTimeoutError("TAVILY_RATE_LIMIT", "Rate limiter wait cancelled").WithCause(err)
	}

	body, err := json.Marshal(tavilySearchRequest{
		APIKey:        service.config.APIKey,
		Query:         query,
		SearchDepth:   service.config.SearchDepth,
		MaxResults:    service.config.MaxResults,
		IncludeAnswer: true,
	})
	if err != nil {
		return nil, models.NewInternalError("SERIALIZATION_FAILED", "Failed to encode tavily request").WithCause(err)
	}

	response, err := Call(ctx, service.resilience, "tavily", func(callCtx context.Context) (*tavilySearchResponse, error) {
		return service.post(callCtx, body)
	})
	if err != nil {
		service.logger.LogService("tavily", "search", time.Since(startTime), map[string]any{"query": query}, err)
		return nil, err
	}

	fragments := make([]string, 0, len(response.Results))
	for _, result := range response.Results {
		if content := strings.TrimSpace(result.Content); content != "" {
			fragments = append(fragments, content)
		}
	}

	service.logger.LogService("tavily", "search", time.Since(startTime), map[string]any{
		"query":     query,
		"fragments": len(fragments),
	}, nil)

	return fragments, nil
}

func (service *TavilyService) post(ctx context.Context, body []byte) (*tavilySearchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, service.config.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build tavily request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+service.config.APIKey)

	resp, err := service.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tavily returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded tavilySearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode tavily response: %w", err)
	}
	return &decoded, nil
}
