package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"shopping-assistant-pipeline/internal/config"
	"shopping-assistant-pipeline/internal/models"
	"shopping-assistant-pipeline/internal/pkg/logger"
	"shopping-assistant-pipeline/internal/scoring"
)

// SerpAPIService searches Google Shopping through SerpAPI.
type SerpAPIService struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	config     config.SerpAPIConfig
	resilience *Resilience
	logger     *logger.Logger
}

type serpAPIResponse struct {
	ShoppingResults []serpAPIProduct `json:"shopping_results"`
	Error           string           `json:"error,omitempty"`
}

type serpAPIProduct struct {
	Title          string          `json:"title"`
	ProductLink    string          `json:"product_link"`
	Link           string          `json:"link"`
	Source         string          `json:"source"`
	Price          string          `json:"price"`
	ExtractedPrice *float64        `json:"extracted_price"`
	OldPrice       string          `json:"old_price"`
	Rating         json.RawMessage `json:"rating"`
	Reviews        json.RawMessage `json:"reviews"`
	Thumbnail      string          `json:"thumbnail"`
	Extensions     []string        `json:"extensions"`
}

func NewSerpAPIService(cfg config.SerpAPIConfig, resilience *Resilience, log *logger.Logger) *SerpAPIService {
	return &SerpAPIService{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		config:     cfg,
		resilience: resilience,
		logger:     log,
	}
}

func (service *SerpAPIService) Search(ctx context.Context, query string) ([]models.RawCandidate, error) {
	startTime := time.Now()

	if err := service.limiter.Wait(ctx); err != nil {
		return nil, models.NewTimeoutError("SERPAPI_RATE_LIMIT", "Rate limiter wait cancelled").WithCause(err)
	}

	response, err := Call(ctx, service.resilience, "serpapi", func(callCtx context.Context) (*serpAPIResponse, error) {
		return service.fetch(callCtx, query)
	})
	if err != nil {
		service.logger.LogService("serpapi", "search", time.Since(startTime), map[string]any{"query": query}, err)
		return nil, err
	}

	limit := service.config.Limit
	products := make([]models.RawCandidate, 0, min(len(response.ShoppingResults), limit))
	for _, result := range response.ShoppingResults {
		if len(products) >= limit {
			break
		}
		products = append(products, result.toRaw())
	}

	if len(products) == 0 {
		service.logger.WithError(models.ErrNoCandidates).Info("Product search returned no results", "query", query)
	}

	service.logger.LogService("serpapi", "search", time.Since(startTime), map[string]any{
		"query":    query,
		"returned": len(response.ShoppingResults),
		"kept":     len(products),
	}, nil)

	return products, nil
}

func (service *SerpAPIService) fetch(ctx context.Context, query string) (*serpAPIResponse, error) {
	params := url.Values{}
	params.Set("api_key", service.config.APIKey)
	params.Set("engine", service.config.Engine)
	params.Set("q", query)
	params.Set("gl", service.config.Country)
	params.Set("num", strconv.Itoa(service.config.Limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, service.config.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build serpapi request: %w", err)
	}

	resp, err := service.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serpapi request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("serpapi returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded serpAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode serpapi response: %w", err)
	}
	if decoded.Error != "" && len(decoded.ShoppingResults) == 0 {
		// SerpAPI reports an empty result set as an error string.
		if strings.Contains(strings.ToLower(decoded.Error), "hasn't returned any results") {
			return &decoded, nil
		}
		return nil, fmt.Errorf("serpapi error: %s", decoded.Error)
	}

	return &decoded, nil
}

func (product serpAPIProduct) toRaw() models.RawCandidate {
	link := product.ProductLink
	if link == "" {
		link = product.Link
	}

	return models.RawCandidate{
		Title:        strings.TrimSpace(product.Title),
		Link:         link,
		Source:       product.Source,
		PriceDisplay: product.Price,
		PriceNumeric: product.ExtractedPrice,
		OldPrice:     product.OldPrice,
		Rating:       scoring.ParseRating(rawScalar(product.Rating)),
		Reviews:      scoring.ParseReviewCount(rawScalar(product.Reviews)),
		Image:        product.Thumbnail,
		Extensions:   product.Extensions,
	}
}

// rawScalar renders a JSON number or string as plain text.
func rawScalar(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

var bannedDomains = []string{"reddit.com", "quora.com", "youtube.com"}

// ValidCandidateLink rejects discussion and video sites.
func ValidCandidateLink(link string) bool {
	parsed, err := url.Parse(link)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	for _, domain := range bannedDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return false
		}
	}
	return true
}
