package services

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopping-assistant-pipeline/internal/config"
	"shopping-assistant-pipeline/internal/models"
	"shopping-assistant-pipeline/internal/pkg/logger"
)

func TestSerpAPISearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "google_shopping", r.URL.Query().Get("engine"))
		assert.Equal(t, "gaming laptop", r.URL.Query().Get("q"))
		assert.Equal(t, "de", r.URL.Query().Get("gl"))
		assert.Equal(t, "secret", r.URL.Query().Get("api_key"))

		_, _ = w.Write([]byte(`{"shopping_results": [
			{"title": " Alpha ", "product_link": "https://shop.example/a", "price": "€899,00", "extracted_price": 899, "rating": 4.5, "reviews": "1,204", "source": "Shop"},
			{"title": "Beta", "link": "https://shop.example/b", "rating": "4.1", "reviews": 12},
			{"title": "Gamma", "link": "https://shop.example/c"}
		]}`))
	}))
	defer server.Close()

	service := NewSerpAPIService(config.SerpAPIConfig{
		APIKey:    "secret",
		BaseURL:   server.URL,
		Engine:    "google_shopping",
		Country:   "de",
		Limit:     2,
		Timeout:   5 * time.Second,
		RateLimit: math.Inf(1),
	}, nil, logger.NewNop())

	results, err := service.Search(context.Background(), "gaming laptop")

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Alpha", results[0].Title)
	assert.Equal(t, "https://shop.example/a", results[0].Link)
	require.NotNil(t, results[0].PriceNumeric)
	assert.Equal(t, 899.0, *results[0].PriceNumeric)
	require.NotNil(t, results[0].Reviews)
	assert.Equal(t, 1204, *results[0].Reviews)
	assert.Equal(t, "https://shop.example/b", results[1].Link)
	require.NotNil(t, results[1].Rating)
	assert.Equal(t, 4.1, *results[1].Rating)
}

func TestSerpAPISearch_NoResultsIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error": "Google hasn't returned any results for this query."}`))
	}))
	defer server.Close()

	service := NewSerpAPIService(config.SerpAPIConfig{BaseURL: server.URL, Limit: 20, Timeout: time.Second, RateLimit: math.Inf(1)}, nil, logger.NewNop())

	results, err := service.Search(context.Background(), "nothing")

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSerpAPISearch_HTTPErrorIsUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	service := NewSerpAPIService(config.SerpAPIConfig{BaseURL: server.URL, Limit: 20, Timeout: time.Second, RateLimit: math.Inf(1)},
		testResilience(0, 5, time.Second), logger.NewNop())

	_, err := service.Search(context.Background(), "laptop")

	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.ErrorTypeUpstream, appErr.Type)
}

func TestValidCandidateLink(t *testing.T) {
	assert.True(t, ValidCandidateLink("https://www.amazon.de/dp/123"))
	assert.False(t, ValidCandidateLink("https://www.reddit.com/r/laptops"))
	assert.False(t, ValidCandidateLink("https://youtube.com/watch?v=1"))
	assert.False(t, ValidCandidateLink("https://m.quora.com/q"))
	assert.True(t, ValidCandidateLink("https://notreddit.com/x"))
}

func TestTavilySearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body tavilySearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Alpha Laptop", body.Query)
		assert.Equal(t, "advanced", body.SearchDepth)
		assert.Equal(t, 2, body.MaxResults)

		_, _ = w.Write([]byte(`{"results": [{"content": "first fragment"}, {"content": "  "}, {"content": "second fragment"}]}`))
	}))
	defer server.Close()

	service := NewTavilyService(config.TavilyConfig{
		APIKey:      "key",
		BaseURL:     server.URL,
		SearchDepth: "advanced",
		MaxResults:  2,
		Timeout:     time.Second,
		RateLimit:   math.Inf(1),
	}, nil, logger.NewNop())

	fragments, err := service.Search(context.Background(), "Alpha Laptop")

	require.NoError(t, err)
	assert.Equal(t, []string{"first fragment", "second fragment"}, fragments)
}

func TestOllamaChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chat":
			var body ollamaChatRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.False(t, body.Stream)
			assert.Equal(t, "llama3", body.Model)
			require.Len(t, body.Messages, 2)
			assert.Equal(t, RoleSystem, body.Messages[0].Role)
			_, _ = w.Write([]byte(`{"message": {"role": "assistant", "content": "hello"}, "done": true}`))
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models": []}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	service := NewOllamaService(config.OllamaConfig{URL: server.URL + "/", Model: "llama3", Timeout: time.Second}, nil, logger.NewNop())

	reply, err := service.Chat(context.Background(), systemUser("sys", "hi"))

	require.NoError(t, err)
	assert.Equal(t, "hello", reply)
	assert.NoError(t, service.HealthCheck(context.Background()))
}

func TestOllamaChat_ErrorField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error": "model not found"}`))
	}))
	defer server.Close()

	service := NewOllamaService(config.OllamaConfig{URL: server.URL, Model: "missing", Timeout: time.Second}, nil, logger.NewNop())

	_, err := service.Chat(context.Background(), systemUser("sys", "hi"))

	assert.ErrorContains(t, err, "model not found")
}

func TestScraperScrape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Shop</title>
			<meta name="description" content="A compact espresso machine with 15 bar pressure.">
			</head><body>
			<h1>Espresso Pro</h1>
			<div id="feature-bullets"><ul><li>15 bar pump</li><li>Add to cart</li><li>Milk frother included</li></ul></div>
			</body></html>`))
	}))
	defer server.Close()

	service, err := NewScraperService(config.ScraperConfig{
		Enabled:     true,
		UserAgent:   "test-agent",
		Parallelism: 2,
		Timeout:     5 * time.Second,
		MaxContent:  1000,
	}, nil, logger.NewNop())
	require.NoError(t, err)

	content, err := service.Scrape(context.Background(), server.URL+"/product")

	require.NoError(t, err)
	assert.Contains(t, content, "Espresso Pro")
	assert.Contains(t, content, "15 bar pressure")
	assert.Contains(t, content, "Milk frother included")
	assert.NotContains(t, content, "Add to cart")
}

func TestScraperScrape_RejectsNonHTTP(t *testing.T) {
	service, err := NewScraperService(config.ScraperConfig{UserAgent: "ua", Parallelism: 1, Timeout: time.Second}, nil, logger.NewNop())
	require.NoError(t, err)

	_, err = service.Scrape(context.Background(), "ftp://example.com/file")

	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.ErrorTypeValidation, appErr.Type)
}
