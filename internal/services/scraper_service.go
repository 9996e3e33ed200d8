package services

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"shopping-assistant-pipeline/internal/config"
	"shopping-assistant-pipeline/internal/models"
	"shopping-assistant-pipeline/internal/pkg/logger"
)

var (
	whitespacePattern = regexp.MustCompile(`\s+`)
	unwantedPatterns  = []*regexp.Regexp{
		regexp.MustCompile(`(?i)javascript:void\(0\)`),
		regexp.MustCompile(`(?i)add to (cart|basket|wishlist)`),
		regexp.MustCompile(`(?i)subscribe to.*newsletter`),
		regexp.MustCompile(`(?i)accept (all )?cookies`),
	}
)

// ScraperService pulls descriptive text from a product detail page. It is the
// fallback when content search returns nothing for a candidate.
type ScraperService struct {
	collector   *colly.Collector
	logger      *logger.Logger
	config      config.ScraperConfig
	rateLimiter chan struct{}
	resilience  *Resilience

	mu         sync.Mutex
	userAgents []string
	uaIndex    int
}

type scrapeResult struct {
	content string
	err     error
}

func NewScraperService(cfg config.ScraperConfig, resilience *Resilience, log *logger.Logger) (*ScraperService, error) {
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: max(cfg.Parallelism, 1),
		Delay:       cfg.Delay,
	}); err != nil {
		return nil, fmt.Errorf("invalid scraper limit rule: %w", err)
	}
	collector.SetRequestTimeout(cfg.Timeout)

	service := &ScraperService{
		collector:   collector,
		logger:      log,
		config:      cfg,
		rateLimiter: make(chan struct{}, max(cfg.Parallelism, 1)),
		resilience:  resilience,
		userAgents: []string{
			cfg.UserAgent,
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/120.0",
		},
	}

	log.Info("Scraper Service initialized successfully",
		"parallelism", cfg.Parallelism,
		"delay", cfg.Delay.String(),
		"timeout", cfg.Timeout.String())

	return service, nil
}

func (service *ScraperService) Scrape(ctx context.Context, targetURL string) (string, error) {
	startTime := time.Now()

	parsedURL, err := url.Parse(targetURL)
	if err != nil || (parsedURL.Scheme != "http" && parsedURL.Scheme != "https") {
		return "", models.NewValidationError("INVALID_URL", "Unsupported product URL").WithMetadata("url", targetURL)
	}

	select {
	case service.rateLimiter <- struct{}{}:
		defer func() { <-service.rateLimiter }()
	case <-ctx.Done():
		return "", models.NewTimeoutError("SCRAPER_TIMEOUT", "Rate limiter timeout").WithCause(ctx.Err())
	}

	content, err := Call(ctx, service.resilience, "scraper", func(callCtx context.Context) (string, error) {
		return service.visit(callCtx, targetURL)
	})

	service.logger.LogService("scraper", "scrape_url", time.Since(startTime), map[string]any{
		"url":            targetURL,
		"domain":         parsedURL.Host,
		"content_length": len(content),
	}, err)

	return content, err
}

func (service *ScraperService) visit(ctx context.Context, targetURL string) (string, error) {
	c := service.collector.Clone()

	var (
		extracted  string
		statusCode int
		visitErr   error
	)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", service.nextUserAgent())
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9,de;q=0.8")
	})

	c.OnResponse(func(r *colly.Response) {
		statusCode = r.StatusCode
	})

	c.OnHTML("html", func(e *colly.HTMLElement) {
		extracted = service.extractProductText(e)
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			statusCode = r.StatusCode
		}
		visitErr = fmt.Errorf("HTTP %d: %w", statusCode, err)
	})

	done := make(chan scrapeResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- scrapeResult{err: fmt.Errorf("scraper panic: %v", r)}
			}
		}()

		if err := c.Visit(targetURL); err != nil && visitErr == nil {
			visitErr = err
		}
		done <- scrapeResult{content: extracted, err: visitErr}
	}()

	select {
	case result := <-done:
		if result.err != nil {
			return "", result.err
		}
		return service.cleanContent(result.content), nil
	case <-ctx.Done():
		return "", models.NewTimeoutError("SCRAPER_TIMEOUT", "Scraping request timed out").WithCause(ctx.Err())
	}
}

func (service *ScraperService) nextUserAgent() string {
	service.mu.Lock()
	defer service.mu.Unlock()

	userAgent := service.userAgents[service.uaIndex]
	service.uaIndex = (service.uaIndex + 1) % len(service.userAgents)
	return userAgent
}

// extractProductText gathers the title, meta description, description blocks
// and feature bullets of a product page.
func (service *ScraperService) extractProductText(e *colly.HTMLElement) string {
	var parts []string
	seen := make(map[string]bool)
	add := func(text string) {
		text = strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
		if len(text) < 3 || seen[text] {
			return
		}
		seen[text] = true
		parts = append(parts, text)
	}

	for _, sel := range []string{"h1", "[itemprop='name']", "title"} {
		if title := e.ChildText(sel); strings.TrimSpace(title) != "" {
			add(title)
			break
		}
	}

	for _, sel := range []string{"meta[name='description']", "meta[property='og:description']", "meta[itemprop='description']"} {
		add(e.ChildAttr(sel, "content"))
	}

	descriptionSelectors := []string{
		"[itemprop='description']", "#productDescription", ".product-description",
		".product-details", "#feature-bullets li", ".product-features li",
		"table.specs tr", ".specifications tr",
	}
	for _, sel := range descriptionSelectors {
		e.DOM.Find(sel).Each(func(_ int, s *goquery.Selection) {
			add(s.Text())
		})
	}

	if len(parts) <= 2 {
		e.DOM.Find("main p, article p, body p").Each(func(_ int, s *goquery.Selection) {
			if text := strings.TrimSpace(s.Text()); len(text) > 30 {
				add(text)
			}
		})
	}

	return strings.Join(parts, "\n")
}

func (service *ScraperService) cleanContent(content string) string {
	if content == "" {
		return content
	}

	for _, pattern := range unwantedPatterns {
		content = pattern.ReplaceAllString(content, "")
	}

	lines := strings.Split(content, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	content = strings.Join(kept, "\n")

	if limit := service.config.MaxContent; limit > 0 {
		if runes := []rune(content); len(runes) > limit {
			content = string(runes[:limit]) + "..."
		}
	}
	return content
}
