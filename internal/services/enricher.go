package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"shopping-assistant-pipeline/internal/cache"
	"shopping-assistant-pipeline/internal/models"
	"shopping-assistant-pipeline/internal/parser"
	"shopping-assistant-pipeline/internal/pkg/logger"
)

// EnrichReport counts what the enrichment stage did across all candidates.
type EnrichReport struct {
	ContentSearches int            `json:"content_searches"`
	ScraperFallback int            `json:"scraper_fallbacks"`
	Generations     int            `json:"generations"`
	CacheHits       int            `json:"cache_hits"`
	Failures        int            `json:"failures"`
	Layers          map[string]int `json:"layers"`
}

// Err is a partial batch error when any candidate fell back to defaults.
func (r EnrichReport) Err(total int) error {
	if r.Failures == 0 {
		return nil
	}
	return models.NewPartialBatchError("ENRICH_PARTIAL_FAILURE",
		fmt.Sprintf("%d enrichment failures across %d products", r.Failures, total)).
		WithMetadata("failures", r.Failures)
}

type Enricher struct {
	content   ContentSearcher
	scraper   PageScraper
	generator TextGenerator
	cache     cache.Cache
	workers   int
	logger    *logger.Logger
}

// enrichTally collects one run's counters across workers.
type enrichTally struct {
	mu     sync.Mutex
	report EnrichReport
}

func (t *enrichTally) add(update func(r *EnrichReport)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	update(&t.report)
}

// NewEnricher builds the enrichment stage. scraper and specCache may be nil.
func NewEnricher(content ContentSearcher, scraper PageScraper, generator TextGenerator, specCache cache.Cache, workers int, log *logger.Logger) *Enricher {
	return &Enricher{
		content:   content,
		scraper:   scraper,
		generator: generator,
		cache:     specCache,
		workers:   max(workers, 1),
		logger:    log,
	}
}

// Enrich attaches details and a specification to every candidate. The output
// has the same length and order as the input; a failure on one candidate
// never affects another.
func (e *Enricher) Enrich(ctx context.Context, candidates []models.Candidate) ([]models.Candidate, EnrichReport) {
	enriched := make([]models.Candidate, len(candidates))
	copy(enriched, candidates)

	tally := &enrichTally{report: EnrichReport{Layers: make(map[string]int)}}

	g := new(errgroup.Group)
	g.SetLimit(e.workers)

	for i := range enriched {
		g.Go(func() error {
			e.enrichOne(ctx, &enriched[i], tally)
			return nil
		})
	}
	_ = g.Wait()

	return enriched, tally.report
}

func (e *Enricher) enrichOne(ctx context.Context, candidate *models.Candidate, tally *enrichTally) {
	startTime := time.Now()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Enrichment panicked", "title", candidate.Title, "panic", fmt.Sprint(r))
			if candidate.Details == "" {
				candidate.Details = models.NoDetailsFound
			}
			spec := models.DefaultSpecification()
			candidate.Specification = &spec
			tally.add(func(r *EnrichReport) { r.Failures++ })
		}
	}()

	candidate.Details = e.details(ctx, candidate, tally)

	spec, layer := e.specification(ctx, candidate, tally)
	candidate.Specification = &spec

	e.logger.LogAgent("", string(models.StageEnrich), "enrich_candidate", time.Since(startTime), map[string]any{
		"title":          candidate.Title,
		"details_length": len(candidate.Details),
		"spec_layer":     layer,
	}, nil)
}

func (e *Enricher) details(ctx context.Context, candidate *models.Candidate, tally *enrichTally) string {
	tally.add(func(r *EnrichReport) { r.ContentSearches++ })

	fragments, err := e.content.Search(ctx, candidate.Title)
	if err != nil {
		e.logger.WithError(err).Warn("Content search failed", "title", candidate.Title)
		tally.add(func(r *EnrichReport) { r.Failures++ })
	}

	details := strings.TrimSpace(strings.Join(fragments, "\n"))
	if details != "" {
		return details
	}

	if e.scraper != nil && candidate.URL != "" && ValidCandidateLink(candidate.URL) {
		tally.add(func(r *EnrichReport) { r.ScraperFallback++ })
		scraped, err := e.scraper.Scrape(ctx, candidate.URL)
		if err != nil {
			e.logger.WithError(err).Debug("Scraper fallback failed", "url", candidate.URL)
		} else if scraped = strings.TrimSpace(scraped); scraped != "" {
			return scraped
		}
	}

	return models.NoDetailsFound
}

func (e *Enricher) specification(ctx context.Context, candidate *models.Candidate, tally *enrichTally) (models.Specification, parser.SpecLayer) {
	key := cache.ContentKey("spec:", candidate.Title+"\n"+candidate.Details)

	if e.cache != nil {
		var cached models.Specification
		if cache.GetJSON(ctx, e.cache, key, &cached) {
			tally.add(func(r *EnrichReport) { r.CacheHits++ })
			cached.Normalize()
			return cached, parser.LayerJSON
		}
	}

	tally.add(func(r *EnrichReport) { r.Generations++ })
	response, err := e.generator.Chat(ctx, systemUser(
		"You are a product analyst. Reply with a single JSON object and nothing else.",
		buildSpecificationPrompt(candidate.Title, candidate.Details),
	))
	if err != nil {
		e.logger.WithError(err).Warn("Specification generation failed", "title", candidate.Title)
		tally.add(func(r *EnrichReport) {
			r.Failures++
			r.Layers[string(parser.LayerDefault)]++
		})
		return models.DefaultSpecification(), parser.LayerDefault
	}

	spec, layer := parser.ParseSpecification(response)
	tally.add(func(r *EnrichReport) { r.Layers[string(layer)]++ })

	if layer == parser.LayerDefault {
		malformed := models.NewMalformedOutputError("SPEC_UNPARSEABLE", "specification response matched no known format").
			WithMetadata("title", candidate.Title)
		e.logger.WithError(malformed).Warn("Using default specification", "response_length", len(response))
	}

	if e.cache != nil && layer != parser.LayerDefault {
		cache.SetJSON(ctx, e.cache, key, spec)
	}

	return spec, layer
}

func buildSpecificationPrompt(title, details string) string {
	return fmt.Sprintf(`Summarize the product below.

Product: %s
Details:
%s

Respond with JSON using exactly these keys:
{
  "key_features": ["..."],
  "pros": ["..."],
  "cons": ["..."],
  "summary": "..."
}
key_features, pros and cons must each be a list with at least 3 entries.
summary must be a single string.`, title, details)
}
