package cmd

import (
	"fmt"

	"shopping-assistant-pipeline/internal/cache"
	"shopping-assistant-pipeline/internal/config"
	"shopping-assistant-pipeline/internal/pkg/logger"
	"shopping-assistant-pipeline/internal/services"
)

// app is the wired service graph shared by the serve and search commands.
type app struct {
	config       *config.Config
	logger       *logger.Logger
	orchestrator *services.Orchestrator
	redis        *services.RedisService
}

func loadConfigAndLogger(logToStderr bool) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logToStderr && (cfg.Log.Output == "" || cfg.Log.Output == "stdout") {
		cfg.Log.Output = "stderr"
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, log, nil
}

func newApp(cfg *config.Config, log *logger.Logger) (*app, error) {
	resilience := services.NewResilience(cfg.Resilience, cfg.Pipeline.CallTimeout, log)
	checks := make(map[string]services.HealthChecker)

	var generator services.TextGenerator
	switch cfg.LLM.Provider {
	case "ollama":
		ollama := services.NewOllamaService(cfg.Ollama, resilience, log)
		generator = ollama
		checks["ollama"] = ollama
	default:
		gemini, err := services.NewGeminiService(cfg.Gemini, resilience, log)
		if err != nil {
			return nil, err
		}
		generator = gemini
		checks["gemini"] = gemini
	}

	a := &app{config: cfg, logger: log}

	var store services.StateStore = services.NoopStore{}
	var remoteCache cache.Cache
	if cfg.Redis.URL != "" {
		redisService, err := services.NewRedisService(cfg.Redis, log)
		if err != nil {
			log.WithError(err).Warn("Redis unavailable, continuing without state store")
		} else {
			a.redis = redisService
			store = redisService
			remoteCache = cache.NewRedisCache(redisService.Client(), "cache:", cfg.Cache.TTL, log)
		}
	}

	var summaryCache cache.Cache = cache.NewTTLCache(cfg.Cache.Capacity, cfg.Cache.TTL)
	if remoteCache != nil {
		summaryCache = cache.NewTiered(summaryCache, remoteCache)
	}

	var scraper services.PageScraper
	if cfg.Scraper.Enabled {
		scraperService, err := services.NewScraperService(cfg.Scraper, resilience, log)
		if err != nil {
			return nil, err
		}
		scraper = scraperService
	}

	pipeline := services.Pipeline{
		Interpreter: services.NewQueryInterpreter(generator, log),
		Source:      services.NewSerpAPIService(cfg.SerpAPI, resilience, log),
		Enricher: services.NewEnricher(
			services.NewTavilyService(cfg.Tavily, resilience, log),
			scraper,
			generator,
			summaryCache,
			cfg.Pipeline.EnrichWorkers,
			log,
		),
		Ranker:      services.NewRanker(generator, log),
		Recommender: services.NewRecommender(generator, log),
	}
	if cfg.Pipeline.ComparisonEnabled {
		pipeline.Comparator = services.NewComparator(generator, summaryCache, log)
	}

	a.orchestrator = services.NewOrchestrator(pipeline, store, resilience, checks, cfg.Pipeline, log)
	return a, nil
}

func (a *app) Close() {
	if err := a.orchestrator.Close(); err != nil {
		a.logger.WithError(err).Error("Failed to close orchestrator")
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.WithError(err).Error("Failed to close redis")
		}
	}
}
