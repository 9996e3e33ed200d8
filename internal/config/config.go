package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`

	HTTP       HTTPConfig       `yaml:"http"`
	LLM        LLMConfig        `yaml:"llm"`
	Gemini     GeminiConfig     `yaml:"gemini"`
	Ollama     OllamaConfig     `yaml:"ollama"`
	SerpAPI    SerpAPIConfig    `yaml:"serpapi"`
	Tavily     TavilyConfig     `yaml:"tavily"`
	Scraper    ScraperConfig    `yaml:"scraper"`
	Redis      RedisConfig      `yaml:"redis"`
	Cache      CacheConfig      `yaml:"cache"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Log        LogConfig        `yaml:"log"`
}

type HTTPConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LLMConfig struct {
	// gemini or ollama
	Provider string `yaml:"provider"`
}

type GeminiConfig struct {
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

type OllamaConfig struct {
	URL     string        `yaml:"url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

type SerpAPIConfig struct {
	APIKey    string        `yaml:"api_key"`
	BaseURL   string        `yaml:"base_url"`
	Engine    string        `yaml:"engine"`
	Country   string        `yaml:"country"`
	Limit     int           `yaml:"limit"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"`
}

type TavilyConfig struct {
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	SearchDepth string        `yaml:"search_depth"`
	MaxResults  int           `yaml:"max_results"`
	Timeout     time.Duration `yaml:"timeout"`
	RateLimit   float64       `yaml:"rate_limit"`
}

type ScraperConfig struct {
	Enabled     bool          `yaml:"enabled"`
	UserAgent   string        `yaml:"user_agent"`
	Parallelism int           `yaml:"parallelism"`
	Delay       time.Duration `yaml:"delay"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxContent  int           `yaml:"max_content"`
}

type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	StateTTL     time.Duration `yaml:"state_ttl"`
}

type CacheConfig struct {
	Capacity int           `yaml:"capacity"`
	TTL      time.Duration `yaml:"ttl"`
}

type PipelineConfig struct {
	EnrichWorkers     int           `yaml:"enrich_workers"`
	CallTimeout       time.Duration `yaml:"call_timeout"`
	ComparisonEnabled bool          `yaml:"comparison_enabled"`
}

type ResilienceConfig struct {
	MaxRetries      int           `yaml:"max_retries"`
	InitialBackoff  time.Duration `yaml:"initial_backoff"`
	MaxBackoff      time.Duration `yaml:"max_backoff"`
	BreakerFailures int           `yaml:"breaker_failures"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

func Default() *Config {
	return &Config{
		Environment: "development",
		HTTP: HTTPConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		LLM: LLMConfig{Provider: "gemini"},
		Gemini: GeminiConfig{
			Model:       "gemini-2.5-flash",
			MaxTokens:   4096,
			Temperature: 0.3,
			Timeout:     60 * time.Second,
		},
		Ollama: OllamaConfig{
			URL:     "http://localhost:11434",
			Model:   "llama3.1",
			Timeout: 120 * time.Second,
		},
		SerpAPI: SerpAPIConfig{
			BaseURL:   "https://serpapi.com/search.json",
			Engine:    "google_shopping",
			Country:   "de",
			Limit:     20,
			Timeout:   30 * time.Second,
			RateLimit: 5,
		},
		Tavily: TavilyConfig{
			BaseURL:     "https://api.tavily.com/search",
			SearchDepth: "advanced",
			MaxResults:  2,
			Timeout:     30 * time.Second,
			RateLimit:   5,
		},
		Scraper: ScraperConfig{
			Enabled:     true,
			UserAgent:   "ShoppingAssistant/1.0",
			Parallelism: 2,
			Delay:       1 * time.Second,
			Timeout:     20 * time.Second,
			MaxContent:  5000,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			DialTimeout:  5 * time.Second,
			StateTTL:     6 * time.Hour,
		},
		Cache: CacheConfig{
			Capacity: 100,
			TTL:      time.Hour,
		},
		Pipeline: PipelineConfig{
			EnrichWorkers:     3,
			CallTimeout:       30 * time.Second,
			ComparisonEnabled: true,
		},
		Resilience: ResilienceConfig{
			MaxRetries:      2,
			InitialBackoff:  500 * time.Millisecond,
			MaxBackoff:      5 * time.Second,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			File:       "logs/pipeline.log",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}

// Load resolves configuration from defaults, CONFIG_FILE (yaml), .env and
// the process environment, in that order of increasing precedence.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (cfg *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("error parsing config file %s: %w", path, err)
	}
	return nil
}

func (cfg *Config) applyEnv() error {
	var errs []error
	intVar := func(key string, target *int) {
		if err := setInt(key, target); err != nil {
			errs = append(errs, err)
		}
	}
	durVar := func(key string, target *time.Duration) {
		if err := setDuration(key, target); err != nil {
			errs = append(errs, err)
		}
	}
	floatVar := func(key string, target *float64) {
		if err := setFloat(key, target); err != nil {
			errs = append(errs, err)
		}
	}
	boolVar := func(key string, target *bool) {
		if err := setBool(key, target); err != nil {
			errs = append(errs, err)
		}
	}

	setString("ENVIRONMENT", &cfg.Environment)

	intVar("PORT", &cfg.HTTP.Port)
	durVar("HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout)
	durVar("HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout)
	durVar("HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout)
	durVar("HTTP_SHUTDOWN_TIMEOUT", &cfg.HTTP.ShutdownTimeout)

	setString("LLM_PROVIDER", &cfg.LLM.Provider)

	setString("GEMINI_API_KEY", &cfg.Gemini.APIKey)
	setString("GEMINI_MODEL", &cfg.Gemini.Model)
	intVar("GEMINI_MAX_TOKENS", &cfg.Gemini.MaxTokens)
	floatVar("GEMINI_TEMPERATURE", &cfg.Gemini.Temperature)
	durVar("GEMINI_TIMEOUT", &cfg.Gemini.Timeout)

	setString("OLLAMA_URL", &cfg.Ollama.URL)
	setString("OLLAMA_MODEL", &cfg.Ollama.Model)
	durVar("OLLAMA_TIMEOUT", &cfg.Ollama.Timeout)

	setString("SERPAPI_KEY", &cfg.SerpAPI.APIKey)
	setString("SERPAPI_BASE_URL", &cfg.SerpAPI.BaseURL)
	setString("SERPAPI_ENGINE", &cfg.SerpAPI.Engine)
	setString("SERPAPI_COUNTRY", &cfg.SerpAPI.Country)
	intVar("SERPAPI_LIMIT", &cfg.SerpAPI.Limit)
	durVar("SERPAPI_TIMEOUT", &cfg.SerpAPI.Timeout)
	floatVar("SERPAPI_RATE_LIMIT", &cfg.SerpAPI.RateLimit)

	setString("TAVILY_API_KEY", &cfg.Tavily.APIKey)
	setString("TAVILY_BASE_URL", &cfg.Tavily.BaseURL)
	setString("TAVILY_SEARCH_DEPTH", &cfg.Tavily.SearchDepth)
	intVar("TAVILY_MAX_RESULTS", &cfg.Tavily.MaxResults)
	durVar("TAVILY_TIMEOUT", &cfg.Tavily.Timeout)
	floatVar("TAVILY_RATE_LIMIT", &cfg.Tavily.RateLimit)

	boolVar("SCRAPER_ENABLED", &cfg.Scraper.Enabled)
	setString("SCRAPER_USER_AGENT", &cfg.Scraper.UserAgent)
	intVar("SCRAPER_PARALLELISM", &cfg.Scraper.Parallelism)
	durVar("SCRAPER_DELAY", &cfg.Scraper.Delay)
	durVar("SCRAPER_TIMEOUT", &cfg.Scraper.Timeout)
	intVar("SCRAPER_MAX_CONTENT", &cfg.Scraper.MaxContent)

	setString("REDIS_URL", &cfg.Redis.URL)
	intVar("REDIS_POOL_SIZE", &cfg.Redis.PoolSize)
	durVar("REDIS_READ_TIMEOUT", &cfg.Redis.ReadTimeout)
	durVar("REDIS_WRITE_TIMEOUT", &cfg.Redis.WriteTimeout)
	durVar("REDIS_DIAL_TIMEOUT", &cfg.Redis.DialTimeout)
	durVar("REDIS_STATE_TTL", &cfg.Redis.StateTTL)

	intVar("CACHE_CAPACITY", &cfg.Cache.Capacity)
	durVar("CACHE_TTL", &cfg.Cache.TTL)

	intVar("PIPELINE_ENRICH_WORKERS", &cfg.Pipeline.EnrichWorkers)
	durVar("PIPELINE_CALL_TIMEOUT", &cfg.Pipeline.CallTimeout)
	boolVar("PIPELINE_COMPARISON_ENABLED", &cfg.Pipeline.ComparisonEnabled)

	intVar("RESILIENCE_MAX_RETRIES", &cfg.Resilience.MaxRetries)
	durVar("RESILIENCE_INITIAL_BACKOFF", &cfg.Resilience.InitialBackoff)
	durVar("RESILIENCE_MAX_BACKOFF", &cfg.Resilience.MaxBackoff)
	intVar("RESILIENCE_BREAKER_FAILURES", &cfg.Resilience.BreakerFailures)
	durVar("RESILIENCE_BREAKER_TIMEOUT", &cfg.Resilience.BreakerTimeout)

	setString("LOG_LEVEL", &cfg.Log.Level)
	setString("LOG_FORMAT", &cfg.Log.Format)
	setString("LOG_OUTPUT", &cfg.Log.Output)
	setString("LOG_FILE", &cfg.Log.File)
	intVar("LOG_MAX_SIZE_MB", &cfg.Log.MaxSizeMB)
	intVar("LOG_MAX_BACKUPS", &cfg.Log.MaxBackups)
	intVar("LOG_MAX_AGE_DAYS", &cfg.Log.MaxAgeDays)

	return errors.Join(errs...)
}

func (cfg *Config) Validate() error {
	var errs []error

	switch cfg.LLM.Provider {
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required when LLM_PROVIDER=gemini"))
		}
	case "ollama":
		if cfg.Ollama.URL == "" {
			errs = append(errs, errors.New("OLLAMA_URL is required when LLM_PROVIDER=ollama"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported LLM_PROVIDER %q", cfg.LLM.Provider))
	}

	if cfg.SerpAPI.APIKey == "" {
		errs = append(errs, errors.New("SERPAPI_KEY is required"))
	}
	if cfg.Tavily.APIKey == "" {
		errs = append(errs, errors.New("TAVILY_API_KEY is required"))
	}

	if cfg.SerpAPI.Limit <= 0 || cfg.SerpAPI.Limit > 20 {
		errs = append(errs, fmt.Errorf("SERPAPI_LIMIT must be between 1 and 20, got %d", cfg.SerpAPI.Limit))
	}
	if cfg.Pipeline.EnrichWorkers <= 0 {
		errs = append(errs, fmt.Errorf("PIPELINE_ENRICH_WORKERS must be positive, got %d", cfg.Pipeline.EnrichWorkers))
	}
	if cfg.Cache.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("CACHE_CAPACITY must be positive, got %d", cfg.Cache.Capacity))
	}

	return errors.Join(errs...)
}

func (cfg *Config) IsProduction() bool {
	return strings.EqualFold(cfg.Environment, "production")
}

func setString(key string, target *string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	}
}

func setInt(key string, target *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("error parsing %s: %w", key, err)
	}
	*target = parsed
	return nil
}

func setFloat(key string, target *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("error parsing %s: %w", key, err)
	}
	*target = parsed
	return nil
}

func setBool(key string, target *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("error parsing %s: %w", key, err)
	}
	*target = parsed
	return nil
}

// Durations accept Go syntax ("45s") or a bare number of seconds.
func setDuration(key string, target *time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		*target = time.Duration(seconds) * time.Second
		return nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("error parsing %s: %w", key, err)
	}
	*target = parsed
	return nil
}
