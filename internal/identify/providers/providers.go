// Package providers implements the identification services behind the chain:
// a card-vision service, general vision-language models and a generic
// computer-vision backup.
package providers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Veraticus/collectorstream/internal/common"
	"github.com/Veraticus/collectorstream/internal/identify"
	"github.com/Veraticus/collectorstream/internal/service"
)

// Provider names.
const (
	NameCardSight  = "cardsight"
	NameOpenAI     = "openai"
	NameAnthropic  = "anthropic"
	NameOpenRouter = "openrouter"
	NameXimilar    = "ximilar"
	NameTesseract  = "tesseract"
)

// DefaultOrder is the priority order: specialized card vision first, then the
// general vision models, then the generic backups.
var DefaultOrder = []string{NameCardSight, NameOpenAI, NameAnthropic, NameOpenRouter, NameXimilar, NameTesseract}

// DefaultOpenRouterModels are free-tier models tried in order.
var DefaultOpenRouterModels = []string{
	"nvidia/llama-3.1-nemotron-70b-instruct:free",
	"qwen/qwen-2.5-72b-instruct:free",
	"meta-llama/llama-3.2-90b-vision-instruct:free",
	"google/gemini-2.0-flash-exp:free",
}

// Default endpoints and models.
const (
	DefaultCardSightURL  = "https://api.cardsight.ai"
	DefaultOpenAIURL     = "https://api.openai.com"
	DefaultAnthropicURL  = "https://api.anthropic.com"
	DefaultOpenRouterURL = "https://openrouter.ai/api"
	DefaultXimilarURL    = "https://api.ximilar.com"

	DefaultOpenAIModel    = "gpt-4o"
	DefaultAnthropicModel = "claude-3-5-sonnet-latest"
	DefaultMaxTokens      = 1024
	DefaultRateLimit      = 60
)

// Endpoint holds credentials for a single-model service.
type Endpoint struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// OpenRouterConfig configures the OpenRouter providers, one per model.
type OpenRouterConfig struct {
	APIKey  string
	BaseURL string
	Models  []string
}

// TesseractConfig configures the local OCR backup.
type TesseractConfig struct {
	Languages []string
	Enabled   bool
}

// Config holds everything needed to build the provider list.
type Config struct {
	HTTPClient *http.Client
	CardSight  Endpoint
	OpenAI     Endpoint
	Anthropic  Endpoint
	Ximilar    Endpoint
	OpenRouter OpenRouterConfig
	Tesseract  TesseractConfig
	// Order overrides DefaultOrder. Unknown names are an error.
	Order []string
	Retry service.RetryOptions
	// RateLimit is requests per minute per provider.
	RateLimit int
}

// DefaultRetry retries throttled and failing calls briefly; the chain moves
// on rather than waiting long on one provider.
func DefaultRetry() service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  2,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
	}
}

// newHTTPClient mirrors the pooled transport used for all provider calls.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 90 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// withDefaults fills the shared HTTP client, rate limit and retry policy.
func withDefaults(cfg Config) Config {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = newHTTPClient()
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetry()
	}
	return cfg
}

// tesseractFactory is set by the tesseract build.
var tesseractFactory func(cfg TesseractConfig, logger *slog.Logger) (identify.Provider, error)

// Build creates providers in priority order. Providers without credentials
// are skipped with an info log.
func Build(cfg Config, logger *slog.Logger) ([]identify.Provider, error) {
	logger = common.ComponentLogger(logger, "providers")
	cfg = withDefaults(cfg)
	order := cfg.Order
	if len(order) == 0 {
		order = DefaultOrder
	}

	var built []identify.Provider
	for _, name := range order {
		name = strings.ToLower(strings.TrimSpace(name))
		switch name {
		case NameCardSight:
			if cfg.CardSight.APIKey == "" {
				logger.Info("skipping provider without API key", "provider", name)
				continue
			}
			built = append(built, newCardSight(cfg, logger))
		case NameOpenAI:
			if cfg.OpenAI.APIKey == "" {
				logger.Info("skipping provider without API key", "provider", name)
				continue
			}
			built = append(built, newOpenAI(cfg, logger))
		case NameAnthropic:
			if cfg.Anthropic.APIKey == "" {
				logger.Info("skipping provider without API key", "provider", name)
				continue
			}
			built = append(built, newAnthropic(cfg, logger))
		case NameOpenRouter:
			if cfg.OpenRouter.APIKey == "" {
				logger.Info("skipping provider without API key", "provider", name)
				continue
			}
			models := cfg.OpenRouter.Models
			if len(models) == 0 {
				models = DefaultOpenRouterModels
			}
			for _, m := range models {
				built = append(built, newOpenRouter(cfg, m, logger))
			}
		case NameXimilar:
			if cfg.Ximilar.APIKey == "" {
				logger.Info("skipping provider without API key", "provider", name)
				continue
			}
			built = append(built, newXimilar(cfg, logger))
		case NameTesseract:
			if !cfg.Tesseract.Enabled {
				continue
			}
			if tesseractFactory == nil {
				logger.Info("tesseract provider not compiled in", "provider", name)
				continue
			}
			p, err := tesseractFactory(cfg.Tesseract, logger)
			if err != nil {
				logger.Warn("tesseract provider unavailable", "error", err)
				continue
			}
			built = append(built, p)
		default:
			return nil, fmt.Errorf("%w: unknown provider %q", common.ErrInvalidConfig, name)
		}
	}
	return built, nil
}

// BuildChain builds the providers and wraps them in a chain. Requests
// without a sport hint get one from the sport detector when a vision key is
// configured.
func BuildChain(cfg Config, chainCfg identify.Config, logger *slog.Logger, opts ...identify.Option) (*identify.Chain, error) {
	built, err := Build(cfg, logger)
	if err != nil {
		return nil, err
	}
	if detector := BuildSportDetector(cfg, logger); detector != nil {
		opts = append([]identify.Option{identify.WithSportDetector(detector)}, opts...)
	}
	return identify.NewChain(built, chainCfg, logger, opts...)
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return strings.TrimRight(v, "/")
}
