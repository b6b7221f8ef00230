package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNoCredentials means the requested provider has no API key configured.
// Callers surface this before any generation state is touched.
var ErrNoCredentials = errors.New("no credentials configured for provider")

const (
	ProviderGemini       = "gemini"
	ProviderOpenAICompat = "openai"
)

type FactoryConfig struct {
	GeminiAPIKey      string
	GeminiModel       string
	OpenAICompatKey   string
	OpenAICompatURL   string
	OpenAICompatModel string
	CallTimeout       time.Duration
	RPS               float64
	Burst             int
}

// Factory builds provider clients wrapped with the standard middleware
// stack (timeout, rate limit, logging).
type Factory struct {
	cfg    FactoryConfig
	logger *zap.Logger
}

func NewFactory(cfg FactoryConfig, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{cfg: cfg, logger: logger}
}

// HasCredentials reports whether the named provider can be constructed.
func (f *Factory) HasCredentials(provider string) bool {
	switch normalizeProvider(provider) {
	case ProviderGemini:
		return f.cfg.GeminiAPIKey != ""
	case ProviderOpenAICompat:
		return f.cfg.OpenAICompatKey != ""
	}
	return false
}

// Resolve maps request-level provider/model hints to the concrete pair the
// factory would construct, applying provider aliases and configured model
// defaults. This is what gets stamped on variant records.
func (f *Factory) Resolve(provider, model string) (string, string) {
	p := normalizeProvider(provider)
	if model == "" {
		switch p {
		case ProviderGemini:
			model = f.cfg.GeminiModel
		case ProviderOpenAICompat:
			model = f.cfg.OpenAICompatModel
		}
	}
	return p, model
}

// Client returns a ready-to-use client for the provider. An empty provider
// selects gemini; an empty model selects the provider's configured default.
func (f *Factory) Client(ctx context.Context, provider, model string) (Client, error) {
	var (
		inner Client
		err   error
	)
	switch normalizeProvider(provider) {
	case ProviderGemini:
		if f.cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini: %w", ErrNoCredentials)
		}
		if model == "" {
			model = f.cfg.GeminiModel
		}
		inner, err = NewGeminiClient(ctx, f.cfg.GeminiAPIKey, model)
	case ProviderOpenAICompat:
		if f.cfg.OpenAICompatKey == "" {
			return nil, fmt.Errorf("openai-compatible: %w", ErrNoCredentials)
		}
		if model == "" {
			model = f.cfg.OpenAICompatModel
		}
		inner, err = NewOpenAICompatClient(f.cfg.OpenAICompatKey, f.cfg.OpenAICompatURL, model)
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	if err != nil {
		return nil, err
	}
	return Wrap(inner,
		WithLogging(f.logger),
		WithRateLimit(f.cfg.RPS, f.cfg.Burst),
		WithTimeout(f.cfg.CallTimeout),
	), nil
}

func normalizeProvider(provider string) string {
	p := strings.ToLower(strings.TrimSpace(provider))
	switch p {
	case "", ProviderGemini:
		return ProviderGemini
	case ProviderOpenAICompat, "openai-compat", "groq":
		return ProviderOpenAICompat
	}
	return p
}
