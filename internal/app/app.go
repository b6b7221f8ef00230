package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"variantforge/internal/auth"
	"variantforge/internal/config"
	"variantforge/internal/generation"
	"variantforge/internal/handler"
	"variantforge/internal/llm"
	"variantforge/internal/logging"
	"variantforge/internal/server"
)

type App struct {
	server *server.Server
	logger *zap.Logger
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	st, err := initStores(cfg, logger)
	if err != nil {
		return nil, err
	}

	providers := llm.NewFactory(llm.FactoryConfig{
		GeminiAPIKey:      cfg.Provider.GeminiAPIKey,
		GeminiModel:       cfg.Provider.GeminiModel,
		OpenAICompatKey:   cfg.Provider.OpenAICompatKey,
		OpenAICompatURL:   cfg.Provider.OpenAICompatURL,
		OpenAICompatModel: cfg.Provider.OpenAICompatModel,
		CallTimeout:       cfg.Generation.StreamTimeout,
		RPS:               2,
		Burst:             4,
	}, logger)

	svc := generation.NewService(st.records, st.artifacts, providers, cfg.Generation.VariantCount, logger)
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret)
	if !verifier.Enabled() {
		logger.Warn("auth disabled: AUTH_JWT_SECRET not set")
	}

	mux := handler.NewMux(handler.New(svc, verifier, logger))
	srv := server.New(cfg.Port, mux, logger)

	return &App{server: srv, logger: logger}, nil
}

func (a *App) Start() error {
	return a.server.Start()
}

func (a *App) Shutdown(ctx context.Context) error {
	defer a.logger.Sync()
	return a.server.Shutdown(ctx)
}
