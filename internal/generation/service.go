package generation

import (
	"context"

	"go.uber.org/zap"

	"variantforge/internal/llm"
	"variantforge/internal/repository/artifact"
	"variantforge/internal/repository/record"
)

// Provider hands out model clients. *llm.Factory is the production
// implementation; tests substitute their own.
type Provider interface {
	Resolve(provider, model string) (string, string)
	HasCredentials(provider string) bool
	Client(ctx context.Context, provider, model string) (llm.Client, error)
}

const (
	// eventBuffer sizes each variant's event channel; chunk production
	// blocks (cooperatively, ctx-aware) once the consumer falls this far
	// behind.
	eventBuffer = 128

	// minGeneratedLength is the smallest accepted output, bytes after
	// trimming. Anything shorter is treated as garbage and never persisted.
	minGeneratedLength = 100
)

// Service hosts the orchestrator, the completion aggregator, the iteration
// manager and the session lifecycle. Concurrent variant generations share
// nothing but the record store.
type Service struct {
	records      record.Store
	artifacts    artifact.Store
	providers    Provider
	logger       *zap.Logger
	variantCount int
}

func NewService(records record.Store, artifacts artifact.Store, providers Provider, variantCount int, logger *zap.Logger) *Service {
	if variantCount <= 0 {
		variantCount = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		records:      records,
		artifacts:    artifacts,
		providers:    providers,
		logger:       logger,
		variantCount: variantCount,
	}
}

func (s *Service) VariantCount() int { return s.variantCount }
