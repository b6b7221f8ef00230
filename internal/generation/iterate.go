package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"variantforge/internal/apperr"
	"variantforge/internal/domain"
	"variantforge/internal/repository/record"
)

// IterateRequest applies one refinement prompt to a completed variant.
// CurrentHTML is the caller's view of the variant's present content; it is
// recorded verbatim as the iteration's before-snapshot.
type IterateRequest struct {
	SessionID   string
	VariantID   string
	CurrentHTML string
	Prompt      string
	Provider    string
	Model       string
}

type IterateResult struct {
	Iteration       *domain.Iteration
	HTMLURL         string
	HTMLPath        string
	IterationNumber int
	DurationMs      int64
}

// Iterate runs the refinement non-streaming, stores the output as a new
// artifact (prior iteration artifacts are never overwritten), appends the
// history record and finally moves the variant's current pointer. Any
// failure before the append leaves no persistent change.
func (s *Service) Iterate(ctx context.Context, req IterateRequest) (*IterateResult, error) {
	if strings.TrimSpace(req.VariantID) == "" {
		return nil, apperr.Validation("variantId is required")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, apperr.Validation("iterationPrompt is required")
	}
	if strings.TrimSpace(req.CurrentHTML) == "" {
		return nil, apperr.Validation("currentHtml is required")
	}

	variant, err := s.records.GetVariantByID(ctx, req.VariantID)
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			return nil, apperr.Validation("variant not found")
		}
		return nil, apperr.Persistence("failed to load variant", err)
	}
	if variant.Status != domain.VariantComplete {
		return nil, apperr.Validation(
			fmt.Sprintf("variant is %s, only complete variants can be iterated", variant.Status))
	}
	next := variant.IterationCount + 1

	provider, model := s.providers.Resolve(req.Provider, req.Model)
	client, err := s.providers.Client(ctx, provider, model)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfiguration, "provider unavailable", err)
	}
	defer client.Close()

	start := time.Now()
	htmlAfter, err := client.Generate(ctx, buildIterationPrompt(req.CurrentHTML, req.Prompt))
	if err != nil {
		return nil, apperr.Provider("iteration call failed", err)
	}
	durationMs := time.Since(start).Milliseconds()

	if len(strings.TrimSpace(htmlAfter)) < minGeneratedLength {
		return nil, apperr.Validation(
			fmt.Sprintf("iteration output too short (%d bytes, need %d)", len(htmlAfter), minGeneratedLength))
	}

	path := iterationArtifactPath(variant.SessionID, variant.VariantIndex, next)
	url, err := s.artifacts.Put(ctx, path, []byte(htmlAfter))
	if err != nil {
		return nil, apperr.ArtifactStore("iteration artifact upload failed", err)
	}

	it := &domain.Iteration{
		ID:                   uuid.NewString(),
		VariantID:            variant.ID,
		SessionID:            variant.SessionID,
		VariantIndex:         variant.VariantIndex,
		IterationNumber:      next,
		Prompt:               req.Prompt,
		HTMLBefore:           req.CurrentHTML,
		HTMLAfter:            htmlAfter,
		GenerationModel:      model,
		GenerationDurationMs: durationMs,
		CreatedAt:            time.Now().UTC(),
	}
	if err := s.records.AppendIteration(ctx, it); err != nil {
		if errors.Is(err, record.ErrIterationConflict) {
			return nil, apperr.Wrap(apperr.KindPersistence, "concurrent iteration detected, reload and retry", err)
		}
		return nil, apperr.Persistence("failed to record iteration", err)
	}

	if err := s.records.SetVariantArtifact(ctx, variant.ID, path, url, next); err != nil {
		return nil, apperr.Persistence("failed to update variant pointer", err)
	}

	s.logger.Info("variant iterated",
		zap.String("variant_id", variant.ID),
		zap.Int("iteration", next),
		zap.Int64("duration_ms", durationMs))

	return &IterateResult{
		Iteration:       it,
		HTMLURL:         url,
		HTMLPath:        path,
		IterationNumber: next,
		DurationMs:      durationMs,
	}, nil
}

// Revert restores a variant to the state captured before a given iteration.
// The before-snapshot is re-uploaded as a brand new artifact and only the
// variant's current pointer moves: no iteration row is added, removed or
// renumbered, and iterationCount is untouched.
func (s *Service) Revert(ctx context.Context, variantID, iterationID string) (string, error) {
	variant, err := s.records.GetVariantByID(ctx, variantID)
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			return "", apperr.Validation("variant not found")
		}
		return "", apperr.Persistence("failed to load variant", err)
	}

	it, err := s.records.GetIteration(ctx, iterationID)
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			return "", apperr.Validation("iteration not found")
		}
		return "", apperr.Persistence("failed to load iteration", err)
	}
	if it.VariantID != variant.ID {
		return "", apperr.Validation("iteration does not belong to this variant")
	}

	path := revertArtifactPath(variant.SessionID, variant.VariantIndex, time.Now().UnixNano())
	url, err := s.artifacts.Put(ctx, path, []byte(it.HTMLBefore))
	if err != nil {
		return "", apperr.ArtifactStore("revert artifact upload failed", err)
	}

	if err := s.records.SetVariantArtifact(ctx, variant.ID, path, url, variant.IterationCount); err != nil {
		return "", apperr.Persistence("failed to update variant pointer", err)
	}

	s.logger.Info("variant reverted",
		zap.String("variant_id", variant.ID),
		zap.Int("to_before_iteration", it.IterationNumber))
	return url, nil
}
