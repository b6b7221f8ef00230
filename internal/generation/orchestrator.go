package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"variantforge/internal/apperr"
	"variantforge/internal/domain"
	"variantforge/internal/llm"
)

// GenerateRequest identifies one variant generation. Plan may be supplied
// inline (the streaming endpoint carries it in the request body); when nil
// it is loaded by PlanID.
type GenerateRequest struct {
	SessionID    string
	PlanID       string
	VariantIndex int
	Plan         *domain.VariantPlan
	SourceHTML   string
	Provider     string
	Model        string
}

// Generate drives one variant through streamed generation and returns its
// event stream. The channel is closed after exactly one terminal event.
// Failures are per-variant: nothing here ever touches a sibling variant or
// fails the session.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) <-chan Event {
	events := make(chan Event, eventBuffer)
	go func() {
		defer close(events)
		s.runGeneration(ctx, req, events)
	}()
	return events
}

func (s *Service) runGeneration(ctx context.Context, req GenerateRequest, events chan<- Event) {
	emit := func(ev Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	if err := validateGenerateRequest(req); err != nil {
		emit(errorEvent(err.Error()))
		return
	}

	// Configuration problems are rejected before any variant state changes.
	provider, model := s.providers.Resolve(req.Provider, req.Model)
	client, err := s.providers.Client(ctx, provider, model)
	if err != nil {
		if errors.Is(err, llm.ErrNoCredentials) {
			emit(errorEvent(apperr.Wrap(apperr.KindConfiguration, "provider credentials missing", err).Error()))
		} else {
			emit(errorEvent(apperr.Wrap(apperr.KindConfiguration, "provider unavailable", err).Error()))
		}
		return
	}
	defer client.Close()

	if _, err := s.records.UpsertVariantGenerating(ctx, req.SessionID, req.PlanID, req.VariantIndex, model); err != nil {
		emit(errorEvent(apperr.Persistence("failed to start generation", err).Error()))
		return
	}
	if err := s.records.AdvanceSessionStatus(ctx, req.SessionID, domain.SessionGenerating); err != nil {
		s.logger.Warn("session status advance failed",
			zap.String("session_id", req.SessionID), zap.Error(err))
	}

	plan := req.Plan
	if plan == nil {
		plan, err = s.records.GetPlan(ctx, req.PlanID)
		if err != nil {
			s.failAndEmit(ctx, req, emit, apperr.Persistence("failed to load variant plan", err))
			return
		}
	}

	start := time.Now()
	prompt := buildGenerationPrompt(plan, req.SourceHTML)

	html, err := client.GenerateStream(ctx, prompt, func(chunk string) {
		emit(chunkEvent(chunk))
	})
	if err != nil {
		s.failAndEmit(ctx, req, emit, classifyStreamError(err))
		return
	}
	durationMs := time.Since(start).Milliseconds()

	if len(strings.TrimSpace(html)) < minGeneratedLength {
		s.failAndEmit(ctx, req, emit, apperr.Validation(
			fmt.Sprintf("generated output too short (%d bytes, need %d)", len(html), minGeneratedLength)))
		return
	}

	path := variantArtifactPath(req.SessionID, req.VariantIndex)
	url, err := s.artifacts.Put(ctx, path, []byte(html))
	if err != nil {
		s.failAndEmit(ctx, req, emit, apperr.ArtifactStore("artifact upload failed", err))
		return
	}

	if err := s.records.CompleteVariant(ctx, req.SessionID, req.VariantIndex, path, url, model, durationMs); err != nil {
		// The blob is already durable; the row is not. Policy: keep the
		// artifact, leave the variant failed, let a retry regenerate.
		s.failAndEmit(ctx, req, emit, apperr.Persistence("failed to record completion", err))
		return
	}

	if _, err := s.RecomputeCompletion(ctx, req.SessionID); err != nil {
		s.logger.Warn("completion recompute failed",
			zap.String("session_id", req.SessionID), zap.Error(err))
	}

	s.logger.Info("variant generated",
		zap.String("session_id", req.SessionID),
		zap.Int("variant_index", req.VariantIndex),
		zap.String("model", model),
		zap.Int("html_bytes", len(html)),
		zap.Int64("duration_ms", durationMs))

	emit(Event{
		Type:       EventComplete,
		HTMLURL:    url,
		HTMLPath:   path,
		HTMLLength: len(html),
		DurationMs: durationMs,
		Model:      model,
		Provider:   provider,
	})
}

// failAndEmit marks the variant failed and forwards the terminal error
// event. The write uses a cancellation-free context so a client disconnect
// cannot leave the variant stuck in generating.
func (s *Service) failAndEmit(ctx context.Context, req GenerateRequest, emit func(Event), cause error) {
	msg := cause.Error()
	writeCtx := context.WithoutCancel(ctx)
	if err := s.records.FailVariant(writeCtx, req.SessionID, req.VariantIndex, msg); err != nil {
		s.logger.Error("failed to mark variant failed",
			zap.String("session_id", req.SessionID),
			zap.Int("variant_index", req.VariantIndex),
			zap.Error(err))
	}
	emit(errorEvent(msg))
}

func classifyStreamError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return apperr.Provider("generation cancelled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.Provider("provider timeout", err)
	default:
		return apperr.Provider("provider stream failed", err)
	}
}

func validateGenerateRequest(req GenerateRequest) error {
	if strings.TrimSpace(req.SessionID) == "" {
		return apperr.Validation("sessionId is required")
	}
	if req.VariantIndex < 1 {
		return apperr.Validation("variantIndex must be >= 1")
	}
	if strings.TrimSpace(req.SourceHTML) == "" {
		return apperr.Validation("sourceHtml is required")
	}
	if req.Plan == nil && strings.TrimSpace(req.PlanID) == "" {
		return apperr.Validation("plan or planId is required")
	}
	return nil
}
