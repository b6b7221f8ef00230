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

// PlanInput is one proposed modification strategy as supplied by the caller.
type PlanInput struct {
	Title       string
	Description string
	KeyChanges  []string
	StyleNotes  string
}

// SessionSnapshot is the read model for one session: everything a client
// needs to render progress in a single round trip.
type SessionSnapshot struct {
	Session    *domain.Session      `json:"session"`
	Plans      []domain.VariantPlan `json:"plans"`
	Variants   []domain.Variant     `json:"variants"`
	IsComplete bool                 `json:"isComplete"`
}

// CreateSession starts a new generation request around the given source
// screen. The variant count is stamped at creation so later config changes
// never reinterpret an in-flight session.
func (s *Service) CreateSession(ctx context.Context, sourceHTML string) (*domain.Session, error) {
	if strings.TrimSpace(sourceHTML) == "" {
		return nil, apperr.Validation("sourceHtml is required")
	}
	now := time.Now().UTC()
	session := &domain.Session{
		ID:           uuid.NewString(),
		SourceHTML:   sourceHTML,
		Status:       domain.SessionDraft,
		VariantCount: s.variantCount,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.records.CreateSession(ctx, session); err != nil {
		return nil, apperr.Persistence("failed to create session", err)
	}
	s.logger.Info("session created",
		zap.String("session_id", session.ID),
		zap.Int("variant_count", session.VariantCount))
	return session, nil
}

// AttachPlans binds the full plan set to a session and advances it to
// plan_ready. The count must match the session's variant count exactly;
// indexes are assigned 1..N in the order given.
func (s *Service) AttachPlans(ctx context.Context, sessionID string, inputs []PlanInput) ([]domain.VariantPlan, error) {
	session, err := s.records.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			return nil, apperr.Validation("session not found")
		}
		return nil, apperr.Persistence("failed to load session", err)
	}
	if len(inputs) != session.VariantCount {
		return nil, apperr.Validation(
			fmt.Sprintf("expected %d plans, got %d", session.VariantCount, len(inputs)))
	}
	for i, in := range inputs {
		if strings.TrimSpace(in.Title) == "" {
			return nil, apperr.Validation(fmt.Sprintf("plan %d: title is required", i+1))
		}
	}

	now := time.Now().UTC()
	plans := make([]domain.VariantPlan, len(inputs))
	for i, in := range inputs {
		plans[i] = domain.VariantPlan{
			ID:           uuid.NewString(),
			SessionID:    sessionID,
			VariantIndex: i + 1,
			Title:        in.Title,
			Description:  in.Description,
			KeyChanges:   in.KeyChanges,
			StyleNotes:   in.StyleNotes,
			CreatedAt:    now,
		}
	}
	if err := s.records.CreatePlans(ctx, plans); err != nil {
		return nil, apperr.Persistence("failed to store plans", err)
	}
	if err := s.records.AdvanceSessionStatus(ctx, sessionID, domain.SessionPlanReady); err != nil {
		return nil, apperr.Persistence("failed to advance session", err)
	}
	return plans, nil
}

// AdvanceStage moves a session through the pre-generation stages as outside
// collaborators finish their work. Complete is reserved for the aggregator.
func (s *Service) AdvanceStage(ctx context.Context, sessionID string, to domain.SessionStatus) error {
	if to == domain.SessionComplete {
		return apperr.Validation("session completion is derived from variant states, not set directly")
	}
	if to.Order() == 0 {
		return apperr.Validation(fmt.Sprintf("unknown session status %q", to))
	}
	if err := s.records.AdvanceSessionStatus(ctx, sessionID, to); err != nil {
		if errors.Is(err, record.ErrNotFound) {
			return apperr.Validation("session not found")
		}
		return apperr.Persistence("failed to advance session", err)
	}
	return nil
}

// Snapshot returns the session with its plans and the live variant states.
func (s *Service) Snapshot(ctx context.Context, sessionID string) (*SessionSnapshot, error) {
	session, err := s.records.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			return nil, apperr.Validation("session not found")
		}
		return nil, apperr.Persistence("failed to load session", err)
	}
	plans, err := s.records.ListPlans(ctx, sessionID)
	if err != nil {
		return nil, apperr.Persistence("failed to list plans", err)
	}
	variants, err := s.records.ListVariants(ctx, sessionID)
	if err != nil {
		return nil, apperr.Persistence("failed to list variants", err)
	}
	return &SessionSnapshot{
		Session:    session,
		Plans:      plans,
		Variants:   variants,
		IsComplete: session.Status == domain.SessionComplete,
	}, nil
}

// Iterations returns the full append-only history of a variant in order.
func (s *Service) Iterations(ctx context.Context, variantID string) ([]domain.Iteration, error) {
	if _, err := s.records.GetVariantByID(ctx, variantID); err != nil {
		if errors.Is(err, record.ErrNotFound) {
			return nil, apperr.Validation("variant not found")
		}
		return nil, apperr.Persistence("failed to load variant", err)
	}
	its, err := s.records.ListIterations(ctx, variantID)
	if err != nil {
		return nil, apperr.Persistence("failed to list iterations", err)
	}
	return its, nil
}
