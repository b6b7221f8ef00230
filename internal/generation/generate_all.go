package generation

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"variantforge/internal/apperr"
	"variantforge/internal/repository/record"
)

// GenerateAll fans out one generation per plan of the session and returns
// the started variant indexes immediately. The work runs detached from the
// caller's request context so an early HTTP response cannot cancel it; each
// variant owns its stream and fails alone, so the group never aborts
// siblings.
func (s *Service) GenerateAll(ctx context.Context, sessionID, provider, model string) ([]int, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, apperr.Validation("sessionId is required")
	}
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
	if len(plans) == 0 {
		return nil, apperr.Validation("session has no plans")
	}
	if !s.providers.HasCredentials(provider) {
		return nil, apperr.Configuration("no provider credentials configured")
	}

	indexes := make([]int, 0, len(plans))
	for _, p := range plans {
		indexes = append(indexes, p.VariantIndex)
	}

	bg := context.WithoutCancel(ctx)
	go func() {
		g, gctx := errgroup.WithContext(bg)
		for _, p := range plans {
			plan := p
			g.Go(func() error {
				events := s.Generate(gctx, GenerateRequest{
					SessionID:    sessionID,
					PlanID:       plan.ID,
					VariantIndex: plan.VariantIndex,
					Plan:         &plan,
					SourceHTML:   session.SourceHTML,
					Provider:     provider,
					Model:        model,
				})
				for range events {
					// Background run: progress lands in the store and the
					// event log, watchers follow over /ws/watch.
				}
				// Always nil so one variant's failure never cancels gctx
				// for the others.
				return nil
			})
		}
		_ = g.Wait()
		s.logger.Info("session fan-out finished", zap.String("session_id", sessionID))
	}()

	return indexes, nil
}
