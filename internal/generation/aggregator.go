package generation

import (
	"context"

	"go.uber.org/zap"

	"variantforge/internal/domain"
)

// RecomputeCompletion re-reads every variant of the session and promotes the
// session to complete when all of them are complete. Each call reads fresh
// state, so concurrent completions can all invoke it safely; whichever call
// observes the last completion flips the session. The session never moves
// backward and a failed variant simply keeps it out of complete until retried.
func (s *Service) RecomputeCompletion(ctx context.Context, sessionID string) (bool, error) {
	session, err := s.records.GetSession(ctx, sessionID)
	if err != nil {
		return false, err
	}

	variants, err := s.records.ListVariants(ctx, sessionID)
	if err != nil {
		return false, err
	}

	want := session.VariantCount
	if want <= 0 {
		want = s.variantCount
	}

	done := 0
	for _, v := range variants {
		if v.Status == domain.VariantComplete {
			done++
		}
	}
	if done < want {
		return false, nil
	}

	if session.Status != domain.SessionComplete {
		if err := s.records.AdvanceSessionStatus(ctx, sessionID, domain.SessionComplete); err != nil {
			return false, err
		}
		s.logger.Info("session complete",
			zap.String("session_id", sessionID),
			zap.Int("variants", done))
	}
	return true, nil
}
