package record

import (
	"context"
	"errors"

	"variantforge/internal/domain"
)

// Store is the relational persistence boundary. The one guarantee the whole
// consistency model rests on: UpsertVariantGenerating is atomic on the
// unique key (session_id, variant_index), so there are no read-modify-write races.
type Store interface {
	CreateSession(ctx context.Context, s *domain.Session) error
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	// AdvanceSessionStatus moves a session forward. It is a no-op when the
	// session is already at or beyond the target status; it never moves a
	// session backward.
	AdvanceSessionStatus(ctx context.Context, id string, to domain.SessionStatus) error

	CreatePlans(ctx context.Context, plans []domain.VariantPlan) error
	ListPlans(ctx context.Context, sessionID string) ([]domain.VariantPlan, error)
	GetPlan(ctx context.Context, planID string) (*domain.VariantPlan, error)

	// UpsertVariantGenerating inserts or overwrites the variant row for
	// (sessionID, variantIndex): status becomes generating, the prior error
	// message is cleared, a prior artifact pointer survives for retries of a
	// previously complete variant.
	UpsertVariantGenerating(ctx context.Context, sessionID, planID string, variantIndex int, model string) (*domain.Variant, error)
	CompleteVariant(ctx context.Context, sessionID string, variantIndex int, htmlPath, htmlURL, model string, durationMs int64) error
	FailVariant(ctx context.Context, sessionID string, variantIndex int, errMsg string) error
	GetVariant(ctx context.Context, sessionID string, variantIndex int) (*domain.Variant, error)
	GetVariantByID(ctx context.Context, variantID string) (*domain.Variant, error)
	ListVariants(ctx context.Context, sessionID string) ([]domain.Variant, error)
	// SetVariantArtifact advances the variant's current artifact pointer and
	// iteration count without touching its status.
	SetVariantArtifact(ctx context.Context, variantID, htmlPath, htmlURL string, iterationCount int) error

	// AppendIteration persists an iteration record, rejecting any
	// IterationNumber that is not exactly (previous max)+1 for the variant.
	AppendIteration(ctx context.Context, it *domain.Iteration) error
	ListIterations(ctx context.Context, variantID string) ([]domain.Iteration, error)
	GetIteration(ctx context.Context, iterationID string) (*domain.Iteration, error)
}

var (
	ErrNotFound          = errors.New("record not found")
	ErrIterationConflict = errors.New("iteration number is not consecutive")
)
