package record

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"variantforge/internal/domain"
)

// MemoryStore implements Store with mutex-guarded maps. It backs DSN-less
// runs and tests; the mutex gives the same upsert atomicity the postgres
// backend gets from ON CONFLICT.
type MemoryStore struct {
	mu         sync.Mutex
	sessions   map[string]domain.Session
	plans      map[string]domain.VariantPlan
	variants   map[string]domain.Variant // keyed by variant ID
	byIndex    map[variantKey]string     // (sessionID, variantIndex) -> variant ID
	iterations map[string][]domain.Iteration
}

type variantKey struct {
	sessionID    string
	variantIndex int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:   make(map[string]domain.Session),
		plans:      make(map[string]domain.VariantPlan),
		variants:   make(map[string]domain.Variant),
		byIndex:    make(map[variantKey]string),
		iterations: make(map[string][]domain.Iteration),
	}
}

func (s *MemoryStore) CreateSession(_ context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.Status == "" {
		sess.Status = domain.SessionDraft
	}
	now := time.Now().UTC()
	sess.CreatedAt = now
	sess.UpdatedAt = now
	s.sessions[sess.ID] = *sess
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, id string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := sess
	return &out, nil
}

func (s *MemoryStore) AdvanceSessionStatus(_ context.Context, id string, to domain.SessionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if sess.Status.Order() >= to.Order() {
		return nil
	}
	sess.Status = to
	sess.UpdatedAt = time.Now().UTC()
	s.sessions[id] = sess
	return nil
}

func (s *MemoryStore) CreatePlans(_ context.Context, plans []domain.VariantPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for i := range plans {
		p := &plans[i]
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		p.CreatedAt = now
		s.plans[p.ID] = *p
	}
	return nil
}

func (s *MemoryStore) ListPlans(_ context.Context, sessionID string) ([]domain.VariantPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.VariantPlan
	for _, p := range s.plans {
		if p.SessionID == sessionID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VariantIndex < out[j].VariantIndex })
	return out, nil
}

func (s *MemoryStore) GetPlan(_ context.Context, planID string) (*domain.VariantPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[planID]
	if !ok {
		return nil, ErrNotFound
	}
	out := p
	return &out, nil
}

func (s *MemoryStore) UpsertVariantGenerating(_ context.Context, sessionID, planID string, variantIndex int, model string) (*domain.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	key := variantKey{sessionID: sessionID, variantIndex: variantIndex}
	if id, ok := s.byIndex[key]; ok {
		v := s.variants[id]
		v.Status = domain.VariantGenerating
		v.ErrorMessage = ""
		v.PlanID = planID
		v.GenerationModel = model
		v.UpdatedAt = now
		s.variants[id] = v
		out := v
		return &out, nil
	}
	v := domain.Variant{
		ID:              uuid.NewString(),
		SessionID:       sessionID,
		PlanID:          planID,
		VariantIndex:    variantIndex,
		Status:          domain.VariantGenerating,
		GenerationModel: model,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.variants[v.ID] = v
	s.byIndex[key] = v.ID
	out := v
	return &out, nil
}

func (s *MemoryStore) CompleteVariant(_ context.Context, sessionID string, variantIndex int, htmlPath, htmlURL, model string, durationMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byIndex[variantKey{sessionID: sessionID, variantIndex: variantIndex}]
	if !ok {
		return ErrNotFound
	}
	v := s.variants[id]
	v.Status = domain.VariantComplete
	v.HTMLPath = htmlPath
	v.HTMLURL = htmlURL
	v.ErrorMessage = ""
	v.GenerationModel = model
	v.GenerationDurationMs = durationMs
	v.UpdatedAt = time.Now().UTC()
	s.variants[id] = v
	return nil
}

func (s *MemoryStore) FailVariant(_ context.Context, sessionID string, variantIndex int, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byIndex[variantKey{sessionID: sessionID, variantIndex: variantIndex}]
	if !ok {
		return ErrNotFound
	}
	v := s.variants[id]
	v.Status = domain.VariantFailed
	v.ErrorMessage = errMsg
	v.UpdatedAt = time.Now().UTC()
	s.variants[id] = v
	return nil
}

func (s *MemoryStore) GetVariant(_ context.Context, sessionID string, variantIndex int) (*domain.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byIndex[variantKey{sessionID: sessionID, variantIndex: variantIndex}]
	if !ok {
		return nil, ErrNotFound
	}
	out := s.variants[id]
	return &out, nil
}

func (s *MemoryStore) GetVariantByID(_ context.Context, variantID string) (*domain.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.variants[variantID]
	if !ok {
		return nil, ErrNotFound
	}
	out := v
	return &out, nil
}

func (s *MemoryStore) ListVariants(_ context.Context, sessionID string) ([]domain.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Variant
	for _, v := range s.variants {
		if v.SessionID == sessionID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VariantIndex < out[j].VariantIndex })
	return out, nil
}

func (s *MemoryStore) SetVariantArtifact(_ context.Context, variantID, htmlPath, htmlURL string, iterationCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.variants[variantID]
	if !ok {
		return ErrNotFound
	}
	v.HTMLPath = htmlPath
	v.HTMLURL = htmlURL
	v.IterationCount = iterationCount
	v.UpdatedAt = time.Now().UTC()
	s.variants[variantID] = v
	return nil
}

func (s *MemoryStore) AppendIteration(_ context.Context, it *domain.Iteration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.variants[it.VariantID]; !ok {
		return ErrNotFound
	}
	existing := s.iterations[it.VariantID]
	if it.IterationNumber != len(existing)+1 {
		return ErrIterationConflict
	}
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	it.CreatedAt = time.Now().UTC()
	s.iterations[it.VariantID] = append(existing, *it)
	return nil
}

func (s *MemoryStore) ListIterations(_ context.Context, variantID string) ([]domain.Iteration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.iterations[variantID]
	out := make([]domain.Iteration, len(src))
	copy(out, src)
	return out, nil
}

func (s *MemoryStore) GetIteration(_ context.Context, iterationID string) (*domain.Iteration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, list := range s.iterations {
		for _, it := range list {
			if it.ID == iterationID {
				out := it
				return &out, nil
			}
		}
	}
	return nil, ErrNotFound
}
