package record

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"variantforge/internal/domain"
)

type PostgresStore struct {
	db         *sql.DB
	schemaOnce sync.Once
	schemaErr  error
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresStore) ensureSchema() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("db is nil")
	}
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.Exec(`
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    source_html TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'draft',
    variant_count INT NOT NULL DEFAULT 4,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS variant_plans (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    variant_index INT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    key_changes TEXT NOT NULL DEFAULT '[]',
    style_notes TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    UNIQUE(session_id, variant_index)
);
CREATE TABLE IF NOT EXISTS variants (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    plan_id TEXT NOT NULL DEFAULT '',
    variant_index INT NOT NULL,
    html_path TEXT NOT NULL DEFAULT '',
    html_url TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'pending',
    error_message TEXT NOT NULL DEFAULT '',
    generation_model TEXT NOT NULL DEFAULT '',
    generation_duration_ms BIGINT NOT NULL DEFAULT 0,
    iteration_count INT NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    UNIQUE(session_id, variant_index)
);
CREATE INDEX IF NOT EXISTS idx_variants_session_id ON variants(session_id);
CREATE TABLE IF NOT EXISTS iterations (
    id TEXT PRIMARY KEY,
    variant_id TEXT NOT NULL,
    session_id TEXT NOT NULL,
    variant_index INT NOT NULL,
    iteration_number INT NOT NULL,
    prompt TEXT NOT NULL DEFAULT '',
    html_before TEXT NOT NULL DEFAULT '',
    html_after TEXT NOT NULL DEFAULT '',
    generation_model TEXT NOT NULL DEFAULT '',
    generation_duration_ms BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    UNIQUE(variant_id, iteration_number)
);
CREATE INDEX IF NOT EXISTS idx_iterations_variant_id ON iterations(variant_id);
`)
	})
	return s.schemaErr
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess *domain.Session) error {
	if err := s.ensureSchema(); err != nil {
		return err
	}
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.Status == "" {
		sess.Status = domain.SessionDraft
	}
	now := time.Now().UTC()
	sess.CreatedAt = now
	sess.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sessions (id, source_html, status, variant_count, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)
`, sess.ID, sess.SourceHTML, string(sess.Status), sess.VariantCount, now)
	return err
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	var sess domain.Session
	var status string
	err := s.db.QueryRowContext(ctx, `
SELECT id, source_html, status, variant_count, created_at, updated_at
FROM sessions WHERE id=$1
`, id).Scan(&sess.ID, &sess.SourceHTML, &status, &sess.VariantCount, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sess.Status = domain.SessionStatus(status)
	return &sess, nil
}

func (s *PostgresStore) AdvanceSessionStatus(ctx context.Context, id string, to domain.SessionStatus) error {
	if err := s.ensureSchema(); err != nil {
		return err
	}
	// Monotonic: the row only changes when its current status ranks strictly
	// below the target. Zero rows affected means someone already advanced it.
	lower := statusesBelow(to)
	if len(lower) == 0 {
		return fmt.Errorf("unknown session status %q", to)
	}
	args := make([]any, 0, len(lower)+2)
	args = append(args, string(to), id)
	placeholders := make([]string, 0, len(lower))
	for i, st := range lower {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+3))
		args = append(args, string(st))
	}
	q := fmt.Sprintf(`
UPDATE sessions SET status=$1, updated_at=NOW()
WHERE id=$2 AND status IN (%s)
`, strings.Join(placeholders, ","))
	_, err := s.db.ExecContext(ctx, q, args...)
	return err
}

func statusesBelow(to domain.SessionStatus) []domain.SessionStatus {
	all := []domain.SessionStatus{
		domain.SessionDraft,
		domain.SessionUnderstandingReady,
		domain.SessionPlanReady,
		domain.SessionWireframeReady,
		domain.SessionGenerating,
		domain.SessionComplete,
	}
	out := make([]domain.SessionStatus, 0, len(all))
	for _, st := range all {
		if st.Order() < to.Order() {
			out = append(out, st)
		}
	}
	return out
}

func (s *PostgresStore) CreatePlans(ctx context.Context, plans []domain.VariantPlan) error {
	if err := s.ensureSchema(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for i := range plans {
		p := &plans[i]
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		p.CreatedAt = now
		keyChanges, _ := json.Marshal(p.KeyChanges)
		_, err := tx.ExecContext(ctx, `
INSERT INTO variant_plans (id, session_id, variant_index, title, description, key_changes, style_notes, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, p.ID, p.SessionID, p.VariantIndex, p.Title, p.Description, string(keyChanges), p.StyleNotes, now)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) ListPlans(ctx context.Context, sessionID string) ([]domain.VariantPlan, error) {
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, variant_index, title, description, key_changes, style_notes, created_at
FROM variant_plans WHERE session_id=$1 ORDER BY variant_index
`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []domain.VariantPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

func (s *PostgresStore) GetPlan(ctx context.Context, planID string) (*domain.VariantPlan, error) {
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
SELECT id, session_id, variant_index, title, description, key_changes, style_notes, created_at
FROM variant_plans WHERE id=$1
`, planID)
	p, err := scanPlan(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return p, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (*domain.VariantPlan, error) {
	var p domain.VariantPlan
	var keyChanges string
	if err := row.Scan(&p.ID, &p.SessionID, &p.VariantIndex, &p.Title, &p.Description, &keyChanges, &p.StyleNotes, &p.CreatedAt); err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(keyChanges), &p.KeyChanges)
	return &p, nil
}

const variantColumns = `id, session_id, plan_id, variant_index, html_path, html_url, status, error_message, generation_model, generation_duration_ms, iteration_count, created_at, updated_at`

func scanVariant(row rowScanner) (*domain.Variant, error) {
	var v domain.Variant
	var status string
	err := row.Scan(&v.ID, &v.SessionID, &v.PlanID, &v.VariantIndex, &v.HTMLPath, &v.HTMLURL,
		&status, &v.ErrorMessage, &v.GenerationModel, &v.GenerationDurationMs, &v.IterationCount,
		&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	v.Status = domain.VariantStatus(status)
	return &v, nil
}

func (s *PostgresStore) UpsertVariantGenerating(ctx context.Context, sessionID, planID string, variantIndex int, model string) (*domain.Variant, error) {
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
INSERT INTO variants (id, session_id, plan_id, variant_index, status, generation_model, created_at, updated_at)
VALUES ($1, $2, $3, $4, 'generating', $5, NOW(), NOW())
ON CONFLICT (session_id, variant_index)
DO UPDATE SET status='generating', error_message='', plan_id=EXCLUDED.plan_id,
              generation_model=EXCLUDED.generation_model, updated_at=NOW()
RETURNING `+variantColumns+`
`, uuid.NewString(), sessionID, planID, variantIndex, model)
	return scanVariant(row)
}

func (s *PostgresStore) CompleteVariant(ctx context.Context, sessionID string, variantIndex int, htmlPath, htmlURL, model string, durationMs int64) error {
	if err := s.ensureSchema(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE variants SET status='complete', html_path=$3, html_url=$4, error_message='',
                    generation_model=$5, generation_duration_ms=$6, updated_at=NOW()
WHERE session_id=$1 AND variant_index=$2
`, sessionID, variantIndex, htmlPath, htmlURL, model, durationMs)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PostgresStore) FailVariant(ctx context.Context, sessionID string, variantIndex int, errMsg string) error {
	if err := s.ensureSchema(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE variants SET status='failed', error_message=$3, updated_at=NOW()
WHERE session_id=$1 AND variant_index=$2
`, sessionID, variantIndex, errMsg)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PostgresStore) GetVariant(ctx context.Context, sessionID string, variantIndex int) (*domain.Variant, error) {
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+variantColumns+` FROM variants WHERE session_id=$1 AND variant_index=$2`,
		sessionID, variantIndex)
	v, err := scanVariant(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return v, err
}

func (s *PostgresStore) GetVariantByID(ctx context.Context, variantID string) (*domain.Variant, error) {
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+variantColumns+` FROM variants WHERE id=$1`, variantID)
	v, err := scanVariant(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return v, err
}

func (s *PostgresStore) ListVariants(ctx context.Context, sessionID string) ([]domain.Variant, error) {
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+variantColumns+` FROM variants WHERE session_id=$1 ORDER BY variant_index`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var variants []domain.Variant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		variants = append(variants, *v)
	}
	return variants, rows.Err()
}

func (s *PostgresStore) SetVariantArtifact(ctx context.Context, variantID, htmlPath, htmlURL string, iterationCount int) error {
	if err := s.ensureSchema(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE variants SET html_path=$2, html_url=$3, iteration_count=$4, updated_at=NOW()
WHERE id=$1
`, variantID, htmlPath, htmlURL, iterationCount)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PostgresStore) AppendIteration(ctx context.Context, it *domain.Iteration) error {
	if err := s.ensureSchema(); err != nil {
		return err
	}
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	it.CreatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Lock the parent variant row so concurrent appends serialize; an
	// aggregate cannot be combined with FOR UPDATE directly.
	var lockedID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM variants WHERE id=$1 FOR UPDATE`, it.VariantID).Scan(&lockedID)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	var maxNum int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(iteration_number), 0) FROM iterations WHERE variant_id=$1`,
		it.VariantID).Scan(&maxNum)
	if err != nil {
		return err
	}
	if it.IterationNumber != maxNum+1 {
		return ErrIterationConflict
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO iterations (id, variant_id, session_id, variant_index, iteration_number, prompt, html_before, html_after, generation_model, generation_duration_ms, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`, it.ID, it.VariantID, it.SessionID, it.VariantIndex, it.IterationNumber, it.Prompt,
		it.HTMLBefore, it.HTMLAfter, it.GenerationModel, it.GenerationDurationMs, it.CreatedAt)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) ListIterations(ctx context.Context, variantID string) ([]domain.Iteration, error) {
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, variant_id, session_id, variant_index, iteration_number, prompt, html_before, html_after, generation_model, generation_duration_ms, created_at
FROM iterations WHERE variant_id=$1 ORDER BY iteration_number
`, variantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var iterations []domain.Iteration
	for rows.Next() {
		var it domain.Iteration
		if err := rows.Scan(&it.ID, &it.VariantID, &it.SessionID, &it.VariantIndex, &it.IterationNumber,
			&it.Prompt, &it.HTMLBefore, &it.HTMLAfter, &it.GenerationModel, &it.GenerationDurationMs, &it.CreatedAt); err != nil {
			return nil, err
		}
		iterations = append(iterations, it)
	}
	return iterations, rows.Err()
}

func (s *PostgresStore) GetIteration(ctx context.Context, iterationID string) (*domain.Iteration, error) {
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	var it domain.Iteration
	err := s.db.QueryRowContext(ctx, `
SELECT id, variant_id, session_id, variant_index, iteration_number, prompt, html_before, html_after, generation_model, generation_duration_ms, created_at
FROM iterations WHERE id=$1
`, iterationID).Scan(&it.ID, &it.VariantID, &it.SessionID, &it.VariantIndex, &it.IterationNumber,
		&it.Prompt, &it.HTMLBefore, &it.HTMLAfter, &it.GenerationModel, &it.GenerationDurationMs, &it.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
