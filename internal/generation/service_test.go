package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"variantforge/internal/domain"
	"variantforge/internal/llm"
	"variantforge/internal/repository/artifact"
	"variantforge/internal/repository/record"
)

var validHTML = strings.Repeat("<section>generated variant output</section>", 10)

type stubProvider struct {
	client llm.Client
	err    error
	creds  bool
}

func (p *stubProvider) Resolve(provider, model string) (string, string) {
	if provider == "" {
		provider = "fake"
	}
	if model == "" {
		model = "fake-model"
	}
	return provider, model
}

func (p *stubProvider) HasCredentials(string) bool { return p.creds }

func (p *stubProvider) Client(_ context.Context, _, _ string) (llm.Client, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.client, nil
}

type testEnv struct {
	svc       *Service
	records   *record.MemoryStore
	artifacts *artifact.MemoryStore
	provider  *stubProvider
	session   *domain.Session
	plans     []domain.VariantPlan
}

func newTestEnv(t *testing.T, variantCount int, client llm.Client) *testEnv {
	t.Helper()
	records := record.NewMemoryStore()
	artifacts := artifact.NewMemoryStore()
	provider := &stubProvider{client: client, creds: true}
	svc := NewService(records, artifacts, provider, variantCount, zap.NewNop())

	session, err := svc.CreateSession(context.Background(), "<html><body>source</body></html>")
	require.NoError(t, err)

	inputs := make([]PlanInput, variantCount)
	for i := range inputs {
		inputs[i] = PlanInput{
			Title:       fmt.Sprintf("strategy %d", i+1),
			Description: "alternative layout",
			KeyChanges:  []string{"change header", "change palette"},
		}
	}
	plans, err := svc.AttachPlans(context.Background(), session.ID, inputs)
	require.NoError(t, err)

	return &testEnv{
		svc:       svc,
		records:   records,
		artifacts: artifacts,
		provider:  provider,
		session:   session,
		plans:     plans,
	}
}

// drain consumes a generation stream, returning concatenated chunk content
// and the terminal event.
func drain(t *testing.T, events <-chan Event) (string, Event) {
	t.Helper()
	var chunks strings.Builder
	var terminal Event
	seenTerminal := false
	for ev := range events {
		switch ev.Type {
		case EventChunk:
			require.False(t, seenTerminal, "chunk after terminal event")
			chunks.WriteString(ev.Content)
		case EventComplete, EventError:
			require.False(t, seenTerminal, "second terminal event")
			terminal = ev
			seenTerminal = true
		}
	}
	require.True(t, seenTerminal, "stream ended without terminal event")
	return chunks.String(), terminal
}

func (e *testEnv) generate(t *testing.T, ctx context.Context, index int) (string, Event) {
	t.Helper()
	events := e.svc.Generate(ctx, GenerateRequest{
		SessionID:    e.session.ID,
		PlanID:       e.plans[index-1].ID,
		VariantIndex: index,
		SourceHTML:   e.session.SourceHTML,
	})
	return drain(t, events)
}

func TestGenerateStreamsChunksAndCompletes(t *testing.T) {
	env := newTestEnv(t, 1, llm.NewFakeClient(validHTML))
	ctx := context.Background()

	streamed, terminal := env.generate(t, ctx, 1)

	require.Equal(t, EventComplete, terminal.Type)
	require.Equal(t, validHTML, streamed, "chunk concatenation must equal full output")
	require.Equal(t, len(validHTML), terminal.HTMLLength)
	require.Equal(t, "fake-model", terminal.Model)
	require.NotEmpty(t, terminal.HTMLURL)

	v, err := env.records.GetVariant(ctx, env.session.ID, 1)
	require.NoError(t, err)
	require.Equal(t, domain.VariantComplete, v.Status)
	require.Empty(t, v.ErrorMessage)
	require.Equal(t, terminal.HTMLPath, v.HTMLPath)

	stored, err := env.artifacts.Get(ctx, v.HTMLPath)
	require.NoError(t, err)
	require.Equal(t, streamed, string(stored), "stored bytes must equal streamed bytes")
}

func TestGenerateIsIdempotentPerVariantKey(t *testing.T) {
	env := newTestEnv(t, 1, llm.NewFakeClient(validHTML))
	ctx := context.Background()

	_, first := env.generate(t, ctx, 1)
	require.Equal(t, EventComplete, first.Type)
	v1, err := env.records.GetVariant(ctx, env.session.ID, 1)
	require.NoError(t, err)

	_, second := env.generate(t, ctx, 1)
	require.Equal(t, EventComplete, second.Type)

	variants, err := env.records.ListVariants(ctx, env.session.ID)
	require.NoError(t, err)
	require.Len(t, variants, 1, "re-invoking generation must not create a second row")
	require.Equal(t, v1.ID, variants[0].ID)
}

func TestGenerateValidatesShortOutput(t *testing.T) {
	env := newTestEnv(t, 1, llm.NewFakeClient("<p>x</p>"))
	ctx := context.Background()

	_, terminal := env.generate(t, ctx, 1)
	require.Equal(t, EventError, terminal.Type)
	require.Contains(t, terminal.Error, "too short")

	v, err := env.records.GetVariant(ctx, env.session.ID, 1)
	require.NoError(t, err)
	require.Equal(t, domain.VariantFailed, v.Status)
	require.Contains(t, v.ErrorMessage, "too short")
	require.Empty(t, v.HTMLURL, "garbage output must never be persisted")
}

func TestGenerateFailureIsolatesSiblings(t *testing.T) {
	env := newTestEnv(t, 2, llm.NewFakeClient(validHTML))
	ctx := context.Background()

	_, first := env.generate(t, ctx, 1)
	require.Equal(t, EventComplete, first.Type)
	before, err := env.records.GetVariant(ctx, env.session.ID, 1)
	require.NoError(t, err)

	env.provider.client = &llm.FakeClient{Err: errors.New("upstream exploded")}
	_, second := env.generate(t, ctx, 2)
	require.Equal(t, EventError, second.Type)

	after, err := env.records.GetVariant(ctx, env.session.ID, 1)
	require.NoError(t, err)
	require.Equal(t, before.Status, after.Status)
	require.Equal(t, before.HTMLURL, after.HTMLURL)
	require.Equal(t, before.ErrorMessage, after.ErrorMessage)

	failed, err := env.records.GetVariant(ctx, env.session.ID, 2)
	require.NoError(t, err)
	require.Equal(t, domain.VariantFailed, failed.Status)
	require.Contains(t, failed.ErrorMessage, "upstream exploded")
}

func TestGenerateTimeoutMarksVariantFailed(t *testing.T) {
	env := newTestEnv(t, 1, &llm.FakeClient{Err: context.DeadlineExceeded})
	ctx := context.Background()

	_, terminal := env.generate(t, ctx, 1)
	require.Equal(t, EventError, terminal.Type)

	v, err := env.records.GetVariant(ctx, env.session.ID, 1)
	require.NoError(t, err)
	require.Equal(t, domain.VariantFailed, v.Status)
	require.Contains(t, v.ErrorMessage, "timeout")
}

func TestGenerateCancellationMarksVariantFailed(t *testing.T) {
	env := newTestEnv(t, 1, llm.NewFakeClient(validHTML))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events := env.svc.Generate(ctx, GenerateRequest{
		SessionID:    env.session.ID,
		PlanID:       env.plans[0].ID,
		VariantIndex: 1,
		SourceHTML:   env.session.SourceHTML,
	})
	for range events {
	}

	v, err := env.records.GetVariant(context.Background(), env.session.ID, 1)
	require.NoError(t, err)
	require.Equal(t, domain.VariantFailed, v.Status, "cancelled variant must not stay generating")
	require.Contains(t, v.ErrorMessage, "cancelled")
}

func TestConfigurationErrorLeavesNoVariantState(t *testing.T) {
	env := newTestEnv(t, 1, nil)
	env.provider.err = fmt.Errorf("gemini: %w", llm.ErrNoCredentials)
	ctx := context.Background()

	_, terminal := env.generate(t, ctx, 1)
	require.Equal(t, EventError, terminal.Type)
	require.Contains(t, terminal.Error, "credentials")

	variants, err := env.records.ListVariants(ctx, env.session.ID)
	require.NoError(t, err)
	require.Empty(t, variants, "configuration errors must never touch variant state")
}

func TestSessionCompleteExactlyWhenAllVariantsComplete(t *testing.T) {
	env := newTestEnv(t, 2, llm.NewFakeClient(validHTML))
	ctx := context.Background()

	_, first := env.generate(t, ctx, 1)
	require.Equal(t, EventComplete, first.Type)
	sess, err := env.records.GetSession(ctx, env.session.ID)
	require.NoError(t, err)
	require.NotEqual(t, domain.SessionComplete, sess.Status, "session must not complete at 1/2")

	env.provider.client = &llm.FakeClient{Err: errors.New("boom")}
	_, second := env.generate(t, ctx, 2)
	require.Equal(t, EventError, second.Type)
	sess, err = env.records.GetSession(ctx, env.session.ID)
	require.NoError(t, err)
	require.NotEqual(t, domain.SessionComplete, sess.Status, "failed variant must keep session out of complete")

	// Retry resets the failed variant through the same upsert and completes.
	env.provider.client = llm.NewFakeClient(validHTML)
	_, retry := env.generate(t, ctx, 2)
	require.Equal(t, EventComplete, retry.Type)

	sess, err = env.records.GetSession(ctx, env.session.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SessionComplete, sess.Status)

	v2, err := env.records.GetVariant(ctx, env.session.ID, 2)
	require.NoError(t, err)
	require.Equal(t, domain.VariantComplete, v2.Status)
	require.Empty(t, v2.ErrorMessage, "retry must clear the prior error")
}

func TestRecomputeCompletionIsIdempotent(t *testing.T) {
	env := newTestEnv(t, 1, llm.NewFakeClient(validHTML))
	ctx := context.Background()

	_, terminal := env.generate(t, ctx, 1)
	require.Equal(t, EventComplete, terminal.Type)

	for i := 0; i < 3; i++ {
		done, err := env.svc.RecomputeCompletion(ctx, env.session.ID)
		require.NoError(t, err)
		require.True(t, done)
	}
	sess, err := env.records.GetSession(ctx, env.session.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SessionComplete, sess.Status)
}

func TestIterateAppendsGaplessHistory(t *testing.T) {
	env := newTestEnv(t, 1, llm.NewFakeClient(validHTML))
	ctx := context.Background()

	_, terminal := env.generate(t, ctx, 1)
	require.Equal(t, EventComplete, terminal.Type)
	v, err := env.records.GetVariant(ctx, env.session.ID, 1)
	require.NoError(t, err)

	refinedOne := strings.Repeat("<section>refined once</section>", 10)
	env.provider.client = llm.NewFakeClient(refinedOne)
	res1, err := env.svc.Iterate(ctx, IterateRequest{
		VariantID:   v.ID,
		CurrentHTML: validHTML,
		Prompt:      "make the button blue",
	})
	require.NoError(t, err)
	require.Equal(t, 1, res1.IterationNumber)
	require.Equal(t, validHTML, res1.Iteration.HTMLBefore)

	refinedTwo := strings.Repeat("<section>refined twice</section>", 10)
	env.provider.client = llm.NewFakeClient(refinedTwo)
	res2, err := env.svc.Iterate(ctx, IterateRequest{
		VariantID:   v.ID,
		CurrentHTML: refinedOne,
		Prompt:      "larger heading",
	})
	require.NoError(t, err)
	require.Equal(t, 2, res2.IterationNumber)
	require.Equal(t, refinedOne, res2.Iteration.HTMLBefore,
		"htmlBefore must chain to the prior iteration's output")

	its, err := env.svc.Iterations(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, its, 2)
	for i, it := range its {
		require.Equal(t, i+1, it.IterationNumber, "iteration numbers must be 1,2,... with no gaps")
	}

	updated, err := env.records.GetVariantByID(ctx, v.ID)
	require.NoError(t, err)
	require.Equal(t, domain.VariantComplete, updated.Status, "iteration must not change status")
	require.Equal(t, 2, updated.IterationCount)
	require.Equal(t, res2.HTMLPath, updated.HTMLPath)

	current, err := env.artifacts.Get(ctx, updated.HTMLPath)
	require.NoError(t, err)
	require.Equal(t, refinedTwo, string(current))

	// The first iteration's artifact must survive the second.
	prior, err := env.artifacts.Get(ctx, res1.HTMLPath)
	require.NoError(t, err)
	require.Equal(t, refinedOne, string(prior))
}

func TestIterateRejectsNonCompleteVariant(t *testing.T) {
	env := newTestEnv(t, 1, &llm.FakeClient{Err: errors.New("boom")})
	ctx := context.Background()

	_, terminal := env.generate(t, ctx, 1)
	require.Equal(t, EventError, terminal.Type)
	v, err := env.records.GetVariant(ctx, env.session.ID, 1)
	require.NoError(t, err)

	_, err = env.svc.Iterate(ctx, IterateRequest{
		VariantID:   v.ID,
		CurrentHTML: validHTML,
		Prompt:      "refine",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "only complete variants")
}

func TestIterateFailureLeavesNoPersistentChange(t *testing.T) {
	env := newTestEnv(t, 1, llm.NewFakeClient(validHTML))
	ctx := context.Background()

	_, terminal := env.generate(t, ctx, 1)
	require.Equal(t, EventComplete, terminal.Type)
	before, err := env.records.GetVariant(ctx, env.session.ID, 1)
	require.NoError(t, err)

	env.provider.client = llm.NewFakeClient("<p>x</p>")
	_, err = env.svc.Iterate(ctx, IterateRequest{
		VariantID:   before.ID,
		CurrentHTML: validHTML,
		Prompt:      "refine",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "too short")

	after, err := env.records.GetVariantByID(ctx, before.ID)
	require.NoError(t, err)
	require.Equal(t, before.HTMLPath, after.HTMLPath)
	require.Equal(t, before.IterationCount, after.IterationCount)

	its, err := env.svc.Iterations(ctx, before.ID)
	require.NoError(t, err)
	require.Empty(t, its)
}

func TestRevertRestoresSnapshotWithoutTouchingHistory(t *testing.T) {
	env := newTestEnv(t, 1, llm.NewFakeClient(validHTML))
	ctx := context.Background()

	_, terminal := env.generate(t, ctx, 1)
	require.Equal(t, EventComplete, terminal.Type)
	v, err := env.records.GetVariant(ctx, env.session.ID, 1)
	require.NoError(t, err)

	refined := strings.Repeat("<section>refined</section>", 10)
	env.provider.client = llm.NewFakeClient(refined)
	res, err := env.svc.Iterate(ctx, IterateRequest{
		VariantID:   v.ID,
		CurrentHTML: validHTML,
		Prompt:      "refine",
	})
	require.NoError(t, err)

	url, err := env.svc.Revert(ctx, v.ID, res.Iteration.ID)
	require.NoError(t, err)
	require.NotEmpty(t, url)

	reverted, err := env.records.GetVariantByID(ctx, v.ID)
	require.NoError(t, err)
	require.NotEqual(t, res.HTMLPath, reverted.HTMLPath, "revert must write a new artifact, not rewrite the old one")
	require.Equal(t, 1, reverted.IterationCount, "revert must not change iterationCount")
	require.Equal(t, domain.VariantComplete, reverted.Status)

	content, err := env.artifacts.Get(ctx, reverted.HTMLPath)
	require.NoError(t, err)
	require.Equal(t, validHTML, string(content), "restored bytes must equal the pre-iteration snapshot")

	its, err := env.svc.Iterations(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, its, 1, "revert must not add or remove iteration rows")
	require.Equal(t, 1, its[0].IterationNumber)
}

func TestRevertRejectsForeignIteration(t *testing.T) {
	env := newTestEnv(t, 2, llm.NewFakeClient(validHTML))
	ctx := context.Background()

	_, t1 := env.generate(t, ctx, 1)
	require.Equal(t, EventComplete, t1.Type)
	_, t2 := env.generate(t, ctx, 2)
	require.Equal(t, EventComplete, t2.Type)

	v1, err := env.records.GetVariant(ctx, env.session.ID, 1)
	require.NoError(t, err)
	v2, err := env.records.GetVariant(ctx, env.session.ID, 2)
	require.NoError(t, err)

	env.provider.client = llm.NewFakeClient(strings.Repeat("<p>refined content</p>", 10))
	res, err := env.svc.Iterate(ctx, IterateRequest{
		VariantID:   v1.ID,
		CurrentHTML: validHTML,
		Prompt:      "refine",
	})
	require.NoError(t, err)

	_, err = env.svc.Revert(ctx, v2.ID, res.Iteration.ID)
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not belong")
}

func TestGenerateAllFansOutAndCompletes(t *testing.T) {
	env := newTestEnv(t, 3, llm.NewFakeClient(validHTML))
	ctx := context.Background()

	indexes, err := env.svc.GenerateAll(ctx, env.session.ID, "", "")
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, indexes)

	deadline := time.After(5 * time.Second)
	for {
		sess, err := env.records.GetSession(ctx, env.session.ID)
		require.NoError(t, err)
		if sess.Status == domain.SessionComplete {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("session never completed, status=%s", sess.Status)
		case <-time.After(10 * time.Millisecond):
		}
	}

	variants, err := env.records.ListVariants(ctx, env.session.ID)
	require.NoError(t, err)
	require.Len(t, variants, 3)
	for _, v := range variants {
		require.Equal(t, domain.VariantComplete, v.Status)
	}
}

func TestAdvanceStageRejectsDirectComplete(t *testing.T) {
	env := newTestEnv(t, 1, llm.NewFakeClient(validHTML))
	ctx := context.Background()

	err := env.svc.AdvanceStage(ctx, env.session.ID, domain.SessionComplete)
	require.Error(t, err)

	require.NoError(t, env.svc.AdvanceStage(ctx, env.session.ID, domain.SessionWireframeReady))
	sess, err := env.records.GetSession(ctx, env.session.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SessionWireframeReady, sess.Status)

	// Advancing to an earlier stage is a no-op, never a rollback.
	require.NoError(t, env.svc.AdvanceStage(ctx, env.session.ID, domain.SessionUnderstandingReady))
	sess, err = env.records.GetSession(ctx, env.session.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SessionWireframeReady, sess.Status)
}

func TestAttachPlansEnforcesCount(t *testing.T) {
	records := record.NewMemoryStore()
	svc := NewService(records, artifact.NewMemoryStore(), &stubProvider{creds: true}, 4, zap.NewNop())
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "<html></html>")
	require.NoError(t, err)
	require.Equal(t, 4, session.VariantCount)

	_, err = svc.AttachPlans(ctx, session.ID, []PlanInput{{Title: "only one"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "expected 4 plans")
}
