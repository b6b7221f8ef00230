package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"variantforge/internal/auth"
	"variantforge/internal/domain"
	"variantforge/internal/generation"
	"variantforge/internal/llm"
	"variantforge/internal/repository/artifact"
	"variantforge/internal/repository/record"
)

var validHTML = strings.Repeat("<section>generated variant output</section>", 10)

type stubProvider struct {
	client llm.Client
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

func (p *stubProvider) HasCredentials(string) bool { return true }

func (p *stubProvider) Client(context.Context, string, string) (llm.Client, error) {
	return p.client, nil
}

type testServer struct {
	mux     http.Handler
	svc     *generation.Service
	records *record.MemoryStore
	token   string
}

func newTestServer(t *testing.T, variantCount int) *testServer {
	t.Helper()
	records := record.NewMemoryStore()
	provider := &stubProvider{client: llm.NewFakeClient(validHTML)}
	svc := generation.NewService(records, artifact.NewMemoryStore(), provider, variantCount, zap.NewNop())

	verifier := auth.NewVerifier("test-secret")
	token, err := verifier.Sign("tester")
	require.NoError(t, err)

	return &testServer{
		mux:     NewMux(New(svc, verifier, zap.NewNop())),
		svc:     svc,
		records: records,
		token:   token,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Authorization", "Bearer "+ts.token)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.mux.ServeHTTP(w, r)
	return w
}

func (ts *testServer) seedSession(t *testing.T, variantCount int) (*domain.Session, []domain.VariantPlan) {
	t.Helper()
	ctx := context.Background()
	session, err := ts.svc.CreateSession(ctx, "<html><body>source</body></html>")
	require.NoError(t, err)
	inputs := make([]generation.PlanInput, variantCount)
	for i := range inputs {
		inputs[i] = generation.PlanInput{Title: fmt.Sprintf("strategy %d", i+1)}
	}
	plans, err := ts.svc.AttachPlans(ctx, session.ID, inputs)
	require.NoError(t, err)
	return session, plans
}

func parseSSE(t *testing.T, body string) []generation.Event {
	t.Helper()
	var events []generation.Event
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "{}" {
			continue
		}
		var ev generation.Event
		require.NoError(t, json.Unmarshal([]byte(payload), &ev))
		events = append(events, ev)
	}
	return events
}

func TestGenerateSSEStreamsToCompletion(t *testing.T) {
	ts := newTestServer(t, 1)
	session, plans := ts.seedSession(t, 1)

	w := ts.do(t, "POST", "/api/generate", map[string]any{
		"sessionId":    session.ID,
		"planId":       plans[0].ID,
		"variantIndex": 1,
		"sourceHtml":   session.SourceHTML,
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	events := parseSSE(t, w.Body.String())
	require.NotEmpty(t, events)

	var streamed strings.Builder
	last := events[len(events)-1]
	for _, ev := range events[:len(events)-1] {
		require.Equal(t, generation.EventChunk, ev.Type)
		streamed.WriteString(ev.Content)
	}
	require.Equal(t, generation.EventComplete, last.Type)
	require.Equal(t, validHTML, streamed.String())
	require.NotEmpty(t, last.HTMLURL)

	v, err := ts.records.GetVariant(context.Background(), session.ID, 1)
	require.NoError(t, err)
	require.Equal(t, domain.VariantComplete, v.Status)
}

func TestGenerateSSEEmitsTerminalError(t *testing.T) {
	ts := newTestServer(t, 1)
	session, plans := ts.seedSession(t, 1)

	w := ts.do(t, "POST", "/api/generate", map[string]any{
		"sessionId":    session.ID,
		"planId":       plans[0].ID,
		"variantIndex": 0, // invalid
		"sourceHtml":   session.SourceHTML,
	})
	require.Equal(t, http.StatusOK, w.Code, "validation errors still arrive as stream events")

	events := parseSSE(t, w.Body.String())
	require.Len(t, events, 1)
	require.Equal(t, generation.EventError, events[0].Type)
	require.Contains(t, events[0].Error, "variantIndex")
}

func TestEndpointsRejectMissingCredential(t *testing.T) {
	ts := newTestServer(t, 1)

	r := httptest.NewRequest("POST", "/api/sessions", strings.NewReader(`{"sourceHtml":"<html></html>"}`))
	w := httptest.NewRecorder()
	ts.mux.ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	r = httptest.NewRequest("POST", "/api/generate", strings.NewReader(`{}`))
	w = httptest.NewRecorder()
	ts.mux.ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code, "auth failures must short-circuit before any work")
}

func TestSessionLifecycleEndpoints(t *testing.T) {
	ts := newTestServer(t, 2)

	w := ts.do(t, "POST", "/api/sessions", map[string]any{"sourceHtml": "<html><body>s</body></html>"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Session domain.Session `json:"session"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.Session.ID)
	require.Equal(t, 2, created.Session.VariantCount)

	w = ts.do(t, "POST", "/api/sessions/"+created.Session.ID+"/plans", map[string]any{
		"plans": []map[string]any{
			{"title": "plan a", "keyChanges": []string{"x"}},
			{"title": "plan b"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = ts.do(t, "GET", "/api/sessions/"+created.Session.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap generation.SessionSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	require.Len(t, snap.Plans, 2)
	require.Equal(t, domain.SessionPlanReady, snap.Session.Status)
}

func TestIterateAndRevertEndpoints(t *testing.T) {
	ts := newTestServer(t, 1)
	session, plans := ts.seedSession(t, 1)

	w := ts.do(t, "POST", "/api/generate", map[string]any{
		"sessionId":    session.ID,
		"planId":       plans[0].ID,
		"variantIndex": 1,
		"sourceHtml":   session.SourceHTML,
	})
	require.Equal(t, http.StatusOK, w.Code)

	v, err := ts.records.GetVariant(context.Background(), session.ID, 1)
	require.NoError(t, err)

	w = ts.do(t, "POST", "/api/iterate", map[string]any{
		"sessionId":       session.ID,
		"variantId":       v.ID,
		"currentHtml":     validHTML,
		"iterationPrompt": "make the button blue",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var iterated struct {
		Success         bool             `json:"success"`
		IterationNumber int              `json:"iterationNumber"`
		Iteration       domain.Iteration `json:"iteration"`
		HTMLURL         string           `json:"htmlUrl"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &iterated))
	require.True(t, iterated.Success)
	require.Equal(t, 1, iterated.IterationNumber)
	require.NotEmpty(t, iterated.HTMLURL)

	w = ts.do(t, "GET", "/api/variants/"+v.ID+"/iterations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Iterations []domain.Iteration `json:"iterations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed.Iterations, 1)

	w = ts.do(t, "POST", "/api/revert", map[string]any{
		"variantId":   v.ID,
		"iterationId": iterated.Iteration.ID,
	})
	require.Equal(t, http.StatusOK, w.Code)

	after, err := ts.records.GetVariantByID(context.Background(), v.ID)
	require.NoError(t, err)
	require.Equal(t, 1, after.IterationCount, "revert must not change iterationCount")
}

func TestGenerateAllReturnsAccepted(t *testing.T) {
	ts := newTestServer(t, 2)
	session, _ := ts.seedSession(t, 2)

	w := ts.do(t, "POST", "/api/generate-all", map[string]any{"sessionId": session.ID})
	require.Equal(t, http.StatusAccepted, w.Code)
	var resp struct {
		VariantIndexes []int `json:"variantIndexes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, []int{1, 2}, resp.VariantIndexes)
}
