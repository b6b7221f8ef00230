package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"variantforge/internal/domain"
	"variantforge/internal/generation"
)

type generateRequest struct {
	SessionID    string `json:"sessionId"`
	PlanID       string `json:"planId"`
	VariantIndex int    `json:"variantIndex"`
	Plan         *struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		KeyChanges  []string `json:"keyChanges"`
		StyleNotes  string   `json:"styleNotes"`
	} `json:"plan"`
	SourceHTML string `json:"sourceHtml"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
}

// handleGenerateSSE streams one variant's generation as Server-Sent Events.
// Exactly one terminal event ends the stream; a client disconnect cancels
// the request context and the orchestrator marks the variant failed.
func (h *Handler) handleGenerateSSE(w http.ResponseWriter, r *http.Request) {
	if !h.requireAuth(w, r) {
		return
	}
	var req generateRequest
	if !h.decode(w, r, &req) {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	genReq := generation.GenerateRequest{
		SessionID:    req.SessionID,
		PlanID:       req.PlanID,
		VariantIndex: req.VariantIndex,
		SourceHTML:   req.SourceHTML,
		Provider:     req.Provider,
		Model:        req.Model,
	}
	if req.Plan != nil {
		genReq.Plan = &domain.VariantPlan{
			ID:           req.PlanID,
			SessionID:    req.SessionID,
			VariantIndex: req.VariantIndex,
			Title:        req.Plan.Title,
			Description:  req.Plan.Description,
			KeyChanges:   req.Plan.KeyChanges,
			StyleNotes:   req.Plan.StyleNotes,
			CreatedAt:    time.Now().UTC(),
		}
	}

	ctx := r.Context()
	events := h.svc.Generate(ctx, genReq)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				fmt.Fprintf(w, "event: close\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Warn("event encode failed", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
			if event.Type == generation.EventComplete || event.Type == generation.EventError {
				return
			}
		}
	}
}

type generateAllRequest struct {
	SessionID string `json:"sessionId"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
}

// handleGenerateAll kicks off generation for every plan of a session and
// returns 202 immediately; progress is observed via the watch socket or by
// polling the session.
func (h *Handler) handleGenerateAll(w http.ResponseWriter, r *http.Request) {
	if !h.requireAuth(w, r) {
		return
	}
	var req generateAllRequest
	if !h.decode(w, r, &req) {
		return
	}
	indexes, err := h.svc.GenerateAll(r.Context(), req.SessionID, req.Provider, req.Model)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]any{
		"success":        true,
		"sessionId":      req.SessionID,
		"variantIndexes": indexes,
	})
}
