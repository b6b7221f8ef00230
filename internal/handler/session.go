package handler

import (
	"net/http"

	"variantforge/internal/domain"
	"variantforge/internal/generation"
)

type createSessionRequest struct {
	SourceHTML string `json:"sourceHtml"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if !h.requireAuth(w, r) {
		return
	}
	var req createSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	session, err := h.svc.CreateSession(r.Context(), req.SourceHTML)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"session": session,
	})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if !h.requireAuth(w, r) {
		return
	}
	snap, err := h.svc.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

type attachPlansRequest struct {
	Plans []struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		KeyChanges  []string `json:"keyChanges"`
		StyleNotes  string   `json:"styleNotes"`
	} `json:"plans"`
}

func (h *Handler) handleAttachPlans(w http.ResponseWriter, r *http.Request) {
	if !h.requireAuth(w, r) {
		return
	}
	var req attachPlansRequest
	if !h.decode(w, r, &req) {
		return
	}
	inputs := make([]generation.PlanInput, len(req.Plans))
	for i, p := range req.Plans {
		inputs[i] = generation.PlanInput{
			Title:       p.Title,
			Description: p.Description,
			KeyChanges:  p.KeyChanges,
			StyleNotes:  p.StyleNotes,
		}
	}
	plans, err := h.svc.AttachPlans(r.Context(), r.PathValue("id"), inputs)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"plans":   plans,
	})
}

type advanceStageRequest struct {
	Status string `json:"status"`
}

func (h *Handler) handleAdvanceStage(w http.ResponseWriter, r *http.Request) {
	if !h.requireAuth(w, r) {
		return
	}
	var req advanceStageRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.AdvanceStage(r.Context(), r.PathValue("id"), domain.SessionStatus(req.Status)); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handleListIterations(w http.ResponseWriter, r *http.Request) {
	if !h.requireAuth(w, r) {
		return
	}
	its, err := h.svc.Iterations(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"iterations": its,
	})
}
