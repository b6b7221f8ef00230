package handler

import (
	"net/http"

	"variantforge/internal/generation"
)

type iterateRequest struct {
	SessionID       string `json:"sessionId"`
	VariantID       string `json:"variantId"`
	CurrentHTML     string `json:"currentHtml"`
	IterationPrompt string `json:"iterationPrompt"`
	Provider        string `json:"provider"`
	Model           string `json:"model"`
}

func (h *Handler) handleIterate(w http.ResponseWriter, r *http.Request) {
	if !h.requireAuth(w, r) {
		return
	}
	var req iterateRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Iterate(r.Context(), generation.IterateRequest{
		SessionID:   req.SessionID,
		VariantID:   req.VariantID,
		CurrentHTML: req.CurrentHTML,
		Prompt:      req.IterationPrompt,
		Provider:    req.Provider,
		Model:       req.Model,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"iteration":       res.Iteration,
		"htmlUrl":         res.HTMLURL,
		"htmlPath":        res.HTMLPath,
		"iterationNumber": res.IterationNumber,
		"durationMs":      res.DurationMs,
	})
}

type revertRequest struct {
	VariantID   string `json:"variantId"`
	IterationID string `json:"iterationId"`
}

func (h *Handler) handleRevert(w http.ResponseWriter, r *http.Request) {
	if !h.requireAuth(w, r) {
		return
	}
	var req revertRequest
	if !h.decode(w, r, &req) {
		return
	}
	url, err := h.svc.Revert(r.Context(), req.VariantID, req.IterationID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"htmlUrl": url,
	})
}
