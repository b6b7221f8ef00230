package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"variantforge/internal/apperr"
	"variantforge/internal/auth"
	"variantforge/internal/generation"
)

// Handler exposes the generation service over HTTP. Every route that does
// generation work verifies the bearer credential before touching any state.
type Handler struct {
	svc      *generation.Service
	verifier *auth.Verifier
	logger   *zap.Logger
}

func New(svc *generation.Service, verifier *auth.Verifier, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, verifier: verifier, logger: logger}
}

// NewMux wires all routes behind the CORS middleware.
func NewMux(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/sessions", h.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", h.handleGetSession)
	mux.HandleFunc("POST /api/sessions/{id}/plans", h.handleAttachPlans)
	mux.HandleFunc("POST /api/sessions/{id}/advance", h.handleAdvanceStage)

	mux.HandleFunc("POST /api/generate", h.handleGenerateSSE)
	mux.HandleFunc("POST /api/generate-all", h.handleGenerateAll)

	mux.HandleFunc("POST /api/iterate", h.handleIterate)
	mux.HandleFunc("POST /api/revert", h.handleRevert)
	mux.HandleFunc("GET /api/variants/{id}/iterations", h.handleListIterations)

	mux.HandleFunc("GET /ws/watch/{id}", h.handleWatchWS)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return CORS(mux)
}

// requireAuth rejects the request before any work happens. Returns false
// after writing the response when the credential is missing or invalid.
func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) bool {
	if _, err := h.verifier.VerifyRequest(r); err != nil {
		h.writeError(w, err)
		return false
	}
	return true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, apperr.Validation("invalid request body: "+err.Error()))
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("response encode failed", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindAuthentication:
		status = http.StatusUnauthorized
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindConfiguration:
		status = http.StatusServiceUnavailable
	case apperr.KindProvider:
		status = http.StatusBadGateway
	}
	h.writeJSON(w, status, map[string]any{
		"success": false,
		"error":   err.Error(),
	})
}
