// Package handler exposes a user's own sessions over HTTP.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"layoutaria/internal/identity/service"
	"layoutaria/internal/platform/httpx"
	"layoutaria/internal/server/middleware"
)

// Handler serves /auth/sessions for the authenticated caller.
type Handler struct {
	auth *service.AuthService
}

func NewHandler(auth *service.AuthService) *Handler {
	return &Handler{auth: auth}
}

// List handles GET /auth/sessions. The session behind the caller's access
// token is flagged isCurrent.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFrom(r.Context())
	res, err := h.auth.ListSessions(r.Context(), actor.ID, actor.SessionID)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

// Revoke handles DELETE /auth/sessions/{sessionId}.
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	if err := httpx.Var("sessionId", sessionID, "uuid"); err != nil {
		httpx.Error(w, r, err)
		return
	}
	actor := middleware.ActorFrom(r.Context())
	res, err := h.auth.RevokeSession(r.Context(), actor.ID, sessionID, actor.SessionID, middleware.RequestInfo(r))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}
