// Package handler exposes the admin views over HTTP. Routes are mounted
// behind authentication and the admin role gate.
package handler

import (
	"net/http"

	"layoutaria/internal/admin/service"
	"layoutaria/internal/platform/httpx"
	"layoutaria/internal/platform/pagination"
)

type Handler struct {
	admin *service.Service
}

func NewHandler(admin *service.Service) *Handler {
	return &Handler{admin: admin}
}

func pageQuery(r *http.Request) (pagination.Query, error) {
	page, err := httpx.QueryInt(r, "page")
	if err != nil {
		return pagination.Query{}, err
	}
	limit, err := httpx.QueryInt(r, "limit")
	if err != nil {
		return pagination.Query{}, err
	}
	return pagination.Query{Page: page, Limit: limit}, nil
}

// Stats handles GET /admin/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"stats": h.admin.Stats(r.Context())})
}

// Users handles GET /admin/users?page&limit.
func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	q, err := pageQuery(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	res, err := h.admin.ListUsers(r.Context(), q)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

// AuditLogs handles GET /admin/audit-logs?page&limit&action&actorId.
func (h *Handler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	q, err := pageQuery(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	actorID := r.URL.Query().Get("actorId")
	if err := httpx.Var("actorId", actorID, "omitempty,uuid"); err != nil {
		httpx.Error(w, r, err)
		return
	}
	res, err := h.admin.ListAuditLogs(r.Context(), service.AuditQuery{
		Query:   q,
		Action:  r.URL.Query().Get("action"),
		ActorID: actorID,
	})
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}
