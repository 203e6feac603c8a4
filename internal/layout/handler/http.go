// Package handler exposes the layout service over HTTP.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"layoutaria/internal/layout/service"
	"layoutaria/internal/platform/apperr"
	"layoutaria/internal/platform/httpx"
	"layoutaria/internal/server/middleware"
)

// layoutConfig is the flexbox configuration a layout stores. Every field is
// required; unknown fields are dropped.
type layoutConfig struct {
	Direction      *string `json:"direction" validate:"required,oneof=row row-reverse column column-reverse"`
	JustifyContent *string `json:"justifyContent" validate:"required,oneof=flex-start flex-end center space-between space-around space-evenly"`
	AlignItems     *string `json:"alignItems" validate:"required,oneof=flex-start flex-end center stretch baseline"`
	AlignContent   *string `json:"alignContent" validate:"required,oneof=flex-start flex-end center stretch space-between space-around space-evenly"`
	Wrap           *string `json:"wrap" validate:"required,oneof=nowrap wrap wrap-reverse"`
	GapPx          *int    `json:"gapPx" validate:"required,min=0,max=56"`
	MinHeightVh    *int    `json:"minHeightVh" validate:"required,min=45,max=90"`
	ItemSizePx     *int    `json:"itemSizePx" validate:"required,min=88,max=220"`
	ItemCount      *int    `json:"itemCount" validate:"required,min=1,max=12"`
	ShowIndex      *bool   `json:"showIndex" validate:"required"`
	ShowAxes       *bool   `json:"showAxes" validate:"required"`
}

func (c *layoutConfig) raw() (json.RawMessage, error) {
	if c == nil {
		return nil, nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, apperr.Internal("encode layout config", err)
	}
	return b, nil
}

type createRequest struct {
	Name        string        `json:"name" validate:"required,min=3,max=120"`
	Description string        `json:"description" validate:"max=800"`
	Tags        []string      `json:"tags" validate:"max=8,dive,min=1,max=24"`
	Config      *layoutConfig `json:"config" validate:"required"`
	IsPublic    bool          `json:"isPublic"`
}

type updateRequest struct {
	Name            *string       `json:"name" validate:"omitnil,min=3,max=120"`
	Description     *string       `json:"description" validate:"omitnil,max=800"`
	Tags            *[]string     `json:"tags" validate:"omitnil,max=8,dive,min=1,max=24"`
	Config          *layoutConfig `json:"config" validate:"omitnil"`
	IsPublic        *bool         `json:"isPublic"`
	ExpectedVersion *int          `json:"expectedVersion" validate:"omitnil,min=1"`
}

type publishRequest struct {
	IsPublic        *bool `json:"isPublic" validate:"required"`
	ExpectedVersion *int  `json:"expectedVersion" validate:"omitnil,min=1"`
}

type restoreRequest struct {
	RevisionID      string `json:"revisionId" validate:"required,uuid"`
	ExpectedVersion *int   `json:"expectedVersion" validate:"omitnil,min=1"`
}

var errNoMutableField = apperr.InvalidFields([]apperr.FieldError{{
	Path:    "body",
	Message: "At least one mutable field must be provided",
}})

// Handler serves /layouts.
type Handler struct {
	layouts *service.Service
}

func NewHandler(layouts *service.Service) *Handler {
	return &Handler{layouts: layouts}
}

func layoutID(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	return id, httpx.Var("id", id, "uuid")
}

func pageQuery(r *http.Request) (service.PageQuery, error) {
	page, err := httpx.QueryInt(r, "page")
	if err != nil {
		return service.PageQuery{}, err
	}
	limit, err := httpx.QueryInt(r, "limit")
	if err != nil {
		return service.PageQuery{}, err
	}
	return service.PageQuery{Page: page, Limit: limit}, nil
}

// ListPublic handles GET /layouts/public?page&limit&search&tag&sort.
func (h *Handler) ListPublic(w http.ResponseWriter, r *http.Request) {
	pq, err := pageQuery(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	q := r.URL.Query()
	sort := q.Get("sort")
	if err := httpx.Var("sort", sort, "omitempty,oneof=recent popular"); err != nil {
		httpx.Error(w, r, err)
		return
	}
	res, err := h.layouts.ListPublic(r.Context(), service.PublicQuery{
		PageQuery: pq,
		Search:    q.Get("search"),
		Tag:       q.Get("tag"),
		Sort:      sort,
	})
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

// ListPublicTags handles GET /layouts/public/tags?limit.
func (h *Handler) ListPublicTags(w http.ResponseWriter, r *http.Request) {
	limit, err := httpx.QueryInt(r, "limit")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	res, err := h.layouts.ListPublicTags(r.Context(), limit)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

// ListMine handles GET /layouts/mine.
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	pq, err := pageQuery(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	res, err := h.layouts.ListMine(r.Context(), middleware.ActorFrom(r.Context()), pq)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

// Get handles GET /layouts/{id}. The caller may be anonymous.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := layoutID(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	v, err := h.layouts.Get(r.Context(), middleware.ActorFrom(r.Context()), id)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"layout": v})
}

// ListRevisions handles GET /layouts/{id}/revisions.
func (h *Handler) ListRevisions(w http.ResponseWriter, r *http.Request) {
	id, err := layoutID(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	pq, err := pageQuery(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	res, err := h.layouts.ListRevisions(r.Context(), middleware.ActorFrom(r.Context()), id, pq)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

// GetRevision handles GET /layouts/{id}/revisions/{revisionId}.
func (h *Handler) GetRevision(w http.ResponseWriter, r *http.Request) {
	id, err := layoutID(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	revisionID := chi.URLParam(r, "revisionId")
	if err := httpx.Var("revisionId", revisionID, "uuid"); err != nil {
		httpx.Error(w, r, err)
		return
	}
	rev, err := h.layouts.GetRevision(r.Context(), middleware.ActorFrom(r.Context()), id, revisionID)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"revision": rev})
}

// Create handles POST /layouts.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	cfg, err := req.Config.raw()
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	v, err := h.layouts.Create(r.Context(), middleware.ActorFrom(r.Context()), service.CreateInput{
		Name:        req.Name,
		Description: req.Description,
		Tags:        req.Tags,
		Config:      cfg,
		IsPublic:    req.IsPublic,
	}, middleware.RequestInfo(r))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"layout": v})
}

// Update handles PATCH /layouts/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := layoutID(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var req updateRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	if req.Name == nil && req.Description == nil && req.Tags == nil && req.Config == nil && req.IsPublic == nil {
		httpx.Error(w, r, errNoMutableField)
		return
	}
	cfg, err := req.Config.raw()
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	v, err := h.layouts.Update(r.Context(), middleware.ActorFrom(r.Context()), id, service.UpdateInput{
		Name:            req.Name,
		Description:     req.Description,
		Tags:            req.Tags,
		Config:          cfg,
		IsPublic:        req.IsPublic,
		ExpectedVersion: req.ExpectedVersion,
	}, middleware.RequestInfo(r))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"layout": v})
}

// Delete handles DELETE /layouts/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := layoutID(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	res, err := h.layouts.Remove(r.Context(), middleware.ActorFrom(r.Context()), id, middleware.RequestInfo(r))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

// Publish handles POST /layouts/{id}/publish.
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	id, err := layoutID(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var req publishRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	v, err := h.layouts.SetPublishStatus(r.Context(), middleware.ActorFrom(r.Context()), id, *req.IsPublic, req.ExpectedVersion, middleware.RequestInfo(r))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"layout": v})
}

// Star handles POST /layouts/{id}/star. Each call flips the caller's star.
func (h *Handler) Star(w http.ResponseWriter, r *http.Request) {
	id, err := layoutID(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	res, err := h.layouts.ToggleStar(r.Context(), middleware.ActorFrom(r.Context()), id, middleware.RequestInfo(r))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

// Clone handles POST /layouts/{id}/clone.
func (h *Handler) Clone(w http.ResponseWriter, r *http.Request) {
	id, err := layoutID(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	v, err := h.layouts.Clone(r.Context(), middleware.ActorFrom(r.Context()), id, middleware.RequestInfo(r))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"layout": v})
}

// Restore handles POST /layouts/{id}/restore.
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	id, err := layoutID(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var req restoreRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	v, err := h.layouts.RestoreRevision(r.Context(), middleware.ActorFrom(r.Context()), id, req.RevisionID, req.ExpectedVersion, middleware.RequestInfo(r))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"layout": v})
}
