// Package dashboard exposes the search engine state and its mutators as a
// JSON API for the collection browser.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/enduro-dash/enduro-dash/internal/collection"
	"github.com/enduro-dash/enduro-dash/internal/platform/httpx"
	"github.com/enduro-dash/enduro-dash/internal/search"
	"github.com/enduro-dash/enduro-dash/internal/transport"
)

// Engine is the search engine surface the handler drives.
type Engine interface {
	SetStatus(status *collection.Status)
	SetField(field collection.Field)
	SetText(text string)
	SetDateRange(shorthand string)
	ResetQuery()
	ResetToFirstPage()
	AdvanceToNextPage() error
	RetreatToPreviousPage() error
	Search(ctx context.Context) error
	SearchDebounced()
	FetchFocused(ctx context.Context, id string) error
	ResetFocused()
	Snapshot() search.Snapshot
}

// PipelineView exposes the resolved pipeline of the focused collection.
type PipelineView interface {
	Pipeline() *collection.Pipeline
	Err() bool
}

// Handler serves the dashboard API.
type Handler struct {
	logger    *slog.Logger
	engine    Engine
	pipelines PipelineView
	validator *validator.Validate
}

// NewHandler constructs a Handler. pipelines may be nil.
func NewHandler(logger *slog.Logger, engine Engine, pipelines PipelineView) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		engine:    engine,
		pipelines: pipelines,
		validator: validator.New(),
	}
}

// MountRoutes registers the API routes on r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/search", func(r chi.Router) {
		r.Get("/", h.getSearch)
		r.Put("/query", h.putQuery)
		r.Delete("/query", h.resetQuery)
		r.Post("/first", h.firstPage)
		r.Post("/next", h.nextPage)
		r.Post("/previous", h.previousPage)
		r.Post("/refresh", h.refresh)
	})
	r.Route("/collections", func(r chi.Router) {
		r.Delete("/focused", h.resetFocused)
		r.Get("/{id}", h.getCollection)
	})
}

type queryView struct {
	Status              *collection.Status `json:"status,omitempty"`
	Field               collection.Field   `json:"field"`
	Text                string             `json:"text"`
	EarliestCreatedTime *time.Time         `json:"earliest_created_time,omitempty"`
	LatestCreatedTime   *time.Time         `json:"latest_created_time,omitempty"`
}

type snapshotView struct {
	Query         queryView               `json:"query"`
	Date          string                  `json:"date"`
	Validity      string                  `json:"validity"`
	Page          []collection.Collection `json:"page"`
	HasPrevious   bool                    `json:"has_previous"`
	HasNext       bool                    `json:"has_next"`
	Error         bool                    `json:"error"`
	Focused       *collection.Collection  `json:"focused"`
	Pipeline      *collection.Pipeline    `json:"pipeline"`
	PipelineError bool                    `json:"pipeline_error"`
}

func (h *Handler) view() snapshotView {
	s := h.engine.Snapshot()
	v := snapshotView{
		Query: queryView{
			Status:              s.Query.Status,
			Field:               s.Query.Field,
			Text:                s.Query.Text,
			EarliestCreatedTime: s.Query.EarliestCreatedTime,
			LatestCreatedTime:   s.Query.LatestCreatedTime,
		},
		Date:        s.Query.DateRange,
		Validity:    s.Query.Validity.String(),
		Page:        s.Page,
		HasPrevious: s.HasPreviousPage,
		HasNext:     s.HasNextPage,
		Error:       s.Error,
		Focused:     s.Focused,
	}
	if h.pipelines != nil && s.Focused != nil {
		v.Pipeline = h.pipelines.Pipeline()
		v.PipelineError = h.pipelines.Err()
	}
	return v
}

func (h *Handler) getSearch(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.view())
}

type queryRequest struct {
	Status *string `json:"status"`
	Field  *string `json:"field"`
	Text   *string `json:"text" validate:"omitempty,max=256"`
	Date   *string `json:"date" validate:"omitempty,max=16,alphanum"`
}

func (h *Handler) putQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}

	var status *collection.Status
	if req.Status != nil && *req.Status != "" {
		parsed, ok := collection.ParseStatus(*req.Status)
		if !ok {
			httpx.RespondError(w, fmt.Errorf("%w: unknown status %q", httpx.ErrValidation, *req.Status))
			return
		}
		status = &parsed
	}
	var field collection.Field
	if req.Field != nil {
		parsed, ok := collection.ParseField(*req.Field)
		if !ok {
			httpx.RespondError(w, fmt.Errorf("%w: unknown field %q", httpx.ErrValidation, *req.Field))
			return
		}
		field = parsed
	}

	if req.Status != nil {
		h.engine.SetStatus(status)
	}
	if req.Field != nil {
		h.engine.SetField(field)
	}
	if req.Text != nil {
		h.engine.SetText(*req.Text)
	}
	if req.Date != nil {
		h.engine.SetDateRange(*req.Date)
	}
	h.engine.SearchDebounced()
	httpx.JSON(w, http.StatusAccepted, h.view())
}

func (h *Handler) resetQuery(w http.ResponseWriter, r *http.Request) {
	h.engine.ResetQuery()
	h.search(w, r)
}

func (h *Handler) firstPage(w http.ResponseWriter, r *http.Request) {
	h.engine.ResetToFirstPage()
	h.search(w, r)
}

func (h *Handler) nextPage(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.AdvanceToNextPage(); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrConflict, err))
		return
	}
	h.search(w, r)
}

func (h *Handler) previousPage(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RetreatToPreviousPage(); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrConflict, err))
		return
	}
	h.search(w, r)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	h.search(w, r)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Search(r.Context()); err != nil && !errors.Is(err, search.ErrStaleResponse) {
		h.logger.Warn("search", slog.Any("error", err))
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, h.view())
}

func (h *Handler) getCollection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.engine.FetchFocused(r.Context(), id); err != nil && !errors.Is(err, search.ErrStaleResponse) {
		h.logger.Warn("fetch collection", slog.String("id", id), slog.Any("error", err))
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, h.view())
}

func (h *Handler) resetFocused(w http.ResponseWriter, r *http.Request) {
	h.engine.ResetFocused()
	w.WriteHeader(http.StatusNoContent)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, search.ErrInvalidID):
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	case errors.Is(err, transport.ErrNotFound):
		return fmt.Errorf("%w: %v", httpx.ErrNotFound, err)
	case errors.Is(err, transport.ErrTransport):
		return fmt.Errorf("%w: %v", httpx.ErrUpstream, err)
	}
	return err
}
