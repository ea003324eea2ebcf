package httpx

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/clika/admin-api/internal/data"
	"github.com/clika/admin-api/internal/domain/model"
)

// ContentStore is the persistence surface the content handlers use.
type ContentStore interface {
	Create(ctx context.Context, req *model.CreateContentRequest) (*model.ContentItem, error)
	GetByID(ctx context.Context, id string) (*model.ContentItem, error)
	List(ctx context.Context, opts model.ContentListOptions) ([]*model.ContentItem, error)
	Update(ctx context.Context, id string, req model.UpdateContentRequest) (*model.ContentItem, error)
	Review(ctx context.Context, id string, req model.ReviewContentRequest) (*model.ContentItem, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// ContentHandlers provides HTTP handlers for game content items.
type ContentHandlers struct {
	Store ContentStore
}

// Create handles POST /api/content. The author is the current session's user.
func (h *ContentHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req *model.CreateContentRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if identity, ok := GetIdentityFromContext(r.Context()); ok {
		req.AuthorID = identity.ID
	}

	item, err := h.Store.Create(r.Context(), req)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "validation_failed", Err: err})
		return
	}
	WriteJSON(w, http.StatusCreated, item)
}

// Get handles GET /api/content/{id}.
func (h *ContentHandlers) Get(w http.ResponseWriter, r *http.Request) {
	item, err := h.Store.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeContentError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, item)
}

// List handles GET /api/content with filter query parameters.
func (h *ContentHandlers) List(w http.ResponseWriter, r *http.Request) {
	opts := contentListOptionsFromQuery(r)
	items, err := h.Store.List(r.Context(), opts)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "list_failed", Err: err})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

// Update handles PATCH /api/content/{id}.
func (h *ContentHandlers) Update(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateContentRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	item, err := h.Store.Update(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeContentError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, item)
}

// Review handles POST /api/content/{id}/review. The reviewer is the current
// session's user.
func (h *ContentHandlers) Review(w http.ResponseWriter, r *http.Request) {
	var req model.ReviewContentRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if identity, ok := GetIdentityFromContext(r.Context()); ok {
		req.ReviewerID = identity.ID
	}

	item, err := h.Store.Review(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeContentError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, item)
}

// Delete handles DELETE /api/content/{id}.
func (h *ContentHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.Store.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "delete_failed", Err: err})
		return
	}
	if !deleted {
		WriteError(w, ErrorParams{
			Code:    http.StatusNotFound,
			ErrCode: "not_found",
			Err:     errors.New("content item not found"),
		})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeContentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, data.ErrContentNotFound):
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: err})
	case errors.Is(err, data.ErrContentTransition):
		WriteError(w, ErrorParams{Code: http.StatusConflict, ErrCode: "invalid_transition", Err: err})
	default:
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "validation_failed", Err: err})
	}
}

func contentListOptionsFromQuery(r *http.Request) model.ContentListOptions {
	q := r.URL.Query()
	opts := model.ContentListOptions{
		Limit:  intQuery(q.Get("limit")),
		Offset: intQuery(q.Get("offset")),
		Sort:   q.Get("sort"),
		Dir:    q.Get("dir"),
	}
	if v := q.Get("q"); v != "" {
		opts.Q = &v
	}
	if v := q.Get("kind"); v != "" {
		opts.Kind = &v
	}
	if v := q.Get("author_id"); v != "" {
		opts.AuthorID = &v
	}
	if statuses, ok := q["status"]; ok {
		opts.Statuses = statuses
	}
	return opts
}

func intQuery(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
