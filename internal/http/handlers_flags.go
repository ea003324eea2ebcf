package httpx

import (
	"errors"
	"net/http"

	"github.com/clika/admin-api/internal/data"
	"github.com/clika/admin-api/internal/domain/model"
	apperrors "github.com/clika/admin-api/internal/errors"
	"github.com/clika/admin-api/internal/service"
)

// FlagHandlers provides HTTP handlers for feature flags.
type FlagHandlers struct {
	Svc *service.FlagService
}

// Create handles POST /api/flags.
func (h *FlagHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req *model.CreateFlagRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	flag, err := h.Svc.Create(r.Context(), req)
	if err != nil {
		WriteAppError(w, wrapFlagErr(err))
		return
	}
	WriteJSON(w, http.StatusCreated, flag)
}

// Get handles GET /api/flags/{key}.
func (h *FlagHandlers) Get(w http.ResponseWriter, r *http.Request) {
	flag, err := h.Svc.Get(r.Context(), r.PathValue("key"))
	if err != nil {
		WriteAppError(w, wrapFlagErr(err))
		return
	}
	WriteJSON(w, http.StatusOK, flag)
}

// List handles GET /api/flags.
func (h *FlagHandlers) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := model.FlagListOptions{
		Limit:  intQuery(q.Get("limit")),
		Offset: intQuery(q.Get("offset")),
	}
	if v := q.Get("q"); v != "" {
		opts.Q = &v
	}
	if v := q.Get("enabled"); v != "" {
		enabled := v == "true"
		opts.Enabled = &enabled
	}

	flags, err := h.Svc.List(r.Context(), opts)
	if err != nil {
		WriteAppError(w, wrapFlagErr(err))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"items": flags, "count": len(flags)})
}

// Update handles PATCH /api/flags/{key}.
func (h *FlagHandlers) Update(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateFlagRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	flag, err := h.Svc.Update(r.Context(), r.PathValue("key"), req)
	if err != nil {
		WriteAppError(w, wrapFlagErr(err))
		return
	}
	WriteJSON(w, http.StatusOK, flag)
}

// Delete handles DELETE /api/flags/{key}.
func (h *FlagHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.Svc.Delete(r.Context(), r.PathValue("key"))
	if err != nil {
		WriteAppError(w, wrapFlagErr(err))
		return
	}
	if !deleted {
		WriteError(w, ErrorParams{
			Code:    http.StatusNotFound,
			ErrCode: "not_found",
			Err:     errors.New("feature flag not found"),
		})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type evaluateRequest struct {
	PlayerID string         `json:"player_id"`
	Context  map[string]any `json:"context"`
}

// Evaluate handles POST /api/flags/evaluate: decides every flag for a
// player context in one pass, the shape the game client bootstrap consumes.
func (h *FlagHandlers) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.PlayerID == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "validation",
			Err:     errors.New("player_id is required"),
		})
		return
	}

	decisions, err := h.Svc.EvaluateAll(r.Context(), req.PlayerID, req.Context)
	if err != nil {
		WriteAppError(w, wrapFlagErr(err))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"flags": decisions})
}

// wrapFlagErr normalizes repo sentinel errors into the app error taxonomy
// so WriteAppError picks the right status.
func wrapFlagErr(err error) error {
	if apperrors.GetCode(err) != "" {
		return err
	}
	switch {
	case errors.Is(err, data.ErrFlagNotFound):
		return apperrors.NotFound(err.Error())
	case errors.Is(err, data.ErrFlagKeyExists):
		return apperrors.Conflict(err.Error())
	default:
		return err
	}
}
