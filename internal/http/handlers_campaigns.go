package httpx

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/clika/admin-api/internal/data"
	"github.com/clika/admin-api/internal/domain/model"
)

// CampaignStore is the persistence surface the campaign handlers use.
type CampaignStore interface {
	Create(ctx context.Context, req *model.CreateCampaignRequest) (*model.AdCampaign, error)
	GetByID(ctx context.Context, id string) (*model.AdCampaign, error)
	List(ctx context.Context, opts model.CampaignListOptions) ([]*model.AdCampaign, error)
	Update(ctx context.Context, id string, req model.UpdateCampaignRequest) (*model.AdCampaign, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// CampaignHandlers provides HTTP handlers for ad campaigns.
type CampaignHandlers struct {
	Store CampaignStore
}

// Create handles POST /api/campaigns. The advertiser is the current
// session's user unless the request names one explicitly.
func (h *CampaignHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req *model.CreateCampaignRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.AdvertiserID == "" {
		if identity, ok := GetIdentityFromContext(r.Context()); ok {
			req.AdvertiserID = identity.ID
		}
	}

	campaign, err := h.Store.Create(r.Context(), req)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "validation_failed", Err: err})
		return
	}
	WriteJSON(w, http.StatusCreated, campaign)
}

// Get handles GET /api/campaigns/{id}.
func (h *CampaignHandlers) Get(w http.ResponseWriter, r *http.Request) {
	campaign, err := h.Store.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeCampaignError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, campaign)
}

// List handles GET /api/campaigns with filter query parameters.
func (h *CampaignHandlers) List(w http.ResponseWriter, r *http.Request) {
	opts, err := campaignListOptionsFromQuery(r)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "validation_failed", Err: err})
		return
	}
	campaigns, listErr := h.Store.List(r.Context(), opts)
	if listErr != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "list_failed", Err: listErr})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"items": campaigns, "count": len(campaigns)})
}

// Update handles PATCH /api/campaigns/{id}.
func (h *CampaignHandlers) Update(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateCampaignRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	campaign, err := h.Store.Update(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeCampaignError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, campaign)
}

// Delete handles DELETE /api/campaigns/{id}.
func (h *CampaignHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.Store.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "delete_failed", Err: err})
		return
	}
	if !deleted {
		WriteError(w, ErrorParams{
			Code:    http.StatusNotFound,
			ErrCode: "not_found",
			Err:     errors.New("campaign not found"),
		})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeCampaignError(w http.ResponseWriter, err error) {
	if errors.Is(err, data.ErrCampaignNotFound) {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: err})
		return
	}
	WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "validation_failed", Err: err})
}

func campaignListOptionsFromQuery(r *http.Request) (model.CampaignListOptions, error) {
	q := r.URL.Query()
	opts := model.CampaignListOptions{
		Limit:  intQuery(q.Get("limit")),
		Offset: intQuery(q.Get("offset")),
		Sort:   q.Get("sort"),
		Dir:    q.Get("dir"),
	}
	if v := q.Get("q"); v != "" {
		opts.Q = &v
	}
	if v := q.Get("advertiser_id"); v != "" {
		opts.AdvertiserID = &v
	}
	if v := q.Get("landing_domain"); v != "" {
		opts.LandingDomain = &v
	}
	if statuses, ok := q["status"]; ok {
		opts.Statuses = statuses
	}
	if v := q.Get("active_on"); v != "" {
		at, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return opts, errors.New("active_on must be an RFC 3339 timestamp")
		}
		opts.ActiveOn = &at
	}
	return opts, nil
}
