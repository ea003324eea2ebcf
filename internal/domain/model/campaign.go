//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"errors"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

const maxCampaignNameLen = 255

// CampaignStatus is the lifecycle of an ad campaign.
type CampaignStatus string

const (
	CampaignStatusDraft    CampaignStatus = "draft"
	CampaignStatusActive   CampaignStatus = "active"
	CampaignStatusPaused   CampaignStatus = "paused"
	CampaignStatusArchived CampaignStatus = "archived"
)

// Valid reports whether the campaign status is supported.
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignStatusDraft, CampaignStatusActive, CampaignStatusPaused, CampaignStatusArchived:
		return true
	default:
		return false
	}
}

// ParseCampaignStatus normalizes a status string and reports whether it is supported.
func ParseCampaignStatus(value string) (CampaignStatus, bool) {
	status := CampaignStatus(strings.ToLower(strings.TrimSpace(value)))
	if status.Valid() {
		return status, true
	}
	return "", false
}

// AdCampaign is an in-game advertising campaign. LandingDomain is the
// registrable domain (eTLD+1) derived from LandingURL at write time, kept as
// its own column so campaigns can be grouped and filtered by advertiser site.
type AdCampaign struct {
	ID            string         `json:"id"             db:"id"`
	Name          string         `json:"name"           db:"name"`
	Status        CampaignStatus `json:"status"         db:"status"`
	LandingURL    string         `json:"landing_url"    db:"landing_url"`
	LandingDomain string         `json:"landing_domain" db:"landing_domain"`
	BudgetCents   int64          `json:"budget_cents"   db:"budget_cents"`
	AdvertiserID  string         `json:"advertiser_id"  db:"advertiser_id"`
	StartsAt      time.Time      `json:"starts_at"      db:"starts_at"`
	EndsAt        *time.Time     `json:"ends_at,omitempty" db:"ends_at"`
	CreatedAt     time.Time      `json:"created_at"     db:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"     db:"updated_at"`
}

// CampaignListOptions controls paging and filtering for listing campaigns.
// Sort supports "created_at", "name", "starts_at"; Dir supports "asc"/"desc".
type CampaignListOptions struct {
	Limit         int
	Offset        int
	Q             *string  // substring match on name (ILIKE)
	Statuses      []string // exact match on any of the given statuses
	AdvertiserID  *string  // exact match
	LandingDomain *string  // exact match on derived eTLD+1
	ActiveOn      *time.Time
	Sort          string
	Dir           string
}

// CreateCampaignRequest represents parameters to create an AdCampaign.
type CreateCampaignRequest struct {
	Name         string     `json:"name"`
	LandingURL   string     `json:"landing_url"`
	BudgetCents  int64      `json:"budget_cents"`
	AdvertiserID string     `json:"advertiser_id"`
	StartsAt     time.Time  `json:"starts_at"`
	EndsAt       *time.Time `json:"ends_at,omitempty"`
}

// UpdateCampaignRequest represents parameters to update an AdCampaign.
type UpdateCampaignRequest struct {
	Name        *string         `json:"name,omitempty"`
	Status      *CampaignStatus `json:"status,omitempty"`
	LandingURL  *string         `json:"landing_url,omitempty"`
	BudgetCents *int64          `json:"budget_cents,omitempty"`
	StartsAt    *time.Time      `json:"starts_at,omitempty"`
	EndsAt      *time.Time      `json:"ends_at,omitempty"`
}

// Validate validates CreateCampaignRequest.
func (r *CreateCampaignRequest) Validate() error {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return errors.New("name is required and cannot be empty")
	}
	if utf8.RuneCountInString(name) > maxCampaignNameLen {
		return errors.New("name cannot exceed 255 characters")
	}
	if err := validateLandingURL(r.LandingURL); err != nil {
		return err
	}
	if r.BudgetCents < 0 {
		return errors.New("budget_cents cannot be negative")
	}
	if strings.TrimSpace(r.AdvertiserID) == "" {
		return errors.New("advertiser_id is required")
	}
	if r.StartsAt.IsZero() {
		return errors.New("starts_at is required")
	}
	if r.EndsAt != nil && !r.EndsAt.After(r.StartsAt) {
		return errors.New("ends_at must be after starts_at")
	}
	return nil
}

// HasUpdates reports whether any field is set in UpdateCampaignRequest.
func (r *UpdateCampaignRequest) HasUpdates() bool {
	return r.Name != nil || r.Status != nil || r.LandingURL != nil ||
		r.BudgetCents != nil || r.StartsAt != nil || r.EndsAt != nil
}

// Validate validates UpdateCampaignRequest, ensuring at least one field is set.
func (r *UpdateCampaignRequest) Validate() error {
	if !r.HasUpdates() {
		return errors.New("at least one field must be updated")
	}
	if r.Name != nil {
		name := strings.TrimSpace(*r.Name)
		if name == "" {
			return errors.New("name cannot be empty")
		}
		if utf8.RuneCountInString(name) > maxCampaignNameLen {
			return errors.New("name cannot exceed 255 characters")
		}
	}
	if r.Status != nil && !r.Status.Valid() {
		return errors.New("invalid status")
	}
	if r.LandingURL != nil {
		if err := validateLandingURL(*r.LandingURL); err != nil {
			return err
		}
	}
	if r.BudgetCents != nil && *r.BudgetCents < 0 {
		return errors.New("budget_cents cannot be negative")
	}
	if r.StartsAt != nil && r.EndsAt != nil && !r.EndsAt.After(*r.StartsAt) {
		return errors.New("ends_at must be after starts_at")
	}
	return nil
}

func validateLandingURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return errors.New("landing_url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return errors.New("landing_url is not a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("landing_url must use http or https")
	}
	if u.Hostname() == "" {
		return errors.New("landing_url must include a host")
	}
	return nil
}
