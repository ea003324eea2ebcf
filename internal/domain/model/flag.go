//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

const (
	maxFlagKeyLen  = 128
	maxFlagRollout = 100
)

// flagKeyRegex restricts keys to the dotted lowercase form the game client
// sends, e.g. "lobby.new_store_tab".
var flagKeyRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)*$`)

// FlagRules is a feature flag's targeting configuration, stored as JSONB.
// Expression is a JMESPath predicate evaluated against the player context
// document; an empty expression targets everyone. RolloutPercent applies
// after targeting, bucketing players 0-100.
type FlagRules struct {
	Expression     string `json:"expression,omitempty"`
	RolloutPercent int    `json:"rollout_percent"`
}

// FeatureFlag gates a game feature from the dashboard.
type FeatureFlag struct {
	ID          string    `json:"id"          db:"id"`
	Key         string    `json:"key"         db:"key"`
	Description string    `json:"description" db:"description"`
	Enabled     bool      `json:"enabled"     db:"enabled"`
	Rules       FlagRules `json:"rules"       db:"rules"`
	CreatedAt   time.Time `json:"created_at"  db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"  db:"updated_at"`
}

// FlagListOptions controls paging and filtering for listing feature flags.
type FlagListOptions struct {
	Limit   int
	Offset  int
	Q       *string // substring match on key (ILIKE)
	Enabled *bool   // exact match
}

// CreateFlagRequest represents parameters to create a FeatureFlag.
type CreateFlagRequest struct {
	Key         string     `json:"key"`
	Description string     `json:"description"`
	Enabled     *bool      `json:"enabled,omitempty"`
	Rules       *FlagRules `json:"rules,omitempty"`
}

// UpdateFlagRequest represents parameters to update a FeatureFlag.
type UpdateFlagRequest struct {
	Description *string    `json:"description,omitempty"`
	Enabled     *bool      `json:"enabled,omitempty"`
	Rules       *FlagRules `json:"rules,omitempty"`
}

// Validate validates CreateFlagRequest.
func (r *CreateFlagRequest) Validate() error {
	key := strings.TrimSpace(r.Key)
	if key == "" {
		return errors.New("key is required and cannot be empty")
	}
	if len(key) > maxFlagKeyLen {
		return errors.New("key cannot exceed 128 characters")
	}
	if !flagKeyRegex.MatchString(key) {
		return errors.New("key must be dotted lowercase segments, e.g. lobby.new_store_tab")
	}
	if r.Rules != nil {
		if err := r.Rules.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// HasUpdates reports whether any field is set in UpdateFlagRequest.
func (r *UpdateFlagRequest) HasUpdates() bool {
	return r.Description != nil || r.Enabled != nil || r.Rules != nil
}

// Validate validates UpdateFlagRequest, ensuring at least one field is set.
func (r *UpdateFlagRequest) Validate() error {
	if !r.HasUpdates() {
		return errors.New("at least one field must be updated")
	}
	if r.Rules != nil {
		if err := r.Rules.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the rollout bounds. Expression syntax is validated by the
// flag service, which owns the JMESPath compiler.
func (r *FlagRules) Validate() error {
	if r.RolloutPercent < 0 || r.RolloutPercent > maxFlagRollout {
		return errors.New("rollout_percent must be between 0 and 100")
	}
	return nil
}
