//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxContentTitleLen = 255
	maxReviewNoteLen   = 2000
)

// ContentKind classifies dashboard-managed game content.
type ContentKind string

const (
	ContentKindNews  ContentKind = "news"
	ContentKindEvent ContentKind = "event"
	ContentKindPromo ContentKind = "promo"
)

// Valid reports whether the content kind is supported.
func (k ContentKind) Valid() bool {
	switch k {
	case ContentKindNews, ContentKindEvent, ContentKindPromo:
		return true
	default:
		return false
	}
}

// ContentStatus is the review lifecycle of a content item.
type ContentStatus string

const (
	ContentStatusDraft     ContentStatus = "draft"
	ContentStatusPending   ContentStatus = "pending"
	ContentStatusApproved  ContentStatus = "approved"
	ContentStatusRejected  ContentStatus = "rejected"
	ContentStatusPublished ContentStatus = "published"
)

// Valid reports whether the content status is supported.
func (s ContentStatus) Valid() bool {
	switch s {
	case ContentStatusDraft, ContentStatusPending, ContentStatusApproved,
		ContentStatusRejected, ContentStatusPublished:
		return true
	default:
		return false
	}
}

// ParseContentStatus normalizes a status string and reports whether it is supported.
func ParseContentStatus(value string) (ContentStatus, bool) {
	status := ContentStatus(strings.ToLower(strings.TrimSpace(value)))
	if status.Valid() {
		return status, true
	}
	return "", false
}

// contentTransitions records the allowed review-state machine edges.
var contentTransitions = map[ContentStatus][]ContentStatus{
	ContentStatusDraft:     {ContentStatusPending},
	ContentStatusPending:   {ContentStatusApproved, ContentStatusRejected},
	ContentStatusApproved:  {ContentStatusPublished, ContentStatusPending},
	ContentStatusRejected:  {ContentStatusPending},
	ContentStatusPublished: {},
}

// CanTransitionTo reports whether the review workflow allows moving from s to next.
func (s ContentStatus) CanTransitionTo(next ContentStatus) bool {
	for _, allowed := range contentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ContentItem is a piece of in-game content managed through the dashboard.
type ContentItem struct {
	ID         string        `json:"id"                    db:"id"`
	Title      string        `json:"title"                 db:"title"`
	Body       string        `json:"body"                  db:"body"`
	Kind       ContentKind   `json:"kind"                  db:"kind"`
	Status     ContentStatus `json:"status"                db:"status"`
	AuthorID   string        `json:"author_id"             db:"author_id"`
	ReviewerID *string       `json:"reviewer_id,omitempty" db:"reviewer_id"`
	ReviewNote *string       `json:"review_note,omitempty" db:"review_note"`
	PublishAt  *time.Time    `json:"publish_at,omitempty"  db:"publish_at"`
	CreatedAt  time.Time     `json:"created_at"            db:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"            db:"updated_at"`
}

// ContentListOptions controls paging and filtering for listing content items.
// Sort supports "created_at", "updated_at", "title"; Dir supports "asc"/"desc".
type ContentListOptions struct {
	Limit    int
	Offset   int
	Q        *string  // substring match on title (ILIKE)
	Statuses []string // exact match on any of the given statuses
	Kind     *string  // exact match
	AuthorID *string  // exact match
	Sort     string
	Dir      string
}

// CreateContentRequest represents parameters to create a ContentItem.
type CreateContentRequest struct {
	Title     string      `json:"title"`
	Body      string      `json:"body"`
	Kind      ContentKind `json:"kind"`
	AuthorID  string      `json:"author_id"`
	PublishAt *time.Time  `json:"publish_at,omitempty"`
}

// UpdateContentRequest represents parameters to update a ContentItem's
// editable fields. Review-state changes go through ReviewContentRequest.
type UpdateContentRequest struct {
	Title     *string      `json:"title,omitempty"`
	Body      *string      `json:"body,omitempty"`
	Kind      *ContentKind `json:"kind,omitempty"`
	PublishAt *time.Time   `json:"publish_at,omitempty"`
}

// ReviewContentRequest moves an item through the review workflow.
type ReviewContentRequest struct {
	Status     ContentStatus `json:"status"`
	ReviewerID string        `json:"reviewer_id"`
	Note       *string       `json:"note,omitempty"`
}

// Validate validates CreateContentRequest.
func (r *CreateContentRequest) Validate() error {
	title := strings.TrimSpace(r.Title)
	if title == "" {
		return errors.New("title is required and cannot be empty")
	}
	if utf8.RuneCountInString(title) > maxContentTitleLen {
		return errors.New("title cannot exceed 255 characters")
	}
	if !r.Kind.Valid() {
		return errors.New("invalid kind")
	}
	if strings.TrimSpace(r.AuthorID) == "" {
		return errors.New("author_id is required")
	}
	return nil
}

// HasUpdates reports whether any field is set in UpdateContentRequest.
func (r *UpdateContentRequest) HasUpdates() bool {
	return r.Title != nil || r.Body != nil || r.Kind != nil || r.PublishAt != nil
}

// Validate validates UpdateContentRequest, ensuring at least one field is set.
func (r *UpdateContentRequest) Validate() error {
	if !r.HasUpdates() {
		return errors.New("at least one field must be updated")
	}
	if r.Title != nil {
		title := strings.TrimSpace(*r.Title)
		if title == "" {
			return errors.New("title cannot be empty")
		}
		if utf8.RuneCountInString(title) > maxContentTitleLen {
			return errors.New("title cannot exceed 255 characters")
		}
	}
	if r.Kind != nil && !r.Kind.Valid() {
		return errors.New("invalid kind")
	}
	return nil
}

// Validate validates ReviewContentRequest.
func (r *ReviewContentRequest) Validate() error {
	if !r.Status.Valid() {
		return errors.New("invalid status")
	}
	if strings.TrimSpace(r.ReviewerID) == "" {
		return errors.New("reviewer_id is required")
	}
	if r.Note != nil && utf8.RuneCountInString(*r.Note) > maxReviewNoteLen {
		return errors.New("note cannot exceed 2000 characters")
	}
	return nil
}
