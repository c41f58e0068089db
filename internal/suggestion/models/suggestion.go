package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	refmodels "refkb/internal/reference/models"
)

// Type is the literal operation a suggestion proposes.
type Type string

const (
	TypeBiomarkerUpdate Type = "biomarker_update"
	TypeBiomarkerCreate Type = "biomarker_create"
	TypeProtocolUpdate  Type = "protocol_update"
	TypeProtocolCreate  Type = "protocol_create"
)

// Status is the review lifecycle state of a suggestion.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusApplied  Status = "applied"
)

// ParseStatus validates a lifecycle state name.
func ParseStatus(raw string) (Status, bool) {
	switch st := Status(strings.ToLower(strings.TrimSpace(raw))); st {
	case StatusPending, StatusApproved, StatusRejected, StatusApplied:
		return st, true
	default:
		return "", false
	}
}

// Suggestion is a proposed change to the reference knowledge base.
//
// CurrentData and SuggestedData are kept as raw JSON exactly as the generator
// produced them; ParsePayload turns them into validated values.
type Suggestion struct {
	ID            uuid.UUID            `json:"id"`
	Type          Type                 `json:"type"`
	TargetType    refmodels.TargetType `json:"targetType"`
	TargetSlug    string               `json:"targetSlug,omitempty"`
	CurrentData   json.RawMessage      `json:"currentData,omitempty"`
	SuggestedData json.RawMessage      `json:"suggestedData"`
	AIConfidence  float64              `json:"aiConfidence"`
	AIReasoning   string               `json:"aiReasoning,omitempty"`
	ArticleID     string               `json:"articleId,omitempty"`
	Status        Status               `json:"status"`
	AppliedBy     string               `json:"appliedBy,omitempty"`
	AppliedAt     *time.Time           `json:"appliedAt,omitempty"`
	// AppliedAs is the operation actually performed after reconciliation.
	// Set only while Status is applied.
	AppliedAs Type      `json:"appliedAs,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsApplied reports whether the suggestion's effect is currently live.
func (s *Suggestion) IsApplied() bool { return s.Status == StatusApplied }

// Application is the state written onto a suggestion when it is applied.
type Application struct {
	AppliedBy string
	AppliedAt time.Time
	AppliedAs Type
	// CurrentData replaces the stored baseline when reconciliation resolved a
	// different one. Nil leaves the stored baseline untouched.
	CurrentData json.RawMessage
}

// Changes is what Apply reports back to the caller.
type Changes struct {
	Target refmodels.TargetType `json:"target"`
	Slug   string               `json:"slug"`
	Before refmodels.Patch      `json:"before"`
	After  refmodels.Patch      `json:"after"`
	// AppliedAs is the operation performed, which differs from the
	// suggestion's literal type when WasReconciled is true.
	AppliedAs     Type `json:"appliedAs"`
	WasReconciled bool `json:"wasReconciled"`
}

// ChangeEvent is published after a successful commit.
type ChangeEvent struct {
	SuggestionID uuid.UUID            `json:"suggestionId"`
	Action       string               `json:"action"`
	Target       refmodels.TargetType `json:"target"`
	Slug         string               `json:"slug"`
	PerformedBy  string               `json:"performedBy"`
	OccurredAt   time.Time            `json:"occurredAt"`
}
