package audit

import (
	"time"

	"github.com/google/uuid"

	refmodels "refkb/internal/reference/models"
)

// Action names what an audit entry records.
type Action string

const (
	ActionBiomarkerCreated  Action = "biomarker_created"
	ActionBiomarkerUpdated  Action = "biomarker_updated"
	ActionBiomarkerReverted Action = "biomarker_reverted"
	ActionBiomarkerDeleted  Action = "biomarker_deleted"
	ActionProtocolCreated   Action = "protocol_created"
	ActionProtocolUpdated   Action = "protocol_updated"
	ActionProtocolReverted  Action = "protocol_reverted"
	ActionProtocolDeleted   Action = "protocol_deleted"
)

// Changes holds the before/after snapshots. A nil Before marks a creation,
// a nil After marks a deletion.
type Changes struct {
	Before refmodels.Patch `json:"before"`
	After  refmodels.Patch `json:"after"`
}

// Entry is one append-only row of the audit log. Entries are never updated
// or deleted once written.
type Entry struct {
	ID              uuid.UUID            `json:"id"`
	SuggestionID    uuid.UUID            `json:"suggestionId"`
	Action          Action               `json:"action"`
	TargetType      refmodels.TargetType `json:"targetType"`
	TargetSlug      string               `json:"targetSlug"`
	Changes         Changes              `json:"changes"`
	PerformedBy     string               `json:"performedBy"`
	SourceArticleID string               `json:"sourceArticleId,omitempty"`
	Notes           string               `json:"notes,omitempty"`
	CreatedAt       time.Time            `json:"createdAt"`
}

// IsCreation reports whether the entry records a record coming into existence.
func (e Entry) IsCreation() bool { return e.Changes.Before == nil && e.Changes.After != nil }

// IsDeletion reports whether the entry records a record being removed.
func (e Entry) IsDeletion() bool { return e.Changes.After == nil && e.Changes.Before != nil }
