// Package ports defines the repository interfaces the suggestion engine
// consumes. Memory and SQL stores implement them; the service depends only on
// these.
package ports

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks SuggestionStore,ReferenceStore,StoreTx,Notifier

import (
	"context"
	"time"

	"github.com/google/uuid"

	"refkb/internal/audit"
	refmodels "refkb/internal/reference/models"
	"refkb/internal/suggestion/models"
)

// SuggestionStore reads suggestions and owns the applied/reverted status
// transitions.
type SuggestionStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Suggestion, error)

	// MarkApplied moves an approved suggestion to applied. It is a
	// compare-and-set: sentinel.ErrConflict when the row is not approved.
	MarkApplied(ctx context.Context, id uuid.UUID, app models.Application) error

	// MarkReverted moves an applied suggestion back to approved, clears the
	// application fields and stamps UpdatedAt with at. sentinel.ErrConflict
	// when the row is not applied.
	MarkReverted(ctx context.Context, id uuid.UUID, at time.Time) error

	// ListByStatus returns suggestions in any of the given statuses, oldest
	// first. No statuses means no rows.
	ListByStatus(ctx context.Context, statuses ...models.Status) ([]*models.Suggestion, error)
}

// ReferenceStore reads and writes individual reference records by slug.
type ReferenceStore interface {
	// FindBiomarker returns sentinel.ErrNotFound for unknown slugs.
	FindBiomarker(ctx context.Context, slug string) (*refmodels.Biomarker, error)
	// CreateBiomarker returns sentinel.ErrAlreadyUsed when the slug exists.
	CreateBiomarker(ctx context.Context, b *refmodels.Biomarker) error
	// UpdateBiomarker returns sentinel.ErrNotFound when the slug is gone.
	UpdateBiomarker(ctx context.Context, b *refmodels.Biomarker) error
	// DeleteBiomarker returns sentinel.ErrNotFound when the slug is gone.
	DeleteBiomarker(ctx context.Context, slug string) error
}

// AuditStore is the append-only audit log.
type AuditStore = audit.Store

// Stores is the set of repositories bound to one unit of work.
type Stores struct {
	Suggestions SuggestionStore
	References  ReferenceStore
	Audit       AuditStore
}

// StoreTx runs fn as a single unit of work. Every write made through the
// provided stores commits when fn returns nil and is discarded otherwise.
// Implementations pass fn a context that must be used for store calls.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error
}

// Notifier is told about committed changes. Failures never undo the commit.
type Notifier interface {
	// Name labels the notifier in logs and metrics.
	Name() string
	Notify(ctx context.Context, event models.ChangeEvent) error
}
