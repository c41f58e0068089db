package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the append-only persistence behind the audit log.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListBySuggestion(ctx context.Context, suggestionID uuid.UUID) ([]Entry, error)
}

// Publisher stamps entries and appends them. Bind it to a transaction-scoped
// store so the entry commits together with the mutation it describes.
type Publisher struct {
	store Store
	now   func() time.Time
}

func NewPublisher(store Store, now func() time.Time) *Publisher {
	if now == nil {
		now = time.Now
	}
	return &Publisher{store: store, now: now}
}

// Emit fills ID and CreatedAt when unset and appends the entry.
func (p *Publisher) Emit(ctx context.Context, entry Entry) (Entry, error) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = p.now()
	}
	if err := p.store.Append(ctx, entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// List returns the entries recorded for a suggestion, oldest first.
func (p *Publisher) List(ctx context.Context, suggestionID uuid.UUID) ([]Entry, error) {
	return p.store.ListBySuggestion(ctx, suggestionID)
}
