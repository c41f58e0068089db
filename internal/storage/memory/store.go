// Package memory is an in-process implementation of the suggestion engine's
// repositories. A unit of work clones the state, runs against the clone and
// swaps it in on success, so a failed unit leaves nothing behind.
package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"refkb/internal/audit"
	refmodels "refkb/internal/reference/models"
	"refkb/internal/suggestion/models"
	"refkb/internal/suggestion/ports"
	dErrors "refkb/pkg/domain-errors"
	"refkb/pkg/platform/sentinel"
)

const defaultTxTimeout = 5 * time.Second

var _ ports.StoreTx = (*Store)(nil)

type state struct {
	biomarkers  map[string]*refmodels.Biomarker
	suggestions map[uuid.UUID]*models.Suggestion
	audit       []audit.Entry
}

func newState() *state {
	return &state{
		biomarkers:  map[string]*refmodels.Biomarker{},
		suggestions: map[uuid.UUID]*models.Suggestion{},
	}
}

func (st *state) clone() *state {
	c := &state{
		biomarkers:  make(map[string]*refmodels.Biomarker, len(st.biomarkers)),
		suggestions: make(map[uuid.UUID]*models.Suggestion, len(st.suggestions)),
		audit:       append([]audit.Entry(nil), st.audit...),
	}
	for slug, b := range st.biomarkers {
		c.biomarkers[slug] = b.Clone()
	}
	for id, s := range st.suggestions {
		c.suggestions[id] = cloneSuggestion(s)
	}
	return c
}

// Store holds committed state behind a single lock. Units of work are
// serialised, which makes the status compare-and-set trivially race free.
type Store struct {
	mu      sync.RWMutex
	state   *state
	timeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithTimeout bounds how long a unit of work may run when the caller's
// context has no deadline.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

func New(opts ...Option) *Store {
	s := &Store{state: newState(), timeout: defaultTxTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunInTx runs fn against a private copy of the state and commits it only if
// fn succeeds and the context is still live.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, stores ports.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	working := s.state.clone()
	if err := fn(ctx, storesFor(working)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted before commit")
	}
	s.state = working
	return nil
}

// Stores returns repositories that read and write committed state directly,
// one operation at a time. Use RunInTx for anything that must be atomic.
func (s *Store) Stores() ports.Stores {
	return ports.Stores{
		Suggestions: &lockedSuggestions{s: s},
		References:  &lockedReferences{s: s},
		Audit:       &lockedAudit{s: s},
	}
}

func storesFor(st *state) ports.Stores {
	return ports.Stores{
		Suggestions: &suggestionView{st: st},
		References:  &referenceView{st: st},
		Audit:       &auditView{st: st},
	}
}

// CreateSuggestion stores a new suggestion. It is the seeding path used by
// the generator side and by tests.
func (s *Store) CreateSuggestion(_ context.Context, sug *models.Suggestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.suggestions[sug.ID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	s.state.suggestions[sug.ID] = cloneSuggestion(sug)
	return nil
}

// PutBiomarker inserts or replaces a reference record outside any suggestion.
// Used to seed the store.
func (s *Store) PutBiomarker(_ context.Context, b *refmodels.Biomarker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.biomarkers[b.Slug] = b.Clone()
	return nil
}

// AuditLen reports the number of audit entries committed so far.
func (s *Store) AuditLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.audit)
}

// BiomarkerCount reports the number of committed reference records.
func (s *Store) BiomarkerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.biomarkers)
}

// -----------------------------------------------------------------------------
// Unit-of-work views. The enclosing RunInTx holds the lock.
// -----------------------------------------------------------------------------

type suggestionView struct{ st *state }

func (v *suggestionView) FindByID(_ context.Context, id uuid.UUID) (*models.Suggestion, error) {
	sug, ok := v.st.suggestions[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneSuggestion(sug), nil
}

func (v *suggestionView) MarkApplied(_ context.Context, id uuid.UUID, app models.Application) error {
	sug, ok := v.st.suggestions[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if sug.Status != models.StatusApproved {
		return sentinel.ErrConflict
	}
	at := app.AppliedAt
	sug.Status = models.StatusApplied
	sug.AppliedBy = app.AppliedBy
	sug.AppliedAt = &at
	sug.AppliedAs = app.AppliedAs
	if app.CurrentData != nil {
		sug.CurrentData = bytes.Clone(app.CurrentData)
	}
	sug.UpdatedAt = at
	return nil
}

func (v *suggestionView) MarkReverted(_ context.Context, id uuid.UUID, at time.Time) error {
	sug, ok := v.st.suggestions[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if sug.Status != models.StatusApplied {
		return sentinel.ErrConflict
	}
	sug.Status = models.StatusApproved
	sug.AppliedBy = ""
	sug.AppliedAt = nil
	sug.AppliedAs = ""
	sug.UpdatedAt = at
	return nil
}

func (v *suggestionView) ListByStatus(_ context.Context, statuses ...models.Status) ([]*models.Suggestion, error) {
	want := make(map[models.Status]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	var out []*models.Suggestion
	for _, sug := range v.st.suggestions {
		if want[sug.Status] {
			out = append(out, cloneSuggestion(sug))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type referenceView struct{ st *state }

func (v *referenceView) FindBiomarker(_ context.Context, slug string) (*refmodels.Biomarker, error) {
	b, ok := v.st.biomarkers[slug]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return b.Clone(), nil
}

func (v *referenceView) CreateBiomarker(_ context.Context, b *refmodels.Biomarker) error {
	if _, ok := v.st.biomarkers[b.Slug]; ok {
		return sentinel.ErrAlreadyUsed
	}
	v.st.biomarkers[b.Slug] = b.Clone()
	return nil
}

func (v *referenceView) UpdateBiomarker(_ context.Context, b *refmodels.Biomarker) error {
	if _, ok := v.st.biomarkers[b.Slug]; !ok {
		return sentinel.ErrNotFound
	}
	v.st.biomarkers[b.Slug] = b.Clone()
	return nil
}

func (v *referenceView) DeleteBiomarker(_ context.Context, slug string) error {
	if _, ok := v.st.biomarkers[slug]; !ok {
		return sentinel.ErrNotFound
	}
	delete(v.st.biomarkers, slug)
	return nil
}

type auditView struct{ st *state }

func (v *auditView) Append(_ context.Context, entry audit.Entry) error {
	v.st.audit = append(v.st.audit, entry)
	return nil
}

func (v *auditView) ListBySuggestion(_ context.Context, id uuid.UUID) ([]audit.Entry, error) {
	var out []audit.Entry
	for _, e := range v.st.audit {
		if e.SuggestionID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Auto-commit views over committed state.
// -----------------------------------------------------------------------------

type lockedSuggestions struct{ s *Store }

func (l *lockedSuggestions) FindByID(ctx context.Context, id uuid.UUID) (*models.Suggestion, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()
	return (&suggestionView{st: l.s.state}).FindByID(ctx, id)
}

func (l *lockedSuggestions) MarkApplied(ctx context.Context, id uuid.UUID, app models.Application) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (&suggestionView{st: l.s.state}).MarkApplied(ctx, id, app)
}

func (l *lockedSuggestions) MarkReverted(ctx context.Context, id uuid.UUID, at time.Time) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (&suggestionView{st: l.s.state}).MarkReverted(ctx, id, at)
}

func (l *lockedSuggestions) ListByStatus(ctx context.Context, statuses ...models.Status) ([]*models.Suggestion, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()
	return (&suggestionView{st: l.s.state}).ListByStatus(ctx, statuses...)
}

type lockedReferences struct{ s *Store }

func (l *lockedReferences) FindBiomarker(ctx context.Context, slug string) (*refmodels.Biomarker, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()
	return (&referenceView{st: l.s.state}).FindBiomarker(ctx, slug)
}

func (l *lockedReferences) CreateBiomarker(ctx context.Context, b *refmodels.Biomarker) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (&referenceView{st: l.s.state}).CreateBiomarker(ctx, b)
}

func (l *lockedReferences) UpdateBiomarker(ctx context.Context, b *refmodels.Biomarker) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (&referenceView{st: l.s.state}).UpdateBiomarker(ctx, b)
}

func (l *lockedReferences) DeleteBiomarker(ctx context.Context, slug string) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (&referenceView{st: l.s.state}).DeleteBiomarker(ctx, slug)
}

type lockedAudit struct{ s *Store }

func (l *lockedAudit) Append(ctx context.Context, entry audit.Entry) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return (&auditView{st: l.s.state}).Append(ctx, entry)
}

func (l *lockedAudit) ListBySuggestion(ctx context.Context, id uuid.UUID) ([]audit.Entry, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()
	return (&auditView{st: l.s.state}).ListBySuggestion(ctx, id)
}

func cloneSuggestion(s *models.Suggestion) *models.Suggestion {
	c := *s
	c.CurrentData = bytes.Clone(s.CurrentData)
	c.SuggestedData = bytes.Clone(s.SuggestedData)
	if s.AppliedAt != nil {
		at := *s.AppliedAt
		c.AppliedAt = &at
	}
	return &c
}
