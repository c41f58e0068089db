// Package sqlstore implements the suggestion engine's repositories on
// database/sql for Postgres and SQLite. Repositories pick up the transaction
// that RunInTx places in the context, so the same instances serve both
// auto-commit calls and units of work.
package sqlstore

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"strings"
	"time"

	"refkb/internal/platform/database"
	"refkb/internal/suggestion/models"
	"refkb/internal/suggestion/ports"
	dErrors "refkb/pkg/domain-errors"
	txcontext "refkb/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

//go:embed schema/*.sql
var schemaFS embed.FS

var _ ports.StoreTx = (*Store)(nil)

// Store owns the SQL handle and hands out repositories bound to it.
type Store struct {
	db          *database.DB
	timeout     time.Duration
	suggestions *SuggestionStore
	references  *ReferenceStore
	audit       *AuditStore
}

// Option configures a Store.
type Option func(*Store)

// WithTimeout bounds a unit of work when the caller's context has no deadline.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func New(db *database.DB, opts ...Option) *Store {
	s := &Store{
		db:          db,
		timeout:     defaultTxTimeout,
		suggestions: &SuggestionStore{db: db},
		references:  &ReferenceStore{db: db},
		audit:       &AuditStore{db: db},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Suggestions() *SuggestionStore { return s.suggestions }
func (s *Store) References() *ReferenceStore   { return s.references }
func (s *Store) Audit() *AuditStore             { return s.audit }

// Stores returns the repositories as the engine's port set.
func (s *Store) Stores() ports.Stores {
	return ports.Stores{
		Suggestions: s.suggestions,
		References:  s.references,
		Audit:       s.audit,
	}
}

// RunInTx opens a transaction, runs fn with it carried in ctx and commits if
// fn returns nil. The deferred rollback is a no-op after commit.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, stores ports.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx), s.Stores()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Migrate applies the schema for the store's dialect. Statements are
// idempotent so it is safe to run on every start.
func (s *Store) Migrate(ctx context.Context) error {
	raw, err := schemaFS.ReadFile("schema/" + string(s.db.Dialect) + ".sql")
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	for _, stmt := range splitStatements(string(raw)) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

func splitStatements(ddl string) []string {
	var out []string
	for _, stmt := range strings.Split(ddl, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// jsonArg maps empty JSON to SQL NULL.
func jsonArg(raw []byte) any {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	return string(raw)
}

// CreateSuggestion seeds a suggestion through the suggestion repository.
func (s *Store) CreateSuggestion(ctx context.Context, sug *models.Suggestion) error {
	return s.suggestions.Create(ctx, sug)
}
