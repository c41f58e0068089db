package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"refkb/internal/audit"
	"refkb/internal/platform/database"
	refmodels "refkb/internal/reference/models"
	txcontext "refkb/pkg/platform/tx"
)

var _ audit.Store = (*AuditStore)(nil)

// AuditStore is the append-only audit_log table. It never updates or deletes.
type AuditStore struct {
	db *database.DB
}

func (s *AuditStore) execer(ctx context.Context) txcontext.Executor {
	return txcontext.ExecutorFor(ctx, s.db.DB)
}

func (s *AuditStore) Append(ctx context.Context, entry audit.Entry) error {
	changes, err := json.Marshal(entry.Changes)
	if err != nil {
		return fmt.Errorf("marshal audit changes: %w", err)
	}
	_, err = s.execer(ctx).ExecContext(ctx, s.db.Dialect.Rebind(`
		INSERT INTO audit_log (
			id, suggestion_id, action, target_type, target_slug,
			changes, performed_by, source_article_id, notes, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`),
		entry.ID,
		entry.SuggestionID,
		string(entry.Action),
		string(entry.TargetType),
		entry.TargetSlug,
		string(changes),
		entry.PerformedBy,
		entry.SourceArticleID,
		entry.Notes,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListBySuggestion returns entries in insertion order.
func (s *AuditStore) ListBySuggestion(ctx context.Context, suggestionID uuid.UUID) ([]audit.Entry, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, s.db.Dialect.Rebind(`
		SELECT id, suggestion_id, action, target_type, target_slug,
			changes, performed_by, source_article_id, notes, created_at
		FROM audit_log
		WHERE suggestion_id = $1
		ORDER BY seq
	`), suggestionID)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			e          audit.Entry
			action     string
			targetType string
			changes    []byte
		)
		if err := rows.Scan(
			&e.ID,
			&e.SuggestionID,
			&action,
			&targetType,
			&e.TargetSlug,
			&changes,
			&e.PerformedBy,
			&e.SourceArticleID,
			&e.Notes,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if err := json.Unmarshal(changes, &e.Changes); err != nil {
			return nil, fmt.Errorf("decode audit changes: %w", err)
		}
		e.Action = audit.Action(action)
		e.TargetType = refmodels.TargetType(targetType)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit log: %w", err)
	}
	return entries, nil
}
