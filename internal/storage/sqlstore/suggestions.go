package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"refkb/internal/platform/database"
	refmodels "refkb/internal/reference/models"
	"refkb/internal/suggestion/models"
	"refkb/pkg/platform/sentinel"
	txcontext "refkb/pkg/platform/tx"
)

// SuggestionStore persists suggestions in the suggestions table.
type SuggestionStore struct {
	db *database.DB
}

const suggestionColumns = `id, type, target_type, target_slug, current_data, suggested_data,
	ai_confidence, ai_reasoning, article_id, status, applied_by, applied_at, applied_as,
	created_at, updated_at`

func (s *SuggestionStore) execer(ctx context.Context) txcontext.Executor {
	return txcontext.ExecutorFor(ctx, s.db.DB)
}

func (s *SuggestionStore) q(query string) string {
	return s.db.Dialect.Rebind(query)
}

// Create inserts a new suggestion.
func (s *SuggestionStore) Create(ctx context.Context, sug *models.Suggestion) error {
	suggested := jsonArg(sug.SuggestedData)
	if suggested == nil {
		suggested = "{}"
	}
	var appliedAs any
	if sug.AppliedAs != "" {
		appliedAs = string(sug.AppliedAs)
	}
	var appliedBy any
	if sug.AppliedBy != "" {
		appliedBy = sug.AppliedBy
	}
	_, err := s.execer(ctx).ExecContext(ctx, s.q(`
		INSERT INTO suggestions (`+suggestionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`),
		sug.ID,
		string(sug.Type),
		string(sug.TargetType),
		sug.TargetSlug,
		jsonArg(sug.CurrentData),
		suggested,
		sug.AIConfidence,
		sug.AIReasoning,
		sug.ArticleID,
		string(sug.Status),
		appliedBy,
		sug.AppliedAt,
		appliedAs,
		sug.CreatedAt,
		sug.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert suggestion: %w", err)
	}
	return nil
}

func (s *SuggestionStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Suggestion, error) {
	row := s.execer(ctx).QueryRowContext(ctx, s.q(`
		SELECT `+suggestionColumns+`
		FROM suggestions
		WHERE id = $1
	`), id)
	sug, err := scanSuggestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find suggestion: %w", err)
	}
	return sug, nil
}

// MarkApplied is a compare-and-set on status = 'approved'. Under concurrent
// applies the second UPDATE waits for the first to commit, then matches no row.
func (s *SuggestionStore) MarkApplied(ctx context.Context, id uuid.UUID, app models.Application) error {
	res, err := s.execer(ctx).ExecContext(ctx, s.q(`
		UPDATE suggestions
		SET status = $1,
			applied_by = $2,
			applied_at = $3,
			applied_as = $4,
			current_data = COALESCE($5, current_data),
			updated_at = $3
		WHERE id = $6 AND status = $7
	`),
		string(models.StatusApplied),
		app.AppliedBy,
		app.AppliedAt,
		string(app.AppliedAs),
		jsonArg(app.CurrentData),
		id,
		string(models.StatusApproved),
	)
	if err != nil {
		return fmt.Errorf("mark suggestion applied: %w", err)
	}
	return s.checkTransition(ctx, res, id)
}

// MarkReverted is a compare-and-set on status = 'applied'.
func (s *SuggestionStore) MarkReverted(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := s.execer(ctx).ExecContext(ctx, s.q(`
		UPDATE suggestions
		SET status = $1,
			applied_by = NULL,
			applied_at = NULL,
			applied_as = NULL,
			updated_at = $4
		WHERE id = $2 AND status = $3
	`),
		string(models.StatusApproved),
		id,
		string(models.StatusApplied),
		at,
	)
	if err != nil {
		return fmt.Errorf("mark suggestion reverted: %w", err)
	}
	return s.checkTransition(ctx, res, id)
}

// ListByStatus returns suggestions in any of the given statuses, oldest first.
func (s *SuggestionStore) ListByStatus(ctx context.Context, statuses ...models.Status) ([]*models.Suggestion, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	values := make([]string, len(statuses))
	for i, st := range statuses {
		values[i] = string(st)
	}

	var (
		query string
		args  []any
	)
	if s.db.Dialect == database.Postgres {
		query = `SELECT ` + suggestionColumns + ` FROM suggestions
			WHERE status = ANY($1) ORDER BY created_at`
		args = []any{pq.Array(values)}
	} else {
		marks := make([]string, len(values))
		for i, v := range values {
			marks[i] = fmt.Sprintf("$%d", i+1)
			args = append(args, v)
		}
		query = `SELECT ` + suggestionColumns + ` FROM suggestions
			WHERE status IN (` + strings.Join(marks, ", ") + `) ORDER BY created_at`
	}

	rows, err := s.execer(ctx).QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query suggestions: %w", err)
	}
	defer rows.Close()

	var out []*models.Suggestion
	for rows.Next() {
		sug, err := scanSuggestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		out = append(out, sug)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate suggestions: %w", err)
	}
	return out, nil
}

// checkTransition turns a zero-row status update into NotFound or Conflict.
func (s *SuggestionStore) checkTransition(ctx context.Context, res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	var one int
	err = s.execer(ctx).QueryRowContext(ctx, s.q(`SELECT 1 FROM suggestions WHERE id = $1`), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check suggestion: %w", err)
	}
	return sentinel.ErrConflict
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSuggestion(row scanner) (*models.Suggestion, error) {
	var (
		sug        models.Suggestion
		typ        string
		targetType string
		status     string
		current    []byte
		suggested  []byte
		appliedBy  sql.NullString
		appliedAt  sql.NullTime
		appliedAs  sql.NullString
	)
	err := row.Scan(
		&sug.ID,
		&typ,
		&targetType,
		&sug.TargetSlug,
		&current,
		&suggested,
		&sug.AIConfidence,
		&sug.AIReasoning,
		&sug.ArticleID,
		&status,
		&appliedBy,
		&appliedAt,
		&appliedAs,
		&sug.CreatedAt,
		&sug.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sug.Type = models.Type(typ)
	sug.TargetType = refmodels.TargetType(targetType)
	sug.Status = models.Status(status)
	sug.CurrentData = current
	sug.SuggestedData = suggested
	sug.AppliedBy = appliedBy.String
	sug.AppliedAs = models.Type(appliedAs.String)
	if appliedAt.Valid {
		at := appliedAt.Time
		sug.AppliedAt = &at
	}
	return &sug, nil
}
