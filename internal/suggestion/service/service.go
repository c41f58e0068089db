package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"refkb/internal/audit"
	"refkb/internal/suggestion/metrics"
	"refkb/internal/suggestion/models"
	"refkb/internal/suggestion/ports"
	dErrors "refkb/pkg/domain-errors"
	"refkb/pkg/platform/sentinel"
	"refkb/pkg/requestcontext"
)

const (
	opApply  = "apply"
	opRevert = "revert"

	defaultNotifyTimeout = 2 * time.Second
)

// Service applies approved suggestions to the reference store and reverts
// them. Every call runs as one unit of work over the suggestion, the
// reference record and the audit log.
type Service struct {
	tx            ports.StoreTx
	logger        *slog.Logger
	metrics       *metrics.Metrics
	tracer        trace.Tracer
	notifiers     []ports.Notifier
	notifyTimeout time.Duration
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithNotifiers registers receivers for post-commit change events.
func WithNotifiers(notifiers ...ports.Notifier) Option {
	return func(s *Service) {
		s.notifiers = append(s.notifiers, notifiers...)
	}
}

func WithNotifyTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.notifyTimeout = d
		}
	}
}

// New constructs a Service.
func New(tx ports.StoreTx, opts ...Option) *Service {
	s := &Service{
		tx:            tx,
		tracer:        otel.Tracer("refkb/internal/suggestion/service"),
		notifyTimeout: defaultNotifyTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Apply writes an approved suggestion's values to its target record, appends
// the matching audit entry and marks the suggestion applied, all or nothing.
func (s *Service) Apply(ctx context.Context, suggestionID uuid.UUID, actorID string) (changes *models.Changes, err error) {
	ctx, finish := s.begin(ctx, opApply, suggestionID)
	defer func() { finish(err) }()

	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "actor is required")
	}

	var (
		sug  *models.Suggestion
		plan *applyPlan
	)
	err = s.tx.RunInTx(ctx, func(ctx context.Context, stores ports.Stores) error {
		var err error
		sug, err = loadSuggestion(ctx, stores.Suggestions, suggestionID)
		if err != nil {
			return err
		}
		switch sug.Status {
		case models.StatusApproved:
		case models.StatusApplied:
			return errAlreadyApplied
		default:
			return dErrors.New(dErrors.CodeConflict, fmt.Sprintf("suggestion is %s, not approved", sug.Status))
		}

		payload, err := models.ParsePayload(sug)
		if err != nil {
			return err
		}
		now := requestcontext.Now(ctx)
		plan, err = planApply(ctx, stores.References, sug, payload, actorID, now)
		if err != nil {
			return err
		}

		// Status first: a concurrent apply of the same suggestion stops here
		// before touching the record.
		err = stores.Suggestions.MarkApplied(ctx, sug.ID, models.Application{
			AppliedBy:   actorID,
			AppliedAt:   now,
			AppliedAs:   plan.op,
			CurrentData: plan.baseline,
		})
		if errors.Is(err, sentinel.ErrConflict) {
			return errAlreadyApplied
		}
		if err != nil {
			return fmt.Errorf("mark suggestion applied: %w", err)
		}

		if err := writeApplied(ctx, stores.References, plan); err != nil {
			return err
		}

		entry := audit.Entry{
			SuggestionID:    sug.ID,
			Action:          plan.action(),
			TargetType:      sug.TargetType,
			TargetSlug:      plan.slug,
			Changes:         audit.Changes{Before: plan.before, After: plan.after},
			PerformedBy:     actorID,
			SourceArticleID: sug.ArticleID,
		}
		if plan.reconciled {
			entry.Notes = fmt.Sprintf("reconciled: %s applied as %s", sug.Type, plan.op)
		}
		if _, err := audit.NewPublisher(stores.Audit, func() time.Time { return now }).Emit(ctx, entry); err != nil {
			return fmt.Errorf("append audit entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, s.translate(err, "failed to apply suggestion")
	}

	changes = &models.Changes{
		Target:        sug.TargetType,
		Slug:          plan.slug,
		Before:        plan.before,
		After:         plan.after,
		AppliedAs:     plan.op,
		WasReconciled: plan.reconciled,
	}

	if plan.reconciled {
		s.metrics.IncrementReconciled(string(sug.Type), string(plan.op))
		if s.logger != nil {
			s.logger.WarnContext(ctx, "suggestion reconciled against drifted reference store",
				"suggestion_id", sug.ID,
				"suggestion_type", sug.Type,
				"applied_as", plan.op,
				"slug", plan.slug,
			)
		}
	}
	s.logAudit(ctx, "suggestion_applied",
		"suggestion_id", sug.ID,
		"actor_id", actorID,
		"action", plan.action(),
		"slug", plan.slug,
		"was_reconciled", plan.reconciled,
	)
	s.notify(ctx, models.ChangeEvent{
		SuggestionID: sug.ID,
		Action:       string(plan.action()),
		Target:       sug.TargetType,
		Slug:         plan.slug,
		PerformedBy:  actorID,
		OccurredAt:   requestcontext.Now(ctx),
	})
	return changes, nil
}

// Revert undoes an applied suggestion using the snapshots stored at apply
// time and returns the suggestion to approved.
func (s *Service) Revert(ctx context.Context, suggestionID uuid.UUID, actorID string) (err error) {
	ctx, finish := s.begin(ctx, opRevert, suggestionID)
	defer func() { finish(err) }()

	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return dErrors.New(dErrors.CodeValidation, "actor is required")
	}

	var (
		sug  *models.Suggestion
		plan *revertPlan
	)
	err = s.tx.RunInTx(ctx, func(ctx context.Context, stores ports.Stores) error {
		var err error
		sug, err = loadSuggestion(ctx, stores.Suggestions, suggestionID)
		if err != nil {
			return err
		}
		if !sug.IsApplied() {
			return errNotApplied
		}

		payload, err := models.ParsePayload(sug)
		if err != nil {
			return err
		}
		plan, err = planRevert(ctx, stores.References, sug, payload)
		if err != nil {
			return err
		}

		now := requestcontext.Now(ctx)
		err = stores.Suggestions.MarkReverted(ctx, sug.ID, now)
		if errors.Is(err, sentinel.ErrConflict) {
			return errNotApplied
		}
		if err != nil {
			return fmt.Errorf("mark suggestion reverted: %w", err)
		}

		if err := writeReverted(ctx, stores.References, plan); err != nil {
			return err
		}

		entry := audit.Entry{
			SuggestionID:    sug.ID,
			Action:          plan.action,
			TargetType:      sug.TargetType,
			TargetSlug:      plan.slug,
			Changes:         audit.Changes{Before: plan.before, After: plan.after},
			PerformedBy:     actorID,
			SourceArticleID: sug.ArticleID,
		}
		if _, err := audit.NewPublisher(stores.Audit, func() time.Time { return now }).Emit(ctx, entry); err != nil {
			return fmt.Errorf("append audit entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return s.translate(err, "failed to revert suggestion")
	}

	s.logAudit(ctx, "suggestion_reverted",
		"suggestion_id", sug.ID,
		"actor_id", actorID,
		"action", plan.action,
		"slug", plan.slug,
	)
	s.notify(ctx, models.ChangeEvent{
		SuggestionID: sug.ID,
		Action:       string(plan.action),
		Target:       sug.TargetType,
		Slug:         plan.slug,
		PerformedBy:  actorID,
		OccurredAt:   requestcontext.Now(ctx),
	})
	return nil
}

// Get returns a suggestion by id.
func (s *Service) Get(ctx context.Context, suggestionID uuid.UUID) (*models.Suggestion, error) {
	var sug *models.Suggestion
	err := s.tx.RunInTx(ctx, func(ctx context.Context, stores ports.Stores) error {
		var err error
		sug, err = loadSuggestion(ctx, stores.Suggestions, suggestionID)
		return err
	})
	if err != nil {
		return nil, s.translate(err, "failed to load suggestion")
	}
	return sug, nil
}

// List returns the suggestions in any of the given states, oldest first.
func (s *Service) List(ctx context.Context, statuses ...models.Status) ([]*models.Suggestion, error) {
	if len(statuses) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one status is required")
	}
	var out []*models.Suggestion
	err := s.tx.RunInTx(ctx, func(ctx context.Context, stores ports.Stores) error {
		var err error
		out, err = stores.Suggestions.ListByStatus(ctx, statuses...)
		return err
	})
	if err != nil {
		return nil, s.translate(err, "failed to list suggestions")
	}
	return out, nil
}

// History returns the audit entries recorded for a suggestion, oldest first.
func (s *Service) History(ctx context.Context, suggestionID uuid.UUID) ([]audit.Entry, error) {
	var entries []audit.Entry
	err := s.tx.RunInTx(ctx, func(ctx context.Context, stores ports.Stores) error {
		if _, err := loadSuggestion(ctx, stores.Suggestions, suggestionID); err != nil {
			return err
		}
		var err error
		entries, err = audit.NewPublisher(stores.Audit, nil).List(ctx, suggestionID)
		return err
	})
	if err != nil {
		return nil, s.translate(err, "failed to load audit history")
	}
	return entries, nil
}

var (
	errAlreadyApplied = dErrors.New(dErrors.CodeConflict, "suggestion already applied")
	errNotApplied     = dErrors.New(dErrors.CodeConflict, "suggestion is not applied")
)

func loadSuggestion(ctx context.Context, store ports.SuggestionStore, id uuid.UUID) (*models.Suggestion, error) {
	sug, err := store.FindByID(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "suggestion not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load suggestion: %w", err)
	}
	return sug, nil
}

func writeApplied(ctx context.Context, refs ports.ReferenceStore, plan *applyPlan) error {
	if plan.op == models.TypeBiomarkerCreate {
		err := refs.CreateBiomarker(ctx, plan.record)
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return dErrors.New(dErrors.CodeConflict, fmt.Sprintf("biomarker %q was created concurrently", plan.slug))
		}
		if err != nil {
			return fmt.Errorf("create biomarker: %w", err)
		}
		return nil
	}
	err := refs.UpdateBiomarker(ctx, plan.record)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeConflict, fmt.Sprintf("biomarker %q was deleted concurrently", plan.slug))
	}
	if err != nil {
		return fmt.Errorf("update biomarker: %w", err)
	}
	return nil
}

func writeReverted(ctx context.Context, refs ports.ReferenceStore, plan *revertPlan) error {
	var err error
	if plan.record == nil {
		err = refs.DeleteBiomarker(ctx, plan.slug)
	} else {
		err = refs.UpdateBiomarker(ctx, plan.record)
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeConflict, fmt.Sprintf("biomarker %q no longer exists", plan.slug))
	}
	if err != nil {
		return fmt.Errorf("restore biomarker: %w", err)
	}
	return nil
}

// translate keeps domain errors as they are and turns anything else into an
// internal error. The unit of work has rolled back by the time this runs.
func (s *Service) translate(err error, msg string) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

// begin opens a span and returns a finisher that records the outcome.
func (s *Service) begin(ctx context.Context, op string, suggestionID uuid.UUID) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "suggestion."+op, trace.WithAttributes(
		attribute.String("suggestion.id", suggestionID.String()),
	))
	return ctx, func(err error) {
		outcome := "success"
		if err != nil {
			outcome = string(dErrors.CodeOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, dErrors.Message(err))
			if dErrors.HasCode(err, dErrors.CodeInternal) && s.logger != nil {
				s.logger.ErrorContext(ctx, "suggestion "+op+" failed",
					"suggestion_id", suggestionID,
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
			}
		}
		span.SetAttributes(attribute.String("suggestion.outcome", outcome))
		span.End()
		s.metrics.IncrementOutcome(op, outcome)
		s.metrics.ObserveDuration(op, time.Since(start))
	}
}

// notify fans the event out to every notifier. The change is committed, so
// failures are logged and counted but never returned.
func (s *Service) notify(ctx context.Context, event models.ChangeEvent) {
	if len(s.notifiers) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()

	var g errgroup.Group
	for _, n := range s.notifiers {
		g.Go(func() error {
			if err := n.Notify(ctx, event); err != nil {
				s.metrics.IncrementNotifyFailure(n.Name())
				if s.logger != nil {
					s.logger.WarnContext(ctx, "change notification failed",
						"notifier", n.Name(),
						"suggestion_id", event.SuggestionID,
						"error", err,
					)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	if s.logger != nil {
		s.logger.InfoContext(ctx, event, args...)
	}
}
