package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"refkb/internal/audit"
	refmodels "refkb/internal/reference/models"
	"refkb/internal/suggestion/models"
	"refkb/internal/suggestion/ports"
	dErrors "refkb/pkg/domain-errors"
	"refkb/pkg/platform/sentinel"
)

// applyPlan is everything Apply will write, computed from reads only so that
// validation failures leave the stores untouched.
type applyPlan struct {
	// op is the effective operation; it differs from the suggestion's literal
	// type when reconciled is true.
	op         models.Type
	slug       string
	record     *refmodels.Biomarker
	before     refmodels.Patch
	after      refmodels.Patch
	reconciled bool
	// baseline replaces the suggestion's stored current data when the
	// existing record turned out to be the real starting point.
	baseline json.RawMessage
}

func (p *applyPlan) action() audit.Action {
	if p.op == models.TypeBiomarkerCreate {
		return audit.ActionBiomarkerCreated
	}
	return audit.ActionBiomarkerUpdated
}

// planApply classifies the payload against the live record. A suggestion
// describes an intended end state: an update whose target is missing becomes
// a create, and a create whose slug is taken becomes an update.
func planApply(ctx context.Context, refs ports.ReferenceStore, sug *models.Suggestion, payload models.Payload, actor string, now time.Time) (*applyPlan, error) {
	switch p := payload.(type) {
	case models.ProtocolChange:
		return nil, protocolNotImplemented(p.Type)

	case models.BiomarkerUpdate:
		existing, err := findBiomarker(ctx, refs, p.Slug)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return planCreate(sug, p.Suggested.With(refmodels.FieldSlug, p.Slug), true, actor, now)
		}
		return planUpdate(sug, existing, p.Suggested, false, actor, now)

	case models.BiomarkerCreate:
		existing, err := findBiomarker(ctx, refs, p.Slug)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return planUpdate(sug, existing, p.Suggested.Without(refmodels.FieldSlug), true, actor, now)
		}
		return planCreate(sug, p.Suggested, false, actor, now)
	}
	return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unsupported suggestion type %q", payload.Kind()))
}

func planUpdate(sug *models.Suggestion, existing *refmodels.Biomarker, fields refmodels.Patch, reconciled bool, actor string, now time.Time) (*applyPlan, error) {
	if len(fields) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "suggested data has no fields to apply")
	}
	names := fields.Fields()
	before := existing.Values(names)

	record := existing.Clone()
	record.Apply(fields)
	record.SyncMetadata = &refmodels.SyncMetadata{
		SuggestionID:   sug.ID,
		AppliedBy:      actor,
		AppliedAt:      now,
		Confidence:     sug.AIConfidence,
		PreviousValues: before.Clone(),
		Prior:          existing.SyncMetadata.Clone(),
	}

	plan := &applyPlan{
		op:         models.TypeBiomarkerUpdate,
		slug:       existing.Slug,
		record:     record,
		before:     before,
		after:      record.Values(names),
		reconciled: reconciled,
	}
	if reconciled {
		raw, err := json.Marshal(before)
		if err != nil {
			return nil, fmt.Errorf("encode resolved baseline: %w", err)
		}
		plan.baseline = raw
	}
	return plan, nil
}

func planCreate(sug *models.Suggestion, fields refmodels.Patch, reconciled bool, actor string, now time.Time) (*applyPlan, error) {
	record, err := refmodels.NewBiomarker(fields, now)
	if err != nil {
		return nil, err
	}
	record.SyncMetadata = &refmodels.SyncMetadata{
		SuggestionID: sug.ID,
		AppliedBy:    actor,
		AppliedAt:    now,
		Confidence:   sug.AIConfidence,
	}
	return &applyPlan{
		op:         models.TypeBiomarkerCreate,
		slug:       record.Slug,
		record:     record,
		after:      record.Values(fields.Fields()),
		reconciled: reconciled,
	}, nil
}

// revertPlan undoes an applied suggestion. A nil record means delete.
type revertPlan struct {
	slug   string
	record *refmodels.Biomarker
	action audit.Action
	before refmodels.Patch
	after  refmodels.Patch
}

// planRevert dispatches on the operation Apply actually performed, falling
// back to the literal type for rows applied before AppliedAs was recorded.
func planRevert(ctx context.Context, refs ports.ReferenceStore, sug *models.Suggestion, payload models.Payload) (*revertPlan, error) {
	var (
		slug      string
		suggested refmodels.Patch
		baseline  refmodels.Patch
	)
	switch p := payload.(type) {
	case models.ProtocolChange:
		return nil, protocolNotImplemented(p.Type)
	case models.BiomarkerUpdate:
		slug, suggested, baseline = p.Slug, p.Suggested, p.Baseline
	case models.BiomarkerCreate:
		slug, suggested, baseline = p.Slug, p.Suggested.Without(refmodels.FieldSlug), p.Baseline
	default:
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unsupported suggestion type %q", payload.Kind()))
	}

	existing, err := findBiomarker(ctx, refs, slug)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, dErrors.New(dErrors.CodeConflict, fmt.Sprintf("biomarker %q no longer exists", slug))
	}

	op := sug.AppliedAs
	if op == "" {
		op = sug.Type
	}
	if op == models.TypeBiomarkerCreate {
		return &revertPlan{
			slug:   slug,
			action: audit.ActionBiomarkerDeleted,
			before: existing.Snapshot(),
		}, nil
	}

	restored, missing := restoreValues(sug.ID, suggested, baseline, existing.SyncMetadata)
	if len(missing) > 0 {
		return nil, dErrors.New(dErrors.CodeConflict, fmt.Sprintf(
			"no previous value recorded for %s; biomarker %q cannot be fully reverted", joinFields(missing), slug))
	}
	record := existing.Clone()
	record.Apply(restored)
	record.SyncMetadata = withoutSuggestion(existing.SyncMetadata, sug.ID)
	return &revertPlan{
		slug:   slug,
		record: record,
		action: audit.ActionBiomarkerReverted,
		before: suggested,
		after:  restored,
	}, nil
}

// restoreValues picks the value each suggested field goes back to. The
// suggestion's own baseline wins; fields it does not mention fall back to the
// previous values this suggestion recorded on the record, wherever it sits in
// the provenance chain. Fields with neither are returned as missing.
func restoreValues(suggestionID uuid.UUID, fields, baseline refmodels.Patch, meta *refmodels.SyncMetadata) (refmodels.Patch, []refmodels.Field) {
	owned := findOwned(meta, suggestionID)
	out := make(refmodels.Patch, len(fields))
	var missing []refmodels.Field
	for _, f := range fields.Fields() {
		if v, ok := baseline[f]; ok {
			out[f] = v
			continue
		}
		if owned != nil {
			if v, ok := owned.PreviousValues[f]; ok {
				out[f] = v
				continue
			}
		}
		missing = append(missing, f)
	}
	return out, missing
}

// findOwned returns the metadata entry written by suggestionID, or nil.
func findOwned(meta *refmodels.SyncMetadata, suggestionID uuid.UUID) *refmodels.SyncMetadata {
	for m := meta; m != nil; m = m.Prior {
		if m.SuggestionID == suggestionID {
			return m
		}
	}
	return nil
}

// withoutSuggestion copies the chain with suggestionID's entry spliced out.
// Later writers keep their place at the head.
func withoutSuggestion(meta *refmodels.SyncMetadata, suggestionID uuid.UUID) *refmodels.SyncMetadata {
	if meta == nil {
		return nil
	}
	if meta.SuggestionID == suggestionID {
		return meta.Prior.Clone()
	}
	c := *meta
	c.PreviousValues = meta.PreviousValues.Clone()
	c.Prior = withoutSuggestion(meta.Prior, suggestionID)
	return &c
}

func joinFields(fields []refmodels.Field) string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

// findBiomarker returns nil, nil for a missing slug.
func findBiomarker(ctx context.Context, refs ports.ReferenceStore, slug string) (*refmodels.Biomarker, error) {
	b, err := refs.FindBiomarker(ctx, slug)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load biomarker %s: %w", slug, err)
	}
	return b, nil
}

func protocolNotImplemented(t models.Type) error {
	return dErrors.New(dErrors.CodeNotImplemented, fmt.Sprintf("%s suggestions cannot be applied yet", t))
}
