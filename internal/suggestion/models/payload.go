package models

import (
	"fmt"
	"strings"

	refmodels "refkb/internal/reference/models"
	dErrors "refkb/pkg/domain-errors"
)

// Payload is the validated form of a suggestion's data, one variant per
// suggestion type.
type Payload interface {
	Kind() Type
}

// BiomarkerUpdate proposes new values for fields of an existing biomarker.
type BiomarkerUpdate struct {
	Slug string
	// Suggested never contains the slug; slugs are immutable.
	Suggested refmodels.Patch
	// Baseline is the state the generator believed the record was in. It is
	// the revert target and may be empty.
	Baseline refmodels.Patch
}

func (BiomarkerUpdate) Kind() Type { return TypeBiomarkerUpdate }

// BiomarkerCreate proposes a new biomarker record.
type BiomarkerCreate struct {
	Slug string
	// Suggested always carries the resolved slug.
	Suggested refmodels.Patch
	Baseline  refmodels.Patch
}

func (BiomarkerCreate) Kind() Type { return TypeBiomarkerCreate }

// ProtocolChange is recognised but not applied by this engine.
type ProtocolChange struct {
	Type Type
	Slug string
}

func (p ProtocolChange) Kind() Type { return p.Type }

// ParsePayload validates a suggestion's loosely-typed data against its
// declared type. It never touches a store.
func ParsePayload(s *Suggestion) (Payload, error) {
	switch s.Type {
	case TypeProtocolUpdate, TypeProtocolCreate:
		if s.TargetType != refmodels.TargetProtocol {
			return nil, targetMismatch(s)
		}
		return ProtocolChange{Type: s.Type, Slug: s.TargetSlug}, nil
	case TypeBiomarkerUpdate, TypeBiomarkerCreate:
		if s.TargetType != refmodels.TargetBiomarker {
			return nil, targetMismatch(s)
		}
	default:
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown suggestion type %q", s.Type))
	}

	suggested, err := refmodels.ParsePatch(s.SuggestedData)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid suggested data")
	}
	baseline, err := refmodels.ParseSnapshot(s.CurrentData)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid current data")
	}
	targetSlug := strings.TrimSpace(s.TargetSlug)
	suggestedSlug, _ := suggested[refmodels.FieldSlug].(string)
	suggestedSlug = strings.TrimSpace(suggestedSlug)

	if s.Type == TypeBiomarkerUpdate {
		if targetSlug == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "target slug is required for an update")
		}
		if suggested.Has(refmodels.FieldSlug) && suggestedSlug != targetSlug {
			return nil, dErrors.New(dErrors.CodeValidation, "slug cannot be changed by an update")
		}
		fields := suggested.Without(refmodels.FieldSlug)
		if len(fields) == 0 {
			return nil, dErrors.New(dErrors.CodeValidation, "suggested data has no fields to apply")
		}
		return BiomarkerUpdate{Slug: targetSlug, Suggested: fields, Baseline: baseline.Without(refmodels.FieldSlug)}, nil
	}

	slug := suggestedSlug
	if slug == "" {
		slug = targetSlug
	}
	if slug == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "slug is required")
	}
	if targetSlug != "" && suggestedSlug != "" && suggestedSlug != targetSlug {
		return nil, dErrors.New(dErrors.CodeValidation, "suggested slug does not match target slug")
	}
	return BiomarkerCreate{
		Slug:      slug,
		Suggested: suggested.With(refmodels.FieldSlug, slug),
		Baseline:  baseline.Without(refmodels.FieldSlug),
	}, nil
}

func targetMismatch(s *Suggestion) error {
	return dErrors.New(dErrors.CodeValidation,
		fmt.Sprintf("suggestion type %q does not match target type %q", s.Type, s.TargetType))
}
