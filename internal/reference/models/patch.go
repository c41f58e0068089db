package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	dErrors "refkb/pkg/domain-errors"
)

// Field is a named biomarker attribute that a suggestion may touch.
type Field string

const (
	FieldSlug                 Field = "slug"
	FieldName                 Field = "name"
	FieldCategory             Field = "category"
	FieldUnit                 Field = "unit"
	FieldDescription          Field = "description"
	FieldClinicalSignificance Field = "clinicalSignificance"
	FieldOptimalMin           Field = "optimalMin"
	FieldOptimalMax           Field = "optimalMax"
	FieldLabMin               Field = "labMin"
	FieldLabMax               Field = "labMax"
	FieldCriticalLow          Field = "criticalLow"
	FieldCriticalHigh         Field = "criticalHigh"
)

type fieldKind int

const (
	kindString fieldKind = iota
	kindNullableNumber
)

var fieldKinds = map[Field]fieldKind{
	FieldSlug:                 kindString,
	FieldName:                 kindString,
	FieldCategory:             kindString,
	FieldUnit:                 kindString,
	FieldDescription:          kindString,
	FieldClinicalSignificance: kindString,
	FieldOptimalMin:           kindNullableNumber,
	FieldOptimalMax:           kindNullableNumber,
	FieldLabMin:               kindNullableNumber,
	FieldLabMax:               kindNullableNumber,
	FieldCriticalLow:          kindNullableNumber,
	FieldCriticalHigh:         kindNullableNumber,
}

// AllFields lists every known biomarker field in a stable order.
func AllFields() []Field {
	out := make([]Field, 0, len(fieldKinds))
	for f := range fieldKinds {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Patch is a partial set of biomarker field values. A key that is present
// with a nil value explicitly clears a nullable field; an absent key means
// "leave as is". Values are string, float64 or nil.
type Patch map[Field]any

// ParsePatch validates loosely-typed JSON against the biomarker field set.
// Unknown fields and wrongly-typed values are rejected before any store is
// touched.
func ParsePatch(raw []byte) (Patch, error) {
	return parsePatch(raw, true)
}

// ParseSnapshot is ParsePatch for record snapshots, which may carry keys
// outside the editable field set (ids, timestamps). Unknown keys are dropped;
// known keys are still type-checked.
func ParseSnapshot(raw []byte) (Patch, error) {
	return parsePatch(raw, false)
}

func parsePatch(raw []byte, strict bool) (Patch, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Patch{}, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "biomarker data must be a JSON object")
	}
	out := make(Patch, len(fields))
	for key, value := range fields {
		f := Field(key)
		kind, ok := fieldKinds[f]
		if !ok {
			if !strict {
				continue
			}
			return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown biomarker field %q", key))
		}
		switch kind {
		case kindString:
			var s *string
			if err := json.Unmarshal(value, &s); err != nil {
				return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("field %q must be a string", key))
			}
			if s == nil {
				return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("field %q must not be null", key))
			}
			out[f] = *s
		case kindNullableNumber:
			var n *float64
			if err := json.Unmarshal(value, &n); err != nil {
				return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("field %q must be a number or null", key))
			}
			if n == nil {
				out[f] = nil
			} else {
				out[f] = *n
			}
		}
	}
	return out, nil
}

// Fields returns the keys of p in a stable order.
func (p Patch) Fields() []Field {
	out := make([]Field, 0, len(p))
	for f := range p {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Has reports whether f is present in p.
func (p Patch) Has(f Field) bool {
	_, ok := p[f]
	return ok
}

// Without returns a copy of p minus the given fields.
func (p Patch) Without(fields ...Field) Patch {
	out := p.Clone()
	for _, f := range fields {
		delete(out, f)
	}
	return out
}

// With returns a copy of p with f set to v.
func (p Patch) With(f Field, v any) Patch {
	out := p.Clone()
	if out == nil {
		out = Patch{}
	}
	out[f] = v
	return out
}

// Clone copies p. Values are immutable scalars so a shallow copy suffices.
func (p Patch) Clone() Patch {
	if p == nil {
		return nil
	}
	out := make(Patch, len(p))
	for f, v := range p {
		out[f] = v
	}
	return out
}
