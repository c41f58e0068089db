package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "refkb/pkg/domain-errors"
)

// TargetType names the kind of reference record a suggestion points at.
type TargetType string

const (
	TargetBiomarker TargetType = "biomarker"
	TargetProtocol  TargetType = "protocol"
)

// Biomarker is a reference record consulted by the analysis engine. Numeric
// ranges are nullable: a nil bound means "not defined", not zero.
type Biomarker struct {
	Slug                 string        `json:"slug"`
	Name                 string        `json:"name"`
	Category             string        `json:"category,omitempty"`
	Unit                 string        `json:"unit,omitempty"`
	Description          string        `json:"description,omitempty"`
	ClinicalSignificance string        `json:"clinicalSignificance,omitempty"`
	OptimalMin           *float64      `json:"optimalMin"`
	OptimalMax           *float64      `json:"optimalMax"`
	LabMin               *float64      `json:"labMin"`
	LabMax               *float64      `json:"labMax"`
	CriticalLow          *float64      `json:"criticalLow"`
	CriticalHigh         *float64      `json:"criticalHigh"`
	SyncMetadata         *SyncMetadata `json:"syncMetadata,omitempty"`
	CreatedAt            time.Time     `json:"createdAt"`
}

// SyncMetadata records which suggestion last wrote the record. Prior holds the
// metadata the record carried before that write so a revert can put it back.
type SyncMetadata struct {
	SuggestionID   uuid.UUID     `json:"suggestionId"`
	AppliedBy      string        `json:"appliedBy"`
	AppliedAt      time.Time     `json:"appliedAt"`
	Confidence     float64       `json:"confidence"`
	PreviousValues Patch         `json:"previousValues,omitempty"`
	Prior          *SyncMetadata `json:"prior,omitempty"`
}

// NewBiomarker builds a record from a create payload. slug and name are
// required; everything else is optional.
func NewBiomarker(p Patch, createdAt time.Time) (*Biomarker, error) {
	slug, _ := p[FieldSlug].(string)
	if strings.TrimSpace(slug) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "slug is required")
	}
	name, _ := p[FieldName].(string)
	if strings.TrimSpace(name) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "name is required")
	}
	b := &Biomarker{CreatedAt: createdAt}
	b.Apply(p)
	return b, nil
}

// Get returns the current value of f as it would appear in a Patch.
func (b *Biomarker) Get(f Field) any {
	switch f {
	case FieldSlug:
		return b.Slug
	case FieldName:
		return b.Name
	case FieldCategory:
		return b.Category
	case FieldUnit:
		return b.Unit
	case FieldDescription:
		return b.Description
	case FieldClinicalSignificance:
		return b.ClinicalSignificance
	case FieldOptimalMin:
		return deref(b.OptimalMin)
	case FieldOptimalMax:
		return deref(b.OptimalMax)
	case FieldLabMin:
		return deref(b.LabMin)
	case FieldLabMax:
		return deref(b.LabMax)
	case FieldCriticalLow:
		return deref(b.CriticalLow)
	case FieldCriticalHigh:
		return deref(b.CriticalHigh)
	}
	return nil
}

// Set assigns v to f. Values are expected to have passed ParsePatch, so a
// mismatched type is treated as the zero value.
func (b *Biomarker) Set(f Field, v any) {
	switch f {
	case FieldSlug:
		b.Slug, _ = v.(string)
	case FieldName:
		b.Name, _ = v.(string)
	case FieldCategory:
		b.Category, _ = v.(string)
	case FieldUnit:
		b.Unit, _ = v.(string)
	case FieldDescription:
		b.Description, _ = v.(string)
	case FieldClinicalSignificance:
		b.ClinicalSignificance, _ = v.(string)
	case FieldOptimalMin:
		b.OptimalMin = ref(v)
	case FieldOptimalMax:
		b.OptimalMax = ref(v)
	case FieldLabMin:
		b.LabMin = ref(v)
	case FieldLabMax:
		b.LabMax = ref(v)
	case FieldCriticalLow:
		b.CriticalLow = ref(v)
	case FieldCriticalHigh:
		b.CriticalHigh = ref(v)
	}
}

// Apply merges p into the record. Fields absent from p are left untouched.
func (b *Biomarker) Apply(p Patch) {
	for f, v := range p {
		b.Set(f, v)
	}
}

// Values snapshots the record's current values for the given fields.
func (b *Biomarker) Values(fields []Field) Patch {
	out := make(Patch, len(fields))
	for _, f := range fields {
		out[f] = b.Get(f)
	}
	return out
}

// Snapshot returns every domain field of the record.
func (b *Biomarker) Snapshot() Patch {
	return b.Values(AllFields())
}

// Clone returns a deep copy so stores never hand out shared pointers.
func (b *Biomarker) Clone() *Biomarker {
	if b == nil {
		return nil
	}
	c := *b
	c.OptimalMin = copyFloat(b.OptimalMin)
	c.OptimalMax = copyFloat(b.OptimalMax)
	c.LabMin = copyFloat(b.LabMin)
	c.LabMax = copyFloat(b.LabMax)
	c.CriticalLow = copyFloat(b.CriticalLow)
	c.CriticalHigh = copyFloat(b.CriticalHigh)
	c.SyncMetadata = b.SyncMetadata.Clone()
	return &c
}

// Clone deep-copies the metadata chain.
func (m *SyncMetadata) Clone() *SyncMetadata {
	if m == nil {
		return nil
	}
	c := *m
	c.PreviousValues = m.PreviousValues.Clone()
	c.Prior = m.Prior.Clone()
	return &c
}

func deref(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func ref(v any) *float64 {
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	return &f
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
