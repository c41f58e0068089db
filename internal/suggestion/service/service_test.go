package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"refkb/internal/audit"
	refmodels "refkb/internal/reference/models"
	"refkb/internal/storage/memory"
	"refkb/internal/suggestion/metrics"
	"refkb/internal/suggestion/models"
	"refkb/internal/suggestion/ports"
	dErrors "refkb/pkg/domain-errors"
	"refkb/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	store   *memory.Store
	metrics *metrics.Metrics
	service *Service
	ctx     context.Context
	now     time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = memory.New()
	s.metrics = metrics.NewWithRegistry(prometheus.NewRegistry())
	s.service = s.newService()
	s.now = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *ServiceSuite) newService(opts ...Option) *Service {
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
	}
	return New(s.store, append(base, opts...)...)
}

func num(v float64) *float64 { return &v }

func (s *ServiceSuite) seedBiomarker(slug, name string, min, max float64) *refmodels.Biomarker {
	b := &refmodels.Biomarker{
		Slug:       slug,
		Name:       name,
		Unit:       "ng/mL",
		OptimalMin: num(min),
		OptimalMax: num(max),
		LabMin:     num(min - 5),
		CreatedAt:  s.now.Add(-24 * time.Hour),
	}
	s.Require().NoError(s.store.PutBiomarker(context.Background(), b))
	return b.Clone()
}

func (s *ServiceSuite) seedSuggestion(t models.Type, target refmodels.TargetType, slug, suggested, current string) *models.Suggestion {
	return s.seedSuggestionIn(models.StatusApproved, t, target, slug, suggested, current)
}

func (s *ServiceSuite) seedSuggestionIn(status models.Status, t models.Type, target refmodels.TargetType, slug, suggested, current string) *models.Suggestion {
	sug := &models.Suggestion{
		ID:            uuid.New(),
		Type:          t,
		TargetType:    target,
		TargetSlug:    slug,
		SuggestedData: json.RawMessage(suggested),
		AIConfidence:  0.87,
		AIReasoning:   "meta-analysis of recent cohorts",
		ArticleID:     "article-42",
		Status:        status,
		CreatedAt:     s.now.Add(-time.Hour),
		UpdatedAt:     s.now.Add(-time.Hour),
	}
	if current != "" {
		sug.CurrentData = json.RawMessage(current)
	}
	s.Require().NoError(s.store.CreateSuggestion(context.Background(), sug))
	return sug
}

func (s *ServiceSuite) biomarker(slug string) *refmodels.Biomarker {
	b, err := s.store.Stores().References.FindBiomarker(context.Background(), slug)
	s.Require().NoError(err)
	return b
}

func (s *ServiceSuite) suggestion(id uuid.UUID) *models.Suggestion {
	sug, err := s.store.Stores().Suggestions.FindByID(context.Background(), id)
	s.Require().NoError(err)
	return sug
}

func (s *ServiceSuite) history(id uuid.UUID) []audit.Entry {
	entries, err := s.store.Stores().Audit.ListBySuggestion(context.Background(), id)
	s.Require().NoError(err)
	return entries
}

func (s *ServiceSuite) TestUpdateRoundTrip() {
	original := s.seedBiomarker("ferritin", "Ferritin", 20, 120)
	sug := s.seedSuggestion(models.TypeBiomarkerUpdate, refmodels.TargetBiomarker, "ferritin",
		`{"optimalMin":30,"optimalMax":150}`, `{"optimalMin":20,"optimalMax":120}`)

	changes, err := s.service.Apply(s.ctx, sug.ID, "admin-1")
	s.Require().NoError(err)
	s.Equal(refmodels.TargetBiomarker, changes.Target)
	s.Equal("ferritin", changes.Slug)
	s.Equal(refmodels.Patch{refmodels.FieldOptimalMin: 20.0, refmodels.FieldOptimalMax: 120.0}, changes.Before)
	s.Equal(refmodels.Patch{refmodels.FieldOptimalMin: 30.0, refmodels.FieldOptimalMax: 150.0}, changes.After)
	s.Equal(models.TypeBiomarkerUpdate, changes.AppliedAs)
	s.False(changes.WasReconciled)

	s.Run("record carries new values and provenance", func() {
		b := s.biomarker("ferritin")
		s.Equal(30.0, *b.OptimalMin)
		s.Equal(150.0, *b.OptimalMax)
		s.Equal(15.0, *b.LabMin, "fields outside the suggestion are untouched")
		s.Require().NotNil(b.SyncMetadata)
		s.Equal(sug.ID, b.SyncMetadata.SuggestionID)
		s.Equal("admin-1", b.SyncMetadata.AppliedBy)
		s.True(s.now.Equal(b.SyncMetadata.AppliedAt))
		s.InDelta(0.87, b.SyncMetadata.Confidence, 1e-9)
		s.Equal(changes.Before, b.SyncMetadata.PreviousValues)
	})

	s.Run("suggestion is applied", func() {
		got := s.suggestion(sug.ID)
		s.Equal(models.StatusApplied, got.Status)
		s.Equal("admin-1", got.AppliedBy)
		s.Require().NotNil(got.AppliedAt)
		s.True(s.now.Equal(*got.AppliedAt))
	})

	s.Run("one update entry", func() {
		entries := s.history(sug.ID)
		s.Require().Len(entries, 1)
		s.Equal(audit.ActionBiomarkerUpdated, entries[0].Action)
		s.Equal(changes.Before, entries[0].Changes.Before)
		s.Equal(changes.After, entries[0].Changes.After)
		s.Equal("article-42", entries[0].SourceArticleID)
		s.Equal("admin-1", entries[0].PerformedBy)
	})

	s.Require().NoError(s.service.Revert(s.ctx, sug.ID, "admin-2"))

	s.Run("revert restores the record exactly", func() {
		s.Equal(original, s.biomarker("ferritin"))
	})

	s.Run("suggestion is approved again", func() {
		got := s.suggestion(sug.ID)
		s.Equal(models.StatusApproved, got.Status)
		s.Empty(got.AppliedBy)
		s.Nil(got.AppliedAt)
		s.Empty(got.AppliedAs)
	})

	s.Run("revert entry follows the update entry", func() {
		entries := s.history(sug.ID)
		s.Require().Len(entries, 2)
		s.Equal(audit.ActionBiomarkerUpdated, entries[0].Action)
		s.Equal(audit.ActionBiomarkerReverted, entries[1].Action)
		s.Equal(refmodels.Patch{refmodels.FieldOptimalMin: 30.0, refmodels.FieldOptimalMax: 150.0}, entries[1].Changes.Before)
		s.Equal(refmodels.Patch{refmodels.FieldOptimalMin: 20.0, refmodels.FieldOptimalMax: 120.0}, entries[1].Changes.After)
		s.Equal("admin-2", entries[1].PerformedBy)
	})
}

func (s *ServiceSuite) TestCreateRoundTrip() {
	sug := s.seedSuggestion(models.TypeBiomarkerCreate, refmodels.TargetBiomarker, "",
		`{"slug":"homa-ir","name":"HOMA-IR"}`, "")

	changes, err := s.service.Apply(s.ctx, sug.ID, "admin-1")
	s.Require().NoError(err)
	s.Nil(changes.Before)
	s.Equal(refmodels.Patch{refmodels.FieldSlug: "homa-ir", refmodels.FieldName: "HOMA-IR"}, changes.After)
	s.Equal("homa-ir", changes.Slug)

	created := s.biomarker("homa-ir")
	s.Equal("HOMA-IR", created.Name)
	s.Nil(created.OptimalMin)
	s.True(s.now.Equal(created.CreatedAt))
	s.Require().NotNil(created.SyncMetadata)
	s.Equal(sug.ID, created.SyncMetadata.SuggestionID)

	s.Require().NoError(s.service.Revert(s.ctx, sug.ID, "admin-1"))
	s.Equal(0, s.store.BiomarkerCount())

	entries := s.history(sug.ID)
	s.Require().Len(entries, 2)
	s.Equal(audit.ActionBiomarkerCreated, entries[0].Action)
	s.True(entries[0].IsCreation())
	s.Equal(audit.ActionBiomarkerDeleted, entries[1].Action)
	s.True(entries[1].IsDeletion())
	s.Equal("HOMA-IR", entries[1].Changes.Before[refmodels.FieldName])
}

func (s *ServiceSuite) TestApplyIsIdempotent() {
	s.seedBiomarker("ferritin", "Ferritin", 20, 120)
	sug := s.seedSuggestion(models.TypeBiomarkerUpdate, refmodels.TargetBiomarker, "ferritin",
		`{"optimalMin":30}`, `{"optimalMin":20}`)

	_, err := s.service.Apply(s.ctx, sug.ID, "admin-1")
	s.Require().NoError(err)
	applied := s.biomarker("ferritin")

	later := requestcontext.WithTime(context.Background(), s.now.Add(time.Hour))
	_, err = s.service.Apply(later, sug.ID, "admin-2")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Contains(err.Error(), "already applied")

	s.Equal(applied, s.biomarker("ferritin"))
	s.Len(s.history(sug.ID), 1)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Outcomes.WithLabelValues(opApply, string(dErrors.CodeConflict))))
}

func (s *ServiceSuite) TestUpdateOnMissingTargetMatchesCreate() {
	fields := `"name":"HOMA-IR","unit":"index","optimalMin":0.5,"optimalMax":2.5`
	update := s.seedSuggestion(models.TypeBiomarkerUpdate, refmodels.TargetBiomarker, "homa-ir", `{`+fields+`}`, "")

	changes, err := s.service.Apply(s.ctx, update.ID, "admin-1")
	s.Require().NoError(err)
	s.True(changes.WasReconciled)
	s.Equal(models.TypeBiomarkerCreate, changes.AppliedAs)
	s.Nil(changes.Before)
	viaUpdate := s.biomarker("homa-ir")

	other := memory.New()
	create := *update
	create.ID = uuid.New()
	create.Type = models.TypeBiomarkerCreate
	create.TargetSlug = ""
	create.SuggestedData = json.RawMessage(`{"slug":"homa-ir",` + fields + `}`)
	s.Require().NoError(other.CreateSuggestion(context.Background(), &create))
	_, err = New(other).Apply(s.ctx, create.ID, "admin-1")
	s.Require().NoError(err)
	viaCreate, err := other.Stores().References.FindBiomarker(context.Background(), "homa-ir")
	s.Require().NoError(err)

	s.Equal(viaCreate.Snapshot(), viaUpdate.Snapshot())
	s.True(viaCreate.CreatedAt.Equal(viaUpdate.CreatedAt))

	entries := s.history(update.ID)
	s.Require().Len(entries, 1)
	s.Equal(audit.ActionBiomarkerCreated, entries[0].Action)
	s.Contains(entries[0].Notes, "reconciled")
	s.Equal(models.TypeBiomarkerCreate, s.suggestion(update.ID).AppliedAs)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Reconciled.WithLabelValues(
		string(models.TypeBiomarkerUpdate), string(models.TypeBiomarkerCreate))))

	s.Run("revert removes the record it created", func() {
		s.Require().NoError(s.service.Revert(s.ctx, update.ID, "admin-1"))
		s.Equal(0, s.store.BiomarkerCount())
		entries := s.history(update.ID)
		s.Require().Len(entries, 2)
		s.Equal(audit.ActionBiomarkerDeleted, entries[1].Action)
	})
}

func (s *ServiceSuite) TestUpdateOnMissingTargetStillValidates() {
	sug := s.seedSuggestion(models.TypeBiomarkerUpdate, refmodels.TargetBiomarker, "homa-ir", `{"optimalMax":2.5}`, "")

	_, err := s.service.Apply(s.ctx, sug.ID, "admin-1")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Equal(0, s.store.BiomarkerCount())
	s.Equal(0, s.store.AuditLen())
	s.Equal(models.StatusApproved, s.suggestion(sug.ID).Status)
}

func (s *ServiceSuite) TestCreateOnExistingTargetMatchesUpdate() {
	original := s.seedBiomarker("ferritin", "Ferritin", 20, 120)
	sug := s.seedSuggestion(models.TypeBiomarkerCreate, refmodels.TargetBiomarker, "",
		`{"slug":"ferritin","name":"Ferritin (serum)","optimalMin":30}`, "")

	changes, err := s.service.Apply(s.ctx, sug.ID, "admin-1")
	s.Require().NoError(err)
	s.True(changes.WasReconciled)
	s.Equal(models.TypeBiomarkerUpdate, changes.AppliedAs)
	s.Equal(refmodels.Patch{refmodels.FieldName: "Ferritin", refmodels.FieldOptimalMin: 20.0}, changes.Before)
	s.Equal(refmodels.Patch{refmodels.FieldName: "Ferritin (serum)", refmodels.FieldOptimalMin: 30.0}, changes.After)

	s.Equal(1, s.store.BiomarkerCount(), "no second record for the same slug")
	updated := s.biomarker("ferritin")
	s.Equal("Ferritin (serum)", updated.Name)
	s.Equal(120.0, *updated.OptimalMax)

	entries := s.history(sug.ID)
	s.Require().Len(entries, 1)
	s.Equal(audit.ActionBiomarkerUpdated, entries[0].Action)
	s.False(entries[0].IsCreation())

	stored := s.suggestion(sug.ID)
	s.Equal(models.TypeBiomarkerUpdate, stored.AppliedAs)
	s.JSONEq(`{"name":"Ferritin","optimalMin":20}`, string(stored.CurrentData))

	s.Require().NoError(s.service.Revert(s.ctx, sug.ID, "admin-1"))
	s.Equal(original, s.biomarker("ferritin"))
}

func (s *ServiceSuite) TestValidationBeforeMutation() {
	sug := s.seedSuggestion(models.TypeBiomarkerCreate, refmodels.TargetBiomarker, "",
		`{"slug":"homa-ir","optimalMax":2.5}`, "")

	_, err := s.service.Apply(s.ctx, sug.ID, "admin-1")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Contains(err.Error(), "name")

	s.Equal(0, s.store.BiomarkerCount())
	s.Equal(0, s.store.AuditLen())
	s.Equal(models.StatusApproved, s.suggestion(sug.ID).Status)
}

func (s *ServiceSuite) TestMalformedSuggestedData() {
	s.seedBiomarker("ferritin", "Ferritin", 20, 120)
	sug := s.seedSuggestion(models.TypeBiomarkerUpdate, refmodels.TargetBiomarker, "ferritin",
		`{"optimalMin":"thirty"}`, "")

	_, err := s.service.Apply(s.ctx, sug.ID, "admin-1")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Equal(20.0, *s.biomarker("ferritin").OptimalMin)
	s.Equal(0, s.store.AuditLen())
}

func (s *ServiceSuite) TestApplyGuards() {
	s.seedBiomarker("ferritin", "Ferritin", 20, 120)

	s.Run("unknown suggestion", func() {
		_, err := s.service.Apply(s.ctx, uuid.New(), "admin-1")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	for _, status := range []models.Status{models.StatusPending, models.StatusRejected} {
		s.Run("status "+string(status), func() {
			sug := s.seedSuggestionIn(status, models.TypeBiomarkerUpdate, refmodels.TargetBiomarker, "ferritin", `{"optimalMin":30}`, "")

			_, err := s.service.Apply(s.ctx, sug.ID, "admin-1")
			s.True(dErrors.HasCode(err, dErrors.CodeConflict))
			s.Equal(20.0, *s.biomarker("ferritin").OptimalMin)
		})
	}

	s.Run("missing actor", func() {
		sug := s.seedSuggestion(models.TypeBiomarkerUpdate, refmodels.TargetBiomarker, "ferritin", `{"optimalMin":30}`, "")
		_, err := s.service.Apply(s.ctx, sug.ID, "  ")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal(models.StatusApproved, s.suggestion(sug.ID).Status)
	})

	s.Equal(0, s.store.AuditLen())
}

func (s *ServiceSuite) TestRevertGuard() {
	s.seedBiomarker("ferritin", "Ferritin", 20, 120)

	for _, status := range []models.Status{models.StatusPending, models.StatusApproved, models.StatusRejected} {
		s.Run("status "+string(status), func() {
			sug := s.seedSuggestionIn(status, models.TypeBiomarkerUpdate, refmodels.TargetBiomarker, "ferritin", `{"optimalMin":30}`, `{"optimalMin":20}`)

			err := s.service.Revert(s.ctx, sug.ID, "admin-1")
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeConflict))
			s.Contains(err.Error(), "not applied")
			s.Equal(status, s.suggestion(sug.ID).Status)
		})
	}

	s.Run("unknown suggestion", func() {
		err := s.service.Revert(s.ctx, uuid.New(), "admin-1")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Equal(0, s.store.AuditLen())
	s.Equal(20.0, *s.biomarker("ferritin").OptimalMin)
}

func (s *ServiceSuite) TestRevertTwiceConflicts() {
	s.seedBiomarker("ferritin", "Ferritin", 20, 120)
	sug := s.seedSuggestion(models.TypeBiomarkerUpdate, refmodels.TargetBiomarker, "ferritin", `{"optimalMin":30}`, `{"optimalMin":20}`)

	_, err := s.service.Apply(s.ctx, sug.ID, "admin-1")
	s.Require().NoError(err)
	s.Require().NoError(s.service.Revert(s.ctx, sug.ID, "admin-1"))

	err = s.service.Revert(s.ctx, sug.ID, "admin-1")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Len(s.history(sug.ID), 2)

	s.Run("a reverted suggestion can be applied again", func() {
		_, err := s.service.Apply(s.ctx, sug.ID, "admin-3")
		s.Require().NoError(err)
		s.Equal(30.0, *s.biomarker("ferritin").OptimalMin)
		s.Len(s.history(sug.ID), 3)
	})
}

func (s *ServiceSuite) TestProtocolSuggestionsAreNotImplemented() {
	for _, t := range []models.Type{models.TypeProtocolUpdate, models.TypeProtocolCreate} {
		s.Run(string(t), func() {
			sug := s.seedSuggestion(t, refmodels.TargetProtocol, "fasting-protocol", `{"steps":[]}`, "")

			_, err := s.service.Apply(s.ctx, sug.ID, "admin-1")
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeNotImplemented))
			s.Equal(models.StatusApproved, s.suggestion(sug.ID).Status)
		})
	}
	s.Equal(0, s.store.AuditLen())
	s.Equal(0, s.store.BiomarkerCount())
}

func (s *ServiceSuite) TestConcurrentApplySameSuggestion() {
	s.seedBiomarker("ferritin", "Ferritin", 20, 120)
	sug := s.seedSuggestion(models.TypeBiomarkerUpdate, refmodels.TargetBiomarker, "ferritin", `{"optimalMin":30}`, `{"optimalMin":20}`)

	const callers = 16
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.Apply(s.ctx, sug.ID, "admin-1")
			switch {
			case err == nil:
				successes.Add(1)
			case dErrors.HasCode(err, dErrors.CodeConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successes.Load())
	s.Equal(int32(callers-1), conflicts.Load())
	s.Len(s.history(sug.ID), 1)
}

func (s *ServiceSuite) TestAuditFailureRollsBackEverything() {
	original := s.seedBiomarker("ferritin", "Ferritin", 20, 120)
	sug := s.seedSuggestion(models.TypeBiomarkerUpdate, refmodels.TargetBiomarker, "ferritin", `{"optimalMin":30}`, `{"optimalMin":20}`)
	boom := errors.New("audit log unavailable")

	broken := New(failingAuditTx{inner: s.store, err: boom}, WithMetrics(s.metrics))
	_, err := broken.Apply(s.ctx, sug.ID, "admin-1")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.ErrorIs(err, boom)

	s.Equal(original, s.biomarker("ferritin"))
	s.Equal(models.StatusApproved, s.suggestion(sug.ID).Status)
	s.Equal(0, s.store.AuditLen())

	s.Run("retry after the failure succeeds", func() {
		_, err := s.service.Apply(s.ctx, sug.ID, "admin-1")
		s.Require().NoError(err)
		s.Equal(30.0, *s.biomarker("ferritin").OptimalMin)
	})
}

func (s *ServiceSuite) TestRevertRestoresEarlierProvenance() {
	original := s.seedBiomarker("ferritin", "Ferritin", 20, 120)
	first := s.seedSuggestion(models.TypeBiomarkerUpdate, refmodels.TargetBiomarker, "ferritin", `{"optimalMin":30}`, `{"optimalMin":20}`)
	second := s.seedSuggestion(models.TypeBiomarkerUpdate, refmodels.TargetBiomarker, "ferritin", `{"optimalMin":40}`, `{"optimalMin":30}`)

	_, err := s.service.Apply(s.ctx, first.ID, "admin-1")
	s.Require().NoError(err)
	afterFirst := s.biomarker("ferritin")
	_, err = s.service.Apply(s.ctx, second.ID, "admin-2")
	s.Require().NoError(err)

	s.Require().NoError(s.service.Revert(s.ctx, second.ID, "admin-2"))
	s.Equal(afterFirst, s.biomarker("ferritin"))

	s.Require().NoError(s.service.Revert(s.ctx, first.ID, "admin-1"))
	s.Equal(original, s.biomarker("ferritin"))
}

func (s *ServiceSuite) TestRevertFallsBackToRecordedPreviousValues() {
	original := s.seedBiomarker("ferritin", "Ferritin", 20, 120)
	sug := s.seedSuggestion(models.TypeBiomarkerUpdate, refmodels.TargetBiomarker, "ferritin",
		`{"optimalMin":30,"optimalMax":150}`, `{"optimalMin":20}`)

	_, err := s.service.Apply(s.ctx, sug.ID, "admin-1")
	s.Require().NoError(err)
	s.Require().NoError(s.service.Revert(s.ctx, sug.ID, "admin-1"))

	s.Equal(original, s.biomarker("ferritin"))
	entries := s.history(sug.ID)
	s.Require().Len(entries, 2)
	s.Equal(refmodels.Patch{refmodels.FieldOptimalMin: 20.0, refmodels.FieldOptimalMax: 120.0}, entries[1].Changes.After)
}

func (s *ServiceSuite) TestRevertFindsOwnValuesBehindLaterSuggestion() {
	s.seedBiomarker("ferritin", "Ferritin", 20, 120)
	first := s.seedSuggestion(models.TypeBiomarkerUpdate, refmodels.TargetBiomarker, "ferritin", `{"optimalMin":30}`, "")
	second := s.seedSuggestion(models.TypeBiomarkerUpdate, refmodels.TargetBiomarker, "ferritin", `{"unit":"ng"}`, `{"unit":"ng/mL"}`)

	_, err := s.service.Apply(s.ctx, first.ID, "admin-1")
	s.Require().NoError(err)
	_, err = s.service.Apply(s.ctx, second.ID, "admin-2")
	s.Require().NoError(err)

	s.Require().NoError(s.service.Revert(s.ctx, first.ID, "admin-1"))

	got := s.biomarker("ferritin")
	s.Require().NotNil(got.OptimalMin)
	s.Equal(20.0, *got.OptimalMin)
	s.Equal("ng", got.Unit, "later suggestion's change survives")
	s.Require().NotNil(got.SyncMetadata)
	s.Equal(second.ID, got.SyncMetadata.SuggestionID)
	s.Nil(got.SyncMetadata.Prior, "reverted suggestion is removed from the provenance chain")

	entries := s.history(first.ID)
	s.Require().Len(entries, 2)
	s.Equal(refmodels.Patch{refmodels.FieldOptimalMin: 20.0}, entries[1].Changes.After)

	// the later suggestion still reverts cleanly afterwards
	s.Require().NoError(s.service.Revert(s.ctx, second.ID, "admin-2"))
	s.Equal("ng/mL", s.biomarker("ferritin").Unit)
}

func (s *ServiceSuite) TestRevertWithoutRecordedValueConflicts() {
	s.seedBiomarker("ferritin", "Ferritin", 20, 120)
	sug := s.seedSuggestion(models.TypeBiomarkerUpdate, refmodels.TargetBiomarker, "ferritin", `{"optimalMin":30}`, "")
	_, err := s.service.Apply(s.ctx, sug.ID, "admin-1")
	s.Require().NoError(err)

	// provenance lost out of band
	edited := s.biomarker("ferritin")
	edited.SyncMetadata = nil
	s.Require().NoError(s.store.PutBiomarker(context.Background(), edited))

	err = s.service.Revert(s.ctx, sug.ID, "admin-1")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Contains(dErrors.Message(err), "optimalMin")

	s.Equal(edited, s.biomarker("ferritin"))
	s.Equal(models.StatusApplied, s.suggestion(sug.ID).Status)
	s.Len(s.history(sug.ID), 1)
}

func (s *ServiceSuite) TestRevertWhenCreatedRecordIsGone() {
	sug := s.seedSuggestion(models.TypeBiomarkerCreate, refmodels.TargetBiomarker, "",
		`{"slug":"homa-ir","name":"HOMA-IR"}`, "")
	_, err := s.service.Apply(s.ctx, sug.ID, "admin-1")
	s.Require().NoError(err)
	s.Require().NoError(s.store.Stores().References.DeleteBiomarker(context.Background(), "homa-ir"))

	err = s.service.Revert(s.ctx, sug.ID, "admin-1")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Equal(models.StatusApplied, s.suggestion(sug.ID).Status)
	s.Len(s.history(sug.ID), 1)
}

func (s *ServiceSuite) TestNotifiersRunAfterCommit() {
	s.seedBiomarker("ferritin", "Ferritin", 20, 120)
	sug := s.seedSuggestion(models.TypeBiomarkerUpdate, refmodels.TargetBiomarker, "ferritin", `{"optimalMin":30}`, `{"optimalMin":20}`)

	rec := &recordingNotifier{}
	svc := s.newService(WithNotifiers(rec, failingNotifier{}))

	_, err := svc.Apply(s.ctx, sug.ID, "admin-1")
	s.Require().NoError(err, "notifier failures never fail the operation")
	s.Require().NoError(svc.Revert(s.ctx, sug.ID, "admin-1"))

	events := rec.Events()
	s.Require().Len(events, 2)
	s.Equal(string(audit.ActionBiomarkerUpdated), events[0].Action)
	s.Equal("ferritin", events[0].Slug)
	s.Equal(sug.ID, events[0].SuggestionID)
	s.True(s.now.Equal(events[0].OccurredAt))
	s.Equal(string(audit.ActionBiomarkerReverted), events[1].Action)
	s.Equal(2.0, testutil.ToFloat64(s.metrics.NotifyFailures.WithLabelValues("failing")))
}

func (s *ServiceSuite) TestFailedApplyDoesNotNotify() {
	rec := &recordingNotifier{}
	svc := s.newService(WithNotifiers(rec))

	_, err := svc.Apply(s.ctx, uuid.New(), "admin-1")
	s.Require().Error(err)
	s.Empty(rec.Events())
}

func (s *ServiceSuite) TestHistory() {
	s.seedBiomarker("ferritin", "Ferritin", 20, 120)
	sug := s.seedSuggestion(models.TypeBiomarkerUpdate, refmodels.TargetBiomarker, "ferritin", `{"optimalMin":30}`, `{"optimalMin":20}`)

	entries, err := s.service.History(s.ctx, sug.ID)
	s.Require().NoError(err)
	s.Empty(entries)

	_, err = s.service.Apply(s.ctx, sug.ID, "admin-1")
	s.Require().NoError(err)
	s.Require().NoError(s.service.Revert(s.ctx, sug.ID, "admin-1"))

	entries, err = s.service.History(s.ctx, sug.ID)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal(audit.ActionBiomarkerUpdated, entries[0].Action)
	s.Equal(audit.ActionBiomarkerReverted, entries[1].Action)
	s.NotEqual(uuid.Nil, entries[0].ID)
	s.True(s.now.Equal(entries[0].CreatedAt))

	_, err = s.service.History(s.ctx, uuid.New())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestGet() {
	sug := s.seedSuggestion(models.TypeBiomarkerCreate, refmodels.TargetBiomarker, "", `{"slug":"homa-ir","name":"HOMA-IR"}`, "")

	got, err := s.service.Get(s.ctx, sug.ID)
	s.Require().NoError(err)
	s.Equal(sug.ID, got.ID)

	_, err = s.service.Get(s.ctx, uuid.New())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestList() {
	approved := s.seedSuggestion(models.TypeBiomarkerCreate, refmodels.TargetBiomarker, "", `{"slug":"homa-ir","name":"HOMA-IR"}`, "")
	pending := s.seedSuggestionIn(models.StatusPending, models.TypeBiomarkerCreate, refmodels.TargetBiomarker, "", `{"slug":"apob","name":"ApoB"}`, "")
	s.seedSuggestionIn(models.StatusRejected, models.TypeBiomarkerCreate, refmodels.TargetBiomarker, "", `{"slug":"lp-a","name":"Lp(a)"}`, "")

	got, err := s.service.List(s.ctx, models.StatusApproved)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(approved.ID, got[0].ID)

	got, err = s.service.List(s.ctx, models.StatusApproved, models.StatusPending)
	s.Require().NoError(err)
	ids := make([]uuid.UUID, 0, len(got))
	for _, sug := range got {
		ids = append(ids, sug.ID)
	}
	s.ElementsMatch([]uuid.UUID{approved.ID, pending.ID}, ids)

	_, err = s.service.Apply(s.ctx, approved.ID, "reviewer-1")
	s.Require().NoError(err)
	got, err = s.service.List(s.ctx, models.StatusApplied)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal("reviewer-1", got[0].AppliedBy)

	_, err = s.service.List(s.ctx)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

// failingAuditTx wraps a StoreTx and swaps in an audit store that always fails.
type failingAuditTx struct {
	inner ports.StoreTx
	err   error
}

func (f failingAuditTx) RunInTx(ctx context.Context, fn func(context.Context, ports.Stores) error) error {
	return f.inner.RunInTx(ctx, func(ctx context.Context, stores ports.Stores) error {
		stores.Audit = failingAudit{err: f.err}
		return fn(ctx, stores)
	})
}

type failingAudit struct{ err error }

func (f failingAudit) Append(context.Context, audit.Entry) error { return f.err }

func (f failingAudit) ListBySuggestion(context.Context, uuid.UUID) ([]audit.Entry, error) {
	return nil, f.err
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.ChangeEvent
}

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) Notify(_ context.Context, event models.ChangeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingNotifier) Events() []models.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.ChangeEvent(nil), r.events...)
}

type failingNotifier struct{}

func (failingNotifier) Name() string { return "failing" }

func (failingNotifier) Notify(context.Context, models.ChangeEvent) error {
	return errors.New("broker down")
}
