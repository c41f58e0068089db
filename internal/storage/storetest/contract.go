// Package storetest holds the behaviour every StoreTx backend must share.
// Backend packages run Suite from their own tests.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"refkb/internal/audit"
	refmodels "refkb/internal/reference/models"
	"refkb/internal/suggestion/models"
	"refkb/internal/suggestion/ports"
	"refkb/pkg/platform/sentinel"
)

// Backend is a StoreTx that can also be seeded.
type Backend interface {
	ports.StoreTx
	Stores() ports.Stores
	CreateSuggestion(ctx context.Context, sug *models.Suggestion) error
}

// Suite exercises a Backend. New is called before every test.
type Suite struct {
	suite.Suite
	New     func() Backend
	backend Backend
	now     time.Time
}

func (s *Suite) SetupTest() {
	s.backend = s.New()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *Suite) seedSuggestion(status models.Status) *models.Suggestion {
	sug := &models.Suggestion{
		ID:            uuid.New(),
		Type:          models.TypeBiomarkerUpdate,
		TargetType:    refmodels.TargetBiomarker,
		TargetSlug:    "ferritin",
		CurrentData:   json.RawMessage(`{"optimalMin":20,"optimalMax":120}`),
		SuggestedData: json.RawMessage(`{"optimalMin":30,"optimalMax":150}`),
		AIConfidence:  0.82,
		AIReasoning:   "newer cohort data",
		ArticleID:     "article-1",
		Status:        status,
		CreatedAt:     s.now,
		UpdatedAt:     s.now,
	}
	s.Require().NoError(s.backend.CreateSuggestion(context.Background(), sug))
	return sug
}

func ptr(v float64) *float64 { return &v }

func (s *Suite) TestSuggestionRoundTrip() {
	ctx := context.Background()
	sug := s.seedSuggestion(models.StatusApproved)

	got, err := s.backend.Stores().Suggestions.FindByID(ctx, sug.ID)
	s.Require().NoError(err)
	s.Equal(sug.ID, got.ID)
	s.Equal(sug.Type, got.Type)
	s.Equal(sug.TargetType, got.TargetType)
	s.Equal("ferritin", got.TargetSlug)
	s.JSONEq(string(sug.CurrentData), string(got.CurrentData))
	s.JSONEq(string(sug.SuggestedData), string(got.SuggestedData))
	s.InDelta(0.82, got.AIConfidence, 1e-9)
	s.Equal(models.StatusApproved, got.Status)
	s.Nil(got.AppliedAt)
	s.Empty(got.AppliedBy)
	s.True(sug.CreatedAt.Equal(got.CreatedAt))

	_, err = s.backend.Stores().Suggestions.FindByID(ctx, uuid.New())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *Suite) TestMarkApplied() {
	ctx := context.Background()

	s.Run("approved moves to applied", func() {
		sug := s.seedSuggestion(models.StatusApproved)
		err := s.backend.Stores().Suggestions.MarkApplied(ctx, sug.ID, models.Application{
			AppliedBy: "admin-1",
			AppliedAt: s.now,
			AppliedAs: models.TypeBiomarkerUpdate,
		})
		s.Require().NoError(err)

		got, err := s.backend.Stores().Suggestions.FindByID(ctx, sug.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusApplied, got.Status)
		s.Equal("admin-1", got.AppliedBy)
		s.Require().NotNil(got.AppliedAt)
		s.True(s.now.Equal(*got.AppliedAt))
		s.Equal(models.TypeBiomarkerUpdate, got.AppliedAs)
		s.JSONEq(string(sug.CurrentData), string(got.CurrentData))
	})

	s.Run("second apply loses the compare-and-set", func() {
		sug := s.seedSuggestion(models.StatusApproved)
		app := models.Application{AppliedBy: "a", AppliedAt: s.now, AppliedAs: models.TypeBiomarkerUpdate}
		s.Require().NoError(s.backend.Stores().Suggestions.MarkApplied(ctx, sug.ID, app))
		err := s.backend.Stores().Suggestions.MarkApplied(ctx, sug.ID, app)
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("pending cannot be applied", func() {
		sug := s.seedSuggestion(models.StatusPending)
		err := s.backend.Stores().Suggestions.MarkApplied(ctx, sug.ID, models.Application{AppliedAt: s.now})
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("unknown id", func() {
		err := s.backend.Stores().Suggestions.MarkApplied(ctx, uuid.New(), models.Application{AppliedAt: s.now})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("resolved baseline replaces current data", func() {
		sug := s.seedSuggestion(models.StatusApproved)
		err := s.backend.Stores().Suggestions.MarkApplied(ctx, sug.ID, models.Application{
			AppliedBy:   "a",
			AppliedAt:   s.now,
			AppliedAs:   models.TypeBiomarkerUpdate,
			CurrentData: json.RawMessage(`{"optimalMin":25}`),
		})
		s.Require().NoError(err)
		got, err := s.backend.Stores().Suggestions.FindByID(ctx, sug.ID)
		s.Require().NoError(err)
		s.JSONEq(`{"optimalMin":25}`, string(got.CurrentData))
	})
}

func (s *Suite) TestMarkReverted() {
	ctx := context.Background()
	sug := s.seedSuggestion(models.StatusApproved)

	revertedAt := s.now.Add(time.Hour)
	err := s.backend.Stores().Suggestions.MarkReverted(ctx, sug.ID, revertedAt)
	s.ErrorIs(err, sentinel.ErrConflict)

	s.Require().NoError(s.backend.Stores().Suggestions.MarkApplied(ctx, sug.ID, models.Application{
		AppliedBy: "a", AppliedAt: s.now, AppliedAs: models.TypeBiomarkerCreate,
	}))
	s.Require().NoError(s.backend.Stores().Suggestions.MarkReverted(ctx, sug.ID, revertedAt))

	got, err := s.backend.Stores().Suggestions.FindByID(ctx, sug.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, got.Status)
	s.Empty(got.AppliedBy)
	s.Nil(got.AppliedAt)
	s.Empty(got.AppliedAs)
	s.True(revertedAt.Equal(got.UpdatedAt), "updated_at %v", got.UpdatedAt)

	err = s.backend.Stores().Suggestions.MarkReverted(ctx, uuid.New(), revertedAt)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *Suite) TestListByStatus() {
	ctx := context.Background()
	pending := s.seedSuggestion(models.StatusPending)
	s.now = s.now.Add(time.Minute)
	approved := s.seedSuggestion(models.StatusApproved)
	s.now = s.now.Add(time.Minute)
	s.seedSuggestion(models.StatusRejected)

	var got []*models.Suggestion
	err := s.backend.RunInTx(ctx, func(ctx context.Context, stores ports.Stores) error {
		var err error
		got, err = stores.Suggestions.ListByStatus(ctx, models.StatusApproved, models.StatusPending)
		return err
	})
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(pending.ID, got[0].ID)
	s.Equal(approved.ID, got[1].ID)

	none, err := s.backend.Stores().Suggestions.ListByStatus(ctx)
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *Suite) TestBiomarkerLifecycle() {
	ctx := context.Background()
	refs := s.backend.Stores().References

	b := &refmodels.Biomarker{
		Slug:       "ferritin",
		Name:       "Ferritin",
		Unit:       "ng/mL",
		OptimalMin: ptr(20),
		OptimalMax: ptr(120),
		LabMin:     ptr(0),
		CreatedAt:  s.now,
	}
	s.Require().NoError(refs.CreateBiomarker(ctx, b))
	s.ErrorIs(refs.CreateBiomarker(ctx, b), sentinel.ErrAlreadyUsed)

	got, err := refs.FindBiomarker(ctx, "ferritin")
	s.Require().NoError(err)
	s.Equal("Ferritin", got.Name)
	s.Require().NotNil(got.LabMin)
	s.Equal(0.0, *got.LabMin)
	s.Nil(got.LabMax, "unset bounds stay null, not zero")
	s.Nil(got.SyncMetadata)

	suggestionID := uuid.New()
	got.OptimalMin = ptr(30)
	got.SyncMetadata = &refmodels.SyncMetadata{
		SuggestionID:   suggestionID,
		AppliedBy:      "admin-1",
		AppliedAt:      s.now,
		Confidence:     0.9,
		PreviousValues: refmodels.Patch{refmodels.FieldOptimalMin: 20.0},
		Prior:          &refmodels.SyncMetadata{SuggestionID: uuid.New(), AppliedBy: "seed"},
	}
	s.Require().NoError(refs.UpdateBiomarker(ctx, got))

	updated, err := refs.FindBiomarker(ctx, "ferritin")
	s.Require().NoError(err)
	s.Equal(30.0, *updated.OptimalMin)
	s.Require().NotNil(updated.SyncMetadata)
	s.Equal(suggestionID, updated.SyncMetadata.SuggestionID)
	s.Equal(refmodels.Patch{refmodels.FieldOptimalMin: 20.0}, updated.SyncMetadata.PreviousValues)
	s.Require().NotNil(updated.SyncMetadata.Prior)
	s.Equal("seed", updated.SyncMetadata.Prior.AppliedBy)

	s.Require().NoError(refs.DeleteBiomarker(ctx, "ferritin"))
	_, err = refs.FindBiomarker(ctx, "ferritin")
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(refs.DeleteBiomarker(ctx, "ferritin"), sentinel.ErrNotFound)
	s.ErrorIs(refs.UpdateBiomarker(ctx, got), sentinel.ErrNotFound)
}

func (s *Suite) TestAuditAppendOnlyOrder() {
	ctx := context.Background()
	log := s.backend.Stores().Audit
	suggestionID := uuid.New()

	created := audit.Entry{
		ID:           uuid.New(),
		SuggestionID: suggestionID,
		Action:       audit.ActionBiomarkerCreated,
		TargetType:   refmodels.TargetBiomarker,
		TargetSlug:   "homa-ir",
		Changes:      audit.Changes{After: refmodels.Patch{refmodels.FieldName: "HOMA-IR", refmodels.FieldOptimalMax: nil}},
		PerformedBy:  "admin-1",
		CreatedAt:    s.now,
	}
	deleted := audit.Entry{
		ID:           uuid.New(),
		SuggestionID: suggestionID,
		Action:       audit.ActionBiomarkerDeleted,
		TargetType:   refmodels.TargetBiomarker,
		TargetSlug:   "homa-ir",
		Changes:      audit.Changes{Before: refmodels.Patch{refmodels.FieldName: "HOMA-IR"}},
		PerformedBy:  "admin-1",
		CreatedAt:    s.now,
	}
	s.Require().NoError(log.Append(ctx, created))
	s.Require().NoError(log.Append(ctx, audit.Entry{ID: uuid.New(), SuggestionID: uuid.New(), Action: audit.ActionBiomarkerUpdated, TargetType: refmodels.TargetBiomarker, TargetSlug: "x", PerformedBy: "b", CreatedAt: s.now}))
	s.Require().NoError(log.Append(ctx, deleted))

	entries, err := log.ListBySuggestion(ctx, suggestionID)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal(created.ID, entries[0].ID)
	s.True(entries[0].IsCreation())
	s.Equal(refmodels.Patch{refmodels.FieldName: "HOMA-IR", refmodels.FieldOptimalMax: nil}, entries[0].Changes.After)
	s.Equal(deleted.ID, entries[1].ID)
	s.True(entries[1].IsDeletion())
}

func (s *Suite) TestRunInTxCommits() {
	ctx := context.Background()
	sug := s.seedSuggestion(models.StatusApproved)

	err := s.backend.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		if err := st.References.CreateBiomarker(ctx, &refmodels.Biomarker{Slug: "homa-ir", Name: "HOMA-IR", CreatedAt: s.now}); err != nil {
			return err
		}
		if err := st.Audit.Append(ctx, audit.Entry{ID: uuid.New(), SuggestionID: sug.ID, Action: audit.ActionBiomarkerCreated, TargetType: refmodels.TargetBiomarker, TargetSlug: "homa-ir", PerformedBy: "a", CreatedAt: s.now}); err != nil {
			return err
		}
		return st.Suggestions.MarkApplied(ctx, sug.ID, models.Application{AppliedBy: "a", AppliedAt: s.now, AppliedAs: models.TypeBiomarkerCreate})
	})
	s.Require().NoError(err)

	_, err = s.backend.Stores().References.FindBiomarker(ctx, "homa-ir")
	s.NoError(err)
	entries, err := s.backend.Stores().Audit.ListBySuggestion(ctx, sug.ID)
	s.NoError(err)
	s.Len(entries, 1)
}

func (s *Suite) TestRunInTxRollsBackEverything() {
	ctx := context.Background()
	sug := s.seedSuggestion(models.StatusApproved)
	boom := errors.New("boom")

	err := s.backend.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		s.Require().NoError(st.References.CreateBiomarker(ctx, &refmodels.Biomarker{Slug: "homa-ir", Name: "HOMA-IR", CreatedAt: s.now}))
		s.Require().NoError(st.Suggestions.MarkApplied(ctx, sug.ID, models.Application{AppliedBy: "a", AppliedAt: s.now, AppliedAs: models.TypeBiomarkerCreate}))
		s.Require().NoError(st.Audit.Append(ctx, audit.Entry{ID: uuid.New(), SuggestionID: sug.ID, Action: audit.ActionBiomarkerCreated, TargetType: refmodels.TargetBiomarker, TargetSlug: "homa-ir", PerformedBy: "a", CreatedAt: s.now}))

		// Writes are visible inside the unit of work.
		_, err := st.References.FindBiomarker(ctx, "homa-ir")
		s.Require().NoError(err)
		return boom
	})
	s.ErrorIs(err, boom)

	_, err = s.backend.Stores().References.FindBiomarker(ctx, "homa-ir")
	s.ErrorIs(err, sentinel.ErrNotFound)
	got, err := s.backend.Stores().Suggestions.FindByID(ctx, sug.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, got.Status)
	entries, err := s.backend.Stores().Audit.ListBySuggestion(ctx, sug.ID)
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *Suite) TestRunInTxRejectsCancelledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.backend.RunInTx(ctx, func(context.Context, ports.Stores) error {
		called = true
		return nil
	})
	s.Error(err)
	s.False(called)
}
