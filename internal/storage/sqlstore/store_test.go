package sqlstore_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"refkb/internal/platform/config"
	"refkb/internal/platform/database"
	refmodels "refkb/internal/reference/models"
	"refkb/internal/storage/sqlstore"
	"refkb/internal/storage/storetest"
	"refkb/internal/suggestion/models"
)

func newSQLiteStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	db, err := database.Open(context.Background(), config.Database{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := sqlstore.New(db)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestSQLiteStoreContract(t *testing.T) {
	s := &storetest.Suite{}
	s.New = func() storetest.Backend { return newSQLiteStore(s.T()) }
	suite.Run(t, s)
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newSQLiteStore(t)
	require.NoError(t, store.Migrate(context.Background()))
}

func TestSQLiteListByStatus(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, status := range []models.Status{models.StatusRejected, models.StatusApproved, models.StatusPending, models.StatusApproved} {
		require.NoError(t, store.CreateSuggestion(ctx, &models.Suggestion{
			ID:            uuid.New(),
			Type:          models.TypeBiomarkerCreate,
			TargetType:    refmodels.TargetBiomarker,
			TargetSlug:    "homa-ir",
			SuggestedData: json.RawMessage(`{"name":"HOMA-IR"}`),
			Status:        status,
			CreatedAt:     base.Add(time.Duration(i) * time.Hour),
			UpdatedAt:     base,
		}))
	}

	got, err := store.Suggestions().ListByStatus(ctx, models.StatusApproved, models.StatusPending)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for _, sug := range got {
		assert.NotEqual(t, models.StatusRejected, sug.Status)
	}

	none, err := store.Suggestions().ListByStatus(ctx)
	require.NoError(t, err)
	assert.Empty(t, none)
}
