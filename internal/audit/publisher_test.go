package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	refmodels "refkb/internal/reference/models"
)

type sliceStore struct {
	entries []Entry
	err     error
}

func (s *sliceStore) Append(_ context.Context, entry Entry) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *sliceStore) ListBySuggestion(_ context.Context, id uuid.UUID) ([]Entry, error) {
	var out []Entry
	for _, e := range s.entries {
		if e.SuggestionID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestPublisherEmit(t *testing.T) {
	fixed := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	suggestionID := uuid.New()

	t.Run("stamps id and time", func(t *testing.T) {
		store := &sliceStore{}
		p := NewPublisher(store, func() time.Time { return fixed })

		entry, err := p.Emit(context.Background(), Entry{
			SuggestionID: suggestionID,
			Action:       ActionBiomarkerCreated,
			TargetType:   refmodels.TargetBiomarker,
			TargetSlug:   "homa-ir",
			Changes:      Changes{After: refmodels.Patch{refmodels.FieldSlug: "homa-ir"}},
		})
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, entry.ID)
		assert.Equal(t, fixed, entry.CreatedAt)
		assert.True(t, entry.IsCreation())
		assert.False(t, entry.IsDeletion())

		listed, err := p.List(context.Background(), suggestionID)
		require.NoError(t, err)
		assert.Equal(t, []Entry{entry}, listed)
	})

	t.Run("keeps caller supplied id and time", func(t *testing.T) {
		id := uuid.New()
		at := fixed.Add(-time.Hour)
		p := NewPublisher(&sliceStore{}, nil)

		entry, err := p.Emit(context.Background(), Entry{ID: id, CreatedAt: at})
		require.NoError(t, err)
		assert.Equal(t, id, entry.ID)
		assert.Equal(t, at, entry.CreatedAt)
	})

	t.Run("propagates store failure", func(t *testing.T) {
		boom := errors.New("disk full")
		p := NewPublisher(&sliceStore{err: boom}, nil)

		_, err := p.Emit(context.Background(), Entry{SuggestionID: suggestionID})
		assert.ErrorIs(t, err, boom)
	})
}
