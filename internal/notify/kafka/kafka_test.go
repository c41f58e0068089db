package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"refkb/internal/platform/config"
	refmodels "refkb/internal/reference/models"
	"refkb/internal/suggestion/models"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	out := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		f.records = append(f.records, r)
		out = append(out, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return out
}

func sampleEvent() models.ChangeEvent {
	return models.ChangeEvent{
		SuggestionID: uuid.MustParse("7b0c1f7e-2f4f-4b39-9d39-1f2a3b4c5d6e"),
		Action:       "biomarker_created",
		Target:       refmodels.TargetBiomarker,
		Slug:         "homa-ir",
		PerformedBy:  "reviewer-1",
		OccurredAt:   time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC),
	}
}

func TestPublisherNotify(t *testing.T) {
	p := &fakeProducer{}
	pub := NewPublisher(p, "refkb.reference.changes")

	require.NoError(t, pub.Notify(context.Background(), sampleEvent()))
	require.Len(t, p.records, 1)

	rec := p.records[0]
	assert.Equal(t, "refkb.reference.changes", rec.Topic)
	assert.Equal(t, "biomarker:homa-ir", string(rec.Key))
	assert.Equal(t, sampleEvent().OccurredAt, rec.Timestamp)
	assert.Contains(t, rec.Headers, kgo.RecordHeader{Key: "action", Value: []byte("biomarker_created")})

	var decoded models.ChangeEvent
	require.NoError(t, json.Unmarshal(rec.Value, &decoded))
	assert.Equal(t, sampleEvent(), decoded)
}

func TestPublisherNotifyError(t *testing.T) {
	pub := NewPublisher(&fakeProducer{err: errors.New("NOT_LEADER_FOR_PARTITION")}, "t")
	err := pub.Notify(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "biomarker_created")
}

func TestDialRequiresBrokers(t *testing.T) {
	_, err := Dial(context.Background(), config.Kafka{Topic: "t"})
	require.Error(t, err)
}
