//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"refkb/internal/notify/cache"
	"refkb/internal/platform/config"
	"refkb/internal/platform/redis"
	refmodels "refkb/internal/reference/models"
	"refkb/internal/suggestion/models"
	"refkb/pkg/testutil/containers"
)

type RedisInvalidatorSuite struct {
	suite.Suite
	redis       *containers.RedisContainer
	invalidator *cache.Invalidator
}

func TestRedisInvalidatorSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisInvalidatorSuite))
}

func (s *RedisInvalidatorSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	client, err := redis.New(context.Background(), config.RedisConfig{URL: s.redis.URL, PoolSize: 4})
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = client.Close() })
	s.invalidator = cache.New(client, "refkb")
}

func (s *RedisInvalidatorSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisInvalidatorSuite) TestNotifyDeletesOnlyTheChangedRecord() {
	ctx := context.Background()
	changed := s.invalidator.Key("biomarker", "ferritin")
	other := s.invalidator.Key("biomarker", "homa-ir")
	s.Require().NoError(s.redis.Client.Set(ctx, changed, `{"slug":"ferritin"}`, time.Hour).Err())
	s.Require().NoError(s.redis.Client.Set(ctx, other, `{"slug":"homa-ir"}`, time.Hour).Err())

	err := s.invalidator.Notify(ctx, models.ChangeEvent{
		SuggestionID: uuid.New(),
		Action:       "biomarker_updated",
		Target:       refmodels.TargetBiomarker,
		Slug:         "ferritin",
	})
	s.Require().NoError(err)

	keys, err := s.redis.Keys(ctx, "refkb:reference:*")
	s.Require().NoError(err)
	s.Equal([]string{other}, keys)
}

func (s *RedisInvalidatorSuite) TestNotifyMissingKeyIsNotAnError() {
	err := s.invalidator.Notify(context.Background(), models.ChangeEvent{Target: refmodels.TargetBiomarker, Slug: "never-cached"})
	s.NoError(err)
}
