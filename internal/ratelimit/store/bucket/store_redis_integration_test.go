//go:build integration

package bucket_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"credreg/internal/ratelimit/models"
	"credreg/internal/ratelimit/store/bucket"
	"credreg/pkg/testutil/containers"
)

type RedisBucketStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *bucket.RedisBucketStore
}

func TestRedisBucketStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisBucketStoreSuite))
}

func (s *RedisBucketStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = bucket.NewRedisBucketStore(s.redis.Client)
}

func (s *RedisBucketStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisBucketStoreSuite) TestAllowUpToLimit() {
	ctx := context.Background()
	limit := models.Limit{Requests: 3, Window: time.Minute}

	for i := range 3 {
		result, err := s.store.Allow(ctx, "k", limit)
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Equal(2-i, result.Remaining)
	}
	result, err := s.store.Allow(ctx, "k", limit)
	s.Require().NoError(err)
	s.False(result.Allowed)
	s.True(result.ResetAt.After(time.Now()))

	s.Require().NoError(s.store.Reset(ctx, "k"))
	result, err = s.store.Allow(ctx, "k", limit)
	s.Require().NoError(err)
	s.True(result.Allowed)
}

func (s *RedisBucketStoreSuite) TestWindowExpires() {
	ctx := context.Background()
	limit := models.Limit{Requests: 1, Window: 200 * time.Millisecond}

	result, err := s.store.Allow(ctx, "short", limit)
	s.Require().NoError(err)
	s.True(result.Allowed)

	s.Eventually(func() bool {
		result, err := s.store.Allow(ctx, "short", limit)
		return err == nil && result.Allowed
	}, 2*time.Second, 50*time.Millisecond)
}

func (s *RedisBucketStoreSuite) TestConcurrentCallersShareOneBudget() {
	ctx := context.Background()
	limit := models.Limit{Requests: 10, Window: time.Minute}

	var (
		wg      sync.WaitGroup
		allowed atomic.Int32
	)
	for range 40 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if result, err := s.store.Allow(ctx, "shared", limit); err == nil && result.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(10), allowed.Load())
}
