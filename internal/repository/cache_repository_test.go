package repository

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/fasch-registrar-api/internal/models"
	appErrors "github.com/noah-isme/fasch-registrar-api/pkg/errors"
)

func newCacheRepo(t *testing.T) (*CacheRepository, *miniredis.Miniredis) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCacheRepository(client, zap.NewNop()), server
}

func TestCacheRepositoryRoundTrip(t *testing.T) {
	repo, server := newCacheRepo(t)
	ctx := context.Background()
	avg := 78.5
	stats := models.CourseStatistics{SectionID: "s-1", Count: 2, Average: &avg, Distribution: map[string]int{"A": 1, "C": 1}}

	require.NoError(t, repo.Set(ctx, "registrar:stats:section:s-1", stats, time.Minute))
	assert.True(t, server.Exists("registrar:stats:section:s-1"))

	var got models.CourseStatistics
	require.NoError(t, repo.Get(ctx, "registrar:stats:section:s-1", &got))
	assert.Equal(t, stats, got)

	server.FastForward(2 * time.Minute)
	err := repo.Get(ctx, "registrar:stats:section:s-1", &got)
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)
}

func TestCacheRepositoryDeleteByPattern(t *testing.T) {
	repo, server := newCacheRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "registrar:transcript:st-1:FALL:2024", 1, time.Minute))
	require.NoError(t, repo.Set(ctx, "registrar:transcript:st-1:SPRING:2025", 2, time.Minute))
	require.NoError(t, repo.Set(ctx, "registrar:stats:section:s-1", 3, time.Minute))

	require.NoError(t, repo.DeleteByPattern(ctx, "registrar:transcript:st-1:*"))
	assert.False(t, server.Exists("registrar:transcript:st-1:FALL:2024"))
	assert.False(t, server.Exists("registrar:transcript:st-1:SPRING:2025"))
	assert.True(t, server.Exists("registrar:stats:section:s-1"))
}

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, zap.NewNop())
	var dest int
	assert.ErrorIs(t, repo.Get(context.Background(), "k", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(context.Background(), "k", 1, time.Minute))
	assert.NoError(t, repo.DeleteByPattern(context.Background(), "*"))
}
