package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, "sma-timetable", nil)

	var out map[string]string
	err := repo.Get(context.Background(), "timetable:view:run-1", &out)
	assert.True(t, errors.Is(err, appErrors.ErrCacheMiss))
	assert.NoError(t, repo.Set(context.Background(), "k", "v", time.Minute))
	assert.NoError(t, repo.Ping(context.Background()))
	assert.NoError(t, repo.Close())
}

func TestCacheRepositoryUnreachableRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	repo := NewCacheRepository(client, "", nil)
	defer repo.Close() //nolint:errcheck

	assert.Equal(t, "plain", repo.key("plain"))
	assert.Equal(t, "ns:plain", NewCacheRepository(nil, "ns", nil).key("plain"))

	var out string
	err := repo.Get(context.Background(), "k", &out)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, appErrors.ErrCacheMiss))
	assert.Error(t, repo.Set(context.Background(), "k", "v", time.Minute))
	assert.Error(t, repo.Ping(context.Background()))
}
