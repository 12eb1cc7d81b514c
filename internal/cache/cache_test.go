package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/taskforge/internal/cache"
	"github.com/piwi3910/taskforge/internal/config"
	"github.com/piwi3910/taskforge/internal/models"
	"github.com/piwi3910/taskforge/internal/observability"
)

func newTestCache(t *testing.T) (*cache.TaskCache, *miniredis.Miniredis, *observability.Metrics) {
	t.Helper()

	mr := miniredis.RunT(t)
	metrics := observability.NewMetrics(config.MetricsConfig{
		Enabled:   true,
		Namespace: "taskforge",
	})

	c, err := cache.New(context.Background(), config.RedisConfig{
		Address: mr.Addr(),
		TTL:     time.Minute,
	}, metrics)
	require.NoError(t, err)
	require.NotNil(t, c)
	t.Cleanup(func() { _ = c.Close() })

	return c, mr, metrics
}

func sampleListing() *models.TaskListResponse {
	return &models.TaskListResponse{
		Tasks: []models.Task{
			{ID: "task-1", Title: "write report", Status: models.TaskStatusPending, Priority: models.PriorityMedium, UserID: "user-1"},
		},
		Total: 1,
		Skip:  0,
		Limit: 10,
	}
}

func TestNewDisabledWhenNoAddress(t *testing.T) {
	c, err := cache.New(context.Background(), config.RedisConfig{}, nil)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestNewConnectionFailure(t *testing.T) {
	_, err := cache.New(context.Background(), config.RedisConfig{
		Address:     "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
	}, nil)
	require.Error(t, err)
}

func TestGetTaskListMissThenHit(t *testing.T) {
	c, _, metrics := newTestCache(t)
	ctx := context.Background()

	_, ok := c.GetTaskList(ctx, "user-1", "", 0, 10)
	assert.False(t, ok)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CacheMissesTotal.WithLabelValues("task_list")))

	c.SetTaskList(ctx, "user-1", "", 0, 10, sampleListing())

	got, ok := c.GetTaskList(ctx, "user-1", "", 0, 10)
	require.True(t, ok)
	assert.Equal(t, 1, got.Total)
	require.Len(t, got.Tasks, 1)
	assert.Equal(t, "task-1", got.Tasks[0].ID)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CacheHitsTotal.WithLabelValues("task_list")))
}

func TestGetTaskListKeysAreScoped(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	c.SetTaskList(ctx, "user-1", "", 0, 10, sampleListing())

	// Different page, filter, or user must miss.
	_, ok := c.GetTaskList(ctx, "user-1", "", 10, 10)
	assert.False(t, ok)
	_, ok = c.GetTaskList(ctx, "user-1", models.TaskStatusPending, 0, 10)
	assert.False(t, ok)
	_, ok = c.GetTaskList(ctx, "user-2", "", 0, 10)
	assert.False(t, ok)
}

func TestInvalidateUser(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	c.SetTaskList(ctx, "user-1", "", 0, 10, sampleListing())
	c.SetTaskList(ctx, "user-1", models.TaskStatusPending, 0, 10, sampleListing())
	c.SetTaskList(ctx, "user-2", "", 0, 10, sampleListing())

	c.InvalidateUser(ctx, "user-1")

	_, ok := c.GetTaskList(ctx, "user-1", "", 0, 10)
	assert.False(t, ok)
	_, ok = c.GetTaskList(ctx, "user-1", models.TaskStatusPending, 0, 10)
	assert.False(t, ok)

	// Other users keep their entries.
	_, ok = c.GetTaskList(ctx, "user-2", "", 0, 10)
	assert.True(t, ok)
}

func TestEntriesExpire(t *testing.T) {
	c, mr, _ := newTestCache(t)
	ctx := context.Background()

	c.SetTaskList(ctx, "user-1", "", 0, 10, sampleListing())
	mr.FastForward(2 * time.Minute)

	_, ok := c.GetTaskList(ctx, "user-1", "", 0, 10)
	assert.False(t, ok)
}

func TestNilCacheIsNoOp(t *testing.T) {
	var c *cache.TaskCache
	ctx := context.Background()

	_, ok := c.GetTaskList(ctx, "user-1", "", 0, 10)
	assert.False(t, ok)
	c.SetTaskList(ctx, "user-1", "", 0, 10, sampleListing())
	c.InvalidateUser(ctx, "user-1")
	assert.NoError(t, c.Ping(ctx))
	assert.NoError(t, c.Close())
}

func TestPing(t *testing.T) {
	c, mr, _ := newTestCache(t)

	require.NoError(t, c.Ping(context.Background()))

	mr.Close()
	assert.Error(t, c.Ping(context.Background()))
}
