//go:build integration

package bucket

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whitelist/pkg/testutil/containers"
)

func TestRedisBucketStore(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))
	store := NewRedisBucketStore(rc.Client, "whitelist-test")

	t.Run("limits and resets", func(t *testing.T) {
		for i := range 2 {
			res, err := store.Allow(ctx, "ip:10.0.0.1", 2, time.Minute)
			require.NoError(t, err)
			assert.True(t, res.Allowed)
			assert.Equal(t, 1-i, res.Remaining)
		}
		res, err := store.Allow(ctx, "ip:10.0.0.1", 2, time.Minute)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Positive(t, res.RetryAfter)

		require.NoError(t, store.Reset(ctx, "ip:10.0.0.1"))
		res, err = store.Allow(ctx, "ip:10.0.0.1", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})

	t.Run("concurrent callers never exceed the limit", func(t *testing.T) {
		var allowed atomic.Int32
		var wg sync.WaitGroup
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := store.Allow(ctx, "ip:10.0.0.2", 5, time.Minute)
				if err == nil && res.Allowed {
					allowed.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(5), allowed.Load())
	})
}
