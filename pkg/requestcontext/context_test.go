package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	id "whitelist/pkg/domain"
)

func TestAccessorsFallBackToZeroValues(t *testing.T) {
	ctx := context.Background()

	assert.True(t, Caller(ctx).IsNil())
	assert.Zero(t, ChainID(ctx))
	assert.Empty(t, RequestID(ctx))
	assert.Empty(t, ClientIP(ctx))
	assert.Empty(t, UserAgent(ctx))
	assert.WithinDuration(t, time.Now(), Now(ctx), time.Second)
}

func TestAccessorsReturnInjectedValues(t *testing.T) {
	fixed := time.Date(2023, 1, 15, 12, 0, 0, 0, time.UTC)
	caller := id.MustParseIdentity("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")

	ctx := WithCaller(context.Background(), caller)
	ctx = WithChainID(ctx, 5)
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithClientMetadata(ctx, "10.0.0.1", "Firefox/Linux")
	ctx = WithTime(ctx, fixed)

	assert.Equal(t, caller, Caller(ctx))
	assert.Equal(t, int64(5), ChainID(ctx))
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, "10.0.0.1", ClientIP(ctx))
	assert.Equal(t, "Firefox/Linux", UserAgent(ctx))
	assert.Equal(t, fixed, Now(ctx))
}
