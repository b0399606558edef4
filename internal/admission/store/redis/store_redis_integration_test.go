//go:build integration

package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"whitelist/internal/admission/ports"
	"whitelist/internal/admission/store/storetest"
	"whitelist/pkg/testutil/containers"
)

func TestRedisStore(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)

	suite.Run(t, &storetest.Suite{
		NewStore: func(t *testing.T) ports.Store {
			require.NoError(t, rc.FlushAll(context.Background()))
			return New(rc.Client, "whitelist-test")
		},
	})
}
