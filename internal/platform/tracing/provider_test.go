package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"whitelist/internal/platform/config"
)

func TestSetup_NoopWhenEndpointEmpty(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracingConfig{Enabled: true}, "whitelist-test")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetup_NoopWhenDisabled(t *testing.T) {
	cfg := config.TracingConfig{Enabled: false, Endpoint: "http://localhost:4318"}
	shutdown, err := Setup(context.Background(), cfg, "whitelist-test")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetup_CreatesProviderWhenEndpointSet(t *testing.T) {
	// non-routable address: nothing is exported
	cfg := config.TracingConfig{Enabled: true, Endpoint: "http://192.0.2.1:4318", SampleRatio: 1}
	shutdown, err := Setup(context.Background(), cfg, "whitelist-test")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
