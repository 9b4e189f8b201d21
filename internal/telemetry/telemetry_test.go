package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kiranvinzoda4/ai-dream-creater/internal/config"
)

func TestSetupNoopWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, shutdown(ctx))
}

func TestSetupWithEndpoint(t *testing.T) {
	// 不可路由地址，不会真正导出。
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{
		Endpoint:    "http://192.0.2.1:4318",
		ServiceName: "dream-test",
	})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
