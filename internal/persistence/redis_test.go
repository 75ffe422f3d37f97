package persistence

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/lead-router/internal/config"
)

func TestNewRedis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	r := NewRedis(ctx, config.RedisConfig{Addr: mr.Addr(), KeyPrefix: "staging", DialTimeoutMs: 200}, zap.NewNop())
	t.Cleanup(r.Close)
	require.NoError(t, r.Ping(ctx))
	require.Equal(t, "staging", r.Namespace())

	unreachable := NewRedis(ctx, config.RedisConfig{Addr: "127.0.0.1:1", DialTimeoutMs: 50}, zap.NewNop())
	t.Cleanup(unreachable.Close)
	require.Error(t, unreachable.Ping(ctx))
	require.Equal(t, "", unreachable.Namespace())

	var missing *Redis
	require.Error(t, missing.Ping(ctx))
	require.Empty(t, missing.Namespace())
}
