package adapters

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEchoAdapter(t *testing.T) {
	ctx := context.Background()
	a := NewEchoAdapter(nil)

	meta, err := a.LoadMetadata()
	require.NoError(t, err)
	require.NoError(t, meta.Validate())
	assert.False(t, meta.Sandboxed())

	_, err = a.Process(ctx, "early", nil)
	assert.Error(t, err, "process before initialize must fail")
	assert.False(t, a.HealthCheck(ctx).IsHealthy)

	require.NoError(t, a.Initialize(ctx, nil))
	out, err := a.Process(ctx, map[string]interface{}{"k": "v"}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"k": "v"}, out)

	health := a.HealthCheck(ctx)
	assert.True(t, health.IsHealthy)
	assert.Equal(t, 1.0, health.Metrics["processed"])

	require.NoError(t, a.Cleanup(ctx))
	assert.False(t, a.HealthCheck(ctx).IsHealthy)
}

func TestScriptAdapter(t *testing.T) {
	ctx := context.Background()
	a := NewScriptAdapter(nil)

	meta, err := a.LoadMetadata()
	require.NoError(t, err)
	require.NoError(t, meta.Validate())
	assert.True(t, meta.Sandboxed())

	require.NoError(t, a.Initialize(ctx, nil))

	t.Run("Source String Passthrough", func(t *testing.T) {
		out, err := a.Process(ctx, "result = 1", nil)
		require.NoError(t, err)
		assert.Equal(t, "result = 1", out)
	})

	t.Run("Map With Code", func(t *testing.T) {
		in := map[string]interface{}{"code": "result = x", "bindings": map[string]interface{}{"x": 1}}
		out, err := a.Process(ctx, in, nil)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})

	t.Run("Map Without Code", func(t *testing.T) {
		_, err := a.Process(ctx, map[string]interface{}{"bindings": nil}, nil)
		assert.Error(t, err)
	})

	t.Run("Unsupported Input", func(t *testing.T) {
		_, err := a.Process(ctx, 42, nil)
		assert.Error(t, err)
	})
}
