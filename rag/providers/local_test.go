package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func TestLocalEmbedder(t *testing.T) {
	factory, err := GetEmbedderFactory("local")
	require.NoError(t, err)
	e, err := factory(map[string]interface{}{"dimension": 64})
	require.NoError(t, err)

	dim, err := e.GetDimension()
	require.NoError(t, err)
	assert.Equal(t, 64, dim)

	ctx := context.Background()
	a, err := e.Embed(ctx, "Quarterly sales report")
	require.NoError(t, err)
	require.Len(t, a, 64)
	assert.InDelta(t, 1.0, floats.Norm(a, 2), 1e-9)

	again, err := e.Embed(ctx, "quarterly SALES report!")
	require.NoError(t, err)
	assert.Equal(t, a, again)

	related, err := e.Embed(ctx, "sales report for the quarter")
	require.NoError(t, err)
	assert.Greater(t, floats.Dot(a, related), 0.0)

	zero, err := e.Embed(ctx, "... !!!")
	require.NoError(t, err)
	assert.Equal(t, 0.0, floats.Norm(zero, 2))
}

func TestLocalEmbedderBatch(t *testing.T) {
	e, err := NewLocalEmbedder(nil)
	require.NoError(t, err)
	batch, err := e.(BatchEmbedder).EmbedBatch(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Len(t, batch[0], defaultLocalDimension)

	single, err := e.Embed(context.Background(), "two")
	require.NoError(t, err)
	assert.Equal(t, single, batch[1])
}

func TestLocalEmbedderInvalidDimension(t *testing.T) {
	_, err := NewLocalEmbedder(map[string]interface{}{"dimension": 0})
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	names := Embedders()
	assert.Contains(t, names, "openai")
	assert.Contains(t, names, "local")

	_, err := GetEmbedderFactory("does-not-exist")
	assert.Error(t, err)
}
