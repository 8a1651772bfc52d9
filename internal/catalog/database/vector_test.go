package database

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorLiteral(t *testing.T) {
	literal, err := vectorLiteral([]float32{1, -0.5, 0.25})
	require.NoError(t, err)
	assert.Equal(t, "[1,-0.5,0.25]", literal)

	_, err = vectorLiteral(nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = vectorLiteral([]float32{float32(math.NaN())})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = vectorLiteral([]float32{float32(math.Inf(1))})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestEncodeDecodeVector(t *testing.T) {
	encoded, err := encodeVector([]float32{0.5, -1, 2})
	require.NoError(t, err)

	decoded, err := decodeVector(encoded)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -1, 2}, decoded)

	empty, err := encodeVector(nil)
	require.NoError(t, err)
	assert.Equal(t, "", empty)

	none, err := decodeVector("")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestCosineDistance(t *testing.T) {
	a := []float32{1, 0, 0}

	assert.InDelta(t, 0, cosineDistance(a, []float32{1, 0, 0}), 1e-9)
	assert.InDelta(t, 1, cosineDistance(a, []float32{0, 1, 0}), 1e-9)
	assert.InDelta(t, 2, cosineDistance(a, []float32{-1, 0, 0}), 1e-9)

	// Mismatched or zero vectors are maximally distant.
	assert.Equal(t, float64(1), cosineDistance(a, []float32{1, 0}))
	assert.Equal(t, float64(1), cosineDistance(a, []float32{0, 0, 0}))
	assert.Equal(t, float64(1), cosineDistance(nil, nil))
}
