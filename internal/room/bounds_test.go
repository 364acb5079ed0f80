package room

import (
	"math"
	"math/rand"
	"testing"

	"github.com/annel0/room-scanner/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundsAccumulatorEmpty(t *testing.T) {
	acc := NewBoundsAccumulator()
	_, err := acc.CurrentBounds()
	assert.ErrorIs(t, err, ErrEmptyBounds)
	assert.Zero(t, acc.Count())
}

// TestBoundsCenterAndSize две точки задают противоположные углы
func TestBoundsCenterAndSize(t *testing.T) {
	acc := NewBoundsAccumulator()
	assert.Equal(t, 2, acc.Ingest(vec.New(0, 0, 0), vec.New(2, 4, 6)))

	b, err := acc.CurrentBounds()
	require.NoError(t, err)
	assert.Equal(t, vec.New(1, 2, 3), b.Center())
	assert.Equal(t, vec.New(2, 4, 6), b.Size())
	assert.Equal(t, 48.0, b.Volume())
	assert.Equal(t, "Room Size: (2.00, 4.00, 6.00)", FormatRoomSize(b))
	assert.Equal(t, "Room Center: (1.00, 2.00, 3.00)", FormatRoomCenter(b))
}

func TestBoundsSinglePoint(t *testing.T) {
	acc := NewBoundsAccumulator()
	acc.Ingest(vec.New(1, -1, 2))

	b, err := acc.CurrentBounds()
	require.NoError(t, err)
	assert.Equal(t, b.Min, b.Max)
	assert.Equal(t, vec.Zero, b.Size())
}

// TestBoundsMonotonic границы только расширяются
func TestBoundsMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	acc := NewBoundsAccumulator()
	acc.Ingest(vec.New(0, 0, 0))

	prev, _ := acc.CurrentBounds()
	for i := 0; i < 1000; i++ {
		p := vec.New(rng.NormFloat64()*3, rng.NormFloat64()*3, rng.NormFloat64()*3)
		acc.Extend(p)

		cur, err := acc.CurrentBounds()
		require.NoError(t, err)
		assert.True(t, cur.Contains(p))
		assert.LessOrEqual(t, cur.Min.X, prev.Min.X)
		assert.LessOrEqual(t, cur.Min.Y, prev.Min.Y)
		assert.LessOrEqual(t, cur.Min.Z, prev.Min.Z)
		assert.GreaterOrEqual(t, cur.Max.X, prev.Max.X)
		assert.GreaterOrEqual(t, cur.Max.Y, prev.Max.Y)
		assert.GreaterOrEqual(t, cur.Max.Z, prev.Max.Z)
		prev = cur
	}
	assert.Equal(t, uint64(1001), acc.Count())
}

func TestBoundsRejectsNonFinite(t *testing.T) {
	acc := NewBoundsAccumulator()
	accepted := acc.Ingest(
		vec.New(math.NaN(), 0, 0),
		vec.New(0, math.Inf(1), 0),
		vec.New(1, 1, 1),
	)
	assert.Equal(t, 1, accepted)

	b, err := acc.CurrentBounds()
	require.NoError(t, err)
	assert.Equal(t, vec.New(1, 1, 1), b.Min)
	assert.Equal(t, vec.New(1, 1, 1), b.Max)
}
