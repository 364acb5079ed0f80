package vec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVec3Arithmetic(t *testing.T) {
	a := New(1, 2, 3)
	b := New(4, -5, 6)

	assert.Equal(t, New(5, -3, 9), a.Add(b))
	assert.Equal(t, New(-3, 7, -3), a.Sub(b))
	assert.Equal(t, New(2, 4, 6), a.Scale(2))
	assert.Equal(t, New(1, -5, 3), a.Min(b))
	assert.Equal(t, New(4, 2, 6), a.Max(b))
	assert.Equal(t, 5.0, New(3, 4, 0).Length())
	assert.Equal(t, 5.0, New(0, 0, 0).DistanceTo(New(0, 3, 4)))
}

func TestVec3String(t *testing.T) {
	assert.Equal(t, "(1.00, -2.50, 0.33)", New(1, -2.5, 1.0/3).String())
}

func TestVec3IsFinite(t *testing.T) {
	assert.True(t, New(1, 2, 3).IsFinite())
	assert.False(t, New(math.NaN(), 0, 0).IsFinite())
	assert.False(t, New(0, math.Inf(-1), 0).IsFinite())
}

func TestVec3Mgl(t *testing.T) {
	v := New(1, 2, 3)
	assert.True(t, v.Equals(FromMgl(v.ToMgl())))
	assert.True(t, v.ApproxEqual(New(1+1e-12, 2, 3), 1e-9))
	assert.False(t, v.ApproxEqual(New(1.1, 2, 3), 1e-9))
}
