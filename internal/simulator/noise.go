package simulator

import (
	"sync"

	"github.com/aquilax/go-perlin"
)

// Noise потокобезопасная обертка над генератором шума Перлина
type Noise struct {
	mu sync.Mutex
	p  *perlin.Perlin
}

// NewNoise создает генератор с указанным сидом
func NewNoise(seed int64) *Noise {
	alpha := 2.0  // Сглаживание шума
	beta := 2.0   // Частота шума
	n := int32(3) // Количество октав
	return &Noise{p: perlin.NewPerlin(alpha, beta, n, seed)}
}

// Noise1D значение шума в диапазоне примерно [-1, 1]
func (n *Noise) Noise1D(x float64) float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.p.Noise1D(x)
}

// Noise2D значение шума в диапазоне примерно [-1, 1]
func (n *Noise) Noise2D(x, y float64) float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.p.Noise2D(x, y)
}
