package room

import (
	"math"

	"github.com/annel0/room-scanner/internal/vec"
)

// Bounds осе-выровненный параллелепипед комнаты
type Bounds struct {
	Min Point3 `json:"min"`
	Max Point3 `json:"max"`
}

// Center возвращает центр параллелепипеда
func (b Bounds) Center() Point3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

// Size возвращает размеры по осям
func (b Bounds) Size() Point3 {
	return b.Max.Sub(b.Min)
}

// Volume возвращает объем
func (b Bounds) Volume() float64 {
	s := b.Size()
	return s.X * s.Y * s.Z
}

// Contains проверяет попадание точки внутрь (включая грани)
func (b Bounds) Contains(p Point3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// BoundsAccumulator хранит текущие min/max по всем принятым мировым точкам.
// Точки не удерживаются: обновление O(1) на точку. Удаления нет —
// комната за время одного сканирования только растет.
type BoundsAccumulator struct {
	min   Point3
	max   Point3
	count uint64
}

// NewBoundsAccumulator создает пустой аккумулятор (min=+Inf, max=-Inf)
func NewBoundsAccumulator() *BoundsAccumulator {
	inf := math.Inf(1)
	return &BoundsAccumulator{
		min: vec.New(inf, inf, inf),
		max: vec.New(-inf, -inf, -inf),
	}
}

// Ingest расширяет границы точками. Точки с NaN/Inf пропускаются,
// возвращается число принятых.
func (a *BoundsAccumulator) Ingest(points ...Point3) int {
	accepted := 0
	for _, p := range points {
		if a.Extend(p) {
			accepted++
		}
	}
	return accepted
}

// Extend расширяет границы одной точкой
func (a *BoundsAccumulator) Extend(p Point3) bool {
	if !p.IsFinite() {
		return false
	}
	a.min = a.min.Min(p)
	a.max = a.max.Max(p)
	a.count++
	return true
}

// CurrentBounds возвращает границы или ErrEmptyBounds, если точек еще не было
func (a *BoundsAccumulator) CurrentBounds() (Bounds, error) {
	if a.count == 0 {
		return Bounds{}, ErrEmptyBounds
	}
	return Bounds{Min: a.min, Max: a.max}, nil
}

// Count число принятых точек за все время
func (a *BoundsAccumulator) Count() uint64 {
	return a.count
}
