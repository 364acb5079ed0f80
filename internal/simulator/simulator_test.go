package simulator

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/annel0/room-scanner/internal/room"
	"github.com/annel0/room-scanner/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collectingPublisher struct {
	mu      sync.Mutex
	batches []room.ScanBatch
	events  int
}

func (c *collectingPublisher) Publish(_ context.Context, batches []room.ScanBatch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, batches...)
	c.events++
	return nil
}

func (c *collectingPublisher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events
}

// grow расширяет границы на погрешность поворота
func grow(b room.Bounds, eps float64) room.Bounds {
	d := vec.New(eps, eps, eps)
	return room.Bounds{Min: b.Min.Sub(d), Max: b.Max.Add(d)}
}

// TestScannerPointsInsideRoom мировые точки всех батчей лежат внутри комнаты,
// а накопленные границы стремятся к ее размерам
func TestScannerPointsInsideRoom(t *testing.T) {
	cfg := DefaultScannerConfig()
	pub := &collectingPublisher{}
	s := NewScanner(cfg, pub)

	for i := 0; i < 200; i++ {
		require.NoError(t, s.Step(context.Background()))
	}
	require.Len(t, pub.batches, 200*cfg.BatchesPerEvent)

	limits := grow(cfg.Room.Bounds(), 1e-9)
	acc := room.NewBoundsAccumulator()
	ids := make(map[room.SurfaceID]bool)
	for _, b := range pub.batches {
		assert.False(t, ids[b.SurfaceID], "surface ids are unique")
		ids[b.SurfaceID] = true
		assert.Len(t, b.Points, cfg.PointsPerBatch)

		room.ToWorldAll(b.Points, b.Transform, func(p room.Point3) {
			assert.True(t, limits.Contains(p), "point %s outside room", p)
			acc.Extend(p)
		})
	}

	got, err := acc.CurrentBounds()
	require.NoError(t, err)
	size := got.Size()
	assert.InDelta(t, cfg.Room.Width, size.X, 0.1)
	assert.InDelta(t, cfg.Room.Height, size.Y, 0.1)
	assert.InDelta(t, cfg.Room.Depth, size.Z, 0.1)
}

func TestScannerNegativePointsPerBatch(t *testing.T) {
	cfg := DefaultScannerConfig()
	cfg.PointsPerBatch = -5
	b := NewScanner(cfg, &collectingPublisher{}).NextBatch()
	assert.Empty(t, b.Points)
}

func TestScannerDeterministicSeed(t *testing.T) {
	a := NewScanner(DefaultScannerConfig(), &collectingPublisher{}).NextBatch()
	b := NewScanner(DefaultScannerConfig(), &collectingPublisher{}).NextBatch()
	assert.Equal(t, a.Points, b.Points)
	assert.Equal(t, a.Transform, b.Transform)
}

func TestScannerRunStopsOnRequest(t *testing.T) {
	cfg := DefaultScannerConfig()
	cfg.Interval = 5 * time.Millisecond
	pub := &collectingPublisher{}
	s := NewScanner(cfg, pub)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	require.Eventually(t, func() bool { return pub.count() >= 2 }, time.Second, time.Millisecond)
	s.RequestStop()
	s.RequestStop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scanner did not stop")
	}
	assert.True(t, s.Stopped())
}

func TestScannerRunCancel(t *testing.T) {
	cfg := DefaultScannerConfig()
	cfg.Interval = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewScanner(cfg, &collectingPublisher{}).Run(ctx), context.Canceled)
}

func TestObserverStaysInsideRoom(t *testing.T) {
	shape := RoomShape{Width: 4, Height: 2.5, Depth: 3}
	o := NewObserver(shape, 7, 0.05)
	b := shape.Bounds()

	ctx := context.Background()
	for i := 0; i < 500; i++ {
		p, err := o.CurrentPose(ctx)
		require.NoError(t, err)
		assert.True(t, b.Contains(p.Position), "observer at %s", p.Position)
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err := o.CurrentPose(cctx)
	assert.Error(t, err)
}

// Наблюдатель смотрит вдоль направления движения
func TestObserverHeadingFollowsPath(t *testing.T) {
	o := NewObserver(RoomShape{Width: 4, Height: 2.5, Depth: 3}, 7, 0.05)

	const h = 1e-5
	for _, param := range []float64{0, 0.7, 1.9, 3.1, 4.4, 5.8} {
		p := o.PoseAt(param)
		next := o.PoseAt(param + h)
		mx, mz := next.Position.X-p.Position.X, next.Position.Z-p.Position.Z

		// Ориентацию восстанавливаем из углов Эйлера и поворачиваем ось +Z
		xf := room.TransformFromEuler(vec.New(0, 0, 0), p.Rotation)
		fwd := room.ToWorld(vec.New(0, 0, 1), xf)

		dot := (fwd.X*mx + fwd.Z*mz) / (math.Hypot(fwd.X, fwd.Z) * math.Hypot(mx, mz))
		assert.Greater(t, dot, 0.99, "t=%v rotation %s", param, p.Rotation)
	}
}

func TestNoiseRange(t *testing.T) {
	n := NewNoise(1)
	for i := 0; i < 100; i++ {
		v := n.Noise2D(float64(i)*0.37, float64(i)*0.11)
		assert.GreaterOrEqual(t, v, -1.5)
		assert.LessOrEqual(t, v, 1.5)
	}
	assert.Equal(t, n.Noise1D(0.5), NewNoise(1).Noise1D(0.5))
}
