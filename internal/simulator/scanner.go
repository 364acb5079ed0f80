// Package simulator генерирует синтетические данные сканера комнаты и
// позу наблюдателя. Используется для локального запуска без устройства.
package simulator

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/annel0/room-scanner/internal/logging"
	"github.com/annel0/room-scanner/internal/room"
	"github.com/annel0/room-scanner/internal/vec"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

// BatchPublisher принимает сгенерированные батчи (scanfeed.Publisher)
type BatchPublisher interface {
	Publish(ctx context.Context, batches []room.ScanBatch) error
}

// RoomShape размеры комнаты. Пол на y=0, центр пола в начале координат.
type RoomShape struct {
	Width  float64 // по X
	Height float64 // по Y
	Depth  float64 // по Z
}

// Bounds истинные границы комнаты
func (s RoomShape) Bounds() room.Bounds {
	return room.Bounds{
		Min: vec.New(-s.Width/2, 0, -s.Depth/2),
		Max: vec.New(s.Width/2, s.Height, s.Depth/2),
	}
}

// ScannerConfig настройки синтетического сканера
type ScannerConfig struct {
	Room            RoomShape
	Seed            int64
	Interval        time.Duration // период событий "added"
	BatchesPerEvent int
	PointsPerBatch  int
	PatchSize       float64 // размер участка поверхности, м
	NoiseAmplitude  float64 // шероховатость поверхности вдоль нормали, м
}

// DefaultScannerConfig комната 4×2.5×3 м
func DefaultScannerConfig() ScannerConfig {
	return ScannerConfig{
		Room:            RoomShape{Width: 4, Height: 2.5, Depth: 3},
		Seed:            42,
		Interval:        200 * time.Millisecond,
		BatchesPerEvent: 2,
		PointsPerBatch:  64,
		PatchSize:       0.5,
		NoiseAmplitude:  0.01,
	}
}

// face грань комнаты: поворот локальной оси Y в нормаль грани
type face struct {
	name     string
	rotation mgl64.Quat
}

var faces = []face{
	{"floor", mgl64.QuatIdent()},
	{"ceiling", mgl64.QuatRotate(math.Pi, mgl64.Vec3{1, 0, 0})},
	{"wall+x", mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{0, 0, 1})},
	{"wall-x", mgl64.QuatRotate(-math.Pi/2, mgl64.Vec3{0, 0, 1})},
	{"wall+z", mgl64.QuatRotate(-math.Pi/2, mgl64.Vec3{1, 0, 0})},
	{"wall-z", mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{1, 0, 0})},
}

// Scanner публикует участки граней комнаты с шумом Перлина
type Scanner struct {
	cfg   ScannerConfig
	pub   BatchPublisher
	noise *Noise
	rng   *rand.Rand

	mu      sync.Mutex
	stopped bool
	sent    int
}

// NewScanner создает сканер
func NewScanner(cfg ScannerConfig, pub BatchPublisher) *Scanner {
	if cfg.BatchesPerEvent <= 0 {
		cfg.BatchesPerEvent = 1
	}
	if cfg.PatchSize <= 0 {
		cfg.PatchSize = 0.5
	}
	if cfg.PointsPerBatch < 0 {
		cfg.PointsPerBatch = 0
	}
	return &Scanner{
		cfg:   cfg,
		pub:   pub,
		noise: NewNoise(cfg.Seed),
		rng:   rand.New(rand.NewSource(cfg.Seed)),
	}
}

// RequestStop прекращает выдачу батчей (обработчик scan.stop)
func (s *Scanner) RequestStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		logging.Info("🛑 Симулятор сканера остановлен после %d батчей", s.sent)
	}
}

// Stopped true после RequestStop
func (s *Scanner) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Run публикует события с периодом Interval до отмены ctx или RequestStop
func (s *Scanner) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if s.Stopped() {
				return nil
			}
			if err := s.Step(ctx); err != nil {
				logging.Warn("⚠️ Симулятор: ошибка публикации: %v", err)
			}
		}
	}
}

// Step генерирует и публикует одно событие "added"
func (s *Scanner) Step(ctx context.Context) error {
	batches := make([]room.ScanBatch, s.cfg.BatchesPerEvent)
	for i := range batches {
		batches[i] = s.NextBatch()
	}
	if err := s.pub.Publish(ctx, batches); err != nil {
		return err
	}
	s.mu.Lock()
	s.sent += len(batches)
	s.mu.Unlock()
	return nil
}

// NextBatch генерирует участок случайной грани
func (s *Scanner) NextBatch() room.ScanBatch {
	f := faces[s.rng.Intn(len(faces))]
	shape := s.cfg.Room
	half := s.cfg.PatchSize / 2

	// Центр участка на грани, участок целиком внутри грани
	span := func(extent float64) float64 {
		r := extent/2 - half
		if r <= 0 {
			return 0
		}
		return (s.rng.Float64()*2 - 1) * r
	}
	var t vec.Vec3Float
	switch f.name {
	case "floor":
		t = vec.New(span(shape.Width), 0, span(shape.Depth))
	case "ceiling":
		t = vec.New(span(shape.Width), shape.Height, span(shape.Depth))
	case "wall+x":
		t = vec.New(shape.Width/2, shape.Height/2+span(shape.Height), span(shape.Depth))
	case "wall-x":
		t = vec.New(-shape.Width/2, shape.Height/2+span(shape.Height), span(shape.Depth))
	case "wall+z":
		t = vec.New(span(shape.Width), shape.Height/2+span(shape.Height), shape.Depth/2)
	case "wall-z":
		t = vec.New(span(shape.Width), shape.Height/2+span(shape.Height), -shape.Depth/2)
	}

	points := make([]room.Point3, s.cfg.PointsPerBatch)
	for i := range points {
		u := (s.rng.Float64()*2 - 1) * half
		v := (s.rng.Float64()*2 - 1) * half
		// Шероховатость вдоль нормали грани, только внутрь комнаты
		n := s.cfg.NoiseAmplitude * (clampUnit(s.noise.Noise2D(t.X+u, t.Z+v)) + 1) / 2
		points[i] = vec.New(u, n, v)
	}

	return room.ScanBatch{
		SurfaceID: room.SurfaceID(fmt.Sprintf("%s-%s", f.name, uuid.NewString()[:8])),
		Transform: room.RigidTransform{Rotation: f.rotation, Translation: t},
		Points:    points,
	}
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
