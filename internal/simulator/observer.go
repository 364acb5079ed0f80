package simulator

import (
	"context"
	"math"
	"sync"

	"github.com/annel0/room-scanner/internal/room"
	"github.com/annel0/room-scanner/internal/vec"
	"github.com/go-gl/mathgl/mgl64"
)

// Observer синтетический наблюдатель: ходит по фигуре Лиссажу внутри комнаты
// на высоте глаз, с дрожанием по шуму Перлина. Каждый вызов CurrentPose —
// один тик.
type Observer struct {
	shape  RoomShape
	noise  *Noise
	step   float64
	height float64

	mu   sync.Mutex
	tick int
}

// NewObserver создает наблюдателя; step — приращение параметра за тик
func NewObserver(shape RoomShape, seed int64, step float64) *Observer {
	if step <= 0 {
		step = 0.02
	}
	return &Observer{
		shape:  shape,
		noise:  NewNoise(seed + 1),
		step:   step,
		height: math.Min(1.6, shape.Height*0.8),
	}
}

// PoseAt поза на параметре t
func (o *Observer) PoseAt(t float64) room.Pose {
	// Амплитуда 0.4 размера комнаты оставляет запас от стен
	x := 0.4 * o.shape.Width * math.Sin(t)
	z := 0.4 * o.shape.Depth * math.Sin(2*t)
	y := o.height + 0.05*o.noise.Noise1D(t)

	// Смотрим по касательной к траектории. Трекер устройства отдает
	// ориентацию кватернионом, в Pose она хранится углами Эйлера.
	dx := 0.4 * o.shape.Width * math.Cos(t)
	dz := 0.8 * o.shape.Depth * math.Cos(2*t)
	yaw := math.Atan2(dx, dz)
	pitch := mgl64.DegToRad(5 * o.noise.Noise1D(t+100))
	heading := mgl64.AnglesToQuat(pitch, yaw, 0, mgl64.XYZ)

	return room.PoseFromQuat(vec.New(x, y, z), heading)
}

// CurrentPose реализует room.PoseSource
func (o *Observer) CurrentPose(ctx context.Context) (room.Pose, error) {
	if err := ctx.Err(); err != nil {
		return room.Pose{}, err
	}
	o.mu.Lock()
	t := float64(o.tick) * o.step
	o.tick++
	o.mu.Unlock()
	return o.PoseAt(t), nil
}
