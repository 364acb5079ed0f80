package room

import (
	"fmt"
	"math"
	"strings"

	"github.com/annel0/room-scanner/internal/vec"
	"github.com/go-gl/mathgl/mgl64"
)

// Pose позиция и ориентация наблюдателя. Ориентация — углы Эйлера
// в градусах, порядок X→Y→Z.
type Pose struct {
	Position vec.Vec3Float `json:"position"`
	Rotation vec.Vec3Float `json:"rotation"`
}

// PoseFromQuat строит Pose из позиции и кватерниона ориентации
func PoseFromQuat(position vec.Vec3Float, q mgl64.Quat) Pose {
	return Pose{Position: position, Rotation: QuatToEulerDegrees(q)}
}

// QuatToEulerDegrees раскладывает кватернион на углы X→Y→Z в градусах
func QuatToEulerDegrees(q mgl64.Quat) vec.Vec3Float {
	q = q.Normalize()
	x, y, z, w := q.V[0], q.V[1], q.V[2], q.W

	// Матрица поворота для порядка XYZ: R = Rx * Ry * Rz
	m02 := 2 * (x*z + w*y)
	m12 := 2 * (y*z - w*x)
	m22 := 1 - 2*(x*x+y*y)
	m01 := 2 * (x*y - w*z)
	m00 := 1 - 2*(y*y+z*z)

	ry := math.Asin(clamp(m02, -1, 1))
	var rx, rz float64
	if math.Abs(m02) < 0.9999999 {
		rx = math.Atan2(-m12, m22)
		rz = math.Atan2(-m01, m00)
	} else {
		// Gimbal lock: весь поворот вокруг Z относим к X
		m21 := 2 * (y*z + w*x)
		m11 := 1 - 2*(x*x+z*z)
		rx = math.Atan2(m21, m11)
		rz = 0
	}

	return vec.New(mgl64.RadToDeg(rx), mgl64.RadToDeg(ry), mgl64.RadToDeg(rz))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// PoseMode система координат для репорта позиции после подтверждения
type PoseMode string

const (
	// PoseModeAbsolute мировая позиция как есть
	PoseModeAbsolute PoseMode = "absolute"
	// PoseModeRelative позиция относительно центра комнаты
	PoseModeRelative PoseMode = "relative"
)

// ParsePoseMode разбирает режим из конфигурации; пустая строка — absolute
func ParsePoseMode(s string) (PoseMode, error) {
	switch PoseMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", PoseModeAbsolute:
		return PoseModeAbsolute, nil
	case PoseModeRelative:
		return PoseModeRelative, nil
	default:
		return "", fmt.Errorf("unknown pose mode %q", s)
	}
}

// ReportedPose позиция, подготовленная для вывода
type ReportedPose struct {
	Mode     PoseMode      `json:"mode"`
	Position vec.Vec3Float `json:"position"`
	Rotation vec.Vec3Float `json:"rotation"`
}

// String форматирует шесть компонент позы для дисплея
func (p ReportedPose) String() string {
	label := "Camera Position"
	if p.Mode == PoseModeRelative {
		label = "Camera Position (relative)"
	}
	return fmt.Sprintf("%s: %s Rotation: %s", label, p.Position, p.Rotation)
}

// PoseReporter вычисляет позу наблюдателя в системе, которую диктует состояние комнаты.
// Пока комната не подтверждена, репортер неактивен.
type PoseReporter struct {
	mode   PoseMode
	active bool
	center vec.Vec3Float
}

// NewPoseReporter создает неактивный репортер
func NewPoseReporter(mode PoseMode) *PoseReporter {
	if mode == "" {
		mode = PoseModeAbsolute
	}
	return &PoseReporter{mode: mode}
}

// Activate включает репорт; center — замороженный центр комнаты
func (r *PoseReporter) Activate(center vec.Vec3Float) {
	r.active = true
	r.center = center
}

// Active true после подтверждения комнаты
func (r *PoseReporter) Active() bool {
	return r.active
}

// Mode текущий режим репорта
func (r *PoseReporter) Mode() PoseMode {
	return r.mode
}

// Sample возвращает позу для вывода; false, пока репортер неактивен
func (r *PoseReporter) Sample(observer Pose) (ReportedPose, bool) {
	if !r.active {
		return ReportedPose{}, false
	}

	pos := observer.Position
	if r.mode == PoseModeRelative {
		pos = pos.Sub(r.center)
	}
	return ReportedPose{Mode: r.mode, Position: pos, Rotation: observer.Rotation}, true
}
