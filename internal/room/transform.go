package room

import (
	"github.com/annel0/room-scanner/internal/vec"
	"github.com/go-gl/mathgl/mgl64"
)

// RigidTransform поворот + перенос из локальной системы поверхности в мировую.
//
// Соглашение: правая система координат, Y вверх, положительный угол —
// поворот против часовой стрелки при взгляде с конца оси (как в mathgl).
// Точка сначала поворачивается, затем переносится.
type RigidTransform struct {
	Rotation    mgl64.Quat
	Translation vec.Vec3Float
}

// IdentityTransform возвращает тождественное преобразование
func IdentityTransform() RigidTransform {
	return RigidTransform{Rotation: mgl64.QuatIdent()}
}

// TransformFromEuler строит преобразование из переноса и углов Эйлера в градусах.
// Порядок поворотов X→Y→Z.
func TransformFromEuler(translation vec.Vec3Float, degrees vec.Vec3Float) RigidTransform {
	q := mgl64.AnglesToQuat(
		mgl64.DegToRad(degrees.X),
		mgl64.DegToRad(degrees.Y),
		mgl64.DegToRad(degrees.Z),
		mgl64.XYZ,
	)
	return RigidTransform{Rotation: q, Translation: translation}
}

// rotation возвращает нормализованный кватернион поворота.
// Нулевой кватернион (не заданный сканером) трактуется как отсутствие поворота.
func (xf RigidTransform) rotation() mgl64.Quat {
	q := xf.Rotation
	if q.W == 0 && q.V == (mgl64.Vec3{}) {
		return mgl64.QuatIdent()
	}
	return q.Normalize()
}

// ToWorld переводит локальную точку в мировую систему координат
func ToWorld(local Point3, xf RigidTransform) Point3 {
	return apply(xf.rotation(), xf.Translation, local)
}

// ToWorldAll переводит набор точек, вызывая emit для каждой мировой точки.
// Срез не создается: движок не удерживает сырые точки.
func ToWorldAll(points []Point3, xf RigidTransform, emit func(Point3)) {
	q := xf.rotation()
	for _, p := range points {
		emit(apply(q, xf.Translation, p))
	}
}

func apply(q mgl64.Quat, t vec.Vec3Float, p Point3) Point3 {
	return vec.FromMgl(q.Rotate(p.ToMgl())).Add(t)
}
