package room

import (
	"errors"

	"github.com/annel0/room-scanner/internal/vec"
)

// Point3 трехмерная точка в локальной или мировой системе координат
type Point3 = vec.Vec3Float

// SurfaceID идентификатор поверхности, выданный сканером
type SurfaceID string

// ScanBatch одна порция геометрии от сканера: точки в локальной системе
// поверхности и преобразование в мировую. Движок не хранит батч после приема.
type ScanBatch struct {
	SurfaceID SurfaceID
	Transform RigidTransform
	Points    []Point3
}

// Ошибки движка
var (
	// ErrMissingCollaborator обязательная внешняя зависимость не передана при старте.
	// Движок после этого остается неактивным до конца сессии.
	ErrMissingCollaborator = errors.New("missing collaborator")

	// ErrDuplicateSurface поверхность с таким ID уже зарегистрирована
	ErrDuplicateSurface = errors.New("duplicate surface")

	// ErrEmptyBounds границы запрошены до приема первой точки
	ErrEmptyBounds = errors.New("empty bounds")
)
