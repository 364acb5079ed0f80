package room

import (
	"fmt"
	"sort"
)

// Renderer принимает команды показать/скрыть поверхность.
// Fire-and-forget: состояние рендерера никогда не читается обратно.
type Renderer interface {
	SetSurfaceVisible(id SurfaceID, visible bool)
}

// RendererFunc адаптер функции к Renderer
type RendererFunc func(id SurfaceID, visible bool)

func (f RendererFunc) SetSurfaceVisible(id SurfaceID, visible bool) { f(id, visible) }

type nopRenderer struct{}

func (nopRenderer) SetSurfaceVisible(SurfaceID, bool) {}

// SurfaceRecord запись о поверхности
type SurfaceRecord struct {
	ID      SurfaceID `json:"id"`
	Visible bool      `json:"visible"`
}

// SurfaceRegistry учитывает принятые поверхности и их видимость.
// Политика видимости глобальная: после первой глобальной команды новые
// поверхности получают текущий глобальный флаг, а не свое значение по умолчанию.
type SurfaceRegistry struct {
	renderer      Renderer
	records       map[SurfaceID]*SurfaceRecord
	order         []SurfaceID
	globalVisible bool
	globalApplied bool
}

// NewSurfaceRegistry создает реестр. renderer может быть nil.
// defaultVisible начальное значение глобального флага; оно же должно
// совпадать с начальной видимостью, которую вызывающий передает в Register.
func NewSurfaceRegistry(renderer Renderer, defaultVisible bool) *SurfaceRegistry {
	if renderer == nil {
		renderer = nopRenderer{}
	}
	return &SurfaceRegistry{
		renderer:      renderer,
		records:       make(map[SurfaceID]*SurfaceRecord),
		globalVisible: defaultVisible,
	}
}

// Register добавляет поверхность. Для известного ID возвращает
// ErrDuplicateSurface, существующая запись не меняется.
func (r *SurfaceRegistry) Register(id SurfaceID, initiallyVisible bool) error {
	if _, exists := r.records[id]; exists {
		return fmt.Errorf("surface %q: %w", id, ErrDuplicateSurface)
	}

	visible := initiallyVisible
	if r.globalApplied {
		visible = r.globalVisible
	}

	r.records[id] = &SurfaceRecord{ID: id, Visible: visible}
	r.order = append(r.order, id)
	r.renderer.SetSurfaceVisible(id, visible)
	return nil
}

// SetAllVisibility выставляет флаг всем поверхностям и отправляет команду рендереру.
// Идемпотентна.
func (r *SurfaceRegistry) SetAllVisibility(visible bool) {
	r.globalVisible = visible
	r.globalApplied = true
	for _, id := range r.order {
		r.records[id].Visible = visible
		r.renderer.SetSurfaceVisible(id, visible)
	}
}

// ToggleAllVisibility инвертирует глобальный флаг и видимость каждой поверхности.
// Возвращает новое значение глобального флага.
func (r *SurfaceRegistry) ToggleAllVisibility() bool {
	r.globalVisible = !r.globalVisible
	r.globalApplied = true
	for _, id := range r.order {
		rec := r.records[id]
		rec.Visible = !rec.Visible
		r.renderer.SetSurfaceVisible(id, rec.Visible)
	}
	return r.globalVisible
}

// GlobalVisible текущее значение глобального флага
func (r *SurfaceRegistry) GlobalVisible() bool {
	return r.globalVisible
}

// Visible возвращает видимость поверхности и признак ее наличия
func (r *SurfaceRegistry) Visible(id SurfaceID) (visible bool, ok bool) {
	rec, ok := r.records[id]
	if !ok {
		return false, false
	}
	return rec.Visible, true
}

// Len число зарегистрированных поверхностей
func (r *SurfaceRegistry) Len() int {
	return len(r.records)
}

// Snapshot копия записей, отсортированная по ID
func (r *SurfaceRegistry) Snapshot() []SurfaceRecord {
	out := make([]SurfaceRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
