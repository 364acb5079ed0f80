package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/annel0/room-scanner/internal/display"
	"github.com/annel0/room-scanner/internal/eventbus"
	"github.com/annel0/room-scanner/internal/logging"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Options зависимости и настройки движка
type Options struct {
	Feed       Feed              // обязательно
	Display    display.Sink      // обязательно
	Renderer   Renderer          // nil — команды видимости никуда не уходят
	PoseSource PoseSource        // nil — тики игнорируются
	Events     eventbus.EventBus // nil — события не публикуются
	Metrics    *Metrics
	Logger     *logging.Logger

	PoseMode PoseMode
	// StopFeedOnConfirm просит источник прекратить выдачу батчей после подтверждения
	StopFeedOnConfirm bool
	// HideNewSurfaces начальная видимость новых поверхностей до первой глобальной команды
	HideNewSurfaces bool
	// Source имя источника в публикуемых событиях
	Source string
}

// Snapshot состояние движка для API и диагностики
type Snapshot struct {
	SessionID       string          `json:"session_id"`
	State           string          `json:"state"`
	Inert           bool            `json:"inert"`
	Bounds          *Bounds         `json:"bounds"`
	Center          *Point3         `json:"center"`
	Size            *Point3         `json:"size"`
	PointsIngested  uint64          `json:"points_ingested"`
	PointsDiscarded uint64          `json:"points_discarded"`
	Surfaces        []SurfaceRecord `json:"surfaces"`
	GlobalVisible   bool            `json:"global_visible"`
	PoseMode        PoseMode        `json:"pose_mode"`
}

// Engine связывает аккумулятор границ, реестр поверхностей, автомат состояния
// и репортер позы. Все мутации выполняются под одним мьютексом, поэтому
// Confirm атомарен относительно приема батча: батч учитывается целиком или никак.
type Engine struct {
	mu sync.Mutex

	opts     Options
	logger   *logging.Logger
	tracer   trace.Tracer
	metrics  *Metrics
	session  string
	state    *StateMachine
	bounds   *BoundsAccumulator
	registry *SurfaceRegistry
	reporter *PoseReporter

	sub       Subscription
	started   bool
	inert     bool
	discarded uint64
	// lastText последний текст, назначенный каналу; пишется под mu
	lastText map[display.Channel]string

	// displayMu упорядочивает запись в sink, не удерживая mu
	displayMu sync.Mutex
}

// displayWrite отложенная запись в канал дисплея
type displayWrite struct {
	ch   display.Channel
	text string
}

// NewEngine создает движок в состоянии Scanning. Проверка зависимостей
// выполняется в Start.
func NewEngine(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	if opts.Source == "" {
		opts.Source = "room-engine"
	}

	e := &Engine{
		opts:     opts,
		logger:   logger,
		tracer:   otel.Tracer("github.com/annel0/room-scanner/internal/room"),
		metrics:  opts.Metrics,
		session:  uuid.NewString(),
		state:    NewStateMachine(),
		bounds:   NewBoundsAccumulator(),
		registry: NewSurfaceRegistry(opts.Renderer, !opts.HideNewSurfaces),
		reporter: NewPoseReporter(opts.PoseMode),
		lastText: make(map[display.Channel]string),
	}
	e.state.OnConfirm(e.freeze)
	return e
}

// SessionID идентификатор сессии сканирования
func (e *Engine) SessionID() string {
	return e.session
}

// Start подписывается на источник батчей. При отсутствии обязательной
// зависимости движок сообщает об этом один раз и становится неактивным
// до конца сессии; процесс-хост при этом продолжает работу.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.inert {
		e.mu.Unlock()
		return ErrMissingCollaborator
	}
	if e.started {
		e.mu.Unlock()
		return nil
	}

	var missing []string
	if e.opts.Feed == nil {
		missing = append(missing, "scan feed")
	}
	if e.opts.Display == nil {
		missing = append(missing, "display sink")
	}
	if len(missing) > 0 {
		defer e.mu.Unlock()
		return e.disable(fmt.Errorf("%w: %v", ErrMissingCollaborator, missing))
	}
	e.started = true
	e.mu.Unlock()

	// Подписка вне мьютекса: источник может доставить батч сразу.
	sub, err := e.opts.Feed.Subscribe(ctx, e.HandleBatches)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.started = false
		return e.disable(fmt.Errorf("%w: subscribe to scan feed: %v", ErrMissingCollaborator, err))
	}

	e.sub = sub
	e.metrics.setState(e.state.State())
	e.logger.Info("📡 Сканирование комнаты начато (session=%s, pose_mode=%s)", e.session, e.reporter.Mode())
	return nil
}

// disable переводит движок в неактивное состояние. Вызывается под мьютексом.
func (e *Engine) disable(err error) error {
	e.inert = true
	e.logger.Error("❌ Движок комнаты отключен: %v", err)
	return err
}

// Stop освобождает подписку на источник. Повторный вызов безопасен.
func (e *Engine) Stop() {
	e.mu.Lock()
	sub := e.sub
	e.sub = nil
	e.started = false
	e.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
		e.logger.Info("🛑 Подписка на сканер освобождена (session=%s)", e.session)
	}
}

// Inert true, если движок отключен из-за отсутствующей зависимости
func (e *Engine) Inert() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inert
}

// HandleBatches принимает событие "added". Каждая поверхность регистрируется
// в реестре всегда; точки попадают в границы только в состоянии Scanning.
func (e *Engine) HandleBatches(ctx context.Context, batches []ScanBatch) {
	if len(batches) == 0 {
		return
	}

	ctx, span := e.tracer.Start(ctx, "room.HandleBatches",
		trace.WithAttributes(attribute.Int("batches", len(batches))))
	defer span.End()

	e.mu.Lock()
	if e.inert {
		e.mu.Unlock()
		return
	}

	scanning := e.state.Scanning()
	for _, b := range batches {
		if err := e.registry.Register(b.SurfaceID, !e.opts.HideNewSurfaces); err != nil {
			if errors.Is(err, ErrDuplicateSurface) {
				e.metrics.observeDuplicate()
			}
			e.logger.Warn("⚠️ %v", err)
		}

		if !scanning {
			e.discarded += uint64(len(b.Points))
			e.metrics.observeBatch(0, len(b.Points))
			continue
		}

		ingested := 0
		ToWorldAll(b.Points, b.Transform, func(p Point3) {
			if e.bounds.Extend(p) {
				ingested++
			}
		})
		rejected := len(b.Points) - ingested
		e.discarded += uint64(rejected)
		e.metrics.observeBatch(ingested, rejected)
		logging.LogBatch(string(b.SurfaceID), ingested, e.bounds.Count())
	}
	e.metrics.setSurfaces(e.registry.Len())

	var writes []displayWrite
	if scanning {
		writes = e.boundsText()
	}
	e.mu.Unlock()

	e.flushDisplay(ctx, writes)
}

// boundsText размер и центр, изменившиеся с прошлого вывода. Вызывается под мьютексом.
func (e *Engine) boundsText() []displayWrite {
	b, err := e.bounds.CurrentBounds()
	if err != nil {
		return nil
	}
	e.metrics.setVolume(b.Volume())
	var writes []displayWrite
	writes = e.queueDisplay(writes, display.ChannelRoomSize, FormatRoomSize(b))
	writes = e.queueDisplay(writes, display.ChannelRoomCenter, FormatRoomCenter(b))
	return writes
}

// queueDisplay добавляет запись, только если текст канала изменился.
// Вызывается под мьютексом.
func (e *Engine) queueDisplay(writes []displayWrite, ch display.Channel, text string) []displayWrite {
	if e.lastText[ch] == text {
		return writes
	}
	e.lastText[ch] = text
	return append(writes, displayWrite{ch: ch, text: text})
}

// flushDisplay пишет отложенные значения в sink вне mu, чтобы медленный
// sink не задерживал прием батчей и Confirm. Устаревший текст пропускается.
// При ошибке канал сбрасывается, и тот же текст будет отправлен повторно.
func (e *Engine) flushDisplay(ctx context.Context, writes []displayWrite) {
	if len(writes) == 0 {
		return
	}
	e.displayMu.Lock()
	defer e.displayMu.Unlock()

	for _, w := range writes {
		e.mu.Lock()
		current := e.lastText[w.ch] == w.text
		e.mu.Unlock()
		if !current {
			continue
		}

		if err := e.opts.Display.Write(ctx, w.ch, w.text); err != nil {
			e.logger.Warn("⚠️ Ошибка вывода в канал %s: %v", w.ch, err)
			e.mu.Lock()
			if e.lastText[w.ch] == w.text {
				delete(e.lastText, w.ch)
			}
			e.mu.Unlock()
		}
	}
}

// freeze хук перехода в Confirmed. Вызывается под мьютексом.
func (e *Engine) freeze(from, to RoomState) {
	center := Point3{}
	if b, err := e.bounds.CurrentBounds(); err == nil {
		center = b.Center()
	} else if e.reporter.Mode() == PoseModeRelative {
		e.logger.Warn("⚠️ Комната подтверждена без точек: относительная поза считается от начала координат")
	}
	e.reporter.Activate(center)
	e.metrics.setState(to)
	e.logger.Info("✅ Комната подтверждена: %s → %s, точек %d", from, to, e.bounds.Count())
}

// Confirm замораживает границы и включает репорт позы. Повторный вызов
// ничего не делает и возвращает false.
func (e *Engine) Confirm(ctx context.Context) bool {
	ctx, span := e.tracer.Start(ctx, "room.Confirm")
	defer span.End()

	e.mu.Lock()
	if e.inert || !e.state.Confirm() {
		e.mu.Unlock()
		return false
	}
	payload := e.confirmedPayload()
	e.mu.Unlock()

	// Побочные эффекты вне мьютекса: источник может синхронно вызвать HandleBatches.
	if e.opts.StopFeedOnConfirm {
		if stopper, ok := e.opts.Feed.(StopRequester); ok {
			if err := stopper.RequestStop(ctx); err != nil {
				e.logger.Warn("⚠️ Не удалось остановить сканер: %v", err)
			}
		}
	}
	e.publishEvent(ctx, eventbus.EventRoomConfirmed, payload)
	return true
}

func (e *Engine) confirmedPayload() []byte {
	body := struct {
		SessionID string  `json:"session_id"`
		Bounds    *Bounds `json:"bounds"`
	}{SessionID: e.session}
	if b, err := e.bounds.CurrentBounds(); err == nil {
		body.Bounds = &b
	}
	data, _ := json.Marshal(body)
	return data
}

// ToggleVisibility инвертирует глобальную видимость поверхностей.
// На состояние сканирования не влияет. Возвращает новый глобальный флаг.
func (e *Engine) ToggleVisibility(ctx context.Context) bool {
	e.mu.Lock()
	if e.inert {
		e.mu.Unlock()
		return false
	}
	visible := e.registry.ToggleAllVisibility()
	e.mu.Unlock()

	e.logger.Info("👁️ Видимость поверхностей: %v", visible)
	e.publishEvent(ctx, eventbus.EventVisibilityToggled, []byte(fmt.Sprintf(`{"visible":%t}`, visible)))
	return visible
}

// SetVisibility выставляет видимость всем поверхностям
func (e *Engine) SetVisibility(ctx context.Context, visible bool) {
	e.mu.Lock()
	if e.inert {
		e.mu.Unlock()
		return
	}
	e.registry.SetAllVisibility(visible)
	e.mu.Unlock()

	e.publishEvent(ctx, eventbus.EventVisibilityToggled, []byte(fmt.Sprintf(`{"visible":%t}`, visible)))
}

func (e *Engine) publishEvent(ctx context.Context, eventType string, payload []byte) {
	if e.opts.Events == nil {
		return
	}
	ev := eventbus.NewEnvelope(e.opts.Source, eventType, 5, payload)
	ev.CorrelationID = e.session
	if err := e.opts.Events.Publish(ctx, ev); err != nil {
		e.logger.Warn("⚠️ Не удалось опубликовать %s: %v", eventType, err)
	}
}

// Tick опрашивает источник позы и выводит позу наблюдателя.
// До подтверждения комнаты ничего не выводит.
func (e *Engine) Tick(ctx context.Context) error {
	e.mu.Lock()
	active := !e.inert && e.reporter.Active()
	e.mu.Unlock()

	if !active || e.opts.PoseSource == nil {
		return nil
	}

	pose, err := e.opts.PoseSource.CurrentPose(ctx)
	if err != nil {
		return fmt.Errorf("pose source: %w", err)
	}

	e.mu.Lock()
	reported, ok := e.reporter.Sample(pose)
	if !ok {
		e.mu.Unlock()
		return nil
	}
	e.metrics.observePose()
	writes := e.queueDisplay(nil, display.ChannelObserverPose, reported.String())
	e.mu.Unlock()

	e.flushDisplay(ctx, writes)
	return nil
}

// State текущее состояние комнаты
func (e *Engine) State() RoomState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.State()
}

// CurrentBounds текущие границы или ErrEmptyBounds
func (e *Engine) CurrentBounds() (Bounds, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bounds.CurrentBounds()
}

// SurfaceVisible видимость поверхности по реестру
func (e *Engine) SurfaceVisible(id SurfaceID) (bool, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Visible(id)
}

// Snapshot возвращает согласованный срез состояния
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Snapshot{
		SessionID:       e.session,
		State:           e.state.State().String(),
		Inert:           e.inert,
		PointsIngested:  e.bounds.Count(),
		PointsDiscarded: e.discarded,
		Surfaces:        e.registry.Snapshot(),
		GlobalVisible:   e.registry.GlobalVisible(),
		PoseMode:        e.reporter.Mode(),
	}
	if b, err := e.bounds.CurrentBounds(); err == nil {
		center, size := b.Center(), b.Size()
		s.Bounds, s.Center, s.Size = &b, &center, &size
	}
	return s
}

// FormatRoomSize текст канала room_size
func FormatRoomSize(b Bounds) string {
	return fmt.Sprintf("Room Size: %s", b.Size())
}

// FormatRoomCenter текст канала room_center
func FormatRoomCenter(b Bounds) string {
	return fmt.Sprintf("Room Center: %s", b.Center())
}
