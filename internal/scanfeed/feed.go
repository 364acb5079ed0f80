// Package scanfeed доставляет батчи сканирования через eventbus:
// сканер публикует их Publisher'ом, движок получает через BusFeed.
package scanfeed

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/annel0/room-scanner/internal/eventbus"
	"github.com/annel0/room-scanner/internal/logging"
	"github.com/annel0/room-scanner/internal/protocol"
	"github.com/annel0/room-scanner/internal/room"
)

// Приоритет батчей: >=5, чтобы memory bus не дропал их при заполненном буфере.
const batchPriority = 5

// BusFeed реализует room.Feed поверх шины событий
type BusFeed struct {
	bus      eventbus.EventBus
	codec    *protocol.BatchCodec
	source   string
	rejected uint64
}

// NewBusFeed создает источник, читающий scan.batches из шины.
// source — имя сервиса в событии scan.stop.
func NewBusFeed(bus eventbus.EventBus, codec *protocol.BatchCodec, source string) (*BusFeed, error) {
	if bus == nil {
		return nil, errors.New("scanfeed: nil event bus")
	}
	if codec == nil {
		return nil, errors.New("scanfeed: nil codec")
	}
	return &BusFeed{bus: bus, codec: codec, source: source}, nil
}

// Subscribe подписывает handler на scan.batches. Некорректные сообщения
// логируются и пропускаются, поток событий не прерывается.
func (f *BusFeed) Subscribe(ctx context.Context, h room.BatchHandler) (room.Subscription, error) {
	filter := eventbus.Filter{Types: []string{eventbus.EventScanBatches}}
	sub, err := f.bus.Subscribe(ctx, filter, func(ctx context.Context, ev *eventbus.Envelope) {
		batches, err := f.codec.Decode(ev.Payload)
		if err != nil {
			atomic.AddUint64(&f.rejected, 1)
			logging.Warn("⚠️ Отброшено сообщение %s от %s: %v", ev.ID, ev.Source, err)
			return
		}
		h(ctx, batches)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", eventbus.EventScanBatches, err)
	}
	return sub, nil
}

// RequestStop публикует scan.stop. Сканер может проигнорировать запрос.
func (f *BusFeed) RequestStop(ctx context.Context) error {
	ev := eventbus.NewEnvelope(f.source, eventbus.EventScanStop, batchPriority, nil)
	return f.bus.Publish(ctx, ev)
}

// Rejected число отброшенных некорректных сообщений
func (f *BusFeed) Rejected() uint64 {
	return atomic.LoadUint64(&f.rejected)
}

// Publisher публикует батчи сканера в шину
type Publisher struct {
	bus     eventbus.EventBus
	codec   *protocol.BatchCodec
	source  string
	session string
}

// NewPublisher создает издателя батчей
func NewPublisher(bus eventbus.EventBus, codec *protocol.BatchCodec, source, session string) *Publisher {
	return &Publisher{bus: bus, codec: codec, source: source, session: session}
}

// Publish кодирует и публикует одно событие "added"
func (p *Publisher) Publish(ctx context.Context, batches []room.ScanBatch) error {
	payload, err := p.codec.Encode(batches)
	if err != nil {
		return fmt.Errorf("encode batches: %w", err)
	}
	ev := eventbus.NewEnvelope(p.source, eventbus.EventScanBatches, batchPriority, payload)
	ev.CorrelationID = p.session
	return p.bus.Publish(ctx, ev)
}

// OnStop вызывает fn при получении scan.stop
func (p *Publisher) OnStop(ctx context.Context, fn func()) (eventbus.Subscription, error) {
	filter := eventbus.Filter{Types: []string{eventbus.EventScanStop}}
	return p.bus.Subscribe(ctx, filter, func(context.Context, *eventbus.Envelope) { fn() })
}
