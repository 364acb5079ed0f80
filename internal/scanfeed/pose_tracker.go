package scanfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/annel0/room-scanner/internal/eventbus"
	"github.com/annel0/room-scanner/internal/logging"
	"github.com/annel0/room-scanner/internal/room"
)

// ErrNoPose поза наблюдателя еще не получена
var ErrNoPose = errors.New("no observer pose received")

// PoseTracker хранит последнюю позу из событий observer.pose
// и отдает ее движку как room.PoseSource.
type PoseTracker struct {
	mu   sync.RWMutex
	pose room.Pose
	seen bool
	sub  eventbus.Subscription
}

// NewPoseTracker подписывается на observer.pose
func NewPoseTracker(ctx context.Context, bus eventbus.EventBus) (*PoseTracker, error) {
	pt := &PoseTracker{}
	filter := eventbus.Filter{Types: []string{eventbus.EventObserverPose}}
	sub, err := bus.Subscribe(ctx, filter, func(_ context.Context, ev *eventbus.Envelope) {
		var p room.Pose
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			logging.Warn("⚠️ Некорректная поза от %s: %v", ev.Source, err)
			return
		}
		pt.Update(p)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", eventbus.EventObserverPose, err)
	}
	pt.sub = sub
	return pt, nil
}

// Update сохраняет новую позу
func (pt *PoseTracker) Update(p room.Pose) {
	pt.mu.Lock()
	pt.pose, pt.seen = p, true
	pt.mu.Unlock()
}

// CurrentPose реализует room.PoseSource
func (pt *PoseTracker) CurrentPose(context.Context) (room.Pose, error) {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	if !pt.seen {
		return room.Pose{}, ErrNoPose
	}
	return pt.pose, nil
}

// Close отписывается от шины
func (pt *PoseTracker) Close() {
	if pt.sub != nil {
		pt.sub.Unsubscribe()
	}
}

// PublishPose публикует позу наблюдателя (сторона устройства или симулятора)
func PublishPose(ctx context.Context, bus eventbus.EventBus, source string, p room.Pose) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return bus.Publish(ctx, eventbus.NewEnvelope(source, eventbus.EventObserverPose, 1, data))
}
