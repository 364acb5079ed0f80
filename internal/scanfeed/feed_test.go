package scanfeed

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/annel0/room-scanner/internal/eventbus"
	"github.com/annel0/room-scanner/internal/protocol"
	"github.com/annel0/room-scanner/internal/room"
	"github.com/annel0/room-scanner/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBusAndCodec(t *testing.T) (eventbus.EventBus, *protocol.BatchCodec) {
	t.Helper()
	bus := eventbus.NewMemoryBus(32)
	codec, err := protocol.NewBatchCodec(true)
	require.NoError(t, err)
	t.Cleanup(func() {
		bus.Close()
		codec.Close()
	})
	return bus, codec
}

func TestBusFeedDeliversBatches(t *testing.T) {
	bus, codec := newBusAndCodec(t)
	ctx := context.Background()

	feed, err := NewBusFeed(bus, codec, "engine")
	require.NoError(t, err)

	var mu sync.Mutex
	var got [][]room.ScanBatch
	sub, err := feed.Subscribe(ctx, func(_ context.Context, batches []room.ScanBatch) {
		mu.Lock()
		got = append(got, batches)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	pub := NewPublisher(bus, codec, "scanner", "session-1")
	require.NoError(t, pub.Publish(ctx, []room.ScanBatch{
		{SurfaceID: "a", Transform: room.IdentityTransform(), Points: []room.Point3{vec.New(1, 2, 3)}},
		{SurfaceID: "b", Transform: room.IdentityTransform()},
	}))
	require.NoError(t, pub.Publish(ctx, nil))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got[0], 2)
	assert.Equal(t, room.SurfaceID("a"), got[0][0].SurfaceID)
	assert.Equal(t, vec.New(1, 2, 3), got[0][0].Points[0])
	assert.Empty(t, got[1])
}

func TestBusFeedSkipsMalformed(t *testing.T) {
	bus, codec := newBusAndCodec(t)
	ctx := context.Background()

	feed, err := NewBusFeed(bus, codec, "engine")
	require.NoError(t, err)

	var calls int32
	_, err = feed.Subscribe(ctx, func(context.Context, []room.ScanBatch) { atomic.AddInt32(&calls, 1) })
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, eventbus.NewEnvelope("junk", eventbus.EventScanBatches, 5, []byte("nope"))))
	require.NoError(t, NewPublisher(bus, codec, "scanner", "").Publish(ctx, nil))

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), feed.Rejected())
}

func TestRequestStopReachesPublisher(t *testing.T) {
	bus, codec := newBusAndCodec(t)
	ctx := context.Background()

	feed, err := NewBusFeed(bus, codec, "engine")
	require.NoError(t, err)

	stopped := make(chan struct{}, 1)
	sub, err := NewPublisher(bus, codec, "scanner", "").OnStop(ctx, func() { stopped <- struct{}{} })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, feed.RequestStop(ctx))
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("scan.stop not delivered")
	}
}

func TestNewBusFeedValidation(t *testing.T) {
	_, err := NewBusFeed(nil, nil, "x")
	assert.Error(t, err)

	bus := eventbus.NewMemoryBus(1)
	defer bus.Close()
	_, err = NewBusFeed(bus, nil, "x")
	assert.Error(t, err)
}

func TestPoseTracker(t *testing.T) {
	bus, _ := newBusAndCodec(t)
	ctx := context.Background()

	pt, err := NewPoseTracker(ctx, bus)
	require.NoError(t, err)
	defer pt.Close()

	_, err = pt.CurrentPose(ctx)
	assert.ErrorIs(t, err, ErrNoPose)

	want := room.Pose{Position: vec.New(1, 1.6, -0.5), Rotation: vec.New(0, 30, 0)}
	require.NoError(t, PublishPose(ctx, bus, "observer", want))
	require.NoError(t, bus.Publish(ctx, eventbus.NewEnvelope("junk", eventbus.EventObserverPose, 5, []byte("{"))))

	require.Eventually(t, func() bool {
		p, err := pt.CurrentPose(ctx)
		return err == nil && p == want
	}, time.Second, 5*time.Millisecond)

	// Некорректная поза не затирает последнюю
	time.Sleep(20 * time.Millisecond)
	p, err := pt.CurrentPose(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, p)
}
