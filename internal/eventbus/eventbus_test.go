package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBusOrderedDelivery(t *testing.T) {
	bus := NewMemoryBus(64)
	defer bus.Close()

	var mu sync.Mutex
	var got []string
	_, err := bus.Subscribe(context.Background(), Filter{Types: []string{EventScanBatches}},
		func(_ context.Context, ev *Envelope) {
			mu.Lock()
			got = append(got, string(ev.Payload))
			mu.Unlock()
		})
	require.NoError(t, err)

	ctx := context.Background()
	for _, p := range []string{"1", "2", "3"} {
		require.NoError(t, bus.Publish(ctx, NewEnvelope("test", EventScanBatches, 5, []byte(p))))
	}
	require.NoError(t, bus.Publish(ctx, NewEnvelope("test", EventScanStop, 5, nil)))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"1", "2", "3"}, got)
	mu.Unlock()

	require.Eventually(t, func() bool { return bus.Metrics().Published == 4 }, time.Second, 5*time.Millisecond)
}

func TestMemoryBusSourceFilterAndUnsubscribe(t *testing.T) {
	bus := NewMemoryBus(8)
	defer bus.Close()

	received := make(chan *Envelope, 8)
	sub, err := bus.Subscribe(context.Background(), Filter{Sources: []string{"scanner"}},
		func(_ context.Context, ev *Envelope) { received <- ev })
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, NewEnvelope("other", EventScanStop, 5, nil)))
	require.NoError(t, bus.Publish(ctx, NewEnvelope("scanner", EventScanStop, 5, nil)))

	select {
	case ev := <-received:
		assert.Equal(t, "scanner", ev.Source)
		assert.NotEmpty(t, ev.ID)
		assert.Equal(t, 1, ev.Version)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	sub.Unsubscribe()
	require.NoError(t, bus.Publish(ctx, NewEnvelope("scanner", EventScanStop, 5, nil)))
	select {
	case <-received:
		t.Fatal("delivered after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

// TestMemoryBusDropsLowPriority при заполненном буфере низкий приоритет отбрасывается
func TestMemoryBusDropsLowPriority(t *testing.T) {
	bus := NewMemoryBus(1)
	defer bus.Close()

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	_, err := bus.Subscribe(context.Background(), Filter{}, func(context.Context, *Envelope) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, NewEnvelope("t", EventObserverPose, 5, nil)))
	<-entered

	require.NoError(t, bus.Publish(ctx, NewEnvelope("t", EventObserverPose, 5, nil)))
	require.NoError(t, bus.Publish(ctx, NewEnvelope("t", EventObserverPose, 1, nil)))
	assert.Equal(t, uint64(1), bus.Metrics().Dropped)
	assert.Equal(t, 1, bus.Metrics().InFlight)

	// Высокий приоритет ждет места, пока не отменен контекст
	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bus.Publish(cctx, NewEnvelope("t", EventObserverPose, 9, nil)), context.DeadlineExceeded)

	close(release)
}

func TestMemoryBusClose(t *testing.T) {
	bus := NewMemoryBus(4)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	err := bus.Publish(context.Background(), NewEnvelope("t", EventScanStop, 5, nil))
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestMetricsExporterCollect(t *testing.T) {
	bus := NewMemoryBus(8)
	defer bus.Close()

	reg := prometheus.NewRegistry()
	me := NewMetricsExporter(bus, reg)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, NewEnvelope("t", EventScanStop, 5, nil)))
	require.NoError(t, bus.Publish(ctx, NewEnvelope("t", EventScanStop, 5, nil)))

	prev := me.Collect(Stats{})
	assert.Equal(t, float64(2), testutil.ToFloat64(me.published))

	// Повторный сбор без новых событий не увеличивает счетчик
	me.Collect(prev)
	assert.Equal(t, float64(2), testutil.ToFloat64(me.published))

	me.Start()
	me.Stop()
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "roomscan.scan.batches", Subject(EventScanBatches))
}

func TestLoggingListener(t *testing.T) {
	bus := NewMemoryBus(4)
	defer bus.Close()

	sub, err := StartLoggingListener(context.Background(), bus)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), NewEnvelope("t", EventRoomConfirmed, 5, []byte("{}"))))
	require.Eventually(t, func() bool { return bus.Metrics().Consumed == 1 }, time.Second, 5*time.Millisecond)
	sub.Unsubscribe()
}

func TestJetStreamBusUnavailable(t *testing.T) {
	_, err := NewJetStreamBus("nats://127.0.0.1:1", "", time.Minute)
	assert.Error(t, err)
}
