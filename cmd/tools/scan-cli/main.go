package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/annel0/room-scanner/internal/eventbus"
	"github.com/annel0/room-scanner/internal/protocol"
	"github.com/annel0/room-scanner/internal/room"
	"github.com/annel0/room-scanner/internal/scanfeed"
	"github.com/annel0/room-scanner/internal/simulator"
)

const (
	defaultNatsURL = "nats://127.0.0.1:4222"
	timeFormat     = "15:04:05.000"
)

func main() {
	var (
		natsURL   = flag.String("nats", defaultNatsURL, "NATS server URL")
		stream    = flag.String("stream", "ROOMSCAN", "JetStream stream name")
		command   = flag.String("cmd", "tail", "Command: tail, publish")
		types     = flag.String("types", "", "Event types filter (comma-separated)")
		compress  = flag.Bool("zstd", false, "Compress batch payloads")
		roomDims  = flag.String("room", "4x2.5x3", "Simulated room WxHxD in meters")
		seed      = flag.Int64("seed", 42, "Simulator seed")
		interval  = flag.Duration("interval", 200*time.Millisecond, "Publish interval")
		count     = flag.Int("count", 0, "Number of events to publish (0 = until scan.stop)")
		batchSize = flag.Int("points", 64, "Points per batch")
	)
	flag.Parse()

	bus, err := eventbus.NewJetStreamBus(*natsURL, *stream, time.Hour)
	if err != nil {
		log.Fatalf("❌ Failed to connect to NATS: %v", err)
	}
	defer bus.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	codec, err := protocol.NewBatchCodec(*compress)
	if err != nil {
		log.Fatalf("❌ Failed to create codec: %v", err)
	}
	defer codec.Close()

	switch *command {
	case "tail":
		if err := tailEvents(ctx, bus, codec, parseStringList(*types)); err != nil {
			log.Fatalf("❌ Tail failed: %v", err)
		}

	case "publish":
		shape, err := parseRoom(*roomDims)
		if err != nil {
			log.Fatalf("❌ Invalid room: %v", err)
		}
		cfg := simulator.DefaultScannerConfig()
		cfg.Room = shape
		cfg.Seed = *seed
		cfg.Interval = *interval
		cfg.PointsPerBatch = *batchSize
		if err := publishScan(ctx, bus, codec, cfg, *count); err != nil {
			log.Fatalf("❌ Publish failed: %v", err)
		}

	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: tail, publish")
		os.Exit(1)
	}
}

// tailEvents выводит события шины до Ctrl+C
func tailEvents(ctx context.Context, bus eventbus.EventBus, codec *protocol.BatchCodec, types []string) error {
	fmt.Printf("🎬 Tailing events (types: %v)\n", types)

	sub, err := bus.Subscribe(ctx, eventbus.Filter{Types: types}, func(_ context.Context, ev *eventbus.Envelope) {
		fmt.Printf("[%s] %-20s %-14s %s\n", ev.Timestamp.Format(timeFormat), ev.EventType, ev.Source, describe(codec, ev))
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	<-ctx.Done()
	return nil
}

// describe краткое описание полезной нагрузки
func describe(codec *protocol.BatchCodec, ev *eventbus.Envelope) string {
	switch ev.EventType {
	case eventbus.EventScanBatches:
		batches, err := codec.Decode(ev.Payload)
		if err != nil {
			return fmt.Sprintf("malformed: %v", err)
		}
		points := 0
		for _, b := range batches {
			points += len(b.Points)
		}
		return fmt.Sprintf("%d batches, %d points", len(batches), points)
	case eventbus.EventObserverPose:
		var p room.Pose
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return fmt.Sprintf("malformed: %v", err)
		}
		return p.Position.String()
	default:
		return string(ev.Payload)
	}
}

// publishScan публикует синтетические батчи, пока не придет scan.stop
func publishScan(ctx context.Context, bus eventbus.EventBus, codec *protocol.BatchCodec, cfg simulator.ScannerConfig, count int) error {
	pub := scanfeed.NewPublisher(bus, codec, "scan-cli", "")
	scanner := simulator.NewScanner(cfg, pub)
	sub, err := pub.OnStop(ctx, scanner.RequestStop)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	fmt.Printf("📡 Publishing room %.1fx%.1fx%.1f (seed %d)\n", cfg.Room.Width, cfg.Room.Height, cfg.Room.Depth, cfg.Seed)

	if count <= 0 {
		if err := scanner.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for i := 0; i < count && !scanner.Stopped(); i++ {
		if err := scanner.Step(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	fmt.Printf("✅ Published %d events\n", count)
	return nil
}

// parseRoom разбирает "WxHxD"
func parseRoom(s string) (simulator.RoomShape, error) {
	var shape simulator.RoomShape
	if _, err := fmt.Sscanf(strings.ReplaceAll(s, "x", " "), "%g %g %g", &shape.Width, &shape.Height, &shape.Depth); err != nil {
		return shape, fmt.Errorf("expected WxHxD, got %q: %w", s, err)
	}
	if shape.Width <= 0 || shape.Height <= 0 || shape.Depth <= 0 {
		return shape, fmt.Errorf("room dimensions must be positive: %q", s)
	}
	return shape, nil
}

func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
