package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/room-scanner/internal/api"
	"github.com/annel0/room-scanner/internal/config"
	"github.com/annel0/room-scanner/internal/display"
	"github.com/annel0/room-scanner/internal/eventbus"
	"github.com/annel0/room-scanner/internal/logging"
	"github.com/annel0/room-scanner/internal/observability"
	"github.com/annel0/room-scanner/internal/protocol"
	"github.com/annel0/room-scanner/internal/room"
	"github.com/annel0/room-scanner/internal/scanfeed"
	"github.com/annel0/room-scanner/internal/simulator"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	configPath := flag.String("config", "", "Путь к YAML конфигурации (или ENV ROOMSCAN_CONFIG)")
	flag.Parse()

	if err := logging.InitDefaultLogger("roomscan"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Error("❌ Ошибка загрузки конфигурации: %v", err)
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}
	level := logging.ParseLevel(cfg.LogLevel)
	logging.SetDefaultLevel(level)
	manager := logging.GetLoggerManager()
	defer manager.CloseAll()
	for _, component := range []string{"engine", "display", "api"} {
		manager.MustGetLogger(component)
		_ = manager.SetLogLevel(component, level, logging.TRACE)
	}

	logging.Info("📐 Запуск сканера комнаты (bus=%s, pose=%s, simulator=%v)",
		cfg.EventBus.Kind, cfg.Tracking.PoseMode, cfg.Simulator.Enabled)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === ТЕЛЕМЕТРИЯ ===
	if cfg.Telemetry.Enabled {
		shutdown, err := observability.InitTelemetry(ctx, cfg.Telemetry.ServiceName)
		if err != nil {
			logging.Warn("⚠️ Трассировка отключена: %v", err)
		} else {
			defer func() {
				sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer scancel()
				if err := shutdown(sctx); err != nil {
					logging.Warn("⚠️ Ошибка остановки трассировки: %v", err)
				}
			}()
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// === ШИНА СОБЫТИЙ ===
	bus, err := newEventBus(cfg.EventBus)
	if err != nil {
		logging.Error("❌ Ошибка создания шины событий: %v", err)
		log.Fatalf("❌ Ошибка создания шины событий: %v", err)
	}
	defer bus.Close()

	busMetrics := eventbus.NewMetricsExporter(bus, registry)
	busMetrics.Start()
	defer busMetrics.Stop()

	if cfg.LogLevel == "debug" || cfg.LogLevel == "trace" {
		if sub, err := eventbus.StartLoggingListener(ctx, bus); err == nil {
			defer sub.Unsubscribe()
		}
	}

	codec, err := protocol.NewBatchCodec(cfg.EventBus.Compress)
	if err != nil {
		log.Fatalf("❌ Ошибка создания кодека батчей: %v", err)
	}
	defer codec.Close()

	// === ДИСПЛЕЙ ===
	memory := display.NewMemorySink()
	sinks := []display.Sink{display.NewLogSink(logging.GetDisplayLogger()), memory}
	if cfg.Display.RedisAddr != "" {
		redisSink, err := display.NewRedisSink(ctx, &display.RedisConfig{
			Addr:      cfg.Display.RedisAddr,
			Password:  cfg.Display.RedisPassword,
			DB:        cfg.Display.RedisDB,
			KeyPrefix: cfg.Display.KeyPrefix,
			TTL:       time.Duration(cfg.Display.TTLSeconds) * time.Second,
		})
		if err != nil {
			logging.Warn("⚠️ Redis дисплей недоступен, используется только лог: %v", err)
		} else {
			defer redisSink.Close()
			sinks = append(sinks, redisSink)
		}
	}

	// === ИСТОЧНИКИ ===
	feed, err := scanfeed.NewBusFeed(bus, codec, "room-engine")
	if err != nil {
		log.Fatalf("❌ Ошибка создания источника батчей: %v", err)
	}
	poses, err := scanfeed.NewPoseTracker(ctx, bus)
	if err != nil {
		log.Fatalf("❌ Ошибка подписки на позу наблюдателя: %v", err)
	}
	defer poses.Close()

	poseMode, err := room.ParsePoseMode(cfg.Tracking.PoseMode)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	engineLogger := logging.GetEngineLogger()
	engine := room.NewEngine(room.Options{
		Feed:       feed,
		Display:    display.NewMultiSink(sinks...),
		Renderer:   logRenderer(engineLogger),
		PoseSource: poses,
		Events:     bus,
		Metrics:    room.NewMetrics(registry),
		Logger:     engineLogger,

		PoseMode:          poseMode,
		StopFeedOnConfirm: cfg.Tracking.StopFeedOnConfirm,
		HideNewSurfaces:   cfg.Tracking.HideNewSurfaces,
	})
	if err := engine.Start(ctx); err != nil {
		// Движок неактивен, но процесс продолжает работу: /health вернет 503
		logging.Error("❌ Движок комнаты не запущен: %v", err)
	}
	defer engine.Stop()

	if cfg.Simulator.Enabled {
		if err := startSimulator(ctx, cfg.Simulator, cfg.Tracking.TickInterval(), bus, codec, engine.SessionID()); err != nil {
			logging.Error("❌ Ошибка запуска симулятора: %v", err)
		}
	}

	go tickLoop(ctx, engine, cfg.Tracking.TickInterval())

	// === REST API ===
	restServer := api.NewRestServer(api.Config{
		Addr:       fmt.Sprintf(":%d", cfg.Server.GetRESTPort()),
		Controller: engine,
		Display:    memory,
		Registry:   registry,
		Logger:     logging.GetAPILogger(),
	})
	if err := restServer.Start(); err != nil {
		log.Fatalf("❌ Ошибка запуска REST API: %v", err)
	}

	logging.Info("✅ Все сервисы запущены (session=%s)", engine.SessionID())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logging.Info("📡 Получен сигнал %v, завершение работы...", sig)

	// === GRACEFUL SHUTDOWN ===
	if err := restServer.Stop(context.Background()); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}
	cancel()
	logging.Info("👋 Сканер комнаты остановлен")
}

func newEventBus(cfg config.EventBusConfig) (eventbus.EventBus, error) {
	switch cfg.Kind {
	case "jetstream":
		js, err := eventbus.NewJetStreamBus(cfg.URL, cfg.Stream, cfg.RetentionDuration())
		if err != nil {
			return nil, err
		}
		return js, nil
	default:
		return eventbus.NewMemoryBus(cfg.Buffer), nil
	}
}

// logRenderer выводит команды видимости в лог вместо сцены
func logRenderer(logger *logging.Logger) room.Renderer {
	return room.RendererFunc(func(id room.SurfaceID, visible bool) {
		logger.Debug("🎨 Поверхность %s: visible=%v", id, visible)
	})
}

// startSimulator запускает синтетический сканер и наблюдателя,
// публикующих батчи и позу в шину.
func startSimulator(ctx context.Context, cfg config.SimulatorConfig, tick time.Duration,
	bus eventbus.EventBus, codec *protocol.BatchCodec, session string) error {
	shape := simulator.RoomShape{Width: cfg.Width, Height: cfg.Height, Depth: cfg.Depth}

	scfg := simulator.DefaultScannerConfig()
	scfg.Room = shape
	scfg.Seed = cfg.Seed
	scfg.Interval = time.Duration(cfg.IntervalMs) * time.Millisecond
	scfg.BatchesPerEvent = cfg.BatchesPerEvent
	scfg.PointsPerBatch = cfg.PointsPerBatch

	pub := scanfeed.NewPublisher(bus, codec, "scanner-sim", session)
	scanner := simulator.NewScanner(scfg, pub)
	if _, err := pub.OnStop(ctx, scanner.RequestStop); err != nil {
		return fmt.Errorf("subscribe scan.stop: %w", err)
	}

	go func() {
		if err := scanner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logging.Warn("⚠️ Симулятор сканера завершился: %v", err)
		}
	}()

	observer := simulator.NewObserver(shape, cfg.Seed, tick.Seconds())
	go func() {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pose, _ := observer.CurrentPose(ctx)
				if err := scanfeed.PublishPose(ctx, bus, "observer-sim", pose); err != nil && !errors.Is(err, eventbus.ErrBusClosed) {
					logging.Debug("Поза наблюдателя не опубликована: %v", err)
				}
			}
		}
	}()

	logging.Info("🧪 Симулятор запущен: комната %.1f×%.1f×%.1f м, seed=%d", cfg.Width, cfg.Height, cfg.Depth, cfg.Seed)
	return nil
}

// tickLoop периодически обновляет позу наблюдателя на дисплее
func tickLoop(ctx context.Context, engine *room.Engine, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := engine.Tick(ctx); err != nil && !errors.Is(err, scanfeed.ErrNoPose) {
				logging.Warn("⚠️ Ошибка обновления позы: %v", err)
			}
		}
	}
}
