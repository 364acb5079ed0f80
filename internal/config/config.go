package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации приложения.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Display   DisplayConfig   `yaml:"display"`
	Server    ServerConfig    `yaml:"server"`
	Simulator SimulatorConfig `yaml:"simulator"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// EventBusConfig транспорт батчей сканирования
type EventBusConfig struct {
	Kind      string `yaml:"kind"` // memory | jetstream
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_minutes"`
	Buffer    int    `yaml:"buffer"`
	Compress  bool   `yaml:"compress"`
}

// TrackingConfig поведение движка комнаты
type TrackingConfig struct {
	PoseMode          string `yaml:"pose_mode"` // absolute | relative
	TickMs            int    `yaml:"tick_ms"`
	StopFeedOnConfirm bool   `yaml:"stop_feed_on_confirm"`
	HideNewSurfaces   bool   `yaml:"hide_new_surfaces"`
}

// DisplayConfig выходные каналы. Пустой RedisAddr — только лог и память.
type DisplayConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	KeyPrefix     string `yaml:"key_prefix"`
	TTLSeconds    int    `yaml:"ttl_seconds"`
}

type ServerConfig struct {
	RESTPort int `yaml:"rest_port"`
}

// SimulatorConfig встроенный синтетический сканер
type SimulatorConfig struct {
	Enabled         bool    `yaml:"enabled"`
	Seed            int64   `yaml:"seed"`
	Width           float64 `yaml:"width"`
	Height          float64 `yaml:"height"`
	Depth           float64 `yaml:"depth"`
	IntervalMs      int     `yaml:"interval_ms"`
	BatchesPerEvent int     `yaml:"batches_per_event"`
	PointsPerBatch  int     `yaml:"points_per_batch"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// Default возвращает конфигурацию по умолчанию: in-memory шина,
// встроенный симулятор, абсолютная поза.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		EventBus: EventBusConfig{
			Kind:      "memory",
			URL:       "nats://127.0.0.1:4222",
			Stream:    "ROOMSCAN",
			Retention: 60,
			Buffer:    256,
		},
		Tracking: TrackingConfig{
			PoseMode:          "absolute",
			TickMs:            100,
			StopFeedOnConfirm: true,
		},
		Display: DisplayConfig{
			KeyPrefix:  "roomscan:display:",
			TTLSeconds: 600,
		},
		Simulator: SimulatorConfig{
			Enabled:         true,
			Seed:            42,
			Width:           4,
			Height:          2.5,
			Depth:           3,
			IntervalMs:      200,
			BatchesPerEvent: 2,
			PointsPerBatch:  64,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "room-scanner",
		},
	}
}

// Validate проверяет значения конфигурации
func (c *Config) Validate() error {
	switch c.EventBus.Kind {
	case "memory", "jetstream":
	default:
		return fmt.Errorf("eventbus.kind: unknown value %q", c.EventBus.Kind)
	}
	switch c.Tracking.PoseMode {
	case "", "absolute", "relative":
	default:
		return fmt.Errorf("tracking.pose_mode: unknown value %q", c.Tracking.PoseMode)
	}
	if c.Tracking.TickMs <= 0 {
		return fmt.Errorf("tracking.tick_ms must be positive, got %d", c.Tracking.TickMs)
	}
	if c.Simulator.Enabled {
		if c.Simulator.Width <= 0 || c.Simulator.Height <= 0 || c.Simulator.Depth <= 0 {
			return fmt.Errorf("simulator: room dimensions must be positive")
		}
		if c.Simulator.IntervalMs <= 0 {
			return fmt.Errorf("simulator.interval_ms must be positive, got %d", c.Simulator.IntervalMs)
		}
		if c.Simulator.PointsPerBatch < 0 {
			return fmt.Errorf("simulator.points_per_batch must not be negative, got %d", c.Simulator.PointsPerBatch)
		}
		if c.Simulator.BatchesPerEvent < 0 {
			return fmt.Errorf("simulator.batches_per_event must not be negative, got %d", c.Simulator.BatchesPerEvent)
		}
	}
	return nil
}

// TickInterval период опроса позы наблюдателя
func (t TrackingConfig) TickInterval() time.Duration {
	return time.Duration(t.TickMs) * time.Millisecond
}

// RetentionDuration время хранения событий в JetStream
func (e EventBusConfig) RetentionDuration() time.Duration {
	return time.Duration(e.Retention) * time.Minute
}

// GetRESTPort возвращает REST порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "ROOMSCAN_REST_PORT", 8088)
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", пытается прочитать из ENV ROOMSCAN_CONFIG; без файла
// возвращает Default().
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("ROOMSCAN_CONFIG")
		if path == "" {
			return cfg, nil // конфиг не задан — использовать дефолты
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
