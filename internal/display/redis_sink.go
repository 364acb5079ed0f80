package display

import (
	"context"
	"fmt"
	"time"

	"github.com/annel0/room-scanner/internal/logging"
	"github.com/go-redis/redis/v8"
)

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr      string        // Адрес Redis сервера
	Password  string        // Пароль (пустой если не требуется)
	DB        int           // Номер базы данных
	KeyPrefix string        // Префикс для ключей
	TTL       time.Duration // Время жизни значений (0 — без TTL)
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "roomscan:display:",
		TTL:       10 * time.Minute,
	}
}

// RedisSink публикует каналы дисплея как строковые ключи Redis.
// SET перезаписывает значение, что совпадает с семантикой канала.
// Дополнительно значение публикуется в pub/sub канал с тем же именем ключа.
type RedisSink struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// NewRedisSink подключается к Redis и проверяет соединение
func NewRedisSink(ctx context.Context, config *RedisConfig) (*RedisSink, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.Info("🔴 Display sink подключен к Redis %s", config.Addr)
	return NewRedisSinkWithClient(client, config.KeyPrefix, config.TTL), nil
}

// NewRedisSinkWithClient создает sink поверх готового клиента
func NewRedisSinkWithClient(client redis.UniversalClient, keyPrefix string, ttl time.Duration) *RedisSink {
	return &RedisSink{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

// Key возвращает ключ Redis для канала
func (s *RedisSink) Key(ch Channel) string {
	return s.keyPrefix + string(ch)
}

func (s *RedisSink) Write(ctx context.Context, ch Channel, text string) error {
	key := s.Key(ch)

	pipe := s.client.Pipeline()
	pipe.Set(ctx, key, text, s.ttl)
	pipe.Publish(ctx, key, text)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write display channel %s: %w", ch, err)
	}
	return nil
}

// Close закрывает соединение с Redis
func (s *RedisSink) Close() error {
	return s.client.Close()
}
