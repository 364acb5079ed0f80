// Package display реализует текстовые каналы вывода: размер комнаты,
// центр комнаты и позу наблюдателя. Каждая запись перезаписывает
// предыдущее значение канала.
package display

import (
	"context"
	"errors"
	"sync"

	"github.com/annel0/room-scanner/internal/logging"
)

// Channel имя текстового канала
type Channel string

const (
	ChannelRoomSize     Channel = "room_size"
	ChannelRoomCenter   Channel = "room_center"
	ChannelObserverPose Channel = "observer_pose"
)

// Channels все каналы в порядке вывода
var Channels = []Channel{ChannelRoomSize, ChannelRoomCenter, ChannelObserverPose}

// Sink потребитель строк, только запись
type Sink interface {
	Write(ctx context.Context, ch Channel, text string) error
}

//================ Log sink =================//

// LogSink пишет каждое обновление канала в лог
type LogSink struct {
	logger *logging.Logger
}

// NewLogSink создает sink поверх логгера; nil — глобальный логгер
func NewLogSink(logger *logging.Logger) *LogSink {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Write(_ context.Context, ch Channel, text string) error {
	s.logger.Info("🖥️ [%s] %s", ch, text)
	return nil
}

//================ Memory sink =================//

// MemorySink хранит последнее значение каждого канала и число записей.
// Используется REST API и тестами.
type MemorySink struct {
	mu     sync.RWMutex
	values map[Channel]string
	writes map[Channel]int
}

// NewMemorySink создает пустой sink
func NewMemorySink() *MemorySink {
	return &MemorySink{
		values: make(map[Channel]string),
		writes: make(map[Channel]int),
	}
}

func (s *MemorySink) Write(_ context.Context, ch Channel, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[ch] = text
	s.writes[ch]++
	return nil
}

// Get возвращает последнее значение канала
func (s *MemorySink) Get(ch Channel) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[ch]
	return v, ok
}

// Writes число записей в канал
func (s *MemorySink) Writes(ch Channel) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes[ch]
}

// Values копия всех значений
func (s *MemorySink) Values() map[Channel]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Channel]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

//================ Multi sink =================//

// MultiSink рассылает запись во все вложенные sink'и.
// Ошибка одного не прерывает запись в остальные.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink объединяет sink'и, пропуская nil
func NewMultiSink(sinks ...Sink) *MultiSink {
	ms := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			ms.sinks = append(ms.sinks, s)
		}
	}
	return ms
}

func (m *MultiSink) Write(ctx context.Context, ch Channel, text string) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(ctx, ch, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
