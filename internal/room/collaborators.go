package room

import "context"

// BatchHandler получает событие "added" от сканера. Срез может быть пустым.
type BatchHandler func(ctx context.Context, batches []ScanBatch)

// Subscription подписка на источник батчей
type Subscription interface {
	Unsubscribe()
}

// Feed push-источник батчей сканирования
type Feed interface {
	Subscribe(ctx context.Context, h BatchHandler) (Subscription, error)
}

// StopRequester реализуется источником, который умеет прекратить выдачу батчей.
// Движок только просит об остановке и не проверяет ее.
type StopRequester interface {
	RequestStop(ctx context.Context) error
}

// PoseSource опрашивается раз в тик и возвращает текущую позу наблюдателя
type PoseSource interface {
	CurrentPose(ctx context.Context) (Pose, error)
}

// PoseSourceFunc адаптер функции к PoseSource
type PoseSourceFunc func(ctx context.Context) (Pose, error)

func (f PoseSourceFunc) CurrentPose(ctx context.Context) (Pose, error) { return f(ctx) }
