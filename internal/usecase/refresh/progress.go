package refresh

import (
	"context"
	"time"

	"tg-track-bot/internal/domain"
)

// ProgressUpdate — изменение счётчиков прогресса последней задачи проекта.
type ProgressUpdate struct {
	Counters []domain.PlatformCounters
	Done     bool
}

// Watcher наблюдает за прогрессом через хранилище задач. Источник истины —
// durable-счётчики в БД, поэтому наблюдать можно из любого процесса, а отказ
// наблюдателя не влияет на выполнение задачи.
type Watcher struct {
	jobs     domain.JobRepo
	interval time.Duration
}

// NewWatcher создаёт наблюдатель с указанным периодом опроса.
func NewWatcher(jobs domain.JobRepo, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = time.Second
	}
	return &Watcher{jobs: jobs, interval: interval}
}

// Watch отдаёт канал обновлений прогресса проекта. Обновление публикуется
// только при изменении счётчиков; после завершения всех платформ публикуется
// финальное событие с Done=true и канал закрывается. Отмена контекста
// останавливает наблюдение, не трогая саму задачу.
func (w *Watcher) Watch(ctx context.Context, projectID int64) <-chan ProgressUpdate {
	updates := make(chan ProgressUpdate, 1)
	go func() {
		defer close(updates)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		var last []domain.PlatformCounters
		for {
			counters, err := w.jobs.ProjectProgress(ctx, projectID)
			if err == nil && !countersEqual(last, counters) {
				last = counters
				update := ProgressUpdate{Counters: counters, Done: allDone(counters)}
				select {
				case updates <- update:
				case <-ctx.Done():
					return
				}
				if update.Done {
					return
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return updates
}

func allDone(counters []domain.PlatformCounters) bool {
	if len(counters) == 0 {
		return false
	}
	for _, c := range counters {
		if !c.Done() {
			return false
		}
	}
	return true
}

func countersEqual(a, b []domain.PlatformCounters) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
