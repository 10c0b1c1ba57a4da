package refresh

import (
	"context"
	"testing"
	"time"

	"tg-track-bot/internal/domain"
)

func TestWatchEmitsChangesUntilDone(t *testing.T) {
	jobs := newMemJobs()
	_, err := jobs.CreateJob(context.Background(), domain.RefreshJob{ID: "job-1", ProjectID: 1, Total: 2},
		[]domain.PlatformCounters{{Platform: domain.PlatformTikTok, Total: 2}})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	watcher := NewWatcher(jobs, 5*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	updates := watcher.Watch(ctx, 1)

	first, ok := <-updates
	if !ok {
		t.Fatalf("ожидали первое обновление")
	}
	if first.Done {
		t.Fatalf("незавершённая задача не даёт Done")
	}
	if first.Counters[0].Processed != 0 {
		t.Fatalf("первое обновление — стартовые счётчики: %+v", first.Counters)
	}

	if err := jobs.IncJobProgress(context.Background(), "job-1", domain.PlatformTikTok, true); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if err := jobs.IncJobProgress(context.Background(), "job-1", domain.PlatformTikTok, false); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	var last ProgressUpdate
	for update := range updates {
		last = update
	}
	if !last.Done {
		t.Fatalf("после обработки всех аккаунтов ожидали Done")
	}
	if last.Counters[0].Processed != 2 || last.Counters[0].Updated != 1 || last.Counters[0].Failed != 1 {
		t.Fatalf("финальные счётчики неверны: %+v", last.Counters)
	}
}

func TestWatchStopsOnContextCancel(t *testing.T) {
	jobs := newMemJobs()
	_, err := jobs.CreateJob(context.Background(), domain.RefreshJob{ID: "job-1", ProjectID: 1, Total: 5},
		[]domain.PlatformCounters{{Platform: domain.PlatformTikTok, Total: 5}})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	watcher := NewWatcher(jobs, 5*time.Millisecond)
	updates := watcher.Watch(ctx, 1)

	<-updates
	cancel()

	select {
	case _, ok := <-updates:
		if ok {
			// допускается одно обновление, успевшее в буфер до отмены
			if _, ok := <-updates; ok {
				t.Fatalf("после отмены контекста канал должен закрыться")
			}
		}
	case <-time.After(time.Second):
		t.Fatalf("канал не закрылся после отмены контекста")
	}
}
