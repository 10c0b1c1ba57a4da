package domain

import (
	"context"
	"time"
)

// ProjectRepo управляет проектами.
type ProjectRepo interface {
	GetProject(ctx context.Context, projectID int64) (Project, error)
	ListActiveProjects(ctx context.Context) ([]Project, error)
}

// AccountRepo управляет отслеживаемыми аккаунтами.
type AccountRepo interface {
	UpsertAccount(ctx context.Context, account Account) (Account, error)
	GetAccount(ctx context.Context, accountID int64) (Account, error)
	ListProjectAccounts(ctx context.Context, projectID int64) ([]Account, error)
	// ListRefreshCandidates возвращает активные аккаунты проекта по списку платформ,
	// исключая статусы old и banned.
	ListRefreshCandidates(ctx context.Context, projectID int64, platforms []Platform) ([]Account, error)
	SetAccountStatus(ctx context.Context, accountID int64, status AccountStatus) error
	// DeactivateAccount мягко удаляет аккаунт: история снапшотов сохраняется.
	DeactivateAccount(ctx context.Context, accountID int64) error
}

// SnapshotRepo — хранилище временных рядов наблюдений.
type SnapshotRepo interface {
	// UpsertDaySnapshot записывает наблюдение с дедупликацией по календарному дню.
	// Возвращает true, если строка создана или обновлена, и false при полном
	// совпадении метрик с уже сохранённым за день снапшотом.
	UpsertDaySnapshot(ctx context.Context, accountID int64, metrics Metrics, now time.Time) (bool, error)
	ListSnapshots(ctx context.Context, accountID int64, from, to time.Time, limit int) ([]Snapshot, error)
	DailyStat(ctx context.Context, accountID int64, date time.Time) (DailyStat, bool, error)
	// ProjectHistory считает по каждому аккаунту максимум views за день и
	// суммирует максимумы по аккаунтам проекта.
	ProjectHistory(ctx context.Context, projectID int64, from, to time.Time) ([]HistoryPoint, error)
	// ProjectCurrentViews — сумма views последних снапшотов активных аккаунтов
	// проекта, источник «живой» точки для дашборда.
	ProjectCurrentViews(ctx context.Context, projectID int64) (int64, error)
}

// JobRepo — durable-хранилище состояния фоновых задач.
type JobRepo interface {
	CreateJob(ctx context.Context, job RefreshJob, counters []PlatformCounters) (RefreshJob, error)
	MarkJobRunning(ctx context.Context, jobID string) error
	// IncJobProgress атомарно инкрементирует processed и updated либо failed
	// по задаче и по счётчику платформы.
	IncJobProgress(ctx context.Context, jobID string, platform Platform, ok bool) error
	FinishJob(ctx context.Context, jobID string, result JobResult) error
	FailJob(ctx context.Context, jobID string, errMsg string) error
	GetJob(ctx context.Context, jobID string) (RefreshJob, error)
	// ProjectProgress возвращает счётчики по платформам последней задачи проекта.
	ProjectProgress(ctx context.Context, projectID int64) ([]PlatformCounters, error)
	PurgeTerminalJobs(ctx context.Context, olderThan time.Time) (int64, error)
}

// Fetcher — внешний сбор текущих метрик профиля. Непрозрачный вызов:
// возвращает кортеж метрик либо ошибку.
type Fetcher interface {
	Fetch(ctx context.Context, account Account) (Metrics, error)
}

// FetcherRegistry выбирает сборщик по платформе аккаунта.
type FetcherRegistry interface {
	For(platform Platform) (Fetcher, bool)
}

// SheetClient читает и пишет строку аккаунта в таблице проекта.
type SheetClient interface {
	ReadRow(ctx context.Context, project Project, profileURL string) (Metrics, bool, error)
	WriteRow(ctx context.Context, project Project, profileURL string, metrics Metrics) error
}

// Notifier сообщает оператору о завершении фоновой задачи.
type Notifier interface {
	NotifyJobFinished(ctx context.Context, chatID int64, job RefreshJob) error
}

// Cache используется для простых TTL-хранилищ и дедупликации запусков.
type Cache interface {
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
}
