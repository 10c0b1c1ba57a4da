package domain

import (
	"context"
	"time"
)

// JobStatus — статус фоновой задачи обновления.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal сообщает, что задача завершена и статус больше не изменится.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobKindRefreshMetrics — массовое обновление метрик аккаунтов проекта.
const JobKindRefreshMetrics = "refresh_metrics"

// RefreshCause описывает источник запроса на обновление.
type RefreshCause string

const (
	// RefreshCauseManual — оператор запросил обновление вручную.
	RefreshCauseManual RefreshCause = "manual"
	// RefreshCauseScheduled — обновление запущено по расписанию.
	RefreshCauseScheduled RefreshCause = "scheduled"
)

// JobResult — итог выполнения задачи: счётчики и ограниченная выборка ошибок.
type JobResult struct {
	Total   int      `json:"total"`
	Updated int      `json:"updated"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// RefreshJob — учётная запись фоновой задачи обновления метрик.
// Инварианты: processed <= total всегда; updated + failed == processed
// после перехода в completed.
type RefreshJob struct {
	ID         string
	Kind       string
	ProjectID  int64
	Status     JobStatus
	Progress   int
	Total      int
	Processed  int
	Updated    int
	Failed     int
	Result     *JobResult
	Error      string
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// PlatformCounters — счётчики прогресса задачи по одной платформе.
type PlatformCounters struct {
	Platform  Platform `json:"platform"`
	Total     int      `json:"total"`
	Processed int      `json:"processed"`
	Updated   int      `json:"updated"`
	Failed    int      `json:"failed"`
}

// Done сообщает, что все аккаунты платформы обработаны.
func (c PlatformCounters) Done() bool {
	return c.Processed >= c.Total
}

// RefreshTask — сообщение очереди с запросом на обновление проекта.
type RefreshTask struct {
	ProjectID   int64        `json:"project_id"`
	Platforms   []Platform   `json:"platforms,omitempty"`
	Cause       RefreshCause `json:"cause"`
	ChatID      int64        `json:"chat_id,omitempty"`
	RequestedAt time.Time    `json:"requested_at"`
}

// RefreshQueue — очередь задач на обновление метрик.
type RefreshQueue interface {
	Enqueue(ctx context.Context, task RefreshTask) error
	Pop(ctx context.Context) (RefreshTask, error)
}
