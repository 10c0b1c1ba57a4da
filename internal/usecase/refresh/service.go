package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"tg-track-bot/internal/domain"
	"tg-track-bot/internal/infra/metrics"
	"tg-track-bot/internal/usecase/reconcile"
)

// errSampleMax ограничивает выборку сообщений об ошибках в итоге задачи.
const errSampleMax = 10

// Service — координатор массового обновления метрик: разбивает аккаунты
// проекта на батчи, обновляет их ограниченным пулом воркеров и ведёт
// счётчики прогресса в хранилище задач.
//
// Задача не отменяется после запуска: наблюдатели прогресса могут отключаться
// в любой момент, не влияя на выполнение.
type Service struct {
	projects  domain.ProjectRepo
	accounts  domain.AccountRepo
	snapshots domain.SnapshotRepo
	jobs      domain.JobRepo
	fetchers  domain.FetcherRegistry
	sheets    domain.SheetClient

	// limiter задаёт паузу между батчами: одна «корзина» на батч,
	// пополнение раз в cooldown. Политика темпа отделена от размера батча.
	limiter   *rate.Limiter
	batchSize int
	workers   int

	log zerolog.Logger
}

// Params — настройки координатора.
type Params struct {
	BatchSize     int
	Workers       int
	BatchCooldown time.Duration
}

// NewService создаёт координатор обновления.
func NewService(projects domain.ProjectRepo, accounts domain.AccountRepo, snapshots domain.SnapshotRepo, jobs domain.JobRepo, fetchers domain.FetcherRegistry, sheets domain.SheetClient, params Params, logger zerolog.Logger) *Service {
	if params.BatchSize <= 0 {
		params.BatchSize = 50
	}
	if params.Workers <= 0 {
		params.Workers = 15
	}
	if params.BatchCooldown <= 0 {
		params.BatchCooldown = 30 * time.Second
	}
	return &Service{
		projects:  projects,
		accounts:  accounts,
		snapshots: snapshots,
		jobs:      jobs,
		fetchers:  fetchers,
		sheets:    sheets,
		limiter:   rate.NewLimiter(rate.Every(params.BatchCooldown), 1),
		batchSize: params.BatchSize,
		workers:   params.Workers,
		log:       logger,
	}
}

// Run выполняет задачу обновления метрик проекта от начала до конца.
// Ошибки отдельных аккаунтов превращаются в счётчики и не прерывают задачу;
// в failed задача уходит только при недоступности хранилищ.
func (s *Service) Run(ctx context.Context, task domain.RefreshTask) (domain.RefreshJob, error) {
	project, err := s.projects.GetProject(ctx, task.ProjectID)
	if err != nil {
		return domain.RefreshJob{}, fmt.Errorf("получение проекта: %w", err)
	}

	platforms := dedupePlatforms(task.Platforms)
	if len(platforms) == 0 {
		platforms = domain.KnownPlatforms()
	}

	candidates, err := s.accounts.ListRefreshCandidates(ctx, task.ProjectID, platforms)
	if err != nil {
		return domain.RefreshJob{}, fmt.Errorf("выбор аккаунтов: %w", err)
	}

	counters := make([]domain.PlatformCounters, 0, len(platforms))
	perPlatform := make(map[domain.Platform]int)
	for _, account := range candidates {
		perPlatform[account.Platform]++
	}
	for _, platform := range platforms {
		counters = append(counters, domain.PlatformCounters{Platform: platform, Total: perPlatform[platform]})
	}

	job := domain.RefreshJob{
		ID:        uuid.NewString(),
		Kind:      domain.JobKindRefreshMetrics,
		ProjectID: task.ProjectID,
		Total:     len(candidates),
	}
	job, err = s.jobs.CreateJob(ctx, job, counters)
	if err != nil {
		return domain.RefreshJob{}, fmt.Errorf("создание задачи: %w", err)
	}
	if err := s.jobs.MarkJobRunning(ctx, job.ID); err != nil {
		return domain.RefreshJob{}, fmt.Errorf("запуск задачи: %w", err)
	}

	startedAt := time.Now()
	s.log.Info().
		Str("job_id", job.ID).
		Int64("project_id", task.ProjectID).
		Int("total", len(candidates)).
		Str("cause", string(task.Cause)).
		Msg("refresh: задача запущена")

	run := s.runBatches(ctx, project, job.ID, candidates)
	if run.infraErr != nil {
		s.log.Error().Err(run.infraErr).Str("job_id", job.ID).Msg("refresh: инфраструктурная ошибка")
		if failErr := s.jobs.FailJob(ctx, job.ID, run.infraErr.Error()); failErr != nil {
			s.log.Error().Err(failErr).Str("job_id", job.ID).Msg("refresh: не удалось пометить задачу failed")
		}
		metrics.RefreshJobsTotal.WithLabelValues(string(domain.JobStatusFailed)).Inc()
		return s.jobs.GetJob(ctx, job.ID)
	}

	result := domain.JobResult{
		Total:   len(candidates),
		Updated: run.updated,
		Failed:  run.failed,
		Errors:  run.errSamples,
	}
	if err := s.jobs.FinishJob(ctx, job.ID, result); err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("refresh: не удалось завершить задачу")
		if failErr := s.jobs.FailJob(ctx, job.ID, err.Error()); failErr != nil {
			s.log.Error().Err(failErr).Str("job_id", job.ID).Msg("refresh: не удалось пометить задачу failed")
		}
		metrics.RefreshJobsTotal.WithLabelValues(string(domain.JobStatusFailed)).Inc()
		return s.jobs.GetJob(ctx, job.ID)
	}

	metrics.RefreshJobsTotal.WithLabelValues(string(domain.JobStatusCompleted)).Inc()
	metrics.RefreshJobDuration.Observe(time.Since(startedAt).Seconds())
	s.log.Info().
		Str("job_id", job.ID).
		Int("updated", run.updated).
		Int("failed", run.failed).
		Msg("refresh: задача завершена")

	return s.jobs.GetJob(ctx, job.ID)
}

// dedupePlatforms отбрасывает повторы, сохраняя порядок: на платформу
// создаётся ровно одна строка счётчиков задачи.
func dedupePlatforms(platforms []domain.Platform) []domain.Platform {
	if len(platforms) < 2 {
		return platforms
	}
	seen := make(map[domain.Platform]struct{}, len(platforms))
	unique := platforms[:0:0]
	for _, platform := range platforms {
		if _, dup := seen[platform]; dup {
			continue
		}
		seen[platform] = struct{}{}
		unique = append(unique, platform)
	}
	return unique
}

type runState struct {
	mu         sync.Mutex
	updated    int
	failed     int
	errSamples []string
	infraErr   error
}

func (r *runState) recordOutcome(ok bool, sample string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ok {
		r.updated++
		return
	}
	r.failed++
	if sample != "" && len(r.errSamples) < errSampleMax {
		r.errSamples = append(r.errSamples, sample)
	}
}

func (r *runState) recordInfraErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.infraErr == nil {
		r.infraErr = err
	}
}

func (r *runState) hasInfraErr() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.infraErr != nil
}

// runBatches обрабатывает аккаунты батчами фиксированного размера. Внутри
// батча работает ограниченный пул воркеров, следующий батч не стартует, пока
// не завершатся все воркеры текущего и лимитер не выдаст разрешение.
func (s *Service) runBatches(ctx context.Context, project domain.Project, jobID string, candidates []domain.Account) *runState {
	state := &runState{}

	for offset := 0; offset < len(candidates); offset += s.batchSize {
		if err := s.limiter.Wait(ctx); err != nil {
			state.recordInfraErr(fmt.Errorf("ожидание лимитера: %w", err))
			return state
		}

		end := offset + s.batchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[offset:end]

		sem := make(chan struct{}, s.workers)
		var wg sync.WaitGroup
		for _, account := range batch {
			wg.Add(1)
			sem <- struct{}{}
			go func(account domain.Account) {
				defer wg.Done()
				defer func() { <-sem }()
				s.processAccount(ctx, project, jobID, account, state)
			}(account)
		}
		wg.Wait()

		if state.hasInfraErr() {
			return state
		}
	}
	return state
}

// processAccount обновляет один аккаунт: сбор → сведение → снапшот → запись в
// таблицу. Любой сбой шага помечает аккаунт как failed и не идёт дальше воркера.
func (s *Service) processAccount(ctx context.Context, project domain.Project, jobID string, account domain.Account, state *runState) {
	platform := reconcile.ResolvePlatform(account, s.log)
	ok, sample := s.refreshOne(ctx, project, account, platform)

	if err := s.jobs.IncJobProgress(ctx, jobID, platform, ok); err != nil {
		state.recordInfraErr(fmt.Errorf("обновление прогресса: %w", err))
		return
	}
	state.recordOutcome(ok, sample)
	metrics.ObserveAccountProcessed(string(platform), ok)
}

func (s *Service) refreshOne(ctx context.Context, project domain.Project, account domain.Account, platform domain.Platform) (bool, string) {
	fetcher, found := s.fetchers.For(platform)
	if !found {
		return false, fmt.Sprintf("%s: нет сборщика платформы %s", account.URL, platform)
	}

	fetched, err := fetcher.Fetch(ctx, account)
	if err != nil {
		s.log.Warn().Err(err).Int64("account_id", account.ID).Msg("refresh: сбор метрик не удался")
		return false, fmt.Sprintf("%s: %v", account.URL, err)
	}

	sheetRow, _, err := s.sheets.ReadRow(ctx, project, account.URL)
	if err != nil {
		s.log.Warn().Err(err).Int64("account_id", account.ID).Msg("refresh: чтение строки таблицы не удалось")
		return false, fmt.Sprintf("%s: %v", account.URL, err)
	}

	canonical := reconcile.Merge(sheetRow, fetched)

	if _, err := s.snapshots.UpsertDaySnapshot(ctx, account.ID, canonical, time.Now()); err != nil {
		s.log.Warn().Err(err).Int64("account_id", account.ID).Msg("refresh: запись снапшота не удалась")
		return false, fmt.Sprintf("%s: %v", account.URL, err)
	}

	if err := s.sheets.WriteRow(ctx, project, account.URL, canonical); err != nil {
		s.log.Warn().Err(err).Int64("account_id", account.ID).Msg("refresh: запись в таблицу не удалась")
		return false, fmt.Sprintf("%s: %v", account.URL, err)
	}

	return true, ""
}
