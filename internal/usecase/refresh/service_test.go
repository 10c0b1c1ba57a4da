package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tg-track-bot/internal/domain"
)

type stubProjects struct {
	project domain.Project
}

func (s *stubProjects) GetProject(context.Context, int64) (domain.Project, error) {
	return s.project, nil
}
func (s *stubProjects) ListActiveProjects(context.Context) ([]domain.Project, error) {
	return []domain.Project{s.project}, nil
}

type stubAccounts struct {
	candidates []domain.Account
}

func (s *stubAccounts) UpsertAccount(_ context.Context, account domain.Account) (domain.Account, error) {
	return account, nil
}
func (s *stubAccounts) GetAccount(context.Context, int64) (domain.Account, error) {
	return domain.Account{}, nil
}
func (s *stubAccounts) ListProjectAccounts(context.Context, int64) ([]domain.Account, error) {
	return s.candidates, nil
}
func (s *stubAccounts) ListRefreshCandidates(context.Context, int64, []domain.Platform) ([]domain.Account, error) {
	return s.candidates, nil
}
func (s *stubAccounts) SetAccountStatus(context.Context, int64, domain.AccountStatus) error {
	return nil
}
func (s *stubAccounts) DeactivateAccount(context.Context, int64) error { return nil }

type stubSnapshots struct {
	mu      sync.Mutex
	upserts int
	err     error
}

func (s *stubSnapshots) UpsertDaySnapshot(context.Context, int64, domain.Metrics, time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	s.upserts++
	return true, nil
}
func (s *stubSnapshots) ListSnapshots(context.Context, int64, time.Time, time.Time, int) ([]domain.Snapshot, error) {
	return nil, nil
}
func (s *stubSnapshots) DailyStat(context.Context, int64, time.Time) (domain.DailyStat, bool, error) {
	return domain.DailyStat{}, false, nil
}
func (s *stubSnapshots) ProjectHistory(context.Context, int64, time.Time, time.Time) ([]domain.HistoryPoint, error) {
	return nil, nil
}
func (s *stubSnapshots) ProjectCurrentViews(context.Context, int64) (int64, error) { return 0, nil }

// memJobs — потокобезопасное in-memory хранилище задач: IncJobProgress
// вызывается из пула воркеров конкурентно.
type memJobs struct {
	mu       sync.Mutex
	job      domain.RefreshJob
	counters map[domain.Platform]*domain.PlatformCounters
	order    []domain.Platform
	incErr   error
}

func newMemJobs() *memJobs {
	return &memJobs{counters: map[domain.Platform]*domain.PlatformCounters{}}
}

func (m *memJobs) CreateJob(_ context.Context, job domain.RefreshJob, counters []domain.PlatformCounters) (domain.RefreshJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.Status = domain.JobStatusPending
	job.CreatedAt = time.Now()
	m.job = job
	for i := range counters {
		c := counters[i]
		m.counters[c.Platform] = &c
		m.order = append(m.order, c.Platform)
	}
	return job, nil
}

func (m *memJobs) MarkJobRunning(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.job.ID != jobID || m.job.Status != domain.JobStatusPending {
		return errors.New("задача не в статусе pending")
	}
	m.job.Status = domain.JobStatusRunning
	return nil
}

func (m *memJobs) IncJobProgress(_ context.Context, jobID string, platform domain.Platform, ok bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.incErr != nil {
		return m.incErr
	}
	m.job.Processed++
	counter := m.counters[platform]
	counter.Processed++
	if ok {
		m.job.Updated++
		counter.Updated++
	} else {
		m.job.Failed++
		counter.Failed++
	}
	return nil
}

func (m *memJobs) FinishJob(_ context.Context, jobID string, result domain.JobResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.job.Status != domain.JobStatusRunning {
		return errors.New("завершить можно только running-задачу")
	}
	m.job.Status = domain.JobStatusCompleted
	m.job.Progress = 100
	m.job.Result = &result
	return nil
}

func (m *memJobs) FailJob(_ context.Context, jobID string, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.job.Status.Terminal() {
		return nil
	}
	m.job.Status = domain.JobStatusFailed
	m.job.Error = errMsg
	return nil
}

func (m *memJobs) GetJob(_ context.Context, jobID string) (domain.RefreshJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.job, nil
}

func (m *memJobs) ProjectProgress(context.Context, int64) ([]domain.PlatformCounters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counters := make([]domain.PlatformCounters, 0, len(m.order))
	for _, platform := range m.order {
		counters = append(counters, *m.counters[platform])
	}
	return counters, nil
}

func (m *memJobs) PurgeTerminalJobs(context.Context, time.Time) (int64, error) { return 0, nil }

type stubFetcher struct {
	metrics domain.Metrics
	err     error
}

func (f *stubFetcher) Fetch(context.Context, domain.Account) (domain.Metrics, error) {
	return f.metrics, f.err
}

type stubRegistry struct {
	fetcher domain.Fetcher
}

func (r *stubRegistry) For(domain.Platform) (domain.Fetcher, bool) { return r.fetcher, true }

type stubSheets struct {
	mu     sync.Mutex
	rows   map[string]domain.Metrics
	writes int
}

func (s *stubSheets) ReadRow(_ context.Context, _ domain.Project, profileURL string) (domain.Metrics, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[profileURL]
	return row, ok, nil
}

func (s *stubSheets) WriteRow(_ context.Context, _ domain.Project, profileURL string, metrics domain.Metrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rows == nil {
		s.rows = map[string]domain.Metrics{}
	}
	s.rows[profileURL] = metrics
	s.writes++
	return nil
}

func makeAccounts(n int) []domain.Account {
	accounts := make([]domain.Account, 0, n)
	platforms := []domain.Platform{domain.PlatformTikTok, domain.PlatformInstagram, domain.PlatformYouTube, domain.PlatformFacebook}
	for i := 0; i < n; i++ {
		platform := platforms[i%len(platforms)]
		accounts = append(accounts, domain.Account{
			ID:        int64(i + 1),
			ProjectID: 1,
			Platform:  platform,
			URL:       fmt.Sprintf("https://%s.com/user%d", platform, i),
			Status:    domain.AccountStatusNew,
			IsActive:  true,
		})
	}
	return accounts
}

func newTestService(accounts *stubAccounts, snapshots *stubSnapshots, jobs *memJobs, fetcher domain.Fetcher, sheets *stubSheets) *Service {
	return NewService(
		&stubProjects{project: domain.Project{ID: 1, Title: "тест", SpreadsheetID: "sheet", IsActive: true}},
		accounts,
		snapshots,
		jobs,
		&stubRegistry{fetcher: fetcher},
		sheets,
		Params{BatchSize: 50, Workers: 15, BatchCooldown: time.Millisecond},
		zerolog.Nop(),
	)
}

func TestRunProcessesAllCandidates(t *testing.T) {
	jobs := newMemJobs()
	snapshots := &stubSnapshots{}
	sheets := &stubSheets{}
	service := newTestService(
		&stubAccounts{candidates: makeAccounts(80)},
		snapshots,
		jobs,
		&stubFetcher{metrics: domain.Metrics{Views: 100}},
		sheets,
	)

	job, err := service.Run(context.Background(), domain.RefreshTask{ProjectID: 1, Cause: domain.RefreshCauseManual})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("ожидали completed, получили %s", job.Status)
	}
	if job.Total != 80 || job.Processed != 80 {
		t.Fatalf("все кандидаты должны быть обработаны: total=%d processed=%d", job.Total, job.Processed)
	}
	if job.Updated+job.Failed != job.Processed {
		t.Fatalf("updated+failed должно равняться processed: %d+%d != %d", job.Updated, job.Failed, job.Processed)
	}
	if job.Failed != 0 {
		t.Fatalf("при успешном сборе failed пуст: %d", job.Failed)
	}
	if snapshots.upserts != 80 {
		t.Fatalf("каждый аккаунт получает снапшот: %d", snapshots.upserts)
	}
	if sheets.writes != 80 {
		t.Fatalf("каждый аккаунт записывается в таблицу: %d", sheets.writes)
	}

	counters, err := jobs.ProjectProgress(context.Background(), 1)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	sumTotal := 0
	for _, c := range counters {
		if c.Processed != c.Total {
			t.Fatalf("платформа %s не добита: %+v", c.Platform, c)
		}
		sumTotal += c.Total
	}
	if sumTotal != 80 {
		t.Fatalf("сумма счётчиков платформ равна общему total: %d", sumTotal)
	}
}

func TestRunDeduplicatesPlatforms(t *testing.T) {
	jobs := newMemJobs()
	accounts := []domain.Account{
		{ID: 1, ProjectID: 1, Platform: domain.PlatformTikTok, URL: "https://tiktok.com/@a", Status: domain.AccountStatusNew, IsActive: true},
		{ID: 2, ProjectID: 1, Platform: domain.PlatformTikTok, URL: "https://tiktok.com/@b", Status: domain.AccountStatusNew, IsActive: true},
	}
	service := newTestService(
		&stubAccounts{candidates: accounts},
		&stubSnapshots{},
		jobs,
		&stubFetcher{metrics: domain.Metrics{Views: 1}},
		&stubSheets{},
	)

	task := domain.RefreshTask{
		ProjectID: 1,
		Platforms: []domain.Platform{domain.PlatformTikTok, domain.PlatformTikTok},
	}
	job, err := service.Run(context.Background(), task)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("ожидали completed, получили %s", job.Status)
	}

	counters, err := jobs.ProjectProgress(context.Background(), 1)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(counters) != 1 {
		t.Fatalf("на платформу должна быть ровно одна строка счётчиков: %+v", counters)
	}
	if counters[0].Total != 2 || counters[0].Processed != 2 {
		t.Fatalf("счётчики платформы неверны: %+v", counters[0])
	}
}

func TestRunEmptyProjectCompletesImmediately(t *testing.T) {
	jobs := newMemJobs()
	service := newTestService(&stubAccounts{}, &stubSnapshots{}, jobs, &stubFetcher{}, &stubSheets{})

	job, err := service.Run(context.Background(), domain.RefreshTask{ProjectID: 1})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("пустой проект завершается сразу: %s", job.Status)
	}
	if job.Total != 0 || job.Processed != 0 {
		t.Fatalf("пустой проект не обрабатывает аккаунты: %+v", job)
	}
}

func TestRunPerAccountFailuresDoNotAbort(t *testing.T) {
	jobs := newMemJobs()
	service := newTestService(
		&stubAccounts{candidates: makeAccounts(30)},
		&stubSnapshots{},
		jobs,
		&stubFetcher{err: errors.New("профиль недоступен")},
		&stubSheets{},
	)

	job, err := service.Run(context.Background(), domain.RefreshTask{ProjectID: 1})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("сбои аккаунтов не валят задачу: %s", job.Status)
	}
	if job.Failed != 30 || job.Updated != 0 {
		t.Fatalf("все аккаунты должны попасть в failed: updated=%d failed=%d", job.Updated, job.Failed)
	}
	if job.Result == nil {
		t.Fatalf("итог задачи должен быть записан")
	}
	if len(job.Result.Errors) != errSampleMax {
		t.Fatalf("выборка ошибок ограничена %d, получили %d", errSampleMax, len(job.Result.Errors))
	}
}

func TestRunInfraErrorFailsJob(t *testing.T) {
	jobs := newMemJobs()
	jobs.incErr = errors.New("БД недоступна")
	service := newTestService(
		&stubAccounts{candidates: makeAccounts(10)},
		&stubSnapshots{},
		jobs,
		&stubFetcher{metrics: domain.Metrics{Views: 1}},
		&stubSheets{},
	)

	job, err := service.Run(context.Background(), domain.RefreshTask{ProjectID: 1})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("недоступность хранилища валит задачу: %s", job.Status)
	}
	if job.Error == "" {
		t.Fatalf("причина сбоя должна быть записана")
	}
}

func TestRunSnapshotErrorCountsAsFailed(t *testing.T) {
	jobs := newMemJobs()
	service := newTestService(
		&stubAccounts{candidates: makeAccounts(5)},
		&stubSnapshots{err: errors.New("конфликт записи")},
		jobs,
		&stubFetcher{metrics: domain.Metrics{Views: 1}},
		&stubSheets{},
	)

	job, err := service.Run(context.Background(), domain.RefreshTask{ProjectID: 1})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("ошибка снапшота одного аккаунта не валит задачу: %s", job.Status)
	}
	if job.Failed != 5 {
		t.Fatalf("ошибки записи снапшота идут в failed: %d", job.Failed)
	}
}
