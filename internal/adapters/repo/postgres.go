package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tg-track-bot/internal/domain"
	"tg-track-bot/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.ProjectRepo  = (*Postgres)(nil)
	_ domain.AccountRepo  = (*Postgres)(nil)
	_ domain.SnapshotRepo = (*Postgres)(nil)
	_ domain.JobRepo      = (*Postgres)(nil)
)

// ErrProjectNotFound возвращается при запросе несуществующего проекта.
var ErrProjectNotFound = errors.New("проект не найден")

// ErrAccountNotFound возвращается при ссылке на несуществующий аккаунт.
var ErrAccountNotFound = errors.New("аккаунт не найден")

// ErrJobNotFound возвращается при запросе несуществующей задачи.
var ErrJobNotFound = errors.New("задача не найдена")

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// GetProject возвращает проект по идентификатору.
func (p *Postgres) GetProject(ctx context.Context, projectID int64) (domain.Project, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var project domain.Project
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, title, spreadsheet_id, sheet_name, chat_id, is_active, created_at
FROM projects WHERE id=$1
`, projectID).Scan(&project.ID, &project.Title, &project.SpreadsheetID, &project.SheetName, &project.ChatID, &project.IsActive, &project.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "projects_get", "projects", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Project{}, ErrProjectNotFound
	}
	return project, err
}

// ListActiveProjects возвращает активные проекты.
func (p *Postgres) ListActiveProjects(ctx context.Context) ([]domain.Project, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, title, spreadsheet_id, sheet_name, chat_id, is_active, created_at
FROM projects WHERE is_active
ORDER BY id
`)
	metrics.ObserveNetworkRequest("postgres", "projects_list_active", "projects", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var projects []domain.Project
	for rows.Next() {
		var project domain.Project
		if err := rows.Scan(&project.ID, &project.Title, &project.SpreadsheetID, &project.SheetName, &project.ChatID, &project.IsActive, &project.CreatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}

// UpsertAccount сохраняет аккаунт проекта. Повторное добавление того же URL
// реактивирует и обновляет существующую запись.
func (p *Postgres) UpsertAccount(ctx context.Context, account domain.Account) (domain.Account, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var saved domain.Account
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO accounts (project_id, platform, url, username, status, topic, owner_tg_id, is_active)
VALUES ($1, $2, $3, NULLIF($4,''), $5, NULLIF($6,''), $7, true)
ON CONFLICT (project_id, url) DO UPDATE
SET platform = EXCLUDED.platform,
    username = COALESCE(EXCLUDED.username, accounts.username),
    status = EXCLUDED.status,
    topic = COALESCE(EXCLUDED.topic, accounts.topic),
    owner_tg_id = EXCLUDED.owner_tg_id,
    is_active = true,
    updated_at = now()
RETURNING id, project_id, platform, url, COALESCE(username,''), status, COALESCE(topic,''), owner_tg_id, is_active, created_at, updated_at
`, account.ProjectID, account.Platform, account.URL, account.Username, account.Status, account.Topic, account.OwnerTGID).Scan(
		&saved.ID, &saved.ProjectID, &saved.Platform, &saved.URL, &saved.Username, &saved.Status, &saved.Topic, &saved.OwnerTGID, &saved.IsActive, &saved.CreatedAt, &saved.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "accounts_upsert", "accounts", start, err)
	return saved, err
}

// GetAccount возвращает аккаунт по идентификатору.
func (p *Postgres) GetAccount(ctx context.Context, accountID int64) (domain.Account, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var account domain.Account
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, project_id, platform, url, COALESCE(username,''), status, COALESCE(topic,''), owner_tg_id, is_active, created_at, updated_at
FROM accounts WHERE id=$1
`, accountID).Scan(&account.ID, &account.ProjectID, &account.Platform, &account.URL, &account.Username, &account.Status, &account.Topic, &account.OwnerTGID, &account.IsActive, &account.CreatedAt, &account.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "accounts_get", "accounts", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, ErrAccountNotFound
	}
	return account, err
}

// ListProjectAccounts возвращает активные аккаунты проекта.
func (p *Postgres) ListProjectAccounts(ctx context.Context, projectID int64) ([]domain.Account, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, project_id, platform, url, COALESCE(username,''), status, COALESCE(topic,''), owner_tg_id, is_active, created_at, updated_at
FROM accounts WHERE project_id=$1 AND is_active
ORDER BY created_at
`, projectID)
	metrics.ObserveNetworkRequest("postgres", "accounts_list", "accounts", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAccounts(rows)
}

// ListRefreshCandidates возвращает аккаунты проекта для автоматического обновления:
// активные, указанных платформ, без статусов old и banned.
func (p *Postgres) ListRefreshCandidates(ctx context.Context, projectID int64, platforms []domain.Platform) ([]domain.Account, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	names := make([]string, 0, len(platforms))
	for _, platform := range platforms {
		names = append(names, string(platform))
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, project_id, platform, url, COALESCE(username,''), status, COALESCE(topic,''), owner_tg_id, is_active, created_at, updated_at
FROM accounts
WHERE project_id=$1 AND is_active AND platform = ANY($2) AND status NOT IN ('old','banned')
ORDER BY id
`, projectID, names)
	metrics.ObserveNetworkRequest("postgres", "accounts_list_candidates", "accounts", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAccounts(rows)
}

func scanAccounts(rows pgx.Rows) ([]domain.Account, error) {
	var accounts []domain.Account
	for rows.Next() {
		var account domain.Account
		if err := rows.Scan(&account.ID, &account.ProjectID, &account.Platform, &account.URL, &account.Username, &account.Status, &account.Topic, &account.OwnerTGID, &account.IsActive, &account.CreatedAt, &account.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// SetAccountStatus обновляет статус аккаунта.
func (p *Postgres) SetAccountStatus(ctx context.Context, accountID int64, status domain.AccountStatus) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `UPDATE accounts SET status=$2, updated_at=now() WHERE id=$1`, accountID, status)
	metrics.ObserveNetworkRequest("postgres", "accounts_set_status", "accounts", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// DeactivateAccount мягко удаляет аккаунт, сохраняя историю снапшотов.
func (p *Postgres) DeactivateAccount(ctx context.Context, accountID int64) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `UPDATE accounts SET is_active=false, updated_at=now() WHERE id=$1`, accountID)
	metrics.ObserveNetworkRequest("postgres", "accounts_deactivate", "accounts", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

type dayWrite int

const (
	dayWriteInsert dayWrite = iota
	dayWriteUpdate
	dayWriteNoop
)

// decideDayWrite выбирает действие для снапшота календарного дня: вставка,
// когда строки за день нет; no-op при полном совпадении метрик; иначе
// обновление существующей строки на месте. Больше одной строки на аккаунт
// в день не появляется ни при каком исходе.
func decideDayWrite(existing *domain.Metrics, incoming domain.Metrics) dayWrite {
	if existing == nil {
		return dayWriteInsert
	}
	if existing.Equal(incoming) {
		return dayWriteNoop
	}
	return dayWriteUpdate
}

// UpsertDaySnapshot записывает наблюдение с дедупликацией по календарному дню (UTC).
// Повторная запись за тот же день при совпадении всех метрик ничего не меняет;
// при расхождении строка обновляется на месте вместе с observed_at.
func (p *Postgres) UpsertDaySnapshot(ctx context.Context, accountID int64, m domain.Metrics, now time.Time) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	m = m.Clamp()
	dayStart := now.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "snapshots", start, err)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var (
		snapshotID int64
		existing   domain.Metrics
	)
	start = time.Now()
	err = tx.QueryRow(ctx, `
SELECT id, followers, likes, comments, videos, views, total_items_seen
FROM snapshots
WHERE account_id=$1 AND observed_at >= $2 AND observed_at < $3
ORDER BY observed_at DESC
LIMIT 1
FOR UPDATE
`, accountID, dayStart, dayEnd).Scan(&snapshotID, &existing.Followers, &existing.Likes, &existing.Comments, &existing.Videos, &existing.Views, &existing.TotalItemsSeen)
	metrics.ObserveNetworkRequest("postgres", "snapshots_get_day", "snapshots", start, err)

	var found *domain.Metrics
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return false, err
	default:
		found = &existing
	}

	switch decideDayWrite(found, m) {
	case dayWriteInsert:
		start = time.Now()
		_, err = tx.Exec(ctx, `
INSERT INTO snapshots (account_id, followers, likes, comments, videos, views, total_items_seen, observed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, accountID, m.Followers, m.Likes, m.Comments, m.Videos, m.Views, m.TotalItemsSeen, now.UTC())
		metrics.ObserveNetworkRequest("postgres", "snapshots_insert", "snapshots", start, err)
		if err != nil {
			if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23503" {
				return false, fmt.Errorf("%w: id=%d", ErrAccountNotFound, accountID)
			}
			return false, err
		}
	case dayWriteNoop:
		start = time.Now()
		err = tx.Commit(ctx)
		metrics.ObserveNetworkRequest("postgres", "commit", "snapshots", start, err)
		if err != nil {
			return false, err
		}
		metrics.ObserveSnapshotWrite(false)
		return false, nil
	case dayWriteUpdate:
		start = time.Now()
		_, err = tx.Exec(ctx, `
UPDATE snapshots
SET followers=$2, likes=$3, comments=$4, videos=$5, views=$6, total_items_seen=$7, observed_at=$8
WHERE id=$1
`, snapshotID, m.Followers, m.Likes, m.Comments, m.Videos, m.Views, m.TotalItemsSeen, now.UTC())
		metrics.ObserveNetworkRequest("postgres", "snapshots_update_day", "snapshots", start, err)
		if err != nil {
			return false, err
		}
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "snapshots", start, err)
	if err != nil {
		return false, err
	}
	metrics.ObserveSnapshotWrite(true)
	return true, nil
}

// ListSnapshots возвращает снапшоты аккаунта, новые первыми.
func (p *Postgres) ListSnapshots(ctx context.Context, accountID int64, from, to time.Time, limit int) ([]domain.Snapshot, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, account_id, followers, likes, comments, videos, views, total_items_seen, observed_at
FROM snapshots
WHERE account_id=$1 AND observed_at >= $2 AND observed_at < $3
ORDER BY observed_at DESC
LIMIT $4
`, accountID, from, to, limit)
	metrics.ObserveNetworkRequest("postgres", "snapshots_list", "snapshots", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var snapshots []domain.Snapshot
	for rows.Next() {
		var s domain.Snapshot
		if err := rows.Scan(&s.ID, &s.AccountID, &s.Metrics.Followers, &s.Metrics.Likes, &s.Metrics.Comments, &s.Metrics.Videos, &s.Metrics.Views, &s.Metrics.TotalItemsSeen, &s.ObservedAt); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

// DailyStat считает старт, финиш и прирост метрик за календарный день по первому
// и последнему снапшоту. Если снапшотов за день нет, второй результат false.
func (p *Postgres) DailyStat(ctx context.Context, accountID int64, date time.Time) (domain.DailyStat, bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	dayStart := date.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT followers, likes, comments, videos, views, total_items_seen
FROM snapshots
WHERE account_id=$1 AND observed_at >= $2 AND observed_at < $3
ORDER BY observed_at
`, accountID, dayStart, dayEnd)
	metrics.ObserveNetworkRequest("postgres", "snapshots_daily_stat", "snapshots", start, err)
	if err != nil {
		return domain.DailyStat{}, false, err
	}
	defer rows.Close()

	var (
		first domain.Metrics
		last  domain.Metrics
		found bool
	)
	for rows.Next() {
		var m domain.Metrics
		if err := rows.Scan(&m.Followers, &m.Likes, &m.Comments, &m.Videos, &m.Views, &m.TotalItemsSeen); err != nil {
			return domain.DailyStat{}, false, err
		}
		if !found {
			first = m
			found = true
		}
		last = m
	}
	if err := rows.Err(); err != nil {
		return domain.DailyStat{}, false, err
	}
	if !found {
		return domain.DailyStat{}, false, nil
	}

	return domain.DailyStat{
		AccountID: accountID,
		Date:      dayStart,
		Start:     first,
		End:       last,
		Growth: domain.Metrics{
			Followers:      last.Followers - first.Followers,
			Likes:          last.Likes - first.Likes,
			Comments:       last.Comments - first.Comments,
			Videos:         last.Videos - first.Videos,
			Views:          last.Views - first.Views,
			TotalItemsSeen: last.TotalItemsSeen - first.TotalItemsSeen,
		},
	}, true, nil
}

// ProjectHistory суммирует просмотры проекта по дням. По каждому аккаунту за день
// берётся максимум views, затем максимумы суммируются по аккаунтам: это защищает
// от повторного счёта при нескольких снапшотах за день и от ложных провалов
// при ошибочно заниженном повторном сборе.
func (p *Postgres) ProjectHistory(ctx context.Context, projectID int64, from, to time.Time) ([]domain.HistoryPoint, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT day, SUM(max_views)::bigint
FROM (
    SELECT s.account_id, date_trunc('day', s.observed_at AT TIME ZONE 'UTC') AS day, MAX(s.views) AS max_views
    FROM snapshots s
    JOIN accounts a ON a.id = s.account_id
    WHERE a.project_id=$1 AND s.observed_at >= $2 AND s.observed_at < $3
    GROUP BY s.account_id, day
) per_account
GROUP BY day
ORDER BY day
`, projectID, from, to)
	metrics.ObserveNetworkRequest("postgres", "snapshots_project_history", "snapshots", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var history []domain.HistoryPoint
	for rows.Next() {
		var point domain.HistoryPoint
		if err := rows.Scan(&point.Date, &point.TotalViews); err != nil {
			return nil, err
		}
		history = append(history, point)
	}
	return history, rows.Err()
}

// ProjectCurrentViews суммирует просмотры из последнего снапшота каждого
// активного аккаунта проекта.
func (p *Postgres) ProjectCurrentViews(ctx context.Context, projectID int64) (int64, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var total int64
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT COALESCE(SUM(latest.views), 0)::bigint
FROM (
    SELECT DISTINCT ON (s.account_id) s.views
    FROM snapshots s
    JOIN accounts a ON a.id = s.account_id
    WHERE a.project_id=$1 AND a.is_active
    ORDER BY s.account_id, s.observed_at DESC
) latest
`, projectID).Scan(&total)
	metrics.ObserveNetworkRequest("postgres", "snapshots_current_views", "snapshots", start, err)
	return total, err
}

// CreateJob сохраняет задачу и счётчики по платформам в одной транзакции.
func (p *Postgres) CreateJob(ctx context.Context, job domain.RefreshJob, counters []domain.PlatformCounters) (domain.RefreshJob, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "refresh_jobs", start, err)
	if err != nil {
		return domain.RefreshJob{}, err
	}
	defer tx.Rollback(ctx)

	start = time.Now()
	err = tx.QueryRow(ctx, `
INSERT INTO refresh_jobs (id, kind, project_id, status, total)
VALUES ($1,$2,$3,$4,$5)
RETURNING created_at
`, job.ID, job.Kind, job.ProjectID, domain.JobStatusPending, job.Total).Scan(&job.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "refresh_jobs_insert", "refresh_jobs", start, err)
	if err != nil {
		return domain.RefreshJob{}, err
	}

	for _, c := range counters {
		start = time.Now()
		_, err = tx.Exec(ctx, `
INSERT INTO refresh_job_platforms (job_id, platform, total)
VALUES ($1,$2,$3)
`, job.ID, c.Platform, c.Total)
		metrics.ObserveNetworkRequest("postgres", "refresh_job_platforms_insert", "refresh_job_platforms", start, err)
		if err != nil {
			return domain.RefreshJob{}, err
		}
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "refresh_jobs", start, err)
	if err != nil {
		return domain.RefreshJob{}, err
	}
	job.Status = domain.JobStatusPending
	return job, nil
}

// MarkJobRunning переводит задачу в running.
func (p *Postgres) MarkJobRunning(ctx context.Context, jobID string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE refresh_jobs SET status=$2, started_at=now() WHERE id=$1 AND status=$3
`, jobID, domain.JobStatusRunning, domain.JobStatusPending)
	metrics.ObserveNetworkRequest("postgres", "refresh_jobs_mark_running", "refresh_jobs", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("задача %s не в статусе pending", jobID)
	}
	return nil
}

// IncJobProgress атомарно инкрементирует счётчики задачи и платформы после
// завершения одного воркера. processed никогда не превышает total: инкремент
// выполняется ровно один раз на аккаунт.
func (p *Postgres) IncJobProgress(ctx context.Context, jobID string, platform domain.Platform, ok bool) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "refresh_jobs", start, err)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	okArg := 0
	failArg := 1
	if ok {
		okArg = 1
		failArg = 0
	}

	start = time.Now()
	_, err = tx.Exec(ctx, `
UPDATE refresh_jobs
SET processed = processed + 1,
    updated = updated + $2,
    failed = failed + $3,
    progress = CASE WHEN total > 0 THEN LEAST((processed + 1) * 100 / total, 100) ELSE 100 END
WHERE id=$1
`, jobID, okArg, failArg)
	metrics.ObserveNetworkRequest("postgres", "refresh_jobs_inc", "refresh_jobs", start, err)
	if err != nil {
		return err
	}

	start = time.Now()
	_, err = tx.Exec(ctx, `
UPDATE refresh_job_platforms
SET processed = processed + 1,
    updated = updated + $3,
    failed = failed + $4
WHERE job_id=$1 AND platform=$2
`, jobID, platform, okArg, failArg)
	metrics.ObserveNetworkRequest("postgres", "refresh_job_platforms_inc", "refresh_job_platforms", start, err)
	if err != nil {
		return err
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "refresh_jobs", start, err)
	return err
}

// FinishJob переводит задачу в completed и сохраняет итог.
func (p *Postgres) FinishJob(ctx context.Context, jobID string, result domain.JobResult) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE refresh_jobs
SET status=$2, result=$3, progress=100, finished_at=now()
WHERE id=$1 AND status=$4
`, jobID, domain.JobStatusCompleted, payload, domain.JobStatusRunning)
	metrics.ObserveNetworkRequest("postgres", "refresh_jobs_finish", "refresh_jobs", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("задача %s не в статусе running", jobID)
	}
	return nil
}

// FailJob переводит задачу в failed с сообщением об ошибке.
func (p *Postgres) FailJob(ctx context.Context, jobID string, errMsg string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE refresh_jobs
SET status=$2, error=$3, finished_at=now()
WHERE id=$1 AND status NOT IN ('completed','failed')
`, jobID, domain.JobStatusFailed, errMsg)
	metrics.ObserveNetworkRequest("postgres", "refresh_jobs_fail", "refresh_jobs", start, err)
	return err
}

// GetJob возвращает задачу по идентификатору.
func (p *Postgres) GetJob(ctx context.Context, jobID string) (domain.RefreshJob, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var (
		job        domain.RefreshJob
		result     []byte
		errMsg     sql.NullString
		startedAt  sql.NullTime
		finishedAt sql.NullTime
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, kind, project_id, status, progress, total, processed, updated, failed, result, error, created_at, started_at, finished_at
FROM refresh_jobs WHERE id=$1
`, jobID).Scan(&job.ID, &job.Kind, &job.ProjectID, &job.Status, &job.Progress, &job.Total, &job.Processed, &job.Updated, &job.Failed, &result, &errMsg, &job.CreatedAt, &startedAt, &finishedAt)
	metrics.ObserveNetworkRequest("postgres", "refresh_jobs_get", "refresh_jobs", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RefreshJob{}, ErrJobNotFound
	}
	if err != nil {
		return domain.RefreshJob{}, err
	}
	if errMsg.Valid {
		job.Error = errMsg.String
	}
	if startedAt.Valid {
		ts := startedAt.Time
		job.StartedAt = &ts
	}
	if finishedAt.Valid {
		ts := finishedAt.Time
		job.FinishedAt = &ts
	}
	if len(result) > 0 {
		var r domain.JobResult
		if err := json.Unmarshal(result, &r); err == nil {
			job.Result = &r
		}
	}
	return job, nil
}

// ProjectProgress возвращает счётчики по платформам последней задачи проекта.
func (p *Postgres) ProjectProgress(ctx context.Context, projectID int64) ([]domain.PlatformCounters, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT jp.platform, jp.total, jp.processed, jp.updated, jp.failed
FROM refresh_job_platforms jp
JOIN refresh_jobs j ON j.id = jp.job_id
WHERE j.project_id=$1
  AND j.created_at = (SELECT MAX(created_at) FROM refresh_jobs WHERE project_id=$1)
ORDER BY jp.platform
`, projectID)
	metrics.ObserveNetworkRequest("postgres", "refresh_job_platforms_progress", "refresh_job_platforms", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var counters []domain.PlatformCounters
	for rows.Next() {
		var c domain.PlatformCounters
		if err := rows.Scan(&c.Platform, &c.Total, &c.Processed, &c.Updated, &c.Failed); err != nil {
			return nil, err
		}
		counters = append(counters, c)
	}
	return counters, rows.Err()
}

// PurgeTerminalJobs удаляет завершённые задачи старше указанного времени.
func (p *Postgres) PurgeTerminalJobs(ctx context.Context, olderThan time.Time) (int64, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
DELETE FROM refresh_jobs
WHERE status IN ('completed','failed') AND finished_at < $1
`, olderThan)
	metrics.ObserveNetworkRequest("postgres", "refresh_jobs_purge", "refresh_jobs", start, err)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
