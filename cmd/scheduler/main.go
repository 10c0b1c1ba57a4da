package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"tg-track-bot/internal/adapters/repo"
	"tg-track-bot/internal/domain"
	"tg-track-bot/internal/infra/cache"
	"tg-track-bot/internal/infra/config"
	"tg-track-bot/internal/infra/db"
	"tg-track-bot/internal/infra/log"
	"tg-track-bot/internal/infra/queue"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv, "scheduler")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: нет подключения к БД")
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	repoAdapter := repo.NewPostgres(pool)
	refreshQueue := queue.NewRedisRefreshQueue(redisClient, cfg.Queues.Refresh)
	once := cache.NewRedis(redisClient)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	logger.Info().Int("hour", cfg.Refresh.Hour).Msg("scheduler: старт")
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("scheduler: остановка")
			return
		case <-ticker.C:
		}

		now := time.Now().UTC()
		if now.Hour() != cfg.Refresh.Hour {
			continue
		}

		projects, err := repoAdapter.ListActiveProjects(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("scheduler: ошибка выборки проектов")
			continue
		}

		day := now.Format("2006-01-02")
		for _, project := range projects {
			key := fmt.Sprintf("refresh:scheduled:%s:%d", day, project.ID)
			err := once.Once(ctx, key, 24*time.Hour, func() error {
				return refreshQueue.Enqueue(ctx, domain.RefreshTask{
					ProjectID:   project.ID,
					Cause:       domain.RefreshCauseScheduled,
					ChatID:      project.ChatID,
					RequestedAt: now,
				})
			})
			if err != nil {
				logger.Error().Err(err).Int64("project_id", project.ID).Msg("scheduler: не удалось поставить обновление")
			}
		}

		purgeKey := "refresh:purge:" + day
		err = once.Once(ctx, purgeKey, 24*time.Hour, func() error {
			olderThan := now.AddDate(0, 0, -cfg.Refresh.JobTTLDays)
			purged, err := repoAdapter.PurgeTerminalJobs(ctx, olderThan)
			if err != nil {
				return err
			}
			if purged > 0 {
				logger.Info().Int64("purged", purged).Msg("scheduler: удалены старые задачи")
			}
			return nil
		})
		if err != nil {
			logger.Error().Err(err).Msg("scheduler: очистка задач не удалась")
		}
	}
}
