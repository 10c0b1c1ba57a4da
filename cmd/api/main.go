package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"tg-track-bot/internal/adapters/repo"
	"tg-track-bot/internal/infra/config"
	"tg-track-bot/internal/infra/db"
	httpinfra "tg-track-bot/internal/infra/http"
	"tg-track-bot/internal/infra/log"
	"tg-track-bot/internal/infra/metrics"
	"tg-track-bot/internal/infra/queue"
	"tg-track-bot/internal/usecase/accounts"
	"tg-track-bot/internal/usecase/history"
	"tg-track-bot/internal/usecase/refresh"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv, "api")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	repoAdapter := repo.NewPostgres(pool)
	refreshQueue := queue.NewRedisRefreshQueue(redisClient, cfg.Queues.Refresh)

	handlers := &apiHandlers{
		projects:  repoAdapter,
		snapshots: repoAdapter,
		jobs:      repoAdapter,
		accounts:  accounts.NewService(repoAdapter, repoAdapter, logger),
		history:   history.NewService(repoAdapter),
		watcher:   refresh.NewWatcher(repoAdapter, time.Second),
		queue:     refreshQueue,
		log:       logger,
	}

	server := httpinfra.NewServer(logger)
	handlers.mount(server.Router)

	go func() {
		if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("api: сервер остановлен")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}
