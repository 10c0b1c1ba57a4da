package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"tg-track-bot/internal/adapters/fetcher"
	"tg-track-bot/internal/adapters/notify"
	"tg-track-bot/internal/adapters/repo"
	"tg-track-bot/internal/adapters/sheets"
	"tg-track-bot/internal/domain"
	"tg-track-bot/internal/infra/config"
	"tg-track-bot/internal/infra/db"
	"tg-track-bot/internal/infra/log"
	"tg-track-bot/internal/infra/metrics"
	"tg-track-bot/internal/infra/queue"
	"tg-track-bot/internal/usecase/refresh"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv, "refresher")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("refresher: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)

	var refreshQueue domain.RefreshQueue
	switch cfg.Queues.Backend {
	case "rabbitmq":
		amqpQueue, err := queue.NewAMQPRefreshQueue(cfg.Queues.AMQPURL, cfg.Queues.Refresh)
		if err != nil {
			logger.Fatal().Err(err).Msg("refresher: нет подключения к RabbitMQ")
		}
		defer amqpQueue.Close()
		refreshQueue = amqpQueue
	default:
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		refreshQueue = queue.NewRedisRefreshQueue(redisClient, cfg.Queues.Refresh)
	}

	sheetClient, err := newSheetClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("refresher: не удалось создать клиент таблиц")
	}

	fetchers := fetcher.NewRegistry(cfg.Parser.BaseURL, cfg.Parser.Token, cfg.Parser.Timeout)

	var notifier domain.Notifier
	if cfg.Telegram.Token != "" {
		bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			logger.Fatal().Err(err).Msg("refresher: не удалось создать бота")
		}
		notifier = notify.NewTelegram(bot)
	}

	coordinator := refresh.NewService(repoAdapter, repoAdapter, repoAdapter, repoAdapter, fetchers, sheetClient, refresh.Params{
		BatchSize:     cfg.Refresh.BatchSize,
		Workers:       cfg.Refresh.Workers,
		BatchCooldown: cfg.Refresh.BatchCooldown,
	}, logger)

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")
	logger.Info().Msg("refresher: старт")

	for {
		task, err := refreshQueue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Info().Msg("refresher: остановка")
				return
			}
			logger.Error().Err(err).Msg("refresher: ошибка чтения очереди")
			continue
		}

		job, err := coordinator.Run(ctx, task)
		if err != nil {
			logger.Error().Err(err).Int64("project_id", task.ProjectID).Msg("refresher: задача не выполнена")
			continue
		}

		if notifier != nil && task.ChatID != 0 {
			if err := notifier.NotifyJobFinished(ctx, task.ChatID, job); err != nil {
				logger.Error().Err(err).Str("job_id", job.ID).Msg("refresher: уведомление не отправлено")
			}
		}
	}
}

func newSheetClient(ctx context.Context, cfg config.AppConfig) (domain.SheetClient, error) {
	if cfg.Sheets.CredentialsJSON != "" {
		return sheets.NewClient(ctx, []byte(cfg.Sheets.CredentialsJSON))
	}
	return sheets.NewClientFromFile(ctx, cfg.Sheets.CredentialsFile)
}
