package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"

	"tg-track-bot/internal/adapters/bot"
	"tg-track-bot/internal/adapters/repo"
	"tg-track-bot/internal/infra/config"
	"tg-track-bot/internal/infra/db"
	"tg-track-bot/internal/infra/log"
	"tg-track-bot/internal/infra/queue"
	"tg-track-bot/internal/usecase/accounts"
	"tg-track-bot/internal/usecase/history"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv, "bot")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: нет подключения к БД")
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	repoAdapter := repo.NewPostgres(pool)
	refreshQueue := queue.NewRedisRefreshQueue(redisClient, cfg.Queues.Refresh)
	accountService := accounts.NewService(repoAdapter, repoAdapter, logger)
	historyService := history.NewService(repoAdapter)

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: не удалось создать бота")
	}

	h := bot.NewHandler(botAPI, logger, accountService, historyService, repoAdapter, refreshQueue)

	r := chi.NewRouter()
	r.Post("/bot/webhook", func(w http.ResponseWriter, req *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(req.Body).Decode(&update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.HandleUpdate(req.Context(), update)
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: r}
	go func() {
		logger.Info().Int("port", cfg.Port).Msg("bot: вебхук запущен")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("bot: HTTP сервер остановлен")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("bot: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
