package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"tg-track-bot/internal/adapters/repo"
	"tg-track-bot/internal/domain"
	"tg-track-bot/internal/usecase/accounts"
	"tg-track-bot/internal/usecase/history"
	"tg-track-bot/internal/usecase/refresh"
)

type apiHandlers struct {
	projects  domain.ProjectRepo
	snapshots domain.SnapshotRepo
	jobs      domain.JobRepo
	accounts  *accounts.Service
	history   *history.Service
	watcher   *refresh.Watcher
	queue     domain.RefreshQueue
	log       zerolog.Logger
}

func (h *apiHandlers) mount(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/projects/{projectID}", func(r chi.Router) {
			r.Post("/refresh", h.enqueueRefresh)
			r.Get("/refresh/progress", h.refreshProgress)
			r.Get("/refresh/events", h.refreshEvents)
			r.Get("/history", h.projectHistory)
			r.Get("/accounts", h.listAccounts)
			r.Post("/accounts", h.addAccount)
		})
		r.Route("/accounts/{accountID}", func(r chi.Router) {
			r.Delete("/", h.deactivateAccount)
			r.Post("/status", h.setAccountStatus)
			r.Post("/snapshot", h.manualSnapshot)
			r.Get("/daily", h.dailyStat)
			r.Get("/snapshots", h.listSnapshots)
		})
	})
}

type refreshRequest struct {
	Platforms []string `json:"platforms"`
	ChatID    int64    `json:"chat_id"`
}

func (h *apiHandlers) enqueueRefresh(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathID(w, r, "projectID")
	if !ok {
		return
	}
	defer r.Body.Close()
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	var platforms []domain.Platform
	for _, raw := range req.Platforms {
		platform, ok := domain.ParsePlatform(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown platform: %s", raw))
			return
		}
		platforms = append(platforms, platform)
	}
	if _, err := h.projects.GetProject(r.Context(), projectID); err != nil {
		if errors.Is(err, repo.ErrProjectNotFound) {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}
		h.log.Error().Err(err).Int64("project_id", projectID).Msg("api: проверка проекта")
		writeError(w, http.StatusInternalServerError, "failed to load project")
		return
	}
	task := domain.RefreshTask{
		ProjectID:   projectID,
		Platforms:   platforms,
		Cause:       domain.RefreshCauseManual,
		ChatID:      req.ChatID,
		RequestedAt: time.Now().UTC(),
	}
	if err := h.queue.Enqueue(r.Context(), task); err != nil {
		h.log.Error().Err(err).Int64("project_id", projectID).Msg("api: постановка задачи в очередь")
		writeError(w, http.StatusInternalServerError, "failed to enqueue refresh")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "queued"})
}

func (h *apiHandlers) refreshProgress(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathID(w, r, "projectID")
	if !ok {
		return
	}
	counters, err := h.jobs.ProjectProgress(r.Context(), projectID)
	if err != nil {
		h.log.Error().Err(err).Int64("project_id", projectID).Msg("api: чтение прогресса")
		writeError(w, http.StatusInternalServerError, "failed to load progress")
		return
	}
	writeJSON(w, progressPayload(counters))
}

// refreshEvents отдаёт прогресс обновления потоком server-sent events:
// событие на каждое изменение счётчиков и финальное {"status":"completed"},
// после которого поток закрывается. Отключение клиента не влияет на задачу.
func (h *apiHandlers) refreshEvents(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathID(w, r, "projectID")
	if !ok {
		return
	}
	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for update := range h.watcher.Watch(r.Context(), projectID) {
		payload, err := json.Marshal(progressPayload(update.Counters))
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
		if update.Done {
			fmt.Fprint(w, "data: {\"status\":\"completed\"}\n\n")
			flusher.Flush()
			return
		}
	}
}

func progressPayload(counters []domain.PlatformCounters) map[string]map[string]int {
	payload := make(map[string]map[string]int, len(counters))
	for _, c := range counters {
		payload[string(c.Platform)] = map[string]int{
			"total":     c.Total,
			"processed": c.Processed,
			"updated":   c.Updated,
			"failed":    c.Failed,
		}
	}
	return payload
}

func (h *apiHandlers) projectHistory(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathID(w, r, "projectID")
	if !ok {
		return
	}
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -30).Truncate(24 * time.Hour)
	to := now.Add(24 * time.Hour)
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from date")
			return
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date")
			return
		}
		to = parsed.Add(24 * time.Hour)
	}
	points, growth, err := h.history.ProjectHistoryWithLive(r.Context(), projectID, from, to, now)
	if err != nil {
		h.log.Error().Err(err).Int64("project_id", projectID).Msg("api: история проекта")
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, map[string]any{
		"history":    points,
		"growth_24h": growth,
	})
}

type addAccountRequest struct {
	URL       string `json:"url"`
	Username  string `json:"username"`
	Topic     string `json:"topic"`
	OwnerTGID int64  `json:"owner_tg_id"`
}

func (h *apiHandlers) addAccount(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathID(w, r, "projectID")
	if !ok {
		return
	}
	defer r.Body.Close()
	var req addAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	account, err := h.accounts.AddAccount(r.Context(), accounts.AddParams{
		ProjectID: projectID,
		URL:       req.URL,
		Username:  req.Username,
		Topic:     req.Topic,
		OwnerTGID: req.OwnerTGID,
	})
	if err != nil {
		if errors.Is(err, accounts.ErrURLEmpty) {
			writeError(w, http.StatusBadRequest, "url is required")
			return
		}
		h.log.Error().Err(err).Int64("project_id", projectID).Msg("api: добавление аккаунта")
		writeError(w, http.StatusInternalServerError, "failed to add account")
		return
	}
	writeJSON(w, accountPayload(account))
}

func (h *apiHandlers) listAccounts(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathID(w, r, "projectID")
	if !ok {
		return
	}
	list, err := h.accounts.ListProjectAccounts(r.Context(), projectID)
	if err != nil {
		h.log.Error().Err(err).Int64("project_id", projectID).Msg("api: список аккаунтов")
		writeError(w, http.StatusInternalServerError, "failed to list accounts")
		return
	}
	payload := make([]map[string]any, 0, len(list))
	for _, account := range list {
		payload = append(payload, accountPayload(account))
	}
	writeJSON(w, payload)
}

func (h *apiHandlers) deactivateAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathID(w, r, "accountID")
	if !ok {
		return
	}
	if err := h.accounts.Deactivate(r.Context(), accountID); err != nil {
		if errors.Is(err, repo.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		h.log.Error().Err(err).Int64("account_id", accountID).Msg("api: деактивация аккаунта")
		writeError(w, http.StatusInternalServerError, "failed to deactivate account")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandlers) setAccountStatus(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathID(w, r, "accountID")
	if !ok {
		return
	}
	defer r.Body.Close()
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.accounts.SetStatus(r.Context(), accountID, domain.AccountStatus(req.Status)); err != nil {
		if errors.Is(err, repo.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// manualSnapshot записывает наблюдение напрямую, минуя сверку с таблицей.
func (h *apiHandlers) manualSnapshot(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathID(w, r, "accountID")
	if !ok {
		return
	}
	defer r.Body.Close()
	var m domain.Metrics
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	created, err := h.snapshots.UpsertDaySnapshot(r.Context(), accountID, m, time.Now())
	if err != nil {
		if errors.Is(err, repo.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		h.log.Error().Err(err).Int64("account_id", accountID).Msg("api: ручной снапшот")
		writeError(w, http.StatusInternalServerError, "failed to store snapshot")
		return
	}
	writeJSON(w, map[string]bool{"created": created})
}

func (h *apiHandlers) dailyStat(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathID(w, r, "accountID")
	if !ok {
		return
	}
	date := time.Now().UTC()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date")
			return
		}
		date = parsed
	}
	stat, found, err := h.history.DailyStat(r.Context(), accountID, date)
	if err != nil {
		h.log.Error().Err(err).Int64("account_id", accountID).Msg("api: статистика за день")
		writeError(w, http.StatusInternalServerError, "failed to load daily stat")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "no snapshots for this day")
		return
	}
	writeJSON(w, map[string]any{
		"account_id": stat.AccountID,
		"date":       stat.Date.Format("2006-01-02"),
		"start":      stat.Start,
		"end":        stat.End,
		"growth":     stat.Growth,
	})
}

func (h *apiHandlers) listSnapshots(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathID(w, r, "accountID")
	if !ok {
		return
	}
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -30)
	to := now.Add(time.Hour)
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	snapshots, err := h.snapshots.ListSnapshots(r.Context(), accountID, from, to, limit)
	if err != nil {
		h.log.Error().Err(err).Int64("account_id", accountID).Msg("api: список снапшотов")
		writeError(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}
	payload := make([]map[string]any, 0, len(snapshots))
	for _, s := range snapshots {
		payload = append(payload, map[string]any{
			"metrics":     s.Metrics,
			"observed_at": s.ObservedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, payload)
}

func accountPayload(account domain.Account) map[string]any {
	return map[string]any{
		"id":         account.ID,
		"project_id": account.ProjectID,
		"platform":   account.Platform,
		"url":        account.URL,
		"username":   account.Username,
		"status":     account.Status,
		"topic":      account.Topic,
	}
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": msg})
}
