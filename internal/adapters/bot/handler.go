package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-track-bot/internal/adapters/telegram"
	"tg-track-bot/internal/domain"
	"tg-track-bot/internal/usecase/accounts"
	"tg-track-bot/internal/usecase/history"
)

// historyWindow — глубина истории для команды /history.
const historyWindow = 14 * 24 * time.Hour

// Handler обслуживает команды операторского бота.
type Handler struct {
	bot       *tgbotapi.BotAPI
	log       zerolog.Logger
	accountUC *accounts.Service
	historyUC *history.Service
	jobs      domain.JobRepo
	queue     domain.RefreshQueue
}

// NewHandler создаёт обработчик.
func NewHandler(bot *tgbotapi.BotAPI, log zerolog.Logger, accountUC *accounts.Service, historyUC *history.Service, jobs domain.JobRepo, queue domain.RefreshQueue) *Handler {
	return &Handler{
		bot:       bot,
		log:       log,
		accountUC: accountUC,
		historyUC: historyUC,
		jobs:      jobs,
		queue:     queue,
	}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message == nil {
		return
	}
	h.handleMessage(ctx, upd.Message)
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.Text)
	switch {
	case strings.HasPrefix(text, "/start"), strings.HasPrefix(text, "/help"):
		h.reply(msg.Chat.ID, helpMessage())
	case strings.HasPrefix(text, "/refresh"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/refresh"))
		h.handleRefresh(ctx, msg.Chat.ID, payload)
	case strings.HasPrefix(text, "/progress"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/progress"))
		h.handleProgress(ctx, msg.Chat.ID, payload)
	case strings.HasPrefix(text, "/history"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/history"))
		h.handleHistory(ctx, msg.Chat.ID, payload)
	case strings.HasPrefix(text, "/add"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/add"))
		h.handleAdd(ctx, msg.Chat.ID, msg.From, payload)
	case strings.HasPrefix(text, "/accounts"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/accounts"))
		h.handleAccounts(ctx, msg.Chat.ID, payload)
	case strings.HasPrefix(text, "/status"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/status"))
		h.handleStatus(ctx, msg.Chat.ID, payload)
	default:
		h.reply(msg.Chat.ID, "Неизвестная команда. Используйте /help")
	}
}

func (h *Handler) handleRefresh(ctx context.Context, chatID int64, payload string) {
	projectID, rest, err := parseProjectArg(payload)
	if err != nil {
		h.reply(chatID, "Отправьте /refresh <id проекта> [платформы через запятую]")
		return
	}
	platforms, err := parsePlatformList(rest)
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Не удалось разобрать платформы: %v", err))
		return
	}

	task := domain.RefreshTask{
		ProjectID:   projectID,
		Platforms:   platforms,
		Cause:       domain.RefreshCauseManual,
		ChatID:      chatID,
		RequestedAt: time.Now().UTC(),
	}
	if err := h.queue.Enqueue(ctx, task); err != nil {
		h.log.Error().Err(err).Int64("project_id", projectID).Msg("bot: не удалось поставить обновление")
		h.reply(chatID, "Не удалось поставить обновление в очередь, попробуйте позже")
		return
	}
	h.reply(chatID, fmt.Sprintf("Обновление проекта %d поставлено в очередь. Прогресс: /progress %d", projectID, projectID))
}

func (h *Handler) handleProgress(ctx context.Context, chatID int64, payload string) {
	projectID, _, err := parseProjectArg(payload)
	if err != nil {
		h.reply(chatID, "Отправьте /progress <id проекта>")
		return
	}
	counters, err := h.jobs.ProjectProgress(ctx, projectID)
	if err != nil {
		h.log.Error().Err(err).Int64("project_id", projectID).Msg("bot: не удалось получить прогресс")
		h.reply(chatID, "Не удалось получить прогресс")
		return
	}
	h.reply(chatID, formatProgress(projectID, counters))
}

func (h *Handler) handleHistory(ctx context.Context, chatID int64, payload string) {
	projectID, _, err := parseProjectArg(payload)
	if err != nil {
		h.reply(chatID, "Отправьте /history <id проекта>")
		return
	}
	now := time.Now().UTC()
	points, growth, err := h.historyUC.ProjectHistoryWithLive(ctx, projectID, now.Add(-historyWindow), now, now)
	if err != nil {
		h.log.Error().Err(err).Int64("project_id", projectID).Msg("bot: не удалось получить историю")
		h.reply(chatID, "Не удалось получить историю проекта")
		return
	}
	h.reply(chatID, formatHistory(projectID, points, growth))
}

func (h *Handler) handleAdd(ctx context.Context, chatID int64, from *tgbotapi.User, payload string) {
	projectID, rest, err := parseProjectArg(payload)
	if err != nil || rest == "" {
		h.reply(chatID, "Отправьте /add <id проекта> <URL профиля> [имя]")
		return
	}
	fields := strings.Fields(rest)
	params := accounts.AddParams{ProjectID: projectID, URL: fields[0]}
	if len(fields) > 1 {
		params.Username = fields[1]
	}
	if from != nil {
		params.OwnerTGID = from.ID
	}

	account, err := h.accountUC.AddAccount(ctx, params)
	if err != nil {
		if errors.Is(err, accounts.ErrURLEmpty) {
			h.reply(chatID, "Не указан URL профиля")
			return
		}
		h.log.Error().Err(err).Int64("project_id", projectID).Msg("bot: не удалось добавить аккаунт")
		h.reply(chatID, "Не удалось добавить аккаунт")
		return
	}
	h.reply(chatID, fmt.Sprintf("Аккаунт добавлен: #%d %s (%s)", account.ID, account.URL, account.Platform))
}

func (h *Handler) handleAccounts(ctx context.Context, chatID int64, payload string) {
	projectID, _, err := parseProjectArg(payload)
	if err != nil {
		h.reply(chatID, "Отправьте /accounts <id проекта>")
		return
	}
	list, err := h.accountUC.ListProjectAccounts(ctx, projectID)
	if err != nil {
		h.log.Error().Err(err).Int64("project_id", projectID).Msg("bot: не удалось получить аккаунты")
		h.reply(chatID, "Не удалось получить аккаунты проекта")
		return
	}
	if len(list) == 0 {
		h.reply(chatID, "В проекте нет аккаунтов. Добавьте: /add <id проекта> <URL>")
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Аккаунты проекта %d:\n", projectID)
	for _, account := range list {
		fmt.Fprintf(&b, "#%d [%s] %s — %s\n", account.ID, account.Platform, account.URL, account.Status)
	}
	h.reply(chatID, b.String())
}

func (h *Handler) handleStatus(ctx context.Context, chatID int64, payload string) {
	fields := strings.Fields(payload)
	if len(fields) != 2 {
		h.reply(chatID, "Отправьте /status <id аккаунта> <new|old|banned>")
		return
	}
	accountID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		h.reply(chatID, "Некорректный id аккаунта")
		return
	}
	if err := h.accountUC.SetStatus(ctx, accountID, domain.AccountStatus(fields[1])); err != nil {
		h.reply(chatID, fmt.Sprintf("Не удалось сменить статус: %v", err))
		return
	}
	h.reply(chatID, fmt.Sprintf("Статус аккаунта #%d: %s", accountID, fields[1]))
}

func (h *Handler) reply(chatID int64, text string) {
	for _, part := range telegram.SplitMessage(text) {
		if _, err := h.bot.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
			h.log.Error().Err(err).Int64("chat_id", chatID).Msg("bot: не удалось отправить сообщение")
			return
		}
	}
}

// parseProjectArg выделяет ведущий id проекта и возвращает остаток строки.
func parseProjectArg(payload string) (int64, string, error) {
	payload = strings.TrimSpace(payload)
	fields := strings.Fields(payload)
	if len(fields) == 0 {
		return 0, "", errors.New("не указан id проекта")
	}
	projectID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || projectID <= 0 {
		return 0, "", fmt.Errorf("некорректный id проекта: %q", fields[0])
	}
	return projectID, strings.TrimSpace(strings.TrimPrefix(payload, fields[0])), nil
}

// parsePlatformList разбирает список платформ через запятую, отбрасывая
// повторы. Пустая строка — все известные платформы.
func parsePlatformList(raw string) ([]domain.Platform, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var platforms []domain.Platform
	seen := make(map[domain.Platform]struct{})
	for _, token := range strings.Split(raw, ",") {
		platform, ok := domain.ParsePlatform(token)
		if !ok {
			return nil, fmt.Errorf("неизвестная платформа %q", strings.TrimSpace(token))
		}
		if _, dup := seen[platform]; dup {
			continue
		}
		seen[platform] = struct{}{}
		platforms = append(platforms, platform)
	}
	return platforms, nil
}

func formatProgress(projectID int64, counters []domain.PlatformCounters) string {
	if len(counters) == 0 {
		return fmt.Sprintf("По проекту %d ещё не запускалось обновление", projectID)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Прогресс обновления проекта %d:\n", projectID)
	done := true
	for _, c := range counters {
		fmt.Fprintf(&b, "%s: %d/%d, обновлено %d, с ошибками %d\n", c.Platform, c.Processed, c.Total, c.Updated, c.Failed)
		if !c.Done() {
			done = false
		}
	}
	if done {
		b.WriteString("Обновление завершено.")
	}
	return b.String()
}

func formatHistory(projectID int64, points []domain.HistoryPoint, growth int64) string {
	if len(points) == 0 {
		return fmt.Sprintf("По проекту %d ещё нет истории просмотров", projectID)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Просмотры проекта %d по дням:\n", projectID)
	for _, point := range points {
		fmt.Fprintf(&b, "%s — %d\n", point.Date.Format("02.01"), point.TotalViews)
	}
	fmt.Fprintf(&b, "Прирост за сутки: %+d", growth)
	return b.String()
}

func helpMessage() string {
	return strings.Join([]string{
		"Бот аналитики проектов.",
		"",
		"/refresh <id проекта> [платформы] — запустить обновление метрик",
		"/progress <id проекта> — прогресс последнего обновления",
		"/history <id проекта> — просмотры по дням и прирост за сутки",
		"/add <id проекта> <URL> [имя] — добавить аккаунт",
		"/accounts <id проекта> — список аккаунтов проекта",
		"/status <id аккаунта> <new|old|banned> — сменить статус аккаунта",
	}, "\n")
}
