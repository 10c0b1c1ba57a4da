package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tg-track-bot/internal/adapters/telegram"
	"tg-track-bot/internal/domain"
	"tg-track-bot/internal/infra/metrics"
)

// Telegram отправляет оператору итог фоновой задачи.
type Telegram struct {
	bot *tgbotapi.BotAPI
}

var _ domain.Notifier = (*Telegram)(nil)

// NewTelegram создаёт нотификатор.
func NewTelegram(bot *tgbotapi.BotAPI) *Telegram {
	return &Telegram{bot: bot}
}

// NotifyJobFinished отправляет сводку завершённой задачи в чат оператора.
func (t *Telegram) NotifyJobFinished(ctx context.Context, chatID int64, job domain.RefreshJob) error {
	if chatID == 0 {
		return nil
	}
	for _, part := range telegram.SplitMessage(formatJobSummary(job)) {
		start := time.Now()
		_, err := t.bot.Send(tgbotapi.NewMessage(chatID, part))
		metrics.ObserveNetworkRequest("telegram", "send_message", "notify", start, err)
		if err != nil {
			return fmt.Errorf("отправка уведомления: %w", err)
		}
	}
	return nil
}

func formatJobSummary(job domain.RefreshJob) string {
	var b strings.Builder
	switch job.Status {
	case domain.JobStatusCompleted:
		b.WriteString("Обновление метрик завершено.\n")
	case domain.JobStatusFailed:
		b.WriteString("Обновление метрик прервано ошибкой.\n")
	default:
		b.WriteString("Обновление метрик: " + string(job.Status) + ".\n")
	}
	fmt.Fprintf(&b, "Аккаунтов: %d, обновлено: %d, с ошибками: %d.", job.Total, job.Updated, job.Failed)
	if job.Error != "" {
		b.WriteString("\nОшибка: " + job.Error)
	}
	if job.Result != nil && len(job.Result.Errors) > 0 {
		b.WriteString("\nПримеры ошибок:")
		for _, sample := range job.Result.Errors {
			b.WriteString("\n— " + sample)
		}
	}
	return b.String()
}
