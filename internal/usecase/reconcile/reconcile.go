package reconcile

import (
	"github.com/rs/zerolog"

	"tg-track-bot/internal/domain"
)

// Merge сводит строку таблицы и свежесобранные метрики в канонический кортеж.
// Политика по каждому полю независимо: значение таблицы побеждает, если оно
// больше нуля, иначе берётся собранное значение. Таблица — редактируемый
// людьми источник истины: ручную правку оператора нельзя затереть устаревшим
// или сломанным сбором, но пустая ячейка дозаполняется автоматически.
// Функция чистая: запись результата в хранилище — ответственность вызывающего.
func Merge(sheet, fetched domain.Metrics) domain.Metrics {
	sheet = sheet.Clamp()
	fetched = fetched.Clamp()
	pick := func(s, f int64) int64 {
		if s > 0 {
			return s
		}
		return f
	}
	return domain.Metrics{
		Followers:      pick(sheet.Followers, fetched.Followers),
		Likes:          pick(sheet.Likes, fetched.Likes),
		Comments:       pick(sheet.Comments, fetched.Comments),
		Videos:         pick(sheet.Videos, fetched.Videos),
		Views:          pick(sheet.Views, fetched.Views),
		TotalItemsSeen: pick(sheet.TotalItemsSeen, fetched.TotalItemsSeen),
	}
}

// ResolvePlatform возвращает платформу аккаунта, при необходимости определяя её
// по URL. Неопределимая платформа — проблема качества данных, не ошибка:
// используется запасная платформа с предупреждением в логе.
func ResolvePlatform(account domain.Account, logger zerolog.Logger) domain.Platform {
	if account.Platform != "" && account.Platform != domain.PlatformUnknown {
		return account.Platform
	}
	platform, ok := domain.DetectPlatform(account.URL)
	if !ok {
		logger.Warn().
			Int64("account_id", account.ID).
			Str("url", account.URL).
			Str("fallback", string(domain.FallbackPlatform)).
			Msg("reconcile: платформа не определена по URL")
		return domain.FallbackPlatform
	}
	return platform
}
