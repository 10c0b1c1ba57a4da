package fetcher

import (
	"time"

	"tg-track-bot/internal/domain"
)

// Registry выбирает сборщик по платформе аккаунта. Добавление платформы —
// одно место: таблица правил в domain и конструктор здесь.
type Registry struct {
	clients map[domain.Platform]domain.Fetcher
}

var _ domain.FetcherRegistry = (*Registry)(nil)

// NewRegistry создаёт реестр сборщиков для всех известных платформ.
func NewRegistry(baseURL, token string, timeout time.Duration) *Registry {
	clients := make(map[domain.Platform]domain.Fetcher)
	for _, platform := range domain.KnownPlatforms() {
		clients[platform] = NewClient(baseURL, token, platform, timeout)
	}
	return &Registry{clients: clients}
}

// For возвращает сборщик платформы. Для неизвестной платформы используется
// сборщик запасной платформы.
func (r *Registry) For(platform domain.Platform) (domain.Fetcher, bool) {
	if client, ok := r.clients[platform]; ok {
		return client, true
	}
	client, ok := r.clients[domain.FallbackPlatform]
	return client, ok
}
