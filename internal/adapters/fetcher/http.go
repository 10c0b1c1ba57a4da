package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tg-track-bot/internal/domain"
	"tg-track-bot/internal/infra/metrics"
)

// Client получает текущие метрики профиля у внешнего парсер-сервиса.
// Вызов непрозрачный: сервис сам ходит в соцсеть и возвращает кортеж метрик.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	path       string
	platform   domain.Platform
}

var _ domain.Fetcher = (*Client)(nil)

// NewClient создаёт сборщик для одной платформы.
func NewClient(baseURL, token string, platform domain.Platform, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		path:       fmt.Sprintf("/api/v1/%s/profile", platform),
		platform:   platform,
	}
}

// parsedMetrics принимает числа, строки и отсутствующие поля: нечисловые
// значения читаются как ноль, а не как ошибка.
type parsedMetrics struct {
	Followers      json.RawMessage `json:"followers"`
	Likes          json.RawMessage `json:"likes"`
	Comments       json.RawMessage `json:"comments"`
	Videos         json.RawMessage `json:"videos"`
	Views          json.RawMessage `json:"views"`
	TotalItemsSeen json.RawMessage `json:"total_items_seen"`
}

// Fetch запрашивает свежие метрики профиля.
func (c *Client) Fetch(ctx context.Context, account domain.Account) (domain.Metrics, error) {
	endpoint := fmt.Sprintf("%s%s?url=%s", c.baseURL, c.path, url.QueryEscape(account.URL))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Metrics{}, fmt.Errorf("создание запроса: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveNetworkRequest("parser", "fetch_profile", string(c.platform), start, err)
	if err != nil {
		return domain.Metrics{}, fmt.Errorf("запрос парсера: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Metrics{}, fmt.Errorf("парсер %s: статус %d: %s", c.platform, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed parsedMetrics
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return domain.Metrics{}, fmt.Errorf("декодирование ответа парсера: %w", err)
	}

	return domain.Metrics{
		Followers:      lenientInt(parsed.Followers),
		Likes:          lenientInt(parsed.Likes),
		Comments:       lenientInt(parsed.Comments),
		Videos:         lenientInt(parsed.Videos),
		Views:          lenientInt(parsed.Views),
		TotalItemsSeen: lenientInt(parsed.TotalItemsSeen),
	}.Clamp(), nil
}

func lenientInt(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if v, err := n.Int64(); err == nil {
			return v
		}
		if f, err := n.Float64(); err == nil {
			return int64(f)
		}
		return 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0
		}
		return v
	}
	return 0
}
