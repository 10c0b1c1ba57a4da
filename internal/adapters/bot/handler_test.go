package bot

import (
	"strings"
	"testing"
	"time"

	"tg-track-bot/internal/domain"
)

func TestParseProjectArg(t *testing.T) {
	projectID, rest, err := parseProjectArg("  42 https://tiktok.com/@user user ")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if projectID != 42 {
		t.Fatalf("ожидали id 42, получили %d", projectID)
	}
	if rest != "https://tiktok.com/@user user" {
		t.Fatalf("остаток строки неверен: %q", rest)
	}
}

func TestParseProjectArgInvalid(t *testing.T) {
	if _, _, err := parseProjectArg(""); err == nil {
		t.Fatalf("пустая строка должна давать ошибку")
	}
	if _, _, err := parseProjectArg("abc"); err == nil {
		t.Fatalf("нечисловой id должен давать ошибку")
	}
	if _, _, err := parseProjectArg("-3"); err == nil {
		t.Fatalf("отрицательный id должен давать ошибку")
	}
}

func TestParsePlatformList(t *testing.T) {
	platforms, err := parsePlatformList("tiktok, youtube")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(platforms) != 2 || platforms[0] != domain.PlatformTikTok || platforms[1] != domain.PlatformYouTube {
		t.Fatalf("платформы разобраны неверно: %v", platforms)
	}

	if platforms, err := parsePlatformList("  "); err != nil || platforms != nil {
		t.Fatalf("пустой список означает все платформы: %v, %v", platforms, err)
	}

	platforms, err = parsePlatformList("tiktok,tiktok,youtube")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(platforms) != 2 || platforms[0] != domain.PlatformTikTok || platforms[1] != domain.PlatformYouTube {
		t.Fatalf("повторы платформ должны отбрасываться: %v", platforms)
	}

	if _, err := parsePlatformList("tiktok,vk"); err == nil {
		t.Fatalf("неизвестная платформа должна давать ошибку")
	}
}

func TestFormatProgress(t *testing.T) {
	text := formatProgress(1, []domain.PlatformCounters{
		{Platform: domain.PlatformTikTok, Total: 10, Processed: 10, Updated: 9, Failed: 1},
		{Platform: domain.PlatformYouTube, Total: 5, Processed: 5, Updated: 5},
	})
	if !strings.Contains(text, "tiktok: 10/10") {
		t.Fatalf("нет счётчика tiktok: %q", text)
	}
	if !strings.Contains(text, "Обновление завершено") {
		t.Fatalf("завершённый прогресс должен отмечаться: %q", text)
	}

	text = formatProgress(1, []domain.PlatformCounters{{Platform: domain.PlatformTikTok, Total: 10, Processed: 4}})
	if strings.Contains(text, "Обновление завершено") {
		t.Fatalf("незавершённый прогресс не должен отмечаться: %q", text)
	}

	if !strings.Contains(formatProgress(7, nil), "не запускалось") {
		t.Fatalf("пустой прогресс должен сообщать об отсутствии запусков")
	}
}

func TestFormatHistory(t *testing.T) {
	day := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	text := formatHistory(3, []domain.HistoryPoint{
		{Date: day, TotalViews: 100},
		{Date: day.AddDate(0, 0, 1), TotalViews: 130},
	}, 30)
	if !strings.Contains(text, "29.08 — 100") {
		t.Fatalf("нет точки истории: %q", text)
	}
	if !strings.Contains(text, "Прирост за сутки: +30") {
		t.Fatalf("нет прироста: %q", text)
	}
}
