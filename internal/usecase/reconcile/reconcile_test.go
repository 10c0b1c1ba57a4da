package reconcile

import (
	"testing"

	"github.com/rs/zerolog"

	"tg-track-bot/internal/domain"
)

func TestMergeSheetWins(t *testing.T) {
	sheet := domain.Metrics{Followers: 1000, Views: 50000}
	fetched := domain.Metrics{Followers: 950, Likes: 120, Views: 48000}

	merged := Merge(sheet, fetched)

	if merged.Followers != 1000 {
		t.Fatalf("значение таблицы должно побеждать: %d", merged.Followers)
	}
	if merged.Views != 50000 {
		t.Fatalf("значение таблицы должно побеждать: %d", merged.Views)
	}
	if merged.Likes != 120 {
		t.Fatalf("пустая ячейка должна дозаполняться сбором: %d", merged.Likes)
	}
}

func TestMergeManualCorrectionSurvivesBrokenFetch(t *testing.T) {
	sheet := domain.Metrics{Followers: 2000}
	fetched := domain.Metrics{}

	merged := Merge(sheet, fetched)

	if merged.Followers != 2000 {
		t.Fatalf("ручная правка не должна затираться нулевым сбором: %d", merged.Followers)
	}
}

func TestMergeZeroSheetTakesFetched(t *testing.T) {
	fetched := domain.Metrics{Followers: 10, Likes: 20, Comments: 30, Videos: 40, Views: 50, TotalItemsSeen: 60}

	merged := Merge(domain.Metrics{}, fetched)

	if !merged.Equal(fetched) {
		t.Fatalf("при пустой таблице берутся собранные метрики: %+v", merged)
	}
}

func TestMergeClampsNegatives(t *testing.T) {
	sheet := domain.Metrics{Followers: -5}
	fetched := domain.Metrics{Followers: 7, Views: -1}

	merged := Merge(sheet, fetched)

	if merged.Followers != 7 {
		t.Fatalf("отрицательное значение таблицы не побеждает: %d", merged.Followers)
	}
	if merged.Views != 0 {
		t.Fatalf("отрицательный сбор обнуляется: %d", merged.Views)
	}
}

func TestResolvePlatformPrefersStored(t *testing.T) {
	account := domain.Account{Platform: domain.PlatformYouTube, URL: "https://tiktok.com/@user"}
	if got := ResolvePlatform(account, zerolog.Nop()); got != domain.PlatformYouTube {
		t.Fatalf("сохранённая платформа приоритетнее URL: %s", got)
	}
}

func TestResolvePlatformDetectsFromURL(t *testing.T) {
	account := domain.Account{URL: "https://www.instagram.com/user"}
	if got := ResolvePlatform(account, zerolog.Nop()); got != domain.PlatformInstagram {
		t.Fatalf("ожидали instagram, получили %s", got)
	}
}

func TestResolvePlatformFallback(t *testing.T) {
	account := domain.Account{URL: "https://example.com/profile"}
	if got := ResolvePlatform(account, zerolog.Nop()); got != domain.FallbackPlatform {
		t.Fatalf("неопределимый URL должен давать запасную платформу, получили %s", got)
	}
}
