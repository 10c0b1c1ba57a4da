package repo

import (
	"testing"

	"tg-track-bot/internal/domain"
)

func TestDecideDayWriteInsertWhenAbsent(t *testing.T) {
	if got := decideDayWrite(nil, domain.Metrics{Views: 100}); got != dayWriteInsert {
		t.Fatalf("при отсутствии строки за день ожидали вставку, получили %d", got)
	}
}

func TestDecideDayWriteNoopWhenEqual(t *testing.T) {
	m := domain.Metrics{Followers: 10, Likes: 20, Comments: 30, Videos: 40, Views: 50, TotalItemsSeen: 60}
	existing := m
	if got := decideDayWrite(&existing, m); got != dayWriteNoop {
		t.Fatalf("полное совпадение метрик — no-op, получили %d", got)
	}
}

func TestDecideDayWriteUpdateWhenDiffers(t *testing.T) {
	existing := domain.Metrics{Views: 100}
	if got := decideDayWrite(&existing, domain.Metrics{Views: 101}); got != dayWriteUpdate {
		t.Fatalf("расхождение метрик — обновление на месте, получили %d", got)
	}
}

// Повторные записи одного дня: первая создаёт строку, совпадающие повторы
// ничего не меняют, расхождение обновляет ту же строку — второй строки за
// день не появляется ни при каком исходе.
func TestDecideDayWriteRepeatedSameDay(t *testing.T) {
	m := domain.Metrics{Followers: 5, Views: 500}

	if got := decideDayWrite(nil, m); got != dayWriteInsert {
		t.Fatalf("первая запись дня — вставка, получили %d", got)
	}

	stored := m
	for i := 0; i < 3; i++ {
		if got := decideDayWrite(&stored, m); got != dayWriteNoop {
			t.Fatalf("повтор %d с теми же метриками — no-op, получили %d", i, got)
		}
	}

	changed := domain.Metrics{Followers: 5, Views: 600}
	if got := decideDayWrite(&stored, changed); got != dayWriteUpdate {
		t.Fatalf("изменившиеся метрики — обновление, не вставка: %d", got)
	}
	stored = changed
	if got := decideDayWrite(&stored, changed); got != dayWriteNoop {
		t.Fatalf("после обновления повтор снова no-op, получили %d", got)
	}
}
