package history

import (
	"context"
	"testing"
	"time"

	"tg-track-bot/internal/domain"
)

type stubSnapshots struct {
	points       []domain.HistoryPoint
	currentViews int64
	stat         domain.DailyStat
	statFound    bool
	upserts      int
}

func (s *stubSnapshots) UpsertDaySnapshot(context.Context, int64, domain.Metrics, time.Time) (bool, error) {
	s.upserts++
	return true, nil
}
func (s *stubSnapshots) ListSnapshots(context.Context, int64, time.Time, time.Time, int) ([]domain.Snapshot, error) {
	return nil, nil
}
func (s *stubSnapshots) DailyStat(context.Context, int64, time.Time) (domain.DailyStat, bool, error) {
	return s.stat, s.statFound, nil
}
func (s *stubSnapshots) ProjectHistory(context.Context, int64, time.Time, time.Time) ([]domain.HistoryPoint, error) {
	return s.points, nil
}
func (s *stubSnapshots) ProjectCurrentViews(context.Context, int64) (int64, error) {
	return s.currentViews, nil
}

func day(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		t.Fatalf("не распарсили дату: %v", err)
	}
	return parsed
}

func TestGrowth24h(t *testing.T) {
	history := []domain.HistoryPoint{
		{TotalViews: 100},
		{TotalViews: 250},
		{TotalViews: 240},
	}
	if got := Growth24h(history); got != -10 {
		t.Fatalf("прирост считается по двум последним точкам: %d", got)
	}
}

func TestGrowth24hSinglePoint(t *testing.T) {
	if got := Growth24h([]domain.HistoryPoint{{TotalViews: 500}}); got != 0 {
		t.Fatalf("одна точка — нулевой прирост, получили %d", got)
	}
	if got := Growth24h(nil); got != 0 {
		t.Fatalf("пустая история — нулевой прирост, получили %d", got)
	}
}

func TestWithLivePointAppendsToday(t *testing.T) {
	now := day(t, "2026-08-30").Add(15 * time.Hour)
	history := []domain.HistoryPoint{
		{Date: day(t, "2026-08-28"), TotalViews: 100},
		{Date: day(t, "2026-08-29"), TotalViews: 150},
	}

	extended := WithLivePoint(history, 180, now)

	if len(extended) != 3 {
		t.Fatalf("ожидали добавленную точку, точек %d", len(extended))
	}
	last := extended[2]
	if last.TotalViews != 180 {
		t.Fatalf("живая точка несёт текущие просмотры: %d", last.TotalViews)
	}
	if !last.Date.Equal(day(t, "2026-08-30")) {
		t.Fatalf("живая точка датируется сегодняшним днём: %s", last.Date)
	}
}

func TestWithLivePointSkipsWhenTodayPersisted(t *testing.T) {
	now := day(t, "2026-08-30").Add(15 * time.Hour)
	history := []domain.HistoryPoint{
		{Date: day(t, "2026-08-29"), TotalViews: 150},
		{Date: day(t, "2026-08-30"), TotalViews: 170},
	}

	extended := WithLivePoint(history, 180, now)

	if len(extended) != 2 {
		t.Fatalf("за сегодня уже есть точка, дублировать нельзя: %d", len(extended))
	}
}

func TestProjectHistoryWithLive(t *testing.T) {
	snapshots := &stubSnapshots{
		points: []domain.HistoryPoint{
			{Date: day(t, "2026-08-28"), TotalViews: 100},
			{Date: day(t, "2026-08-29"), TotalViews: 150},
		},
		currentViews: 180,
	}
	service := NewService(snapshots)
	now := day(t, "2026-08-30").Add(10 * time.Hour)

	points, growth, err := service.ProjectHistoryWithLive(context.Background(), 1, day(t, "2026-08-01"), now, now)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("история дополняется живой точкой: %d", len(points))
	}
	if growth != 30 {
		t.Fatalf("прирост считается с учётом живой точки: %d", growth)
	}
	if snapshots.upserts != 0 {
		t.Fatalf("живая точка не должна записываться в хранилище")
	}
}

func TestDailyStatNotFound(t *testing.T) {
	service := NewService(&stubSnapshots{})
	_, found, err := service.DailyStat(context.Background(), 1, day(t, "2026-08-30"))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if found {
		t.Fatalf("день без снапшотов не выдумывается нулями")
	}
}
