package history

import (
	"context"
	"fmt"
	"time"

	"tg-track-bot/internal/domain"
)

// Service отдаёт производную статистику по временным рядам снапшотов.
type Service struct {
	snapshots domain.SnapshotRepo
}

// NewService создаёт сервис истории.
func NewService(snapshots domain.SnapshotRepo) *Service {
	return &Service{snapshots: snapshots}
}

// DailyStat возвращает статистику аккаунта за день. Второй результат false,
// если за день не было ни одного снапшота: день не выдумывается нулями.
func (s *Service) DailyStat(ctx context.Context, accountID int64, date time.Time) (domain.DailyStat, bool, error) {
	stat, found, err := s.snapshots.DailyStat(ctx, accountID, date)
	if err != nil {
		return domain.DailyStat{}, false, fmt.Errorf("статистика за день: %w", err)
	}
	return stat, found, nil
}

// ProjectHistory возвращает историю суммарных просмотров проекта по дням.
func (s *Service) ProjectHistory(ctx context.Context, projectID int64, from, to time.Time) ([]domain.HistoryPoint, error) {
	points, err := s.snapshots.ProjectHistory(ctx, projectID, from, to)
	if err != nil {
		return nil, fmt.Errorf("история проекта: %w", err)
	}
	return points, nil
}

// ProjectHistoryWithLive возвращает историю проекта, дополненную «живой»
// точкой за сегодня, и суточный прирост по итоговому ряду.
func (s *Service) ProjectHistoryWithLive(ctx context.Context, projectID int64, from, to, now time.Time) ([]domain.HistoryPoint, int64, error) {
	points, err := s.ProjectHistory(ctx, projectID, from, to)
	if err != nil {
		return nil, 0, err
	}
	live, err := s.snapshots.ProjectCurrentViews(ctx, projectID)
	if err != nil {
		return nil, 0, fmt.Errorf("текущие просмотры проекта: %w", err)
	}
	points = WithLivePoint(points, live, now)
	return points, Growth24h(points), nil
}

// Growth24h считает прирост просмотров между двумя последними точками истории.
// При одной точке прирост равен нулю: движение нельзя вывести из отсутствия
// предыдущего замера.
func Growth24h(history []domain.HistoryPoint) int64 {
	if len(history) < 2 {
		return 0
	}
	return history[len(history)-1].TotalViews - history[len(history)-2].TotalViews
}

// WithLivePoint дополняет историю синтетической точкой «сейчас», если последняя
// сохранённая точка не сегодняшняя. Точка существует только в ответе и никогда
// не записывается в хранилище снапшотов.
func WithLivePoint(history []domain.HistoryPoint, liveTotalViews int64, now time.Time) []domain.HistoryPoint {
	today := now.UTC().Truncate(24 * time.Hour)
	if len(history) > 0 {
		last := history[len(history)-1].Date.UTC().Truncate(24 * time.Hour)
		if last.Equal(today) {
			return history
		}
	}
	extended := make([]domain.HistoryPoint, 0, len(history)+1)
	extended = append(extended, history...)
	return append(extended, domain.HistoryPoint{Date: today, TotalViews: liveTotalViews})
}
