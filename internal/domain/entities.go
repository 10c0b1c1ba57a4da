package domain

import "time"

// AccountStatus описывает жизненный цикл отслеживаемого аккаунта.
type AccountStatus string

const (
	// AccountStatusNew — аккаунт активен и участвует в автоматическом обновлении.
	AccountStatusNew AccountStatus = "new"
	// AccountStatusOld — аккаунт выведен из ротации, обновляется только вручную.
	AccountStatusOld AccountStatus = "old"
	// AccountStatusBanned — аккаунт заблокирован платформой.
	AccountStatusBanned AccountStatus = "banned"
)

// Project группирует аккаунты и хранит привязку к таблице проекта.
type Project struct {
	ID            int64
	Title         string
	SpreadsheetID string
	SheetName     string
	ChatID        int64
	IsActive      bool
	CreatedAt     time.Time
}

// Account описывает отслеживаемый профиль соцсети.
type Account struct {
	ID        int64
	ProjectID int64
	Platform  Platform
	URL       string
	Username  string
	Status    AccountStatus
	Topic     string
	OwnerTGID int64
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Metrics содержит набор показателей аккаунта на момент наблюдения.
type Metrics struct {
	Followers      int64 `json:"followers"`
	Likes          int64 `json:"likes"`
	Comments       int64 `json:"comments"`
	Videos         int64 `json:"videos"`
	Views          int64 `json:"views"`
	TotalItemsSeen int64 `json:"total_items_seen"`
}

// Clamp обнуляет отрицательные значения метрик.
func (m Metrics) Clamp() Metrics {
	clamp := func(v int64) int64 {
		if v < 0 {
			return 0
		}
		return v
	}
	return Metrics{
		Followers:      clamp(m.Followers),
		Likes:          clamp(m.Likes),
		Comments:       clamp(m.Comments),
		Videos:         clamp(m.Videos),
		Views:          clamp(m.Views),
		TotalItemsSeen: clamp(m.TotalItemsSeen),
	}
}

// Equal сравнивает метрики по всем полям.
func (m Metrics) Equal(other Metrics) bool {
	return m == other
}

// IsZero сообщает, что все метрики нулевые.
func (m Metrics) IsZero() bool {
	return m == Metrics{}
}

// Snapshot — наблюдение метрик одного аккаунта в момент времени.
// Инвариант хранилища: не более одного снапшота на аккаунт в календарный день.
type Snapshot struct {
	ID         int64
	AccountID  int64
	Metrics    Metrics
	ObservedAt time.Time
}

// DailyStat — производная статистика аккаунта за один календарный день.
type DailyStat struct {
	AccountID int64
	Date      time.Time
	Start     Metrics
	End       Metrics
	Growth    Metrics
}

// HistoryPoint — суммарные просмотры проекта за день.
type HistoryPoint struct {
	Date       time.Time `json:"date"`
	TotalViews int64     `json:"total_views"`
}
