package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"tg-track-bot/internal/domain"
	"tg-track-bot/internal/usecase/reconcile"
)

// ErrURLEmpty возвращается при добавлении аккаунта без URL профиля.
var ErrURLEmpty = errors.New("не указан URL профиля")

// Service управляет отслеживаемыми аккаунтами проекта.
type Service struct {
	accounts domain.AccountRepo
	projects domain.ProjectRepo
	log      zerolog.Logger
}

// NewService создаёт сервис аккаунтов.
func NewService(accounts domain.AccountRepo, projects domain.ProjectRepo, logger zerolog.Logger) *Service {
	return &Service{accounts: accounts, projects: projects, log: logger}
}

// AddParams — параметры добавления профиля в проект.
type AddParams struct {
	ProjectID int64
	URL       string
	Username  string
	Topic     string
	OwnerTGID int64
}

// AddAccount добавляет профиль в проект. Платформа определяется по URL;
// неопределимая платформа не блокирует добавление.
func (s *Service) AddAccount(ctx context.Context, params AddParams) (domain.Account, error) {
	url := strings.TrimSpace(params.URL)
	if url == "" {
		return domain.Account{}, ErrURLEmpty
	}
	if _, err := s.projects.GetProject(ctx, params.ProjectID); err != nil {
		return domain.Account{}, fmt.Errorf("получение проекта: %w", err)
	}

	account := domain.Account{
		ProjectID: params.ProjectID,
		URL:       url,
		Username:  strings.TrimSpace(params.Username),
		Topic:     strings.TrimSpace(params.Topic),
		OwnerTGID: params.OwnerTGID,
		Status:    domain.AccountStatusNew,
	}
	account.Platform = reconcile.ResolvePlatform(account, s.log)

	saved, err := s.accounts.UpsertAccount(ctx, account)
	if err != nil {
		return domain.Account{}, fmt.Errorf("сохранение аккаунта: %w", err)
	}
	return saved, nil
}

// ListProjectAccounts возвращает активные аккаунты проекта.
func (s *Service) ListProjectAccounts(ctx context.Context, projectID int64) ([]domain.Account, error) {
	accounts, err := s.accounts.ListProjectAccounts(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("аккаунты проекта: %w", err)
	}
	return accounts, nil
}

// SetStatus меняет статус жизненного цикла аккаунта.
func (s *Service) SetStatus(ctx context.Context, accountID int64, status domain.AccountStatus) error {
	switch status {
	case domain.AccountStatusNew, domain.AccountStatusOld, domain.AccountStatusBanned:
	default:
		return fmt.Errorf("неизвестный статус аккаунта: %q", status)
	}
	return s.accounts.SetAccountStatus(ctx, accountID, status)
}

// Deactivate мягко удаляет аккаунт: история снапшотов сохраняется.
func (s *Service) Deactivate(ctx context.Context, accountID int64) error {
	return s.accounts.DeactivateAccount(ctx, accountID)
}
