package service

import (
	"context"
	"errors"

	"github.com/crosspost-labs/crosspost/internal/models"
	"github.com/crosspost-labs/crosspost/internal/repository"
)

type AccountService interface {
	Create(ctx context.Context, name string) (*models.Account, error)
	List(ctx context.Context) ([]*models.Account, error)
	// SetPrimary makes exactly one account primary; the flip is a single
	// transaction in the repository.
	SetPrimary(ctx context.Context, id int64) error
	SetActive(ctx context.Context, id int64, active bool) error
}

type accountService struct {
	ar repository.AccountRepository
}

func NewAccountService(ar repository.AccountRepository) AccountService {
	return &accountService{ar: ar}
}

func (s *accountService) Create(ctx context.Context, name string) (*models.Account, error) {
	if name == "" {
		return nil, errors.New("account name is required")
	}

	account := &models.Account{Name: name, IsActive: true}
	id, err := s.ar.Create(ctx, account)
	if err != nil {
		return nil, err
	}

	account.ID = id
	return account, nil
}

func (s *accountService) List(ctx context.Context) ([]*models.Account, error) {
	return s.ar.List(ctx)
}

func (s *accountService) SetPrimary(ctx context.Context, id int64) error {
	return s.ar.SetPrimary(ctx, id)
}

func (s *accountService) SetActive(ctx context.Context, id int64, active bool) error {
	return s.ar.SetActive(ctx, id, active)
}
