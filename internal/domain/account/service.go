package account

import (
	"context"
	"errors"
)

// Service contains the business logic for account operations
type Service struct {
	repo Repository
}

// NewService creates a new account service
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// UpsertAccount validates params and creates or updates the account.
func (s *Service) UpsertAccount(ctx context.Context, params UpsertParams) (*Account, error) {
	if params.AccountType == "" {
		params.AccountType = TypeExchange
	}

	if err := params.Validate(); err != nil {
		return nil, err
	}

	return s.repo.FindOrCreate(ctx, params)
}

// GetAccount retrieves an account by ID
func (s *Service) GetAccount(ctx context.Context, id int64) (*Account, error) {
	if id <= 0 {
		return nil, ErrInvalidInput
	}
	acc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return acc, nil
}

// ListAccountsByInstitutionID retrieves all accounts of an institution
func (s *Service) ListAccountsByInstitutionID(ctx context.Context, institutionID int64) ([]*Account, error) {
	if institutionID <= 0 {
		return nil, ErrMissingInstitution
	}

	return s.repo.ListByInstitutionID(ctx, institutionID)
}

// SetHidden writes the hidden flag only when it differs from the stored one.
// It reports whether a write happened.
func (s *Service) SetHidden(ctx context.Context, acc *Account, hidden bool) (bool, error) {
	if acc == nil {
		return false, ErrInvalidInput
	}
	if acc.IsHidden == hidden {
		return false, nil
	}
	if err := s.repo.SetHidden(ctx, acc.ID, hidden); err != nil {
		return false, err
	}
	acc.IsHidden = hidden
	return true, nil
}

// DeleteAccount deletes an account
func (s *Service) DeleteAccount(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrInvalidInput
	}
	return s.repo.Delete(ctx, id)
}
