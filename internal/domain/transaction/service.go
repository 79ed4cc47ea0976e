package transaction

import "context"

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Service contains the business logic for transaction operations
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// UpsertTransaction validates params and stores the transaction.
func (s *Service) UpsertTransaction(ctx context.Context, params UpsertParams) (*Transaction, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return s.repo.FindOrCreate(ctx, params)
}

// Page is one page of an institution's transactions.
type Page struct {
	Transactions []*Transaction `json:"transactions"`
	Total        int64          `json:"total"`
	Limit        int            `json:"limit"`
	Offset       int            `json:"offset"`
}

// ListByInstitutionID returns a page of transactions, newest first.
// Limits outside (0, MaxPageSize] fall back to DefaultPageSize.
func (s *Service) ListByInstitutionID(ctx context.Context, institutionID int64, limit, offset int) (*Page, error) {
	if institutionID <= 0 {
		return nil, ErrMissingInstitution
	}
	if limit <= 0 || limit > MaxPageSize {
		limit = DefaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	txns, err := s.repo.ListByInstitutionID(ctx, institutionID, limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := s.repo.CountByInstitutionID(ctx, institutionID)
	if err != nil {
		return nil, err
	}
	if txns == nil {
		txns = []*Transaction{}
	}

	return &Page{Transactions: txns, Total: total, Limit: limit, Offset: offset}, nil
}
