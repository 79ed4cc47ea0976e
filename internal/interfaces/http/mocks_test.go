package http

import (
	"context"
	"time"

	"balance/internal/domain/account"
	"balance/internal/domain/credential"
	"balance/internal/domain/exchange"
	"balance/internal/domain/institution"
	"balance/internal/domain/transaction"
	"balance/internal/infrastructure/exchangeapi"
	"balance/internal/infrastructure/exchangeapi/coinbase"
)

// MockInstitutionRepo implements institution.Repository for testing
type MockInstitutionRepo struct {
	FindOrCreateFunc func(ctx context.Context, source institution.Source, sid, name string) (*institution.Institution, error)
	GetBySourceFunc  func(ctx context.Context, source institution.Source) (*institution.Institution, error)
	ListFunc         func(ctx context.Context) ([]*institution.Institution, error)
}

func (m *MockInstitutionRepo) FindOrCreate(ctx context.Context, source institution.Source, sid, name string) (*institution.Institution, error) {
	if m.FindOrCreateFunc != nil {
		return m.FindOrCreateFunc(ctx, source, sid, name)
	}
	return nil, nil
}

func (m *MockInstitutionRepo) GetBySource(ctx context.Context, source institution.Source) (*institution.Institution, error) {
	if m.GetBySourceFunc != nil {
		return m.GetBySourceFunc(ctx, source)
	}
	return nil, institution.ErrInstitutionNotFound
}

func (m *MockInstitutionRepo) List(ctx context.Context) ([]*institution.Institution, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	return nil, nil
}

// MockAccountRepo implements account.Repository for testing
type MockAccountRepo struct {
	FindOrCreateFunc        func(ctx context.Context, params account.UpsertParams) (*account.Account, error)
	GetByIDFunc             func(ctx context.Context, id int64) (*account.Account, error)
	ListByInstitutionIDFunc func(ctx context.Context, institutionID int64) ([]*account.Account, error)
	SetHiddenFunc           func(ctx context.Context, id int64, hidden bool) error
	DeleteFunc              func(ctx context.Context, id int64) error
}

func (m *MockAccountRepo) FindOrCreate(ctx context.Context, params account.UpsertParams) (*account.Account, error) {
	if m.FindOrCreateFunc != nil {
		return m.FindOrCreateFunc(ctx, params)
	}
	return nil, nil
}

func (m *MockAccountRepo) GetByID(ctx context.Context, id int64) (*account.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, account.ErrAccountNotFound
}

func (m *MockAccountRepo) ListByInstitutionID(ctx context.Context, institutionID int64) ([]*account.Account, error) {
	if m.ListByInstitutionIDFunc != nil {
		return m.ListByInstitutionIDFunc(ctx, institutionID)
	}
	return nil, nil
}

func (m *MockAccountRepo) SetHidden(ctx context.Context, id int64, hidden bool) error {
	if m.SetHiddenFunc != nil {
		return m.SetHiddenFunc(ctx, id, hidden)
	}
	return nil
}

func (m *MockAccountRepo) Delete(ctx context.Context, id int64) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

// MockTransactionRepo implements transaction.Repository for testing
type MockTransactionRepo struct {
	FindOrCreateFunc         func(ctx context.Context, params transaction.UpsertParams) (*transaction.Transaction, error)
	ListByInstitutionIDFunc  func(ctx context.Context, institutionID int64, limit, offset int) ([]*transaction.Transaction, error)
	CountByInstitutionIDFunc func(ctx context.Context, institutionID int64) (int64, error)
}

func (m *MockTransactionRepo) FindOrCreate(ctx context.Context, params transaction.UpsertParams) (*transaction.Transaction, error) {
	if m.FindOrCreateFunc != nil {
		return m.FindOrCreateFunc(ctx, params)
	}
	return nil, nil
}

func (m *MockTransactionRepo) ListByInstitutionID(ctx context.Context, institutionID int64, limit, offset int) ([]*transaction.Transaction, error) {
	if m.ListByInstitutionIDFunc != nil {
		return m.ListByInstitutionIDFunc(ctx, institutionID, limit, offset)
	}
	return nil, nil
}

func (m *MockTransactionRepo) CountByInstitutionID(ctx context.Context, institutionID int64) (int64, error) {
	if m.CountByInstitutionIDFunc != nil {
		return m.CountByInstitutionIDFunc(ctx, institutionID)
	}
	return 0, nil
}

// MockCredentialRepo implements credential.Repository for testing
type MockCredentialRepo struct {
	GetFunc         func(ctx context.Context, source institution.Source) (*credential.Credential, error)
	SaveFunc        func(ctx context.Context, cred *credential.Credential) error
	DeleteFunc      func(ctx context.Context, source institution.Source) error
	ListSourcesFunc func(ctx context.Context) ([]institution.Source, error)
}

func (m *MockCredentialRepo) Get(ctx context.Context, source institution.Source) (*credential.Credential, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, source)
	}
	return nil, credential.ErrCredentialNotFound
}

func (m *MockCredentialRepo) Save(ctx context.Context, cred *credential.Credential) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, cred)
	}
	return nil
}

func (m *MockCredentialRepo) Delete(ctx context.Context, source institution.Source) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, source)
	}
	return nil
}

func (m *MockCredentialRepo) ListSources(ctx context.Context) ([]institution.Source, error) {
	if m.ListSourcesFunc != nil {
		return m.ListSourcesFunc(ctx)
	}
	return nil, nil
}

type MockCatalog struct {
	InfosFunc func() []exchangeapi.Info
}

func (m *MockCatalog) Infos() []exchangeapi.Info {
	if m.InfosFunc != nil {
		return m.InfosFunc()
	}
	return nil
}

type MockAuthorizer struct {
	PrepareAuthFunc  func(now time.Time) (*coinbase.AuthSession, error)
	ExchangeCodeFunc func(ctx context.Context, s *coinbase.AuthSession, payload map[string]string) (*credential.OAuthToken, error)
}

func (m *MockAuthorizer) PrepareAuth(now time.Time) (*coinbase.AuthSession, error) {
	if m.PrepareAuthFunc != nil {
		return m.PrepareAuthFunc(now)
	}
	return &coinbase.AuthSession{ID: "session-1", State: "state-1", AuthURL: "https://www.coinbase.com/oauth/authorize?state=state-1", CreatedAt: now}, nil
}

func (m *MockAuthorizer) ExchangeCode(ctx context.Context, s *coinbase.AuthSession, payload map[string]string) (*credential.OAuthToken, error) {
	if m.ExchangeCodeFunc != nil {
		return m.ExchangeCodeFunc(ctx, s, payload)
	}
	return nil, nil
}

type MockSyncer struct {
	SyncFunc func(ctx context.Context, source institution.Source) (*exchange.SyncResult, error)
}

func (m *MockSyncer) Sync(ctx context.Context, source institution.Source) (*exchange.SyncResult, error) {
	if m.SyncFunc != nil {
		return m.SyncFunc(ctx, source)
	}
	return &exchange.SyncResult{Source: source, Accounts: &exchange.ReconcileResult{}, Transactions: &exchange.ReconcileResult{}}, nil
}
