package exchange

import (
	"context"
	"sort"
	"sync"
	"time"

	"balance/internal/domain/account"
	"balance/internal/domain/credential"
	"balance/internal/domain/institution"
	"balance/internal/domain/transaction"
)

type memInstitutions struct {
	mu     sync.Mutex
	nextID int64
	byKey  map[string]*institution.Institution
}

func newMemInstitutions() *memInstitutions {
	return &memInstitutions{byKey: make(map[string]*institution.Institution)}
}

func (m *memInstitutions) FindOrCreate(ctx context.Context, source institution.Source, sourceInstitutionID, name string) (*institution.Institution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := source.String() + "|" + sourceInstitutionID
	if inst, ok := m.byKey[key]; ok {
		return inst, nil
	}
	m.nextID++
	inst := &institution.Institution{ID: m.nextID, Source: source, SourceInstitutionID: sourceInstitutionID, Name: name}
	m.byKey[key] = inst
	return inst, nil
}

func (m *memInstitutions) GetBySource(ctx context.Context, source institution.Source) (*institution.Institution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inst, ok := m.byKey[source.String()+"|"]; ok {
		return inst, nil
	}
	return nil, institution.ErrInstitutionNotFound
}

func (m *memInstitutions) List(ctx context.Context) ([]*institution.Institution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*institution.Institution
	for _, inst := range m.byKey {
		out = append(out, inst)
	}
	return out, nil
}

// memAccounts is an in-memory account.Repository. failUpsert and failDelete
// inject write failures keyed by source account id.
type memAccounts struct {
	mu             sync.Mutex
	nextID         int64
	rows           map[int64]*account.Account
	failUpsert     map[string]error
	failDelete     map[string]error
	setHiddenCalls int
}

func newMemAccounts() *memAccounts {
	return &memAccounts{
		rows:       make(map[int64]*account.Account),
		failUpsert: make(map[string]error),
		failDelete: make(map[string]error),
	}
}

func (m *memAccounts) FindOrCreate(ctx context.Context, p account.UpsertParams) (*account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failUpsert[p.SourceAccountID]; err != nil {
		return nil, err
	}

	var row *account.Account
	for _, r := range m.rows {
		if r.InstitutionID == p.InstitutionID && r.Source == p.Source && r.SourceAccountID == p.SourceAccountID {
			row = r
			break
		}
	}
	if row == nil {
		m.nextID++
		row = &account.Account{ID: m.nextID, InstitutionID: p.InstitutionID, Source: p.Source, SourceAccountID: p.SourceAccountID}
		m.rows[row.ID] = row
	}
	row.SourceInstitutionID = p.SourceInstitutionID
	row.AccountType = p.AccountType
	row.Name = p.Name
	row.Currency = p.Currency
	row.CurrentBalance = p.CurrentBalance
	row.AvailableBalance = p.AvailableBalance
	row.AltCurrency = p.AltCurrency
	row.AltCurrentBalance = p.AltCurrentBalance
	row.AltAvailableBalance = p.AltAvailableBalance

	cp := *row
	return &cp, nil
}

func (m *memAccounts) GetByID(ctx context.Context, id int64) (*account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rows[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, account.ErrAccountNotFound
}

func (m *memAccounts) ListByInstitutionID(ctx context.Context, institutionID int64) ([]*account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*account.Account
	for _, r := range m.rows {
		if r.InstitutionID == institutionID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memAccounts) SetHidden(ctx context.Context, id int64, hidden bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setHiddenCalls++
	r, ok := m.rows[id]
	if !ok {
		return account.ErrAccountNotFound
	}
	r.IsHidden = hidden
	return nil
}

func (m *memAccounts) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return account.ErrAccountNotFound
	}
	if err := m.failDelete[r.SourceAccountID]; err != nil {
		return err
	}
	delete(m.rows, id)
	return nil
}

func (m *memAccounts) bySourceID(id string) *account.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.SourceAccountID == id {
			cp := *r
			return &cp
		}
	}
	return nil
}

func (m *memAccounts) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type memTransactions struct {
	mu     sync.Mutex
	nextID int64
	rows   map[string]*transaction.Transaction
	fail   map[string]error
}

func newMemTransactions() *memTransactions {
	return &memTransactions{rows: make(map[string]*transaction.Transaction), fail: make(map[string]error)}
}

func (m *memTransactions) FindOrCreate(ctx context.Context, p transaction.UpsertParams) (*transaction.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[p.SourceTransactionID]; err != nil {
		return nil, err
	}
	key := p.Source.String() + "|" + p.SourceTransactionID
	row, ok := m.rows[key]
	if !ok {
		m.nextID++
		row = &transaction.Transaction{ID: m.nextID, Source: p.Source, SourceTransactionID: p.SourceTransactionID}
		m.rows[key] = row
	}
	row.InstitutionID = p.InstitutionID
	row.SourceAccountID = p.SourceAccountID
	row.SourceInstitutionID = p.SourceInstitutionID
	row.Name = p.Name
	row.Currency = p.Currency
	row.Amount = p.Amount
	row.Date = p.Date
	row.CategoryID = p.CategoryID
	cp := *row
	return &cp, nil
}

func (m *memTransactions) ListByInstitutionID(ctx context.Context, institutionID int64, limit, offset int) ([]*transaction.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*transaction.Transaction
	for _, r := range m.rows {
		if r.InstitutionID == institutionID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memTransactions) CountByInstitutionID(ctx context.Context, institutionID int64) (int64, error) {
	txns, _ := m.ListByInstitutionID(ctx, institutionID, 0, 0)
	return int64(len(txns)), nil
}

type memCredentials struct {
	mu    sync.Mutex
	rows  map[institution.Source]*credential.Credential
	saves int
}

func newMemCredentials(creds ...*credential.Credential) *memCredentials {
	m := &memCredentials{rows: make(map[institution.Source]*credential.Credential)}
	for _, c := range creds {
		m.rows[c.Source] = c
	}
	return m
}

func (m *memCredentials) Get(ctx context.Context, source institution.Source) (*credential.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[source]
	if !ok {
		return nil, credential.ErrCredentialNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCredentials) Save(ctx context.Context, cred *credential.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	cp := *cred
	m.rows[cred.Source] = &cp
	return nil
}

func (m *memCredentials) Delete(ctx context.Context, source institution.Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, source)
	return nil
}

func (m *memCredentials) ListSources(ctx context.Context) ([]institution.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []institution.Source
	for _, s := range institution.Sources {
		if _, ok := m.rows[s]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// fakeClient is a Client with Func fields, optionally refreshing tokens.
type fakeClient struct {
	source                institution.Source
	FetchAccountsFunc     func(ctx context.Context, cred *credential.Credential) ([]ExchangeAccount, error)
	FetchTransactionsFunc func(ctx context.Context, cred *credential.Credential, accounts []ExchangeAccount) ([]ExchangeTransaction, error)
}

func (c *fakeClient) Source() institution.Source { return c.source }

func (c *fakeClient) FetchAccounts(ctx context.Context, cred *credential.Credential) ([]ExchangeAccount, error) {
	if c.FetchAccountsFunc != nil {
		return c.FetchAccountsFunc(ctx, cred)
	}
	return nil, nil
}

func (c *fakeClient) FetchTransactions(ctx context.Context, cred *credential.Credential, accounts []ExchangeAccount) ([]ExchangeTransaction, error) {
	if c.FetchTransactionsFunc != nil {
		return c.FetchTransactionsFunc(ctx, cred, accounts)
	}
	return nil, nil
}

type refreshingClient struct {
	fakeClient
	RefreshTokenFunc func(ctx context.Context, refreshToken string) (*credential.OAuthToken, error)
}

func (c *refreshingClient) RefreshToken(ctx context.Context, refreshToken string) (*credential.OAuthToken, error) {
	return c.RefreshTokenFunc(ctx, refreshToken)
}

type fakeResolver map[institution.Source]Client

func (r fakeResolver) Client(source institution.Source) (Client, error) {
	c, ok := r[source]
	if !ok {
		return nil, ErrUnsupportedSource
	}
	return c, nil
}

var fixedNow = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
