package account

import (
	"context"
	"errors"
	"testing"
)

// MockRepository is a mock implementation of Repository interface
type MockRepository struct {
	FindOrCreateFunc        func(ctx context.Context, params UpsertParams) (*Account, error)
	GetByIDFunc             func(ctx context.Context, id int64) (*Account, error)
	ListByInstitutionIDFunc func(ctx context.Context, institutionID int64) ([]*Account, error)
	SetHiddenFunc           func(ctx context.Context, id int64, hidden bool) error
	DeleteFunc              func(ctx context.Context, id int64) error
}

func (m *MockRepository) FindOrCreate(ctx context.Context, params UpsertParams) (*Account, error) {
	if m.FindOrCreateFunc != nil {
		return m.FindOrCreateFunc(ctx, params)
	}
	return nil, nil
}

func (m *MockRepository) GetByID(ctx context.Context, id int64) (*Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockRepository) ListByInstitutionID(ctx context.Context, institutionID int64) ([]*Account, error) {
	if m.ListByInstitutionIDFunc != nil {
		return m.ListByInstitutionIDFunc(ctx, institutionID)
	}
	return nil, nil
}

func (m *MockRepository) SetHidden(ctx context.Context, id int64, hidden bool) error {
	if m.SetHiddenFunc != nil {
		return m.SetHiddenFunc(ctx, id, hidden)
	}
	return nil
}

func (m *MockRepository) Delete(ctx context.Context, id int64) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

func TestService_UpsertAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults account type and forwards to repository", func(t *testing.T) {
		var got UpsertParams
		repo := &MockRepository{
			FindOrCreateFunc: func(ctx context.Context, params UpsertParams) (*Account, error) {
				got = params
				return &Account{ID: 7, SourceAccountID: params.SourceAccountID}, nil
			},
		}
		svc := NewService(repo)

		acc, err := svc.UpsertAccount(ctx, validParams())
		if err != nil {
			t.Fatalf("UpsertAccount() unexpected error: %v", err)
		}
		if acc.ID != 7 {
			t.Errorf("UpsertAccount() ID = %d, want 7", acc.ID)
		}
		if got.AccountType != TypeExchange {
			t.Errorf("AccountType = %q, want %q", got.AccountType, TypeExchange)
		}
	})

	t.Run("validation error skips repository", func(t *testing.T) {
		called := false
		repo := &MockRepository{
			FindOrCreateFunc: func(ctx context.Context, params UpsertParams) (*Account, error) {
				called = true
				return nil, nil
			},
		}
		svc := NewService(repo)

		p := validParams()
		p.SourceAccountID = ""
		if _, err := svc.UpsertAccount(ctx, p); !errors.Is(err, ErrMissingSourceAccountID) {
			t.Errorf("UpsertAccount() error = %v, want %v", err, ErrMissingSourceAccountID)
		}
		if called {
			t.Error("repository called despite validation error")
		}
	})
}

func TestService_SetHidden(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		stored    bool
		hidden    bool
		repoErr   error
		wantWrite bool
		wantErr   bool
	}{
		{name: "unchanged flag is not written", stored: true, hidden: true},
		{name: "hide", stored: false, hidden: true, wantWrite: true},
		{name: "unhide", stored: true, hidden: false, wantWrite: true},
		{name: "repository error", stored: false, hidden: true, repoErr: errors.New("db down"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			repo := &MockRepository{
				SetHiddenFunc: func(ctx context.Context, id int64, hidden bool) error {
					calls++
					return tt.repoErr
				},
			}
			svc := NewService(repo)
			acc := &Account{ID: 3, IsHidden: tt.stored}

			wrote, err := svc.SetHidden(ctx, acc, tt.hidden)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SetHidden() error = %v, wantErr %v", err, tt.wantErr)
			}
			if wrote != tt.wantWrite {
				t.Errorf("SetHidden() wrote = %v, want %v", wrote, tt.wantWrite)
			}
			if tt.stored == tt.hidden && calls != 0 {
				t.Errorf("repository called %d times for unchanged flag", calls)
			}
			if tt.wantWrite && acc.IsHidden != tt.hidden {
				t.Errorf("IsHidden = %v, want %v", acc.IsHidden, tt.hidden)
			}
		})
	}
}

func TestService_GetAccount(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepository{
		GetByIDFunc: func(ctx context.Context, id int64) (*Account, error) {
			if id == 1 {
				return &Account{ID: 1}, nil
			}
			return nil, ErrAccountNotFound
		},
	}
	svc := NewService(repo)

	if _, err := svc.GetAccount(ctx, 0); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("GetAccount(0) error = %v, want %v", err, ErrInvalidInput)
	}
	if _, err := svc.GetAccount(ctx, 2); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("GetAccount(2) error = %v, want %v", err, ErrAccountNotFound)
	}
	acc, err := svc.GetAccount(ctx, 1)
	if err != nil || acc.ID != 1 {
		t.Errorf("GetAccount(1) = %+v, %v", acc, err)
	}
}
