package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	"balance/internal/domain/account"
	"balance/internal/domain/institution"
)

func coinbaseInstitution(ctx context.Context, source institution.Source) (*institution.Institution, error) {
	if source != institution.SourceCoinbase {
		return nil, institution.ErrInstitutionNotFound
	}
	return &institution.Institution{ID: 9, Source: source, Name: "Coinbase"}, nil
}

func TestHandleListAccounts(t *testing.T) {
	tests := []struct {
		name           string
		source         string
		instRepo       *MockInstitutionRepo
		accRepo        *MockAccountRepo
		expectedStatus int
		expectedCount  int
	}{
		{
			name:     "Success",
			source:   "coinbase",
			instRepo: &MockInstitutionRepo{GetBySourceFunc: coinbaseInstitution},
			accRepo: &MockAccountRepo{ListByInstitutionIDFunc: func(ctx context.Context, id int64) ([]*account.Account, error) {
				if id != 9 {
					t.Errorf("institution id = %d, want 9", id)
				}
				return []*account.Account{
					{ID: 1, InstitutionID: 9, Currency: "BTC", CurrentBalance: decimal.RequireFromString("0.5")},
					{ID: 2, InstitutionID: 9, Currency: "ETH", IsHidden: true},
				}, nil
			}},
			expectedStatus: http.StatusOK,
			expectedCount:  2,
		},
		{
			name:           "Never synced",
			source:         "poloniex",
			instRepo:       &MockInstitutionRepo{GetBySourceFunc: coinbaseInstitution},
			accRepo:        &MockAccountRepo{},
			expectedStatus: http.StatusOK,
			expectedCount:  0,
		},
		{
			name:           "Unknown exchange",
			source:         "kraken",
			instRepo:       &MockInstitutionRepo{},
			accRepo:        &MockAccountRepo{},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:     "Repository error",
			source:   "coinbase",
			instRepo: &MockInstitutionRepo{GetBySourceFunc: coinbaseInstitution},
			accRepo: &MockAccountRepo{ListByInstitutionIDFunc: func(ctx context.Context, id int64) ([]*account.Account, error) {
				return nil, errors.New("db down")
			}},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAccountHandler(tt.instRepo, account.NewService(tt.accRepo), zaptest.NewLogger(t))

			req := httptest.NewRequest(http.MethodGet, "/api/exchanges/"+tt.source+"/accounts", nil)
			req.SetPathValue("source", tt.source)
			rr := httptest.NewRecorder()
			h.HandleListAccounts(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d", tt.expectedStatus, rr.Code)
			}
			if tt.expectedStatus != http.StatusOK {
				return
			}

			var got []account.Account
			if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if len(got) != tt.expectedCount {
				t.Errorf("expected %d accounts, got %d", tt.expectedCount, len(got))
			}
		})
	}
}

func TestHandleListAccounts_EmptyIsArray(t *testing.T) {
	h := NewAccountHandler(&MockInstitutionRepo{GetBySourceFunc: coinbaseInstitution}, account.NewService(&MockAccountRepo{}), zaptest.NewLogger(t))

	req := httptest.NewRequest(http.MethodGet, "/api/exchanges/coinbase/accounts", nil)
	req.SetPathValue("source", "coinbase")
	rr := httptest.NewRecorder()
	h.HandleListAccounts(rr, req)

	if body := rr.Body.String(); body != "[]\n" {
		t.Errorf("body = %q, want []", body)
	}
}
