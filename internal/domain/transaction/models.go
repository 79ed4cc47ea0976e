package transaction

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"balance/internal/domain/account"
	"balance/internal/domain/institution"
)

var (
	ErrTransactionNotFound        = errors.New("transaction not found")
	ErrMissingSourceTransactionID = errors.New("source transaction ID is required")
	ErrMissingInstitution         = errors.New("valid institution ID is required")
	ErrMissingDate                = errors.New("transaction date is required")
)

// Transaction is an exchange movement (deposit, withdrawal, trade leg) of an account.
// It is uniquely identified by (Source, SourceTransactionID) and is never deleted by sync.
type Transaction struct {
	ID                  int64              `json:"id"`
	InstitutionID       int64              `json:"institutionId"`
	Source              institution.Source `json:"source"`
	SourceTransactionID string             `json:"sourceTransactionId"`
	SourceAccountID     string             `json:"sourceAccountId"`
	SourceInstitutionID string             `json:"sourceInstitutionId"`
	Name                string             `json:"name"`
	Currency            string             `json:"currency"`
	Amount              decimal.Decimal    `json:"amount"` // negative for outflows
	Date                time.Time          `json:"date"`
	CategoryID          *int64             `json:"categoryId,omitempty"`
	CreatedAt           time.Time          `json:"createdAt"`
	UpdatedAt           time.Time          `json:"updatedAt"`
}

// UpsertParams is used for syncing transactions from an exchange
type UpsertParams struct {
	InstitutionID       int64
	Source              institution.Source
	SourceTransactionID string
	SourceAccountID     string
	SourceInstitutionID string
	Name                string
	Currency            string
	Amount              decimal.Decimal
	Date                time.Time
	CategoryID          *int64
}

// Validate validates the upsert parameters
func (p UpsertParams) Validate() error {
	if p.InstitutionID <= 0 {
		return ErrMissingInstitution
	}
	if !p.Source.Valid() {
		return institution.ErrInvalidSource
	}
	if p.SourceTransactionID == "" {
		return ErrMissingSourceTransactionID
	}
	if !account.IsValidCurrency(p.Currency) {
		return account.ErrInvalidCurrency
	}
	if p.Date.IsZero() {
		return ErrMissingDate
	}
	return nil
}
