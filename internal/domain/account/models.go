package account

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"balance/internal/domain/institution"
)

// Account types. Exchange wallets are the only type synced today.
const (
	TypeExchange = "exchange"
)

// Domain errors
var (
	ErrAccountNotFound        = errors.New("account not found")
	ErrInvalidInput           = errors.New("invalid input")
	ErrInvalidCurrency        = errors.New("valid currency code is required")
	ErrMissingInstitution     = errors.New("valid institution ID is required")
	ErrMissingSourceAccountID = errors.New("source account ID is required")
	ErrIncompleteAltCurrency  = errors.New("alt balances require an alt currency")
)

// Account is the persisted form of an exchange wallet.
// It is uniquely identified by (InstitutionID, Source, SourceAccountID).
type Account struct {
	ID                  int64              `json:"id"`
	InstitutionID       int64              `json:"institutionId"`
	Source              institution.Source `json:"source"`
	SourceAccountID     string             `json:"sourceAccountId"`
	SourceInstitutionID string             `json:"sourceInstitutionId"`
	AccountType         string             `json:"accountType"`
	Name                string             `json:"name"`
	Currency            string             `json:"currency"`
	CurrentBalance      decimal.Decimal    `json:"currentBalance"`
	AvailableBalance    decimal.Decimal    `json:"availableBalance"`
	AltCurrency         *string            `json:"altCurrency,omitempty"`
	AltCurrentBalance   *decimal.Decimal   `json:"altCurrentBalance,omitempty"`
	AltAvailableBalance *decimal.Decimal   `json:"altAvailableBalance,omitempty"`
	IsHidden            bool               `json:"isHidden"`
	CreatedAt           time.Time          `json:"createdAt"`
	UpdatedAt           time.Time          `json:"updatedAt"`
}

// UpsertParams contains the fields written by a find-or-create.
// Existing records keep their ID and hidden flag; everything else is replaced.
type UpsertParams struct {
	InstitutionID       int64
	Source              institution.Source
	SourceAccountID     string
	SourceInstitutionID string
	AccountType         string
	Name                string
	Currency            string
	CurrentBalance      decimal.Decimal
	AvailableBalance    decimal.Decimal
	AltCurrency         *string
	AltCurrentBalance   *decimal.Decimal
	AltAvailableBalance *decimal.Decimal
}

// Validate validates the upsert parameters
func (p UpsertParams) Validate() error {
	if p.InstitutionID <= 0 {
		return ErrMissingInstitution
	}
	if !p.Source.Valid() {
		return institution.ErrInvalidSource
	}
	if p.SourceAccountID == "" {
		return ErrMissingSourceAccountID
	}
	if !IsValidCurrency(p.Currency) {
		return ErrInvalidCurrency
	}
	if p.AltCurrency == nil && (p.AltCurrentBalance != nil || p.AltAvailableBalance != nil) {
		return ErrIncompleteAltCurrency
	}
	if p.AltCurrency != nil && !IsValidCurrency(*p.AltCurrency) {
		return ErrInvalidCurrency
	}
	return nil
}

// IsValidCurrency accepts fiat and crypto tickers: 2 to 10 upper-case letters or digits.
func IsValidCurrency(c string) bool {
	if len(c) < 2 || len(c) > 10 {
		return false
	}
	for _, r := range c {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
