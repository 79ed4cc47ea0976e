// Package exchange normalizes what exchange clients fetch and reconciles it
// with the persisted institutions, accounts and transactions.
package exchange

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"balance/internal/domain/credential"
	"balance/internal/domain/institution"
)

var (
	ErrUnsupportedSource = errors.New("unsupported exchange source")
	ErrNotConnected      = errors.New("exchange is not connected")
	ErrSyncInProgress    = errors.New("sync already in progress for source")
)

// AnchorCurrencies are never hidden, even with a zero balance.
var AnchorCurrencies = map[string]struct{}{
	"BTC": {},
	"ETH": {},
}

// IsAnchorCurrency reports whether code is one of AnchorCurrencies.
func IsAnchorCurrency(code string) bool {
	_, ok := AnchorCurrencies[code]
	return ok
}

// ExchangeAccount is a wallet as reported by an exchange.
type ExchangeAccount struct {
	InstitutionID       int64              `json:"institutionId"`
	Source              institution.Source `json:"source"`
	SourceAccountID     string             `json:"sourceAccountId"`
	Name                string             `json:"name"`
	CurrencyCode        string             `json:"currencyCode"`
	CurrentBalance      decimal.Decimal    `json:"currentBalance"`
	AvailableBalance    decimal.Decimal    `json:"availableBalance"`
	AltCurrencyCode     *string            `json:"altCurrencyCode,omitempty"`
	AltCurrentBalance   *decimal.Decimal   `json:"altCurrentBalance,omitempty"`
	AltAvailableBalance *decimal.Decimal   `json:"altAvailableBalance,omitempty"`
	IsHidden            bool               `json:"isHidden"`
}

// ExchangeTransaction is a movement as reported by an exchange.
type ExchangeTransaction struct {
	Source              institution.Source `json:"source"`
	SourceTransactionID string             `json:"sourceTransactionId"`
	SourceAccountID     string             `json:"sourceAccountId"`
	SourceInstitutionID string             `json:"sourceInstitutionId"`
	InstitutionID       int64              `json:"institutionId"`
	Name                string             `json:"name"`
	CurrencyCode        string             `json:"currencyCode"`
	Amount              decimal.Decimal    `json:"amount"`
	Date                time.Time          `json:"date"`
	CategoryID          *int64             `json:"categoryId,omitempty"`
}

// Client fetches normalized data from one exchange.
// FetchTransactions receives the accounts of the same sync, so clients that
// list transactions per account never list accounts twice.
type Client interface {
	Source() institution.Source
	FetchAccounts(ctx context.Context, cred *credential.Credential) ([]ExchangeAccount, error)
	FetchTransactions(ctx context.Context, cred *credential.Credential, accounts []ExchangeAccount) ([]ExchangeTransaction, error)
}

// TokenRefresher is implemented by clients whose credentials expire.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (*credential.OAuthToken, error)
}

// ClientResolver returns the client registered for a source.
type ClientResolver interface {
	Client(source institution.Source) (Client, error)
}
