// Package coinbase is the Coinbase v2 client. Tokens are obtained through a
// token-brokering server so the client secret never leaves that server.
package coinbase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"balance/internal/domain/credential"
	"balance/internal/domain/exchange"
	"balance/internal/domain/institution"
	"balance/internal/infrastructure/exchangeapi"
)

const (
	// APIVersion is sent as CB-VERSION on every API request.
	APIVersion = "2017-05-19"

	pageLimit           = "100"
	maxPages            = 100
	transactionFetchers = 4
)

type Config struct {
	ClientID     string
	RedirectURI  string
	AuthorizeURL string
	// TokenServer is the token broker base URL, ending with a slash.
	TokenServer string
	APIBaseURL  string
}

// Client implements exchange.Client, exchange.TokenRefresher and exchangeapi.API for Coinbase.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if cfg.AuthorizeURL == "" {
		cfg.AuthorizeURL = authorizeURL
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	if httpClient == nil {
		httpClient = exchangeapi.NewHTTPClient()
	}
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger.Named("coinbase"),
	}
}

func (c *Client) Source() institution.Source {
	return institution.SourceCoinbase
}

// BuildRequest returns an authenticated GET for action.
// It fails with exchangeapi.ErrNoRequest without an access token.
func (c *Client) BuildRequest(ctx context.Context, action exchangeapi.Action, cred *credential.Credential) (*http.Request, error) {
	if !hasToken(cred) {
		return nil, exchangeapi.ErrNoRequest
	}

	target := action.URL
	if target == "" {
		switch action.Type {
		case exchangeapi.ActionAccounts:
			target = c.cfg.APIBaseURL + "/v2/accounts?limit=" + pageLimit
		case exchangeapi.ActionTransactions:
			if action.AccountID == "" {
				return nil, exchangeapi.ErrNoRequest
			}
			target = c.cfg.APIBaseURL + "/v2/accounts/" + url.PathEscape(action.AccountID) + "/transactions?limit=" + pageLimit
		default:
			return nil, exchangeapi.ErrNoRequest
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", exchangeapi.ErrNoRequest, err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("CB-VERSION", APIVersion)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	return req, nil
}

func (c *Client) ParseErrors(body []byte) error {
	return parseErrors(body)
}

// ParseAccounts decodes an accounts page. Malformed records are logged and
// skipped; a page without a data array yields an empty slice.
func (c *Client) ParseAccounts(body []byte) []exchange.ExchangeAccount {
	raw, err := decodeData[apiAccount](c, body, "account")
	if err != nil {
		c.logger.Error("unable to parse coinbase accounts", zap.Error(err), zap.ByteString("body", body))
		return []exchange.ExchangeAccount{}
	}

	accounts := make([]exchange.ExchangeAccount, 0, len(raw))
	for _, a := range raw {
		acc := exchange.ExchangeAccount{
			Source:           institution.SourceCoinbase,
			SourceAccountID:  a.ID,
			Name:             a.Name,
			CurrencyCode:     a.currencyCode(),
			CurrentBalance:   a.Balance.Amount,
			AvailableBalance: a.Balance.Amount,
		}
		if a.NativeBalance != nil && a.NativeBalance.Currency != "" {
			code := a.NativeBalance.Currency
			amount := a.NativeBalance.Amount
			acc.AltCurrencyCode = &code
			acc.AltCurrentBalance = &amount
			acc.AltAvailableBalance = &amount
		}
		accounts = append(accounts, acc)
	}
	return accounts
}

// ParseTransactions decodes a transactions page. Malformed records are
// logged and skipped; a page without a data array yields an empty slice.
func (c *Client) ParseTransactions(body []byte) []exchange.ExchangeTransaction {
	raw, err := decodeData[apiTransaction](c, body, "transaction")
	if err != nil {
		c.logger.Error("unable to parse coinbase transactions", zap.Error(err), zap.ByteString("body", body))
		return []exchange.ExchangeTransaction{}
	}

	txns := make([]exchange.ExchangeTransaction, 0, len(raw))
	for _, t := range raw {
		txns = append(txns, exchange.ExchangeTransaction{
			Source:              institution.SourceCoinbase,
			SourceTransactionID: t.ID,
			SourceAccountID:     t.accountID(),
			Name:                t.name(),
			CurrencyCode:        t.Amount.Currency,
			Amount:              t.Amount.Amount,
			Date:                t.CreatedAt,
		})
	}
	return txns
}

func decodeData[T any](c *Client, body []byte, kind string) ([]T, error) {
	data, err := exchangeapi.UnwrapData(body)
	if err != nil {
		return nil, err
	}
	return exchangeapi.DecodeEach[T](data, func(i int, err error) {
		c.logger.Warn("skipping malformed coinbase "+kind, zap.Int("index", i), zap.Error(err))
	})
}

// nextURL returns the absolute URL of the next page, or "" on the last page.
func (c *Client) nextURL(body []byte) string {
	v, err := exchangeapi.Lookup(body, "$.pagination.next_uri")
	if err != nil {
		return ""
	}
	next, ok := v.(string)
	if !ok || next == "" {
		return ""
	}
	if strings.HasPrefix(next, "http://") || strings.HasPrefix(next, "https://") {
		return next
	}
	return c.cfg.APIBaseURL + next
}

// fetchPages follows pagination from action and hands every page to collect.
func (c *Client) fetchPages(ctx context.Context, action exchangeapi.Action, cred *credential.Credential, collect func(body []byte)) error {
	for page := 0; page < maxPages; page++ {
		body, err := exchangeapi.Fetch(ctx, c.httpClient, c, action, cred)
		if err != nil {
			return err
		}
		collect(body)

		next := c.nextURL(body)
		if next == "" {
			return nil
		}
		action.URL = next
	}
	c.logger.Warn("stopped following pagination", zap.Int("pages", maxPages), zap.Stringer("action", action.Type))
	return nil
}

// FetchAccounts returns every account of the connected user.
func (c *Client) FetchAccounts(ctx context.Context, cred *credential.Credential) ([]exchange.ExchangeAccount, error) {
	var accounts []exchange.ExchangeAccount
	err := c.fetchPages(ctx, exchangeapi.Action{Type: exchangeapi.ActionAccounts}, cred, func(body []byte) {
		accounts = append(accounts, c.ParseAccounts(body)...)
	})
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// FetchTransactions fetches the transactions of accounts concurrently.
// Any account failing aborts the whole fetch.
func (c *Client) FetchTransactions(ctx context.Context, cred *credential.Credential, accounts []exchange.ExchangeAccount) ([]exchange.ExchangeTransaction, error) {
	p := pool.NewWithResults[[]exchange.ExchangeTransaction]().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(transactionFetchers)
	for _, acc := range accounts {
		accountID := acc.SourceAccountID
		p.Go(func(ctx context.Context) ([]exchange.ExchangeTransaction, error) {
			return c.FetchAccountTransactions(ctx, cred, accountID)
		})
	}

	pages, err := p.Wait()
	if err != nil {
		return nil, err
	}

	var txns []exchange.ExchangeTransaction
	for _, page := range pages {
		txns = append(txns, page...)
	}
	return txns, nil
}

// FetchAccountTransactions returns the transactions of one account.
func (c *Client) FetchAccountTransactions(ctx context.Context, cred *credential.Credential, accountID string) ([]exchange.ExchangeTransaction, error) {
	var txns []exchange.ExchangeTransaction
	action := exchangeapi.Action{Type: exchangeapi.ActionTransactions, AccountID: accountID}
	err := c.fetchPages(ctx, action, cred, func(body []byte) {
		for _, t := range c.ParseTransactions(body) {
			t.SourceAccountID = accountID
			txns = append(txns, t)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", accountID, err)
	}
	return txns, nil
}

// StartFetchAccounts runs FetchAccounts, pagination included, as an Operation.
// It returns nil when cred holds no access token.
func (c *Client) StartFetchAccounts(ctx context.Context, cred *credential.Credential, done func(exchangeapi.Result[[]exchange.ExchangeAccount])) *exchangeapi.Operation[[]exchange.ExchangeAccount] {
	if !hasToken(cred) {
		return nil
	}
	return exchangeapi.Start(ctx, func(ctx context.Context) ([]exchange.ExchangeAccount, error) {
		return c.FetchAccounts(ctx, cred)
	}, done)
}

// StartFetchTransactions runs FetchAccountTransactions, pagination included, as an Operation.
// It returns nil when cred holds no access token or accountID is empty.
func (c *Client) StartFetchTransactions(ctx context.Context, cred *credential.Credential, accountID string, done func(exchangeapi.Result[[]exchange.ExchangeTransaction])) *exchangeapi.Operation[[]exchange.ExchangeTransaction] {
	if !hasToken(cred) || accountID == "" {
		return nil
	}
	return exchangeapi.Start(ctx, func(ctx context.Context) ([]exchange.ExchangeTransaction, error) {
		return c.FetchAccountTransactions(ctx, cred, accountID)
	}, done)
}

func hasToken(cred *credential.Credential) bool {
	return cred != nil && cred.AccessToken != ""
}

var (
	_ exchange.Client         = (*Client)(nil)
	_ exchange.TokenRefresher = (*Client)(nil)
	_ exchangeapi.API         = (*Client)(nil)
)

func (c *Client) Info() exchangeapi.Info {
	return exchangeapi.Info{
		Source:   institution.SourceCoinbase,
		Name:     institution.SourceCoinbase.DisplayName(),
		URL:      "https://www.coinbase.com",
		AuthKind: credential.KindOAuth,
	}
}
