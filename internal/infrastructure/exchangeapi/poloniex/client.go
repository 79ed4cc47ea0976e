// Package poloniex is the client of the Poloniex private trading API.
// Requests are form-encoded and signed with the account's API secret.
package poloniex

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"balance/internal/domain/credential"
	"balance/internal/domain/exchange"
	"balance/internal/domain/institution"
	"balance/internal/infrastructure/exchangeapi"
)

const (
	DefaultTradingAPIURL = "https://poloniex.com/tradingApi"
	LoginURL             = "https://poloniex.com/login"

	commandBalances          = "returnCompleteBalances"
	commandDepositsWithdraws = "returnDepositsWithdrawals"

	// Balances are mirrored in BTC.
	altCurrency = "BTC"
)

// APIError is the {"error": "..."} envelope Poloniex answers with.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	return "poloniex: " + e.Message
}

type Client struct {
	tradingURL string
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time

	mu        sync.Mutex
	lastNonce int64

	// sendMu is held from signing until the response arrives. Poloniex
	// rejects a nonce not greater than the last one it received, so requests
	// must reach it in nonce order.
	sendMu sync.Mutex
}

func NewClient(tradingURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if tradingURL == "" {
		tradingURL = DefaultTradingAPIURL
	}
	if httpClient == nil {
		httpClient = exchangeapi.NewHTTPClient()
	}
	return &Client{
		tradingURL: tradingURL,
		httpClient: httpClient,
		logger:     logger.Named("poloniex"),
		now:        time.Now,
	}
}

func (c *Client) Source() institution.Source {
	return institution.SourcePoloniex
}

func (c *Client) Info() exchangeapi.Info {
	return exchangeapi.Info{
		Source:   institution.SourcePoloniex,
		Name:     institution.SourcePoloniex.DisplayName(),
		URL:      LoginURL,
		AuthKind: credential.KindAPIKey,
		Fields: []exchangeapi.Field{
			{Name: "API Key", Type: "key"},
			{Name: "Secret", Type: "secret"},
		},
	}
}

// nonce returns a strictly increasing value based on the clock in microseconds.
func (c *Client) nonce() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.now().UnixNano() / int64(time.Microsecond)
	if n <= c.lastNonce {
		n = c.lastNonce + 1
	}
	c.lastNonce = n
	return n
}

// Sign returns hex(HMAC-SHA512(secret, body)).
func Sign(secret, body string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

// BuildRequest returns the signed POST for action.
// It fails with exchangeapi.ErrNoRequest without an API key pair.
func (c *Client) BuildRequest(ctx context.Context, action exchangeapi.Action, cred *credential.Credential) (*http.Request, error) {
	if !hasKeyPair(cred) {
		return nil, exchangeapi.ErrNoRequest
	}

	form := url.Values{}
	switch action.Type {
	case exchangeapi.ActionAccounts:
		form.Set("command", commandBalances)
	case exchangeapi.ActionTransactions:
		form.Set("command", commandDepositsWithdraws)
		form.Set("start", "0")
		form.Set("end", strconv.FormatInt(c.now().Unix(), 10))
	default:
		return nil, exchangeapi.ErrNoRequest
	}
	form.Set("nonce", strconv.FormatInt(c.nonce(), 10))
	body := form.Encode()

	target := c.tradingURL
	if action.URL != "" {
		target = action.URL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", exchangeapi.ErrNoRequest, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Key", cred.APIKey)
	req.Header.Set("Sign", Sign(cred.Secret, body))
	return req, nil
}

func (c *Client) ParseErrors(body []byte) error {
	var env struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil || env.Error == "" {
		return nil
	}
	return &APIError{Message: env.Error}
}

type balance struct {
	Available decimal.Decimal `json:"available"`
	OnOrders  decimal.Decimal `json:"onOrders"`
	BTCValue  decimal.Decimal `json:"btcValue"`
}

// ParseAccounts maps complete balances to one account per currency, sorted
// by currency. Malformed balances are logged and skipped; a body that is not
// an object yields an empty slice.
func (c *Client) ParseAccounts(body []byte) []exchange.ExchangeAccount {
	var records map[string]json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		c.logger.Error("unable to parse poloniex balances", zap.Error(err))
		return []exchange.ExchangeAccount{}
	}

	raw := make(map[string]balance, len(records))
	currencies := make([]string, 0, len(records))
	for cur, record := range records {
		var b balance
		if err := json.Unmarshal(record, &b); err != nil {
			c.logger.Warn("skipping malformed poloniex balance", zap.String("currency", cur), zap.Error(err))
			continue
		}
		raw[cur] = b
		currencies = append(currencies, cur)
	}
	sort.Strings(currencies)

	accounts := make([]exchange.ExchangeAccount, 0, len(raw))
	for _, cur := range currencies {
		b := raw[cur]
		alt := altCurrency
		btcValue := b.BTCValue
		btcAvailable := b.BTCValue
		accounts = append(accounts, exchange.ExchangeAccount{
			Source:              institution.SourcePoloniex,
			SourceAccountID:     cur,
			Name:                cur,
			CurrencyCode:        cur,
			CurrentBalance:      b.Available.Add(b.OnOrders),
			AvailableBalance:    b.Available,
			AltCurrencyCode:     &alt,
			AltCurrentBalance:   &btcValue,
			AltAvailableBalance: &btcAvailable,
		})
	}
	return accounts
}

type deposit struct {
	Currency  string          `json:"currency"`
	Address   string          `json:"address"`
	Amount    decimal.Decimal `json:"amount"`
	TxID      string          `json:"txid"`
	Timestamp int64           `json:"timestamp"`
	Status    string          `json:"status"`
}

type withdrawal struct {
	WithdrawalNumber int64           `json:"withdrawalNumber"`
	Currency         string          `json:"currency"`
	Address          string          `json:"address"`
	Amount           decimal.Decimal `json:"amount"`
	Timestamp        int64           `json:"timestamp"`
	Status           string          `json:"status"`
}

// ParseTransactions maps deposits to inflows and withdrawals to outflows.
// Malformed records are logged and skipped; a malformed body yields an empty slice.
func (c *Client) ParseTransactions(body []byte) []exchange.ExchangeTransaction {
	var raw struct {
		Deposits    json.RawMessage `json:"deposits"`
		Withdrawals json.RawMessage `json:"withdrawals"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		c.logger.Error("unable to parse poloniex deposits and withdrawals", zap.Error(err))
		return []exchange.ExchangeTransaction{}
	}
	deposits := decodeList[deposit](c, raw.Deposits, "deposit")
	withdrawals := decodeList[withdrawal](c, raw.Withdrawals, "withdrawal")

	txns := make([]exchange.ExchangeTransaction, 0, len(deposits)+len(withdrawals))
	for _, d := range deposits {
		txns = append(txns, exchange.ExchangeTransaction{
			Source:              institution.SourcePoloniex,
			SourceTransactionID: d.TxID,
			SourceAccountID:     d.Currency,
			Name:                "Deposit " + d.Currency,
			CurrencyCode:        d.Currency,
			Amount:              d.Amount.Abs(),
			Date:                time.Unix(d.Timestamp, 0).UTC(),
		})
	}
	for _, w := range withdrawals {
		txns = append(txns, exchange.ExchangeTransaction{
			Source:              institution.SourcePoloniex,
			SourceTransactionID: strconv.FormatInt(w.WithdrawalNumber, 10),
			SourceAccountID:     w.Currency,
			Name:                "Withdrawal " + w.Currency,
			CurrencyCode:        w.Currency,
			Amount:              w.Amount.Abs().Neg(),
			Date:                time.Unix(w.Timestamp, 0).UTC(),
		})
	}
	return txns
}

// fetch signs and sends one request. Calls are serialized per client.
func (c *Client) fetch(ctx context.Context, action exchangeapi.Action, cred *credential.Credential) ([]byte, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return exchangeapi.Fetch(ctx, c.httpClient, c, action, cred)
}

// decodeList decodes a possibly absent JSON array, skipping bad records.
func decodeList[T any](c *Client, data json.RawMessage, kind string) []T {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	items, err := exchangeapi.DecodeEach[T](data, func(i int, err error) {
		c.logger.Warn("skipping malformed poloniex "+kind, zap.Int("index", i), zap.Error(err))
	})
	if err != nil {
		c.logger.Error("unable to parse poloniex "+kind+"s", zap.Error(err))
		return nil
	}
	return items
}

func (c *Client) FetchAccounts(ctx context.Context, cred *credential.Credential) ([]exchange.ExchangeAccount, error) {
	body, err := c.fetch(ctx, exchangeapi.Action{Type: exchangeapi.ActionAccounts}, cred)
	if err != nil {
		return nil, err
	}
	return c.ParseAccounts(body), nil
}

// FetchTransactions returns all deposits and withdrawals in one request;
// accounts is not needed.
func (c *Client) FetchTransactions(ctx context.Context, cred *credential.Credential, _ []exchange.ExchangeAccount) ([]exchange.ExchangeTransaction, error) {
	body, err := c.fetch(ctx, exchangeapi.Action{Type: exchangeapi.ActionTransactions}, cred)
	if err != nil {
		return nil, err
	}
	return c.ParseTransactions(body), nil
}

// StartFetchAccounts runs FetchAccounts as an Operation.
// It returns nil when cred holds no API key pair.
func (c *Client) StartFetchAccounts(ctx context.Context, cred *credential.Credential, done func(exchangeapi.Result[[]exchange.ExchangeAccount])) *exchangeapi.Operation[[]exchange.ExchangeAccount] {
	if !hasKeyPair(cred) {
		return nil
	}
	return exchangeapi.Start(ctx, func(ctx context.Context) ([]exchange.ExchangeAccount, error) {
		return c.FetchAccounts(ctx, cred)
	}, done)
}

// StartFetchTransactions runs FetchTransactions as an Operation.
func (c *Client) StartFetchTransactions(ctx context.Context, cred *credential.Credential, done func(exchangeapi.Result[[]exchange.ExchangeTransaction])) *exchangeapi.Operation[[]exchange.ExchangeTransaction] {
	if !hasKeyPair(cred) {
		return nil
	}
	return exchangeapi.Start(ctx, func(ctx context.Context) ([]exchange.ExchangeTransaction, error) {
		return c.FetchTransactions(ctx, cred, nil)
	}, done)
}

func hasKeyPair(cred *credential.Credential) bool {
	return cred != nil && cred.APIKey != "" && cred.Secret != ""
}

var (
	_ exchange.Client       = (*Client)(nil)
	_ exchangeapi.API       = (*Client)(nil)
	_ exchangeapi.Describer = (*Client)(nil)
)
