package coinbase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"balance/internal/domain/credential"
	"balance/internal/domain/exchange"
	"balance/internal/domain/institution"
	"balance/internal/infrastructure/exchangeapi"
)

var testCred = &credential.Credential{Source: institution.SourceCoinbase, Kind: credential.KindOAuth, AccessToken: "token-1"}

func TestBuildRequest(t *testing.T) {
	c := newTestClient(t, "https://api.coinbase.com/", "")
	ctx := context.Background()

	req, err := c.BuildRequest(ctx, exchangeapi.Action{Type: exchangeapi.ActionAccounts}, testCred)
	if err != nil {
		t.Fatalf("BuildRequest() error: %v", err)
	}
	if req.URL.String() != "https://api.coinbase.com/v2/accounts?limit=100" {
		t.Errorf("URL = %s", req.URL)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer token-1" {
		t.Errorf("Authorization = %q", got)
	}
	if got := req.Header.Get("CB-VERSION"); got != APIVersion {
		t.Errorf("CB-VERSION = %q, want %q", got, APIVersion)
	}

	req, err = c.BuildRequest(ctx, exchangeapi.Action{Type: exchangeapi.ActionTransactions, AccountID: "acc 1"}, testCred)
	if err != nil || req.URL.String() != "https://api.coinbase.com/v2/accounts/acc%201/transactions?limit=100" {
		t.Errorf("transactions request = %v, %v", req, err)
	}

	noRequest := []struct {
		name   string
		action exchangeapi.Action
		cred   *credential.Credential
	}{
		{name: "nil credentials", action: exchangeapi.Action{Type: exchangeapi.ActionAccounts}},
		{name: "empty token", action: exchangeapi.Action{Type: exchangeapi.ActionAccounts}, cred: &credential.Credential{}},
		{name: "transactions without account", action: exchangeapi.Action{Type: exchangeapi.ActionTransactions}, cred: testCred},
	}
	for _, tt := range noRequest {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.BuildRequest(ctx, tt.action, tt.cred); !errors.Is(err, exchangeapi.ErrNoRequest) {
				t.Errorf("error = %v, want %v", err, exchangeapi.ErrNoRequest)
			}
		})
	}
}

func TestParseAccounts(t *testing.T) {
	c := newTestClient(t, "", "")

	body := []byte(`{
		"pagination": {"next_uri": null},
		"data": [
			{"id": "a1", "name": "BTC Wallet", "primary": true, "type": "wallet", "currency": "BTC",
			 "balance": {"amount": "0.50000000", "currency": "BTC"},
			 "native_balance": {"amount": "5000.00", "currency": "USD"}},
			{"id": "a2", "name": "ETH Wallet", "type": "wallet", "currency": {"code": "ETH", "name": "Ethereum"},
			 "balance": {"amount": "0", "currency": "ETH"}}
		]
	}`)

	accounts := c.ParseAccounts(body)
	if len(accounts) != 2 {
		t.Fatalf("ParseAccounts() returned %d accounts, want 2", len(accounts))
	}
	btc := accounts[0]
	if btc.SourceAccountID != "a1" || btc.CurrencyCode != "BTC" || !btc.CurrentBalance.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("btc = %+v", btc)
	}
	if btc.AltCurrencyCode == nil || *btc.AltCurrencyCode != "USD" || !btc.AltCurrentBalance.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("btc alt fields = %v %v", btc.AltCurrencyCode, btc.AltCurrentBalance)
	}
	if accounts[1].CurrencyCode != "ETH" || accounts[1].AltCurrencyCode != nil {
		t.Errorf("eth = %+v", accounts[1])
	}
}

func TestParseAccounts_MalformedIsEmpty(t *testing.T) {
	c := newTestClient(t, "", "")

	for _, body := range []string{`not json`, `{"data": {"id": "a1"}}`, `{"data": [{"id": 5}]}`, `{}`} {
		got := c.ParseAccounts([]byte(body))
		if got == nil || len(got) != 0 {
			t.Errorf("ParseAccounts(%s) = %v, want empty slice", body, got)
		}
	}
}

func TestParseAccounts_SkipsMalformedRecords(t *testing.T) {
	c := newTestClient(t, "", "")

	body := []byte(`{"data": [
		{"id": "a1", "currency": "BTC", "balance": {"amount": "1", "currency": "BTC"}},
		{"id": "a2", "currency": "ETH", "balance": {"amount": "not-a-number", "currency": "ETH"}},
		{"id": 3},
		{"id": "a4", "currency": "LTC", "balance": {"amount": "4", "currency": "LTC"}}
	]}`)

	accounts := c.ParseAccounts(body)
	if len(accounts) != 2 || accounts[0].SourceAccountID != "a1" || accounts[1].SourceAccountID != "a4" {
		t.Errorf("ParseAccounts() = %+v, want a1 and a4", accounts)
	}

	txns := c.ParseTransactions([]byte(`{"data": [
		{"id": "t1", "amount": {"amount": "1", "currency": "BTC"}, "created_at": "2018-01-25T10:00:00Z"},
		{"id": "t2", "amount": {"amount": "1", "currency": "BTC"}, "created_at": "yesterday"}
	]}`))
	if len(txns) != 1 || txns[0].SourceTransactionID != "t1" {
		t.Errorf("ParseTransactions() = %+v, want only t1", txns)
	}
}

func TestParseTransactions(t *testing.T) {
	c := newTestClient(t, "", "")

	body := []byte(`{"data": [
		{"id": "t1", "type": "send", "status": "completed",
		 "amount": {"amount": "-0.10000000", "currency": "BTC"},
		 "native_amount": {"amount": "-1000.00", "currency": "USD"},
		 "description": null,
		 "created_at": "2018-01-25T10:00:00Z",
		 "resource_path": "/v2/accounts/a1/transactions/t1",
		 "details": {"title": "Sent bitcoin", "subtitle": "to someone"}},
		{"id": "t2", "type": "buy",
		 "amount": {"amount": "1.0", "currency": "ETH"},
		 "description": "Bought ether",
		 "created_at": "2018-01-26T10:00:00Z"}
	]}`)

	txns := c.ParseTransactions(body)
	if len(txns) != 2 {
		t.Fatalf("ParseTransactions() returned %d, want 2", len(txns))
	}
	if txns[0].SourceAccountID != "a1" || txns[0].Name != "Sent bitcoin" || !txns[0].Amount.Equal(decimal.RequireFromString("-0.1")) {
		t.Errorf("t1 = %+v", txns[0])
	}
	if !txns[0].Date.Equal(time.Date(2018, 1, 25, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("t1 date = %v", txns[0].Date)
	}
	if txns[1].Name != "Bought ether" || txns[1].SourceAccountID != "" {
		t.Errorf("t2 = %+v", txns[1])
	}

	if got := c.ParseTransactions([]byte(`{"data": 1}`)); got == nil || len(got) != 0 {
		t.Errorf("malformed payload = %v, want empty slice", got)
	}
}

func TestParseErrors(t *testing.T) {
	c := newTestClient(t, "", "")

	tests := []struct {
		name     string
		body     string
		wantNil  bool
		wantCode Code
		wantID   string
	}{
		{name: "known id", body: `{"errors":[{"id":"expired_token","message":"The access token expired"}]}`, wantCode: CodeExpiredToken, wantID: "expired_token"},
		{name: "first error wins", body: `{"errors":[{"id":"not_found","message":"a"},{"id":"invalid_scope","message":"b"}]}`, wantCode: CodeNotFound, wantID: "not_found"},
		{name: "unknown id", body: `{"errors":[{"id":"brand_new_error","message":"?"}]}`, wantCode: CodeOther, wantID: "brand_new_error"},
		{name: "data envelope", body: `{"data":[]}`, wantNil: true},
		{name: "malformed", body: `<html>`, wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.ParseErrors([]byte(tt.body))
			if tt.wantNil {
				if err != nil {
					t.Errorf("ParseErrors() = %v, want nil", err)
				}
				return
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("ParseErrors() = %v, want *APIError", err)
			}
			if apiErr.Code != tt.wantCode || apiErr.ID != tt.wantID {
				t.Errorf("APIError = %+v, want code %s id %s", apiErr, tt.wantCode, tt.wantID)
			}
		})
	}
}

func TestCodeFor_AllKnownCodes(t *testing.T) {
	ids := []string{
		"two_factor_required", "param_required", "validation_error", "invalid_request",
		"personal_details_required", "identity_verification_required", "jumio_verification_required",
		"jumio_face_match_verification_required", "unverified_email", "authentication_error",
		"invalid_token", "revoked_token", "expired_token", "invalid_scope", "not_found",
		"rate_limit_exceeded", "internal_server_error",
	}
	for _, id := range ids {
		if got := CodeFor(id); string(got) != id {
			t.Errorf("CodeFor(%q) = %q", id, got)
		}
	}
}

// fakeCoinbase serves two pages of accounts and one page of transactions per account.
func fakeCoinbase(t *testing.T, failAccount string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/accounts", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token-1" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"errors":[{"id":"invalid_token","message":"The access token is invalid"}]}`))
			return
		}
		if r.URL.Query().Get("starting_after") == "" {
			w.Write([]byte(`{"pagination":{"next_uri":"/v2/accounts?starting_after=a1"},"data":[
				{"id":"a1","name":"BTC Wallet","currency":"BTC","balance":{"amount":"1","currency":"BTC"}}]}`))
			return
		}
		w.Write([]byte(`{"pagination":{"next_uri":null},"data":[
			{"id":"a2","name":"ETH Wallet","currency":"ETH","balance":{"amount":"2","currency":"ETH"}}]}`))
	})
	mux.HandleFunc("GET /v2/accounts/{id}/transactions", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if id == failAccount {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"errors":[{"id":"rate_limit_exceeded","message":"slow down"}]}`))
			return
		}
		fmt.Fprintf(w, `{"pagination":{},"data":[
			{"id":"%s-t1","type":"buy","amount":{"amount":"0.5","currency":"BTC"},"created_at":"2018-01-25T10:00:00Z"}]}`, id)
	})
	return httptest.NewServer(mux)
}

func TestFetchAccounts_FollowsPagination(t *testing.T) {
	server := fakeCoinbase(t, "")
	defer server.Close()
	c := newTestClient(t, server.URL, "")

	accounts, err := c.FetchAccounts(context.Background(), testCred)
	if err != nil {
		t.Fatalf("FetchAccounts() error: %v", err)
	}
	if len(accounts) != 2 || accounts[0].SourceAccountID != "a1" || accounts[1].SourceAccountID != "a2" {
		t.Errorf("accounts = %+v", accounts)
	}
}

func TestFetchAccounts_InvalidToken(t *testing.T) {
	server := fakeCoinbase(t, "")
	defer server.Close()
	c := newTestClient(t, server.URL, "")

	cred := &credential.Credential{Kind: credential.KindOAuth, AccessToken: "wrong"}
	_, err := c.FetchAccounts(context.Background(), cred)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != CodeInvalidToken {
		t.Errorf("error = %v, want invalid_token APIError", err)
	}
}

func TestFetchTransactions(t *testing.T) {
	server := fakeCoinbase(t, "")
	defer server.Close()
	c := newTestClient(t, server.URL, "")

	accounts := []exchange.ExchangeAccount{{SourceAccountID: "a1"}, {SourceAccountID: "a2"}}
	txns, err := c.FetchTransactions(context.Background(), testCred, accounts)
	if err != nil {
		t.Fatalf("FetchTransactions() error: %v", err)
	}
	ids := make([]string, 0, len(txns))
	for _, tx := range txns {
		ids = append(ids, tx.SourceAccountID+"/"+tx.SourceTransactionID)
	}
	sort.Strings(ids)
	want := []string{"a1/a1-t1", "a2/a2-t1"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Errorf("transactions = %v, want %v", ids, want)
	}
}

func TestFetchTransactions_AccountFailureAborts(t *testing.T) {
	server := fakeCoinbase(t, "a2")
	defer server.Close()
	c := newTestClient(t, server.URL, "")

	accounts := []exchange.ExchangeAccount{{SourceAccountID: "a1"}, {SourceAccountID: "a2"}}
	_, err := c.FetchTransactions(context.Background(), testCred, accounts)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != CodeRateLimitExceeded {
		t.Errorf("error = %v, want rate limit APIError", err)
	}
}

func TestStartFetchAccounts(t *testing.T) {
	server := fakeCoinbase(t, "")
	defer server.Close()
	c := newTestClient(t, server.URL, "")

	if op := c.StartFetchAccounts(context.Background(), nil, nil); op != nil {
		t.Error("StartFetchAccounts() without credentials should return nil")
	}

	op := c.StartFetchAccounts(context.Background(), testCred, nil)
	if op == nil {
		t.Fatal("StartFetchAccounts() returned nil")
	}
	res, ok := op.Wait()
	if !ok || res.Err != nil || len(res.Value) != 2 {
		t.Errorf("StartFetchAccounts() = %+v, %v; want both pages", res, ok)
	}
}

func TestFetchTransactions_OnlyGivenAccounts(t *testing.T) {
	var accountListings atomic.Int32
	inner := fakeCoinbase(t, "")
	defer inner.Close()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v2/accounts" {
			accountListings.Add(1)
		}
		proxy, _ := http.NewRequest(r.Method, inner.URL+r.URL.RequestURI(), nil)
		proxy.Header = r.Header
		resp, err := inner.Client().Do(proxy)
		if err != nil {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()
		w.WriteHeader(resp.StatusCode)
		io.Copy(w, resp.Body)
	}))
	defer server.Close()
	c := newTestClient(t, server.URL, "")

	txns, err := c.FetchTransactions(context.Background(), testCred, []exchange.ExchangeAccount{{SourceAccountID: "a2"}})
	if err != nil {
		t.Fatalf("FetchTransactions() error: %v", err)
	}
	if len(txns) != 1 || txns[0].SourceTransactionID != "a2-t1" {
		t.Errorf("transactions = %+v, want only a2-t1", txns)
	}
	if n := accountListings.Load(); n != 0 {
		t.Errorf("accounts listed %d times, want 0", n)
	}
}

func TestStartFetchTransactions(t *testing.T) {
	server := fakeCoinbase(t, "")
	defer server.Close()
	c := newTestClient(t, server.URL, "")

	if op := c.StartFetchTransactions(context.Background(), testCred, "", nil); op != nil {
		t.Error("StartFetchTransactions() without an account should return nil")
	}

	op := c.StartFetchTransactions(context.Background(), testCred, "a1", nil)
	if op == nil {
		t.Fatal("StartFetchTransactions() returned nil")
	}
	res, ok := op.Wait()
	if !ok || res.Err != nil || len(res.Value) != 1 || res.Value[0].SourceAccountID != "a1" {
		t.Errorf("StartFetchTransactions() = %+v, %v", res, ok)
	}
}
