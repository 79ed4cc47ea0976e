// Package exchangeapi holds the plumbing shared by exchange clients:
// the capability interface each exchange implements, request execution with
// a fixed deadline, envelope decoding and cancellable operations.
package exchangeapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"balance/internal/domain/credential"
	"balance/internal/domain/exchange"
	"balance/internal/domain/institution"
)

var (
	// ErrNoRequest is returned when a request cannot be built, for example
	// because credentials or a URL are missing.
	ErrNoRequest = errors.New("request could not be built")
	ErrNoData    = errors.New("response has no data envelope")
	ErrPanic     = errors.New("operation panicked")
)

type ActionType int

const (
	ActionAccounts ActionType = iota
	ActionTransactions
)

func (t ActionType) String() string {
	switch t {
	case ActionAccounts:
		return "accounts"
	case ActionTransactions:
		return "transactions"
	default:
		return fmt.Sprintf("action(%d)", int(t))
	}
}

// Action describes one fetch against an exchange.
type Action struct {
	Type ActionType
	// AccountID scopes transaction fetches on exchanges that list them per account.
	AccountID string
	// URL overrides the default endpoint, used to follow pagination links.
	URL string
}

// API is the capability set every exchange variant implements.
// Parse functions are lossy: malformed payloads yield empty results.
type API interface {
	Source() institution.Source
	BuildRequest(ctx context.Context, action Action, cred *credential.Credential) (*http.Request, error)
	ParseAccounts(body []byte) []exchange.ExchangeAccount
	ParseTransactions(body []byte) []exchange.ExchangeTransaction
	ParseErrors(body []byte) error
}

// HTTPError is returned for non-2xx responses that carry no provider error envelope.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Fetch builds the request for action, runs it and returns the body.
// Provider error envelopes are returned as the error from api.ParseErrors.
func Fetch(ctx context.Context, client *http.Client, api API, action Action, cred *credential.Credential) ([]byte, error) {
	req, err := api.BuildRequest(ctx, action, cred)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrNoRequest
	}
	return run(ctx, client, api, req)
}

func run(ctx context.Context, client *http.Client, api API, req *http.Request) ([]byte, error) {
	resp, err := Execute(ctx, client, req)
	if err != nil {
		return nil, err
	}
	if apiErr := api.ParseErrors(resp.Body); apiErr != nil {
		return nil, apiErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: truncate(string(resp.Body), 512)}
	}
	return resp.Body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
