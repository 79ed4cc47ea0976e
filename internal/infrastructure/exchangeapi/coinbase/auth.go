package coinbase

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"balance/internal/domain/credential"
	"balance/internal/infrastructure/exchangeapi"
)

const (
	authorizeURL = "https://www.coinbase.com/oauth/authorize"
	stateLength  = 32
	stateChars   = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Scopes requested when connecting an account.
var Scopes = []string{"wallet:user:read", "wallet:accounts:read", "wallet:transactions:read"}

var (
	ErrMissingAuthData      = errors.New("callback is missing state or code")
	ErrNoPendingAuth        = errors.New("no pending authentication")
	ErrStateMismatch        = errors.New("callback state does not match pending authentication")
	ErrInvalidTokenResponse = errors.New("token server returned invalid data")
)

// AuthSession is one pending OAuth authorization. It is created by
// PrepareAuth and consumed by the first callback whose state matches.
type AuthSession struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	AuthURL   string    `json:"authUrl"`
	CreatedAt time.Time `json:"createdAt"`
	Consumed  bool      `json:"consumed"`
}

// Pending reports whether the session can still accept a callback.
func (s *AuthSession) Pending() bool {
	return s != nil && !s.Consumed && s.State != ""
}

// PrepareAuth starts an authorization: a fresh random state and the URL
// the user is sent to.
func (c *Client) PrepareAuth(now time.Time) (*AuthSession, error) {
	state, err := randomState(stateLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	return &AuthSession{
		ID:        uuid.NewString(),
		State:     state,
		AuthURL:   c.authURL(state),
		CreatedAt: now,
	}, nil
}

func (c *Client) authURL(state string) string {
	scopes := make([]string, len(Scopes))
	for i, s := range Scopes {
		scopes[i] = url.QueryEscape(s)
	}

	params := []string{
		"client_id=" + url.QueryEscape(c.cfg.ClientID),
		"redirect_uri=" + url.QueryEscape(c.cfg.RedirectURI),
		"state=" + url.QueryEscape(state),
		"response_type=code",
		"scope=" + strings.Join(scopes, ","),
		"account=all",
	}
	return c.cfg.AuthorizeURL + "?" + strings.Join(params, "&")
}

// NewAuthRequest validates a callback payload against session and builds the
// code-for-token request to the token server. The session is consumed only
// when the request is built; on any error it is left untouched.
func (c *Client) NewAuthRequest(ctx context.Context, session *AuthSession, payload map[string]string) (*http.Request, error) {
	state, code := payload["state"], payload["code"]
	if state == "" || code == "" {
		return nil, ErrMissingAuthData
	}
	if !session.Pending() {
		return nil, ErrNoPendingAuth
	}
	if state != session.State {
		return nil, ErrStateMismatch
	}

	req, err := c.tokenRequest(ctx, "coinbase/requestToken", map[string]string{"code": code})
	if err != nil {
		return nil, err
	}

	session.Consumed = true
	return req, nil
}

// StartAuth runs the code exchange as an Operation. It returns nil when the
// payload does not match session; done is not called in that case.
func (c *Client) StartAuth(ctx context.Context, session *AuthSession, payload map[string]string, done func(exchangeapi.Result[*credential.OAuthToken])) *exchangeapi.Operation[*credential.OAuthToken] {
	req, err := c.NewAuthRequest(ctx, session, payload)
	if err != nil {
		c.logger.Debug("authentication aborted", zap.Error(err))
		return nil
	}
	return exchangeapi.Start(ctx, func(ctx context.Context) (*credential.OAuthToken, error) {
		return c.doToken(ctx, req)
	}, done)
}

// ExchangeCode is the blocking form of StartAuth.
func (c *Client) ExchangeCode(ctx context.Context, session *AuthSession, payload map[string]string) (*credential.OAuthToken, error) {
	req, err := c.NewAuthRequest(ctx, session, payload)
	if err != nil {
		return nil, err
	}
	return c.doToken(ctx, req)
}

// RefreshToken trades a refresh token for a new access token.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*credential.OAuthToken, error) {
	req, err := c.newRefreshRequest(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	return c.doToken(ctx, req)
}

// StartRefresh runs RefreshToken as an Operation. It returns nil without a refresh token.
func (c *Client) StartRefresh(ctx context.Context, refreshToken string, done func(exchangeapi.Result[*credential.OAuthToken])) *exchangeapi.Operation[*credential.OAuthToken] {
	req, err := c.newRefreshRequest(ctx, refreshToken)
	if err != nil {
		return nil
	}
	return exchangeapi.Start(ctx, func(ctx context.Context) (*credential.OAuthToken, error) {
		return c.doToken(ctx, req)
	}, done)
}

func (c *Client) newRefreshRequest(ctx context.Context, refreshToken string) (*http.Request, error) {
	if refreshToken == "" {
		return nil, exchangeapi.ErrNoRequest
	}
	return c.tokenRequest(ctx, "coinbase/refreshToken", map[string]string{"refreshToken": refreshToken})
}

func (c *Client) tokenRequest(ctx context.Context, path string, body map[string]string) (*http.Request, error) {
	if c.cfg.TokenServer == "" {
		return nil, exchangeapi.ErrNoRequest
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenServer+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", exchangeapi.ErrNoRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	return req, nil
}

func (c *Client) doToken(ctx context.Context, req *http.Request) (*credential.OAuthToken, error) {
	resp, err := exchangeapi.Execute(ctx, c.httpClient, req)
	if err != nil {
		return nil, err
	}
	if apiErr := parseErrors(resp.Body); apiErr != nil {
		return nil, apiErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &exchangeapi.HTTPError{StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}

	var tok credential.OAuthToken
	if err := json.Unmarshal(resp.Body, &tok); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTokenResponse, err)
	}
	if tok.AccessToken == "" {
		return nil, ErrInvalidTokenResponse
	}
	return &tok, nil
}

func randomState(n int) (string, error) {
	n64 := big.NewInt(int64(len(stateChars)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, n64)
		if err != nil {
			return "", err
		}
		b[i] = stateChars[idx.Int64()]
	}
	return string(b), nil
}
