// Package credential stores what is needed to call an exchange on the
// owner's behalf: OAuth tokens for Coinbase, API key pairs for Poloniex.
package credential

import (
	"errors"
	"time"

	"balance/internal/domain/institution"
)

// Kind of credential held for a source.
type Kind string

const (
	KindOAuth  Kind = "oauth"
	KindAPIKey Kind = "api_key"
)

// ExpirySkew is subtracted from token expiry so a token is refreshed
// before the exchange starts rejecting it.
const ExpirySkew = 60 * time.Second

var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrMissingAPIKey      = errors.New("api key and secret are required")
	ErrMissingAccessToken = errors.New("access token is required")
	ErrInvalidKind        = errors.New("invalid credential kind")
)

type Credential struct {
	Source       institution.Source `json:"source"`
	Kind         Kind               `json:"kind"`
	AccessToken  string             `json:"-"`
	RefreshToken string             `json:"-"`
	TokenType    string             `json:"tokenType,omitempty"`
	Scope        string             `json:"scope,omitempty"`
	ExpiresAt    *time.Time         `json:"expiresAt,omitempty"`
	APIKey       string             `json:"-"`
	Secret       string             `json:"-"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

// Expired reports whether an OAuth access token must be refreshed at now.
// Credentials without an expiry never expire.
func (c *Credential) Expired(now time.Time) bool {
	if c.Kind != KindOAuth || c.ExpiresAt == nil {
		return false
	}
	return !now.Before(c.ExpiresAt.Add(-ExpirySkew))
}

// CanRefresh reports whether the credential carries a refresh token.
func (c *Credential) CanRefresh() bool {
	return c.Kind == KindOAuth && c.RefreshToken != ""
}

// Validate checks that the fields required by Kind are present.
func (c *Credential) Validate() error {
	if !c.Source.Valid() {
		return institution.ErrInvalidSource
	}
	switch c.Kind {
	case KindOAuth:
		if c.AccessToken == "" {
			return ErrMissingAccessToken
		}
	case KindAPIKey:
		if c.APIKey == "" || c.Secret == "" {
			return ErrMissingAPIKey
		}
	default:
		return ErrInvalidKind
	}
	return nil
}

// ApplyToken replaces the OAuth fields with a freshly issued token.
// An empty refresh token in the response keeps the previous one.
func (c *Credential) ApplyToken(tok *OAuthToken, now time.Time) {
	c.Kind = KindOAuth
	c.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		c.RefreshToken = tok.RefreshToken
	}
	c.TokenType = tok.TokenType
	c.Scope = tok.Scope
	c.ExpiresAt = nil
	if tok.ExpiresIn > 0 {
		exp := now.Add(time.Duration(tok.ExpiresIn) * time.Second)
		c.ExpiresAt = &exp
	}
	c.UpdatedAt = now
}

// OAuthToken is the token payload returned by the token-brokering server.
type OAuthToken struct {
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Scope        string `json:"scope"`
}

// NewOAuth builds a credential from a token issued at now.
func NewOAuth(source institution.Source, tok *OAuthToken, now time.Time) *Credential {
	c := &Credential{Source: source}
	c.ApplyToken(tok, now)
	return c
}

// NewAPIKey builds an API key credential.
func NewAPIKey(source institution.Source, apiKey, secret string, now time.Time) *Credential {
	return &Credential{
		Source:    source,
		Kind:      KindAPIKey,
		APIKey:    apiKey,
		Secret:    secret,
		UpdatedAt: now,
	}
}
