package coinbase

import (
	"encoding/json"
	"fmt"
)

// Code is a Coinbase v2 error id. Ids missing from the table map to CodeOther.
type Code string

const (
	CodeTwoFactorRequired                  Code = "two_factor_required"
	CodeParamRequired                      Code = "param_required"
	CodeValidationError                    Code = "validation_error"
	CodeInvalidRequest                     Code = "invalid_request"
	CodePersonalDetailsRequired            Code = "personal_details_required"
	CodeIdentityVerificationRequired       Code = "identity_verification_required"
	CodeJumioVerificationRequired          Code = "jumio_verification_required"
	CodeJumioFaceMatchVerificationRequired Code = "jumio_face_match_verification_required"
	CodeUnverifiedEmail                    Code = "unverified_email"
	CodeAuthenticationError                Code = "authentication_error"
	CodeInvalidToken                       Code = "invalid_token"
	CodeRevokedToken                       Code = "revoked_token"
	CodeExpiredToken                       Code = "expired_token"
	CodeInvalidScope                       Code = "invalid_scope"
	CodeNotFound                           Code = "not_found"
	CodeRateLimitExceeded                  Code = "rate_limit_exceeded"
	CodeInternalServerError                Code = "internal_server_error"
	CodeOther                              Code = "other"
)

var knownCodes = map[string]Code{}

func init() {
	for _, c := range []Code{
		CodeTwoFactorRequired,
		CodeParamRequired,
		CodeValidationError,
		CodeInvalidRequest,
		CodePersonalDetailsRequired,
		CodeIdentityVerificationRequired,
		CodeJumioVerificationRequired,
		CodeJumioFaceMatchVerificationRequired,
		CodeUnverifiedEmail,
		CodeAuthenticationError,
		CodeInvalidToken,
		CodeRevokedToken,
		CodeExpiredToken,
		CodeInvalidScope,
		CodeNotFound,
		CodeRateLimitExceeded,
		CodeInternalServerError,
	} {
		knownCodes[string(c)] = c
	}
}

// CodeFor maps a Coinbase error id to its Code.
func CodeFor(id string) Code {
	if c, ok := knownCodes[id]; ok {
		return c
	}
	return CodeOther
}

// APIError is an error reported by Coinbase in an error envelope.
// ID keeps the raw identifier, which matters for CodeOther.
type APIError struct {
	Code    Code
	ID      string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == CodeOther {
		return fmt.Sprintf("coinbase: unknown error %q: %s", e.ID, e.Message)
	}
	return fmt.Sprintf("coinbase: %s: %s", e.ID, e.Message)
}

// Unauthorized reports whether the access token was rejected and the
// account must be reconnected or the token refreshed.
func (e *APIError) Unauthorized() bool {
	switch e.Code {
	case CodeAuthenticationError, CodeInvalidToken, CodeRevokedToken, CodeExpiredToken:
		return true
	}
	return false
}

type errorEnvelope struct {
	Errors []struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	} `json:"errors"`
}

// parseErrors returns the first error of an {"errors": [...]} envelope, or nil.
func parseErrors(body []byte) error {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || len(env.Errors) == 0 {
		return nil
	}
	first := env.Errors[0]
	return &APIError{Code: CodeFor(first.ID), ID: first.ID, Message: first.Message}
}
