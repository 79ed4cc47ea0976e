package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"balance/internal/domain/credential"
	"balance/internal/domain/institution"
	"balance/internal/infrastructure/exchangeapi"
	"balance/internal/infrastructure/exchangeapi/coinbase"
	"balance/internal/infrastructure/session"
)

// AuthCookieName holds the id of the pending Coinbase authorization.
const AuthCookieName = "coinbase_auth"

// Catalog lists the exchanges the service can connect to.
type Catalog interface {
	Infos() []exchangeapi.Info
}

// CoinbaseAuthorizer runs the Coinbase OAuth flow.
type CoinbaseAuthorizer interface {
	PrepareAuth(now time.Time) (*coinbase.AuthSession, error)
	ExchangeCode(ctx context.Context, s *coinbase.AuthSession, payload map[string]string) (*credential.OAuthToken, error)
}

type ExchangeHandler struct {
	catalog     Catalog
	credentials credential.Repository
	sessions    session.Store
	coinbase    CoinbaseAuthorizer
	logger      *zap.Logger
	now         func() time.Time
	secure      bool
}

func NewExchangeHandler(
	catalog Catalog,
	credentials credential.Repository,
	sessions session.Store,
	cb CoinbaseAuthorizer,
	secureCookies bool,
	logger *zap.Logger,
) *ExchangeHandler {
	return &ExchangeHandler{
		catalog:     catalog,
		credentials: credentials,
		sessions:    sessions,
		coinbase:    cb,
		logger:      logger.Named("exchange_handler"),
		now:         time.Now,
		secure:      secureCookies,
	}
}

type ExchangeResponse struct {
	exchangeapi.Info
	Connected bool `json:"connected"`
}

type AuthResponse struct {
	AuthURL string `json:"authUrl"`
}

type CredentialsRequest struct {
	APIKey string `json:"apiKey"`
	Secret string `json:"secret"`
}

type ConnectedResponse struct {
	Source    institution.Source `json:"source"`
	Connected bool               `json:"connected"`
}

// HandleListExchanges returns every supported exchange and whether it is connected.
func (h *ExchangeHandler) HandleListExchanges(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sources, err := h.credentials.ListSources(r.Context())
	if err != nil {
		h.logger.Error("failed to list connected sources", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list exchanges")
		return
	}
	connected := make(map[institution.Source]bool, len(sources))
	for _, s := range sources {
		connected[s] = true
	}

	infos := h.catalog.Infos()
	response := make([]ExchangeResponse, 0, len(infos))
	for _, info := range infos {
		response = append(response, ExchangeResponse{Info: info, Connected: connected[info.Source]})
	}

	writeJSON(w, http.StatusOK, response)
}

// HandleCoinbaseAuth prepares an authorization and returns the URL to send the user to.
func (h *ExchangeHandler) HandleCoinbaseAuth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s, err := h.coinbase.PrepareAuth(h.now())
	if err != nil {
		h.logger.Error("failed to prepare coinbase auth", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to start authorization")
		return
	}
	if err := h.sessions.Save(r.Context(), s); err != nil {
		h.logger.Error("failed to store auth session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to start authorization")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookieName,
		Value:    s.ID,
		Path:     "/api/exchanges/coinbase",
		MaxAge:   int(session.TTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, AuthResponse{AuthURL: s.AuthURL})
}

// HandleCoinbaseCallback completes the authorization. A callback that does not
// match the pending session is rejected and leaves the session in place.
func (h *ExchangeHandler) HandleCoinbaseCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cookie, err := r.Cookie(AuthCookieName)
	if err != nil || cookie.Value == "" {
		writeError(w, http.StatusBadRequest, "No pending authorization")
		return
	}
	s, err := h.sessions.Get(r.Context(), cookie.Value)
	if errors.Is(err, session.ErrSessionNotFound) {
		writeError(w, http.StatusBadRequest, "No pending authorization")
		return
	}
	if err != nil {
		h.logger.Error("failed to load auth session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to complete authorization")
		return
	}

	q := r.URL.Query()
	payload := map[string]string{"state": q.Get("state"), "code": q.Get("code")}

	tok, err := h.coinbase.ExchangeCode(r.Context(), s, payload)
	switch {
	case errors.Is(err, coinbase.ErrMissingAuthData),
		errors.Is(err, coinbase.ErrStateMismatch),
		errors.Is(err, coinbase.ErrNoPendingAuth):
		h.logger.Warn("rejected coinbase callback", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Invalid authorization callback")
		return
	case err != nil:
		h.dropSession(r.Context(), w, s.ID)
		h.logger.Error("coinbase token exchange failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "Token exchange failed")
		return
	}

	h.dropSession(r.Context(), w, s.ID)

	cred := credential.NewOAuth(institution.SourceCoinbase, tok, h.now())
	if err := h.credentials.Save(r.Context(), cred); err != nil {
		h.logger.Error("failed to save coinbase credential", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to save credentials")
		return
	}

	h.logger.Info("coinbase connected")
	writeJSON(w, http.StatusOK, ConnectedResponse{Source: institution.SourceCoinbase, Connected: true})
}

// dropSession removes a consumed session so it cannot be replayed.
func (h *ExchangeHandler) dropSession(ctx context.Context, w http.ResponseWriter, id string) {
	if err := h.sessions.Delete(ctx, id); err != nil {
		h.logger.Warn("failed to delete auth session", zap.Error(err))
	}
	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookieName,
		Value:    "",
		Path:     "/api/exchanges/coinbase",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
	})
}

// HandlePoloniexCredentials stores (PUT) or removes (DELETE) the Poloniex API key pair.
func (h *ExchangeHandler) HandlePoloniexCredentials(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		h.savePoloniexCredentials(w, r)
	case http.MethodDelete:
		h.disconnect(w, r, institution.SourcePoloniex)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ExchangeHandler) savePoloniexCredentials(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	cred := credential.NewAPIKey(institution.SourcePoloniex, req.APIKey, req.Secret, h.now())
	if err := cred.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.credentials.Save(r.Context(), cred); err != nil {
		h.logger.Error("failed to save poloniex credential", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to save credentials")
		return
	}

	writeJSON(w, http.StatusOK, ConnectedResponse{Source: institution.SourcePoloniex, Connected: true})
}

// HandleDisconnect removes the stored credential of any exchange.
func (h *ExchangeHandler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	source, ok := sourceFromPath(w, r, h.logger)
	if !ok {
		return
	}
	h.disconnect(w, r, source)
}

func (h *ExchangeHandler) disconnect(w http.ResponseWriter, r *http.Request, source institution.Source) {
	err := h.credentials.Delete(r.Context(), source)
	if err != nil && !errors.Is(err, credential.ErrCredentialNotFound) {
		h.logger.Error("failed to delete credential", zap.String("source", source.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to disconnect")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
