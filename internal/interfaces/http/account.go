package http

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"balance/internal/domain/account"
	"balance/internal/domain/institution"
)

// AccountHandler serves the accounts synced from an exchange.
type AccountHandler struct {
	institutions institution.Repository
	accounts     *account.Service
	logger       *zap.Logger
}

func NewAccountHandler(institutions institution.Repository, accounts *account.Service, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{
		institutions: institutions,
		accounts:     accounts,
		logger:       logger.Named("account_handler"),
	}
}

// HandleListAccounts returns the accounts of {source}, hidden ones included.
// An exchange that was never synced has no accounts.
func (h *AccountHandler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	source, ok := sourceFromPath(w, r, h.logger)
	if !ok {
		return
	}

	inst, found, err := institutionFor(r.Context(), h.institutions, source)
	if err != nil {
		h.logger.Error("failed to get institution", zap.String("source", source.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list accounts")
		return
	}
	if !found {
		writeJSON(w, http.StatusOK, []*account.Account{})
		return
	}

	accounts, err := h.accounts.ListAccountsByInstitutionID(r.Context(), inst.ID)
	if err != nil {
		h.logger.Error("failed to list accounts", zap.Int64("institution_id", inst.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list accounts")
		return
	}
	if accounts == nil {
		accounts = []*account.Account{}
	}

	writeJSON(w, http.StatusOK, accounts)
}

// institutionFor is shared by handlers that scope their data to one exchange.
func institutionFor(ctx context.Context, repo institution.Repository, source institution.Source) (*institution.Institution, bool, error) {
	inst, err := repo.GetBySource(ctx, source)
	if errors.Is(err, institution.ErrInstitutionNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return inst, true, nil
}
