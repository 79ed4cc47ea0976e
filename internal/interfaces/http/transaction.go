package http

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"balance/internal/domain/institution"
	"balance/internal/domain/transaction"
)

type TransactionHandler struct {
	institutions institution.Repository
	transactions *transaction.Service
	logger       *zap.Logger
}

func NewTransactionHandler(institutions institution.Repository, transactions *transaction.Service, logger *zap.Logger) *TransactionHandler {
	return &TransactionHandler{
		institutions: institutions,
		transactions: transactions,
		logger:       logger.Named("transaction_handler"),
	}
}

// HandleListTransactions returns a page of {source} transactions, newest first.
// Query params: limit, offset.
func (h *TransactionHandler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	source, ok := sourceFromPath(w, r, h.logger)
	if !ok {
		return
	}

	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit")
		return
	}
	offset, err := intParam(r, "offset")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid offset")
		return
	}

	inst, found, err := institutionFor(r.Context(), h.institutions, source)
	if err != nil {
		h.logger.Error("failed to get institution", zap.String("source", source.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list transactions")
		return
	}
	if !found {
		writeJSON(w, http.StatusOK, &transaction.Page{
			Transactions: []*transaction.Transaction{},
			Limit:        transaction.DefaultPageSize,
		})
		return
	}

	page, err := h.transactions.ListByInstitutionID(r.Context(), inst.ID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list transactions", zap.Int64("institution_id", inst.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list transactions")
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// intParam returns 0 when the parameter is absent.
func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
