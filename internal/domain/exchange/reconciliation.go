package exchange

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"balance/internal/domain/account"
	"balance/internal/domain/institution"
	"balance/internal/domain/transaction"
)

// ReconcileResult summarizes one reconciliation pass.
type ReconcileResult struct {
	InstitutionID int64              `json:"institutionId"`
	Source        institution.Source `json:"source"`
	Received      int                `json:"received"`
	Upserted      int                `json:"upserted"`
	Hidden        int                `json:"hidden"`
	Unhidden      int                `json:"unhidden"`
	Deleted       int                `json:"deleted"`
	Errors        []string           `json:"errors"`
}

func (r *ReconcileResult) addError(logger *zap.Logger, msg string, err error, fields ...zap.Field) {
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", msg, err))
	logger.Warn(msg, append(fields, zap.Error(err))...)
}

// ReconciliationService merges freshly fetched exchange data into persisted
// state. It is not safe for concurrent passes against the same institution;
// SyncService serializes them.
type ReconciliationService struct {
	institutions institution.Repository
	accounts     *account.Service
	transactions *transaction.Service
	logger       *zap.Logger
}

func NewReconciliationService(
	institutions institution.Repository,
	accounts *account.Service,
	transactions *transaction.Service,
	logger *zap.Logger,
) *ReconciliationService {
	return &ReconciliationService{
		institutions: institutions,
		accounts:     accounts,
		transactions: transactions,
		logger:       logger.Named("reconcile"),
	}
}

// CreateInstitution finds or creates the single institution of an exchange source.
func (s *ReconciliationService) CreateInstitution(ctx context.Context, source institution.Source) (*institution.Institution, error) {
	if !source.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSource, source)
	}
	inst, err := s.institutions.FindOrCreate(ctx, source, "", source.DisplayName())
	if err != nil {
		return nil, fmt.Errorf("failed to find or create institution: %w", err)
	}
	return inst, nil
}

// CreateAccounts upserts accounts and deletes the persisted ones the exchange
// no longer reports, using the strategy of source.
func (s *ReconciliationService) CreateAccounts(ctx context.Context, source institution.Source, accounts []ExchangeAccount, inst *institution.Institution) *ReconcileResult {
	result := &ReconcileResult{
		InstitutionID: inst.ID,
		Source:        source,
		Received:      len(accounts),
		Errors:        []string{},
	}
	logger := s.logger.With(zap.String("source", source.String()), zap.Int64("institution_id", inst.ID))

	stamped := stampAccounts(accounts, source, inst)

	switch source {
	case institution.SourceCoinbase:
		s.saveCoinbaseAccounts(ctx, logger, stamped, inst, result)
	case institution.SourcePoloniex:
		s.savePoloniexAccounts(ctx, logger, stamped, inst, result)
	default:
		result.addError(logger, "unsupported source", ErrUnsupportedSource)
		return result
	}

	logger.Info("accounts reconciled",
		zap.Int("received", result.Received),
		zap.Int("upserted", result.Upserted),
		zap.Int("hidden", result.Hidden),
		zap.Int("unhidden", result.Unhidden),
		zap.Int("deleted", result.Deleted),
		zap.Int("errors", len(result.Errors)),
	)
	return result
}

// CreateTransactions upserts transactions. Nothing is ever deleted here.
func (s *ReconciliationService) CreateTransactions(ctx context.Context, source institution.Source, transactions []ExchangeTransaction, inst *institution.Institution) *ReconcileResult {
	result := &ReconcileResult{
		InstitutionID: inst.ID,
		Source:        source,
		Received:      len(transactions),
		Errors:        []string{},
	}
	logger := s.logger.With(zap.String("source", source.String()), zap.Int64("institution_id", inst.ID))

	for _, t := range stampTransactions(transactions, source, inst) {
		params := transaction.UpsertParams{
			InstitutionID:       t.InstitutionID,
			Source:              t.Source,
			SourceTransactionID: t.SourceTransactionID,
			SourceAccountID:     t.SourceAccountID,
			SourceInstitutionID: t.SourceInstitutionID,
			Name:                t.Name,
			Currency:            t.CurrencyCode,
			Amount:              t.Amount,
			Date:                t.Date,
			CategoryID:          t.CategoryID,
		}
		if _, err := s.transactions.UpsertTransaction(ctx, params); err != nil {
			result.addError(logger, "failed to upsert transaction", err, zap.String("source_transaction_id", t.SourceTransactionID))
			continue
		}
		result.Upserted++
	}

	logger.Info("transactions reconciled",
		zap.Int("received", result.Received),
		zap.Int("upserted", result.Upserted),
		zap.Int("errors", len(result.Errors)),
	)
	return result
}

// saveCoinbaseAccounts replaces the institution's accounts by sourceAccountId diff.
func (s *ReconciliationService) saveCoinbaseAccounts(ctx context.Context, logger *zap.Logger, accounts []ExchangeAccount, inst *institution.Institution, result *ReconcileResult) {
	incoming := make(map[string]struct{}, len(accounts))
	for _, a := range accounts {
		incoming[a.SourceAccountID] = struct{}{}
		if _, err := s.upsertAccount(ctx, a, inst); err != nil {
			result.addError(logger, "failed to upsert account", err, zap.String("source_account_id", a.SourceAccountID))
			continue
		}
		result.Upserted++
	}

	s.deleteMissing(ctx, logger, inst, result, func(acc *account.Account) bool {
		_, ok := incoming[acc.SourceAccountID]
		return !ok
	})
}

// savePoloniexAccounts upserts one account per currency, hides empty
// non-anchor wallets and deletes by currency diff. A persisted account is
// also deleted when another record was upserted for its currency in this
// pass, which collapses duplicates to one record per currency.
func (s *ReconciliationService) savePoloniexAccounts(ctx context.Context, logger *zap.Logger, accounts []ExchangeAccount, inst *institution.Institution, result *ReconcileResult) {
	incomingCurrencies := make(map[string]struct{}, len(accounts))
	upsertedIDs := make(map[int64]struct{}, len(accounts))
	upsertedCurrencies := make(map[string]struct{}, len(accounts))

	for _, a := range accounts {
		incomingCurrencies[a.CurrencyCode] = struct{}{}

		saved, err := s.upsertAccount(ctx, a, inst)
		if err != nil {
			result.addError(logger, "failed to upsert account", err, zap.String("source_account_id", a.SourceAccountID))
			continue
		}
		result.Upserted++
		upsertedIDs[saved.ID] = struct{}{}
		upsertedCurrencies[saved.Currency] = struct{}{}

		if IsAnchorCurrency(a.CurrencyCode) {
			continue
		}
		hidden := a.CurrentBalance.IsZero()
		changed, err := s.accounts.SetHidden(ctx, saved, hidden)
		if err != nil {
			result.addError(logger, "failed to update hidden flag", err, zap.Int64("account_id", saved.ID))
			continue
		}
		if !changed {
			continue
		}
		if hidden {
			result.Hidden++
		} else {
			result.Unhidden++
		}
	}

	s.deleteMissing(ctx, logger, inst, result, func(acc *account.Account) bool {
		if _, ok := incomingCurrencies[acc.Currency]; !ok {
			return true
		}
		if _, ok := upsertedIDs[acc.ID]; ok {
			return false
		}
		_, replaced := upsertedCurrencies[acc.Currency]
		return replaced
	})
}

func (s *ReconciliationService) deleteMissing(ctx context.Context, logger *zap.Logger, inst *institution.Institution, result *ReconcileResult, stale func(*account.Account) bool) {
	saved, err := s.accounts.ListAccountsByInstitutionID(ctx, inst.ID)
	if err != nil {
		result.addError(logger, "failed to list accounts", err)
		return
	}

	for _, acc := range saved {
		if !stale(acc) {
			continue
		}
		if err := s.accounts.DeleteAccount(ctx, acc.ID); err != nil {
			result.addError(logger, "failed to delete account", err, zap.Int64("account_id", acc.ID))
			continue
		}
		result.Deleted++
		logger.Debug("deleted account", zap.Int64("account_id", acc.ID), zap.String("source_account_id", acc.SourceAccountID))
	}
}

func (s *ReconciliationService) upsertAccount(ctx context.Context, a ExchangeAccount, inst *institution.Institution) (*account.Account, error) {
	return s.accounts.UpsertAccount(ctx, account.UpsertParams{
		InstitutionID:       a.InstitutionID,
		Source:              a.Source,
		SourceAccountID:     a.SourceAccountID,
		SourceInstitutionID: inst.SourceInstitutionID,
		AccountType:         account.TypeExchange,
		Name:                a.Name,
		Currency:            a.CurrencyCode,
		CurrentBalance:      a.CurrentBalance,
		AvailableBalance:    a.AvailableBalance,
		AltCurrency:         a.AltCurrencyCode,
		AltCurrentBalance:   a.AltCurrentBalance,
		AltAvailableBalance: a.AltAvailableBalance,
	})
}

func stampAccounts(accounts []ExchangeAccount, source institution.Source, inst *institution.Institution) []ExchangeAccount {
	stamped := make([]ExchangeAccount, len(accounts))
	for i, a := range accounts {
		a.InstitutionID = inst.ID
		a.Source = source
		stamped[i] = a
	}
	return stamped
}

func stampTransactions(transactions []ExchangeTransaction, source institution.Source, inst *institution.Institution) []ExchangeTransaction {
	stamped := make([]ExchangeTransaction, len(transactions))
	for i, t := range transactions {
		t.InstitutionID = inst.ID
		t.SourceInstitutionID = inst.SourceInstitutionID
		if t.Source == "" {
			t.Source = source
		}
		stamped[i] = t
	}
	return stamped
}
