package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"balance/internal/domain/credential"
	"balance/internal/domain/institution"
)

var (
	syncTracer                  = otel.Tracer("balance/sync")
	syncMeter                   = otel.Meter("balance/sync")
	syncRuns, _                 = syncMeter.Int64Counter("sync.runs", metric.WithDescription("Exchange sync runs by status"))
	syncAccountsUpserted, _     = syncMeter.Int64Counter("sync.accounts.upserted", metric.WithDescription("Accounts created or updated by sync"))
	syncAccountsDeleted, _      = syncMeter.Int64Counter("sync.accounts.deleted", metric.WithDescription("Accounts deleted because the exchange no longer reports them"))
	syncAccountsHidden, _       = syncMeter.Int64Counter("sync.accounts.hidden", metric.WithDescription("Accounts hidden because of a zero balance"))
	syncTransactionsUpserted, _ = syncMeter.Int64Counter("sync.transactions.upserted", metric.WithDescription("Transactions created or updated by sync"))
)

// SyncResult contains the results of a sync of one exchange
type SyncResult struct {
	Source         institution.Source `json:"source"`
	InstitutionID  int64              `json:"institutionId"`
	TokenRefreshed bool               `json:"tokenRefreshed"`
	Accounts       *ReconcileResult   `json:"accounts"`
	Transactions   *ReconcileResult   `json:"transactions"`
	StartedAt      time.Time          `json:"startedAt"`
	FinishedAt     time.Time          `json:"finishedAt"`
}

// SyncService fetches data from exchanges and hands it to the
// ReconciliationService, one writer per source at a time.
type SyncService struct {
	clients     ClientResolver
	credentials credential.Repository
	reconciler  *ReconciliationService
	logger      *zap.Logger
	now         func() time.Time

	mu    sync.Mutex
	locks map[institution.Source]*sync.Mutex
}

func NewSyncService(
	clients ClientResolver,
	credentials credential.Repository,
	reconciler *ReconciliationService,
	logger *zap.Logger,
) *SyncService {
	return &SyncService{
		clients:     clients,
		credentials: credentials,
		reconciler:  reconciler,
		logger:      logger.Named("sync"),
		now:         time.Now,
		locks:       make(map[institution.Source]*sync.Mutex),
	}
}

func (s *SyncService) sourceLock(source institution.Source) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[source]
	if !ok {
		l = &sync.Mutex{}
		s.locks[source] = l
	}
	return l
}

// Sync fetches accounts and transactions of source and reconciles them.
// A fetch error aborts the sync before anything is written.
// ErrSyncInProgress is returned while another sync of the same source runs.
func (s *SyncService) Sync(ctx context.Context, source institution.Source) (result *SyncResult, err error) {
	ctx, span := syncTracer.Start(ctx, "exchange.sync")
	span.SetAttributes(attribute.String("exchange.source", source.String()))
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		syncRuns.Add(ctx, 1, metric.WithAttributes(
			attribute.String("source", source.String()),
			attribute.String("status", status),
		))
		span.End()
	}()

	client, err := s.clients.Client(source)
	if err != nil {
		return nil, err
	}

	lock := s.sourceLock(source)
	if !lock.TryLock() {
		return nil, fmt.Errorf("%w: %s", ErrSyncInProgress, source)
	}
	defer lock.Unlock()

	logger := s.logger.With(zap.String("source", source.String()))
	result = &SyncResult{Source: source, StartedAt: s.now()}

	cred, err := s.credentials.Get(ctx, source)
	if err != nil {
		if errors.Is(err, credential.ErrCredentialNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotConnected, source)
		}
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	refreshed, err := s.refreshIfExpired(ctx, client, cred)
	if err != nil {
		return nil, err
	}
	result.TokenRefreshed = refreshed

	inst, err := s.reconciler.CreateInstitution(ctx, source)
	if err != nil {
		return nil, err
	}
	result.InstitutionID = inst.ID

	// Accounts first: transactions are fetched for exactly the accounts being
	// reconciled, and nonce-signed APIs see their requests in order.
	accounts, err := client.FetchAccounts(ctx, cred)
	if err != nil {
		logger.Error("fetch failed", zap.Error(err))
		return nil, fmt.Errorf("failed to fetch accounts: %w", err)
	}
	transactions, err := client.FetchTransactions(ctx, cred, accounts)
	if err != nil {
		logger.Error("fetch failed", zap.Error(err))
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}

	logger.Info("fetched exchange data",
		zap.Int("accounts", len(accounts)),
		zap.Int("transactions", len(transactions)),
	)

	result.Accounts = s.reconciler.CreateAccounts(ctx, source, accounts, inst)
	result.Transactions = s.reconciler.CreateTransactions(ctx, source, transactions, inst)
	result.FinishedAt = s.now()

	attrs := metric.WithAttributes(attribute.String("source", source.String()))
	syncAccountsUpserted.Add(ctx, int64(result.Accounts.Upserted), attrs)
	syncAccountsDeleted.Add(ctx, int64(result.Accounts.Deleted), attrs)
	syncAccountsHidden.Add(ctx, int64(result.Accounts.Hidden), attrs)
	syncTransactionsUpserted.Add(ctx, int64(result.Transactions.Upserted), attrs)

	return result, nil
}

// refreshIfExpired exchanges the refresh token for a new access token when
// the stored one expired and the client supports refreshing.
func (s *SyncService) refreshIfExpired(ctx context.Context, client Client, cred *credential.Credential) (bool, error) {
	if !cred.Expired(s.now()) {
		return false, nil
	}
	refresher, ok := client.(TokenRefresher)
	if !ok || !cred.CanRefresh() {
		s.logger.Warn("access token expired and cannot be refreshed", zap.String("source", cred.Source.String()))
		return false, nil
	}

	tok, err := refresher.RefreshToken(ctx, cred.RefreshToken)
	if err != nil {
		return false, fmt.Errorf("failed to refresh token: %w", err)
	}
	cred.ApplyToken(tok, s.now())
	if err := s.credentials.Save(ctx, cred); err != nil {
		return false, fmt.Errorf("failed to save refreshed token: %w", err)
	}

	s.logger.Info("refreshed access token", zap.String("source", cred.Source.String()))
	return true, nil
}

// SyncAll syncs every connected source one after another.
// Failures are joined; the results of successful syncs are still returned.
func (s *SyncService) SyncAll(ctx context.Context) ([]*SyncResult, error) {
	sources, err := s.credentials.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list connected sources: %w", err)
	}

	var (
		results []*SyncResult
		errs    []error
	)
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		result, err := s.Sync(ctx, source)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", source, err))
			continue
		}
		results = append(results, result)
	}

	return results, errors.Join(errs...)
}

// ConnectedSources lists the sources that have credentials stored.
func (s *SyncService) ConnectedSources(ctx context.Context) ([]institution.Source, error) {
	return s.credentials.ListSources(ctx)
}
