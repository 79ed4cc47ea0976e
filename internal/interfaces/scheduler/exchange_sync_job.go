package scheduler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"balance/internal/domain/exchange"
	"balance/internal/domain/institution"
)

// Syncer syncs one exchange.
type Syncer interface {
	Sync(ctx context.Context, source institution.Source) (*exchange.SyncResult, error)
	ConnectedSources(ctx context.Context) ([]institution.Source, error)
}

// ExchangeSyncJob syncs the accounts and transactions of one exchange.
type ExchangeSyncJob struct {
	source institution.Source
	syncer Syncer
	logger *zap.Logger
}

func NewExchangeSyncJob(source institution.Source, syncer Syncer, logger *zap.Logger) *ExchangeSyncJob {
	return &ExchangeSyncJob{
		source: source,
		syncer: syncer,
		logger: logger.With(zap.String("source", source.String())),
	}
}

// Execute runs the sync. Per-record failures are logged but do not fail the
// job, since retrying would repeat the same upserts.
func (j *ExchangeSyncJob) Execute(ctx context.Context) error {
	j.logger.Info("starting exchange sync")

	result, err := j.syncer.Sync(ctx, j.source)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	fields := []zap.Field{
		zap.Int("accounts_received", result.Accounts.Received),
		zap.Int("accounts_upserted", result.Accounts.Upserted),
		zap.Int("accounts_hidden", result.Accounts.Hidden),
		zap.Int("accounts_deleted", result.Accounts.Deleted),
		zap.Int("transactions_upserted", result.Transactions.Upserted),
		zap.Bool("token_refreshed", result.TokenRefreshed),
	}
	if n := len(result.Accounts.Errors) + len(result.Transactions.Errors); n > 0 {
		j.logger.Warn("exchange sync completed with errors", append(fields, zap.Int("errors", n))...)
		return nil
	}

	j.logger.Info("exchange sync completed", fields...)
	return nil
}

func (j *ExchangeSyncJob) Key() string {
	return j.source.String()
}

func (j *ExchangeSyncJob) Description() string {
	return fmt.Sprintf("Exchange sync for %s", j.source.DisplayName())
}

// ExchangeJobProvider returns one ExchangeSyncJob per connected exchange.
func ExchangeJobProvider(syncer Syncer, logger *zap.Logger) func(context.Context) ([]Job, error) {
	return func(ctx context.Context) ([]Job, error) {
		sources, err := syncer.ConnectedSources(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list connected exchanges: %w", err)
		}

		jobs := make([]Job, 0, len(sources))
		for _, source := range sources {
			jobs = append(jobs, NewExchangeSyncJob(source, syncer, logger))
		}
		return jobs, nil
	}
}
