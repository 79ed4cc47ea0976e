package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"balance/internal/domain/account"
	"balance/internal/domain/exchange"
	"balance/internal/domain/transaction"
	"balance/internal/infrastructure/crypto"
	"balance/internal/infrastructure/exchangeapi"
	"balance/internal/infrastructure/exchangeapi/coinbase"
	"balance/internal/infrastructure/exchangeapi/poloniex"
	"balance/internal/infrastructure/postgres"
	"balance/internal/infrastructure/session"
	httphandlers "balance/internal/interfaces/http"
	"balance/internal/shared/config"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB    *postgres.DB
	Redis *redis.Client

	// Handlers
	ExchangeHandler    *httphandlers.ExchangeHandler
	SyncHandler        *httphandlers.SyncHandler
	AccountHandler     *httphandlers.AccountHandler
	TransactionHandler *httphandlers.TransactionHandler

	// Sync service (for scheduler)
	SyncService *exchange.SyncService
}

// NewDependencies initializes all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	db, err := postgres.New(ctx, cfg.Database.ConnectionString(), postgres.Pool{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("connected to database", zap.String("host", cfg.Database.Host))

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		db.Close()
		return nil, err
	}

	deps := &Dependencies{DB: db}

	var sessions session.Store
	if cfg.Redis.Addr != "" {
		deps.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := deps.Redis.Ping(ctx).Err(); err != nil {
			deps.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		sessions = session.NewRedisStore(deps.Redis)
		logger.Info("auth sessions stored in redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		sessions = session.NewMemoryStore()
		logger.Info("auth sessions stored in memory")
	}

	// Repositories
	institutionRepo := postgres.NewInstitutionRepository(db)
	accountRepo := postgres.NewAccountRepository(db)
	transactionRepo := postgres.NewTransactionRepository(db)
	credentialRepo := postgres.NewCredentialRepository(db, encryptor)

	// Domain services
	accountService := account.NewService(accountRepo)
	transactionService := transaction.NewService(transactionRepo)

	// Exchange clients
	httpClient := exchangeapi.NewHTTPClient()
	coinbaseClient := coinbase.NewClient(coinbase.Config{
		ClientID:    cfg.Coinbase.ClientID,
		RedirectURI: cfg.Coinbase.RedirectURI,
		TokenServer: cfg.Coinbase.TokenServer(),
		APIBaseURL:  cfg.Coinbase.APIBaseURL,
	}, httpClient, logger)
	poloniexClient := poloniex.NewClient(cfg.Poloniex.TradingAPIURL, httpClient, logger)
	registry := exchangeapi.NewRegistry(coinbaseClient, poloniexClient)

	reconciler := exchange.NewReconciliationService(institutionRepo, accountService, transactionService, logger)
	syncService := exchange.NewSyncService(registry, credentialRepo, reconciler, logger)

	deps.ExchangeHandler = httphandlers.NewExchangeHandler(registry, credentialRepo, sessions, coinbaseClient, cfg.Server.SecureCookies, logger)
	deps.SyncHandler = httphandlers.NewSyncHandler(syncService, httphandlers.NewOperations(), logger)
	deps.AccountHandler = httphandlers.NewAccountHandler(institutionRepo, accountService, logger)
	deps.TransactionHandler = httphandlers.NewTransactionHandler(institutionRepo, transactionService, logger)
	deps.SyncService = syncService

	return deps, nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.Redis != nil {
		d.Redis.Close()
	}
	if d.DB != nil {
		d.DB.Close()
	}
}
