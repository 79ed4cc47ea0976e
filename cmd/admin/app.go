package main

import (
	"context"

	"go.uber.org/zap"

	"balance/internal/domain/account"
	"balance/internal/domain/exchange"
	"balance/internal/domain/transaction"
	"balance/internal/infrastructure/crypto"
	"balance/internal/infrastructure/exchangeapi"
	"balance/internal/infrastructure/exchangeapi/coinbase"
	"balance/internal/infrastructure/exchangeapi/poloniex"
	"balance/internal/infrastructure/postgres"
	"balance/internal/shared/config"
	"balance/internal/shared/logger"
)

// app holds what the commands share. Close must be called when done.
type app struct {
	cfg          *config.Config
	logger       *zap.Logger
	db           *postgres.DB
	institutions *postgres.InstitutionRepository
	accounts     *account.Service
	sync         *exchange.SyncService
}

func newApp(ctx context.Context, verbose bool) (*app, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	zl := logger.New(verbose || cfg.Debug)

	db, err := postgres.New(ctx, cfg.Database.ConnectionString(), postgres.Pool{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		db.Close()
		return nil, err
	}

	institutionRepo := postgres.NewInstitutionRepository(db)
	accountService := account.NewService(postgres.NewAccountRepository(db))
	transactionService := transaction.NewService(postgres.NewTransactionRepository(db))

	httpClient := exchangeapi.NewHTTPClient()
	registry := exchangeapi.NewRegistry(
		coinbase.NewClient(coinbase.Config{
			ClientID:    cfg.Coinbase.ClientID,
			RedirectURI: cfg.Coinbase.RedirectURI,
			TokenServer: cfg.Coinbase.TokenServer(),
			APIBaseURL:  cfg.Coinbase.APIBaseURL,
		}, httpClient, zl),
		poloniex.NewClient(cfg.Poloniex.TradingAPIURL, httpClient, zl),
	)

	reconciler := exchange.NewReconciliationService(institutionRepo, accountService, transactionService, zl)

	return &app{
		cfg:          cfg,
		logger:       zl,
		db:           db,
		institutions: institutionRepo,
		accounts:     accountService,
		sync:         exchange.NewSyncService(registry, postgres.NewCredentialRepository(db, encryptor), reconciler, zl),
	}, nil
}

func (a *app) Close() {
	a.logger.Sync()
	a.db.Close()
}
