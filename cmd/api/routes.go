package main

import (
	"net/http"

	"go.uber.org/zap"

	httphandlers "balance/internal/interfaces/http"
	"balance/internal/shared/config"
	"balance/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", httphandlers.HandleHealth)

	// Exchanges
	mux.HandleFunc("/api/exchanges", deps.ExchangeHandler.HandleListExchanges)
	mux.HandleFunc("/api/exchanges/coinbase/auth", deps.ExchangeHandler.HandleCoinbaseAuth)
	mux.HandleFunc("/api/exchanges/coinbase/callback", deps.ExchangeHandler.HandleCoinbaseCallback)
	mux.HandleFunc("/api/exchanges/poloniex/credentials", deps.ExchangeHandler.HandlePoloniexCredentials)
	mux.HandleFunc("/api/exchanges/{source}/credentials", deps.ExchangeHandler.HandleDisconnect)

	// Sync
	mux.HandleFunc("/api/exchanges/{source}/sync", deps.SyncHandler.HandleSync)
	mux.HandleFunc("/api/operations/{id}", deps.SyncHandler.HandleOperation)

	// Synced data
	mux.HandleFunc("/api/exchanges/{source}/accounts", deps.AccountHandler.HandleListAccounts)
	mux.HandleFunc("/api/exchanges/{source}/transactions", deps.TransactionHandler.HandleListTransactions)

	handler := middleware.Logging(logger)(middleware.CORS(cfg.Server.AllowedHosts)(mux))
	return middleware.Telemetry(cfg.Telemetry.ServiceName)(middleware.Tracing(handler))
}
