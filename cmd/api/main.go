package main

import (
	"context"
	"net/http"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/certikapp/certik-backend/api/controllers"
	"github.com/certikapp/certik-backend/api/routes"
	"github.com/certikapp/certik-backend/internal/issuance"
	"github.com/certikapp/certik-backend/internal/reconcile"
	"github.com/certikapp/certik-backend/internal/revocation"
	"github.com/certikapp/certik-backend/pkg/config"
	"github.com/certikapp/certik-backend/pkg/ledger"
	"github.com/certikapp/certik-backend/pkg/logger"
	"github.com/certikapp/certik-backend/pkg/metrics"
	"github.com/certikapp/certik-backend/pkg/pinata"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	registry := prometheus.NewRegistry()
	pipelineMetrics := metrics.NewPipelineMetrics(registry)

	// The content store is optional: without credentials the read-only
	// endpoints still work, and issuance reports a configuration error.
	var store *pinata.Client
	if cfg.Pinata.Configured() {
		store, err = pinata.NewClient(cfg.Pinata, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap content store", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "content store credentials not configured; issuance disabled")
	}

	backend, err := ledger.Dial(context.Background(), cfg.Ledger, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to connect to ledger rpc", err)
		os.Exit(1)
	}
	defer backend.Close()

	contract := common.HexToAddress(cfg.Ledger.ContractAddress)
	var ledgerClient *ledger.Client
	if cfg.Ledger.HasSigningKey() {
		ledgerClient, err = ledger.NewWithKey(backend, contract, cfg.Ledger.PrivateKey, cfg.Ledger.ChainID, logg)
	} else {
		logg.Warn(context.Background(), "ledger signing key not configured; running read-only")
		ledgerClient, err = ledger.NewReadOnly(backend, contract, logg)
	}
	if err != nil {
		logg.Error(context.Background(), "failed to build ledger client", err)
		os.Exit(1)
	}
	ledgerClient.SetConfirmInterval(cfg.Ledger.ConfirmInterval)

	var (
		storageProber     controllers.StorageProber
		issuanceService   controllers.IssuanceService
		revocationService controllers.RevocationService
		fetcher           reconcile.MetadataFetcher
	)
	if store != nil {
		storageProber = store
		fetcher = store
	}
	if store != nil && ledgerClient.CanWrite() {
		issuanceService = issuance.NewService(store, ledgerClient, logg, pipelineMetrics)
	}
	if ledgerClient.CanWrite() {
		revocationService = revocation.NewService(ledgerClient, logg, pipelineMetrics)
	}
	scanner := reconcile.NewScanner(ledgerClient, fetcher, logg, pipelineMetrics)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"contract": contract.Hex(),
		"writable": ledgerClient.CanWrite(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			storageProber,
			ledgerClient,
			issuanceService,
			revocationService,
			scanner,
			ledgerClient,
			registry,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
