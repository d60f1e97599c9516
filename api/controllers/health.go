package controllers

import (
	"context"
	"net/http"

	"github.com/certikapp/certik-backend/api/responses"
	"github.com/certikapp/certik-backend/pkg/config"
)

// StorageProber reports whether the content store accepts our credentials.
type StorageProber interface {
	TestAuthentication(ctx context.Context) bool
}

// LedgerProber reports whether the ledger answers a cheap read.
type LedgerProber interface {
	TotalSupply(ctx context.Context) (uint64, error)
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Certik-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady probes the content store and the ledger. The probe results are
// advisory: the response stays 200 so callers can gate their own ready state
// on the flags without treating a dependency outage as an API outage.
func HealthReady(cfg *config.Config, store StorageProber, chain LedgerProber) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Certik-Env", cfg.App.Env)

		storageOK := false
		if store != nil {
			storageOK = store.TestAuthentication(r.Context())
		}

		ledgerOK := false
		if chain != nil {
			_, err := chain.TotalSupply(r.Context())
			ledgerOK = err == nil
		}

		responses.WriteSuccess(w, map[string]any{
			"status":  "ready",
			"storage": storageOK,
			"ledger":  ledgerOK,
		})
	}
}
