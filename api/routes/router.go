package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/certikapp/certik-backend/api/controllers"
	"github.com/certikapp/certik-backend/api/middleware"
	"github.com/certikapp/certik-backend/pkg/config"
	"github.com/certikapp/certik-backend/pkg/logger"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	storageProber controllers.StorageProber,
	ledgerProber controllers.LedgerProber,
	issuanceService controllers.IssuanceService,
	revocationService controllers.RevocationService,
	scanner controllers.OwnershipScanner,
	credentialReader controllers.CredentialReader,
	gatherer prometheus.Gatherer,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Get("/health/live", controllers.HealthLive(cfg))
	r.Get("/health/ready", controllers.HealthReady(cfg, storageProber, ledgerProber))

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/certificates", func(r chi.Router) {
		r.Post("/", controllers.IssueCertificate(issuanceService, logg))
		r.Get("/", controllers.ListCertificates(scanner, logg))
		r.Get("/{tokenID}", controllers.GetCertificate(credentialReader, logg))
		r.Post("/{tokenID}/revoke", controllers.RevokeCertificate(revocationService, logg))
	})

	return r
}
