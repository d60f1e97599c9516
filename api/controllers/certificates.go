package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/certikapp/certik-backend/api/responses"
	"github.com/certikapp/certik-backend/api/validators"
	"github.com/certikapp/certik-backend/internal/certificate"
	"github.com/certikapp/certik-backend/internal/issuance"
	"github.com/certikapp/certik-backend/internal/reconcile"
	"github.com/certikapp/certik-backend/internal/revocation"
	pkgerrors "github.com/certikapp/certik-backend/pkg/errors"
	"github.com/certikapp/certik-backend/pkg/ledger"
	"github.com/certikapp/certik-backend/pkg/logger"
)

const maxUploadBytes = 32 << 20

type IssuanceService interface {
	Issue(ctx context.Context, input certificate.Input, image certificate.ImageSource, onProgress issuance.ProgressFunc) (*issuance.Result, error)
}

type RevocationService interface {
	Revoke(ctx context.Context, tokenID uint64) (*revocation.Result, error)
}

type OwnershipScanner interface {
	Scan(ctx context.Context, owner common.Address) (*reconcile.Report, error)
	ScanWithMetadata(ctx context.Context, owner common.Address) (*reconcile.Report, error)
}

type CredentialReader interface {
	Info(ctx context.Context, tokenID uint64) (*ledger.Credential, error)
}

// IssueCertificate handles the multipart issuance request: a JSON `payload`
// field with the credential input plus an `image` file.
func IssueCertificate(svc IssuanceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConfiguration, "issuance is not configured on this deployment"))
			return
		}

		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart request"))
			return
		}

		payload := r.FormValue("payload")
		if payload == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payload field is required"))
			return
		}

		var input certificate.Input
		if err := validators.DecodeJSONString(payload, &input); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		file, header, err := r.FormFile("image")
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "image file is required"))
			return
		}
		defer file.Close()

		image := certificate.ImageSource{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Content:     file,
		}

		// Progress snapshots are logged server-side; the response carries
		// only the terminal result.
		onProgress := func(p issuance.Progress) {
			if logg == nil {
				return
			}
			logCtx := logg.WithStage(ctx, string(p.Stage))
			if p.Upload != nil {
				logCtx = logg.WithField(logCtx, "phase", string(p.Upload.Phase))
			}
			if p.TxHash != "" {
				logCtx = logg.WithField(logCtx, "tx_hash", p.TxHash)
			}
			logg.Info(logCtx, "issuance.progress")
		}

		result, err := svc.Issue(ctx, input, image, onProgress)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// ListCertificates scans the ledger for credentials held by ?owner=, with
// optional metadata hydration via ?metadata=true.
func ListCertificates(scanner OwnershipScanner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		raw := r.URL.Query().Get("owner")
		if raw == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "owner query parameter is required"))
			return
		}
		if !common.IsHexAddress(raw) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "owner must be a valid ledger address"))
			return
		}
		owner := common.HexToAddress(raw)

		var (
			report *reconcile.Report
			err    error
		)
		if r.URL.Query().Get("metadata") == "true" {
			report, err = scanner.ScanWithMetadata(ctx, owner)
		} else {
			report, err = scanner.Scan(ctx, owner)
		}
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, report)
	}
}

// GetCertificate reads one credential's on-ledger record.
func GetCertificate(reader CredentialReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		tokenID, err := parseTokenID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		cred, err := reader.Info(ctx, tokenID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, cred)
	}
}

// RevokeCertificate marks a credential invalid. Irreversible; the ledger
// rejects a second revocation of the same token.
func RevokeCertificate(svc RevocationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConfiguration, "revocation is not configured on this deployment"))
			return
		}

		tokenID, err := parseTokenID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Revoke(ctx, tokenID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

func parseTokenID(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "tokenID")
	tokenID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || tokenID < 1 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "token id must be a positive integer")
	}
	return tokenID, nil
}
