package issuance

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"

	"github.com/certikapp/certik-backend/internal/certificate"
	pkgerrors "github.com/certikapp/certik-backend/pkg/errors"
	"github.com/certikapp/certik-backend/pkg/ledger"
	"github.com/certikapp/certik-backend/pkg/logger"
	"github.com/certikapp/certik-backend/pkg/metrics"
	"github.com/certikapp/certik-backend/pkg/pinata"
)

const opIssue = "issue"

// ContentStore pins content and produces referenceable URIs.
type ContentStore interface {
	PinFile(ctx context.Context, file pinata.FileUpload, meta pinata.PinMeta) (*pinata.PinRecord, error)
	PinJSON(ctx context.Context, content any, meta pinata.PinMeta) (*pinata.PinRecord, error)
	URI(cid string) string
}

// Minter submits mint transactions and waits for their confirmation. The two
// calls are split so a transaction reference can be reported before inclusion.
type Minter interface {
	SubmitMint(ctx context.Context, recipient common.Address, metadataURI string) (*ledger.PendingTx, error)
	WaitMint(ctx context.Context, pending *ledger.PendingTx) (*ledger.MintReceipt, error)
}

// Result is the terminal outcome of a successful issuance. A nil TokenID with
// Ambiguous set means the mint confirmed but the assigned identifier could not
// be recovered from the transaction logs.
type Result struct {
	TokenID     *uint64 `json:"tokenId,omitempty"`
	TxHash      string  `json:"txHash"`
	ImageCID    string  `json:"imageCid"`
	MetadataCID string  `json:"metadataCid"`
	MetadataURI string  `json:"metadataUri"`
	Ambiguous   bool    `json:"ambiguous,omitempty"`
}

// Service sequences upload, metadata build, and mint for one certificate.
// It holds no mutable state; every call is independent.
type Service struct {
	store    ContentStore
	minter   Minter
	validate *validator.Validate
	logger   *logger.Logger
	metrics  *metrics.PipelineMetrics
}

func NewService(store ContentStore, minter Minter, logg *logger.Logger, m *metrics.PipelineMetrics) *Service {
	return &Service{
		store:    store,
		minter:   minter,
		validate: validator.New(),
		logger:   logg,
		metrics:  m,
	}
}

// Issue runs the full pipeline: validate, pin image, build and pin metadata,
// mint, wait for confirmation. Each transition is reported through onProgress
// (which may be nil). No retries and no rollback: a pinned image is left in
// place on mint failure because identical content re-pins to the same
// identifier on retry.
func (s *Service) Issue(ctx context.Context, input certificate.Input, image certificate.ImageSource, onProgress ProgressFunc) (*Result, error) {
	start := time.Now()
	emit := func(p Progress) {
		if onProgress != nil {
			onProgress(p)
		}
	}

	fail := func(stage Stage, err error) (*Result, error) {
		s.metrics.IncFailure(opIssue)
		s.metrics.ObserveDuration(opIssue, time.Since(start))
		if appErr := pkgerrors.As(err); appErr != nil {
			err = appErr.WithDetails(withStage(appErr.Details(), stage))
		}
		emit(Progress{Stage: StageError, Message: err.Error()})
		if s.logger != nil {
			s.logger.Error(s.logger.WithStage(ctx, string(stage)), "issuance failed", err)
		}
		return nil, err
	}

	emit(Progress{Stage: StageIdle})

	// Validation happens before any network call.
	emit(Progress{Stage: StageUploading, Upload: &UploadProgress{Phase: PhasePreparing, Percent: 10}})
	if err := s.validateInputs(input, image); err != nil {
		return fail(StageUploading, err)
	}

	emit(Progress{Stage: StageUploading, Upload: &UploadProgress{Phase: PhaseUploadingImage, Percent: 30}})
	imageRecord, err := s.store.PinFile(ctx, pinata.FileUpload{
		Name:        image.Name,
		ContentType: image.ContentType,
		Content:     image.Content,
	}, pinata.PinMeta{
		Name: pinName("cert_image", input.Name),
		KeyValues: map[string]string{
			"type":      "certificate_image",
			"recipient": input.RecipientAddress,
		},
	})
	if err != nil {
		return fail(StageUploading, err)
	}

	emit(Progress{Stage: StageUploading, Upload: &UploadProgress{Phase: PhaseCreatingMetadata, Percent: 60}})
	metadata := certificate.BuildMetadata(input, imageRecord.CID)

	emit(Progress{Stage: StageUploading, Upload: &UploadProgress{Phase: PhaseUploadingMetadata, Percent: 80}})
	metadataRecord, err := s.store.PinJSON(ctx, metadata, pinata.PinMeta{
		Name: pinName("cert_metadata", input.Name),
		KeyValues: map[string]string{
			"type":      "certificate_metadata",
			"recipient": input.RecipientAddress,
			"imageHash": imageRecord.CID,
		},
	})
	if err != nil {
		return fail(StageUploading, err)
	}
	emit(Progress{Stage: StageUploading, Upload: &UploadProgress{Phase: PhaseUploadComplete, Percent: 100}})

	metadataURI := s.store.URI(metadataRecord.CID)

	emit(Progress{Stage: StageMinting})
	pending, err := s.minter.SubmitMint(ctx, common.HexToAddress(input.RecipientAddress), metadataURI)
	if err != nil {
		return fail(StageMinting, err)
	}

	emit(Progress{Stage: StageConfirming, TxHash: pending.Hash.Hex()})
	receipt, err := s.minter.WaitMint(ctx, pending)
	if err != nil {
		return fail(StageConfirming, err)
	}

	result := &Result{
		TokenID:     receipt.TokenID,
		TxHash:      receipt.TxHash.Hex(),
		ImageCID:    imageRecord.CID,
		MetadataCID: metadataRecord.CID,
		MetadataURI: metadataURI,
		Ambiguous:   receipt.Ambiguous(),
	}
	if result.Ambiguous {
		s.metrics.IncAmbiguousMint()
	}
	s.metrics.IncSuccess(opIssue)
	s.metrics.ObserveDuration(opIssue, time.Since(start))

	emit(Progress{
		Stage:     StageComplete,
		TxHash:    result.TxHash,
		TokenID:   result.TokenID,
		Ambiguous: result.Ambiguous,
	})
	if s.logger != nil {
		logCtx := s.logger.WithOwner(ctx, input.RecipientAddress)
		if result.TokenID != nil {
			logCtx = s.logger.WithTokenID(logCtx, *result.TokenID)
		}
		s.logger.Info(logCtx, "certificate issued")
	}
	return result, nil
}

func (s *Service) validateInputs(input certificate.Input, image certificate.ImageSource) error {
	if err := s.validate.Struct(input); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid credential input")
	}
	if image.Content == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "certificate image is required")
	}
	return nil
}

func pinName(prefix, name string) string {
	return prefix + "_" + strings.Join(strings.Fields(name), "_")
}

// withStage annotates error details with the failing stage without discarding
// what the failing client already attached (storage errors carry the HTTP
// status and server message).
func withStage(existing any, stage Stage) map[string]any {
	details := map[string]any{}
	switch m := existing.(type) {
	case map[string]any:
		for k, v := range m {
			details[k] = v
		}
	case map[string]string:
		for k, v := range m {
			details[k] = v
		}
	default:
		if existing != nil {
			details["cause"] = existing
		}
	}
	details["stage"] = string(stage)
	return details
}
