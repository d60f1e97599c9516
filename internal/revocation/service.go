package revocation

import (
	"context"
	"time"

	pkgerrors "github.com/certikapp/certik-backend/pkg/errors"
	"github.com/certikapp/certik-backend/pkg/ledger"
	"github.com/certikapp/certik-backend/pkg/logger"
	"github.com/certikapp/certik-backend/pkg/metrics"
)

const opRevoke = "revoke"

// Revoker marks a credential invalid on the ledger.
type Revoker interface {
	Revoke(ctx context.Context, tokenID uint64) (*ledger.Receipt, error)
}

// Result is the confirmed outcome of a revocation.
type Result struct {
	TokenID uint64 `json:"tokenId"`
	TxHash  string `json:"txHash"`
}

// Service forwards revocations to the ledger. Whether a credential is already
// revoked is the ledger's authority; the service performs no client-side check
// and surfaces the ledger's rejection as-is.
type Service struct {
	revoker Revoker
	logger  *logger.Logger
	metrics *metrics.PipelineMetrics
}

func NewService(revoker Revoker, logg *logger.Logger, m *metrics.PipelineMetrics) *Service {
	return &Service{revoker: revoker, logger: logg, metrics: m}
}

// Revoke is destructive and irreversible; callers confirm before invoking.
func (s *Service) Revoke(ctx context.Context, tokenID uint64) (*Result, error) {
	start := time.Now()

	if tokenID < 1 {
		s.metrics.IncFailure(opRevoke)
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "token id must be positive")
	}

	receipt, err := s.revoker.Revoke(ctx, tokenID)
	s.metrics.ObserveDuration(opRevoke, time.Since(start))
	if err != nil {
		s.metrics.IncFailure(opRevoke)
		if s.logger != nil {
			s.logger.Error(s.logger.WithTokenID(ctx, tokenID), "revocation failed", err)
		}
		return nil, err
	}

	s.metrics.IncSuccess(opRevoke)
	if s.logger != nil {
		s.logger.Info(s.logger.WithTokenID(ctx, tokenID), "certificate revoked")
	}
	return &Result{TokenID: tokenID, TxHash: receipt.TxHash.Hex()}, nil
}
