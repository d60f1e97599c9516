package reconcile

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/certikapp/certik-backend/internal/certificate"
	"github.com/certikapp/certik-backend/pkg/ledger"
	"github.com/certikapp/certik-backend/pkg/logger"
	"github.com/certikapp/certik-backend/pkg/metrics"
)

const (
	opScan = "scan"

	defaultHydrationLimit = 8
)

// Ledger is the read surface the scanner needs.
type Ledger interface {
	TotalSupply(ctx context.Context) (uint64, error)
	OwnerOf(ctx context.Context, tokenID uint64) (common.Address, error)
	Info(ctx context.Context, tokenID uint64) (*ledger.Credential, error)
}

// MetadataFetcher resolves a content reference to its pinned document.
type MetadataFetcher interface {
	FetchJSON(ctx context.Context, uri string, dest any) error
}

// Item is one owned credential, optionally hydrated with its metadata.
// Metadata is nil when the fetch failed or was not requested.
type Item struct {
	Credential *ledger.Credential    `json:"credential"`
	Metadata   *certificate.Metadata `json:"metadata,omitempty"`
}

// Stats are aggregate figures over one scanned set. They are recomputed from
// scratch on every scan, never incrementally maintained. OnChain counts every
// scanned credential regardless of validity; Valid counts those the contract
// still reports valid.
type Stats struct {
	Total           int     `json:"total"`
	OnChain         int     `json:"onChain"`
	Valid           int     `json:"valid"`
	Revoked         int     `json:"revoked"`
	VerifiedPercent float64 `json:"verifiedPercent"`
}

// Report is the outcome of one ownership scan.
type Report struct {
	Items []Item `json:"items"`
	Stats Stats  `json:"stats"`
}

// Scanner walks the ledger's full token space to find credentials held by an
// owner. The ledger has no owner-indexed query, so this is a linear scan over
// 1..totalSupply; acceptable while supply stays in the low thousands.
type Scanner struct {
	ledger         Ledger
	fetcher        MetadataFetcher
	hydrationLimit int
	logger         *logger.Logger
	metrics        *metrics.PipelineMetrics
}

func NewScanner(l Ledger, fetcher MetadataFetcher, logg *logger.Logger, m *metrics.PipelineMetrics) *Scanner {
	return &Scanner{
		ledger:         l,
		fetcher:        fetcher,
		hydrationLimit: defaultHydrationLimit,
		logger:         logg,
		metrics:        m,
	}
}

// Scan returns the owner's credentials without metadata.
func (s *Scanner) Scan(ctx context.Context, owner common.Address) (*Report, error) {
	return s.scan(ctx, owner, false)
}

// ScanWithMetadata additionally fetches each credential's pinned document.
// A fetch failure degrades that single item to nil metadata rather than
// failing the scan.
func (s *Scanner) ScanWithMetadata(ctx context.Context, owner common.Address) (*Report, error) {
	return s.scan(ctx, owner, true)
}

func (s *Scanner) scan(ctx context.Context, owner common.Address, hydrate bool) (*Report, error) {
	start := time.Now()

	total, err := s.ledger.TotalSupply(ctx)
	if err != nil {
		s.metrics.IncFailure(opScan)
		return nil, err
	}

	// Ownership reads stay sequential: most tokens are filtered out here and
	// never cost a full info read. Token ids are dense and 1-based.
	var items []Item
	for tokenID := uint64(1); tokenID <= total; tokenID++ {
		holder, err := s.ledger.OwnerOf(ctx, tokenID)
		if err != nil {
			if ctx.Err() != nil {
				s.metrics.IncFailure(opScan)
				return nil, err
			}
			// Tokens that no longer resolve are skipped, not fatal.
			s.logSkip(ctx, tokenID, err)
			continue
		}
		if holder != owner {
			continue
		}

		cred, err := s.ledger.Info(ctx, tokenID)
		if err != nil {
			if ctx.Err() != nil {
				s.metrics.IncFailure(opScan)
				return nil, err
			}
			s.logSkip(ctx, tokenID, err)
			continue
		}
		items = append(items, Item{Credential: cred})
	}

	if hydrate && s.fetcher != nil {
		s.hydrate(ctx, items)
	}

	report := &Report{Items: items, Stats: computeStats(items)}

	s.metrics.ObserveScanSize(int(total))
	s.metrics.ObserveDuration(opScan, time.Since(start))
	s.metrics.IncSuccess(opScan)
	if s.logger != nil {
		logCtx := s.logger.WithOwner(ctx, owner.Hex())
		logCtx = s.logger.WithField(logCtx, "matched", len(items))
		s.logger.Info(logCtx, "ownership scan complete")
	}
	return report, nil
}

// hydrate fetches metadata for all items concurrently. Index-slot writes keep
// the result in token-identifier order regardless of completion order.
func (s *Scanner) hydrate(ctx context.Context, items []Item) {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.hydrationLimit)

	for i := range items {
		i := i
		group.Go(func() error {
			var meta certificate.Metadata
			if err := s.fetcher.FetchJSON(groupCtx, items[i].Credential.MetadataURI, &meta); err != nil {
				s.logSkip(groupCtx, items[i].Credential.TokenID, err)
				return nil
			}
			items[i].Metadata = &meta
			return nil
		})
	}
	_ = group.Wait()
}

func computeStats(items []Item) Stats {
	stats := Stats{Total: len(items), OnChain: len(items)}
	for _, item := range items {
		if item.Credential.Revoked {
			stats.Revoked++
		}
		if item.Credential.Valid {
			stats.Valid++
		}
	}
	if stats.Total > 0 {
		stats.VerifiedPercent = float64(stats.Valid) / float64(stats.Total) * 100
	}
	return stats
}

func (s *Scanner) logSkip(ctx context.Context, tokenID uint64, err error) {
	if s.logger == nil {
		return
	}
	logCtx := s.logger.WithTokenID(ctx, tokenID)
	logCtx = s.logger.WithField(logCtx, "reason", err.Error())
	s.logger.Warn(logCtx, "token skipped during scan")
}
