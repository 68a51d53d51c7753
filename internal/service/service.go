package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dgnsrekt/absgex/internal/cache"
	"github.com/dgnsrekt/absgex/internal/config"
	"github.com/dgnsrekt/absgex/internal/gex"
)

// ChainFeed is the options-chain collaborator. Implementations must return
// a complete record set or fail: a partially paginated chain is an error,
// never a short success.
type ChainFeed interface {
	SnapshotChain(ctx context.Context, underlying, expiration string) ([]gex.ContractRecord, error)
	ReferenceChain(ctx context.Context, underlying, asof string, workers int) ([]gex.ContractRecord, string, error)
	LastTrade(ctx context.Context, underlying string) (float64, error)
}

// DateResolver maps a requested date to an actual trading session.
type DateResolver interface {
	Today() time.Time
	Effective(date time.Time) (time.Time, error)
}

// Archiver persists raw chains; nil disables archiving.
type Archiver interface {
	WriteChain(underlying, date string, records []gex.ContractRecord) error
}

// Request selects one profile computation.
type Request struct {
	Underlying   string
	AsOf         time.Time // zero value means today
	TopN         int       // <= 0 means the configured default
	ForceRefresh bool
}

// Result is the presentation boundary: the full profile, the ranked
// selection, diagnostics, and key levels when the profile is non-empty.
type Result struct {
	Underlying  string                 `json:"underlying"`
	AsOf        string                 `json:"as_of"`
	Expiration  string                 `json:"expiration"`
	Spot        float64                `json:"spot,omitempty"`
	Profile     []gex.StrikeProfileRow `json:"profile"`
	Top         []gex.StrikeProfileRow `json:"top"`
	Diagnostics gex.Diagnostics        `json:"diagnostics"`
	Levels      *gex.Levels            `json:"levels,omitempty"`
}

// chainBundle is the cached unit: one complete fetch for an
// (underlying, date) pair. Aggregation is cheap and re-runs per request.
type chainBundle struct {
	records    []gex.ContractRecord
	expiration string
	spot       float64
}

type Service struct {
	feed     ChainFeed
	resolver DateResolver
	archiver Archiver
	memo     *cache.Memo[*chainBundle]
	cfg      *config.Config
	logger   *zap.Logger
}

func New(feed ChainFeed, resolver DateResolver, archiver Archiver, cfg *config.Config, logger *zap.Logger) *Service {
	return &Service{
		feed:     feed,
		resolver: resolver,
		archiver: archiver,
		memo:     cache.NewMemo[*chainBundle](),
		cfg:      cfg,
		logger:   logger,
	}
}

// Profile runs the pipeline for one request: resolve the session date,
// fetch (or reuse) the chain, normalize, aggregate, rank, extract levels.
// Each call aggregates into its own local accumulators, so concurrent
// requests never share mutable state.
func (s *Service) Profile(ctx context.Context, req Request) (*Result, error) {
	underlying := strings.ToUpper(strings.TrimSpace(req.Underlying))
	if underlying == "" {
		return nil, fmt.Errorf("underlying is required")
	}

	asof := req.AsOf
	if asof.IsZero() {
		asof = s.resolver.Today()
	}
	session, err := s.resolver.Effective(asof)
	if err != nil {
		return nil, fmt.Errorf("resolving trading day: %w", err)
	}
	date := session.Format("2006-01-02")

	nonce := ""
	if req.ForceRefresh {
		nonce = uuid.NewString()
	}
	key := cache.Key(underlying, date, time.Now(), s.cfg.CacheTTL(), nonce)

	bundle, err := s.memo.GetOrCompute(key, func() (*chainBundle, error) {
		return s.fetch(ctx, underlying, date)
	})
	if err != nil {
		return nil, err
	}

	return s.build(underlying, date, session, req.TopN, bundle)
}

// FlushCache drops all cached chains and returns how many were held.
func (s *Service) FlushCache() int {
	return s.memo.Purge()
}

// fetch pulls one complete chain plus, when gamma estimation is enabled,
// the spot price it needs.
func (s *Service) fetch(ctx context.Context, underlying, date string) (*chainBundle, error) {
	bundle := &chainBundle{expiration: date}

	var err error
	if s.cfg.Polygon.ReferenceFanout {
		bundle.records, bundle.expiration, err = s.feed.ReferenceChain(ctx, underlying, date, s.cfg.Polygon.FanoutWorkers)
	} else {
		bundle.records, err = s.feed.SnapshotChain(ctx, underlying, date)
	}
	if err != nil {
		return nil, err
	}

	if s.cfg.Gex.EstimateFromIV {
		bundle.spot, err = s.feed.LastTrade(ctx, underlying)
		if err != nil {
			return nil, err
		}
	}

	if s.archiver != nil {
		if err := s.archiver.WriteChain(underlying, date, bundle.records); err != nil {
			s.logger.Warn("chain archive failed",
				zap.String("underlying", underlying),
				zap.String("date", date),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("chain fetched",
		zap.String("underlying", underlying),
		zap.String("date", date),
		zap.String("expiration", bundle.expiration),
		zap.Int("contracts", len(bundle.records)),
	)
	return bundle, nil
}

// build runs the pure pipeline over a fetched bundle.
func (s *Service) build(underlying, date string, session time.Time, topN int, bundle *chainBundle) (*Result, error) {
	opts := gex.NormalizeOptions{Expiration: bundle.expiration}
	if s.cfg.Gex.EstimateFromIV && bundle.spot > 0 {
		expiry, err := time.Parse("2006-01-02", bundle.expiration)
		if err != nil {
			expiry = session
		}
		opts.Estimate = &gex.EstimateParams{
			Spot:  bundle.spot,
			Rate:  s.cfg.Gex.RiskFreeRate,
			Years: gex.YearsToExpiry(session, expiry),
		}
	}

	rows, diag := gex.Normalize(bundle.records, opts)
	if diag.RowsTotal > 0 && diag.RowsUsed == 0 {
		return nil, &gex.ComputationError{
			Reason: fmt.Sprintf("no usable rows among %d: %d missing gamma, %d missing open interest",
				diag.RowsTotal, diag.MissingGamma, diag.MissingOpenInterest),
		}
	}

	profile := gex.Aggregate(rows, s.cfg.Multiplier())

	if topN <= 0 {
		topN = s.cfg.Gex.TopN
	}

	result := &Result{
		Underlying:  underlying,
		AsOf:        date,
		Expiration:  bundle.expiration,
		Spot:        bundle.spot,
		Profile:     profile,
		Top:         gex.TopN(profile, topN),
		Diagnostics: diag,
	}
	if levels, ok := gex.ExtractLevels(profile); ok {
		result.Levels = &levels
	}
	return result, nil
}
