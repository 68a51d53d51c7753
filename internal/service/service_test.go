package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/absgex/internal/config"
	"github.com/dgnsrekt/absgex/internal/gex"
	"github.com/dgnsrekt/absgex/internal/polygon"
)

func f(v float64) *float64 { return &v }

type stubFeed struct {
	records    []gex.ContractRecord
	chainErr   error
	spot       float64
	spotErr    error
	chainCalls int
}

func (s *stubFeed) SnapshotChain(ctx context.Context, underlying, expiration string) ([]gex.ContractRecord, error) {
	s.chainCalls++
	if s.chainErr != nil {
		return nil, s.chainErr
	}
	return s.records, nil
}

func (s *stubFeed) ReferenceChain(ctx context.Context, underlying, asof string, workers int) ([]gex.ContractRecord, string, error) {
	s.chainCalls++
	if s.chainErr != nil {
		return nil, "", s.chainErr
	}
	return s.records, asof, nil
}

func (s *stubFeed) LastTrade(ctx context.Context, underlying string) (float64, error) {
	if s.spotErr != nil {
		return 0, s.spotErr
	}
	return s.spot, nil
}

type stubResolver struct{ day time.Time }

func (s stubResolver) Today() time.Time { return s.day }
func (s stubResolver) Effective(date time.Time) (time.Time, error) {
	return time.Date(date.Year(), date.Month(), date.Day(), 12, 0, 0, 0, time.UTC), nil
}

func testConfig() *config.Config {
	return &config.Config{
		Polygon: config.PolygonConfig{APIKey: "k", FanoutWorkers: 2},
		Gex:     config.GexConfig{TopN: 15, RiskFreeRate: 0.05, EstimateFromIV: false},
		Cache:   config.CacheConfig{TTLSec: 60},
	}
}

func newTestService(feed ChainFeed, cfg *config.Config) *Service {
	logger, _ := zap.NewDevelopment()
	day := time.Date(2025, 11, 14, 10, 0, 0, 0, time.UTC)
	return New(feed, stubResolver{day: day}, nil, cfg, logger)
}

func TestProfile_EndToEnd(t *testing.T) {
	feed := &stubFeed{
		records: []gex.ContractRecord{
			{Strike: f(470), ContractType: "call", Gamma: f(12), OpenInterest: f(100), ExpirationDate: "2025-11-14"},
			{Strike: f(470), ContractType: "put", Gamma: f(8), OpenInterest: f(100), ExpirationDate: "2025-11-14"},
			{Strike: f(475), ContractType: "put", OpenInterest: f(50), ExpirationDate: "2025-11-14"}, // missing gamma
		},
	}
	svc := newTestService(feed, testConfig())

	result, err := svc.Profile(context.Background(), Request{Underlying: "spy"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Underlying != "SPY" {
		t.Errorf("underlying = %s, want SPY (normalized)", result.Underlying)
	}
	if len(result.Profile) != 1 {
		t.Fatalf("profile rows = %d, want 1", len(result.Profile))
	}
	row := result.Profile[0]
	if row.CallGEX != 1200 || row.PutGEX != -800 || row.AbsGEX != 2000 {
		t.Errorf("unexpected aggregation: %+v", row)
	}
	if result.Diagnostics.MissingGamma != 1 {
		t.Errorf("MissingGamma = %d, want 1", result.Diagnostics.MissingGamma)
	}
	if result.Levels == nil || result.Levels.AbsPeakStrike != 470 {
		t.Errorf("unexpected levels: %+v", result.Levels)
	}
}

func TestProfile_TopNClampedToProfileSize(t *testing.T) {
	var records []gex.ContractRecord
	for _, strike := range []float64{470, 475, 480, 485} {
		records = append(records, gex.ContractRecord{
			Strike: f(strike), ContractType: "call", Gamma: f(1), OpenInterest: f(10),
		})
	}
	svc := newTestService(&stubFeed{records: records}, testConfig())

	result, err := svc.Profile(context.Background(), Request{Underlying: "SPY", TopN: 15})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Top) != 4 {
		t.Errorf("top = %d rows, want 4", len(result.Top))
	}
}

func TestProfile_EmptyChainIsNotAnError(t *testing.T) {
	svc := newTestService(&stubFeed{}, testConfig())

	result, err := svc.Profile(context.Background(), Request{Underlying: "SPY"})
	if err != nil {
		t.Fatalf("empty chain must be a valid outcome, got error: %v", err)
	}
	if len(result.Profile) != 0 || len(result.Top) != 0 {
		t.Errorf("expected empty profile and top, got %+v", result)
	}
	if result.Levels != nil {
		t.Errorf("levels must be absent for an empty profile, got %+v", result.Levels)
	}
}

func TestProfile_FeedErrorPropagates(t *testing.T) {
	authErr := &polygon.AuthError{StatusCode: 403, Body: "NOT_AUTHORIZED"}
	svc := newTestService(&stubFeed{chainErr: authErr}, testConfig())

	result, err := svc.Profile(context.Background(), Request{Underlying: "SPY"})
	if result != nil {
		t.Errorf("no result may accompany an error, got %+v", result)
	}
	var got *polygon.AuthError
	if !errors.As(err, &got) {
		t.Fatalf("expected *polygon.AuthError, got %v", err)
	}
}

func TestProfile_AllRowsUnusableIsComputationError(t *testing.T) {
	feed := &stubFeed{
		records: []gex.ContractRecord{
			{Strike: f(470), ContractType: "call", OpenInterest: f(100)},
			{Strike: f(475), ContractType: "put", OpenInterest: f(50)},
		},
	}
	svc := newTestService(feed, testConfig())

	_, err := svc.Profile(context.Background(), Request{Underlying: "SPY"})
	var compErr *gex.ComputationError
	if !errors.As(err, &compErr) {
		t.Fatalf("expected *gex.ComputationError, got %v", err)
	}
}

func TestProfile_CacheHitSkipsFetch(t *testing.T) {
	feed := &stubFeed{
		records: []gex.ContractRecord{
			{Strike: f(470), ContractType: "call", Gamma: f(1), OpenInterest: f(1)},
		},
	}
	svc := newTestService(feed, testConfig())

	for i := 0; i < 3; i++ {
		if _, err := svc.Profile(context.Background(), Request{Underlying: "SPY"}); err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
	}
	if feed.chainCalls != 1 {
		t.Errorf("chain fetched %d times within one TTL bucket, want 1", feed.chainCalls)
	}

	if _, err := svc.Profile(context.Background(), Request{Underlying: "SPY", ForceRefresh: true}); err != nil {
		t.Fatalf("forced refresh failed: %v", err)
	}
	if feed.chainCalls != 2 {
		t.Errorf("forced refresh must refetch, got %d calls", feed.chainCalls)
	}
}

func TestProfile_GammaEstimationUsesSpot(t *testing.T) {
	cfg := testConfig()
	cfg.Gex.EstimateFromIV = true
	feed := &stubFeed{
		spot: 470,
		records: []gex.ContractRecord{
			{Strike: f(470), ContractType: "call", ImpliedVolatility: f(0.22), OpenInterest: f(10), ExpirationDate: "2025-11-14"},
		},
	}
	svc := newTestService(feed, cfg)

	result, err := svc.Profile(context.Background(), Request{Underlying: "SPY"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Diagnostics.RowsUsed != 1 {
		t.Fatalf("estimated row should be usable: %+v", result.Diagnostics)
	}
	if result.Spot != 470 {
		t.Errorf("spot = %v, want 470", result.Spot)
	}
	if len(result.Profile) != 1 || result.Profile[0].CallGEX <= 0 {
		t.Errorf("estimated exposure should be positive: %+v", result.Profile)
	}
}

func TestProfile_SpotErrorPropagatesWhenEstimating(t *testing.T) {
	cfg := testConfig()
	cfg.Gex.EstimateFromIV = true
	feed := &stubFeed{
		spotErr: &polygon.RequestError{StatusCode: 500, Body: "upstream"},
		records: []gex.ContractRecord{
			{Strike: f(470), ContractType: "call", ImpliedVolatility: f(0.22), OpenInterest: f(10)},
		},
	}
	svc := newTestService(feed, cfg)

	_, err := svc.Profile(context.Background(), Request{Underlying: "SPY"})
	var reqErr *polygon.RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected *polygon.RequestError, got %v", err)
	}
}

func TestProfile_EmptyUnderlyingRejected(t *testing.T) {
	svc := newTestService(&stubFeed{}, testConfig())
	if _, err := svc.Profile(context.Background(), Request{Underlying: "  "}); err == nil {
		t.Fatal("expected error for blank underlying")
	}
}
