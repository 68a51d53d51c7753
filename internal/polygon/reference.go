package polygon

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"go.uber.org/zap"

	"github.com/dgnsrekt/absgex/internal/gex"
)

// ReferenceChain builds the chain the slow way: list reference contracts for
// the nearest expiration on or after asof, then fetch a snapshot per
// contract through a bounded worker pool. Some plans only expose greeks and
// open interest on the per-contract endpoint, which is what makes the
// O(contracts) fan-out worth it.
//
// A contract whose snapshot comes back without greeks degrades to a record
// with nil fields (the normalizer counts it). An authorization failure or a
// cancelled context aborts the whole batch: no partial chain is returned.
func (c *Client) ReferenceChain(ctx context.Context, underlying, asof string, workers int) ([]gex.ContractRecord, string, error) {
	expiration, err := c.NearestExpiration(ctx, underlying, asof)
	if err != nil {
		return nil, "", err
	}

	contracts, err := c.listContracts(ctx, underlying, expiration, asof)
	if err != nil {
		return nil, "", err
	}
	if len(contracts) == 0 {
		return nil, expiration, nil
	}

	if workers < 1 {
		workers = 1
	}

	jobs := make(chan referenceContract, len(contracts))
	results := make(chan fanoutResult, len(contracts))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.snapshotWorker(ctx, underlying, jobs, results)
		}()
	}

	for _, contract := range contracts {
		jobs <- contract
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	records := make([]gex.ContractRecord, 0, len(contracts))
	var fatal error
	for r := range results {
		if r.err != nil {
			if fatal == nil {
				fatal = r.err
			}
			continue
		}
		records = append(records, r.record)
	}
	if fatal != nil {
		return nil, "", fmt.Errorf("snapshot fan-out %s/%s: %w", underlying, expiration, fatal)
	}

	c.logger.Debug("reference chain fetched",
		zap.String("underlying", underlying),
		zap.String("expiration", expiration),
		zap.Int("contracts", len(records)),
	)
	return records, expiration, nil
}

type fanoutResult struct {
	record gex.ContractRecord
	err    error
}

func (c *Client) snapshotWorker(ctx context.Context, underlying string, jobs <-chan referenceContract, results chan<- fanoutResult) {
	for contract := range jobs {
		select {
		case <-ctx.Done():
			results <- fanoutResult{err: ctx.Err()}
			return
		default:
		}

		record, err := c.contractSnapshot(ctx, underlying, contract)
		results <- fanoutResult{record: record, err: err}
	}
}

// contractSnapshot fetches greeks and open interest for one contract. A
// RequestError here means the plan does not cover this contract's snapshot;
// the record keeps its reference fields and the missing ones stay nil.
func (c *Client) contractSnapshot(ctx context.Context, underlying string, contract referenceContract) (gex.ContractRecord, error) {
	base := gex.ContractRecord{
		Strike:         contract.StrikePrice,
		ContractType:   contract.ContractType,
		ExpirationDate: contract.ExpirationDate,
	}

	u := fmt.Sprintf("%s/v3/snapshot/options/%s/%s",
		c.baseURL, url.PathEscape(underlying), url.PathEscape(contract.Ticker))

	var snap contractSnapshot
	if err := c.getJSON(ctx, u, &snap); err != nil {
		var reqErr *RequestError
		if errors.As(err, &reqErr) {
			c.logger.Debug("contract snapshot unavailable",
				zap.String("contract", contract.Ticker),
				zap.Int("status", reqErr.StatusCode),
			)
			return base, nil
		}
		return gex.ContractRecord{}, err
	}

	base.OpenInterest = snap.Results.OpenInterest
	base.Gamma = snap.Results.Greeks.Gamma
	base.ImpliedVolatility = snap.Results.ImpliedVolatility
	return base, nil
}

// listContracts pages through the reference contracts for one expiration.
func (c *Client) listContracts(ctx context.Context, underlying, expiration, asof string) ([]referenceContract, error) {
	pageURL := fmt.Sprintf("%s/v3/reference/options/contracts?underlying_ticker=%s&expiration_date=%s&limit=1000&sort=strike_price&order=asc&as_of=%s",
		c.baseURL, url.QueryEscape(underlying), url.QueryEscape(expiration), url.QueryEscape(asof))

	var contracts []referenceContract
	for pageURL != "" {
		var page referencePage
		if err := c.getJSON(ctx, pageURL, &page); err != nil {
			return nil, fmt.Errorf("listing contracts %s/%s: %w", underlying, expiration, err)
		}
		for _, contract := range page.Results {
			if contract.Ticker == "" || contract.StrikePrice == nil {
				continue
			}
			if contract.ContractType != string(gex.Call) && contract.ContractType != string(gex.Put) {
				continue
			}
			contracts = append(contracts, contract)
		}
		pageURL = c.absoluteURL(page.NextURL)
	}
	return contracts, nil
}
