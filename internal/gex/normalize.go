package gex

import "math"

// EstimateParams supply the context needed to derive gamma from implied
// volatility when the feed did not provide it directly.
type EstimateParams struct {
	Spot  float64
	Rate  float64
	Years float64
}

// NormalizeOptions control optional normalization behavior.
type NormalizeOptions struct {
	// Expiration, when set, drops records whose ExpirationDate differs.
	// Leave empty for feeds that are already expiration-filtered server-side.
	Expiration string

	// Estimate, when non-nil, enables gamma estimation from implied
	// volatility for records missing gamma. Supplied gamma is never
	// overridden.
	Estimate *EstimateParams
}

// Normalize validates raw contract records into rows ready for aggregation.
//
// Records are validated independently: a bad record is dropped, never the
// batch. Drops for missing gamma or missing open interest are counted in the
// returned diagnostics; records without a strike or with an unknown contract
// type are discarded silently.
func Normalize(records []ContractRecord, opts NormalizeOptions) ([]NormalizedRow, Diagnostics) {
	diag := Diagnostics{RowsTotal: len(records)}
	rows := make([]NormalizedRow, 0, len(records))

	for _, rec := range records {
		if opts.Expiration != "" && rec.ExpirationDate != "" && rec.ExpirationDate != opts.Expiration {
			continue
		}

		gamma, ok := resolveGamma(rec, opts.Estimate)
		if !ok {
			diag.MissingGamma++
			continue
		}
		if rec.OpenInterest == nil {
			diag.MissingOpenInterest++
			continue
		}
		if rec.Strike == nil || *rec.Strike <= 0 {
			continue
		}
		ctype := ContractType(rec.ContractType)
		if ctype != Call && ctype != Put {
			continue
		}

		rows = append(rows, NormalizedRow{
			Strike:       *rec.Strike,
			ContractType: ctype,
			Gamma:        gamma,
			OpenInterest: *rec.OpenInterest,
		})
	}

	diag.RowsUsed = len(rows)
	return rows, diag
}

// resolveGamma prefers feed-supplied gamma and falls back to Black-Scholes
// estimation from implied volatility when estimation context is available.
func resolveGamma(rec ContractRecord, est *EstimateParams) (float64, bool) {
	if rec.Gamma != nil && !math.IsNaN(*rec.Gamma) {
		return *rec.Gamma, true
	}
	if est == nil || rec.ImpliedVolatility == nil || rec.Strike == nil {
		return 0, false
	}
	g := BlackScholesGamma(est.Spot, *rec.Strike, est.Years, est.Rate, *rec.ImpliedVolatility)
	if math.IsNaN(g) {
		return 0, false
	}
	return g, true
}
