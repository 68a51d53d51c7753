package polygon

import "github.com/dgnsrekt/absgex/internal/gex"

// chainPage is one page of the options chain snapshot endpoint.
type chainPage struct {
	Results []snapshotResult `json:"results"`
	NextURL string           `json:"next_url"`
}

// snapshotResult is one contract snapshot. The schema varies by plan, so
// everything beyond the contract details is optional.
type snapshotResult struct {
	Details           contractDetails `json:"details"`
	Greeks            contractGreeks  `json:"greeks"`
	OpenInterest      *float64        `json:"open_interest"`
	ImpliedVolatility *float64        `json:"implied_volatility"`
}

type contractDetails struct {
	Ticker         string   `json:"ticker"`
	StrikePrice    *float64 `json:"strike_price"`
	ContractType   string   `json:"contract_type"`
	ExpirationDate string   `json:"expiration_date"`
}

type contractGreeks struct {
	Gamma *float64 `json:"gamma"`
}

// contractSnapshot is the single-contract snapshot envelope.
type contractSnapshot struct {
	Results snapshotResult `json:"results"`
}

// referencePage is one page of the reference contracts listing.
type referencePage struct {
	Results []referenceContract `json:"results"`
	NextURL string              `json:"next_url"`
}

type referenceContract struct {
	Ticker         string   `json:"ticker"`
	StrikePrice    *float64 `json:"strike_price"`
	ContractType   string   `json:"contract_type"`
	ExpirationDate string   `json:"expiration_date"`
}

// lastTradeResponse is the /v2/last/trade envelope.
type lastTradeResponse struct {
	Last struct {
		Price float64 `json:"price"`
	} `json:"last"`
}

func (s snapshotResult) toRecord() gex.ContractRecord {
	return gex.ContractRecord{
		Strike:            s.Details.StrikePrice,
		ContractType:      s.Details.ContractType,
		OpenInterest:      s.OpenInterest,
		Gamma:             s.Greeks.Gamma,
		ImpliedVolatility: s.ImpliedVolatility,
		ExpirationDate:    s.Details.ExpirationDate,
	}
}
