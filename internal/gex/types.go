package gex

// ContractType is the option side of a contract.
type ContractType string

const (
	Call ContractType = "call"
	Put  ContractType = "put"
)

// ContractMultiplier is the shares-per-contract scale applied when the
// deployment reports dollar-denominated exposure instead of raw
// gamma-weighted open interest.
const ContractMultiplier = 100.0

// ContractRecord is one raw option contract as delivered by the feed.
// Pointer fields are nil when the feed omitted the value.
type ContractRecord struct {
	Strike            *float64
	ContractType      string
	OpenInterest      *float64
	Gamma             *float64
	ImpliedVolatility *float64
	ExpirationDate    string // YYYY-MM-DD, empty when the feed pre-filtered by expiration
}

// NormalizedRow is a contract that survived validation. All fields are set.
type NormalizedRow struct {
	Strike       float64
	ContractType ContractType
	Gamma        float64
	OpenInterest float64
}

// StrikeProfileRow is the aggregated exposure at one strike.
//
// Put contributions are stored signed-negative, so NetGEX = CallGEX + PutGEX.
// AbsGEX = |CallGEX| + |PutGEX| and is invariant to that sign convention.
type StrikeProfileRow struct {
	Strike  float64 `json:"strike"`
	CallGEX float64 `json:"call_gex"`
	PutGEX  float64 `json:"put_gex"`
	AbsGEX  float64 `json:"abs_gex"`
	NetGEX  float64 `json:"net_gex"`
}

// Diagnostics counts data-quality drops during normalization.
type Diagnostics struct {
	RowsTotal           int `json:"rows_total"`
	RowsUsed            int `json:"rows_used"`
	MissingGamma        int `json:"missing_gamma"`
	MissingOpenInterest int `json:"missing_open_interest"`
}

// Levels are the key strikes extracted from a full profile.
//
// PutWall is the strike with the greatest put-side magnitude (the most
// negative stored PutGEX), not the signed maximum.
type Levels struct {
	CallWall      float64 `json:"call_wall"`
	PutWall       float64 `json:"put_wall"`
	AbsPeakStrike float64 `json:"abs_peak_strike"`
	AbsPeakValue  float64 `json:"abs_peak_value"`
}

// ComputationError reports input the pipeline cannot recover from, as
// opposed to fetch failures or an ordinary empty result.
type ComputationError struct {
	Reason string
}

func (e *ComputationError) Error() string {
	return "gex computation: " + e.Reason
}
