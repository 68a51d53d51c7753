package gex

import (
	"math"
	"sort"
)

// Aggregate groups normalized rows by strike and sums exposure per side.
//
// Per-row contribution is gamma * open interest * multiplier; put
// contributions are negated before summing. Every strike seen on either side
// appears exactly once, with zero for an absent side. The result is sorted
// ascending by strike, which makes repeated runs on identical input
// byte-identical.
func Aggregate(rows []NormalizedRow, multiplier float64) []StrikeProfileRow {
	type sides struct {
		call float64
		put  float64
	}

	byStrike := make(map[float64]*sides)
	for _, r := range rows {
		s, ok := byStrike[r.Strike]
		if !ok {
			s = &sides{}
			byStrike[r.Strike] = s
		}
		contrib := r.Gamma * r.OpenInterest * multiplier
		if r.ContractType == Put {
			s.put -= contrib
		} else {
			s.call += contrib
		}
	}

	strikes := make([]float64, 0, len(byStrike))
	for k := range byStrike {
		strikes = append(strikes, k)
	}
	sort.Float64s(strikes)

	profile := make([]StrikeProfileRow, 0, len(strikes))
	for _, k := range strikes {
		s := byStrike[k]
		profile = append(profile, StrikeProfileRow{
			Strike:  k,
			CallGEX: s.call,
			PutGEX:  s.put,
			AbsGEX:  math.Abs(s.call) + math.Abs(s.put),
			NetGEX:  s.call + s.put,
		})
	}
	return profile
}

// TopN returns the n rows with greatest AbsGEX, re-sorted ascending by
// strike for presentation. Ties on AbsGEX break on ascending strike so the
// selection is deterministic. The input profile is never mutated.
func TopN(profile []StrikeProfileRow, n int) []StrikeProfileRow {
	if n <= 0 || len(profile) == 0 {
		return []StrikeProfileRow{}
	}

	ranked := make([]StrikeProfileRow, len(profile))
	copy(ranked, profile)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].AbsGEX != ranked[j].AbsGEX {
			return ranked[i].AbsGEX > ranked[j].AbsGEX
		}
		return ranked[i].Strike < ranked[j].Strike
	})

	if n < len(ranked) {
		ranked = ranked[:n]
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Strike < ranked[j].Strike })
	return ranked
}

// ExtractLevels finds the call wall (max CallGEX), put wall (greatest
// put-side magnitude) and absolute peak of a full profile. ok is false for
// an empty profile, on which the levels are undefined.
func ExtractLevels(profile []StrikeProfileRow) (Levels, bool) {
	if len(profile) == 0 {
		return Levels{}, false
	}

	lv := Levels{
		CallWall:      profile[0].Strike,
		PutWall:       profile[0].Strike,
		AbsPeakStrike: profile[0].Strike,
		AbsPeakValue:  profile[0].AbsGEX,
	}
	maxCall := profile[0].CallGEX
	minPut := profile[0].PutGEX

	for _, row := range profile[1:] {
		if row.CallGEX > maxCall {
			maxCall = row.CallGEX
			lv.CallWall = row.Strike
		}
		if row.PutGEX < minPut {
			minPut = row.PutGEX
			lv.PutWall = row.Strike
		}
		if row.AbsGEX > lv.AbsPeakValue {
			lv.AbsPeakValue = row.AbsGEX
			lv.AbsPeakStrike = row.Strike
		}
	}
	return lv, true
}
