package gex

import (
	"math"
	"reflect"
	"testing"
)

func TestAggregate_CallAndPutAtSameStrike(t *testing.T) {
	rows := []NormalizedRow{
		{Strike: 470, ContractType: Call, Gamma: 12, OpenInterest: 100},
		{Strike: 470, ContractType: Put, Gamma: 8, OpenInterest: 100},
	}

	profile := Aggregate(rows, 1)

	if len(profile) != 1 {
		t.Fatalf("profile rows = %d, want 1", len(profile))
	}
	row := profile[0]
	if row.Strike != 470 || row.CallGEX != 1200 || row.PutGEX != -800 {
		t.Errorf("unexpected row: %+v", row)
	}
	if row.AbsGEX != 2000 {
		t.Errorf("AbsGEX = %v, want 2000", row.AbsGEX)
	}
	if row.NetGEX != 400 {
		t.Errorf("NetGEX = %v, want 400", row.NetGEX)
	}
}

func TestAggregate_StrikeUnionWithZeroSides(t *testing.T) {
	rows := []NormalizedRow{
		{Strike: 480, ContractType: Call, Gamma: 1, OpenInterest: 10},
		{Strike: 475, ContractType: Put, Gamma: 2, OpenInterest: 5},
		{Strike: 480, ContractType: Call, Gamma: 1, OpenInterest: 5},
	}

	profile := Aggregate(rows, 1)

	if len(profile) != 2 {
		t.Fatalf("profile rows = %d, want 2", len(profile))
	}
	// Sorted ascending by strike.
	if profile[0].Strike != 475 || profile[1].Strike != 480 {
		t.Fatalf("profile not sorted by strike: %+v", profile)
	}
	if profile[0].CallGEX != 0 || profile[0].PutGEX != -10 {
		t.Errorf("put-only strike: %+v", profile[0])
	}
	if profile[1].CallGEX != 15 || profile[1].PutGEX != 0 {
		t.Errorf("call-only strike accumulation: %+v", profile[1])
	}
}

func TestAggregate_Multiplier(t *testing.T) {
	rows := []NormalizedRow{
		{Strike: 100, ContractType: Call, Gamma: 0.05, OpenInterest: 10},
	}

	profile := Aggregate(rows, ContractMultiplier)

	if got := profile[0].CallGEX; math.Abs(got-50) > 1e-9 {
		t.Errorf("CallGEX = %v, want 50", got)
	}
}

func TestAggregate_AbsIdentityAndNonNegativity(t *testing.T) {
	rows := []NormalizedRow{
		{Strike: 100, ContractType: Call, Gamma: 0.1, OpenInterest: 3},
		{Strike: 100, ContractType: Put, Gamma: 0.4, OpenInterest: 7},
		{Strike: 105, ContractType: Put, Gamma: 0.2, OpenInterest: 2},
		{Strike: 110, ContractType: Call, Gamma: 0.3, OpenInterest: 9},
	}

	for _, row := range Aggregate(rows, ContractMultiplier) {
		if row.AbsGEX < 0 {
			t.Errorf("strike %v: AbsGEX negative: %v", row.Strike, row.AbsGEX)
		}
		want := math.Abs(row.CallGEX) + math.Abs(row.PutGEX)
		if math.Abs(row.AbsGEX-want) > 1e-9 {
			t.Errorf("strike %v: AbsGEX = %v, want |call|+|put| = %v", row.Strike, row.AbsGEX, want)
		}
	}
}

func TestAggregate_Idempotent(t *testing.T) {
	rows := []NormalizedRow{
		{Strike: 105, ContractType: Put, Gamma: 0.2, OpenInterest: 2},
		{Strike: 100, ContractType: Call, Gamma: 0.1, OpenInterest: 3},
		{Strike: 100, ContractType: Put, Gamma: 0.4, OpenInterest: 7},
	}

	first := Aggregate(rows, 1)
	second := Aggregate(rows, 1)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated aggregation differs:\n%+v\n%+v", first, second)
	}
}

func TestAggregate_Empty(t *testing.T) {
	if profile := Aggregate(nil, 1); len(profile) != 0 {
		t.Errorf("empty input should yield empty profile, got %+v", profile)
	}
}

func TestTopN_SelectsAndResorts(t *testing.T) {
	profile := []StrikeProfileRow{
		{Strike: 470, AbsGEX: 2000},
		{Strike: 475, AbsGEX: 2500},
		{Strike: 480, AbsGEX: 1800},
		{Strike: 485, AbsGEX: 1700},
	}

	top := TopN(profile, 2)

	if len(top) != 2 {
		t.Fatalf("top size = %d, want 2", len(top))
	}
	// Greatest two by AbsGEX (470, 475), re-sorted ascending by strike.
	if top[0].Strike != 470 || top[1].Strike != 475 {
		t.Errorf("unexpected selection: %+v", top)
	}
	// Input order untouched.
	if profile[0].Strike != 470 || profile[3].Strike != 485 {
		t.Errorf("input profile mutated: %+v", profile)
	}
}

func TestTopN_NLargerThanProfile(t *testing.T) {
	profile := []StrikeProfileRow{
		{Strike: 1, AbsGEX: 10},
		{Strike: 2, AbsGEX: 20},
		{Strike: 3, AbsGEX: 30},
		{Strike: 4, AbsGEX: 40},
	}

	top := TopN(profile, 15)

	if len(top) != 4 {
		t.Errorf("top size = %d, want 4", len(top))
	}
}

func TestTopN_DeterministicTieBreak(t *testing.T) {
	profile := []StrikeProfileRow{
		{Strike: 30, AbsGEX: 100},
		{Strike: 10, AbsGEX: 100},
		{Strike: 20, AbsGEX: 100},
	}

	first := TopN(profile, 2)
	second := TopN(profile, 2)

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("tie-break not deterministic: %+v vs %+v", first, second)
	}
	if first[0].Strike != 10 || first[1].Strike != 20 {
		t.Errorf("ties should resolve to lowest strikes: %+v", first)
	}
}

func TestTopN_Empty(t *testing.T) {
	if top := TopN(nil, 5); len(top) != 0 {
		t.Errorf("empty profile should yield empty top, got %+v", top)
	}
}

func TestExtractLevels(t *testing.T) {
	profile := []StrikeProfileRow{
		{Strike: 470, CallGEX: 1200, PutGEX: -800, AbsGEX: 2000},
		{Strike: 475, CallGEX: 300, PutGEX: -2200, AbsGEX: 2500},
		{Strike: 480, CallGEX: 900, PutGEX: -900, AbsGEX: 1800},
		{Strike: 485, CallGEX: 1500, PutGEX: -200, AbsGEX: 1700},
	}

	lv, ok := ExtractLevels(profile)
	if !ok {
		t.Fatal("expected levels for non-empty profile")
	}
	if lv.CallWall != 485 {
		t.Errorf("CallWall = %v, want 485", lv.CallWall)
	}
	if lv.PutWall != 475 {
		t.Errorf("PutWall = %v, want 475", lv.PutWall)
	}
	if lv.AbsPeakStrike != 475 || lv.AbsPeakValue != 2500 {
		t.Errorf("AbsPeak = %v/%v, want 475/2500", lv.AbsPeakStrike, lv.AbsPeakValue)
	}
}

func TestExtractLevels_Empty(t *testing.T) {
	if _, ok := ExtractLevels(nil); ok {
		t.Error("expected ok=false for empty profile")
	}
}
