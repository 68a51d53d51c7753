package export

import (
	"strings"
	"testing"

	"github.com/dgnsrekt/absgex/internal/gex"
)

func TestSnippet(t *testing.T) {
	levels := gex.Levels{CallWall: 485, PutWall: 475, AbsPeakStrike: 475, AbsPeakValue: 2500}
	top := []gex.StrikeProfileRow{
		{Strike: 470},
		{Strike: 475},
		{Strike: 480.5},
	}

	got := Snippet("SPY", "2025-11-14", levels, top)

	want := `// 0DTE AbsGEX levels SPY 2025-11-14
call_wall = 485;
put_wall = 475;
abs_peak = 475;
strike_1 = 470;
strike_2 = 475;
strike_3 = 480.5;
`
	if got != want {
		t.Errorf("snippet mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestSnippet_Deterministic(t *testing.T) {
	levels := gex.Levels{CallWall: 1, PutWall: 2, AbsPeakStrike: 3}
	top := []gex.StrikeProfileRow{{Strike: 4}, {Strike: 5}}

	first := Snippet("QQQ", "2025-11-14", levels, top)
	second := Snippet("QQQ", "2025-11-14", levels, top)
	if first != second {
		t.Error("snippet must be deterministic")
	}
}

func TestSnippet_WallsBeforeStrikes(t *testing.T) {
	got := Snippet("SPY", "2025-11-14", gex.Levels{}, []gex.StrikeProfileRow{{Strike: 470}})

	wallIdx := strings.Index(got, "call_wall")
	strikeIdx := strings.Index(got, "strike_1")
	if wallIdx < 0 || strikeIdx < 0 || wallIdx > strikeIdx {
		t.Errorf("walls must precede strikes:\n%s", got)
	}
}
