// Package export renders key levels as a snippet of named numeric constants
// for pasting into a charting tool's script editor.
package export

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dgnsrekt/absgex/internal/gex"
)

// Snippet produces the level declarations for one profile: call wall, put
// wall and absolute peak first, then the selected top strikes ascending.
// Output is deterministic for identical input.
func Snippet(underlying, date string, levels gex.Levels, top []gex.StrikeProfileRow) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "// 0DTE AbsGEX levels %s %s\n", underlying, date)
	writeDecl(&sb, "call_wall", levels.CallWall)
	writeDecl(&sb, "put_wall", levels.PutWall)
	writeDecl(&sb, "abs_peak", levels.AbsPeakStrike)
	for i, row := range top {
		writeDecl(&sb, fmt.Sprintf("strike_%d", i+1), row.Strike)
	}

	return sb.String()
}

func writeDecl(sb *strings.Builder, name string, value float64) {
	sb.WriteString(name)
	sb.WriteString(" = ")
	sb.WriteString(strconv.FormatFloat(value, 'f', -1, 64))
	sb.WriteString(";\n")
}
