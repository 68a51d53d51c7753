package notify

import (
	"fmt"
	"strings"
	"time"
)

// RunResult summarizes one scheduled snapshot run.
type RunResult struct {
	Date     string
	Archived []string // underlyings archived successfully
	Errors   []string // one entry per failed underlying
	Duration time.Duration
}

// Failed reports whether any underlying failed during the run.
func (r *RunResult) Failed() bool {
	return len(r.Errors) > 0
}

// FormatSuccessMessage creates a success notification body.
func FormatSuccessMessage(result *RunResult) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Archived: %s\n", strings.Join(result.Archived, ", ")))
	sb.WriteString(fmt.Sprintf("Duration: %s", result.Duration.Round(time.Second)))

	return sb.String()
}

// FormatFailureMessage creates a failure notification body.
func FormatFailureMessage(result *RunResult) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Archived: %d\n", len(result.Archived)))
	sb.WriteString(fmt.Sprintf("Failed: %d\n", len(result.Errors)))
	sb.WriteString(fmt.Sprintf("Duration: %s", result.Duration.Round(time.Second)))

	// Include first 3 error messages if available
	if len(result.Errors) > 0 {
		sb.WriteString("\n\nErrors:\n")
		limit := 3
		if len(result.Errors) < limit {
			limit = len(result.Errors)
		}
		for i := 0; i < limit; i++ {
			sb.WriteString(fmt.Sprintf("- %s\n", result.Errors[i]))
		}
		if len(result.Errors) > 3 {
			sb.WriteString(fmt.Sprintf("... and %d more errors", len(result.Errors)-3))
		}
	}

	return sb.String()
}
