package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/absgex/internal/export"
	"github.com/dgnsrekt/absgex/internal/gex"
	"github.com/dgnsrekt/absgex/internal/service"
)

const chartWidth = 40

func profileCmd() *cobra.Command {
	var (
		date       string
		top        int
		refresh    bool
		exportMode bool
	)

	cmd := &cobra.Command{
		Use:   "profile UNDERLYING",
		Short: "Compute the 0DTE AbsGEX profile for an underlying",
		Long: `Compute the 0DTE absolute gamma exposure profile for an underlying.

Fetches the option chain expiring today (or on the requested date),
aggregates gamma exposure per strike, and prints the top strikes ranked
by absolute exposure together with the call wall, put wall, and peak.

Examples:
  # Today's profile for SPY
  absgex profile SPY

  # A specific session, top 10 strikes
  absgex profile SPY --date 2025-11-14 --top 10

  # Charting-platform snippet instead of the table
  absgex profile SPY --export`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := service.Request{
				Underlying:   args[0],
				TopN:         top,
				ForceRefresh: refresh,
			}
			if date != "" {
				parsed, err := time.Parse("2006-01-02", date)
				if err != nil {
					return fmt.Errorf("invalid date %q (expected YYYY-MM-DD)", date)
				}
				req.AsOf = parsed
			}

			svc := buildService()
			result, err := svc.Profile(cmd.Context(), req)
			if err != nil {
				return err
			}

			if exportMode {
				var levels gex.Levels
				if result.Levels != nil {
					levels = *result.Levels
				}
				fmt.Print(export.Snippet(result.Underlying, result.AsOf, levels, result.Top))
				return nil
			}

			renderResult(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "session date YYYY-MM-DD (default today)")
	cmd.Flags().IntVar(&top, "top", 0, "number of strikes to rank (default from config)")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the chain cache")
	cmd.Flags().BoolVar(&exportMode, "export", false, "print a charting-platform snippet instead of the table")

	return cmd
}

func renderResult(result *service.Result) {
	fmt.Printf("%s  0DTE AbsGEX  session %s  expiration %s\n",
		result.Underlying, result.AsOf, result.Expiration)
	if result.Spot > 0 {
		fmt.Printf("spot %.2f\n", result.Spot)
	}
	fmt.Println()

	if len(result.Top) == 0 {
		fmt.Println("no contracts with usable gamma and open interest")
		printDiagnostics(result.Diagnostics)
		return
	}

	renderTable(result.Top)
	fmt.Println()
	renderChart(result.Top)
	fmt.Println()

	if result.Levels != nil {
		fmt.Printf("call wall  %s\n", formatStrike(result.Levels.CallWall))
		fmt.Printf("put wall   %s\n", formatStrike(result.Levels.PutWall))
		fmt.Printf("abs peak   %s  (%.0f)\n", formatStrike(result.Levels.AbsPeakStrike), result.Levels.AbsPeakValue)
		fmt.Println()
	}

	printDiagnostics(result.Diagnostics)
}

func renderTable(rows []gex.StrikeProfileRow) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "STRIKE\tCALL GEX\tPUT GEX\tABS GEX\tNET GEX\t")
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%.0f\t%.0f\t%.0f\t%.0f\t\n",
			formatStrike(row.Strike), row.CallGEX, row.PutGEX, row.AbsGEX, row.NetGEX)
	}
	w.Flush()
}

// renderChart prints one bar per strike, scaled to the largest AbsGEX.
func renderChart(rows []gex.StrikeProfileRow) {
	var max float64
	for _, row := range rows {
		if row.AbsGEX > max {
			max = row.AbsGEX
		}
	}
	if max <= 0 {
		return
	}

	for _, row := range rows {
		n := int(row.AbsGEX / max * chartWidth)
		if n < 1 && row.AbsGEX > 0 {
			n = 1
		}
		fmt.Printf("%8s  %s\n", formatStrike(row.Strike), strings.Repeat("█", n))
	}
}

func printDiagnostics(d gex.Diagnostics) {
	fmt.Printf("contracts %d  used %d  missing gamma %d  missing OI %d\n",
		d.RowsTotal, d.RowsUsed, d.MissingGamma, d.MissingOpenInterest)
}

func formatStrike(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}
