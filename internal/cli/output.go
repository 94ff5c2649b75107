package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/mesh-intelligence/goldrush/internal/coordinator"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// runReport is the printed form of a run summary.
type runReport struct {
	Instance  int          `json:"instance"`
	RunID     string       `json:"runId"`
	Area      string       `json:"area"`
	Scanned   int          `json:"scanned"`
	Located   int          `json:"located"`
	Finished  int          `json:"finished"`
	Treasures int          `json:"treasures"`
	Cashed    int          `json:"cashed"`
	Pending   int          `json:"pending"`
	Credited  int          `json:"credited"`
	Spent     int          `json:"spent"`
	Balance   int          `json:"balance"`
	Licenses  int          `json:"licenses"`
	Pauses    int          `json:"pauses"`
	Calls     int64        `json:"calls"`
	Errors    int64        `json:"errors"`
	Depths    []depthEntry `json:"depths,omitempty"`
}

type depthEntry struct {
	Depth  int `json:"depth"`
	Digs   int `json:"digs"`
	Found  int `json:"found"`
	Tokens int `json:"tokens"`
	Coins  int `json:"coins"`
}

func newRunReport(s coordinator.Summary) runReport {
	r := runReport{
		Instance:  s.Instance,
		RunID:     s.RunID,
		Area:      s.Area.String(),
		Scanned:   s.Scanned,
		Located:   s.Located,
		Finished:  s.Finished,
		Treasures: s.Cash.Produced,
		Cashed:    s.Cash.Cashed,
		Pending:   s.Cash.Pending,
		Credited:  s.Wallet.Credited,
		Spent:     s.Wallet.Spent,
		Balance:   s.Balance,
		Licenses:  s.Ledger.Issued + s.Ledger.Adopted,
		Pauses:    s.Pauses,
		Calls:     s.Stats.Total,
		Errors:    s.Stats.Errors,
	}
	for _, d := range s.Depths {
		r.Depths = append(r.Depths, depthEntry{Depth: d.Depth, Digs: d.Digs, Found: d.Found, Tokens: d.Tokens, Coins: d.Coins})
	}
	return r
}

func writeRunReports(w io.Writer, jsonMode bool, summaries []coordinator.Summary) error {
	reports := make([]runReport, len(summaries))
	for i, s := range summaries {
		reports[i] = newRunReport(s)
	}
	if jsonMode {
		return writeJSON(w, reports)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INSTANCE\tAREA\tSCANNED\tLOCATED\tTREASURES\tCASHED\tBALANCE\tLICENSES\tCALLS\tERRORS")
	for _, r := range reports {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
			r.Instance, r.Area, r.Scanned, r.Located, r.Treasures, r.Cashed, r.Balance, r.Licenses, r.Calls, r.Errors)
	}
	return tw.Flush()
}
