package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/taller-erp/taller-erp/internal/caja"
)

// PettyCashVerifier reports petty-cash accounts out of balance.
type PettyCashVerifier interface {
	VerifyPettyCash(ctx context.Context, branchID int64) ([]caja.Drift, error)
}

// VerifyOptions defines the flags of the verify command.
type VerifyOptions struct {
	BranchID   int64
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// VerifySummary is the JSON output of verify.
type VerifySummary struct {
	OK     bool         `json:"ok"`
	Drifts []DriftEntry `json:"drifts"`
}

// DriftEntry is one drifted account.
type DriftEntry struct {
	BranchID    int64  `json:"branch_id"`
	PettyCashID int64  `json:"petty_cash_id"`
	Stored      string `json:"stored"`
	Computed    string `json:"computed"`
	Delta       string `json:"delta"`
}

// VerifyCommand recomputes petty-cash balances and prints any drift. It exits
// with 10 when drift is found.
func VerifyCommand(ctx context.Context, verifier PettyCashVerifier, opts VerifyOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.BranchID < 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "verify: branch must not be negative")
		return 1
	}
	drifts, err := verifier.VerifyPettyCash(ctx, opts.BranchID)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "verify: %v\n", err)
		return 1
	}
	summary := VerifySummary{OK: len(drifts) == 0, Drifts: make([]DriftEntry, 0, len(drifts))}
	for _, d := range drifts {
		summary.Drifts = append(summary.Drifts, DriftEntry{
			BranchID:    d.BranchID,
			PettyCashID: d.PettyCashID,
			Stored:      caja.Money(d.Stored),
			Computed:    caja.Money(d.Computed),
			Delta:       caja.Money(d.Delta()),
		})
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "verify: encode json: %v\n", err)
			return 1
		}
	} else {
		renderVerifyHuman(opts.Stdout, opts.BranchID, summary)
	}
	if !summary.OK {
		return 10
	}
	return 0
}

func renderVerifyHuman(out io.Writer, branchID int64, summary VerifySummary) {
	scope := "all branches"
	if branchID > 0 {
		scope = fmt.Sprintf("branch %d", branchID)
	}
	if summary.OK {
		_, _ = fmt.Fprintf(out, "Petty cash balances match their movements (%s).\n", scope)
		return
	}
	_, _ = fmt.Fprintf(out, "%d petty cash account(s) drifted (%s):\n", len(summary.Drifts), scope)
	for _, d := range summary.Drifts {
		_, _ = fmt.Fprintf(out, "  branch %d  petty cash %d  stored %s  computed %s  delta %s\n",
			d.BranchID, d.PettyCashID, d.Stored, d.Computed, d.Delta)
	}
}
