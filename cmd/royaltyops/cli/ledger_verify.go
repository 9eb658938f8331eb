package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/royaltyops/royaltyops/internal/ledger"
)

// Exit codes returned by VerifyCommand.
const (
	ExitClean    = 0
	ExitError    = 1
	ExitFindings = 10
)

// LedgerVerifier runs the ledger self-check for one owner.
type LedgerVerifier interface {
	Verify(ctx context.Context, owner uuid.UUID) (ledger.VerifyResult, error)
}

// LedgerOpsCLI offers operational helpers for balance ledgers.
type LedgerOpsCLI struct {
	service LedgerVerifier
}

// NewLedgerOpsCLI constructs the helper.
func NewLedgerOpsCLI(service LedgerVerifier) *LedgerOpsCLI {
	return &LedgerOpsCLI{service: service}
}

// VerifyOptions configures the verify command.
type VerifyOptions struct {
	Owner      string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// VerifySummary is the structured output of the verify command.
type VerifySummary struct {
	OwnerID    uuid.UUID          `json:"owner_id"`
	OK         bool               `json:"ok"`
	Violations []ledger.Violation `json:"violations"`
	Drift      []ledger.Drift     `json:"drift"`
}

// VerifyCommand checks the persisted ledger for an owner.
func (c *LedgerOpsCLI) VerifyCommand(ctx context.Context, opts VerifyOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if c == nil || c.service == nil {
		fmt.Fprintln(opts.Stderr, "ledger verify: service not configured")
		return ExitError
	}
	owner, err := uuid.Parse(strings.TrimSpace(opts.Owner))
	if err != nil || owner == uuid.Nil {
		fmt.Fprintf(opts.Stderr, "ledger verify: invalid --owner %q (expected uuid)\n", opts.Owner)
		return ExitError
	}
	result, err := c.service.Verify(ctx, owner)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "ledger verify: %v\n", err)
		return ExitError
	}
	summary := VerifySummary{
		OwnerID:    owner,
		OK:         result.Clean(),
		Violations: result.Violations,
		Drift:      result.Drift,
	}
	if summary.Violations == nil {
		summary.Violations = []ledger.Violation{}
	}
	if summary.Drift == nil {
		summary.Drift = []ledger.Drift{}
	}
	if err := writeVerifyOutput(opts, summary); err != nil {
		fmt.Fprintf(opts.Stderr, "ledger verify: %v\n", err)
		return ExitError
	}
	if !summary.OK {
		return ExitFindings
	}
	return ExitClean
}

func writeVerifyOutput(opts VerifyOptions, summary VerifySummary) error {
	if opts.JSONOutput {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	if summary.OK {
		_, err := fmt.Fprintf(opts.Stdout, "ledger for %s is consistent\n", summary.OwnerID)
		return err
	}
	fmt.Fprintf(opts.Stdout, "ledger for %s: %d violation(s), %d drift finding(s)\n", summary.OwnerID, len(summary.Violations), len(summary.Drift))
	for _, v := range summary.Violations {
		fmt.Fprintf(opts.Stdout, "  %s payee=%s period=%s expected=%s actual=%s\n", v.Kind, v.PayeeID, v.PeriodLabel, v.Expected.StringFixed(2), v.Actual.StringFixed(2))
	}
	for _, d := range summary.Drift {
		fmt.Fprintf(opts.Stdout, "  drift %s payee=%s period=%s field=%s persisted=%s rebuilt=%s\n", d.Kind, d.PayeeID, d.PeriodLabel, d.Field, d.Persisted.StringFixed(2), d.Rebuilt.StringFixed(2))
	}
	return nil
}
