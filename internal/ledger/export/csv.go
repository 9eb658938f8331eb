// Package export renders ledgers as CSV and XLSX downloads.
package export

import (
	"encoding/csv"
	"io"

	"github.com/royaltyops/royaltyops/internal/ledger"
	"github.com/royaltyops/royaltyops/internal/shared"
)

// Header is the column order shared by every export format.
var Header = []string{"Period", "Payee", "Agreement", "Opening Balance", "Royalties", "Expenses", "Payments", "Closing Balance"}

// WriteLedgerCSV writes entries in the given order, amounts with two decimals.
func WriteLedgerCSV(w io.Writer, entries []ledger.Entry) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(Header); err != nil {
		return err
	}
	for _, e := range entries {
		if err := writer.Write([]string{
			e.PeriodLabel,
			e.PayeeName,
			e.AgreementName,
			shared.FormatMoney(e.OpeningBalance),
			shared.FormatMoney(e.RoyaltiesAmount),
			shared.FormatMoney(e.ExpensesAmount),
			shared.FormatMoney(e.PaymentsAmount),
			shared.FormatMoney(e.ClosingBalance),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
