package export

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/royaltyops/royaltyops/internal/ledger"
	"github.com/royaltyops/royaltyops/internal/shared"
)

// SheetName is the worksheet holding the ledger.
const SheetName = "Balances"

// WriteLedgerXLSX writes a workbook with one row per entry and numeric amount cells.
func WriteLedgerXLSX(w io.Writer, entries []ledger.Entry) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("export: rename sheet: %w", err)
	}

	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("export: header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("export: header style: %w", err)
	}
	if err := f.SetRowStyle(SheetName, 1, 1, bold); err != nil {
		return fmt.Errorf("export: header style: %w", err)
	}

	for i, e := range entries {
		row := []any{
			e.PeriodLabel,
			e.PayeeName,
			e.AgreementName,
			money(e.OpeningBalance),
			money(e.RoyaltiesAmount),
			money(e.ExpensesAmount),
			money(e.PaymentsAmount),
			money(e.ClosingBalance),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("export: row %d: %w", i+2, err)
		}
	}

	if len(entries) > 0 {
		amounts, err := f.NewStyle(&excelize.Style{NumFmt: 4})
		if err != nil {
			return fmt.Errorf("export: amount style: %w", err)
		}
		last, err := excelize.CoordinatesToCellName(len(Header), len(entries)+1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(SheetName, "D2", last, amounts); err != nil {
			return fmt.Errorf("export: amount style: %w", err)
		}
	}
	if err := f.SetColWidth(SheetName, "A", "C", 22); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetName, "D", "H", 16); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("export: write workbook: %w", err)
	}
	return nil
}

func money(d decimal.Decimal) float64 {
	v, _ := shared.Round2(d).Float64()
	return v
}
