package reports

import (
	"fmt"
	"io"
	"time"

	"bitbucket.org/mmdatafocus/rfid_backend/workflow"
	"github.com/xuri/excelize/v2"
)

const (
	summarySheet = "Summary"
	entriesSheet = "Entries"
)

var entryHeadings = []string{"ItemNumber", "ItemDescription", "TagCode", "LotNumber", "ReceivedQty", "OrderedQty", "UserId", "ReceivedAt"}
var lineHeadings = []string{"ItemNumber", "OrderedQty", "ReceivedQty", "RemainingQty"}

// ReceiptLedgerFileName is the download name for an order's export.
func ReceiptLedgerFileName(poNumber string) string {
	return fmt.Sprintf("receipts-%s.xlsx", poNumber)
}

// BuildReceiptLedgerWorkbook renders per-item totals on one sheet and the raw
// ledger on another.
func BuildReceiptLedgerWorkbook(summary *workflow.ReceiptSummary) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(entriesSheet); err != nil {
		return nil, err
	}

	f.SetCellValue(summarySheet, "A1", "PurchaseOrder")
	f.SetCellValue(summarySheet, "B1", summary.PurchaseOrderNumber)
	f.SetCellValue(summarySheet, "A2", "Status")
	f.SetCellValue(summarySheet, "B2", string(summary.Status))
	f.SetCellValue(summarySheet, "A3", "ReceivedAt")
	if summary.ReceivedAt != nil {
		f.SetCellValue(summarySheet, "B3", summary.ReceivedAt.UTC().Format(time.RFC3339))
	}

	writeHeadings(f, summarySheet, 5, lineHeadings)
	for i, l := range summary.Lines {
		row := i + 6
		f.SetCellValue(summarySheet, cell('A', row), l.ItemNumber)
		f.SetCellValue(summarySheet, cell('B', row), l.OrderedQty.InexactFloat64())
		f.SetCellValue(summarySheet, cell('C', row), l.ReceivedQty.InexactFloat64())
		f.SetCellValue(summarySheet, cell('D', row), l.RemainingQty.InexactFloat64())
	}

	writeHeadings(f, entriesSheet, 1, entryHeadings)
	for i, e := range summary.Entries {
		row := i + 2
		f.SetCellValue(entriesSheet, cell('A', row), e.ItemNumber)
		f.SetCellValue(entriesSheet, cell('B', row), e.ItemDescription)
		f.SetCellValue(entriesSheet, cell('C', row), e.TagCode)
		f.SetCellValue(entriesSheet, cell('D', row), e.LotNumber)
		f.SetCellValue(entriesSheet, cell('E', row), e.ReceivedQty.InexactFloat64())
		f.SetCellValue(entriesSheet, cell('F', row), e.OrderedQty.InexactFloat64())
		f.SetCellValue(entriesSheet, cell('G', row), e.UserId)
		f.SetCellValue(entriesSheet, cell('H', row), e.ReceivedAt.UTC().Format(time.RFC3339))
	}
	return f, nil
}

func WriteReceiptLedgerXlsx(w io.Writer, summary *workflow.ReceiptSummary) error {
	f, err := BuildReceiptLedgerWorkbook(summary)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

func writeHeadings(f *excelize.File, sheet string, row int, headings []string) {
	col := 'A'
	for _, h := range headings {
		f.SetCellValue(sheet, cell(col, row), h)
		col++
	}
}

func cell(col rune, row int) string {
	return string(col) + fmt.Sprint(row)
}
