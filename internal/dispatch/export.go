package dispatch

import (
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"opsync/internal"
)

func ExportRowsToXLSX(rows []internal.InvoiceExportRow, outputPath string) error {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	headers := []string{
		"vendor_id", "so_number", "po_number", "po_status",
		"invoice_number", "invoice_status", "ship_date", "ship_cost", "total",
		"itemno", "rate", "quantity", "amount",
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, row := range rows {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		set(1, row.VendorID)
		set(2, derefString(row.VendorSONumber))
		set(3, derefString(row.VendorPONumber))
		set(4, derefString(row.PurchaseOrderStatus))
		set(5, row.InvoiceNumber)
		set(6, derefString(row.InvoiceStatus))
		set(7, derefString(row.ShipDate))
		set(8, derefFloat(row.ShipCost))
		set(9, derefFloat(row.Total))
		set(10, derefString(row.ItemNo))
		set(11, derefFloat(row.Rate))
		set(12, derefFloat(row.Quantity))
		set(13, derefFloat(row.Amount))
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefFloat(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}
