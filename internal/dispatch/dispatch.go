// Package dispatch stores transformed invoice records against their purchase
// orders and renders the reconciliation export.
package dispatch

import (
	"encoding/json"
	"fmt"

	"opsync/internal"
	"opsync/internal/storage"
	"opsync/internal/util"
)

type Dispatcher struct {
	db       *storage.DB
	vendorID int
}

func NewDispatcher(db *storage.DB, vendorID int) *Dispatcher {
	return &Dispatcher{db: db, vendorID: vendorID}
}

// Result counts one dispatch pass.
type Result struct {
	Stored    int
	Skipped   int
	Unmatched int
}

// Store writes each canonical record to the invoice tables. Records whose
// invoice number is already stored for the purchase order are skipped, so a
// re-run of the same batch is a no-op. Records with no invoice number at all
// (vendor error records) are stored under an empty number so the order is not
// re-fetched every cycle. Records that cannot be matched to a purchase order
// are reported as warnings, not failures.
func (d *Dispatcher) Store(records []map[string]any) (Result, []error) {
	var res Result
	var warns []error

	// Known invoice numbers per purchase order, loaded lazily.
	known := map[int64]map[string]struct{}{}

	for _, record := range records {
		invoiceNumber := util.Stringify(record["invoice_number"])

		po, err := d.resolvePurchaseOrder(record)
		if err != nil {
			return res, append(warns, err)
		}
		if po == nil {
			res.Unmatched++
			warns = append(warns, fmt.Errorf("invoice %q: no purchase order for so_number %q / po_number %q",
				invoiceNumber, util.Stringify(record["so_number"]), util.Stringify(record["po_number"])))
			continue
		}

		existing, ok := known[po.ID]
		if !ok {
			existing, err = d.db.InvoiceNumbers(po.ID)
			if err != nil {
				return res, append(warns, err)
			}
			known[po.ID] = existing
		}
		if _, dup := existing[invoiceNumber]; dup {
			res.Skipped++
			continue
		}

		row, items := recordToRows(record, po.ID, invoiceNumber)
		if _, err := d.db.UpsertInvoice(row, items); err != nil {
			return res, append(warns, fmt.Errorf("store invoice %s: %w", invoiceNumber, err))
		}
		existing[invoiceNumber] = struct{}{}
		res.Stored++

		if util.Stringify(record["invoice_status"]) == internal.StatusCompleted {
			if err := d.db.MarkSalesOrderInvoiced(po.SalesOrderID); err != nil {
				warns = append(warns, fmt.Errorf("mark sales order invoiced: %w", err))
			}
		}
	}

	return res, warns
}

// resolvePurchaseOrder matches a record to its purchase order by the vendor's
// sales order number, falling back to the purchase order number.
func (d *Dispatcher) resolvePurchaseOrder(record map[string]any) (*internal.PurchaseOrderRow, error) {
	if soNumber := util.Stringify(record["so_number"]); soNumber != "" {
		po, err := d.db.FindPurchaseOrderBySONumber(d.vendorID, soNumber)
		if err != nil || po != nil {
			return po, err
		}
	}
	if poNumber := util.Stringify(record["po_number"]); poNumber != "" {
		return d.db.FindPurchaseOrderByPONumber(d.vendorID, poNumber)
	}
	return nil, nil
}

func recordToRows(record map[string]any, poID int64, invoiceNumber string) (internal.InvoiceRow, []internal.InvoiceItemRow) {
	memo := strField(record, "memo")
	if memo == nil {
		memo = strField(record, "vendor_message")
	}

	row := internal.InvoiceRow{
		PurchaseOrderID:  poID,
		InvoiceNumber:    invoiceNumber,
		Memo:             memo,
		ShipDate:         strField(record, "ship_date"),
		TranID:           strField(record, "tran_id"),
		TranDate:         strField(record, "tran_date"),
		InvoiceStatus:    strField(record, "invoice_status"),
		InvoiceStatusRaw: strField(record, "invoice_status_raw"),
		RawTotal:         strField(record, "raw_total"),
		ShipCost:         floatField(record, "ship_cost"),
		Total:            floatField(record, "total"),
		ExtraItemPrice:   floatField(record, "extra_item_price"),
		TaxAmount:        floatField(record, "tax_amount"),
		DeliveriesJSON:   jsonField(record, "deliveries"),
	}

	var items []internal.InvoiceItemRow
	for _, item := range itemMaps(record["items"]) {
		items = append(items, internal.InvoiceItemRow{
			ItemNo:              strField(item, "itemno"),
			MfgItemNo:           strField(item, "mfg_itemno"),
			Rate:                floatField(item, "rate"),
			Amount:              floatField(item, "amount"),
			Quantity:            floatField(item, "quantity"),
			RawQuantity:         strField(item, "raw_quantity"),
			QuantityOrdered:     floatField(item, "quantity_ordered"),
			QuantityBackordered: floatField(item, "quantity_backordered"),
			ItemDetailsJSON:     jsonField(item, "item_details"),
		})
	}

	return row, items
}

func itemMaps(v any) []map[string]any {
	switch items := v.(type) {
	case []any:
		var out []map[string]any
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	case map[string]any:
		return []map[string]any{items}
	}
	return nil
}

func strField(record map[string]any, key string) *string {
	v, ok := record[key]
	if !ok {
		return nil
	}
	s := util.Stringify(v)
	if s == "" {
		return nil
	}
	return util.StringPtr(s)
}

func floatField(record map[string]any, key string) *float64 {
	v, ok := record[key]
	if !ok {
		return nil
	}
	f, ok := util.ParseNumeric(util.Stringify(v))
	if !ok {
		return nil
	}
	return util.FloatPtr(f)
}

func jsonField(record map[string]any, key string) *string {
	v, ok := record[key]
	if !ok || v == nil {
		return nil
	}
	blob, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return util.StringPtr(string(blob))
}
