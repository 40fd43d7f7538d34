package storage

import (
	"path/filepath"
	"testing"

	"opsync/internal"
	"opsync/internal/util"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "opsync.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestUpsertSalesOrderUpdatesStatus(t *testing.T) {
	db := openTestDB(t)

	id1, err := db.UpsertSalesOrder("4821", util.StringPtr("Pending Fulfillment"))
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	id2, err := db.UpsertSalesOrder("4821", util.StringPtr("Billed"))
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected stable row id, got %d then %d", id1, id2)
	}
}

func TestPurchaseOrderRoundTrip(t *testing.T) {
	db := openTestDB(t)

	soID, err := db.UpsertSalesOrder("4821", util.StringPtr("Pending Fulfillment"))
	if err != nil {
		t.Fatalf("sales order: %v", err)
	}

	poID, err := db.UpsertPurchaseOrder(internal.PurchaseOrderRow{
		SalesOrderID:        soID,
		PointID:             9911,
		VendorID:            7,
		VendorPONumber:      util.StringPtr("PO-100"),
		VendorSONumber:      util.StringPtr("SO-7007"),
		PurchaseOrderStatus: util.StringPtr("Pending Receipt"),
		NeedSerialNumber:    util.BoolPtr(true),
	})
	if err != nil {
		t.Fatalf("purchase order: %v", err)
	}

	// Conflict on point_id keeps the same row.
	again, err := db.UpsertPurchaseOrder(internal.PurchaseOrderRow{
		SalesOrderID:        soID,
		PointID:             9911,
		VendorID:            7,
		VendorPONumber:      util.StringPtr("PO-100"),
		VendorSONumber:      util.StringPtr("SO-7007"),
		PurchaseOrderStatus: util.StringPtr("Partially Received"),
	})
	if err != nil {
		t.Fatalf("purchase order upsert: %v", err)
	}
	if again != poID {
		t.Fatalf("expected stable po id, got %d then %d", poID, again)
	}

	open, err := db.ListOpenPurchaseOrders(7, []string{"Pending Receipt", "Partially Received"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected one open purchase order, got %d", len(open))
	}
	if got := *open[0].PurchaseOrderStatus; got != "Partially Received" {
		t.Fatalf("expected updated status, got %q", got)
	}

	closedOnly, err := db.ListOpenPurchaseOrders(7, []string{"Fully Received"})
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if len(closedOnly) != 0 {
		t.Fatalf("status filter leaked %d rows", len(closedOnly))
	}

	found, err := db.FindPurchaseOrderBySONumber(7, "SO-7007")
	if err != nil {
		t.Fatalf("find by so number: %v", err)
	}
	if found == nil || found.ID != poID {
		t.Fatalf("lookup by so number failed: %+v", found)
	}

	missing, err := db.FindPurchaseOrderBySONumber(7, "SO-none")
	if err != nil {
		t.Fatalf("missing lookup: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown so number, got %+v", missing)
	}
}

func TestUpsertInvoiceReplacesItems(t *testing.T) {
	db := openTestDB(t)

	soID, err := db.UpsertSalesOrder("5000", nil)
	if err != nil {
		t.Fatalf("sales order: %v", err)
	}
	poID, err := db.UpsertPurchaseOrder(internal.PurchaseOrderRow{
		SalesOrderID: soID,
		PointID:      5001,
		VendorID:     3,
	})
	if err != nil {
		t.Fatalf("purchase order: %v", err)
	}

	invID, err := db.UpsertInvoice(internal.InvoiceRow{
		PurchaseOrderID: poID,
		InvoiceNumber:   "INV-1",
		InvoiceStatus:   util.StringPtr(internal.StatusPartial),
		Total:           util.FloatPtr(10.5),
	}, []internal.InvoiceItemRow{
		{ItemNo: util.StringPtr("SKU-1"), Quantity: util.FloatPtr(1)},
		{ItemNo: util.StringPtr("SKU-2"), Quantity: util.FloatPtr(2)},
	})
	if err != nil {
		t.Fatalf("first invoice: %v", err)
	}

	again, err := db.UpsertInvoice(internal.InvoiceRow{
		PurchaseOrderID: poID,
		InvoiceNumber:   "INV-1",
		InvoiceStatus:   util.StringPtr(internal.StatusCompleted),
		Total:           util.FloatPtr(10.5),
	}, []internal.InvoiceItemRow{
		{ItemNo: util.StringPtr("SKU-1"), Quantity: util.FloatPtr(3)},
	})
	if err != nil {
		t.Fatalf("second invoice: %v", err)
	}
	if again != invID {
		t.Fatalf("expected stable invoice id, got %d then %d", invID, again)
	}

	known, err := db.InvoiceNumbers(poID)
	if err != nil {
		t.Fatalf("invoice numbers: %v", err)
	}
	if len(known) != 1 {
		t.Fatalf("expected one invoice number, got %v", known)
	}
	if _, ok := known["INV-1"]; !ok {
		t.Fatalf("INV-1 missing from %v", known)
	}

	rows, err := db.ExportRows(3)
	if err != nil {
		t.Fatalf("export rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected items replaced, got %d export rows", len(rows))
	}
	if got := *rows[0].Quantity; got != 3 {
		t.Fatalf("expected replaced quantity 3, got %v", got)
	}
	if got := *rows[0].InvoiceStatus; got != internal.StatusCompleted {
		t.Fatalf("expected updated invoice status, got %q", got)
	}
}

func TestMarkSalesOrderInvoiced(t *testing.T) {
	db := openTestDB(t)

	soID, err := db.UpsertSalesOrder("6000", nil)
	if err != nil {
		t.Fatalf("sales order: %v", err)
	}
	if err := db.MarkSalesOrderInvoiced(soID); err != nil {
		t.Fatalf("mark invoiced: %v", err)
	}

	var invoiced bool
	if err := db.conn.QueryRow(`SELECT invoiced FROM sales_orders WHERE id = ?`, soID).Scan(&invoiced); err != nil {
		t.Fatalf("read flag: %v", err)
	}
	if !invoiced {
		t.Fatal("invoiced flag not set")
	}
}

func TestMetadataAndRuns(t *testing.T) {
	db := openTestDB(t)

	if err := db.SetMetadata("last_erp_sync", "2026-08-30T10:00:00Z"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := db.SetMetadata("last_erp_sync", "2026-08-30T11:00:00Z"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	got, err := db.GetMetadata("last_erp_sync")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "2026-08-30T11:00:00Z" {
		t.Fatalf("unexpected value %q", got)
	}

	empty, err := db.GetMetadata("never_set")
	if err != nil {
		t.Fatalf("missing key: %v", err)
	}
	if empty != "" {
		t.Fatalf("expected empty value for missing key, got %q", empty)
	}

	if err := db.RecordRun("a1b2", 3, "dispatch", `{"stored":2}`, `{"ms":120}`); err != nil {
		t.Fatalf("record run: %v", err)
	}
}
