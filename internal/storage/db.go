package storage

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"opsync/internal"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS sales_orders (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  soint_id TEXT NOT NULL UNIQUE,
  sales_order_status TEXT,
  invoiced INTEGER NOT NULL DEFAULT 0,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS purchase_orders (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  sales_order_id INTEGER NOT NULL,
  point_id INTEGER NOT NULL UNIQUE,
  vendor_id INTEGER NOT NULL,
  vendor_po_number TEXT,
  vendor_so_number TEXT,
  purchase_order_status TEXT,
  vendor_name TEXT,
  need_serial_number INTEGER,
  tran_date TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(sales_order_id) REFERENCES sales_orders(id)
);
CREATE INDEX IF NOT EXISTS idx_purchase_orders_vendor ON purchase_orders(vendor_id);
CREATE INDEX IF NOT EXISTS idx_purchase_orders_so_number ON purchase_orders(vendor_so_number);

CREATE TABLE IF NOT EXISTS vendor_invoices (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  purchase_order_id INTEGER NOT NULL,
  invoice_number TEXT NOT NULL,
  memo TEXT,
  ship_date TEXT,
  tran_id TEXT,
  tran_date TEXT,
  invoice_status TEXT,
  invoice_status_raw TEXT,
  ship_cost REAL,
  total REAL,
  raw_total TEXT,
  extra_item_price REAL,
  tax_amount REAL,
  deliveries_json TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(purchase_order_id, invoice_number),
  FOREIGN KEY(purchase_order_id) REFERENCES purchase_orders(id)
);

CREATE TABLE IF NOT EXISTS vendor_invoice_items (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  vendor_invoice_id INTEGER NOT NULL,
  itemno TEXT,
  mfg_itemno TEXT,
  rate REAL,
  amount REAL,
  quantity REAL,
  raw_quantity TEXT,
  quantity_ordered REAL,
  quantity_backordered REAL,
  item_details_json TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(vendor_invoice_id) REFERENCES vendor_invoices(id)
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  vendorId INTEGER,
  stage TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  timingsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// UpsertSalesOrder writes one ERP sales order keyed by its internal id and
// returns the local row id.
func (d *DB) UpsertSalesOrder(sointID string, status *string) (int64, error) {
	if sointID == "" {
		return 0, errors.New("empty soint_id")
	}
	_, err := d.conn.Exec(`
INSERT INTO sales_orders (soint_id, sales_order_status, updatedAt)
VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(soint_id) DO UPDATE SET
  sales_order_status=excluded.sales_order_status,
  updatedAt=CURRENT_TIMESTAMP
`, sointID, status)
	if err != nil {
		return 0, err
	}

	var id int64
	err = d.conn.QueryRow(`SELECT id FROM sales_orders WHERE soint_id = ?`, sointID).Scan(&id)
	return id, err
}

func (d *DB) UpsertPurchaseOrder(row internal.PurchaseOrderRow) (int64, error) {
	if row.PointID == 0 {
		return 0, errors.New("empty point_id")
	}
	_, err := d.conn.Exec(`
INSERT INTO purchase_orders (
  sales_order_id, point_id, vendor_id, vendor_po_number, vendor_so_number,
  purchase_order_status, vendor_name, need_serial_number, tran_date, updatedAt
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(point_id) DO UPDATE SET
  sales_order_id=excluded.sales_order_id,
  vendor_id=excluded.vendor_id,
  vendor_po_number=excluded.vendor_po_number,
  vendor_so_number=excluded.vendor_so_number,
  purchase_order_status=excluded.purchase_order_status,
  vendor_name=excluded.vendor_name,
  need_serial_number=excluded.need_serial_number,
  tran_date=excluded.tran_date,
  updatedAt=CURRENT_TIMESTAMP
`, row.SalesOrderID, row.PointID, row.VendorID, row.VendorPONumber, row.VendorSONumber,
		row.PurchaseOrderStatus, row.VendorName, row.NeedSerialNumber, row.TranDate)
	if err != nil {
		return 0, err
	}

	var id int64
	err = d.conn.QueryRow(`SELECT id FROM purchase_orders WHERE point_id = ?`, row.PointID).Scan(&id)
	return id, err
}

// MarkSalesOrderInvoiced flags the sales order once a completed invoice has
// been stored for one of its purchase orders.
func (d *DB) MarkSalesOrderInvoiced(salesOrderID int64) error {
	_, err := d.conn.Exec(
		`UPDATE sales_orders SET invoiced = 1, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`,
		salesOrderID,
	)
	return err
}

// ListOpenPurchaseOrders returns the vendor's purchase orders whose status is
// in the given allow-list, oldest first. An empty list means no filter.
func (d *DB) ListOpenPurchaseOrders(vendorID int, statuses []string) ([]internal.PurchaseOrderRow, error) {
	query := `
SELECT id, sales_order_id, point_id, vendor_id, vendor_po_number, vendor_so_number,
       purchase_order_status, vendor_name, need_serial_number, tran_date
FROM purchase_orders
WHERE vendor_id = ?`
	args := []any{vendorID}

	if len(statuses) > 0 {
		query += ` AND purchase_order_status IN (?` + strings.Repeat(",?", len(statuses)-1) + `)`
		for _, s := range statuses {
			args = append(args, s)
		}
	}
	query += ` ORDER BY id`

	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.PurchaseOrderRow
	for rows.Next() {
		var po internal.PurchaseOrderRow
		var needSerial sql.NullBool
		if err := rows.Scan(
			&po.ID, &po.SalesOrderID, &po.PointID, &po.VendorID, &po.VendorPONumber,
			&po.VendorSONumber, &po.PurchaseOrderStatus, &po.VendorName, &needSerial, &po.TranDate,
		); err != nil {
			return nil, err
		}
		if needSerial.Valid {
			v := needSerial.Bool
			po.NeedSerialNumber = &v
		}
		out = append(out, po)
	}
	return out, rows.Err()
}

// FindPurchaseOrderBySONumber resolves the purchase order a mapped invoice
// belongs to via the vendor's sales order number.
func (d *DB) FindPurchaseOrderBySONumber(vendorID int, soNumber string) (*internal.PurchaseOrderRow, error) {
	row := d.conn.QueryRow(`
SELECT id, sales_order_id, point_id, vendor_id, vendor_po_number, vendor_so_number,
       purchase_order_status, vendor_name, need_serial_number, tran_date
FROM purchase_orders
WHERE vendor_id = ? AND vendor_so_number = ?`, vendorID, soNumber)

	var po internal.PurchaseOrderRow
	var needSerial sql.NullBool
	err := row.Scan(
		&po.ID, &po.SalesOrderID, &po.PointID, &po.VendorID, &po.VendorPONumber,
		&po.VendorSONumber, &po.PurchaseOrderStatus, &po.VendorName, &needSerial, &po.TranDate,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if needSerial.Valid {
		v := needSerial.Bool
		po.NeedSerialNumber = &v
	}
	return &po, nil
}

// FindPurchaseOrderByPONumber is the fallback lookup for vendors that echo
// the purchase order number instead of the sales order number.
func (d *DB) FindPurchaseOrderByPONumber(vendorID int, poNumber string) (*internal.PurchaseOrderRow, error) {
	row := d.conn.QueryRow(`
SELECT id, sales_order_id, point_id, vendor_id, vendor_po_number, vendor_so_number,
       purchase_order_status, vendor_name, need_serial_number, tran_date
FROM purchase_orders
WHERE vendor_id = ? AND vendor_po_number = ?`, vendorID, poNumber)

	var po internal.PurchaseOrderRow
	var needSerial sql.NullBool
	err := row.Scan(
		&po.ID, &po.SalesOrderID, &po.PointID, &po.VendorID, &po.VendorPONumber,
		&po.VendorSONumber, &po.PurchaseOrderStatus, &po.VendorName, &needSerial, &po.TranDate,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if needSerial.Valid {
		v := needSerial.Bool
		po.NeedSerialNumber = &v
	}
	return &po, nil
}

// InvoiceNumbers returns the invoice numbers already stored for a purchase
// order. Dispatch uses it to keep loads idempotent.
func (d *DB) InvoiceNumbers(purchaseOrderID int64) (map[string]struct{}, error) {
	rows, err := d.conn.Query(`SELECT invoice_number FROM vendor_invoices WHERE purchase_order_id = ?`, purchaseOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]struct{}{}
	for rows.Next() {
		var inv string
		if err := rows.Scan(&inv); err != nil {
			return nil, err
		}
		out[inv] = struct{}{}
	}
	return out, rows.Err()
}

// UpsertInvoice writes one canonical invoice and replaces its line items. An
// empty invoice number is allowed: error records are stored that way so the
// order is not re-fetched every cycle.
func (d *DB) UpsertInvoice(inv internal.InvoiceRow, items []internal.InvoiceItemRow) (int64, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
INSERT INTO vendor_invoices (
  purchase_order_id, invoice_number, memo, ship_date, tran_id, tran_date,
  invoice_status, invoice_status_raw, ship_cost, total, raw_total,
  extra_item_price, tax_amount, deliveries_json, updatedAt
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(purchase_order_id, invoice_number) DO UPDATE SET
  memo=excluded.memo,
  ship_date=excluded.ship_date,
  tran_id=excluded.tran_id,
  tran_date=excluded.tran_date,
  invoice_status=excluded.invoice_status,
  invoice_status_raw=excluded.invoice_status_raw,
  ship_cost=excluded.ship_cost,
  total=excluded.total,
  raw_total=excluded.raw_total,
  extra_item_price=excluded.extra_item_price,
  tax_amount=excluded.tax_amount,
  deliveries_json=excluded.deliveries_json,
  updatedAt=CURRENT_TIMESTAMP
`, inv.PurchaseOrderID, inv.InvoiceNumber, inv.Memo, inv.ShipDate, inv.TranID, inv.TranDate,
		inv.InvoiceStatus, inv.InvoiceStatusRaw, inv.ShipCost, inv.Total, inv.RawTotal,
		inv.ExtraItemPrice, inv.TaxAmount, inv.DeliveriesJSON); err != nil {
		return 0, err
	}

	var invoiceID int64
	if err := tx.QueryRow(
		`SELECT id FROM vendor_invoices WHERE purchase_order_id = ? AND invoice_number = ?`,
		inv.PurchaseOrderID, inv.InvoiceNumber,
	).Scan(&invoiceID); err != nil {
		return 0, err
	}

	if _, err := tx.Exec(`DELETE FROM vendor_invoice_items WHERE vendor_invoice_id = ?`, invoiceID); err != nil {
		return 0, err
	}

	stmt, err := tx.Prepare(`
INSERT INTO vendor_invoice_items (
  vendor_invoice_id, itemno, mfg_itemno, rate, amount, quantity,
  raw_quantity, quantity_ordered, quantity_backordered, item_details_json
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, item := range items {
		if _, err := stmt.Exec(
			invoiceID, item.ItemNo, item.MfgItemNo, item.Rate, item.Amount, item.Quantity,
			item.RawQuantity, item.QuantityOrdered, item.QuantityBackordered, item.ItemDetailsJSON,
		); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return invoiceID, nil
}

// ExportRows flattens a vendor's invoices and items for the XLSX report.
func (d *DB) ExportRows(vendorID int) ([]internal.InvoiceExportRow, error) {
	rows, err := d.conn.Query(`
SELECT po.vendor_id, po.vendor_so_number, po.vendor_po_number, po.purchase_order_status,
       vi.invoice_number, vi.invoice_status, vi.ship_date, vi.ship_cost, vi.total,
       it.itemno, it.rate, it.quantity, it.amount
FROM vendor_invoices vi
JOIN purchase_orders po ON po.id = vi.purchase_order_id
LEFT JOIN vendor_invoice_items it ON it.vendor_invoice_id = vi.id
WHERE po.vendor_id = ?
ORDER BY vi.id, it.id`, vendorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.InvoiceExportRow
	for rows.Next() {
		var r internal.InvoiceExportRow
		if err := rows.Scan(
			&r.VendorID, &r.VendorSONumber, &r.VendorPONumber, &r.PurchaseOrderStatus,
			&r.InvoiceNumber, &r.InvoiceStatus, &r.ShipDate, &r.ShipCost, &r.Total,
			&r.ItemNo, &r.Rate, &r.Quantity, &r.Amount,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *DB) RecordRun(traceID string, vendorID int, stage, countsJSON, timingsJSON string) error {
	_, err := d.conn.Exec(
		`INSERT INTO runs (traceId, vendorId, stage, countsJson, timingsJson) VALUES (?, ?, ?, ?, ?)`,
		traceID, vendorID, stage, countsJSON, timingsJSON,
	)
	return err
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value, updatedAt) VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updatedAt=CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}
