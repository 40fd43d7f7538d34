package internal

// Canonical order statuses shared by all vendors.
const (
	StatusOpen        = "OPEN"
	StatusBackordered = "BACKORDERED"
	StatusProcessing  = "PROCESSING"
	StatusPartial     = "PARTIAL"
	StatusCompleted   = "COMPLETED"
	StatusCancelled   = "CANCELLED"
	StatusError       = "ERROR"
)

// OrderContext carries per-order metadata attached by the fetch stage that the
// extractor must not treat as vendor response fields.
type OrderContext struct {
	SalesOrderNumber string
	NeedSerialNumber *bool
}

const (
	MetaSalesOrderNumber = "__sales_order_number__"
	MetaNeedSerialNumber = "__need_serial_number__"
)

// Pipeline stage names used for artifacts and run accounting.
const (
	StageFetch    = "fetch"
	StageExtract  = "extract"
	StageDispatch = "dispatch"
)

type SalesOrderRow struct {
	ID               int64
	SointID          string
	SalesOrderStatus *string
	Invoiced         bool
}

type PurchaseOrderRow struct {
	ID                  int64
	SalesOrderID        int64
	PointID             int64
	VendorID            int
	VendorPONumber      *string
	VendorSONumber      *string
	PurchaseOrderStatus *string
	VendorName          *string
	NeedSerialNumber    *bool
	TranDate            *string
}

type InvoiceRow struct {
	ID               int64
	PurchaseOrderID  int64
	InvoiceNumber    string
	Memo             *string
	ShipDate         *string
	TranID           *string
	TranDate         *string
	InvoiceStatus    *string
	InvoiceStatusRaw *string
	ShipCost         *float64
	Total            *float64
	RawTotal         *string
	ExtraItemPrice   *float64
	TaxAmount        *float64
	DeliveriesJSON   *string
}

type InvoiceItemRow struct {
	ID                  int64
	VendorInvoiceID     int64
	ItemNo              *string
	MfgItemNo           *string
	Rate                *float64
	Amount              *float64
	Quantity            *float64
	RawQuantity         *string
	QuantityOrdered     *float64
	QuantityBackordered *float64
	ItemDetailsJSON     *string
}

// InvoiceExportRow is one flattened invoice+item line for the XLSX report.
type InvoiceExportRow struct {
	VendorID            int
	VendorSONumber      *string
	VendorPONumber      *string
	PurchaseOrderStatus *string
	InvoiceNumber       string
	InvoiceStatus       *string
	ShipDate            *string
	ShipCost            *float64
	Total               *float64
	ItemNo              *string
	Rate                *float64
	Quantity            *float64
	Amount              *float64
}
