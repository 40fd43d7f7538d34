package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/dghubble/oauth1"

	"opsync/internal"
	"opsync/internal/config"
	"opsync/internal/storage"
	"opsync/internal/util"
	"opsync/internal/vendorcfg"
)

const vendorPlaceholder = "<<vendor>>"

// Canonical field names an order info mapping may produce.
const (
	fieldSointID             = "soint_id"
	fieldSalesOrderStatus    = "sales_order_status"
	fieldPointID             = "point_id"
	fieldPONumber            = "po_number"
	fieldSONumber            = "so_number"
	fieldPurchaseOrderStatus = "purchase_order_status"
	fieldVendorName          = "vendor_name"
	fieldNeedSerialNumber    = "need_serial_no"
	fieldTranDate            = "tran_date"
)

// ERPClient pulls open sales and purchase orders from the ERP RESTlet and
// stores them locally.
type ERPClient struct {
	client *Client
	db     *storage.DB
	url    string
}

// NewERPClient builds the OAuth1-signed RESTlet caller. NetSuite requires
// HMAC-SHA256 signatures and a realm header.
func NewERPClient(cfg *config.Config, db *storage.DB) (*ERPClient, error) {
	if cfg.ERPRestletURL == "" {
		return nil, fmt.Errorf("erp restlet url is not configured")
	}

	oc := oauth1.NewConfig(cfg.ERPConsumerKey, cfg.ERPConsumerSecret)
	oc.Signer = &oauth1.HMAC256Signer{ConsumerSecret: cfg.ERPConsumerSecret}
	oc.Realm = cfg.ERPRealm
	token := oauth1.NewToken(cfg.ERPTokenID, cfg.ERPTokenSecret)
	signed := oc.Client(oauth1.NoContext, token)
	signed.Timeout = cfg.HTTPTimeout()

	return &ERPClient{
		client: NewClient(signed, cfg.RateLimitRPS, cfg.RetryAttempts),
		db:     db,
		url:    cfg.ERPRestletURL,
	}, nil
}

// SyncResult counts what one ERP pull produced.
type SyncResult struct {
	Fetched        int
	SalesOrders    int
	PurchaseOrders int
	Skipped        int
}

// SyncOrders fetches the vendor's open orders, projects them through the
// template's order info mapping and upserts the result. Records whose
// purchase order status is outside the template's allow-list are skipped.
func (e *ERPClient) SyncOrders(ctx context.Context, tmpl *vendorcfg.Template) (SyncResult, error) {
	var res SyncResult

	vendor := tmpl.VendorName
	if vendor == "" {
		vendor = "all"
	}
	url := strings.ReplaceAll(e.url, vendorPlaceholder, vendor)

	payload, err := e.client.Do(ctx, http.MethodGet, url, map[string]string{"Content-Type": "application/json"}, nil)
	if err != nil {
		return res, fmt.Errorf("erp sync for vendor %q: %w", vendor, err)
	}

	var envelope struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return res, fmt.Errorf("decode erp response: %w", err)
	}
	res.Fetched = len(envelope.Data)

	salesOrderIDs := map[string]int64{}
	seenPOs := map[int64]struct{}{}

	for _, record := range envelope.Data {
		canonical := projectRecord(record, tmpl.OrderInfoMapping)

		status := util.Stringify(canonical[fieldPurchaseOrderStatus])
		if len(tmpl.PurchaseOrderStatus) > 0 && !containsString(tmpl.PurchaseOrderStatus, status) {
			res.Skipped++
			continue
		}

		sointID := util.Stringify(canonical[fieldSointID])
		if sointID == "" {
			res.Skipped++
			continue
		}

		soID, seen := salesOrderIDs[sointID]
		if !seen {
			soID, err = e.db.UpsertSalesOrder(sointID, optString(canonical[fieldSalesOrderStatus]))
			if err != nil {
				return res, fmt.Errorf("store sales order %s: %w", sointID, err)
			}
			salesOrderIDs[sointID] = soID
			res.SalesOrders++
		}

		pointID := toInt64(canonical[fieldPointID])
		if pointID == 0 {
			res.Skipped++
			continue
		}
		if _, dup := seenPOs[pointID]; dup {
			res.Skipped++
			continue
		}
		seenPOs[pointID] = struct{}{}

		row := internal.PurchaseOrderRow{
			SalesOrderID:        soID,
			PointID:             pointID,
			VendorID:            tmpl.VendorID,
			VendorPONumber:      optString(canonical[fieldPONumber]),
			VendorSONumber:      optString(canonical[fieldSONumber]),
			PurchaseOrderStatus: optString(canonical[fieldPurchaseOrderStatus]),
			VendorName:          optString(canonical[fieldVendorName]),
			TranDate:            optString(canonical[fieldTranDate]),
		}
		if raw, ok := canonical[fieldNeedSerialNumber]; ok {
			row.NeedSerialNumber = util.BoolPtr(truthy(raw))
		}
		if row.VendorName == nil && tmpl.VendorName != "" {
			row.VendorName = util.StringPtr(tmpl.VendorName)
		}

		if _, err := e.db.UpsertPurchaseOrder(row); err != nil {
			return res, fmt.Errorf("store purchase order %d: %w", pointID, err)
		}
		res.PurchaseOrders++
	}

	return res, nil
}

// projectRecord renames the ERP record's fields to their canonical names.
// Fields absent from the record stay absent in the output.
func projectRecord(record map[string]any, mapping map[string]string) map[string]any {
	out := make(map[string]any, len(mapping))
	for canonical, erpField := range mapping {
		if v, ok := record[erpField]; ok {
			out[canonical] = v
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, candidate := range list {
		if candidate == s {
			return true
		}
	}
	return false
}

func optString(v any) *string {
	s := util.Stringify(v)
	if s == "" {
		return nil
	}
	return util.StringPtr(s)
}

func toInt64(v any) int64 {
	f, ok := util.ParseNumeric(util.Stringify(v))
	if !ok {
		return 0
	}
	return int64(f)
}

func truthy(v any) bool {
	switch strings.ToLower(util.Stringify(v)) {
	case "t", "true", "yes", "y", "1":
		return true
	}
	return false
}
