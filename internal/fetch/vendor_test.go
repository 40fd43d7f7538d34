package fetch

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"opsync/internal"
	"opsync/internal/util"
	"opsync/internal/vendorcfg"
)

func testTemplate(t *testing.T, blob string) (*vendorcfg.Template, []vendorcfg.MappingRule) {
	t.Helper()
	tmpl, rules, err := vendorcfg.Parse([]byte(blob))
	if err != nil {
		t.Fatalf("parse template: %v", err)
	}
	return tmpl, rules
}

func testFetcher(tmpl *vendorcfg.Template, rules []vendorcfg.MappingRule, fn roundTripFunc) *VendorFetcher {
	return &VendorFetcher{
		client: NewClient(&http.Client{Transport: fn}, 1000, 1),
		tmpl:   tmpl,
		rules:  rules,
	}
}

func TestFetchOrdersRendersRequestAndAttachesContext(t *testing.T) {
	tmpl, rules := testTemplate(t, `{
		"vendor_id": 7,
		"vendor_type": "json",
		"api_request_template": {
			"url": {"raw": "https://vendor.test/orders?po=<<po_number>>", "method": "GET"},
			"header": [{"key": "Accept", "value": "application/json"}]
		}
	}`)

	var seenURL string
	fetcher := testFetcher(tmpl, rules, func(req *http.Request) (*http.Response, error) {
		seenURL = req.URL.String()
		return respond(http.StatusOK, `{"invoice_number":"INV-1"}`), nil
	})

	res := fetcher.FetchOrders(context.Background(), []internal.PurchaseOrderRow{{
		VendorID:         7,
		VendorPONumber:   util.StringPtr("PO-55"),
		VendorSONumber:   util.StringPtr("SO-900"),
		NeedSerialNumber: util.BoolPtr(true),
	}})

	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings %v", res.Warnings)
	}
	if seenURL != "https://vendor.test/orders?po=PO-55" {
		t.Fatalf("placeholder not rendered, url %q", seenURL)
	}
	if len(res.Bodies) != 1 {
		t.Fatalf("expected one body, got %d", len(res.Bodies))
	}
	body := res.Bodies[0]
	if body[internal.MetaSalesOrderNumber] != "SO-900" {
		t.Fatalf("sales order context missing: %v", body)
	}
	if body[internal.MetaNeedSerialNumber] != true {
		t.Fatalf("serial flag missing: %v", body)
	}
}

func TestFetchOrdersPostsRenderedPayload(t *testing.T) {
	tmpl, rules := testTemplate(t, `{
		"vendor_id": 2,
		"vendor_type": "xml",
		"api_request_template": {
			"url": {"raw": "https://vendor.test/soap", "method": "POST"},
			"header": [{"key": "Content-Type", "value": "text/xml"}]
		},
		"data": {
			"xml_payload": "<GetOrder><PO><<po_number>></PO></GetOrder>",
			"payload_value_to_upper": ["po_number"]
		}
	}`)

	var seenBody string
	fetcher := testFetcher(tmpl, rules, func(req *http.Request) (*http.Response, error) {
		b, _ := io.ReadAll(req.Body)
		seenBody = string(b)
		return respond(http.StatusOK, `<Order><InvoiceNumber>INV-9</InvoiceNumber></Order>`), nil
	})

	res := fetcher.FetchOrders(context.Background(), []internal.PurchaseOrderRow{{
		VendorID:       2,
		VendorPONumber: util.StringPtr("po-77x"),
	}})

	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings %v", res.Warnings)
	}
	if seenBody != "<GetOrder><PO>PO-77X</PO></GetOrder>" {
		t.Fatalf("payload not rendered uppercase, got %q", seenBody)
	}
	if len(res.Bodies) != 1 {
		t.Fatalf("expected one decoded body, got %d", len(res.Bodies))
	}
}

func TestFetchOrdersContinuesPastFailures(t *testing.T) {
	tmpl, rules := testTemplate(t, `{
		"vendor_id": 7,
		"vendor_type": "json",
		"api_request_template": {
			"url": {"raw": "https://vendor.test/orders?po=<<po_number>>", "method": "GET"}
		}
	}`)

	fetcher := testFetcher(tmpl, rules, func(req *http.Request) (*http.Response, error) {
		if strings.Contains(req.URL.RawQuery, "PO-BAD") {
			return respond(http.StatusNotFound, "no such order"), nil
		}
		return respond(http.StatusOK, `{"invoice_number":"INV-2"}`), nil
	})

	res := fetcher.FetchOrders(context.Background(), []internal.PurchaseOrderRow{
		{VendorID: 7, VendorPONumber: util.StringPtr("PO-BAD")},
		{VendorID: 7, VendorPONumber: util.StringPtr("PO-OK")},
	})

	if len(res.Bodies) != 1 {
		t.Fatalf("expected the good order to survive, got %d bodies", len(res.Bodies))
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", res.Warnings)
	}
}

func TestFetchOrdersErrorRecordFromMapping(t *testing.T) {
	tmpl, rules := testTemplate(t, `{
		"vendor_id": 4,
		"vendor_type": "json",
		"check_response_body": "order.lines",
		"order_status_mapping": {"CANCELLED": ["Voided"]},
		"error_mapping": {
			"error_status": "error.code",
			"error_message": "error.detail"
		},
		"api_request_template": {
			"url": {"raw": "https://vendor.test/orders?po=<<po_number>>", "method": "GET"}
		}
	}`)

	fetcher := testFetcher(tmpl, rules, func(req *http.Request) (*http.Response, error) {
		return respond(http.StatusOK, `{"error":{"code":"Voided","detail":"order was cancelled"}}`), nil
	})

	res := fetcher.FetchOrders(context.Background(), []internal.PurchaseOrderRow{{
		VendorID:       4,
		VendorPONumber: util.StringPtr("PO-3"),
		VendorSONumber: util.StringPtr("SO-3"),
	}})

	if len(res.Bodies) != 0 {
		t.Fatalf("gated response should not produce a body: %v", res.Bodies)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("expected one error record, got %d", len(res.Errors))
	}
	rec := res.Errors[0]
	if rec["invoice_status"] != internal.StatusCancelled {
		t.Fatalf("expected mapped status, got %v", rec["invoice_status"])
	}
	if rec["vendor_message"] != "order was cancelled" {
		t.Fatalf("unexpected message %v", rec["vendor_message"])
	}
	if rec["so_number"] != "SO-3" {
		t.Fatalf("missing so_number: %v", rec)
	}
}

func TestSecondCallMapsFollowUpResponse(t *testing.T) {
	tmpl, rules := testTemplate(t, `{
		"vendor_id": 9,
		"vendor_type": "json",
		"mapping": {
			"fulfillment_table": [
				{"source_field": "detail.invoice", "destination_field": "invoice_number"},
				{"source_field": "detail.lines[i].qty", "destination_field": "items.quantity"}
			]
		},
		"api_request_template": {
			"url": {"raw": "https://vendor.test/orders", "method": "GET"}
		},
		"multi_api_call": {
			"url": {"raw": "https://vendor.test/invoices?inv=<<invoice>>", "method": "GET"}
		}
	}`)

	fetcher := testFetcher(tmpl, rules, func(req *http.Request) (*http.Response, error) {
		if req.URL.Query().Get("inv") != "INV-10" {
			t.Fatalf("invoice placeholder not rendered: %s", req.URL)
		}
		return respond(http.StatusOK, `{"detail":{"invoice":"INV-10","lines":[{"qty":4}]}}`), nil
	})

	call := fetcher.SecondCall(context.Background())
	rec, err := call(internal.OrderContext{SalesOrderNumber: "SO-1"}, map[string]any{}, "INV-10")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if rec["invoice_number"] != "INV-10" {
		t.Fatalf("unexpected record %v", rec)
	}
	items, ok := rec["items"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("expected mapped items, got %v", rec["items"])
	}
}
