package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2/clientcredentials"

	"opsync/internal"
	"opsync/internal/config"
	"opsync/internal/extract"
	"opsync/internal/util"
	"opsync/internal/vendorcfg"
)

// VendorFetcher calls a vendor's order status API once per open purchase
// order, using the vendor template's request definition.
type VendorFetcher struct {
	client *Client
	tmpl   *vendorcfg.Template
	rules  []vendorcfg.MappingRule
}

func NewVendorFetcher(ctx context.Context, cfg *config.Config, tmpl *vendorcfg.Template, rules []vendorcfg.MappingRule) (*VendorFetcher, error) {
	if tmpl.APIRequestTemplate == nil || tmpl.APIRequestTemplate.URL.Raw == "" {
		return nil, fmt.Errorf("vendor %d has no request template", tmpl.VendorID)
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout()}
	if tmpl.AuthType == "oauth2" {
		cc := clientcredentials.Config{
			ClientID:     cfg.VendorOAuth2ClientID,
			ClientSecret: cfg.VendorOAuth2ClientSecret,
			TokenURL:     cfg.VendorOAuth2TokenURL,
		}
		httpClient = cc.Client(ctx)
		httpClient.Timeout = cfg.HTTPTimeout()
	}

	return &VendorFetcher{
		client: NewClient(httpClient, cfg.RateLimitRPS, cfg.RetryAttempts),
		tmpl:   tmpl,
		rules:  rules,
	}, nil
}

// FetchResult carries one fetch pass over a vendor's open purchase orders.
// Bodies feed the transformer; Errors are already-shaped records for orders
// the vendor rejected.
type FetchResult struct {
	Bodies   []map[string]any
	Errors   []map[string]any
	Warnings []error
}

// FetchOrders requests each purchase order's status. A failed or empty
// response moves on to the next order instead of aborting the pass.
func (f *VendorFetcher) FetchOrders(ctx context.Context, orders []internal.PurchaseOrderRow) FetchResult {
	var res FetchResult

	for _, po := range orders {
		rendered, err := f.tmpl.Render(templateValues(po))
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Errorf("render request for po %s: %w", derefString(po.VendorPONumber), err))
			continue
		}

		payload, err := f.call(ctx, rendered.APIRequestTemplate, firstPayload(rendered.Data))
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Errorf("po %s: %w", derefString(po.VendorPONumber), err))
			continue
		}
		if len(payload) == 0 {
			continue
		}

		tree, err := DecodeBody(payload, f.tmpl.VendorType)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Errorf("po %s: %w", derefString(po.VendorPONumber), err))
			continue
		}

		if f.tmpl.CheckResponseBody != "" && !hasResponsePath(tree, f.tmpl.CheckResponseBody) {
			if rec := f.errorRecord(tree, po); rec != nil {
				res.Errors = append(res.Errors, rec)
			}
			continue
		}

		attachOrderContext(tree, po)
		res.Bodies = append(res.Bodies, tree)
	}

	return res
}

// SecondCall fetches invoice-level detail for vendors whose list endpoint
// omits line data. It satisfies extract.SecondCallFunc.
func (f *VendorFetcher) SecondCall(ctx context.Context) extract.SecondCallFunc {
	return func(orderCtx internal.OrderContext, order map[string]any, invoiceNumber string) (map[string]any, error) {
		if f.tmpl.MultiAPICall == nil || f.tmpl.MultiAPICall.URL.Raw == "" {
			return nil, fmt.Errorf("vendor %d has no follow-up request template", f.tmpl.VendorID)
		}

		values := map[string]any{
			"invoice":        invoiceNumber,
			"invoice_number": invoiceNumber,
			"so_number":      orderCtx.SalesOrderNumber,
			"po_number":      util.Stringify(order["po_number"]),
		}
		rendered, err := f.tmpl.Render(values)
		if err != nil {
			return nil, fmt.Errorf("render follow-up for invoice %s: %w", invoiceNumber, err)
		}

		payload, err := f.call(ctx, rendered.MultiAPICall, secondPayload(rendered.Data))
		if err != nil {
			return nil, fmt.Errorf("invoice %s: %w", invoiceNumber, err)
		}
		if len(payload) == 0 {
			return nil, nil
		}

		tree, err := DecodeBody(payload, f.tmpl.VendorType)
		if err != nil {
			return nil, fmt.Errorf("invoice %s: %w", invoiceNumber, err)
		}

		flat := extract.Flatten(tree)
		record, _ := extract.MapRecord(flat, f.rules, f.tmpl, orderCtx)
		return record, nil
	}
}

func (f *VendorFetcher) call(ctx context.Context, req *vendorcfg.RequestTemplate, body string) ([]byte, error) {
	if req == nil || req.URL.Raw == "" {
		return nil, fmt.Errorf("empty request template")
	}

	method := req.URL.Method
	if method == "" {
		if body != "" {
			method = http.MethodPost
		} else {
			method = http.MethodGet
		}
	}

	var payload []byte
	if body != "" {
		payload = []byte(body)
	}
	return f.client.Do(ctx, method, req.URL.Raw, req.Headers(), payload)
}

// errorRecord shapes the vendor's rejection into a canonical error row via
// the template's error mapping. A vendor with no mapping configured yields
// nothing.
func (f *VendorFetcher) errorRecord(tree map[string]any, po internal.PurchaseOrderRow) map[string]any {
	blob, err := json.Marshal(tree)
	if err != nil {
		return nil
	}

	var statusPath, messagePath string
	if em := f.tmpl.ErrorMapping; em != nil {
		statusPath, messagePath = em.ErrorStatus, em.ErrorMessage
	} else if fm := f.tmpl.FaultErrorMapping; fm != nil {
		statusPath, messagePath = fm.FaultErrorStatus, fm.FaultErrorMessage
	} else {
		return nil
	}

	status := internal.StatusError
	if raw := gjson.GetBytes(blob, statusPath).String(); raw != "" {
		status = extract.TranslateStatus(f.tmpl, raw)
	}

	rec := map[string]any{
		"invoice_status": status,
		"vendor_message": gjson.GetBytes(blob, messagePath).String(),
		"po_number":      derefString(po.VendorPONumber),
	}
	if po.VendorSONumber != nil {
		rec["so_number"] = *po.VendorSONumber
	}
	return rec
}

func hasResponsePath(tree map[string]any, path string) bool {
	blob, err := json.Marshal(tree)
	if err != nil {
		return false
	}
	result := gjson.GetBytes(blob, path)
	return result.Exists() && result.Value() != nil
}

func attachOrderContext(tree map[string]any, po internal.PurchaseOrderRow) {
	if po.VendorSONumber != nil {
		tree[internal.MetaSalesOrderNumber] = *po.VendorSONumber
	}
	if po.NeedSerialNumber != nil {
		tree[internal.MetaNeedSerialNumber] = *po.NeedSerialNumber
	}
}

func templateValues(po internal.PurchaseOrderRow) map[string]any {
	return map[string]any{
		"po_number":   derefString(po.VendorPONumber),
		"so_number":   derefString(po.VendorSONumber),
		"tran_date":   derefString(po.TranDate),
		"vendor_name": derefString(po.VendorName),
	}
}

func firstPayload(data *vendorcfg.RequestData) string {
	if data == nil {
		return ""
	}
	if data.FormURLEncoded != "" {
		return data.FormURLEncoded
	}
	return data.XMLPayload
}

func secondPayload(data *vendorcfg.RequestData) string {
	if data == nil {
		return ""
	}
	if data.XMLPayloadSecond != "" {
		return data.XMLPayloadSecond
	}
	return firstPayload(data)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
