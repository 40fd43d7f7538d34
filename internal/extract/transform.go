package extract

import (
	"errors"
	"fmt"
	"strings"

	"opsync/internal"
	"opsync/internal/util"
	"opsync/internal/vendorcfg"
)

// SecondCallFunc performs a vendor's follow-up API call for one invoice and
// returns the mapped record from its response. A nil record means the
// response was unusable and the invoice is skipped.
type SecondCallFunc func(ctx internal.OrderContext, order map[string]any, invoiceNumber string) (map[string]any, error)

// Transformer turns deserialized vendor response trees into canonical order
// records using one vendor's template and compiled mapping rules. Template
// and rules are read-only after construction.
type Transformer struct {
	Template   *vendorcfg.Template
	Rules      []vendorcfg.MappingRule
	SecondCall SecondCallFunc
}

func NewTransformer(tmpl *vendorcfg.Template, rules []vendorcfg.MappingRule) *Transformer {
	return &Transformer{Template: tmpl, Rules: rules}
}

// TransformBatch processes every fetched response body. A failure in one
// order is reported and the batch continues; the returned records are the
// orders that survived mapping, splitting and normalization.
func (t *Transformer) TransformBatch(bodies []map[string]any) ([]map[string]any, []error) {
	var orders []map[string]any
	var errs []error

	for _, body := range bodies {
		ctx := contextFrom(body)

		for _, payload := range t.payloadsOf(body) {
			recs, warns := t.transformOne(payload, ctx)
			for _, w := range warns {
				errs = append(errs, fmt.Errorf("order %s: %w", ctx.SalesOrderNumber, w))
			}
			orders = append(orders, recs...)
		}
	}
	return orders, errs
}

// payloadsOf resolves the template's multi_field path inside a response body:
// a list there means one order per element, otherwise the subtree (or the
// whole body when the path is absent) is a single order.
func (t *Transformer) payloadsOf(body map[string]any) []map[string]any {
	if t.Template.MultiField == "" {
		return []map[string]any{body}
	}
	sub := lookupPath(body, t.Template.MultiField)
	switch v := sub.(type) {
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, elem := range v {
			if m, ok := elem.(map[string]any); ok {
				out = append(out, m)
			}
		}
		if len(out) > 0 {
			return out
		}
	case map[string]any:
		return []map[string]any{v}
	}
	return []map[string]any{body}
}

// transformOne maps and finalizes one order payload. Rule failures are
// reported as warnings; a partially mapped record still flows through.
func (t *Transformer) transformOne(payload map[string]any, ctx internal.OrderContext) ([]map[string]any, []error) {
	var warns []error

	flat := Flatten(payload)
	mapped, failures := MapRecord(flat, t.Rules, t.Template, ctx)
	for _, f := range failures {
		warns = append(warns, fmt.Errorf("mapping: %w", f))
	}

	if _, ok := mapped["invoice_number"]; !ok {
		if v, ok := mapped["tran_id"]; ok {
			mapped["invoice_number"] = v
		}
	}
	if _, ok := mapped["ship_date"]; !ok {
		if v, ok := mapped["tran_date"]; ok {
			mapped["ship_date"] = v
		}
	}

	t.resolveVendorStatus(mapped)

	status := util.Stringify(mapped["invoice_status"])
	invoice := util.Stringify(mapped["invoice_number"])

	if t.Template.MultiAPICall != nil && t.Template.MultiAPICall.URL.Raw != "" && status != internal.StatusCancelled && invoice != "" {
		recs, err := t.runSecondCalls(mapped, ctx, invoice)
		if err != nil {
			warns = append(warns, err)
		}
		return recs, warns
	}
	if status == internal.StatusCancelled || invoice == "" {
		// Cancelled orders and orders with no invoice produce nothing.
		return nil, warns
	}
	return t.finalize(mapped, ctx, invoice), warns
}

// resolveVendorStatus translates a mapped vendor status to canonical form.
// Vendors that report the status inside the invoice-number field get that
// value relocated; a bare tracking number with no status reads as COMPLETED.
func (t *Transformer) resolveVendorStatus(mapped map[string]any) {
	if status := util.Stringify(mapped["invoice_status"]); status != "" {
		mapped["invoice_status"] = TranslateStatus(t.Template, status)
		return
	}
	if !t.Template.StatusInDifferentField {
		return
	}

	invoice := util.Stringify(mapped["invoice_number"])
	if invoice == "" {
		return
	}
	if canonical, ok := StatusBucket(t.Template, invoice); ok {
		mapped["invoice_status"] = canonical
		mapped["invoice_status_raw"] = invoice
		delete(mapped, "invoice_number")
		return
	}
	if util.Stringify(mapped["trackingnumber"]) != "" {
		mapped["invoice_status"] = internal.StatusCompleted
		mapped["invoice_status_raw"] = invoice
	}
}

func (t *Transformer) runSecondCalls(mapped map[string]any, ctx internal.OrderContext, invoice string) ([]map[string]any, error) {
	if t.SecondCall == nil {
		return nil, fmt.Errorf("vendor requires a follow-up call but none is wired")
	}

	invoices := []string{invoice}
	if t.Template.IterateOverInvoiceForSecondCall {
		invoices = splitTokens(invoice)
	}

	var out []map[string]any
	var errs error
	for _, inv := range invoices {
		rec, err := t.SecondCall(ctx, mapped, inv)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("follow-up call for invoice %s: %w", inv, err))
			continue
		}
		if rec == nil {
			continue
		}
		if t.Template.UseItemsFromFirstCall {
			rec["items"] = mapped["items"]
		}
		rec["invoice_status"] = mapped["invoice_status"]
		out = append(out, t.finalize(rec, ctx, inv)...)
	}
	return out, errs
}

// finalize runs the post-mapping pipeline on one record: invoice splitting,
// status resolution from line quantities, carrier and weight normalization,
// and the numeric backfills.
func (t *Transformer) finalize(rec map[string]any, ctx internal.OrderContext, invoice string) []map[string]any {
	rec["invoice_number"] = invoice

	outputs := []map[string]any{rec}
	if t.Template.CheckMultiInvoiceAndSplit && strings.Contains(invoice, ",") {
		if split := SplitInvoices(rec, t.Template); len(split) > 0 {
			outputs = split
		}
	}

	for _, out := range outputs {
		// The quantity-derived status is authoritative; only fetcher error
		// records keep their reported status. An empty calculation leaves the
		// vendor's value in place.
		vendorStatus, calc := OrderStatus(out)
		if calc != "" && vendorStatus != internal.StatusError {
			out["invoice_status"] = calc
		}

		MapCarriers(out, t.Template)
		DefaultWeights(out)
		ReplicateShipQuantities(out, t.Template)
		CollapseMoneyFields(out)
		ReconcileShipCost(out, t.Template)
		FillAmounts(out)

		if ctx.SalesOrderNumber != "" {
			out["so_number"] = ctx.SalesOrderNumber
		}
	}
	return outputs
}

// contextFrom extracts and removes the fetch-stage metadata keys from a
// response body so they never read as vendor fields.
func contextFrom(body map[string]any) internal.OrderContext {
	ctx := internal.OrderContext{
		SalesOrderNumber: util.Stringify(body[internal.MetaSalesOrderNumber]),
	}
	if v, ok := body[internal.MetaNeedSerialNumber]; ok {
		if b, isBool := v.(bool); isBool {
			ctx.NeedSerialNumber = util.BoolPtr(b)
		}
	}
	delete(body, internal.MetaSalesOrderNumber)
	delete(body, internal.MetaNeedSerialNumber)
	return ctx
}

// lookupPath walks a dotted path through nested maps, returning nil when any
// segment is missing or not a map.
func lookupPath(tree map[string]any, path string) any {
	cur := any(tree)
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[seg]
		if !ok {
			return nil
		}
	}
	return cur
}
