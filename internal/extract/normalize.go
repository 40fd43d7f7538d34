package extract

import (
	"strings"

	"opsync/internal/util"
	"opsync/internal/vendorcfg"
)

// MapCarriers canonicalizes the carrier of every delivery and resolves the
// vendor's integer ship-method identifier. Carriers bucket into "ups"/"nonups"
// either by first character or by substring, per the vendor's carrier mapping.
func MapCarriers(order map[string]any, tmpl *vendorcfg.Template) {
	cm := tmpl.CarrierMapping
	if cm == nil {
		return
	}
	for _, d := range deliveriesOf(order) {
		raw := util.Stringify(d["carrier"])
		if raw == "" {
			continue
		}
		carrier := strings.ToLower(raw)
		if cm.CheckCharacter {
			if carrier[0] == 'u' {
				carrier = "ups"
			} else {
				carrier = "nonups"
			}
		}
		if cm.CheckString {
			if strings.Contains(carrier, "ups") {
				carrier = "ups"
			} else {
				carrier = "nonups"
			}
		}

		serviceField := "carrier"
		if cm.ServiceField == "carriermethod" {
			serviceField = "carriermethod"
		}
		service := util.Stringify(d[serviceField])
		if cm.LowercaseService {
			service = strings.ToLower(service)
		}

		d["carrier"] = carrier
		d["carriermethod"] = cm.ShipMethodID(carrier, service)
	}
}

// DefaultWeights fills a missing or zero delivery weight with "0.1".
func DefaultWeights(order map[string]any) {
	for _, d := range deliveriesOf(order) {
		if util.IsEmptyValue(d["weight"]) {
			d["weight"] = "0.1"
		}
	}
}

// ReplicateShipQuantities copies each delivery's shipquantity into the item at
// the same position, for vendors that report shipped counts only on the
// delivery records. Extra deliveries beyond the item count are ignored.
func ReplicateShipQuantities(order map[string]any, tmpl *vendorcfg.Template) {
	if !tmpl.IsShipQuantityRepeated {
		return
	}
	items := itemsOf(order)
	for idx, d := range deliveriesOf(order) {
		if idx >= len(items) {
			break
		}
		items[idx]["quantity"] = d["shipquantity"]
	}
}

// CollapseMoneyFields reduces vendor money strings that carry several joined
// values ("$12.50 USD 12.50") to a single number, keeping the largest decimal
// found, and trims joined dates to their first token. Applied only to a record
// holding a single invoice so that multi-invoice totals are never collapsed.
func CollapseMoneyFields(order map[string]any) {
	if strings.Contains(util.Stringify(order["invoice_number"]), ",") {
		return
	}

	for _, key := range []string{"ship_cost", "total", "extra_item_price"} {
		v, ok := order[key]
		if !ok || util.IsEmptyValue(v) {
			continue
		}
		parsed, found := util.LargestDecimal(util.Stringify(v))
		if !found {
			continue
		}
		if key == "total" {
			order["raw_total"] = v
		}
		order[key] = parsed
	}

	for _, key := range []string{"ship_date", "tran_date"} {
		s := util.Stringify(order[key])
		if s == "" {
			continue
		}
		order[key] = strings.TrimSpace(strings.Split(s, ",")[0])
	}
}

// ReconcileShipCost copies ship_cost and extra_item_price onto each other when
// the vendor reports them as one value and only one of the two was mapped.
func ReconcileShipCost(order map[string]any, tmpl *vendorcfg.Template) {
	if !tmpl.IsShipCostAndExtraPriceSame {
		return
	}
	ship := order["ship_cost"]
	extra := order["extra_item_price"]
	shipEmpty := util.Stringify(ship) == ""
	extraEmpty := util.Stringify(extra) == ""

	switch {
	case shipEmpty && !extraEmpty:
		order["ship_cost"] = extra
	case extraEmpty && !shipEmpty:
		order["extra_item_price"] = ship
	}
}

// FillAmounts backfills per-item amounts as rate times quantity and the order
// total as the amount sum plus ship cost. Existing amounts and totals are
// kept; rate is normalized to a cleaned string and quantity to a number.
func FillAmounts(order map[string]any) {
	items := itemsOf(order)
	if len(items) == 0 {
		return
	}

	sum := 0.0
	for _, item := range items {
		rateS := util.Stringify(item["rate"])
		qtyS := util.Stringify(item["quantity"])
		if rateS == "" || qtyS == "" {
			continue
		}
		rate, rateOK := util.ParseNumeric(rateS)
		qty, qtyOK := util.ParseNumeric(qtyS)
		if !rateOK || !qtyOK {
			continue
		}
		item["rate"] = util.CleanNumeric(rateS)
		item["quantity"] = qty

		amount := rate * qty
		if util.IsEmptyValue(item["amount"]) {
			item["amount"] = amount
			sum += amount
		} else if existing, ok := util.ParseNumeric(util.Stringify(item["amount"])); ok {
			sum += existing
		}
	}

	if util.IsEmptyValue(order["total"]) {
		shipCost, _ := util.ParseNumeric(util.Stringify(order["ship_cost"]))
		order["total"] = sum + shipCost
	}
}

// itemsOf returns the order's items as records. A bare single-item record,
// produced by the invoice splitter, reads as a one-element list.
func itemsOf(order map[string]any) []map[string]any {
	switch t := order["items"].(type) {
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, it := range t {
			if m, ok := it.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	case map[string]any:
		return []map[string]any{t}
	}
	return nil
}

func deliveriesOf(order map[string]any) []map[string]any {
	list, _ := order["deliveries"].([]any)
	out := make([]map[string]any, 0, len(list))
	for _, d := range list {
		if m, ok := d.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
