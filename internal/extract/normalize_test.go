package extract

import (
	"testing"

	"opsync/internal/vendorcfg"
)

func TestMapCarriersCharacterBucketing(t *testing.T) {
	tmpl := &vendorcfg.Template{
		CarrierMapping: &vendorcfg.CarrierMapping{
			CheckCharacter:   true,
			ServiceField:     "carriermethod",
			LowercaseService: true,
			UPS:              map[string]int{"ground": 3},
			NonUPS:           map[string]int{"ground": 11},
		},
	}
	order := map[string]any{
		"deliveries": []any{
			map[string]any{"carrier": "UPS", "carriermethod": "Ground"},
			map[string]any{"carrier": "FedEx", "carriermethod": "GROUND"},
			map[string]any{"carrier": "DHL", "carriermethod": "Express"},
		},
	}
	MapCarriers(order, tmpl)

	d := deliveriesOf(order)
	if d[0]["carrier"] != "ups" || d[0]["carriermethod"] != 3 {
		t.Fatalf("d[0] = %v", d[0])
	}
	if d[1]["carrier"] != "nonups" || d[1]["carriermethod"] != 11 {
		t.Fatalf("d[1] = %v", d[1])
	}
	// Unknown service resolves to 0.
	if d[2]["carrier"] != "nonups" || d[2]["carriermethod"] != 0 {
		t.Fatalf("d[2] = %v", d[2])
	}
}

func TestMapCarriersSubstringBucketing(t *testing.T) {
	tmpl := &vendorcfg.Template{
		CarrierMapping: &vendorcfg.CarrierMapping{
			CheckString: true,
			UPS:         map[string]int{"ups next day": 7},
		},
	}
	order := map[string]any{
		"deliveries": []any{
			map[string]any{"carrier": "UPS Next Day"},
		},
	}
	MapCarriers(order, tmpl)

	d := deliveriesOf(order)[0]
	if d["carrier"] != "ups" {
		t.Fatalf("carrier = %v", d["carrier"])
	}
	// Service comes from the original carrier value when no method field is
	// configured, before bucketing.
	if d["carriermethod"] != 0 {
		t.Fatalf("carriermethod = %v", d["carriermethod"])
	}
}

func TestDefaultWeights(t *testing.T) {
	order := map[string]any{
		"deliveries": []any{
			map[string]any{"weight": ""},
			map[string]any{"weight": 0.0},
			map[string]any{"weight": "2.5"},
			map[string]any{},
		},
	}
	DefaultWeights(order)
	d := deliveriesOf(order)
	if d[0]["weight"] != "0.1" || d[1]["weight"] != "0.1" || d[3]["weight"] != "0.1" {
		t.Fatalf("weights = %v", order["deliveries"])
	}
	if d[2]["weight"] != "2.5" {
		t.Fatalf("existing weight overwritten: %v", d[2]["weight"])
	}
}

func TestReplicateShipQuantities(t *testing.T) {
	tmpl := &vendorcfg.Template{IsShipQuantityRepeated: true}
	order := map[string]any{
		"items": []any{
			map[string]any{"itemno": "X"},
			map[string]any{"itemno": "Y"},
		},
		"deliveries": []any{
			map[string]any{"shipquantity": 2.0},
			map[string]any{"shipquantity": 3.0},
			map[string]any{"shipquantity": 9.0},
		},
	}
	ReplicateShipQuantities(order, tmpl)
	items := itemsOf(order)
	if items[0]["quantity"] != 2.0 || items[1]["quantity"] != 3.0 {
		t.Fatalf("items = %v", order["items"])
	}
}

func TestCollapseMoneyFields(t *testing.T) {
	order := map[string]any{
		"invoice_number": "A1",
		"ship_cost":      "$4.50 4.50",
		"total":          "101.25,101.25",
		"ship_date":      "2024-03-01, 2024-03-02",
		"tran_date":      "2024-02-28",
	}
	CollapseMoneyFields(order)

	if order["ship_cost"] != 4.5 {
		t.Fatalf("ship_cost = %v", order["ship_cost"])
	}
	if order["total"] != 101.25 {
		t.Fatalf("total = %v", order["total"])
	}
	if order["raw_total"] != "101.25,101.25" {
		t.Fatalf("raw_total = %v", order["raw_total"])
	}
	if order["ship_date"] != "2024-03-01" {
		t.Fatalf("ship_date = %v", order["ship_date"])
	}
	if order["tran_date"] != "2024-02-28" {
		t.Fatalf("tran_date = %v", order["tran_date"])
	}
}

func TestCollapseMoneyFieldsSkipsMultiInvoice(t *testing.T) {
	order := map[string]any{
		"invoice_number": "A1,A2",
		"total":          "10.00,20.00",
	}
	CollapseMoneyFields(order)
	if order["total"] != "10.00,20.00" {
		t.Fatalf("multi-invoice total collapsed: %v", order["total"])
	}
}

func TestReconcileShipCost(t *testing.T) {
	tmpl := &vendorcfg.Template{IsShipCostAndExtraPriceSame: true}

	order := map[string]any{"ship_cost": 4.5}
	ReconcileShipCost(order, tmpl)
	if order["extra_item_price"] != 4.5 {
		t.Fatalf("extra_item_price = %v", order["extra_item_price"])
	}

	order = map[string]any{"extra_item_price": "3.00"}
	ReconcileShipCost(order, tmpl)
	if order["ship_cost"] != "3.00" {
		t.Fatalf("ship_cost = %v", order["ship_cost"])
	}

	order = map[string]any{"ship_cost": 1.0, "extra_item_price": 2.0}
	ReconcileShipCost(order, tmpl)
	if order["ship_cost"] != 1.0 || order["extra_item_price"] != 2.0 {
		t.Fatalf("both present should not change: %v", order)
	}
}

func TestFillAmounts(t *testing.T) {
	order := map[string]any{
		"ship_cost": 1.00,
		"items": []any{
			map[string]any{"rate": "2.50", "quantity": "3"},
		},
	}
	FillAmounts(order)

	item := itemsOf(order)[0]
	if item["amount"] != 7.5 {
		t.Fatalf("amount = %v", item["amount"])
	}
	if item["rate"] != "2.50" {
		t.Fatalf("rate = %v", item["rate"])
	}
	if item["quantity"] != 3.0 {
		t.Fatalf("quantity = %v", item["quantity"])
	}
	if order["total"] != 8.5 {
		t.Fatalf("total = %v", order["total"])
	}
}

func TestFillAmountsKeepsExisting(t *testing.T) {
	order := map[string]any{
		"total": 50.0,
		"items": []any{
			map[string]any{"rate": "2.00", "quantity": 2.0, "amount": 5.0},
		},
	}
	FillAmounts(order)
	if itemsOf(order)[0]["amount"] != 5.0 {
		t.Fatalf("amount = %v", itemsOf(order)[0]["amount"])
	}
	if order["total"] != 50.0 {
		t.Fatalf("total = %v", order["total"])
	}
}

func TestFillAmountsSingleItemRecord(t *testing.T) {
	order := map[string]any{
		"items": map[string]any{"rate": "$1,000.00", "quantity": "2"},
	}
	FillAmounts(order)
	item := itemsOf(order)[0]
	if item["amount"] != 2000.0 {
		t.Fatalf("amount = %v", item["amount"])
	}
	if item["rate"] != "1000.00" {
		t.Fatalf("rate = %v", item["rate"])
	}
	if order["total"] != 2000.0 {
		t.Fatalf("total = %v", order["total"])
	}
}
