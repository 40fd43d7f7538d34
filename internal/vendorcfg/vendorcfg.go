package vendorcfg

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"opsync/internal/util"
)

// FieldMap is one declarative mapping rule as written in a vendor template:
// a dotted vendor response path (possibly with [i] wildcard segments) and the
// canonical destination path it feeds.
type FieldMap struct {
	SourceField      string `json:"source_field"`
	DestinationField string `json:"destination_field"`
}

type Mapping struct {
	FulfillmentTable []FieldMap `json:"fulfillment_table"`
}

type CarrierMapping struct {
	CheckCharacter   bool           `json:"check_character_for_mapping"`
	CheckString      bool           `json:"check_string_for_mapping"`
	ServiceField     string         `json:"carriermethod_for_mapping"`
	LowercaseService bool           `json:"change_carriermethod_to_lowercase"`
	UPS              map[string]int `json:"ups"`
	NonUPS           map[string]int `json:"nonups"`
}

// ShipMethodID resolves a bucketed carrier plus service name to the vendor's
// integer ship-method identifier. Unknown pairs resolve to 0.
func (c *CarrierMapping) ShipMethodID(carrier, service string) int {
	var table map[string]int
	switch carrier {
	case "ups":
		table = c.UPS
	case "nonups":
		table = c.NonUPS
	}
	return table[service]
}

type NestedItems struct {
	FieldToNest string `json:"field_to_nest"`
}

type RequestURL struct {
	Raw    string `json:"raw"`
	Method string `json:"method"`
}

type HeaderKV struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type RequestTemplate struct {
	URL    RequestURL `json:"url"`
	Header []HeaderKV `json:"header"`
}

func (r *RequestTemplate) Headers() map[string]string {
	out := make(map[string]string, len(r.Header))
	for _, h := range r.Header {
		out[h.Key] = h.Value
	}
	return out
}

type RequestData struct {
	XMLPayload          string   `json:"xml_payload"`
	XMLPayloadSecond    string   `json:"xml_payload_second"`
	FormURLEncoded      string   `json:"x-www-form-urlencoded"`
	PayloadValueToUpper []string `json:"payload_value_to_upper"`
}

type ErrorMapping struct {
	ErrorStatus  string `json:"error_status"`
	ErrorMessage string `json:"error_message"`
}

type FaultErrorMapping struct {
	FaultErrorStatus  string `json:"fault_error_status"`
	FaultErrorMessage string `json:"fault_error_message"`
}

// Template is the per-vendor configuration object. Absent flags mean the
// feature is disabled.
type Template struct {
	VendorID   int    `json:"vendor_id"`
	VendorName string `json:"vendor_name"`
	VendorType string `json:"vendor_type"` // "json" or "xml"
	AuthType   string `json:"auth_type"`   // "", "oauth2"

	Mapping             Mapping             `json:"mapping"`
	OrderStatusMapping  map[string][]string `json:"order_status_mapping"`
	OrderInfoMapping    map[string]string   `json:"order_info_mapping"`
	PurchaseOrderStatus []string            `json:"purchase_order_status"`

	CarrierMapping *CarrierMapping `json:"carrier_mapping"`

	FieldsToSplitForMultiInvoice []string `json:"fields_to_split_for_multi_invoice"`
	CheckMultiInvoiceAndSplit    bool     `json:"check_multi_invoice_and_split"`
	TrackingNumberSetsInvoice    bool     `json:"check_for_tracking_number_and_set_invoice_accordingly"`

	MultiField        string `json:"multi_field"`
	CheckResponseBody string `json:"check_response_body"`

	PositionForNestingIndex    *int         `json:"position_for_checking_idx_for_nesting"`
	PositionForDeliveriesIndex *int         `json:"position_for_checking_idx_deliveries"`
	MakeItemsInsideItems       *NestedItems `json:"make_items_inside_items"`
	SplitStartFieldAgain       bool         `json:"field_to_start_with_split_again"`

	APIRequestTemplate *RequestTemplate   `json:"api_request_template"`
	Data               *RequestData       `json:"data"`
	MultiAPICall       *RequestTemplate   `json:"multi_api_call"`
	ErrorMapping       *ErrorMapping      `json:"error_mapping"`
	FaultErrorMapping  *FaultErrorMapping `json:"fault_error_mapping"`

	IterateOverInvoiceForSecondCall bool `json:"iterate_over_invoice_for_second_api_call"`
	UseItemsFromFirstCall           bool `json:"use_items_from_first_api_call"`
	StatusInDifferentField          bool `json:"order_status_in_different_field_and_deliveries_field_factor"`
	IsShipQuantityRepeated          bool `json:"is_shipquantity_repeated"`
	IsShipCostAndExtraPriceSame     bool `json:"is_shipcost_and_extraitemprice_same"`
}

// Load reads a vendor template from disk and compiles its mapping rules.
func Load(path string) (*Template, []MappingRule, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return Parse(blob)
}

func Parse(blob []byte) (*Template, []MappingRule, error) {
	var tmpl Template
	if err := json.Unmarshal(blob, &tmpl); err != nil {
		return nil, nil, fmt.Errorf("invalid vendor template: %w", err)
	}

	rules, err := CompileRules(&tmpl)
	if err != nil {
		return nil, nil, err
	}
	return &tmpl, rules, nil
}

// Render substitutes <<field>> placeholders throughout the template using the
// given values, uppercasing those named in data.payload_value_to_upper, and
// returns a fresh template ready for one API call.
func (t *Template) Render(values map[string]any) (*Template, error) {
	// A plain json.Marshal would escape "<<field>>" to <<field>>
	// and no placeholder would ever match.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(t); err != nil {
		return nil, err
	}

	text := buf.String()
	for k, v := range values {
		rendered := util.Stringify(v)
		if t.Data != nil && contains(t.Data.PayloadValueToUpper, k) {
			rendered = strings.ToUpper(rendered)
		}
		text = strings.ReplaceAll(text, "<<"+k+">>", jsonEscape(rendered))
	}

	var out Template
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("template render produced invalid JSON: %w", err)
	}
	return &out, nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// jsonEscape makes a substituted value safe inside a JSON string literal.
func jsonEscape(v string) string {
	blob, _ := json.Marshal(v)
	return string(blob[1 : len(blob)-1])
}
