package extract

import (
	"strings"

	"opsync/internal/util"
	"opsync/internal/vendorcfg"
)

// SplitInvoices fans one mapped order carrying several comma-joined invoice
// numbers out into one record per invoice. Returns nil when no split applies,
// in which case the caller keeps the original record.
//
// Three cases, tried in order: an aligned split when invoice tokens pair 1:1
// with line items, a ragged split clamping shorter lists to their last value,
// and an item-only split replicating the record per item while distributing
// the vendor's split-sensitive fields positionally.
func SplitInvoices(order map[string]any, tmpl *vendorcfg.Template) []map[string]any {
	tokens := splitTokens(util.Stringify(order["invoice_number"]))
	if len(tokens) < 2 {
		return nil
	}
	items, _ := order["items"].([]any)
	if len(items) == 0 {
		return nil
	}

	constant := constantFields(order, tmpl.FieldsToSplitForMultiInvoice)
	dates := splitTokens(util.Stringify(order["ship_date"]))

	if !tmpl.TrackingNumberSetsInvoice && len(tokens) == len(items) {
		return splitAligned(constant, tokens, items, dates)
	}
	if len(tokens) != len(items) {
		return splitRagged(constant, tokens, items, dates)
	}
	return splitPerItem(order, constant, items, tmpl.FieldsToSplitForMultiInvoice)
}

// splitAligned pairs invoice token i with item i. A repeated token folds into
// one output keeping its first position, with the later item winning. An item
// that is itself a sequence fans out into one output per sub-item.
func splitAligned(constant map[string]any, tokens []string, items []any, dates []string) []map[string]any {
	type pair struct {
		item any
		date string
	}
	order := make([]string, 0, len(tokens))
	byToken := make(map[string]*pair, len(tokens))

	for i, token := range tokens {
		p, seen := byToken[token]
		if !seen {
			p = &pair{}
			byToken[token] = p
			order = append(order, token)
		}
		p.item = items[i]
		if len(dates) > 0 {
			p.date = dates[clampIndex(i, len(dates))]
		}
	}

	out := make([]map[string]any, 0, len(order))
	for _, token := range order {
		p := byToken[token]
		sub, isList := p.item.([]any)
		if !isList {
			sub = []any{p.item}
		}
		for _, item := range sub {
			rec := copyRecord(constant)
			rec["invoice_number"] = token
			rec["items"] = item
			if len(dates) > 0 {
				rec["ship_date"] = p.date
			}
			out = append(out, rec)
		}
	}
	return out
}

// splitRagged walks max(item count, invoice count) positions, repeating the
// last available item, invoice token or ship date once a list runs out.
func splitRagged(constant map[string]any, tokens []string, items []any, dates []string) []map[string]any {
	n := len(items)
	if len(tokens) > n {
		n = len(tokens)
	}

	out := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		rec := copyRecord(constant)
		item := items[clampIndex(i, len(items))]
		if sub, ok := item.([]any); ok && len(sub) > 0 {
			item = sub[len(sub)-1]
		}
		rec["items"] = item
		rec["invoice_number"] = tokens[clampIndex(i, len(tokens))]
		if len(dates) > 0 {
			rec["ship_date"] = dates[clampIndex(i, len(dates))]
		}
		out = append(out, rec)
	}
	return out
}

// splitPerItem replicates the shared fields once per item and distributes each
// configured split-sensitive field positionally: comma-joined strings are
// tokenized, sequences are spread element-wise, anything else stays shared.
func splitPerItem(order, constant map[string]any, items []any, splitFields []string) []map[string]any {
	out := make([]map[string]any, len(items))
	for i := range out {
		out[i] = copyRecord(constant)
	}

	for _, field := range splitFields {
		val, ok := order[field]
		if !ok || val == nil {
			continue
		}
		switch v := val.(type) {
		case string:
			for i, token := range strings.Split(v, ",") {
				if i >= len(out) {
					break
				}
				out[i][field] = strings.TrimSpace(token)
			}
		case []any:
			for i, elem := range v {
				if i >= len(out) {
					break
				}
				out[i][field] = elem
			}
		}
	}
	return out
}

func constantFields(order map[string]any, splitFields []string) map[string]any {
	skip := make(map[string]struct{}, len(splitFields))
	for _, f := range splitFields {
		skip[f] = struct{}{}
	}
	constant := make(map[string]any, len(order))
	for k, v := range order {
		if _, drop := skip[k]; drop {
			continue
		}
		constant[k] = v
	}
	return constant
}

func copyRecord(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src)+3)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func splitTokens(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	tokens := make([]string, len(parts))
	for i, p := range parts {
		tokens[i] = strings.TrimSpace(p)
	}
	return tokens
}

func clampIndex(i, length int) int {
	if length == 0 {
		return 0
	}
	if i < length {
		return i
	}
	return length - 1
}
