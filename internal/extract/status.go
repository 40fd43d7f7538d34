package extract

import (
	"sort"

	"opsync/internal"
	"opsync/internal/util"
	"opsync/internal/vendorcfg"
)

// ItemStatus derives a canonical fulfillment status for one order line from
// its ordered, shipped and backordered quantities. A quantity counts as
// reported when its key is present and parses as a number; an explicit zero
// is a report, an absent key is not.
func ItemStatus(item map[string]any) string {
	ship, hasShip := lineQuantity(item, "quantity")
	ord, hasOrd := lineQuantity(item, "quantity_ordered")
	back, hasBack := lineQuantity(item, "quantity_backordered")

	switch {
	case hasOrd && hasShip && !hasBack:
		switch {
		case ship == ord:
			return internal.StatusCompleted
		case ship == 0:
			return internal.StatusProcessing
		case ord-ship > 0 && ord-ship < ord:
			return internal.StatusPartial
		}

	case hasOrd && hasShip && hasBack:
		switch {
		case back == ord && ship != ord:
			return internal.StatusBackordered
		case ship == ord:
			return internal.StatusCompleted
		case ord-ship > 0 && ord-ship < ord:
			return internal.StatusPartial
		}

	case hasOrd && !hasShip && !hasBack:
		return internal.StatusProcessing

	case !hasOrd && hasShip && !hasBack:
		return internal.StatusCompleted

	case !hasOrd && hasShip && hasBack:
		switch {
		case back == 0 && ship > 0:
			return internal.StatusCompleted
		case back > 0 && ship == 0:
			return internal.StatusBackordered
		case back > 0 && ship > 0:
			return internal.StatusPartial
		}
	}

	// No quantities to reason from: keep whatever the vendor said.
	return util.Stringify(item["invoice_status"])
}

func lineQuantity(item map[string]any, key string) (float64, bool) {
	v, ok := item[key]
	if !ok {
		return 0, false
	}
	return util.ParseNumeric(util.Stringify(v))
}

// OrderStatus resolves the invoice-level status of a mapped order: the status
// the vendor reported directly, plus the status calculated from the line
// quantities. Callers prefer the vendor's own status when both exist.
func OrderStatus(order map[string]any) (vendorStatus, calc string) {
	vendorStatus = util.Stringify(order["invoice_status"])

	switch items := order["items"].(type) {
	case []any:
		statuses := make([]string, 0, len(items))
		for _, it := range items {
			switch line := it.(type) {
			case map[string]any:
				if s := ItemStatus(line); s != "" {
					statuses = append(statuses, s)
				}
			case []any:
				// Nested item groups contribute each sub-line.
				for _, sub := range line {
					m, ok := sub.(map[string]any)
					if !ok {
						continue
					}
					if s := ItemStatus(m); s != "" {
						statuses = append(statuses, s)
					}
				}
			}
		}
		calc = aggregateStatuses(statuses)
	case map[string]any:
		// Some vendors report a single line as a bare record.
		calc = ItemStatus(items)
	default:
		calc = ItemStatus(order)
	}
	return vendorStatus, calc
}

// aggregateStatuses folds line statuses into one order status. Conditions are
// evaluated in order and the last match wins, so a fully backordered order is
// BACKORDERED even though any-backordered alone would read PARTIAL.
func aggregateStatuses(statuses []string) string {
	if len(statuses) == 0 {
		return ""
	}

	calc := ""
	if allStatus(statuses, internal.StatusCompleted) {
		calc = internal.StatusCompleted
	}
	if anyStatus(statuses, internal.StatusProcessing) {
		calc = internal.StatusProcessing
	}
	if anyStatus(statuses, internal.StatusBackordered) {
		calc = internal.StatusPartial
	}
	if anyStatus(statuses, internal.StatusPartial) {
		calc = internal.StatusPartial
	}
	if allStatus(statuses, internal.StatusBackordered) {
		calc = internal.StatusBackordered
	}
	return calc
}

func allStatus(statuses []string, want string) bool {
	for _, s := range statuses {
		if s != want {
			return false
		}
	}
	return true
}

func anyStatus(statuses []string, want string) bool {
	for _, s := range statuses {
		if s == want {
			return true
		}
	}
	return false
}

// StatusBucket finds the canonical status whose allow-set contains the raw
// vendor word. Buckets are scanned in sorted order so a word listed twice
// always resolves the same way.
func StatusBucket(tmpl *vendorcfg.Template, raw string) (string, bool) {
	buckets := make([]string, 0, len(tmpl.OrderStatusMapping))
	for canonical := range tmpl.OrderStatusMapping {
		buckets = append(buckets, canonical)
	}
	sort.Strings(buckets)
	for _, canonical := range buckets {
		for _, w := range tmpl.OrderStatusMapping[canonical] {
			if w == raw {
				return canonical, true
			}
		}
	}
	return "", false
}

// TranslateStatus maps a raw vendor status word to the canonical status via
// the template's status buckets. Unmapped values pass through unchanged.
func TranslateStatus(tmpl *vendorcfg.Template, raw string) string {
	if raw == "" {
		return raw
	}
	if canonical, ok := StatusBucket(tmpl, raw); ok {
		return canonical
	}
	return raw
}
