package extract

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"opsync/internal"
	"opsync/internal/util"
	"opsync/internal/vendorcfg"
)

// recordBuilder accumulates one canonical order while mapping rules are
// applied. It owns all sequence-growing so that rule application itself stays
// a flat loop.
type recordBuilder struct {
	record map[string]any
}

func newRecordBuilder() *recordBuilder {
	return &recordBuilder{record: map[string]any{}}
}

func (b *recordBuilder) setScalar(field string, v any) {
	b.record[field] = v
}

// element returns the record map at index idx of the named sequence field,
// growing the sequence with empty records as needed. It is an error for the
// field to already hold a non-sequence value: that means the vendor template
// maps the same destination both as scalar and as sequence.
func (b *recordBuilder) element(field string, idx int) (map[string]any, error) {
	list, err := b.sequence(field, idx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i] == nil {
			list[i] = map[string]any{}
		}
	}
	elem, ok := list[idx].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("destination %s[%d] is not a record", field, idx)
	}
	return elem, nil
}

// nestedSlot returns the record at [idx][nestedIdx] of a sequence-of-sequences
// field, creating intermediate empty sequences as needed.
func (b *recordBuilder) nestedSlot(field string, idx, nestedIdx int) (map[string]any, error) {
	list, err := b.sequence(field, idx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i] == nil {
			list[i] = []any{}
		}
	}

	inner, ok := list[idx].([]any)
	if !ok {
		return nil, fmt.Errorf("destination %s[%d] is not a sequence", field, idx)
	}
	for len(inner) <= nestedIdx {
		inner = append(inner, map[string]any{})
	}
	list[idx] = inner
	b.record[field] = list

	elem, ok := inner[nestedIdx].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("destination %s[%d][%d] is not a record", field, idx, nestedIdx)
	}
	return elem, nil
}

// sequence fetches the named field as a sequence grown to hold index idx,
// with new positions left nil for the caller to shape.
func (b *recordBuilder) sequence(field string, idx int) ([]any, error) {
	existing, ok := b.record[field]
	if !ok {
		existing = []any{}
	}
	list, ok := existing.([]any)
	if !ok {
		return nil, fmt.Errorf("destination %s is not a sequence", field)
	}
	for len(list) <= idx {
		list = append(list, nil)
	}
	b.record[field] = list
	return list, nil
}

// MapRecord reconstructs a canonical order from a flattened vendor response by
// applying the vendor's compiled mapping rules in declared order. Rules that
// cannot be applied against the actual data shape are skipped and reported;
// the partially mapped record is still returned.
func MapRecord(flat map[string]any, rules []vendorcfg.MappingRule, tmpl *vendorcfg.Template, ctx internal.OrderContext) (map[string]any, []error) {
	b := newRecordBuilder()
	keys := sortedKeys(flat)

	var failures []error
	for _, rule := range rules {
		var err error
		switch rule.Kind {
		case vendorcfg.RuleDirect:
			err = applyDirect(b, flat, keys, rule, tmpl, ctx)
		case vendorcfg.RuleSignQualifier:
			err = applySignQualifier(b, flat, keys, rule)
		case vendorcfg.RuleWildcardArray:
			err = applyWildcardArray(b, flat, keys, rule, tmpl)
		case vendorcfg.RuleWildcardNested:
			err = applyWildcardNested(b, flat, keys, rule, tmpl)
		case vendorcfg.RuleWildcardConcat:
			applyWildcardConcat(b, flat, keys, rule)
		}
		if err != nil {
			failures = append(failures, fmt.Errorf("rule %s -> %s: %w", rule.Source, rule.DestField, err))
		}
	}
	return b.record, failures
}

func applyDirect(b *recordBuilder, flat map[string]any, keys []string, rule vendorcfg.MappingRule, tmpl *vendorcfg.Template, ctx internal.OrderContext) error {
	v, present := flat[rule.Source]

	if present {
		if rule.DestKey == "" {
			if _, skip := vendorcfg.SkipWhenEmpty[rule.DestField]; skip && util.IsEmptyValue(v) {
				return nil
			}
			b.setScalar(rule.DestField, v)
			return nil
		}

		elem, err := b.element(rule.DestField, 0)
		if err != nil {
			return err
		}
		if rule.DestKey != "item_details" {
			elem[rule.DestKey] = v
		}
		if rule.DestField == "items" {
			if _, ok := elem["item_details"]; !ok {
				elem["item_details"] = []any{}
			}
		}
		if rule.DestKey == "item_details" && !util.IsEmptyValue(v) && serialNumbersWanted(ctx) {
			details, _ := elem["item_details"].([]any)
			elem["item_details"] = append(details, map[string]any{"serialnumber": v})
		}
		return nil
	}

	// The literal key is absent: nested destinations fall back to a
	// prefix/suffix segment scan over the flattened record.
	if rule.DestKey == "" {
		return nil
	}
	for _, key := range keys {
		segs := strings.Split(key, ".")
		if !matchSegments(segs, rule.Prefix, rule.Suffix, tmpl) {
			continue
		}
		idx := deriveIndex(segs, positionFor(rule.DestField, tmpl), false)
		elem, err := b.element(rule.DestField, idx)
		if err != nil {
			return err
		}
		elem[rule.DestKey] = flat[key]
	}
	return nil
}

func applySignQualifier(b *recordBuilder, flat map[string]any, keys []string, rule vendorcfg.MappingRule) error {
	for _, key := range keys {
		if !strings.HasSuffix(key, rule.QualField) || util.Stringify(flat[key]) != rule.Qualifier {
			continue
		}
		sibling := key[:len(key)-len(rule.QualField)] + "RefID"
		v, ok := flat[sibling]
		if !ok {
			// A matched qualifier without its value sibling leaves the
			// destination unset.
			return nil
		}
		if rule.DestKey == "" {
			b.setScalar(rule.DestField, v)
			return nil
		}
		elem, err := b.element(rule.DestField, 0)
		if err != nil {
			return err
		}
		elem[rule.DestKey] = v
		return nil
	}
	return nil
}

func applyWildcardArray(b *recordBuilder, flat map[string]any, keys []string, rule vendorcfg.MappingRule, tmpl *vendorcfg.Template) error {
	for _, key := range keys {
		segs := strings.Split(key, ".")
		if rule.PrefixOnly {
			if !strings.HasPrefix(key, rule.Prefix) {
				continue
			}
		} else if !matchSegments(segs, rule.Prefix, rule.Suffix, tmpl) {
			continue
		}
		idx := deriveIndex(segs, positionFor(rule.DestField, tmpl), rule.SuffixHasIndex)
		elem, err := b.element(rule.DestField, idx)
		if err != nil {
			return err
		}
		elem[rule.DestKey] = flat[key]
	}
	return nil
}

func applyWildcardNested(b *recordBuilder, flat map[string]any, keys []string, rule vendorcfg.MappingRule, tmpl *vendorcfg.Template) error {
	for _, key := range keys {
		segs := strings.Split(key, ".")
		if !matchSegments(segs, rule.Prefix, rule.Suffix, tmpl) {
			continue
		}
		idx := deriveIndex(segs, nil, false)
		nestedIdx := deriveIndex(segs, tmpl.PositionForNestingIndex, rule.SuffixHasIndex)
		elem, err := b.nestedSlot(rule.DestField, idx, nestedIdx)
		if err != nil {
			return err
		}
		elem[rule.DestKey] = flat[key]
	}
	return nil
}

func applyWildcardConcat(b *recordBuilder, flat map[string]any, keys []string, rule vendorcfg.MappingRule) {
	parts := make([]string, 0, 4)
	for _, key := range keys {
		if rule.SuffixHasIndex {
			// Wildcard in the terminal position: any key under the prefix.
			if !strings.HasPrefix(key, rule.Prefix) {
				continue
			}
		} else if !strings.HasPrefix(key, rule.Prefix) || !strings.HasSuffix(key, rule.Suffix) {
			continue
		}
		v := util.Stringify(flat[key])
		if rule.DestField == "ship_date" && v == "" {
			continue
		}
		parts = append(parts, v)
	}
	b.setScalar(rule.DestField, strings.Join(parts, ", "))
}

// matchSegments reports whether a flat key's dotted segments start and end
// with the rule's prefix and terminal segment. When the key's last segment is
// a sequence index the one before it is compared instead.
func matchSegments(segs []string, prefix, suffix string, tmpl *vendorcfg.Template) bool {
	if len(segs) == 0 {
		return false
	}
	if tmpl != nil && tmpl.SplitStartFieldAgain {
		prefix = strings.Split(prefix, ".")[0]
	}
	last := segs[len(segs)-1]
	if len(segs) > 1 && allDigits(last) {
		last = segs[len(segs)-2]
	}
	return segs[0] == prefix && last == suffix
}

// deriveIndex extracts the sequence index from a matched key: a configured
// segment position wins when it holds digits, a terminal-wildcard pattern uses
// the key's last segment, otherwise the first all-digit segment is taken.
func deriveIndex(segs []string, position *int, suffixHasIndex bool) int {
	if position != nil && len(segs) > *position {
		if n, err := strconv.Atoi(segs[*position]); err == nil && n >= 0 {
			return n
		}
	}
	if suffixHasIndex && len(segs) > 1 {
		if n, err := strconv.Atoi(segs[len(segs)-1]); err == nil && n >= 0 {
			return n
		}
	}
	for _, seg := range segs[1:] {
		if n, err := strconv.Atoi(seg); err == nil && n >= 0 && allDigits(seg) {
			return n
		}
	}
	return 0
}

func positionFor(destField string, tmpl *vendorcfg.Template) *int {
	if tmpl == nil {
		return nil
	}
	switch destField {
	case "items":
		return tmpl.PositionForNestingIndex
	case "deliveries":
		return tmpl.PositionForDeliveriesIndex
	}
	return nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func serialNumbersWanted(ctx internal.OrderContext) bool {
	return ctx.NeedSerialNumber == nil || *ctx.NeedSerialNumber
}

// sortedKeys orders flat keys deterministically, comparing numeric segments by
// value so that items.10 sorts after items.2.
func sortedKeys(flat map[string]any) []string {
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return lessNatural(keys[i], keys[j])
	})
	return keys
}

func lessNatural(a, b string) bool {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if as[i] == bs[i] {
			continue
		}
		if allDigits(as[i]) && allDigits(bs[i]) {
			ai, _ := strconv.Atoi(as[i])
			bi, _ := strconv.Atoi(bs[i])
			if ai != bi {
				return ai < bi
			}
			continue
		}
		return as[i] < bs[i]
	}
	return len(as) < len(bs)
}
