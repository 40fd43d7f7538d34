package vendorcfg

import (
	"fmt"
	"strings"
)

// RuleKind selects how a compiled mapping rule is applied to a flattened
// record. The shape is decided once at config-load time instead of being
// re-derived from the pattern text on every record.
type RuleKind int

const (
	// RuleDirect copies a literally-present flat key, falling back to a
	// prefix/suffix segment scan when the key is absent but nested.
	RuleDirect RuleKind = iota
	// RuleSignQualifier performs a qualifier/sibling lookup (RefIDQual
	// style reference pairs).
	RuleSignQualifier
	// RuleWildcardArray fills one destination sequence element per matched
	// flat key, indexed by the wildcard segment.
	RuleWildcardArray
	// RuleWildcardNested fills a doubly-indexed sequence-of-sequences slot.
	RuleWildcardNested
	// RuleWildcardConcat joins all matched values into one scalar string.
	RuleWildcardConcat
)

const Wildcard = "[i]"

// Destinations that are skipped instead of being set to an empty value.
var SkipWhenEmpty = map[string]struct{}{
	"memo":           {},
	"shipdate":       {},
	"invoice_status": {},
	"invoice_number": {},
}

// Qualifier patterns used by vendors that report reference numbers as
// qualifier/value sibling pairs.
var SignQualifiers = map[string]string{
	"RefIDQual['IN']": "IN",
	"RefIDQual['ON']": "ON",
}

// The sibling key suffix holding the qualified reference value.
const refValueSuffix = "RefID"

type MappingRule struct {
	Kind   RuleKind
	Source string

	// Destination path split once: DestField is the top-level canonical
	// field, DestKey the element key inside a sequence ("" for scalars).
	DestField string
	DestKey   string

	// Wildcard matching state.
	Prefix         string // first dotted segment before the wildcard
	Suffix         string // terminal dotted segment, wildcard stripped
	PrefixOnly     bool   // single-segment source: match on prefix alone
	SuffixHasIndex bool   // pattern ended in [i]: key's last segment is the index

	// Sign-qualifier state.
	QualField string // key suffix whose value must equal Qualifier
	Qualifier string
}

// CompileRules turns the template's declarative field mappings into tagged
// rules, in declared order. A malformed rule is a configuration error for the
// whole vendor.
func CompileRules(t *Template) ([]MappingRule, error) {
	rules := make([]MappingRule, 0, len(t.Mapping.FulfillmentTable))
	for i, fm := range t.Mapping.FulfillmentTable {
		if strings.TrimSpace(fm.SourceField) == "" {
			continue
		}
		rule, err := compileRule(t, fm)
		if err != nil {
			return nil, fmt.Errorf("mapping rule %d (%s -> %s): %w", i, fm.SourceField, fm.DestinationField, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func compileRule(t *Template, fm FieldMap) (MappingRule, error) {
	if strings.TrimSpace(fm.DestinationField) == "" {
		return MappingRule{}, fmt.Errorf("empty destination")
	}

	rule := MappingRule{Source: fm.SourceField}
	rule.DestField, rule.DestKey = splitDest(fm.DestinationField)

	if code, ok := SignQualifiers[fm.SourceField]; ok {
		rule.Kind = RuleSignQualifier
		rule.Qualifier = code
		rule.QualField = fm.SourceField[:strings.Index(fm.SourceField, "['")]
		return rule, nil
	}

	wildcardAt := strings.Index(fm.SourceField, Wildcard)
	if wildcardAt < 0 {
		rule.Kind = RuleDirect
		segments := strings.Split(fm.SourceField, ".")
		rule.Prefix = segments[0]
		rule.Suffix = strings.TrimSuffix(segments[len(segments)-1], Wildcard)
		return rule, nil
	}

	segments := strings.Split(fm.SourceField, ".")
	before := fm.SourceField[:wildcardAt]
	rule.Prefix = strings.Split(before, ".")[0]
	terminal := segments[len(segments)-1]
	rule.SuffixHasIndex = strings.Contains(terminal, Wildcard)
	rule.Suffix = strings.ReplaceAll(terminal, Wildcard, "")

	if rule.DestKey == "" {
		rule.Kind = RuleWildcardConcat
		return rule, nil
	}

	if len(segments) == 1 {
		// Single segment wildcard source: match keys by prefix alone.
		rule.Kind = RuleWildcardArray
		rule.PrefixOnly = true
		return rule, nil
	}

	if t.MakeItemsInsideItems != nil && t.MakeItemsInsideItems.FieldToNest == rule.DestField {
		rule.Kind = RuleWildcardNested
		return rule, nil
	}

	rule.Kind = RuleWildcardArray
	return rule, nil
}

func splitDest(dest string) (field, key string) {
	if !strings.Contains(dest, ".") {
		return dest, ""
	}
	parts := strings.Split(dest, ".")
	return parts[0], parts[len(parts)-1]
}
