package extract

import "strconv"

// Flatten converts a nested JSON-like tree into a single-level record of
// dotted-path keys to scalar values. Map children append ".key", sequence
// elements append the zero-based decimal index. One nesting level is unpacked
// per pass until no value is a map or sequence; input trees from json.Unmarshal
// cannot be cyclic so the loop always terminates.
func Flatten(tree map[string]any) map[string]any {
	flat := make(map[string]any, len(tree))
	for k, v := range tree {
		flat[k] = v
	}

	for {
		next := make(map[string]any, len(flat))
		nested := false
		for key, value := range flat {
			switch t := value.(type) {
			case map[string]any:
				nested = true
				for k, v := range t {
					next[key+"."+k] = v
				}
			case []any:
				nested = true
				for idx, v := range t {
					next[key+"."+strconv.Itoa(idx)] = v
				}
			default:
				next[key] = value
			}
		}
		flat = next
		if !nested {
			return flat
		}
	}
}
