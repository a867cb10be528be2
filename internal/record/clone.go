package record

// CloneValue deep-copies JSON-compatible values. Maps and slices are copied
// recursively; scalars are returned as is.
func CloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = CloneValue(elem)
		}
		return out
	case Storage:
		return val.Clone()
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = CloneValue(elem)
		}
		return out
	default:
		return v
	}
}

// CloneTable deep-copies a whole table.
func CloneTable(t map[string]Storage) map[string]Storage {
	out := make(map[string]Storage, len(t))
	for k, s := range t {
		out[k] = s.Clone()
	}
	return out
}
