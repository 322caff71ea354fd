package types

// Metadata holds scalar annotations attached to a group. Values are
// restricted to scalar kinds so every backend can round-trip them
// without a schema: string, int64, float64, or bool.
type Metadata map[string]any

// ValidMetaValue reports whether v is a storable metadata value.
func ValidMetaValue(v any) bool {
	switch v.(type) {
	case string, int64, float64, bool:
		return true
	}
	return false
}

// NormalizeMetaValue widens integer and float kinds produced by YAML,
// JSON, or CBOR decoding into the canonical scalar kinds. It reports
// false for values that cannot be represented.
func NormalizeMetaValue(v any) (any, bool) {
	switch x := v.(type) {
	case string, int64, float64, bool:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int16:
		return int64(x), true
	case int8:
		return int64(x), true
	case uint:
		return int64(x), true
	case uint64:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint8:
		return int64(x), true
	case float32:
		return float64(x), true
	}
	return nil, false
}

// Clone returns an independent copy of the metadata map.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MergeFrom copies every entry of other into m, overwriting existing
// keys. Group merge relies on this for its last-writer-wins policy.
func (m Metadata) MergeFrom(other Metadata) {
	for k, v := range other {
		m[k] = v
	}
}
