// Package attrs reads slog-style alternating key/value lists.
package attrs

// KV is a [key1, value1, key2, value2, ...] list as passed to slog.
type KV []any

// String returns the last string value stored under key, or "".
// Later pairs win so callers can override by appending.
func (kv KV) String(key string) string {
	var out string
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok && k == key {
			if v, ok := kv[i+1].(string); ok {
				out = v
			}
		}
	}
	return out
}

// ExtractString is KV(attrs).String(key).
func ExtractString(attrs []any, key string) string {
	return KV(attrs).String(key)
}
