package agent

// required maps an output key to the value it takes when the model leaves it
// out or sets it to null. Keys the model adds are never touched.
type required map[string]func() any

func (r required) fill(m map[string]any) map[string]any {
	if m == nil {
		m = map[string]any{}
	}
	for k, def := range r {
		if v, ok := m[k]; !ok || v == nil {
			m[k] = def()
		}
	}
	return m
}

func emptyList() any { return []any{} }

func number(f float64) func() any { return func() any { return f } }

func text(s string) func() any { return func() any { return s } }

// list returns v as a JSON array, or nil if it is anything else.
func list(v any) []any {
	l, _ := v.([]any)
	return l
}

// object returns v as a JSON object, or nil if it is anything else.
func object(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// clamp bounds a numeric value and leaves other types as they are.
func clamp(v any, lo, hi float64) any {
	f, ok := v.(float64)
	if !ok {
		return v
	}
	return min(max(f, lo), hi)
}

func textList(items ...string) []any {
	out := make([]any, len(items))
	for i, s := range items {
		out[i] = s
	}
	return out
}
