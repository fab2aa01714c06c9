package analysis

import (
	"encoding/json"
	"errors"
	"strings"
)

// Defaulter is implemented by output types that fill missing required keys
// after decoding.
type Defaulter interface {
	ApplyDefaults()
}

// ErrNoJSONObject is the reason recorded when the text contains no object.
var ErrNoJSONObject = errors.New("no JSON object found in response")

// Parse extracts a JSON object from raw and decodes it into T. When no object
// is present or decoding fails, it returns Fallback(fallback(), reason).
// Defaults are applied to structured values whose pointer implements
// Defaulter.
func Parse[T any](raw string, fallback func() T) Result[T] {
	candidate, err := ExtractJSON(raw)
	if err != nil {
		return Fallback(fallback(), err.Error())
	}

	var v T
	if err := json.Unmarshal([]byte(candidate), &v); err != nil {
		return Fallback(fallback(), "decode: "+err.Error())
	}

	if d, ok := any(&v).(Defaulter); ok {
		d.ApplyDefaults()
	}
	return Structured(v)
}

const (
	jsonFence    = "```json"
	genericFence = "```"
)

// ExtractJSON locates the JSON object inside model output. It prefers a
// ```json fenced block, then a generic fenced block containing '{', and
// finally the span from the first '{' to the last '}'.
func ExtractJSON(raw string) (string, error) {
	if i := strings.Index(raw, jsonFence); i >= 0 {
		body := raw[i+len(jsonFence):]
		if end := strings.Index(body, genericFence); end >= 0 {
			body = body[:end]
		}
		if s := strings.TrimSpace(body); s != "" {
			return s, nil
		}
	}

	if i := strings.Index(raw, genericFence); i >= 0 {
		body := raw[i+len(genericFence):]
		if end := strings.Index(body, genericFence); end >= 0 {
			body = body[:end]
			if strings.Contains(body, "{") {
				// Drop a language tag on the opening fence line.
				if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.Contains(body[:nl], "{") {
					body = body[nl+1:]
				}
				return strings.TrimSpace(body), nil
			}
		}
	}

	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return "", ErrNoJSONObject
	}
	return raw[start : end+1], nil
}
