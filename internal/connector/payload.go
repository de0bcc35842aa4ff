package connector

import (
	"encoding/json"
	"maps"
	"strconv"
	"strings"
)

// Payload is a trigger's data: a nested mapping with a best-effort "message".
type Payload map[string]any

// Message returns the top-level message, falling back to data.message.
func (p Payload) Message() string {
	if s, ok := p["message"].(string); ok && s != "" {
		return s
	}
	if data, ok := p["data"].(map[string]any); ok {
		if s, ok := data["message"].(string); ok {
			return s
		}
	}
	return ""
}

// Params is an AREA's opaque parameter bag.
type Params map[string]any

// Clone returns a shallow copy.
func (p Params) Clone() Params {
	if p == nil {
		return Params{}
	}
	return maps.Clone(p)
}

// String returns the first non-empty value among keys, stringifying numbers.
func (p Params) String(keys ...string) string {
	for _, k := range keys {
		switch v := p[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int:
			return strconv.Itoa(v)
		case int64:
			return strconv.FormatInt(v, 10)
		case json.Number:
			return v.String()
		}
	}
	return ""
}

// Float returns the numeric value at key, accepting numeric strings.
func (p Params) Float(key string, def float64) float64 {
	if f, ok := p.number(key); ok {
		return f
	}
	return def
}

// Int returns the integer value at key, truncating floats.
func (p Params) Int(key string, def int) int {
	if f, ok := p.number(key); ok {
		return int(f)
	}
	return def
}

func (p Params) number(key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

// Bool returns the boolean value at key, accepting "true"/"1" strings.
func (p Params) Bool(key string, def bool) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	case float64:
		return v != 0
	}
	return def
}

// Map returns the nested object at key.
func (p Params) Map(key string) map[string]any {
	m, _ := p[key].(map[string]any)
	return m
}

// StringMap returns the nested object at key with scalar values stringified.
func (p Params) StringMap(key string) map[string]string {
	m := p.Map(key)
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k := range m {
		if s := Params(m).String(k); s != "" {
			out[k] = s
		} else if b, ok := m[k].(bool); ok {
			out[k] = strconv.FormatBool(b)
		}
	}
	return out
}
