// Package templating substitutes {{key}} placeholders in reaction parameters
// with values drawn from a trigger payload.
package templating

import (
	"strings"
)

// Variables maps placeholder names to their already-stringified values.
type Variables map[string]string

// Render replaces every {{key}} whose key is present in vars. Unknown
// placeholders are left verbatim.
func Render(tmpl string, vars Variables) string {
	if !strings.Contains(tmpl, "{{") || len(vars) == 0 {
		return tmpl
	}

	var b strings.Builder
	b.Grow(len(tmpl))
	rest := tmpl
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			b.WriteString(rest)
			break
		}
		close := strings.Index(rest[open+2:], "}}")
		if close < 0 {
			b.WriteString(rest)
			break
		}
		key := rest[open+2 : open+2+close]
		if inner := strings.LastIndex(key, "{{"); inner >= 0 {
			// "{{a {{b}}": only the innermost pair is a placeholder
			b.WriteString(rest[:open+2+inner])
			rest = rest[open+2+inner:]
			continue
		}
		b.WriteString(rest[:open])
		if v, ok := vars[key]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(rest[open : open+2+close+2])
		}
		rest = rest[open+2+close+2:]
	}
	return b.String()
}

// RenderDeep applies Render to every string leaf of v, recursing through maps
// and slices. Non-string scalars are returned unchanged and the input is not mutated.
func RenderDeep(v any, vars Variables) any {
	switch x := v.(type) {
	case string:
		return Render(x, vars)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = RenderDeep(e, vars)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = RenderDeep(e, vars)
		}
		return out
	case []map[string]any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = RenderDeep(e, vars)
		}
		return out
	case []string:
		out := make([]string, len(x))
		for i, e := range x {
			out[i] = Render(e, vars)
		}
		return out
	default:
		return v
	}
}
