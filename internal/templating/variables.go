package templating

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-openapi/strfmt"
)

// DataKey is the nested payload section flattened after the top level.
const DataKey = "data"

// BuildVariables flattens a trigger payload into template variables.
//
// Order: top-level scalars, then scalars under "data" (which win on
// collision), then scalars of the first element of any list of objects for
// names still unset, then the computed clock variables. hours_ago is added
// only when an event timestamp can be found and the payload did not set it.
func BuildVariables(payload map[string]any, now time.Time) Variables {
	vars := Variables{}
	flattenScalars(vars, payload, true)
	data, _ := payload[DataKey].(map[string]any)
	flattenScalars(vars, data, true)

	// most recent item convenience view, e.g. {{user}} from stars[0].user
	fillFromFirstItems(vars, payload)
	fillFromFirstItems(vars, data)

	vars["timestamp"] = now.Format("2006-01-02 15:04")
	vars["current_time"] = now.Format("15:04")
	vars["current_date"] = now.Format("2006-01-02")

	if _, ok := vars["hours_ago"]; !ok {
		if at, ok := EventTime(payload); ok {
			vars["hours_ago"] = Elapsed(at, now)
		}
	}
	return vars
}

func flattenScalars(vars Variables, m map[string]any, override bool) {
	for k, v := range m {
		s, ok := Scalar(v)
		if !ok {
			continue
		}
		if _, exists := vars[k]; exists && !override {
			continue
		}
		vars[k] = s
	}
}

func fillFromFirstItems(vars Variables, m map[string]any) {
	for k, v := range m {
		if k == DataKey {
			continue
		}
		if first, ok := firstObject(v); ok {
			flattenScalars(vars, first, false)
		}
	}
}

func firstObject(v any) (map[string]any, bool) {
	switch x := v.(type) {
	case []any:
		if len(x) > 0 {
			m, ok := x[0].(map[string]any)
			return m, ok
		}
	case []map[string]any:
		if len(x) > 0 {
			return x[0], true
		}
	}
	return nil, false
}

// Scalar stringifies a payload value. Nulls, maps and slices are not scalars.
func Scalar(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case bool:
		return strconv.FormatBool(x), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case uint:
		return strconv.FormatUint(uint64(x), 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case json.Number:
		return x.String(), true
	case time.Time:
		return x.Format("2006-01-02 15:04"), true
	default:
		return "", false
	}
}

// eventTimePaths lists the payload shapes searched for an event timestamp.
var eventTimePaths = [][]string{
	{"stars", "0", "starred_at"},
	{"starred_at"},
	{DataKey, "stars", "0", "starred_at"},
	{DataKey, "starred_at"},
	{"last_star_time"},
	{DataKey, "last_star_time"},
}

// EventTime finds the most recent event timestamp in a payload.
func EventTime(payload map[string]any) (time.Time, bool) {
	for _, path := range eventTimePaths {
		v, ok := lookup(payload, path)
		if !ok {
			continue
		}
		if t, ok := asTime(v); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func lookup(v any, path []string) (any, bool) {
	cur := v
	for _, p := range path {
		switch x := cur.(type) {
		case map[string]any:
			next, ok := x[p]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(p)
			if err != nil || i < 0 || i >= len(x) {
				return nil, false
			}
			cur = x[i]
		case []map[string]any:
			i, err := strconv.Atoi(p)
			if err != nil || i < 0 || i >= len(x) {
				return nil, false
			}
			cur = x[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

func asTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, !x.IsZero()
	case string:
		dt, err := strfmt.ParseDateTime(x)
		if err != nil {
			if t, err := time.ParseInLocation("2006-01-02 15:04:05", x, time.Local); err == nil {
				return t, true
			}
			return time.Time{}, false
		}
		return time.Time(dt), true
	default:
		return time.Time{}, false
	}
}
