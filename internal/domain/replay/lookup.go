package replay

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// lookup returns the first present, non-empty value among keys. A dotted key
// walks nested objects.
func lookup(obj map[string]any, keys []string) (any, bool) {
	for _, key := range keys {
		if v, ok := walk(obj, key); ok && !empty(v) {
			return v, true
		}
	}
	return nil, false
}

func walk(obj map[string]any, key string) (any, bool) {
	if v, ok := obj[key]; ok {
		return v, true
	}
	parts := strings.Split(key, ".")
	if len(parts) == 1 {
		return nil, false
	}
	var cur any = obj
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[p]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func empty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}

func lookupString(obj map[string]any, keys []string) (string, bool) {
	v, ok := lookup(obj, keys)
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	}
	return fmt.Sprint(v), true
}

// lookupNumber accepts bare numbers and numeric text, including text wrapped
// in square brackets such as "[16.67]".
func lookupNumber(obj map[string]any, keys []string) (float64, bool, error) {
	v, ok := lookup(obj, keys)
	if !ok {
		return 0, false, nil
	}
	f, err := toFloat(v)
	return f, true, err
}

func toFloat(v any) (float64, error) {
	f, err := parseFloat(v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number: %v", v)
	}
	return f, nil
}

func parseFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case string:
		s := strings.TrimSpace(t)
		if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
			s = strings.TrimSpace(s[1 : len(s)-1])
		}
		return strconv.ParseFloat(s, 64)
	}
	return 0, fmt.Errorf("not a number: %T", v)
}

func lookupList(obj map[string]any, keys []string) ([]map[string]any, bool) {
	v, ok := lookup(obj, keys)
	if !ok {
		return nil, false
	}
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		if m, ok := it.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out, true
}

func lookupBool(obj map[string]any, keys []string) (bool, bool) {
	v, ok := lookup(obj, keys)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
