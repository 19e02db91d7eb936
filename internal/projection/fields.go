package projection

import (
	"strconv"
	"strings"

	"github.com/kailas-cloud/entsearch/internal/domain/entity"
)

// str returns the first non-empty value among keys. A key may be a dotted
// path into nested objects ("client.name").
func str(raw entity.Raw, keys ...string) string {
	for _, k := range keys {
		if s := toString(lookup(raw, k)); s != "" {
			return s
		}
	}
	return ""
}

// num returns the first numeric value among keys.
func num(raw entity.Raw, keys ...string) *float64 {
	for _, k := range keys {
		switch v := lookup(raw, k).(type) {
		case float64:
			return &v
		case float32:
			f := float64(v)
			return &f
		case int:
			f := float64(v)
			return &f
		case int64:
			f := float64(v)
			return &f
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return &f
			}
		}
	}
	return nil
}

func lookup(raw entity.Raw, path string) any {
	var cur any = map[string]any(raw)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[part]
		if !ok {
			return nil
		}
	}
	return cur
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

// join concatenates the non-empty parts with sep.
func join(sep string, parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}

func formatAmount(amount *float64) string {
	if amount == nil {
		return ""
	}
	return strconv.FormatFloat(*amount, 'f', -1, 64)
}

// dateOnly trims an RFC 3339 timestamp to its date part.
func dateOnly(s string) string {
	if len(s) >= 10 && s[4] == '-' && s[7] == '-' {
		return s[:10]
	}
	return s
}

func fields(kv ...string) map[string]string {
	out := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			out[kv[i]] = kv[i+1]
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
