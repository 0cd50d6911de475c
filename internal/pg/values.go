package pg

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"klinika/internal/schema"
)

// encodeValue готовит значение поля к параметру запроса.
func encodeValue(t schema.FieldType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case schema.TypeJSON, schema.TypeMedia:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case schema.TypeDateTime:
		if s, ok := v.(string); ok {
			return time.Parse(time.RFC3339Nano, s)
		}
	case schema.TypeDate:
		if s, ok := v.(string); ok {
			return time.Parse(time.DateOnly, s)
		}
	}
	return v, nil
}

// decodeValue возвращает значение в той же форме, что дают коэрсеры схемы.
func decodeValue(t schema.FieldType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	switch t {
	case schema.TypeJSON, schema.TypeMedia:
		s, ok := v.(string)
		if !ok {
			return v, nil
		}
		var out any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, fmt.Errorf("decode jsonb: %w", err)
		}
		return out, nil
	case schema.TypeDate:
		if ts, ok := v.(time.Time); ok {
			return ts.Format(time.DateOnly), nil
		}
	case schema.TypeDateTime:
		if ts, ok := v.(time.Time); ok {
			return ts.UTC().Format(time.RFC3339Nano), nil
		}
	case schema.TypeNumber:
		switch n := v.(type) {
		case int32:
			return int64(n), nil
		case string:
			return strconv.ParseInt(n, 10, 64)
		}
	case schema.TypeDecimal:
		switch n := v.(type) {
		case float32:
			return float64(n), nil
		case string:
			return strconv.ParseFloat(n, 64)
		}
	}
	return v, nil
}

// jsonArg: map/any в jsonb-параметр; nil остаётся NULL.
func jsonArg(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if m, ok := v.(map[string]any); ok && m == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func scanJSON[T any](raw []byte, dst *T) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// placeholders: "$from, $from+1, ..." на n параметров.
func placeholders(from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "$" + strconv.Itoa(from+i)
	}
	return strings.Join(parts, ", ")
}

// escapeLike экранирует спецсимволы LIKE.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
