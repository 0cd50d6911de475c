package memstore

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"klinika/internal/content"
	"klinika/internal/schema"
)

// matches: проверка одного фильтра. NULL ведёт себя как в SQL:
// совпадает только с null, любое сравнение с ним ложно.
func matches(f content.Filter, got any) bool {
	switch f.Op {
	case content.OpNull:
		return got == nil
	case content.OpNotNull:
		return got != nil
	}
	if got == nil || len(f.Values) == 0 {
		return false
	}
	want := f.Values[0]
	switch f.Op {
	case content.OpEq:
		return compareValues(f.Type, got, want) == 0
	case content.OpNe:
		return compareValues(f.Type, got, want) != 0
	case content.OpIn, content.OpNotIn:
		hit := false
		for _, w := range f.Values {
			if compareValues(f.Type, got, w) == 0 {
				hit = true
				break
			}
		}
		return hit == (f.Op == content.OpIn)
	case content.OpContains:
		return strings.Contains(toString(got), toString(want))
	case content.OpContainsI:
		return strings.Contains(strings.ToLower(toString(got)), strings.ToLower(toString(want)))
	case content.OpStartsWith:
		return strings.HasPrefix(toString(got), toString(want))
	case content.OpGt:
		return compareValues(f.Type, got, want) > 0
	case content.OpGte:
		return compareValues(f.Type, got, want) >= 0
	case content.OpLt:
		return compareValues(f.Type, got, want) < 0
	case content.OpLte:
		return compareValues(f.Type, got, want) <= 0
	}
	// неизвестный оператор: не совпало
	return false
}

// compareValues сравнивает по виду поля. null больше любого значения:
// при asc уходит в конец, при desc в начало, как в Postgres.
func compareValues(t schema.FieldType, a, b any) int {
	na, nb := a == nil, b == nil
	switch {
	case na && nb:
		return 0
	case na:
		return 1
	case nb:
		return -1
	}
	switch t {
	case schema.TypeNumber, schema.TypeDecimal:
		fa, oka := toFloat(a)
		fb, okb := toFloat(b)
		if oka && okb {
			return cmp3(fa < fb, fa > fb)
		}
	case schema.TypeDateTime:
		ta, oka := toTime(a)
		tb, okb := toTime(b)
		if oka && okb {
			return ta.Compare(tb)
		}
	case schema.TypeBoolean:
		ba, _ := a.(bool)
		bb, _ := b.(bool)
		return cmp3(!ba && bb, ba && !bb)
	}
	// даты YYYY-MM-DD и строки сравниваются лексикографически
	return strings.Compare(toString(a), toString(b))
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		ts, err := time.Parse(time.RFC3339Nano, x)
		return ts, err == nil
	}
	return time.Time{}, false
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
