package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// FieldType: закрытый набор видов полей.
type FieldType string

const (
	TypeString   FieldType = "string"
	TypeText     FieldType = "text"
	TypeRichText FieldType = "richtext"
	TypeEmail    FieldType = "email"
	TypeNumber   FieldType = "number"
	TypeDecimal  FieldType = "decimal"
	TypeBoolean  FieldType = "boolean"
	TypeDate     FieldType = "date"
	TypeDateTime FieldType = "datetime"
	TypeJSON     FieldType = "json"
	TypeMedia    FieldType = "media"
	TypeEnum     FieldType = "enum"
	TypeRelation FieldType = "relation"
)

// kindSpec описывает, как вид поля хранится и как приводится значение.
type kindSpec struct {
	sqlType string
	coerce  func(f *Field, v any) (any, error)
	ordered bool // допускает gt/gte/lt/lte
	text    bool // допускает contains/startsWith
}

var kinds = map[FieldType]kindSpec{
	TypeString:   {sqlType: "text", coerce: coerceString, text: true},
	TypeText:     {sqlType: "text", coerce: coerceString, text: true},
	TypeRichText: {sqlType: "text", coerce: coerceString, text: true},
	TypeEmail:    {sqlType: "text", coerce: coerceEmail, text: true},
	TypeNumber:   {sqlType: "bigint", coerce: coerceInt, ordered: true},
	TypeDecimal:  {sqlType: "double precision", coerce: coerceFloat, ordered: true},
	TypeBoolean:  {sqlType: "boolean", coerce: coerceBool},
	TypeDate:     {sqlType: "date", coerce: coerceDate, ordered: true},
	TypeDateTime: {sqlType: "timestamp with time zone", coerce: coerceDateTime, ordered: true},
	TypeJSON:     {sqlType: "jsonb", coerce: coerceJSON},
	TypeMedia:    {sqlType: "jsonb", coerce: coerceMedia},
	TypeEnum:     {sqlType: "text", coerce: coerceEnum},
	TypeRelation: {},
}

// KnownType: есть ли такой вид поля.
func KnownType(t FieldType) bool {
	_, ok := kinds[t]
	return ok
}

// FieldTypes: все виды полей (для меты/админки).
func FieldTypes() []FieldType {
	return []FieldType{
		TypeString, TypeText, TypeRichText, TypeEmail, TypeNumber, TypeDecimal,
		TypeBoolean, TypeDate, TypeDateTime, TypeJSON, TypeMedia, TypeEnum, TypeRelation,
	}
}

// SQLType: тип колонки в Postgres.
func (t FieldType) SQLType() string { return kinds[t].sqlType }

// Ordered: поддерживает ли вид сравнения больше/меньше.
func (t FieldType) Ordered() bool { return kinds[t].ordered }

// Textual: поддерживает ли вид поиск подстроки.
func (t FieldType) Textual() bool { return kinds[t].text }

// JSONStored: хранится как jsonb.
func (t FieldType) JSONStored() bool { return t == TypeJSON || t == TypeMedia }

// Coerce приводит значение к виду поля и проверяет границы. nil остаётся nil.
func (f *Field) Coerce(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	spec, ok := kinds[f.Type]
	if !ok || spec.coerce == nil {
		return nil, fmt.Errorf("unsupported field type %q", f.Type)
	}
	out, err := spec.coerce(f, v)
	if err != nil {
		return nil, err
	}
	if err := f.checkBounds(out); err != nil {
		return nil, err
	}
	return out, nil
}

// CoerceFilterValue: приведение строкового значения из query-параметра.
func (f *Field) CoerceFilterValue(raw string) (any, error) {
	switch f.Type {
	case TypeNumber:
		return coerceInt(f, raw)
	case TypeDecimal:
		return coerceFloat(f, raw)
	case TypeBoolean:
		return coerceBool(f, raw)
	case TypeDate:
		return coerceDate(f, raw)
	case TypeDateTime:
		return coerceDateTime(f, raw)
	default:
		return raw, nil
	}
}

func (f *Field) checkBounds(v any) error {
	switch t := v.(type) {
	case string:
		n := utf8.RuneCountInString(t)
		if f.MinLength != nil && n < *f.MinLength {
			return fmt.Errorf("must be at least %d characters", *f.MinLength)
		}
		if f.MaxLength != nil && n > *f.MaxLength {
			return fmt.Errorf("must be at most %d characters", *f.MaxLength)
		}
		if f.RegexPattern != "" {
			re, err := regexp.Compile(f.RegexPattern)
			if err != nil {
				return fmt.Errorf("invalid regex_pattern: %v", err)
			}
			if !re.MatchString(t) {
				return fmt.Errorf("must match %s", f.RegexPattern)
			}
		}
	case int64:
		return f.checkRange(float64(t))
	case float64:
		return f.checkRange(t)
	}
	return nil
}

func (f *Field) checkRange(x float64) error {
	if f.MinValue != nil && x < *f.MinValue {
		return fmt.Errorf("must be >= %v", *f.MinValue)
	}
	if f.MaxValue != nil && x > *f.MaxValue {
		return fmt.Errorf("must be <= %v", *f.MaxValue)
	}
	return nil
}

func coerceString(_ *Field, v any) (any, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	// числа в строку не превращаем: пусть клиент шлёт правильный тип
	return nil, errors.New("must be string")
}

func coerceEmail(f *Field, v any) (any, error) {
	s, err := coerceString(f, v)
	if err != nil {
		return nil, err
	}
	if _, err := mail.ParseAddress(s.(string)); err != nil {
		return nil, errors.New("must be a valid email address")
	}
	return s, nil
}

func coerceInt(_ *Field, v any) (any, error) {
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) {
			return nil, errors.New("must be integer")
		}
		return int64(t), nil
	case int:
		return int64(t), nil
	case int64:
		return t, nil
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return nil, errors.New("must be integer")
		}
		return n, nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return nil, errors.New("must be integer")
		}
		return n, nil
	}
	return nil, errors.New("must be integer")
}

func coerceFloat(_ *Field, v any) (any, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, errors.New("must be number")
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil, errors.New("must be number")
		}
		return f, nil
	}
	return nil, errors.New("must be number")
}

func coerceBool(_ *Field, v any) (any, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "on":
			return true, nil
		case "false", "0", "no", "off":
			return false, nil
		}
	}
	return nil, errors.New("must be boolean")
}

func coerceDate(_ *Field, v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, errors.New("must be date string")
	}
	if _, err := time.Parse(time.DateOnly, s); err != nil {
		return nil, errors.New("must match YYYY-MM-DD")
	}
	return s, nil
}

func coerceDateTime(_ *Field, v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, errors.New("must be RFC3339 datetime")
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, errors.New("must be RFC3339 datetime")
	}
	return ts.UTC().Format(time.RFC3339Nano), nil
}

func coerceJSON(_ *Field, v any) (any, error) {
	switch v.(type) {
	case map[string]any, []any, string, float64, bool, json.Number:
		return v, nil
	}
	return nil, errors.New("must be JSON value")
}

// media: {"url": "...", "path": "..."} или просто url-строка
func coerceMedia(f *Field, v any) (any, error) {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, errors.New("media url must not be empty")
		}
		return map[string]any{"url": t}, nil
	case map[string]any:
		u, _ := t["url"].(string)
		if strings.TrimSpace(u) == "" {
			return nil, errors.New("media must have url")
		}
		if allowed := f.Option("mime_prefix"); allowed != "" {
			if mt, _ := t["mime"].(string); mt != "" && !strings.HasPrefix(mt, allowed) {
				return nil, fmt.Errorf("media must be %s*", allowed)
			}
		}
		return t, nil
	}
	return nil, errors.New("must be media object or url")
}

func coerceEnum(f *Field, v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, errors.New("must be string")
	}
	for _, ev := range f.EnumValues() {
		if s == ev {
			return s, nil
		}
	}
	return nil, fmt.Errorf("value '%s' is not allowed", s)
}
