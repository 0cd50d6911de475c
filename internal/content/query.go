package content

import (
	"strings"

	"klinika/internal/domain"
	"klinika/internal/schema"
)

// Op: оператор фильтра.
type Op string

const (
	OpEq         Op = "eq"
	OpNe         Op = "ne"
	OpContains   Op = "contains"
	OpContainsI  Op = "containsi"
	OpStartsWith Op = "startsWith"
	OpIn         Op = "in"
	OpNotIn      Op = "notIn"
	OpGt         Op = "gt"
	OpGte        Op = "gte"
	OpLt         Op = "lt"
	OpLte        Op = "lte"
	OpNull       Op = "null"
	OpNotNull    Op = "notNull"
)

// ParseOp принимает оператор с "$" и без.
func ParseOp(raw string) (Op, bool) {
	op := Op(strings.TrimPrefix(raw, "$"))
	switch op {
	case OpEq, OpNe, OpContains, OpContainsI, OpStartsWith, OpIn, OpNotIn,
		OpGt, OpGte, OpLt, OpLte, OpNull, OpNotNull:
		return op, true
	}
	return "", false
}

func (o Op) multi() bool { return o == OpIn || o == OpNotIn }

// Condition: фильтр как пришёл от клиента, значения строками.
type Condition struct {
	Field  string
	Op     Op
	Values []string
}

// Scope: где живёт поле: системная колонка, базовая таблица или перевод.
type Scope int

const (
	ScopeSystem Scope = iota
	ScopeBase
	ScopeTranslation
)

// Filter: проверенный и приведённый фильтр для адаптера хранилища.
type Filter struct {
	Field  string
	Type   schema.FieldType
	Scope  Scope
	Op     Op
	Values []any
}

type SortKey struct {
	Field string
	Desc  bool
	Scope Scope
	Type  schema.FieldType
}

// ParseSort разбирает "title:asc,created_at:desc".
func ParseSort(raw string) []SortKey {
	var out []SortKey
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, dir, _ := strings.Cut(part, ":")
		out = append(out, SortKey{Field: strings.TrimSpace(name), Desc: strings.EqualFold(strings.TrimSpace(dir), "desc")})
	}
	return out
}

type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

// Query: параметры find/findOne.
type Query struct {
	Filters          []Condition
	Populate         []string
	Sort             []SortKey
	Locale           string
	PublicationState domain.PublicationState
	Pagination       Pagination
}

// PageMeta: meta.pagination в ответе.
type PageMeta struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type Meta struct {
	Pagination PageMeta `json:"pagination"`
}

// Result: {data, meta} для find.
type Result struct {
	Data []Entity `json:"data"`
	Meta Meta     `json:"meta"`
}

// Entity: плоское представление записи: системные поля, базовые, переводные и связи.
type Entity map[string]any

func (e Entity) ID() string {
	id, _ := e["id"].(string)
	return id
}

// Translation: переводные значения для одной локали.
type Translation struct {
	LanguageCode string         `json:"language_code"`
	Data         map[string]any `json:"data"`
}

// RowQuery: запрос к адаптеру: всё уже проверено сервисом.
type RowQuery struct {
	IDs      []string
	Locale   string
	Statuses []domain.Status
	Filters  []Filter
	Sort     []SortKey
	Limit    int // 0: без ограничения
	Offset   int
}
