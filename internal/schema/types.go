package schema

import (
	"regexp"
	"time"
)

// вид типа контента
type Kind string

const (
	KindCollection Kind = "collectionType"
	KindSingle     Kind = "singleType"
)

// Cardinality: кардинальность связи между типами.
type Cardinality string

const (
	OneToOne   Cardinality = "oneToOne"
	ManyToOne  Cardinality = "manyToOne"
	OneToMany  Cardinality = "oneToMany"
	ManyToMany Cardinality = "manyToMany"
)

// ToMany: при populate отдаём массив, иначе один объект.
func (c Cardinality) ToMany() bool { return c == OneToMany || c == ManyToMany }

func (c Cardinality) Valid() bool {
	switch c {
	case OneToOne, ManyToOne, OneToMany, ManyToMany:
		return true
	}
	return false
}

// NamePattern: машинное имя типа и поля.
var NamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ContentType описывает тип контента, заданный оператором во время работы.
type ContentType struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	DisplayName  string         `json:"display_name"`
	SingularName string         `json:"singular_name"`
	Kind         Kind           `json:"kind"`
	Draftable    bool           `json:"draftable"`
	Publishable  bool           `json:"publishable"`
	Reviewable   bool           `json:"reviewable"`
	Settings     map[string]any `json:"settings,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`

	FieldCount int         `json:"field_count"`
	Fields     []*Field    `json:"fields,omitempty"`
	Relations  []*Relation `json:"relations,omitempty"`
}

// Field: поле типа контента.
type Field struct {
	ID            string         `json:"id"`
	ContentTypeID string         `json:"content_type_id"`
	Name          string         `json:"name"`
	DisplayName   string         `json:"display_name"`
	Type          FieldType      `json:"type"`
	Required      bool           `json:"required"`
	Unique        bool           `json:"unique"`
	Translatable  bool           `json:"translatable"`
	DefaultValue  any            `json:"default_value,omitempty"`
	DisplayOrder  int            `json:"display_order"`
	ShowInList    bool           `json:"show_in_list"`
	ShowInForm    bool           `json:"show_in_form"`
	Options       map[string]any `json:"options,omitempty"`
	MinLength     *int           `json:"min_length,omitempty"`
	MaxLength     *int           `json:"max_length,omitempty"`
	MinValue      *float64       `json:"min_value,omitempty"`
	MaxValue      *float64       `json:"max_value,omitempty"`
	RegexPattern  string         `json:"regex_pattern,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Relation: ребро между двумя типами. Строки связей живут в link-таблицах.
type Relation struct {
	ID                  string      `json:"id"`
	Name                string      `json:"name"`
	SourceContentTypeID string      `json:"source_content_type_id"`
	TargetContentTypeID string      `json:"target_content_type_id"`
	SourceName          string      `json:"source_name,omitempty"`
	TargetName          string      `json:"target_name,omitempty"`
	Cardinality         Cardinality `json:"cardinality"`
	CreatedAt           time.Time   `json:"created_at"`
}

// FieldOrder: элемент пакетной перестановки полей.
type FieldOrder struct {
	FieldID      string `json:"id"`
	DisplayOrder int    `json:"display_order"`
}

// Column: хранится ли поле колонкой (связи хранятся в link-таблицах).
func (f *Field) Column() bool { return f.Type != TypeRelation }

// Option достаёт строковую опцию поля.
func (f *Field) Option(key string) string {
	if f.Options == nil {
		return ""
	}
	if s, ok := f.Options[key].(string); ok {
		return s
	}
	return ""
}

// EnumValues: допустимые значения enum-поля (options.values).
func (f *Field) EnumValues() []string {
	if f.Options == nil {
		return nil
	}
	switch vs := f.Options["values"].(type) {
	case []string:
		return vs
	case []any:
		out := make([]string, 0, len(vs))
		for _, v := range vs {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// FieldByName ищет поле по имени; nil если нет.
func (ct *ContentType) FieldByName(name string) *Field {
	for _, f := range ct.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// RelationByName ищет исходящую связь по имени.
func (ct *ContentType) RelationByName(name string) *Relation {
	for _, r := range ct.Relations {
		if r.Name == name && r.SourceContentTypeID == ct.ID {
			return r
		}
	}
	return nil
}
