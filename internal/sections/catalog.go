// Package sections: закрытый каталог типов секций страницы.
// Каждый тип хранится в своей таблице компонентов с фиксированным набором полей.
package sections

import (
	"sort"

	"klinika/internal/schema"
)

// Type: тип секции: ключ, таблица компонентов, редактируемые поля.
type Type struct {
	Key         string          `json:"key"`
	Table       string          `json:"table"`
	DisplayName string          `json:"display_name"`
	Fields      []*schema.Field `json:"fields"`
}

func field(name string, t schema.FieldType, required bool) *schema.Field {
	return &schema.Field{Name: name, DisplayName: name, Type: t, Required: required, ShowInForm: true}
}

var catalog = map[string]*Type{
	"sections.hero": {
		Key: "sections.hero", Table: "sections_hero", DisplayName: "Hero",
		Fields: []*schema.Field{
			field("title", schema.TypeString, true),
			field("subtitle", schema.TypeText, false),
			field("image", schema.TypeMedia, false),
			field("cta_label", schema.TypeString, false),
			field("cta_url", schema.TypeString, false),
		},
	},
	"sections.rich-text": {
		Key: "sections.rich-text", Table: "sections_rich_text", DisplayName: "Rich text",
		Fields: []*schema.Field{
			field("title", schema.TypeString, false),
			field("body", schema.TypeRichText, true),
		},
	},
	"sections.services": {
		Key: "sections.services", Table: "sections_services", DisplayName: "Services",
		Fields: []*schema.Field{
			field("title", schema.TypeString, true),
			field("intro", schema.TypeText, false),
			field("items", schema.TypeJSON, false),
		},
	},
	"sections.pricing": {
		Key: "sections.pricing", Table: "sections_pricing", DisplayName: "Pricing",
		Fields: []*schema.Field{
			field("title", schema.TypeString, true),
			field("currency", schema.TypeString, false),
			field("plans", schema.TypeJSON, false),
			field("note", schema.TypeText, false),
		},
	},
	"sections.testimonials": {
		Key: "sections.testimonials", Table: "sections_testimonials", DisplayName: "Testimonials",
		Fields: []*schema.Field{
			field("title", schema.TypeString, false),
			field("items", schema.TypeJSON, false),
		},
	},
	"sections.team": {
		Key: "sections.team", Table: "sections_team", DisplayName: "Team",
		Fields: []*schema.Field{
			field("title", schema.TypeString, false),
			field("intro", schema.TypeText, false),
			field("members", schema.TypeJSON, false),
		},
	},
	"sections.faq": {
		Key: "sections.faq", Table: "sections_faq", DisplayName: "FAQ",
		Fields: []*schema.Field{
			field("title", schema.TypeString, false),
			field("items", schema.TypeJSON, false),
		},
	},
	"sections.gallery": {
		Key: "sections.gallery", Table: "sections_gallery", DisplayName: "Gallery",
		Fields: []*schema.Field{
			field("title", schema.TypeString, false),
			field("images", schema.TypeJSON, false),
			field("columns", schema.TypeNumber, false),
		},
	},
	"sections.cta": {
		Key: "sections.cta", Table: "sections_cta", DisplayName: "Call to action",
		Fields: []*schema.Field{
			field("title", schema.TypeString, true),
			field("text", schema.TypeText, false),
			field("button_label", schema.TypeString, false),
			field("button_url", schema.TypeString, false),
		},
	},
	"sections.contact": {
		Key: "sections.contact", Table: "sections_contact", DisplayName: "Contact",
		Fields: []*schema.Field{
			field("title", schema.TypeString, false),
			field("address", schema.TypeText, false),
			field("phone", schema.TypeString, false),
			field("email", schema.TypeEmail, false),
			field("map_url", schema.TypeString, false),
			field("opening_hours", schema.TypeJSON, false),
		},
	},
}

// Lookup: тип секции по ключу.
func Lookup(key string) (*Type, bool) {
	t, ok := catalog[key]
	return t, ok
}

// Table: таблица компонентов для типа секции, "" для неизвестного.
func Table(key string) string {
	if t, ok := catalog[key]; ok {
		return t.Table
	}
	return ""
}

// ByTable: тип секции по имени таблицы компонентов.
func ByTable(table string) (*Type, bool) {
	for _, t := range catalog {
		if t.Table == table {
			return t, true
		}
	}
	return nil, false
}

// List: весь каталог в порядке ключей.
func List() []*Type {
	out := make([]*Type, 0, len(catalog))
	for _, t := range catalog {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Field ищет поле типа секции.
func (t *Type) Field(name string) *schema.Field {
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}
