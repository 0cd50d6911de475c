package content

import (
	"context"
	"time"

	"klinika/internal/cache"
	"klinika/internal/schema"
)

// RelationDesc: исходящая связь типа: поле, ребро и link-таблица.
type RelationDesc struct {
	Field     *schema.Field
	Relation  *schema.Relation
	Target    string // имя целевого типа
	LinkTable string
	ToMany    bool
}

// Schema: разрешённое описание типа, по нему строятся запросы адаптера.
type Schema struct {
	Type             *schema.ContentType
	Table            string
	TranslationTable string
	Base             []*schema.Field // колонки базовой таблицы
	Translated       []*schema.Field // колонки таблицы переводов
	Relations        []*RelationDesc
	// Incoming: link-таблицы, ссылающиеся на этот тип (включая его собственные).
	Incoming []string

	byName map[string]*schema.Field
	rels   map[string]*RelationDesc
}

// системные поля записи: доступны в фильтрах и сортировке
var systemFields = map[string]*schema.Field{
	"id":            {Name: "id", Type: schema.TypeString},
	"status":        {Name: "status", Type: schema.TypeString},
	"display_order": {Name: "display_order", Type: schema.TypeNumber},
	"created_at":    {Name: "created_at", Type: schema.TypeDateTime},
	"updated_at":    {Name: "updated_at", Type: schema.TypeDateTime},
}

func TranslationTable(typeName string) string { return typeName + "_translations" }

func LinkTable(typeName, field string) string { return typeName + "_" + field + "_links" }

// Describe строит Schema из загруженного типа (поля и связи уже внутри).
func Describe(ct *schema.ContentType) *Schema {
	s := &Schema{
		Type:             ct,
		Table:            ct.Name,
		TranslationTable: TranslationTable(ct.Name),
		byName:           make(map[string]*schema.Field, len(ct.Fields)),
		rels:             make(map[string]*RelationDesc),
	}
	for _, f := range ct.Fields {
		s.byName[f.Name] = f
		switch {
		case f.Type == schema.TypeRelation:
			rel := ct.RelationByName(f.Name)
			if rel == nil {
				continue
			}
			rd := &RelationDesc{
				Field:     f,
				Relation:  rel,
				Target:    rel.TargetName,
				LinkTable: LinkTable(ct.Name, f.Name),
				ToMany:    rel.Cardinality.ToMany(),
			}
			s.Relations = append(s.Relations, rd)
			s.rels[f.Name] = rd
		case f.Translatable:
			s.Translated = append(s.Translated, f)
		default:
			s.Base = append(s.Base, f)
		}
	}
	for _, rel := range ct.Relations {
		if rel.TargetContentTypeID == ct.ID {
			s.Incoming = append(s.Incoming, LinkTable(rel.SourceName, rel.Name))
		}
	}
	return s
}

// Name: машинное имя типа.
func (s *Schema) Name() string { return s.Type.Name }

// HasTranslations: есть ли у типа переводные поля.
func (s *Schema) HasTranslations() bool { return len(s.Translated) > 0 }

// Lookup ищет поле среди системных, базовых и переводных.
func (s *Schema) Lookup(name string) (*schema.Field, Scope, bool) {
	if f, ok := systemFields[name]; ok {
		return f, ScopeSystem, true
	}
	f, ok := s.byName[name]
	if !ok || f.Type == schema.TypeRelation {
		return nil, 0, false
	}
	if f.Translatable {
		return f, ScopeTranslation, true
	}
	return f, ScopeBase, true
}

func (s *Schema) Field(name string) *schema.Field { return s.byName[name] }

func (s *Schema) Relation(name string) (*RelationDesc, bool) {
	rd, ok := s.rels[name]
	return rd, ok
}

// TypeSource: откуда резолвер берёт определения (schema.Registry).
type TypeSource interface {
	GetContentTypeByName(ctx context.Context, name string) (*schema.ContentType, error)
}

// Resolver кэширует Schema по имени типа; реестр инвалидирует при изменениях.
type Resolver struct {
	src   TypeSource
	cache *cache.Cache[string, *Schema]
}

func NewResolver(src TypeSource, ttl time.Duration) *Resolver {
	return &Resolver{src: src, cache: cache.New[string, *Schema](ttl)}
}

// Resolve отдаёт описание типа; неизвестное имя: NotFound из реестра.
func (r *Resolver) Resolve(ctx context.Context, name string) (*Schema, error) {
	return r.cache.GetOrLoad(name, func() (*Schema, error) {
		ct, err := r.src.GetContentTypeByName(ctx, name)
		if err != nil {
			return nil, err
		}
		return Describe(ct), nil
	})
}

func (r *Resolver) Invalidate(name string) { r.cache.Invalidate(name) }

// InvalidateAll сбрасывает всё: связи меняют описания обоих концов.
func (r *Resolver) InvalidateAll() { r.cache.InvalidateAll() }
