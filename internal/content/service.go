package content

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"klinika/internal/apperr"
	"klinika/internal/domain"
	"klinika/internal/ids"
	"klinika/internal/schema"
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 100
)

// Locales: источник языков (locale.Service).
type Locales interface {
	DefaultLanguage(ctx context.Context) (string, error)
	IsEnabled(ctx context.Context, code string) (bool, error)
}

type Options struct {
	// RequireDefaultLocaleOnPublish: публикация требует перевода на язык по умолчанию.
	RequireDefaultLocaleOnPublish bool
	DefaultPageSize               int
	MaxPageSize                   int
}

func DefaultOptions() Options {
	return Options{
		RequireDefaultLocaleOnPublish: true,
		DefaultPageSize:               DefaultPageSize,
		MaxPageSize:                   MaxPageSize,
	}
}

// Service: обобщённый CRUD поверх типов, определённых во время работы.
type Service struct {
	resolver *Resolver
	store    Store
	locales  Locales
	ids      *ids.Generator
	log      *slog.Logger
	now      func() time.Time
	opts     Options
}

func NewService(resolver *Resolver, store Store, locales Locales, log *slog.Logger, opts Options) *Service {
	if log == nil {
		log = slog.Default()
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = DefaultPageSize
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = MaxPageSize
	}
	return &Service{
		resolver: resolver,
		store:    store,
		locales:  locales,
		ids:      ids.NewGenerator(),
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
		opts:     opts,
	}
}

// Resolve: описание типа по имени; для неизвестного типа NotFound.
func (s *Service) Resolve(ctx context.Context, typeName string) (*Schema, error) {
	return s.resolver.Resolve(ctx, typeName)
}

// CountRows реализует schema.RowCounter.
func (s *Service) CountRows(ctx context.Context, ct *schema.ContentType) (int, error) {
	return s.store.CountRows(ctx, Describe(ct), RowQuery{})
}

// Find: страница записей по фильтрам, сортировке и локали.
func (s *Service) Find(ctx context.Context, typeName string, q Query) (*Result, error) {
	sch, err := s.resolver.Resolve(ctx, typeName)
	if err != nil {
		return nil, err
	}
	rq, err := s.rowQuery(ctx, sch, q)
	if err != nil {
		return nil, err
	}
	page, size := s.pagination(q.Pagination)
	rq.Limit = size
	rq.Offset = (page - 1) * size

	rows, total, err := s.store.FindRows(ctx, sch, rq)
	if err != nil {
		return nil, err
	}
	data, err := s.entities(ctx, sch, rows, rq.Locale, q)
	if err != nil {
		return nil, err
	}
	totalPages := 0
	if total > 0 {
		totalPages = (total + size - 1) / size
	}
	return &Result{
		Data: data,
		Meta: Meta{Pagination: PageMeta{Page: page, PageSize: size, Total: total, TotalPages: totalPages}},
	}, nil
}

// FindOne: одна запись той же формы, что и в Find; nil, если нет.
func (s *Service) FindOne(ctx context.Context, typeName, id string, q Query) (Entity, error) {
	sch, err := s.resolver.Resolve(ctx, typeName)
	if err != nil {
		return nil, err
	}
	rq, err := s.rowQuery(ctx, sch, q)
	if err != nil {
		return nil, err
	}
	rq.IDs = []string{id}
	rq.Limit = 1
	rows, _, err := s.store.FindRows(ctx, sch, rq)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	out, err := s.entities(ctx, sch, rows, rq.Locale, q)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// Count: число записей под фильтрами и состоянием публикации.
func (s *Service) Count(ctx context.Context, typeName string, q Query) (int, error) {
	sch, err := s.resolver.Resolve(ctx, typeName)
	if err != nil {
		return 0, err
	}
	rq, err := s.rowQuery(ctx, sch, q)
	if err != nil {
		return 0, err
	}
	return s.store.CountRows(ctx, sch, rq)
}

func (s *Service) pagination(p Pagination) (page, size int) {
	page, size = p.Page, p.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = s.opts.DefaultPageSize
	}
	if size > s.opts.MaxPageSize {
		size = s.opts.MaxPageSize
	}
	return page, size
}

// rowQuery проверяет локаль, фильтры и сортировку и собирает RowQuery.
func (s *Service) rowQuery(ctx context.Context, sch *Schema, q Query) (RowQuery, error) {
	var rq RowQuery
	loc, err := s.resolveLocale(ctx, q.Locale)
	if err != nil {
		return rq, err
	}
	rq.Locale = loc

	state := q.PublicationState
	if state == "" {
		state = domain.PublicationLive
	}
	if state == domain.PublicationLive {
		rq.Statuses = []domain.Status{domain.StatusPublished}
	}

	for _, c := range q.Filters {
		f, err := compileFilter(sch, c)
		if err != nil {
			return rq, err
		}
		rq.Filters = append(rq.Filters, f)
	}

	for _, k := range q.Sort {
		f, scope, ok := sch.Lookup(k.Field)
		if !ok {
			return rq, apperr.FieldValidation("sort", "Unknown sort field '%s'", k.Field)
		}
		if f.Type.JSONStored() {
			return rq, apperr.FieldValidation("sort", "Field '%s' is not sortable", k.Field)
		}
		rq.Sort = append(rq.Sort, SortKey{Field: f.Name, Desc: k.Desc, Scope: scope, Type: f.Type})
	}
	// устойчивый порядок по умолчанию и как добивка
	rq.Sort = append(rq.Sort,
		SortKey{Field: "display_order", Scope: ScopeSystem, Type: schema.TypeNumber},
		SortKey{Field: "created_at", Scope: ScopeSystem, Type: schema.TypeDateTime},
		SortKey{Field: "id", Scope: ScopeSystem, Type: schema.TypeString},
	)
	return rq, nil
}

func (s *Service) resolveLocale(ctx context.Context, raw string) (string, error) {
	loc := strings.TrimSpace(raw)
	if loc == "" {
		return s.locales.DefaultLanguage(ctx)
	}
	ok, err := s.locales.IsEnabled(ctx, loc)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperr.FieldValidation("locale", "Unknown locale '%s'", loc)
	}
	return loc, nil
}

func compileFilter(sch *Schema, c Condition) (Filter, error) {
	f, scope, ok := sch.Lookup(c.Field)
	if !ok {
		return Filter{}, apperr.FieldValidation("filters", "Unknown filter field '%s'", c.Field)
	}
	out := Filter{Field: f.Name, Type: f.Type, Scope: scope, Op: c.Op}
	switch c.Op {
	case OpNull, OpNotNull:
		// filters[x][$null]=false означает notNull
		if len(c.Values) > 0 && strings.EqualFold(c.Values[0], "false") {
			if c.Op == OpNull {
				out.Op = OpNotNull
			} else {
				out.Op = OpNull
			}
		}
		return out, nil
	case OpContains, OpContainsI, OpStartsWith:
		if !f.Type.Textual() && f.Name != "id" && f.Name != "status" {
			return Filter{}, apperr.FieldValidation("filters", "Operator %s is not supported for '%s'", c.Op, c.Field)
		}
	case OpGt, OpGte, OpLt, OpLte:
		if !f.Type.Ordered() && !f.Type.Textual() {
			return Filter{}, apperr.FieldValidation("filters", "Operator %s is not supported for '%s'", c.Op, c.Field)
		}
	case OpEq, OpNe, OpIn, OpNotIn:
	default:
		return Filter{}, apperr.FieldValidation("filters", "Unknown operator '%s'", c.Op)
	}
	if f.Type.JSONStored() {
		return Filter{}, apperr.FieldValidation("filters", "Operator %s is not supported for '%s'", c.Op, c.Field)
	}
	vals := c.Values
	if c.Op.multi() {
		var split []string
		for _, v := range vals {
			for _, p := range strings.Split(v, ",") {
				if p = strings.TrimSpace(p); p != "" {
					split = append(split, p)
				}
			}
		}
		vals = split
	}
	if len(vals) == 0 {
		return Filter{}, apperr.FieldValidation("filters", "Filter '%s' needs a value", c.Field)
	}
	if !c.Op.multi() {
		vals = vals[:1]
	}
	for _, raw := range vals {
		v, err := f.CoerceFilterValue(raw)
		if err != nil {
			return Filter{}, apperr.FieldValidation("filters", "Filter '%s': %v", c.Field, err)
		}
		out.Values = append(out.Values, v)
	}
	return out, nil
}

// toEntity раскладывает строку в плоский объект.
func toEntity(sch *Schema, row *Row, locale string) Entity {
	e := Entity{
		"id":            row.ID,
		"status":        row.Status,
		"display_order": row.DisplayOrder,
		"created_at":    row.CreatedAt,
		"updated_at":    row.UpdatedAt,
		"locale":        locale,
	}
	for _, f := range sch.Base {
		e[f.Name] = row.Data[f.Name]
	}
	for _, f := range sch.Translated {
		if row.Translation == nil {
			e[f.Name] = nil
			continue
		}
		e[f.Name] = row.Translation[f.Name]
	}
	return e
}
