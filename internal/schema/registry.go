package schema

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"klinika/internal/apperr"
	"klinika/internal/ids"
)

// зарезервированные имена: SQL-ключевые слова и сегменты маршрутов
var reservedTypeNames = map[string]struct{}{
	"select": {}, "from": {}, "where": {}, "table": {}, "order": {}, "group": {},
	"user": {}, "limit": {}, "offset": {}, "join": {}, "union": {}, "insert": {},
	"update": {}, "delete": {}, "create": {}, "drop": {}, "alter": {},
	"pages": {}, "page_sections": {}, "languages": {}, "upload": {}, "meta": {},
	"metrics": {}, "content_types": {}, "section_types": {}, "healthz": {},
}

// системные колонки сущности и перевода
var reservedFieldNames = map[string]struct{}{
	"id": {}, "status": {}, "display_order": {}, "created_at": {}, "updated_at": {},
	"entity_id": {}, "language_code": {}, "locale": {}, "translations": {},
}

// ReservedTypeName: занято ли имя системой.
func ReservedTypeName(name string) bool {
	_, ok := reservedTypeNames[name]
	return ok || strings.HasPrefix(name, "sections_") || strings.HasPrefix(name, "pg_")
}

// Registry: административные операции над типами контента.
type Registry struct {
	store    Store
	migrator Migrator
	ids      *ids.Generator
	log      *slog.Logger
	now      func() time.Time

	mu        sync.RWMutex
	rows      RowCounter
	listeners []func(name string)
}

type Option func(*Registry)

func WithMigrator(m Migrator) Option { return func(r *Registry) { r.migrator = m } }

func WithLogger(l *slog.Logger) Option { return func(r *Registry) { r.log = l } }

func WithClock(now func() time.Time) Option { return func(r *Registry) { r.now = now } }

func NewRegistry(store Store, opts ...Option) *Registry {
	r := &Registry{
		store:    store,
		migrator: noopMigrator{},
		ids:      ids.NewGenerator(),
		log:      slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// SetRowCounter подключает счётчик записей после сборки контент-сервиса.
func (r *Registry) SetRowCounter(rc RowCounter) {
	r.mu.Lock()
	r.rows = rc
	r.mu.Unlock()
}

// OnChange регистрирует слушателя изменений типа (инвалидация кэша схем).
func (r *Registry) OnChange(fn func(name string)) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) notify(names ...string) {
	r.mu.RLock()
	ls := append([]func(string){}, r.listeners...)
	r.mu.RUnlock()
	for _, n := range names {
		for _, fn := range ls {
			fn(n)
		}
	}
}

func (r *Registry) ListContentTypes(ctx context.Context) ([]*ContentType, error) {
	return r.store.ListContentTypes(ctx)
}

// GetContentType: тип с упорядоченными полями и связями.
func (r *Registry) GetContentType(ctx context.Context, id string) (*ContentType, error) {
	ct, err := r.store.GetContentType(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.load(ctx, ct)
}

// GetContentTypeByName: то же по машинному имени.
func (r *Registry) GetContentTypeByName(ctx context.Context, name string) (*ContentType, error) {
	ct, err := r.store.GetContentTypeByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return r.load(ctx, ct)
}

func (r *Registry) load(ctx context.Context, ct *ContentType) (*ContentType, error) {
	fields, err := r.store.ListFields(ctx, ct.ID)
	if err != nil {
		return nil, err
	}
	sortFields(fields)
	rels, err := r.store.ListRelations(ctx, ct.ID)
	if err != nil {
		return nil, err
	}
	ct.Fields = fields
	ct.Relations = rels
	ct.FieldCount = len(fields)
	return ct, nil
}

func sortFields(fs []*Field) {
	sort.SliceStable(fs, func(i, j int) bool {
		if fs[i].DisplayOrder != fs[j].DisplayOrder {
			return fs[i].DisplayOrder < fs[j].DisplayOrder
		}
		return fs[i].CreatedAt.Before(fs[j].CreatedAt)
	})
}

func (r *Registry) CreateContentType(ctx context.Context, in ContentTypeInput) (*ContentType, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := asValidation(in.Validate()); err != nil {
		return nil, err
	}
	if ReservedTypeName(in.Name) {
		return nil, apperr.FieldValidation("name", "Content type name '%s' is reserved", in.Name)
	}
	if _, err := r.store.GetContentTypeByName(ctx, in.Name); err == nil {
		return nil, apperr.Conflict("Content type '%s' already exists", in.Name)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	if in.Kind == "" {
		in.Kind = KindCollection
	}
	now := r.now()
	ct := &ContentType{
		ID:           r.ids.New(),
		Name:         in.Name,
		DisplayName:  in.DisplayName,
		SingularName: in.SingularName,
		Kind:         in.Kind,
		Draftable:    in.Draftable,
		Publishable:  in.Publishable,
		Reviewable:   in.Reviewable,
		Settings:     in.Settings,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.store.CreateContentType(ctx, ct); err != nil {
		return nil, err
	}
	if err := r.migrator.SyncContentType(ctx, ct); err != nil {
		// без таблицы тип бесполезен: откатываем запись реестра
		if derr := r.store.DeleteContentType(ctx, ct.ID); derr != nil {
			r.log.Error("rollback content type", "name", ct.Name, "err", derr)
		}
		return nil, err
	}
	r.log.Info("content type created", "name", ct.Name, "kind", ct.Kind)
	r.notify(ct.Name)
	return ct, nil
}

func (r *Registry) UpdateContentType(ctx context.Context, id string, upd ContentTypeUpdate) (*ContentType, error) {
	ct, err := r.store.GetContentType(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.DisplayName != nil {
		if strings.TrimSpace(*upd.DisplayName) == "" {
			return nil, apperr.FieldValidation("display_name", "display_name: cannot be blank")
		}
		ct.DisplayName = *upd.DisplayName
	}
	if upd.SingularName != nil {
		if strings.TrimSpace(*upd.SingularName) == "" {
			return nil, apperr.FieldValidation("singular_name", "singular_name: cannot be blank")
		}
		ct.SingularName = *upd.SingularName
	}
	if upd.Draftable != nil {
		ct.Draftable = *upd.Draftable
	}
	if upd.Publishable != nil {
		ct.Publishable = *upd.Publishable
	}
	if upd.Reviewable != nil {
		ct.Reviewable = *upd.Reviewable
	}
	if upd.Settings != nil {
		ct.Settings = upd.Settings
	}
	ct.UpdatedAt = r.now()
	if err := r.store.UpdateContentType(ctx, ct); err != nil {
		return nil, err
	}
	r.notify(ct.Name)
	return r.load(ctx, ct)
}

// DeleteContentType удаляет пустой тип; на него не должны ссылаться связи других типов.
func (r *Registry) DeleteContentType(ctx context.Context, id string) error {
	ct, err := r.GetContentType(ctx, id)
	if err != nil {
		return err
	}
	r.mu.RLock()
	rc := r.rows
	r.mu.RUnlock()
	if rc != nil {
		n, err := rc.CountRows(ctx, ct)
		if err != nil {
			return err
		}
		if n > 0 {
			return apperr.Conflict("Content type '%s' has %d entries; delete content first", ct.Name, n)
		}
	}
	for _, rel := range ct.Relations {
		if rel.TargetContentTypeID == ct.ID && rel.SourceContentTypeID != ct.ID {
			return apperr.Conflict("Content type '%s' is referenced by relation '%s'", ct.Name, rel.Name)
		}
	}
	if err := r.migrator.DropContentType(ctx, ct); err != nil {
		return err
	}
	if err := r.store.DeleteContentType(ctx, ct.ID); err != nil {
		return err
	}
	r.log.Info("content type deleted", "name", ct.Name)
	r.notify(ct.Name)
	return nil
}

func (r *Registry) AddField(ctx context.Context, contentTypeID string, in FieldInput) (*Field, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := asValidation(in.Validate()); err != nil {
		return nil, err
	}
	ct, err := r.GetContentType(ctx, contentTypeID)
	if err != nil {
		return nil, err
	}
	if _, ok := reservedFieldNames[in.Name]; ok {
		return nil, apperr.FieldValidation("name", "Field name '%s' is reserved", in.Name)
	}
	if ct.FieldByName(in.Name) != nil {
		return nil, apperr.Conflict("Field '%s' already exists in '%s'", in.Name, ct.Name)
	}
	if in.Unique && in.Translatable {
		return nil, apperr.FieldValidation("unique", "Field cannot be both unique and translatable")
	}
	if in.RegexPattern != "" {
		if _, err := compilePattern(in.RegexPattern); err != nil {
			return nil, apperr.FieldValidation("regex_pattern", "invalid regex_pattern: %v", err)
		}
	}

	now := r.now()
	f := &Field{
		ID:            r.ids.New(),
		ContentTypeID: ct.ID,
		Name:          in.Name,
		DisplayName:   in.DisplayName,
		Type:          in.Type,
		Required:      in.Required,
		Unique:        in.Unique,
		Translatable:  in.Translatable,
		ShowInList:    true,
		ShowInForm:    true,
		Options:       in.Options,
		MinLength:     in.MinLength,
		MaxLength:     in.MaxLength,
		MinValue:      in.MinValue,
		MaxValue:      in.MaxValue,
		RegexPattern:  in.RegexPattern,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if f.DisplayName == "" {
		f.DisplayName = f.Name
	}
	if in.ShowInList != nil {
		f.ShowInList = *in.ShowInList
	}
	if in.ShowInForm != nil {
		f.ShowInForm = *in.ShowInForm
	}
	if in.DisplayOrder != nil {
		f.DisplayOrder = *in.DisplayOrder
	} else {
		for _, ex := range ct.Fields {
			if ex.DisplayOrder >= f.DisplayOrder {
				f.DisplayOrder = ex.DisplayOrder + 1
			}
		}
	}

	var rel *Relation
	switch f.Type {
	case TypeEnum:
		if len(f.EnumValues()) == 0 {
			return nil, apperr.FieldValidation("options", "enum field requires options.values")
		}
	case TypeRelation:
		if f.Translatable || f.Unique {
			return nil, apperr.FieldValidation("type", "relation field cannot be unique or translatable")
		}
		rel, err = r.buildRelation(ctx, ct, f)
		if err != nil {
			return nil, err
		}
	}
	if in.DefaultValue != nil {
		if f.Type == TypeRelation {
			return nil, apperr.FieldValidation("default_value", "relation field cannot have default_value")
		}
		dv, err := f.Coerce(in.DefaultValue)
		if err != nil {
			return nil, apperr.FieldValidation("default_value", "default_value: %v", err)
		}
		f.DefaultValue = dv
	}

	if err := r.store.CreateField(ctx, f); err != nil {
		return nil, err
	}
	if rel != nil {
		if err := r.store.CreateRelation(ctx, rel); err != nil {
			_ = r.store.DeleteField(ctx, ct.ID, f.ID)
			return nil, err
		}
		ct.Relations = append(ct.Relations, rel)
	}
	ct.Fields = append(ct.Fields, f)
	if err := r.migrator.SyncContentType(ctx, ct); err != nil {
		_ = r.store.DeleteField(ctx, ct.ID, f.ID)
		if rel != nil {
			_ = r.store.DeleteRelation(ctx, ct.ID, rel.Name)
		}
		return nil, err
	}
	r.log.Info("field added", "type", ct.Name, "field", f.Name, "kind", f.Type)
	r.notify(ct.Name)
	return f, nil
}

func (r *Registry) buildRelation(ctx context.Context, ct *ContentType, f *Field) (*Relation, error) {
	targetName := f.Option("target")
	if targetName == "" {
		return nil, apperr.FieldValidation("options", "relation field requires options.target")
	}
	card := Cardinality(f.Option("cardinality"))
	if card == "" {
		card = ManyToOne
		if f.Options == nil {
			f.Options = map[string]any{}
		}
		f.Options["cardinality"] = string(card)
	}
	if !card.Valid() {
		return nil, apperr.FieldValidation("options", "unknown cardinality '%s'", card)
	}
	target := ct
	if targetName != ct.Name {
		t, err := r.store.GetContentTypeByName(ctx, targetName)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.FieldValidation("options", "relation target '%s' does not exist", targetName)
		}
		if err != nil {
			return nil, err
		}
		target = t
	}
	return &Relation{
		ID:                  r.ids.New(),
		Name:                f.Name,
		SourceContentTypeID: ct.ID,
		TargetContentTypeID: target.ID,
		SourceName:          ct.Name,
		TargetName:          target.Name,
		Cardinality:         card,
		CreatedAt:           f.CreatedAt,
	}, nil
}

// UpdateField меняет атрибуты поля; поле чужого типа: NotFound.
func (r *Registry) UpdateField(ctx context.Context, contentTypeID, fieldID string, upd FieldUpdate) (*Field, error) {
	ct, err := r.store.GetContentType(ctx, contentTypeID)
	if err != nil {
		return nil, err
	}
	f, err := r.store.GetField(ctx, contentTypeID, fieldID)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil && *upd.Name != f.Name {
		return nil, apperr.FieldValidation("name", "field name is immutable")
	}
	if upd.Type != nil && *upd.Type != f.Type {
		return nil, apperr.FieldValidation("type", "field type is immutable")
	}
	if upd.Translatable != nil && *upd.Translatable != f.Translatable {
		return nil, apperr.FieldValidation("translatable", "translatable flag is immutable")
	}
	prev := *f
	if upd.DisplayName != nil {
		f.DisplayName = *upd.DisplayName
	}
	if upd.Required != nil {
		f.Required = *upd.Required
	}
	if upd.Unique != nil {
		if *upd.Unique && (f.Translatable || f.Type == TypeRelation) {
			return nil, apperr.FieldValidation("unique", "Field cannot be both unique and translatable")
		}
		f.Unique = *upd.Unique
	}
	if upd.DisplayOrder != nil {
		f.DisplayOrder = *upd.DisplayOrder
	}
	if upd.ShowInList != nil {
		f.ShowInList = *upd.ShowInList
	}
	if upd.ShowInForm != nil {
		f.ShowInForm = *upd.ShowInForm
	}
	if upd.Options != nil {
		if f.Type == TypeRelation {
			return nil, apperr.FieldValidation("options", "relation options are immutable")
		}
		f.Options = upd.Options
		if f.Type == TypeEnum && len(f.EnumValues()) == 0 {
			return nil, apperr.FieldValidation("options", "enum field requires options.values")
		}
	}
	if upd.MinLength != nil {
		f.MinLength = upd.MinLength
	}
	if upd.MaxLength != nil {
		f.MaxLength = upd.MaxLength
	}
	if upd.MinValue != nil {
		f.MinValue = upd.MinValue
	}
	if upd.MaxValue != nil {
		f.MaxValue = upd.MaxValue
	}
	if upd.RegexPattern != nil {
		if *upd.RegexPattern != "" {
			if _, err := compilePattern(*upd.RegexPattern); err != nil {
				return nil, apperr.FieldValidation("regex_pattern", "invalid regex_pattern: %v", err)
			}
		}
		f.RegexPattern = *upd.RegexPattern
	}
	if upd.DefaultValue != nil {
		dv, err := f.Coerce(upd.DefaultValue)
		if err != nil {
			return nil, apperr.FieldValidation("default_value", "default_value: %v", err)
		}
		f.DefaultValue = dv
	}
	f.UpdatedAt = r.now()
	if err := r.store.UpdateField(ctx, f); err != nil {
		return nil, err
	}
	if upd.Unique != nil {
		if err := r.syncField(ctx, ct); err != nil {
			// реестр не должен обещать индекс, которого нет
			if rerr := r.store.UpdateField(ctx, &prev); rerr != nil {
				r.log.Error("field rollback failed", "type", ct.Name, "field", f.Name, "error", rerr)
			}
			return nil, err
		}
	}
	r.notify(ct.Name)
	return f, nil
}

func (r *Registry) syncField(ctx context.Context, ct *ContentType) error {
	full, err := r.load(ctx, ct)
	if err != nil {
		return err
	}
	return r.migrator.SyncContentType(ctx, full)
}

// DeleteField удаляет поле вместе с колонкой (или link-таблицей для связи).
func (r *Registry) DeleteField(ctx context.Context, contentTypeID, fieldID string) error {
	ct, err := r.GetContentType(ctx, contentTypeID)
	if err != nil {
		return err
	}
	f, err := r.store.GetField(ctx, contentTypeID, fieldID)
	if err != nil {
		return err
	}
	if err := r.migrator.DropField(ctx, ct, f); err != nil {
		return err
	}
	if err := r.store.DeleteField(ctx, contentTypeID, fieldID); err != nil {
		return err
	}
	if f.Type == TypeRelation {
		if err := r.store.DeleteRelation(ctx, ct.ID, f.Name); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
	}
	r.log.Info("field deleted", "type", ct.Name, "field", f.Name)
	r.notify(ct.Name)
	return nil
}

// ReorderFields переписывает display_order пачкой. Чужие или повторённые id
// отклоняют всю пачку до записи.
func (r *Registry) ReorderFields(ctx context.Context, contentTypeID string, updates []FieldOrder) error {
	ct, err := r.GetContentType(ctx, contentTypeID)
	if err != nil {
		return err
	}
	if len(updates) == 0 {
		return apperr.FieldValidation("fields", "fields: cannot be blank")
	}
	own := make(map[string]struct{}, len(ct.Fields))
	for _, f := range ct.Fields {
		own[f.ID] = struct{}{}
	}
	seen := make(map[string]struct{}, len(updates))
	var unknown []string
	for _, u := range updates {
		if _, ok := own[u.FieldID]; !ok {
			unknown = append(unknown, u.FieldID)
			continue
		}
		if _, dup := seen[u.FieldID]; dup {
			return apperr.FieldValidation("fields", "field %s listed twice", u.FieldID)
		}
		seen[u.FieldID] = struct{}{}
	}
	if len(unknown) > 0 {
		return apperr.FieldValidation("fields", "fields do not belong to '%s': %s", ct.Name, strings.Join(unknown, ", "))
	}
	if err := r.store.ReorderFields(ctx, ct.ID, updates); err != nil {
		return err
	}
	r.notify(ct.Name)
	return nil
}

func compilePattern(p string) (*regexp.Regexp, error) { return regexp.Compile(p) }
