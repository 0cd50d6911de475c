package content

import (
	"context"
	"errors"

	"klinika/internal/apperr"
	"klinika/internal/domain"
	"klinika/internal/schema"
)

// input: разобранное тело записи.
type input struct {
	base         map[string]any
	trans        map[string]map[string]any // locale → поля
	order        []string                  // порядок локалей для вставки
	links        map[*RelationDesc][]string
	status       domain.Status
	displayOrder *int
}

// Create вставляет запись, её переводы и связи. Сбой после вставки базовой
// строки откатывается компенсирующим удалением.
func (s *Service) Create(ctx context.Context, typeName string, data map[string]any, translations []Translation) (Entity, error) {
	sch, err := s.resolver.Resolve(ctx, typeName)
	if err != nil {
		return nil, err
	}
	if sch.Type.Kind == schema.KindSingle {
		n, err := s.store.CountRows(ctx, sch, RowQuery{})
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, apperr.Conflict("Single type '%s' already has an entry", sch.Name())
		}
	}
	in, err := s.parseInput(ctx, sch, data, translations, true)
	if err != nil {
		return nil, err
	}
	if err := s.checkRequired(sch, in); err != nil {
		return nil, err
	}
	if err := s.checkUnique(ctx, sch, in.base, ""); err != nil {
		return nil, err
	}
	if err := s.checkLinks(ctx, in.links); err != nil {
		return nil, err
	}

	st := in.status
	if st == "" {
		st = domain.StatusPublished
		if sch.Type.Draftable {
			st = domain.StatusDraft
		}
	}
	// у нечерновых типов нет жизненного цикла, проверяем только явную публикацию
	if in.status == domain.StatusPublished {
		if err := s.checkPublishable(ctx, sch, "", in); err != nil {
			return nil, err
		}
	}

	now := s.now()
	row := &Row{
		ID:        s.ids.New(),
		Status:    st,
		CreatedAt: now,
		UpdatedAt: now,
		Data:      in.base,
	}
	if in.displayOrder != nil {
		row.DisplayOrder = *in.displayOrder
	}
	if err := s.store.InsertRow(ctx, sch, row); err != nil {
		return nil, err
	}
	if err := s.writeDependents(ctx, sch, row.ID, in); err != nil {
		s.compensate(ctx, sch, row.ID)
		return nil, err
	}
	s.log.Info("entity created", "type", sch.Name(), "id", row.ID, "status", st)
	return s.FindOne(ctx, typeName, row.ID, Query{PublicationState: domain.PublicationPreview, Locale: s.firstLocale(in)})
}

func (s *Service) writeDependents(ctx context.Context, sch *Schema, id string, in *input) error {
	for _, loc := range in.order {
		if err := s.store.UpsertTranslation(ctx, sch, id, loc, in.trans[loc]); err != nil {
			return err
		}
	}
	for rel, tids := range in.links {
		if err := s.store.ReplaceLinks(ctx, sch, rel, id, tids); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) compensate(ctx context.Context, sch *Schema, id string) {
	// контекст запроса мог быть отменён, откат всё равно нужен
	ctx = context.WithoutCancel(ctx)
	if err := s.store.DeleteTranslations(ctx, sch, id); err != nil {
		s.log.Error("compensate translations", "type", sch.Name(), "id", id, "err", err)
	}
	if err := s.store.DeleteLinks(ctx, sch, id); err != nil {
		s.log.Error("compensate links", "type", sch.Name(), "id", id, "err", err)
	}
	if err := s.store.DeleteRow(ctx, sch, id); err != nil {
		s.log.Error("compensate row", "type", sch.Name(), "id", id, "err", err)
	}
}

func (s *Service) firstLocale(in *input) string {
	if len(in.order) > 0 {
		return in.order[0]
	}
	return ""
}

// Update меняет базовые колонки из data и делает upsert переводов по локалям.
func (s *Service) Update(ctx context.Context, typeName, id string, data map[string]any, translations []Translation) (Entity, error) {
	sch, err := s.resolver.Resolve(ctx, typeName)
	if err != nil {
		return nil, err
	}
	if _, err := s.mustRow(ctx, sch, id, ""); err != nil {
		return nil, err
	}
	in, err := s.parseInput(ctx, sch, data, translations, false)
	if err != nil {
		return nil, err
	}
	if in.status != "" {
		return nil, apperr.FieldValidation("status", "status is changed through actions")
	}
	for name, v := range in.base {
		if f := sch.Field(name); f != nil && f.Required && v == nil {
			return nil, apperr.FieldValidation(name, "Missing required field: %s", name)
		}
	}
	if err := s.checkUnique(ctx, sch, in.base, id); err != nil {
		return nil, err
	}
	if err := s.checkLinks(ctx, in.links); err != nil {
		return nil, err
	}

	if len(in.base) > 0 || in.displayOrder != nil {
		upd := make(map[string]any, len(in.base)+1)
		for k, v := range in.base {
			upd[k] = v
		}
		if in.displayOrder != nil {
			upd["display_order"] = *in.displayOrder
		}
		if err := s.store.UpdateRow(ctx, sch, id, upd, s.now()); err != nil {
			return nil, err
		}
	}
	if err := s.writeDependents(ctx, sch, id, in); err != nil {
		return nil, err
	}
	s.log.Info("entity updated", "type", sch.Name(), "id", id)
	return s.FindOne(ctx, typeName, id, Query{PublicationState: domain.PublicationPreview, Locale: s.firstLocale(in)})
}

// Delete: переводы, связи, затем базовая строка.
func (s *Service) Delete(ctx context.Context, typeName, id string) error {
	sch, err := s.resolver.Resolve(ctx, typeName)
	if err != nil {
		return err
	}
	if _, err := s.mustRow(ctx, sch, id, ""); err != nil {
		return err
	}
	if err := s.store.DeleteTranslations(ctx, sch, id); err != nil {
		return err
	}
	if err := s.store.DeleteLinks(ctx, sch, id); err != nil {
		return err
	}
	if err := s.store.DeleteRow(ctx, sch, id); err != nil {
		return err
	}
	s.log.Info("entity deleted", "type", sch.Name(), "id", id)
	return nil
}

// SetStatus: переход между draft/published/archived, любые направления.
// Повтор того же статуса ничего не пишет.
func (s *Service) SetStatus(ctx context.Context, typeName, id string, st domain.Status) (Entity, error) {
	sch, err := s.resolver.Resolve(ctx, typeName)
	if err != nil {
		return nil, err
	}
	if _, err := domain.ParseStatus(string(st)); err != nil {
		return nil, err
	}
	row, err := s.mustRow(ctx, sch, id, "")
	if err != nil {
		return nil, err
	}
	if row.Status != st {
		if st == domain.StatusPublished {
			if err := s.checkPublishable(ctx, sch, id, nil); err != nil {
				return nil, err
			}
		}
		if err := s.store.SetStatus(ctx, sch, id, st, s.now()); err != nil {
			return nil, err
		}
		s.log.Info("entity status changed", "type", sch.Name(), "id", id, "from", row.Status, "to", st)
	}
	return s.FindOne(ctx, typeName, id, Query{PublicationState: domain.PublicationPreview})
}

func (s *Service) mustRow(ctx context.Context, sch *Schema, id, locale string) (*Row, error) {
	rows, _, err := s.store.FindRows(ctx, sch, RowQuery{IDs: []string{id}, Locale: locale, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperr.NotFound("%s '%s' not found", sch.Type.SingularName, id)
	}
	return rows[0], nil
}

// checkPublishable: при включённой опции у типа с переводными полями должен
// быть перевод на язык по умолчанию (уже сохранённый или в текущем теле).
func (s *Service) checkPublishable(ctx context.Context, sch *Schema, id string, in *input) error {
	if !s.opts.RequireDefaultLocaleOnPublish || !sch.HasTranslations() {
		return nil
	}
	def, err := s.locales.DefaultLanguage(ctx)
	if err != nil {
		return err
	}
	if in != nil {
		if _, ok := in.trans[def]; ok {
			return nil
		}
	}
	if id != "" {
		row, err := s.mustRow(ctx, sch, id, def)
		if err != nil {
			return err
		}
		if row.Translation != nil {
			return nil
		}
	}
	return apperr.FieldValidation("translations", "Translation for default locale '%s' is required before publishing", def)
}

// parseInput разбирает data и translations: приводит значения, раскладывает
// переводные ключи из data в перевод языка по умолчанию.
func (s *Service) parseInput(ctx context.Context, sch *Schema, data map[string]any, translations []Translation, create bool) (*input, error) {
	in := &input{
		base:  map[string]any{},
		trans: map[string]map[string]any{},
		links: map[*RelationDesc][]string{},
	}
	var defTrans map[string]any
	for key, raw := range data {
		switch key {
		case "id", "created_at", "updated_at", "locale":
			continue
		case "status":
			str, _ := raw.(string)
			st, err := domain.ParseStatus(str)
			if err != nil {
				return nil, err
			}
			in.status = st
			continue
		case "display_order":
			n, err := (&schema.Field{Type: schema.TypeNumber}).Coerce(raw)
			if err != nil || n == nil {
				return nil, apperr.FieldValidation(key, "display_order: must be integer")
			}
			v := int(n.(int64))
			in.displayOrder = &v
			continue
		}
		f := sch.Field(key)
		if f == nil {
			return nil, apperr.FieldValidation(key, "Unknown field '%s'", key)
		}
		if f.Type == schema.TypeRelation {
			rel, _ := sch.Relation(key)
			if rel == nil {
				return nil, apperr.FieldValidation(key, "Unknown relation '%s'", key)
			}
			tids, err := relationIDs(rel, raw)
			if err != nil {
				return nil, err
			}
			in.links[rel] = tids
			continue
		}
		v, err := f.Coerce(raw)
		if err != nil {
			return nil, apperr.FieldValidation(key, "%s: %v", key, err)
		}
		if f.Translatable {
			if defTrans == nil {
				defTrans = map[string]any{}
			}
			defTrans[key] = v
			continue
		}
		in.base[key] = v
	}

	if create {
		for _, f := range sch.Base {
			if _, ok := in.base[f.Name]; !ok && f.DefaultValue != nil {
				in.base[f.Name] = f.DefaultValue
			}
		}
	}

	if defTrans != nil {
		def, err := s.locales.DefaultLanguage(ctx)
		if err != nil {
			return nil, err
		}
		in.trans[def] = defTrans
		in.order = append(in.order, def)
	}

	for _, t := range translations {
		code := t.LanguageCode
		if code == "" {
			return nil, apperr.FieldValidation("translations", "language_code: cannot be blank")
		}
		ok, err := s.locales.IsEnabled(ctx, code)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.FieldValidation("translations", "Unknown locale '%s'", code)
		}
		vals, seen := in.trans[code]
		if seen && (defTrans == nil || code != in.order[0]) {
			return nil, apperr.FieldValidation("translations", "Duplicate translation for '%s'", code)
		}
		if !seen {
			vals = map[string]any{}
			in.trans[code] = vals
			in.order = append(in.order, code)
		}
		for key, raw := range t.Data {
			f := sch.Field(key)
			if f == nil || !f.Translatable {
				return nil, apperr.FieldValidation(key, "Field '%s' is not translatable", key)
			}
			v, err := f.Coerce(raw)
			if err != nil {
				return nil, apperr.FieldValidation(key, "%s: %v", key, err)
			}
			vals[key] = v
		}
	}
	return in, nil
}

// checkRequired: первое по порядку обязательное поле без значения.
// Переводимые поля не проверяются: переводы добавляют по одной локали.
func (s *Service) checkRequired(sch *Schema, in *input) error {
	for _, f := range sch.Type.Fields {
		if !f.Required || f.Translatable {
			continue
		}
		switch {
		case f.Type == schema.TypeRelation:
			rel, ok := sch.Relation(f.Name)
			if ok && len(in.links[rel]) == 0 {
				return apperr.FieldValidation(f.Name, "Missing required field: %s", f.Name)
			}
		default:
			if in.base[f.Name] == nil {
				return apperr.FieldValidation(f.Name, "Missing required field: %s", f.Name)
			}
		}
	}
	return nil
}

func (s *Service) checkUnique(ctx context.Context, sch *Schema, base map[string]any, exceptID string) error {
	for _, f := range sch.Base {
		v, ok := base[f.Name]
		if !f.Unique || !ok || v == nil {
			continue
		}
		rows, _, err := s.store.FindRows(ctx, sch, RowQuery{
			Filters: []Filter{{Field: f.Name, Type: f.Type, Scope: ScopeBase, Op: OpEq, Values: []any{v}}},
			Limit:   2,
		})
		if err != nil {
			return err
		}
		for _, r := range rows {
			if r.ID != exceptID {
				return apperr.Conflict("Value for '%s' must be unique", f.Name)
			}
		}
	}
	return nil
}

// checkLinks: все связанные id существуют в целевом типе.
func (s *Service) checkLinks(ctx context.Context, links map[*RelationDesc][]string) error {
	for rel, tids := range links {
		if len(tids) == 0 {
			continue
		}
		target, err := s.resolver.Resolve(ctx, rel.Target)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return apperr.FieldValidation(rel.Field.Name, "Relation target '%s' does not exist", rel.Target)
			}
			return err
		}
		rows, _, err := s.store.FindRows(ctx, target, RowQuery{IDs: tids})
		if err != nil {
			return err
		}
		found := make(map[string]bool, len(rows))
		for _, r := range rows {
			found[r.ID] = true
		}
		for _, tid := range tids {
			if !found[tid] {
				return apperr.FieldValidation(rel.Field.Name, "Related %s '%s' not found", rel.Target, tid)
			}
		}
	}
	return nil
}

// relationIDs принимает id, {"id": ...}, массив того же или null.
func relationIDs(rel *RelationDesc, raw any) ([]string, error) {
	one := func(v any) (string, error) {
		switch t := v.(type) {
		case string:
			if t != "" {
				return t, nil
			}
		case map[string]any:
			if id, ok := t["id"].(string); ok && id != "" {
				return id, nil
			}
		}
		return "", apperr.FieldValidation(rel.Field.Name, "%s: must be an id", rel.Field.Name)
	}
	if raw == nil {
		return []string{}, nil
	}
	if arr, ok := raw.([]any); ok {
		if !rel.ToMany && len(arr) > 1 {
			return nil, apperr.FieldValidation(rel.Field.Name, "%s: accepts a single id", rel.Field.Name)
		}
		out := make([]string, 0, len(arr))
		seen := map[string]bool{}
		for _, v := range arr {
			id, err := one(v)
			if err != nil {
				return nil, err
			}
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
		return out, nil
	}
	if arr, ok := raw.([]string); ok {
		return relationIDs(rel, toAnySlice(arr))
	}
	id, err := one(raw)
	if err != nil {
		return nil, err
	}
	return []string{id}, nil
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

