package memstore

import (
	"context"
	"slices"
	"sort"
	"time"

	"klinika/internal/apperr"
	"klinika/internal/content"
	"klinika/internal/domain"
	"klinika/internal/schema"
)

func (s *Store) tableFor(name string) *table {
	t := s.tables[name]
	if t == nil {
		t = &table{
			rows:  make(map[string]*content.Row),
			trans: make(map[string]map[string]map[string]any),
		}
		s.tables[name] = t
	}
	return t
}

func copyRow(r *content.Row) *content.Row {
	c := *r
	c.Data = cloneMap(r.Data)
	c.Translation = nil
	return &c
}

// view: все значения записи для фильтров и сортировки.
type view struct {
	row   *content.Row
	trans map[string]any
}

func (v view) get(scope content.Scope, name string) any {
	switch scope {
	case content.ScopeSystem:
		switch name {
		case "id":
			return v.row.ID
		case "status":
			return string(v.row.Status)
		case "display_order":
			return v.row.DisplayOrder
		case "created_at":
			return v.row.CreatedAt
		case "updated_at":
			return v.row.UpdatedAt
		}
		return nil
	case content.ScopeTranslation:
		if v.trans == nil {
			return nil
		}
		return v.trans[name]
	default:
		return v.row.Data[name]
	}
}

func (s *Store) selectRows(sch *content.Schema, q content.RowQuery) []view {
	t := s.tables[sch.Table]
	if t == nil {
		return nil
	}
	var idSet map[string]bool
	if q.IDs != nil {
		idSet = make(map[string]bool, len(q.IDs))
		for _, id := range q.IDs {
			idSet[id] = true
		}
	}
	out := make([]view, 0, len(t.rows))
loop:
	for id, r := range t.rows {
		if idSet != nil && !idSet[id] {
			continue
		}
		if len(q.Statuses) > 0 && !slices.Contains(q.Statuses, r.Status) {
			continue
		}
		v := view{row: r}
		if q.Locale != "" {
			v.trans = t.trans[id][q.Locale]
		}
		for _, f := range q.Filters {
			if !matches(f, v.get(f.Scope, f.Field)) {
				continue loop
			}
		}
		out = append(out, v)
	}
	sortViews(out, q.Sort)
	return out
}

func (s *Store) FindRows(_ context.Context, sch *content.Schema, q content.RowQuery) ([]*content.Row, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	views := s.selectRows(sch, q)
	total := len(views)
	if q.Offset > 0 {
		if q.Offset >= len(views) {
			views = nil
		} else {
			views = views[q.Offset:]
		}
	}
	if q.Limit > 0 && len(views) > q.Limit {
		views = views[:q.Limit]
	}
	out := make([]*content.Row, len(views))
	for i, v := range views {
		r := copyRow(v.row)
		r.Translation = cloneMap(v.trans)
		out[i] = r
	}
	return out, total, nil
}

func (s *Store) CountRows(_ context.Context, sch *content.Schema, q content.RowQuery) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.selectRows(sch, q)), nil
}

func (s *Store) InsertRow(_ context.Context, sch *content.Schema, row *content.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tableFor(sch.Table)
	if _, ok := t.rows[row.ID]; ok {
		return apperr.Conflict("Entity %s already exists", row.ID)
	}
	if err := s.checkUniqueLocked(sch, t, row.ID, row.Data); err != nil {
		return err
	}
	t.rows[row.ID] = copyRow(row)
	return nil
}

// checkUniqueLocked повторяет уникальный индекс базы для unique-полей.
func (s *Store) checkUniqueLocked(sch *content.Schema, t *table, id string, data map[string]any) error {
	for _, f := range sch.Base {
		v, ok := data[f.Name]
		if !f.Unique || !ok || v == nil {
			continue
		}
		for oid, r := range t.rows {
			if oid != id && compareValues(f.Type, r.Data[f.Name], v) == 0 && r.Data[f.Name] != nil {
				return apperr.Conflict("Value for '%s' must be unique", f.Name)
			}
		}
	}
	return nil
}

func (s *Store) UpdateRow(_ context.Context, sch *content.Schema, id string, data map[string]any, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tables[sch.Table]
	if t == nil || t.rows[id] == nil {
		return apperr.NotFound("%s '%s' not found", sch.Type.SingularName, id)
	}
	if err := s.checkUniqueLocked(sch, t, id, data); err != nil {
		return err
	}
	r := copyRow(t.rows[id])
	if r.Data == nil {
		r.Data = map[string]any{}
	}
	for k, v := range data {
		if k == "display_order" {
			if n, ok := v.(int); ok {
				r.DisplayOrder = n
			}
			continue
		}
		r.Data[k] = v
	}
	r.UpdatedAt = at
	t.rows[id] = r
	return nil
}

func (s *Store) SetStatus(_ context.Context, sch *content.Schema, id string, st domain.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tables[sch.Table]
	if t == nil || t.rows[id] == nil {
		return apperr.NotFound("%s '%s' not found", sch.Type.SingularName, id)
	}
	r := copyRow(t.rows[id])
	r.Status = st
	r.UpdatedAt = at
	t.rows[id] = r
	return nil
}

func (s *Store) DeleteRow(_ context.Context, sch *content.Schema, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tables[sch.Table]
	if t == nil || t.rows[id] == nil {
		return apperr.NotFound("%s '%s' not found", sch.Type.SingularName, id)
	}
	// как ON DELETE CASCADE у таблицы переводов
	delete(t.trans, id)
	delete(t.rows, id)
	return nil
}

func (s *Store) UpsertTranslation(_ context.Context, sch *content.Schema, id, loc string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tables[sch.Table]
	if t == nil || t.rows[id] == nil {
		return apperr.Validation("referenced record not found")
	}
	byLoc := t.trans[id]
	if byLoc == nil {
		byLoc = make(map[string]map[string]any)
		t.trans[id] = byLoc
	}
	cur := cloneMap(byLoc[loc])
	if cur == nil {
		cur = make(map[string]any, len(sch.Translated))
		for _, f := range sch.Translated {
			cur[f.Name] = nil
		}
	}
	for k, v := range data {
		cur[k] = v
	}
	byLoc[loc] = cur
	return nil
}

func (s *Store) DeleteTranslations(_ context.Context, sch *content.Schema, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.tables[sch.Table]; t != nil {
		delete(t.trans, id)
	}
	return nil
}

func (s *Store) ReplaceLinks(_ context.Context, _ *content.Schema, rel *content.RelationDesc, sourceID string, targetIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lt := s.links[rel.LinkTable]
	if lt == nil {
		lt = make(map[string][]string)
		s.links[rel.LinkTable] = lt
	}
	if len(targetIDs) == 0 {
		delete(lt, sourceID)
		return nil
	}
	lt[sourceID] = slices.Clone(targetIDs)
	return nil
}

func (s *Store) FindLinks(_ context.Context, _ *content.Schema, rel *content.RelationDesc, sourceIDs []string) (map[string][]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]string, len(sourceIDs))
	lt := s.links[rel.LinkTable]
	for _, id := range sourceIDs {
		if ts, ok := lt[id]; ok {
			out[id] = slices.Clone(ts)
		}
	}
	return out, nil
}

func (s *Store) DeleteLinks(_ context.Context, sch *content.Schema, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rel := range sch.Relations {
		delete(s.links[rel.LinkTable], id)
	}
	for _, name := range sch.Incoming {
		for src, ts := range s.links[name] {
			kept := slices.DeleteFunc(slices.Clone(ts), func(t string) bool { return t == id })
			if len(kept) == 0 {
				delete(s.links[name], src)
			} else {
				s.links[name][src] = kept
			}
		}
	}
	return nil
}

// Migrator в памяти: таблицы создаются лениво, удаление чистит данные.

func (s *Store) SyncContentType(_ context.Context, ct *schema.ContentType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tableFor(ct.Name)
	return nil
}

func (s *Store) DropField(_ context.Context, ct *schema.ContentType, f *schema.Field) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.Type == schema.TypeRelation {
		delete(s.links, content.LinkTable(ct.Name, f.Name))
		return nil
	}
	t := s.tables[ct.Name]
	if t == nil {
		return nil
	}
	for id, r := range t.rows {
		if _, ok := r.Data[f.Name]; ok {
			c := copyRow(r)
			delete(c.Data, f.Name)
			t.rows[id] = c
		}
	}
	for _, byLoc := range t.trans {
		for _, vals := range byLoc {
			delete(vals, f.Name)
		}
	}
	return nil
}

func (s *Store) DropContentType(_ context.Context, ct *schema.ContentType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, ct.Name)
	for _, f := range ct.Fields {
		if f.Type == schema.TypeRelation {
			delete(s.links, content.LinkTable(ct.Name, f.Name))
		}
	}
	return nil
}

func sortViews(vs []view, keys []content.SortKey) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(vs, func(i, j int) bool {
		for _, k := range keys {
			c := compareValues(k.Type, vs[i].get(k.Scope, k.Field), vs[j].get(k.Scope, k.Field))
			if c == 0 {
				continue
			}
			if k.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// TranslationCount: число строк перевода типа (для тестов на сироты).
func (s *Store) TranslationCount(typeName string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := s.tables[typeName]
	if t == nil {
		return 0
	}
	n := 0
	for _, byLoc := range t.trans {
		n += len(byLoc)
	}
	return n
}
