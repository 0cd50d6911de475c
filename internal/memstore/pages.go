package memstore

import (
	"context"
	"sort"

	"klinika/internal/apperr"
	"klinika/internal/pages"
)

func copyPage(p *pages.Page) *pages.Page {
	c := *p
	c.Metadata = cloneMap(p.Metadata)
	c.Sections = nil
	return &c
}

func (s *Store) ListPages(_ context.Context, f pages.ListFilter) ([]*pages.Page, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []*pages.Page
	for _, p := range s.pages {
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.Locale != "" && p.Locale != f.Locale {
			continue
		}
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	total := len(all)
	if f.Offset > 0 {
		if f.Offset >= len(all) {
			all = nil
		} else {
			all = all[f.Offset:]
		}
	}
	if f.Limit > 0 && len(all) > f.Limit {
		all = all[:f.Limit]
	}
	out := make([]*pages.Page, len(all))
	for i, p := range all {
		out[i] = copyPage(p)
	}
	return out, total, nil
}

func (s *Store) GetPage(_ context.Context, id string) (*pages.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pages[id]
	if !ok {
		return nil, apperr.NotFound("Page not found")
	}
	return copyPage(p), nil
}

func (s *Store) slugTakenLocked(slug, exceptID string) bool {
	for id, p := range s.pages {
		if id != exceptID && p.Slug == slug {
			return true
		}
	}
	return false
}

func (s *Store) CreatePage(_ context.Context, p *pages.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slugTakenLocked(p.Slug, "") {
		return apperr.Conflict("Page with slug '%s' already exists", p.Slug)
	}
	s.pages[p.ID] = copyPage(p)
	return nil
}

func (s *Store) UpdatePage(_ context.Context, p *pages.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pages[p.ID]; !ok {
		return apperr.NotFound("Page not found")
	}
	if s.slugTakenLocked(p.Slug, p.ID) {
		return apperr.Conflict("Page with slug '%s' already exists", p.Slug)
	}
	s.pages[p.ID] = copyPage(p)
	return nil
}

func (s *Store) DeletePage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pages[id]; !ok {
		return apperr.NotFound("Page not found")
	}
	delete(s.pages, id)
	for jid, j := range s.junctions {
		if j.PageID == id {
			delete(s.junctions, jid)
		}
	}
	return nil
}

func (s *Store) ListJunctions(_ context.Context, pageID string) ([]*pages.Junction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*pages.Junction
	for _, j := range s.junctions {
		if j.PageID == pageID {
			c := *j
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].DisplayOrder < out[k].DisplayOrder })
	return out, nil
}

func (s *Store) InsertJunction(_ context.Context, j *pages.Junction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pages[j.PageID]; !ok {
		return apperr.Validation("referenced record not found")
	}
	for _, ex := range s.junctions {
		if ex.PageID == j.PageID && ex.DisplayOrder == j.DisplayOrder {
			return apperr.Conflict("display_order %d is already used on this page", j.DisplayOrder)
		}
	}
	c := *j
	s.junctions[j.ID] = &c
	return nil
}

func (s *Store) DeleteJunction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.junctions[id]; !ok {
		return apperr.NotFound("Section not found")
	}
	delete(s.junctions, id)
	return nil
}

// ReorderJunctions: весь набор проверяется до записи, как отложенный
// уникальный индекс в транзакции.
func (s *Store) ReorderJunctions(_ context.Context, pageID string, orders []pages.SectionOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	final := map[string]int{}
	for id, j := range s.junctions {
		if j.PageID == pageID {
			final[id] = j.DisplayOrder
		}
	}
	for _, o := range orders {
		if _, ok := final[o.JunctionID]; !ok {
			return apperr.Validation("Section %s does not belong to page %s", o.JunctionID, pageID)
		}
		final[o.JunctionID] = o.Order
	}
	used := map[int]bool{}
	for _, ord := range final {
		if used[ord] {
			return apperr.Conflict("display_order %d is already used on this page", ord)
		}
		used[ord] = true
	}
	for _, o := range orders {
		s.junctions[o.JunctionID].DisplayOrder = o.Order
	}
	return nil
}

func (s *Store) InsertComponent(_ context.Context, table, id string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.components[table]
	if t == nil {
		t = make(map[string]map[string]any)
		s.components[table] = t
	}
	row := cloneMap(data)
	if row == nil {
		row = map[string]any{}
	}
	row["id"] = id
	t[id] = row
	return nil
}

func (s *Store) GetComponents(_ context.Context, table string, ids []string) (map[string]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]map[string]any, len(ids))
	for _, id := range ids {
		if row, ok := s.components[table][id]; ok {
			out[id] = cloneMap(row)
		}
	}
	return out, nil
}

func (s *Store) UpdateComponent(_ context.Context, table, id string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.components[table][id]
	if !ok {
		return apperr.NotFound("Section not found")
	}
	row = cloneMap(row)
	for k, v := range data {
		row[k] = v
	}
	s.components[table][id] = row
	return nil
}

func (s *Store) DeleteComponent(_ context.Context, table, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.components[table][id]; !ok {
		return apperr.NotFound("Section not found")
	}
	delete(s.components[table], id)
	return nil
}

// ComponentCount: число строк в таблице компонентов.
func (s *Store) ComponentCount(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.components[table])
}
