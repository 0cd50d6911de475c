package memstore

import (
	"context"
	"sort"

	"klinika/internal/apperr"
	"klinika/internal/schema"
)

func copyType(ct *schema.ContentType) *schema.ContentType {
	c := *ct
	c.Settings = cloneMap(ct.Settings)
	c.Fields = nil
	c.Relations = nil
	return &c
}

func copyField(f *schema.Field) *schema.Field {
	c := *f
	c.Options = cloneMap(f.Options)
	return &c
}

func (s *Store) fieldCount(typeID string) int {
	n := 0
	for _, f := range s.fields {
		if f.ContentTypeID == typeID {
			n++
		}
	}
	return n
}

func (s *Store) ListContentTypes(_ context.Context) ([]*schema.ContentType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*schema.ContentType, 0, len(s.types))
	for _, ct := range s.types {
		c := copyType(ct)
		c.FieldCount = s.fieldCount(ct.ID)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetContentType(_ context.Context, id string) (*schema.ContentType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ct, ok := s.types[id]
	if !ok {
		return nil, apperr.NotFound("Content type not found")
	}
	c := copyType(ct)
	c.FieldCount = s.fieldCount(id)
	return c, nil
}

func (s *Store) GetContentTypeByName(_ context.Context, name string) (*schema.ContentType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ct := range s.types {
		if ct.Name == name {
			c := copyType(ct)
			c.FieldCount = s.fieldCount(ct.ID)
			return c, nil
		}
	}
	return nil, apperr.NotFound("Content type '%s' not found", name)
}

func (s *Store) CreateContentType(_ context.Context, ct *schema.ContentType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range s.types {
		if ex.Name == ct.Name {
			return apperr.Conflict("Content type '%s' already exists", ct.Name)
		}
	}
	s.types[ct.ID] = copyType(ct)
	return nil
}

func (s *Store) UpdateContentType(_ context.Context, ct *schema.ContentType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.types[ct.ID]; !ok {
		return apperr.NotFound("Content type not found")
	}
	s.types[ct.ID] = copyType(ct)
	return nil
}

// DeleteContentType удаляет тип, его поля и исходящие связи.
func (s *Store) DeleteContentType(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.types[id]; !ok {
		return apperr.NotFound("Content type not found")
	}
	delete(s.types, id)
	for fid, f := range s.fields {
		if f.ContentTypeID == id {
			delete(s.fields, fid)
		}
	}
	for rid, r := range s.relations {
		if r.SourceContentTypeID == id {
			delete(s.relations, rid)
		}
	}
	return nil
}

func (s *Store) ListFields(_ context.Context, contentTypeID string) ([]*schema.Field, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*schema.Field
	for _, f := range s.fields {
		if f.ContentTypeID == contentTypeID {
			out = append(out, copyField(f))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetField ищет поле только внутри своего типа.
func (s *Store) GetField(_ context.Context, contentTypeID, fieldID string) (*schema.Field, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.fields[fieldID]
	if !ok || f.ContentTypeID != contentTypeID {
		return nil, apperr.NotFound("Field not found")
	}
	return copyField(f), nil
}

func (s *Store) CreateField(_ context.Context, f *schema.Field) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.types[f.ContentTypeID]; !ok {
		return apperr.NotFound("Content type not found")
	}
	for _, ex := range s.fields {
		if ex.ContentTypeID == f.ContentTypeID && ex.Name == f.Name {
			return apperr.Conflict("Field '%s' already exists", f.Name)
		}
	}
	s.fields[f.ID] = copyField(f)
	return nil
}

func (s *Store) UpdateField(_ context.Context, f *schema.Field) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ex, ok := s.fields[f.ID]
	if !ok || ex.ContentTypeID != f.ContentTypeID {
		return apperr.NotFound("Field not found")
	}
	s.fields[f.ID] = copyField(f)
	return nil
}

func (s *Store) DeleteField(_ context.Context, contentTypeID, fieldID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.fields[fieldID]
	if !ok || f.ContentTypeID != contentTypeID {
		return apperr.NotFound("Field not found")
	}
	delete(s.fields, fieldID)
	return nil
}

// ReorderFields: сначала проверка всех id, потом запись под одной блокировкой.
func (s *Store) ReorderFields(_ context.Context, contentTypeID string, updates []schema.FieldOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range updates {
		f, ok := s.fields[u.FieldID]
		if !ok || f.ContentTypeID != contentTypeID {
			return apperr.NotFound("Field %s not found", u.FieldID)
		}
	}
	for _, u := range updates {
		s.fields[u.FieldID].DisplayOrder = u.DisplayOrder
	}
	return nil
}

func (s *Store) ListRelations(_ context.Context, contentTypeID string) ([]*schema.Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*schema.Relation
	for _, r := range s.relations {
		if r.SourceContentTypeID == contentTypeID || r.TargetContentTypeID == contentTypeID {
			c := *r
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateRelation(_ context.Context, r *schema.Relation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range s.relations {
		if ex.SourceContentTypeID == r.SourceContentTypeID && ex.Name == r.Name {
			return apperr.Conflict("Relation '%s' already exists", r.Name)
		}
	}
	c := *r
	s.relations[r.ID] = &c
	return nil
}

func (s *Store) DeleteRelation(_ context.Context, sourceContentTypeID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.relations {
		if r.SourceContentTypeID == sourceContentTypeID && r.Name == name {
			delete(s.relations, id)
			return nil
		}
	}
	return apperr.NotFound("Relation '%s' not found", name)
}
