package memstore

import (
	"context"

	"klinika/internal/apperr"
	"klinika/internal/locale"
)

func (s *Store) ListLanguages(_ context.Context) ([]*locale.Language, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*locale.Language, 0, len(s.languages))
	for _, l := range s.languages {
		c := *l
		out = append(out, &c)
	}
	return out, nil
}

func (s *Store) GetLanguage(_ context.Context, code string) (*locale.Language, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.languages[code]
	if !ok {
		return nil, apperr.NotFound("Language '%s' not found", code)
	}
	c := *l
	return &c, nil
}

func (s *Store) CreateLanguage(_ context.Context, l *locale.Language) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.languages[l.Code]; ok {
		return apperr.Conflict("Language '%s' already exists", l.Code)
	}
	c := *l
	s.languages[l.Code] = &c
	return nil
}

func (s *Store) UpdateLanguage(_ context.Context, l *locale.Language) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.languages[l.Code]; !ok {
		return apperr.NotFound("Language '%s' not found", l.Code)
	}
	c := *l
	s.languages[l.Code] = &c
	return nil
}

func (s *Store) DeleteLanguage(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.languages[code]; !ok {
		return apperr.NotFound("Language '%s' not found", code)
	}
	delete(s.languages, code)
	return nil
}

func (s *Store) SetDefault(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.languages[code]; !ok {
		return apperr.NotFound("Language '%s' not found", code)
	}
	for c, l := range s.languages {
		l.IsDefault = c == code
	}
	return nil
}
