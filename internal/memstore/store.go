// Package memstore: хранилище в памяти: реестр типов, записи, страницы и языки.
// Используется в тестах и при запуске без базы.
package memstore

import (
	"maps"
	"sync"

	"klinika/internal/content"
	"klinika/internal/locale"
	"klinika/internal/pages"
	"klinika/internal/schema"
)

type table struct {
	rows  map[string]*content.Row
	trans map[string]map[string]map[string]any // id → locale → поля
}

type Store struct {
	mu sync.RWMutex

	types     map[string]*schema.ContentType // id → тип
	fields    map[string]*schema.Field       // id → поле
	relations map[string]*schema.Relation    // id → связь

	tables map[string]*table               // имя типа → записи
	links  map[string]map[string][]string // link-таблица → source → targets

	pages      map[string]*pages.Page
	junctions  map[string]*pages.Junction
	components map[string]map[string]map[string]any // таблица → id → поля

	languages map[string]*locale.Language
}

func New() *Store {
	return &Store{
		types:      make(map[string]*schema.ContentType),
		fields:     make(map[string]*schema.Field),
		relations:  make(map[string]*schema.Relation),
		tables:     make(map[string]*table),
		links:      make(map[string]map[string][]string),
		pages:      make(map[string]*pages.Page),
		junctions:  make(map[string]*pages.Junction),
		components: make(map[string]map[string]map[string]any),
		languages:  make(map[string]*locale.Language),
	}
}

var (
	_ schema.Store    = (*Store)(nil)
	_ schema.Migrator = (*Store)(nil)
	_ content.Store   = (*Store)(nil)
	_ pages.Store     = (*Store)(nil)
	_ locale.Store    = (*Store)(nil)
)

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}
