package content

import (
	"context"
	"time"

	"klinika/internal/domain"
)

// Row: запись типа вместе с переводом запрошенной локали.
type Row struct {
	ID           string
	Status       domain.Status
	DisplayOrder int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Data         map[string]any // базовые колонки
	// Translation: переводные колонки; nil, если строки перевода для локали нет.
	Translation map[string]any
}

// Store: адаптер хранилища, параметризованный Schema. Один алгоритм CRUD
// работает поверх разных таблиц, адаптер отвечает за имена таблиц и колонок.
type Store interface {
	// FindRows отдаёт страницу записей и общее число подходящих.
	FindRows(ctx context.Context, s *Schema, q RowQuery) ([]*Row, int, error)
	CountRows(ctx context.Context, s *Schema, q RowQuery) (int, error)
	InsertRow(ctx context.Context, s *Schema, row *Row) error
	// UpdateRow меняет перечисленные базовые колонки; нет записи: NotFound.
	UpdateRow(ctx context.Context, s *Schema, id string, data map[string]any, at time.Time) error
	SetStatus(ctx context.Context, s *Schema, id string, st domain.Status, at time.Time) error
	DeleteRow(ctx context.Context, s *Schema, id string) error

	// UpsertTranslation: вставка или обновление по (entity_id, language_code).
	UpsertTranslation(ctx context.Context, s *Schema, id, locale string, data map[string]any) error
	DeleteTranslations(ctx context.Context, s *Schema, id string) error

	ReplaceLinks(ctx context.Context, s *Schema, rel *RelationDesc, sourceID string, targetIDs []string) error
	// FindLinks: source_id → упорядоченные target_id.
	FindLinks(ctx context.Context, s *Schema, rel *RelationDesc, sourceIDs []string) (map[string][]string, error)
	// DeleteLinks убирает запись из всех link-таблиц, исходящих и входящих.
	DeleteLinks(ctx context.Context, s *Schema, id string) error
}
