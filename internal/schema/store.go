package schema

import "context"

// Store: хранилище определений типов. Реализации: memstore и pg.
// Нет записи: apperr.NotFound. Нарушена уникальность: apperr.Conflict.
type Store interface {
	ListContentTypes(ctx context.Context) ([]*ContentType, error)
	GetContentType(ctx context.Context, id string) (*ContentType, error)
	GetContentTypeByName(ctx context.Context, name string) (*ContentType, error)
	CreateContentType(ctx context.Context, ct *ContentType) error
	UpdateContentType(ctx context.Context, ct *ContentType) error
	DeleteContentType(ctx context.Context, id string) error

	ListFields(ctx context.Context, contentTypeID string) ([]*Field, error)
	GetField(ctx context.Context, contentTypeID, fieldID string) (*Field, error)
	CreateField(ctx context.Context, f *Field) error
	UpdateField(ctx context.Context, f *Field) error
	DeleteField(ctx context.Context, contentTypeID, fieldID string) error
	// ReorderFields применяет все перестановки одной пачкой.
	ReorderFields(ctx context.Context, contentTypeID string, updates []FieldOrder) error

	// ListRelations: связи, где тип источник или цель.
	ListRelations(ctx context.Context, contentTypeID string) ([]*Relation, error)
	CreateRelation(ctx context.Context, r *Relation) error
	DeleteRelation(ctx context.Context, sourceContentTypeID, name string) error
}

// Migrator приводит физические таблицы к определению типа.
type Migrator interface {
	SyncContentType(ctx context.Context, ct *ContentType) error
	DropField(ctx context.Context, ct *ContentType, f *Field) error
	DropContentType(ctx context.Context, ct *ContentType) error
}

// RowCounter считает записи типа; нужен для запрета удаления непустого типа.
type RowCounter interface {
	CountRows(ctx context.Context, ct *ContentType) (int, error)
}

type noopMigrator struct{}

func (noopMigrator) SyncContentType(context.Context, *ContentType) error { return nil }
func (noopMigrator) DropField(context.Context, *ContentType, *Field) error {
	return nil
}
func (noopMigrator) DropContentType(context.Context, *ContentType) error { return nil }
