package pages

import (
	"context"
	"time"

	"klinika/internal/domain"
)

type Page struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Slug      string         `json:"slug"`
	Status    domain.Status  `json:"status"`
	Locale    string         `json:"locale"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`

	Sections []*Section `json:"sections,omitempty"`
}

// Junction: строка page_sections: ссылка страницы на строку компонента.
type Junction struct {
	ID           string    `json:"id"`
	PageID       string    `json:"page_id"`
	SectionType  string    `json:"section_type"`
	SectionID    string    `json:"section_id"`
	DisplayOrder int       `json:"display_order"`
	CreatedAt    time.Time `json:"created_at"`
}

// Section: junction вместе с данными компонента.
type Section struct {
	ID           string         `json:"id"`
	PageID       string         `json:"page_id"`
	SectionType  string         `json:"section_type"`
	SectionID    string         `json:"section_id"`
	DisplayOrder int            `json:"display_order"`
	Data         map[string]any `json:"data"`
}

// SectionOrder: элемент тела PATCH .../sections.
type SectionOrder struct {
	JunctionID string `json:"junctionId"`
	Order      int    `json:"order"`
}

type ListFilter struct {
	Status domain.Status
	Locale string
	Limit  int
	Offset int
}

// Store: хранилище страниц, junction-строк и таблиц компонентов.
type Store interface {
	ListPages(ctx context.Context, f ListFilter) ([]*Page, int, error)
	GetPage(ctx context.Context, id string) (*Page, error)
	// CreatePage/UpdatePage: занятый slug: apperr.Conflict.
	CreatePage(ctx context.Context, p *Page) error
	UpdatePage(ctx context.Context, p *Page) error
	// DeletePage удаляет страницу вместе с её junction-строками.
	DeletePage(ctx context.Context, id string) error

	ListJunctions(ctx context.Context, pageID string) ([]*Junction, error)
	InsertJunction(ctx context.Context, j *Junction) error
	DeleteJunction(ctx context.Context, id string) error
	// ReorderJunctions применяет весь набор атомарно.
	ReorderJunctions(ctx context.Context, pageID string, orders []SectionOrder) error

	InsertComponent(ctx context.Context, table, id string, data map[string]any) error
	GetComponents(ctx context.Context, table string, ids []string) (map[string]map[string]any, error)
	UpdateComponent(ctx context.Context, table, id string, data map[string]any) error
	DeleteComponent(ctx context.Context, table, id string) error
}
