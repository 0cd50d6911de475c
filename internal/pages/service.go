package pages

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-slug"

	"klinika/internal/apperr"
	"klinika/internal/content"
	"klinika/internal/domain"
	"klinika/internal/ids"
	"klinika/internal/sections"
)

var SlugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// Locales: проверка языка страницы.
type Locales interface {
	DefaultLanguage(ctx context.Context) (string, error)
	IsEnabled(ctx context.Context, code string) (bool, error)
}

type Options struct {
	// CascadeSectionDelete: удалять строки компонентов вместе со страницей.
	CascadeSectionDelete bool
	DefaultPageSize      int
	MaxPageSize          int
}

type Service struct {
	store   Store
	locales Locales
	ids     *ids.Generator
	log     *slog.Logger
	now     func() time.Time
	opts    Options
}

func NewService(store Store, locales Locales, log *slog.Logger, opts Options) *Service {
	if log == nil {
		log = slog.Default()
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = content.DefaultPageSize
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = content.MaxPageSize
	}
	return &Service{
		store:   store,
		locales: locales,
		ids:     ids.NewGenerator(),
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
		opts:    opts,
	}
}

type PageInput struct {
	Title    string         `json:"title"`
	Slug     string         `json:"slug"`
	Status   domain.Status  `json:"status"`
	Locale   string         `json:"locale"`
	Metadata map[string]any `json:"metadata"`
}

func (in PageInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Required, validation.Length(1, 255)),
		validation.Field(&in.Slug, validation.Match(SlugPattern).Error("must match ^[a-z0-9-]+$")),
		validation.Field(&in.Status, validation.In(domain.StatusDraft, domain.StatusPublished, domain.StatusArchived)),
	)
}

// PageUpdate: частичное обновление, nil поля не трогаются.
type PageUpdate struct {
	Title    *string        `json:"title"`
	Slug     *string        `json:"slug"`
	Status   *domain.Status `json:"status"`
	Locale   *string        `json:"locale"`
	Metadata map[string]any `json:"metadata"`
}

type ListQuery struct {
	Status   domain.Status
	Locale   string
	Page     int
	PageSize int
}

type ListResult struct {
	Data []*Page      `json:"data"`
	Meta content.Meta `json:"meta"`
}

func (s *Service) FindPages(ctx context.Context, q ListQuery) (*ListResult, error) {
	if q.Status != "" {
		if _, err := domain.ParseStatus(string(q.Status)); err != nil {
			return nil, err
		}
	}
	page, size := q.Page, q.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = s.opts.DefaultPageSize
	}
	if size > s.opts.MaxPageSize {
		size = s.opts.MaxPageSize
	}
	items, total, err := s.store.ListPages(ctx, ListFilter{
		Status: q.Status,
		Locale: q.Locale,
		Limit:  size,
		Offset: (page - 1) * size,
	})
	if err != nil {
		return nil, err
	}
	pages := 0
	if total > 0 {
		pages = (total + size - 1) / size
	}
	return &ListResult{
		Data: items,
		Meta: content.Meta{Pagination: content.PageMeta{Page: page, PageSize: size, Total: total, TotalPages: pages}},
	}, nil
}

// FindPage: страница и, при populate, её секции по порядку.
func (s *Service) FindPage(ctx context.Context, id string, populate bool) (*Page, error) {
	p, err := s.store.GetPage(ctx, id)
	if err != nil {
		return nil, err
	}
	if populate {
		secs, err := s.sectionsOf(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		p.Sections = secs
	}
	return p, nil
}

func (s *Service) CreatePage(ctx context.Context, in PageInput) (*Page, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Slug == "" && in.Title != "" {
		in.Slug = slugify(in.Title)
	}
	if err := asValidation(in.Validate()); err != nil {
		return nil, err
	}
	loc, err := s.pageLocale(ctx, in.Locale)
	if err != nil {
		return nil, err
	}
	if in.Status == "" {
		in.Status = domain.StatusDraft
	}
	now := s.now()
	p := &Page{
		ID:        s.ids.New(),
		Title:     in.Title,
		Slug:      in.Slug,
		Status:    in.Status,
		Locale:    loc,
		Metadata:  in.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreatePage(ctx, p); err != nil {
		return nil, err
	}
	s.log.Info("page created", "id", p.ID, "slug", p.Slug)
	return p, nil
}

func (s *Service) UpdatePage(ctx context.Context, id string, upd PageUpdate) (*Page, error) {
	p, err := s.store.GetPage(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Title != nil {
		p.Title = strings.TrimSpace(*upd.Title)
	}
	if upd.Slug != nil {
		p.Slug = *upd.Slug
	}
	if upd.Status != nil {
		p.Status = *upd.Status
	}
	if upd.Locale != nil {
		loc, err := s.pageLocale(ctx, *upd.Locale)
		if err != nil {
			return nil, err
		}
		p.Locale = loc
	}
	if upd.Metadata != nil {
		p.Metadata = upd.Metadata
	}
	in := PageInput{Title: p.Title, Slug: p.Slug, Status: p.Status}
	if err := asValidation(in.Validate()); err != nil {
		return nil, err
	}
	if p.Slug == "" {
		return nil, apperr.FieldValidation("slug", "slug: cannot be blank")
	}
	p.UpdatedAt = s.now()
	if err := s.store.UpdatePage(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// DeletePage удаляет страницу и junction-строки; строки компонентов удаляются
// только при CascadeSectionDelete.
func (s *Service) DeletePage(ctx context.Context, id string) error {
	if _, err := s.store.GetPage(ctx, id); err != nil {
		return err
	}
	js, err := s.store.ListJunctions(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeletePage(ctx, id); err != nil {
		return err
	}
	if !s.opts.CascadeSectionDelete {
		s.log.Info("page deleted, components kept", "id", id, "sections", len(js))
		return nil
	}
	for _, j := range js {
		table := sections.Table(j.SectionType)
		if table == "" {
			continue
		}
		if err := s.store.DeleteComponent(ctx, table, j.SectionID); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			s.log.Error("delete section component", "page", id, "table", table, "id", j.SectionID, "err", err)
		}
	}
	s.log.Info("page deleted", "id", id, "sections", len(js))
	return nil
}

func (s *Service) PublishPage(ctx context.Context, id string) (*Page, error) {
	return s.setStatus(ctx, id, domain.StatusPublished)
}

func (s *Service) UnpublishPage(ctx context.Context, id string) (*Page, error) {
	return s.setStatus(ctx, id, domain.StatusDraft)
}

func (s *Service) setStatus(ctx context.Context, id string, st domain.Status) (*Page, error) {
	p, err := s.store.GetPage(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status == st {
		return p, nil
	}
	p.Status = st
	p.UpdatedAt = s.now()
	if err := s.store.UpdatePage(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetPageSections: секции страницы по display_order.
func (s *Service) GetPageSections(ctx context.Context, id string) ([]*Section, error) {
	if _, err := s.store.GetPage(ctx, id); err != nil {
		return nil, err
	}
	return s.sectionsOf(ctx, id)
}

// sectionsOf собирает секции; неизвестные типы и потерянные строки компонентов пропускаются.
func (s *Service) sectionsOf(ctx context.Context, pageID string) ([]*Section, error) {
	js, err := s.store.ListJunctions(ctx, pageID)
	if err != nil {
		return nil, err
	}
	byTable := map[string][]string{}
	for _, j := range js {
		if t := sections.Table(j.SectionType); t != "" {
			byTable[t] = append(byTable[t], j.SectionID)
		}
	}
	rows := map[string]map[string]map[string]any{}
	for table, idList := range byTable {
		got, err := s.store.GetComponents(ctx, table, idList)
		if err != nil {
			return nil, err
		}
		rows[table] = got
	}
	out := make([]*Section, 0, len(js))
	for _, j := range js {
		table := sections.Table(j.SectionType)
		if table == "" {
			s.log.Warn("unknown section type skipped", "page", pageID, "section_type", j.SectionType)
			continue
		}
		data, ok := rows[table][j.SectionID]
		if !ok {
			s.log.Warn("section component missing", "page", pageID, "table", table, "id", j.SectionID)
			continue
		}
		out = append(out, &Section{
			ID:           j.ID,
			PageID:       j.PageID,
			SectionType:  j.SectionType,
			SectionID:    j.SectionID,
			DisplayOrder: j.DisplayOrder,
			Data:         data,
		})
	}
	sort.SliceStable(out, func(i, k int) bool { return out[i].DisplayOrder < out[k].DisplayOrder })
	return out, nil
}

func (s *Service) pageLocale(ctx context.Context, raw string) (string, error) {
	if s.locales == nil {
		return raw, nil
	}
	loc := strings.TrimSpace(raw)
	if loc == "" {
		return s.locales.DefaultLanguage(ctx)
	}
	ok, err := s.locales.IsEnabled(ctx, loc)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperr.FieldValidation("locale", "Unknown locale '%s'", loc)
	}
	return loc, nil
}

// slugify строит slug из заголовка; результат приводится к ^[a-z0-9-]+$.
func slugify(title string) string {
	norm, err := slug.Normalize(title)
	if err != nil || norm == "" {
		norm = strings.ToLower(title)
	}
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(norm) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

func asValidation(err error) error {
	if err == nil {
		return nil
	}
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return apperr.Validation("%s", err.Error())
	}
	keys := make([]string, 0, len(verrs))
	for k := range verrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return apperr.FieldValidation(keys[0], "%s: %s", keys[0], verrs[keys[0]].Error())
}
