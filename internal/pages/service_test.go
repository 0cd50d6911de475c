package pages_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"klinika/internal/apperr"
	"klinika/internal/domain"
	"klinika/internal/locale"
	"klinika/internal/memstore"
	"klinika/internal/pages"
)

func newService(t *testing.T, opts pages.Options) (*pages.Service, *memstore.Store, context.Context) {
	t.Helper()
	ctx := context.Background()
	st := memstore.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	langs := locale.NewService(st, "en", time.Minute, log)
	_, err := langs.CreateLanguage(ctx, locale.LanguageInput{Code: "en", Name: "English"})
	require.NoError(t, err)
	_, err = langs.CreateLanguage(ctx, locale.LanguageInput{Code: "pt", Name: "Português"})
	require.NoError(t, err)
	return pages.NewService(st, langs, log, opts), st, ctx
}

func createPage(t *testing.T, svc *pages.Service, ctx context.Context, title string) *pages.Page {
	t.Helper()
	p, err := svc.CreatePage(ctx, pages.PageInput{Title: title})
	require.NoError(t, err)
	return p
}

func TestCreatePageDefaults(t *testing.T) {
	svc, _, ctx := newService(t, pages.Options{})

	p := createPage(t, svc, ctx, "Implantes Dentários & Coroas")
	assert.Regexp(t, pages.SlugPattern, p.Slug)
	assert.Equal(t, domain.StatusDraft, p.Status)
	assert.Equal(t, "en", p.Locale)

	_, err := svc.CreatePage(ctx, pages.PageInput{Title: "Other", Slug: p.Slug})
	require.ErrorIs(t, err, apperr.ErrConflict)

	_, err = svc.CreatePage(ctx, pages.PageInput{Title: "Bad", Slug: "Bad Slug"})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.CreatePage(ctx, pages.PageInput{Title: ""})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.CreatePage(ctx, pages.PageInput{Title: "Sobre", Locale: "fr"})
	require.ErrorIs(t, err, apperr.ErrValidation)

	pt, err := svc.CreatePage(ctx, pages.PageInput{Title: "Sobre nós", Locale: "pt"})
	require.NoError(t, err)
	assert.Equal(t, "pt", pt.Locale)
}

func TestPageLifecycle(t *testing.T) {
	svc, _, ctx := newService(t, pages.Options{})
	p := createPage(t, svc, ctx, "Home")

	pub, err := svc.PublishPage(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPublished, pub.Status)

	list, err := svc.FindPages(ctx, pages.ListQuery{Status: domain.StatusPublished})
	require.NoError(t, err)
	require.Len(t, list.Data, 1)
	assert.Equal(t, 1, list.Meta.Pagination.Total)

	draft, err := svc.UnpublishPage(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, draft.Status)

	title := "Start"
	upd, err := svc.UpdatePage(ctx, p.ID, pages.PageUpdate{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Start", upd.Title)
	assert.Equal(t, p.Slug, upd.Slug)

	_, err = svc.FindPage(ctx, "missing", false)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = svc.PublishPage(ctx, "missing")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestAddSectionAppends(t *testing.T) {
	svc, _, ctx := newService(t, pages.Options{})
	p := createPage(t, svc, ctx, "Home")

	hero, err := svc.AddSection(ctx, pages.AddSectionInput{
		PageID: p.ID, SectionType: "sections.hero",
		SectionData: map[string]any{"title": "Smile", "ignored": true},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, hero.DisplayOrder)
	assert.NotContains(t, hero.Data, "ignored")

	faq, err := svc.AddSection(ctx, pages.AddSectionInput{
		PageID: p.ID, SectionType: "sections.faq",
		SectionData: map[string]any{"items": []any{map[string]any{"q": "Dói?", "a": "Não."}}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, faq.DisplayOrder)

	five := 5
	cta, err := svc.AddSection(ctx, pages.AddSectionInput{
		PageID: p.ID, SectionType: "sections.cta", DisplayOrder: &five,
		SectionData: map[string]any{"title": "Book now"},
	})
	require.NoError(t, err)
	assert.Equal(t, 5, cta.DisplayOrder)

	next, err := svc.AddSection(ctx, pages.AddSectionInput{
		PageID: p.ID, SectionType: "sections.contact",
	})
	require.NoError(t, err)
	assert.Equal(t, 6, next.DisplayOrder)

	taken := 2
	_, err = svc.AddSection(ctx, pages.AddSectionInput{
		PageID: p.ID, SectionType: "sections.cta", DisplayOrder: &taken,
		SectionData: map[string]any{"title": "Again"},
	})
	require.ErrorIs(t, err, apperr.ErrValidation)

	got, err := svc.FindPage(ctx, p.ID, true)
	require.NoError(t, err)
	require.Len(t, got.Sections, 4)
	assert.Equal(t, "sections.hero", got.Sections[0].SectionType)
	assert.Equal(t, "Smile", got.Sections[0].Data["title"])
	assert.Equal(t, "sections.contact", got.Sections[3].SectionType)
}

func TestAddSectionRejectsBeforeWriting(t *testing.T) {
	svc, st, ctx := newService(t, pages.Options{})
	p := createPage(t, svc, ctx, "Home")

	_, err := svc.AddSection(ctx, pages.AddSectionInput{PageID: p.ID, SectionType: "sections.bogus"})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, err.Error(), "Unknown section type: sections.bogus")

	_, err = svc.AddSection(ctx, pages.AddSectionInput{PageID: p.ID, SectionType: "sections.hero"})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Zero(t, st.ComponentCount("sections_hero"))

	_, err = svc.AddSection(ctx, pages.AddSectionInput{
		PageID: "missing", SectionType: "sections.hero", SectionData: map[string]any{"title": "x"},
	})
	require.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Zero(t, st.ComponentCount("sections_hero"))

	_, err = svc.AddSection(ctx, pages.AddSectionInput{
		PageID: p.ID, SectionType: "sections.gallery", SectionData: map[string]any{"columns": "three"},
	})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Zero(t, st.ComponentCount("sections_gallery"))
}

func TestReorderSections(t *testing.T) {
	svc, _, ctx := newService(t, pages.Options{})
	p := createPage(t, svc, ctx, "Home")
	a, err := svc.AddSection(ctx, pages.AddSectionInput{PageID: p.ID, SectionType: "sections.hero", SectionData: map[string]any{"title": "A"}})
	require.NoError(t, err)
	b, err := svc.AddSection(ctx, pages.AddSectionInput{PageID: p.ID, SectionType: "sections.cta", SectionData: map[string]any{"title": "B"}})
	require.NoError(t, err)

	secs, err := svc.ReorderSections(ctx, p.ID, []pages.SectionOrder{
		{JunctionID: a.ID, Order: 2},
		{JunctionID: b.ID, Order: 1},
	})
	require.NoError(t, err)
	require.Len(t, secs, 2)
	assert.Equal(t, b.ID, secs[0].ID)
	assert.Equal(t, a.ID, secs[1].ID)

	// совпадающие итоговые позиции отклоняются целиком
	_, err = svc.ReorderSections(ctx, p.ID, []pages.SectionOrder{{JunctionID: a.ID, Order: 1}})
	require.ErrorIs(t, err, apperr.ErrValidation)

	other := createPage(t, svc, ctx, "About")
	c, err := svc.AddSection(ctx, pages.AddSectionInput{PageID: other.ID, SectionType: "sections.faq"})
	require.NoError(t, err)
	_, err = svc.ReorderSections(ctx, p.ID, []pages.SectionOrder{
		{JunctionID: a.ID, Order: 7},
		{JunctionID: c.ID, Order: 8},
	})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.ReorderSections(ctx, p.ID, []pages.SectionOrder{
		{JunctionID: a.ID, Order: 7},
		{JunctionID: a.ID, Order: 8},
	})
	require.ErrorIs(t, err, apperr.ErrValidation)

	after, err := svc.GetPageSections(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, []int{after[0].DisplayOrder, after[1].DisplayOrder})
	assert.Equal(t, b.ID, after[0].ID)
}

func TestUpdateAndDeleteSection(t *testing.T) {
	svc, st, ctx := newService(t, pages.Options{})
	p := createPage(t, svc, ctx, "Home")
	other := createPage(t, svc, ctx, "Other")
	hero, err := svc.AddSection(ctx, pages.AddSectionInput{PageID: p.ID, SectionType: "sections.hero", SectionData: map[string]any{"title": "Old"}})
	require.NoError(t, err)

	upd, err := svc.UpdateSection(ctx, p.ID, hero.SectionID, "sections.hero", map[string]any{"title": "New", "subtitle": "Sub"})
	require.NoError(t, err)
	assert.Equal(t, "New", upd.Data["title"])
	assert.Equal(t, "Sub", upd.Data["subtitle"])
	assert.Equal(t, hero.DisplayOrder, upd.DisplayOrder)

	_, err = svc.UpdateSection(ctx, p.ID, hero.SectionID, "sections.hero", map[string]any{"title": nil})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.UpdateSection(ctx, other.ID, hero.SectionID, "sections.hero", map[string]any{"title": "X"})
	require.ErrorIs(t, err, apperr.ErrNotFound)

	err = svc.DeleteSection(ctx, other.ID, hero.SectionID, "sections.hero")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, svc.DeleteSection(ctx, p.ID, hero.SectionID, "sections.hero"))
	assert.Zero(t, st.ComponentCount("sections_hero"))
	secs, err := svc.GetPageSections(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, secs)
}

// flakyComponents: memstore, у которого удаление компонента падает по флагу.
type flakyComponents struct {
	*memstore.Store
	fail bool
}

func (f *flakyComponents) DeleteComponent(ctx context.Context, table, id string) error {
	if f.fail {
		return errors.New("connection reset")
	}
	return f.Store.DeleteComponent(ctx, table, id)
}

func TestDeleteSectionReportsComponentFailure(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	langs := locale.NewService(st, "en", time.Minute, log)
	_, err := langs.CreateLanguage(ctx, locale.LanguageInput{Code: "en", Name: "English"})
	require.NoError(t, err)
	flaky := &flakyComponents{Store: st}
	svc := pages.NewService(flaky, langs, log, pages.Options{})

	p := createPage(t, svc, ctx, "Home")
	hero, err := svc.AddSection(ctx, pages.AddSectionInput{PageID: p.ID, SectionType: "sections.hero", SectionData: map[string]any{"title": "A"}})
	require.NoError(t, err)

	flaky.fail = true
	require.Error(t, svc.DeleteSection(ctx, p.ID, hero.SectionID, "sections.hero"))
	assert.Equal(t, 1, st.ComponentCount("sections_hero"))
	secs, err := svc.GetPageSections(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, secs, 1)

	flaky.fail = false
	require.NoError(t, svc.DeleteSection(ctx, p.ID, hero.SectionID, "sections.hero"))
	assert.Zero(t, st.ComponentCount("sections_hero"))
	secs, err = svc.GetPageSections(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, secs)
}

func TestDeletePageCascadeOption(t *testing.T) {
	for _, cascade := range []bool{false, true} {
		svc, st, ctx := newService(t, pages.Options{CascadeSectionDelete: cascade})
		p := createPage(t, svc, ctx, "Home")
		_, err := svc.AddSection(ctx, pages.AddSectionInput{PageID: p.ID, SectionType: "sections.hero", SectionData: map[string]any{"title": "A"}})
		require.NoError(t, err)

		require.NoError(t, svc.DeletePage(ctx, p.ID))
		_, err = svc.FindPage(ctx, p.ID, false)
		require.ErrorIs(t, err, apperr.ErrNotFound)

		want := 1
		if cascade {
			want = 0
		}
		assert.Equal(t, want, st.ComponentCount("sections_hero"), "cascade=%v", cascade)

		err = svc.DeletePage(ctx, p.ID)
		require.ErrorIs(t, err, apperr.ErrNotFound)
	}
}

func TestSectionsSkipMissingComponents(t *testing.T) {
	svc, st, ctx := newService(t, pages.Options{})
	p := createPage(t, svc, ctx, "Home")
	hero, err := svc.AddSection(ctx, pages.AddSectionInput{PageID: p.ID, SectionType: "sections.hero", SectionData: map[string]any{"title": "A"}})
	require.NoError(t, err)
	_, err = svc.AddSection(ctx, pages.AddSectionInput{PageID: p.ID, SectionType: "sections.faq"})
	require.NoError(t, err)

	// строка компонента пропала мимо сервиса
	require.NoError(t, st.DeleteComponent(ctx, "sections_hero", hero.SectionID))

	secs, err := svc.GetPageSections(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, secs, 1)
	assert.Equal(t, "sections.faq", secs[0].SectionType)
}
