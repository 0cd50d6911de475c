package pg_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"klinika/internal/apperr"
	"klinika/internal/content"
	"klinika/internal/domain"
	"klinika/internal/locale"
	"klinika/internal/pages"
	"klinika/internal/pg"
	"klinika/internal/schema"
)

type pgEnv struct {
	ctx   context.Context
	store *pg.Store
	reg   *schema.Registry
	svc   *content.Service
	pages *pages.Service
}

// startPostgres поднимает одноразовый Postgres в контейнере.
func startPostgres(t *testing.T) *pgEnv {
	t.Helper()
	if testing.Short() {
		t.Skip("integration: needs docker")
	}
	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("klinika"),
		postgres.WithUsername("klinika"),
		postgres.WithPassword("klinika"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	db, err := pg.Open(ctx, url, pg.DefaultPool())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := pg.New(db, log)
	require.NoError(t, st.Migrate(ctx))
	// повторная миграция ничего не ломает
	require.NoError(t, st.Migrate(ctx))

	langs := locale.NewService(st, "en", time.Minute, log)
	_, err = langs.CreateLanguage(ctx, locale.LanguageInput{Code: "en", Name: "English"})
	require.NoError(t, err)
	_, err = langs.CreateLanguage(ctx, locale.LanguageInput{Code: "pt", Name: "Português"})
	require.NoError(t, err)

	reg := schema.NewRegistry(st, schema.WithMigrator(st), schema.WithLogger(log))
	res := content.NewResolver(reg, 0)
	reg.OnChange(func(string) { res.InvalidateAll() })
	svc := content.NewService(res, st, langs, log, content.DefaultOptions())
	reg.SetRowCounter(svc)

	return &pgEnv{
		ctx:   ctx,
		store: st,
		reg:   reg,
		svc:   svc,
		pages: pages.NewService(st, langs, log, pages.Options{CascadeSectionDelete: true}),
	}
}

func (e *pgEnv) contentType(t *testing.T, name string, fields ...schema.FieldInput) *schema.ContentType {
	t.Helper()
	ct, err := e.reg.CreateContentType(e.ctx, schema.ContentTypeInput{Name: name, DisplayName: name, SingularName: name})
	require.NoError(t, err)
	for _, f := range fields {
		_, err := e.reg.AddField(e.ctx, ct.ID, f)
		require.NoError(t, err)
	}
	return ct
}

func TestPostgresContentLifecycle(t *testing.T) {
	e := startPostgres(t)

	e.contentType(t, "doctors",
		schema.FieldInput{Name: "full_name", Type: schema.TypeString, Required: true, Unique: true},
		schema.FieldInput{Name: "bio", Type: schema.TypeText, Translatable: true},
	)
	e.contentType(t, "treatments",
		schema.FieldInput{Name: "title", Type: schema.TypeString, Required: true},
		schema.FieldInput{Name: "price", Type: schema.TypeDecimal},
		schema.FieldInput{Name: "sessions", Type: schema.TypeNumber},
		schema.FieldInput{Name: "gallery", Type: schema.TypeJSON},
		schema.FieldInput{Name: "name", Type: schema.TypeString, Translatable: true},
		schema.FieldInput{Name: "doctors", Type: schema.TypeRelation,
			Options: map[string]any{"target": "doctors", "cardinality": "manyToMany"}},
	)

	ana, err := e.svc.Create(e.ctx, "doctors", map[string]any{"full_name": "Ana"},
		[]content.Translation{{LanguageCode: "pt", Data: map[string]any{"bio": "Ortodontista"}}})
	require.NoError(t, err)
	_, err = e.svc.Create(e.ctx, "doctors", map[string]any{"full_name": "Ana"}, nil)
	require.ErrorIs(t, err, apperr.ErrConflict)

	implant, err := e.svc.Create(e.ctx, "treatments", map[string]any{
		"title": "Implant", "price": 1200.5, "sessions": 3,
		"gallery": []any{"a.jpg"}, "doctors": []any{ana.ID()},
	}, []content.Translation{
		{LanguageCode: "en", Data: map[string]any{"name": "Dental implant"}},
		{LanguageCode: "pt", Data: map[string]any{"name": "Implante"}},
	})
	require.NoError(t, err)
	_, err = e.svc.Create(e.ctx, "treatments", map[string]any{"title": "Cleaning", "price": 40.0, "sessions": 1}, nil)
	require.NoError(t, err)

	got, err := e.svc.FindOne(e.ctx, "treatments", implant.ID(), content.Query{
		Locale: "pt", PublicationState: domain.PublicationPreview, Populate: []string{"doctors"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Implante", got["name"])
	assert.Equal(t, 1200.5, got["price"])
	assert.Equal(t, int64(3), got["sessions"])
	assert.Equal(t, []any{"a.jpg"}, got["gallery"])
	docs, ok := got["doctors"].([]content.Entity)
	require.True(t, ok)
	require.Len(t, docs, 1)
	assert.Equal(t, "Ortodontista", docs[0]["bio"])

	res, err := e.svc.Find(e.ctx, "treatments", content.Query{
		PublicationState: domain.PublicationPreview,
		Filters:          []content.Condition{{Field: "price", Op: content.OpLt, Values: []string{"100"}}},
	})
	require.NoError(t, err)
	require.Len(t, res.Data, 1)
	assert.Equal(t, "Cleaning", res.Data[0]["title"])

	res, err = e.svc.Find(e.ctx, "treatments", content.Query{
		PublicationState: domain.PublicationPreview,
		Filters:          []content.Condition{{Field: "name", Op: content.OpContainsI, Values: []string{"IMPLANT"}}},
	})
	require.NoError(t, err)
	require.Len(t, res.Data, 1)

	n, err := e.svc.Count(e.ctx, "treatments", content.Query{PublicationState: domain.PublicationPreview})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, e.svc.Delete(e.ctx, "doctors", ana.ID()))
	after, err := e.svc.FindOne(e.ctx, "treatments", implant.ID(), content.Query{PublicationState: domain.PublicationPreview})
	require.NoError(t, err)
	assert.Empty(t, after["doctors"])
}

func TestPostgresSchemaChanges(t *testing.T) {
	e := startPostgres(t)
	ct := e.contentType(t, "faqs", schema.FieldInput{Name: "question", Type: schema.TypeString})

	_, err := e.svc.Create(e.ctx, "faqs", map[string]any{"question": "Dói?"}, nil)
	require.NoError(t, err)

	f, err := e.reg.AddField(e.ctx, ct.ID, schema.FieldInput{Name: "answer", Type: schema.TypeText})
	require.NoError(t, err)
	_, err = e.svc.Create(e.ctx, "faqs", map[string]any{"question": "Quanto custa?", "answer": "Depende."}, nil)
	require.NoError(t, err)

	require.NoError(t, e.reg.DeleteField(e.ctx, ct.ID, f.ID))
	res, err := e.svc.Find(e.ctx, "faqs", content.Query{PublicationState: domain.PublicationPreview})
	require.NoError(t, err)
	require.Len(t, res.Data, 2)
	assert.NotContains(t, res.Data[0], "answer")

	err = e.reg.DeleteContentType(e.ctx, ct.ID)
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestPostgresPageSections(t *testing.T) {
	e := startPostgres(t)

	p, err := e.pages.CreatePage(e.ctx, pages.PageInput{Title: "Início"})
	require.NoError(t, err)
	_, err = e.pages.CreatePage(e.ctx, pages.PageInput{Title: "Again", Slug: p.Slug})
	require.ErrorIs(t, err, apperr.ErrConflict)

	hero, err := e.pages.AddSection(e.ctx, pages.AddSectionInput{
		PageID: p.ID, SectionType: "sections.hero",
		SectionData: map[string]any{"title": "Sorria", "image": map[string]any{"url": "/u/h.jpg"}},
	})
	require.NoError(t, err)
	cta, err := e.pages.AddSection(e.ctx, pages.AddSectionInput{
		PageID: p.ID, SectionType: "sections.cta",
		SectionData: map[string]any{"title": "Marque já"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, cta.DisplayOrder)

	// обмен местами проходит только при отложенной проверке уникальности
	out, err := e.pages.ReorderSections(e.ctx, p.ID, []pages.SectionOrder{
		{JunctionID: hero.ID, Order: 2},
		{JunctionID: cta.ID, Order: 1},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "sections.cta", out[0].SectionType)
	assert.Equal(t, map[string]any{"url": "/u/h.jpg"}, out[1].Data["image"])

	full, err := e.pages.FindPage(e.ctx, p.ID, true)
	require.NoError(t, err)
	require.Len(t, full.Sections, 2)
	assert.Equal(t, "Sorria", full.Sections[1].Data["title"])

	require.NoError(t, e.pages.DeletePage(e.ctx, p.ID))
	comps, err := e.store.GetComponents(e.ctx, "sections_hero", []string{hero.SectionID})
	require.NoError(t, err)
	assert.Empty(t, comps)
}

func TestPostgresLanguages(t *testing.T) {
	e := startPostgres(t)

	ls, err := e.store.ListLanguages(e.ctx)
	require.NoError(t, err)
	require.Len(t, ls, 2)
	assert.True(t, ls[0].IsDefault)

	require.NoError(t, e.store.SetDefault(e.ctx, "pt"))
	pt, err := e.store.GetLanguage(e.ctx, "pt")
	require.NoError(t, err)
	assert.True(t, pt.IsDefault)
	en, err := e.store.GetLanguage(e.ctx, "en")
	require.NoError(t, err)
	assert.False(t, en.IsDefault)

	_, err = e.store.GetLanguage(e.ctx, "fr")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}
