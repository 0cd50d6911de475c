package content_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"klinika/internal/apperr"
	"klinika/internal/content"
	"klinika/internal/domain"
	"klinika/internal/locale"
	"klinika/internal/memstore"
	"klinika/internal/schema"
)

type env struct {
	ctx   context.Context
	store *memstore.Store
	reg   *schema.Registry
	svc   *content.Service
	langs *locale.Service
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newEnv(t *testing.T, opts ...func(*content.Options)) *env {
	t.Helper()
	return newEnvWithStore(t, nil, opts...)
}

// newEnvWithStore позволяет подменить content.Store (для сбоев).
func newEnvWithStore(t *testing.T, wrap func(*memstore.Store) content.Store, opts ...func(*content.Options)) *env {
	t.Helper()
	ctx := context.Background()
	st := memstore.New()
	log := quietLogger()

	langs := locale.NewService(st, "en", time.Minute, log)
	_, err := langs.CreateLanguage(ctx, locale.LanguageInput{Code: "en", Name: "English", IsDefault: true})
	require.NoError(t, err)
	_, err = langs.CreateLanguage(ctx, locale.LanguageInput{Code: "pt", Name: "Portuguese"})
	require.NoError(t, err)

	reg := schema.NewRegistry(st, schema.WithMigrator(st), schema.WithLogger(log))
	res := content.NewResolver(reg, 0)
	reg.OnChange(func(string) { res.InvalidateAll() })

	o := content.DefaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	var cs content.Store = st
	if wrap != nil {
		cs = wrap(st)
	}
	svc := content.NewService(res, cs, langs, log, o)
	reg.SetRowCounter(svc)
	return &env{ctx: ctx, store: st, reg: reg, svc: svc, langs: langs}
}

func (e *env) contentType(t *testing.T, in schema.ContentTypeInput, fields ...schema.FieldInput) *schema.ContentType {
	t.Helper()
	if in.DisplayName == "" {
		in.DisplayName = in.Name
	}
	if in.SingularName == "" {
		in.SingularName = in.Name
	}
	ct, err := e.reg.CreateContentType(e.ctx, in)
	require.NoError(t, err)
	for _, f := range fields {
		_, err := e.reg.AddField(e.ctx, ct.ID, f)
		require.NoError(t, err)
	}
	return ct
}

func (e *env) treatments(t *testing.T) {
	e.contentType(t, schema.ContentTypeInput{Name: "treatments", SingularName: "Treatment"},
		schema.FieldInput{Name: "title", Type: schema.TypeString, Required: true},
		schema.FieldInput{Name: "price", Type: schema.TypeDecimal},
		schema.FieldInput{Name: "name", Type: schema.TypeString, Translatable: true},
		schema.FieldInput{Name: "summary", Type: schema.TypeText, Translatable: true},
	)
}

func preview(loc string) content.Query {
	return content.Query{Locale: loc, PublicationState: domain.PublicationPreview}
}

func TestCreateThenFindOneReturnsInput(t *testing.T) {
	e := newEnv(t)
	e.treatments(t)

	created, err := e.svc.Create(e.ctx, "treatments",
		map[string]any{"title": "Implant", "price": 1200.5},
		[]content.Translation{
			{LanguageCode: "en", Data: map[string]any{"name": "Dental implant", "summary": "Titanium"}},
			{LanguageCode: "pt", Data: map[string]any{"name": "Implante dentário"}},
		})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID())

	en, err := e.svc.FindOne(e.ctx, "treatments", created.ID(), preview("en"))
	require.NoError(t, err)
	require.NotNil(t, en)
	assert.Equal(t, "Implant", en["title"])
	assert.Equal(t, 1200.5, en["price"])
	assert.Equal(t, "Dental implant", en["name"])
	assert.Equal(t, "Titanium", en["summary"])
	assert.Equal(t, "en", en["locale"])

	pt, err := e.svc.FindOne(e.ctx, "treatments", created.ID(), preview("pt"))
	require.NoError(t, err)
	assert.Equal(t, "Implante dentário", pt["name"])
	assert.Nil(t, pt["summary"])
	assert.Equal(t, "Implant", pt["title"])
}

func TestCreateReportsFirstMissingRequiredField(t *testing.T) {
	e := newEnv(t)
	e.treatments(t)

	_, err := e.svc.Create(e.ctx, "treatments", map[string]any{"price": 10.0}, nil)
	require.ErrorIs(t, err, apperr.ErrValidation)
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "title", ae.Field)
	assert.Contains(t, ae.Message, "title")
}

func TestRequiredTranslatableFieldIsNotEnforcedPerLocale(t *testing.T) {
	e := newEnv(t)
	e.contentType(t, schema.ContentTypeInput{Name: "services"},
		schema.FieldInput{Name: "code", Type: schema.TypeString, Required: true},
		schema.FieldInput{Name: "label", Type: schema.TypeString, Required: true, Translatable: true},
		schema.FieldInput{Name: "blurb", Type: schema.TypeText, Translatable: true},
	)

	created, err := e.svc.Create(e.ctx, "services", map[string]any{"code": "IMP"},
		[]content.Translation{{LanguageCode: "pt", Data: map[string]any{"blurb": "Implantes"}}})
	require.NoError(t, err)

	got, err := e.svc.FindOne(e.ctx, "services", created.ID(), preview("pt"))
	require.NoError(t, err)
	assert.Equal(t, "Implantes", got["blurb"])
	assert.Nil(t, got["label"])

	_, err = e.svc.Create(e.ctx, "services", map[string]any{}, nil)
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCreateRejectsBadValues(t *testing.T) {
	e := newEnv(t)
	e.treatments(t)

	_, err := e.svc.Create(e.ctx, "treatments", map[string]any{"title": 42}, nil)
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = e.svc.Create(e.ctx, "treatments", map[string]any{"title": "x", "bogus": 1}, nil)
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = e.svc.Create(e.ctx, "treatments", map[string]any{"title": "x"},
		[]content.Translation{{LanguageCode: "de", Data: map[string]any{"name": "Implantat"}}})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = e.svc.Create(e.ctx, "treatments", map[string]any{"title": "x"},
		[]content.Translation{{LanguageCode: "pt", Data: map[string]any{"title": "nope"}}})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestTranslatableKeysInDataGoToDefaultLocale(t *testing.T) {
	e := newEnv(t)
	e.treatments(t)

	created, err := e.svc.Create(e.ctx, "treatments", map[string]any{"title": "Whitening", "name": "Teeth whitening"}, nil)
	require.NoError(t, err)

	en, err := e.svc.FindOne(e.ctx, "treatments", created.ID(), preview(""))
	require.NoError(t, err)
	assert.Equal(t, "Teeth whitening", en["name"])
	assert.Equal(t, "en", en["locale"])
}

func TestDeleteLeavesNoTranslations(t *testing.T) {
	e := newEnv(t)
	e.treatments(t)

	created, err := e.svc.Create(e.ctx, "treatments", map[string]any{"title": "Crown"},
		[]content.Translation{
			{LanguageCode: "en", Data: map[string]any{"name": "Crown"}},
			{LanguageCode: "pt", Data: map[string]any{"name": "Coroa"}},
		})
	require.NoError(t, err)
	require.Equal(t, 2, e.store.TranslationCount("treatments"))

	require.NoError(t, e.svc.Delete(e.ctx, "treatments", created.ID()))

	got, err := e.svc.FindOne(e.ctx, "treatments", created.ID(), preview("en"))
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 0, e.store.TranslationCount("treatments"))

	err = e.svc.Delete(e.ctx, "treatments", created.ID())
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSetStatusIsIdempotent(t *testing.T) {
	e := newEnv(t)
	e.contentType(t, schema.ContentTypeInput{Name: "posts", Draftable: true},
		schema.FieldInput{Name: "title", Type: schema.TypeString, Translatable: true},
	)
	created, err := e.svc.Create(e.ctx, "posts", map[string]any{"title": "Hello"}, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, created["status"])

	first, err := e.svc.SetStatus(e.ctx, "posts", created.ID(), domain.StatusPublished)
	require.NoError(t, err)
	second, err := e.svc.SetStatus(e.ctx, "posts", created.ID(), domain.StatusPublished)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, domain.StatusPublished, second["status"])

	// все направления разрешены
	for _, st := range []domain.Status{domain.StatusArchived, domain.StatusDraft, domain.StatusArchived, domain.StatusPublished} {
		got, err := e.svc.SetStatus(e.ctx, "posts", created.ID(), st)
		require.NoError(t, err)
		assert.Equal(t, st, got["status"])
	}

	_, err = e.svc.SetStatus(e.ctx, "posts", "missing", domain.StatusDraft)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPublishNeedsDefaultLocaleTranslation(t *testing.T) {
	e := newEnv(t)
	e.contentType(t, schema.ContentTypeInput{Name: "posts", Draftable: true},
		schema.FieldInput{Name: "title", Type: schema.TypeString, Translatable: true},
	)
	created, err := e.svc.Create(e.ctx, "posts", nil,
		[]content.Translation{{LanguageCode: "pt", Data: map[string]any{"title": "Olá"}}})
	require.NoError(t, err)

	_, err = e.svc.SetStatus(e.ctx, "posts", created.ID(), domain.StatusPublished)
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = e.svc.Update(e.ctx, "posts", created.ID(), nil,
		[]content.Translation{{LanguageCode: "en", Data: map[string]any{"title": "Hello"}}})
	require.NoError(t, err)
	_, err = e.svc.SetStatus(e.ctx, "posts", created.ID(), domain.StatusPublished)
	require.NoError(t, err)

	relaxed := newEnv(t, func(o *content.Options) { o.RequireDefaultLocaleOnPublish = false })
	relaxed.contentType(t, schema.ContentTypeInput{Name: "posts", Draftable: true},
		schema.FieldInput{Name: "title", Type: schema.TypeString, Translatable: true},
	)
	other, err := relaxed.svc.Create(relaxed.ctx, "posts", nil,
		[]content.Translation{{LanguageCode: "pt", Data: map[string]any{"title": "Olá"}}})
	require.NoError(t, err)
	_, err = relaxed.svc.SetStatus(relaxed.ctx, "posts", other.ID(), domain.StatusPublished)
	require.NoError(t, err)
}

func TestUpdateTouchesOnlyGivenLocale(t *testing.T) {
	e := newEnv(t)
	e.treatments(t)
	created, err := e.svc.Create(e.ctx, "treatments", map[string]any{"title": "Braces", "price": 900.0},
		[]content.Translation{
			{LanguageCode: "en", Data: map[string]any{"name": "Braces", "summary": "Metal"}},
			{LanguageCode: "pt", Data: map[string]any{"name": "Aparelho", "summary": "Metal"}},
		})
	require.NoError(t, err)
	before, err := e.svc.FindOne(e.ctx, "treatments", created.ID(), preview("en"))
	require.NoError(t, err)

	_, err = e.svc.Update(e.ctx, "treatments", created.ID(), map[string]any{},
		[]content.Translation{{LanguageCode: "pt", Data: map[string]any{"name": "Aparelho fixo"}}})
	require.NoError(t, err)

	en, err := e.svc.FindOne(e.ctx, "treatments", created.ID(), preview("en"))
	require.NoError(t, err)
	for _, k := range []string{"title", "price", "name", "summary", "status", "display_order"} {
		assert.Equal(t, before[k], en[k], k)
	}
	pt, err := e.svc.FindOne(e.ctx, "treatments", created.ID(), preview("pt"))
	require.NoError(t, err)
	assert.Equal(t, "Aparelho fixo", pt["name"])
	assert.Equal(t, "Metal", pt["summary"])

	_, err = e.svc.Update(e.ctx, "treatments", "missing", map[string]any{"title": "x"}, nil)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateCreatesMissingLocaleRow(t *testing.T) {
	e := newEnv(t)
	e.treatments(t)
	created, err := e.svc.Create(e.ctx, "treatments", map[string]any{"title": "Filling"}, nil)
	require.NoError(t, err)

	_, err = e.svc.Update(e.ctx, "treatments", created.ID(), nil,
		[]content.Translation{{LanguageCode: "pt", Data: map[string]any{"name": "Obturação"}}})
	require.NoError(t, err)
	assert.Equal(t, 1, e.store.TranslationCount("treatments"))
}

func TestFindPaginates(t *testing.T) {
	e := newEnv(t)
	e.treatments(t)
	for i := 1; i <= 25; i++ {
		_, err := e.svc.Create(e.ctx, "treatments", map[string]any{
			"title":         fmt.Sprintf("item-%02d", i),
			"display_order": i,
		}, nil)
		require.NoError(t, err)
	}

	res, err := e.svc.Find(e.ctx, "treatments", content.Query{Pagination: content.Pagination{Page: 2, PageSize: 10}})
	require.NoError(t, err)
	require.Len(t, res.Data, 10)
	assert.Equal(t, "item-11", res.Data[0]["title"])
	assert.Equal(t, "item-20", res.Data[9]["title"])
	assert.Equal(t, content.PageMeta{Page: 2, PageSize: 10, Total: 25, TotalPages: 3}, res.Meta.Pagination)

	last, err := e.svc.Find(e.ctx, "treatments", content.Query{Pagination: content.Pagination{Page: 3, PageSize: 10}})
	require.NoError(t, err)
	assert.Len(t, last.Data, 5)

	def, err := e.svc.Find(e.ctx, "treatments", content.Query{})
	require.NoError(t, err)
	assert.Equal(t, 1, def.Meta.Pagination.Page)
	assert.Equal(t, content.DefaultPageSize, def.Meta.Pagination.PageSize)
	assert.Len(t, def.Data, 25)

	capped, err := e.svc.Find(e.ctx, "treatments", content.Query{Pagination: content.Pagination{PageSize: 1000}})
	require.NoError(t, err)
	assert.Equal(t, content.MaxPageSize, capped.Meta.Pagination.PageSize)
}

func TestFindFiltersAndSorts(t *testing.T) {
	e := newEnv(t)
	e.treatments(t)
	seed := []struct {
		title string
		price any
		name  string
	}{
		{"Implant", 1500.0, "Dental implant"},
		{"Cleaning", 80.0, "Hygiene cleaning"},
		{"Veneer", 700.0, "Porcelain veneer"},
		{"Checkup", nil, "Routine checkup"},
	}
	for _, s := range seed {
		_, err := e.svc.Create(e.ctx, "treatments", map[string]any{"title": s.title, "price": s.price},
			[]content.Translation{{LanguageCode: "en", Data: map[string]any{"name": s.name}}})
		require.NoError(t, err)
	}
	titles := func(res *content.Result) []any {
		out := make([]any, len(res.Data))
		for i, d := range res.Data {
			out[i] = d["title"]
		}
		return out
	}

	res, err := e.svc.Find(e.ctx, "treatments", content.Query{
		Filters: []content.Condition{{Field: "price", Op: content.OpGt, Values: []string{"500"}}},
		Sort:    []content.SortKey{{Field: "price", Desc: true}},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"Implant", "Veneer"}, titles(res))

	res, err = e.svc.Find(e.ctx, "treatments", content.Query{
		Filters: []content.Condition{{Field: "name", Op: content.OpContainsI, Values: []string{"VENEER"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"Veneer"}, titles(res))

	res, err = e.svc.Find(e.ctx, "treatments", content.Query{
		Filters: []content.Condition{{Field: "title", Op: content.OpIn, Values: []string{"Cleaning,Checkup"}}},
		Sort:    []content.SortKey{{Field: "title"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"Checkup", "Cleaning"}, titles(res))

	res, err = e.svc.Find(e.ctx, "treatments", content.Query{
		Filters: []content.Condition{{Field: "price", Op: content.OpNull}},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"Checkup"}, titles(res))

	res, err = e.svc.Find(e.ctx, "treatments", content.Query{
		Filters: []content.Condition{{Field: "title", Op: content.OpStartsWith, Values: []string{"C"}}},
		Sort:    []content.SortKey{{Field: "title", Desc: true}},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"Cleaning", "Checkup"}, titles(res))

	n, err := e.svc.Count(e.ctx, "treatments", content.Query{
		Filters: []content.Condition{{Field: "price", Op: content.OpNotNull}},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestFindRejectsBadQueries(t *testing.T) {
	e := newEnv(t)
	e.treatments(t)

	_, err := e.svc.Find(e.ctx, "nope", content.Query{})
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = e.svc.Find(e.ctx, "treatments", content.Query{
		Filters: []content.Condition{{Field: "bogus", Op: content.OpEq, Values: []string{"1"}}},
	})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = e.svc.Find(e.ctx, "treatments", content.Query{
		Filters: []content.Condition{{Field: "price", Op: content.OpEq, Values: []string{"cheap"}}},
	})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = e.svc.Find(e.ctx, "treatments", content.Query{
		Filters: []content.Condition{{Field: "price", Op: content.OpContains, Values: []string{"1"}}},
	})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = e.svc.Find(e.ctx, "treatments", content.Query{Sort: []content.SortKey{{Field: "bogus"}}})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = e.svc.Find(e.ctx, "treatments", content.Query{Locale: "xx"})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = e.svc.Find(e.ctx, "treatments", content.Query{Populate: []string{"doctors"}})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestPublicationStateHidesDrafts(t *testing.T) {
	e := newEnv(t)
	e.contentType(t, schema.ContentTypeInput{Name: "posts", Draftable: true},
		schema.FieldInput{Name: "slug", Type: schema.TypeString},
	)
	draft, err := e.svc.Create(e.ctx, "posts", map[string]any{"slug": "a"}, nil)
	require.NoError(t, err)
	_, err = e.svc.Create(e.ctx, "posts", map[string]any{"slug": "b", "status": "published"}, nil)
	require.NoError(t, err)

	live, err := e.svc.Find(e.ctx, "posts", content.Query{})
	require.NoError(t, err)
	require.Len(t, live.Data, 1)
	assert.Equal(t, "b", live.Data[0]["slug"])

	all, err := e.svc.Find(e.ctx, "posts", content.Query{PublicationState: domain.PublicationPreview})
	require.NoError(t, err)
	assert.Len(t, all.Data, 2)

	hidden, err := e.svc.FindOne(e.ctx, "posts", draft.ID(), content.Query{})
	require.NoError(t, err)
	assert.Nil(t, hidden)
}

func TestFaqEndToEnd(t *testing.T) {
	e := newEnv(t)
	e.contentType(t, schema.ContentTypeInput{Name: "faq", DisplayName: "FAQ", SingularName: "Question"},
		schema.FieldInput{Name: "question", Type: schema.TypeText, Translatable: true},
		schema.FieldInput{Name: "answer", Type: schema.TypeRichText, Translatable: true},
	)
	_, err := e.svc.Create(e.ctx, "faq", map[string]any{},
		[]content.Translation{{LanguageCode: "pt", Data: map[string]any{"question": "Q?", "answer": "A."}}})
	require.NoError(t, err)

	pt, err := e.svc.Find(e.ctx, "faq", content.Query{Locale: "pt"})
	require.NoError(t, err)
	require.Len(t, pt.Data, 1)
	assert.Equal(t, "Q?", pt.Data[0]["question"])
	assert.Equal(t, "A.", pt.Data[0]["answer"])

	en, err := e.svc.Find(e.ctx, "faq", content.Query{Locale: "en"})
	require.NoError(t, err)
	require.Len(t, en.Data, 1)
	assert.Nil(t, en.Data[0]["question"])
	assert.Nil(t, en.Data[0]["answer"])
}

func TestRelationsPopulate(t *testing.T) {
	e := newEnv(t)
	e.contentType(t, schema.ContentTypeInput{Name: "doctors"},
		schema.FieldInput{Name: "full_name", Type: schema.TypeString, Required: true},
	)
	e.contentType(t, schema.ContentTypeInput{Name: "services"},
		schema.FieldInput{Name: "title", Type: schema.TypeString},
		schema.FieldInput{Name: "doctors", Type: schema.TypeRelation,
			Options: map[string]any{"target": "doctors", "cardinality": "manyToMany"}},
		schema.FieldInput{Name: "lead", Type: schema.TypeRelation,
			Options: map[string]any{"target": "doctors", "cardinality": "manyToOne"}},
	)
	ana, err := e.svc.Create(e.ctx, "doctors", map[string]any{"full_name": "Ana"}, nil)
	require.NoError(t, err)
	rui, err := e.svc.Create(e.ctx, "doctors", map[string]any{"full_name": "Rui"}, nil)
	require.NoError(t, err)

	svc, err := e.svc.Create(e.ctx, "services", map[string]any{
		"title":   "Orthodontics",
		"doctors": []any{rui.ID(), ana.ID()},
		"lead":    ana.ID(),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{rui.ID(), ana.ID()}, svc["doctors"])
	assert.Equal(t, ana.ID(), svc["lead"])

	res, err := e.svc.Find(e.ctx, "services", content.Query{Populate: []string{"doctors", "lead"}})
	require.NoError(t, err)
	require.Len(t, res.Data, 1)
	docs, ok := res.Data[0]["doctors"].([]content.Entity)
	require.True(t, ok)
	require.Len(t, docs, 2)
	assert.Equal(t, "Rui", docs[0]["full_name"])
	assert.Equal(t, "Ana", docs[1]["full_name"])
	lead, ok := res.Data[0]["lead"].(content.Entity)
	require.True(t, ok)
	assert.Equal(t, "Ana", lead["full_name"])

	_, err = e.svc.Create(e.ctx, "services", map[string]any{"doctors": []any{"missing"}}, nil)
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = e.svc.Create(e.ctx, "services", map[string]any{"lead": []any{ana.ID(), rui.ID()}}, nil)
	require.ErrorIs(t, err, apperr.ErrValidation)

	require.NoError(t, e.svc.Delete(e.ctx, "doctors", rui.ID()))
	after, err := e.svc.FindOne(e.ctx, "services", svc.ID(), content.Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{ana.ID()}, after["doctors"])
}

func TestSingleTypeHoldsOneEntry(t *testing.T) {
	e := newEnv(t)
	e.contentType(t, schema.ContentTypeInput{Name: "clinic_info", Kind: schema.KindSingle},
		schema.FieldInput{Name: "phone", Type: schema.TypeString},
	)
	_, err := e.svc.Create(e.ctx, "clinic_info", map[string]any{"phone": "+351 000"}, nil)
	require.NoError(t, err)
	_, err = e.svc.Create(e.ctx, "clinic_info", map[string]any{"phone": "+351 111"}, nil)
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestUniqueFieldConflict(t *testing.T) {
	e := newEnv(t)
	e.contentType(t, schema.ContentTypeInput{Name: "doctors"},
		schema.FieldInput{Name: "email", Type: schema.TypeEmail, Unique: true},
	)
	first, err := e.svc.Create(e.ctx, "doctors", map[string]any{"email": "ana@clinic.pt"}, nil)
	require.NoError(t, err)
	_, err = e.svc.Create(e.ctx, "doctors", map[string]any{"email": "ana@clinic.pt"}, nil)
	require.ErrorIs(t, err, apperr.ErrConflict)

	// своя же запись конфликтом не считается
	_, err = e.svc.Update(e.ctx, "doctors", first.ID(), map[string]any{"email": "ana@clinic.pt"}, nil)
	require.NoError(t, err)
}

// failingStore ломает запись переводов, чтобы проверить компенсацию.
type failingStore struct {
	*memstore.Store
}

func (failingStore) UpsertTranslation(context.Context, *content.Schema, string, string, map[string]any) error {
	return apperr.Internal("upsert translation", errors.New("disk full"))
}

func TestCreateCompensatesWhenTranslationsFail(t *testing.T) {
	e := newEnvWithStore(t, func(st *memstore.Store) content.Store { return failingStore{st} })
	e.treatments(t)

	_, err := e.svc.Create(e.ctx, "treatments", map[string]any{"title": "Implant"},
		[]content.Translation{{LanguageCode: "pt", Data: map[string]any{"name": "Implante"}}})
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))

	n, err := e.svc.Count(e.ctx, "treatments", preview(""))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSchemaChangesAreVisibleImmediately(t *testing.T) {
	e := newEnv(t)
	ct := e.contentType(t, schema.ContentTypeInput{Name: "offers"},
		schema.FieldInput{Name: "title", Type: schema.TypeString},
	)
	_, err := e.svc.Find(e.ctx, "offers", content.Query{})
	require.NoError(t, err)

	_, err = e.reg.AddField(e.ctx, ct.ID, schema.FieldInput{Name: "discount", Type: schema.TypeNumber})
	require.NoError(t, err)

	created, err := e.svc.Create(e.ctx, "offers", map[string]any{"title": "Spring", "discount": 15}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(15), created["discount"])
}

// racingSource отдаёт снимок типа, а затем коммитит новое поле,
// пока резолвер ещё не записал снимок в кэш.
type racingSource struct {
	e     *env
	ctID  string
	fired bool
	t     *testing.T
}

func (s *racingSource) GetContentTypeByName(ctx context.Context, name string) (*schema.ContentType, error) {
	ct, err := s.e.reg.GetContentTypeByName(ctx, name)
	if err != nil || s.fired {
		return ct, err
	}
	s.fired = true
	_, err = s.e.reg.AddField(ctx, s.ctID, schema.FieldInput{Name: "answer", Type: schema.TypeText})
	require.NoError(s.t, err)
	return ct, nil
}

func TestResolverDropsSchemaLoadedDuringChange(t *testing.T) {
	e := newEnv(t)
	ct := e.contentType(t, schema.ContentTypeInput{Name: "faq"},
		schema.FieldInput{Name: "question", Type: schema.TypeString},
	)
	src := &racingSource{e: e, ctID: ct.ID, t: t}
	res := content.NewResolver(src, 0)
	e.reg.OnChange(func(string) { res.InvalidateAll() })

	old, err := res.Resolve(e.ctx, "faq")
	require.NoError(t, err)
	assert.Nil(t, old.Field("answer"))

	fresh, err := res.Resolve(e.ctx, "faq")
	require.NoError(t, err)
	assert.NotNil(t, fresh.Field("answer"))
}
