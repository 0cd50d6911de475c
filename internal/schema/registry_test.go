package schema_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"klinika/internal/apperr"
	"klinika/internal/memstore"
	"klinika/internal/schema"
)

// fixedRows: счётчик записей, подставляемый вместо контент-сервиса.
type fixedRows map[string]int

func (f fixedRows) CountRows(_ context.Context, ct *schema.ContentType) (int, error) {
	return f[ct.Name], nil
}

func newRegistry(t *testing.T) (*schema.Registry, context.Context) {
	t.Helper()
	st := memstore.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return schema.NewRegistry(st, schema.WithMigrator(st), schema.WithLogger(log)), context.Background()
}

func teamsInput() schema.ContentTypeInput {
	return schema.ContentTypeInput{Name: "teams", DisplayName: "Teams", SingularName: "Team member"}
}

func TestCreateContentType(t *testing.T) {
	reg, ctx := newRegistry(t)

	ct, err := reg.CreateContentType(ctx, teamsInput())
	require.NoError(t, err)
	assert.NotEmpty(t, ct.ID)
	assert.Equal(t, schema.KindCollection, ct.Kind)

	_, err = reg.CreateContentType(ctx, teamsInput())
	require.ErrorIs(t, err, apperr.ErrConflict)

	got, err := reg.GetContentTypeByName(ctx, "teams")
	require.NoError(t, err)
	assert.Equal(t, ct.ID, got.ID)
	assert.Equal(t, "Team member", got.SingularName)
}

func TestCreateContentTypeValidation(t *testing.T) {
	reg, ctx := newRegistry(t)

	cases := []struct {
		name  string
		in    schema.ContentTypeInput
		field string
	}{
		{"missing display name", schema.ContentTypeInput{Name: "teams", SingularName: "Team"}, "display_name"},
		{"missing singular name", schema.ContentTypeInput{Name: "teams", DisplayName: "Teams"}, "singular_name"},
		{"bad name", schema.ContentTypeInput{Name: "Teams-1", DisplayName: "T", SingularName: "T"}, "name"},
		{"reserved name", schema.ContentTypeInput{Name: "pages", DisplayName: "P", SingularName: "P"}, "name"},
		{"reserved prefix", schema.ContentTypeInput{Name: "sections_hero", DisplayName: "H", SingularName: "H"}, "name"},
		{"sql keyword", schema.ContentTypeInput{Name: "select", DisplayName: "S", SingularName: "S"}, "name"},
		{"bad kind", schema.ContentTypeInput{Name: "teams", DisplayName: "T", SingularName: "T", Kind: "tree"}, "kind"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := reg.CreateContentType(ctx, tc.in)
			require.ErrorIs(t, err, apperr.ErrValidation)
			var ae *apperr.Error
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tc.field, ae.Field)
		})
	}
	types, err := reg.ListContentTypes(ctx)
	require.NoError(t, err)
	assert.Empty(t, types)
}

func TestGetContentTypeMissing(t *testing.T) {
	reg, ctx := newRegistry(t)
	_, err := reg.GetContentType(ctx, "nope")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = reg.GetContentTypeByName(ctx, "nope")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestAddFieldOrdersAndGuards(t *testing.T) {
	reg, ctx := newRegistry(t)
	ct, err := reg.CreateContentType(ctx, teamsInput())
	require.NoError(t, err)

	for _, name := range []string{"full_name", "role", "bio"} {
		_, err := reg.AddField(ctx, ct.ID, schema.FieldInput{Name: name, Type: schema.TypeString})
		require.NoError(t, err)
	}
	got, err := reg.GetContentType(ctx, ct.ID)
	require.NoError(t, err)
	require.Len(t, got.Fields, 3)
	assert.Equal(t, "full_name", got.Fields[0].Name)
	assert.Equal(t, "bio", got.Fields[2].Name)
	assert.Equal(t, 3, got.FieldCount)

	_, err = reg.AddField(ctx, ct.ID, schema.FieldInput{Name: "role", Type: schema.TypeText})
	require.ErrorIs(t, err, apperr.ErrConflict)

	_, err = reg.AddField(ctx, ct.ID, schema.FieldInput{Name: "status", Type: schema.TypeString})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = reg.AddField(ctx, ct.ID, schema.FieldInput{Name: "email", Type: schema.TypeEmail, Unique: true, Translatable: true})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = reg.AddField(ctx, ct.ID, schema.FieldInput{Name: "level", Type: schema.TypeEnum})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = reg.AddField(ctx, ct.ID, schema.FieldInput{Name: "weird", Type: "geo"})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = reg.AddField(ctx, ct.ID, schema.FieldInput{Name: "code", Type: schema.TypeString, RegexPattern: "("})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = reg.AddField(ctx, ct.ID, schema.FieldInput{Name: "years", Type: schema.TypeNumber, DefaultValue: "many"})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = reg.AddField(ctx, "missing", schema.FieldInput{Name: "x", Type: schema.TypeString})
	require.ErrorIs(t, err, apperr.ErrNotFound)

	lvl, err := reg.AddField(ctx, ct.ID, schema.FieldInput{
		Name: "level", Type: schema.TypeEnum,
		Options: map[string]any{"values": []any{"junior", "senior"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"junior", "senior"}, lvl.EnumValues())
}

func TestAddRelationField(t *testing.T) {
	reg, ctx := newRegistry(t)
	doctors, err := reg.CreateContentType(ctx, schema.ContentTypeInput{Name: "doctors", DisplayName: "Doctors", SingularName: "Doctor"})
	require.NoError(t, err)
	services, err := reg.CreateContentType(ctx, schema.ContentTypeInput{Name: "services", DisplayName: "Services", SingularName: "Service"})
	require.NoError(t, err)

	_, err = reg.AddField(ctx, services.ID, schema.FieldInput{Name: "doctors", Type: schema.TypeRelation})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = reg.AddField(ctx, services.ID, schema.FieldInput{
		Name: "clinic", Type: schema.TypeRelation, Options: map[string]any{"target": "clinics"},
	})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = reg.AddField(ctx, services.ID, schema.FieldInput{
		Name: "doctors", Type: schema.TypeRelation,
		Options: map[string]any{"target": "doctors", "cardinality": "manyToMany"},
	})
	require.NoError(t, err)

	src, err := reg.GetContentType(ctx, services.ID)
	require.NoError(t, err)
	rel := src.RelationByName("doctors")
	require.NotNil(t, rel)
	assert.Equal(t, doctors.ID, rel.TargetContentTypeID)
	assert.Equal(t, schema.ManyToMany, rel.Cardinality)

	// ребро видно и со стороны цели
	dst, err := reg.GetContentType(ctx, doctors.ID)
	require.NoError(t, err)
	require.Len(t, dst.Relations, 1)
	assert.Nil(t, dst.RelationByName("doctors"))

	err = reg.DeleteContentType(ctx, doctors.ID)
	require.ErrorIs(t, err, apperr.ErrConflict)

	f := src.FieldByName("doctors")
	require.NoError(t, reg.DeleteField(ctx, services.ID, f.ID))
	src, err = reg.GetContentType(ctx, services.ID)
	require.NoError(t, err)
	assert.Empty(t, src.Relations)

	require.NoError(t, reg.DeleteContentType(ctx, doctors.ID))
}

func TestUpdateFieldRules(t *testing.T) {
	reg, ctx := newRegistry(t)
	teams, err := reg.CreateContentType(ctx, teamsInput())
	require.NoError(t, err)
	other, err := reg.CreateContentType(ctx, schema.ContentTypeInput{Name: "posts", DisplayName: "Posts", SingularName: "Post"})
	require.NoError(t, err)
	f, err := reg.AddField(ctx, teams.ID, schema.FieldInput{Name: "full_name", Type: schema.TypeString})
	require.NoError(t, err)

	label := "Full name"
	updated, err := reg.UpdateField(ctx, teams.ID, f.ID, schema.FieldUpdate{DisplayName: &label})
	require.NoError(t, err)
	assert.Equal(t, label, updated.DisplayName)

	_, err = reg.UpdateField(ctx, other.ID, f.ID, schema.FieldUpdate{DisplayName: &label})
	require.ErrorIs(t, err, apperr.ErrNotFound)

	text := schema.TypeText
	_, err = reg.UpdateField(ctx, teams.ID, f.ID, schema.FieldUpdate{Type: &text})
	require.ErrorIs(t, err, apperr.ErrValidation)

	yes := true
	_, err = reg.UpdateField(ctx, teams.ID, f.ID, schema.FieldUpdate{Translatable: &yes})
	require.ErrorIs(t, err, apperr.ErrValidation)

	err = reg.DeleteField(ctx, other.ID, f.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestReorderFields(t *testing.T) {
	reg, ctx := newRegistry(t)
	ct, err := reg.CreateContentType(ctx, teamsInput())
	require.NoError(t, err)
	a, err := reg.AddField(ctx, ct.ID, schema.FieldInput{Name: "a", Type: schema.TypeString})
	require.NoError(t, err)
	b, err := reg.AddField(ctx, ct.ID, schema.FieldInput{Name: "b", Type: schema.TypeString})
	require.NoError(t, err)

	other, err := reg.CreateContentType(ctx, schema.ContentTypeInput{Name: "posts", DisplayName: "Posts", SingularName: "Post"})
	require.NoError(t, err)
	foreign, err := reg.AddField(ctx, other.ID, schema.FieldInput{Name: "title", Type: schema.TypeString})
	require.NoError(t, err)

	err = reg.ReorderFields(ctx, ct.ID, []schema.FieldOrder{
		{FieldID: a.ID, DisplayOrder: 5},
		{FieldID: foreign.ID, DisplayOrder: 0},
	})
	require.ErrorIs(t, err, apperr.ErrValidation)
	got, err := reg.GetContentType(ctx, ct.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Fields[0].Name, "nothing written on rejection")

	err = reg.ReorderFields(ctx, ct.ID, []schema.FieldOrder{{FieldID: a.ID, DisplayOrder: 1}, {FieldID: a.ID, DisplayOrder: 2}})
	require.ErrorIs(t, err, apperr.ErrValidation)

	require.NoError(t, reg.ReorderFields(ctx, ct.ID, []schema.FieldOrder{
		{FieldID: a.ID, DisplayOrder: 2},
		{FieldID: b.ID, DisplayOrder: 1},
	}))
	got, err = reg.GetContentType(ctx, ct.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, []string{got.Fields[0].Name, got.Fields[1].Name})
}

func TestDeleteContentTypeWithRows(t *testing.T) {
	reg, ctx := newRegistry(t)
	ct, err := reg.CreateContentType(ctx, teamsInput())
	require.NoError(t, err)

	reg.SetRowCounter(fixedRows{"teams": 3})
	err = reg.DeleteContentType(ctx, ct.ID)
	require.ErrorIs(t, err, apperr.ErrConflict)
	assert.Contains(t, err.Error(), "3 entries")

	reg.SetRowCounter(fixedRows{})
	require.NoError(t, reg.DeleteContentType(ctx, ct.ID))
	_, err = reg.GetContentType(ctx, ct.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestOnChangeFires(t *testing.T) {
	reg, ctx := newRegistry(t)
	var got []string
	reg.OnChange(func(name string) { got = append(got, name) })

	ct, err := reg.CreateContentType(ctx, teamsInput())
	require.NoError(t, err)
	_, err = reg.AddField(ctx, ct.ID, schema.FieldInput{Name: "full_name", Type: schema.TypeString})
	require.NoError(t, err)
	assert.Equal(t, []string{"teams", "teams"}, got)
}

// brokenSync: миграции на memstore, SyncContentType падает по флагу.
type brokenSync struct {
	*memstore.Store
	fail bool
}

func (b *brokenSync) SyncContentType(ctx context.Context, ct *schema.ContentType) error {
	if b.fail {
		return apperr.Conflict("could not create unique index")
	}
	return b.Store.SyncContentType(ctx, ct)
}

func TestUpdateFieldRestoresOnSyncFailure(t *testing.T) {
	st := memstore.New()
	mig := &brokenSync{Store: st}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := schema.NewRegistry(st, schema.WithMigrator(mig), schema.WithLogger(log))
	ctx := context.Background()

	ct, err := reg.CreateContentType(ctx, teamsInput())
	require.NoError(t, err)
	f, err := reg.AddField(ctx, ct.ID, schema.FieldInput{Name: "email", Type: schema.TypeEmail})
	require.NoError(t, err)

	var changed []string
	reg.OnChange(func(name string) { changed = append(changed, name) })

	mig.fail = true
	unique, label := true, "E-mail"
	_, err = reg.UpdateField(ctx, ct.ID, f.ID, schema.FieldUpdate{Unique: &unique, DisplayName: &label})
	require.ErrorIs(t, err, apperr.ErrConflict)
	assert.Empty(t, changed)

	got, err := reg.GetContentType(ctx, ct.ID)
	require.NoError(t, err)
	email := got.FieldByName("email")
	require.NotNil(t, email)
	assert.False(t, email.Unique)
	assert.Equal(t, "email", email.DisplayName)

	mig.fail = false
	_, err = reg.UpdateField(ctx, ct.ID, f.ID, schema.FieldUpdate{Unique: &unique})
	require.NoError(t, err)
	got, err = reg.GetContentType(ctx, ct.ID)
	require.NoError(t, err)
	assert.True(t, got.FieldByName("email").Unique)
	assert.Equal(t, []string{"teams"}, changed)
}
