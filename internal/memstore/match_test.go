package memstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"klinika/internal/content"
	"klinika/internal/schema"
)

func TestMatchesNullSemantics(t *testing.T) {
	eq := content.Filter{Type: schema.TypeString, Op: content.OpEq, Values: []any{"x"}}
	ne := content.Filter{Type: schema.TypeString, Op: content.OpNe, Values: []any{"x"}}
	notIn := content.Filter{Type: schema.TypeString, Op: content.OpNotIn, Values: []any{"x"}}

	assert.False(t, matches(eq, nil))
	assert.False(t, matches(ne, nil))
	assert.False(t, matches(notIn, nil))
	assert.True(t, matches(ne, "y"))
	assert.True(t, matches(content.Filter{Op: content.OpNull}, nil))
	assert.False(t, matches(content.Filter{Op: content.OpNotNull}, nil))
}

func TestMatchesOperators(t *testing.T) {
	cases := []struct {
		name string
		f    content.Filter
		got  any
		want bool
	}{
		{"int gt", content.Filter{Type: schema.TypeNumber, Op: content.OpGt, Values: []any{int64(5)}}, int64(6), true},
		{"int lte", content.Filter{Type: schema.TypeNumber, Op: content.OpLte, Values: []any{int64(5)}}, int64(6), false},
		{"decimal eq int", content.Filter{Type: schema.TypeDecimal, Op: content.OpEq, Values: []any{10.0}}, int64(10), true},
		{"in", content.Filter{Type: schema.TypeString, Op: content.OpIn, Values: []any{"a", "b"}}, "b", true},
		{"notIn", content.Filter{Type: schema.TypeString, Op: content.OpNotIn, Values: []any{"a", "b"}}, "c", true},
		{"contains is case sensitive", content.Filter{Type: schema.TypeText, Op: content.OpContains, Values: []any{"Smile"}}, "big smile", false},
		{"containsi", content.Filter{Type: schema.TypeText, Op: content.OpContainsI, Values: []any{"Smile"}}, "big smile", true},
		{"startsWith", content.Filter{Type: schema.TypeString, Op: content.OpStartsWith, Values: []any{"imp"}}, "implant", true},
		{"bool eq", content.Filter{Type: schema.TypeBoolean, Op: content.OpEq, Values: []any{true}}, false, false},
		{"date lt", content.Filter{Type: schema.TypeDate, Op: content.OpLt, Values: []any{"2026-02-01"}}, "2026-01-31", true},
		{"datetime gte", content.Filter{Type: schema.TypeDateTime, Op: content.OpGte, Values: []any{"2026-01-01T00:00:00Z"}},
			time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, matches(tc.f, tc.got))
		})
	}
}

func TestSortViewsNullsLast(t *testing.T) {
	row := func(id string, price any) view {
		return view{row: &content.Row{ID: id, Data: map[string]any{"price": price}}}
	}
	vs := []view{row("a", nil), row("b", 20.0), row("c", 10.0)}

	sortViews(vs, []content.SortKey{{Field: "price", Scope: content.ScopeBase, Type: schema.TypeDecimal}})
	assert.Equal(t, []string{"c", "b", "a"}, []string{vs[0].row.ID, vs[1].row.ID, vs[2].row.ID})

	sortViews(vs, []content.SortKey{{Field: "price", Desc: true, Scope: content.ScopeBase, Type: schema.TypeDecimal}})
	assert.Equal(t, []string{"a", "b", "c"}, []string{vs[0].row.ID, vs[1].row.ID, vs[2].row.ID})
}
