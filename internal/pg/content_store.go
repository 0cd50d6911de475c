package pg

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"klinika/internal/apperr"
	"klinika/internal/content"
	"klinika/internal/domain"
	"klinika/internal/schema"
)

// query собирает SQL и аргументы с нумерацией $n.
type query struct {
	sql  strings.Builder
	args []any
}

func (q *query) arg(v any) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

func (q *query) list(vs []any) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = q.arg(v)
	}
	return strings.Join(parts, ", ")
}

func column(scope content.Scope, name string) string {
	if scope == content.ScopeTranslation {
		return "t." + sqlIdent(name)
	}
	return "e." + sqlIdent(name)
}

func (q *query) filter(f content.Filter) (string, error) {
	col := column(f.Scope, f.Field)
	switch f.Op {
	case content.OpNull:
		return col + " is null", nil
	case content.OpNotNull:
		return col + " is not null", nil
	}
	vals := make([]any, len(f.Values))
	for i, v := range f.Values {
		ev, err := encodeValue(f.Type, v)
		if err != nil {
			return "", apperr.FieldValidation("filters", "Filter '%s': %v", f.Field, err)
		}
		vals[i] = ev
	}
	if len(vals) == 0 {
		return "false", nil
	}
	switch f.Op {
	case content.OpEq:
		return col + " = " + q.arg(vals[0]), nil
	case content.OpNe:
		return col + " <> " + q.arg(vals[0]), nil
	case content.OpIn:
		return col + " in (" + q.list(vals) + ")", nil
	case content.OpNotIn:
		return col + " not in (" + q.list(vals) + ")", nil
	case content.OpContains:
		return col + "::text like " + q.arg("%"+escapeLike(fmt.Sprint(vals[0]))+"%"), nil
	case content.OpContainsI:
		return col + "::text ilike " + q.arg("%"+escapeLike(fmt.Sprint(vals[0]))+"%"), nil
	case content.OpStartsWith:
		return col + "::text like " + q.arg(escapeLike(fmt.Sprint(vals[0]))+"%"), nil
	case content.OpGt:
		return col + " > " + q.arg(vals[0]), nil
	case content.OpGte:
		return col + " >= " + q.arg(vals[0]), nil
	case content.OpLt:
		return col + " < " + q.arg(vals[0]), nil
	case content.OpLte:
		return col + " <= " + q.arg(vals[0]), nil
	}
	return "", apperr.FieldValidation("filters", "Unknown operator '%s'", f.Op)
}

// from: "from <table> e left join <translations> t ... where ...".
func (q *query) from(s *content.Schema, rq content.RowQuery) error {
	fmt.Fprintf(&q.sql, " from %s e", sqlIdent(s.Table))
	if rq.Locale != "" {
		fmt.Fprintf(&q.sql, " left join %s t on t.\"entity_id\" = e.\"id\" and t.\"language_code\" = %s",
			sqlIdent(s.TranslationTable), q.arg(rq.Locale))
	}
	var where []string
	if rq.IDs != nil {
		if len(rq.IDs) == 0 {
			where = append(where, "false")
		} else {
			ids := make([]any, len(rq.IDs))
			for i, id := range rq.IDs {
				ids[i] = id
			}
			where = append(where, `e."id" in (`+q.list(ids)+`)`)
		}
	}
	if len(rq.Statuses) > 0 {
		sts := make([]any, len(rq.Statuses))
		for i, st := range rq.Statuses {
			sts[i] = string(st)
		}
		where = append(where, `e."status" in (`+q.list(sts)+`)`)
	}
	for _, f := range rq.Filters {
		if f.Scope == content.ScopeTranslation && rq.Locale == "" {
			where = append(where, "false")
			continue
		}
		cond, err := q.filter(f)
		if err != nil {
			return err
		}
		where = append(where, cond)
	}
	if len(where) > 0 {
		q.sql.WriteString(" where " + strings.Join(where, " and "))
	}
	return nil
}

func (s *Store) FindRows(ctx context.Context, sch *content.Schema, rq content.RowQuery) ([]*content.Row, int, error) {
	total, err := s.CountRows(ctx, sch, rq)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return nil, 0, nil
	}

	var q query
	cols := []string{`e."id"`, `e."status"`, `e."display_order"`, `e."created_at"`, `e."updated_at"`}
	for _, f := range sch.Base {
		cols = append(cols, "e."+sqlIdent(f.Name))
	}
	withTrans := rq.Locale != ""
	if withTrans {
		cols = append(cols, `t."entity_id" is not null`)
		for _, f := range sch.Translated {
			cols = append(cols, "t."+sqlIdent(f.Name))
		}
	}
	q.sql.WriteString("select " + strings.Join(cols, ", "))
	if err := q.from(sch, rq); err != nil {
		return nil, 0, err
	}
	if len(rq.Sort) > 0 {
		var keys []string
		for _, k := range rq.Sort {
			if k.Scope == content.ScopeTranslation && !withTrans {
				continue
			}
			dir := "asc"
			if k.Desc {
				dir = "desc"
			}
			keys = append(keys, column(k.Scope, k.Field)+" "+dir)
		}
		if len(keys) > 0 {
			q.sql.WriteString(" order by " + strings.Join(keys, ", "))
		}
	}
	if rq.Limit > 0 {
		q.sql.WriteString(" limit " + q.arg(rq.Limit))
	}
	if rq.Offset > 0 {
		q.sql.WriteString(" offset " + q.arg(rq.Offset))
	}

	rows, err := s.db.QueryContext(ctx, q.sql.String(), q.args...)
	if err != nil {
		return nil, 0, mapError("find "+sch.Name(), err)
	}
	defer rows.Close()

	var out []*content.Row
	for rows.Next() {
		r := &content.Row{Data: make(map[string]any, len(sch.Base))}
		var status string
		var order int64
		base := make([]any, len(sch.Base))
		dest := []any{&r.ID, &status, &order, &r.CreatedAt, &r.UpdatedAt}
		for i := range base {
			dest = append(dest, &base[i])
		}
		var hasTrans bool
		trans := make([]any, len(sch.Translated))
		if withTrans {
			dest = append(dest, &hasTrans)
			for i := range trans {
				dest = append(dest, &trans[i])
			}
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, 0, mapError("scan "+sch.Name(), err)
		}
		r.Status = domain.Status(status)
		r.DisplayOrder = int(order)
		for i, f := range sch.Base {
			v, err := decodeValue(f.Type, base[i])
			if err != nil {
				return nil, 0, mapError("decode "+f.Name, err)
			}
			r.Data[f.Name] = v
		}
		if hasTrans {
			r.Translation = make(map[string]any, len(sch.Translated))
			for i, f := range sch.Translated {
				v, err := decodeValue(f.Type, trans[i])
				if err != nil {
					return nil, 0, mapError("decode "+f.Name, err)
				}
				r.Translation[f.Name] = v
			}
		}
		out = append(out, r)
	}
	return out, total, mapError("find "+sch.Name(), rows.Err())
}

func (s *Store) CountRows(ctx context.Context, sch *content.Schema, rq content.RowQuery) (int, error) {
	var q query
	q.sql.WriteString("select count(*)")
	if err := q.from(sch, rq); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, q.sql.String(), q.args...).Scan(&n); err != nil {
		return 0, mapError("count "+sch.Name(), err)
	}
	return n, nil
}

// columnsFor: пары колонка/значение для известных базовых полей в стабильном порядке.
func columnsFor(fields []*schema.Field, data map[string]any) ([]string, []any, error) {
	var cols []string
	var vals []any
	for _, f := range fields {
		v, ok := data[f.Name]
		if !ok {
			continue
		}
		ev, err := encodeValue(f.Type, v)
		if err != nil {
			return nil, nil, apperr.FieldValidation(f.Name, "%s: %v", f.Name, err)
		}
		cols = append(cols, sqlIdent(f.Name))
		vals = append(vals, ev)
	}
	return cols, vals, nil
}

func (s *Store) InsertRow(ctx context.Context, sch *content.Schema, row *content.Row) error {
	cols, vals, err := columnsFor(sch.Base, row.Data)
	if err != nil {
		return err
	}
	cols = append([]string{`"id"`, `"status"`, `"display_order"`, `"created_at"`, `"updated_at"`}, cols...)
	vals = append([]any{row.ID, string(row.Status), row.DisplayOrder, row.CreatedAt, row.UpdatedAt}, vals...)
	_, err = s.db.ExecContext(ctx, fmt.Sprintf("insert into %s (%s) values (%s)",
		sqlIdent(sch.Table), strings.Join(cols, ", "), placeholders(1, len(vals))), vals...)
	return mapError("insert "+sch.Name(), err)
}

func (s *Store) UpdateRow(ctx context.Context, sch *content.Schema, id string, data map[string]any, at time.Time) error {
	cols, vals, err := columnsFor(sch.Base, data)
	if err != nil {
		return err
	}
	if v, ok := data["display_order"]; ok {
		cols = append(cols, `"display_order"`)
		vals = append(vals, v)
	}
	cols = append(cols, `"updated_at"`)
	vals = append(vals, at)
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", c, i+1)
	}
	vals = append(vals, id)
	res, err := s.db.ExecContext(ctx, fmt.Sprintf("update %s set %s where \"id\" = $%d",
		sqlIdent(sch.Table), strings.Join(sets, ", "), len(vals)), vals...)
	return expectOne(res, err, "update "+sch.Name(), apperr.NotFound("%s '%s' not found", sch.Type.SingularName, id))
}

func (s *Store) SetStatus(ctx context.Context, sch *content.Schema, id string, st domain.Status, at time.Time) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`update %s set "status" = $1, "updated_at" = $2 where "id" = $3`,
		sqlIdent(sch.Table)), string(st), at, id)
	return expectOne(res, err, "set status "+sch.Name(), apperr.NotFound("%s '%s' not found", sch.Type.SingularName, id))
}

// DeleteRow: переводы и связи уходят по ON DELETE CASCADE.
func (s *Store) DeleteRow(ctx context.Context, sch *content.Schema, id string) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`delete from %s where "id" = $1`, sqlIdent(sch.Table)), id)
	return expectOne(res, err, "delete "+sch.Name(), apperr.NotFound("%s '%s' not found", sch.Type.SingularName, id))
}

func (s *Store) UpsertTranslation(ctx context.Context, sch *content.Schema, id, locale string, data map[string]any) error {
	cols, vals, err := columnsFor(sch.Translated, data)
	if err != nil {
		return err
	}
	all := append([]string{`"entity_id"`, `"language_code"`}, cols...)
	args := append([]any{id, locale}, vals...)
	sets := []string{`"updated_at" = now()`}
	for _, c := range cols {
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(
		`insert into %s (%s) values (%s) on conflict ("entity_id", "language_code") do update set %s`,
		sqlIdent(sch.TranslationTable), strings.Join(all, ", "), placeholders(1, len(args)), strings.Join(sets, ", ")),
		args...)
	return mapError("upsert translation", err)
}

func (s *Store) DeleteTranslations(ctx context.Context, sch *content.Schema, id string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`delete from %s where "entity_id" = $1`, sqlIdent(sch.TranslationTable)), id)
	return mapError("delete translations", err)
}

// ReplaceLinks переписывает связи источника целиком, порядок: position.
func (s *Store) ReplaceLinks(ctx context.Context, _ *content.Schema, rel *content.RelationDesc, sourceID string, targetIDs []string) error {
	table := sqlIdent(rel.LinkTable)
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`delete from %s where "source_id" = $1`, table), sourceID); err != nil {
			return mapError("replace links", err)
		}
		for i, tid := range targetIDs {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(
				`insert into %s ("source_id", "target_id", "position") values ($1, $2, $3)`, table),
				sourceID, tid, i); err != nil {
				return mapError("replace links", err)
			}
		}
		return nil
	})
}

func (s *Store) FindLinks(ctx context.Context, _ *content.Schema, rel *content.RelationDesc, sourceIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(sourceIDs))
	if len(sourceIDs) == 0 {
		return out, nil
	}
	args := make([]any, len(sourceIDs))
	for i, id := range sourceIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`select "source_id", "target_id" from %s where "source_id" in (%s) order by "source_id", "position"`,
		sqlIdent(rel.LinkTable), placeholders(1, len(args))), args...)
	if err != nil {
		return nil, mapError("find links", err)
	}
	defer rows.Close()
	for rows.Next() {
		var src, dst string
		if err := rows.Scan(&src, &dst); err != nil {
			return nil, mapError("scan link", err)
		}
		out[src] = append(out[src], dst)
	}
	return out, mapError("find links", rows.Err())
}

func (s *Store) DeleteLinks(ctx context.Context, sch *content.Schema, id string) error {
	stmts := make(map[string]string)
	for _, rel := range sch.Relations {
		stmts[rel.LinkTable+"/source"] = fmt.Sprintf(`delete from %s where "source_id" = $1`, sqlIdent(rel.LinkTable))
	}
	for _, name := range sch.Incoming {
		stmts[name+"/target"] = fmt.Sprintf(`delete from %s where "target_id" = $1`, sqlIdent(name))
	}
	keys := make([]string, 0, len(stmts))
	for k := range stmts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := s.db.ExecContext(ctx, stmts[k], id); err != nil {
			return mapError("delete links", err)
		}
	}
	return nil
}
