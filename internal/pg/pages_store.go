package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"klinika/internal/apperr"
	"klinika/internal/domain"
	"klinika/internal/pages"
	"klinika/internal/sections"
)

const pageColumns = `"id", "title", "slug", "status", "locale", "metadata", "created_at", "updated_at"`

func scanPage(row scanner) (*pages.Page, error) {
	var p pages.Page
	var status string
	var meta []byte
	if err := row.Scan(&p.ID, &p.Title, &p.Slug, &status, &p.Locale, &meta, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Status = domain.Status(status)
	if err := scanJSON(meta, &p.Metadata); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListPages(ctx context.Context, f pages.ListFilter) ([]*pages.Page, int, error) {
	var q query
	var where []string
	if f.Status != "" {
		where = append(where, `"status" = `+q.arg(string(f.Status)))
	}
	if f.Locale != "" {
		where = append(where, `"locale" = `+q.arg(f.Locale))
	}
	cond := ""
	if len(where) > 0 {
		cond = " where " + strings.Join(where, " and ")
	}
	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from "pages"`+cond, q.args...).Scan(&total); err != nil {
		return nil, 0, mapError("count pages", err)
	}
	sqlText := `select ` + pageColumns + ` from "pages"` + cond + ` order by "created_at", "id"`
	if f.Limit > 0 {
		sqlText += " limit " + q.arg(f.Limit)
	}
	if f.Offset > 0 {
		sqlText += " offset " + q.arg(f.Offset)
	}
	rows, err := s.db.QueryContext(ctx, sqlText, q.args...)
	if err != nil {
		return nil, 0, mapError("list pages", err)
	}
	defer rows.Close()
	var out []*pages.Page
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, 0, mapError("scan page", err)
		}
		out = append(out, p)
	}
	return out, total, mapError("list pages", rows.Err())
}

func (s *Store) GetPage(ctx context.Context, id string) (*pages.Page, error) {
	p, err := scanPage(s.db.QueryRowContext(ctx, `select `+pageColumns+` from "pages" where "id" = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("Page not found")
	}
	return p, mapError("get page", err)
}

func slugConflict(p *pages.Page, err error, op string) error {
	if err != nil && apperr.KindOf(mapError("", err)) == apperr.KindConflict {
		return apperr.Conflict("Page with slug '%s' already exists", p.Slug)
	}
	return mapError(op, err)
}

func (s *Store) CreatePage(ctx context.Context, p *pages.Page) error {
	meta, err := jsonArg(p.Metadata)
	if err != nil {
		return apperr.FieldValidation("metadata", "metadata: %v", err)
	}
	_, err = s.db.ExecContext(ctx, `insert into "pages" (`+pageColumns+`) values ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.Title, p.Slug, string(p.Status), p.Locale, meta, p.CreatedAt, p.UpdatedAt)
	return slugConflict(p, err, "create page")
}

func (s *Store) UpdatePage(ctx context.Context, p *pages.Page) error {
	meta, err := jsonArg(p.Metadata)
	if err != nil {
		return apperr.FieldValidation("metadata", "metadata: %v", err)
	}
	res, err := s.db.ExecContext(ctx, `update "pages" set "title" = $2, "slug" = $3, "status" = $4,
  "locale" = $5, "metadata" = $6, "updated_at" = $7 where "id" = $1`,
		p.ID, p.Title, p.Slug, string(p.Status), p.Locale, meta, p.UpdatedAt)
	if err != nil {
		return slugConflict(p, err, "update page")
	}
	return expectOne(res, nil, "update page", apperr.NotFound("Page not found"))
}

// DeletePage: junction-строки уходят каскадом.
func (s *Store) DeletePage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from "pages" where "id" = $1`, id)
	return expectOne(res, err, "delete page", apperr.NotFound("Page not found"))
}

func (s *Store) ListJunctions(ctx context.Context, pageID string) ([]*pages.Junction, error) {
	rows, err := s.db.QueryContext(ctx, `select "id", "page_id", "section_type", "section_id", "display_order", "created_at"
  from "page_sections" where "page_id" = $1 order by "display_order"`, pageID)
	if err != nil {
		return nil, mapError("list sections", err)
	}
	defer rows.Close()
	var out []*pages.Junction
	for rows.Next() {
		var j pages.Junction
		if err := rows.Scan(&j.ID, &j.PageID, &j.SectionType, &j.SectionID, &j.DisplayOrder, &j.CreatedAt); err != nil {
			return nil, mapError("scan section", err)
		}
		out = append(out, &j)
	}
	return out, mapError("list sections", rows.Err())
}

func (s *Store) InsertJunction(ctx context.Context, j *pages.Junction) error {
	// отложенный unique проверяется на коммите, поэтому отдельная транзакция
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `insert into "page_sections"
  ("id", "page_id", "section_type", "section_id", "display_order", "created_at") values ($1, $2, $3, $4, $5, $6)`,
			j.ID, j.PageID, j.SectionType, j.SectionID, j.DisplayOrder, j.CreatedAt)
		return mapError("insert section", err)
	})
	if apperr.KindOf(err) == apperr.KindConflict {
		return apperr.Conflict("display_order %d is already used on this page", j.DisplayOrder)
	}
	return err
}

func (s *Store) DeleteJunction(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from "page_sections" where "id" = $1`, id)
	return expectOne(res, err, "delete section", apperr.NotFound("Section not found"))
}

// ReorderJunctions: одна транзакция; уникальность порядка проверяется на коммите.
func (s *Store) ReorderJunctions(ctx context.Context, pageID string, orders []pages.SectionOrder) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, o := range orders {
			res, err := tx.ExecContext(ctx, `update "page_sections" set "display_order" = $3 where "id" = $1 and "page_id" = $2`,
				o.JunctionID, pageID, o.Order)
			if err := expectOne(res, err, "reorder sections",
				apperr.Validation("Section %s does not belong to page %s", o.JunctionID, pageID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil && apperr.KindOf(err) == apperr.KindConflict {
		return apperr.Conflict("Section order collides with another section on this page")
	}
	return err
}

func componentTable(table string) (*sections.Type, error) {
	st, ok := sections.ByTable(table)
	if !ok {
		return nil, apperr.Validation("Unknown section table: %s", table)
	}
	return st, nil
}

func (s *Store) InsertComponent(ctx context.Context, table, id string, data map[string]any) error {
	st, err := componentTable(table)
	if err != nil {
		return err
	}
	cols, vals, err := columnsFor(st.Fields, data)
	if err != nil {
		return err
	}
	cols = append([]string{`"id"`}, cols...)
	vals = append([]any{id}, vals...)
	_, err = s.db.ExecContext(ctx, fmt.Sprintf("insert into %s (%s) values (%s)",
		sqlIdent(st.Table), strings.Join(cols, ", "), placeholders(1, len(vals))), vals...)
	return mapError("insert section component", err)
}

func (s *Store) GetComponents(ctx context.Context, table string, ids []string) (map[string]map[string]any, error) {
	st, err := componentTable(table)
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]any, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cols := []string{`"id"`}
	for _, f := range st.Fields {
		cols = append(cols, sqlIdent(f.Name))
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("select %s from %s where \"id\" in (%s)",
		strings.Join(cols, ", "), sqlIdent(st.Table), placeholders(1, len(args))), args...)
	if err != nil {
		return nil, mapError("get section components", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		vals := make([]any, len(st.Fields))
		dest := []any{&id}
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, mapError("scan section component", err)
		}
		row := map[string]any{"id": id}
		for i, f := range st.Fields {
			v, err := decodeValue(f.Type, vals[i])
			if err != nil {
				return nil, mapError("decode "+f.Name, err)
			}
			row[f.Name] = v
		}
		out[id] = row
	}
	return out, mapError("get section components", rows.Err())
}

func (s *Store) UpdateComponent(ctx context.Context, table, id string, data map[string]any) error {
	st, err := componentTable(table)
	if err != nil {
		return err
	}
	cols, vals, err := columnsFor(st.Fields, data)
	if err != nil {
		return err
	}
	sets := []string{`"updated_at" = now()`}
	for i, c := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", c, i+1))
	}
	vals = append(vals, id)
	res, err := s.db.ExecContext(ctx, fmt.Sprintf("update %s set %s where \"id\" = $%d",
		sqlIdent(st.Table), strings.Join(sets, ", "), len(vals)), vals...)
	return expectOne(res, err, "update section component", apperr.NotFound("Section not found"))
}

func (s *Store) DeleteComponent(ctx context.Context, table, id string) error {
	st, err := componentTable(table)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`delete from %s where "id" = $1`, sqlIdent(st.Table)), id)
	return expectOne(res, err, "delete section component", apperr.NotFound("Section not found"))
}
