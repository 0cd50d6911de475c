package pg

import (
	"context"
	"database/sql"
	"errors"

	"klinika/internal/apperr"
	"klinika/internal/schema"
)

const typeColumns = `t."id", t."name", t."display_name", t."singular_name", t."kind", t."draftable",
  t."publishable", t."reviewable", t."settings", t."created_at", t."updated_at",
  (select count(*) from "content_type_fields" f where f."content_type_id" = t."id")`

type scanner interface{ Scan(dest ...any) error }

func scanType(row scanner) (*schema.ContentType, error) {
	var ct schema.ContentType
	var settings []byte
	if err := row.Scan(&ct.ID, &ct.Name, &ct.DisplayName, &ct.SingularName, &ct.Kind, &ct.Draftable,
		&ct.Publishable, &ct.Reviewable, &settings, &ct.CreatedAt, &ct.UpdatedAt, &ct.FieldCount); err != nil {
		return nil, err
	}
	if err := scanJSON(settings, &ct.Settings); err != nil {
		return nil, err
	}
	return &ct, nil
}

func (s *Store) ListContentTypes(ctx context.Context) ([]*schema.ContentType, error) {
	rows, err := s.db.QueryContext(ctx, `select `+typeColumns+` from "content_types" t order by t."name"`)
	if err != nil {
		return nil, mapError("list content types", err)
	}
	defer rows.Close()
	var out []*schema.ContentType
	for rows.Next() {
		ct, err := scanType(rows)
		if err != nil {
			return nil, mapError("scan content type", err)
		}
		out = append(out, ct)
	}
	return out, mapError("list content types", rows.Err())
}

func (s *Store) GetContentType(ctx context.Context, id string) (*schema.ContentType, error) {
	ct, err := scanType(s.db.QueryRowContext(ctx, `select `+typeColumns+` from "content_types" t where t."id" = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("Content type not found")
	}
	return ct, mapError("get content type", err)
}

func (s *Store) GetContentTypeByName(ctx context.Context, name string) (*schema.ContentType, error) {
	ct, err := scanType(s.db.QueryRowContext(ctx, `select `+typeColumns+` from "content_types" t where t."name" = $1`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("Content type '%s' not found", name)
	}
	return ct, mapError("get content type", err)
}

func (s *Store) CreateContentType(ctx context.Context, ct *schema.ContentType) error {
	settings, err := jsonArg(ct.Settings)
	if err != nil {
		return apperr.FieldValidation("settings", "settings: %v", err)
	}
	_, err = s.db.ExecContext(ctx, `insert into "content_types"
  ("id", "name", "display_name", "singular_name", "kind", "draftable", "publishable", "reviewable", "settings", "created_at", "updated_at")
  values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		ct.ID, ct.Name, ct.DisplayName, ct.SingularName, ct.Kind, ct.Draftable, ct.Publishable, ct.Reviewable,
		settings, ct.CreatedAt, ct.UpdatedAt)
	if err != nil {
		if apperr.KindOf(mapError("", err)) == apperr.KindConflict {
			return apperr.Conflict("Content type '%s' already exists", ct.Name)
		}
		return mapError("create content type", err)
	}
	return nil
}

func (s *Store) UpdateContentType(ctx context.Context, ct *schema.ContentType) error {
	settings, err := jsonArg(ct.Settings)
	if err != nil {
		return apperr.FieldValidation("settings", "settings: %v", err)
	}
	res, err := s.db.ExecContext(ctx, `update "content_types" set
  "display_name" = $2, "singular_name" = $3, "draftable" = $4, "publishable" = $5,
  "reviewable" = $6, "settings" = $7, "updated_at" = $8
  where "id" = $1`,
		ct.ID, ct.DisplayName, ct.SingularName, ct.Draftable, ct.Publishable, ct.Reviewable, settings, ct.UpdatedAt)
	return expectOne(res, err, "update content type", apperr.NotFound("Content type not found"))
}

// DeleteContentType: поля и исходящие связи уходят каскадом.
func (s *Store) DeleteContentType(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from "content_types" where "id" = $1`, id)
	return expectOne(res, err, "delete content type", apperr.NotFound("Content type not found"))
}

const fieldColumns = `"id", "content_type_id", "name", "display_name", "type", "required", "is_unique",
  "translatable", "default_value", "display_order", "show_in_list", "show_in_form", "options",
  "min_length", "max_length", "min_value", "max_value", "regex_pattern", "created_at", "updated_at"`

func scanField(row scanner) (*schema.Field, error) {
	var f schema.Field
	var def, opts []byte
	var minLen, maxLen sql.NullInt64
	var minVal, maxVal sql.NullFloat64
	if err := row.Scan(&f.ID, &f.ContentTypeID, &f.Name, &f.DisplayName, &f.Type, &f.Required, &f.Unique,
		&f.Translatable, &def, &f.DisplayOrder, &f.ShowInList, &f.ShowInForm, &opts,
		&minLen, &maxLen, &minVal, &maxVal, &f.RegexPattern, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	if err := scanJSON(def, &f.DefaultValue); err != nil {
		return nil, err
	}
	if err := scanJSON(opts, &f.Options); err != nil {
		return nil, err
	}
	if minLen.Valid {
		n := int(minLen.Int64)
		f.MinLength = &n
	}
	if maxLen.Valid {
		n := int(maxLen.Int64)
		f.MaxLength = &n
	}
	if minVal.Valid {
		f.MinValue = &minVal.Float64
	}
	if maxVal.Valid {
		f.MaxValue = &maxVal.Float64
	}
	// jsonb отдаёт числа как float64, число-поле держим в int64
	if f.Type == schema.TypeNumber && f.DefaultValue != nil {
		if dv, err := f.Coerce(f.DefaultValue); err == nil {
			f.DefaultValue = dv
		}
	}
	return &f, nil
}

func (s *Store) ListFields(ctx context.Context, contentTypeID string) ([]*schema.Field, error) {
	rows, err := s.db.QueryContext(ctx, `select `+fieldColumns+` from "content_type_fields"
  where "content_type_id" = $1 order by "display_order", "created_at", "id"`, contentTypeID)
	if err != nil {
		return nil, mapError("list fields", err)
	}
	defer rows.Close()
	var out []*schema.Field
	for rows.Next() {
		f, err := scanField(rows)
		if err != nil {
			return nil, mapError("scan field", err)
		}
		out = append(out, f)
	}
	return out, mapError("list fields", rows.Err())
}

func (s *Store) GetField(ctx context.Context, contentTypeID, fieldID string) (*schema.Field, error) {
	f, err := scanField(s.db.QueryRowContext(ctx, `select `+fieldColumns+` from "content_type_fields"
  where "id" = $1 and "content_type_id" = $2`, fieldID, contentTypeID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("Field not found")
	}
	return f, mapError("get field", err)
}

func fieldArgs(f *schema.Field) ([]any, error) {
	def, err := jsonArg(f.DefaultValue)
	if err != nil {
		return nil, apperr.FieldValidation("default_value", "default_value: %v", err)
	}
	opts, err := jsonArg(f.Options)
	if err != nil {
		return nil, apperr.FieldValidation("options", "options: %v", err)
	}
	return []any{f.ID, f.ContentTypeID, f.Name, f.DisplayName, string(f.Type), f.Required, f.Unique,
		f.Translatable, def, f.DisplayOrder, f.ShowInList, f.ShowInForm, opts,
		f.MinLength, f.MaxLength, f.MinValue, f.MaxValue, f.RegexPattern, f.CreatedAt, f.UpdatedAt}, nil
}

func (s *Store) CreateField(ctx context.Context, f *schema.Field) error {
	args, err := fieldArgs(f)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `insert into "content_type_fields" (`+fieldColumns+`)
  values (`+placeholders(1, len(args))+`)`, args...)
	if err != nil {
		switch apperr.KindOf(mapError("", err)) {
		case apperr.KindConflict:
			return apperr.Conflict("Field '%s' already exists", f.Name)
		case apperr.KindValidation:
			return apperr.NotFound("Content type not found")
		}
		return mapError("create field", err)
	}
	return nil
}

func (s *Store) UpdateField(ctx context.Context, f *schema.Field) error {
	def, err := jsonArg(f.DefaultValue)
	if err != nil {
		return apperr.FieldValidation("default_value", "default_value: %v", err)
	}
	opts, err := jsonArg(f.Options)
	if err != nil {
		return apperr.FieldValidation("options", "options: %v", err)
	}
	// name, type и translatable не обновляются
	res, err := s.db.ExecContext(ctx, `update "content_type_fields" set
  "display_name" = $3, "required" = $4, "is_unique" = $5, "default_value" = $6,
  "display_order" = $7, "show_in_list" = $8, "show_in_form" = $9, "options" = $10,
  "min_length" = $11, "max_length" = $12, "min_value" = $13, "max_value" = $14,
  "regex_pattern" = $15, "updated_at" = $16
  where "id" = $1 and "content_type_id" = $2`,
		f.ID, f.ContentTypeID, f.DisplayName, f.Required, f.Unique, def,
		f.DisplayOrder, f.ShowInList, f.ShowInForm, opts,
		f.MinLength, f.MaxLength, f.MinValue, f.MaxValue,
		f.RegexPattern, f.UpdatedAt)
	return expectOne(res, err, "update field", apperr.NotFound("Field not found"))
}

func (s *Store) DeleteField(ctx context.Context, contentTypeID, fieldID string) error {
	res, err := s.db.ExecContext(ctx, `delete from "content_type_fields" where "id" = $1 and "content_type_id" = $2`,
		fieldID, contentTypeID)
	return expectOne(res, err, "delete field", apperr.NotFound("Field not found"))
}

// ReorderFields: одна транзакция; чужой id откатывает всю пачку.
func (s *Store) ReorderFields(ctx context.Context, contentTypeID string, updates []schema.FieldOrder) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, u := range updates {
			res, err := tx.ExecContext(ctx, `update "content_type_fields" set "display_order" = $3
  where "id" = $1 and "content_type_id" = $2`, u.FieldID, contentTypeID, u.DisplayOrder)
			if err := expectOne(res, err, "reorder fields", apperr.NotFound("Field %s not found", u.FieldID)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ListRelations(ctx context.Context, contentTypeID string) ([]*schema.Relation, error) {
	rows, err := s.db.QueryContext(ctx, `select r."id", r."name", r."source_content_type_id", r."target_content_type_id",
  src."name", dst."name", r."cardinality", r."created_at"
  from "content_type_relations" r
  join "content_types" src on src."id" = r."source_content_type_id"
  join "content_types" dst on dst."id" = r."target_content_type_id"
  where r."source_content_type_id" = $1 or r."target_content_type_id" = $1
  order by r."id"`, contentTypeID)
	if err != nil {
		return nil, mapError("list relations", err)
	}
	defer rows.Close()
	var out []*schema.Relation
	for rows.Next() {
		var r schema.Relation
		if err := rows.Scan(&r.ID, &r.Name, &r.SourceContentTypeID, &r.TargetContentTypeID,
			&r.SourceName, &r.TargetName, &r.Cardinality, &r.CreatedAt); err != nil {
			return nil, mapError("scan relation", err)
		}
		out = append(out, &r)
	}
	return out, mapError("list relations", rows.Err())
}

func (s *Store) CreateRelation(ctx context.Context, r *schema.Relation) error {
	_, err := s.db.ExecContext(ctx, `insert into "content_type_relations"
  ("id", "name", "source_content_type_id", "target_content_type_id", "cardinality", "created_at")
  values ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.Name, r.SourceContentTypeID, r.TargetContentTypeID, string(r.Cardinality), r.CreatedAt)
	if err != nil && apperr.KindOf(mapError("", err)) == apperr.KindConflict {
		return apperr.Conflict("Relation '%s' already exists", r.Name)
	}
	return mapError("create relation", err)
}

func (s *Store) DeleteRelation(ctx context.Context, sourceContentTypeID, name string) error {
	res, err := s.db.ExecContext(ctx, `delete from "content_type_relations"
  where "source_content_type_id" = $1 and "name" = $2`, sourceContentTypeID, name)
	return expectOne(res, err, "delete relation", apperr.NotFound("Relation '%s' not found", name))
}

// expectOne: ошибка запроса или ноль затронутых строк.
func expectOne(res sql.Result, err error, op string, notFound error) error {
	if err != nil {
		return mapError(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(op, err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
