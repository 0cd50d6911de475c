package pg

import (
	"context"
	"database/sql"
	"errors"

	"klinika/internal/apperr"
	"klinika/internal/locale"
)

const languageColumns = `"code", "name", "native_name", "enabled", "is_default", "display_order", "created_at", "updated_at"`

func scanLanguage(row scanner) (*locale.Language, error) {
	var l locale.Language
	err := row.Scan(&l.Code, &l.Name, &l.NativeName, &l.Enabled, &l.IsDefault, &l.DisplayOrder, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Store) ListLanguages(ctx context.Context) ([]*locale.Language, error) {
	rows, err := s.db.QueryContext(ctx, `select `+languageColumns+` from "languages" order by "display_order", "code"`)
	if err != nil {
		return nil, mapError("list languages", err)
	}
	defer rows.Close()
	var out []*locale.Language
	for rows.Next() {
		l, err := scanLanguage(rows)
		if err != nil {
			return nil, mapError("scan language", err)
		}
		out = append(out, l)
	}
	return out, mapError("list languages", rows.Err())
}

func (s *Store) GetLanguage(ctx context.Context, code string) (*locale.Language, error) {
	l, err := scanLanguage(s.db.QueryRowContext(ctx, `select `+languageColumns+` from "languages" where "code" = $1`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("Language '%s' not found", code)
	}
	return l, mapError("get language", err)
}

// CreateLanguage пишет язык без флага по умолчанию; флаг ставит SetDefault.
func (s *Store) CreateLanguage(ctx context.Context, l *locale.Language) error {
	_, err := s.db.ExecContext(ctx, `insert into "languages" (`+languageColumns+`) values ($1, $2, $3, $4, false, $5, $6, $7)`,
		l.Code, l.Name, l.NativeName, l.Enabled, l.DisplayOrder, l.CreatedAt, l.UpdatedAt)
	if err != nil && apperr.KindOf(mapError("", err)) == apperr.KindConflict {
		return apperr.Conflict("Language '%s' already exists", l.Code)
	}
	return mapError("create language", err)
}

func (s *Store) UpdateLanguage(ctx context.Context, l *locale.Language) error {
	res, err := s.db.ExecContext(ctx, `update "languages" set "name" = $2, "native_name" = $3, "enabled" = $4,
  "display_order" = $5, "updated_at" = $6 where "code" = $1`,
		l.Code, l.Name, l.NativeName, l.Enabled, l.DisplayOrder, l.UpdatedAt)
	return expectOne(res, err, "update language", apperr.NotFound("Language '%s' not found", l.Code))
}

func (s *Store) DeleteLanguage(ctx context.Context, code string) error {
	res, err := s.db.ExecContext(ctx, `delete from "languages" where "code" = $1`, code)
	return expectOne(res, err, "delete language", apperr.NotFound("Language '%s' not found", code))
}

// SetDefault: сначала снимаем флаг, иначе упрёмся в languages_default_uq.
func (s *Store) SetDefault(ctx context.Context, code string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `update "languages" set "is_default" = false where "is_default" and "code" <> $1`, code); err != nil {
			return mapError("reset default language", err)
		}
		res, err := tx.ExecContext(ctx, `update "languages" set "is_default" = true where "code" = $1`, code)
		return expectOne(res, err, "set default language", apperr.NotFound("Language '%s' not found", code))
	})
}
