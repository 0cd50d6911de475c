// Package seed заполняет пустую базу типами из *.dsl и языками из YAML.
// Повторный запуск ничего не ломает: существующие типы, поля и языки пропускаются.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"klinika/internal/apperr"
	"klinika/internal/dsl"
	"klinika/internal/locale"
	"klinika/internal/reference"
	"klinika/internal/schema"
)

type Registry interface {
	GetContentTypeByName(ctx context.Context, name string) (*schema.ContentType, error)
	CreateContentType(ctx context.Context, in schema.ContentTypeInput) (*schema.ContentType, error)
	AddField(ctx context.Context, contentTypeID string, in schema.FieldInput) (*schema.Field, error)
}

type Languages interface {
	ListLanguages(ctx context.Context) ([]*locale.Language, error)
	CreateLanguage(ctx context.Context, in locale.LanguageInput) (*locale.Language, error)
}

type Report struct {
	TypesCreated     int `json:"types_created"`
	TypesSkipped     int `json:"types_skipped"`
	FieldsAdded      int `json:"fields_added"`
	LanguagesCreated int `json:"languages_created"`
}

func (r Report) String() string {
	return fmt.Sprintf("types created=%d skipped=%d, fields added=%d, languages created=%d",
		r.TypesCreated, r.TypesSkipped, r.FieldsAdded, r.LanguagesCreated)
}

// LoadLanguages заводит языки каталога, которых ещё нет.
func LoadLanguages(ctx context.Context, langs Languages, cat *reference.LanguageCatalog, log *slog.Logger) (int, error) {
	existing, err := langs.ListLanguages(ctx)
	if err != nil {
		return 0, err
	}
	have := make(map[string]bool, len(existing))
	for _, l := range existing {
		have[l.Code] = true
	}
	created := 0
	for _, item := range cat.Languages {
		if have[item.Code] {
			continue
		}
		enabled := !item.Disabled
		_, err := langs.CreateLanguage(ctx, locale.LanguageInput{
			Code:         item.Code,
			Name:         item.Name,
			NativeName:   item.NativeName,
			Enabled:      &enabled,
			IsDefault:    len(existing) == 0 && item.Code == cat.Default,
			DisplayOrder: item.Order,
		})
		if err != nil {
			return created, fmt.Errorf("seed language %s: %w", item.Code, err)
		}
		created++
		log.Info("seed: language created", "code", item.Code)
	}
	return created, nil
}

// LoadContentTypes создаёт типы, затем обычные поля, затем связи:
// так связь может ссылаться на тип из следующего файла.
func LoadContentTypes(ctx context.Context, reg Registry, cts []*dsl.ContentType, log *slog.Logger) (Report, error) {
	var rep Report
	byName := make(map[string]*schema.ContentType, len(cts))
	for _, ct := range cts {
		cur, err := reg.GetContentTypeByName(ctx, ct.Input.Name)
		switch {
		case err == nil:
			rep.TypesSkipped++
		case errors.Is(err, apperr.ErrNotFound):
			cur, err = reg.CreateContentType(ctx, ct.Input)
			if err != nil {
				return rep, fmt.Errorf("seed %s (%s): %w", ct.Input.Name, ct.Source, err)
			}
			rep.TypesCreated++
			log.Info("seed: content type created", "name", ct.Input.Name)
		default:
			return rep, err
		}
		byName[ct.Input.Name] = cur
	}

	for _, relations := range []bool{false, true} {
		for _, ct := range cts {
			cur := byName[ct.Input.Name]
			for _, f := range ct.Fields {
				if (f.Type == schema.TypeRelation) != relations || cur.FieldByName(f.Name) != nil {
					continue
				}
				if _, err := reg.AddField(ctx, cur.ID, f); err != nil {
					return rep, fmt.Errorf("seed %s.%s (%s): %w", ct.Input.Name, f.Name, ct.Source, err)
				}
				rep.FieldsAdded++
			}
		}
	}
	return rep, nil
}
