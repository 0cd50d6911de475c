package schema

import (
	"errors"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"klinika/internal/apperr"
)

// ContentTypeInput: тело создания типа.
type ContentTypeInput struct {
	Name         string         `json:"name"`
	DisplayName  string         `json:"display_name"`
	SingularName string         `json:"singular_name"`
	Kind         Kind           `json:"kind"`
	Draftable    bool           `json:"draftable"`
	Publishable  bool           `json:"publishable"`
	Reviewable   bool           `json:"reviewable"`
	Settings     map[string]any `json:"settings"`
}

func (in ContentTypeInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.Match(NamePattern).Error("must match ^[a-z][a-z0-9_]*$")),
		validation.Field(&in.DisplayName, validation.Required),
		validation.Field(&in.SingularName, validation.Required),
		validation.Field(&in.Kind, validation.In(KindCollection, KindSingle)),
	)
}

// ContentTypeUpdate: частичное обновление; name и kind не меняются.
type ContentTypeUpdate struct {
	DisplayName  *string        `json:"display_name"`
	SingularName *string        `json:"singular_name"`
	Draftable    *bool          `json:"draftable"`
	Publishable  *bool          `json:"publishable"`
	Reviewable   *bool          `json:"reviewable"`
	Settings     map[string]any `json:"settings"`
}

// FieldInput: тело добавления поля.
type FieldInput struct {
	Name         string         `json:"name"`
	DisplayName  string         `json:"display_name"`
	Type         FieldType      `json:"type"`
	Required     bool           `json:"required"`
	Unique       bool           `json:"unique"`
	Translatable bool           `json:"translatable"`
	DefaultValue any            `json:"default_value"`
	DisplayOrder *int           `json:"display_order"`
	ShowInList   *bool          `json:"show_in_list"`
	ShowInForm   *bool          `json:"show_in_form"`
	Options      map[string]any `json:"options"`
	MinLength    *int           `json:"min_length"`
	MaxLength    *int           `json:"max_length"`
	MinValue     *float64       `json:"min_value"`
	MaxValue     *float64       `json:"max_value"`
	RegexPattern string         `json:"regex_pattern"`
}

func (in FieldInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.Match(NamePattern).Error("must match ^[a-z][a-z0-9_]*$")),
		validation.Field(&in.Type, validation.Required, validation.By(func(any) error {
			if !KnownType(in.Type) {
				return errors.New("unknown field type")
			}
			return nil
		})),
		validation.Field(&in.MinLength, validation.Min(0)),
		validation.Field(&in.MaxLength, validation.Min(1)),
	)
}

// FieldUpdate: частичное обновление поля; name, type и translatable неизменны.
type FieldUpdate struct {
	DisplayName  *string        `json:"display_name"`
	Required     *bool          `json:"required"`
	Unique       *bool          `json:"unique"`
	DefaultValue any            `json:"default_value"`
	DisplayOrder *int           `json:"display_order"`
	ShowInList   *bool          `json:"show_in_list"`
	ShowInForm   *bool          `json:"show_in_form"`
	Options      map[string]any `json:"options"`
	MinLength    *int           `json:"min_length"`
	MaxLength    *int           `json:"max_length"`
	MinValue     *float64       `json:"min_value"`
	MaxValue     *float64       `json:"max_value"`
	RegexPattern *string        `json:"regex_pattern"`

	// присутствуют только чтобы отказать в смене
	Name         *string    `json:"name"`
	Type         *FieldType `json:"type"`
	Translatable *bool      `json:"translatable"`
}

// asValidation переводит ошибки ozzo в apperr с первым по алфавиту полем.
func asValidation(err error) error {
	if err == nil {
		return nil
	}
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return apperr.Validation("%s", err.Error())
	}
	keys := make([]string, 0, len(verrs))
	for k := range verrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, k+": "+verrs[k].Error())
	}
	return apperr.FieldValidation(keys[0], "%s", strings.Join(msgs, "; "))
}
