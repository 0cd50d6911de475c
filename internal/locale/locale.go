// Package locale: языки сайта и кэш их списка.
package locale

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"klinika/internal/apperr"
	"klinika/internal/cache"
)

const DefaultCacheTTL = 60 * time.Second

var codePattern = regexp.MustCompile(`^[a-z]{2,3}(-[A-Za-z0-9]{2,8})?$`)

type Language struct {
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	NativeName   string    `json:"native_name"`
	Enabled      bool      `json:"enabled"`
	IsDefault    bool      `json:"is_default"`
	DisplayOrder int       `json:"display_order"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Store interface {
	ListLanguages(ctx context.Context) ([]*Language, error)
	GetLanguage(ctx context.Context, code string) (*Language, error)
	CreateLanguage(ctx context.Context, l *Language) error
	UpdateLanguage(ctx context.Context, l *Language) error
	DeleteLanguage(ctx context.Context, code string) error
	// SetDefault снимает флаг со всех и ставит на code одной операцией.
	SetDefault(ctx context.Context, code string) error
}

// Service: языки с кэшем; любая мутация чистит кэш.
type Service struct {
	store    Store
	fallback string
	cache    *cache.Cache[string, []*Language]
	log      *slog.Logger
	now      func() time.Time
}

const listKey = "languages"

// NewService: fallback: язык по умолчанию, пока в таблице нет ни одного.
func NewService(store Store, fallback string, ttl time.Duration, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if fallback == "" {
		fallback = "en"
	}
	return &Service{
		store:    store,
		fallback: fallback,
		cache:    cache.New[string, []*Language](ttl),
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock подменяет часы кэша.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.cache.WithClock(now)
	return s
}

func (s *Service) all(ctx context.Context) ([]*Language, error) {
	return s.cache.GetOrLoad(listKey, func() ([]*Language, error) {
		ls, err := s.store.ListLanguages(ctx)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(ls, func(i, j int) bool {
			if ls[i].DisplayOrder != ls[j].DisplayOrder {
				return ls[i].DisplayOrder < ls[j].DisplayOrder
			}
			return ls[i].Code < ls[j].Code
		})
		return ls, nil
	})
}

func (s *Service) ListLanguages(ctx context.Context) ([]*Language, error) { return s.all(ctx) }

// EnabledLanguages: включённые языки по порядку.
func (s *Service) EnabledLanguages(ctx context.Context) ([]*Language, error) {
	ls, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Language, 0, len(ls))
	for _, l := range ls {
		if l.Enabled {
			out = append(out, l)
		}
	}
	return out, nil
}

// DefaultLanguage: код языка по умолчанию; пустая таблица даёт fallback.
func (s *Service) DefaultLanguage(ctx context.Context) (string, error) {
	ls, err := s.all(ctx)
	if err != nil {
		return "", err
	}
	for _, l := range ls {
		if l.IsDefault {
			return l.Code, nil
		}
	}
	return s.fallback, nil
}

// IsEnabled: можно ли писать/читать переводы на этом языке.
func (s *Service) IsEnabled(ctx context.Context, code string) (bool, error) {
	ls, err := s.all(ctx)
	if err != nil {
		return false, err
	}
	if len(ls) == 0 {
		return code == s.fallback, nil
	}
	for _, l := range ls {
		if l.Code == code {
			return l.Enabled, nil
		}
	}
	return false, nil
}

func (s *Service) ClearCache() { s.cache.InvalidateAll() }

type LanguageInput struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	NativeName   string `json:"native_name"`
	Enabled      *bool  `json:"enabled"`
	IsDefault    bool   `json:"is_default"`
	DisplayOrder int    `json:"display_order"`
}

func (in LanguageInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Code, validation.Required, validation.Match(codePattern).Error("must be a language code like en or pt-BR")),
		validation.Field(&in.Name, validation.Required),
	)
}

type LanguageUpdate struct {
	Name         *string `json:"name"`
	NativeName   *string `json:"native_name"`
	Enabled      *bool   `json:"enabled"`
	IsDefault    *bool   `json:"is_default"`
	DisplayOrder *int    `json:"display_order"`
}

func (s *Service) CreateLanguage(ctx context.Context, in LanguageInput) (*Language, error) {
	in.Code = strings.TrimSpace(in.Code)
	if err := validationErr(in.Validate()); err != nil {
		return nil, err
	}
	defer s.ClearCache()
	now := s.now()
	l := &Language{
		Code:         in.Code,
		Name:         in.Name,
		NativeName:   in.NativeName,
		Enabled:      true,
		DisplayOrder: in.DisplayOrder,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if in.Enabled != nil {
		l.Enabled = *in.Enabled
	}
	existing, err := s.store.ListLanguages(ctx)
	if err != nil {
		return nil, err
	}
	// первый язык становится языком по умолчанию
	if len(existing) == 0 {
		in.IsDefault = true
	}
	if in.IsDefault && !l.Enabled {
		return nil, apperr.FieldValidation("enabled", "Default language must be enabled")
	}
	if err := s.store.CreateLanguage(ctx, l); err != nil {
		return nil, err
	}
	if in.IsDefault {
		if err := s.store.SetDefault(ctx, l.Code); err != nil {
			return nil, err
		}
		l.IsDefault = true
	}
	s.log.Info("language created", "code", l.Code, "default", l.IsDefault)
	return l, nil
}

func (s *Service) UpdateLanguage(ctx context.Context, code string, upd LanguageUpdate) (*Language, error) {
	defer s.ClearCache()
	l, err := s.store.GetLanguage(ctx, code)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		if strings.TrimSpace(*upd.Name) == "" {
			return nil, apperr.FieldValidation("name", "name: cannot be blank")
		}
		l.Name = *upd.Name
	}
	if upd.NativeName != nil {
		l.NativeName = *upd.NativeName
	}
	if upd.Enabled != nil {
		l.Enabled = *upd.Enabled
	}
	if upd.DisplayOrder != nil {
		l.DisplayOrder = *upd.DisplayOrder
	}
	if upd.IsDefault != nil && !*upd.IsDefault && l.IsDefault {
		return nil, apperr.FieldValidation("is_default", "Set another language as default instead")
	}
	makeDefault := upd.IsDefault != nil && *upd.IsDefault && !l.IsDefault
	if (l.IsDefault || makeDefault) && !l.Enabled {
		return nil, apperr.FieldValidation("enabled", "Default language must be enabled")
	}
	l.UpdatedAt = s.now()
	if err := s.store.UpdateLanguage(ctx, l); err != nil {
		return nil, err
	}
	if makeDefault {
		if err := s.store.SetDefault(ctx, l.Code); err != nil {
			return nil, err
		}
		l.IsDefault = true
	}
	return l, nil
}

// DeleteLanguage: язык по умолчанию удалить нельзя.
func (s *Service) DeleteLanguage(ctx context.Context, code string) error {
	defer s.ClearCache()
	l, err := s.store.GetLanguage(ctx, code)
	if err != nil {
		return err
	}
	if l.IsDefault {
		return apperr.Conflict("Default language '%s' cannot be deleted", code)
	}
	if err := s.store.DeleteLanguage(ctx, code); err != nil {
		return err
	}
	s.log.Info("language deleted", "code", code)
	return nil
}

func validationErr(err error) error {
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
	return apperr.FieldValidation(keys[0], "%s: %s", keys[0], verrs[keys[0]].Error())
}
