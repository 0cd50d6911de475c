// Package config: значения по умолчанию, затем файл (JSON/YAML), затем
// переменные KLINIKA_*. Флаги командной строки накладывает cmd/server.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Port        string `json:"port" yaml:"port" env:"KLINIKA_PORT" env-default:"8080"`
	DBURL       string `json:"dbUrl" yaml:"db_url" env:"KLINIKA_DB_URL"` // пусто = память
	AutoMigrate bool   `json:"autoMigrate" yaml:"auto_migrate" env:"KLINIKA_AUTO_MIGRATE"`

	DBMaxOpenConns    int           `json:"dbMaxOpenConns" yaml:"db_max_open_conns" env:"KLINIKA_DB_MAX_OPEN_CONNS" env-default:"10"`
	DBMaxIdleConns    int           `json:"dbMaxIdleConns" yaml:"db_max_idle_conns" env:"KLINIKA_DB_MAX_IDLE_CONNS" env-default:"5"`
	DBConnMaxLifetime time.Duration `json:"dbConnMaxLifetime" yaml:"db_conn_max_lifetime" env:"KLINIKA_DB_CONN_MAX_LIFETIME" env-default:"30m"`

	// seed
	SeedDir       string `json:"seedDir" yaml:"seed_dir" env:"KLINIKA_SEED_DIR" env-default:"seed"`
	LanguagesFile string `json:"languagesFile" yaml:"languages_file" env:"KLINIKA_LANGUAGES_FILE" env-default:"reference/languages.yaml"`
	DefaultLocale string `json:"defaultLocale" yaml:"default_locale" env:"KLINIKA_DEFAULT_LOCALE" env-default:"en"`

	// файлы
	BlobDriver    string `json:"blobDriver" yaml:"blob_driver" env:"KLINIKA_BLOB_DRIVER" env-default:"local"` // local | s3
	FilesRoot     string `json:"filesRoot" yaml:"files_root" env:"KLINIKA_FILES_ROOT" env-default:"uploads"`
	PublicBaseURL string `json:"publicBaseUrl" yaml:"public_base_url" env:"KLINIKA_PUBLIC_BASE_URL" env-default:"/uploads"`
	MaxUploadMB   int64  `json:"maxUploadMb" yaml:"max_upload_mb" env:"KLINIKA_MAX_UPLOAD_MB" env-default:"20"`

	S3 S3 `json:"s3" yaml:"s3"`

	JWTSecret            string        `json:"jwtSecret" yaml:"jwt_secret" env:"KLINIKA_JWT_SECRET"`
	CascadeSectionDelete bool          `json:"cascadeSectionDelete" yaml:"cascade_section_delete" env:"KLINIKA_CASCADE_SECTION_DELETE"`
	LocaleCacheTTL       time.Duration `json:"localeCacheTtl" yaml:"locale_cache_ttl" env:"KLINIKA_LOCALE_CACHE_TTL" env-default:"60s"`
	SchemaCacheTTL       time.Duration `json:"schemaCacheTtl" yaml:"schema_cache_ttl" env:"KLINIKA_SCHEMA_CACHE_TTL" env-default:"5m"`

	LogLevel  string `json:"logLevel" yaml:"log_level" env:"KLINIKA_LOG_LEVEL" env-default:"info"`
	LogFormat string `json:"logFormat" yaml:"log_format" env:"KLINIKA_LOG_FORMAT" env-default:"text"` // text | json
}

type S3 struct {
	Region          string `json:"region" yaml:"region" env:"KLINIKA_S3_REGION"`
	Bucket          string `json:"bucket" yaml:"bucket" env:"KLINIKA_S3_BUCKET"`
	Prefix          string `json:"prefix" yaml:"prefix" env:"KLINIKA_S3_PREFIX"`
	Endpoint        string `json:"endpoint" yaml:"endpoint" env:"KLINIKA_S3_ENDPOINT"` // MinIO и т.п.
	UsePathStyle    bool   `json:"usePathStyle" yaml:"use_path_style" env:"KLINIKA_S3_PATH_STYLE"`
	AccessKeyID     string `json:"accessKeyId" yaml:"access_key_id" env:"KLINIKA_S3_ACCESS_KEY_ID"`
	SecretAccessKey string `json:"secretAccessKey" yaml:"secret_access_key" env:"KLINIKA_S3_SECRET_ACCESS_KEY"`
	PublicBaseURL   string `json:"publicBaseUrl" yaml:"public_base_url" env:"KLINIKA_S3_PUBLIC_BASE_URL"`
}

// def: bool-поля с true по умолчанию. env-default перетёр бы false из файла.
func def() Config {
	return Config{
		AutoMigrate:          true,
		CascadeSectionDelete: true,
	}
}

// Load читает .env (если есть), затем файл path (если есть) и окружение.
func Load(path string) (Config, error) {
	cfg := def()
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, err
	}

	var err error
	if st, statErr := os.Stat(path); path != "" && statErr == nil && !st.IsDir() {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return cfg, err
	}
	cfg.normalize()
	return cfg, cfg.Validate()
}

func (c *Config) normalize() {
	c.Port = strings.TrimSpace(c.Port)
	c.DBURL = strings.TrimSpace(c.DBURL)
	c.BlobDriver = strings.ToLower(strings.TrimSpace(c.BlobDriver))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.DefaultLocale = strings.TrimSpace(c.DefaultLocale)
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Port, validation.Required),
		validation.Field(&c.BlobDriver, validation.In("local", "s3")),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.LogFormat, validation.In("text", "json")),
		validation.Field(&c.DefaultLocale, validation.Required),
		validation.Field(&c.MaxUploadMB, validation.Min(int64(1))),
		validation.Field(&c.DBMaxOpenConns, validation.Min(1)),
		validation.Field(&c.DBMaxIdleConns, validation.Min(0), validation.Max(c.DBMaxOpenConns)),
		validation.Field(&c.S3, validation.When(c.BlobDriver == "s3", validation.By(func(any) error {
			return validation.ValidateStruct(&c.S3,
				validation.Field(&c.S3.Bucket, validation.Required),
				validation.Field(&c.S3.Region, validation.Required),
			)
		}))),
	)
}

// Addr: ":8080" из "8080"; готовый host:port не трогаем.
func (c Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// MaxUploadBytes: лимит тела загрузки.
func (c Config) MaxUploadBytes() int64 { return c.MaxUploadMB << 20 }
