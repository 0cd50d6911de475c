package main

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"klinika/internal/api"
	"klinika/internal/auth"
	"klinika/internal/blob"
	"klinika/internal/config"
	"klinika/internal/content"
	"klinika/internal/dsl"
	"klinika/internal/locale"
	"klinika/internal/memstore"
	"klinika/internal/pages"
	"klinika/internal/pg"
	"klinika/internal/reference"
	"klinika/internal/schema"
	"klinika/internal/seed"
)

// backend: общий набор хранилищ; реализуют memstore и pg.
type backend interface {
	schema.Store
	content.Store
	pages.Store
	locale.Store
}

type app struct {
	cfg config.Config
	log *slog.Logger
	db  *sql.DB

	registry  *schema.Registry
	content   *content.Service
	pages     *pages.Service
	languages *locale.Service
}

func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	log := slog.New(h)
	slog.SetDefault(log)
	return log
}

func newApp(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	var (
		st   backend
		opts = []schema.Option{schema.WithLogger(log)}
	)
	if cfg.DBURL == "" {
		log.Warn("no database url, using in-memory store; data is lost on restart")
		st = memstore.New()
	} else {
		db, err := pg.Open(ctx, cfg.DBURL, pg.Pool{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		a.db = db
		ps := pg.New(db, log)
		if cfg.AutoMigrate {
			if err := ps.Migrate(ctx); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		st = ps
		opts = append(opts, schema.WithMigrator(ps))
	}

	a.languages = locale.NewService(st, cfg.DefaultLocale, cfg.LocaleCacheTTL, log)
	a.registry = schema.NewRegistry(st, opts...)
	res := content.NewResolver(a.registry, cfg.SchemaCacheTTL)
	a.registry.OnChange(func(string) { res.InvalidateAll() })
	a.content = content.NewService(res, st, a.languages, log, content.DefaultOptions())
	a.registry.SetRowCounter(a.content)
	a.pages = pages.NewService(st, a.languages, log, pages.Options{CascadeSectionDelete: cfg.CascadeSectionDelete})
	return a, nil
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

// Seed грузит каталог языков и *.dsl. Отсутствующие файлы пропускаются.
func (a *app) Seed(ctx context.Context) error {
	cat, err := reference.LoadLanguages(a.cfg.LanguagesFile)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		a.log.Warn("seed: languages file not found", "path", a.cfg.LanguagesFile)
	case err != nil:
		return err
	default:
		n, err := seed.LoadLanguages(ctx, a.languages, cat, a.log)
		if err != nil {
			return err
		}
		a.log.Info("seed: languages loaded", "created", n)
	}

	cts, err := dsl.LoadDir(a.cfg.SeedDir)
	if errors.Is(err, fs.ErrNotExist) {
		a.log.Warn("seed: directory not found", "path", a.cfg.SeedDir)
		return nil
	}
	if err != nil {
		return err
	}
	known := func(name string) bool {
		_, err := a.registry.GetContentTypeByName(ctx, name)
		return err == nil
	}
	if issues := dsl.Lint(cts, known); len(issues) > 0 {
		for _, it := range issues {
			a.log.Error("seed: schema issue", "type", it.Type, "field", it.Field, "code", it.Code, "message", it.Message)
		}
		return errors.New("seed: schema has blocking issues")
	}
	rep, err := seed.LoadContentTypes(ctx, a.registry, cts, a.log)
	if err != nil {
		return err
	}
	a.log.Info("seed: content types loaded", "report", rep.String())
	return nil
}

func (a *app) blobStore(ctx context.Context) (blob.Store, error) {
	if a.cfg.BlobDriver != "s3" {
		return blob.NewLocal(a.cfg.FilesRoot, a.cfg.PublicBaseURL), nil
	}
	s3 := a.cfg.S3
	return blob.NewS3(ctx, blob.S3Config{
		Region:          s3.Region,
		Bucket:          s3.Bucket,
		Prefix:          s3.Prefix,
		Endpoint:        s3.Endpoint,
		UsePathStyle:    s3.UsePathStyle,
		AccessKeyID:     s3.AccessKeyID,
		SecretAccessKey: s3.SecretAccessKey,
		PublicBaseURL:   s3.PublicBaseURL,
	})
}

func (a *app) Serve(ctx context.Context) error {
	store, err := a.blobStore(ctx)
	if err != nil {
		return err
	}
	if a.cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	router := api.NewRouter(&api.Deps{
		Content:        a.content,
		Registry:       a.registry,
		Pages:          a.pages,
		Languages:      a.languages,
		Blob:           store,
		Auth:           auth.NewGuard(a.cfg.JWTSecret, a.log),
		Metrics:        api.NewMetrics(reg),
		Gatherer:       reg,
		Log:            a.log,
		MaxUploadBytes: a.cfg.MaxUploadBytes(),
	})
	return api.RunServer(ctx, a.cfg.Addr(), router, a.log)
}
