package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"klinika/internal/auth"
	"klinika/internal/blob"
	"klinika/internal/content"
	"klinika/internal/locale"
	"klinika/internal/pages"
	"klinika/internal/schema"
)

// Deps: всё, что нужно обработчикам.
type Deps struct {
	Content   *content.Service
	Registry  *schema.Registry
	Pages     *pages.Service
	Languages *locale.Service
	Blob      blob.Store
	Auth      *auth.Guard
	Metrics   *Metrics
	Gatherer  prometheus.Gatherer
	Log       *slog.Logger

	MaxUploadBytes int64
}

// NewRouter собирает gin.Engine. Статические маршруты регистрируются
// рядом с /api/:collection, gin выбирает их первыми.
func NewRouter(d *Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), Logger(d.Log))
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware())
	}

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}
	if l, ok := d.Blob.(*blob.Local); ok && strings.HasPrefix(l.BaseURL, "/") {
		r.Static(l.BaseURL, l.Root)
	}

	guard := d.Auth
	if guard == nil {
		guard = auth.NewGuard("", d.Log)
	}

	api := r.Group("/api")
	admin := api.Group("", guard.Middleware())

	// справочники
	api.GET("/section-types", SectionTypesHandler())
	api.GET("/meta/field-types", FieldTypesHandler())
	api.GET("/meta/:collection", MetaTypeHandler(d))

	// реестр типов
	admin.GET("/content-types", ListContentTypesHandler(d))
	admin.POST("/content-types", CreateContentTypeHandler(d))
	admin.POST("/content-types/import", ImportContentTypesHandler(d))
	admin.GET("/content-types/:id", GetContentTypeHandler(d))
	admin.PUT("/content-types/:id", UpdateContentTypeHandler(d))
	admin.DELETE("/content-types/:id", DeleteContentTypeHandler(d))
	admin.POST("/content-types/:id/fields", AddFieldHandler(d))
	admin.PATCH("/content-types/:id/fields", ReorderFieldsHandler(d))
	admin.PUT("/content-types/:id/fields/:fieldId", UpdateFieldHandler(d))
	admin.DELETE("/content-types/:id/fields/:fieldId", DeleteFieldHandler(d))

	// языки
	admin.GET("/languages", ListLanguagesHandler(d))
	admin.POST("/languages", CreateLanguageHandler(d))
	admin.PUT("/languages/:code", UpdateLanguageHandler(d))
	admin.DELETE("/languages/:code", DeleteLanguageHandler(d))

	// загрузки
	admin.POST("/upload", UploadHandler(d))

	// страницы
	api.GET("/pages", ListPagesHandler(d))
	api.GET("/pages/:id", GetPageHandler(d))
	api.GET("/pages/:id/sections", ListSectionsHandler(d))
	admin.POST("/pages", CreatePageHandler(d))
	admin.PUT("/pages/:id", UpdatePageHandler(d))
	admin.DELETE("/pages/:id", DeletePageHandler(d))
	admin.POST("/pages/:id/publish", PublishPageHandler(d, true))
	admin.DELETE("/pages/:id/publish", PublishPageHandler(d, false))
	admin.POST("/pages/:id/sections", AddSectionHandler(d))
	admin.PATCH("/pages/:id/sections", ReorderSectionsHandler(d))
	admin.PUT("/pages/:id/sections/:sectionId", UpdateSectionHandler(d))
	admin.DELETE("/pages/:id/sections/:sectionId", DeleteSectionHandler(d))

	// динамические коллекции: служебные маршруты раньше :id
	api.GET("/:collection/count", CountHandler(d))
	api.GET("/:collection", FindHandler(d))
	api.GET("/:collection/:id", GetOneHandler(d))
	admin.POST("/:collection", CreateHandler(d))
	admin.PUT("/:collection/:id", UpdateHandler(d))
	admin.DELETE("/:collection/:id", DeleteHandler(d))
	admin.POST("/:collection/:id/actions", ActionHandler(d))

	return r
}

// RunServer слушает addr до отмены ctx, потом даёт запросам до 10 секунд
// на завершение.
func RunServer(ctx context.Context, addr string, h http.Handler, log *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
