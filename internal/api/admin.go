package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"klinika/internal/apperr"
	"klinika/internal/dsl"
	"klinika/internal/schema"
	"klinika/internal/seed"
)

// maxImportBytes ограничивает тело импорта seed-файла.
const maxImportBytes = 1 << 20

// GET /api/content-types
func ListContentTypesHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		cts, err := d.Registry.ListContentTypes(c.Request.Context())
		if err != nil {
			respondError(c, d.Log, err)
			return
		}
		if cts == nil {
			cts = []*schema.ContentType{}
		}
		respondData(c, http.StatusOK, cts)
	}
}

// GET /api/content-types/:id
func GetContentTypeHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ct, err := d.Registry.GetContentType(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, d.Log, err)
			return
		}
		respondData(c, http.StatusOK, ct)
	}
}

// POST /api/content-types  {data: {name, display_name, singular_name, ...}}
func CreateContentTypeHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dataBody[schema.ContentTypeInput]
		if err := bindJSON(c, &body, false); err != nil {
			respondError(c, d.Log, err)
			return
		}
		ct, err := d.Registry.CreateContentType(c.Request.Context(), body.Data)
		if err != nil {
			respondError(c, d.Log, err)
			return
		}
		respondData(c, http.StatusCreated, ct)
	}
}

// PUT /api/content-types/:id
func UpdateContentTypeHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dataBody[schema.ContentTypeUpdate]
		if err := bindJSON(c, &body, false); err != nil {
			respondError(c, d.Log, err)
			return
		}
		ct, err := d.Registry.UpdateContentType(c.Request.Context(), c.Param("id"), body.Data)
		if err != nil {
			respondError(c, d.Log, err)
			return
		}
		respondData(c, http.StatusOK, ct)
	}
}

// DELETE /api/content-types/:id
func DeleteContentTypeHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := d.Registry.DeleteContentType(c.Request.Context(), c.Param("id")); err != nil {
			respondError(c, d.Log, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// POST /api/content-types/:id/fields
func AddFieldHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dataBody[schema.FieldInput]
		if err := bindJSON(c, &body, false); err != nil {
			respondError(c, d.Log, err)
			return
		}
		f, err := d.Registry.AddField(c.Request.Context(), c.Param("id"), body.Data)
		if err != nil {
			respondError(c, d.Log, err)
			return
		}
		respondData(c, http.StatusCreated, f)
	}
}

// PUT /api/content-types/:id/fields/:fieldId
func UpdateFieldHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dataBody[schema.FieldUpdate]
		if err := bindJSON(c, &body, false); err != nil {
			respondError(c, d.Log, err)
			return
		}
		f, err := d.Registry.UpdateField(c.Request.Context(), c.Param("id"), c.Param("fieldId"), body.Data)
		if err != nil {
			respondError(c, d.Log, err)
			return
		}
		respondData(c, http.StatusOK, f)
	}
}

// DELETE /api/content-types/:id/fields/:fieldId
func DeleteFieldHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := d.Registry.DeleteField(c.Request.Context(), c.Param("id"), c.Param("fieldId")); err != nil {
			respondError(c, d.Log, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// PATCH /api/content-types/:id/fields  {fields: [{id, display_order}]}
func ReorderFieldsHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Fields []schema.FieldOrder `json:"fields"`
		}
		if err := bindJSON(c, &body, false); err != nil {
			respondError(c, d.Log, err)
			return
		}
		ctx := c.Request.Context()
		if err := d.Registry.ReorderFields(ctx, c.Param("id"), body.Fields); err != nil {
			respondError(c, d.Log, err)
			return
		}
		ct, err := d.Registry.GetContentType(ctx, c.Param("id"))
		if err != nil {
			respondError(c, d.Log, err)
			return
		}
		respondData(c, http.StatusOK, ct)
	}
}

// POST /api/content-types/import  (text/plain, seed-файл *.dsl)
//
// Сначала линтер по всему файлу, потом запись. Уже существующие типы
// и поля пропускаются, так что повторный импорт безопасен.
func ImportContentTypesHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		r := http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes)
		raw, err := io.ReadAll(r)
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				respondError(c, d.Log, apperr.Validation("Import body exceeds %d bytes", maxImportBytes))
				return
			}
			respondError(c, d.Log, apperr.Validation("Cannot read request body"))
			return
		}
		cts, err := dsl.Parse(bytes.NewReader(raw), "import")
		if err != nil {
			respondError(c, d.Log, apperr.Validation("%v", err))
			return
		}
		if len(cts) == 0 {
			respondError(c, d.Log, apperr.Validation("Import contains no content types"))
			return
		}
		ctx := c.Request.Context()
		known := func(name string) bool {
			_, err := d.Registry.GetContentTypeByName(ctx, name)
			return err == nil
		}
		if issues := dsl.Lint(cts, known); len(issues) > 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":  gin.H{"message": "Schema has blocking issues", "status": http.StatusBadRequest},
				"issues": issues,
			})
			return
		}
		rep, err := seed.LoadContentTypes(ctx, d.Registry, cts, d.Log)
		if err != nil {
			respondError(c, d.Log, err)
			return
		}
		respondData(c, http.StatusOK, rep)
	}
}
