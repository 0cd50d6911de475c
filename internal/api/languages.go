package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"klinika/internal/locale"
)

// GET /api/languages
func ListLanguagesHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			ls  []*locale.Language
			err error
		)
		if boolParam(c.Request.URL.Query(), "enabled") {
			ls, err = d.Languages.EnabledLanguages(c.Request.Context())
		} else {
			ls, err = d.Languages.ListLanguages(c.Request.Context())
		}
		if err != nil {
			respondError(c, d.Log, err)
			return
		}
		if ls == nil {
			ls = []*locale.Language{}
		}
		respondData(c, http.StatusOK, ls)
	}
}

// POST /api/languages  {data: {code, name, ...}}
func CreateLanguageHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dataBody[locale.LanguageInput]
		if err := bindJSON(c, &body, false); err != nil {
			respondError(c, d.Log, err)
			return
		}
		l, err := d.Languages.CreateLanguage(c.Request.Context(), body.Data)
		if err != nil {
			respondError(c, d.Log, err)
			return
		}
		respondData(c, http.StatusCreated, l)
	}
}

// PUT /api/languages/:code
func UpdateLanguageHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dataBody[locale.LanguageUpdate]
		if err := bindJSON(c, &body, false); err != nil {
			respondError(c, d.Log, err)
			return
		}
		l, err := d.Languages.UpdateLanguage(c.Request.Context(), c.Param("code"), body.Data)
		if err != nil {
			respondError(c, d.Log, err)
			return
		}
		respondData(c, http.StatusOK, l)
	}
}

// DELETE /api/languages/:code
func DeleteLanguageHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := d.Languages.DeleteLanguage(c.Request.Context(), c.Param("code")); err != nil {
			respondError(c, d.Log, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
