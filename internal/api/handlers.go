package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"klinika/internal/apperr"
	"klinika/internal/content"
	"klinika/internal/domain"
)

type writeBody struct {
	Data         map[string]any        `json:"data"`
	Translations []content.Translation `json:"translations"`
}

// GET /api/:collection
func FindHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := parseContentQuery(c.Request.URL.Query())
		if err != nil {
			respondError(c, d.Log, err)
			return
		}
		res, err := d.Content.Find(c.Request.Context(), collection(c), q)
		if err != nil {
			respondError(c, d.Log, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// GET /api/:collection/count
func CountHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := parseContentQuery(c.Request.URL.Query())
		if err != nil {
			respondError(c, d.Log, err)
			return
		}
		n, err := d.Content.Count(c.Request.Context(), collection(c), q)
		if err != nil {
			respondError(c, d.Log, err)
			return
		}
		respondData(c, http.StatusOK, gin.H{"total": n})
	}
}

// GET /api/:collection/:id
func GetOneHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := parseContentQuery(c.Request.URL.Query())
		if err != nil {
			respondError(c, d.Log, err)
			return
		}
		e, err := d.Content.FindOne(c.Request.Context(), collection(c), c.Param("id"), q)
		if err != nil {
			respondError(c, d.Log, err)
			return
		}
		if e == nil {
			respondError(c, d.Log, apperr.NotFound("Entry '%s' not found", c.Param("id")))
			return
		}
		respondData(c, http.StatusOK, e)
	}
}

// POST /api/:collection
func CreateHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body writeBody
		if err := bindJSON(c, &body, false); err != nil {
			respondError(c, d.Log, err)
			return
		}
		if body.Data == nil {
			respondError(c, d.Log, apperr.FieldValidation("data", "Request body must contain a data object"))
			return
		}
		e, err := d.Content.Create(c.Request.Context(), collection(c), body.Data, body.Translations)
		if err != nil {
			respondError(c, d.Log, err)
			return
		}
		respondData(c, http.StatusCreated, e)
	}
}

// PUT /api/:collection/:id
func UpdateHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body writeBody
		if err := bindJSON(c, &body, false); err != nil {
			respondError(c, d.Log, err)
			return
		}
		if body.Data == nil {
			respondError(c, d.Log, apperr.FieldValidation("data", "Request body must contain a data object"))
			return
		}
		e, err := d.Content.Update(c.Request.Context(), collection(c), c.Param("id"), body.Data, body.Translations)
		if err != nil {
			respondError(c, d.Log, err)
			return
		}
		respondData(c, http.StatusOK, e)
	}
}

// DELETE /api/:collection/:id
func DeleteHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := d.Content.Delete(c.Request.Context(), collection(c), c.Param("id")); err != nil {
			respondError(c, d.Log, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// POST /api/:collection/:id/actions  {action: publish|unpublish|archive}
func ActionHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Action string `json:"action"`
		}
		if err := bindJSON(c, &body, false); err != nil {
			respondError(c, d.Log, err)
			return
		}
		st, err := domain.StatusForAction(body.Action)
		if err != nil {
			respondError(c, d.Log, err)
			return
		}
		e, err := d.Content.SetStatus(c.Request.Context(), collection(c), c.Param("id"), st)
		if err != nil {
			respondError(c, d.Log, err)
			return
		}
		respondData(c, http.StatusOK, e)
	}
}
