package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"klinika/internal/apperr"
	"klinika/internal/domain"
	"klinika/internal/pages"
)

// GET /api/pages?status=&locale=&pagination[page]=&pagination[pageSize]=
func ListPagesHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		qv := c.Request.URL.Query()
		q := pages.ListQuery{
			Status: domain.Status(strings.TrimSpace(qv.Get("status"))),
			Locale: strings.TrimSpace(qv.Get("locale")),
		}
		if raw := qv.Get("pagination[page]"); raw != "" {
			n, err := positiveInt("pagination[page]", raw)
			if err != nil {
				respondError(c, d.Log, err)
				return
			}
			q.Page = n
		}
		if raw := qv.Get("pagination[pageSize]"); raw != "" {
			n, err := positiveInt("pagination[pageSize]", raw)
			if err != nil {
				respondError(c, d.Log, err)
				return
			}
			q.PageSize = n
		}
		res, err := d.Pages.FindPages(c.Request.Context(), q)
		if err != nil {
			respondError(c, d.Log, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// GET /api/pages/:id?populate=sections
func GetPageHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		qv := c.Request.URL.Query()
		populate := boolParam(qv, "populate") || strings.Contains(qv.Get("populate"), "sections") || qv.Get("populate") == "*"
		p, err := d.Pages.FindPage(c.Request.Context(), c.Param("id"), populate)
		if err != nil {
			respondError(c, d.Log, err)
			return
		}
		respondData(c, http.StatusOK, p)
	}
}

// POST /api/pages  {data: {title, slug?, status?, locale?, metadata?}}
func CreatePageHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dataBody[*pages.PageInput]
		if err := bindJSON(c, &body, false); err != nil {
			respondError(c, d.Log, err)
			return
		}
		if body.Data == nil {
			respondError(c, d.Log, apperr.FieldValidation("data", "Request body must contain a data object"))
			return
		}
		p, err := d.Pages.CreatePage(c.Request.Context(), *body.Data)
		if err != nil {
			respondError(c, d.Log, err)
			return
		}
		respondData(c, http.StatusCreated, p)
	}
}

// PUT /api/pages/:id  {data: {...}}
func UpdatePageHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dataBody[*pages.PageUpdate]
		if err := bindJSON(c, &body, false); err != nil {
			respondError(c, d.Log, err)
			return
		}
		if body.Data == nil {
			respondError(c, d.Log, apperr.FieldValidation("data", "Request body must contain a data object"))
			return
		}
		p, err := d.Pages.UpdatePage(c.Request.Context(), c.Param("id"), *body.Data)
		if err != nil {
			respondError(c, d.Log, err)
			return
		}
		respondData(c, http.StatusOK, p)
	}
}

// DELETE /api/pages/:id
func DeletePageHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := d.Pages.DeletePage(c.Request.Context(), c.Param("id")); err != nil {
			respondError(c, d.Log, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// POST /api/pages/:id/publish публикует, DELETE снимает с публикации.
func PublishPageHandler(d *Deps, publish bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			p   *pages.Page
			err error
		)
		if publish {
			p, err = d.Pages.PublishPage(c.Request.Context(), c.Param("id"))
		} else {
			p, err = d.Pages.UnpublishPage(c.Request.Context(), c.Param("id"))
		}
		if err != nil {
			respondError(c, d.Log, err)
			return
		}
		respondData(c, http.StatusOK, p)
	}
}

// GET /api/pages/:id/sections
func ListSectionsHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		secs, err := d.Pages.GetPageSections(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, d.Log, err)
			return
		}
		if secs == nil {
			secs = []*pages.Section{}
		}
		respondData(c, http.StatusOK, secs)
	}
}

// POST /api/pages/:id/sections  {section_type, section_data, display_order?}
func AddSectionHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in pages.AddSectionInput
		if err := bindJSON(c, &in, false); err != nil {
			respondError(c, d.Log, err)
			return
		}
		in.PageID = c.Param("id")
		s, err := d.Pages.AddSection(c.Request.Context(), in)
		if err != nil {
			respondError(c, d.Log, err)
			return
		}
		respondData(c, http.StatusCreated, s)
	}
}

// PATCH /api/pages/:id/sections  {sections: [{junctionId, order}]}
func ReorderSectionsHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Sections []pages.SectionOrder `json:"sections"`
		}
		if err := bindJSON(c, &body, false); err != nil {
			respondError(c, d.Log, err)
			return
		}
		secs, err := d.Pages.ReorderSections(c.Request.Context(), c.Param("id"), body.Sections)
		if err != nil {
			respondError(c, d.Log, err)
			return
		}
		respondData(c, http.StatusOK, secs)
	}
}

// PUT /api/pages/:id/sections/:sectionId  {section_type, section_data}
func UpdateSectionHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			SectionType string         `json:"section_type"`
			SectionData map[string]any `json:"section_data"`
			Data        map[string]any `json:"data"`
		}
		if err := bindJSON(c, &body, false); err != nil {
			respondError(c, d.Log, err)
			return
		}
		st := body.SectionType
		if st == "" {
			st = c.Query("section_type")
		}
		if st == "" {
			respondError(c, d.Log, apperr.FieldValidation("section_type", "section_type is required"))
			return
		}
		data := body.SectionData
		if data == nil {
			data = body.Data
		}
		s, err := d.Pages.UpdateSection(c.Request.Context(), c.Param("id"), c.Param("sectionId"), st, data)
		if err != nil {
			respondError(c, d.Log, err)
			return
		}
		respondData(c, http.StatusOK, s)
	}
}

// DELETE /api/pages/:id/sections/:sectionId?section_type=sections.hero
func DeleteSectionHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		st := c.Query("section_type")
		if st == "" {
			var body struct {
				SectionType string `json:"section_type"`
			}
			if err := bindJSON(c, &body, true); err != nil {
				respondError(c, d.Log, err)
				return
			}
			st = body.SectionType
		}
		if st == "" {
			respondError(c, d.Log, apperr.FieldValidation("section_type", "section_type is required"))
			return
		}
		if err := d.Pages.DeleteSection(c.Request.Context(), c.Param("id"), c.Param("sectionId"), st); err != nil {
			respondError(c, d.Log, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
