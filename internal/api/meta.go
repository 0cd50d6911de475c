package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"klinika/internal/schema"
	"klinika/internal/sections"
)

// GET /api/section-types
func SectionTypesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		respondData(c, http.StatusOK, sections.List())
	}
}

// GET /api/meta/field-types
func FieldTypesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		respondData(c, http.StatusOK, schema.FieldTypes())
	}
}

type metaField struct {
	Name         string           `json:"name"`
	DisplayName  string           `json:"display_name"`
	Type         schema.FieldType `json:"type"`
	Required     bool             `json:"required"`
	Translatable bool             `json:"translatable"`
	Options      map[string]any   `json:"options,omitempty"`
}

type metaType struct {
	Name         string      `json:"name"`
	DisplayName  string      `json:"display_name"`
	SingularName string      `json:"singular_name"`
	Kind         schema.Kind `json:"kind"`
	Fields       []metaField `json:"fields"`
}

// GET /api/meta/:collection: публичное описание формы типа.
// Скрытые из форм поля не попадают.
func MetaTypeHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ct, err := d.Registry.GetContentTypeByName(c.Request.Context(), collection(c))
		if err != nil {
			respondError(c, d.Log, err)
			return
		}
		out := metaType{
			Name:         ct.Name,
			DisplayName:  ct.DisplayName,
			SingularName: ct.SingularName,
			Kind:         ct.Kind,
			Fields:       make([]metaField, 0, len(ct.Fields)),
		}
		for _, f := range ct.Fields {
			if !f.ShowInForm {
				continue
			}
			out.Fields = append(out.Fields, metaField{
				Name:         f.Name,
				DisplayName:  f.DisplayName,
				Type:         f.Type,
				Required:     f.Required,
				Translatable: f.Translatable,
				Options:      f.Options,
			})
		}
		respondData(c, http.StatusOK, out)
	}
}
