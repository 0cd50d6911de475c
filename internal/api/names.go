package api

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// collection: имя типа из пути. Регистр не важен, дефис равен подчёркиванию:
// /api/clinic-info и /api/clinic_info указывают на один тип.
func collection(c *gin.Context) string {
	name := strings.ToLower(strings.TrimSpace(c.Param("collection")))
	return strings.ReplaceAll(name, "-", "_")
}
