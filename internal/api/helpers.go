package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"github.com/gin-gonic/gin"

	"klinika/internal/apperr"
)

// respondData: {data: v}.
func respondData(c *gin.Context, status int, v any) {
	c.JSON(status, gin.H{"data": v})
}

// respondError пишет {error:{message,status}}. Причина internal-ошибок
// остаётся в логе и наружу не уходит.
func respondError(c *gin.Context, log *slog.Logger, err error) {
	kind := apperr.KindOf(err)
	status := kind.Status()
	if kind == apperr.KindInternal {
		log.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"request_id", requestID(c),
			"err", err)
	}
	body := gin.H{"message": apperr.PublicMessage(err), "status": status}
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Field != "" {
		body["field"] = ae.Field
	}
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}

// bindJSON читает тело; пустое тело допустимо, если allowEmpty.
func bindJSON(c *gin.Context, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return apperr.Validation("Invalid JSON body")
	}
	return nil
}

// dataBody: {data: {...}, translations?: [...]}.
type dataBody[T any] struct {
	Data T `json:"data"`
}
