package api

import (
	"errors"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"klinika/internal/apperr"
	"klinika/internal/blob"
)

// POST /api/upload  multipart, поле "file"
func UploadHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d.Blob == nil {
			respondError(c, d.Log, apperr.Internal("blob store is not configured", nil))
			return
		}
		if d.MaxUploadBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, d.MaxUploadBytes)
		}
		file, hdr, err := c.Request.FormFile("file")
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				respondError(c, d.Log, apperr.FieldValidation("file", "File exceeds %d bytes", d.MaxUploadBytes))
				return
			}
			respondError(c, d.Log, apperr.FieldValidation("file", "multipart file not found (field name 'file')"))
			return
		}
		defer file.Close()

		name := safeName(hdr)
		obj, err := d.Blob.Put(c.Request.Context(), blob.NewKey(name, time.Now().UTC()), file, contentTypeOf(hdr, name))
		if err != nil {
			respondError(c, d.Log, err)
			return
		}
		d.Log.Info("file uploaded", "path", obj.Key, "size", obj.Size, "request_id", requestID(c))
		respondData(c, http.StatusCreated, gin.H{
			"url":    obj.URL,
			"path":   obj.Key,
			"name":   name,
			"size":   obj.Size,
			"mime":   obj.ContentType,
			"sha256": obj.SHA256,
		})
	}
}

func safeName(h *multipart.FileHeader) string {
	name := strings.TrimSpace(filepath.Base(h.Filename))
	if name == "" || name == "." || name == "/" {
		return "file"
	}
	return name
}

// contentTypeOf: заголовок части, иначе по расширению.
func contentTypeOf(h *multipart.FileHeader, name string) string {
	if ct := h.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
