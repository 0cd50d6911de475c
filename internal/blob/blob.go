// Package blob: хранилище загруженных файлов: локальная папка или S3.
package blob

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"path"
	"regexp"
	"strings"
	"time"
)

// Object: результат загрузки; URL отдаётся клиенту для media-полей.
type Object struct {
	Key         string `json:"path"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	SHA256      string `json:"sha256"`
	ContentType string `json:"mime"`
}

type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (*Object, error)
	Delete(ctx context.Context, key string) error
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// NewKey собирает ключ вида "2026/03/<hex>-<имя>".
func NewKey(filename string, now time.Time) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), `\`, "/"))
	name = strings.Trim(unsafeChars.ReplaceAllString(name, "-"), "-.")
	if name == "" {
		name = "file"
	}
	return fmt.Sprintf("%04d/%02d/%s-%s", now.Year(), int(now.Month()), randomHex(8), strings.ToLower(name))
}

// randomHex возвращает hex длиной 2*n
func randomHex(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// cleanKey отсекает абсолютные пути и выход за корень.
func cleanKey(key string) (string, error) {
	k := path.Clean("/" + strings.ReplaceAll(key, `\`, "/"))
	k = strings.TrimPrefix(k, "/")
	if k == "" || k == "." {
		return "", fmt.Errorf("blob: empty key")
	}
	return k, nil
}

// counter считает байты и sha256 проходящего потока.
type counter struct {
	n int64
	h hash.Hash
}

func newCounter() *counter { return &counter{h: sha256.New()} }

func (c *counter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return c.h.Write(p)
}

func (c *counter) sum() string { return hex.EncodeToString(c.h.Sum(nil)) }

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
