package blob

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Local пишет файлы под Root; URL = BaseURL + "/" + key.
type Local struct {
	Root    string // например, "./uploads"
	BaseURL string // например, "/uploads"
}

func NewLocal(root, baseURL string) *Local {
	if baseURL == "" {
		baseURL = "/uploads"
	}
	return &Local{Root: root, BaseURL: baseURL}
}

func (s *Local) Put(_ context.Context, key string, r io.Reader, contentType string) (*Object, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	full := filepath.Join(s.Root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(full)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c := newCounter()
	if _, err := io.Copy(io.MultiWriter(f, c), r); err != nil {
		_ = os.Remove(full)
		return nil, err
	}
	return &Object{Key: key, URL: joinURL(s.BaseURL, key), Size: c.n, SHA256: c.sum(), ContentType: contentType}, nil
}

// Delete: отсутствующий файл не ошибка.
func (s *Local) Delete(_ context.Context, key string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(s.Root, filepath.FromSlash(key)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Path: путь на диске, для раздачи статики.
func (s *Local) Path(key string) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Root, filepath.FromSlash(key)), nil
}
