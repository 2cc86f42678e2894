package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/ardhptr21/myits-lapor/internal/config"
)

var (
	ErrNotFound    = errors.New("file not found")
	ErrInvalidPath = errors.New("invalid file path")
)

// FileInfo describes a stored file. Key is relative to the store root,
// e.g. "reports/1712345678901123-photo.jpg".
type FileInfo struct {
	Key         string
	Size        int64
	ContentType string
	ModTime     time.Time
}

// FileStore persists uploaded photos. Remove of a missing key is a no-op.
type FileStore interface {
	Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadSeekCloser, FileInfo, error)
	Remove(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]FileInfo, error)
}

// New builds the store selected by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig) (FileStore, error) {
	switch cfg.Driver {
	case config.StorageDriverLocal:
		return NewLocalStore(cfg.LocalDir)
	case config.StorageDriverMinio:
		store, err := NewObjectStore(cfg)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// Layout maps between the photo paths kept on records
// ("uploads/reports/x.jpg") and store keys ("reports/x.jpg").
type Layout struct {
	Root string
}

func NewLayout(publicPrefix string) Layout {
	return Layout{Root: strings.Trim(publicPrefix, "/")}
}

func (l Layout) Path(key string) string {
	return path.Join(l.Root, key)
}

// Key resolves a record path, or the tail of a /uploads/* request, to a store
// key. Paths escaping the root are rejected.
func (l Layout) Key(p string) (string, error) {
	p = strings.TrimPrefix(p, "/")
	if l.Root != "" {
		if !strings.HasPrefix(p, l.Root+"/") {
			return "", ErrInvalidPath
		}
		p = strings.TrimPrefix(p, l.Root+"/")
	}
	return cleanKey(p)
}

func cleanKey(key string) (string, error) {
	if key == "" || strings.Contains(key, "\\") {
		return "", ErrInvalidPath
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", ErrInvalidPath
		}
	}
	return key, nil
}
