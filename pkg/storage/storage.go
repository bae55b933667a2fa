// Package storage keeps uploaded originals and generated templates.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

var ErrNotFound = errors.New("stored file not found")

type Storage interface {
	Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Open returns the backend named by driver: "local" (default) rooted at base, or "minio"/"s3".
func Open(ctx context.Context, driver, base string, m MinIOConfig) (Storage, error) {
	switch strings.ToLower(driver) {
	case "minio", "s3":
		st, err := NewMinIO(ctx, m)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "", "local":
		st, err := NewLocal(base)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", driver)
	}
}

// ProgressUploadKey returns uploads/progress/<unix-timestamp>_<upload-id>_<original-name>.
// The upload id keeps same-second uploads of one filename apart.
func ProgressUploadKey(now time.Time, uploadID uint, originalName string) string {
	return path.Join("uploads", "progress", fmt.Sprintf("%d_%d_%s", now.Unix(), uploadID, SafeName(originalName)))
}

// TemplateKey returns templates/<type>_template.xlsx.
func TemplateKey(fileType string) string {
	return path.Join("templates", SafeName(fileType)+"_template.xlsx")
}

// ReportKey returns reports/<id>_<unix-timestamp>.<ext>.
func ReportKey(id uint, now time.Time, ext string) string {
	return path.Join("reports", fmt.Sprintf("%d_%d.%s", id, now.Unix(), strings.TrimPrefix(ext, ".")))
}

// SafeName strips directory components and characters that are awkward in object keys.
func SafeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "file"
	}
	return out
}

func cleanKey(key string) (string, error) {
	k := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	k = strings.TrimPrefix(k, "/")
	if k == "" || k == "." {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return k, nil
}
