package filestorage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/librarease/catalog/internal/usecase"
)

// LocalStorage keeps canonical assets in a directory served by the API
// under config.UPLOADS_ROUTE.
type LocalStorage struct {
	dir       string
	publicURL string
}

func NewLocalStorage(dir, publicURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStorage{dir: dir, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

func (f *LocalStorage) Dir() string {
	return f.dir
}

func (f *LocalStorage) GetPublicURL(_ context.Context) (string, error) {
	return f.publicURL, nil
}

// Publish moves localPath into the upload directory as name. A rename is
// tried first; across filesystems the file is copied then removed.
func (f *LocalStorage) Publish(ctx context.Context, localPath, name string) error {
	dest, err := f.path(name)
	if err != nil {
		return err
	}

	err = os.Rename(localPath, dest)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return fmt.Errorf("publish %s: %w", name, err)
	}

	if err := copyFile(ctx, localPath, dest); err != nil {
		_ = os.Remove(dest)
		return fmt.Errorf("publish %s: %w", name, err)
	}
	return os.Remove(localPath)
}

func (f *LocalStorage) Exists(_ context.Context, name string) (bool, error) {
	p, err := f.path(name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (f *LocalStorage) Remove(_ context.Context, name string) error {
	p, err := f.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (f *LocalStorage) ListAssets(_ context.Context) ([]usecase.StoredAsset, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, err
	}

	assets := make([]usecase.StoredAsset, 0, len(entries))
	for _, e := range entries {
		// in-flight conversions are dot files
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		assets = append(assets, usecase.StoredAsset{
			Name:       e.Name(),
			ModifiedAt: info.ModTime(),
		})
	}
	return assets, nil
}

// path resolves name inside dir and rejects anything that would escape it.
func (f *LocalStorage) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid asset name %q", name)
	}
	return filepath.Join(f.dir, name), nil
}

func copyFile(ctx context.Context, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return ctx.Err()
}
