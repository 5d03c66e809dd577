package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// LocalDriver stores objects in a directory that the HTTP server exposes
// under /files/.
type LocalDriver struct {
	fs            afero.Fs
	basePath      string // e.g., "./data/files"
	publicBaseURL string
}

func NewLocalDriver(fs afero.Fs, basePath, publicBaseURL string) (*LocalDriver, error) {
	if err := fs.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create local store: %w", err)
	}
	return &LocalDriver{
		fs:            fs,
		basePath:      basePath,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
	}, nil
}

func (d *LocalDriver) Put(ctx context.Context, key string, r io.Reader, size int64, contentType, disposition string) error {
	fullPath, err := d.path(key)
	if err != nil {
		return err
	}
	if err := d.fs.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}

	f, err := d.fs.Create(fullPath)
	if err != nil {
		return fmt.Errorf("create object: %w", err)
	}

	if _, err := io.Copy(f, readerWithContext(ctx, r)); err != nil {
		f.Close()
		d.fs.Remove(fullPath)
		return fmt.Errorf("write object: %w", err)
	}
	return f.Close()
}

func (d *LocalDriver) Remove(ctx context.Context, key string) error {
	fullPath, err := d.path(key)
	if err != nil {
		return err
	}
	if err := d.fs.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (d *LocalDriver) URL(key string) string {
	return d.publicBaseURL + "/files/" + key
}

func (d *LocalDriver) Name() string { return "local" }

// Root is the directory served to clients.
func (d *LocalDriver) Root() string { return d.basePath }

func (d *LocalDriver) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(d.basePath, clean), nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
