package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/PaulBabatuyi/PlacementAssets/internal/media"
	"github.com/PaulBabatuyi/PlacementAssets/internal/models"
	"github.com/PaulBabatuyi/PlacementAssets/internal/storage"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// DefaultFolder is the single namespace every upload goes into.
const DefaultFolder = "portal-uploads"

// Driver is one remote object store (local directory, S3, MinIO).
type Driver interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType, disposition string) error
	// Remove must treat an absent key as success.
	Remove(ctx context.Context, key string) error
	URL(key string) string
	Name() string
}

// Client uploads staged files to a Driver and deletes them again.
type Client struct {
	fs         afero.Fs
	driver     Driver
	normalizer *media.LogoNormalizer
	timeout    time.Duration
	logger     *zap.Logger

	now         func() time.Time
	randomToken func() string
}

type ClientOption func(*Client)

// WithTimeout bounds each remote call. Zero disables the bound.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

func WithNormalizer(n *media.LogoNormalizer) ClientOption {
	return func(c *Client) { c.normalizer = n }
}

func WithNaming(now func() time.Time, token func() string) ClientOption {
	return func(c *Client) {
		c.now = now
		c.randomToken = token
	}
}

// NewClient reads staged files through fs, the same filesystem the stager writes to.
func NewClient(fs afero.Fs, driver Driver, logger *zap.Logger, opts ...ClientOption) *Client {
	c := &Client{
		fs:          fs,
		driver:      driver,
		timeout:     30 * time.Second,
		logger:      logger,
		now:         time.Now,
		randomToken: storage.RandomToken,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upload pushes a staged file into folder under a generated name. The
// original filename is never used in the key.
func (c *Client) Upload(ctx context.Context, staged *models.StagedFile, folder string, kind models.ResourceKind) (*models.RemoteAsset, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	f, err := c.fs.Open(staged.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open staged file: %v", models.ErrRemoteUpload, err)
	}
	defer f.Close()

	// 1. Pick the payload for the resource kind
	var (
		body        io.Reader = f
		size                  = staged.SizeBytes
		contentType           = staged.MimeType
		disposition           = "attachment"
	)
	if kind == models.ResourceImage {
		disposition = "inline"
		body, size, contentType, err = c.imagePayload(f, staged)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrRemoteUpload, err)
		}
	}

	// 2. Generate a globally unique key
	identifier := ObjectKey(folder, staged.Kind, c.now(), c.randomToken())

	// 3. Push
	start := time.Now()
	if err := c.driver.Put(ctx, identifier, body, size, contentType, disposition); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s timed out after %s: %v", models.ErrRemoteUpload, c.driver.Name(), c.timeout, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", models.ErrRemoteUpload, c.driver.Name(), err)
	}

	c.logger.Debug("object uploaded",
		zap.String("driver", c.driver.Name()),
		zap.String("identifier", identifier),
		zap.String("resource_kind", string(kind)),
		zap.Int64("size", size),
		zap.Duration("duration", time.Since(start)),
	)

	return &models.RemoteAsset{
		URL:          c.driver.URL(identifier),
		Identifier:   identifier,
		ResourceKind: kind,
		MimeType:     contentType,
		SizeBytes:    size,
	}, nil
}

// Delete removes an object. It never fails the caller: remote errors are
// logged and reported as false.
func (c *Client) Delete(ctx context.Context, identifier string, kind models.ResourceKind) bool {
	if identifier == "" {
		return true
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if err := c.driver.Remove(ctx, identifier); err != nil {
		c.logger.Warn("failed to delete remote object",
			zap.String("driver", c.driver.Name()),
			zap.String("identifier", identifier),
			zap.String("resource_kind", string(kind)),
			zap.Error(err),
		)
		return false
	}
	return true
}

// IdentifierFromURL is the package function exposed on the client so the
// coordinator can reach it through one capability.
func (c *Client) IdentifierFromURL(rawURL string) (string, error) {
	return IdentifierFromURL(rawURL)
}

func (c *Client) imagePayload(f afero.File, staged *models.StagedFile) (io.Reader, int64, string, error) {
	if c.normalizer == nil {
		return f, staged.SizeBytes, staged.MimeType, nil
	}

	data, mimeType, err := c.normalizer.Normalize(f)
	if err == nil {
		return bytes.NewReader(data), int64(len(data)), mimeType, nil
	}

	// svg, webp and friends go up untouched
	c.logger.Info("logo not normalized, uploading original",
		zap.String("mime_type", staged.MimeType),
		zap.Error(err),
	)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, 0, "", fmt.Errorf("rewind staged logo: %w", err)
	}
	return f, staged.SizeBytes, staged.MimeType, nil
}

// ObjectKey builds "<folder>/<kind>-<unixMillis>-<token>".
func ObjectKey(folder string, kind models.AssetKind, at time.Time, token string) string {
	name := string(kind) + "-" + strconv.FormatInt(at.UnixMilli(), 10) + "-" + token
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return name
	}
	return folder + "/" + name
}

// IdentifierFromURL recovers "<folder>/<basename minus extension>" from a
// stored URL. Only the last extension is stripped, so dotted names survive.
func IdentifierFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse asset url: %w", err)
	}

	p := strings.TrimSuffix(u.Path, "/")
	base := path.Base(p)
	if base == "." || base == "/" || base == "" {
		return "", fmt.Errorf("asset url %q has no object name", rawURL)
	}
	base = strings.TrimSuffix(base, path.Ext(base))

	folder := path.Base(path.Dir(p))
	if folder == "." || folder == "/" || folder == "" {
		return base, nil
	}
	return folder + "/" + base, nil
}
