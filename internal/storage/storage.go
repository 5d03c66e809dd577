package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/PaulBabatuyi/PlacementAssets/internal/models"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Stager places incoming uploads on local ephemeral storage before they are
// pushed to the remote store. Every staged file must be released by the caller.
type Stager struct {
	fs          afero.Fs
	basePath    string // e.g., "./uploads/temp"
	sniff       bool
	logger      *zap.Logger
	now         func() time.Time
	randomToken func() string
}

type StagerOption func(*Stager)

// WithContentSniffing toggles the check that staged bytes match the declared type.
func WithContentSniffing(enabled bool) StagerOption {
	return func(s *Stager) { s.sniff = enabled }
}

func WithClock(now func() time.Time) StagerOption {
	return func(s *Stager) { s.now = now }
}

func NewStager(fs afero.Fs, basePath string, logger *zap.Logger, opts ...StagerOption) (*Stager, error) {
	s := &Stager{
		fs:          fs,
		basePath:    basePath,
		sniff:       true,
		logger:      logger,
		now:         time.Now,
		randomToken: RandomToken,
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, kind := range []models.AssetKind{models.AssetResume, models.AssetLogo} {
		if err := fs.MkdirAll(s.kindDir(kind), 0o755); err != nil {
			return nil, fmt.Errorf("create staging dir: %w", err)
		}
	}

	return s, nil
}

// Stage validates the request and writes its bytes under a kind-specific
// directory. On any error no file is left behind.
func (s *Stager) Stage(req *models.UploadRequest) (*models.StagedFile, error) {
	// 1. Reject on declared size/type before touching the disk
	if err := ValidateDeclared(req); err != nil {
		return nil, err
	}

	src, closeSrc, err := s.open(req)
	if err != nil {
		return nil, err
	}
	defer closeSrc()

	// 2. Create a collision-resistant local file
	name := StagedName(req.Kind, s.now(), s.randomToken(), filepath.Ext(req.FileName))
	localPath := filepath.Join(s.kindDir(req.Kind), name)

	dst, err := s.fs.OpenFile(localPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create staged file: %w", err)
	}

	staged := &models.StagedFile{
		LocalPath:    localPath,
		OriginalName: filepath.Base(req.FileName),
		MimeType:     models.NormalizeMime(req.DeclaredMimeType),
		Kind:         req.Kind,
	}

	// 3. Copy at most ceiling+1 bytes so an understated size is still caught
	limit := models.PolicyFor(req.Kind).MaxBytes
	written, copyErr := io.Copy(dst, io.LimitReader(src, limit+1))
	closeErr := dst.Close()

	switch {
	case copyErr != nil:
		s.discard(staged)
		return nil, fmt.Errorf("write staged file: %w", copyErr)
	case closeErr != nil:
		s.discard(staged)
		return nil, fmt.Errorf("close staged file: %w", closeErr)
	case written > limit:
		s.discard(staged)
		return nil, fmt.Errorf("%w: body exceeds %d bytes for %s", models.ErrFileTooLarge, limit, req.Kind)
	case written == 0:
		s.discard(staged)
		return nil, fmt.Errorf("%w: file is empty", models.ErrMissingFile)
	}
	staged.SizeBytes = written

	// 4. Check magic bytes against the declared type
	if s.sniff {
		if err := s.sniffStaged(staged); err != nil {
			s.discard(staged)
			return nil, err
		}
	}

	return staged, nil
}

// Release removes the staged file. Releasing twice, or releasing a file that
// is already gone, is not an error.
func (s *Stager) Release(staged *models.StagedFile) error {
	if staged == nil || staged.LocalPath == "" {
		return nil
	}
	err := s.fs.Remove(staged.LocalPath)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("remove staged file %s: %w", staged.LocalPath, err)
}

// Open returns a reader over a staged file.
func (s *Stager) Open(staged *models.StagedFile) (afero.File, error) {
	return s.fs.Open(staged.LocalPath)
}

// Sweep removes staged files older than maxAge. It only matters after a
// crash, since every request releases its own file.
func (s *Stager) Sweep(maxAge time.Duration) (int, error) {
	cutoff := s.now().Add(-maxAge)
	removed := 0

	for _, kind := range []models.AssetKind{models.AssetResume, models.AssetLogo} {
		entries, err := afero.ReadDir(s.fs, s.kindDir(kind))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return removed, fmt.Errorf("read staging dir: %w", err)
		}

		for _, entry := range entries {
			if entry.IsDir() || entry.ModTime().After(cutoff) {
				continue
			}
			path := filepath.Join(s.kindDir(kind), entry.Name())
			if err := s.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				s.logger.Warn("failed to sweep staged file", zap.String("path", path), zap.Error(err))
				continue
			}
			removed++
		}
	}

	return removed, nil
}

func (s *Stager) open(req *models.UploadRequest) (io.Reader, func(), error) {
	if req.Content != nil {
		return req.Content, func() {}, nil
	}
	if req.LocalPath == "" {
		return nil, nil, models.ErrMissingFile
	}
	f, err := s.fs.Open(req.LocalPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open upload: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func (s *Stager) sniffStaged(staged *models.StagedFile) error {
	f, err := s.fs.Open(staged.LocalPath)
	if err != nil {
		return fmt.Errorf("open staged file: %w", err)
	}
	defer f.Close()
	return ValidateContentType(f, staged.MimeType)
}

func (s *Stager) discard(staged *models.StagedFile) {
	if err := s.Release(staged); err != nil {
		s.logger.Warn("failed to discard staged file", zap.String("path", staged.LocalPath), zap.Error(err))
	}
}

func (s *Stager) kindDir(kind models.AssetKind) string {
	return filepath.Join(s.basePath, string(kind)+"s")
}

// StagedName builds "<kind>-<unixMillis>-<token><ext>".
func StagedName(kind models.AssetKind, at time.Time, token, ext string) string {
	ext = strings.ToLower(ext)
	if len(ext) > 10 || strings.ContainsAny(ext, `/\`) {
		ext = ""
	}
	return string(kind) + "-" + strconv.FormatInt(at.UnixMilli(), 10) + "-" + token + ext
}

// RandomToken returns 12 random lower-case hex characters.
func RandomToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
