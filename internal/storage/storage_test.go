package storage_test

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/PaulBabatuyi/PlacementAssets/internal/models"
	"github.com/PaulBabatuyi/PlacementAssets/internal/storage"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const stagingDir = "/uploads/temp"

var pngMagic = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func pdfBytes(size int) []byte {
	content := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("a"), size)...)
	return content[:size]
}

func setupStager(t *testing.T, opts ...storage.StagerOption) (*storage.Stager, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	s, err := storage.NewStager(fs, stagingDir, zap.NewNop(), opts...)
	require.NoError(t, err)
	return s, fs
}

func listStaged(t *testing.T, fs afero.Fs, kind models.AssetKind) []string {
	t.Helper()
	entries, err := afero.ReadDir(fs, filepath.Join(stagingDir, string(kind)+"s"))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestStageAndRelease(t *testing.T) {
	s, fs := setupStager(t)
	content := pdfBytes(3 << 20)

	require.Empty(t, listStaged(t, fs, models.AssetResume))

	staged, err := s.Stage(&models.UploadRequest{
		OwnerID:          "S1",
		Kind:             models.AssetResume,
		FileName:         "resume.pdf",
		Content:          bytes.NewReader(content),
		DeclaredMimeType: "application/pdf",
		SizeBytes:        int64(len(content)),
	})
	require.NoError(t, err)

	assert.Equal(t, "resume.pdf", staged.OriginalName)
	assert.Equal(t, "application/pdf", staged.MimeType)
	assert.Equal(t, int64(len(content)), staged.SizeBytes)
	assert.Regexp(t, `^resume-\d+-[0-9a-f]{12}\.pdf$`, filepath.Base(staged.LocalPath))
	assert.Len(t, listStaged(t, fs, models.AssetResume), 1)

	onDisk, err := afero.ReadFile(fs, staged.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, content, onDisk)

	require.NoError(t, s.Release(staged))
	assert.Empty(t, listStaged(t, fs, models.AssetResume))
}

func TestStageLogo(t *testing.T) {
	s, fs := setupStager(t)

	staged, err := s.Stage(&models.UploadRequest{
		Kind:             models.AssetLogo,
		FileName:         "logo.png",
		Content:          bytes.NewReader(pngMagic),
		DeclaredMimeType: "image/png",
		SizeBytes:        int64(len(pngMagic)),
	})
	require.NoError(t, err)
	assert.Contains(t, staged.LocalPath, filepath.Join(stagingDir, "logos"))

	require.NoError(t, s.Release(staged))
	assert.Empty(t, listStaged(t, fs, models.AssetLogo))
}

func TestStageRejectsDeclaredOversize(t *testing.T) {
	s, fs := setupStager(t)

	_, err := s.Stage(&models.UploadRequest{
		Kind:             models.AssetLogo,
		FileName:         "huge.png",
		Content:          bytes.NewReader(pngMagic),
		DeclaredMimeType: "image/png",
		SizeBytes:        3 << 20,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrFileTooLarge)
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Empty(t, listStaged(t, fs, models.AssetLogo))
}

func TestStageRejectsUnderstatedSize(t *testing.T) {
	s, fs := setupStager(t)
	content := pdfBytes(5<<20 + 1)

	// Declared size lies; the copy limit still catches it
	_, err := s.Stage(&models.UploadRequest{
		Kind:             models.AssetResume,
		FileName:         "resume.pdf",
		Content:          bytes.NewReader(content),
		DeclaredMimeType: "application/pdf",
		SizeBytes:        1024,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrFileTooLarge)
	assert.Empty(t, listStaged(t, fs, models.AssetResume))
}

func TestStageRejectsUnsupportedType(t *testing.T) {
	s, fs := setupStager(t)

	_, err := s.Stage(&models.UploadRequest{
		Kind:             models.AssetResume,
		FileName:         "setup.exe",
		Content:          bytes.NewReader([]byte("MZ\x90\x00")),
		DeclaredMimeType: "application/x-msdownload",
		SizeBytes:        4,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrUnsupportedType)
	assert.Empty(t, listStaged(t, fs, models.AssetResume))
}

func TestStageRejectsContentMismatch(t *testing.T) {
	s, fs := setupStager(t)

	// Declared as PDF but the bytes are a PNG
	_, err := s.Stage(&models.UploadRequest{
		Kind:             models.AssetResume,
		FileName:         "resume.pdf",
		Content:          bytes.NewReader(pngMagic),
		DeclaredMimeType: "application/pdf",
		SizeBytes:        int64(len(pngMagic)),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrUnsupportedType)
	assert.Contains(t, err.Error(), "content type mismatch")
	assert.Empty(t, listStaged(t, fs, models.AssetResume))
}

func TestStageWithoutSniffing(t *testing.T) {
	s, _ := setupStager(t, storage.WithContentSniffing(false))

	staged, err := s.Stage(&models.UploadRequest{
		Kind:             models.AssetResume,
		FileName:         "resume.pdf",
		Content:          bytes.NewReader([]byte("plain text")),
		DeclaredMimeType: "application/pdf",
		SizeBytes:        10,
	})
	require.NoError(t, err)
	require.NoError(t, s.Release(staged))
}

func TestStageEmptyFile(t *testing.T) {
	s, fs := setupStager(t)

	_, err := s.Stage(&models.UploadRequest{
		Kind:             models.AssetResume,
		FileName:         "resume.pdf",
		Content:          bytes.NewReader(nil),
		DeclaredMimeType: "application/pdf",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrMissingFile)
	assert.Empty(t, listStaged(t, fs, models.AssetResume))
}

func TestStageFromLocalPath(t *testing.T) {
	s, fs := setupStager(t)
	content := pdfBytes(1024)
	require.NoError(t, afero.WriteFile(fs, "/incoming/cv.pdf", content, 0o644))

	staged, err := s.Stage(&models.UploadRequest{
		Kind:             models.AssetResume,
		FileName:         "cv.pdf",
		LocalPath:        "/incoming/cv.pdf",
		DeclaredMimeType: "application/pdf",
		SizeBytes:        int64(len(content)),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), staged.SizeBytes)
	require.NoError(t, s.Release(staged))
}

func TestReleaseIsIdempotent(t *testing.T) {
	s, _ := setupStager(t)
	content := pdfBytes(512)

	staged, err := s.Stage(&models.UploadRequest{
		Kind:             models.AssetResume,
		FileName:         "resume.pdf",
		Content:          bytes.NewReader(content),
		DeclaredMimeType: "application/pdf",
		SizeBytes:        int64(len(content)),
	})
	require.NoError(t, err)

	assert.NoError(t, s.Release(staged))
	assert.NoError(t, s.Release(staged))
	assert.NoError(t, s.Release(nil))
}

func TestStagedNamesAreUnique(t *testing.T) {
	s, fs := setupStager(t, storage.WithClock(func() time.Time { return time.UnixMilli(1700000000000) }))

	for i := 0; i < 20; i++ {
		_, err := s.Stage(&models.UploadRequest{
			Kind:             models.AssetLogo,
			FileName:         "logo.png",
			Content:          bytes.NewReader(pngMagic),
			DeclaredMimeType: "image/png",
			SizeBytes:        int64(len(pngMagic)),
		})
		require.NoError(t, err)
	}
	assert.Len(t, listStaged(t, fs, models.AssetLogo), 20)
}

func TestSweep(t *testing.T) {
	now := time.Now()
	s, fs := setupStager(t, storage.WithClock(func() time.Time { return now }))

	oldPath := filepath.Join(stagingDir, "resumes", "resume-1-old.pdf")
	newPath := filepath.Join(stagingDir, "logos", "logo-2-new.png")
	require.NoError(t, afero.WriteFile(fs, oldPath, []byte("x"), 0o600))
	require.NoError(t, afero.WriteFile(fs, newPath, []byte("y"), 0o600))
	require.NoError(t, fs.Chtimes(oldPath, now.Add(-2*time.Hour), now.Add(-2*time.Hour)))
	require.NoError(t, fs.Chtimes(newPath, now, now))

	removed, err := s.Sweep(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = fs.Stat(oldPath)
	assert.Error(t, err)
	_, err = fs.Stat(newPath)
	assert.NoError(t, err)
}

func TestStagedName(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	assert.Equal(t, "resume-1700000000123-abc.pdf", storage.StagedName(models.AssetResume, at, "abc", ".PDF"))
	assert.Equal(t, "logo-1700000000123-abc", storage.StagedName(models.AssetLogo, at, "abc", ""))
	assert.Len(t, storage.RandomToken(), 12)
}
