package storage

import (
	"fmt"
	"io"
	"strings"

	"github.com/PaulBabatuyi/PlacementAssets/internal/models"
	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
)

// ValidateDeclared checks the declared size and MIME type against the
// policy for the upload's kind. Nothing touches the disk here.
func ValidateDeclared(req *models.UploadRequest) error {
	policy := models.PolicyFor(req.Kind)

	if req.SizeBytes > policy.MaxBytes {
		return fmt.Errorf("%w: %s exceeds the %s limit for %s",
			models.ErrFileTooLarge,
			humanize.IBytes(uint64(req.SizeBytes)),
			humanize.IBytes(uint64(policy.MaxBytes)),
			req.Kind)
	}

	if !policy.Allows(req.DeclaredMimeType) {
		return fmt.Errorf("%w: %q is not accepted for %s",
			models.ErrUnsupportedType, req.DeclaredMimeType, req.Kind)
	}

	return nil
}

// ValidateContentType checks that the staged bytes look like the declared type.
func ValidateContentType(reader io.Reader, declaredType string) error {
	detected, err := mimetype.DetectReader(reader)
	if err != nil {
		return fmt.Errorf("read magic bytes: %w", err)
	}

	if !isContentTypeMatch(detected, models.NormalizeMime(declaredType)) {
		return fmt.Errorf("%w: content type mismatch: declared=%s, detected=%s",
			models.ErrUnsupportedType, declaredType, detected.String())
	}

	return nil
}

func isContentTypeMatch(detected *mimetype.MIME, declared string) bool {
	// Is walks the detected type's aliases
	if detected.Is(declared) {
		return true
	}

	// Any image matches any declared image type; browsers often mislabel
	// jpg/jpeg/pjpeg and the remote side normalises logos anyway
	if strings.HasPrefix(declared, "image/") {
		for m := detected; m != nil; m = m.Parent() {
			if strings.HasPrefix(m.String(), "image/") {
				return true
			}
		}
		return false
	}

	// Office containers are detected by their envelope when the inner
	// markers are missing
	containers := map[string][]string{
		models.MimeDOCX: {"application/zip"},
		models.MimeDOC:  {"application/x-ole-storage"},
	}
	if compatibles, ok := containers[declared]; ok {
		for m := detected; m != nil; m = m.Parent() {
			for _, compat := range compatibles {
				if m.Is(compat) {
					return true
				}
			}
		}
	}

	return false
}
