package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/PaulBabatuyi/PlacementAssets/internal/middleware"
	"github.com/PaulBabatuyi/PlacementAssets/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var errUnauthenticated = errors.New("unauthenticated")

// httpStatus maps an asset pipeline error to its response status and kind.
func httpStatus(err error) (int, string) {
	if errors.Is(err, errUnauthenticated) {
		return http.StatusUnauthorized, "unauthenticated"
	}

	kind := models.ErrorKind(err)
	switch kind {
	case "file_too_large", "unsupported_type", "missing_file", "validation":
		return http.StatusBadRequest, kind
	case "not_found":
		return http.StatusNotFound, kind
	case "forbidden":
		return http.StatusForbidden, kind
	}
	return http.StatusInternalServerError, kind
}

// writeError sends the failure body. Server-side failures get a generic
// message; the detail goes to the log.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	status, kind := httpStatus(err)
	message := err.Error()

	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("kind", kind),
			zap.Error(err),
		)
		switch kind {
		case "remote_upload":
			message = "file storage is unavailable, please try again"
		case "persistence":
			message = "could not save your profile, please try again"
		default:
			message = "internal server error"
		}
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   kind,
		"message": message,
	})
}

// formFileError classifies a failure to read the multipart file field.
func formFileError(err error, field string) error {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge), strings.Contains(err.Error(), "request body too large"):
		return models.ErrFileTooLarge
	case errors.Is(err, http.ErrMissingFile):
		return models.ErrMissingFile
	}
	return fmt.Errorf("%w: expected multipart form with a %q file", models.ErrValidation, field)
}
