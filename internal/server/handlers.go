package server

import (
	"context"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/PaulBabatuyi/PlacementAssets/internal/middleware"
	"github.com/PaulBabatuyi/PlacementAssets/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// multipartSlack covers boundaries and part headers on top of the file itself.
const multipartSlack = 1 << 20

// AssetService is the lifecycle coordinator behind the HTTP routes.
type AssetService interface {
	ReplaceAsset(ctx context.Context, req *models.UploadRequest) (*models.RemoteAsset, error)
	DeleteAsset(ctx context.Context, ownerID string, kind models.AssetKind) error
	GetAsset(ctx context.Context, ownerID string, kind models.AssetKind) (*models.RemoteAsset, error)
}

// assetHandler serves one asset kind: resumes for students, logos for companies.
type assetHandler struct {
	svc    AssetService
	kind   models.AssetKind
	field  string
	logger *zap.Logger
}

func (h *assetHandler) upload(c *gin.Context) {
	ownerID, err := middleware.ExtractUserID(c)
	if err != nil {
		writeError(c, h.logger, errUnauthenticated)
		return
	}

	limit := models.PolicyFor(h.kind).MaxBytes + multipartSlack
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	header, err := c.FormFile(h.field)
	if err != nil {
		writeError(c, h.logger, formFileError(err, h.field))
		return
	}

	file, err := header.Open()
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	defer file.Close()

	asset, err := h.svc.ReplaceAsset(c.Request.Context(), &models.UploadRequest{
		OwnerID:          ownerID,
		Kind:             h.kind,
		FileName:         header.Filename,
		Content:          file,
		DeclaredMimeType: declaredType(header.Header.Get("Content-Type"), header.Filename),
		SizeBytes:        header.Size,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"url":     asset.URL,
	})
}

func (h *assetHandler) get(c *gin.Context) {
	ownerID, err := middleware.ExtractUserID(c)
	if err != nil {
		writeError(c, h.logger, errUnauthenticated)
		return
	}

	asset, err := h.svc.GetAsset(c.Request.Context(), ownerID, h.kind)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"url":     asset.URL,
	})
}

func (h *assetHandler) remove(c *gin.Context) {
	ownerID, err := middleware.ExtractUserID(c)
	if err != nil {
		writeError(c, h.logger, errUnauthenticated)
		return
	}

	if err := h.svc.DeleteAsset(c.Request.Context(), ownerID, h.kind); err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// declaredType falls back to the file extension when the client sent a
// generic part type.
func declaredType(partType, fileName string) string {
	mt := models.NormalizeMime(partType)
	if mt != "" && mt != "application/octet-stream" {
		return mt
	}
	switch ext := filepath.Ext(fileName); ext {
	case ".doc":
		return models.MimeDOC
	case ".docx":
		return models.MimeDOCX
	default:
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			return models.NormalizeMime(byExt)
		}
	}
	return mt
}
