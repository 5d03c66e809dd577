package service

import (
	"context"

	"github.com/PaulBabatuyi/PlacementAssets/internal/models"
)

// StorageBackend is local staging plus one remote object store.
type StorageBackend interface {
	Stage(req *models.UploadRequest) (*models.StagedFile, error)
	Release(staged *models.StagedFile) error
	Upload(ctx context.Context, staged *models.StagedFile, folder string, kind models.ResourceKind) (*models.RemoteAsset, error)
	Delete(ctx context.Context, identifier string, kind models.ResourceKind) bool
	IdentifierFromURL(url string) (string, error)
}

// OwnerStore persists student and company profiles.
type OwnerStore interface {
	FindOwner(ctx context.Context, kind models.OwnerKind, userID string) (*models.OwnerRecord, error)
	CreateOwner(ctx context.Context, rec *models.OwnerRecord) (*models.OwnerRecord, error)
	SaveOwner(ctx context.Context, rec *models.OwnerRecord) error
}

// DocumentInspector reads facts out of staged resumes. Optional.
type DocumentInspector interface {
	Inspect(staged *models.StagedFile) (models.DocumentInfo, error)
}
