package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PaulBabatuyi/PlacementAssets/internal/models"
	"github.com/PaulBabatuyi/PlacementAssets/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// PlaceholderCompanyName names the company profile created on a first logo
// upload by a company user without a profile.
const PlaceholderCompanyName = "My Company"

// AssetService coordinates stage -> upload -> persist -> cleanup for
// resumes and logos.
type AssetService struct {
	backend   StorageBackend
	owners    OwnerStore
	inspector DocumentInspector
	folder    string
	uploadSem *semaphore.Weighted

	logger  *zap.Logger
	metrics *observability.AssetMetrics
	tracer  trace.Tracer
}

type Option func(*AssetService)

func WithFolder(folder string) Option {
	return func(s *AssetService) { s.folder = folder }
}

func WithInspector(i DocumentInspector) Option {
	return func(s *AssetService) { s.inspector = i }
}

// WithMaxConcurrentUploads bounds remote uploads across all requests.
func WithMaxConcurrentUploads(n int64) Option {
	return func(s *AssetService) {
		if n > 0 {
			s.uploadSem = semaphore.NewWeighted(n)
		}
	}
}

func NewAssetService(backend StorageBackend, owners OwnerStore, logger *zap.Logger, metrics *observability.AssetMetrics, opts ...Option) *AssetService {
	s := &AssetService{
		backend:   backend,
		owners:    owners,
		folder:    "portal-uploads",
		uploadSem: semaphore.NewWeighted(8),
		logger:    logger,
		metrics:   metrics,
		tracer:    otel.Tracer("github.com/PaulBabatuyi/PlacementAssets/internal/service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReplaceAsset stores a new resume or logo for req.OwnerID and retires the
// previous one. The staged file is gone when this returns, whatever happens.
func (s *AssetService) ReplaceAsset(ctx context.Context, req *models.UploadRequest) (asset *models.RemoteAsset, err error) {
	kind := req.Kind
	ctx, span := s.tracer.Start(ctx, "asset.replace", trace.WithAttributes(
		attribute.String("asset.kind", kind.String()),
		attribute.String("owner.id", req.OwnerID),
	))
	defer func() {
		s.metrics.Uploads.WithLabelValues(kind.String(), models.ErrorKind(err)).Inc()
		endSpan(span, err)
	}()

	if _, ok := models.ParseAssetKind(kind.String()); !ok {
		return nil, fmt.Errorf("%w: unknown asset kind %q", models.ErrValidation, kind)
	}
	logger := s.logger.With(zap.String("owner_id", req.OwnerID), zap.String("kind", kind.String()))

	// 1. Look up the owner. Resumes need an existing student profile; a
	// company gets a placeholder, created only once the file is valid.
	owner, err := s.owners.FindOwner(ctx, kind.OwnerKind(), req.OwnerID)
	needsPlaceholder := false
	switch {
	case errors.Is(err, models.ErrNotFound):
		if kind == models.AssetResume {
			return nil, fmt.Errorf("%w: no student profile for user %s, complete the profile first", models.ErrNotFound, req.OwnerID)
		}
		needsPlaceholder = true
	case err != nil:
		return nil, fmt.Errorf("%w: find %s: %v", models.ErrPersistence, kind.OwnerKind(), err)
	}

	// 2. Stage locally; validation failures stop here with nothing changed
	staged, err := s.backend.Stage(req)
	if err != nil {
		return nil, err
	}
	defer s.release(staged, logger)
	s.metrics.StagedBytes.WithLabelValues(kind.String()).Observe(float64(staged.SizeBytes))

	if kind == models.AssetResume {
		s.inspect(staged, logger)
	}

	if needsPlaceholder {
		owner, err = s.owners.CreateOwner(ctx, &models.OwnerRecord{
			UserID: req.OwnerID,
			Kind:   models.OwnerCompany,
			Name:   PlaceholderCompanyName,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: create placeholder company: %v", models.ErrPersistence, err)
		}
		logger.Info("created placeholder company profile", zap.String("company_id", owner.ID))
	}

	// 3. Remember the current asset; it is only deleted after success
	prevURL, prevID := owner.Asset(kind)

	// 4. Upload. Once a slot is held the call runs to completion or failure;
	// a caller hanging up does not abort it.
	asset, err = s.upload(ctx, staged, kind)
	ctx = context.WithoutCancel(ctx)

	// 5. The staged file goes on both paths
	s.release(staged, logger)
	if err != nil {
		logger.Error("remote upload failed", zap.Error(err))
		return nil, err
	}

	owner.SetAsset(kind, asset.URL, asset.Identifier)
	if err := s.owners.SaveOwner(ctx, owner); err != nil {
		s.metrics.Orphans.WithLabelValues(kind.String()).Inc()
		logger.Error("owner record not saved after upload, remote object orphaned",
			zap.String("identifier", asset.Identifier),
			zap.String("url", asset.URL),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: save %s: %v", models.ErrPersistence, owner.Kind, err)
	}

	logger.Info("asset replaced",
		zap.String("url", asset.URL),
		zap.String("identifier", asset.Identifier),
		zap.Int64("size", asset.SizeBytes),
	)

	// 6. Retire the previous object. The replace already succeeded, so
	// this never fails the call.
	if prevURL != "" {
		s.deleteRemote(ctx, kind, prevURL, prevID, asset.Identifier, logger)
	}

	return asset, nil
}

// DeleteAsset removes the owner's current asset of kind. The record is
// cleared even when the remote delete fails.
func (s *AssetService) DeleteAsset(ctx context.Context, ownerID string, kind models.AssetKind) (err error) {
	ctx, span := s.tracer.Start(ctx, "asset.delete", trace.WithAttributes(
		attribute.String("asset.kind", kind.String()),
		attribute.String("owner.id", ownerID),
	))
	defer func() { endSpan(span, err) }()

	logger := s.logger.With(zap.String("owner_id", ownerID), zap.String("kind", kind.String()))

	owner, err := s.findWithAsset(ctx, ownerID, kind)
	if err != nil {
		return err
	}
	url, identifier := owner.Asset(kind)

	s.deleteRemote(ctx, kind, url, identifier, "", logger)

	owner.ClearAsset(kind)
	if err := s.owners.SaveOwner(ctx, owner); err != nil {
		return fmt.Errorf("%w: save %s: %v", models.ErrPersistence, owner.Kind, err)
	}

	logger.Info("asset deleted", zap.String("url", url))
	return nil
}

// GetAsset returns the owner's current asset of kind.
func (s *AssetService) GetAsset(ctx context.Context, ownerID string, kind models.AssetKind) (*models.RemoteAsset, error) {
	owner, err := s.findWithAsset(ctx, ownerID, kind)
	if err != nil {
		return nil, err
	}
	url, identifier := owner.Asset(kind)
	return &models.RemoteAsset{
		URL:          url,
		Identifier:   identifier,
		ResourceKind: kind.ResourceKind(),
	}, nil
}

func (s *AssetService) findWithAsset(ctx context.Context, ownerID string, kind models.AssetKind) (*models.OwnerRecord, error) {
	if _, ok := models.ParseAssetKind(kind.String()); !ok {
		return nil, fmt.Errorf("%w: unknown asset kind %q", models.ErrValidation, kind)
	}

	owner, err := s.owners.FindOwner(ctx, kind.OwnerKind(), ownerID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: no %s profile for user %s", models.ErrNotFound, kind.OwnerKind(), ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find %s: %v", models.ErrPersistence, kind.OwnerKind(), err)
	}

	if url, _ := owner.Asset(kind); url == "" {
		return nil, fmt.Errorf("%w: no %s on file", models.ErrNotFound, kind)
	}
	return owner, nil
}

func (s *AssetService) upload(ctx context.Context, staged *models.StagedFile, kind models.AssetKind) (*models.RemoteAsset, error) {
	if err := s.uploadSem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: waiting for upload slot: %v", models.ErrRemoteUpload, err)
	}
	defer s.uploadSem.Release(1)

	start := time.Now()
	asset, err := s.backend.Upload(context.WithoutCancel(ctx), staged, s.folder, kind.ResourceKind())
	s.metrics.UploadDuration.WithLabelValues(kind.String()).Observe(time.Since(start).Seconds())

	if err != nil {
		if !errors.Is(err, models.ErrRemoteUpload) {
			err = fmt.Errorf("%w: %v", models.ErrRemoteUpload, err)
		}
		return nil, err
	}
	return asset, nil
}

// deleteRemote is best-effort: failures are logged and counted only.
func (s *AssetService) deleteRemote(ctx context.Context, kind models.AssetKind, url, identifier, keep string, logger *zap.Logger) {
	if identifier == "" {
		// rows written before identifiers were persisted
		derived, err := s.backend.IdentifierFromURL(url)
		if err != nil {
			s.metrics.Deletes.WithLabelValues(kind.String(), "skipped").Inc()
			logger.Warn("cannot derive identifier from url, remote object left in place",
				zap.String("url", url), zap.Error(err))
			return
		}
		identifier = derived
	}
	if identifier == keep {
		return
	}

	if !s.backend.Delete(ctx, identifier, kind.ResourceKind()) {
		s.metrics.Deletes.WithLabelValues(kind.String(), "failed").Inc()
		logger.Warn("previous remote object not deleted", zap.String("identifier", identifier))
		return
	}
	s.metrics.Deletes.WithLabelValues(kind.String(), "ok").Inc()
}

func (s *AssetService) release(staged *models.StagedFile, logger *zap.Logger) {
	if err := s.backend.Release(staged); err != nil {
		logger.Warn("failed to release staged file", zap.String("path", staged.LocalPath), zap.Error(err))
	}
}

func (s *AssetService) inspect(staged *models.StagedFile, logger *zap.Logger) {
	if s.inspector == nil {
		return
	}
	info, err := s.inspector.Inspect(staged)
	if err != nil {
		logger.Debug("resume not inspected", zap.Error(err))
		return
	}
	logger.Debug("resume inspected",
		zap.String("format", info.Format),
		zap.Int("pages", info.Pages),
		zap.Int("paragraphs", info.Paragraphs),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, models.ErrorKind(err))
	}
	span.End()
}
