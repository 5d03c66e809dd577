package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/PaulBabatuyi/PlacementAssets/internal/config"
	"github.com/PaulBabatuyi/PlacementAssets/internal/database"
	"github.com/PaulBabatuyi/PlacementAssets/internal/media"
	"github.com/PaulBabatuyi/PlacementAssets/internal/objectstore"
	"github.com/PaulBabatuyi/PlacementAssets/internal/observability"
	"github.com/PaulBabatuyi/PlacementAssets/internal/server"
	"github.com/PaulBabatuyi/PlacementAssets/internal/service"
	"github.com/PaulBabatuyi/PlacementAssets/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

type ownerStore interface {
	service.OwnerStore
	Ping(ctx context.Context) error
	Close() error
}

func openOwnerStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ownerStore, error) {
	if cfg.OwnerStore != config.StorePostgres {
		logger.Warn("using in-memory owner store, profiles are lost on restart")
		return database.NewMemoryStore(), nil
	}

	db, err := database.NewPostgresDB(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// newDriver picks the remote store. The local driver also returns the
// filesystem the HTTP server exposes under /files/.
func newDriver(ctx context.Context, cfg *config.Config, fs afero.Fs) (objectstore.Driver, http.FileSystem, error) {
	switch cfg.StorageBackend {
	case config.BackendS3:
		d, err := objectstore.NewS3Driver(ctx, objectstore.S3Config{
			Bucket:        cfg.S3Bucket,
			Region:        cfg.S3Region,
			Endpoint:      cfg.S3Endpoint,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			PathStyle:     cfg.S3PathStyle,
			PublicBaseURL: cfg.S3PublicBaseURL,
		})
		return d, nil, err
	case config.BackendMinio:
		d, err := objectstore.NewMinioDriver(ctx, objectstore.MinioConfig{
			Endpoint:      cfg.MinioEndpoint,
			Region:        cfg.S3Region,
			Bucket:        cfg.S3Bucket,
			AccessKey:     cfg.MinioAccessKey,
			SecretKey:     cfg.MinioSecretKey,
			UseSSL:        cfg.MinioUseSSL,
			PublicBaseURL: cfg.S3PublicBaseURL,
		})
		return d, nil, err
	default:
		d, err := objectstore.NewLocalDriver(fs, cfg.LocalStoreDir, cfg.PublicBaseURL)
		if err != nil {
			return nil, nil, err
		}
		return d, afero.NewHttpFs(afero.NewBasePathFs(fs, d.Root())), nil
	}
}

func newStager(cfg *config.Config, fs afero.Fs, logger *zap.Logger) (*storage.Stager, error) {
	return storage.NewStager(fs, cfg.StagingDir, logger.Named("staging"),
		storage.WithContentSniffing(cfg.StrictContentSniff),
	)
}

func runServe(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting placement assets", zap.Stringer("config", cfg))

	// 1. Tracing
	if cfg.TracingEnabled {
		tp, err := observability.InitTracerProvider(ctx, logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			observability.ShutdownTracerProvider(shutdownCtx, tp, logger)
		}()
	}

	// 2. Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	assetMetrics, err := observability.NewAssetMetrics(reg)
	if err != nil {
		return err
	}
	httpMetrics, err := observability.NewHTTPMetrics(reg)
	if err != nil {
		return err
	}
	grpcMetrics, err := observability.InitGRPCMetrics(reg)
	if err != nil {
		return err
	}

	// 3. Owner records
	owners, err := openOwnerStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open owner store: %w", err)
	}
	defer owners.Close()

	// 4. Staging and the remote store
	fs := afero.NewOsFs()
	stager, err := newStager(cfg, fs, logger)
	if err != nil {
		return err
	}
	if n, err := stager.Sweep(cfg.StagingMaxAge); err != nil {
		logger.Warn("startup sweep failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("removed stale staged files", zap.Int("count", n))
	}

	driver, files, err := newDriver(ctx, cfg, fs)
	if err != nil {
		return fmt.Errorf("init %s store: %w", cfg.StorageBackend, err)
	}
	client := objectstore.NewClient(fs, driver, logger.Named("objectstore"),
		objectstore.WithTimeout(cfg.UploadTimeout),
		objectstore.WithNormalizer(media.NewLogoNormalizer(cfg.LogoMaxDimension)),
	)
	backend := objectstore.NewBackend(stager, client)
	logger.Info("remote store ready", zap.String("driver", backend.DriverName()))

	// 5. Coordinator
	svc := service.NewAssetService(backend, owners, logger.Named("assets"), assetMetrics,
		service.WithFolder(cfg.UploadFolder),
		service.WithInspector(media.NewDocumentInspector(fs)),
		service.WithMaxConcurrentUploads(cfg.MaxConcurrentUploads),
	)

	// 6. Transports
	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := server.NewRouter(svc, owners, logger.Named("http"), server.RouterOptions{
		APIKeys:     cfg.APIKeys,
		CORSOrigins: cfg.CORSOrigins,
		Files:       files,
		Gatherer:    reg,
		HTTPMetrics: httpMetrics,
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	admin := server.NewAdminServer(owners, logger.Named("admin"), grpcMetrics)
	adminLis, err := net.Listen("tcp", cfg.AdminGRPCAddr)
	if err != nil {
		return fmt.Errorf("listen admin grpc: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return admin.Serve(adminLis)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		admin.Stop(shutdownCtx)
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func runSweep(cfg *config.Config, logger *zap.Logger, maxAge time.Duration) (int, error) {
	stager, err := newStager(cfg, afero.NewOsFs(), logger)
	if err != nil {
		return 0, err
	}
	return stager.Sweep(maxAge)
}
