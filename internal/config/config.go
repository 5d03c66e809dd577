package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	BackendLocal = "local"
	BackendS3    = "s3"
	BackendMinio = "minio"

	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	AppEnv        string `mapstructure:"APP_ENV"`
	HTTPAddr      string `mapstructure:"HTTP_ADDR"`
	AdminGRPCAddr string `mapstructure:"ADMIN_GRPC_ADDR"`
	PublicBaseURL string `mapstructure:"PUBLIC_BASE_URL"`

	OwnerStore  string `mapstructure:"OWNER_STORE"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	StorageBackend       string        `mapstructure:"STORAGE_BACKEND"`
	StagingDir           string        `mapstructure:"STAGING_DIR"`
	StagingMaxAge        time.Duration `mapstructure:"STAGING_MAX_AGE"`
	LocalStoreDir        string        `mapstructure:"LOCAL_STORE_DIR"`
	UploadFolder         string        `mapstructure:"UPLOAD_FOLDER"`
	UploadTimeout        time.Duration `mapstructure:"UPLOAD_TIMEOUT"`
	MaxConcurrentUploads int64         `mapstructure:"MAX_CONCURRENT_UPLOADS"`
	StrictContentSniff   bool          `mapstructure:"STRICT_CONTENT_SNIFF"`
	LogoMaxDimension     int           `mapstructure:"LOGO_MAX_DIMENSION"`

	APIKeys     []string `mapstructure:"API_KEYS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	// --- S3 ---
	S3Bucket        string `mapstructure:"S3_BUCKET"`
	S3Region        string `mapstructure:"S3_REGION"`
	S3Endpoint      string `mapstructure:"S3_ENDPOINT"`
	S3AccessKey     string `mapstructure:"S3_ACCESS_KEY"`
	S3SecretKey     string `mapstructure:"S3_SECRET_KEY"`
	S3PathStyle     bool   `mapstructure:"S3_PATH_STYLE"`
	S3PublicBaseURL string `mapstructure:"S3_PUBLIC_BASE_URL"`

	// --- MinIO (bucket and region shared with S3_*) ---
	MinioEndpoint  string `mapstructure:"MINIO_ENDPOINT"`
	MinioAccessKey string `mapstructure:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `mapstructure:"MINIO_SECRET_KEY"`
	MinioUseSSL    bool   `mapstructure:"MINIO_USE_SSL"`

	TracingEnabled bool `mapstructure:"TRACING_ENABLED"`
}

var defaults = map[string]any{
	"APP_ENV":                "development",
	"HTTP_ADDR":              ":8080",
	"ADMIN_GRPC_ADDR":        ":9090",
	"PUBLIC_BASE_URL":        "http://localhost:8080",
	"OWNER_STORE":            StoreMemory,
	"STORAGE_BACKEND":        BackendLocal,
	"STAGING_DIR":            "./uploads/temp",
	"STAGING_MAX_AGE":        "1h",
	"LOCAL_STORE_DIR":        "./uploads/store",
	"UPLOAD_FOLDER":          "portal-uploads",
	"UPLOAD_TIMEOUT":         "30s",
	"MAX_CONCURRENT_UPLOADS": 8,
	"STRICT_CONTENT_SNIFF":   true,
	"LOGO_MAX_DIMENSION":     512,
	"S3_REGION":              "us-east-1",
	"TRACING_ENABLED":        false,
}

// keys without a default still need binding so Unmarshal sees them
var boundKeys = []string{
	"DATABASE_URL", "API_KEYS", "CORS_ORIGINS",
	"S3_BUCKET", "S3_ENDPOINT", "S3_ACCESS_KEY", "S3_SECRET_KEY", "S3_PATH_STYLE", "S3_PUBLIC_BASE_URL",
	"MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "MINIO_USE_SSL",
}

// LoadFromEnv reads .env when present, then the process environment.
func LoadFromEnv() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, errors.New("failed to load .env")
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	for _, k := range boundKeys {
		_ = v.BindEnv(k)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.APIKeys = splitList(cfg.APIKeys)
	cfg.CORSOrigins = splitList(cfg.CORSOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) IsDev() bool {
	return c.AppEnv == "" || c.AppEnv == "development"
}

// Validate checks the settings the selected backends depend on.
func (c *Config) Validate() error {
	var errs []error

	switch c.StorageBackend {
	case BackendLocal:
		if c.LocalStoreDir == "" {
			errs = append(errs, errors.New("LOCAL_STORE_DIR is required for the local backend"))
		}
	case BackendS3:
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required for the s3 backend"))
		}
	case BackendMinio:
		if c.MinioEndpoint == "" || c.S3Bucket == "" {
			errs = append(errs, errors.New("MINIO_ENDPOINT and S3_BUCKET are required for the minio backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend))
	}

	switch c.OwnerStore {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres owner store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown OWNER_STORE %q", c.OwnerStore))
	}

	if c.StagingDir == "" {
		errs = append(errs, errors.New("STAGING_DIR must not be empty"))
	}
	if c.UploadTimeout <= 0 {
		errs = append(errs, errors.New("UPLOAD_TIMEOUT must be positive"))
	}
	if c.MaxConcurrentUploads <= 0 {
		errs = append(errs, errors.New("MAX_CONCURRENT_UPLOADS must be positive"))
	}

	return errors.Join(errs...)
}

func (c *Config) String() string {
	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("  AppEnv: %s\n", c.AppEnv))
	sb.WriteString(fmt.Sprintf("  HTTPAddr: %s\n", c.HTTPAddr))
	sb.WriteString(fmt.Sprintf("  AdminGRPCAddr: %s\n", c.AdminGRPCAddr))
	sb.WriteString(fmt.Sprintf("  PublicBaseURL: %s\n", c.PublicBaseURL))
	sb.WriteString(fmt.Sprintf("  OwnerStore: %s\n", c.OwnerStore))
	sb.WriteString(fmt.Sprintf("  DatabaseURL: %s\n", mask(c.DatabaseURL)))
	sb.WriteString(fmt.Sprintf("  StorageBackend: %s\n", c.StorageBackend))
	sb.WriteString(fmt.Sprintf("  StagingDir: %s (max age %s)\n", c.StagingDir, c.StagingMaxAge))
	sb.WriteString(fmt.Sprintf("  UploadFolder: %s\n", c.UploadFolder))
	sb.WriteString(fmt.Sprintf("  UploadTimeout: %s\n", c.UploadTimeout))
	sb.WriteString(fmt.Sprintf("  MaxConcurrentUploads: %d\n", c.MaxConcurrentUploads))
	sb.WriteString(fmt.Sprintf("  APIKeys: %d configured\n", len(c.APIKeys)))

	switch c.StorageBackend {
	case BackendS3:
		sb.WriteString(fmt.Sprintf("  S3Bucket: %s\n", c.S3Bucket))
		sb.WriteString(fmt.Sprintf("  S3Region: %s\n", c.S3Region))
		sb.WriteString(fmt.Sprintf("  S3Endpoint: %s\n", c.S3Endpoint))
		sb.WriteString(fmt.Sprintf("  S3AccessKey: %s\n", mask(c.S3AccessKey)))
		sb.WriteString(fmt.Sprintf("  S3SecretKey: %s\n", mask(c.S3SecretKey)))
	case BackendMinio:
		sb.WriteString(fmt.Sprintf("  MinioEndpoint: %s\n", c.MinioEndpoint))
		sb.WriteString(fmt.Sprintf("  S3Bucket: %s\n", c.S3Bucket))
		sb.WriteString(fmt.Sprintf("  MinioAccessKey: %s\n", mask(c.MinioAccessKey)))
		sb.WriteString(fmt.Sprintf("  MinioSecretKey: %s\n", mask(c.MinioSecretKey)))
	default:
		sb.WriteString(fmt.Sprintf("  LocalStoreDir: %s\n", c.LocalStoreDir))
	}

	return sb.String()
}

func mask(secret string) string {
	if secret == "" {
		return "(empty)"
	}
	return "********"
}

// splitList flattens comma separated entries; env values arrive as one string.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
