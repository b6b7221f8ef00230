package app

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	artifactcache "variantforge/internal/cache/artifact"
	"variantforge/internal/config"
	artifactrepo "variantforge/internal/repository/artifact"
	"variantforge/internal/repository/record"
)

type stores struct {
	records   record.Store
	artifacts artifactrepo.Store
}

func initStores(cfg *config.Config, logger *zap.Logger) (*stores, error) {
	records, err := initRecordStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	artifacts, err := initArtifactStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &stores{records: records, artifacts: artifacts}, nil
}

func initRecordStore(cfg *config.Config, logger *zap.Logger) (record.Store, error) {
	if dsn := strings.TrimSpace(cfg.DatabaseURL); dsn != "" {
		store, err := record.NewPostgresStore(dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open record store: %w", err)
		}
		logger.Info("record store: postgres")
		return store, nil
	}
	logger.Info("record store: in-memory (DATABASE_URL not set)")
	return record.NewMemoryStore(), nil
}

// initArtifactStore picks the blob origin (s3, local disk, then in-memory)
// and always fronts it with the LRU cache.
func initArtifactStore(cfg *config.Config, logger *zap.Logger) (artifactrepo.Store, error) {
	var origin artifactrepo.Store
	switch {
	case cfg.Artifact.CanUseS3():
		s3Store, err := artifactrepo.NewS3Store(artifactrepo.S3Config{
			Endpoint:  cfg.Artifact.Endpoint,
			Region:    cfg.Artifact.Region,
			AccessKey: cfg.Artifact.AccessKey,
			SecretKey: cfg.Artifact.SecretKey,
			Bucket:    cfg.Artifact.Bucket,
			UseSSL:    cfg.Artifact.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize artifact s3 store: %w", err)
		}
		logger.Info("artifact store: s3",
			zap.String("bucket", cfg.Artifact.Bucket),
			zap.String("endpoint", cfg.Artifact.Endpoint))
		origin = s3Store
	case strings.TrimSpace(os.Getenv("ARTIFACT_DIR")) != "":
		dir := strings.TrimSpace(os.Getenv("ARTIFACT_DIR"))
		logger.Info("artifact store: local disk", zap.String("dir", dir))
		origin = artifactcache.NewDiskStore(dir)
	default:
		if cfg.Artifact.Enabled {
			logger.Info("artifact store: in-memory fallback (s3 config incomplete)")
		}
		origin = artifactrepo.NewMemoryStore()
	}
	return artifactcache.NewCachedStore(origin, artifactcache.DefaultCacheConfig()), nil
}
