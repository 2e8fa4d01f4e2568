package filestorage

import (
	"context"
	"fmt"
	"os"

	"github.com/librarease/catalog/internal/config"
	"github.com/librarease/catalog/internal/usecase"
)

// FromEnv builds the provider selected by STORAGE_PROVIDER. Local disk is
// the default.
func FromEnv(ctx context.Context) (usecase.FileStorageProvider, error) {
	switch p := os.Getenv(config.ENV_KEY_STORAGE_PROVIDER); p {
	case "", config.STORAGE_PROVIDER_LOCAL:
		return NewLocalStorage(UploadDir(), os.Getenv(config.ENV_KEY_PUBLIC_URL)+config.UPLOADS_ROUTE)
	case config.STORAGE_PROVIDER_MINIO:
		return NewMinIOStorage(
			os.Getenv(config.ENV_KEY_MINIO_BUCKET),
			os.Getenv(config.ENV_KEY_MINIO_PUBLIC_PATH),
			os.Getenv(config.ENV_KEY_MINIO_ENDPOINT),
			os.Getenv(config.ENV_KEY_MINIO_ACCESS_KEY),
			os.Getenv(config.ENV_KEY_MINIO_SECRET_KEY),
		)
	case config.STORAGE_PROVIDER_S3:
		return New(ctx,
			os.Getenv(config.ENV_KEY_S3_BUCKET),
			os.Getenv(config.ENV_KEY_S3_REGION),
			os.Getenv(config.ENV_KEY_S3_PUBLIC_PATH),
		)
	default:
		return nil, fmt.Errorf("unknown storage provider %q", p)
	}
}

// UploadDir is where the local provider keeps canonical assets.
func UploadDir() string {
	if d := os.Getenv(config.ENV_KEY_UPLOAD_DIR); d != "" {
		return d
	}
	return config.DEFAULT_UPLOAD_DIR
}
