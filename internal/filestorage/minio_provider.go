package filestorage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/librarease/catalog/internal/usecase"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

func NewMinIOStorage(bucket, publicPath, endpoint, accessKeyID, secretAccessKey string) (*MinIOStorage, error) {
	m, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: true,
	})
	if err != nil {
		return nil, err
	}
	return &MinIOStorage{
		client:     m,
		bucket:     bucket,
		publicPath: publicPath,
	}, nil
}

type MinIOStorage struct {
	client     *minio.Client
	bucket     string
	publicPath string
}

func (f *MinIOStorage) GetPublicURL(_ context.Context) (string, error) {
	return fmt.Sprintf("%s/%s/%s", f.client.EndpointURL(), f.bucket, f.publicPath), nil
}

func (f *MinIOStorage) Publish(ctx context.Context, localPath, name string) error {
	_, err := f.client.FPutObject(ctx, f.bucket, f.key(name), localPath, minio.PutObjectOptions{
		ContentType: "image/webp",
	})
	if err != nil {
		return err
	}
	removeLocal(localPath)
	return nil
}

func (f *MinIOStorage) Exists(ctx context.Context, name string) (bool, error) {
	_, err := f.client.StatObject(ctx, f.bucket, f.key(name), minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, err
}

// Remove succeeds for missing objects; S3-compatible deletes are idempotent.
func (f *MinIOStorage) Remove(ctx context.Context, name string) error {
	return f.client.RemoveObject(ctx, f.bucket, f.key(name), minio.RemoveObjectOptions{})
}

func (f *MinIOStorage) ListAssets(ctx context.Context) ([]usecase.StoredAsset, error) {
	var assets []usecase.StoredAsset
	for obj := range f.client.ListObjects(ctx, f.bucket, minio.ListObjectsOptions{
		Prefix:    f.publicPath + "/",
		Recursive: false,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		name := strings.TrimPrefix(obj.Key, f.publicPath+"/")
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		assets = append(assets, usecase.StoredAsset{Name: name, ModifiedAt: obj.LastModified})
	}
	return assets, nil
}

func (f *MinIOStorage) key(name string) string {
	return path.Join(f.publicPath, name)
}
