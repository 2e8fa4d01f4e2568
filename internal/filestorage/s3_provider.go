package filestorage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/librarease/catalog/internal/usecase"
)

type FileStorage struct {
	client     *s3.Client
	bucket     string
	region     string
	publicPath string
}

func New(ctx context.Context, bucket, region, publicPath string) (*FileStorage, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &FileStorage{
		client:     s3.NewFromConfig(cfg),
		bucket:     bucket,
		region:     cfg.Region,
		publicPath: publicPath,
	}, nil
}

func (f *FileStorage) GetPublicURL(_ context.Context) (string, error) {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", f.bucket, f.region, f.publicPath), nil
}

func (f *FileStorage) Publish(ctx context.Context, localPath, name string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = f.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(f.bucket),
		Key:         aws.String(f.key(name)),
		Body:        file,
		ContentType: aws.String("image/webp"),
	})
	if err != nil {
		return err
	}
	removeLocal(localPath)
	return nil
}

func (f *FileStorage) Exists(ctx context.Context, name string) (bool, error) {
	_, err := f.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(f.key(name)),
	})
	if err == nil {
		return true, nil
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return false, nil
	}
	return false, err
}

func (f *FileStorage) Remove(ctx context.Context, name string) error {
	_, err := f.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(f.key(name)),
	})
	return err
}

func (f *FileStorage) ListAssets(ctx context.Context) ([]usecase.StoredAsset, error) {
	var (
		assets []usecase.StoredAsset
		prefix = f.publicPath + "/"
	)
	p := s3.NewListObjectsV2Paginator(f.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(f.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if name == "" {
				continue
			}
			assets = append(assets, usecase.StoredAsset{
				Name:       name,
				ModifiedAt: aws.ToTime(obj.LastModified),
			})
		}
	}
	return assets, nil
}

func (f *FileStorage) key(name string) string {
	return path.Join(f.publicPath, name)
}

// removeLocal drops the converted file once a remote copy exists.
func removeLocal(p string) {
	_ = os.Remove(p)
}
