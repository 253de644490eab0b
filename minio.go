package main

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/exp/slog"
)

const imageContentType = "image/jpeg"

// ClientMinio is the part of *minio.Client the image store uses.
type ClientMinio interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// MinioImageStore keeps one object per photo in a single bucket.
type MinioImageStore struct {
	bucketName string
	client     ClientMinio
}

func NewMinioImageStore(ctx context.Context, cfg S3Config) (*MinioImageStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client for %s: %w", cfg.Endpoint, err)
	}

	return newMinioImageStore(ctx, client, cfg.Bucket)
}

func newMinioImageStore(ctx context.Context, client ClientMinio, bucketName string) (*MinioImageStore, error) {
	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStorage, err)
		}
		slog.Info("Created an image bucket", "bucket", bucketName)
	}

	return &MinioImageStore{bucketName: bucketName, client: client}, nil
}

func (s3 *MinioImageStore) StoreImage(ctx context.Context, filename string, data []byte) error {
	if err := validateFilename(filename); err != nil {
		return err
	}

	_, err := s3.client.PutObject(ctx,
		s3.bucketName,
		filename,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{ContentType: imageContentType})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	return nil
}

// DeleteImage stats the object first: S3 reports success when removing a key
// that does not exist.
func (s3 *MinioImageStore) DeleteImage(ctx context.Context, filename string) error {
	if err := validateFilename(filename); err != nil {
		return err
	}

	if err := s3.stat(ctx, filename); err != nil {
		return err
	}

	if err := s3.client.RemoveObject(ctx, s3.bucketName, filename, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	slog.Debug("Removed an image object", "bucket", s3.bucketName, "filename", filename)

	return nil
}

func (s3 *MinioImageStore) ListImageFiles(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	names := make([]string, 0)
	for object := range s3.client.ListObjects(ctx, s3.bucketName, minio.ListObjectsOptions{Recursive: true}) {
		if object.Err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStorage, object.Err)
		}
		names = append(names, object.Key)
	}

	return names, nil
}

func (s3 *MinioImageStore) OpenImage(ctx context.Context, filename string) (io.ReadCloser, error) {
	if err := validateFilename(filename); err != nil {
		return nil, err
	}

	if err := s3.stat(ctx, filename); err != nil {
		return nil, err
	}

	object, err := s3.client.GetObject(ctx, s3.bucketName, filename, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	return object, nil
}

func (s3 *MinioImageStore) stat(ctx context.Context, filename string) error {
	_, err := s3.client.StatObject(ctx, s3.bucketName, filename, minio.StatObjectOptions{})
	if err == nil {
		return nil
	}

	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%w: image %s", ErrNotFound, filename)
	}

	return fmt.Errorf("%w: %w", ErrStorage, err)
}
