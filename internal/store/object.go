package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/zjrosen/boardwalk/internal/log"
	"github.com/zjrosen/boardwalk/internal/render"
)

// errObjectMissing is returned by objectClient implementations for absent keys.
var errObjectMissing = errors.New("object does not exist")

// objectClient is the slice of the S3 API the store needs.
type objectClient interface {
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Remove(ctx context.Context, bucket, key string) error
}

// S3Config configures an ObjectStore.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
	Region    string
}

// ObjectStore keeps boards as objects in an S3 compatible bucket.
// Locations have the form s3://<bucket>/<prefix><id><ext>.
type ObjectStore struct {
	client objectClient
	bucket string
	prefix string
}

// NewObjectStore connects to the endpoint in cfg. No request is made until
// the first Save.
func NewObjectStore(cfg S3Config) (*ObjectStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	api, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating s3 client: %w", err)
	}
	return newObjectStore(&minioClient{api: api}, cfg.Bucket, cfg.Prefix), nil
}

func newObjectStore(client objectClient, bucket, prefix string) *ObjectStore {
	return &ObjectStore{client: client, bucket: bucket, prefix: prefix}
}

func (s *ObjectStore) Save(ctx context.Context, img *render.RenderedImage, id string) (string, error) {
	name, err := fileName(img, id)
	if err != nil {
		return "", &StoreError{Op: "save", Path: s.location(""), Err: err}
	}
	key := s.prefix + name
	path := s.location(key)

	if err := s.client.Put(ctx, s.bucket, key, img.Data, img.Format.MimeType()); err != nil {
		return "", &StoreError{Op: "save", Path: path, Err: err}
	}

	log.Debug(log.CatStore, "uploaded board", "path", path, "bytes", len(img.Data))
	return path, nil
}

func (s *ObjectStore) Read(ctx context.Context, path string) ([]byte, error) {
	key, err := s.key(path)
	if err != nil {
		return nil, &StoreError{Op: "read", Path: path, Err: err}
	}
	data, err := s.client.Get(ctx, s.bucket, key)
	if err != nil {
		if errors.Is(err, errObjectMissing) {
			return nil, &ResourceMissingError{Path: path}
		}
		return nil, &StoreError{Op: "read", Path: path, Err: err}
	}
	return data, nil
}

func (s *ObjectStore) Delete(ctx context.Context, path string) error {
	key, err := s.key(path)
	if err != nil {
		return &StoreError{Op: "delete", Path: path, Err: err}
	}
	if err := s.client.Remove(ctx, s.bucket, key); err != nil && !errors.Is(err, errObjectMissing) {
		return &StoreError{Op: "delete", Path: path, Err: err}
	}
	log.Debug(log.CatStore, "removed board object", "path", path)
	return nil
}

func (s *ObjectStore) location(key string) string {
	return "s3://" + s.bucket + "/" + key
}

func (s *ObjectStore) key(path string) (string, error) {
	key, ok := strings.CutPrefix(path, s.location(""))
	if !ok || key == "" {
		return "", fmt.Errorf("location not in bucket %q", s.bucket)
	}
	return key, nil
}

// minioClient adapts *minio.Client to objectClient.
type minioClient struct {
	api *minio.Client
}

func (c *minioClient) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	_, err := c.api.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	return err
}

func (c *minioClient) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := c.api.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, missingOr(err)
	}
	defer func() { _ = obj.Close() }()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, obj); err != nil {
		return nil, missingOr(err)
	}
	return buf.Bytes(), nil
}

func (c *minioClient) Remove(ctx context.Context, bucket, key string) error {
	return missingOr(c.api.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}))
}

func missingOr(err error) error {
	if err == nil {
		return nil
	}
	if string(minio.ToErrorResponse(err).Code) == "NoSuchKey" {
		return fmt.Errorf("%w: %v", errObjectMissing, err)
	}
	return err
}
