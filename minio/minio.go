// Package minio implements the object store boundary for MinIO and other
// S3-compatible stores reached by explicit endpoint and static keys.
package minio

import (
	"bytes"
	"context"
	"io"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
)

// Config carries everything needed to reach one bucket.
type Config struct {
	EndpointURL     string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Bucket          string
	UseSSL          bool
}

// Store reads and writes objects in one MinIO bucket.
type Store struct {
	client *minio.Client
	bucket string
}

// NewStore connects a client from config. It does not probe the bucket;
// the first Get or Put surfaces reachability problems.
func NewStore(cfg Config) (*Store, error) {
	if cfg.EndpointURL == "" {
		return nil, errors.New("endpoint URL is required")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, errors.New("credentials are required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}

	endpoint := cfg.EndpointURL
	useSSL := cfg.UseSSL
	if u, err := url.Parse(cfg.EndpointURL); err == nil && u.Host != "" {
		endpoint = u.Host
		if u.Scheme == "https" {
			useSSL = true
		}
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating minio client")
	}
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// Get fetches one object's bytes.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %v", key)
	}
	defer obj.Close()
	b, err := io.ReadAll(obj)
	return b, errors.Wrapf(err, "reading %v", key)
}

// Put writes one object in a single call; the store publishes it
// atomically under the final key.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	return errors.Wrapf(err, "putting %v", key)
}

// List returns the keys under the prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, errors.Wrap(info.Err, "listing objects")
		}
		keys = append(keys, info.Key)
	}
	return keys, nil
}
