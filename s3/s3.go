// Package s3 implements the object store boundary on top of AWS S3.
package s3

import (
	"bytes"
	"context"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"
)

// Option is a functional option type for Store.
type Option func(s *Store)

// OptRegion sets the AWS region.
func OptRegion(region string) Option {
	return func(s *Store) {
		s.region = region
	}
}

// Store reads and writes objects in one S3 bucket.
type Store struct {
	bucket string
	region string

	s3   *s3.S3
	sess *session.Session
}

// NewStore returns a Store for the given bucket with the options applied.
// Credentials come from the default AWS chain (environment, shared
// config, instance role) - the transform assumes it is pre-authorized.
func NewStore(bucket string, opts ...Option) (*Store, error) {
	s := &Store{bucket: bucket}
	for _, opt := range opts {
		opt(s)
	}
	var err error
	s.sess, err = session.NewSession(&aws.Config{
		Region: aws.String(s.region)},
	)
	if err != nil {
		return nil, errors.Wrap(err, "getting aws session")
	}
	s.s3 = s3.New(s.sess)
	return s, nil
}

// Get fetches one object's bytes.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.s3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %v", key)
	}
	defer result.Body.Close()
	b, err := io.ReadAll(result.Body)
	return b, errors.Wrapf(err, "reading %v", key)
}

// Put writes one object. S3 object writes are atomic at the object
// level, which is exactly the granularity the transform needs.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.s3.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return errors.Wrapf(err, "putting %v", key)
}

// List returns the keys under the prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.s3.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, last bool) bool {
		for _, obj := range page.Contents {
			keys = append(keys, *obj.Key)
		}
		return true
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing objects")
	}
	return keys, nil
}
