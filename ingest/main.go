// Package ingest runs the transform over every object under a prefix:
// one independent invocation per object, no shared state between them.
package ingest

import (
	"context"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/flatlake/flatlake"
	"github.com/flatlake/flatlake/minio"
	"github.com/flatlake/flatlake/parquet"
	"github.com/flatlake/flatlake/s3"
)

// Main contains the configuration for a batch transform run.
type Main struct {
	Store        string   `help:"Object store backend: s3, minio, or local."`
	Bucket       string   `help:"Bucket holding the input objects and receiving the output files."`
	Region       string   `help:"AWS region (s3 store only)."`
	Endpoint     string   `help:"Endpoint URL (minio store only)."`
	AccessKey    string   `help:"Access key ID (minio store only)."`
	SecretKey    string   `help:"Secret access key (minio store only)."`
	LocalDir     string   `help:"Root directory (local store only)."`
	Prefix       string   `help:"Only input objects matching this prefix are processed."`
	Contracts    string   `help:"Directory of schema contract JSON files."`
	Schema       string   `help:"Contract version to hold every input to."`
	OutputPrefix string   `help:"Prefix for output files. Must not overlap the input prefix."`
	Concurrency  int      `help:"Number of objects transformed concurrently."`
	Strict       bool     `help:"Reject records carrying fields beyond the declared input shape."`
	EmptyArrays  string   `help:"Empty array policy: skip or emitNullRow."`
	MultiArrays  string   `help:"Multiple array field policy: reject or cross."`
	Codec        string   `help:"Compression codec: snappy, gzip, zstd, or none."`
	PartitionBy  []string `help:"Output columns to partition files by."`
}

// NewMain gets a new Main with the default configuration.
func NewMain() *Main {
	return &Main{
		Store:        "s3",
		Region:       "us-east-1",
		Contracts:    "contracts",
		OutputPrefix: "lake",
		Concurrency:  4,
		EmptyArrays:  string(flatlake.EmptyArraySkip),
		MultiArrays:  string(flatlake.MultiArrayReject),
		Codec:        string(parquet.CodecSnappy),
	}
}

// Run transforms every object under the input prefix and writes the
// resulting files back to the store. Failures of individual objects are
// logged and skipped - one bad record never blocks its neighbors.
func (m *Main) Run() error {
	ctx := context.Background()
	store, err := m.openStore()
	if err != nil {
		return errors.Wrap(err, "opening object store")
	}
	if m.Schema == "" {
		return errors.New("a schema version is required")
	}

	enc, err := parquet.NewEncoder(parquet.Options{
		Codec:         parquet.Codec(m.Codec),
		PartitionKeys: m.PartitionBy,
	})
	if err != nil {
		return errors.Wrap(err, "building encoder")
	}
	trans := flatlake.NewTransformer(
		flatlake.NewDirRegistry(m.Contracts),
		enc,
		flatlake.TransformOptions{
			Flatten: flatlake.FlattenOptions{
				StrictUnknownFields: m.Strict,
				EmptyArrays:         flatlake.EmptyArrayPolicy(m.EmptyArrays),
				MultiArrays:         flatlake.MultiArrayPolicy(m.MultiArrays),
			},
			KeyPrefix: m.OutputPrefix,
		},
	)

	keys, err := store.List(ctx, m.Prefix)
	if err != nil {
		return errors.Wrap(err, "listing inputs")
	}

	runID := uuid.New().String()
	start := time.Now()
	var done, failed, rows, objects int64

	g, gctx := errgroup.WithContext(ctx)
	limit := m.Concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for _, key := range keys {
		if strings.HasPrefix(key, m.OutputPrefix) {
			continue // never re-ingest our own output
		}
		key := key
		g.Go(func() error {
			data, err := store.Get(gctx, key)
			if err != nil {
				return errors.Wrapf(err, "getting %s", key)
			}
			batch, err := trans.Transform(gctx, flatlake.Input{
				Key:           key,
				Bytes:         data,
				SchemaVersion: m.Schema,
			})
			if err != nil {
				log.Printf("run %s: couldn't transform %s: %v", runID, key, err)
				atomic.AddInt64(&failed, 1)
				return nil
			}
			for _, obj := range batch.Objects {
				if err := store.Put(gctx, obj.Key, obj.Bytes); err != nil {
					return errors.Wrapf(err, "putting %s", obj.Key)
				}
			}
			atomic.AddInt64(&done, 1)
			atomic.AddInt64(&rows, int64(batch.Rows))
			atomic.AddInt64(&objects, int64(len(batch.Objects)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	log.Printf("run %s: %d inputs ok, %d failed, %d rows, %d files in %v",
		runID, done, failed, rows, objects, time.Since(start))
	if failed > 0 && done == 0 {
		return errors.Errorf("all %d inputs failed", failed)
	}
	return nil
}

func (m *Main) openStore() (flatlake.ObjectStore, error) {
	switch m.Store {
	case "s3":
		return s3.NewStore(m.Bucket, s3.OptRegion(m.Region))
	case "minio":
		return minio.NewStore(minio.Config{
			EndpointURL:     m.Endpoint,
			AccessKeyID:     m.AccessKey,
			SecretAccessKey: m.SecretKey,
			Region:          m.Region,
			Bucket:          m.Bucket,
		})
	case "local":
		return flatlake.NewLocalStore(m.LocalDir)
	}
	return nil, errors.Errorf("unknown store backend %q", m.Store)
}
