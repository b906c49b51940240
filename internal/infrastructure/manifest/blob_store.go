// Package manifest stores failure manifests in any gocloud blob bucket.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"  // gs:// buckets
	_ "gocloud.dev/blob/memblob"  // mem:// buckets
	_ "gocloud.dev/blob/s3blob"   // s3:// buckets

	"GameHarvester/internal/domain"
	"GameHarvester/internal/ports"
)

const (
	keyPrefix    = "failed_items_"
	keyTimestamp = "20060102T150405Z"
	zstdSuffix   = ".zst"
)

// BlobStore writes one JSON object per run under prefix.
type BlobStore struct {
	bucket   *blob.Bucket
	prefix   string
	compress bool
}

var _ ports.ManifestStore = (*BlobStore)(nil)

// Open resolves bucketURL (file://, s3://, gs://, mem://) and wraps it.
func Open(ctx context.Context, bucketURL, prefix string, compress bool) (*BlobStore, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open manifest bucket %s: %w", bucketURL, err)
	}
	return NewBlobStore(bucket, prefix, compress), nil
}

// OpenDir keeps manifests in a local directory, creating it when missing.
func OpenDir(dir, prefix string, compress bool) (*BlobStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve manifest dir %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create manifest dir %s: %w", abs, err)
	}
	bucket, err := fileblob.OpenBucket(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("open manifest dir %s: %w", abs, err)
	}
	return NewBlobStore(bucket, prefix, compress), nil
}

// NewBlobStore wraps an already opened bucket.
func NewBlobStore(bucket *blob.Bucket, prefix string, compress bool) *BlobStore {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &BlobStore{bucket: bucket, prefix: prefix, compress: compress}
}

// Key names the object for a manifest; the timestamp keeps runs from
// overwriting each other.
func (s *BlobStore) Key(m domain.FailureManifest) string {
	key := fmt.Sprintf("%s%s%s_%s.json", s.prefix, keyPrefix, m.CreatedAt.UTC().Format(keyTimestamp), m.RunID)
	if s.compress {
		key += zstdSuffix
	}
	return key
}

// Write stores the manifest and returns its key.
func (s *BlobStore) Write(ctx context.Context, m domain.FailureManifest) (string, error) {
	if m.Entries == nil {
		m.Entries = []domain.FailureEntry{}
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}

	key := s.Key(m)
	opts := &blob.WriterOptions{ContentType: "application/json"}
	if s.compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return "", fmt.Errorf("create zstd encoder: %w", err)
		}
		data = enc.EncodeAll(data, nil)
		_ = enc.Close()
		opts.ContentType = "application/zstd"
	}

	w, err := s.bucket.NewWriter(ctx, key, opts)
	if err != nil {
		return "", fmt.Errorf("create writer for %s: %w", key, err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write manifest to %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close writer for %s: %w", key, err)
	}
	return key, nil
}

// Read loads a manifest by key, decompressing .zst objects.
func (s *BlobStore) Read(ctx context.Context, key string) (domain.FailureManifest, error) {
	r, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		return domain.FailureManifest{}, fmt.Errorf("open manifest %s: %w", key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return domain.FailureManifest{}, fmt.Errorf("read manifest %s: %w", key, err)
	}

	if strings.HasSuffix(key, zstdSuffix) {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return domain.FailureManifest{}, fmt.Errorf("create zstd decoder: %w", err)
		}
		defer dec.Close()
		if data, err = dec.DecodeAll(data, nil); err != nil {
			return domain.FailureManifest{}, fmt.Errorf("zstd decompress %s: %w", key, err)
		}
	}

	var m domain.FailureManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return domain.FailureManifest{}, fmt.Errorf("decode manifest %s: %w", key, err)
	}
	return m, nil
}

// Latest returns the key of the newest manifest under the prefix, or ""
// when there is none.
func (s *BlobStore) Latest(ctx context.Context) (string, error) {
	iter := s.bucket.List(&blob.ListOptions{Prefix: s.prefix + keyPrefix})
	latest := ""
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("list manifests: %w", err)
		}
		// Keys sort by their timestamp component.
		if obj.Key > latest {
			latest = obj.Key
		}
	}
	return latest, nil
}

// Close releases the bucket.
func (s *BlobStore) Close() error {
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}
