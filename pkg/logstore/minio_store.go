package logstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	minioep "github.com/nucleus/meno-sync/internal/connector/minio"
	"github.com/pkg/errors"
)

// MinioStore implements Store on an object store. Keys are laid out as
// <prefix>/<runID>/<file>.
type MinioStore struct {
	store      minioep.ObjectStore
	bucket     string
	basePrefix string
	now        func() time.Time
}

// NewMinioStore builds a store from cfg: MinIO/S3 when an endpoint is set,
// otherwise the local directory store.
func NewMinioStore(cfg *minioep.Config) (*MinioStore, error) {
	store, err := minioep.NewObjectStore(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "open artifact store")
	}
	return NewMinioStoreWith(store, cfg.Bucket, cfg.BasePrefix), nil
}

// NewMinioStoreWith wraps an existing object store.
func NewMinioStoreWith(store minioep.ObjectStore, bucket, prefix string) *MinioStore {
	return &MinioStore{store: store, bucket: bucket, basePrefix: prefix, now: time.Now}
}

func (s *MinioStore) Append(ctx context.Context, runID string, events []Event) (string, error) {
	if len(events) == 0 {
		return "", nil
	}
	var buf bytes.Buffer
	for _, e := range events {
		if e.RunID == "" {
			e.RunID = runID
		}
		if e.At == "" {
			e.At = s.now().UTC().Format(time.RFC3339)
		}
		line, err := json.Marshal(e)
		if err != nil {
			return "", errors.Wrap(err, "encode event")
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	key := s.path(runID, fmt.Sprintf("events-%d.jsonl", s.now().UnixNano()))
	return s.put(ctx, key, buf.Bytes())
}

func (s *MinioStore) WriteSnapshot(ctx context.Context, runID, name string, snapshot []byte) (string, error) {
	return s.put(ctx, s.path(runID, Slug(name)+".snapshot.json"), snapshot)
}

func (s *MinioStore) WriteArchive(ctx context.Context, runID, table string, rows []Row) (string, error) {
	if len(rows) == 0 {
		return "", nil
	}
	data, err := encodeParquet(runID, table, rows)
	if err != nil {
		return "", err
	}
	return s.put(ctx, s.path(runID, "tables", Slug(table)+".parquet"), data)
}

// ListPaths returns the keys written for a run.
func (s *MinioStore) ListPaths(ctx context.Context, runID string) ([]string, error) {
	return s.store.ListPrefix(ctx, s.bucket, s.path(runID))
}

func (s *MinioStore) put(ctx context.Context, key string, data []byte) (string, error) {
	if err := s.store.EnsureBucket(ctx, s.bucket); err != nil {
		return "", err
	}
	if err := s.store.PutObject(ctx, s.bucket, key, data); err != nil {
		return "", err
	}
	return fmt.Sprintf("minio://%s/%s", s.bucket, key), nil
}

func (s *MinioStore) path(parts ...string) string {
	return minioep.JoinKey(append([]string{s.basePrefix}, parts...)...)
}

// Slug makes a table or job name safe for an object key.
func Slug(name string) string {
	slug := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.' {
			return r
		}
		return '_'
	}, strings.TrimSpace(name))
	if slug == "" {
		return "unnamed"
	}
	return slug
}
