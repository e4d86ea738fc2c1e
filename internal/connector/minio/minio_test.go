package minio

import (
	"context"
	"os"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())

	require.NoError(t, store.PutObject(ctx, "artifacts", "runs/r1/registry.json", []byte(`{}`)))
	require.NoError(t, store.PutObject(ctx, "artifacts", "runs/r1/jobs/Fabric.parquet", []byte("PAR1")))
	require.NoError(t, store.PutObject(ctx, "artifacts", "runs/r2/registry.json", []byte(`{}`)))

	data, err := store.GetObject(ctx, "artifacts", "runs/r1/registry.json")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	keys, err := store.ListPrefix(ctx, "artifacts", "runs/r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"runs/r1/jobs/Fabric.parquet", "runs/r1/registry.json"}, keys)

	keys, err = store.ListPrefix(ctx, "artifacts", "missing")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestLocalStore_Errors(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())

	_, err := store.GetObject(ctx, "artifacts", "nope.json")
	assert.True(t, IsCode(err, CodeObjectNotFound))

	err = store.PutObject(ctx, "", "a.json", nil)
	assert.True(t, IsCode(err, CodeBucketNotFound))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = store.PutObject(cancelled, "artifacts", "a.json", nil)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestConfig_Validate(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "meno-sync", cfg.Bucket)
	assert.Equal(t, "runs", cfg.BasePrefix)
	assert.False(t, cfg.Remote())

	cfg = &Config{EndpointURL: "http://localhost:9000", BasePrefix: "/sync/"}
	err := cfg.Validate()
	assert.True(t, IsCode(err, CodeAuthInvalid))
	assert.Equal(t, "sync", cfg.BasePrefix)

	store, err := NewObjectStore(&Config{LocalRoot: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, store)
}

func TestClassifyMinioError(t *testing.T) {
	assert.Equal(t, CodeBucketNotFound, classifyMinioError(minio.ErrorResponse{Code: "NoSuchBucket"}).Code)
	assert.Equal(t, CodeObjectNotFound, classifyMinioError(minio.ErrorResponse{Code: "NoSuchKey"}).Code)
	assert.Equal(t, CodeAuthInvalid, classifyMinioError(minio.ErrorResponse{Code: "SignatureDoesNotMatch"}).Code)

	e := classifyMinioError(errors.New("dial tcp: connection refused"))
	assert.Equal(t, CodeEndpointUnreachable, e.Code)
	assert.True(t, e.Retryable)
	assert.Nil(t, classifyMinioError(nil))
}

func TestJoinKey(t *testing.T) {
	assert.Equal(t, "runs/r1/registry.json", JoinKey("/runs/", "", "r1", "registry.json"))
}

// TestS3Client_Integration runs against a live MinIO when MENO_MINIO_TEST_ENDPOINT is set.
func TestS3Client_Integration(t *testing.T) {
	endpoint := os.Getenv("MENO_MINIO_TEST_ENDPOINT")
	if endpoint == "" {
		t.Skip("MENO_MINIO_TEST_ENDPOINT not set")
	}
	cfg := &Config{
		EndpointURL:     endpoint,
		AccessKeyID:     getenvDefault("MENO_MINIO_TEST_ACCESS_KEY", "minioadmin"),
		SecretAccessKey: getenvDefault("MENO_MINIO_TEST_SECRET_KEY", "minioadmin"),
		Bucket:          "meno-sync-test",
	}
	store, err := NewObjectStore(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.EnsureBucket(ctx, cfg.Bucket))
	require.NoError(t, store.PutObject(ctx, cfg.Bucket, "it/registry.json", []byte(`{"ok":true}`)))

	data, err := store.GetObject(ctx, cfg.Bucket, "it/registry.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(data))

	keys, err := store.ListPrefix(ctx, cfg.Bucket, "it/")
	require.NoError(t, err)
	assert.Contains(t, keys, "it/registry.json")
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
