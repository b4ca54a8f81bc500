package benchmark

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"

	"github.com/vdonnefort/lisa/internal/storage"
)

// PrefixedStorage wraps an ObjectStorage and prepends a prefix to every
// object path, so one bucket can host many benchmark runs side by side.
type PrefixedStorage struct {
	inner  storage.ObjectStorage
	prefix string
}

func (s *PrefixedStorage) Upload(ctx context.Context, localPath, objectPath string) error {
	return s.inner.Upload(ctx, localPath, s.prefix+"/"+objectPath)
}

func (s *PrefixedStorage) Download(ctx context.Context, objectPath, localPath string) error {
	return s.inner.Download(ctx, s.prefix+"/"+objectPath, localPath)
}

func (s *PrefixedStorage) Delete(ctx context.Context, objectPath string) error {
	return s.inner.Delete(ctx, s.prefix+"/"+objectPath)
}

func (s *PrefixedStorage) Exists(ctx context.Context, objectPath string) (bool, error) {
	return s.inner.Exists(ctx, s.prefix+"/"+objectPath)
}

func (s *PrefixedStorage) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix := s.prefix + "/" + prefix
	objects, err := s.inner.ListObjects(ctx, fullPrefix)
	if err != nil {
		return nil, err
	}

	stripped := make([]string, len(objects))
	for i, obj := range objects {
		if len(obj) > len(s.prefix)+1 {
			stripped[i] = obj[len(s.prefix)+1:]
		} else {
			stripped[i] = obj
		}
	}
	return stripped, nil
}

// benchmarkStorage returns the object store archive benchmarks run
// against. The default is a throwaway local directory; setting
// LISA_STORAGE_TYPE=s3 (in the environment or a project-root .env)
// points the run at a real bucket under a unique bench/ prefix.
func benchmarkStorage(b *testing.B, benchName string) storage.ObjectStorage {
	_ = godotenv.Load("../../.env")

	if os.Getenv("LISA_STORAGE_TYPE") == "s3" {
		if v := os.Getenv("LISA_AWS_ACCESS_KEY_ID"); v != "" {
			os.Setenv("AWS_ACCESS_KEY_ID", v)
		}
		if v := os.Getenv("LISA_AWS_SECRET_ACCESS_KEY"); v != "" {
			os.Setenv("AWS_SECRET_ACCESS_KEY", v)
		}

		bucket := os.Getenv("LISA_S3_BUCKET")
		if bucket == "" {
			b.Fatal("LISA_S3_BUCKET is required for an s3 benchmark run")
		}

		cfg := storage.DefaultS3Config()
		cfg.Region = os.Getenv("LISA_S3_REGION")
		cfg.Endpoint = os.Getenv("LISA_S3_ENDPOINT")
		if cfg.Endpoint != "" {
			cfg.UsePathStyle = true
		}

		st, err := storage.NewS3Storage(context.Background(), bucket, cfg)
		if err != nil {
			b.Fatalf("initialize s3 storage: %v", err)
		}

		prefix := fmt.Sprintf("bench/%s/%d", benchName, time.Now().UnixNano())
		b.Logf("benchmarking against s3 bucket %s prefix %s", bucket, prefix)
		return &PrefixedStorage{inner: st, prefix: prefix}
	}

	st, err := storage.NewLocalStorage(b.TempDir())
	if err != nil {
		b.Fatal(err)
	}
	return st
}
