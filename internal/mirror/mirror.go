// Package mirror copies placed uploads into S3-compatible object storage.
//
// Objects are keyed "<category>/<year>/<filename>" so the bucket mirrors the
// on-disk tree. The mirror is best effort: callers log failures and carry on.
package mirror

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"coursedrop/internal/classify"
	"coursedrop/internal/config"
)

// Mirror receives a copy of every placed file.
type Mirror interface {
	Upload(ctx context.Context, match classify.Match, localPath string) (string, error)
	Enabled() bool
}

// New returns an S3 mirror when enabled in config, otherwise a no-op.
func New(cfg *config.Config) (Mirror, error) {
	if cfg == nil || !cfg.Mirror.Enabled {
		return noopMirror{}, nil
	}
	return NewS3(cfg.Mirror)
}

// S3Mirror writes placed files to a bucket through minio-go.
type S3Mirror struct {
	client *minio.Client
	bucket string
	region string

	mu    sync.Mutex
	ready bool
}

// NewS3 constructs an S3 mirror. No network traffic happens until the first upload.
func NewS3(cfg config.Mirror) (*S3Mirror, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("mirror endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("mirror access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("mirror bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3Mirror{client: client, bucket: bucket, region: region}, nil
}

func (m *S3Mirror) Enabled() bool { return m != nil && m.client != nil }

// Bucket returns the target bucket name.
func (m *S3Mirror) Bucket() string { return m.bucket }

// Ping reports whether the bucket exists, proving the endpoint and
// credentials work.
func (m *S3Mirror) Ping(ctx context.Context) (bool, error) {
	return m.client.BucketExists(ctx, m.bucket)
}

// ensureBucket creates the bucket on first use. Only success is remembered;
// a failed check is retried on the next upload.
func (m *S3Mirror) ensureBucket(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ready {
		return nil
	}
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: m.region}); err != nil {
			return err
		}
	}
	m.ready = true
	return nil
}

// Upload copies localPath to the object key for match and returns the key.
func (m *S3Mirror) Upload(ctx context.Context, match classify.Match, localPath string) (string, error) {
	if !m.Enabled() {
		return "", fmt.Errorf("mirror is not configured")
	}
	if err := m.ensureBucket(ctx); err != nil {
		return "", fmt.Errorf("ensure bucket: %w", err)
	}
	key := ObjectKey(match)
	_, err := m.client.FPutObject(ctx, m.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType(localPath),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return key, nil
}

// ObjectKey maps a classification to "<category>/<year>/<filename>".
func ObjectKey(match classify.Match) string {
	return match.Key()
}

func contentType(localPath string) string {
	if ct := mime.TypeByExtension(filepath.Ext(localPath)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

type noopMirror struct{}

func (noopMirror) Upload(context.Context, classify.Match, string) (string, error) { return "", nil }
func (noopMirror) Enabled() bool                                                { return false }
