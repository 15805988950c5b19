package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/nucleus/ingest-core/internal/source"
)

// ObjectMeta is one listed or statted object.
type ObjectMeta struct {
	Key          string
	ETag         string
	Size         int64
	LastModified time.Time
	ContentType  string
	Creator      string // from x-amz-meta-creator when present
}

// ObjectStore abstracts the S3 surface the adapter needs, so tests can stub
// it without a live endpoint.
type ObjectStore interface {
	Ping(ctx context.Context) error
	// ListPage lists up to max keys lexicographically after startAfter.
	ListPage(ctx context.Context, bucket, startAfter string, max int) ([]ObjectMeta, bool, error)
	Stat(ctx context.Context, bucket, key string) (*ObjectMeta, error)
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// S3Client implements ObjectStore using the minio-go SDK.
type S3Client struct {
	client *minio.Client
	cfg    *Config
}

// NewS3Client creates a real S3/MinIO client from config.
func NewS3Client(cfg *Config) (*S3Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	u, err := url.Parse(cfg.EndpointURL)
	if err != nil {
		return nil, source.WrapError(source.CodeEndpointUnreachable, true, err)
	}
	endpoint := u.Host
	if endpoint == "" {
		endpoint = cfg.EndpointURL
	}
	useSSL := cfg.UseSSL
	if u.Scheme == "https" {
		useSSL = true
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, source.WrapError(source.CodeEndpointUnreachable, true,
			fmt.Errorf("create s3 client: %w", err))
	}
	return &S3Client{client: client, cfg: cfg}, nil
}

func (s *S3Client) Ping(ctx context.Context) error {
	if _, err := s.client.ListBuckets(ctx); err != nil {
		return classifyS3Error(err)
	}
	return nil
}

func (s *S3Client) ListPage(ctx context.Context, bucket, startAfter string, max int) ([]ObjectMeta, bool, error) {
	if bucket == "" {
		return nil, false, source.WrapError(source.CodeNotFound, false, fmt.Errorf("bucket is required"))
	}

	// Fetch one extra key to learn whether another page exists without a
	// second round trip.
	objectCh := s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Recursive:  true,
		StartAfter: startAfter,
		MaxKeys:    max + 1,
	})

	var metas []ObjectMeta
	hasMore := false
	for obj := range objectCh {
		if obj.Err != nil {
			return nil, false, classifyS3Error(obj.Err)
		}
		if len(metas) >= max {
			hasMore = true
			break
		}
		metas = append(metas, ObjectMeta{
			Key:          obj.Key,
			ETag:         strings.Trim(obj.ETag, `"`),
			Size:         obj.Size,
			LastModified: obj.LastModified,
			ContentType:  obj.ContentType,
		})
	}
	return metas, hasMore, nil
}

func (s *S3Client) Stat(ctx context.Context, bucket, key string) (*ObjectMeta, error) {
	info, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, classifyS3Error(err)
	}
	return &ObjectMeta{
		Key:          info.Key,
		ETag:         strings.Trim(info.ETag, `"`),
		Size:         info.Size,
		LastModified: info.LastModified,
		ContentType:  info.ContentType,
		Creator:      info.UserMetadata["Creator"],
	}, nil
}

func (s *S3Client) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, bucket, key, ttl, url.Values{})
	if err != nil {
		return "", classifyS3Error(err)
	}
	return u.String(), nil
}

var _ ObjectStore = (*S3Client)(nil)

// classifyS3Error converts minio-go errors into coded adapter errors.
func classifyS3Error(err error) *source.Error {
	if err == nil {
		return nil
	}

	if s3Err, ok := err.(minio.ErrorResponse); ok {
		switch s3Err.Code {
		case "NoSuchBucket", "NoSuchKey":
			return source.WrapError(source.CodeNotFound, false, err)
		case "AccessDenied":
			return source.WrapError(source.CodePermissionDenied, false, err)
		case "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return source.WrapError(source.CodeAuthInvalid, false, err)
		case "SlowDown", "RequestLimitExceeded":
			return source.WrapError(source.CodeRateLimited, true, err)
		}
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "not found") || strings.Contains(errStr, "does not exist"):
		return source.WrapError(source.CodeNotFound, false, err)
	case strings.Contains(errStr, "access denied") || strings.Contains(errStr, "permission"):
		return source.WrapError(source.CodePermissionDenied, false, err)
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline"):
		return source.WrapError(source.CodeTimeout, true, err)
	case strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host"):
		return source.WrapError(source.CodeEndpointUnreachable, true, err)
	}
	return source.WrapError(source.CodeListFailed, true, err)
}
