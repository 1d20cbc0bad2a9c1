package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/sync/errgroup"
)

// S3Config holds connection settings for an S3-compatible store
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	PathStyle bool // bucket in the URL path, as MinIO and LocalStack expect

	// UploadConcurrency bounds parallel uploads in UploadAll. Defaults to 4.
	UploadConcurrency int
}

// S3Store implements ObjectStore on top of minio-go
type S3Store struct {
	client      *minio.Client
	concurrency int
}

// NewS3Store creates an S3 store.
// Without static keys, credentials come from the AWS environment or the instance role.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	endpoint, opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(endpoint, opts)
	if err != nil {
		return nil, wrapError(CodeEndpointUnreachable, true, fmt.Errorf("failed to create minio client: %w", err))
	}

	concurrency := cfg.UploadConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	return &S3Store{client: client, concurrency: concurrency}, nil
}

// clientOptions resolves the endpoint host and minio options for cfg
func clientOptions(cfg S3Config) (string, *minio.Options, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return "", nil, wrapError(CodeEndpointUnreachable, false, errors.New("endpoint is required"))
	}

	useSSL := cfg.UseSSL
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		endpoint = strings.TrimPrefix(endpoint, "https://")
		useSSL = true
	case strings.HasPrefix(endpoint, "http://"):
		endpoint = strings.TrimPrefix(endpoint, "http://")
		useSSL = false
	}

	var creds *credentials.Credentials
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	} else {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.IAM{Client: &http.Client{Transport: http.DefaultTransport}},
		})
	}

	lookup := minio.BucketLookupAuto
	if cfg.PathStyle {
		lookup = minio.BucketLookupPath
	}

	return endpoint, &minio.Options{
		Creds:        creds,
		Secure:       useSSL,
		Region:       cfg.Region,
		BucketLookup: lookup,
	}, nil
}

// Fetch downloads one object into memory
func (s *S3Store) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	if bucket == "" {
		return nil, wrapError(CodeBucketNotFound, false, errors.New("bucket is required"))
	}
	if key == "" {
		return nil, wrapError(CodeObjectNotFound, false, errors.New("object key is required"))
	}

	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classifyMinioError(err, CodeReadFailed)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, classifyMinioError(err, CodeReadFailed)
	}
	return data, nil
}

// UploadAll uploads every file under dir to bucket/prefix
func (s *S3Store) UploadAll(ctx context.Context, dir, bucket, prefix string, opts UploadOptions) error {
	if bucket == "" {
		return wrapError(CodeBucketNotFound, false, errors.New("bucket is required"))
	}

	files, err := ListFiles(dir)
	if err != nil {
		return wrapError(CodeReadFailed, false, fmt.Errorf("failed to list %s: %w", dir, err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, f := range files {
		f := f
		g.Go(func() error {
			return s.putFile(gctx, bucket, ObjectKey(prefix, f.Rel), f.Path, opts)
		})
	}
	return g.Wait()
}

func (s *S3Store) putFile(ctx context.Context, bucket, key, localPath string, opts UploadOptions) error {
	file, err := os.Open(localPath)
	if err != nil {
		return wrapError(CodeReadFailed, false, fmt.Errorf("failed to open %s: %w", localPath, err))
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return wrapError(CodeReadFailed, false, fmt.Errorf("failed to stat %s: %w", localPath, err))
	}

	putOpts := minio.PutObjectOptions{
		ContentType:  ContentType(key),
		CacheControl: opts.CacheControl,
	}
	if opts.ACL != "" {
		// minio-go forwards x-amz-* metadata as plain request headers
		putOpts.UserMetadata = map[string]string{"x-amz-acl": opts.ACL}
	}

	if _, err := s.client.PutObject(ctx, bucket, key, file, info.Size(), putOpts); err != nil {
		return fmt.Errorf("upload %s: %w", key, classifyMinioError(err, CodeWriteFailed))
	}
	return nil
}

// classifyMinioError converts minio-go errors to our structured Error type.
// Unrecognised failures get the fallback code and are treated as retryable.
func classifyMinioError(err error, fallback string) *Error {
	if err == nil {
		return nil
	}

	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		switch resp.Code {
		case "NoSuchBucket":
			return wrapError(CodeBucketNotFound, false, err)
		case "NoSuchKey":
			return wrapError(CodeObjectNotFound, false, err)
		case "AccessDenied":
			return wrapError(CodePermissionDenied, false, err)
		case "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return wrapError(CodeAuthInvalid, false, err)
		case "SlowDown", "InternalError", "ServiceUnavailable", "RequestTimeout":
			return wrapError(CodeTimeout, true, err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return wrapError(CodeTimeout, true, err)
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline"):
		return wrapError(CodeTimeout, true, err)
	case strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host"):
		return wrapError(CodeEndpointUnreachable, true, err)
	case strings.Contains(errStr, "access denied"):
		return wrapError(CodePermissionDenied, false, err)
	}

	return wrapError(fallback, true, err)
}
