package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// metaSuffix names the sidecar file holding an object's upload policy
const metaSuffix = ".meta.json"

// ObjectMeta is the upload policy recorded next to each stored object
type ObjectMeta struct {
	ACL          string `json:"acl,omitempty"`
	CacheControl string `json:"cache_control,omitempty"`
	ContentType  string `json:"content_type"`
}

// FilesystemStore implements ObjectStore on a local directory.
// Buckets are top-level directories under baseDir.
type FilesystemStore struct {
	baseDir string
}

// NewFilesystemStore creates a filesystem object store
func NewFilesystemStore(baseDir string) (*FilesystemStore, error) {
	// Ensure base directory exists
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}

	return &FilesystemStore{baseDir: abs}, nil
}

// objectPath maps bucket/key onto the local tree, rejecting traversal outside baseDir
func (fs *FilesystemStore) objectPath(bucket, key string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", wrapError(CodeBucketNotFound, false, fmt.Errorf("invalid bucket %q", bucket))
	}

	bucketDir := filepath.Join(fs.baseDir, bucket)
	p := filepath.Join(bucketDir, filepath.FromSlash(key))
	if key == "" || !strings.HasPrefix(p, bucketDir+string(filepath.Separator)) {
		return "", wrapError(CodeInvalidKey, false, fmt.Errorf("invalid key %q: path traversal detected", key))
	}
	return p, nil
}

// Fetch reads the object at bucket/key
func (fs *FilesystemStore) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := fs.objectPath(bucket, key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, wrapError(CodeObjectNotFound, false, fmt.Errorf("object not found: %s/%s", bucket, key))
		}
		if errors.Is(err, os.ErrPermission) {
			return nil, wrapError(CodePermissionDenied, false, err)
		}
		return nil, wrapError(CodeReadFailed, false, err)
	}
	return data, nil
}

// UploadAll copies every file under dir to bucket/prefix, with a policy sidecar per object
func (fs *FilesystemStore) UploadAll(ctx context.Context, dir, bucket, prefix string, opts UploadOptions) error {
	files, err := ListFiles(dir)
	if err != nil {
		return wrapError(CodeReadFailed, false, fmt.Errorf("failed to list %s: %w", dir, err))
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		key := ObjectKey(prefix, f.Rel)
		if err := fs.put(bucket, key, f.Path, opts); err != nil {
			return fmt.Errorf("upload %s: %w", key, err)
		}
	}
	return nil
}

func (fs *FilesystemStore) put(bucket, key, localPath string, opts UploadOptions) error {
	dest, err := fs.objectPath(bucket, key)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return wrapError(CodeReadFailed, false, err)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return wrapError(CodeWriteFailed, false, err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return wrapError(CodeWriteFailed, false, err)
	}

	meta, err := json.Marshal(ObjectMeta{
		ACL:          opts.ACL,
		CacheControl: opts.CacheControl,
		ContentType:  ContentType(key),
	})
	if err != nil {
		return wrapError(CodeWriteFailed, false, err)
	}
	if err := os.WriteFile(dest+metaSuffix, meta, 0o644); err != nil {
		return wrapError(CodeWriteFailed, false, err)
	}
	return nil
}

// Meta returns the upload policy recorded for bucket/key
func (fs *FilesystemStore) Meta(bucket, key string) (*ObjectMeta, error) {
	p, err := fs.objectPath(bucket, key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p + metaSuffix)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, wrapError(CodeObjectNotFound, false, fmt.Errorf("no metadata for %s/%s", bucket, key))
		}
		return nil, wrapError(CodeReadFailed, false, err)
	}

	var meta ObjectMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, wrapError(CodeReadFailed, false, err)
	}
	return &meta, nil
}

var (
	_ ObjectStore = (*FilesystemStore)(nil)
	_ ObjectStore = (*S3Store)(nil)
)
