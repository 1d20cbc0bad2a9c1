package storage

import (
	"context"
	"io/fs"
	"mime"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// Upload policy applied to every derived version
const (
	PublicRead         = "public-read"
	CacheMaxAgeSeconds = 15552000 // 180 days
)

// UploadOptions carries the access and cache policy for uploaded objects
type UploadOptions struct {
	ACL          string
	CacheControl string
}

// DefaultUploadOptions returns the public-read, long-lived cache policy
func DefaultUploadOptions() UploadOptions {
	return UploadOptions{
		ACL:          PublicRead,
		CacheControl: "max-age=" + strconv.Itoa(CacheMaxAgeSeconds),
	}
}

// ObjectStore fetches and uploads objects in a bucketed object store
type ObjectStore interface {
	// Fetch returns the full content of one object
	Fetch(ctx context.Context, bucket, key string) ([]byte, error)

	// UploadAll uploads every file under dir, recursively, to bucket under prefix.
	// Files already uploaded when an error occurs are not removed.
	UploadAll(ctx context.Context, dir, bucket, prefix string, opts UploadOptions) error
}

// LocalFile is a file found under an upload directory
type LocalFile struct {
	Path string // absolute local path
	Rel  string // slash separated path relative to the walked directory
}

// ListFiles walks dir and returns every regular file below it
func ListFiles(dir string) ([]LocalFile, error) {
	var files []LocalFile
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files = append(files, LocalFile{Path: p, Rel: filepath.ToSlash(rel)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// ObjectKey joins a destination prefix and a relative path with exactly one separator
func ObjectKey(prefix, rel string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	rel = strings.TrimPrefix(rel, "/")
	if prefix == "" {
		return rel
	}
	return prefix + "/" + rel
}

// ContentType guesses an object's content type from its key
func ContentType(key string) string {
	if ct := mime.TypeByExtension(strings.ToLower(path.Ext(key))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
