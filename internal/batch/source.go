package batch

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/agentscholar/kindex/internal/core"
	kberrors "github.com/agentscholar/kindex/internal/errors"
	"github.com/agentscholar/kindex/internal/logger"
)

// supportedExtensions maps ingestable file extensions to their file type tag.
var supportedExtensions = map[string]string{
	".txt":  "text",
	".md":   "markdown",
	".html": "html",
	".pdf":  "pdf",
	".docx": "docx",
}

// FileType classifies a source key by extension. The second return is false
// for keys the pipeline does not ingest.
func FileType(key string) (string, bool) {
	ext := strings.ToLower(path.Ext(key))
	ft, ok := supportedExtensions[ext]
	return ft, ok
}

// skippableKey reports keys that never hold document content: directory
// markers and the metadata/ sidecar prefix.
func skippableKey(key string) bool {
	return strings.HasSuffix(key, "/") || strings.HasPrefix(key, "metadata/")
}

// ObjectSource lists and fetches documents from an S3-compatible bucket.
type ObjectSource struct {
	client *minio.Client
	bucket string
}

// ObjectSourceConfig holds the connection settings for an S3-compatible store.
type ObjectSourceConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// NewObjectSource connects to the bucket described by cfg.
func NewObjectSource(cfg ObjectSourceConfig) (*ObjectSource, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, kberrors.Newf(kberrors.KindConfiguration,
			"object source needs an endpoint and a bucket")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, kberrors.New(kberrors.KindConfiguration, "object source", err)
	}
	return &ObjectSource{client: client, bucket: cfg.Bucket}, nil
}

// List pages through the bucket under prefix and returns up to max ingestable
// objects. Directory markers, metadata/ sidecars and unsupported extensions
// are skipped without counting against max.
func (s *ObjectSource) List(ctx context.Context, prefix string, max int) ([]core.SourceObject, error) {
	opts := minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}

	var objects []core.SourceObject
	for obj := range s.client.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return nil, kberrors.New(kberrors.KindIndexRead, "listing", obj.Err)
		}
		if skippableKey(obj.Key) {
			continue
		}
		ft, ok := FileType(obj.Key)
		if !ok {
			logger.Debug("Skipping unsupported file type: %s", obj.Key)
			continue
		}
		objects = append(objects, core.SourceObject{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
			FileType:     ft,
		})
		if max > 0 && len(objects) >= max {
			break
		}
	}
	return objects, nil
}

// Fetch opens the object body for reading. The caller closes it.
func (s *ObjectSource) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, kberrors.New(kberrors.KindIndexRead, "fetch", err)
	}
	return obj, nil
}

// ReadAllText drains a fetched object into a string.
func ReadAllText(r io.ReadCloser) (string, error) {
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
