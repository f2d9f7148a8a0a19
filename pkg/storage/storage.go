package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/epicdraft-inc/epicdraft-engine/pkg/config"
)

// Role distinguishes what an object is used for within an epic.
type Role string

const (
	RoleScreenshot Role = "screenshots"
	RoleAudio      Role = "audio"
)

// ObjectStore abstracts the bucket holding uploaded screenshots and
// narration audio.
type ObjectStore interface {
	// Upload writes the object at key, replacing any existing content.
	Upload(ctx context.Context, key string, data io.Reader) error

	// Download opens the object for reading. The caller must close the
	// returned reader.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every object under the prefix. Missing
	// objects are not an error.
	DeletePrefix(ctx context.Context, prefix string) error

	// PublicURL returns the CDN-fronted URL for an object key.
	PublicURL(key string) string

	// KeyFromURL inverts PublicURL, returning the object key for a URL
	// previously handed to a client. Returns ("", false) when the URL
	// does not belong to this store.
	KeyFromURL(url string) (string, bool)
}

// ObjectKey builds the canonical storage key for an epic-scoped object.
// Keys are namespaced org/project/epic so DeletePrefix can clean up a
// whole epic or project in one call.
func ObjectKey(orgSlug string, projectID, epicID uuid.UUID, role Role, filename string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s", orgSlug, projectID, epicID, role, filename)
}

// EpicPrefix returns the key prefix covering all objects of one epic.
func EpicPrefix(orgSlug string, projectID, epicID uuid.UUID) string {
	return fmt.Sprintf("%s/%s/%s/", orgSlug, projectID, epicID)
}

type gcsStore struct {
	client *gcs.Client
	bucket string
	cdn    string
	logger *zap.Logger
}

// NewGCSStore creates an ObjectStore backed by a Google Cloud Storage
// bucket. Credentials come from the ambient environment.
func NewGCSStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (ObjectStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage bucket name is required")
	}

	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &gcsStore{
		client: client,
		bucket: cfg.Bucket,
		cdn:    strings.TrimSuffix(cfg.CDNDomain, "/"),
		logger: logger.Named("storage"),
	}, nil
}

func (s *gcsStore) Upload(ctx context.Context, key string, data io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if ct := contentTypeForKey(key); ct != "" {
		w.ContentType = ct
	}
	if _, err := io.Copy(w, data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize object %s: %w", key, err)
	}
	return nil
}

func (s *gcsStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open object %s: %w", key, err)
	}
	return r, nil
}

func (s *gcsStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.client.Bucket(s.bucket).Object(key).Delete(ctx); err != nil {
		if err == gcs.ErrObjectNotExist {
			return nil
		}
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

func (s *gcsStore) DeletePrefix(ctx context.Context, prefix string) error {
	it := s.client.Bucket(s.bucket).Objects(ctx, &gcs.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to list objects under %s: %w", prefix, err)
		}
		if err := s.Delete(ctx, attrs.Name); err != nil {
			s.logger.Warn("failed to delete object during prefix cleanup",
				zap.String("key", attrs.Name),
				zap.Error(err))
		}
	}
	return nil
}

func (s *gcsStore) PublicURL(key string) string {
	key = strings.TrimLeft(key, "/")
	if s.cdn != "" {
		return fmt.Sprintf("https://%s/%s", s.cdn, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, key)
}

func (s *gcsStore) KeyFromURL(url string) (string, bool) {
	prefixes := []string{
		fmt.Sprintf("https://storage.googleapis.com/%s/", s.bucket),
	}
	if s.cdn != "" {
		prefixes = append([]string{fmt.Sprintf("https://%s/", s.cdn)}, prefixes...)
	}
	for _, p := range prefixes {
		if strings.HasPrefix(url, p) {
			return strings.TrimPrefix(url, p), true
		}
	}
	return "", false
}

func contentTypeForKey(key string) string {
	s := strings.ToLower(key)
	switch {
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".webp"):
		return "image/webp"
	case strings.HasSuffix(s, ".gif"):
		return "image/gif"
	case strings.HasSuffix(s, ".webm"):
		return "audio/webm"
	case strings.HasSuffix(s, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(s, ".wav"):
		return "audio/wav"
	case strings.HasSuffix(s, ".m4a"):
		return "audio/mp4"
	default:
		return ""
	}
}

// Ensure gcsStore implements ObjectStore at compile time.
var _ ObjectStore = (*gcsStore)(nil)
