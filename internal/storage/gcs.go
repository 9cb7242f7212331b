package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	gcs "cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

var _ Store = (*GCSStore)(nil)

// GCSStore keeps invoices in a Cloud Storage bucket. The container is the
// bucket name and object IDs have the form "bucket/uuid/name".
type GCSStore struct {
	client *gcs.Client
	logger *slog.Logger
}

func NewGCSStore(ctx context.Context, logger *slog.Logger, opts ...option.ClientOption) (*GCSStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return &GCSStore{client: client, logger: logger}, nil
}

func (s *GCSStore) Upload(ctx context.Context, data []byte, name, bucket string) (string, error) {
	key := uuid.NewString() + "/" + name
	w := s.client.Bucket(bucket).Object(key).If(gcs.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType(name)

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write gcs object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			return "", fmt.Errorf("gcs object %s already exists: %w", key, err)
		}
		return "", fmt.Errorf("finalize gcs object %s: %w", key, err)
	}
	return bucket + "/" + key, nil
}

func (s *GCSStore) SetPublicRead(ctx context.Context, objectID string) error {
	bucket, key, err := splitObjectID(objectID)
	if err != nil {
		return err
	}
	if err := s.client.Bucket(bucket).Object(key).ACL().Set(ctx, gcs.AllUsers, gcs.RoleReader); err != nil {
		return fmt.Errorf("gcs acl set: %w", err)
	}
	return nil
}

func (s *GCSStore) Link(objectID string) string {
	return "https://storage.googleapis.com/" + escapeKey(objectID)
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
