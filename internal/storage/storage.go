// Package storage publishes invoice files to durable storage and makes
// them readable by link.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/joseph-ayodele/invoice-intake/internal/common"
)

// Store is the durable object store collaborator.
type Store interface {
	// Upload stores data under name inside container and returns the object ID.
	Upload(ctx context.Context, data []byte, name, container string) (string, error)
	// SetPublicRead makes the object readable by anyone holding the link.
	SetPublicRead(ctx context.Context, objectID string) error
	// Link derives the public URL of an object.
	Link(objectID string) string
}

// PublishedArtifact is a stored, link-accessible invoice file.
type PublishedArtifact struct {
	ObjectID string `json:"object_id"`
	Name     string `json:"name"`
	Link     string `json:"link"`
}

// UploadError reports a failed upload; nothing was stored.
type UploadError struct {
	Name string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %q: %v", e.Name, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// PermissionError reports an uploaded object that could not be made public.
// The object stays in storage.
type PermissionError struct {
	ObjectID string
	Err      error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("set public read on %s: %v", e.ObjectID, e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

// Publisher uploads documents into one fixed container.
type Publisher struct {
	store     Store
	container string
	logger    *slog.Logger
}

func NewPublisher(store Store, container string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{store: store, container: container, logger: logger}
}

// Publish uploads data under name, grants public read and returns the artifact.
// Each call creates a new object; there is no deduplication and no rollback.
func (p *Publisher) Publish(ctx context.Context, data []byte, name string) (PublishedArtifact, error) {
	log := common.LoggerFrom(ctx, p.logger)
	start := time.Now()

	objectID, err := p.store.Upload(ctx, data, name, p.container)
	if err != nil {
		log.Error("storage.upload.failed", "name", name, "container", p.container, "error", err)
		return PublishedArtifact{}, &UploadError{Name: name, Err: err}
	}
	log.Info("storage.upload.ok", "name", name, "object_id", objectID, "bytes", len(data))

	if err := p.store.SetPublicRead(ctx, objectID); err != nil {
		log.Error("storage.permission.failed", "object_id", objectID, "error", err)
		return PublishedArtifact{ObjectID: objectID, Name: name}, &PermissionError{ObjectID: objectID, Err: err}
	}

	art := PublishedArtifact{ObjectID: objectID, Name: name, Link: p.store.Link(objectID)}
	log.Info("storage.publish.ok",
		"object_id", objectID,
		"link", art.Link,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return art, nil
}

// contentType guesses the media type from the stored name's extension.
func contentType(name string) string {
	if ct := mime.TypeByExtension(strings.ToLower(path.Ext(name))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// escapeKey percent-encodes each segment of an object key for use in a URL path.
func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// splitObjectID splits "bucket/key" object IDs used by the bucket stores.
func splitObjectID(objectID string) (bucket, key string, err error) {
	bucket, key, ok := strings.Cut(objectID, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("malformed object id %q", objectID)
	}
	return bucket, key, nil
}
