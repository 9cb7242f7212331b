package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

var _ Store = (*DriveStore)(nil)

// DriveStore keeps invoices in a Google Drive folder. The container is the folder ID.
type DriveStore struct {
	svc    *drive.Service
	logger *slog.Logger
}

func NewDriveStore(ctx context.Context, logger *slog.Logger, opts ...option.ClientOption) (*DriveStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("drive.NewService: %w", err)
	}
	return &DriveStore{svc: svc, logger: logger}, nil
}

func (s *DriveStore) Upload(ctx context.Context, data []byte, name, folderID string) (string, error) {
	meta := &drive.File{Name: name}
	if folderID != "" {
		meta.Parents = []string{folderID}
	}
	f, err := s.svc.Files.Create(meta).
		Media(bytes.NewReader(data), googleapi.ContentType(contentType(name))).
		Fields("id").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("drive files.create: %w", err)
	}
	return f.Id, nil
}

func (s *DriveStore) SetPublicRead(ctx context.Context, fileID string) error {
	_, err := s.svc.Permissions.Create(fileID, &drive.Permission{Role: "reader", Type: "anyone"}).
		Fields("id").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("drive permissions.create: %w", err)
	}
	return nil
}

func (s *DriveStore) Link(fileID string) string {
	return DriveLink(fileID)
}

// DriveLink is the sharing URL of a Drive file.
func DriveLink(fileID string) string {
	return fmt.Sprintf("https://drive.google.com/file/d/%s/view?usp=sharing", fileID)
}
