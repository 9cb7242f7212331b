package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

// s3API is the subset of *s3.Client used by S3Store.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	PutObjectAcl(ctx context.Context, in *s3.PutObjectAclInput, optFns ...func(*s3.Options)) (*s3.PutObjectAclOutput, error)
}

var _ Store = (*S3Store)(nil)

// S3Store keeps invoices in an S3 bucket. Object IDs have the form "bucket/uuid/name".
type S3Store struct {
	client s3API
	region string
	logger *slog.Logger
}

func NewS3Store(ctx context.Context, region string, logger *slog.Logger) (*S3Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS SDK config: %w", err)
	}
	return &S3Store{client: s3.NewFromConfig(cfg), region: cfg.Region, logger: logger}, nil
}

func (s *S3Store) Upload(ctx context.Context, data []byte, name, bucket string) (string, error) {
	key := uuid.NewString() + "/" + name
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(name)),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put object %s: %w", key, err)
	}
	return bucket + "/" + key, nil
}

func (s *S3Store) SetPublicRead(ctx context.Context, objectID string) error {
	bucket, key, err := splitObjectID(objectID)
	if err != nil {
		return err
	}
	_, err = s.client.PutObjectAcl(ctx, &s3.PutObjectAclInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		ACL:    types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return fmt.Errorf("s3 put object acl: %w", err)
	}
	return nil
}

func (s *S3Store) Link(objectID string) string {
	bucket, key, err := splitObjectID(objectID)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, s.region, escapeKey(key))
}
