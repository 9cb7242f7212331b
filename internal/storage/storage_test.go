package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory Store that hands out sequential IDs.
type memStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	public    map[string]bool
	uploadErr error
	permErr   error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, public: map[string]bool{}}
}

func (m *memStore) Upload(_ context.Context, data []byte, name, container string) (string, error) {
	if m.uploadErr != nil {
		return "", m.uploadErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := fmt.Sprintf("%s/%s#%d", container, name, len(m.objects))
	m.objects[id] = data
	return id, nil
}

func (m *memStore) SetPublicRead(_ context.Context, id string) error {
	if m.permErr != nil {
		return m.permErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.public[id] = true
	return nil
}

func (m *memStore) Link(id string) string { return "https://files.example/" + id }

func TestPublish(t *testing.T) {
	store := newMemStore()
	p := NewPublisher(store, "folder-1", quietLogger())

	art, err := p.Publish(context.Background(), []byte("pdf"), "ACME - 2024-05-01 - 10.pdf")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if art.ObjectID != "folder-1/ACME - 2024-05-01 - 10.pdf#0" {
		t.Errorf("ObjectID = %q", art.ObjectID)
	}
	if art.Link != "https://files.example/"+art.ObjectID {
		t.Errorf("Link = %q", art.Link)
	}
	if !store.public[art.ObjectID] {
		t.Errorf("object was not made public")
	}
}

func TestPublishTwiceCreatesTwoObjects(t *testing.T) {
	store := newMemStore()
	p := NewPublisher(store, "c", quietLogger())

	a1, err1 := p.Publish(context.Background(), []byte("x"), "same.jpg")
	a2, err2 := p.Publish(context.Background(), []byte("x"), "same.jpg")
	if err1 != nil || err2 != nil {
		t.Fatalf("Publish errors: %v %v", err1, err2)
	}
	if a1.ObjectID == a2.ObjectID || len(store.objects) != 2 {
		t.Errorf("want two independent objects, got %q and %q", a1.ObjectID, a2.ObjectID)
	}
}

func TestPublishUploadFailure(t *testing.T) {
	store := newMemStore()
	store.uploadErr = errors.New("quota exceeded")
	p := NewPublisher(store, "c", quietLogger())

	_, err := p.Publish(context.Background(), []byte("x"), "a.jpg")
	var ue *UploadError
	if !errors.As(err, &ue) {
		t.Fatalf("want UploadError, got %v", err)
	}
	if len(store.public) != 0 {
		t.Errorf("permission must not be attempted after a failed upload")
	}
}

func TestPublishPermissionFailure(t *testing.T) {
	store := newMemStore()
	store.permErr = errors.New("forbidden")
	p := NewPublisher(store, "c", quietLogger())

	art, err := p.Publish(context.Background(), []byte("x"), "a.jpg")
	var pe *PermissionError
	if !errors.As(err, &pe) {
		t.Fatalf("want PermissionError, got %v", err)
	}
	if art.Link != "" {
		t.Errorf("no link may be returned for an unreachable object, got %q", art.Link)
	}
	if len(store.objects) != 1 {
		t.Errorf("uploaded object should remain, objects = %d", len(store.objects))
	}
}

type fakeS3 struct {
	puts []*s3.PutObjectInput
	acls []*s3.PutObjectAclInput
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) PutObjectAcl(_ context.Context, in *s3.PutObjectAclInput, _ ...func(*s3.Options)) (*s3.PutObjectAclOutput, error) {
	f.acls = append(f.acls, in)
	return &s3.PutObjectAclOutput{}, nil
}

func TestS3Store(t *testing.T) {
	api := &fakeS3{}
	s := &S3Store{client: api, region: "eu-west-1", logger: quietLogger()}

	id, err := s.Upload(context.Background(), []byte("x"), "ACME - 2024-05-01 - 1.pdf", "invoices")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !strings.HasPrefix(id, "invoices/") || !strings.HasSuffix(id, "/ACME - 2024-05-01 - 1.pdf") {
		t.Errorf("object id = %q", id)
	}
	if got := aws.ToString(api.puts[0].ContentType); got != "application/pdf" {
		t.Errorf("ContentType = %q", got)
	}

	if err := s.SetPublicRead(context.Background(), id); err != nil {
		t.Fatalf("SetPublicRead: %v", err)
	}
	if api.acls[0].ACL != types.ObjectCannedACLPublicRead {
		t.Errorf("ACL = %q", api.acls[0].ACL)
	}
	if aws.ToString(api.acls[0].Key) != aws.ToString(api.puts[0].Key) {
		t.Errorf("acl key %q != put key %q", aws.ToString(api.acls[0].Key), aws.ToString(api.puts[0].Key))
	}

	link := s.Link(id)
	if !strings.HasPrefix(link, "https://invoices.s3.eu-west-1.amazonaws.com/") || !strings.HasSuffix(link, "/ACME%20-%202024-05-01%20-%201.pdf") {
		t.Errorf("link = %q", link)
	}
}

func TestLinks(t *testing.T) {
	if got := DriveLink("abc123"); got != "https://drive.google.com/file/d/abc123/view?usp=sharing" {
		t.Errorf("DriveLink = %q", got)
	}
	g := &GCSStore{}
	if got := g.Link("bucket/k1/ООО #1.jpg"); got != "https://storage.googleapis.com/bucket/k1/%D0%9E%D0%9E%D0%9E%20%231.jpg" {
		t.Errorf("GCS link = %q", got)
	}
	if err := (&S3Store{}).SetPublicRead(context.Background(), "no-slash"); err == nil {
		t.Errorf("malformed object id should be rejected")
	}
}
