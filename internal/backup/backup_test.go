package backup

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"fridgeio/internal/database"
)

type fakeS3 struct {
	puts []putCall
	err  error
}

type putCall struct {
	bucket string
	key    string
	size   int64
}

func (f *fakeS3) PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	n, err := io.Copy(io.Discard, input.Body)
	if err != nil {
		return nil, err
	}
	f.puts = append(f.puts, putCall{
		bucket: *input.Bucket,
		key:    *input.Key,
		size:   n,
	})
	return &s3.PutObjectOutput{}, nil
}

func setupManager(t *testing.T) (*Manager, *fakeS3) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := Config{
		S3: S3Config{Bucket: "fridgeio-backups", Prefix: "prod"},
	}
	m := NewManager(cfg, db, slog.Default())

	// Swap in the fake and flip the manager out of its disabled state.
	fake := &fakeS3{}
	m.client = fake
	m.status.State = StateIdle
	return m, fake
}

func TestRunNowUploadsSnapshot(t *testing.T) {
	m, fake := setupManager(t)

	key, err := m.RunNow(context.Background())
	if err != nil {
		t.Fatalf("run backup: %v", err)
	}

	if len(fake.puts) != 1 {
		t.Fatalf("got %d uploads, want 1", len(fake.puts))
	}
	put := fake.puts[0]
	if put.bucket != "fridgeio-backups" {
		t.Errorf("bucket = %q", put.bucket)
	}
	if put.key != key {
		t.Errorf("key = %q, returned %q", put.key, key)
	}
	if put.size == 0 {
		t.Error("uploaded snapshot is empty")
	}

	status := m.Status()
	if status.State != StateIdle {
		t.Errorf("state = %q, want idle", status.State)
	}
	if status.LastBackup == nil {
		t.Error("last backup timestamp not set")
	}
}

func TestRunNowReportsUploadFailure(t *testing.T) {
	m, fake := setupManager(t)
	fake.err = context.DeadlineExceeded

	if _, err := m.RunNow(context.Background()); err == nil {
		t.Fatal("expected error when upload fails")
	}
	if got := m.Status().State; got != StateError {
		t.Errorf("state = %q, want error", got)
	}
}

func TestDisabledWithoutCredentials(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	m := NewManager(Config{}, db, slog.Default())
	if m.Enabled() {
		t.Fatal("manager should be disabled without credentials")
	}
	if got := m.Status().State; got != StateDisabled {
		t.Errorf("state = %q, want disabled", got)
	}
	if _, err := m.RunNow(context.Background()); err == nil {
		t.Fatal("expected error from RunNow while disabled")
	}

	// Start/Stop are no-ops while disabled.
	m.Start(context.Background())
	m.Stop()
}
