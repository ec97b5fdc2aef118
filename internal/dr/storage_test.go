package dr

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"

	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
)

// newFakeS3 spins up an in-process S3-compatible server and returns an
// S3Storage pointed at it, grounded on the teacher's
// internal/storage/blob/s3/s3_test.go use of gofakes3+s3mem as a stand-in
// for a real bucket.
func newFakeS3(t *testing.T, bucket string) (*S3Storage, func()) {
	t.Helper()

	backend := s3mem.New()
	faker := gofakes3.New(backend)
	ts := httptest.NewServer(faker.Server())

	if err := backend.CreateBucket(bucket); err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}

	st, err := NewS3Storage(S3Config{
		Endpoint:        ts.Listener.Addr().String(),
		AccessKeyID:     "access-key",
		SecretAccessKey: "secret-key",
		Bucket:          bucket,
		Secure:          false,
	})
	if err != nil {
		t.Fatalf("NewS3Storage: %v", err)
	}

	return st, ts.Close
}

func TestS3Storage_UploadDownloadDelete(t *testing.T) {
	st, closeSrv := newFakeS3(t, "sentinel-test")
	defer closeSrv()

	ctx := context.Background()
	data := []byte("encrypted-backup-blob")

	if err := st.Upload(ctx, "backup-1", data); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	got, err := st.Download(ctx, "backup-1")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("Download returned %q, want %q", got, data)
	}

	if err := st.Delete(ctx, "backup-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := st.Download(ctx, "backup-1"); err != ErrNoSuchBackup {
		t.Fatalf("Download after Delete: got err %v, want ErrNoSuchBackup", err)
	}
}

func TestS3Storage_List(t *testing.T) {
	st, closeSrv := newFakeS3(t, "sentinel-test")
	defer closeSrv()

	ctx := context.Background()
	if err := st.Upload(ctx, "backup-a", []byte("a")); err != nil {
		t.Fatalf("Upload a: %v", err)
	}
	if err := st.Upload(ctx, "backup-b", []byte("bb")); err != nil {
		t.Fatalf("Upload b: %v", err)
	}

	infos, err := st.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(infos))
	}

	sizes := map[string]int64{}
	for _, info := range infos {
		sizes[info.Key] = info.Size
	}
	if sizes["backup-a"] != 1 || sizes["backup-b"] != 2 {
		t.Fatalf("unexpected sizes: %+v", sizes)
	}
}

func TestS3Storage_DownloadMissingKey(t *testing.T) {
	st, closeSrv := newFakeS3(t, "sentinel-test")
	defer closeSrv()

	if _, err := st.Download(context.Background(), "nope"); err != ErrNoSuchBackup {
		t.Fatalf("got err %v, want ErrNoSuchBackup", err)
	}
}
