// Package dr implements the disaster-recovery controller (C10): an
// encrypting backup manager, a failover health monitor, and an ordered
// recovery plan executor, grounded on maddy's storage/blob/s3.Store for the
// minio-go wiring and on check/rspamd/check/dnsbl for the timeout/health
// style of the failover monitor.
package dr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// BackupInfo describes one stored backup, as returned by BackupStorage.List.
type BackupInfo struct {
	Key       string
	Type      string
	CreatedAt string
	Size      int64
	Checksum  string
}

// BackupStorage is the abstract upload/download/list/delete surface the
// backup manager drives; S3Storage is the concrete minio-go-backed
// implementation.
type BackupStorage interface {
	Upload(ctx context.Context, key string, data []byte) error
	Download(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context) ([]BackupInfo, error)
	Delete(ctx context.Context, key string) error
}

// S3Storage implements BackupStorage against an S3-compatible endpoint via
// minio-go, the same client the teacher's storage/blob/s3.Store wires up.
type S3Storage struct {
	cl     *minio.Client
	bucket string
	prefix string
}

type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Prefix          string
	Secure          bool
	Region          string
}

func NewS3Storage(cfg S3Config) (*S3Storage, error) {
	cl, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("dr: s3 client: %w", err)
	}
	return &S3Storage{cl: cl, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *S3Storage) key(k string) string { return s.prefix + k }

func (s *S3Storage) Upload(ctx context.Context, key string, data []byte) error {
	_, err := s.cl.PutObject(ctx, s.bucket, s.key(key), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	return err
}

func (s *S3Storage) Download(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.cl.GetObject(ctx, s.bucket, s.key(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.StatusCode == http.StatusNotFound {
			return nil, ErrNoSuchBackup
		}
		return nil, err
	}
	return data, nil
}

func (s *S3Storage) List(ctx context.Context) ([]BackupInfo, error) {
	var out []BackupInfo
	for obj := range s.cl.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: s.prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		out = append(out, BackupInfo{
			Key:       obj.Key[len(s.prefix):],
			CreatedAt: obj.LastModified.Format("2006-01-02T15:04:05Z07:00"),
			Size:      obj.Size,
			Checksum:  obj.ETag,
		})
	}
	return out, nil
}

func (s *S3Storage) Delete(ctx context.Context, key string) error {
	return s.cl.RemoveObject(ctx, s.bucket, s.key(key), minio.RemoveObjectOptions{})
}

// ErrNoSuchBackup is returned by BackupStorage.Download for an unknown key.
var ErrNoSuchBackup = fmt.Errorf("dr: no such backup")
