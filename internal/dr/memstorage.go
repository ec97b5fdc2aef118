package dr

import (
	"context"
	"sync"
	"time"
)

// MemBackupStorage is an in-memory BackupStorage used for tests and small
// deployments without an S3-compatible endpoint.
type MemBackupStorage struct {
	mu    sync.Mutex
	blobs map[string][]byte
	meta  map[string]BackupInfo
}

func NewMemBackupStorage() *MemBackupStorage {
	return &MemBackupStorage{
		blobs: make(map[string][]byte),
		meta:  make(map[string]BackupInfo),
	}
}

func (m *MemBackupStorage) Upload(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), data...)
	m.meta[key] = BackupInfo{
		Key:       key,
		CreatedAt: time.Now().Format(time.RFC3339),
		Size:      int64(len(data)),
	}
	return nil
}

func (m *MemBackupStorage) Download(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[key]
	if !ok {
		return nil, ErrNoSuchBackup
	}
	return append([]byte(nil), data...), nil
}

func (m *MemBackupStorage) List(ctx context.Context) ([]BackupInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]BackupInfo, 0, len(m.meta))
	for _, info := range m.meta {
		out = append(out, info)
	}
	return out, nil
}

func (m *MemBackupStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	delete(m.meta, key)
	return nil
}
