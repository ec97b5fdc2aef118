package dr

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// BackupRecord is the metadata kept for one completed backup.
type BackupRecord struct {
	ID        string
	Key       string
	CreatedAt time.Time
	Checksum  string
	Compress  bool
	Metadata  map[string]string
}

// CreateBackupOptions configures CreateBackup.
type CreateBackupOptions struct {
	DumpFn     func(ctx context.Context) ([]byte, error)
	Compress   bool
	Metadata   map[string]string
	OnProgress func(stage string)
}

// VerifyOptions configures VerifyBackup.
type VerifyOptions struct {
	ExpectedChecksum string
	TestRestore      bool
	RestoreFn        func(data []byte) error
}

// RestoreOptions configures Restore.
type RestoreOptions struct {
	BackupID      string
	RestoreFn     func(data []byte, tables []string) error
	ValidateFirst bool
	Tables        []string
}

// BackupManager encrypts, optionally compresses, uploads and later restores
// application dumps, grounded on maddy's storage/blob abstraction for the
// upload/download surface.
type BackupManager struct {
	Storage         BackupStorage
	EncryptionKey   string
	Salt            []byte
	RetentionWindow time.Duration

	mu      sync.Mutex
	records map[string]*BackupRecord
}

func NewBackupManager(storage BackupStorage, encryptionKey string, retention time.Duration) *BackupManager {
	return &BackupManager{
		Storage:         storage,
		EncryptionKey:   encryptionKey,
		RetentionWindow: retention,
		records:         make(map[string]*BackupRecord),
	}
}

func (m *BackupManager) key() []byte { return deriveKey(m.EncryptionKey, m.Salt) }

// CreateBackup reads the dump, optionally gzips it, encrypts it
// AES-256-CBC, computes a SHA-256 checksum over the encrypted blob, and
// uploads it. Returns the backup's id and checksum.
func (m *BackupManager) CreateBackup(ctx context.Context, opts CreateBackupOptions) (id string, checksum string, err error) {
	progress := func(stage string) {
		if opts.OnProgress != nil {
			opts.OnProgress(stage)
		}
	}

	progress("dumping")
	raw, err := opts.DumpFn(ctx)
	if err != nil {
		backupRuns.WithLabelValues("create", "failure").Inc()
		return "", "", fmt.Errorf("dr: dump failed: %w", err)
	}

	if opts.Compress {
		progress("compressing")
		raw, err = gzipCompress(raw)
		if err != nil {
			backupRuns.WithLabelValues("create", "failure").Inc()
			return "", "", fmt.Errorf("dr: compression failed: %w", err)
		}
	}

	progress("encrypting")
	encrypted, err := encryptAESCBC(raw, m.key())
	if err != nil {
		backupRuns.WithLabelValues("create", "failure").Inc()
		return "", "", fmt.Errorf("dr: encryption failed: %w", err)
	}

	sum := sha256.Sum256(encrypted)
	checksum = hex.EncodeToString(sum[:])
	id = uuid.NewString()
	key := "backup-" + id

	progress("uploading")
	if err := m.Storage.Upload(ctx, key, encrypted); err != nil {
		backupRuns.WithLabelValues("create", "failure").Inc()
		return "", "", fmt.Errorf("dr: upload failed: %w", err)
	}

	m.mu.Lock()
	m.records[id] = &BackupRecord{
		ID:        id,
		Key:       key,
		CreatedAt: time.Now(),
		Checksum:  checksum,
		Compress:  opts.Compress,
		Metadata:  opts.Metadata,
	}
	m.mu.Unlock()

	backupRuns.WithLabelValues("create", "success").Inc()
	return id, checksum, nil
}

// VerifyBackup downloads a backup and recomputes its checksum; when
// TestRestore is set it also decrypts (and decompresses) the blob and hands
// the plaintext to RestoreFn, without touching live state unless RestoreFn
// itself does.
func (m *BackupManager) VerifyBackup(ctx context.Context, id string, opts VerifyOptions) error {
	rec, err := m.lookup(id)
	if err != nil {
		return err
	}

	blob, err := m.Storage.Download(ctx, rec.Key)
	if err != nil {
		return fmt.Errorf("dr: download failed: %w", err)
	}

	sum := sha256.Sum256(blob)
	got := hex.EncodeToString(sum[:])
	want := opts.ExpectedChecksum
	if want == "" {
		want = rec.Checksum
	}
	if got != want {
		backupRuns.WithLabelValues("verify", "failure").Inc()
		return fmt.Errorf("dr: checksum mismatch for backup %s: got %s want %s", id, got, want)
	}

	if opts.TestRestore {
		plaintext, err := m.decode(blob, rec.Compress)
		if err != nil {
			backupRuns.WithLabelValues("verify", "failure").Inc()
			return fmt.Errorf("dr: decrypt for verify failed: %w", err)
		}
		if opts.RestoreFn != nil {
			if err := opts.RestoreFn(plaintext); err != nil {
				backupRuns.WithLabelValues("verify", "failure").Inc()
				return fmt.Errorf("dr: test restore failed: %w", err)
			}
		}
	}
	backupRuns.WithLabelValues("verify", "success").Inc()
	return nil
}

// Restore downloads, decrypts and hands the plaintext to RestoreFn.
func (m *BackupManager) Restore(ctx context.Context, opts RestoreOptions) error {
	rec, err := m.lookup(opts.BackupID)
	if err != nil {
		return err
	}

	if opts.ValidateFirst {
		if err := m.VerifyBackup(ctx, opts.BackupID, VerifyOptions{}); err != nil {
			backupRuns.WithLabelValues("restore", "failure").Inc()
			return fmt.Errorf("dr: pre-restore validation failed: %w", err)
		}
	}

	blob, err := m.Storage.Download(ctx, rec.Key)
	if err != nil {
		backupRuns.WithLabelValues("restore", "failure").Inc()
		return fmt.Errorf("dr: download failed: %w", err)
	}

	plaintext, err := m.decode(blob, rec.Compress)
	if err != nil {
		backupRuns.WithLabelValues("restore", "failure").Inc()
		return fmt.Errorf("dr: decrypt failed: %w", err)
	}

	if err := opts.RestoreFn(plaintext, opts.Tables); err != nil {
		backupRuns.WithLabelValues("restore", "failure").Inc()
		return err
	}
	backupRuns.WithLabelValues("restore", "success").Inc()
	return nil
}

// RestoreToPointInTime picks the newest backup whose CreatedAt is at or
// before targetTime and restores it.
func (m *BackupManager) RestoreToPointInTime(ctx context.Context, targetTime time.Time, restoreFn func(data []byte, tables []string) error) (string, error) {
	m.mu.Lock()
	var best *BackupRecord
	for _, rec := range m.records {
		if rec.CreatedAt.After(targetTime) {
			continue
		}
		if best == nil || rec.CreatedAt.After(best.CreatedAt) {
			best = rec
		}
	}
	m.mu.Unlock()

	if best == nil {
		return "", fmt.Errorf("dr: no backup found at or before %s", targetTime)
	}

	err := m.Restore(ctx, RestoreOptions{BackupID: best.ID, RestoreFn: restoreFn})
	return best.ID, err
}

// CleanupOldBackups deletes every backup record (and its stored blob) older
// than RetentionWindow.
func (m *BackupManager) CleanupOldBackups(ctx context.Context) (deleted int, err error) {
	cutoff := time.Now().Add(-m.RetentionWindow)

	m.mu.Lock()
	var toDelete []*BackupRecord
	for _, rec := range m.records {
		if rec.CreatedAt.Before(cutoff) {
			toDelete = append(toDelete, rec)
		}
	}
	m.mu.Unlock()

	sort.Slice(toDelete, func(i, j int) bool { return toDelete[i].CreatedAt.Before(toDelete[j].CreatedAt) })

	for _, rec := range toDelete {
		if err := m.Storage.Delete(ctx, rec.Key); err != nil {
			backupRuns.WithLabelValues("cleanup", "failure").Inc()
			return deleted, fmt.Errorf("dr: delete %s failed: %w", rec.ID, err)
		}
		m.mu.Lock()
		delete(m.records, rec.ID)
		m.mu.Unlock()
		deleted++
	}
	backupRuns.WithLabelValues("cleanup", "success").Inc()
	return deleted, nil
}

func (m *BackupManager) lookup(id string) (*BackupRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("dr: unknown backup id %s", id)
	}
	return rec, nil
}

func (m *BackupManager) decode(blob []byte, compressed bool) ([]byte, error) {
	plaintext, err := decryptAESCBC(blob, m.key())
	if err != nil {
		return nil, err
	}
	if compressed {
		return gzipDecompress(plaintext)
	}
	return plaintext, nil
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzipDecompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
