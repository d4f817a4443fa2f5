// Package backup snapshots the SQLite database to S3-compatible storage.
package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "modernc.org/sqlite"

	"github.com/dukerupert/themeshop/internal/model"
	"github.com/dukerupert/themeshop/internal/store"
)

const keyPrefix = "backups/"

var (
	ErrNotConfigured = errors.New("backup not configured: S3 credentials missing")
	ErrNotFound      = errors.New("backup not found")
	ErrInProgress    = errors.New("backup already in progress")
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

func (c S3Config) complete() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

type Config struct {
	S3            S3Config
	Passphrase    string
	Interval      time.Duration
	RetentionDays int
}

type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

type Status struct {
	State      State      `json:"state"`
	LastBackup *time.Time `json:"last_backup,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Manager takes scheduled and on-demand snapshots.
type Manager struct {
	mu     sync.RWMutex
	cfg    Config
	status Status

	db      *sql.DB
	backups *store.BackupStore
	client  s3Client
	logger  *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(cfg Config, db *sql.DB, backups *store.BackupStore, logger *slog.Logger) *Manager {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}
	m := &Manager{
		cfg:     cfg,
		db:      db,
		backups: backups,
		logger:  logger.With("component", "backup"),
		status:  Status{State: StateDisabled},
	}
	if cfg.S3.complete() {
		m.client = newS3Client(cfg.S3)
		m.status.State = StateIdle
	}
	return m
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Enabled reports whether snapshots can be uploaded.
func (m *Manager) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client != nil
}

// Start runs a snapshot and retention cleanup every interval until Stop.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.client == nil {
		m.mu.Unlock()
		m.logger.Info("backups disabled, S3 settings missing")
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	interval := m.cfg.Interval
	m.mu.Unlock()

	m.logger.Info("backup schedule started", "interval", interval)

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.Run(ctx); err != nil {
					m.logger.Error("scheduled backup failed", "error", err)
				}
				if err := m.Cleanup(ctx); err != nil {
					m.logger.Error("backup cleanup failed", "error", err)
				}
			}
		}
	}()
}

// Stop gracefully stops the schedule.
func (m *Manager) Stop() {
	m.mu.RLock()
	cancel := m.cancel
	done := m.done
	m.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	if s.LastBackup == nil {
		s.LastBackup = m.status.LastBackup
	}
	m.status = s
	m.mu.Unlock()
}

// Run snapshots the database with VACUUM INTO, encrypts the copy when a
// passphrase is configured, and uploads it.
func (m *Manager) Run(ctx context.Context) (*model.Backup, error) {
	m.mu.Lock()
	client := m.client
	bucket := m.cfg.S3.Bucket
	passphrase := m.cfg.Passphrase
	if client == nil {
		m.mu.Unlock()
		return nil, ErrNotConfigured
	}
	if m.status.State == StateRunning {
		m.mu.Unlock()
		return nil, ErrInProgress
	}
	m.status.State = StateRunning
	m.status.Error = ""
	m.mu.Unlock()

	encrypted := passphrase != ""
	filename := "themeshop-" + time.Now().UTC().Format("2006-01-02T150405Z") + ".db"
	if encrypted {
		filename += ".enc"
	}
	s3Key := keyPrefix + filename

	record, err := m.backups.Create(ctx, filename, s3Key, encrypted)
	if err != nil {
		m.setStatus(Status{State: StateError, Error: err.Error()})
		return nil, fmt.Errorf("create backup record: %w", err)
	}

	fail := func(op string, err error) (*model.Backup, error) {
		err = fmt.Errorf("%s: %w", op, err)
		if uerr := m.backups.UpdateStatus(ctx, record.ID, model.BackupStatusFailed, err.Error()); uerr != nil {
			m.logger.Error("record backup failure", "backup_id", record.ID, "error", uerr)
		}
		m.setStatus(Status{State: StateError, Error: err.Error()})
		return nil, err
	}

	tmpDir, err := os.MkdirTemp("", "themeshop-backup-")
	if err != nil {
		return fail("create temp dir", err)
	}
	defer os.RemoveAll(tmpDir)

	snapshot := filepath.Join(tmpDir, "snapshot.db")
	if _, err := m.db.ExecContext(ctx, `VACUUM INTO ?`, snapshot); err != nil {
		return fail("snapshot database", err)
	}

	upload := snapshot
	if encrypted {
		salt, err := GenerateSalt()
		if err != nil {
			return fail("generate salt", err)
		}
		upload = snapshot + ".enc"
		if err := EncryptFile(snapshot, upload, passphrase, salt); err != nil {
			return fail("encrypt", err)
		}
	}

	if err := m.backups.UpdateStatus(ctx, record.ID, model.BackupStatusUploading, ""); err != nil {
		return fail("update backup status", err)
	}

	f, err := os.Open(upload)
	if err != nil {
		return fail("open snapshot", err)
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return fail("stat snapshot", err)
	}

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(s3Key),
		Body:          f,
		ContentLength: aws.Int64(stat.Size()),
	})
	if err != nil {
		return fail("upload to s3", err)
	}

	if err := m.backups.UpdateCompleted(ctx, record.ID, stat.Size()); err != nil {
		return fail("record completed backup", err)
	}

	now := time.Now().UTC()
	m.setStatus(Status{State: StateIdle, LastBackup: &now})
	m.logger.Info("backup uploaded", "backup_id", record.ID, "key", s3Key, "size_bytes", stat.Size(), "encrypted", encrypted)

	return m.backups.GetByID(ctx, record.ID)
}

func (m *Manager) List(ctx context.Context, limit int) ([]model.Backup, error) {
	return m.backups.List(ctx, limit)
}

// Restore downloads a backup, decrypts it if needed, checks its integrity
// and writes it to destPath. The server must not be using destPath.
func (m *Manager) Restore(ctx context.Context, backupID, destPath string) error {
	m.mu.RLock()
	client := m.client
	bucket := m.cfg.S3.Bucket
	passphrase := m.cfg.Passphrase
	m.mu.RUnlock()

	if client == nil {
		return ErrNotConfigured
	}

	record, err := m.backups.GetByID(ctx, backupID)
	if err != nil {
		return fmt.Errorf("get backup: %w", err)
	}
	if record == nil || record.Status != model.BackupStatusCompleted {
		return ErrNotFound
	}
	if record.Encrypted && passphrase == "" {
		return fmt.Errorf("backup %s is encrypted: BACKUP_PASSPHRASE is required", backupID)
	}

	tmpDir, err := os.MkdirTemp("", "themeshop-restore-")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	downloaded := filepath.Join(tmpDir, "download")
	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(record.S3Key),
	})
	if err != nil {
		return fmt.Errorf("download from s3: %w", err)
	}
	defer result.Body.Close()

	out, err := os.Create(downloaded)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(out, result.Body); err != nil {
		out.Close()
		return fmt.Errorf("write downloaded file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("write downloaded file: %w", err)
	}

	restored := downloaded
	if record.Encrypted {
		restored = filepath.Join(tmpDir, "restored.db")
		if err := DecryptFile(downloaded, restored, passphrase); err != nil {
			return fmt.Errorf("decrypt backup: %w", err)
		}
	}

	if err := checkIntegrity(ctx, restored); err != nil {
		return err
	}

	if err := copyFile(restored, destPath); err != nil {
		return fmt.Errorf("replace database: %w", err)
	}
	os.Remove(destPath + "-wal")
	os.Remove(destPath + "-shm")

	m.logger.Info("backup restored", "backup_id", backupID, "path", destPath)
	return nil
}

func checkIntegrity(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open restored db: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if !strings.EqualFold(result, "ok") {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// Cleanup deletes backups older than the retention period.
func (m *Manager) Cleanup(ctx context.Context) error {
	m.mu.RLock()
	client := m.client
	bucket := m.cfg.S3.Bucket
	days := m.cfg.RetentionDays
	m.mu.RUnlock()

	if client == nil {
		return nil
	}

	before := time.Now().UTC().AddDate(0, 0, -days)
	keys, err := m.backups.DeleteOlderThan(ctx, before)
	if err != nil {
		return fmt.Errorf("delete old backups: %w", err)
	}

	for _, key := range keys {
		if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		}); err != nil {
			m.logger.Warn("delete expired backup object", "key", key, "error", err)
		}
	}
	if len(keys) > 0 {
		m.logger.Info("expired backups removed", "count", len(keys))
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
