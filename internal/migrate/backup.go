// ABOUTME: Byte-for-byte backup of the database file before migration
// ABOUTME: Never overwrites an existing file and removes partial output on failure
package migrate

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// BackupTimeLayout is the timestamp suffix format of backup files.
const BackupTimeLayout = "20060102_150405"

// BackupPath returns the backup file name for source taken at t.
func BackupPath(source string, t time.Time) string {
	return source + ".backup_" + t.UTC().Format(BackupTimeLayout)
}

// BackupManager copies database files.
type BackupManager struct {
	log zerolog.Logger
	now func() time.Time
}

// NewBackupManager creates a BackupManager.
func NewBackupManager(log zerolog.Logger) *BackupManager {
	return &BackupManager{log: log, now: time.Now}
}

// Create copies sourcePath next to itself and returns the backup path. The copy
// keeps the source's permissions and modification time. Failures are
// *BackupError.
func (m *BackupManager) Create(sourcePath string) (string, error) {
	dest := BackupPath(sourcePath, m.now())
	if err := copyFile(sourcePath, dest); err != nil {
		return "", &BackupError{Path: dest, Err: err}
	}
	m.log.Info().Str("source", sourcePath).Str("backup", dest).Msg("created backup")
	return dest, nil
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src) // #nosec G304
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat source: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("source %s is not a regular file", src)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm()) // #nosec G304
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = out.Close()
			_ = os.Remove(dst)
		}
	}()

	n, err := io.Copy(out, in)
	if err != nil {
		return fmt.Errorf("failed to copy database: %w", err)
	}
	if n != info.Size() {
		return fmt.Errorf("short copy: wrote %d of %d bytes", n, info.Size())
	}
	if err = out.Sync(); err != nil {
		return fmt.Errorf("failed to sync backup: %w", err)
	}
	if err = out.Close(); err != nil {
		return fmt.Errorf("failed to close backup: %w", err)
	}
	if err = os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("failed to preserve modification time: %w", err)
	}
	return nil
}
