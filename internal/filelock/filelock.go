// Package filelock serializes writes of formatted files between concurrent
// format-ls processes and replaces file contents atomically.
package filelock

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/cristianradulescu/format-ls/internal/logging"
	"github.com/gofrs/flock"
)

// LockDir is the directory under os.TempDir holding the lock files.
var LockDir = fmt.Sprintf("format-ls-locks-%d", os.Getuid())

// LockPath names the lock file guarding path. It is derived from a hash of
// the absolute path so nothing is created beside the file itself.
func LockPath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	dir := filepath.Join(os.TempDir(), LockDir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create lock directory: %w", err)
	}

	sum := sha256.Sum256([]byte(absPath))
	return filepath.Join(dir, hex.EncodeToString(sum[:])+".lock"), nil
}

type FileLock struct {
	flock *flock.Flock
	path  string
}

func NewFileLock(path string) *FileLock {
	return &FileLock{
		flock: flock.New(path),
		path:  path,
	}
}

// Lock blocks until the exclusive lock is held.
func (fl *FileLock) Lock() error {
	if err := fl.flock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock on %s: %w", fl.path, err)
	}
	return nil
}

// TryLock reports false when another process holds the lock.
func (fl *FileLock) TryLock() (bool, error) {
	acquired, err := fl.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to try lock on %s: %w", fl.path, err)
	}
	return acquired, nil
}

// Unlock releases the lock. The lock file stays on disk so that waiters
// blocked on it keep locking the same inode.
func (fl *FileLock) Unlock() error {
	if err := fl.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock on %s: %w", fl.path, err)
	}
	return nil
}

// AtomicWrite replaces path with data through a temp file in the same
// directory and a rename. An existing file keeps its permissions.
func AtomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tempFile, err := os.CreateTemp(dir, ".format-ls-write-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	defer func() {
		if tempFile != nil {
			tempFile.Close()
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tempPath, mode); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}

	tempFile = nil

	return nil
}

// LockAndWrite holds the lock guarding path while writing data to it.
func LockAndWrite(path string, data []byte) error {
	lockPath, err := LockPath(path)
	if err != nil {
		return err
	}

	lock := NewFileLock(lockPath)
	acquired, err := lock.TryLock()
	if err != nil {
		return err
	}
	if !acquired {
		log.Printf("%s Waiting for another writer of %s", logging.LogTagLock, path)
		if err := lock.Lock(); err != nil {
			return err
		}
	}
	defer lock.Unlock()

	return AtomicWrite(path, data)
}
