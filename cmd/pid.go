package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"syscall"
	"time"

	"github.com/airframesio/table-reconciler/cmd/snapshot"
)

// ErrLoadInProgress is returned when another process is loading into the
// same database schema.
var ErrLoadInProgress = errors.New("another load into this database is running")

// LockInfo is the content of a load lock file
type LockInfo struct {
	PID       int       `json:"pid"`
	StartTime time.Time `json:"start_time"`
	Database  string    `json:"database"`
	Tables    []string  `json:"tables"`
}

// LoadLock marks a database schema as being replaced by this process.
type LoadLock struct {
	path string
}

var unsafeLockChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// GetLockFilePath returns the lock file of a database schema
func GetLockFilePath(db snapshot.DatabaseConfig) string {
	name := fmt.Sprintf("%s_%d_%s_%s", db.Host, db.Port, db.Name, db.Schema)
	return filepath.Join(stateDir(), "locks", unsafeLockChars.ReplaceAllString(name, "_")+".pid")
}

// AcquireLoadLock takes the lock of db. A lock left by a process that is
// no longer running is taken over.
func AcquireLoadLock(db snapshot.DatabaseConfig, tables []string) (*LoadLock, error) {
	path := GetLockFilePath(db)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	info := LockInfo{
		PID:       os.Getpid(),
		StartTime: time.Now(),
		Database:  fmt.Sprintf("%s:%d/%s.%s", db.Host, db.Port, db.Name, db.Schema),
		Tables:    tables,
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock info: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			_, werr := f.Write(data)
			cerr := f.Close()
			if werr != nil || cerr != nil {
				_ = os.Remove(path)
				return nil, fmt.Errorf("failed to write lock file: %w", errors.Join(werr, cerr))
			}
			return &LoadLock{path: path}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}

		holder, rerr := ReadLockFile(path)
		if rerr == nil && IsProcessRunning(holder.PID) {
			return nil, fmt.Errorf("%w (pid %d, started %s)", ErrLoadInProgress, holder.PID, holder.StartTime.Format(time.RFC3339))
		}
		// stale
		_ = os.Remove(path)
	}
	return nil, fmt.Errorf("%w: could not replace stale lock %s", ErrLoadInProgress, path)
}

// Release removes the lock file
func (l *LoadLock) Release() error {
	if l == nil {
		return nil
	}
	return os.Remove(l.path)
}

// ReadLockFile reads a lock file
func ReadLockFile(path string) (*LockInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("invalid lock file: %w", err)
	}
	return &info, nil
}

// IsProcessRunning checks if a process with given PID is running
// Works on both Unix and Windows systems
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix systems, we can send signal 0 to check if process exists
	err = process.Signal(syscall.Signal(0))
	return err == nil
}
