package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// LockHeldError is returned when another process holds the profile lock.
type LockHeldError struct {
	PID   int
	Since time.Time
	Path  string
}

func (e *LockHeldError) Error() string {
	if e.Since.IsZero() {
		return fmt.Sprintf("profile lock held by PID %d (%s)", e.PID, e.Path)
	}
	return fmt.Sprintf("profile lock held by PID %d since %s (%s)", e.PID, e.Since.Format(time.RFC3339), e.Path)
}

// Lock represents an acquired profile lock file.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes an exclusive flock on lockPath, creating its directory.
// Returns LockHeldError if another process already holds it.
func Acquire(lockPath string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0700); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		data, _ := os.ReadFile(lockPath)
		_ = f.Close()
		pid, since := parseHolder(string(data))
		return nil, &LockHeldError{PID: pid, Since: since, Path: lockPath}
	}

	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return nil, err
	}
	content := fmt.Sprintf("pid=%d\ntime=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if _, err := f.WriteAt([]byte(content), 0); err != nil {
		_ = f.Close()
		return nil, err
	}

	return &Lock{file: f, path: lockPath}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release releases the lock. Safe to call on nil receiver and more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

func parseHolder(content string) (pid int, since time.Time) {
	for _, line := range strings.Split(content, "\n") {
		if v, ok := strings.CutPrefix(line, "pid="); ok {
			pid, _ = strconv.Atoi(v)
		}
		if v, ok := strings.CutPrefix(line, "time="); ok {
			since, _ = time.Parse(time.RFC3339, v)
		}
	}
	return pid, since
}
