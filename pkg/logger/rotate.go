package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const backupStamp = "20060102T150405.000"

// rotatingWriter appends to a single audit file and, once the size limit
// would be exceeded, renames it to a timestamped backup and starts fresh.
// Old backups are pruned by count and by age after every rotation.
type rotatingWriter struct {
	mu      sync.Mutex
	out     *os.File
	path    string
	written int64
	limit   int64
	keep    int
	retain  time.Duration
	now     func() time.Time
}

func newRotatingWriter(path string, maxSizeMB, maxBackups, maxAgeDays int) (*rotatingWriter, error) {
	if path == "" {
		return nil, errors.New("audit log path is required")
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 100
	}
	if maxBackups <= 0 {
		maxBackups = 7
	}
	if maxAgeDays <= 0 {
		maxAgeDays = 30
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}
	w := &rotatingWriter{
		path:   path,
		limit:  int64(maxSizeMB) * 1024 * 1024,
		keep:   maxBackups,
		retain: time.Duration(maxAgeDays) * 24 * time.Hour,
		now:    time.Now,
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *rotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.out == nil {
		if err := w.open(); err != nil {
			return 0, err
		}
	}
	if w.written+int64(len(p)) > w.limit {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.out.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *rotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.out == nil {
		return nil
	}
	err := w.out.Close()
	w.out = nil
	w.written = 0
	return err
}

func (w *rotatingWriter) open() error {
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat audit log: %w", err)
	}
	w.out = file
	w.written = info.Size()
	return nil
}

// rotate renames the active file to a timestamped backup and reopens.
func (w *rotatingWriter) rotate() error {
	if w.out != nil {
		_ = w.out.Close()
		w.out = nil
	}
	backup := w.path + "." + w.now().UTC().Format(backupStamp)
	if err := os.Rename(w.path, backup); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("archive audit log: %w", err)
	}
	w.prune()
	return w.open()
}

// prune drops backups beyond the retention count or older than the
// retention window. Backup names sort chronologically by construction.
func (w *rotatingWriter) prune() {
	matches, err := filepath.Glob(w.path + ".*")
	if err != nil {
		return
	}
	var backups []string
	for _, candidate := range matches {
		stamp := strings.TrimPrefix(candidate, w.path+".")
		if _, err := time.Parse(backupStamp, stamp); err == nil {
			backups = append(backups, candidate)
		}
	}
	sort.Strings(backups)

	excess := len(backups) - w.keep
	for i := 0; i < excess; i++ {
		_ = os.Remove(backups[i])
	}
	if w.retain <= 0 {
		return
	}
	cutoff := w.now().UTC().Add(-w.retain)
	for _, backup := range backups[max(excess, 0):] {
		stamp := strings.TrimPrefix(backup, w.path+".")
		when, err := time.Parse(backupStamp, stamp)
		if err != nil || when.After(cutoff) {
			continue
		}
		_ = os.Remove(backup)
	}
}
