package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// fileWriter is a size-rotating log file writer. Rotated files are
// renamed with a timestamp suffix and the oldest ones removed once
// MaxBackups is exceeded.
type fileWriter struct {
	// Filename is the file to write logs to
	Filename string

	// MaxSize is the maximum size in megabytes of the log file before rotation
	MaxSize int

	// MaxBackups is the maximum number of rotated log files to retain
	MaxBackups int

	mu   sync.Mutex
	file *os.File
	size int64
}

// Write implements io.Writer
func (w *fileWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		if err := w.openFile(); err != nil {
			return 0, err
		}
	}

	if w.size+int64(len(p)) > w.maxBytes() {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err = w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Close implements io.Closer
func (w *fileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *fileWriter) maxBytes() int64 {
	if w.MaxSize <= 0 {
		return 10 * 1024 * 1024
	}
	return int64(w.MaxSize) * 1024 * 1024
}

func (w *fileWriter) openFile() error {
	f, err := os.OpenFile(w.Filename, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

func (w *fileWriter) rotate() error {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return err
		}
		w.file = nil
	}

	rotated := fmt.Sprintf("%s.%s", w.Filename, time.Now().UTC().Format("20060102T150405.000"))
	if err := os.Rename(w.Filename, rotated); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}

	if err := w.pruneBackups(); err != nil {
		return err
	}

	return w.openFile()
}

// pruneBackups removes the oldest rotated files beyond MaxBackups
func (w *fileWriter) pruneBackups() error {
	if w.MaxBackups <= 0 {
		return nil
	}

	matches, err := filepath.Glob(w.Filename + ".*")
	if err != nil {
		return err
	}
	if len(matches) <= w.MaxBackups {
		return nil
	}

	// Timestamp suffixes sort lexically in age order
	sort.Strings(matches)
	for _, old := range matches[:len(matches)-w.MaxBackups] {
		if err := os.Remove(old); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// ensureLogDir creates the directory that will hold the log file
func ensureLogDir(path string) error {
	if path == "" {
		return fmt.Errorf("log file path is empty")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}
