package csvlog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// IOError reports a failed filesystem operation on the output file.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("csv %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Writer appends rows to a single CSV file. The file is opened and
// closed on every call; no handle outlives a method call.
type Writer struct {
	path string
	mu   sync.Mutex
}

// NewWriter creates a writer for path. Nothing is touched on disk
// until the first EnsureHeader or Append.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Path returns the output file path
func (w *Writer) Path() string {
	return w.path
}

// EnsureHeader creates the parent directory and, if the file does not
// exist yet, the file with its header line. Safe to call repeatedly.
func (w *Writer) EnsureHeader() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.ensureHeader()
}

// Append writes one encoded row and syncs it to disk before returning.
func (w *Writer) Append(fields ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ensureHeader(); err != nil {
		return err
	}

	file, err := os.OpenFile(w.path, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return &IOError{Op: "open", Path: w.path, Err: err}
	}

	return writeAndClose(file, w.path, EncodeRow(fields...)+"\n")
}

func (w *Writer) ensureHeader() error {
	if dir := filepath.Dir(w.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &IOError{Op: "mkdir", Path: dir, Err: err}
		}
	}

	// O_EXCL: a file created by anyone else already carries its header
	file, err := os.OpenFile(w.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, fs.ErrExist) {
		return nil
	}
	if err != nil {
		return &IOError{Op: "create", Path: w.path, Err: err}
	}

	return writeAndClose(file, w.path, Header+"\n")
}

func writeAndClose(file *os.File, path, data string) error {
	if _, err := file.WriteString(data); err != nil {
		file.Close()
		return &IOError{Op: "write", Path: path, Err: err}
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return &IOError{Op: "sync", Path: path, Err: err}
	}
	if err := file.Close(); err != nil {
		return &IOError{Op: "close", Path: path, Err: err}
	}
	return nil
}
