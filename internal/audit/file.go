package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	dirPermissions  = 0o750
	filePermissions = 0o640

	fileDateLayout = "20060102"
	lineTimeLayout = "15:04:05"
)

// FileSink appends "[HH:MM:SS] line" to relay_YYYYMMDD.log in a directory,
// switching files when the local date changes.
type FileSink struct {
	dir string
	now func() time.Time

	mu   sync.Mutex
	day  string
	file *os.File
	err  error // last write error
}

// NewFileSink creates dir if needed and returns a sink writing into it.
// The file itself is opened on the first line.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating audit log directory: %w", err)
	}
	return &FileSink{dir: dir, now: time.Now}, nil
}

// FileName returns the log file name used for day t.
func FileName(t time.Time) string {
	return "relay_" + t.Format(fileDateLayout) + ".log"
}

// Emit appends one timestamped line. Write failures are kept for Err and
// otherwise ignored.
func (f *FileSink) Emit(line string) {
	t := f.now()

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.rotate(t); err != nil {
		f.err = err
		return
	}
	if _, err := fmt.Fprintf(f.file, "[%s] %s\n", t.Format(lineTimeLayout), line); err != nil {
		f.err = fmt.Errorf("writing audit log: %w", err)
	}
}

// rotate makes sure the open file belongs to day t. Caller holds mu.
func (f *FileSink) rotate(t time.Time) error {
	day := t.Format(fileDateLayout)
	if f.file != nil && f.day == day {
		return nil
	}
	if f.file != nil {
		f.file.Close() //nolint:errcheck,gosec // switching to the next day's file
		f.file = nil
	}

	path := filepath.Join(f.dir, FileName(t))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, filePermissions) //nolint:gosec // path built from configured dir
	if err != nil {
		return fmt.Errorf("opening audit log %s: %w", path, err)
	}
	f.file = file
	f.day = day
	return nil
}

// Err returns the most recent write error, if any.
func (f *FileSink) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Close closes the current file. Later lines reopen it.
func (f *FileSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	f.day = ""
	return err
}
