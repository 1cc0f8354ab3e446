package lock

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// DefaultPollInterval is how often a blocked FileLocker retries the OS lock.
const DefaultPollInterval = 10 * time.Millisecond

// FileLocker locks one file per document under a directory, so separate
// processes sharing a data root exclude each other. Goroutines of the same
// process queue on an in-process lock first and only then take the OS lock.
type FileLocker struct {
	dir    string
	poll   time.Duration
	logger *slog.Logger
	local  *MemoryLocker
}

var _ Locker = (*FileLocker)(nil)

// Option configures a FileLocker.
type Option func(*FileLocker)

// WithPollInterval sets how often a contended OS lock is retried.
func WithPollInterval(d time.Duration) Option {
	return func(l *FileLocker) {
		if d > 0 {
			l.poll = d
		}
	}
}

// WithLogger sets the logger used for lock wait diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(l *FileLocker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewFileLocker creates dir if needed and returns a FileLocker over it.
func NewFileLocker(dir string, opts ...Option) (*FileLocker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory %s: %w", dir, err)
	}
	l := &FileLocker{
		dir:    dir,
		poll:   DefaultPollInterval,
		logger: slog.Default(),
		local:  NewMemoryLocker(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Path returns the lock file used for docID.
func (l *FileLocker) Path(docID int) string {
	return filepath.Join(l.dir, "doc_"+strconv.Itoa(docID)+".lock")
}
