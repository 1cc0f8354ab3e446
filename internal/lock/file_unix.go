//go:build unix

package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Lock implements Locker with flock(2). The OS lock is taken non-blocking
// and retried every poll interval so ctx can abandon the wait.
func (l *FileLocker) Lock(ctx context.Context, docID int) (Unlock, error) {
	release, err := l.local.Lock(ctx, docID)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(l.Path(docID), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		release()
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	start := time.Now()
	waited := false
	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			break
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			f.Close()
			release()
			return nil, fmt.Errorf("lock document %d: %w", docID, err)
		}
		if !waited {
			l.logger.Debug("waiting for document lock", "doc_id", docID, "path", l.Path(docID))
			waited = true
		}
		select {
		case <-ctx.Done():
			f.Close()
			release()
			return nil, ctx.Err()
		case <-time.After(l.poll):
		}
	}
	if waited {
		l.logger.Debug("document lock acquired", "doc_id", docID, "waited", time.Since(start))
	}

	var once sync.Once
	return func() error {
		var uerr error
		once.Do(func() {
			uerr = unix.Flock(int(f.Fd()), unix.LOCK_UN)
			if cerr := f.Close(); uerr == nil {
				uerr = cerr
			}
			release()
		})
		return uerr
	}, nil
}
