//go:build !unix

package lock

import (
	"context"
	"fmt"
	"os"
)

// Lock implements Locker. Without flock only goroutines of this process are
// excluded; the lock file is still created so the layout matches.
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
	f.Close()
	return release, nil
}
