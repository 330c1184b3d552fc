// Package cache keeps a read-only snapshot of the ledger file for the HTTP
// API and reloads it when the file changes on disk.
package cache

import (
	"errors"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/use-agent/perkins/ledger"
)

// stamp identifies one version of the ledger file.
type stamp struct {
	modTime time.Time
	size    int64
	exists  bool
}

// Cache is safe for concurrent use. Snapshots it hands out are never
// modified; a reload replaces the snapshot instead.
type Cache struct {
	mu        sync.RWMutex
	path      string
	snap      *ledger.Ledger
	stamp     stamp
	checkedAt time.Time
	interval  time.Duration
	now       func() time.Time
}

// New returns a Cache over the ledger at path. The file is stat'ed at most
// once per interval; an interval <= 0 checks on every call.
func New(path string, interval time.Duration) *Cache {
	return &Cache{path: path, interval: interval, now: time.Now}
}

// Path returns the ledger file path.
func (c *Cache) Path() string { return c.path }

// Snapshot returns the current ledger, reloading it if the file has changed
// since the last load. A missing file yields an empty ledger.
func (c *Cache) Snapshot() (*ledger.Ledger, error) {
	now := c.now()

	c.mu.RLock()
	snap, fresh := c.snap, c.snap != nil && now.Sub(c.checkedAt) < c.interval
	c.mu.RUnlock()
	if fresh {
		return snap, nil
	}

	st, err := c.statFile()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.checkedAt = now
	if c.snap != nil && st == c.stamp {
		return c.snap, nil
	}

	l, err := ledger.Load(c.path)
	if err != nil {
		// Keep serving the last good snapshot while the writer is mid-update.
		if c.snap != nil {
			return c.snap, nil
		}
		return nil, err
	}
	c.snap, c.stamp = l, st
	return l, nil
}

func (c *Cache) statFile() (stamp, error) {
	fi, err := os.Stat(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return stamp{}, nil
	}
	if err != nil {
		return stamp{}, err
	}
	return stamp{modTime: fi.ModTime(), size: fi.Size(), exists: true}, nil
}
