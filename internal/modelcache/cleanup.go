// Package modelcache sweeps the on-disk model artifact cache before a model
// load (spec.md §4.10): stale or orphaned lock files and incomplete
// downloads left behind by a crashed or killed process.
package modelcache

import (
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// DefaultStaleThreshold is how old an unattended lock file must be before
// it is removed on mtime grounds alone.
const DefaultStaleThreshold = 5 * time.Minute

// Result reports what the sweep did: removal counts plus the errors met
// along the way, which are collected rather than returned since cleanup
// errors are non-fatal (spec.md §4.10).
type Result struct {
	LocksRemoved         int
	IncompleteRemoved    int
	Errors               []error
}

// Cleaner sweeps a blobs directory and a snapshots directory under a model
// cache root.
type Cleaner struct {
	BlobsDir     string
	SnapshotsDir string
	StaleThreshold time.Duration
}

// New constructs a Cleaner rooted at cacheDir, assuming the conventional
// blobs/ and snapshots/ layout.
func New(cacheDir string) *Cleaner {
	return &Cleaner{
		BlobsDir:       filepath.Join(cacheDir, "blobs"),
		SnapshotsDir:   filepath.Join(cacheDir, "snapshots"),
		StaleThreshold: DefaultStaleThreshold,
	}
}

// Clean implements embedsvc.CacheCleaner.
func (c *Cleaner) Clean() error {
	_ = c.Sweep()
	return nil
}

// Sweep performs one cleanup pass and returns what it did.
func (c *Cleaner) Sweep() Result {
	var res Result

	res.LocksRemoved += c.sweepLocks(c.BlobsDir, &res)
	res.IncompleteRemoved += c.sweepIncomplete(c.BlobsDir, &res)
	res.IncompleteRemoved += c.sweepIncomplete(c.SnapshotsDir, &res)

	return res
}

func (c *Cleaner) sweepLocks(dir string, res *Result) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			res.Errors = append(res.Errors, err)
		}
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lock" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if c.shouldRemoveLock(path, res) {
			if err := os.Remove(path); err == nil {
				removed++
			} else if !os.IsNotExist(err) {
				res.Errors = append(res.Errors, err)
			}
		}
	}
	return removed
}

func (c *Cleaner) shouldRemoveLock(path string, res *Result) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if time.Since(info.ModTime()) > c.StaleThreshold {
		return true
	}

	// Probe with a non-blocking advisory lock: if we can acquire it, no
	// process holds the lock, so it's orphaned.
	probe := flock.New(path)
	acquired, err := probe.TryLock()
	if err != nil {
		res.Errors = append(res.Errors, err)
		return false
	}
	if acquired {
		_ = probe.Unlock()
		return true
	}
	return false
}

func (c *Cleaner) sweepIncomplete(dir string, res *Result) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			res.Errors = append(res.Errors, err)
		}
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".incomplete" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err == nil {
			removed++
		} else if !os.IsNotExist(err) {
			res.Errors = append(res.Errors, err)
		}
	}
	return removed
}
