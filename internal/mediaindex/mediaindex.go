// Package mediaindex maintains a background filename index across a set of
// configured media directories, so a filename announced by the server can
// be resolved to a local path without the user manually locating the file.
package mediaindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/watchtogether/syncclient/internal/filematch"
)

const (
	firstFileTimeout = 25 * time.Second
	scanTimeout      = 20 * time.Second
)

// ScanError distinguishes the ways a scan can fail, matching the
// MediaScanTimeout error kind's two flavors plus plain I/O failure.
type ScanError struct {
	Directory string
	Kind      ScanErrorKind
	Err       error
}

type ScanErrorKind int

const (
	ErrNoDirectories ScanErrorKind = iota
	ErrFirstFileTimeout
	ErrScanTimeout
	ErrIO
)

func (e *ScanError) Error() string {
	switch e.Kind {
	case ErrFirstFileTimeout:
		return fmt.Sprintf("media directory scan timed out while accessing %q", e.Directory)
	case ErrScanTimeout:
		return fmt.Sprintf("media directory scan timed out in %q", e.Directory)
	case ErrNoDirectories:
		return "no media directories configured"
	default:
		return fmt.Sprintf("media directory scan failed: %v", e.Err)
	}
}

// cache is the immutable result of one completed scan, swapped in atomically
// on success.
type cache struct {
	byLower    map[string][]string
	byStripped map[string][]string
	byHash     map[string][]string
}

func newCache() *cache {
	return &cache{
		byLower:    make(map[string][]string),
		byStripped: make(map[string][]string),
		byHash:     make(map[string][]string),
	}
}

func (c *cache) insert(filename, path string) {
	lower := strings.ToLower(filename)
	c.byLower[lower] = append(c.byLower[lower], path)
	stripped := filematch.Strip(filename, false)
	c.byStripped[stripped] = append(c.byStripped[stripped], path)
	hash := filematch.Hash(filename, false)
	c.byHash[hash] = append(c.byHash[hash], path)
}

func (c *cache) resolve(filename string) (string, bool) {
	if p, ok := findExisting(c.byLower[strings.ToLower(filename)]); ok {
		return p, true
	}
	if p, ok := findExisting(c.byStripped[filematch.Strip(filename, false)]); ok {
		return p, true
	}
	if p, ok := findExisting(c.byHash[filematch.Hash(filename, false)]); ok {
		return p, true
	}
	return "", false
}

func findExisting(paths []string) (string, bool) {
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, true
		}
	}
	return "", false
}

// Events is the subset of UI events the index emits.
type Events interface {
	MediaIndexRefreshing(refreshing bool)
	MediaIndexUpdated(at time.Time)
	ErrorMessage(message string)
}

// Index is the background filename index. The zero value is not usable;
// construct with New.
type Index struct {
	events Events
	logger *slog.Logger

	mu          sync.RWMutex
	directories []string

	updating atomic.Bool
	disabled atomic.Bool

	cacheMu sync.RWMutex
	cache   *cache
}

// New constructs an empty index.
func New(events Events, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{events: events, logger: logger, cache: newCache()}
}

// UpdateDirectories trims each entry of directories and drops empty ones
// (duplicates are kept), replacing the configured set. It returns true iff the normalized list
// differs from the one already stored, and clears the disabled flag on any
// change so a previously failed scan gets another chance.
func (idx *Index) UpdateDirectories(directories []string) bool {
	cleaned := make([]string, 0, len(directories))
	for _, d := range directories {
		d = strings.TrimSpace(d)
		if d != "" {
			cleaned = append(cleaned, d)
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if equalStrings(idx.directories, cleaned) {
		return false
	}
	idx.directories = cleaned
	idx.disabled.Store(false)
	return true
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ResolvePath resolves filename to an absolute local path, or reports
// false if it cannot be found. The hidden-filename marker never resolves;
// an absolute path that already exists on disk bypasses the index
// entirely.
func (idx *Index) ResolvePath(filename string) (string, bool) {
	if filename == filematch.HiddenFilename {
		return "", false
	}
	if filepath.IsAbs(filename) {
		if info, err := os.Stat(filename); err == nil && !info.IsDir() {
			return filename, true
		}
	}
	idx.cacheMu.RLock()
	defer idx.cacheMu.RUnlock()
	return idx.cache.resolve(filename)
}

// IsAvailable reports whether filename resolves to an existing path.
func (idx *Index) IsAvailable(filename string) bool {
	_, ok := idx.ResolvePath(filename)
	return ok
}

// IsRefreshing reports whether a scan is currently in progress.
func (idx *Index) IsRefreshing() bool { return idx.updating.Load() }

// IsDisabled reports whether the indexer disabled itself after a timeout.
func (idx *Index) IsDisabled() bool { return idx.disabled.Load() }

// Refresh runs a scan if one is not already in progress and the indexer
// has not disabled itself. It is idempotent and safe to call from
// multiple goroutines; at most one scan runs at a time.
func (idx *Index) Refresh(ctx context.Context) {
	if idx.disabled.Load() {
		return
	}
	if !idx.updating.CompareAndSwap(false, true) {
		return
	}
	defer idx.updating.Store(false)

	idx.events.MediaIndexRefreshing(true)
	defer idx.events.MediaIndexRefreshing(false)

	idx.mu.RLock()
	directories := append([]string(nil), idx.directories...)
	idx.mu.RUnlock()

	if len(directories) == 0 {
		return
	}

	result, err := scanDirectories(ctx, directories)
	if err != nil {
		var scanErr *ScanError
		if errors.As(err, &scanErr) {
			switch scanErr.Kind {
			case ErrFirstFileTimeout, ErrScanTimeout:
				idx.disabled.Store(true)
				idx.events.ErrorMessage(scanErr.Error())
			case ErrNoDirectories:
				// nothing to do
			default:
				idx.events.ErrorMessage(scanErr.Error())
			}
		} else {
			idx.events.ErrorMessage(fmt.Sprintf("media directory scan failed: %v", err))
		}
		idx.logger.Warn("media index scan failed", "error", err)
		return
	}

	idx.cacheMu.Lock()
	idx.cache = result
	idx.cacheMu.Unlock()
	idx.events.MediaIndexUpdated(time.Now())
}

// scanDirectories performs the two-phase scan: a timed read of each
// directory's entries (a read that takes longer than firstFileTimeout
// fails the scan; the read itself is not interrupted, so a read that never
// returns blocks the scan), then an iterative (non-recursive) traversal
// bounded by an aggregate timeout.
func scanDirectories(ctx context.Context, directories []string) (*cache, error) {
	if len(directories) == 0 {
		return nil, &ScanError{Kind: ErrNoDirectories}
	}

	for _, dir := range directories {
		start := time.Now()
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		_ = entries
		if time.Since(start) > firstFileTimeout {
			return nil, &ScanError{Directory: dir, Kind: ErrFirstFileTimeout}
		}
	}

	result := newCache()
	deadline := time.Now().Add(scanTimeout)

	for _, dir := range directories {
		root := strings.TrimSpace(dir)
		if root == "" {
			continue
		}
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			continue
		}

		stack := []string{root}
		for len(stack) > 0 {
			if time.Now().After(deadline) {
				return nil, &ScanError{Directory: dir, Kind: ErrScanTimeout}
			}
			select {
			case <-ctx.Done():
				return nil, &ScanError{Directory: dir, Kind: ErrIO, Err: ctx.Err()}
			default:
			}

			current := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			entries, err := os.ReadDir(current)
			if err != nil {
				continue
			}
			for _, entry := range entries {
				if time.Now().After(deadline) {
					return nil, &ScanError{Directory: dir, Kind: ErrScanTimeout}
				}
				path := filepath.Join(current, entry.Name())
				if entry.IsDir() {
					stack = append(stack, path)
					continue
				}
				info, err := entry.Info()
				if err != nil || !info.Mode().IsRegular() {
					continue
				}
				result.insert(entry.Name(), path)
			}
		}
	}

	return result, nil
}
