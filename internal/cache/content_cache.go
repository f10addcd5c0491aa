// Package cache implements a content-addressed, two-tier cache for rendered documents.
//
// The memory tier is a bounded index of recently inserted keys. The disk tier
// holds the blobs themselves under Config.Dir, bounded by total size and age.
// Every memory entry points at a disk blob; an entry whose blob disappeared is
// treated as a miss and dropped.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/timmy/examforge/internal/domain"
	"github.com/timmy/examforge/internal/fileutil"
	"github.com/timmy/examforge/internal/logger"
)

const (
	DefaultMaxMemoryEntries = 10
	DefaultMaxDiskBytes     = 512 << 20
	DefaultTTL              = 24 * time.Hour

	blobExt = ".blob"
)

// Config holds cache configuration.
type Config struct {
	Dir              string
	MaxMemoryEntries int
	MaxDiskBytes     int64 // <= 0 disables the size bound
	TTL              time.Duration
}

// Entry is one memory-tier index entry.
type Entry struct {
	Key        string
	Path       string
	Size       int64
	CreatedAt  time.Time
	LastAccess time.Time
}

// Statistics is a snapshot of cache usage.
type Statistics struct {
	EntryCount  int    `json:"entry_count"`
	DiskEntries int    `json:"disk_entries"`
	TotalBytes  int64  `json:"total_bytes"`
	Hits        uint64 `json:"hits"`
	Misses      uint64 `json:"misses"`
	Evictions   uint64 `json:"evictions"`
}

// ContentCache fronts the renderer. It is safe for concurrent use.
type ContentCache struct {
	cfg Config
	log *logger.Logger

	writes singleflight.Group

	mu          sync.Mutex
	index       map[string]*list.Element // key -> element holding *Entry
	order       *list.List               // front = oldest insertion
	diskBytes   int64
	diskEntries int
	hits        uint64
	misses      uint64
	evictions   uint64
}

// New creates the cache directory if needed and measures the existing disk tier.
func New(cfg *Config, log *logger.Logger) (*ContentCache, error) {
	if cfg == nil || cfg.Dir == "" {
		return nil, domain.NewValidationError("Dir", "cache directory is required")
	}
	c := &ContentCache{
		cfg:   *cfg,
		log:   log,
		index: make(map[string]*list.Element),
		order: list.New(),
	}
	if c.cfg.MaxMemoryEntries <= 0 {
		c.cfg.MaxMemoryEntries = DefaultMaxMemoryEntries
	}
	if c.cfg.TTL <= 0 {
		c.cfg.TTL = DefaultTTL
	}
	if c.log == nil {
		c.log = logger.GetDefault()
	}
	c.log = c.log.WithField(logger.FieldComponent, "content_cache")

	if err := os.MkdirAll(c.cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	blobs, err := c.listBlobs()
	if err != nil {
		return nil, fmt.Errorf("failed to scan cache directory: %w", err)
	}
	for _, b := range blobs {
		c.diskBytes += b.size
	}
	c.diskEntries = len(blobs)

	c.log.WithFields(logger.Fields{
		"dir":                c.cfg.Dir,
		"disk_entries":       c.diskEntries,
		"disk_bytes":         c.diskBytes,
		"max_memory_entries": c.cfg.MaxMemoryEntries,
		"max_disk_bytes":     c.cfg.MaxDiskBytes,
		"ttl":                c.cfg.TTL.String(),
	}).Debug("Content cache opened")

	return c, nil
}

// Key returns the content key (sha256 hex) of a canonical content string.
func Key(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Put stores data under the key of content and returns the blob path.
// Storing identical content again is a no-op that returns the same path.
// Disk I/O happens outside the index lock; concurrent puts of one key
// share a single write.
func (c *ContentCache) Put(content string, data []byte) (string, error) {
	if content == "" {
		return "", domain.NewValidationError("content", "content must not be empty")
	}
	if len(data) == 0 {
		return "", domain.NewValidationError("data", "payload must not be empty")
	}

	key := Key(content)
	path := c.blobPath(key)

	if entry, ok := c.lookup(key); ok {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		c.dropMissing(entry)
	}

	_, err, _ := c.writes.Do(key, func() (interface{}, error) {
		now := time.Now()
		if info, err := os.Stat(path); err == nil && info.Size() > 0 {
			// Blob outlived its index entry; it is already counted on disk.
			_ = os.Chtimes(path, now, now)
			c.mu.Lock()
			if _, ok := c.index[key]; !ok {
				c.insert(key, path, info.Size(), now)
			}
			c.mu.Unlock()
			return nil, nil
		}

		if err := fileutil.WriteAtomic(path, data); err != nil {
			return nil, fmt.Errorf("failed to write cache blob: %w", err)
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		c.diskBytes += int64(len(data))
		c.diskEntries++
		if el, ok := c.index[key]; ok {
			c.removeElement(el)
		}
		c.insert(key, path, int64(len(data)), now)
		if err := c.enforceDiskLimit(key); err != nil {
			c.log.WithError(err).Warn("Failed to enforce cache disk limit")
		}
		return nil, nil
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// Get returns the blob path for content when it is indexed and the blob still exists.
// Anything else is a miss, never an error.
func (c *ContentCache) Get(content string) (string, bool) {
	if content == "" {
		return "", false
	}
	key := Key(content)

	entry, ok := c.lookup(key)
	if !ok {
		c.countMiss()
		return "", false
	}

	if _, err := os.Stat(entry.Path); err != nil {
		c.log.WithField(logger.FieldCacheKey, key).Debug("Dropping stale cache entry, blob is gone")
		c.dropMissing(entry)
		c.countMiss()
		return "", false
	}

	c.mu.Lock()
	entry.LastAccess = time.Now()
	c.hits++
	c.mu.Unlock()
	return entry.Path, true
}

// lookup returns the live index entry for key. Expired entries are dropped
// from the index; their blobs are left to CleanupExpired.
func (c *ContentCache) lookup(key string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*Entry)
	if time.Since(entry.CreatedAt) > c.cfg.TTL {
		c.removeElement(el)
		return nil, false
	}
	return entry, true
}

// dropMissing forgets an entry whose blob was deleted behind the cache's back
// and takes the blob out of the disk totals.
func (c *ContentCache) dropMissing(entry *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[entry.Key]
	if !ok || el.Value.(*Entry) != entry {
		return
	}
	c.removeElement(el)
	c.diskBytes -= entry.Size
	c.diskEntries--
	if c.diskBytes < 0 || c.diskEntries < 0 {
		c.diskBytes, c.diskEntries = 0, 0
	}
}

func (c *ContentCache) countMiss() {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
}

// CleanupExpired removes blobs and index entries older than the TTL.
// It returns the number of blobs removed.
func (c *ContentCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-c.cfg.TTL)

	blobs, err := c.listBlobs()
	if err != nil {
		c.log.WithError(err).Warn("Failed to scan cache directory")
		return 0
	}

	removed := 0
	for _, b := range blobs {
		if !b.modTime.Before(cutoff) {
			continue
		}
		if err := os.Remove(b.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			c.log.WithError(err).WithField("path", b.path).Warn("Failed to remove expired cache blob")
			continue
		}
		c.diskBytes -= b.size
		c.diskEntries--
		removed++
		if el, ok := c.index[b.key]; ok {
			c.removeElement(el)
		}
	}

	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if el.Value.(*Entry).CreatedAt.Before(cutoff) {
			c.removeElement(el)
		}
		el = next
	}

	if removed > 0 {
		c.log.WithField(logger.FieldCount, removed).Info("Expired cache blobs removed")
	}
	return removed
}

// Clear removes every index entry and every blob.
func (c *ContentCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.index = make(map[string]*list.Element)
	c.order.Init()

	entries, err := os.ReadDir(c.cfg.Dir)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(c.cfg.Dir, e.Name())); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
	}
	c.diskBytes = 0
	c.diskEntries = 0

	c.log.Info("Content cache cleared")
	return nil
}

// Statistics returns entry counts, disk usage and hit counters.
func (c *ContentCache) Statistics() Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Statistics{
		EntryCount:  c.order.Len(),
		DiskEntries: c.diskEntries,
		TotalBytes:  c.diskBytes,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
	}
}

// blobPath buckets blobs by the first two hex characters of the key
func (c *ContentCache) blobPath(key string) string {
	return filepath.Join(c.cfg.Dir, key[:2], key+blobExt)
}

// insert must be called with mu held.
func (c *ContentCache) insert(key, path string, size int64, now time.Time) {
	el := c.order.PushBack(&Entry{
		Key:        key,
		Path:       path,
		Size:       size,
		CreatedAt:  now,
		LastAccess: now,
	})
	c.index[key] = el

	for c.order.Len() > c.cfg.MaxMemoryEntries {
		oldest := c.order.Front()
		c.removeElement(oldest)
		c.evictions++
	}
}

// removeElement must be called with mu held. The blob stays on disk.
func (c *ContentCache) removeElement(el *list.Element) {
	entry := el.Value.(*Entry)
	delete(c.index, entry.Key)
	c.order.Remove(el)
}

// enforceDiskLimit removes the oldest blobs until the disk tier fits MaxDiskBytes.
// The blob for keep is never removed. Must be called with mu held.
func (c *ContentCache) enforceDiskLimit(keep string) error {
	if c.cfg.MaxDiskBytes <= 0 || c.diskBytes <= c.cfg.MaxDiskBytes {
		return nil
	}

	blobs, err := c.listBlobs()
	if err != nil {
		return err
	}
	sort.Slice(blobs, func(i, j int) bool {
		return blobs[i].modTime.Before(blobs[j].modTime)
	})

	var total int64
	for _, b := range blobs {
		total += b.size
	}
	c.diskBytes = total
	c.diskEntries = len(blobs)

	for _, b := range blobs {
		if c.diskBytes <= c.cfg.MaxDiskBytes {
			break
		}
		if b.key == keep {
			continue
		}
		if err := os.Remove(b.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove cache blob: %w", err)
		}
		c.diskBytes -= b.size
		c.diskEntries--
		if el, ok := c.index[b.key]; ok {
			c.removeElement(el)
		}
		c.evictions++
	}
	return nil
}

type blobInfo struct {
	key     string
	path    string
	size    int64
	modTime time.Time
}

func (c *ContentCache) listBlobs() ([]blobInfo, error) {
	var blobs []blobInfo
	err := filepath.WalkDir(c.cfg.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), blobExt) || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		blobs = append(blobs, blobInfo{
			key:     strings.TrimSuffix(d.Name(), blobExt),
			path:    path,
			size:    info.Size(),
			modTime: info.ModTime(),
		})
		return nil
	})
	return blobs, err
}
