package cache

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/klauspost/compress/zstd"
)

const (
	indexFile = "cache.index"
	lockFile  = "cache.lock"
)

// DiskCache implements the L2 disk cache with optional zstd compression.
// Entries survive restarts until their TTL passes. The index is shared with
// other processes through a file lock.
type DiskCache struct {
	basePath string
	capacity int64 // Maximum size in bytes
	size     int64 // Current size in bytes
	ttl      time.Duration

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	index map[string]*diskCacheEntry
	lock  *flock.Flock

	mu    sync.RWMutex
	stats CacheStats
}

// diskCacheEntry represents an entry in the disk cache index
type diskCacheEntry struct {
	Key          string
	FilePath     string
	Size         int64 // Size on disk (compressed)
	OriginalSize int64 // Original size (uncompressed)
	Timestamp    time.Time
	LastAccess   time.Time
	Hits         int64
	Compressed   bool
}

func (e *diskCacheEntry) expired(ttl time.Duration, now time.Time) bool {
	return now.Sub(e.Timestamp) >= ttl
}

// NewDiskCache creates a disk cache in basePath. compressionLevel 0 stores
// entries uncompressed.
func NewDiskCache(basePath string, capacity int64, ttl time.Duration, compressionLevel int) (*DiskCache, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	dc := &DiskCache{
		basePath: basePath,
		capacity: capacity,
		ttl:      ttl,
		index:    make(map[string]*diskCacheEntry),
		lock:     flock.New(filepath.Join(basePath, lockFile)),
		stats:    CacheStats{Capacity: capacity},
	}

	if compressionLevel > 0 {
		var err error
		dc.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		dc.decoder, err = zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
	}

	if err := dc.loadIndex(); err != nil {
		// Non-fatal: start with an empty index
		dc.index = make(map[string]*diskCacheEntry)
	}
	dc.calculateSize()

	return dc, nil
}

// Get retrieves a value from the disk cache. Expired entries are removed.
func (dc *DiskCache) Get(key string) ([]byte, bool) {
	data, _, ok := dc.get(key)
	return data, ok
}

// GetWithExpiry returns the value and the time it expires.
func (dc *DiskCache) GetWithExpiry(key string) ([]byte, time.Time, bool) {
	data, entry, ok := dc.get(key)
	if !ok {
		return nil, time.Time{}, false
	}
	return data, entry.Timestamp.Add(dc.ttl), true
}

func (dc *DiskCache) get(key string) ([]byte, diskCacheEntry, bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	now := time.Now()
	dc.stats.LastAccess = now

	entry, ok := dc.index[key]
	if !ok {
		dc.stats.Misses++
		return nil, diskCacheEntry{}, false
	}
	if entry.expired(dc.ttl, now) {
		dc.removeLocked(key, entry)
		dc.stats.Expired++
		dc.stats.Misses++
		return nil, diskCacheEntry{}, false
	}

	data, err := os.ReadFile(entry.FilePath)
	if err != nil {
		// File missing or unreadable
		dc.removeLocked(key, entry)
		dc.stats.Misses++
		return nil, diskCacheEntry{}, false
	}

	if entry.Compressed {
		if dc.decoder == nil {
			dc.removeLocked(key, entry)
			dc.stats.Misses++
			return nil, diskCacheEntry{}, false
		}
		decompressed, err := dc.decoder.DecodeAll(data, nil)
		if err != nil {
			dc.removeLocked(key, entry)
			dc.stats.Misses++
			return nil, diskCacheEntry{}, false
		}
		data = decompressed
	}

	entry.LastAccess = now
	entry.Hits++
	dc.stats.Hits++

	return data, *entry, true
}

// Put stores a value in the disk cache.
func (dc *DiskCache) Put(key string, value []byte) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	originalSize := int64(len(value))

	dataToWrite := value
	compressed := false
	if dc.encoder != nil && originalSize > 1024 { // Only compress if > 1KB
		if c := dc.encoder.EncodeAll(value, nil); len(c) < len(value) {
			dataToWrite = c
			compressed = true
		}
	}
	diskSize := int64(len(dataToWrite))

	if dc.capacity > 0 && diskSize > dc.capacity {
		return ErrItemTooLarge
	}

	if existing, ok := dc.index[key]; ok {
		dc.removeLocked(key, existing)
	}

	for dc.capacity > 0 && dc.size+diskSize > dc.capacity && len(dc.index) > 0 {
		dc.evictOldest()
	}

	filePath := dc.generateFilePath(key)
	if err := writeFileAtomic(filePath, dataToWrite); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	now := time.Now()
	dc.index[key] = &diskCacheEntry{
		Key:          key,
		FilePath:     filePath,
		Size:         diskSize,
		OriginalSize: originalSize,
		Timestamp:    now,
		LastAccess:   now,
		Compressed:   compressed,
	}
	dc.size += diskSize
	dc.stats.Size = dc.size
	dc.stats.ItemCount = int64(len(dc.index))

	return nil
}

// Delete removes an entry from the disk cache.
func (dc *DiskCache) Delete(key string) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if entry, ok := dc.index[key]; ok {
		dc.removeLocked(key, entry)
	}
	return nil
}

// Clear removes all entries from the disk cache.
func (dc *DiskCache) Clear() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	for _, entry := range dc.index {
		os.Remove(entry.FilePath)
	}
	dc.index = make(map[string]*diskCacheEntry)
	dc.size = 0
	dc.stats.Size = 0
	dc.stats.ItemCount = 0

	return dc.saveIndex()
}

// Size returns the current cache size in bytes.
func (dc *DiskCache) Size() int64 {
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	return dc.size
}

// Stats returns cache statistics.
func (dc *DiskCache) Stats() CacheStats {
	dc.mu.RLock()
	defer dc.mu.RUnlock()

	stats := dc.stats
	stats.Size = dc.size
	stats.ItemCount = int64(len(dc.index))
	stats.updateHitRate()
	return stats
}

// Contains checks if an unexpired key exists without updating access time.
func (dc *DiskCache) Contains(key string) bool {
	dc.mu.RLock()
	defer dc.mu.RUnlock()

	entry, ok := dc.index[key]
	return ok && !entry.expired(dc.ttl, time.Now())
}

// Prune removes entries past their TTL and returns how many were removed.
func (dc *DiskCache) Prune() int {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, entry := range dc.index {
		if entry.expired(dc.ttl, now) {
			dc.removeLocked(key, entry)
			dc.stats.Expired++
			removed++
		}
	}
	return removed
}

// Oldest returns the keys of the n least recently used entries.
func (dc *DiskCache) Oldest(n int) []string {
	dc.mu.RLock()
	defer dc.mu.RUnlock()

	entries := make([]*diskCacheEntry, 0, len(dc.index))
	for _, entry := range dc.index {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastAccess.Before(entries[j].LastAccess)
	})

	keys := make([]string, 0, n)
	for i := 0; i < n && i < len(entries); i++ {
		keys = append(keys, entries[i].Key)
	}
	return keys
}

// Close saves the index.
func (dc *DiskCache) Close() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.saveIndex()
}

func (dc *DiskCache) removeLocked(key string, entry *diskCacheEntry) {
	os.Remove(entry.FilePath)
	dc.size -= entry.Size
	delete(dc.index, key)
	dc.stats.Size = dc.size
	dc.stats.ItemCount = int64(len(dc.index))
}

func (dc *DiskCache) generateFilePath(key string) string {
	hash := sha256.Sum256([]byte(key))
	filename := hex.EncodeToString(hash[:16]) + ".cache"
	return filepath.Join(dc.basePath, filename)
}

func (dc *DiskCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range dc.index {
		if oldestKey == "" || entry.LastAccess.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.LastAccess
		}
	}

	if oldestKey != "" {
		dc.removeLocked(oldestKey, dc.index[oldestKey])
		dc.stats.Evictions++
		dc.stats.LastEvict = time.Now()
	}
}

func (dc *DiskCache) loadIndex() error {
	if err := dc.lock.RLock(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheLocked, err)
	}
	defer dc.lock.Unlock()

	file, err := os.Open(filepath.Join(dc.basePath, indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	return gob.NewDecoder(file).Decode(&dc.index)
}

func (dc *DiskCache) saveIndex() error {
	if err := dc.lock.Lock(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheLocked, err)
	}
	defer dc.lock.Unlock()

	indexPath := filepath.Join(dc.basePath, indexFile)
	tempPath := indexPath + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	err = gob.NewEncoder(file).Encode(dc.index)
	closeErr := file.Close()
	if err != nil {
		os.Remove(tempPath)
		return err
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return closeErr
	}

	return os.Rename(tempPath, indexPath)
}

func (dc *DiskCache) calculateSize() {
	dc.size = 0
	for _, entry := range dc.index {
		dc.size += entry.Size
	}
	dc.stats.Size = dc.size
	dc.stats.ItemCount = int64(len(dc.index))
}

// writeFileAtomic writes to a temp file first, then renames.
func writeFileAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	_, err = file.Write(data)
	closeErr := file.Close()
	if err != nil {
		os.Remove(tempPath)
		return err
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return closeErr
	}

	return os.Rename(tempPath, path)
}
