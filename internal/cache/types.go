package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"
)

// Common errors for cache operations
var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCacheLocked is returned when another process holds the disk cache
	ErrCacheLocked = errors.New("cache directory is locked by another process")
)

// DefaultTTL is how long a synthesized response stays valid.
const DefaultTTL = 24 * time.Hour

// CacheLevel represents the cache tier
type CacheLevel int

const (
	// CacheLevelL1 represents the memory cache (fastest)
	CacheLevelL1 CacheLevel = iota

	// CacheLevelL2 represents the disk cache (persistent)
	CacheLevelL2
)

// String returns the string representation of the cache level
func (l CacheLevel) String() string {
	switch l {
	case CacheLevelL1:
		return "L1-Memory"
	case CacheLevelL2:
		return "L2-Disk"
	default:
		return "Unknown"
	}
}

// CacheStats holds cache performance metrics
type CacheStats struct {
	Capacity  int64 // Maximum capacity in bytes, 0 when unbounded
	Size      int64 // Current size in bytes
	ItemCount int64

	Hits      int64
	Misses    int64
	Expired   int64
	Evictions int64
	HitRate   float64 // hits / (hits + misses)

	LastAccess time.Time
	LastEvict  time.Time
}

func (s *CacheStats) updateHitRate() {
	if s.Hits+s.Misses > 0 {
		s.HitRate = float64(s.Hits) / float64(s.Hits+s.Misses)
	}
}

// CacheConfig holds configuration for the cache manager
type CacheConfig struct {
	// TTL applies to both levels. Zero means DefaultTTL.
	TTL time.Duration

	// Disk cache (L2). An empty DiskPath disables the disk level.
	DiskPath         string
	DiskCapacity     int64 // Bytes
	CompressionLevel int   // Zstd level (1-22), 0 disables compression

	// CleanupInterval controls how often expired entries are purged. Zero
	// disables the background cleanup.
	CleanupInterval time.Duration
}

// DefaultCacheConfig returns default cache configuration
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		TTL:              DefaultTTL,
		DiskCapacity:     100 * 1024 * 1024, // 100MB
		CompressionLevel: 3,
		CleanupInterval:  time.Hour,
	}
}

// Key identifies one synthesis request.
type Key struct {
	Text     string
	Language string
	Voice    string
	Rate     float64
	Pitch    float64
	Endpoint string
	// Options is the canonical encoding of any other request parameters,
	// such as volume or provider specific settings.
	Options string
}

// Fingerprint returns the hex SHA-256 of the key fields.
func (k Key) Fingerprint() string {
	h := sha256.New()
	for _, part := range []string{
		k.Endpoint,
		k.Language,
		k.Voice,
		strconv.FormatFloat(k.Rate, 'f', -1, 64),
		strconv.FormatFloat(k.Pitch, 'f', -1, 64),
		k.Options,
		k.Text,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Cache defines the interface for cache levels
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
	Delete(key string) error
	Clear() error
	Contains(key string) bool
	Stats() CacheStats
}
