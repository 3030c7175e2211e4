package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// CacheManager coordinates the memory and disk levels: reads check L1 then
// L2 (promoting disk hits), writes go to both, and a cleanup loop purges
// expired entries.
type CacheManager struct {
	l1Memory *MemoryCache
	l2Disk   *DiskCache // nil when disk caching is disabled

	config *CacheConfig

	cleanupStop chan struct{}
	cleanupWg   sync.WaitGroup
	closeOnce   sync.Once

	mu    sync.RWMutex
	stats ManagerStats
}

// ManagerStats aggregates hits across levels.
type ManagerStats struct {
	TotalHits   int64
	TotalMisses int64
	L1Hits      int64
	L2Hits      int64
	Promotions  int64
	CleanupRuns int64
	LastCleanup time.Time

	L1 CacheStats
	L2 CacheStats
}

// NewCacheManager creates a cache manager. A nil config uses defaults.
func NewCacheManager(config *CacheConfig) (*CacheManager, error) {
	if config == nil {
		config = DefaultCacheConfig()
	}
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}

	cm := &CacheManager{
		l1Memory:    NewMemoryCache(config.TTL, config.CleanupInterval),
		config:      config,
		cleanupStop: make(chan struct{}),
	}

	if config.DiskPath != "" {
		l2, err := NewDiskCache(config.DiskPath, config.DiskCapacity, config.TTL, config.CompressionLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to create disk cache: %w", err)
		}
		cm.l2Disk = l2
	}

	if config.CleanupInterval > 0 {
		cm.startCleanupRoutine()
	}

	return cm, nil
}

// Get retrieves a value, checking memory before disk.
func (cm *CacheManager) Get(key string) ([]byte, bool) {
	data, _, ok := cm.GetWithLevel(key)
	return data, ok
}

// GetWithLevel retrieves a value and reports which level served it.
func (cm *CacheManager) GetWithLevel(key string) ([]byte, CacheLevel, bool) {
	if data, ok := cm.l1Memory.Get(key); ok {
		cm.mu.Lock()
		cm.stats.L1Hits++
		cm.stats.TotalHits++
		cm.mu.Unlock()
		return data, CacheLevelL1, true
	}

	if cm.l2Disk != nil {
		if data, expires, ok := cm.l2Disk.GetWithExpiry(key); ok {
			_ = cm.l1Memory.PutWithTTL(key, data, time.Until(expires))
			cm.mu.Lock()
			cm.stats.L2Hits++
			cm.stats.TotalHits++
			cm.stats.Promotions++
			cm.mu.Unlock()
			return data, CacheLevelL2, true
		}
	}

	cm.mu.Lock()
	cm.stats.TotalMisses++
	cm.mu.Unlock()
	return nil, CacheLevelL1, false
}

// Put stores a value in both levels. A disk failure is logged and does not
// fail the write.
func (cm *CacheManager) Put(key string, value []byte) error {
	if err := cm.l1Memory.Put(key, value); err != nil {
		return fmt.Errorf("L1 cache error: %w", err)
	}
	if cm.l2Disk != nil {
		if err := cm.l2Disk.Put(key, value); err != nil {
			log.Debug("disk cache write failed", "key", key, "err", err)
		}
	}
	return nil
}

// Delete removes a key from all levels.
func (cm *CacheManager) Delete(key string) error {
	_ = cm.l1Memory.Delete(key)
	if cm.l2Disk != nil {
		return cm.l2Disk.Delete(key)
	}
	return nil
}

// Clear removes everything from all levels.
func (cm *CacheManager) Clear() error {
	_ = cm.l1Memory.Clear()
	if cm.l2Disk != nil {
		return cm.l2Disk.Clear()
	}
	return nil
}

// Contains reports whether any level holds key.
func (cm *CacheManager) Contains(key string) bool {
	if cm.l1Memory.Contains(key) {
		return true
	}
	return cm.l2Disk != nil && cm.l2Disk.Contains(key)
}

// Cleanup purges expired entries from both levels.
func (cm *CacheManager) Cleanup() int {
	cm.l1Memory.Prune()
	removed := 0
	if cm.l2Disk != nil {
		removed = cm.l2Disk.Prune()
	}

	cm.mu.Lock()
	cm.stats.CleanupRuns++
	cm.stats.LastCleanup = time.Now()
	cm.mu.Unlock()

	if removed > 0 {
		log.Debug("cache cleanup", "expired", removed)
	}
	return removed
}

// Stats returns aggregated statistics.
func (cm *CacheManager) Stats() ManagerStats {
	cm.mu.RLock()
	stats := cm.stats
	cm.mu.RUnlock()

	stats.L1 = cm.l1Memory.Stats()
	if cm.l2Disk != nil {
		stats.L2 = cm.l2Disk.Stats()
	}
	return stats
}

// Close stops the cleanup loop and saves the disk index.
func (cm *CacheManager) Close() error {
	var err error
	cm.closeOnce.Do(func() {
		close(cm.cleanupStop)
		cm.cleanupWg.Wait()
		if cm.l2Disk != nil {
			err = cm.l2Disk.Close()
		}
	})
	return err
}

func (cm *CacheManager) startCleanupRoutine() {
	ticker := time.NewTicker(cm.config.CleanupInterval)
	cm.cleanupWg.Add(1)
	go func() {
		defer cm.cleanupWg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cm.Cleanup()
			case <-cm.cleanupStop:
				return
			}
		}
	}()
}
