package tts

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
)

// MetricsLogger tracks and logs synthesis performance metrics.
type MetricsLogger struct {
	enabled bool
	logger  *log.Logger
}

// Metrics holds the measurements of one synthesis request.
type Metrics struct {
	Provider          string
	TextLength        int
	SynthesisStart    time.Time
	SynthesisEnd      time.Time
	SynthesisDuration time.Duration
	AudioBytes        int
	CacheHit          bool
	ErrorOccurred     bool
	ErrorMessage      string
}

var (
	metricsMu        sync.Mutex
	metricsLogger    *MetricsLogger
	synthesisMetrics []Metrics
)

// InitializeLogging sets the log level and, when logFile is set, sends
// metrics to that file with RFC3339 timestamps. The returned closer releases
// the file.
func InitializeLogging(debugMode bool, logFile string) (io.Closer, error) {
	if debugMode {
		log.SetLevel(log.DebugLevel)
		log.Debug("read-aloud logging initialized", "level", "DEBUG")
	} else {
		log.SetLevel(log.InfoLevel)
	}

	ml := &MetricsLogger{
		enabled: debugMode,
		logger:  log.Default(),
	}

	var closer io.Closer = nopCloser{}
	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			return nil, fmt.Errorf("unable to create log directory: %w", err)
		}
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("unable to open log file: %w", err)
		}
		ml.logger = log.NewWithOptions(f, log.Options{
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Level:           log.DebugLevel,
		})
		closer = f
		log.Debug("metrics log file opened", "path", logFile)
	}

	metricsMu.Lock()
	metricsLogger = ml
	metricsMu.Unlock()

	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// StartSynthesis starts tracking a synthesis request.
func StartSynthesis(provider, text string) *Metrics {
	m := &Metrics{
		Provider:       provider,
		TextLength:     len(text),
		SynthesisStart: time.Now(),
	}

	if ml := currentMetricsLogger(); ml != nil {
		ml.logger.Debug("Synthesis started",
			"provider", provider,
			"textLength", len(text))
	}

	return m
}

// EndSynthesis completes tracking a synthesis request.
func (m *Metrics) EndSynthesis(audioBytes int, cacheHit bool, err error) {
	m.SynthesisEnd = time.Now()
	m.SynthesisDuration = m.SynthesisEnd.Sub(m.SynthesisStart)
	m.AudioBytes = audioBytes
	m.CacheHit = cacheHit

	if err != nil {
		m.ErrorOccurred = true
		m.ErrorMessage = err.Error()
	}

	metricsMu.Lock()
	synthesisMetrics = append(synthesisMetrics, *m)
	metricsMu.Unlock()

	ml := currentMetricsLogger()
	if ml == nil {
		return
	}
	if m.ErrorOccurred {
		ml.logger.Error("Synthesis failed",
			"provider", m.Provider,
			"duration", m.SynthesisDuration,
			"error", m.ErrorMessage)
		return
	}
	ml.logger.Info("Synthesis completed",
		"provider", m.Provider,
		"textLength", m.TextLength,
		"audio", humanize.Bytes(uint64(m.AudioBytes)), //nolint:gosec
		"duration", m.SynthesisDuration,
		"cacheHit", m.CacheHit)
}

// LogCacheHit logs a cache hit event.
func LogCacheHit(key string, size int) {
	if ml := currentMetricsLogger(); ml != nil {
		ml.logger.Debug("Cache hit", "key", key, "size", size)
	}
}

// LogCacheMiss logs a cache miss event.
func LogCacheMiss(key string) {
	if ml := currentMetricsLogger(); ml != nil {
		ml.logger.Debug("Cache miss", "key", key)
	}
}

// LogProviderSelection logs which provider serves the session.
func LogProviderSelection(provider string, reason string) {
	log.Info("Speech provider selected", "provider", provider, "reason", reason)
}

// GetSynthesisStats returns a summary of the recorded synthesis requests.
func GetSynthesisStats() string {
	metricsMu.Lock()
	defer metricsMu.Unlock()

	if len(synthesisMetrics) == 0 {
		return "No synthesis metrics available"
	}

	var totalDuration time.Duration
	var totalBytes uint64
	var cacheHits, failures int

	for _, m := range synthesisMetrics {
		totalDuration += m.SynthesisDuration
		totalBytes += uint64(m.AudioBytes) //nolint:gosec
		if m.CacheHit {
			cacheHits++
		}
		if m.ErrorOccurred {
			failures++
		}
	}

	avgDuration := totalDuration / time.Duration(len(synthesisMetrics))
	cacheHitRate := float64(cacheHits) / float64(len(synthesisMetrics)) * 100

	return fmt.Sprintf(
		"Synthesis Stats:\n"+
			"  Total: %d\n"+
			"  Avg Duration: %v\n"+
			"  Total Audio: %s\n"+
			"  Cache Hit Rate: %.1f%%\n"+
			"  Errors: %d",
		len(synthesisMetrics),
		avgDuration,
		humanize.Bytes(totalBytes),
		cacheHitRate,
		failures,
	)
}

// ResetSynthesisStats discards recorded metrics.
func ResetSynthesisStats() {
	metricsMu.Lock()
	synthesisMetrics = nil
	metricsMu.Unlock()
}

func currentMetricsLogger() *MetricsLogger {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if metricsLogger == nil || !metricsLogger.enabled {
		return nil
	}
	return metricsLogger
}
