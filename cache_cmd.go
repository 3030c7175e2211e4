package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/readaloud/internal/cache"
	"github.com/dgnsrekt/readaloud/tts"
	"github.com/dgnsrekt/readaloud/tts/engines"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the synthesis cache",
	Args:  cobra.NoArgs,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show synthesis cache usage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cm, dir, err := openCache()
		if err != nil || cm == nil {
			return err
		}
		defer cm.Close() //nolint:errcheck

		printCacheStats(cmd.OutOrStdout(), dir, cm.Stats())
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached synthesis response",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cm, _, err := openCache()
		if err != nil || cm == nil {
			return err
		}
		defer cm.Close() //nolint:errcheck

		before := cm.Stats().L2
		if err := cm.Clear(); err != nil {
			return fmt.Errorf("unable to clear cache: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries (%s)\n", before.ItemCount, humanize.Bytes(uint64(before.Size))) //nolint:gosec
		return nil
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove expired synthesis responses",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cm, _, err := openCache()
		if err != nil || cm == nil {
			return err
		}
		defer cm.Close() //nolint:errcheck

		n := cm.Cleanup()
		if n == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No expired entries")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d expired entries\n", n)
		return nil
	},
}

func printCacheStats(out io.Writer, dir string, stats cache.ManagerStats) {
	disk := stats.L2
	fmt.Fprintf(out, "Directory: %s\n", dir)
	fmt.Fprintf(out, "Entries:   %d\n", disk.ItemCount)
	if disk.Capacity > 0 {
		fmt.Fprintf(out, "Size:      %s / %s\n", humanize.Bytes(uint64(disk.Size)), humanize.Bytes(uint64(disk.Capacity))) //nolint:gosec
	} else {
		fmt.Fprintf(out, "Size:      %s\n", humanize.Bytes(uint64(disk.Size))) //nolint:gosec
	}
	if !disk.LastEvict.IsZero() {
		fmt.Fprintf(out, "Evicted:   %d (last %s)\n", disk.Evictions, humanize.Time(disk.LastEvict))
	}
}

// openCache opens the configured disk cache. It returns a nil manager when
// caching is disabled.
func openCache() (*cache.CacheManager, string, error) {
	cfg, err := tts.LoadConfig()
	if err != nil {
		return nil, "", err
	}
	if !cfg.Cache.Enabled {
		fmt.Println("Synthesis cache is disabled (set tts.cache.enabled: true)")
		return nil, "", nil
	}
	dir, err := cacheDir(cfg.Cache)
	if err != nil {
		return nil, "", err
	}
	cm, err := engines.NewCache(cfg.Cache, dir)
	if err != nil {
		return nil, "", fmt.Errorf("unable to open cache: %w", err)
	}
	return cm, dir, nil
}

// cacheDir returns the configured cache directory, or the user cache
// directory when none is set.
func cacheDir(cfg tts.CacheConfig) (string, error) {
	if cfg.Dir != "" {
		return expandPath(cfg.Dir), nil
	}
	dir, err := gap.NewScope(gap.User, appName).CacheDir()
	if err != nil {
		return "", fmt.Errorf("unable to find cache directory: %w", err)
	}
	return dir, nil
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd, cachePruneCmd)
}
