package catalog

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// catalogFile is the on-disk layout: either {catalogs: [...]} or a bare list.
type catalogFile struct {
	Catalogs []Entry `yaml:"catalogs"`
}

// Parse decodes catalog entries from YAML or JSON (JSON is valid YAML).
func Parse(data []byte) ([]Entry, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' || trimmed[0] == '-' {
		var entries []Entry
		if err := yaml.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("decode catalog list: %w", err)
		}
		return validEntries(entries)
	}

	var f catalogFile
	if err := yaml.Unmarshal(trimmed, &f); err != nil {
		return nil, fmt.Errorf("decode catalog file: %w", err)
	}
	return validEntries(f.Catalogs)
}

func validEntries(entries []Entry) ([]Entry, error) {
	for i, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return entries, nil
}

// LoadFile reads and parses a catalog file.
func LoadFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	entries, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Debug("Catalog file loaded", "path", path, "entries", len(entries))
	return entries, nil
}

// Watch reloads the assessment scope of r whenever path changes, until ctx
// is done. The file's directory is watched so editors that replace files on
// save are handled. Parse errors keep the previous catalogs.
func Watch(ctx context.Context, path string, r *Resolver) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create catalog watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		_ = watcher.Close()
		return fmt.Errorf("resolve catalog path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch catalog directory: %w", err)
	}

	go func() {
		defer watcher.Close() //nolint:errcheck
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				entries, err := LoadFile(abs)
				if err != nil {
					log.Warn("Catalog reload failed", "path", abs, "error", err)
					continue
				}
				r.ReplaceAssessmentCatalogs(entries)
				log.Info("Catalogs reloaded", "path", abs, "entries", len(entries))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("Catalog watcher error", "error", err)
			}
		}
	}()

	return nil
}
