package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kham-river/water-quality-monitor/internal/water"
)

// LoadStandards reads a YAML file mapping parameter names to standards.
// Parameter names are matched through the field aliases; unknown names fail.
func LoadStandards(path string) (water.StandardsTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read standards: %w", err)
	}
	return ParseStandards(raw)
}

// ParseStandards decodes the YAML standards document.
func ParseStandards(raw []byte) (water.StandardsTable, error) {
	var byName map[string]water.Standard
	if err := yaml.Unmarshal(raw, &byName); err != nil {
		return nil, fmt.Errorf("decode standards: %w", err)
	}
	if len(byName) == 0 {
		return nil, fmt.Errorf("standards file is empty")
	}

	table := make(water.StandardsTable, len(byName))
	for name, s := range byName {
		canon, ok := water.CanonicalField(name)
		if !ok || !water.Parameter(canon).Valid() {
			return nil, fmt.Errorf("unknown parameter %q", name)
		}
		if s.Min != nil && s.Max != nil && *s.Min > *s.Max {
			return nil, fmt.Errorf("%s: min %g is greater than max %g", name, *s.Min, *s.Max)
		}
		table[water.Parameter(canon)] = s
	}
	return table, nil
}

// WatchStandards reloads path into reg whenever it changes, until ctx is
// done. The defaults are merged underneath the file so omitted parameters
// keep their built-in values. Invalid rewrites are logged and ignored.
func WatchStandards(ctx context.Context, path string, reg *water.Registry, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory; editors replace files by rename.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	go func() {
		defer watcher.Close()
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
				applyStandards(abs, reg, log)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("standards watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

// ApplyStandardsFile loads path over the defaults into reg.
func ApplyStandardsFile(path string, reg *water.Registry) error {
	table, err := LoadStandards(path)
	if err != nil {
		return err
	}
	merged := water.NewRegistry(nil)
	merged.Merge(table)
	reg.Replace(merged.Get())
	return nil
}

func applyStandards(path string, reg *water.Registry, log *zap.Logger) {
	if err := ApplyStandardsFile(path, reg); err != nil {
		log.Warn("standards reload rejected", zap.String("path", path), zap.Error(err))
		return
	}
	log.Info("standards reloaded", zap.String("path", path))
}
