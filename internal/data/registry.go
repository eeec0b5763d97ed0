// Package data loads authored stats configs from YAML definitions.
//
// Definitions are plain files (one or more YAML documents each) in a
// directory. A Registry owns the resulting configs; there is no global table,
// callers pass configs to hosts explicitly.
package data

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/gradestats/internal/progression"
)

// maxParallelParse bounds concurrent file parsing in LoadDir.
const maxParallelParse = 8

// Registry holds configs by name.
type Registry struct {
	configs map[string]*progression.Config
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{configs: make(map[string]*progression.Config)}
}

// Get returns the named config.
func (r *Registry) Get(name string) (*progression.Config, error) {
	cfg, ok := r.configs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownConfig, name)
	}
	return cfg, nil
}

// Names returns config names sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of configs.
func (r *Registry) Len() int {
	return len(r.configs)
}

// LoadDir parses every *.yaml / *.yml file in dir and returns a registry of
// the validated configs.
func LoadDir(ctx context.Context, dir string) (*Registry, error) {
	defs, err := parseDir(ctx, dir)
	if err != nil {
		return nil, err
	}

	r := NewRegistry()
	if err := r.apply(defs); err != nil {
		return nil, err
	}

	slog.Info("loaded stats configs", "dir", dir, "count", r.Len())
	return r, nil
}

// Load builds a registry from in-memory documents.
func Load(docs map[string][]byte) (*Registry, error) {
	names := make([]string, 0, len(docs))
	for name := range docs {
		names = append(names, name)
	}
	sort.Strings(names)

	var defs []configDef
	for _, name := range names {
		parsed, err := parse(bytes.NewReader(docs[name]), name)
		if err != nil {
			return nil, err
		}
		defs = append(defs, parsed...)
	}

	r := NewRegistry()
	if err := r.apply(defs); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads dir and updates existing configs in place, so hosts bound
// to them recalculate. New configs are added; configs missing from dir are
// kept. On error nothing is changed.
func (r *Registry) Reload(ctx context.Context, dir string) error {
	defs, err := parseDir(ctx, dir)
	if err != nil {
		return err
	}
	return r.apply(defs)
}

// apply builds staging configs from defs, validates them, then publishes:
// existing configs are updated in place, new ones are added.
func (r *Registry) apply(defs []configDef) error {
	staging := make(map[string]*progression.Config, len(defs))
	byName := make(map[string]*configDef, len(defs))
	for i := range defs {
		d := &defs[i]
		if prev, ok := byName[d.Name]; ok {
			return fmt.Errorf("%w: %q in %s and %s", ErrDuplicateConfig, d.Name, prev.source, d.source)
		}
		if existing, ok := r.configs[d.Name]; ok && existing.Kind() != d.Kind {
			return fmt.Errorf("%w: %s: config %q changes kind %q -> %q",
				ErrInvalidDefinition, d.source, d.Name, existing.Kind(), d.Kind)
		}
		byName[d.Name] = d
		staging[d.Name] = d.newConfig()
	}

	// Swap targets resolve to the published instance when one exists, so
	// rules keep pointing at configs hosts are bound to.
	lookup := func(name string) *progression.Config {
		if cfg, ok := r.configs[name]; ok {
			return cfg
		}
		return staging[name]
	}

	for i := range defs {
		d := &defs[i]
		if err := d.addRules(staging[d.Name], lookup); err != nil {
			return err
		}
	}
	for _, d := range defs {
		if err := staging[d.Name].Validate(); err != nil {
			return fmt.Errorf("%s: %w", d.source, err)
		}
	}

	for _, d := range defs {
		cfg := staging[d.Name]
		if existing, ok := r.configs[d.Name]; ok {
			existing.Update(cfg)
			continue
		}
		r.configs[d.Name] = cfg
	}
	return nil
}

func parseDir(ctx context.Context, dir string) ([]configDef, error) {
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", dir, err)
		}
		files = append(files, matches...)
	}
	slices.Sort(files)

	results := make([][]configDef, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelParse)

	for i, path := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			defer f.Close()

			defs, err := parse(f, path)
			if err != nil {
				return err
			}
			results[i] = defs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var defs []configDef
	for _, r := range results {
		defs = append(defs, r...)
	}
	slog.Debug("parsed stats definitions", "dir", dir, "files", len(files), "configs", len(defs))
	return defs, nil
}
