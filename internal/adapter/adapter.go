// Package adapter defines the contract between upstream source adapters and
// the sync coordinator, plus the registry of configured adapters.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/UCKETX/mcsm-templates/internal/fetch"
	"github.com/UCKETX/mcsm-templates/internal/record"
)

// Batch is the output of one adapter for one core type: records grouped by
// mc_version.
type Batch struct {
	CoreType string
	Groups   map[string][]record.BuildRecord
}

// Len returns the number of records across all groups.
func (b Batch) Len() int {
	n := 0
	for _, g := range b.Groups {
		n += len(g)
	}
	return n
}

// NewBatch groups records by their MCVersion.
func NewBatch(coreType string, records []record.BuildRecord) Batch {
	groups := make(map[string][]record.BuildRecord)
	for _, r := range records {
		groups[r.MCVersion] = append(groups[r.MCVersion], r)
	}
	return Batch{CoreType: coreType, Groups: groups}
}

// Adapter fetches build records from one upstream source.
//
// Fetch performs all network I/O and owns its own timeouts and retries.
// It returns zero or more batches, or an error describing why the source
// could not be read.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context) ([]Batch, error)
}

// Spec describes one configured core: its name (the core_type it produces),
// the adapter kind that serves it, and kind-specific options.
type Spec struct {
	Name    string         `koanf:"name" json:"name" yaml:"name"`
	Kind    string         `koanf:"adapter" json:"adapter" yaml:"adapter"`
	Options map[string]any `koanf:"options" json:"options,omitempty" yaml:"options,omitempty"`
}

// String returns an option as a string, or def if unset.
func (s Spec) String(key, def string) string {
	if v, ok := s.Options[key]; ok {
		if str, ok := v.(string); ok && str != "" {
			return str
		}
	}
	return def
}

// Strings returns an option as a list. A comma-separated string and a YAML
// sequence are both accepted.
func (s Spec) Strings(key string) []string {
	var out []string
	switch v := s.Options[key].(type) {
	case string:
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	case []string:
		out = append(out, v...)
	case []any:
		for _, item := range v {
			if str, ok := item.(string); ok && str != "" {
				out = append(out, str)
			}
		}
	}
	return out
}

// Int returns an integer option, or def if unset. YAML and JSON numbers and
// numeric strings are accepted.
func (s Spec) Int(key string, def int) (int, error) {
	v, ok := s.Options[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("core %q: option %q must be an integer, got %v", s.Name, key, n)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("core %q: option %q must be an integer, got %q", s.Name, key, n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("core %q: option %q must be an integer, got %T", s.Name, key, v)
	}
}

// Require returns a string option or an error naming the missing key.
func (s Spec) Require(key string) (string, error) {
	v := s.String(key, "")
	if v == "" {
		return "", fmt.Errorf("core %q: option %q is required", s.Name, key)
	}
	return v, nil
}

// Deps are the shared collaborators handed to every factory.
type Deps struct {
	Client *fetch.Client
	Logger *slog.Logger
	// Now stamps records whose upstream carries no timestamp.
	Now func() time.Time
}

// Check reports an error when the shared collaborators are unusable.
func (d Deps) Check() error {
	if d.Client == nil {
		return errors.New("adapter deps: fetch client is required")
	}
	return nil
}

// Log returns the logger for the named adapter.
func (d Deps) Log(name string) *slog.Logger {
	l := d.Logger
	if l == nil {
		l = slog.Default()
	}
	return l.With("adapter", name)
}

// Clock returns the current time from d.Now, or time.Now.
func (d Deps) Clock() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Factory builds an adapter from its spec.
type Factory func(spec Spec, deps Deps) (Adapter, error)

// Factories maps adapter kinds to their constructors.
type Factories map[string]Factory

// Kinds returns the registered adapter kinds, sorted.
func (f Factories) Kinds() []string {
	kinds := make([]string, 0, len(f))
	for k := range f {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// Build constructs a Registry with one adapter per spec.
func (f Factories) Build(specs []Spec, deps Deps) (*Registry, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	reg := NewRegistry()
	for _, spec := range specs {
		factory, ok := f[spec.Kind]
		if !ok {
			return nil, fmt.Errorf("core %q: unknown adapter %q (known: %v)", spec.Name, spec.Kind, f.Kinds())
		}
		a, err := factory(spec, deps)
		if err != nil {
			return nil, fmt.Errorf("core %q: %w", spec.Name, err)
		}
		if err := reg.Register(a); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Registry is an ordered set of adapters keyed by name.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters []Adapter
	byName   map[string]Adapter
}

// NewRegistry returns an empty registry.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{byName: make(map[string]Adapter)}
	for _, a := range adapters {
		_ = r.Register(a)
	}
	return r
}

// Register adds a. Names must be unique.
func (r *Registry) Register(a Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := a.Name()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("adapter %q already registered", name)
	}
	r.byName[name] = a
	r.adapters = append(r.adapters, a)
	return nil
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byName[name]
	return a, ok
}

// Adapters returns the adapters in registration order.
func (r *Registry) Adapters() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.adapters)
}

// Names returns the adapter names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.adapters))
	for i, a := range r.adapters {
		names[i] = a.Name()
	}
	return names
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}

// Select returns a registry holding only the named adapters. An empty
// selection returns r itself.
func (r *Registry) Select(names ...string) (*Registry, error) {
	if len(names) == 0 {
		return r, nil
	}
	out := NewRegistry()
	for _, name := range names {
		a, ok := r.Get(name)
		if !ok {
			return nil, fmt.Errorf("unknown core %q (configured: %v)", name, r.Names())
		}
		if err := out.Register(a); err != nil {
			return nil, err
		}
	}
	return out, nil
}
