package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/UCKETX/mcsm-templates/internal/record"
)

const unitExt = ".db"

var coreTypePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.+-]*$`)

// ValidateCoreType checks that coreType is usable as a durable unit name.
func ValidateCoreType(coreType string) error {
	if !coreTypePattern.MatchString(coreType) || strings.Contains(coreType, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidCoreType, coreType)
	}
	return nil
}

// Catalog is the collection of durable units, one SQLite file per core type,
// stored under a single directory. Units are opened lazily and kept open
// until Close.
//
// Thread-safety: all methods are safe for concurrent use.
type Catalog struct {
	dir  string
	opts []Option

	mu     sync.RWMutex
	units  map[string]*Store
	closed bool
}

// OpenCatalog prepares dir (creating it if needed) as the home of the units.
func OpenCatalog(dir string, opts ...Option) (*Catalog, error) {
	if dir == "" {
		return nil, errors.New("catalog directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create catalog directory: %w", err)
	}
	return &Catalog{
		dir:   dir,
		opts:  opts,
		units: make(map[string]*Store),
	}, nil
}

// Dir returns the catalog directory.
func (c *Catalog) Dir() string {
	return c.dir
}

// Unit returns the durable unit for coreType, creating it if necessary.
func (c *Catalog) Unit(coreType string) (*Store, error) {
	return c.unit(coreType, true)
}

// unit looks up or opens the unit for coreType. With create unset, a unit
// that does not exist on disk yields (nil, nil).
func (c *Catalog) unit(coreType string, create bool) (*Store, error) {
	if err := ValidateCoreType(coreType); err != nil {
		return nil, err
	}

	c.mu.RLock()
	s, ok := c.units[coreType]
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return nil, errors.New("catalog is closed")
	}
	if ok {
		return s, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errors.New("catalog is closed")
	}
	if s, ok := c.units[coreType]; ok {
		return s, nil
	}

	path := c.unitPath(coreType)
	if !create {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
	}

	s, err := Open(path, c.opts...)
	if err != nil {
		return nil, &StorageError{Op: "open unit", CoreType: coreType, Err: err}
	}
	c.units[coreType] = s
	return s, nil
}

func (c *Catalog) unitPath(coreType string) string {
	return filepath.Join(c.dir, coreType+unitExt)
}

// Upsert merges records into the (coreType, mcVersion) table of coreType's unit.
func (c *Catalog) Upsert(ctx context.Context, coreType, mcVersion string, records []record.BuildRecord) (MergeResult, error) {
	s, err := c.Unit(coreType)
	if err != nil {
		return MergeResult{CoreType: coreType, MCVersion: mcVersion}, err
	}
	return s.Upsert(ctx, coreType, mcVersion, records)
}

// Retention applies Store.Retention to coreType's unit. A missing unit is a no-op.
func (c *Catalog) Retention(ctx context.Context, coreType string, keep int) (RetentionResult, error) {
	s, err := c.unit(coreType, false)
	if err != nil {
		return RetentionResult{CoreType: coreType, Cap: keep}, err
	}
	if s == nil {
		return RetentionResult{CoreType: coreType, Cap: keep}, nil
	}
	return s.Retention(ctx, coreType, keep)
}

// ListVersions returns the versions of coreType newest first. An unknown core
// type has no versions.
func (c *Catalog) ListVersions(ctx context.Context, coreType string) ([]string, error) {
	s, err := c.unit(coreType, false)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return []string{}, nil
	}
	return s.ListVersions(ctx, coreType)
}

// ListBuilds returns the core versions of one table newest first.
func (c *Catalog) ListBuilds(ctx context.Context, coreType, mcVersion string) ([]string, error) {
	s, err := c.unit(coreType, false)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, &NotFoundError{CoreType: coreType, MCVersion: mcVersion}
	}
	return s.ListBuilds(ctx, coreType, mcVersion)
}

// GetBuild returns one build or a *NotFoundError.
func (c *Catalog) GetBuild(ctx context.Context, coreType, mcVersion, coreVersion string) (record.BuildRecord, error) {
	s, err := c.unit(coreType, false)
	if err != nil {
		return record.BuildRecord{}, err
	}
	if s == nil {
		return record.BuildRecord{}, &NotFoundError{CoreType: coreType, MCVersion: mcVersion, CoreVersion: coreVersion}
	}
	return s.GetBuild(ctx, coreType, mcVersion, coreVersion)
}

// Rows returns the raw rows of one table in insertion order.
func (c *Catalog) Rows(ctx context.Context, coreType, mcVersion string) ([]StoredRecord, error) {
	s, err := c.unit(coreType, false)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return []StoredRecord{}, nil
	}
	return s.Rows(ctx, coreType, mcVersion)
}

// CoreTypes lists the core types that have a unit on disk, sorted.
func (c *Catalog) CoreTypes() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("read catalog directory: %w", err)
	}

	types := []string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != unitExt {
			continue
		}
		ct := strings.TrimSuffix(name, unitExt)
		if ValidateCoreType(ct) != nil {
			continue
		}
		types = append(types, ct)
	}
	slices.Sort(types)
	return types, nil
}

// Close closes every open unit. The catalog cannot be used afterwards.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	for ct, s := range c.units {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", ct, err))
		}
	}
	c.units = nil
	return errors.Join(errs...)
}
