// Package forge reads Minecraft Forge builds from the BMCLAPI mirror.
package forge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/UCKETX/mcsm-templates/internal/adapter"
	"github.com/UCKETX/mcsm-templates/internal/fetch"
	"github.com/UCKETX/mcsm-templates/internal/record"
)

// Kind is the adapter kind used in configuration.
const Kind = "forge"

// DefaultAPIBase is the BMCLAPI root.
const DefaultAPIBase = "https://bmclapi2.bangbang93.com"

// minBuild is the last build without a usable server installer; it and all
// earlier builds are skipped.
const minBuild = 752

// brokenBuilds have installers that BMCLAPI serves but that do not work.
var brokenBuilds = map[int]bool{960: true, 961: true, 963: true, 964: true}

// skippedVersions are mc_versions BMCLAPI lists that are not real releases.
var skippedVersions = map[string]bool{"1.7.10_pre4": true}

const defaultConcurrency = 8

// Adapter fetches every Forge build for every supported Minecraft version.
type Adapter struct {
	name        string
	coreType    string
	apiBase     string
	concurrency int
	client      *fetch.Client
	logger      *slog.Logger
}

type build struct {
	Build     int    `json:"build"`
	MCVersion string `json:"mcversion"`
	Version   string `json:"version"`
	Modified  string `json:"modified"`
}

// New is the adapter.Factory for Kind.
//
// Options: api_base, core_type (defaults to the core name), concurrency
// (parallel per-version requests, default 8).
func New(spec adapter.Spec, deps adapter.Deps) (adapter.Adapter, error) {
	if err := deps.Check(); err != nil {
		return nil, err
	}
	concurrency, err := spec.Int("concurrency", defaultConcurrency)
	if err != nil {
		return nil, err
	}
	if concurrency < 1 {
		return nil, fmt.Errorf("core %q: concurrency must be positive, got %d", spec.Name, concurrency)
	}
	return &Adapter{
		name:        spec.Name,
		coreType:    spec.String("core_type", spec.Name),
		apiBase:     strings.TrimRight(spec.String("api_base", DefaultAPIBase), "/"),
		concurrency: concurrency,
		client:      deps.Client,
		logger:      deps.Log(spec.Name),
	}, nil
}

// Name returns the configured core name.
func (a *Adapter) Name() string { return a.name }

// Fetch lists the supported Minecraft versions, then fetches each version's
// builds concurrently. A version whose listing fails is logged and skipped;
// the fetch fails only if every version fails.
func (a *Adapter) Fetch(ctx context.Context) ([]adapter.Batch, error) {
	var versions []string
	if err := a.client.GetJSON(ctx, a.apiBase+"/forge/minecraft", &versions); err != nil {
		return nil, fmt.Errorf("listing forge versions: %w", err)
	}

	var (
		mu      sync.Mutex
		records []record.BuildRecord
		failed  int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for _, mc := range versions {
		if skippedVersions[mc] {
			continue
		}
		g.Go(func() error {
			recs, err := a.fetchVersion(gctx, mc)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				a.logger.Warn("skipping version", "mc_version", mc, "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			mu.Lock()
			records = append(records, recs...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if failed > 0 && len(records) == 0 {
		return nil, fmt.Errorf("all %d forge version listings failed", failed)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return []adapter.Batch{adapter.NewBatch(a.coreType, records)}, nil
}

func (a *Adapter) fetchVersion(ctx context.Context, mc string) ([]record.BuildRecord, error) {
	var builds []build
	if err := a.client.GetJSON(ctx, a.apiBase+"/forge/minecraft/"+url.PathEscape(mc), &builds); err != nil {
		return nil, err
	}

	out := make([]record.BuildRecord, 0, len(builds))
	for _, b := range builds {
		if b.Build <= minBuild || brokenBuilds[b.Build] {
			continue
		}
		rec, err := a.toRecord(mc, b)
		if err != nil {
			a.logger.Warn("skipping build", "mc_version", mc, "build", b.Build, "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (a *Adapter) toRecord(mc string, b build) (record.BuildRecord, error) {
	modified, err := time.Parse(time.RFC3339Nano, b.Modified)
	if err != nil {
		return record.BuildRecord{}, fmt.Errorf("modified %q: %w", b.Modified, err)
	}
	if b.Version == "" {
		return record.BuildRecord{}, errors.New("empty version")
	}
	download := fmt.Sprintf("%s/forge/download/%d", a.apiBase, b.Build)
	// BMCLAPI stamps modification times with millisecond precision; the
	// stored sync_time is truncated to whole seconds.
	return record.New(record.FormatSyncTime(modified.UTC().Truncate(time.Second)), download, a.coreType, mc, b.Version)
}
