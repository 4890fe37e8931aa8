// Package vanilla reads official Minecraft server jars from Mojang's version
// manifest.
package vanilla

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/UCKETX/mcsm-templates/internal/adapter"
	"github.com/UCKETX/mcsm-templates/internal/fetch"
	"github.com/UCKETX/mcsm-templates/internal/record"
)

// Kind is the adapter kind used in configuration.
const Kind = "vanilla"

// DefaultManifestURL is Mojang's version manifest.
const DefaultManifestURL = "https://piston-meta.mojang.com/mc/game/version_manifest_v2.json"

// CoreVersion is the core_version of every vanilla record: there is exactly
// one official server jar per Minecraft release.
const CoreVersion = "Official"

type manifest struct {
	Versions []manifestEntry `json:"versions"`
}

type manifestEntry struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	URL         string `json:"url"`
	ReleaseTime string `json:"releaseTime"`
}

type versionDetail struct {
	Downloads struct {
		Server *struct {
			URL  string `json:"url"`
			SHA1 string `json:"sha1"`
			Size int64  `json:"size"`
		} `json:"server"`
	} `json:"downloads"`
}

// Adapter fetches release versions from the manifest.
type Adapter struct {
	name        string
	coreType    string
	manifestURL string
	concurrency int
	client      *fetch.Client
	logger      *slog.Logger
	now         func() time.Time
}

// New is the adapter.Factory for Kind.
//
// Options: manifest_url, core_type (defaults to the core name), concurrency
// (parallel detail requests, default 8).
func New(spec adapter.Spec, deps adapter.Deps) (adapter.Adapter, error) {
	if err := deps.Check(); err != nil {
		return nil, err
	}
	concurrency, err := spec.Int("concurrency", 8)
	if err != nil {
		return nil, err
	}
	if concurrency < 1 {
		return nil, fmt.Errorf("core %q: concurrency must be positive, got %d", spec.Name, concurrency)
	}
	return &Adapter{
		name:        spec.Name,
		coreType:    spec.String("core_type", spec.Name),
		manifestURL: spec.String("manifest_url", DefaultManifestURL),
		concurrency: concurrency,
		client:      deps.Client,
		logger:      deps.Log(spec.Name),
		now:         deps.Clock,
	}, nil
}

// Name returns the configured core name.
func (a *Adapter) Name() string { return a.name }

// Fetch reads the manifest and, for every release, the version detail that
// holds the server download. Versions without a server jar are skipped.
func (a *Adapter) Fetch(ctx context.Context) ([]adapter.Batch, error) {
	var m manifest
	if err := a.client.GetJSON(ctx, a.manifestURL, &m); err != nil {
		return nil, fmt.Errorf("fetching version manifest: %w", err)
	}

	var (
		mu      sync.Mutex
		records []record.BuildRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for _, v := range m.Versions {
		if v.Type != "release" || v.ID == "" || v.URL == "" {
			continue
		}
		g.Go(func() error {
			rec, err := a.fetchVersion(gctx, v)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				a.logger.Warn("skipping version", "mc_version", v.ID, "error", err)
				return nil
			}
			mu.Lock()
			records = append(records, rec)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, nil
	}
	return []adapter.Batch{adapter.NewBatch(a.coreType, records)}, nil
}

func (a *Adapter) fetchVersion(ctx context.Context, v manifestEntry) (record.BuildRecord, error) {
	var detail versionDetail
	if err := a.client.GetJSON(ctx, v.URL, &detail); err != nil {
		return record.BuildRecord{}, err
	}
	server := detail.Downloads.Server
	if server == nil || server.URL == "" {
		return record.BuildRecord{}, errors.New("no server download")
	}

	released, err := time.Parse(time.RFC3339, v.ReleaseTime)
	if err != nil {
		a.logger.Warn("unparseable release time, using now", "mc_version", v.ID, "release_time", v.ReleaseTime)
		released = a.now()
	}
	return record.New(record.FormatSyncTime(released), server.URL, a.coreType, v.ID, CoreVersion)
}
