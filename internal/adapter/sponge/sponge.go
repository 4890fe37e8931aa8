// Package sponge reads SpongeForge and SpongeVanilla builds from the
// SpongePowered downloads API.
package sponge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/UCKETX/mcsm-templates/internal/adapter"
	"github.com/UCKETX/mcsm-templates/internal/fetch"
	"github.com/UCKETX/mcsm-templates/internal/record"
)

// Kind is the adapter kind used in configuration.
const Kind = "sponge"

// DefaultAPIBase is the artifact root of the org.spongepowered group.
const DefaultAPIBase = "https://dl-api.spongepowered.org/v2/groups/org.spongepowered/artifacts"

// The API carries no usable publication time, so every record is stamped
// with the Unix epoch.
var epoch = time.Unix(0, 0).UTC()

// Adapter fetches builds for a set of Sponge artifacts. Each artifact is its
// own core type, named by the artifact's display name.
type Adapter struct {
	name        string
	apiBase     string
	artifacts   []string
	limit       int
	concurrency int
	client      *fetch.Client
	logger      *slog.Logger
}

type groupInfo struct {
	ArtifactIDs []string `json:"artifactIds"`
}

type artifactInfo struct {
	DisplayName string `json:"displayName"`
	Tags        struct {
		Minecraft []string `json:"minecraft"`
	} `json:"tags"`
}

type versionList struct {
	// Artifacts is either an object keyed by build label or a list of labels.
	Artifacts json.RawMessage `json:"artifacts"`
}

type buildInfo struct {
	Assets      []buildAsset `json:"assets"`
	Coordinates *struct {
		Version string `json:"version"`
	} `json:"coordinates"`
}

type buildAsset struct {
	Classifier  string `json:"classifier"`
	DownloadURL string `json:"downloadUrl"`
	Extension   string `json:"extension"`
}

// New is the adapter.Factory for Kind.
//
// Options: artifacts (artifact IDs; all artifacts of the group when empty),
// limit (builds per Minecraft version, default 10), concurrency (default 4),
// api_base.
func New(spec adapter.Spec, deps adapter.Deps) (adapter.Adapter, error) {
	if err := deps.Check(); err != nil {
		return nil, err
	}
	limit, err := spec.Int("limit", 10)
	if err != nil {
		return nil, err
	}
	concurrency, err := spec.Int("concurrency", 4)
	if err != nil {
		return nil, err
	}
	if limit < 1 || concurrency < 1 {
		return nil, fmt.Errorf("core %q: limit and concurrency must be positive", spec.Name)
	}
	return &Adapter{
		name:        spec.Name,
		apiBase:     strings.TrimRight(spec.String("api_base", DefaultAPIBase), "/"),
		artifacts:   spec.Strings("artifacts"),
		limit:       limit,
		concurrency: concurrency,
		client:      deps.Client,
		logger:      deps.Log(spec.Name),
	}, nil
}

// Name returns the configured core name.
func (a *Adapter) Name() string { return a.name }

// Fetch returns one batch per artifact. An artifact that fails to load is
// logged and skipped; the fetch fails only if every artifact fails.
func (a *Adapter) Fetch(ctx context.Context) ([]adapter.Batch, error) {
	ids := a.artifacts
	if len(ids) == 0 {
		var g groupInfo
		if err := a.client.GetJSON(ctx, a.apiBase, &g); err != nil {
			return nil, fmt.Errorf("listing sponge artifacts: %w", err)
		}
		if len(g.ArtifactIDs) == 0 {
			return nil, errors.New("sponge artifact list is empty")
		}
		ids = g.ArtifactIDs
	}

	var (
		batches []adapter.Batch
		errs    []error
	)
	for _, id := range ids {
		b, err := a.fetchArtifact(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.logger.Warn("skipping artifact", "artifact", id, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		batches = append(batches, b)
	}
	if len(batches) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return batches, nil
}

func (a *Adapter) fetchArtifact(ctx context.Context, id string) (adapter.Batch, error) {
	base := a.apiBase + "/" + url.PathEscape(id)

	var info artifactInfo
	if err := a.client.GetJSON(ctx, base, &info); err != nil {
		return adapter.Batch{}, err
	}
	if info.DisplayName == "" || len(info.Tags.Minecraft) == 0 {
		return adapter.Batch{}, errors.New("artifact has no display name or minecraft versions")
	}
	coreType := info.DisplayName

	var (
		mu      sync.Mutex
		records []record.BuildRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for _, mc := range info.Tags.Minecraft {
		g.Go(func() error {
			recs, err := a.fetchVersion(gctx, base, coreType, mc)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				a.logger.Warn("skipping version", "core_type", coreType, "mc_version", mc, "error", err)
				return nil
			}
			mu.Lock()
			records = append(records, recs...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return adapter.Batch{}, err
	}
	return adapter.NewBatch(coreType, records), nil
}

func (a *Adapter) fetchVersion(ctx context.Context, base, coreType, mc string) ([]record.BuildRecord, error) {
	q := url.Values{}
	q.Set("tags", ",minecraft:"+mc)
	q.Set("offset", "0")
	q.Set("limit", fmt.Sprint(a.limit))

	var list versionList
	if err := a.client.GetJSON(ctx, base+"/versions?"+q.Encode(), &list); err != nil {
		return nil, err
	}
	labels, err := buildLabels(list.Artifacts)
	if err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return nil, errors.New("no builds listed")
	}

	var out []record.BuildRecord
	for _, label := range labels {
		var b buildInfo
		if err := a.client.GetJSON(ctx, base+"/versions/"+url.PathEscape(label), &b); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.logger.Warn("skipping build", "core_type", coreType, "mc_version", mc, "build", label, "error", err)
			continue
		}
		download, ok := pickAsset(b.Assets)
		if !ok || b.Coordinates == nil {
			a.logger.Warn("build has no server jar", "core_type", coreType, "mc_version", mc, "build", label)
			continue
		}
		core := strings.TrimPrefix(b.Coordinates.Version, mc+"-")
		rec, err := record.New(record.FormatSyncTime(epoch), download, coreType, mc, core)
		if err != nil {
			a.logger.Warn("skipping build", "core_type", coreType, "mc_version", mc, "build", label, "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// buildLabels accepts either {"label": {...}, ...} or ["label", ...].
func buildLabels(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var byLabel map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byLabel); err == nil {
		labels := make([]string, 0, len(byLabel))
		for label := range byLabel {
			labels = append(labels, label)
		}
		slices.Sort(labels)
		return labels, nil
	}
	var labels []string
	if err := json.Unmarshal(raw, &labels); err != nil {
		return nil, fmt.Errorf("unexpected artifacts shape: %w", err)
	}
	return labels, nil
}

// pickAsset prefers the universal jar, then the first unclassified non-pom
// asset.
func pickAsset(assets []buildAsset) (string, bool) {
	for _, as := range assets {
		if as.Classifier == "universal" && as.DownloadURL != "" {
			return as.DownloadURL, true
		}
	}
	for _, as := range assets {
		if as.Classifier == "" && as.Extension != "pom" && as.DownloadURL != "" {
			return as.DownloadURL, true
		}
	}
	return "", false
}
