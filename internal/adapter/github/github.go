// Package github reads server core builds from GitHub releases.
//
// A release tag carries the Minecraft version and the core build. How the
// two are laid out varies by project, so the adapter supports three tag
// modes:
//
//	slash      "1.20.1/45"          mc_version=1.20.1 core_version=45
//	dash       "1.20-62"            mc_version=1.20   core_version=62
//	commitish  tag "24.1.0", target_commitish "1.12.2"
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/UCKETX/mcsm-templates/internal/adapter"
	"github.com/UCKETX/mcsm-templates/internal/fetch"
	"github.com/UCKETX/mcsm-templates/internal/record"
)

// Kind is the adapter kind used in configuration.
const Kind = "github"

// DefaultAPIBase is the GitHub REST API root.
const DefaultAPIBase = "https://api.github.com"

// TagMode selects how a release tag is split.
type TagMode string

const (
	TagSlash     TagMode = "slash"
	TagDash      TagMode = "dash"
	TagCommitish TagMode = "commitish"
)

// Adapter fetches one repository's releases.
type Adapter struct {
	name        string
	coreType    string
	owner       string
	repo        string
	mode        TagMode
	buildPrefix string
	mirror      string
	apiBase     string
	client      *fetch.Client
	logger      *slog.Logger
}

type release struct {
	TagName         string  `json:"tag_name"`
	TargetCommitish string  `json:"target_commitish"`
	Name            string  `json:"name"`
	PublishedAt     string  `json:"published_at"`
	Draft           bool    `json:"draft"`
	Assets          []asset `json:"assets"`
}

type asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// New is the adapter.Factory for Kind.
//
// Options: repo ("owner/name", required), tag_mode (slash|dash|commitish,
// default slash), build_prefix (prepended to core_version), mirror (prepended
// to download URLs), core_type (defaults to the core name), api_base.
func New(spec adapter.Spec, deps adapter.Deps) (adapter.Adapter, error) {
	if err := deps.Check(); err != nil {
		return nil, err
	}
	repo, err := spec.Require("repo")
	if err != nil {
		return nil, err
	}
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("core %q: repo must be owner/name, got %q", spec.Name, repo)
	}

	mode := TagMode(spec.String("tag_mode", string(TagSlash)))
	switch mode {
	case TagSlash, TagDash, TagCommitish:
	default:
		return nil, fmt.Errorf("core %q: unknown tag_mode %q", spec.Name, mode)
	}

	return &Adapter{
		name:        spec.Name,
		coreType:    spec.String("core_type", spec.Name),
		owner:       owner,
		repo:        name,
		mode:        mode,
		buildPrefix: spec.String("build_prefix", ""),
		mirror:      spec.String("mirror", ""),
		apiBase:     strings.TrimRight(spec.String("api_base", DefaultAPIBase), "/"),
		client:      deps.Client,
		logger:      deps.Log(spec.Name),
	}, nil
}

// Name returns the configured core name.
func (a *Adapter) Name() string { return a.name }

// Fetch lists the repository's releases and converts each into a record.
// Releases that cannot be parsed are skipped with a warning.
func (a *Adapter) Fetch(ctx context.Context) ([]adapter.Batch, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases?per_page=100",
		a.apiBase, url.PathEscape(a.owner), url.PathEscape(a.repo))

	var releases []release
	if err := a.client.GetJSON(ctx, endpoint, &releases); err != nil {
		return nil, fmt.Errorf("listing releases of %s/%s: %w", a.owner, a.repo, err)
	}

	records := make([]record.BuildRecord, 0, len(releases))
	for _, rel := range releases {
		rec, err := a.toRecord(rel)
		if err != nil {
			a.logger.Warn("skipping release", "tag", rel.TagName, "error", err)
			continue
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		a.logger.Warn("no usable releases", "releases", len(releases))
		return nil, nil
	}
	return []adapter.Batch{adapter.NewBatch(a.coreType, records)}, nil
}

func (a *Adapter) toRecord(rel release) (record.BuildRecord, error) {
	if rel.Draft {
		return record.BuildRecord{}, errors.New("draft release")
	}
	mc, core, err := a.splitTag(rel)
	if err != nil {
		return record.BuildRecord{}, err
	}
	if len(rel.Assets) == 0 {
		return record.BuildRecord{}, errors.New("release has no assets")
	}
	// The last uploaded asset is the server jar for every supported project.
	download := a.mirror + rel.Assets[len(rel.Assets)-1].BrowserDownloadURL
	return record.New(rel.PublishedAt, download, a.coreType, mc, a.buildPrefix+core)
}

func (a *Adapter) splitTag(rel release) (mc, core string, err error) {
	switch a.mode {
	case TagCommitish:
		mc, core = rel.TargetCommitish, rel.TagName
	default:
		sep := "/"
		if a.mode == TagDash {
			sep = "-"
		}
		parts := strings.Split(rel.TagName, sep)
		if len(parts) != 2 {
			return "", "", fmt.Errorf("tag %q is not mc%sbuild", rel.TagName, sep)
		}
		mc, core = parts[0], parts[1]
	}
	if mc == "" || core == "" {
		return "", "", fmt.Errorf("tag %q yields an empty version", rel.TagName)
	}
	return mc, core, nil
}
