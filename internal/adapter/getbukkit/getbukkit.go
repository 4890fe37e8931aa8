// Package getbukkit scrapes CraftBukkit and Spigot builds from getbukkit.org.
//
// The listing page has one "download-pane" per Minecraft version. Each pane
// links to an intermediate page whose "well" block holds the real jar URL.
package getbukkit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/UCKETX/mcsm-templates/internal/adapter"
	"github.com/UCKETX/mcsm-templates/internal/fetch"
	"github.com/UCKETX/mcsm-templates/internal/record"
)

// Kind is the adapter kind used in configuration.
const Kind = "getbukkit"

// DefaultBaseURL is the getbukkit.org site root.
const DefaultBaseURL = "https://getbukkit.org"

// CoreVersion is the core_version of every record: getbukkit publishes only
// the latest build per Minecraft version.
const CoreVersion = "Latest"

// dateLayout matches pane dates such as "Monday, June 12 2023".
const dateLayout = "Monday, January 2 2006"

// Adapter scrapes one getbukkit project.
type Adapter struct {
	name        string
	coreType    string
	project     string
	baseURL     *url.URL
	concurrency int
	client      *fetch.Client
	logger      *slog.Logger
}

// pane is one version entry of the listing page.
type pane struct {
	mcVersion string
	date      string
	link      string
}

// New is the adapter.Factory for Kind.
//
// Options: project (craftbukkit, spigot; defaults to the lower-cased core
// name), core_type (defaults to the title-cased project), base_url,
// concurrency (parallel download-page requests, default 4).
func New(spec adapter.Spec, deps adapter.Deps) (adapter.Adapter, error) {
	if err := deps.Check(); err != nil {
		return nil, err
	}
	project := strings.ToLower(spec.String("project", spec.Name))
	base, err := url.Parse(spec.String("base_url", DefaultBaseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("core %q: invalid base_url %q", spec.Name, spec.String("base_url", DefaultBaseURL))
	}
	concurrency, err := spec.Int("concurrency", 4)
	if err != nil {
		return nil, err
	}
	if concurrency < 1 {
		return nil, fmt.Errorf("core %q: concurrency must be positive, got %d", spec.Name, concurrency)
	}

	return &Adapter{
		name:        spec.Name,
		coreType:    spec.String("core_type", cases.Title(language.English).String(project)),
		project:     project,
		baseURL:     base,
		concurrency: concurrency,
		client:      deps.Client,
		logger:      deps.Log(spec.Name),
	}, nil
}

// Name returns the configured core name.
func (a *Adapter) Name() string { return a.name }

// Fetch scrapes the listing page and resolves each pane's download link.
// Panes that are malformed or whose download page has no link are skipped.
func (a *Adapter) Fetch(ctx context.Context) ([]adapter.Batch, error) {
	listing := a.baseURL.JoinPath("download", a.project)
	page, err := a.client.GetText(ctx, listing.String())
	if err != nil {
		return nil, fmt.Errorf("fetching %s listing: %w", a.project, err)
	}
	panes, err := parseListing(page)
	if err != nil {
		return nil, fmt.Errorf("parsing %s listing: %w", a.project, err)
	}

	var (
		mu      sync.Mutex
		records []record.BuildRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for _, p := range panes {
		g.Go(func() error {
			rec, err := a.resolve(gctx, p)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				a.logger.Warn("skipping version", "mc_version", p.mcVersion, "error", err)
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
		a.logger.Warn("no versions found", "panes", len(panes))
		return nil, nil
	}
	return []adapter.Batch{adapter.NewBatch(a.coreType, records)}, nil
}

func (a *Adapter) resolve(ctx context.Context, p pane) (record.BuildRecord, error) {
	if p.mcVersion == "" || p.link == "" {
		return record.BuildRecord{}, errors.New("pane without version or download link")
	}
	released, err := time.Parse(dateLayout, p.date)
	if err != nil {
		return record.BuildRecord{}, fmt.Errorf("date %q: %w", p.date, err)
	}

	link, err := a.baseURL.Parse(p.link)
	if err != nil {
		return record.BuildRecord{}, fmt.Errorf("link %q: %w", p.link, err)
	}
	page, err := a.client.GetText(ctx, link.String())
	if err != nil {
		return record.BuildRecord{}, err
	}
	download, err := parseDownloadPage(page)
	if err != nil {
		return record.BuildRecord{}, err
	}
	resolved, err := link.Parse(download)
	if err != nil {
		return record.BuildRecord{}, fmt.Errorf("download link %q: %w", download, err)
	}

	return record.New(record.FormatSyncTime(released), resolved.String(), a.coreType, p.mcVersion, CoreVersion)
}

// parseListing extracts the version panes of a listing page.
func parseListing(page string) ([]pane, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, err
	}

	var panes []pane
	for _, div := range findAll(doc, elementWithClass("div", "download-pane")) {
		var p pane
		if h2 := findAll(div, element("h2")); len(h2) > 0 {
			p.mcVersion = strings.TrimSpace(textOf(h2[0]))
		}
		// The first h3 is the build size, the second the release date.
		if h3 := findAll(div, element("h3")); len(h3) > 1 {
			p.date = strings.TrimSpace(textOf(h3[1]))
		}
		if btn := findAll(div, elementWithClass("a", "btn btn-download")); len(btn) > 0 {
			p.link = attr(btn[0], "href")
		}
		panes = append(panes, p)
	}
	return panes, nil
}

// parseDownloadPage returns the first link inside a "well" block heading.
func parseDownloadPage(page string) (string, error) {
	doc, err := html.Parse(bytes.NewReader([]byte(page)))
	if err != nil {
		return "", err
	}
	for _, well := range findAll(doc, elementWithClass("div", "well")) {
		for _, h2 := range findAll(well, element("h2")) {
			for _, a := range findAll(h2, element("a")) {
				if href := attr(a, "href"); href != "" {
					return href, nil
				}
			}
		}
	}
	return "", errors.New("no download link on page")
}

func element(tag string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == tag
	}
}

func elementWithClass(tag, class string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == tag && attr(n, "class") == class
	}
}

// findAll returns descendants of n matching match, in document order.
func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if match(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return sb.String()
}
