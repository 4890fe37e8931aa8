package getbukkit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UCKETX/mcsm-templates/internal/adapter"
	"github.com/UCKETX/mcsm-templates/internal/fetch"
	"github.com/UCKETX/mcsm-templates/internal/testutil"
)

const listingPage = `<!DOCTYPE html>
<html><body>
<div class="download-pane">
  <div class="row">
    <div class="col-sm-3"><h2>1.20.1</h2></div>
    <div class="col-sm-3"><h3>Size</h3><h3>Monday, June 12 2023</h3></div>
    <div class="col-sm-3"><a class="btn btn-download" href="/get/cb-1201">Download</a></div>
  </div>
</div>
<div class="download-pane">
  <div class="row">
    <div class="col-sm-3"><h2> 1.19.4 </h2></div>
    <div class="col-sm-3"><h3>Size</h3><h3>Tuesday, March 14 2023</h3></div>
    <div class="col-sm-3"><a class="btn btn-download" href="/get/cb-1194">Download</a></div>
  </div>
</div>
<div class="download-pane">
  <div class="row">
    <div class="col-sm-3"><h2>1.8</h2></div>
    <div class="col-sm-3"><h3>Size</h3></div>
    <div class="col-sm-3"><a class="btn btn-download" href="/get/cb-18">Download</a></div>
  </div>
</div>
<div class="download-pane">
  <div class="row">
    <div class="col-sm-3"><h2>1.7.10</h2></div>
    <div class="col-sm-3"><h3>Size</h3><h3>Friday, June 27 2014</h3></div>
    <div class="col-sm-3"><a class="btn btn-download" href="/get/cb-1710">Download</a></div>
  </div>
</div>
</body></html>`

func downloadPage(href string) string {
	return `<html><body><div class="well"><h2><a href="` + href + `">craftbukkit.jar</a></h2></div></body></html>`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/download/craftbukkit", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(listingPage))
	})
	mux.HandleFunc("/get/cb-1201", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(downloadPage("https://cdn.getbukkit.org/craftbukkit/craftbukkit-1.20.1.jar")))
	})
	mux.HandleFunc("/get/cb-1194", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(downloadPage("/files/craftbukkit-1.19.4.jar")))
	})
	mux.HandleFunc("/get/cb-1710", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>gone</p></body></html>`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch(t *testing.T) {
	srv := newTestServer(t)
	client := fetch.NewClient(
		fetch.WithHTTPClient(&http.Client{Timeout: 5 * time.Second}),
		fetch.WithMaxRetries(0))
	t.Cleanup(client.Close)

	a, err := New(adapter.Spec{
		Name:    "craftbukkit",
		Kind:    Kind,
		Options: map[string]any{"base_url": srv.URL},
	}, adapter.Deps{Client: client, Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)

	batches, err := a.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, batches, 1)

	b := batches[0]
	assert.Equal(t, "Craftbukkit", b.CoreType)
	assert.Len(t, b.Groups, 2, "panes without a date or a download link are skipped")

	latest := b.Groups["1.20.1"]
	require.Len(t, latest, 1)
	assert.Equal(t, CoreVersion, latest[0].CoreVersion)
	assert.Equal(t, "https://cdn.getbukkit.org/craftbukkit/craftbukkit-1.20.1.jar", latest[0].DownloadURL)
	assert.Equal(t, time.Date(2023, 6, 12, 0, 0, 0, 0, time.UTC), latest[0].SyncTime)

	relative := b.Groups["1.19.4"]
	require.Len(t, relative, 1)
	assert.Equal(t, srv.URL+"/files/craftbukkit-1.19.4.jar", relative[0].DownloadURL)
}

func TestParseListing(t *testing.T) {
	panes, err := parseListing(listingPage)
	require.NoError(t, err)
	require.Len(t, panes, 4)

	assert.Equal(t, pane{mcVersion: "1.20.1", date: "Monday, June 12 2023", link: "/get/cb-1201"}, panes[0])
	assert.Equal(t, "1.19.4", panes[1].mcVersion)
	assert.Empty(t, panes[2].date)
}

func TestParseDownloadPage_NoLink(t *testing.T) {
	_, err := parseDownloadPage(`<div class="well"><h2>nothing here</h2></div>`)
	assert.ErrorContains(t, err, "no download link")
}

func TestNew_CoreTypeFromProject(t *testing.T) {
	client := fetch.NewClient()
	t.Cleanup(client.Close)
	deps := adapter.Deps{Client: client, Logger: testutil.NewTestLogger(t)}

	a, err := New(adapter.Spec{Name: "Spigot", Options: map[string]any{"project": "SPIGOT"}}, deps)
	require.NoError(t, err)
	ga := a.(*Adapter)
	assert.Equal(t, "spigot", ga.project)
	assert.Equal(t, "Spigot", ga.coreType)

	_, err = New(adapter.Spec{Name: "Spigot", Options: map[string]any{"base_url": "not a url"}}, deps)
	assert.ErrorContains(t, err, "invalid base_url")
}
