package vanilla

import (
	"context"
	"fmt"
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

var fixedNow = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/manifest.json":
			fmt.Fprintf(w, `{"versions": [
				{"id": "1.21.4", "type": "release", "url": "%[1]s/v/1.21.4.json", "releaseTime": "2024-12-03T10:12:57+00:00"},
				{"id": "24w14a", "type": "snapshot", "url": "%[1]s/v/24w14a.json", "releaseTime": "2024-04-03T00:00:00+00:00"},
				{"id": "1.20.6", "type": "release", "url": "%[1]s/v/1.20.6.json", "releaseTime": "garbage"},
				{"id": "1.2.5", "type": "release", "url": "%[1]s/v/1.2.5.json", "releaseTime": "2012-03-29T22:00:00+00:00"},
				{"id": "1.0", "type": "release", "url": "%[1]s/v/missing.json", "releaseTime": "2011-11-18T22:00:00+00:00"}
			]}`, srv.URL)
		case "/v/1.21.4.json":
			w.Write([]byte(`{"downloads": {"server": {"url": "https://piston-data.mojang.com/1.21.4/server.jar", "sha1": "abc", "size": 1}}}`))
		case "/v/1.20.6.json":
			w.Write([]byte(`{"downloads": {"server": {"url": "https://piston-data.mojang.com/1.20.6/server.jar"}}}`))
		case "/v/1.2.5.json":
			w.Write([]byte(`{"downloads": {"client": {"url": "https://piston-data.mojang.com/1.2.5/client.jar"}}}`))
		case "/v/24w14a.json":
			t.Errorf("snapshot detail should not be fetched")
		default:
			http.NotFound(w, r)
		}
	}))
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
		Name:    "Vanilla",
		Kind:    Kind,
		Options: map[string]any{"manifest_url": srv.URL + "/manifest.json"},
	}, adapter.Deps{
		Client: client,
		Logger: testutil.NewTestLogger(t),
		Now:    func() time.Time { return fixedNow },
	})
	require.NoError(t, err)

	batches, err := a.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, batches, 1)

	b := batches[0]
	assert.Equal(t, "Vanilla", b.CoreType)
	assert.Len(t, b.Groups, 2, "snapshots, jars without a server download and missing details are skipped")

	latest := b.Groups["1.21.4"]
	require.Len(t, latest, 1)
	assert.Equal(t, CoreVersion, latest[0].CoreVersion)
	assert.Equal(t, "https://piston-data.mojang.com/1.21.4/server.jar", latest[0].DownloadURL)
	assert.Equal(t, time.Date(2024, 12, 3, 10, 12, 57, 0, time.UTC), latest[0].SyncTime)

	fallback := b.Groups["1.20.6"]
	require.Len(t, fallback, 1)
	assert.Equal(t, fixedNow, fallback[0].SyncTime)
}

func TestFetch_ManifestUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	client := fetch.NewClient(fetch.WithMaxRetries(0))
	t.Cleanup(client.Close)

	a, err := New(adapter.Spec{Name: "Vanilla", Options: map[string]any{"manifest_url": srv.URL}},
		adapter.Deps{Client: client, Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)

	_, err = a.Fetch(context.Background())
	assert.ErrorIs(t, err, fetch.ErrUpstreamDown)
}
