package github

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

const arclightReleases = `[
  {"tag_name": "1.20.1/1.0.2", "target_commitish": "trunk", "published_at": "2024-03-01T10:00:00Z",
   "assets": [{"name": "sources.jar", "browser_download_url": "https://github.com/a/src.jar"},
              {"name": "arclight.jar", "browser_download_url": "https://github.com/a/arclight-1.0.2.jar"}]},
  {"tag_name": "1.19.2/1.0.0", "target_commitish": "trunk", "published_at": "2023-11-20T08:30:00Z",
   "assets": [{"name": "arclight.jar", "browser_download_url": "https://github.com/a/arclight-1.0.0.jar"}]},
  {"tag_name": "nightly", "target_commitish": "trunk", "published_at": "2024-03-02T00:00:00Z",
   "assets": [{"name": "x.jar", "browser_download_url": "https://github.com/a/x.jar"}]},
  {"tag_name": "1.18.2/0.9", "target_commitish": "trunk", "published_at": "2023-01-01T00:00:00Z",
   "assets": []}
]`

func newAdapter(t *testing.T, srvURL string, opts map[string]any) adapter.Adapter {
	t.Helper()
	client := fetch.NewClient(
		fetch.WithHTTPClient(&http.Client{Timeout: 5 * time.Second}),
		fetch.WithMaxRetries(0))
	t.Cleanup(client.Close)

	options := map[string]any{"api_base": srvURL}
	for k, v := range opts {
		options[k] = v
	}
	a, err := New(adapter.Spec{Name: "Arclight", Kind: Kind, Options: options}, adapter.Deps{
		Client: client,
		Logger: testutil.NewTestLogger(t),
	})
	require.NoError(t, err)
	return a
}

func serve(t *testing.T, path, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch_SlashTags(t *testing.T) {
	srv := serve(t, "/repos/IzzelAliz/Arclight/releases", arclightReleases)
	a := newAdapter(t, srv.URL, map[string]any{
		"repo":         "IzzelAliz/Arclight",
		"build_prefix": "build",
		"mirror":       "https://mirror.example/",
	})

	batches, err := a.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, batches, 1)

	b := batches[0]
	assert.Equal(t, "Arclight", b.CoreType)
	assert.Equal(t, 2, b.Len(), "malformed tag and assetless release are skipped")

	got := b.Groups["1.20.1"]
	require.Len(t, got, 1)
	assert.Equal(t, "build1.0.2", got[0].CoreVersion)
	assert.Equal(t, "https://mirror.example/https://github.com/a/arclight-1.0.2.jar", got[0].DownloadURL)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), got[0].SyncTime)

	require.Len(t, b.Groups["1.19.2"], 1)
}

func TestFetch_DashTags(t *testing.T) {
	body := `[{"tag_name": "1.20-62", "published_at": "2024-01-01T00:00:00Z",
	           "assets": [{"browser_download_url": "https://github.com/l/lightfall-62.jar"}]}]`
	srv := serve(t, "/repos/ArclightPowered/lightfall/releases", body)
	a := newAdapter(t, srv.URL, map[string]any{
		"repo":         "ArclightPowered/lightfall",
		"tag_mode":     "dash",
		"build_prefix": "build",
	})

	batches, err := a.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, batches, 1)
	got := batches[0].Groups["1.20"]
	require.Len(t, got, 1)
	assert.Equal(t, "build62", got[0].CoreVersion)
}

func TestFetch_CommitishTags(t *testing.T) {
	body := `[{"tag_name": "24.1.0", "target_commitish": "1.12.2", "published_at": "2024-05-05T05:05:05Z",
	           "assets": [{"browser_download_url": "https://github.com/c/CatServer-24.1.0.jar"}]}]`
	srv := serve(t, "/repos/Luohuayu/CatServer/releases", body)
	a := newAdapter(t, srv.URL, map[string]any{
		"repo":     "Luohuayu/CatServer",
		"tag_mode": "commitish",
	})

	batches, err := a.Fetch(context.Background())
	require.NoError(t, err)
	got := batches[0].Groups["1.12.2"]
	require.Len(t, got, 1)
	assert.Equal(t, "24.1.0", got[0].CoreVersion)
	assert.Equal(t, "https://github.com/c/CatServer-24.1.0.jar", got[0].DownloadURL)
}

func TestFetch_UpstreamError(t *testing.T) {
	srv := serve(t, "/elsewhere", "[]")
	a := newAdapter(t, srv.URL, map[string]any{"repo": "IzzelAliz/Arclight"})

	_, err := a.Fetch(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, fetch.ErrNotFound)
}

func TestFetch_NoUsableReleases(t *testing.T) {
	srv := serve(t, "/repos/IzzelAliz/Arclight/releases", `[{"tag_name": "junk"}]`)
	a := newAdapter(t, srv.URL, map[string]any{"repo": "IzzelAliz/Arclight"})

	batches, err := a.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, batches)
}

func TestNew_Validation(t *testing.T) {
	client := fetch.NewClient()
	t.Cleanup(client.Close)
	deps := adapter.Deps{Client: client, Logger: testutil.NewTestLogger(t)}

	tests := []struct {
		name    string
		options map[string]any
		wantErr string
	}{
		{"missing repo", nil, `option "repo" is required`},
		{"bad repo", map[string]any{"repo": "justname"}, "owner/name"},
		{"bad mode", map[string]any{"repo": "a/b", "tag_mode": "colon"}, "unknown tag_mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(adapter.Spec{Name: "X", Kind: Kind, Options: tt.options}, deps)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}

	_, err := New(adapter.Spec{Name: "X", Options: map[string]any{"repo": "a/b"}}, adapter.Deps{})
	assert.ErrorContains(t, err, "fetch client is required")
}
