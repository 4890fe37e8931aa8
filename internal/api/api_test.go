package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UCKETX/mcsm-templates/internal/record"
	"github.com/UCKETX/mcsm-templates/internal/store"
	"github.com/UCKETX/mcsm-templates/internal/testutil"
)

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *APIError       `json:"error"`
}

func seedCatalog(t *testing.T) *store.Catalog {
	t.Helper()
	cat, err := store.OpenCatalog(filepath.Join(t.TempDir(), "runtime"))
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })

	ctx := context.Background()
	seed := map[string][]string{
		"1.20.1": {"47.1.0", "47.2.0"},
		"1.19.4": {"45.1.0"},
	}
	for mc, versions := range seed {
		var recs []record.BuildRecord
		for _, cv := range versions {
			r, err := record.New("2024-01-02T03:04:05Z",
				"https://example.test/forge/"+mc+"/"+cv+".jar", "Forge", mc, cv)
			require.NoError(t, err)
			recs = append(recs, r)
		}
		_, err := cat.Upsert(ctx, "Forge", mc, recs)
		require.NoError(t, err)
	}
	return cat
}

func newTestServer(t *testing.T, r Reader) *Server {
	t.Helper()
	return NewServer(r, WithLogger(testutil.NewTestLogger(t)))
}

func get(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestListCores(t *testing.T) {
	s := newTestServer(t, seedCatalog(t))

	rec, env := get(t, s, "/core")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "ok", env.Status)

	var data coresData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, []string{"Forge"}, data.Cores)
}

func TestListVersions(t *testing.T) {
	s := newTestServer(t, seedCatalog(t))

	rec, env := get(t, s, "/core/Forge")
	require.Equal(t, http.StatusOK, rec.Code)

	var data versionsData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "Forge", data.CoreType)
	assert.Equal(t, []string{"1.20.1", "1.19.4"}, data.Versions)
}

func TestListVersions_UnknownCore(t *testing.T) {
	s := newTestServer(t, seedCatalog(t))

	rec, env := get(t, s, "/core/Ghost")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "error", env.Status)
	require.NotNil(t, env.Error)
	assert.Equal(t, codeNotFound, env.Error.Code)
}

func TestListBuilds(t *testing.T) {
	s := newTestServer(t, seedCatalog(t))

	rec, env := get(t, s, "/core/Forge/1.20.1")
	require.Equal(t, http.StatusOK, rec.Code)

	var data buildsData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "1.20.1", data.MCVersion)
	assert.Equal(t, []string{"47.2.0", "47.1.0"}, data.Builds)
}

func TestListBuilds_MissingTable(t *testing.T) {
	s := newTestServer(t, seedCatalog(t))

	rec, env := get(t, s, "/core/Forge/1.7.10")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, codeNotFound, env.Error.Code)
}

func TestGetBuild(t *testing.T) {
	s := newTestServer(t, seedCatalog(t))

	rec, env := get(t, s, "/core/Forge/1.19.4/45.1.0")
	require.Equal(t, http.StatusOK, rec.Code)

	var data buildData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "Forge", data.Build.CoreType)
	assert.Equal(t, "1.19.4", data.Build.MCVersion)
	assert.Equal(t, "45.1.0", data.Build.CoreVersion)
	assert.Equal(t, "https://example.test/forge/1.19.4/45.1.0.jar", data.Build.DownloadURL)
	assert.True(t, data.Build.SyncTime.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
}

func TestGetBuild_Missing(t *testing.T) {
	s := newTestServer(t, seedCatalog(t))

	rec, _ := get(t, s, "/core/Forge/1.19.4/0.0.1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvalidCoreType(t *testing.T) {
	s := newTestServer(t, seedCatalog(t))

	rec, env := get(t, s, "/core/bad%20name/1.20.1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, codeInvalidCoreType, env.Error.Code)
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, seedCatalog(t))

	rec, env := get(t, s, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "error", env.Status)
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, seedCatalog(t))

	req := httptest.NewRequest(http.MethodPost, "/core", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

type failingReader struct{}

func (failingReader) CoreTypes() ([]string, error) {
	return nil, errors.New("disk on fire")
}

func (failingReader) ListVersions(context.Context, string) ([]string, error) {
	return nil, &store.StorageError{Op: "list versions", Err: errors.New("disk on fire")}
}

func (failingReader) ListBuilds(context.Context, string, string) ([]string, error) {
	panic("boom")
}

func (failingReader) GetBuild(context.Context, string, string, string) (record.BuildRecord, error) {
	return record.BuildRecord{}, errors.New("disk on fire")
}

func TestStorageFailureIsInternal(t *testing.T) {
	s := newTestServer(t, failingReader{})

	rec, env := get(t, s, "/core")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, codeInternal, env.Error.Code)
	assert.NotContains(t, env.Error.Message, "disk on fire")

	rec, _ = get(t, s, "/core/Forge")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPanicIsRecovered(t *testing.T) {
	s := newTestServer(t, failingReader{})

	req := httptest.NewRequest(http.MethodGet, "/core/Forge/1.20.1", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, failingReader{})

	rec, env := get(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", env.Status)
}

func TestServeListener_GracefulShutdown(t *testing.T) {
	s := newTestServer(t, seedCatalog(t))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ServeListener(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/core/Forge"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
