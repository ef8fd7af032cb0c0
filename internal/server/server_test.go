package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acapella/kv_sdk_go/internal/kvapi"
	"github.com/acapella/kv_sdk_go/pkg/kv/mock"
)

func newTestServer(t *testing.T, opts ...Option) (*httptest.Server, *mock.Store) {
	t.Helper()
	store := mock.New()
	ts := httptest.NewServer(New(store, opts...))
	t.Cleanup(ts.Close)
	return ts, store
}

func do(t *testing.T, method, url, body string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func TestEntryRoundTrip(t *testing.T) {
	ts, _ := newTestServer(t)
	path := ts.URL + kvapi.EntryPath(kvapi.DefaultPrefix, []string{"users", "a/b:c", "100%"})

	status, body := do(t, http.MethodPut, path+"?n=3&r=2&w=2", `{"name":"x"}`)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.JSONEq(t, `{"version":1}`, string(body))

	status, body = do(t, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"version":1,"value":{"name":"x"}}`, string(body))

	status, body = do(t, http.MethodGet, ts.URL+kvapi.VersionPath(kvapi.DefaultPrefix, []string{"users", "a/b:c", "100%"}), "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"version":1}`, string(body))

	// Each segment is stored separately.
	status, body = do(t, http.MethodGet, ts.URL+kvapi.EntryPath(kvapi.DefaultPrefix, []string{"users", "a/b", "c", "100%"}), "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"version":0}`, string(body))
}

func TestStatusMapping(t *testing.T) {
	ts, _ := newTestServer(t)
	path := ts.URL + kvapi.EntryPath(kvapi.DefaultPrefix, []string{"k"})

	status, _ := do(t, http.MethodPut, path+"?old-version=5", `1`)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = do(t, http.MethodGet, path+"?wait-version=0&wait-timeout=0.05", "")
	assert.Equal(t, http.StatusRequestTimeout, status)

	status, _ = do(t, http.MethodGet, path+"?n=1&r=2&w=1", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, http.MethodGet, path+"?n=abc", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, http.MethodPut, path, `{not json`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, http.MethodPost, ts.URL+kvapi.TxActionPath(kvapi.DefaultPrefix, 99, kvapi.ActionCommit), "")
	assert.Equal(t, http.StatusGone, status)

	status, _ = do(t, http.MethodPost, ts.URL+"/v2/tx/1/explode", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestTransactionRoutes(t *testing.T) {
	ts, _ := newTestServer(t)

	status, body := do(t, http.MethodPost, ts.URL+kvapi.TxPath(kvapi.DefaultPrefix), "")
	require.Equal(t, http.StatusOK, status)
	var tx kvapi.TxBody
	require.NoError(t, json.Unmarshal(body, &tx))

	status, _ = do(t, http.MethodPost, ts.URL+kvapi.TxActionPath(kvapi.DefaultPrefix, tx.Index, kvapi.ActionKeepAlive), "")
	assert.Equal(t, http.StatusOK, status)
	status, _ = do(t, http.MethodPost, ts.URL+kvapi.TxActionPath(kvapi.DefaultPrefix, tx.Index, kvapi.ActionRollback), "")
	assert.Equal(t, http.StatusOK, status)
	status, _ = do(t, http.MethodPost, ts.URL+kvapi.TxActionPath(kvapi.DefaultPrefix, tx.Index, kvapi.ActionKeepAlive), "")
	assert.Equal(t, http.StatusPreconditionFailed, status)
}

func TestTreeRoutes(t *testing.T) {
	ts, _ := newTestServer(t)
	tree := []string{"idx"}
	for _, k := range []string{"a", "b", "c"} {
		status, body := do(t, http.MethodPut, ts.URL+kvapi.CursorPath(kvapi.DefaultPrefix, tree, []string{k}), `"`+k+`"`)
		require.Equal(t, http.StatusOK, status, string(body))
	}

	status, body := do(t, http.MethodGet, ts.URL+kvapi.NavigatePath(kvapi.DefaultPrefix, tree, []string{"a"}, kvapi.DirectionNext), "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"found":true,"key":["b"],"value":"b"}`, string(body))

	status, body = do(t, http.MethodGet, ts.URL+kvapi.NavigatePath(kvapi.DefaultPrefix, tree, []string{"a"}, kvapi.DirectionPrev), "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"found":false}`, string(body))

	status, body = do(t, http.MethodGet, ts.URL+kvapi.CursorPath(kvapi.DefaultPrefix, tree, []string{"zz"}), "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"found":false}`, string(body))

	status, body = do(t, http.MethodGet, ts.URL+kvapi.RangePath(kvapi.DefaultPrefix, tree)+"?first=a&limit=1", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"items":[{"found":true,"key":["b"],"value":"b"}]}`, string(body))

	status, _ = do(t, http.MethodGet, ts.URL+kvapi.RangePath(kvapi.DefaultPrefix, tree)+"?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHealthAndMetrics(t *testing.T) {
	ts, _ := newTestServer(t)

	status, body := do(t, http.MethodGet, ts.URL+"/health", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	do(t, http.MethodGet, ts.URL+kvapi.EntryPath(kvapi.DefaultPrefix, []string{"k"}), "")
	status, body = do(t, http.MethodGet, ts.URL+"/metrics", "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "kv_sandbox_requests_total")
	assert.Contains(t, string(body), `route="/v2/kv/keys/{key}`)
}

func TestCustomPrefixAndMiddleware(t *testing.T) {
	blocked := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Block") != "" {
				http.Error(w, "blocked", http.StatusServiceUnavailable)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	ts, _ := newTestServer(t, WithPrefix("/api/"), WithMiddleware(blocked))

	status, _ := do(t, http.MethodGet, ts.URL+kvapi.EntryPath("/api", []string{"k"}), "")
	assert.Equal(t, http.StatusOK, status)

	req, err := http.NewRequest(http.MethodGet, ts.URL+kvapi.EntryPath("/api", []string{"k"}), nil)
	require.NoError(t, err)
	req.Header.Set("X-Block", "1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	status, _ = do(t, http.MethodGet, ts.URL+"/health", "")
	assert.Equal(t, http.StatusOK, status)
}
