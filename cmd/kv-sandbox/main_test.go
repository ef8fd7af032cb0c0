package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/acapella/kv_sdk_go/internal/config"
	"github.com/acapella/kv_sdk_go/pkg/kv"
)

func TestParseFailConfig(t *testing.T) {
	cfg, err := parseFailConfig("")
	require.NoError(t, err)
	assert.Equal(t, failConfig{}, cfg)

	cfg, err = parseFailConfig("rate=0.25, code=503")
	require.NoError(t, err)
	assert.Equal(t, failConfig{rate: 0.25, code: 503}, cfg)

	cfg, err = parseFailConfig("rate=1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, cfg.code)

	for _, raw := range []string{"rate", "rate=x", "rate=2", "code=42", "speed=1"} {
		_, err := parseFailConfig(raw)
		assert.Error(t, err, raw)
	}
}

func TestWithFaults(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	rec := httptest.NewRecorder()
	withFaults(0, failConfig{rate: 1, code: http.StatusServiceUnavailable})(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	start := time.Now()
	withFaults(20*time.Millisecond, failConfig{})(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestResolveConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.toml")
	require.NoError(t, os.WriteFile(path, []byte("[sandbox]\naddr = \":9000\"\nlatency = \"10ms\"\ntx-ttl = \"1m\"\n"), 0o600))

	flags := &sandboxFlags{}
	cmd := newCommand(flags)
	require.NoError(t, cmd.ParseFlags([]string{"--config", path, "--latency", "50ms"}))
	cfg, err := resolveConfig(cmd, flags)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, 50*time.Millisecond, cfg.Latency.Duration)
	assert.Equal(t, time.Minute, cfg.TransactionTTL.Duration)
	assert.Equal(t, 30*time.Second, cfg.WaitTimeout.Duration)
}

func TestSandboxHandlerServesSeededStore(t *testing.T) {
	seedPath := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(seedPath, []byte(`{"entries":[{"key":["hello"],"value":"world"}]}`), 0o600))

	cfg := config.Default().Sandbox
	cfg.Seed = seedPath
	store, err := newStore(&cfg)
	require.NoError(t, err)
	handler, err := newHandler(&cfg, store, zap.NewNop())
	require.NoError(t, err)

	ts := httptest.NewServer(handler)
	defer ts.Close()

	session, err := kv.New(ts.URL)
	require.NoError(t, err)
	e, err := session.GetEntry(context.Background(), kv.Key{"hello"}, kv.DefaultQuorum)
	require.NoError(t, err)
	assert.JSONEq(t, `"world"`, string(e.Value()))
}

func TestNewLogger(t *testing.T) {
	_, err := newLogger("debug")
	assert.NoError(t, err)
	_, err = newLogger("loud")
	assert.Error(t, err)
}
