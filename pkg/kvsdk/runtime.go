package kvsdk

import (
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/acapella/kv_sdk_go/internal/config"
	"github.com/acapella/kv_sdk_go/internal/devseed"
	"github.com/acapella/kv_sdk_go/pkg/kv"
	"github.com/acapella/kv_sdk_go/pkg/kv/mock"
)

const (
	envMode     = "KV_RUNTIME_MODE"
	envURL      = "KV_API_URL"
	envMockSeed = "KV_MOCK_SEED"
	envConfig   = "KV_CONFIG"

	// ModeAuto picks HTTP when an address is known and the mock otherwise.
	ModeAuto = "auto"
	// ModeHTTP talks to a store node.
	ModeHTTP = "http"
	// ModeMock uses the in-memory store.
	ModeMock = "mock"
)

// Runtime is a session resolved from the environment.
type Runtime struct {
	Session *kv.Session
	// Mode is the resolved mode, ModeHTTP or ModeMock.
	Mode string
	// Quorum is the configured default quorum.
	Quorum kv.Quorum
	// Mock is the backing store in mock mode, nil otherwise.
	Mock *mock.Store
}

// NewFromEnv builds a session from KV_RUNTIME_MODE, KV_API_URL, KV_MOCK_SEED
// and KV_CONFIG. opts are applied after the configuration file's options.
func NewFromEnv(opts ...kv.Option) (*Runtime, error) {
	mode := strings.ToLower(strings.TrimSpace(os.Getenv(envMode)))

	cfg := config.Default()
	if path := strings.TrimSpace(os.Getenv(envConfig)); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, errors.Wrap(err, "kvsdk")
		}
		cfg = loaded
	}
	baseURL := strings.TrimSpace(os.Getenv(envURL))
	if baseURL == "" {
		baseURL = strings.TrimSpace(cfg.Client.Address)
	}

	switch mode {
	case "", ModeAuto:
		if baseURL != "" {
			return newHTTPRuntime(cfg, baseURL, opts)
		}
		return newMockRuntime(cfg, opts)
	case ModeHTTP:
		if baseURL == "" {
			return nil, errors.Errorf("kvsdk: HTTP mode requires %s or client.address", envURL)
		}
		return newHTTPRuntime(cfg, baseURL, opts)
	case ModeMock:
		return newMockRuntime(cfg, opts)
	default:
		return nil, errors.Errorf("kvsdk: unsupported %s value %q", envMode, mode)
	}
}

func newHTTPRuntime(cfg *config.Config, baseURL string, opts []kv.Option) (*Runtime, error) {
	all := append(cfg.Client.Options(), opts...)
	session, err := kv.New(baseURL, all...)
	if err != nil {
		return nil, errors.Wrap(err, "kvsdk: init HTTP session")
	}
	return &Runtime{Session: session, Mode: ModeHTTP, Quorum: cfg.Client.Quorum}, nil
}

func newMockRuntime(cfg *config.Config, opts []kv.Option) (*Runtime, error) {
	var mockOpts []mock.Option
	if ttl := cfg.Sandbox.TransactionTTL.Duration; ttl > 0 {
		mockOpts = append(mockOpts, mock.WithTransactionTTL(ttl))
	}
	if wait := cfg.Sandbox.WaitTimeout.Duration; wait > 0 {
		mockOpts = append(mockOpts, mock.WithDefaultWaitTimeout(wait))
	}
	store := mock.New(mockOpts...)

	if path := strings.TrimSpace(os.Getenv(envMockSeed)); path != "" {
		seed, err := devseed.Load(path)
		if err != nil {
			return nil, errors.Wrap(err, "kvsdk: load mock seed")
		}
		if err := store.Seed(seed); err != nil {
			return nil, errors.Wrap(err, "kvsdk: apply mock seed")
		}
	}

	session := kv.NewWithBackend(store, opts...)
	return &Runtime{Session: session, Mode: ModeMock, Quorum: cfg.Client.Quorum, Mock: store}, nil
}

// Must panics when NewFromEnv fails; meant for examples and main packages.
func Must(rt *Runtime, err error) *Runtime {
	if err != nil {
		panic(err)
	}
	return rt
}
