// Package kvsdk bootstraps a kv.Session from environment variables.
//
// KV_RUNTIME_MODE selects the backend: "http" talks to the store node at
// KV_API_URL, "mock" uses the in-memory store (optionally seeded from the
// JSON file named by KV_MOCK_SEED), and "auto" (the default) picks HTTP when
// an address is known. KV_CONFIG names a TOML file whose [client] section
// supplies transport settings, the default quorum and a fallback address.
package kvsdk
