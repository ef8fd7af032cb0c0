package devseed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	seed, err := Parse([]byte(`{
		"entries": [{"key": ["accounts", "alice"], "value": {"balance": 10}, "version": 3}],
		"trees": [{"name": ["ledger"], "cursors": [{"key": ["2024", "01"], "value": "jan"}]}]
	}`))
	require.NoError(t, err)
	require.Len(t, seed.Entries, 1)
	assert.Equal(t, []string{"accounts", "alice"}, seed.Entries[0].Key)
	assert.Equal(t, int64(3), seed.Entries[0].Version)
	assert.JSONEq(t, `{"balance":10}`, string(seed.Entries[0].Value))
	require.Len(t, seed.Trees, 1)
	assert.Equal(t, []string{"2024", "01"}, seed.Trees[0].Cursors[0].Key)
}

func TestParseRejectsBadSeeds(t *testing.T) {
	cases := map[string]string{
		"unknown field":  `{"entries": [], "extra": 1}`,
		"empty key":      `{"entries": [{"key": [], "value": 1}]}`,
		"blank segment":  `{"entries": [{"key": ["a", " "], "value": 1}]}`,
		"negative":       `{"entries": [{"key": ["a"], "value": 1, "version": -1}]}`,
		"blank tree":     `{"trees": [{"name": [], "cursors": []}]}`,
		"blank position": `{"trees": [{"name": ["t"], "cursors": [{"key": [""]}]}]}`,
		"not json":       `entries`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"entries": [{"key": ["k"], "value": "v"}]}`), 0o600))

	seed, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, seed.Entries, 1)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestExampleSeedLoads(t *testing.T) {
	seed, err := Load(filepath.Join("..", "..", "examples", "seed", "seed.json"))
	require.NoError(t, err)
	assert.Len(t, seed.Entries, 3)
	require.Len(t, seed.Trees, 1)
	assert.Equal(t, []string{"events", "by-day"}, seed.Trees[0].Name)
}
