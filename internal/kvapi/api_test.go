package kvapi

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeKey(t *testing.T) {
	tests := []struct {
		name    string
		key     []string
		encoded string
	}{
		{name: "plain", key: []string{"A", "B"}, encoded: "A:B"},
		{name: "separator in segment", key: []string{"a:b", "c"}, encoded: "a%3Ab:c"},
		{name: "slash in segment", key: []string{"dir/file"}, encoded: "dir%2Ffile"},
		{name: "space and percent", key: []string{"50% off", "x"}, encoded: "50%25%20off:x"},
		{name: "unicode", key: []string{"ключ"}, encoded: "%D0%BA%D0%BB%D1%8E%D1%87"},
		{name: "sub-delims", key: []string{"a@b+c=d$e&f,g"}, encoded: "a%40b%2Bc%3Dd%24e%26f%2Cg"},
		{name: "unreserved", key: []string{"v1.2_x-y~z"}, encoded: "v1.2_x-y~z"},
		{name: "single dot", key: []string{"."}, encoded: "%2E"},
		{name: "double dot", key: []string{"..", "a"}, encoded: "%2E%2E:a"},
		{name: "dots inside", key: []string{"a..b", "..."}, encoded: "a..b:%2E%2E%2E"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := EncodeKey(tc.key)
			assert.Equal(t, tc.encoded, got)

			decoded, err := DecodeKey(got)
			require.NoError(t, err)
			assert.Equal(t, tc.key, decoded)
		})
	}
}

func TestDecodeKeyRejectsGarbage(t *testing.T) {
	_, err := DecodeKey("")
	require.Error(t, err)
	_, err = DecodeKey("a:%zz")
	require.Error(t, err)
}

func TestPaths(t *testing.T) {
	assert.Equal(t, "/v2/kv/keys/a:b", EntryPath(DefaultPrefix, []string{"a", "b"}))
	assert.Equal(t, "/v2/kv/keys/a/version", VersionPath(DefaultPrefix, []string{"a"}))
	assert.Equal(t, "/v2/tx", TxPath(DefaultPrefix))
	assert.Equal(t, "/v2/tx/7/keep-alive", TxActionPath(DefaultPrefix, 7, ActionKeepAlive))
	assert.Equal(t, "/v2/dt/trees/t/cursors/A:B/next", NavigatePath(DefaultPrefix, []string{"t"}, []string{"A", "B"}, DirectionNext))
	assert.Equal(t, "/v2/dt/trees/t:u/range", RangePath(DefaultPrefix, []string{"t", "u"}))
}

func TestSecondsRoundTrip(t *testing.T) {
	assert.Equal(t, "1.5", FormatSeconds(1500*time.Millisecond))
	assert.Equal(t, "30", FormatSeconds(30*time.Second))

	d, err := ParseSeconds("0.25")
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	_, err = ParseSeconds("-1")
	require.Error(t, err)
	_, err = ParseSeconds("soon")
	require.Error(t, err)
}

func TestDecodeAndNormalize(t *testing.T) {
	var body EntryBody
	require.NoError(t, Decode([]byte(` {"version":3,"value":{"a":1}} `), &body))
	assert.EqualValues(t, 3, body.Version)
	assert.JSONEq(t, `{"a":1}`, string(body.Value))

	var missing EntryBody
	require.NoError(t, Decode([]byte(`{"version":0}`), &missing))
	assert.Nil(t, NormalizeValue(missing.Value))
	assert.Nil(t, NormalizeValue(json.RawMessage(" null ")))
	assert.Equal(t, json.RawMessage(`"x"`), NormalizeValue(json.RawMessage(`"x"`)))

	require.Error(t, Decode(nil, &body))
	require.Error(t, Decode([]byte(`{`), &body))
}
