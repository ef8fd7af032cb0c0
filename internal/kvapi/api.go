// Package kvapi holds the wire contract shared by the HTTP backend and the
// reference server: route layout, query parameter names and JSON bodies.
package kvapi

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// DefaultPrefix is the API version prefix of the store's HTTP node.
const DefaultPrefix = "/v2"

// Query parameter names.
const (
	ParamN           = "n"
	ParamR           = "r"
	ParamW           = "w"
	ParamTransaction = "transaction"
	ParamWaitVersion = "wait-version"
	ParamWaitTimeout = "wait-timeout"
	ParamOldVersion  = "old-version"
	ParamFirst       = "first"
	ParamLast        = "last"
	ParamLimit       = "limit"
)

// Transaction actions appended to /tx/{index}/.
const (
	ActionCommit    = "commit"
	ActionRollback  = "rollback"
	ActionKeepAlive = "keep-alive"
)

// Cursor navigation directions appended to a cursor path.
const (
	DirectionNext = "next"
	DirectionPrev = "prev"
)

// EntryPath is the route of a single key.
func EntryPath(prefix string, key []string) string {
	return prefix + "/kv/keys/" + EncodeKey(key)
}

// VersionPath is the version-only route of a key.
func VersionPath(prefix string, key []string) string {
	return EntryPath(prefix, key) + "/version"
}

// TxPath is the route transactions are begun on.
func TxPath(prefix string) string {
	return prefix + "/tx"
}

// TxActionPath is the route of commit, rollback and keep-alive.
func TxActionPath(prefix string, index int64, action string) string {
	return TxPath(prefix) + "/" + strconv.FormatInt(index, 10) + "/" + action
}

// TreePath is the root route of a tree.
func TreePath(prefix string, tree []string) string {
	return prefix + "/dt/trees/" + EncodeKey(tree)
}

// CursorPath is the route of one position in a tree.
func CursorPath(prefix string, tree, key []string) string {
	return TreePath(prefix, tree) + "/cursors/" + EncodeKey(key)
}

// NavigatePath is the route returning the neighbour of key in direction.
func NavigatePath(prefix string, tree, key []string, direction string) string {
	return CursorPath(prefix, tree, key) + "/" + direction
}

// RangePath is the route of range scans.
func RangePath(prefix string, tree []string) string {
	return TreePath(prefix, tree) + "/range"
}

// QuorumQuery builds the n/r/w parameters every data request carries.
func QuorumQuery(n, r, w int) url.Values {
	return url.Values{
		ParamN: {strconv.Itoa(n)},
		ParamR: {strconv.Itoa(r)},
		ParamW: {strconv.Itoa(w)},
	}
}

// SetInt64 adds name=v to q when v is non-nil.
func SetInt64(q url.Values, name string, v *int64) {
	if v != nil {
		q.Set(name, strconv.FormatInt(*v, 10))
	}
}

// FormatSeconds renders a duration as (fractional) seconds.
func FormatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

// ParseSeconds parses a FormatSeconds value.
func ParseSeconds(s string) (time.Duration, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "kvapi: invalid seconds %q", s)
	}
	if f < 0 {
		return 0, errors.Errorf("kvapi: negative seconds %q", s)
	}
	return time.Duration(f * float64(time.Second)), nil
}

// EntryBody answers entry fetches.
type EntryBody struct {
	Version int64           `json:"version"`
	Value   json.RawMessage `json:"value,omitempty"`
}

// VersionBody answers writes and version fetches.
type VersionBody struct {
	Version int64 `json:"version"`
}

// TxBody answers transaction begin.
type TxBody struct {
	Index int64 `json:"index"`
}

// CursorBody answers point lookups and navigation. Found is false when the
// position does not exist (end of tree or never set).
type CursorBody struct {
	Found bool            `json:"found"`
	Key   []string        `json:"key,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// RangeBody answers range scans, ordered by key.
type RangeBody struct {
	Items []CursorBody `json:"items"`
}

// Decode unmarshals a success body into out.
func Decode(body []byte, out any) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return errors.New("kvapi: empty response body")
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return errors.Wrap(err, "kvapi: decode response")
	}
	return nil
}

// NormalizeValue maps JSON null and empty payloads to nil so absence has a
// single representation.
func NormalizeValue(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return append(json.RawMessage(nil), trimmed...)
}
