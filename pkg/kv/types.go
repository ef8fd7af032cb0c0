package kv

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/acapella/kv_sdk_go/internal/kvapi"
)

// Key addresses an entry or a tree position: an ordered list of non-empty
// segments. The store defines how keys sort; the client never reorders them.
type Key []string

// String renders the key in its wire form.
func (k Key) String() string {
	return kvapi.EncodeKey(k)
}

// Equal reports whether both keys have the same segments.
func (k Key) Equal(other Key) bool {
	if len(k) != len(other) {
		return false
	}
	for i := range k {
		if k[i] != other[i] {
			return false
		}
	}
	return true
}

func (k Key) clone() Key {
	if k == nil {
		return nil
	}
	return append(Key(nil), k...)
}

// Quorum selects the replica count and read/write acknowledgement thresholds
// of one operation.
type Quorum struct {
	N int `toml:"n" json:"n"`
	R int `toml:"r" json:"r"`
	W int `toml:"w" json:"w"`
}

// DefaultQuorum mirrors the store's defaults: three replicas, majority reads
// and writes.
var DefaultQuorum = Quorum{N: 3, R: 2, W: 2}

// ListenOptions tunes Entry.Listen.
type ListenOptions struct {
	// WaitVersion is the version to wait past. Nil means the entry's cached
	// version.
	WaitVersion *int64
	// Timeout is the server-side wait window. Zero leaves the server default.
	Timeout time.Duration
}

// CASOptions tunes Entry.CAS.
type CASOptions struct {
	// OldVersion is the expected current version. Nil means the entry's
	// cached version.
	OldVersion *int64
}

// RangeOptions bounds Tree.Range. First is exclusive, Last inclusive; a nil
// bound leaves that side of the tree open. Limit 0 means no limit.
type RangeOptions struct {
	First       Key
	Last        Key
	Limit       int
	Transaction *Transaction
}

// Version returns a pointer to v, for option structs.
func Version(v int64) *int64 {
	return &v
}

// DecodeValue decodes an opaque value into T. The boolean is false when the
// value is absent.
func DecodeValue[T any](raw json.RawMessage) (T, bool, error) {
	var out T
	if raw == nil {
		return out, false, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, true, errors.Wrap(err, "kv: decode value")
	}
	return out, true, nil
}

// encodeValue turns a caller payload into the JSON document sent on the wire.
func encodeValue(v any) (json.RawMessage, error) {
	switch val := v.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case json.RawMessage:
		if len(val) == 0 {
			return json.RawMessage("null"), nil
		}
		if !json.Valid(val) {
			return nil, errors.New("kv: value is not valid JSON")
		}
		return append(json.RawMessage(nil), val...), nil
	}

	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, errors.Wrap(err, "kv: encode value")
	}
	return json.RawMessage(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

func normalize(raw json.RawMessage) json.RawMessage {
	return kvapi.NormalizeValue(raw)
}
