package kv

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

// Entry is a handle on one versioned key, optionally scoped to a
// transaction. It caches the last (version, value) pair the store returned;
// the pair is only ever replaced as a whole.
//
// An Entry is not safe for concurrent use; give each goroutine its own.
type Entry struct {
	backend     Backend
	key         Key
	quorum      Quorum
	transaction *int64

	version int64
	value   json.RawMessage
}

func newEntry(b Backend, key Key, q Quorum, tx *int64) (*Entry, error) {
	if err := validateTarget(key, q); err != nil {
		return nil, err
	}
	return &Entry{backend: b, key: key.clone(), quorum: q, transaction: tx}, nil
}

// Key returns the entry's key.
func (e *Entry) Key() Key { return e.key.clone() }

// Version returns the cached version.
func (e *Entry) Version() int64 { return e.version }

// Value returns the cached value, nil when absent.
func (e *Entry) Value() json.RawMessage { return e.value }

// Quorum returns the quorum every request of this entry uses.
func (e *Entry) Quorum() Quorum { return e.quorum }

// Transaction returns the index of the enclosing transaction, if any.
func (e *Entry) Transaction() (int64, bool) {
	if e.transaction == nil {
		return 0, false
	}
	return *e.transaction, true
}

// Decode unmarshals the cached value into out. It reports false, leaving
// out untouched, when the value is absent.
func (e *Entry) Decode(out any) (bool, error) {
	if e.value == nil {
		return false, nil
	}
	if err := json.Unmarshal(e.value, out); err != nil {
		return true, errors.Wrap(err, "kv: decode entry value")
	}
	return true, nil
}

func (e *Entry) replace(version int64, value json.RawMessage) {
	e.version, e.value = version, value
}

// Get fetches the current version and value and returns the value.
func (e *Entry) Get(ctx context.Context) (json.RawMessage, error) {
	state, err := e.backend.GetEntry(ctx, &GetEntryRequest{
		Key:         e.key,
		Quorum:      e.quorum,
		Transaction: e.transaction,
	})
	if err != nil {
		return nil, err
	}
	e.replace(state.Version, state.Value)
	return e.value, nil
}

// Listen waits, on the server, until the key's version exceeds the wait
// version, then caches and returns the new value. ErrTimeout means nothing
// newer was observed within the window, not that nothing changed.
func (e *Entry) Listen(ctx context.Context, opts *ListenOptions) (json.RawMessage, error) {
	wait := e.version
	req := &GetEntryRequest{
		Key:         e.key,
		Quorum:      e.quorum,
		Transaction: e.transaction,
		WaitVersion: &wait,
	}
	if opts != nil {
		if opts.WaitVersion != nil {
			wait = *opts.WaitVersion
		}
		if opts.Timeout < 0 {
			return nil, &ValidationError{Field: "timeout", Reason: "timeout must not be negative"}
		}
		req.WaitTimeout = opts.Timeout
	}

	state, err := e.backend.GetEntry(ctx, req)
	if err != nil {
		return nil, err
	}
	e.replace(state.Version, state.Value)
	return e.value, nil
}

// Set writes value unconditionally and returns the new version.
func (e *Entry) Set(ctx context.Context, value any) (int64, error) {
	return e.put(ctx, value, nil)
}

// CAS writes value only if the stored version still equals the expected
// one (by default the cached version). On ErrCasConflict the cache is left
// as it was.
func (e *Entry) CAS(ctx context.Context, value any, opts *CASOptions) (int64, error) {
	old := e.version
	if opts != nil && opts.OldVersion != nil {
		old = *opts.OldVersion
	}
	return e.put(ctx, value, &old)
}

func (e *Entry) put(ctx context.Context, value any, oldVersion *int64) (int64, error) {
	raw, err := encodeValue(value)
	if err != nil {
		return 0, err
	}
	version, err := e.backend.PutEntry(ctx, &PutEntryRequest{
		Key:         e.key,
		Quorum:      e.quorum,
		Transaction: e.transaction,
		OldVersion:  oldVersion,
		Value:       raw,
	})
	if err != nil {
		return 0, err
	}
	e.replace(version, normalize(raw))
	return version, nil
}
