package kv

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

// Tree is an ordered namespace of positions. Positions sort by the store's
// key order; navigation and ranges follow that order.
type Tree struct {
	backend Backend
	name    Key
	quorum  Quorum
}

// Name returns the tree's identifying key.
func (t *Tree) Name() Key { return t.name.clone() }

// Quorum returns the quorum used by the tree's requests.
func (t *Tree) Quorum() Quorum { return t.quorum }

func (t *Tree) request(key Key, tx *int64) *CursorRequest {
	return &CursorRequest{Tree: t.name, Key: key, Quorum: t.quorum, Transaction: tx}
}

func (t *Tree) cursorFrom(state *CursorState, tx *int64) *Cursor {
	return &Cursor{tree: t, key: state.Key.clone(), value: state.Value, transaction: tx}
}

// Cursor returns a local handle on key, optionally inside tx. No request
// is sent and the value starts absent.
func (t *Tree) Cursor(key Key, tx *Transaction) (*Cursor, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return &Cursor{tree: t, key: key.clone(), transaction: txRef(tx)}, nil
}

// GetCursor looks key up. It returns nil, nil when the position was never
// set.
func (t *Tree) GetCursor(ctx context.Context, key Key, tx *Transaction) (*Cursor, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	ref := txRef(tx)
	state, err := t.backend.GetCursor(ctx, t.request(key.clone(), ref))
	if err != nil || state == nil {
		return nil, err
	}
	return t.cursorFrom(state, ref), nil
}

// Range returns positions in key order. opts.First is exclusive,
// opts.Last inclusive, and opts.Limit keeps the lowest matches.
func (t *Tree) Range(ctx context.Context, opts *RangeOptions) ([]*Cursor, error) {
	req := &RangeRequest{Tree: t.name, Quorum: t.quorum}
	if opts != nil {
		if err := validateBound("first", opts.First); err != nil {
			return nil, err
		}
		if err := validateBound("last", opts.Last); err != nil {
			return nil, err
		}
		if opts.Limit < 0 {
			return nil, &ValidationError{Field: "limit", Reason: "limit must not be negative"}
		}
		req.First = opts.First.clone()
		req.Last = opts.Last.clone()
		req.Limit = opts.Limit
		req.Transaction = txRef(opts.Transaction)
	}

	states, err := t.backend.Range(ctx, req)
	if err != nil {
		return nil, err
	}
	cursors := make([]*Cursor, 0, len(states))
	for i := range states {
		cursors = append(cursors, t.cursorFrom(&states[i], req.Transaction))
	}
	return cursors, nil
}

func txRef(tx *Transaction) *int64 {
	if tx == nil {
		return nil
	}
	return tx.ref()
}

// Cursor is a position inside a Tree. Navigation returns new cursors and
// never moves the receiver.
type Cursor struct {
	tree        *Tree
	key         Key
	value       json.RawMessage
	transaction *int64
}

// Key returns the cursor's position.
func (c *Cursor) Key() Key { return c.key.clone() }

// Value returns the cached value, nil when absent.
func (c *Cursor) Value() json.RawMessage { return c.value }

// Tree returns the tree the cursor belongs to.
func (c *Cursor) Tree() *Tree { return c.tree }

// Decode unmarshals the cached value into out; false when absent.
func (c *Cursor) Decode(out any) (bool, error) {
	if c.value == nil {
		return false, nil
	}
	if err := json.Unmarshal(c.value, out); err != nil {
		return true, errors.Wrap(err, "kv: decode cursor value")
	}
	return true, nil
}

// Set writes value at the cursor's position, creating it if needed.
func (c *Cursor) Set(ctx context.Context, value any) error {
	raw, err := encodeValue(value)
	if err != nil {
		return err
	}
	err = c.tree.backend.PutCursor(ctx, &PutCursorRequest{
		CursorRequest: *c.tree.request(c.key, c.transaction),
		Value:         raw,
	})
	if err != nil {
		return err
	}
	c.value = normalize(raw)
	return nil
}

// Next returns the position strictly after this one, or nil at the end of
// the tree.
func (c *Cursor) Next(ctx context.Context) (*Cursor, error) {
	state, err := c.tree.backend.NextCursor(ctx, c.tree.request(c.key, c.transaction))
	if err != nil || state == nil {
		return nil, err
	}
	return c.tree.cursorFrom(state, c.transaction), nil
}

// Prev returns the position strictly before this one, or nil at the start
// of the tree.
func (c *Cursor) Prev(ctx context.Context) (*Cursor, error) {
	state, err := c.tree.backend.PrevCursor(ctx, c.tree.request(c.key, c.transaction))
	if err != nil || state == nil {
		return nil, err
	}
	return c.tree.cursorFrom(state, c.transaction), nil
}
